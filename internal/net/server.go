package net

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"sleipnir/internal/common"
	"sleipnir/internal/engine"
	"sleipnir/internal/utils"
)

const defaultNWorkers = 32

var ErrImproperConversion = errors.New("improper type conversion")

// Server exposes the backend's order-entry operations over the binary TCP
// protocol. Each connection is a long-lived session served by one of a
// fixed pool of workers; feed subscriptions made on a session relay events
// back over the same connection until the client disconnects.
type Server struct {
	address string
	backend *engine.Backend
	pool    utils.WorkerPool
}

func New(address string, backend *engine.Backend) *Server {
	return &Server{
		address: address,
		backend: backend,
		pool:    utils.NewWorkerPool(defaultNWorkers),
	}
}

// Run accepts connections until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	t, ctx := tomb.WithContext(ctx)

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", s.address)
	if err != nil {
		log.Error().Err(err).Str("address", s.address).Msg("unable to start listener")
		return err
	}

	// Unblock Accept once shutdown starts.
	t.Go(func() error {
		<-t.Dying()
		return listener.Close()
	})

	s.pool.Start(t, s.handleSession)

	t.Go(func() error {
		log.Info().Str("address", s.address).Msg("order entry server running")
		for {
			conn, err := listener.Accept()
			if err != nil {
				select {
				case <-t.Dying():
					return nil
				default:
				}
				log.Error().Err(err).Msg("error accepting client")
				continue
			}
			log.Info().
				Str("address", conn.RemoteAddr().String()).
				Msg("new client connected")
			s.pool.AddTask(conn)
		}
	})

	return t.Wait()
}

// handleSession is the worker method serving one connection end-to-end.
// Session-level failures terminate that session only, never the pool.
func (s *Server) handleSession(t *tomb.Tomb, task any) error {
	conn, ok := task.(net.Conn)
	if !ok {
		return ErrImproperConversion
	}

	// Close the connection on shutdown so the blocked read returns.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-t.Dying():
			conn.Close()
		case <-done:
		}
	}()

	session := &session{backend: s.backend, conn: conn}
	session.serve()
	return nil
}

// session tracks one client connection and its feed subscriptions. The
// write mutex serializes request responses with the relay goroutines
// sharing the connection.
type session struct {
	backend *engine.Backend
	conn    net.Conn
	writeMu sync.Mutex

	tradeSub uuid.UUID
	priceSub uuid.UUID
}

func (s *session) serve() {
	defer s.close()

	for {
		req, err := ReadRequest(s.conn)
		if errors.Is(err, ErrInvalidMessageType) {
			// Protocol violation: report it and drop the session, since
			// the stream is no longer aligned on a frame boundary.
			s.write(EncodeError(CodeMalformed, err.Error()))
			return
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.Error().
					Err(err).
					Str("address", s.conn.RemoteAddr().String()).
					Msg("error reading from connection")
			}
			return
		}
		if err := s.handle(req); err != nil {
			log.Error().
				Err(err).
				Str("address", s.conn.RemoteAddr().String()).
				Msg("error writing to connection")
			return
		}
	}
}

func (s *session) handle(req Request) error {
	switch req := req.(type) {
	case NewOrderRequest:
		id, err := s.backend.AddOrder(req.Order)
		if err != nil {
			return s.write(EncodeError(errorCode(err), err.Error()))
		}
		log.Debug().
			Stringer("order_id", id).
			Stringer("order", req.Order).
			Msg("order accepted")
		return s.write(EncodeOrderAccepted(id))

	case CancelOrderRequest:
		order, err := s.backend.RemoveOrder(req.OrderID)
		if err != nil {
			return s.write(EncodeError(errorCode(err), err.Error()))
		}
		frame, err := EncodeOrderRemoved(req.OrderID, order)
		if err != nil {
			return err
		}
		return s.write(frame)

	case SubscribeTradesRequest:
		if s.tradeSub == uuid.Nil {
			id, q := s.backend.SubscribeTradeFeed()
			s.tradeSub = id
			go s.relayTrades(q)
		}
		return nil

	case SubscribeBestPricesRequest:
		if s.priceSub == uuid.Nil {
			id, q := s.backend.SubscribeBestPriceFeed()
			s.priceSub = id
			go s.relayBestPrices(q)
		}
		return nil

	default:
		return s.write(EncodeError(CodeMalformed, "unhandled request"))
	}
}

// relayTrades pumps the subscriber queue onto the connection. It ends when
// the queue closes (unsubscribe or backend shutdown) or the write fails.
func (s *session) relayTrades(q *utils.Queue[common.Trade]) {
	for trade := range q.Out() {
		frame, err := EncodeTrade(trade)
		if err != nil {
			log.Error().Err(err).Msg("unable to encode trade")
			continue
		}
		if s.write(frame) != nil {
			return
		}
	}
}

func (s *session) relayBestPrices(q *utils.Queue[common.BestPrice]) {
	for bp := range q.Out() {
		frame, err := EncodeBestPrice(bp)
		if err != nil {
			log.Error().Err(err).Msg("unable to encode best price")
			continue
		}
		if s.write(frame) != nil {
			return
		}
	}
}

// close tears the session down: deregistering the subscriptions closes
// their queues, which ends the relay goroutines.
func (s *session) close() {
	if s.tradeSub != uuid.Nil {
		s.backend.UnsubscribeTradeFeed(s.tradeSub)
	}
	if s.priceSub != uuid.Nil {
		s.backend.UnsubscribeBestPriceFeed(s.priceSub)
	}
	if err := s.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		log.Error().
			Err(err).
			Str("address", s.conn.RemoteAddr().String()).
			Msg("unable to close connection")
	}
	log.Info().
		Str("address", s.conn.RemoteAddr().String()).
		Msg("client disconnected")
}

func (s *session) write(frame []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.conn.Write(frame)
	return err
}

func errorCode(err error) ErrorCode {
	switch {
	case errors.Is(err, common.ErrInvalidVolume):
		return CodeInvalidArgument
	case errors.Is(err, common.ErrUnknownSymbol), errors.Is(err, common.ErrOrderNotFound):
		return CodeNotFound
	default:
		return CodeInvalidArgument
	}
}
