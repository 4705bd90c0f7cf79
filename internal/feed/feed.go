package feed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"sleipnir/internal/common"
	"sleipnir/internal/engine"
)

const shutdownTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Server streams the backend's market-data feeds over WebSocket and serves
// read-only book snapshots over HTTP. It carries no matching logic.
type Server struct {
	address string
	backend *engine.Backend
	router  *mux.Router
}

func New(address string, backend *engine.Backend) *Server {
	s := &Server{
		address: address,
		backend: backend,
		router:  mux.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("/ws/trades", s.handleTradeFeed)
	s.router.HandleFunc("/ws/bestprices", s.handleBestPriceFeed)
	s.router.HandleFunc("/book/{symbol}", s.handleBook).Methods("GET")
	s.router.HandleFunc("/symbols", s.handleSymbols).Methods("GET")
	s.router.HandleFunc("/healthz", s.handleHealth).Methods("GET")
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.address, Handler: s.router}
	t, _ := tomb.WithContext(ctx)

	t.Go(func() error {
		<-t.Dying()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	t.Go(func() error {
		log.Info().Str("address", s.address).Msg("market data server running")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	return t.Wait()
}

// handleTradeFeed upgrades the connection and relays the trade feed until
// the client disconnects or the backend shuts the feed down.
func (s *Server) handleTradeFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	id, q := s.backend.SubscribeTradeFeed()
	log.Info().Stringer("subscription", id).Msg("trade feed subscriber connected")

	// The read pump observes the disconnect and turns it into an
	// unsubscribe, which closes the queue and ends the write loop below.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.backend.UnsubscribeTradeFeed(id)
				return
			}
		}
	}()

	for trade := range q.Out() {
		if err := conn.WriteJSON(trade); err != nil {
			break
		}
	}
	s.backend.UnsubscribeTradeFeed(id)
	log.Info().Stringer("subscription", id).Msg("trade feed subscriber disconnected")
}

func (s *Server) handleBestPriceFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	id, q := s.backend.SubscribeBestPriceFeed()
	log.Info().Stringer("subscription", id).Msg("best price feed subscriber connected")

	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.backend.UnsubscribeBestPriceFeed(id)
				return
			}
		}
	}()

	for bp := range q.Out() {
		if err := conn.WriteJSON(bp); err != nil {
			break
		}
	}
	s.backend.UnsubscribeBestPriceFeed(id)
	log.Info().Stringer("subscription", id).Msg("best price feed subscriber disconnected")
}

type bookSnapshot struct {
	Symbol    string             `json:"symbol"`
	Bids      []engine.LevelView `json:"bids"`
	Asks      []engine.LevelView `json:"asks"`
	Timestamp int64              `json:"timestamp"`
}

func (s *Server) handleBook(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	book, ok := s.backend.Book(symbol)
	if !ok {
		http.Error(w, "unknown symbol", http.StatusNotFound)
		return
	}
	respondJSON(w, bookSnapshot{
		Symbol:    symbol,
		Bids:      book.Levels(common.Buy),
		Asks:      book.Levels(common.Sell),
		Timestamp: time.Now().UnixMilli(),
	})
}

func (s *Server) handleSymbols(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, s.backend.Symbols())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

func respondJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("unable to encode response")
	}
}
