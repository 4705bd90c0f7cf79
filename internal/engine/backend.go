package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"sleipnir/internal/common"
	"sleipnir/internal/utils"
)

// event is the tagged union carried on the backend's core queue. Exactly
// one field is set.
type event struct {
	trade     *common.Trade
	bestPrice *common.BestPrice
}

// Backend owns one OrderBook per configured symbol, maps external order
// ids to resting-order handles, and fans trade/best-price events out to
// subscribers through a single dispatch loop. All methods are safe for
// concurrent use; operations on different symbols proceed in parallel.
type Backend struct {
	books map[string]*OrderBook

	// id <-> handle, both directions. Entries exist only while the order
	// rests; both are deleted the moment it fills or is removed.
	nodes *utils.SyncMap[uuid.UUID, *OrderNode]
	ids   *utils.SyncMap[*OrderNode, uuid.UUID]

	// Core event queue: unbounded so the matching path never blocks on
	// event delivery. Drained only by the dispatch loop.
	events *utils.Queue[event]

	tradeSubs *utils.SyncMap[uuid.UUID, *utils.Queue[common.Trade]]
	priceSubs *utils.SyncMap[uuid.UUID, *utils.Queue[common.BestPrice]]
}

// NewBackend creates a book for each configured symbol. No book exists
// outside this set; operations on other symbols fail with
// common.ErrUnknownSymbol.
func NewBackend(symbols []string) *Backend {
	b := &Backend{
		books:     make(map[string]*OrderBook, len(symbols)),
		nodes:     utils.NewSyncMap[uuid.UUID, *OrderNode](),
		ids:       utils.NewSyncMap[*OrderNode, uuid.UUID](),
		events:    utils.NewQueue[event](),
		tradeSubs: utils.NewSyncMap[uuid.UUID, *utils.Queue[common.Trade]](),
		priceSubs: utils.NewSyncMap[uuid.UUID, *utils.Queue[common.BestPrice]](),
	}
	for _, symbol := range symbols {
		b.books[symbol] = NewOrderBook(func(side common.Side, price uint32, volume uint64) {
			b.events.Push(event{bestPrice: &common.BestPrice{
				Symbol: symbol,
				Side:   side,
				Price:  price,
				Volume: volume,
			}})
		})
	}
	return b
}

// Run drives the dispatch loop until ctx is cancelled, then closes every
// subscriber feed and the core queue.
func (b *Backend) Run(ctx context.Context) error {
	t, _ := tomb.WithContext(ctx)
	t.Go(func() error {
		return b.dispatch(t)
	})
	return t.Wait()
}

// AddOrder submits a limit order. It returns the fresh external id whether
// the order rested or was fully filled on arrival. Every fill produced by
// the match is published as one Trade on the event queue, buy/sell ids
// assigned by the aggressor's side.
func (b *Backend) AddOrder(order common.Order) (uuid.UUID, error) {
	if order.Volume == 0 {
		return uuid.Nil, common.ErrInvalidVolume
	}
	book, ok := b.books[order.Symbol]
	if !ok {
		return uuid.Nil, fmt.Errorf("%w: %q", common.ErrUnknownSymbol, order.Symbol)
	}

	id := uuid.New()
	aggressor := order.Side
	symbol := order.Symbol

	node, fills := book.Add(&order)
	if node != nil {
		b.nodes.Store(id, node)
		b.ids.Store(node, id)
	}

	for _, fill := range fills {
		matchedID, _ := b.ids.Load(fill.Node)
		trade := common.Trade{
			TradeID: uuid.New(),
			Symbol:  symbol,
			Price:   fill.Price,
			Volume:  fill.Volume,
		}
		if aggressor == common.Buy {
			trade.BuyOrderID, trade.SellOrderID = id, matchedID
		} else {
			trade.BuyOrderID, trade.SellOrderID = matchedID, id
		}
		b.events.Push(event{trade: &trade})
		if fill.Done {
			// The matched order left the book; its handle is dead.
			b.nodes.Delete(matchedID)
			b.ids.Delete(fill.Node)
		}
	}
	return id, nil
}

// RemoveOrder cancels a resting order by external id and returns its
// last-known state. Unknown and already-removed ids both report
// common.ErrOrderNotFound; removal is deliberately not idempotent.
func (b *Backend) RemoveOrder(id uuid.UUID) (common.Order, error) {
	node, ok := b.nodes.LoadAndDelete(id)
	if !ok {
		return common.Order{}, fmt.Errorf("%w: %s", common.ErrOrderNotFound, id)
	}
	order, removed := b.books[node.order.Symbol].TryRemove(node)
	if !removed {
		return common.Order{}, fmt.Errorf("%w: %s", common.ErrOrderNotFound, id)
	}
	b.ids.Delete(node)
	return order, nil
}

// Book exposes a symbol's order book for read-only snapshots.
func (b *Backend) Book(symbol string) (*OrderBook, bool) {
	book, ok := b.books[symbol]
	return book, ok
}

// Symbols lists the configured symbols.
func (b *Backend) Symbols() []string {
	symbols := make([]string, 0, len(b.books))
	for symbol := range b.books {
		symbols = append(symbols, symbol)
	}
	return symbols
}

// SubscribeTradeFeed registers a new trade subscriber and returns its
// subscription id together with the queue its events arrive on. The queue
// is unbounded: a slow subscriber accumulates events rather than blocking
// matching or its peers.
func (b *Backend) SubscribeTradeFeed() (uuid.UUID, *utils.Queue[common.Trade]) {
	id := uuid.New()
	q := utils.NewQueue[common.Trade]()
	b.tradeSubs.Store(id, q)
	return id, q
}

// UnsubscribeTradeFeed deregisters the subscription and closes its queue.
// Safe to call concurrently with the dispatch loop.
func (b *Backend) UnsubscribeTradeFeed(id uuid.UUID) {
	if q, ok := b.tradeSubs.LoadAndDelete(id); ok {
		q.Close()
	}
}

// SubscribeBestPriceFeed registers a new best-price subscriber.
func (b *Backend) SubscribeBestPriceFeed() (uuid.UUID, *utils.Queue[common.BestPrice]) {
	id := uuid.New()
	q := utils.NewQueue[common.BestPrice]()
	b.priceSubs.Store(id, q)
	return id, q
}

// UnsubscribeBestPriceFeed deregisters the subscription and closes its
// queue.
func (b *Backend) UnsubscribeBestPriceFeed(id uuid.UUID) {
	if q, ok := b.priceSubs.LoadAndDelete(id); ok {
		q.Close()
	}
}

// dispatch is the single background loop. It drains the core queue and
// republishes each event to a snapshot of the matching subscriber set, in
// drained order. Pushes onto already-closed subscriber queues are dropped
// by the queue itself.
func (b *Backend) dispatch(t *tomb.Tomb) error {
	for {
		select {
		case <-t.Dying():
			b.closeFeeds()
			return nil
		case ev := <-b.events.Out():
			switch {
			case ev.trade != nil:
				for _, q := range b.tradeSubs.Snapshot() {
					q.Push(*ev.trade)
				}
			case ev.bestPrice != nil:
				for _, q := range b.priceSubs.Snapshot() {
					q.Push(*ev.bestPrice)
				}
			}
		}
	}
}

// closeFeeds completes every subscriber queue on shutdown. Both feeds are
// closed symmetrically so each subscriber observes a clean end-of-stream.
func (b *Backend) closeFeeds() {
	log.Info().Msg("backend shutting down, closing feeds")
	for _, q := range b.tradeSubs.Clear() {
		q.Close()
	}
	for _, q := range b.priceSubs.Clear() {
		q.Close()
	}
	b.events.Close()
}
