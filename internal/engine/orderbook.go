package engine

import (
	"sync"

	"github.com/tidwall/btree"

	"sleipnir/internal/common"
)

// NotifyBestPrice is invoked, under the book's lock, when the top of one
// side changed over the course of an Add or TryRemove call. At most one
// notification per side is issued per call, regardless of how many
// intermediate prices were visited during matching. The callback must not
// block.
type NotifyBestPrice func(side common.Side, price uint32, volume uint64)

type PriceLevels = btree.BTreeG[*OrderSet]

// bestPrice caches the top-of-book snapshot for one side. The changed flag
// is sticky across intermediate updates and reset on read, so a whole
// matching sweep collapses into a single notification.
type bestPrice struct {
	price   uint32
	volume  uint64
	level   *OrderSet
	changed bool
}

func (bp *bestPrice) update(level *OrderSet) {
	var price uint32
	var volume uint64
	if level != nil {
		price = level.Price()
		volume = level.TotalVolume()
	}
	if bp.price != price || bp.volume != volume {
		bp.price = price
		bp.volume = volume
		bp.level = level
		bp.changed = true
	}
}

func (bp *bestPrice) takeChanged() bool {
	changed := bp.changed
	bp.changed = false
	return changed
}

// OrderBook holds one symbol's resting orders: bids ordered by descending
// price and asks by ascending price, so Min() of either index is that
// side's best level. A single mutex covers the whole instance; Add and
// TryRemove are each atomic from the caller's perspective.
type OrderBook struct {
	mu sync.Mutex

	bids *PriceLevels
	asks *PriceLevels

	bestBid bestPrice
	bestAsk bestPrice

	notify NotifyBestPrice
}

func NewOrderBook(notify NotifyBestPrice) *OrderBook {
	// Sorted greatest first.
	bids := btree.NewBTreeG(func(a, b *OrderSet) bool {
		return a.price > b.price
	})
	// Sorted least first.
	asks := btree.NewBTreeG(func(a, b *OrderSet) bool {
		return a.price < b.price
	})
	return &OrderBook{
		bids:   bids,
		asks:   asks,
		notify: notify,
	}
}

// Add matches order against the opposing side while prices cross, then
// rests any remainder in its own side's price level. It returns the
// resting-order handle (nil if the order was fully filled on arrival) and
// one Fill per matched resting order, in match order. The incoming order's
// Volume is decremented in place as it fills.
func (book *OrderBook) Add(order *common.Order) (*OrderNode, []Fill) {
	book.mu.Lock()
	defer book.mu.Unlock()

	fills := book.execute(order)
	if order.Volume == 0 {
		// Fully filled on arrival, never rests.
		book.reportBestPrices()
		return nil, fills
	}

	levels := book.restingSide(order.Side)
	level, ok := levels.GetMut(&OrderSet{price: order.Price})
	if !ok {
		level = NewOrderSet(order.Price)
		levels.Set(level)
	}
	node := level.Add(*order)

	book.updateBestPrices()
	book.reportBestPrices()
	return node, fills
}

// TryRemove takes the order out of the book. It reports false if the
// handle's order already left the book; the set back-pointer is the single
// source of truth for that. On success it returns the removed order's
// last-known state.
func (book *OrderBook) TryRemove(node *OrderNode) (common.Order, bool) {
	book.mu.Lock()
	defer book.mu.Unlock()

	level := node.set
	if level == nil {
		return common.Order{}, false
	}

	order := node.order
	level.Remove(node)
	if level.TotalVolume() == 0 {
		book.restingSide(order.Side).Delete(level)
	}

	book.updateBestPrices()
	book.reportBestPrices()
	return order, true
}

// Best returns the cached top-of-book snapshot for one side. A zero price
// and volume means the side is empty.
func (book *OrderBook) Best(side common.Side) (price uint32, volume uint64) {
	book.mu.Lock()
	defer book.mu.Unlock()
	bp := &book.bestBid
	if side == common.Sell {
		bp = &book.bestAsk
	}
	return bp.price, bp.volume
}

// LevelView is a flattened snapshot of one price level, best price first
// and FIFO within the level.
type LevelView struct {
	Price  uint32         `json:"price"`
	Volume uint64         `json:"volume"`
	Orders []common.Order `json:"orders"`
}

// Levels snapshots one side of the book in priority order.
func (book *OrderBook) Levels(side common.Side) []LevelView {
	book.mu.Lock()
	defer book.mu.Unlock()

	levels := book.restingSide(side)
	views := make([]LevelView, 0, levels.Len())
	levels.Scan(func(level *OrderSet) bool {
		view := LevelView{Price: level.price, Volume: level.totalVolume}
		for node := level.head; node != nil; node = node.next {
			view.Orders = append(view.Orders, node.order)
		}
		views = append(views, view)
		return true
	})
	return views
}

// execute consumes opposing best price levels while the incoming order
// still has volume and its limit price satisfies the level's price. Levels
// are drained oldest order first; emptied levels are deleted and the best
// price recomputed before the next iteration.
func (book *OrderBook) execute(order *common.Order) []Fill {
	levels := book.opposingSide(order.Side)
	best := book.bestExecutionPrice(order.Side)
	if best.volume == 0 || !crosses(order, best.price) {
		return nil
	}

	var fills []Fill
	for order.Volume > 0 && best.volume > 0 && crosses(order, best.price) {
		fills = append(fills, best.level.ExecuteAgainst(order))
		if best.level.TotalVolume() == 0 {
			levels.Delete(best.level)
		}
		book.updateBestPrices()
	}
	return fills
}

// crosses reports whether the incoming order's limit price satisfies the
// opposing best price: an incoming buy must bid at least the ask, an
// incoming sell must offer at most the bid.
func crosses(order *common.Order, best uint32) bool {
	if order.Side == common.Buy {
		return order.Price >= best
	}
	return order.Price <= best
}

// restingSide is the index an order of the given side rests on.
func (book *OrderBook) restingSide(side common.Side) *PriceLevels {
	if side == common.Buy {
		return book.bids
	}
	return book.asks
}

// opposingSide is the index an order of the given side executes against.
func (book *OrderBook) opposingSide(side common.Side) *PriceLevels {
	if side == common.Buy {
		return book.asks
	}
	return book.bids
}

func (book *OrderBook) bestExecutionPrice(side common.Side) *bestPrice {
	if side == common.Buy {
		return &book.bestAsk
	}
	return &book.bestBid
}

func (book *OrderBook) updateBestPrices() {
	book.bestBid.update(minLevel(book.bids))
	book.bestAsk.update(minLevel(book.asks))
}

// reportBestPrices flushes at most one pending change per side to the
// notify callback. The snapshot values are read inside the critical
// section and passed by value, never re-read by the callback.
func (book *OrderBook) reportBestPrices() {
	if book.bestBid.takeChanged() {
		book.notify(common.Buy, book.bestBid.price, book.bestBid.volume)
	}
	if book.bestAsk.takeChanged() {
		book.notify(common.Sell, book.bestAsk.price, book.bestAsk.volume)
	}
}

// minLevel is the best level of an index: both comparators sort their best
// price first, so Min is the top of book on either side.
func minLevel(levels *PriceLevels) *OrderSet {
	level, ok := levels.MinMut()
	if !ok {
		return nil
	}
	return level
}
