package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sleipnir/internal/common"
	"sleipnir/internal/engine"
)

const testSymbol = "AAPL"

// --- Setup & Helpers --------------------------------------------------------

type notifyRecorder struct {
	events []common.BestPrice
}

func (r *notifyRecorder) record(side common.Side, price uint32, volume uint64) {
	r.events = append(r.events, common.BestPrice{
		Symbol: testSymbol,
		Side:   side,
		Price:  price,
		Volume: volume,
	})
}

func newTestBook() (*engine.OrderBook, *notifyRecorder) {
	recorder := &notifyRecorder{}
	return engine.NewOrderBook(recorder.record), recorder
}

func placeOrders(book *engine.OrderBook, side common.Side, price uint32, volumes ...uint64) []engine.Fill {
	var fills []engine.Fill
	for _, volume := range volumes {
		order := common.Order{Symbol: testSymbol, Side: side, Price: price, Volume: volume}
		_, orderFills := book.Add(&order)
		fills = append(fills, orderFills...)
	}
	return fills
}

// buildExpectedLevel constructs the expected flattened level to compare
// against.
func buildExpectedLevel(price uint32, side common.Side, volumes ...uint64) engine.LevelView {
	view := engine.LevelView{Price: price}
	for _, volume := range volumes {
		view.Volume += volume
		view.Orders = append(view.Orders, common.Order{
			Symbol: testSymbol,
			Side:   side,
			Price:  price,
			Volume: volume,
		})
	}
	return view
}

// --- Tests ------------------------------------------------------------------

func TestAdd_RestingOrdersSortedByPricePriority(t *testing.T) {
	book, _ := newTestBook()

	// 1. Setup BIDS: two levels, highest price first (101 -> 100).
	placeOrders(book, common.Buy, 10100, 100, 90, 80)
	placeOrders(book, common.Buy, 10000, 50)

	// 2. Setup ASKS: two levels, lowest price first (102 -> 103).
	placeOrders(book, common.Sell, 10200, 100, 90)
	placeOrders(book, common.Sell, 10300, 20)

	// 3. Assertions: bids sorted high -> low, asks low -> high, FIFO
	//    preserved within each level.
	expectedBids := []engine.LevelView{
		buildExpectedLevel(10100, common.Buy, 100, 90, 80),
		buildExpectedLevel(10000, common.Buy, 50),
	}
	expectedAsks := []engine.LevelView{
		buildExpectedLevel(10200, common.Sell, 100, 90),
		buildExpectedLevel(10300, common.Sell, 20),
	}
	assert.Equal(t, expectedBids, book.Levels(common.Buy), "Bids should be sorted high -> low")
	assert.Equal(t, expectedAsks, book.Levels(common.Sell), "Asks should be sorted low -> high")
}

func TestAdd_PricePriority(t *testing.T) {
	book, _ := newTestBook()

	// 1. Two resting buy levels.
	placeOrders(book, common.Buy, 10100, 30)
	placeOrders(book, common.Buy, 10000, 30)

	// 2. An incoming sell below both levels must match the best (highest)
	//    bid first.
	fills := placeOrders(book, common.Sell, 9900, 40)
	require.Len(t, fills, 2)
	assert.Equal(t, uint32(10100), fills[0].Price)
	assert.Equal(t, uint64(30), fills[0].Volume)
	assert.Equal(t, uint32(10000), fills[1].Price)
	assert.Equal(t, uint64(10), fills[1].Volume)

	// 3. The partially consumed lower level remains.
	expectedBids := []engine.LevelView{
		buildExpectedLevel(10000, common.Buy, 20),
	}
	assert.Equal(t, expectedBids, book.Levels(common.Buy))
}

func TestAdd_TimePriority(t *testing.T) {
	book, _ := newTestBook()

	// 1. Two resting buys at the same price, O1 then O2.
	placeOrders(book, common.Buy, 10000, 10)
	placeOrders(book, common.Buy, 10000, 20)

	// 2. An incoming sell that only partially fills the level must fill O1
	//    first.
	fills := placeOrders(book, common.Sell, 10000, 15)
	require.Len(t, fills, 2)
	assert.Equal(t, uint64(10), fills[0].Volume)
	assert.True(t, fills[0].Done)
	assert.Equal(t, uint64(5), fills[1].Volume)
	assert.False(t, fills[1].Done)

	// 3. O2 remains with its unfilled remainder.
	expectedBids := []engine.LevelView{
		buildExpectedLevel(10000, common.Buy, 15),
	}
	assert.Equal(t, expectedBids, book.Levels(common.Buy))
}

func TestAdd_PartialFillNeverRests(t *testing.T) {
	book, _ := newTestBook()

	// 1. One resting buy of volume 10.
	placeOrders(book, common.Buy, 10000, 10)

	// 2. An incoming sell of volume 4 yields exactly one fill of 4 and
	//    does not rest.
	order := common.Order{Symbol: testSymbol, Side: common.Sell, Price: 10000, Volume: 4}
	node, fills := book.Add(&order)
	assert.Nil(t, node, "a fully filled incoming order must never rest")
	require.Len(t, fills, 1)
	assert.Equal(t, uint64(4), fills[0].Volume)

	// 3. The resting order remains with volume 10 - 4.
	expectedBids := []engine.LevelView{
		buildExpectedLevel(10000, common.Buy, 6),
	}
	assert.Equal(t, expectedBids, book.Levels(common.Buy))
	assert.Empty(t, book.Levels(common.Sell))
}

func TestAdd_SweepAcrossLevels(t *testing.T) {
	book, _ := newTestBook()

	// 1. Setup ASKS: 102 (100, 90) and 103 (20).
	placeOrders(book, common.Sell, 10200, 100, 90)
	placeOrders(book, common.Sell, 10300, 20)

	// 2. A deep incoming buy sweeps the first level and bites into the
	//    second.
	fills := placeOrders(book, common.Buy, 10300, 200)
	require.Len(t, fills, 3)
	assert.Equal(t, uint32(10200), fills[0].Price)
	assert.Equal(t, uint64(100), fills[0].Volume)
	assert.Equal(t, uint32(10200), fills[1].Price)
	assert.Equal(t, uint64(90), fills[1].Volume)
	assert.Equal(t, uint32(10300), fills[2].Price)
	assert.Equal(t, uint64(10), fills[2].Volume)

	// 3. Only the remainder of 103 is left; the emptied 102 level is gone.
	expectedAsks := []engine.LevelView{
		buildExpectedLevel(10300, common.Sell, 10),
	}
	assert.Equal(t, expectedAsks, book.Levels(common.Sell))
}

func TestTryRemove_Twice(t *testing.T) {
	book, _ := newTestBook()

	order := common.Order{Symbol: testSymbol, Side: common.Buy, Price: 10000, Volume: 10}
	node, _ := book.Add(&order)
	require.NotNil(t, node)

	// First removal succeeds and returns the order's last state.
	removed, ok := book.TryRemove(node)
	assert.True(t, ok)
	assert.Equal(t, order, removed)

	// Second removal is detected structurally.
	_, ok = book.TryRemove(node)
	assert.False(t, ok)

	// The emptied level must not remain indexed.
	assert.Empty(t, book.Levels(common.Buy))
}

func TestTryRemove_FilledOrder(t *testing.T) {
	book, _ := newTestBook()

	order := common.Order{Symbol: testSymbol, Side: common.Buy, Price: 10000, Volume: 10}
	node, _ := book.Add(&order)
	require.NotNil(t, node)

	// Fully fill the resting order via matching.
	placeOrders(book, common.Sell, 10000, 10)

	_, ok := book.TryRemove(node)
	assert.False(t, ok, "a filled order has already left the book")
}

func TestBestPrice_SuppressedWhenTopUnchanged(t *testing.T) {
	book, recorder := newTestBook()

	// 1. The first resting buy establishes the best bid.
	placeOrders(book, common.Buy, 10000, 10)
	require.Len(t, recorder.events, 1)
	assert.Equal(t, common.BestPrice{
		Symbol: testSymbol, Side: common.Buy, Price: 10000, Volume: 10,
	}, recorder.events[0])

	// 2. Adding and removing an order that never becomes the best price
	//    produces zero further notifications.
	order := common.Order{Symbol: testSymbol, Side: common.Buy, Price: 9900, Volume: 5}
	node, _ := book.Add(&order)
	require.NotNil(t, node)
	_, ok := book.TryRemove(node)
	require.True(t, ok)

	assert.Len(t, recorder.events, 1)
}

func TestBestPrice_MatchingScenario(t *testing.T) {
	book, recorder := newTestBook()

	// 1. Empty book: a resting buy sets the best bid, no trade.
	fills := placeOrders(book, common.Buy, 10000, 10)
	assert.Empty(t, fills)

	// 2. A sell of 4 at the same price partially fills it.
	fills = placeOrders(book, common.Sell, 10000, 4)
	require.Len(t, fills, 1)
	assert.Equal(t, uint64(4), fills[0].Volume)
	assert.Empty(t, book.Levels(common.Sell), "the incoming sell must not rest")

	// 3. A sell of 10 exhausts the buy; its remainder of 4 rests as the
	//    new best ask.
	fills = placeOrders(book, common.Sell, 10000, 10)
	require.Len(t, fills, 1)
	assert.Equal(t, uint64(6), fills[0].Volume)
	assert.True(t, fills[0].Done)

	// 4. Exactly one best-price notification per change: bid established,
	//    bid reduced, bid retracted, ask established.
	expected := []common.BestPrice{
		{Symbol: testSymbol, Side: common.Buy, Price: 10000, Volume: 10},
		{Symbol: testSymbol, Side: common.Buy, Price: 10000, Volume: 6},
		{Symbol: testSymbol, Side: common.Buy, Price: 0, Volume: 0},
		{Symbol: testSymbol, Side: common.Sell, Price: 10000, Volume: 4},
	}
	assert.Equal(t, expected, recorder.events)
	assert.Empty(t, book.Levels(common.Buy))
	assert.Equal(t, []engine.LevelView{
		buildExpectedLevel(10000, common.Sell, 4),
	}, book.Levels(common.Sell))
}
