package common

import (
	"fmt"

	"github.com/google/uuid"
)

// Trade records a single fill between two orders. It is created exactly
// once per fill and never mutated afterwards. Price is always the resting
// (matched) order's price, not the aggressor's.
type Trade struct {
	TradeID     uuid.UUID `json:"trade_id"`
	BuyOrderID  uuid.UUID `json:"buy_order_id"`
	SellOrderID uuid.UUID `json:"sell_order_id"`
	Symbol      string    `json:"symbol"`
	Price       uint32    `json:"price"`
	Volume      uint64    `json:"volume"`
}

func (t Trade) String() string {
	return fmt.Sprintf("trade %s: %s %d @ %d.%02d (buy %s / sell %s)",
		t.TradeID,
		t.Symbol,
		t.Volume,
		t.Price/100,
		t.Price%100,
		t.BuyOrderID,
		t.SellOrderID,
	)
}

// BestPrice is a top-of-book update for one side of one symbol's book.
// It is emitted only when the best price or its aggregate volume changed
// from the previous observation. A retraction (side emptied) carries
// price 0 and volume 0.
type BestPrice struct {
	Symbol string `json:"symbol"`
	Side   Side   `json:"side"`
	Price  uint32 `json:"price"`
	Volume uint64 `json:"volume"`
}

func (bp BestPrice) String() string {
	return fmt.Sprintf("best %s %s: %d @ %d.%02d",
		bp.Side,
		bp.Symbol,
		bp.Volume,
		bp.Price/100,
		bp.Price%100,
	)
}
