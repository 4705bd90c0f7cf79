package common

import (
	"fmt"
)

type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	}
	return fmt.Sprintf("side(%d)", int(s))
}

// Order is a simple limit order. Price is an unsigned integer counted in
// minor currency units (e.g. cents); Volume is in whole units. Volume is
// mutable: it is decremented as the order fills, both while it is the
// incoming aggressor and while it rests in a book.
type Order struct {
	Symbol string `json:"symbol"`
	Side   Side   `json:"side"`
	Price  uint32 `json:"price"`
	Volume uint64 `json:"volume"`
}

func (order Order) String() string {
	return fmt.Sprintf("%s %s %d @ %d.%02d",
		order.Side,
		order.Symbol,
		order.Volume,
		order.Price/100,
		order.Price%100,
	)
}
