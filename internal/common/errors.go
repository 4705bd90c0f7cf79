package common

import "errors"

var (
	// ErrInvalidVolume rejects zero-volume order submissions. No state is
	// mutated when it is returned.
	ErrInvalidVolume = errors.New("order volume must be greater than 0")

	// ErrUnknownSymbol rejects operations on a symbol no book was
	// configured for.
	ErrUnknownSymbol = errors.New("unknown symbol")

	// ErrOrderNotFound is returned when removing an order id that is
	// unknown or has already left the book. A second removal of the same
	// id always reports this.
	ErrOrderNotFound = errors.New("order not found")
)
