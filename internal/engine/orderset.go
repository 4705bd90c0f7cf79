package engine

import (
	"sleipnir/internal/common"
)

// OrderNode is the handle to one resting order's position inside its
// OrderSet. The set back-pointer is nilled the moment the order leaves the
// book (filled or removed), so "still resting" is detectable structurally
// without a separate flag. Nodes are heap-allocated and never move, which
// keeps handles stable across level mutations.
type OrderNode struct {
	order common.Order
	prev  *OrderNode
	next  *OrderNode
	set   *OrderSet
}

// Order returns the order's last-known state. Only meaningful under the
// owning book's lock while the order rests.
func (node *OrderNode) Order() common.Order {
	return node.order
}

// Fill is the outcome of matching one resting order against an incoming
// order. It is computed entirely inside the book's critical section so the
// caller never re-reads node state outside the lock. Done reports that the
// resting order was exhausted and left its set.
type Fill struct {
	Node   *OrderNode
	Price  uint32
	Volume uint64
	Done   bool
}

// OrderSet is the FIFO queue of resting orders at one exact price. It
// caches the sum of its orders' volumes; a set with zero total volume is
// never kept in a book.
type OrderSet struct {
	price       uint32
	head        *OrderNode
	tail        *OrderNode
	totalVolume uint64
}

func NewOrderSet(price uint32) *OrderSet {
	return &OrderSet{price: price}
}

func (set *OrderSet) Price() uint32 {
	return set.price
}

func (set *OrderSet) TotalVolume() uint64 {
	return set.totalVolume
}

// Add appends order at the tail, preserving time priority among orders at
// this price. Never fails.
func (set *OrderSet) Add(order common.Order) *OrderNode {
	node := &OrderNode{order: order, set: set}
	if set.tail == nil {
		set.head = node
	} else {
		node.prev = set.tail
		set.tail.next = node
	}
	set.tail = node
	set.totalVolume += order.Volume
	return node
}

// Remove unlinks node unconditionally. The node must currently reside in
// this set; anything else is an invariant breach, not a recoverable
// condition.
func (set *OrderSet) Remove(node *OrderNode) {
	if node.set != set {
		panic("engine: removing an order from a set it does not belong to")
	}
	set.totalVolume -= node.order.Volume
	set.unlink(node)
}

// ExecuteAgainst matches the head (oldest) resting order against the
// incoming order, decrementing both volumes by min(incoming, head). An
// exhausted head order is dropped from the set. Callers must check
// TotalVolume() > 0 first; executing against an empty set is an invariant
// breach.
func (set *OrderSet) ExecuteAgainst(order *common.Order) Fill {
	head := set.head
	if head == nil {
		panic("engine: executing against an empty order set")
	}
	volume := min(order.Volume, head.order.Volume)
	order.Volume -= volume
	head.order.Volume -= volume
	set.totalVolume -= volume
	fill := Fill{Node: head, Price: head.order.Price, Volume: volume}
	if head.order.Volume == 0 {
		set.unlink(head)
		fill.Done = true
	}
	return fill
}

func (set *OrderSet) unlink(node *OrderNode) {
	if node.prev != nil {
		node.prev.next = node.next
	} else {
		set.head = node.next
	}
	if node.next != nil {
		node.next.prev = node.prev
	} else {
		set.tail = node.prev
	}
	node.prev, node.next = nil, nil
	node.set = nil
}
