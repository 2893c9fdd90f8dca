package model

import "time"

// OrderStatus is the lifecycle status of a single order.
type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusPreparing OrderStatus = "preparing"
	StatusReady     OrderStatus = "ready"
	StatusDelivered OrderStatus = "delivered"
	StatusCancelled OrderStatus = "cancelled"
)

// statusPriority ranks statuses for group aggregation: the most
// attention-worthy status wins.
var statusPriority = map[OrderStatus]int{
	StatusPending:   4,
	StatusPreparing: 3,
	StatusReady:     2,
	StatusDelivered: 1,
	StatusCancelled: 0,
}

// Priority returns the aggregation rank of the status, -1 for unknown values.
func (s OrderStatus) Priority() int {
	p, ok := statusPriority[s]
	if !ok {
		return -1
	}
	return p
}

// LineItem is a single ordered item line.
type LineItem struct {
	ItemID     string `json:"item_id"`
	Name       string `json:"name"`
	Quantity   int    `json:"quantity"`
	PriceCents int64  `json:"price_cents"`
}

// Order is a single order record as held in the local snapshot.
type Order struct {
	ID         string      `json:"id"`
	Branch     Ref         `json:"branch"`
	Table      int         `json:"table"`
	Customer   Ref         `json:"customer"`
	Items      []LineItem  `json:"items"`
	TotalCents int64       `json:"total_cents"`
	Status     OrderStatus `json:"status"`
	Paid       bool        `json:"paid"`
	CreatedAt  time.Time   `json:"created_at"`
}

// OrderPatch is a partial order payload, from a push event or a fetch.
// Nil pointer fields were absent from the payload and carry no information;
// they must not clear existing state.
type OrderPatch struct {
	ID         string       `json:"id"`
	Branch     *Ref         `json:"branch,omitempty"`
	Table      *int         `json:"table,omitempty"`
	Customer   *Ref         `json:"customer,omitempty"`
	Items      []LineItem   `json:"items,omitempty"`
	TotalCents *int64       `json:"total_cents,omitempty"`
	Status     *OrderStatus `json:"status,omitempty"`
	Paid       *bool        `json:"paid,omitempty"`
	CreatedAt  *time.Time   `json:"created_at,omitempty"`
}
