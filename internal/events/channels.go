package events

import (
	"encoding/json"

	"github.com/barlive/barsync/internal/model"
)

// Event names carried on the push channel.
const (
	EventPriceChanged       = "price.changed"
	EventCrashStarted       = "crash.started"
	EventCrashEnded         = "crash.ended"
	EventOrderPlaced        = "order.placed"
	EventOrderStatusChanged = "order.status_changed"
	EventOrderCancelled     = "order.cancelled"
)

// Local lifecycle event names emitted by the connection manager. They never
// travel over the wire.
const (
	EventConnectionUp          = "connection.up"
	EventConnectionDown        = "connection.down"
	EventConnectionReconnected = "connection.reconnected"
)

// PriceChange is the payload of a price.changed event, including the daily
// extrema shown on the live ticker displays.
type PriceChange struct {
	ItemID        string `json:"item_id"`
	OldPriceCents int64  `json:"old_price_cents"`
	NewPriceCents int64  `json:"new_price_cents"`
	DayHighCents  int64  `json:"day_high_cents"`
	DayLowCents   int64  `json:"day_low_cents"`
}

// Crash is the payload of crash.started and crash.ended events. A crash end
// is a lightweight signal: it carries no state beyond the branch, so the
// receiver re-derives truth with a reconciliation fetch.
type Crash struct {
	BranchID string `json:"branch_id"`
}

// onTyped registers a handler that decodes the payload into T. Malformed
// payloads are logged and dropped; they never reach the handler.
func onTyped[T any](r *Registry, event string, fn func(T)) func() {
	return r.On(event, func(payload json.RawMessage) {
		var v T
		if err := json.Unmarshal(payload, &v); err != nil {
			r.logger.Warn("malformed event payload",
				"event", event,
				"error", err,
			)
			return
		}
		fn(v)
	})
}

// OnPriceChanged registers a typed listener for price.changed.
func OnPriceChanged(r *Registry, fn func(PriceChange)) func() {
	return onTyped(r, EventPriceChanged, fn)
}

// OnCrashStarted registers a typed listener for crash.started.
func OnCrashStarted(r *Registry, fn func(Crash)) func() {
	return onTyped(r, EventCrashStarted, fn)
}

// OnCrashEnded registers a typed listener for crash.ended.
func OnCrashEnded(r *Registry, fn func(Crash)) func() {
	return onTyped(r, EventCrashEnded, fn)
}

// OnOrderPlaced registers a typed listener for order.placed. The payload is
// a full order record but decodes as a patch so it shares the merge path.
func OnOrderPlaced(r *Registry, fn func(model.OrderPatch)) func() {
	return onTyped(r, EventOrderPlaced, fn)
}

// OnOrderStatusChanged registers a typed listener for order.status_changed.
// The payload carries at least the order id and the new status.
func OnOrderStatusChanged(r *Registry, fn func(model.OrderPatch)) func() {
	return onTyped(r, EventOrderStatusChanged, fn)
}

// OnOrderCancelled registers a typed listener for order.cancelled.
func OnOrderCancelled(r *Registry, fn func(model.OrderPatch)) func() {
	return onTyped(r, EventOrderCancelled, fn)
}
