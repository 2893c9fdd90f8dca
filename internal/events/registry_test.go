package events

import (
	"encoding/json"
	"testing"

	"github.com/barlive/barsync/internal/model"
)

func TestRegistry_DeliveryOrder(t *testing.T) {
	r := NewRegistry(nil)

	var got []int
	r.On("test", func(json.RawMessage) { got = append(got, 1) })
	r.On("test", func(json.RawMessage) { got = append(got, 2) })
	r.On("test", func(json.RawMessage) { got = append(got, 3) })

	r.Emit("test", nil)

	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Errorf("delivery order = %v, want [1 2 3]", got)
	}
}

func TestRegistry_OffRemovesExactlyOne(t *testing.T) {
	r := NewRegistry(nil)

	var count int
	fn := func(json.RawMessage) { count++ }

	off1 := r.On("test", fn)
	off2 := r.On("test", fn)

	if n := r.ListenerCount("test"); n != 2 {
		t.Fatalf("ListenerCount = %d, want 2", n)
	}

	off1()
	if n := r.ListenerCount("test"); n != 1 {
		t.Errorf("ListenerCount after off1 = %d, want 1", n)
	}

	// Calling off twice is a no-op.
	off1()
	if n := r.ListenerCount("test"); n != 1 {
		t.Errorf("ListenerCount after double off1 = %d, want 1", n)
	}

	r.Emit("test", nil)
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}

	off2()
	if n := r.ListenerCount("test"); n != 0 {
		t.Errorf("ListenerCount after off2 = %d, want 0", n)
	}
}

func TestRegistry_PanicIsolation(t *testing.T) {
	r := NewRegistry(nil)

	var delivered bool
	r.On("test", func(json.RawMessage) { panic("boom") })
	r.On("test", func(json.RawMessage) { delivered = true })

	r.Emit("test", nil)

	if !delivered {
		t.Error("panic in an earlier listener must not block later listeners")
	}
}

func TestRegistry_EmitUnknownEvent(t *testing.T) {
	r := NewRegistry(nil)
	// Must not panic.
	r.Emit("nobody.listens", json.RawMessage(`{}`))
}

func TestRegistry_UnsubscribeDuringEmitSnapshot(t *testing.T) {
	r := NewRegistry(nil)

	var calls int
	var off2 func()
	r.On("test", func(json.RawMessage) {
		calls++
		off2() // removing a later listener mid-delivery
	})
	off2 = r.On("test", func(json.RawMessage) { calls++ })

	r.Emit("test", nil)
	if calls != 2 {
		t.Errorf("calls = %d, want 2 (delivery runs over a snapshot)", calls)
	}

	r.Emit("test", nil)
	if calls != 3 {
		t.Errorf("calls = %d, want 3 after removal", calls)
	}
}

func TestOnPriceChanged_TypedDecode(t *testing.T) {
	r := NewRegistry(nil)

	var got PriceChange
	OnPriceChanged(r, func(pc PriceChange) { got = pc })

	r.Emit(EventPriceChanged, json.RawMessage(
		`{"item_id":"beer-1","old_price_cents":450,"new_price_cents":520,"day_high_cents":540,"day_low_cents":400}`,
	))

	if got.ItemID != "beer-1" {
		t.Errorf("ItemID = %q, want beer-1", got.ItemID)
	}
	if got.NewPriceCents != 520 {
		t.Errorf("NewPriceCents = %d, want 520", got.NewPriceCents)
	}
	if got.DayLowCents != 400 {
		t.Errorf("DayLowCents = %d, want 400", got.DayLowCents)
	}
}

func TestOnOrderPlaced_MalformedPayloadDropped(t *testing.T) {
	r := NewRegistry(nil)

	var called bool
	OnOrderPlaced(r, func(model.OrderPatch) { called = true })

	r.Emit(EventOrderPlaced, json.RawMessage(`{not json`))

	if called {
		t.Error("malformed payload must not reach the handler")
	}
}

func TestOnCrashEnded_Typed(t *testing.T) {
	r := NewRegistry(nil)

	var got Crash
	OnCrashEnded(r, func(c Crash) { got = c })

	r.Emit(EventCrashEnded, json.RawMessage(`{"branch_id":"branch-2"}`))

	if got.BranchID != "branch-2" {
		t.Errorf("BranchID = %q, want branch-2", got.BranchID)
	}
}
