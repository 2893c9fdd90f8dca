package fallback

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/barlive/barsync/internal/events"
	"github.com/barlive/barsync/internal/model"
	"github.com/barlive/barsync/internal/store"
)

type fakeFetcher struct {
	mu      sync.Mutex
	calls   int
	patches []model.OrderPatch
	err     error
	block   chan struct{}
}

func (f *fakeFetcher) ListOrders(ctx context.Context, branches []string) ([]model.OrderPatch, error) {
	f.mu.Lock()
	f.calls++
	block := f.block
	patches, err := f.patches, f.err
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	return patches, err
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeChannel struct {
	mu          sync.Mutex
	live        bool
	connectErr  error
	connects    int
	disconnects int
	topics      []string
}

func (c *fakeChannel) Connect(ctx context.Context, target string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connects++
	if c.connectErr != nil {
		return c.connectErr
	}
	c.live = true
	return nil
}

func (c *fakeChannel) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnects++
	c.live = false
}

func (c *fakeChannel) Subscribe(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topics = append(c.topics, topic)
}

func (c *fakeChannel) IsLive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live
}

func (c *fakeChannel) setLive(live bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.live = live
}

func testConfig() Config {
	return Config{
		PushURL:       "ws://push.test/live",
		Branches:      []string{"1"},
		ProbeInterval: 5 * time.Millisecond,
		PollInterval:  10 * time.Millisecond,
		FetchTimeout:  time.Second,
	}
}

func newTestScheduler(t *testing.T, fetcher *fakeFetcher, channel *fakeChannel) (*Scheduler, *events.Registry, *store.Store) {
	t.Helper()
	registry := events.NewRegistry(nil)
	st := store.New(nil)
	s := New(testConfig(), fetcher, channel, registry, st, nil, nil)
	return s, registry, st
}

func patch(id string) model.OrderPatch {
	return model.OrderPatch{ID: id}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, d time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestStart_BaselineAndSubscribe(t *testing.T) {
	fetcher := &fakeFetcher{patches: []model.OrderPatch{patch("o1"), patch("o2")}}
	channel := &fakeChannel{}
	s, _, st := newTestScheduler(t, fetcher, channel)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop(context.Background())

	if st.Len() != 2 {
		t.Errorf("store holds %d orders after baseline, want 2", st.Len())
	}
	channel.mu.Lock()
	topics := append([]string(nil), channel.topics...)
	channel.mu.Unlock()
	if len(topics) != 1 || topics[0] != "branch:1" {
		t.Errorf("subscribed topics = %v, want [branch:1]", topics)
	}
	if fetcher.callCount() != 1 {
		t.Errorf("fetch count = %d after start, want 1 (baseline only)", fetcher.callCount())
	}
}

func TestStart_BaselineFailureIsFatal(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("api down")}
	channel := &fakeChannel{}
	s, _, _ := newTestScheduler(t, fetcher, channel)

	if err := s.Start(context.Background()); err == nil {
		t.Fatal("Start() error = nil, want baseline failure")
	}

	// The failed start must not leave the scheduler half-running.
	fetcher.mu.Lock()
	fetcher.err = nil
	fetcher.mu.Unlock()
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() after failed start error = %v", err)
	}
	s.Stop(context.Background())
}

func TestStart_ConnectFailureIsDegraded(t *testing.T) {
	fetcher := &fakeFetcher{}
	channel := &fakeChannel{connectErr: errors.New("refused")}
	s, _, _ := newTestScheduler(t, fetcher, channel)

	err := s.Start(context.Background())
	if !errors.Is(err, ErrDegraded) {
		t.Fatalf("Start() error = %v, want ErrDegraded", err)
	}
	defer s.Stop(context.Background())

	// Polling mode: fetches keep happening and the connect is retried.
	waitFor(t, time.Second, func() bool { return fetcher.callCount() >= 3 },
		"polling fetches did not run while channel down")
	channel.mu.Lock()
	connects := channel.connects
	channel.mu.Unlock()
	if connects < 2 {
		t.Errorf("connect attempts = %d, want retries during polling", connects)
	}
}

func TestPollingStopsWhileLive(t *testing.T) {
	fetcher := &fakeFetcher{}
	channel := &fakeChannel{}
	s, _, _ := newTestScheduler(t, fetcher, channel)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop(context.Background())

	time.Sleep(60 * time.Millisecond)
	if got := fetcher.callCount(); got != 1 {
		t.Errorf("fetch count = %d while live, want 1 (baseline only)", got)
	}

	channel.setLive(false)
	waitFor(t, time.Second, func() bool { return fetcher.callCount() >= 2 },
		"fallback polling did not resume after channel went down")
}

func TestListenersAttachExactlyOnce(t *testing.T) {
	fetcher := &fakeFetcher{}
	channel := &fakeChannel{}
	s, registry, _ := newTestScheduler(t, fetcher, channel)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if got := registry.ListenerCount(events.EventOrderPlaced); got != 1 {
		t.Errorf("order.placed listeners = %d, want 1", got)
	}

	// Liveness flapping must not re-attach.
	channel.setLive(false)
	time.Sleep(30 * time.Millisecond)
	channel.setLive(true)
	time.Sleep(30 * time.Millisecond)
	if got := registry.ListenerCount(events.EventOrderPlaced); got != 1 {
		t.Errorf("order.placed listeners after liveness flap = %d, want 1", got)
	}

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if got := registry.ListenerCount(events.EventOrderPlaced); got != 0 {
		t.Errorf("order.placed listeners after stop = %d, want 0", got)
	}
}

func TestStopIdempotent(t *testing.T) {
	fetcher := &fakeFetcher{}
	channel := &fakeChannel{}
	s, _, _ := newTestScheduler(t, fetcher, channel)

	// Stop before start is a no-op.
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() before start error = %v", err)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("second Stop() error = %v", err)
	}

	// A fresh session starts cleanly after teardown.
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() after stop error = %v", err)
	}
	s.Stop(context.Background())
}

func TestOrderEventsMergeIntoStore(t *testing.T) {
	fetcher := &fakeFetcher{}
	channel := &fakeChannel{}
	s, registry, st := newTestScheduler(t, fetcher, channel)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop(context.Background())

	registry.Emit(events.EventOrderPlaced, json.RawMessage(
		`{"id":"o1","branch":"1","table":5,"customer":"9","status":"pending","total_cents":2000}`))
	registry.Emit(events.EventOrderStatusChanged, json.RawMessage(
		`{"id":"o1","status":"ready"}`))

	o, ok := st.Get("o1")
	if !ok {
		t.Fatal("order o1 not in store after push events")
	}
	if o.Status != model.StatusReady {
		t.Errorf("status = %s, want ready", o.Status)
	}
	if o.TotalCents != 2000 {
		t.Errorf("partial status event cleared total: %d", o.TotalCents)
	}
}

func TestCancellationBeforePlacement(t *testing.T) {
	fetcher := &fakeFetcher{}
	channel := &fakeChannel{}
	s, registry, st := newTestScheduler(t, fetcher, channel)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop(context.Background())

	registry.Emit(events.EventOrderCancelled, json.RawMessage(`{"id":"o9"}`))

	o, ok := st.Get("o9")
	if !ok {
		t.Fatal("cancellation for an unknown order must still create the record")
	}
	if o.Status != model.StatusCancelled {
		t.Errorf("status = %s, want cancelled", o.Status)
	}
}

func TestCrashEventsUpdateStoreAndRefetch(t *testing.T) {
	fetcher := &fakeFetcher{}
	channel := &fakeChannel{}
	s, registry, st := newTestScheduler(t, fetcher, channel)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop(context.Background())

	registry.Emit(events.EventCrashStarted, json.RawMessage(`{"branch_id":"1"}`))
	if !st.IsCrashed("1") {
		t.Error("crash.started did not flag the branch")
	}

	before := fetcher.callCount()
	registry.Emit(events.EventCrashEnded, json.RawMessage(`{"branch_id":"1"}`))
	if st.IsCrashed("1") {
		t.Error("crash.ended did not clear the flag")
	}
	waitFor(t, time.Second, func() bool { return fetcher.callCount() > before },
		"crash.ended did not trigger a reconciliation fetch")
}

func TestPriceEventsUpdateStore(t *testing.T) {
	fetcher := &fakeFetcher{}
	channel := &fakeChannel{}
	s, registry, st := newTestScheduler(t, fetcher, channel)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop(context.Background())

	registry.Emit(events.EventPriceChanged, json.RawMessage(
		`{"item_id":"beer-1","old_price_cents":500,"new_price_cents":550}`))

	p, ok := st.Price("beer-1")
	if !ok || p != 550 {
		t.Errorf("price = %d/%v, want 550", p, ok)
	}
}

func TestStaleFetchResultDiscarded(t *testing.T) {
	fetcher := &fakeFetcher{}
	channel := &fakeChannel{}
	s, _, st := newTestScheduler(t, fetcher, channel)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// Block the next fetch mid-flight, then stop the session while it is
	// still in the air.
	block := make(chan struct{})
	fetcher.mu.Lock()
	fetcher.block = block
	fetcher.patches = []model.OrderPatch{patch("stale")}
	fetcher.mu.Unlock()

	s.RequestRefetch()
	waitFor(t, time.Second, func() bool { return fetcher.callCount() >= 2 },
		"refetch did not start")

	stopDone := make(chan error, 1)
	go func() { stopDone <- s.Stop(context.Background()) }()

	// Let the session teardown fence the generation before the fetch lands.
	time.Sleep(20 * time.Millisecond)
	close(block)

	if err := <-stopDone; err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if _, ok := st.Get("stale"); ok {
		t.Error("fetch result from a torn-down session was applied")
	}
}
