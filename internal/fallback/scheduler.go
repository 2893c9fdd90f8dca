// Package fallback keeps the local snapshot correct whether or not the
// push channel is alive. It owns the lifecycle of the sync session: the
// baseline fetch, the live listeners, the liveness probe, and the polling
// loop that takes over while the channel is down.
package fallback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/barlive/barsync/internal/events"
	"github.com/barlive/barsync/internal/metrics"
	"github.com/barlive/barsync/internal/model"
	"github.com/barlive/barsync/internal/store"
)

var (
	// ErrAlreadyStarted is returned when Start is called on a running scheduler.
	ErrAlreadyStarted = errors.New("scheduler already started")

	// ErrDegraded is returned by Start when the baseline succeeded but the
	// push channel could not be established. The scheduler is running and
	// polling; the caller may treat this as a warning.
	ErrDegraded = errors.New("push channel unavailable, running in polling mode")
)

// Fetcher is the reconciliation source, the platform REST API in production.
type Fetcher interface {
	ListOrders(ctx context.Context, branches []string) ([]model.OrderPatch, error)
}

// Channel is the live push channel surface the scheduler drives.
type Channel interface {
	Connect(ctx context.Context, target string) error
	Disconnect()
	Subscribe(topic string)
	IsLive() bool
}

// Config holds the scheduler timing knobs.
type Config struct {
	// PushURL is the websocket endpoint of the push channel.
	PushURL string

	// Branches scopes subscriptions and fetches. Empty means everything
	// the credentials can see.
	Branches []string

	// ProbeInterval is how often liveness is observed.
	ProbeInterval time.Duration

	// PollInterval is how often a reconciliation fetch runs while the
	// channel is not live. Must be a multiple of ProbeInterval in spirit;
	// validation enforces only PollInterval >= ProbeInterval.
	PollInterval time.Duration

	// FetchTimeout bounds a single reconciliation fetch.
	FetchTimeout time.Duration
}

// Scheduler coordinates push delivery with fetch-based fallback. One
// scheduler per process; Start and Stop bracket a sync session.
type Scheduler struct {
	cfg      Config
	fetcher  Fetcher
	channel  Channel
	registry *events.Registry
	store    *store.Store
	metrics  *metrics.Metrics
	logger   *slog.Logger

	// generation fences async continuations: results computed under an
	// older generation are discarded instead of applied.
	generation atomic.Uint64

	mu       sync.Mutex
	started  bool
	attached bool
	offs     []func()
	cancel   context.CancelFunc
	done     chan struct{}

	// refetch coalesces "state is stale, fetch now" requests.
	refetch chan struct{}
}

// New creates a scheduler. A nil metrics set gets an isolated registry;
// a nil logger falls back to the default.
func New(cfg Config, fetcher Fetcher, channel Channel, registry *events.Registry, st *store.Store, m *metrics.Metrics, logger *slog.Logger) *Scheduler {
	if m == nil {
		m = metrics.New(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		cfg:      cfg,
		fetcher:  fetcher,
		channel:  channel,
		registry: registry,
		store:    st,
		metrics:  m,
		logger:   logger,
		refetch:  make(chan struct{}, 1),
	}
}

// Start brings up a sync session: attach the listeners, run the baseline
// fetch, subscribe the branch topics, connect the push channel, and start
// the probe/poll loop.
//
// A baseline failure is fatal and leaves the scheduler stopped. A connect
// failure is not: the loop still starts in polling mode and Start returns
// an error wrapping ErrDegraded so the caller can tell the two apart.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	gen := s.generation.Add(1)

	if !s.attached {
		s.attachListenersLocked()
		s.attached = true
	}
	s.mu.Unlock()

	if err := s.baseline(ctx, gen); err != nil {
		s.mu.Lock()
		s.started = false
		s.mu.Unlock()
		return fmt.Errorf("baseline fetch: %w", err)
	}

	// Topics are remembered even while offline, so subscribing before the
	// connect outcome is known is safe either way.
	for _, b := range s.cfg.Branches {
		s.channel.Subscribe("branch:" + b)
	}

	connectErr := s.channel.Connect(ctx, s.cfg.PushURL)
	if connectErr != nil {
		s.logger.Warn("push channel connect failed, polling until it recovers",
			"url", s.cfg.PushURL,
			"error", connectErr,
		)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	s.mu.Lock()
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go s.run(runCtx, gen, done)

	s.logger.Info("sync session started",
		"probe_interval", s.cfg.ProbeInterval,
		"poll_interval", s.cfg.PollInterval,
		"branches", len(s.cfg.Branches),
		"live", connectErr == nil,
	)

	if connectErr != nil {
		return fmt.Errorf("%w: %v", ErrDegraded, connectErr)
	}
	return nil
}

// Stop tears the session down: the loop exits, listeners detach, the
// channel closes, and in-flight async results are fenced off. Safe to call
// multiple times and before Start.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.generation.Add(1)

	cancel := s.cancel
	done := s.done
	offs := s.offs
	s.cancel = nil
	s.done = nil
	s.offs = nil
	s.attached = false
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return fmt.Errorf("scheduler shutdown: %w", ctx.Err())
		}
	}

	for _, off := range offs {
		off()
	}
	s.channel.Disconnect()

	s.logger.Info("sync session stopped")
	return nil
}

// RequestRefetch asks for one reconciliation fetch as soon as possible.
// Requests arriving while one is already pending coalesce.
func (s *Scheduler) RequestRefetch() {
	select {
	case s.refetch <- struct{}{}:
	default:
	}
}

// run is the probe/poll loop for one session generation.
func (s *Scheduler) run(ctx context.Context, gen uint64, done chan struct{}) {
	defer close(done)

	probe := time.NewTicker(s.cfg.ProbeInterval)
	defer probe.Stop()
	poll := time.NewTicker(s.cfg.PollInterval)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-probe.C:
			if s.channel.IsLive() {
				s.metrics.Live.Set(1)
			} else {
				s.metrics.Live.Set(0)
			}

		case <-poll.C:
			if s.channel.IsLive() {
				continue
			}
			s.metrics.PollCycles.Inc()
			s.logger.Debug("channel not live, polling")
			if err := s.channel.Connect(ctx, s.cfg.PushURL); err != nil {
				s.logger.Debug("push channel still unreachable", "error", err)
			}
			s.fetch(ctx, gen)

		case <-s.refetch:
			s.fetch(ctx, gen)
		}
	}
}

// baseline runs the initial snapshot fetch synchronously.
func (s *Scheduler) baseline(ctx context.Context, gen uint64) error {
	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()

	start := time.Now()
	patches, err := s.fetcher.ListOrders(fetchCtx, s.cfg.Branches)
	s.metrics.FetchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.FetchErrors.Inc()
		return err
	}

	if s.generation.Load() != gen {
		return nil
	}
	s.store.ReplaceAll(patches)
	s.logger.Info("baseline snapshot loaded", "orders", len(patches))
	return nil
}

// fetch runs one reconciliation fetch and applies it unless the session
// has moved on in the meantime.
func (s *Scheduler) fetch(ctx context.Context, gen uint64) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()

	start := time.Now()
	patches, err := s.fetcher.ListOrders(fetchCtx, s.cfg.Branches)
	s.metrics.FetchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.FetchErrors.Inc()
		s.logger.Warn("reconciliation fetch failed", "error", err)
		return
	}

	if s.generation.Load() != gen {
		s.logger.Debug("discarding fetch result from a previous session")
		return
	}

	s.store.ReplaceAll(patches)
	s.logger.Debug("snapshot reconciled", "orders", len(patches))
}

// attachListenersLocked registers the push event handlers. Called at most
// once per session; the collected offs detach them on Stop.
func (s *Scheduler) attachListenersLocked() {
	s.offs = append(s.offs,
		events.OnOrderPlaced(s.registry, func(patch model.OrderPatch) {
			s.metrics.EventsReceived.WithLabelValues(events.EventOrderPlaced).Inc()
			if s.store.Apply(patch) {
				s.metrics.MergesApplied.Inc()
			}
		}),

		events.OnOrderStatusChanged(s.registry, func(patch model.OrderPatch) {
			s.metrics.EventsReceived.WithLabelValues(events.EventOrderStatusChanged).Inc()
			if s.store.Apply(patch) {
				s.metrics.MergesApplied.Inc()
			}
		}),

		events.OnOrderCancelled(s.registry, func(patch model.OrderPatch) {
			s.metrics.EventsReceived.WithLabelValues(events.EventOrderCancelled).Inc()
			// A cancellation may race ahead of the order it cancels. Applying
			// it anyway creates the record in a cancelled state, so the
			// snapshot reflects the cancellation immediately.
			if patch.Status == nil {
				st := model.StatusCancelled
				patch.Status = &st
			}
			if s.store.Apply(patch) {
				s.metrics.MergesApplied.Inc()
			}
		}),

		events.OnPriceChanged(s.registry, func(pc events.PriceChange) {
			s.metrics.EventsReceived.WithLabelValues(events.EventPriceChanged).Inc()
			s.store.SetPrice(pc.ItemID, pc.NewPriceCents)
		}),

		events.OnCrashStarted(s.registry, func(c events.Crash) {
			s.metrics.EventsReceived.WithLabelValues(events.EventCrashStarted).Inc()
			s.store.SetCrashed(c.BranchID, true)
		}),

		events.OnCrashEnded(s.registry, func(c events.Crash) {
			s.metrics.EventsReceived.WithLabelValues(events.EventCrashEnded).Inc()
			s.store.SetCrashed(c.BranchID, false)
			// The end-of-crash signal carries no prices; re-derive them.
			s.RequestRefetch()
		}),

		s.registry.On(events.EventConnectionReconnected, func(_ json.RawMessage) {
			s.metrics.Reconnects.Inc()
			// Events were lost during the gap; reconcile once.
			s.RequestRefetch()
		}),
	)
}
