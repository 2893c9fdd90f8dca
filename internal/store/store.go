package store

import (
	"log/slog"
	"sync"

	"github.com/barlive/barsync/internal/model"
)

// Store is the exclusive owner of the merged entity snapshot. External
// consumers only ever see copies; all mutation goes through Apply and
// ReplaceAll.
//
// Besides orders it tracks the per-item live prices and per-branch crash
// flags fed by push events, since the dashboard renders those alongside the
// order view.
type Store struct {
	logger *slog.Logger

	mu      sync.RWMutex
	orders  map[string]model.Order
	prices  map[string]int64 // item id → current price in cents
	crashed map[string]bool  // branch id → market crash active
}

// New creates an empty store.
func New(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		logger:  logger,
		orders:  make(map[string]model.Order),
		prices:  make(map[string]int64),
		crashed: make(map[string]bool),
	}
}

// Apply merges a partial payload into the snapshot. A patch without an
// identifier cannot target an update and is a no-op; Apply reports whether
// anything was stored.
func (s *Store) Apply(patch model.OrderPatch) bool {
	if patch.ID == "" {
		s.logger.Warn("dropping order patch without id")
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var existing *model.Order
	if cur, ok := s.orders[patch.ID]; ok {
		existing = &cur
	}
	s.orders[patch.ID] = Merge(existing, patch)
	return true
}

// ReplaceAll applies a reconciliation fetch result as the authoritative
// order set: records absent from the fetch are dropped, surviving records
// are still merged field by field so previously resolved detail (expanded
// references) is not lost to a thinner payload.
func (s *Store) ReplaceAll(patches []model.OrderPatch) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]model.Order, len(patches))
	for _, patch := range patches {
		if patch.ID == "" {
			s.logger.Warn("dropping fetched order without id")
			continue
		}
		var existing *model.Order
		if cur, ok := s.orders[patch.ID]; ok {
			existing = &cur
		}
		next[patch.ID] = Merge(existing, patch)
	}
	s.orders = next
}

// Get returns a copy of a single order.
func (s *Store) Get(id string) (model.Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	return o, ok
}

// Orders returns a copy of the full order snapshot, in no particular order.
func (s *Store) Orders() []model.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Order, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, o)
	}
	return out
}

// Len returns the number of orders held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.orders)
}

// SetPrice records the current price of an item.
func (s *Store) SetPrice(itemID string, cents int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[itemID] = cents
}

// Price returns the last known price of an item.
func (s *Store) Price(itemID string) (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prices[itemID]
	return p, ok
}

// SetCrashed flags or clears a branch-wide market crash.
func (s *Store) SetCrashed(branchID string, crashed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if crashed {
		s.crashed[branchID] = true
	} else {
		delete(s.crashed, branchID)
	}
}

// IsCrashed reports whether a branch currently has a crash active.
func (s *Store) IsCrashed(branchID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.crashed[branchID]
}
