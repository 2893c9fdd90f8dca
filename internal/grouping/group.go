// Package grouping derives "table session" groups from the raw order
// snapshot. Groups are views: rebuilt from scratch on every invocation,
// never mutated in place.
package grouping

import (
	"sort"
	"time"

	"github.com/barlive/barsync/internal/model"
)

// SessionWindow is the default gap above which orders with the same
// grouping key belong to different sessions.
const SessionWindow = 8 * time.Hour

// Key clusters orders into one logical table session. All three parts are
// bare identifiers, regardless of how expanded the underlying records are.
type Key struct {
	BranchID   string
	Table      int
	CustomerID string
}

// OrderGroup is the aggregate view over one table session.
type OrderGroup struct {
	Key Key

	// MemberIDs in insertion order; insertion order is group formation
	// order, which follows the descending creation-time sort.
	MemberIDs []string

	// Items concatenated across members, order preserved.
	Items []model.LineItem

	TotalCents int64

	// AllPaid/AllDelivered hold over every non-cancelled member;
	// cancelled members are vacuously true for both.
	AllPaid      bool
	AllDelivered bool

	// Status is the highest-priority member status.
	Status model.OrderStatus

	// Customer keeps the richest reference seen among members.
	Customer model.Ref

	// AnchorTime is the creation time of the order that opened the group.
	AnchorTime time.Time
}

// Group clusters orders into table sessions using the default window.
func Group(orders []model.Order) []OrderGroup {
	return GroupWithin(orders, SessionWindow)
}

// GroupWithin clusters orders into table sessions. Orders are considered
// most-recent first; an order whose creation time is window or more away
// from its open group's anchor starts a new session under the same key.
// The result preserves group-creation order. Pure and synchronous.
func GroupWithin(orders []model.Order, window time.Duration) []OrderGroup {
	sorted := make([]model.Order, len(orders))
	copy(sorted, orders)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})

	var groups []OrderGroup
	open := make(map[Key]int) // key → index of the open group

	for _, o := range sorted {
		key := Key{
			BranchID:   o.Branch.ID(),
			Table:      o.Table,
			CustomerID: o.Customer.ID(),
		}

		if idx, ok := open[key]; ok {
			gap := groups[idx].AnchorTime.Sub(o.CreatedAt)
			if gap < 0 {
				gap = -gap
			}
			if gap < window {
				groups[idx].absorb(o)
				continue
			}
			// Too far apart: the old session closes, a new one opens.
		}

		g := OrderGroup{
			Key:          key,
			AllPaid:      true,
			AllDelivered: true,
			AnchorTime:   o.CreatedAt,
		}
		g.absorb(o)
		groups = append(groups, g)
		open[key] = len(groups) - 1
	}

	return groups
}

// absorb folds one member order into the group aggregate.
func (g *OrderGroup) absorb(o model.Order) {
	g.MemberIDs = append(g.MemberIDs, o.ID)
	g.TotalCents += o.TotalCents
	g.Items = append(g.Items, o.Items...)

	if o.Status != model.StatusCancelled {
		if !o.Paid {
			g.AllPaid = false
		}
		if o.Status != model.StatusDelivered {
			g.AllDelivered = false
		}
	}

	if o.Status.Priority() > g.Status.Priority() {
		g.Status = o.Status
	}

	g.Customer = model.MergeRefs(g.Customer, o.Customer)
}

// Matches reports whether g is the successor of prev across a rebuild:
// either the member-identifier sets intersect or the grouping keys are
// equal. Intersection is checked first because two sessions can share a
// key.
func (g OrderGroup) Matches(prev OrderGroup) bool {
	members := make(map[string]struct{}, len(g.MemberIDs))
	for _, id := range g.MemberIDs {
		members[id] = struct{}{}
	}
	for _, id := range prev.MemberIDs {
		if _, ok := members[id]; ok {
			return true
		}
	}
	return g.Key == prev.Key
}

// FindSuccessor re-finds the updated counterpart of a previously held
// group after a rebuild. Groups sharing a member id win over groups merely
// sharing a key.
func FindSuccessor(prev OrderGroup, groups []OrderGroup) (OrderGroup, bool) {
	byKey := -1
	for i, g := range groups {
		members := make(map[string]struct{}, len(g.MemberIDs))
		for _, id := range g.MemberIDs {
			members[id] = struct{}{}
		}
		for _, id := range prev.MemberIDs {
			if _, ok := members[id]; ok {
				return g, true
			}
		}
		if byKey < 0 && g.Key == prev.Key {
			byKey = i
		}
	}
	if byKey >= 0 {
		return groups[byKey], true
	}
	return OrderGroup{}, false
}
