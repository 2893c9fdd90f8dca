// Package store owns the local entity snapshot and the merge engine that
// feeds it. Push handlers and reconciliation fetches are two producers into
// the same merge path, so both converge on identical state.
package store

import "github.com/barlive/barsync/internal/model"

// Merge combines an existing order with an incoming partial payload and
// returns the new record. Pure and synchronous: safe to call from inside an
// event handler.
//
// Field rules:
//   - existing == nil: the incoming payload is materialized verbatim.
//   - reference fields (branch, customer): a bare incoming id never
//     downgrades an expanded object with the same id.
//   - everything else: incoming wins; absent (nil) fields carry no
//     information and leave existing state untouched.
func Merge(existing *model.Order, patch model.OrderPatch) model.Order {
	var out model.Order
	if existing != nil {
		out = *existing
	}

	if patch.ID != "" {
		out.ID = patch.ID
	}
	if patch.Branch != nil {
		out.Branch = model.MergeRefs(out.Branch, *patch.Branch)
	}
	if patch.Customer != nil {
		out.Customer = model.MergeRefs(out.Customer, *patch.Customer)
	}
	if patch.Table != nil {
		out.Table = *patch.Table
	}
	if patch.Items != nil {
		out.Items = patch.Items
	}
	if patch.TotalCents != nil {
		out.TotalCents = *patch.TotalCents
	}
	if patch.Status != nil {
		out.Status = *patch.Status
	}
	if patch.Paid != nil {
		out.Paid = *patch.Paid
	}
	if patch.CreatedAt != nil {
		out.CreatedAt = *patch.CreatedAt
	}

	return out
}
