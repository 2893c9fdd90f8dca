package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrRefMissingID is returned when an expanded reference object carries no id.
var ErrRefMissingID = errors.New("reference object has no id")

// Ref is a reference-typed field: either a bare identifier or a fully
// expanded related object that carries the same identifier.
type Ref struct {
	id  string
	raw json.RawMessage // expanded object, nil when the ref is bare
}

// NewRef returns a bare reference.
func NewRef(id string) Ref {
	return Ref{id: id}
}

// NewExpandedRef returns an expanded reference. The object is stored as-is.
func NewExpandedRef(id string, obj json.RawMessage) Ref {
	return Ref{id: id, raw: obj}
}

// ID returns the referenced identifier, "" for a zero Ref.
func (r Ref) ID() string { return r.id }

// IsExpanded reports whether the ref holds the full related object.
func (r Ref) IsExpanded() bool { return len(r.raw) > 0 }

// IsZero reports whether the ref holds nothing at all.
func (r Ref) IsZero() bool { return r.id == "" && len(r.raw) == 0 }

// Object returns the expanded object, nil for a bare ref.
func (r Ref) Object() json.RawMessage { return r.raw }

// StringField extracts a string field from the expanded object, e.g. a
// customer display name. Returns "" for bare refs or missing fields.
func (r Ref) StringField(key string) string {
	if !r.IsExpanded() {
		return ""
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(r.raw, &fields); err != nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(fields[key], &s); err != nil {
		return ""
	}
	return s
}

// UnmarshalJSON accepts either a JSON string (bare id) or an object with an
// "id" field (expanded).
func (r *Ref) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*r = Ref{}
		return nil
	}

	if data[0] == '"' {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		*r = Ref{id: id}
		return nil
	}

	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("decode reference: %w", err)
	}
	if obj.ID == "" {
		return ErrRefMissingID
	}

	raw := make(json.RawMessage, len(data))
	copy(raw, data)
	*r = Ref{id: obj.ID, raw: raw}
	return nil
}

// MarshalJSON emits the expanded object when present, the bare id otherwise.
func (r Ref) MarshalJSON() ([]byte, error) {
	if r.IsExpanded() {
		return r.raw, nil
	}
	if r.id == "" {
		return []byte("null"), nil
	}
	return json.Marshal(r.id)
}

// MergeRefs applies the non-regression rule for reference fields: a bare
// incoming id never downgrades an expanded object with the same id.
// Anything else (initial population, identifier change, incoming already
// expanded) takes the incoming value.
func MergeRefs(existing, incoming Ref) Ref {
	if !incoming.IsExpanded() && existing.IsExpanded() && existing.ID() == incoming.ID() {
		return existing
	}
	return incoming
}
