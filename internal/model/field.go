package model

// FieldState enumerates the three states of an updatable field.
type FieldState uint8

const (
	// FieldUnset leaves the stored value unchanged.
	FieldUnset FieldState = iota
	// FieldClear sets the stored value to null.
	FieldClear
	// FieldSet replaces the stored value after canonicalization.
	FieldSet
)

func (s FieldState) String() string {
	switch s {
	case FieldUnset:
		return "unset"
	case FieldClear:
		return "clear"
	case FieldSet:
		return "set"
	}
	return "invalid"
}

// Field is a tri-state update value. The zero value is unset, so omitting
// a field in a CellUpdate literal means "leave unchanged" with no sentinel
// involved.
type Field[T any] struct {
	state FieldState
	value T
}

// Keep returns an unset field (leave the stored value unchanged).
func Keep[T any]() Field[T] {
	return Field[T]{}
}

// Clear returns a clearing field (set the stored value to null).
func Clear[T any]() Field[T] {
	return Field[T]{state: FieldClear}
}

// Set returns a setting field carrying v.
func Set[T any](v T) Field[T] {
	return Field[T]{state: FieldSet, value: v}
}

// State returns the field's state for exhaustive switching.
func (f Field[T]) State() FieldState {
	return f.state
}

// Value returns the carried value. Meaningful only when State is FieldSet.
func (f Field[T]) Value() T {
	return f.value
}

// UpdateTarget identifies the cell an update addresses: either directly by
// value id, or by the full cell key. Exactly one variant is populated;
// construct via TargetValueID or TargetCell.
type UpdateTarget struct {
	valueID *int64
	cell    *CellKey
}

// TargetValueID addresses the cell owning the given value id.
func TargetValueID(id int64) UpdateTarget {
	return UpdateTarget{valueID: &id}
}

// TargetCell addresses a cell by its key.
func TargetCell(k CellKey) UpdateTarget {
	return UpdateTarget{cell: &k}
}

// ByValueID returns the value id variant, if that is how the target was
// constructed.
func (t UpdateTarget) ByValueID() (int64, bool) {
	if t.valueID == nil {
		return 0, false
	}
	return *t.valueID, true
}

// ByCellKey returns the cell key variant, if that is how the target was
// constructed.
func (t UpdateTarget) ByCellKey() (CellKey, bool) {
	if t.cell == nil {
		return CellKey{}, false
	}
	return *t.cell, true
}

// Valid reports whether the target carries exactly one variant.
func (t UpdateTarget) Valid() bool {
	return (t.valueID != nil) != (t.cell != nil)
}

// CellUpdate is one entry in an update call. Value, Annotation and Tags are
// tri-state; an update with all three unset is a usage error. ChangedBy is
// recorded on the new version and takes no part in no-op comparison.
type CellUpdate struct {
	Target     UpdateTarget
	Value      Field[float64]
	Annotation Field[string]
	Tags       Field[[]string]
	ChangedBy  string
}

// Empty reports whether the update carries no field changes at all.
func (u CellUpdate) Empty() bool {
	return u.Value.State() == FieldUnset &&
		u.Annotation.State() == FieldUnset &&
		u.Tags.State() == FieldUnset
}
