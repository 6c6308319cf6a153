// Package model defines the domain types for the strata bitemporal value
// store: series, batches, value versions, and the cell key that identifies
// one logical fact slot.
//
// Two conventions run through the package:
//
//   - Tri-state update fields. Every updatable field of a cell is a
//     Field[T] with three states: unset (leave unchanged), clear (set to
//     null), and set (replace with a canonicalized value). The states are
//     exhaustively checkable via FieldState, never inferred from sentinel
//     values.
//
//   - Canonical forms. Tags, annotations, and label maps are normalized
//     (NFC, trimmed, tags lowercased and sorted) before storage and before
//     any equality comparison. The canonical empty value is always null,
//     never an empty string or empty set.
//
// Timestamps are carried as time.Time and are always absolute instants;
// the parse layer (ParseTime) rejects renderings without an explicit UTC
// offset so a bare wall-clock string can never enter the system.
package model
