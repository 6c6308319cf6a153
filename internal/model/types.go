package model

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RetentionTier names a storage retention class for a series. The engine
// stores and reports the tier but does not act on it; retention enforcement
// belongs to the substrate.
type RetentionTier string

const (
	RetentionShort  RetentionTier = "short"
	RetentionMedium RetentionTier = "medium"
	RetentionLong   RetentionTier = "long"
)

// ValidRetentionTiers defines the allowed retention tiers.
var ValidRetentionTiers = map[RetentionTier]bool{
	RetentionShort:  true,
	RetentionMedium: true,
	RetentionLong:   true,
}

// DefaultTenant is the tenant used when a caller does not scope an
// operation to a tenant. It is the all-zeros UUID.
var DefaultTenant = uuid.Nil

// Series describes one registered time series. Identity is (Name, Labels);
// ID is assigned on first creation and stable thereafter. Everything except
// Description is immutable once created.
type Series struct {
	ID            uuid.UUID         `json:"series_id"`
	Name          string            `json:"name"`
	Unit          string            `json:"unit"`
	Labels        map[string]string `json:"labels,omitempty"`
	Description   string            `json:"description,omitempty"`
	Overlapping   bool              `json:"overlapping"`
	RetentionTier RetentionTier     `json:"retention_tier"`
}

// Key renders the series identity as "name{k=v,...}" with label keys in
// sorted order. Used as the series_key attached to projection rows.
func (s Series) Key() string {
	if len(s.Labels) == 0 {
		return s.Name
	}
	keys := make([]string, 0, len(s.Labels))
	for k := range s.Labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(s.Name)
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%s=%s", k, s.Labels[k])
	}
	b.WriteByte('}')
	return b.String()
}

// Batch records one ingestion batch. Created once, never mutated.
type Batch struct {
	ID         uuid.UUID      `json:"batch_id"`
	TenantID   uuid.UUID      `json:"tenant_id"`
	WorkflowID string         `json:"workflow_id,omitempty"`
	StartTime  time.Time      `json:"batch_start_time"`
	FinishTime time.Time      `json:"batch_finish_time,omitzero"`
	KnownTime  time.Time      `json:"known_time,omitzero"`
	Params     map[string]any `json:"params,omitempty"`
}

// CellKey identifies one logical fact slot: a (batch, tenant, series,
// valid time) tuple. A cell accumulates versions over its lifetime; at most
// one of them is current.
type CellKey struct {
	BatchID   uuid.UUID
	TenantID  uuid.UUID
	SeriesID  uuid.UUID
	ValidTime time.Time
}

// Compare defines the total order used for deterministic lock acquisition:
// lexicographic over (BatchID, TenantID, SeriesID, ValidTime), with UUIDs
// compared as their 16 raw bytes and times as absolute instants. The order
// is defined directly over the typed components, never over a string
// rendering of the key.
func (k CellKey) Compare(o CellKey) int {
	if c := bytes.Compare(k.BatchID[:], o.BatchID[:]); c != 0 {
		return c
	}
	if c := bytes.Compare(k.TenantID[:], o.TenantID[:]); c != 0 {
		return c
	}
	if c := bytes.Compare(k.SeriesID[:], o.SeriesID[:]); c != 0 {
		return c
	}
	return k.ValidTime.Compare(o.ValidTime)
}

// Equal reports whether two keys address the same cell.
func (k CellKey) Equal(o CellKey) bool {
	return k.Compare(o) == 0
}

func (k CellKey) String() string {
	return fmt.Sprintf("cell(batch=%s tenant=%s series=%s valid=%s)",
		k.BatchID, k.TenantID, k.SeriesID, k.ValidTime.UTC().Format(time.RFC3339Nano))
}

// Version is one recorded value-version of a cell. ValueID is assigned by
// the store exactly once and never reused; all mutation is represented by
// inserting a successor version and retiring the previous current one.
type Version struct {
	ValueID      int64
	Cell         CellKey
	ValidTimeEnd time.Time // zero means a point-in-time fact
	Value        *float64  // nil means null
	Annotation   string    // canonical; empty means null
	Tags         []string  // canonical; nil means null
	ChangedBy    string
	ChangeTime   time.Time
	IsCurrent    bool
}

// Interval reports whether the version covers a valid-time interval rather
// than a single instant.
func (v Version) Interval() bool {
	return !v.ValidTimeEnd.IsZero()
}

// ValueRow is one row offered to the insert path: an explicit value (nil
// for null) at a valid time, optionally covering an interval.
type ValueRow struct {
	ValidTime    time.Time
	ValidTimeEnd time.Time // zero for point-in-time
	SeriesID     uuid.UUID
	Value        *float64
}

// VersionRef identifies a freshly written version.
type VersionRef struct {
	ValueID int64   `json:"value_id"`
	Cell    CellKey `json:"-"`
}

// UpdateResult reports the outcome of one update call: the versions that
// were written and the cells skipped because the merged state equalled the
// current state.
type UpdateResult struct {
	Updated      []VersionRef
	SkippedNoOps []CellKey
}

// ParseTime parses an RFC 3339 timestamp. The layout requires an explicit
// UTC offset, so strings without timezone qualification are rejected.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp %q is not RFC 3339 with an explicit offset: %w", s, err)
	}
	return t, nil
}
