package harness

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"

	"github.com/strata-db/strata/internal/store"
)

// Snapshot renders both projections of the whole database as text: the
// flat projection first, then the overlapping projection with retired
// versions included. One line per row, fields in a fixed order, so a
// scenario's outcome can be pinned byte for byte.
func (h *Harness) Snapshot(ctx context.Context) (string, error) {
	flat, err := h.Store.ReadFlat(ctx, store.ReadQuery{})
	if err != nil {
		return "", fmt.Errorf("snapshot flat: %w", err)
	}
	over, err := h.Store.ReadOverlapping(ctx, store.ReadQuery{AllVersions: true})
	if err != nil {
		return "", fmt.Errorf("snapshot overlapping: %w", err)
	}

	var b strings.Builder
	b.WriteString("# flat\n")
	for _, r := range flat {
		b.WriteString(snapshotLine(r))
		b.WriteByte('\n')
	}
	b.WriteString("# overlapping (all versions)\n")
	for _, r := range over {
		b.WriteString(snapshotLine(r))
		b.WriteByte('\n')
	}
	return b.String(), nil
}

// AssertGolden runs the scenario against a fresh harness and compares the
// resulting snapshot to the golden file named after the scenario.
func AssertGolden(t *testing.T, s *Scenario) {
	t.Helper()

	h := New(t)
	ctx := context.Background()
	if err := s.Run(ctx, h); err != nil {
		t.Fatalf("scenario %q: %v", s.Name, err)
	}

	snap, err := h.Snapshot(ctx)
	if err != nil {
		t.Fatalf("scenario %q: %v", s.Name, err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, s.Name, []byte(snap))
}

// snapshotLine includes the value id, unlike the CLI's row rendering:
// version identity is part of what a scenario pins.
func snapshotLine(r store.ReadRow) string {
	var b strings.Builder
	fmt.Fprintf(&b, "value_id=%d valid=%s", r.ValueID, r.ValidTime.Format(time.RFC3339Nano))
	if !r.ValidTimeEnd.IsZero() {
		fmt.Fprintf(&b, "..%s", r.ValidTimeEnd.Format(time.RFC3339Nano))
	}
	fmt.Fprintf(&b, " %s=%s %s", r.SeriesKey, snapshotValue(r.Value), r.Unit)
	fmt.Fprintf(&b, " known=%s batch=%s", r.KnownTime.Format(time.RFC3339Nano), r.BatchID)
	if r.Annotation != "" {
		fmt.Fprintf(&b, " note=%q", r.Annotation)
	}
	if len(r.Tags) > 0 {
		fmt.Fprintf(&b, " tags=%s", strings.Join(r.Tags, ","))
	}
	if !r.IsCurrent {
		b.WriteString(" retired")
	}
	return b.String()
}

func snapshotValue(v *float64) string {
	if v == nil {
		return "null"
	}
	return strconv.FormatFloat(*v, 'g', -1, 64)
}
