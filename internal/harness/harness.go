// Package harness provides scenario-driven conformance testing for the
// versioning engine.
//
// Scenarios are YAML documents describing a sequence of ingests and
// corrections. The harness executes them against a fresh database with a
// fixed clock, then snapshots both projections for golden file comparison.
// Batch ids and knowledge times are pinned by the scenario and value ids
// are assigned sequentially from an empty database, so two runs of the
// same scenario produce byte-identical snapshots.
package harness

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/strata-db/strata/internal/model"
	"github.com/strata-db/strata/internal/store"
	"github.com/strata-db/strata/internal/testutil"
)

// harnessEpoch is the fixed instant every harness clock starts at.
var harnessEpoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// Harness owns one isolated store for a scenario run.
type Harness struct {
	Store *store.Store
	Clock *testutil.FixedClock
}

// New creates a harness over a fresh database in the test's temp
// directory.
func New(t *testing.T) *Harness {
	t.Helper()
	clock := testutil.NewFixedClock(harnessEpoch)
	st, err := store.Open(filepath.Join(t.TempDir(), "harness.db"), store.WithClock(clock))
	if err != nil {
		t.Fatalf("harness: open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return &Harness{Store: st, Clock: clock}
}

// Ingest records one batch and its value rows, registering series
// identities as they appear.
func (h *Harness) Ingest(ctx context.Context, batch model.Batch, series []model.Series, rows []model.ValueRow) (int, error) {
	if err := h.Store.CreateBatch(ctx, batch); err != nil {
		return 0, fmt.Errorf("create batch: %w", err)
	}
	resolved := make([]model.ValueRow, len(rows))
	for i, row := range rows {
		sr, err := h.Store.CreateOrGetSeries(ctx, series[i])
		if err != nil {
			return 0, fmt.Errorf("row %d: register series: %w", i, err)
		}
		row.SeriesID = sr.ID
		resolved[i] = row
	}
	return h.Store.InsertValues(ctx, batch.ID, resolved)
}
