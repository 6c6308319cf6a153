package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/strata-db/strata/internal/model"
	"github.com/strata-db/strata/internal/testutil"
)

var testEpoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) (*Store, *testutil.FixedClock) {
	t.Helper()
	clock := testutil.NewFixedClock(testEpoch)
	s, err := Open(filepath.Join(t.TempDir(), "strata.db"), WithClock(clock))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, clock
}

func mustSeries(t *testing.T, s *Store, name, unit string, labels map[string]string) model.Series {
	t.Helper()
	sr, err := s.CreateOrGetSeries(context.Background(), model.Series{
		Name:   name,
		Unit:   unit,
		Labels: labels,
	})
	if err != nil {
		t.Fatalf("CreateOrGetSeries(%q) failed: %v", name, err)
	}
	return sr
}

func mustBatch(t *testing.T, s *Store, id uuid.UUID, knownTime time.Time) model.Batch {
	t.Helper()
	b := model.Batch{
		ID:        id,
		TenantID:  model.DefaultTenant,
		StartTime: testEpoch.Add(-time.Hour),
		KnownTime: knownTime,
	}
	if err := s.CreateBatch(context.Background(), b); err != nil {
		t.Fatalf("CreateBatch(%s) failed: %v", id, err)
	}
	got, err := s.GetBatch(context.Background(), id)
	if err != nil {
		t.Fatalf("GetBatch(%s) failed: %v", id, err)
	}
	return got
}

func mustInsert(t *testing.T, s *Store, batchID uuid.UUID, rows []model.ValueRow) int {
	t.Helper()
	n, err := s.InsertValues(context.Background(), batchID, rows)
	if err != nil {
		t.Fatalf("InsertValues() failed: %v", err)
	}
	return n
}

func ptr(v float64) *float64 {
	return &v
}

// countCurrent returns the number of current versions for one cell.
// Exactly one current version per populated cell must hold at all times.
func countCurrent(t *testing.T, s *Store, cell model.CellKey) int {
	t.Helper()
	var n int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM versions
		WHERE batch_id = ? AND tenant_id = ? AND series_id = ? AND valid_time = ? AND is_current = 1
	`,
		cell.BatchID.String(),
		cell.TenantID.String(),
		cell.SeriesID.String(),
		encodeTime(cell.ValidTime),
	).Scan(&n)
	if err != nil {
		t.Fatalf("count current versions: %v", err)
	}
	return n
}

func countVersions(t *testing.T, s *Store, cell model.CellKey) int {
	t.Helper()
	var n int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM versions
		WHERE batch_id = ? AND tenant_id = ? AND series_id = ? AND valid_time = ?
	`,
		cell.BatchID.String(),
		cell.TenantID.String(),
		cell.SeriesID.String(),
		encodeTime(cell.ValidTime),
	).Scan(&n)
	if err != nil {
		t.Fatalf("count versions: %v", err)
	}
	return n
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strata.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strata.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	tables := []string{"series", "batches", "versions"}
	for _, table := range tables {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found after idempotent opens: %v", table, err)
		}
	}
}

func TestOpen_DataSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strata.db")

	s1, err := Open(path)
	if err != nil {
		t.Fatalf("first Open() failed: %v", err)
	}
	sr, err := s1.CreateOrGetSeries(context.Background(), model.Series{Name: "temp", Unit: "celsius"})
	if err != nil {
		t.Fatalf("CreateOrGetSeries() failed: %v", err)
	}
	s1.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("second Open() failed: %v", err)
	}
	defer s2.Close()

	got, err := s2.SeriesInfo(context.Background(), sr.ID)
	if err != nil {
		t.Fatalf("SeriesInfo() after reopen failed: %v", err)
	}
	if got.Name != "temp" || got.Unit != "celsius" {
		t.Errorf("reopened series = %+v, want name=temp unit=celsius", got)
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/strata.db")
	if err == nil {
		t.Error("expected error for invalid path, got nil")
	}
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{db: nil}
	if err := s.Close(); err != nil {
		t.Errorf("Close() on nil db should not error: %v", err)
	}
}

func TestPragmas(t *testing.T) {
	s, _ := newTestStore(t)

	checks := map[string]string{
		"journal_mode": "wal",
		"foreign_keys": "1",
		"synchronous":  "1", // NORMAL
	}
	for name, want := range checks {
		if err := s.verifyPragma(name, want); err != nil {
			t.Errorf("pragma check failed: %v", err)
		}
	}
}

func TestSchemaVersion(t *testing.T) {
	s, _ := newTestStore(t)

	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("query user_version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("user_version = %d, want %d", version, currentSchemaVersion)
	}
}

func TestTimeEncoding_RoundTrip(t *testing.T) {
	times := []time.Time{
		time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		time.Date(2024, 1, 2, 3, 4, 5, 123456789, time.UTC),
		time.Date(2024, 1, 2, 3, 4, 5, 1, time.UTC),
		time.Date(1999, 12, 31, 23, 59, 59, 999999999, time.UTC),
	}
	for _, want := range times {
		got, err := decodeTime(encodeTime(want))
		if err != nil {
			t.Fatalf("decodeTime(encodeTime(%v)) failed: %v", want, err)
		}
		if !got.Equal(want) {
			t.Errorf("round trip changed %v to %v", want, got)
		}
	}
}

func TestTimeEncoding_LexicographicOrderIsChronological(t *testing.T) {
	// Fixed-width rendering is what makes string comparison in SQL agree
	// with time comparison. RFC3339Nano would trim trailing zeros and break
	// this: "...05.1Z" sorts after "...05.09Z".
	earlier := time.Date(2024, 1, 2, 3, 4, 5, 90000000, time.UTC)  // .09
	later := time.Date(2024, 1, 2, 3, 4, 5, 100000000, time.UTC)   // .1
	if encodeTime(earlier) >= encodeTime(later) {
		t.Errorf("encoded %q not lexicographically before %q", encodeTime(earlier), encodeTime(later))
	}
}

func TestTimeEncoding_NormalizesZone(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*60*60)
	local := time.Date(2024, 1, 2, 8, 4, 5, 0, loc)
	utc := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	if encodeTime(local) != encodeTime(utc) {
		t.Errorf("same instant encoded differently: %q vs %q", encodeTime(local), encodeTime(utc))
	}
}
