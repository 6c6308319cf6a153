package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runCLI executes the root command with the given arguments and returns
// captured stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	errBuf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(errBuf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// jsonData decodes the data payload of a JSON-format CLI response.
func jsonData(t *testing.T, out string, into any) {
	t.Helper()
	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Equal(t, "ok", resp.Status)
	require.NoError(t, json.Unmarshal(resp.Data, into))
}

func TestCLI_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "strata.db")

	// Register a series explicitly.
	out, err := runCLI(t, "series", "create", "--db", db, "--format", "json",
		"--name", "temperature", "--unit", "celsius", "--label", "site=a")
	require.NoError(t, err)

	var created struct {
		SeriesID string `json:"series_id"`
		Unit     string `json:"unit"`
	}
	jsonData(t, out, &created)
	require.NotEmpty(t, created.SeriesID)
	assert.Equal(t, "celsius", created.Unit)

	// Re-running with a different unit keeps the stored one.
	out, err = runCLI(t, "series", "create", "--db", db, "--format", "json",
		"--name", "temperature", "--unit", "fahrenheit", "--label", "site=a")
	require.NoError(t, err)
	var again struct {
		SeriesID string `json:"series_id"`
		Unit     string `json:"unit"`
	}
	jsonData(t, out, &again)
	assert.Equal(t, created.SeriesID, again.SeriesID)
	assert.Equal(t, "celsius", again.Unit)

	// Ingest a batch. The second series is registered on the fly.
	ingest := writeTempFile(t, "ingest.yaml", `
batch:
  batch_id: 11111111-1111-1111-1111-111111111111
  workflow_id: e2e
  batch_start_time: 2024-03-01T10:00:00Z
  known_time: 2024-03-01T12:00:00Z
values:
  - series: {name: temperature, unit: celsius, labels: {site: a}}
    valid_time: 2024-03-01T09:00:00Z
    value: 21.5
  - series: {name: pressure, unit: pa}
    valid_time: 2024-03-01T09:00:00Z
    value: 101325
`)

	out, err = runCLI(t, "insert", "--db", db, "--format", "json", ingest)
	require.NoError(t, err)
	var ins InsertResult
	jsonData(t, out, &ins)
	assert.Equal(t, 2, ins.Offered)
	assert.Equal(t, 2, ins.Inserted)
	assert.Equal(t, 2, ins.Series)

	// Re-running the same document is idempotent: nothing new lands.
	out, err = runCLI(t, "insert", "--db", db, "--format", "json", ingest)
	require.NoError(t, err)
	jsonData(t, out, &ins)
	assert.Equal(t, 0, ins.Inserted)

	// Flat read sees both rows.
	out, err = runCLI(t, "read", "--db", db, "--format", "json", "--mode", "flat")
	require.NoError(t, err)
	var rows []struct {
		ValueID   int64    `json:"value_id"`
		SeriesKey string   `json:"series_key"`
		Value     *float64 `json:"value"`
	}
	jsonData(t, out, &rows)
	require.Len(t, rows, 2)

	var tempValueID int64
	for _, r := range rows {
		if r.SeriesKey == "temperature{site=a}" {
			tempValueID = r.ValueID
		}
	}
	require.NotZero(t, tempValueID)

	// Correct the temperature reading by value id.
	update := writeTempFile(t, "update.yaml", `
updates:
  - value_id: `+jsonInt(tempValueID)+`
    value: 25.0
    annotation: rechecked
    changed_by: e2e-test
`)
	out, err = runCLI(t, "update", "--db", db, "--format", "json", update)
	require.NoError(t, err)
	var res updateResultPayload
	jsonData(t, out, &res)
	require.Len(t, res.Updated, 1)
	assert.Empty(t, res.SkippedNoOps)

	// Re-running the correction collapses to a no-op.
	out, err = runCLI(t, "update", "--db", db, "--format", "json", update)
	require.NoError(t, err)
	jsonData(t, out, &res)
	assert.Empty(t, res.Updated)
	require.Len(t, res.SkippedNoOps, 1)

	// The flat projection reflects the correction.
	out, err = runCLI(t, "read", "--db", db, "--format", "json", "--mode", "flat")
	require.NoError(t, err)
	jsonData(t, out, &rows)
	for _, r := range rows {
		if r.SeriesKey == "temperature{site=a}" {
			require.NotNil(t, r.Value)
			assert.Equal(t, 25.0, *r.Value)
		}
	}

	// The overlapping audit view keeps the retired original.
	out, err = runCLI(t, "read", "--db", db, "--format", "json",
		"--mode", "overlapping", "--all-versions")
	require.NoError(t, err)
	var audit []struct {
		IsCurrent bool `json:"is_current"`
	}
	jsonData(t, out, &audit)
	retired := 0
	for _, r := range audit {
		if !r.IsCurrent {
			retired++
		}
	}
	assert.Equal(t, 1, retired)
}

func TestCLI_UpdateUnknownValueID(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "strata.db")

	update := writeTempFile(t, "update.yaml", `
updates:
  - value_id: 999999
    value: 1.0
`)
	_, err := runCLI(t, "update", "--db", db, update)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestCLI_ReadInvalidMode(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "strata.db")

	_, err := runCLI(t, "read", "--db", db, "--mode", "sideways")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestCLI_InvalidFormat(t *testing.T) {
	_, err := runCLI(t, "series", "list", "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestCLI_SeriesListFilters(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "strata.db")

	for _, site := range []string{"a", "b"} {
		_, err := runCLI(t, "series", "create", "--db", db,
			"--name", "temperature", "--unit", "celsius", "--label", "site="+site)
		require.NoError(t, err)
	}

	out, err := runCLI(t, "series", "list", "--db", db, "--format", "json",
		"--label", "site=b")
	require.NoError(t, err)

	var series []struct {
		Labels map[string]string `json:"labels"`
	}
	jsonData(t, out, &series)
	require.Len(t, series, 1)
	assert.Equal(t, "b", series[0].Labels["site"])
}

func jsonInt(v int64) string {
	data, _ := json.Marshal(v)
	return string(data)
}
