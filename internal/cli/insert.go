package cli

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/strata-db/strata/internal/model"
)

// InsertResult is the payload reported after a successful ingest.
type InsertResult struct {
	BatchID  uuid.UUID `json:"batch_id"`
	Offered  int       `json:"offered"`
	Inserted int       `json:"inserted"`
	Series   int       `json:"series"`
}

// NewInsertCommand creates the insert command.
func NewInsertCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "insert <file.yaml>",
		Short: "Ingest a batch of values from a YAML document",
		Long: `Ingest one batch of values. The document names the batch, the series each
value belongs to, and the values themselves. Unregistered series are
registered on the fly. Rows whose cell already holds a version are
silently skipped: corrections go through 'strata update', not
re-insertion.

Example:
  strata insert --db ./strata.db ./ingest/2024-03-01.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInsert(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runInsert(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	doc, err := LoadIngestFile(path)
	if err != nil {
		return err
	}

	batch, err := doc.Batch.ToBatch()
	if err != nil {
		_ = formatter.Error(ErrCodeBadField, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid batch section", err)
	}

	st, err := openStore(opts)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := cmd.Context()
	if err := st.CreateBatch(ctx, batch); err != nil {
		_ = formatter.Error(ErrCodeBadField, err.Error(), nil)
		return storeExitError("batch create failed", err)
	}

	// Resolve every series identity up front, registering as needed. The
	// registry is idempotent, so repeated identities cost one call each but
	// always agree on the id.
	seen := make(map[uuid.UUID]bool)
	rows := make([]model.ValueRow, 0, len(doc.Values))
	for i, v := range doc.Values {
		sr, err := st.CreateOrGetSeries(ctx, model.Series{
			Name:          v.Series.Name,
			Unit:          v.Series.Unit,
			Labels:        v.Series.Labels,
			Description:   v.Series.Description,
			Overlapping:   v.Series.Overlapping,
			RetentionTier: model.RetentionTier(v.Series.RetentionTier),
		})
		if err != nil {
			_ = formatter.Error(ErrCodeBadField, fmt.Sprintf("values[%d]: %v", i, err), nil)
			return storeExitError(fmt.Sprintf("values[%d]: series registration failed", i), err)
		}
		seen[sr.ID] = true

		row := model.ValueRow{SeriesID: sr.ID, Value: v.Value}
		if row.ValidTime, err = parseOptionalTime(fmt.Sprintf("values[%d].valid_time", i), v.ValidTime); err != nil {
			_ = formatter.Error(ErrCodeBadField, err.Error(), nil)
			return WrapExitError(ExitCommandError, "invalid value row", err)
		}
		if row.ValidTimeEnd, err = parseOptionalTime(fmt.Sprintf("values[%d].valid_time_end", i), v.ValidTimeEnd); err != nil {
			_ = formatter.Error(ErrCodeBadField, err.Error(), nil)
			return WrapExitError(ExitCommandError, "invalid value row", err)
		}
		rows = append(rows, row)
	}

	inserted, err := st.InsertValues(ctx, batch.ID, rows)
	if err != nil {
		_ = formatter.Error(ErrCodeBadField, err.Error(), nil)
		return storeExitError("insert failed", err)
	}

	slog.Debug("batch ingested", "batch", batch.ID, "offered", len(rows), "inserted", inserted)

	result := InsertResult{
		BatchID:  batch.ID,
		Offered:  len(rows),
		Inserted: inserted,
		Series:   len(seen),
	}
	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	return formatter.Success(fmt.Sprintf("batch %s: %d of %d rows inserted across %d series",
		result.BatchID, result.Inserted, result.Offered, result.Series))
}
