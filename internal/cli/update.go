package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/strata-db/strata/internal/model"
	"github.com/strata-db/strata/internal/store"
)

// NewUpdateCommand creates the update command.
func NewUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update <file.yaml>",
		Short: "Apply cell corrections from a YAML document",
		Long: `Apply a batch of corrections. Each entry addresses one cell, by value id
or by full cell key, and may touch the value, the annotation and the tags
independently: a key left out of the document keeps the stored field, an
explicit null clears it, anything else sets it.

The whole document applies atomically. Entries whose result equals the
current state are skipped, so re-running a document after a crash or a
retryable failure is safe.

Example:
  strata update --db ./strata.db ./corrections/recheck.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdate(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runUpdate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	doc, err := LoadUpdateFile(path)
	if err != nil {
		return err
	}

	updates := make([]model.CellUpdate, 0, len(doc.Updates))
	for i, item := range doc.Updates {
		u, err := item.ToCellUpdate(i)
		if err != nil {
			_ = formatter.Error(ErrCodeBadField, err.Error(), nil)
			return WrapExitError(ExitCommandError, "invalid update entry", err)
		}
		updates = append(updates, u)
	}

	st, err := openStore(opts)
	if err != nil {
		return err
	}
	defer st.Close()

	res, err := st.Update(cmd.Context(), updates)
	if err != nil {
		code := ErrCodeBadField
		switch {
		case store.IsNotFound(err):
			code = ErrCodeNotFound
		case store.IsRetryable(err):
			code = ErrCodeContention
		}
		_ = formatter.Error(code, err.Error(), nil)
		return storeExitError("update failed", err)
	}

	slog.Debug("updates applied", "written", len(res.Updated), "skipped", len(res.SkippedNoOps))

	if formatter.Format == "json" {
		return formatter.Success(newUpdateResultPayload(res))
	}
	return formatter.Success(res)
}

// updateResultPayload is the JSON shape of an update outcome.
type updateResultPayload struct {
	Updated      []model.VersionRef `json:"updated"`
	SkippedNoOps []string           `json:"skipped_no_ops"`
}

func newUpdateResultPayload(res model.UpdateResult) updateResultPayload {
	skipped := make([]string, len(res.SkippedNoOps))
	for i, cell := range res.SkippedNoOps {
		skipped[i] = cell.String()
	}
	return updateResultPayload{Updated: res.Updated, SkippedNoOps: skipped}
}
