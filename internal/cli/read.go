package cli

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/strata-db/strata/internal/store"
)

// ReadOptions holds flags for the read command.
type ReadOptions struct {
	*RootOptions
	Mode        string
	Tenant      string
	Series      []string
	ValidFrom   string
	ValidTo     string
	KnownFrom   string
	KnownTo     string
	AllVersions bool
}

// NewReadCommand creates the read command.
func NewReadCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReadOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "read",
		Short: "Project stored values",
		Long: `Project stored values in one of two shapes.

flat answers "what is the best-known value": one row per (valid time,
series), taken from the batch with the latest knowledge time.

overlapping answers "how did knowledge evolve": one row per batch that
covered the instant, ordered by knowledge time. With --all-versions the
full correction history of every cell is included, retired versions too.

Time ranges are half-open: --valid-from is inclusive, --valid-to exclusive.

Example:
  strata read --mode flat --valid-from 2024-03-01T00:00:00Z
  strata read --mode overlapping --series 018f2c... --all-versions`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRead(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Mode, "mode", "flat", "projection mode (flat|overlapping)")
	cmd.Flags().StringVar(&opts.Tenant, "tenant", "", "restrict to one tenant id")
	cmd.Flags().StringArrayVar(&opts.Series, "series", nil, "restrict to series id (repeatable)")
	cmd.Flags().StringVar(&opts.ValidFrom, "valid-from", "", "valid time lower bound, inclusive")
	cmd.Flags().StringVar(&opts.ValidTo, "valid-to", "", "valid time upper bound, exclusive")
	cmd.Flags().StringVar(&opts.KnownFrom, "known-from", "", "knowledge time lower bound, inclusive")
	cmd.Flags().StringVar(&opts.KnownTo, "known-to", "", "knowledge time upper bound, exclusive")
	cmd.Flags().BoolVar(&opts.AllVersions, "all-versions", false, "include retired versions (overlapping mode)")

	return cmd
}

func runRead(opts *ReadOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	if opts.Mode != "flat" && opts.Mode != "overlapping" {
		msg := fmt.Sprintf("invalid --mode %q: must be flat or overlapping", opts.Mode)
		_ = formatter.Error(ErrCodeBadField, msg, nil)
		return NewExitError(ExitCommandError, msg)
	}

	q, err := buildReadQuery(opts)
	if err != nil {
		_ = formatter.Error(ErrCodeBadField, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid read filter", err)
	}

	st, err := openStore(opts.RootOptions)
	if err != nil {
		return err
	}
	defer st.Close()

	var rows []store.ReadRow
	if opts.Mode == "flat" {
		rows, err = st.ReadFlat(cmd.Context(), q)
	} else {
		rows, err = st.ReadOverlapping(cmd.Context(), q)
	}
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return storeExitError("read failed", err)
	}

	slog.Debug("projection answered", "mode", opts.Mode, "rows", len(rows))
	return formatter.Success(rows)
}

func buildReadQuery(opts *ReadOptions) (store.ReadQuery, error) {
	q := store.ReadQuery{AllVersions: opts.AllVersions}

	if opts.Tenant != "" {
		id, err := uuid.Parse(opts.Tenant)
		if err != nil {
			return q, fmt.Errorf("--tenant %q: %w", opts.Tenant, err)
		}
		q.TenantID = &id
	}
	for _, s := range opts.Series {
		id, err := uuid.Parse(s)
		if err != nil {
			return q, fmt.Errorf("--series %q: %w", s, err)
		}
		q.SeriesIDs = append(q.SeriesIDs, id)
	}

	var err error
	if q.ValidFrom, err = parseOptionalTime("--valid-from", opts.ValidFrom); err != nil {
		return q, err
	}
	if q.ValidTo, err = parseOptionalTime("--valid-to", opts.ValidTo); err != nil {
		return q, err
	}
	if q.KnownFrom, err = parseOptionalTime("--known-from", opts.KnownFrom); err != nil {
		return q, err
	}
	if q.KnownTo, err = parseOptionalTime("--known-to", opts.KnownTo); err != nil {
		return q, err
	}
	return q, nil
}
