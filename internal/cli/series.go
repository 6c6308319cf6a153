package cli

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/strata-db/strata/internal/model"
	"github.com/strata-db/strata/internal/store"
)

// NewSeriesCommand creates the series command group.
func NewSeriesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "series",
		Short: "Manage the series registry",
	}
	cmd.AddCommand(newSeriesCreateCommand(rootOpts))
	cmd.AddCommand(newSeriesListCommand(rootOpts))
	return cmd
}

// SeriesCreateOptions holds flags for series create.
type SeriesCreateOptions struct {
	*RootOptions
	Name        string
	Unit        string
	Labels      []string
	Description string
	Tier        string
	Overlapping bool
}

func newSeriesCreateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SeriesCreateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a series (idempotent on name and labels)",
		Long: `Register a series in the registry. Identity is the (name, labels) pair:
re-running with the same identity returns the existing series id, and a
differing unit is ignored in favor of the one stored at first creation.

Example:
  strata series create --name temperature --unit celsius --label site=a
  strata series create --name revenue --unit eur --overlapping --tier long`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeriesCreate(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "", "series name (required)")
	cmd.Flags().StringVar(&opts.Unit, "unit", "", "unit of measure (required)")
	cmd.Flags().StringArrayVar(&opts.Labels, "label", nil, "label as key=value (repeatable)")
	cmd.Flags().StringVar(&opts.Description, "description", "", "free-form description")
	cmd.Flags().StringVar(&opts.Tier, "tier", string(model.RetentionMedium), "retention tier (short|medium|long)")
	cmd.Flags().BoolVar(&opts.Overlapping, "overlapping", false, "mark the series as revision-bearing by default")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("unit")

	return cmd
}

func runSeriesCreate(opts *SeriesCreateOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	labels, err := parseLabelFlags(opts.Labels)
	if err != nil {
		_ = formatter.Error(ErrCodeBadField, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid --label", err)
	}

	st, err := openStore(opts.RootOptions)
	if err != nil {
		return err
	}
	defer st.Close()

	sr, err := st.CreateOrGetSeries(cmd.Context(), model.Series{
		Name:          opts.Name,
		Unit:          opts.Unit,
		Labels:        labels,
		Description:   opts.Description,
		Overlapping:   opts.Overlapping,
		RetentionTier: model.RetentionTier(opts.Tier),
	})
	if err != nil {
		_ = formatter.Error(ErrCodeBadField, err.Error(), nil)
		return storeExitError("series create failed", err)
	}

	slog.Debug("series registered", "id", sr.ID, "key", sr.Key())
	return formatter.Success(sr)
}

// SeriesListOptions holds flags for series list.
type SeriesListOptions struct {
	*RootOptions
	ID     string
	Name   string
	Unit   string
	Labels []string
}

func newSeriesListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SeriesListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List series matching a filter",
		Long: `List registered series. All filters are conjunctive; the label filter is
a subset match, so --label site=a matches any series whose labels include
that pair.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeriesList(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ID, "id", "", "exact series id")
	cmd.Flags().StringVar(&opts.Name, "name", "", "exact series name")
	cmd.Flags().StringVar(&opts.Unit, "unit", "", "exact unit")
	cmd.Flags().StringArrayVar(&opts.Labels, "label", nil, "label as key=value (repeatable, subset match)")

	return cmd
}

func runSeriesList(opts *SeriesListOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	labels, err := parseLabelFlags(opts.Labels)
	if err != nil {
		_ = formatter.Error(ErrCodeBadField, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid --label", err)
	}

	filter := store.SeriesFilter{
		Name:   opts.Name,
		Unit:   opts.Unit,
		Labels: labels,
	}
	if opts.ID != "" {
		id, err := uuid.Parse(opts.ID)
		if err != nil {
			_ = formatter.Error(ErrCodeBadField, fmt.Sprintf("invalid --id %q", opts.ID), nil)
			return WrapExitError(ExitCommandError, "invalid --id", err)
		}
		filter.ID = &id
	}

	st, err := openStore(opts.RootOptions)
	if err != nil {
		return err
	}
	defer st.Close()

	series, err := st.ResolveSeries(cmd.Context(), filter)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return storeExitError("series list failed", err)
	}
	return formatter.Success(series)
}

// parseLabelFlags parses repeated key=value flags into a label map.
func parseLabelFlags(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	labels := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("label %q is not key=value", p)
		}
		labels[k] = v
	}
	return labels, nil
}
