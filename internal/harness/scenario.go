package harness

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/strata-db/strata/internal/cli"
	"github.com/strata-db/strata/internal/model"
)

// Scenario is one scripted run: ingests applied in order, then a batch of
// corrections. It reuses the CLI document shapes, so anything a scenario
// expresses can also be fed to the strata binary unchanged.
type Scenario struct {
	// Name uniquely identifies this scenario; the golden snapshot is
	// stored under it.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Ingest lists batches with their value rows, applied in order.
	Ingest []cli.IngestDoc `yaml:"ingest"`

	// Updates lists corrections applied after all ingests, in one atomic
	// call.
	Updates []cli.UpdateItemDoc `yaml:"updates,omitempty"`
}

// LoadScenario reads a scenario definition from a YAML file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}

	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if s.Name == "" {
		return nil, fmt.Errorf("scenario %s has no name", path)
	}
	if len(s.Ingest) == 0 {
		return nil, fmt.Errorf("scenario %q has no ingests", s.Name)
	}
	return &s, nil
}

// Run applies the scenario against the harness's store.
func (s *Scenario) Run(ctx context.Context, h *Harness) error {
	for i, doc := range s.Ingest {
		batch, err := doc.Batch.ToBatch()
		if err != nil {
			return fmt.Errorf("ingest %d: %w", i, err)
		}

		series := make([]model.Series, len(doc.Values))
		rows := make([]model.ValueRow, len(doc.Values))
		for j, v := range doc.Values {
			series[j] = model.Series{
				Name:          v.Series.Name,
				Unit:          v.Series.Unit,
				Labels:        v.Series.Labels,
				Description:   v.Series.Description,
				Overlapping:   v.Series.Overlapping,
				RetentionTier: model.RetentionTier(v.Series.RetentionTier),
			}
			rows[j] = model.ValueRow{Value: v.Value}
			if rows[j].ValidTime, err = model.ParseTime(v.ValidTime); err != nil {
				return fmt.Errorf("ingest %d row %d: %w", i, j, err)
			}
			if v.ValidTimeEnd != "" {
				if rows[j].ValidTimeEnd, err = model.ParseTime(v.ValidTimeEnd); err != nil {
					return fmt.Errorf("ingest %d row %d: %w", i, j, err)
				}
			}
		}

		if _, err := h.Ingest(ctx, batch, series, rows); err != nil {
			return fmt.Errorf("ingest %d: %w", i, err)
		}
	}

	if len(s.Updates) == 0 {
		return nil
	}

	updates := make([]model.CellUpdate, len(s.Updates))
	for i, item := range s.Updates {
		u, err := item.ToCellUpdate(i)
		if err != nil {
			return err
		}
		updates[i] = u
	}
	if _, err := h.Store.Update(ctx, updates); err != nil {
		return fmt.Errorf("apply updates: %w", err)
	}
	return nil
}
