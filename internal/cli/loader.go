package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/strata-db/strata/internal/model"
)

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric    = "E001" // Generic/unknown error
	ErrCodeBadFile    = "E002" // Input file unreadable
	ErrCodeBadYAML    = "E003" // YAML parse failure
	ErrCodeBadField   = "E004" // Field fails domain validation
	ErrCodeNotFound   = "E005" // Referenced entity does not exist
	ErrCodeContention = "E006" // Transaction retries exhausted
)

// IngestDoc is the YAML document accepted by `strata insert`: one batch
// description plus the value rows recorded under it. Series are given by
// identity, not id; unknown identities are registered on the fly.
type IngestDoc struct {
	Batch  BatchDoc   `yaml:"batch"`
	Values []ValueDoc `yaml:"values"`
}

// BatchDoc describes the ingestion batch. BatchID is optional; when absent
// a fresh UUID is generated, which makes the document single-use. Supplying
// it keeps re-runs of the same document idempotent.
type BatchDoc struct {
	BatchID    string         `yaml:"batch_id"`
	TenantID   string         `yaml:"tenant_id"`
	WorkflowID string         `yaml:"workflow_id"`
	StartTime  string         `yaml:"batch_start_time"`
	FinishTime string         `yaml:"batch_finish_time"`
	KnownTime  string         `yaml:"known_time"`
	Params     map[string]any `yaml:"params"`
}

// SeriesDoc identifies a series by (name, labels) and carries the metadata
// used if the series has to be registered.
type SeriesDoc struct {
	Name          string            `yaml:"name"`
	Unit          string            `yaml:"unit"`
	Labels        map[string]string `yaml:"labels"`
	Description   string            `yaml:"description"`
	Overlapping   bool              `yaml:"overlapping"`
	RetentionTier string            `yaml:"retention_tier"`
}

// ValueDoc is one value row. A YAML null (or absent) value records an
// explicit null: the fact that nothing was measured is itself stored.
type ValueDoc struct {
	Series       SeriesDoc `yaml:"series"`
	ValidTime    string    `yaml:"valid_time"`
	ValidTimeEnd string    `yaml:"valid_time_end"`
	Value        *float64  `yaml:"value"`
}

// UpdateDoc is the YAML document accepted by `strata update`.
type UpdateDoc struct {
	Updates []UpdateItemDoc `yaml:"updates"`
}

// CellDoc addresses a cell by its full key. TenantID defaults to the
// all-zeros tenant when absent.
type CellDoc struct {
	BatchID   string `yaml:"batch_id"`
	TenantID  string `yaml:"tenant_id"`
	SeriesID  string `yaml:"series_id"`
	ValidTime string `yaml:"valid_time"`
}

// UpdateItemDoc is one update entry. The value, annotation and tags fields
// are tri-state, read off the YAML node structure directly: a key that is
// absent leaves the stored field unchanged, an explicit null clears it, and
// anything else sets it. No sentinel value is reserved.
type UpdateItemDoc struct {
	ValueID   *int64
	Cell      *CellDoc
	ChangedBy string

	Value      model.Field[float64]
	Annotation model.Field[string]
	Tags       model.Field[[]string]
}

// UnmarshalYAML implements tri-state decoding over the raw mapping node.
func (u *UpdateItemDoc) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: update entry must be a mapping", node.Line)
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		val := node.Content[i+1]

		switch key {
		case "value_id":
			var id int64
			if err := val.Decode(&id); err != nil {
				return fmt.Errorf("line %d: value_id: %w", val.Line, err)
			}
			u.ValueID = &id
		case "cell":
			var c CellDoc
			if err := val.Decode(&c); err != nil {
				return fmt.Errorf("line %d: cell: %w", val.Line, err)
			}
			u.Cell = &c
		case "changed_by":
			if err := val.Decode(&u.ChangedBy); err != nil {
				return fmt.Errorf("line %d: changed_by: %w", val.Line, err)
			}
		case "value":
			if isNullNode(val) {
				u.Value = model.Clear[float64]()
				continue
			}
			var f float64
			if err := val.Decode(&f); err != nil {
				return fmt.Errorf("line %d: value: %w", val.Line, err)
			}
			u.Value = model.Set(f)
		case "annotation":
			if isNullNode(val) {
				u.Annotation = model.Clear[string]()
				continue
			}
			var s string
			if err := val.Decode(&s); err != nil {
				return fmt.Errorf("line %d: annotation: %w", val.Line, err)
			}
			u.Annotation = model.Set(s)
		case "tags":
			if isNullNode(val) {
				u.Tags = model.Clear[[]string]()
				continue
			}
			var tags []string
			if err := val.Decode(&tags); err != nil {
				return fmt.Errorf("line %d: tags: %w", val.Line, err)
			}
			u.Tags = model.Set(tags)
		default:
			return fmt.Errorf("line %d: unknown field %q in update entry", node.Content[i].Line, key)
		}
	}
	return nil
}

func isNullNode(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && n.Tag == "!!null"
}

// LoadIngestFile reads and decodes an insert document.
func LoadIngestFile(path string) (*IngestDoc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("%s: cannot read %s", ErrCodeBadFile, path), err)
	}

	var doc IngestDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("%s: cannot parse %s", ErrCodeBadYAML, path), err)
	}
	if len(doc.Values) == 0 {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("%s: %s has no values", ErrCodeBadField, path))
	}
	return &doc, nil
}

// LoadUpdateFile reads and decodes an update document.
func LoadUpdateFile(path string) (*UpdateDoc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("%s: cannot read %s", ErrCodeBadFile, path), err)
	}

	var doc UpdateDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("%s: cannot parse %s", ErrCodeBadYAML, path), err)
	}
	if len(doc.Updates) == 0 {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("%s: %s has no updates", ErrCodeBadField, path))
	}
	return &doc, nil
}

// ToBatch converts the document's batch section, generating an id when
// the document does not pin one.
func (d BatchDoc) ToBatch() (model.Batch, error) {
	b := model.Batch{
		ID:         uuid.Must(uuid.NewV7()),
		TenantID:   model.DefaultTenant,
		WorkflowID: d.WorkflowID,
		Params:     d.Params,
	}

	var err error
	if d.BatchID != "" {
		if b.ID, err = uuid.Parse(d.BatchID); err != nil {
			return b, fmt.Errorf("batch_id %q: %w", d.BatchID, err)
		}
	}
	if d.TenantID != "" {
		if b.TenantID, err = uuid.Parse(d.TenantID); err != nil {
			return b, fmt.Errorf("tenant_id %q: %w", d.TenantID, err)
		}
	}
	if b.StartTime, err = parseOptionalTime("batch_start_time", d.StartTime); err != nil {
		return b, err
	}
	if b.FinishTime, err = parseOptionalTime("batch_finish_time", d.FinishTime); err != nil {
		return b, err
	}
	if b.KnownTime, err = parseOptionalTime("known_time", d.KnownTime); err != nil {
		return b, err
	}
	return b, nil
}

// ToCellUpdate converts one document entry to the engine's form.
func (u UpdateItemDoc) ToCellUpdate(index int) (model.CellUpdate, error) {
	out := model.CellUpdate{
		Value:      u.Value,
		Annotation: u.Annotation,
		Tags:       u.Tags,
		ChangedBy:  u.ChangedBy,
	}

	switch {
	case u.ValueID != nil && u.Cell != nil:
		return out, fmt.Errorf("update %d: give value_id or cell, not both", index)
	case u.ValueID != nil:
		out.Target = model.TargetValueID(*u.ValueID)
	case u.Cell != nil:
		key, err := u.Cell.ToCellKey()
		if err != nil {
			return out, fmt.Errorf("update %d: %w", index, err)
		}
		out.Target = model.TargetCell(key)
	default:
		return out, fmt.Errorf("update %d: no target: give value_id or cell", index)
	}
	return out, nil
}

// ToCellKey parses the document form into a typed cell key.
func (c CellDoc) ToCellKey() (model.CellKey, error) {
	batch, err := uuid.Parse(c.BatchID)
	if err != nil {
		return model.CellKey{}, fmt.Errorf("batch_id %q: %w", c.BatchID, err)
	}
	tenant := model.DefaultTenant
	if c.TenantID != "" {
		if tenant, err = uuid.Parse(c.TenantID); err != nil {
			return model.CellKey{}, fmt.Errorf("tenant_id %q: %w", c.TenantID, err)
		}
	}
	series, err := uuid.Parse(c.SeriesID)
	if err != nil {
		return model.CellKey{}, fmt.Errorf("series_id %q: %w", c.SeriesID, err)
	}
	valid, err := model.ParseTime(c.ValidTime)
	if err != nil {
		return model.CellKey{}, err
	}
	return model.CellKey{BatchID: batch, TenantID: tenant, SeriesID: series, ValidTime: valid}, nil
}

// parseOptionalTime parses a timestamp string, treating empty as zero.
func parseOptionalTime(field, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := model.ParseTime(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", field, err)
	}
	return t, nil
}
