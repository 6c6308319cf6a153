package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/strata-db/strata/internal/model"
)

// Update applies a batch of tri-state cell updates atomically.
//
// The call runs in four stages, strictly in this order:
//
//  1. Validate every item statically. Any malformed item fails the whole
//     call before a single lock is taken.
//  2. Resolve every target to a cell key (value-id targets are looked up;
//     an unknown value id is a NotFoundError, again before any lock).
//  3. Lock the distinct cells in the total order over their typed keys.
//  4. Inside one transaction, merge each update against its cell's current
//     version, skip exact no-ops, and for real changes retire the current
//     version and insert its successor. Commit covers all items or none.
//
// A cell with no current version may be created through this path, but
// only when the update supplies Value explicitly (clear counts: it creates
// a cell holding null). Re-submitting an already-applied batch is safe:
// every item collapses to a no-op.
func (s *Store) Update(ctx context.Context, updates []model.CellUpdate) (model.UpdateResult, error) {
	res := emptyResult()
	if len(updates) == 0 {
		return res, nil
	}

	// Stage 1: static validation.
	for i, u := range updates {
		if !u.Target.Valid() {
			return res, validationf(i, "target", "exactly one of value_id or cell key must be given")
		}
		if u.Empty() {
			return res, validationf(i, "fields", "no updates supplied: provide at least one of value, annotation, tags")
		}
		if k, ok := u.Target.ByCellKey(); ok {
			if k.BatchID == uuid.Nil {
				return res, validationf(i, "batch_id", "must not be the zero UUID")
			}
			if k.SeriesID == uuid.Nil {
				return res, validationf(i, "series_id", "must not be the zero UUID")
			}
			if k.ValidTime.IsZero() {
				return res, validationf(i, "valid_time", "is required and must be an absolute instant")
			}
		}
	}

	// Stage 2: resolve targets to cells.
	cells := make([]model.CellKey, len(updates))
	for i, u := range updates {
		if id, ok := u.Target.ByValueID(); ok {
			k, err := s.cellForValueID(ctx, id)
			if err != nil {
				return res, err
			}
			cells[i] = k
		} else {
			k, _ := u.Target.ByCellKey()
			k.ValidTime = k.ValidTime.UTC()
			cells[i] = k
		}
	}

	// Stage 3: lock cells in deterministic order.
	release, err := s.cells.acquire(ctx, cells)
	if err != nil {
		return res, &RetryableError{Attempts: 1, Err: err}
	}
	defer release()

	// Stage 4: merge and write, all-or-nothing.
	err = s.withRetry(ctx, func() error {
		res = emptyResult()
		return s.applyUpdates(ctx, updates, cells, &res)
	})
	if err != nil {
		return emptyResult(), err
	}
	return res, nil
}

func emptyResult() model.UpdateResult {
	return model.UpdateResult{
		Updated:      []model.VersionRef{},
		SkippedNoOps: []model.CellKey{},
	}
}

func (s *Store) applyUpdates(ctx context.Context, updates []model.CellUpdate, cells []model.CellKey, res *model.UpdateResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("update: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	for i := range updates {
		if err := s.applyOne(ctx, tx, i, updates[i], cells[i], res); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("update: commit: %w", err)
	}
	return nil
}

func (s *Store) applyOne(ctx context.Context, tx *sql.Tx, idx int, u model.CellUpdate, cell model.CellKey, res *model.UpdateResult) error {
	cur, found, err := currentVersion(ctx, tx, cell)
	if err != nil {
		return err
	}

	if !found {
		if u.Value.State() == model.FieldUnset {
			return validationf(idx, "value",
				"cell has no current version; an explicit value (null allowed) is required to create it: %s", cell)
		}
		if err := s.checkCellRefs(ctx, tx, cell); err != nil {
			return err
		}
	}

	// Merge the tri-state fields against the current version. Both sides
	// of every comparison are in canonical form.
	var newValue *float64
	switch u.Value.State() {
	case model.FieldUnset:
		if found {
			newValue = cur.Value
		}
	case model.FieldClear:
		newValue = nil
	case model.FieldSet:
		v := u.Value.Value()
		newValue = &v
	}

	var newAnnotation string
	switch u.Annotation.State() {
	case model.FieldUnset:
		if found {
			newAnnotation = model.CanonicalAnnotation(cur.Annotation)
		}
	case model.FieldClear:
		newAnnotation = ""
	case model.FieldSet:
		newAnnotation = model.CanonicalAnnotation(u.Annotation.Value())
	}

	var newTags []string
	switch u.Tags.State() {
	case model.FieldUnset:
		if found {
			newTags = cur.Tags
		}
	case model.FieldClear:
		newTags = nil
	case model.FieldSet:
		newTags = model.CanonicalTags(u.Tags.Value())
	}

	if found &&
		floatPtrEqual(newValue, cur.Value) &&
		newAnnotation == model.CanonicalAnnotation(cur.Annotation) &&
		model.TagsEqual(newTags, cur.Tags) {
		res.SkippedNoOps = append(res.SkippedNoOps, cell)
		return nil
	}

	// Retire the current version and insert its successor. Both happen in
	// the caller's transaction, so there is no observable window with zero
	// or two current versions.
	var validTimeEnd any
	changedBy := nullString(u.ChangedBy)
	if found {
		validTimeEnd = encodeNullableTime(cur.ValidTimeEnd)
		if u.ChangedBy == "" {
			changedBy = nullString(cur.ChangedBy)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE versions SET is_current = 0 WHERE value_id = ?
		`, cur.ValueID); err != nil {
			return fmt.Errorf("update: retire version %d: %w", cur.ValueID, err)
		}
	}

	tagsJSON, err := model.EncodeTags(newTags)
	if err != nil {
		return fmt.Errorf("update: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO versions
		(batch_id, tenant_id, series_id, valid_time, valid_time_end,
		 value, annotation, tags, changed_by, change_time, is_current)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
	`,
		cell.BatchID.String(),
		cell.TenantID.String(),
		cell.SeriesID.String(),
		encodeTime(cell.ValidTime),
		validTimeEnd,
		nullFloat(newValue),
		nullString(newAnnotation),
		nullString(tagsJSON),
		changedBy,
		encodeTime(s.clock.Now()),
	)
	if err != nil {
		return fmt.Errorf("update: insert version: %w", err)
	}

	valueID, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("update: last insert id: %w", err)
	}

	res.Updated = append(res.Updated, model.VersionRef{ValueID: valueID, Cell: cell})
	return nil
}

// cellForValueID resolves a value-id target to the cell owning that
// version. Retired versions resolve too: the update addresses the cell,
// and the merge always runs against the cell's current version.
func (s *Store) cellForValueID(ctx context.Context, valueID int64) (model.CellKey, error) {
	var batchStr, tenantStr, seriesStr, validStr string
	err := s.db.QueryRowContext(ctx, `
		SELECT batch_id, tenant_id, series_id, valid_time
		FROM versions
		WHERE value_id = ?
	`, valueID).Scan(&batchStr, &tenantStr, &seriesStr, &validStr)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.CellKey{}, &NotFoundError{Kind: "value", Key: strconv.FormatInt(valueID, 10)}
		}
		return model.CellKey{}, fmt.Errorf("resolve value_id %d: %w", valueID, err)
	}

	batch, err := uuid.Parse(batchStr)
	if err != nil {
		return model.CellKey{}, fmt.Errorf("stored batch id %q: %w", batchStr, err)
	}
	tenant, err := uuid.Parse(tenantStr)
	if err != nil {
		return model.CellKey{}, fmt.Errorf("stored tenant id %q: %w", tenantStr, err)
	}
	series, err := uuid.Parse(seriesStr)
	if err != nil {
		return model.CellKey{}, fmt.Errorf("stored series id %q: %w", seriesStr, err)
	}
	valid, err := decodeTime(validStr)
	if err != nil {
		return model.CellKey{}, err
	}

	return model.CellKey{BatchID: batch, TenantID: tenant, SeriesID: series, ValidTime: valid}, nil
}

// checkCellRefs verifies that a cell about to be created references an
// existing batch and series, turning what would be an opaque foreign key
// failure into a NotFoundError.
func (s *Store) checkCellRefs(ctx context.Context, tx *sql.Tx, cell model.CellKey) error {
	var n int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM batches WHERE batch_id = ?`, cell.BatchID.String(),
	).Scan(&n); err != nil {
		return fmt.Errorf("check batch: %w", err)
	}
	if n == 0 {
		return &NotFoundError{Kind: "batch", Key: cell.BatchID.String()}
	}

	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM series WHERE series_id = ?`, cell.SeriesID.String(),
	).Scan(&n); err != nil {
		return fmt.Errorf("check series: %w", err)
	}
	if n == 0 {
		return &NotFoundError{Kind: "series", Key: cell.SeriesID.String()}
	}
	return nil
}

// currentVersion loads the current version of a cell, if one exists.
func currentVersion(ctx context.Context, tx *sql.Tx, cell model.CellKey) (model.Version, bool, error) {
	var (
		valueID             int64
		validEndStr         sql.NullString
		value               sql.NullFloat64
		annotation, tags    sql.NullString
		changedBy           sql.NullString
		changeStr           string
	)
	err := tx.QueryRowContext(ctx, `
		SELECT value_id, valid_time_end, value, annotation, tags, changed_by, change_time
		FROM versions
		WHERE batch_id = ? AND tenant_id = ? AND series_id = ? AND valid_time = ? AND is_current = 1
	`,
		cell.BatchID.String(),
		cell.TenantID.String(),
		cell.SeriesID.String(),
		encodeTime(cell.ValidTime),
	).Scan(&valueID, &validEndStr, &value, &annotation, &tags, &changedBy, &changeStr)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Version{}, false, nil
		}
		return model.Version{}, false, fmt.Errorf("load current version of %s: %w", cell, err)
	}

	validEnd, err := decodeNullableTime(validEndStr)
	if err != nil {
		return model.Version{}, false, err
	}
	changeTime, err := decodeTime(changeStr)
	if err != nil {
		return model.Version{}, false, err
	}
	decodedTags, err := model.DecodeTags(tags.String)
	if err != nil {
		return model.Version{}, false, fmt.Errorf("version %d: %w", valueID, err)
	}

	v := model.Version{
		ValueID:      valueID,
		Cell:         cell,
		ValidTimeEnd: validEnd,
		Annotation:   annotation.String,
		Tags:         decodedTags,
		ChangedBy:    changedBy.String,
		ChangeTime:   changeTime,
		IsCurrent:    true,
	}
	if value.Valid {
		f := value.Float64
		v.Value = &f
	}
	return v, true, nil
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	// Exact comparison, no epsilon: stored values are written from the
	// same float64 domain callers compare against.
	return *a == *b
}
