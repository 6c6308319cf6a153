package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/strata-db/strata/internal/model"
)

// CreateBatch records one ingestion batch in the ledger. Uses ON
// CONFLICT(batch_id) DO NOTHING, so retrying the same logical ingestion is
// safe: the first write wins and later calls are silently absorbed.
//
// StartTime is required; a zero start time fails validation before any
// I/O. KnownTime defaults to the clock's now when zero.
func (s *Store) CreateBatch(ctx context.Context, b model.Batch) error {
	if b.ID == uuid.Nil {
		return validationf(-1, "batch_id", "must not be the zero UUID")
	}
	if b.StartTime.IsZero() {
		return validationf(-1, "batch_start_time", "is required and must be an absolute instant")
	}
	if !b.FinishTime.IsZero() && b.FinishTime.Before(b.StartTime) {
		return validationf(-1, "batch_finish_time", "must not be before batch_start_time")
	}

	knownTime := b.KnownTime
	if knownTime.IsZero() {
		knownTime = s.clock.Now()
	}

	var paramsJSON any
	if b.Params != nil {
		data, err := json.Marshal(b.Params)
		if err != nil {
			return validationf(-1, "params", "not representable as JSON: %v", err)
		}
		paramsJSON = string(data)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO batches
		(batch_id, tenant_id, workflow_id, batch_start_time, batch_finish_time, known_time, params)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(batch_id) DO NOTHING
	`,
		b.ID.String(),
		b.TenantID.String(),
		nullString(b.WorkflowID),
		encodeTime(b.StartTime),
		encodeNullableTime(b.FinishTime),
		encodeTime(knownTime),
		paramsJSON,
	)
	if err != nil {
		return fmt.Errorf("create batch: %w", err)
	}
	return nil
}

// GetBatch retrieves one batch by id.
func (s *Store) GetBatch(ctx context.Context, id uuid.UUID) (model.Batch, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT batch_id, tenant_id, workflow_id, batch_start_time, batch_finish_time, known_time, params
		FROM batches
		WHERE batch_id = ?
	`, id.String())

	b, err := scanBatch(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Batch{}, &NotFoundError{Kind: "batch", Key: id.String()}
		}
		return model.Batch{}, err
	}
	return b, nil
}

func scanBatch(row scanner) (model.Batch, error) {
	var (
		idStr, tenantStr, startStr, knownStr string
		workflow, finishStr, paramsJSON      sql.NullString
	)
	if err := row.Scan(&idStr, &tenantStr, &workflow, &startStr, &finishStr, &knownStr, &paramsJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Batch{}, err
		}
		return model.Batch{}, fmt.Errorf("scan batch: %w", err)
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return model.Batch{}, fmt.Errorf("stored batch id %q: %w", idStr, err)
	}
	tenant, err := uuid.Parse(tenantStr)
	if err != nil {
		return model.Batch{}, fmt.Errorf("stored tenant id %q: %w", tenantStr, err)
	}
	start, err := decodeTime(startStr)
	if err != nil {
		return model.Batch{}, err
	}
	finish, err := decodeNullableTime(finishStr)
	if err != nil {
		return model.Batch{}, err
	}
	known, err := decodeTime(knownStr)
	if err != nil {
		return model.Batch{}, err
	}

	var params map[string]any
	if paramsJSON.Valid && paramsJSON.String != "" {
		if err := json.Unmarshal([]byte(paramsJSON.String), &params); err != nil {
			return model.Batch{}, fmt.Errorf("batch %s params: %w", idStr, err)
		}
	}

	return model.Batch{
		ID:         id,
		TenantID:   tenant,
		WorkflowID: workflow.String,
		StartTime:  start,
		FinishTime: finish,
		KnownTime:  known,
		Params:     params,
	}, nil
}
