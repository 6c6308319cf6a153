package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/strata-db/strata/internal/model"
)

// InsertValues inserts value rows as new cells under an existing batch.
// The batch supplies the tenant; every row becomes the first (current)
// version of its cell.
//
// Every row is validated before anything is written; one malformed row
// fails the whole call with nothing applied. Rows whose cell key already
// exists are silently ignored: first write wins, and corrections go
// through the update protocol rather than re-insertion. Returns the number
// of rows actually inserted.
func (s *Store) InsertValues(ctx context.Context, batchID uuid.UUID, rows []model.ValueRow) (int, error) {
	if batchID == uuid.Nil {
		return 0, validationf(-1, "batch_id", "must not be the zero UUID")
	}
	for i, r := range rows {
		if r.SeriesID == uuid.Nil {
			return 0, validationf(i, "series_id", "must not be the zero UUID")
		}
		if r.ValidTime.IsZero() {
			return 0, validationf(i, "valid_time", "is required and must be an absolute instant")
		}
		if !r.ValidTimeEnd.IsZero() && !r.ValidTimeEnd.After(r.ValidTime) {
			return 0, validationf(i, "valid_time_end", "must be strictly after valid_time")
		}
	}
	if len(rows) == 0 {
		return 0, nil
	}

	batch, err := s.GetBatch(ctx, batchID)
	if err != nil {
		return 0, err
	}

	changeTime := encodeTime(s.clock.Now())

	var inserted int
	err = s.withRetry(ctx, func() error {
		inserted = 0

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("insert values: begin tx: %w", err)
		}
		defer tx.Rollback() // No-op if committed

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO versions
			(batch_id, tenant_id, series_id, valid_time, valid_time_end, value, change_time, is_current)
			VALUES (?, ?, ?, ?, ?, ?, ?, 1)
			ON CONFLICT DO NOTHING
		`)
		if err != nil {
			return fmt.Errorf("insert values: prepare: %w", err)
		}
		defer stmt.Close()

		for _, r := range rows {
			res, err := stmt.ExecContext(ctx,
				batch.ID.String(),
				batch.TenantID.String(),
				r.SeriesID.String(),
				encodeTime(r.ValidTime),
				encodeNullableTime(r.ValidTimeEnd),
				nullFloat(r.Value),
				changeTime,
			)
			if err != nil {
				return fmt.Errorf("insert values: %w", err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("insert values: rows affected: %w", err)
			}
			inserted += int(n)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("insert values: commit: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

func nullFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
