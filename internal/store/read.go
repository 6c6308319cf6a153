package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/strata-db/strata/internal/model"
)

// ReadQuery filters both projections. Zero-valued fields are not applied;
// time ranges are half-open ([from, to)).
type ReadQuery struct {
	TenantID  *uuid.UUID
	SeriesIDs []uuid.UUID

	ValidFrom time.Time
	ValidTo   time.Time
	KnownFrom time.Time
	KnownTo   time.Time

	// AllVersions includes retired versions, ordered for audit inspection
	// (ascending value_id within a cell). Honored by the overlapping
	// projection, which is the audit surface; the flat projection always
	// answers with current versions only.
	AllVersions bool
}

// ReadRow is one projection row: a version joined with its batch's
// knowledge time and its series' key and canonical unit.
type ReadRow struct {
	ValueID      int64     `json:"value_id"`
	BatchID      uuid.UUID `json:"batch_id"`
	TenantID     uuid.UUID `json:"tenant_id"`
	SeriesID     uuid.UUID `json:"series_id"`
	ValidTime    time.Time `json:"valid_time"`
	ValidTimeEnd time.Time `json:"valid_time_end,omitzero"`
	Value        *float64  `json:"value"`
	Annotation   string    `json:"annotation,omitempty"`
	Tags         []string  `json:"tags,omitempty"`
	ChangedBy    string    `json:"changed_by,omitempty"`
	ChangeTime   time.Time `json:"change_time"`
	IsCurrent    bool      `json:"is_current"`
	KnownTime    time.Time `json:"known_time"`
	SeriesKey    string    `json:"series_key"`
	Unit         string    `json:"unit"`
}

// ReadFlat answers "what is the best-known value right now": one row per
// (valid_time, series_id) pair, taken from the batch with the greatest
// known_time among all current versions covering the pair. Batches sharing
// a known_time tie-break on insertion order, most recent first, so the
// winner is deterministic.
func (s *Store) ReadFlat(ctx context.Context, q ReadQuery) ([]ReadRow, error) {
	where, args := buildVersionFilters(q, true)

	query := `
		SELECT value_id, batch_id, tenant_id, series_id, valid_time, valid_time_end,
		       value, annotation, tags, changed_by, change_time, is_current, known_time
		FROM (
			SELECT v.value_id, v.batch_id, v.tenant_id, v.series_id,
			       v.valid_time, v.valid_time_end, v.value, v.annotation,
			       v.tags, v.changed_by, v.change_time, v.is_current,
			       b.known_time,
			       ROW_NUMBER() OVER (
			           PARTITION BY v.series_id, v.valid_time
			           ORDER BY b.known_time DESC, b.rowid DESC
			       ) AS rn
			FROM versions v
			JOIN batches b ON v.batch_id = b.batch_id
			` + where + `
		)
		WHERE rn = 1
		ORDER BY valid_time, series_id
	`

	return s.queryProjection(ctx, query, args)
}

// ReadOverlapping answers "how did the estimate for each instant evolve":
// every current version across all batches, one row per
// (known_time, valid_time, series_id) revision. With AllVersions, retired
// versions are included too, ordered within a cell by ascending value_id
// so the correction history reads top to bottom.
func (s *Store) ReadOverlapping(ctx context.Context, q ReadQuery) ([]ReadRow, error) {
	where, args := buildVersionFilters(q, !q.AllVersions)

	query := `
		SELECT v.value_id, v.batch_id, v.tenant_id, v.series_id,
		       v.valid_time, v.valid_time_end, v.value, v.annotation,
		       v.tags, v.changed_by, v.change_time, v.is_current,
		       b.known_time
		FROM versions v
		JOIN batches b ON v.batch_id = b.batch_id
		` + where + `
		ORDER BY b.known_time, v.valid_time, v.series_id, v.value_id
	`

	return s.queryProjection(ctx, query, args)
}

// buildVersionFilters assembles the shared WHERE clause for projection
// queries.
func buildVersionFilters(q ReadQuery, currentOnly bool) (string, []any) {
	var filters []string
	var args []any

	if currentOnly {
		filters = append(filters, "v.is_current = 1")
	}
	if q.TenantID != nil {
		filters = append(filters, "v.tenant_id = ?")
		args = append(args, q.TenantID.String())
	}
	if len(q.SeriesIDs) > 0 {
		placeholders := make([]string, len(q.SeriesIDs))
		for i, id := range q.SeriesIDs {
			placeholders[i] = "?"
			args = append(args, id.String())
		}
		filters = append(filters, "v.series_id IN ("+strings.Join(placeholders, ",")+")")
	}
	if !q.ValidFrom.IsZero() {
		filters = append(filters, "v.valid_time >= ?")
		args = append(args, encodeTime(q.ValidFrom))
	}
	if !q.ValidTo.IsZero() {
		filters = append(filters, "v.valid_time < ?")
		args = append(args, encodeTime(q.ValidTo))
	}
	if !q.KnownFrom.IsZero() {
		filters = append(filters, "b.known_time >= ?")
		args = append(args, encodeTime(q.KnownFrom))
	}
	if !q.KnownTo.IsZero() {
		filters = append(filters, "b.known_time < ?")
		args = append(args, encodeTime(q.KnownTo))
	}

	if len(filters) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(filters, " AND "), args
}

func (s *Store) queryProjection(ctx context.Context, query string, args []any) ([]ReadRow, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query projection: %w", err)
	}
	defer rows.Close()

	out := []ReadRow{}
	for rows.Next() {
		r, err := scanReadRow(rows)
		if err != nil {
			return nil, err
		}

		// Join through the registry. A version whose series cannot be
		// resolved is an error, never a silently dropped row.
		sr, err := s.SeriesInfo(ctx, r.SeriesID)
		if err != nil {
			return nil, fmt.Errorf("projection row value_id=%d: %w", r.ValueID, err)
		}
		r.SeriesKey = sr.Key()
		r.Unit = sr.Unit

		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projection: %w", err)
	}

	return out, nil
}

func scanReadRow(rows *sql.Rows) (ReadRow, error) {
	var (
		batchStr, tenantStr, seriesStr  string
		validStr, changeStr, knownStr   string
		validEndStr                     sql.NullString
		value                           sql.NullFloat64
		annotation, tagsJSON, changedBy sql.NullString
		isCurrent                       int
		r                               ReadRow
	)
	if err := rows.Scan(
		&r.ValueID, &batchStr, &tenantStr, &seriesStr, &validStr, &validEndStr,
		&value, &annotation, &tagsJSON, &changedBy, &changeStr, &isCurrent, &knownStr,
	); err != nil {
		return ReadRow{}, fmt.Errorf("scan projection row: %w", err)
	}

	var err error
	if r.BatchID, err = uuid.Parse(batchStr); err != nil {
		return ReadRow{}, fmt.Errorf("stored batch id %q: %w", batchStr, err)
	}
	if r.TenantID, err = uuid.Parse(tenantStr); err != nil {
		return ReadRow{}, fmt.Errorf("stored tenant id %q: %w", tenantStr, err)
	}
	if r.SeriesID, err = uuid.Parse(seriesStr); err != nil {
		return ReadRow{}, fmt.Errorf("stored series id %q: %w", seriesStr, err)
	}
	if r.ValidTime, err = decodeTime(validStr); err != nil {
		return ReadRow{}, err
	}
	if r.ValidTimeEnd, err = decodeNullableTime(validEndStr); err != nil {
		return ReadRow{}, err
	}
	if r.ChangeTime, err = decodeTime(changeStr); err != nil {
		return ReadRow{}, err
	}
	if r.KnownTime, err = decodeTime(knownStr); err != nil {
		return ReadRow{}, err
	}
	if r.Tags, err = model.DecodeTags(tagsJSON.String); err != nil {
		return ReadRow{}, fmt.Errorf("version %d: %w", r.ValueID, err)
	}

	if value.Valid {
		f := value.Float64
		r.Value = &f
	}
	r.Annotation = annotation.String
	r.ChangedBy = changedBy.String
	r.IsCurrent = isCurrent != 0

	return r, nil
}
