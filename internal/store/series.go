package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/strata-db/strata/internal/model"
)

// SeriesFilter selects series in ResolveSeries. Zero-valued fields are not
// applied. Labels is a subset match: a series matches when its label map
// contains every filter pair.
type SeriesFilter struct {
	ID     *uuid.UUID
	Name   string
	Unit   string
	Labels map[string]string
}

// CreateOrGetSeries returns the series identified by (name, labels),
// creating it if it does not exist. The call is idempotent: when the
// identity already exists its id is returned unchanged, and a requested
// unit differing from the stored one is silently ignored in favor of the
// stored unit (unit is not part of series identity).
//
// Two concurrent calls for the same new identity race safely on the
// (name, labels) uniqueness constraint: one insert wins, the loser falls
// back to a lookup and returns the winner's row.
func (s *Store) CreateOrGetSeries(ctx context.Context, spec model.Series) (model.Series, error) {
	name := strings.TrimSpace(spec.Name)
	if name == "" {
		return model.Series{}, validationf(-1, "name", "must not be empty")
	}
	unit := strings.TrimSpace(spec.Unit)
	if unit == "" {
		return model.Series{}, validationf(-1, "unit", "must not be empty")
	}
	tier := spec.RetentionTier
	if tier == "" {
		tier = model.RetentionMedium
	}
	if !model.ValidRetentionTiers[tier] {
		return model.Series{}, validationf(-1, "retention_tier", "must be one of short, medium, long, got %q", tier)
	}

	labelsJSON, err := model.CanonicalLabels(spec.Labels)
	if err != nil {
		return model.Series{}, validationf(-1, "labels", "%v", err)
	}

	existing, found, err := s.lookupSeriesByIdentity(ctx, name, labelsJSON)
	if err != nil {
		return model.Series{}, err
	}
	if found {
		s.cacheSeries(existing)
		return existing, nil
	}

	created := model.Series{
		ID:            spec.ID,
		Name:          name,
		Unit:          unit,
		Labels:        spec.Labels,
		Description:   strings.TrimSpace(spec.Description),
		Overlapping:   spec.Overlapping,
		RetentionTier: tier,
	}
	if created.ID == uuid.Nil {
		// UUIDv7: time-sortable ids, helpful when eyeballing the registry.
		created.ID = uuid.Must(uuid.NewV7())
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO series
		(series_id, name, unit, labels, description, overlapping, retention_tier, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		created.ID.String(),
		created.Name,
		created.Unit,
		labelsJSON,
		nullString(created.Description),
		boolToInt(created.Overlapping),
		string(created.RetentionTier),
		encodeTime(s.clock.Now()),
	)
	if err != nil {
		// Lost the creation race: another writer inserted the same
		// (name, labels) first. Recover by returning their row.
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			winner, found, lerr := s.lookupSeriesByIdentity(ctx, name, labelsJSON)
			if lerr != nil {
				return model.Series{}, lerr
			}
			if found {
				s.cacheSeries(winner)
				return winner, nil
			}
		}
		return model.Series{}, fmt.Errorf("create series: %w", err)
	}

	s.cacheSeries(created)
	return created, nil
}

// ResolveSeries returns every series matching the filter, ordered by
// name, unit, series id.
func (s *Store) ResolveSeries(ctx context.Context, f SeriesFilter) ([]model.Series, error) {
	var filters []string
	var args []any

	if f.ID != nil {
		filters = append(filters, "series_id = ?")
		args = append(args, f.ID.String())
	}
	if f.Name != "" {
		filters = append(filters, "name = ?")
		args = append(args, f.Name)
	}
	if f.Unit != "" {
		filters = append(filters, "unit = ?")
		args = append(args, f.Unit)
	}

	query := `
		SELECT series_id, name, unit, labels, description, overlapping, retention_tier
		FROM series
	`
	if len(filters) > 0 {
		query += " WHERE " + strings.Join(filters, " AND ")
	}
	query += " ORDER BY name, unit, series_id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query series: %w", err)
	}
	defer rows.Close()

	var out []model.Series
	for rows.Next() {
		sr, err := scanSeries(rows)
		if err != nil {
			return nil, err
		}
		if !labelsContain(sr.Labels, f.Labels) {
			continue
		}
		s.cacheSeries(sr)
		out = append(out, sr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate series: %w", err)
	}

	if out == nil {
		out = []model.Series{}
	}
	return out, nil
}

// SeriesInfo returns the full metadata for one series id. The registry
// cache answers repeat lookups without a round trip; entries never expire
// and are only ever added, since series identity and canonical unit are
// immutable after creation.
func (s *Store) SeriesInfo(ctx context.Context, id uuid.UUID) (model.Series, error) {
	if sr, ok := s.cachedSeries(id); ok {
		return sr, nil
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT series_id, name, unit, labels, description, overlapping, retention_tier
		FROM series
		WHERE series_id = ?
	`, id.String())

	sr, err := scanSeries(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Series{}, &NotFoundError{Kind: "series", Key: id.String()}
		}
		return model.Series{}, err
	}
	s.cacheSeries(sr)
	return sr, nil
}

func (s *Store) lookupSeriesByIdentity(ctx context.Context, name, labelsJSON string) (model.Series, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT series_id, name, unit, labels, description, overlapping, retention_tier
		FROM series
		WHERE name = ? AND labels = ?
	`, name, labelsJSON)

	sr, err := scanSeries(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Series{}, false, nil
		}
		return model.Series{}, false, err
	}
	return sr, true, nil
}

func (s *Store) cacheSeries(sr model.Series) {
	s.seriesMu.Lock()
	s.seriesCache[sr.ID] = sr
	s.seriesMu.Unlock()
}

func (s *Store) cachedSeries(id uuid.UUID) (model.Series, bool) {
	s.seriesMu.RLock()
	sr, ok := s.seriesCache[id]
	s.seriesMu.RUnlock()
	return sr, ok
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanSeries(row scanner) (model.Series, error) {
	var (
		idStr, name, unit, labelsJSON, tier string
		description                         sql.NullString
		overlapping                         int
	)
	if err := row.Scan(&idStr, &name, &unit, &labelsJSON, &description, &overlapping, &tier); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Series{}, err
		}
		return model.Series{}, fmt.Errorf("scan series: %w", err)
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return model.Series{}, fmt.Errorf("stored series id %q: %w", idStr, err)
	}
	labels, err := model.ParseLabels(labelsJSON)
	if err != nil {
		return model.Series{}, fmt.Errorf("series %s: %w", idStr, err)
	}

	return model.Series{
		ID:            id,
		Name:          name,
		Unit:          unit,
		Labels:        labels,
		Description:   description.String,
		Overlapping:   overlapping != 0,
		RetentionTier: model.RetentionTier(tier),
	}, nil
}

// labelsContain reports whether have contains every pair in want.
func labelsContain(have, want map[string]string) bool {
	for k, v := range want {
		if have[k] != v {
			return false
		}
	}
	return true
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
