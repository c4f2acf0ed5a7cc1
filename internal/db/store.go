package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/hpungsan/tempo/internal/errors"
	"github.com/hpungsan/tempo/internal/snapshot"
)

// snapshotColumns is the column list used by every snapshot SELECT.
const snapshotColumns = `id, project, summary, tags_json, created_at,
	action_type, rationale, caused_by, tier, last_accessed, access_count,
	prediction_score, last_predicted, reasons_json`

// GetByID retrieves a snapshot by its ULID.
func (db *DB) GetByID(ctx context.Context, id string) (*snapshot.Snapshot, error) {
	row := db.sql.QueryRowContext(ctx,
		`SELECT `+snapshotColumns+` FROM snapshots WHERE id = ?`, id)

	s, err := scanSnapshot(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return s, nil
}

// FindByProject returns snapshots in a project, most recent first.
// An empty project means all projects; a limit of 0 means no limit.
func (db *DB) FindByProject(ctx context.Context, project string, limit int) ([]snapshot.Snapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM snapshots`
	var args []any
	if project != "" {
		query += ` WHERE project = ?`
		args = append(args, project)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.sql.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	return scanSnapshots(rows)
}

// Save upserts a snapshot by id.
func (db *DB) Save(ctx context.Context, s *snapshot.Snapshot) error {
	tagsJSON, err := marshalStrings(s.Tags)
	if err != nil {
		return errors.NewInternal(err)
	}
	reasonsJSON, err := marshalStrings(s.Reasons)
	if err != nil {
		return errors.NewInternal(err)
	}

	tier := s.Tier
	if tier == "" {
		tier = snapshot.TierFor(s.LastAccessed, time.Now())
	}

	_, err = db.sql.ExecContext(ctx, `
		INSERT INTO snapshots (
			id, project, summary, tags_json, created_at,
			action_type, rationale, caused_by, tier, last_accessed, access_count,
			prediction_score, last_predicted, reasons_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			project = excluded.project,
			summary = excluded.summary,
			tags_json = excluded.tags_json,
			action_type = excluded.action_type,
			rationale = excluded.rationale,
			caused_by = excluded.caused_by,
			tier = excluded.tier,
			last_accessed = excluded.last_accessed,
			access_count = excluded.access_count,
			prediction_score = excluded.prediction_score,
			last_predicted = excluded.last_predicted,
			reasons_json = excluded.reasons_json
	`,
		s.ID, s.Project, toNullString(s.Summary), tagsJSON, s.CreatedAt.Unix(),
		toNullString(string(s.ActionType)), toNullString(s.Rationale), toNullString(s.CausedBy),
		string(tier), toNullTime(s.LastAccessed), s.AccessCount,
		toNullFloat(s.PredictionScore), toNullTime(s.LastPredicted), reasonsJSON,
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	s.Tier = tier
	return nil
}

// UpdateAccessTracking sets last_accessed, increments access_count, and
// refreshes the cached tier.
func (db *DB) UpdateAccessTracking(ctx context.Context, id string, now time.Time) error {
	// A just-accessed snapshot classifies from now, so the cached tier
	// can be refreshed in the same statement.
	res, err := db.sql.ExecContext(ctx, `
		UPDATE snapshots SET last_accessed = ?, access_count = access_count + 1, tier = ?
		WHERE id = ?
	`, now.Unix(), string(snapshot.TierFor(&now, now)), id)
	if err != nil {
		return errors.NewInternal(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewNotFound(id)
	}
	return nil
}

// UpdateTier refreshes the cached tier column.
func (db *DB) UpdateTier(ctx context.Context, id string, tier snapshot.Tier) error {
	res, err := db.sql.ExecContext(ctx,
		`UPDATE snapshots SET tier = ? WHERE id = ?`, string(tier), id)
	if err != nil {
		return errors.NewInternal(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewNotFound(id)
	}
	return nil
}

// UpdatePrediction persists a freshly computed score, its reasons, and
// the prediction instant.
func (db *DB) UpdatePrediction(ctx context.Context, id string, score float64, reasons []string, at time.Time) error {
	reasonsJSON, err := marshalStrings(reasons)
	if err != nil {
		return errors.NewInternal(err)
	}

	res, err := db.sql.ExecContext(ctx, `
		UPDATE snapshots SET prediction_score = ?, last_predicted = ?, reasons_json = ?
		WHERE id = ?
	`, score, at.Unix(), reasonsJSON, id)
	if err != nil {
		return errors.NewInternal(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewNotFound(id)
	}
	return nil
}

// DeleteByID removes one snapshot.
func (db *DB) DeleteByID(ctx context.Context, id string) error {
	_, err := db.sql.ExecContext(ctx, `DELETE FROM snapshots WHERE id = ?`, id)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// DeleteIfInTier removes one snapshot only if its last_accessed recency
// still classifies it into the given tier as of now. The re-check lives
// in the DELETE's WHERE clause, so a concurrent access between candidate
// selection and deletion makes the delete a no-op.
func (db *DB) DeleteIfInTier(ctx context.Context, id string, tier snapshot.Tier, now time.Time) (bool, error) {
	where, args := tierWhere(tier, now)
	res, err := db.sql.ExecContext(ctx,
		`DELETE FROM snapshots WHERE id = ? AND `+where,
		append([]any{id}, args...)...)
	if err != nil {
		return false, errors.NewInternal(err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// DeleteWhere bulk-deletes snapshots classified into the given tier as
// of now. Classification is by last_accessed recency (snapshot.TierWindow),
// not by the cached tier column, so a stale cache can never widen a delete.
func (db *DB) DeleteWhere(ctx context.Context, project string, tier snapshot.Tier, now time.Time) (int, error) {
	where, args := tierWhere(tier, now)
	query := `DELETE FROM snapshots WHERE ` + where
	if project != "" {
		query += ` AND project = ?`
		args = append(args, project)
	}

	res, err := db.sql.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// CountChildren returns how many snapshots name the given id as their cause.
func (db *DB) CountChildren(ctx context.Context, id string) (int, error) {
	var count int
	err := db.sql.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM snapshots WHERE caused_by = ?`, id).Scan(&count)
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	return count, nil
}

// LeastRecentlyUsed returns snapshots classified into the given tier as
// of now, oldest access first with never-accessed first, capped at limit.
func (db *DB) LeastRecentlyUsed(ctx context.Context, project string, tier snapshot.Tier, limit int, now time.Time) ([]snapshot.Snapshot, error) {
	where, args := tierWhere(tier, now)
	query := `SELECT ` + snapshotColumns + ` FROM snapshots WHERE ` + where
	if project != "" {
		query += ` AND project = ?`
		args = append(args, project)
	}
	query += ` ORDER BY last_accessed IS NOT NULL, last_accessed ASC, id ASC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.sql.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	return scanSnapshots(rows)
}

// tierWhere builds the last_accessed range predicate for a tier.
func tierWhere(tier snapshot.Tier, now time.Time) (string, []any) {
	from, to, includeNever := snapshot.TierWindow(tier, now)

	var clauses string
	var args []any
	switch {
	case from != nil && to != nil:
		clauses = `last_accessed > ? AND last_accessed <= ?`
		args = append(args, from.Unix(), to.Unix())
	case from != nil:
		clauses = `last_accessed > ?`
		args = append(args, from.Unix())
	default:
		clauses = `last_accessed <= ?`
		args = append(args, to.Unix())
	}

	if includeNever {
		return `(` + clauses + ` OR last_accessed IS NULL)`, args
	}
	return `(` + clauses + `)`, args
}

// rowScanner abstracts *sql.Row and *sql.Rows for scanSnapshot.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner) (*snapshot.Snapshot, error) {
	var s snapshot.Snapshot
	var summary, tagsJSON, actionType, rationale, causedBy, reasonsJSON sql.NullString
	var tier string
	var createdAt int64
	var lastAccessed, lastPredicted sql.NullInt64
	var score sql.NullFloat64

	err := row.Scan(&s.ID, &s.Project, &summary, &tagsJSON, &createdAt,
		&actionType, &rationale, &causedBy, &tier, &lastAccessed, &s.AccessCount,
		&score, &lastPredicted, &reasonsJSON)
	if err != nil {
		return nil, err
	}

	s.Summary = summary.String
	s.ActionType = snapshot.ActionType(actionType.String)
	s.Rationale = rationale.String
	s.CausedBy = causedBy.String
	s.Tier = snapshot.Tier(tier)
	s.CreatedAt = time.Unix(createdAt, 0).UTC()
	if lastAccessed.Valid {
		t := time.Unix(lastAccessed.Int64, 0).UTC()
		s.LastAccessed = &t
	}
	if lastPredicted.Valid {
		t := time.Unix(lastPredicted.Int64, 0).UTC()
		s.LastPredicted = &t
	}
	if score.Valid {
		s.PredictionScore = &score.Float64
	}
	if tagsJSON.Valid {
		if err := json.Unmarshal([]byte(tagsJSON.String), &s.Tags); err != nil {
			return nil, err
		}
	}
	if reasonsJSON.Valid {
		if err := json.Unmarshal([]byte(reasonsJSON.String), &s.Reasons); err != nil {
			return nil, err
		}
	}
	return &s, nil
}

func scanSnapshots(rows *sql.Rows) ([]snapshot.Snapshot, error) {
	var out []snapshot.Snapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}

func marshalStrings(values []string) (sql.NullString, error) {
	if len(values) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func toNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func toNullTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

func toNullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
