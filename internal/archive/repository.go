package archive

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/posetrack/backend/internal/models"
)

// Repository handles durable pose session summaries.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an archive repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert persists a finished summary and its per-class durations.
// Re-inserting the same session id is a no-op so archive jobs can be
// retried safely.
func (r *Repository) Insert(ctx context.Context, sessionID uuid.UUID, sum models.Summary) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`INSERT INTO pose_sessions (id, started_at, ended_at, total_seconds, poses_detected)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO NOTHING`,
		sessionID, sum.StartedAt, sum.EndedAt, sum.TotalSeconds, sum.PosesDetected)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return tx.Commit(ctx)
	}
	for i, d := range sum.Durations {
		if _, err := tx.Exec(ctx,
			`INSERT INTO pose_class_durations (session_id, label, seconds, position)
			 VALUES ($1, $2, $3, $4)`,
			sessionID, d.Label, d.Seconds, i); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// SetCSVUrl records the S3 export URL once the worker has uploaded it.
func (r *Repository) SetCSVUrl(ctx context.Context, sessionID uuid.UUID, url string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE pose_sessions SET csv_url = $1 WHERE id = $2`,
		url, sessionID)
	return err
}

// Delete removes an archived session; durations cascade. Returns whether
// a row existed.
func (r *Repository) Delete(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM pose_sessions WHERE id = $1`, sessionID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// GetByID returns one archived session with its durations, or nil when absent.
func (r *Repository) GetByID(ctx context.Context, sessionID uuid.UUID) (*models.ArchivedSession, error) {
	const q = `SELECT id, started_at, ended_at, total_seconds, poses_detected, csv_url, created_at
		FROM pose_sessions WHERE id = $1`
	var s models.ArchivedSession
	err := r.pool.QueryRow(ctx, q, sessionID).Scan(&s.ID, &s.StartedAt, &s.EndedAt, &s.TotalSeconds, &s.PosesDetected, &s.CSVUrl, &s.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT label, seconds FROM pose_class_durations WHERE session_id = $1 ORDER BY position`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var d models.ClassDuration
		if err := rows.Scan(&d.Label, &d.Seconds); err != nil {
			return nil, err
		}
		s.Durations = append(s.Durations, d)
	}
	return &s, rows.Err()
}

// ListRecent returns archived sessions, newest first.
func (r *Repository) ListRecent(ctx context.Context, limit int) ([]models.ArchivedSession, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, started_at, ended_at, total_seconds, poses_detected, csv_url, created_at
		 FROM pose_sessions ORDER BY ended_at DESC LIMIT $1`,
		limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.ArchivedSession
	for rows.Next() {
		var s models.ArchivedSession
		if err := rows.Scan(&s.ID, &s.StartedAt, &s.EndedAt, &s.TotalSeconds, &s.PosesDetected, &s.CSVUrl, &s.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

// ClassTotal is the all-time accumulated duration for one pose class.
type ClassTotal struct {
	Label        string  `json:"label"`
	TotalSeconds float64 `json:"total_seconds"`
	Sessions     int     `json:"sessions"`
}

// TotalsByClass aggregates accumulated time per class across all
// archived sessions.
func (r *Repository) TotalsByClass(ctx context.Context) ([]ClassTotal, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT label, COALESCE(SUM(seconds), 0), COUNT(DISTINCT session_id)
		 FROM pose_class_durations GROUP BY label ORDER BY 2 DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var totals []ClassTotal
	for rows.Next() {
		var t ClassTotal
		if err := rows.Scan(&t.Label, &t.TotalSeconds, &t.Sessions); err != nil {
			return nil, err
		}
		totals = append(totals, t)
	}
	return totals, rows.Err()
}
