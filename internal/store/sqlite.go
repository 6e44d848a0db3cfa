package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/me/gridshift/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite. It backs standalone mode, where
// the API, scheduler and workers run in a single process, and the test suite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath.
// Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "store"),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

// CreateJob inserts a new job record.
func (s *SQLiteStore) CreateJob(ctx context.Context, job *model.Job) error {
	s.logger.Debug("sql", "op", "insert", "table", "jobs", "id", job.ID)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, type, urgency, status, mode, decision_ts, carbon_at_decision,
		 rule_id, reason, defer_deadline_ts, duration_ms, emissions_kg, result, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.Type, string(job.Urgency), string(job.Status), string(job.Mode),
		timePtrString(job.DecisionAt), job.CarbonAtDecision,
		job.RuleID, job.Reason, timePtrString(job.DeferDeadline),
		job.DurationMS, job.EmissionsKG, job.Result,
		job.CreatedAt.Format(time.RFC3339Nano), job.UpdatedAt.Format(time.RFC3339Nano),
	)
	return err
}

const jobColumns = `id, type, urgency, status, mode, decision_ts, carbon_at_decision,
	rule_id, reason, defer_deadline_ts, duration_ms, emissions_kg, result, created_at, updated_at`

// GetJob returns a job by id, or (nil, nil) when not found.
func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*model.Job, error) {
	s.logger.Debug("sql", "op", "select", "table", "jobs", "id", id)

	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// ListJobs returns a page of jobs, newest first, with an optional status filter.
func (s *SQLiteStore) ListJobs(ctx context.Context, opts model.ListOptions) ([]*model.Job, int, error) {
	s.logger.Debug("sql", "op", "list", "table", "jobs", "status", opts.Status, "limit", opts.Limit, "offset", opts.Offset)
	opts.Clamp()

	where := ""
	args := []any{}
	if opts.Status != "" {
		where = ` WHERE status = ?`
		args = append(args, opts.Status)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs`+where+` ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		append(args, opts.Limit, opts.Offset)...,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var jobs []*model.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, 0, err
		}
		jobs = append(jobs, job)
	}
	return jobs, total, rows.Err()
}

// UpdateDecision writes a scheduling decision in a single UPDATE.
func (s *SQLiteStore) UpdateDecision(ctx context.Context, id string, d model.Decision) error {
	s.logger.Debug("sql", "op", "update_decision", "table", "jobs", "id", id, "status", d.Status, "rule", d.RuleID)

	result, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status=?, mode=?, decision_ts=?, carbon_at_decision=?,
		 rule_id=?, reason=?, defer_deadline_ts=?, updated_at=? WHERE id=?`,
		string(d.Status), string(d.Mode), d.DecisionAt.UTC().Format(time.RFC3339Nano), d.CarbonAtDecision,
		d.RuleID, d.Reason, timePtrString(d.DeferDeadline),
		d.DecisionAt.UTC().Format(time.RFC3339Nano), id,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("job %s not found", id)
	}
	return nil
}

// MarkRunning transitions a SCHEDULED job to RUNNING.
func (s *SQLiteStore) MarkRunning(ctx context.Context, id string, at time.Time) error {
	s.logger.Debug("sql", "op", "mark_running", "table", "jobs", "id", id)

	result, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status=?, updated_at=? WHERE id=? AND status=?`,
		string(model.StatusRunning), at.UTC().Format(time.RFC3339Nano), id, string(model.StatusScheduled),
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return s.transitionError(ctx, id, model.StatusRunning)
	}
	return nil
}

// MarkDone transitions a RUNNING job to DONE with its execution result.
func (s *SQLiteStore) MarkDone(ctx context.Context, id string, res model.Result) error {
	s.logger.Debug("sql", "op", "mark_done", "table", "jobs", "id", id)

	result, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status=?, duration_ms=?, emissions_kg=?, result=?, updated_at=? WHERE id=? AND status=?`,
		string(model.StatusDone), res.DurationMS, res.EmissionsKG, res.Result,
		res.CompletedAt.UTC().Format(time.RFC3339Nano), id, string(model.StatusRunning),
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return s.transitionError(ctx, id, model.StatusDone)
	}
	return nil
}

// transitionError distinguishes "not found" from "wrong current status".
func (s *SQLiteStore) transitionError(ctx context.Context, id string, to model.JobStatus) error {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if job == nil {
		return fmt.Errorf("job %s not found", id)
	}
	return &model.InvalidTransitionError{ID: id, From: job.Status, To: to}
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanJob reads one row in jobColumns order.
func scanJob(row scanner) (*model.Job, error) {
	var job model.Job
	var urgency, status, mode string
	var decisionTS, deferTS sql.NullString
	var carbon sql.NullInt64
	var createdAt, updatedAt string

	err := row.Scan(&job.ID, &job.Type, &urgency, &status, &mode,
		&decisionTS, &carbon, &job.RuleID, &job.Reason, &deferTS,
		&job.DurationMS, &job.EmissionsKG, &job.Result, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	job.Urgency = model.Urgency(urgency)
	job.Status = model.JobStatus(status)
	job.Mode = model.Mode(mode)
	job.DecisionAt = parseNullTime(decisionTS)
	job.DeferDeadline = parseNullTime(deferTS)
	if carbon.Valid {
		ci := int(carbon.Int64)
		job.CarbonAtDecision = &ci
	}
	job.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	job.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)

	return &job, nil
}

// timePtrString formats an optional timestamp for storage; nil maps to NULL.
func timePtrString(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// parseNullTime parses an optional stored timestamp.
func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}
