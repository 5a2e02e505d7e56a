package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/m-navaneeth8770/queuectl/internal/data/pgxutil"
	"github.com/m-navaneeth8770/queuectl/internal/domain/model"
	apperrors "github.com/m-navaneeth8770/queuectl/internal/errors"
)

// notifyChannel is the LISTEN/NOTIFY channel workers use for prompt wakeup.
const notifyChannel = "queuectl_job_added"

// SQL used by ClaimNext to atomically claim the next eligible job. Eligible
// means pending and due, or failed with its backoff elapsed. SKIP LOCKED keeps
// concurrent claimers from blocking on or double-claiming the same row.
const claimNextUpdateSQL = `
  WITH cte AS (
    SELECT id FROM jobs
    WHERE (state = 'pending' AND run_at <= $1)
       OR (state = 'failed' AND next_eligible_at <= $1)
    ORDER BY priority DESC, created_at ASC
    LIMIT 1
    FOR UPDATE SKIP LOCKED
  )
  UPDATE jobs j
  SET
    state = 'processing',
    claimed_by = $2,
    claimed_at = $1,
    attempts = j.attempts + 1,
    next_eligible_at = NULL,
    updated_at = $1
  FROM cte
  WHERE j.id = cte.id
  RETURNING j.id, j.command, j.state, j.priority, j.run_at, j.attempts, j.max_retries, j.backoff_base, j.timeout_seconds, j.claimed_by, j.claimed_at, j.next_eligible_at, j.output, j.error, j.created_at, j.updated_at, j.completed_at`

// withContentionRetry runs op, retrying transient pg contention (deadlock,
// serialization failure, lock timeout) a bounded number of times. Exhaustion
// surfaces ErrStoreUnavailable.
func (r *JobRepo) withContentionRetry(ctx context.Context, name string, op func() error) error {
	attempts := r.contentionRetries()
	var err error
	for i := 0; i < attempts; i++ {
		err = op()
		if err == nil || !apperrors.IsRetryableContention(err) {
			return err
		}
		r.logger.WarnContext(ctx, "retrying store operation after contention",
			"op", name, "attempt", i+1, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(contentionRetryDelay << i):
		}
	}
	return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, name, err)
}

// Enqueue inserts a new job in pending state and notifies listening workers.
// The job's retry limits and timeout must already be resolved by the caller.
func (r *JobRepo) Enqueue(ctx context.Context, job *model.Job) (*model.Job, error) {
	if job == nil {
		return nil, errors.New("job is required")
	}

	now := r.timeProvider.Now().UTC()
	runAt := job.RunAt
	if runAt.IsZero() {
		runAt = now
	}

	var created *model.Job
	err := r.withContentionRetry(ctx, "enqueue", func() error {
		return pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
			Fn: func(tx pgx.Tx) error {
				rows, qerr := tx.Query(ctx, `
          INSERT INTO jobs (id, command, state, priority, run_at, max_retries, backoff_base, timeout_seconds, created_at, updated_at)
          VALUES ($1, $2, 'pending', $3, $4, $5, $6, $7, $8, $8)
          RETURNING `+jobColumns,
					job.ID,
					job.Command,
					job.Priority,
					runAt.UTC(),
					job.MaxRetries,
					job.BackoffBase,
					job.TimeoutSeconds,
					now,
				)
				if qerr != nil {
					return fmt.Errorf("insert job: %w", qerr)
				}
				j, cerr := collectJobFromRows(rows)
				rows.Close()
				if cerr != nil {
					return fmt.Errorf("collect job: %w", cerr)
				}
				if _, nerr := tx.Exec(ctx, `SELECT pg_notify($1::text, $2::text)`, notifyChannel, j.ID); nerr != nil {
					return fmt.Errorf("send job notification: %w", nerr)
				}
				created = j
				return nil
			},
		})
	})
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return created, nil
}

// ClaimNext atomically claims the next eligible job for the given worker.
// Returns model.ErrNoJobsAvailable when nothing is eligible.
func (r *JobRepo) ClaimNext(ctx context.Context, workerID string) (*model.Job, error) {
	var job *model.Job
	err := r.withContentionRetry(ctx, "claim_next", func() error {
		job = nil
		return pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
			Opts: &sql.TxOptions{Isolation: sql.LevelReadCommitted},
			Fn: func(tx pgx.Tx) error {
				now := r.timeProvider.Now().UTC()
				rows, qerr := tx.Query(ctx, claimNextUpdateSQL, now, workerID)
				if qerr != nil {
					return fmt.Errorf("claim job: %w", qerr)
				}
				defer rows.Close()

				j, cerr := collectJobFromRows(rows)
				if errors.Is(cerr, pgx.ErrNoRows) {
					return model.ErrNoJobsAvailable
				}
				if cerr != nil {
					return fmt.Errorf("claim job: %w", cerr)
				}
				job = j
				return nil
			},
		})
	})
	if err != nil {
		if errors.Is(err, model.ErrNoJobsAvailable) {
			return nil, model.ErrNoJobsAvailable
		}
		return nil, err
	}
	return job, nil
}

// MarkCompleted transitions a processing job to completed and increments the
// completed_total counter in the same transaction.
func (r *JobRepo) MarkCompleted(ctx context.Context, id, output string) error {
	return r.withContentionRetry(ctx, "mark_completed", func() error {
		return pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
			Fn: func(tx *sql.Tx) error {
				now := r.timeProvider.Now().UTC()
				res, err := tx.ExecContext(ctx, `
          UPDATE jobs
          SET state = 'completed',
              output = $2,
              error = NULL,
              claimed_by = NULL,
              claimed_at = NULL,
              completed_at = $3,
              updated_at = $3
          WHERE id = $1 AND state = 'processing'
        `, id, output, now)
				if err != nil {
					return fmt.Errorf("complete job: %w", err)
				}
				ra, err := res.RowsAffected()
				if err != nil {
					return fmt.Errorf("rows affected: %w", err)
				}
				if ra == 0 {
					return ErrJobNotFound
				}
				return incrementMetric(ctx, tx, "completed_total")
			},
		})
	})
}

// FailureParams describes the outcome of a failed attempt. State and
// NextEligibleAt come from the retry policy decision.
type FailureParams struct {
	ID             string
	ErrMsg         string
	Output         string
	State          model.JobState
	NextEligibleAt *time.Time
}

// MarkFailed transitions a processing job to failed or dead per the supplied
// decision. failed_total is incremented on every failed attempt, dead_total
// additionally on the terminal transition, all in one transaction.
func (r *JobRepo) MarkFailed(ctx context.Context, p FailureParams) error {
	if p.State != model.JobStateFailed && p.State != model.JobStateDead {
		return fmt.Errorf("invalid failure state: %s", p.State)
	}

	return r.withContentionRetry(ctx, "mark_failed", func() error {
		return pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
			Fn: func(tx *sql.Tx) error {
				now := r.timeProvider.Now().UTC()

				var nextEligible any
				if p.NextEligibleAt != nil {
					nextEligible = p.NextEligibleAt.UTC()
				}
				var completedAt any
				if p.State == model.JobStateDead {
					completedAt = now
				}

				res, err := tx.ExecContext(ctx, `
          UPDATE jobs
          SET state = $2,
              error = $3,
              output = $4,
              claimed_by = NULL,
              claimed_at = NULL,
              next_eligible_at = $5,
              completed_at = $6,
              updated_at = $7
          WHERE id = $1 AND state = 'processing'
        `, p.ID, p.State, p.ErrMsg, p.Output, nextEligible, completedAt, now)
				if err != nil {
					return fmt.Errorf("fail job: %w", err)
				}
				ra, err := res.RowsAffected()
				if err != nil {
					return fmt.Errorf("rows affected: %w", err)
				}
				if ra == 0 {
					return ErrJobNotFound
				}

				if err := incrementMetric(ctx, tx, "failed_total"); err != nil {
					return err
				}
				if p.State == model.JobStateDead {
					return incrementMetric(ctx, tx, "dead_total")
				}
				return nil
			},
		})
	})
}

// Requeue moves a dead job back to pending with attempts reset to zero, and
// notifies workers.
func (r *JobRepo) Requeue(ctx context.Context, id string) (*model.Job, error) {
	var job *model.Job
	err := r.withContentionRetry(ctx, "requeue", func() error {
		job = nil
		return pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
			Fn: func(tx pgx.Tx) error {
				now := r.timeProvider.Now().UTC()
				rows, qerr := tx.Query(ctx, `
          UPDATE jobs
          SET state = 'pending',
              attempts = 0,
              error = NULL,
              next_eligible_at = NULL,
              completed_at = NULL,
              run_at = $2,
              updated_at = $2
          WHERE id = $1 AND state = 'dead'
          RETURNING `+jobColumns, id, now)
				if qerr != nil {
					return fmt.Errorf("requeue job: %w", qerr)
				}
				j, cerr := collectJobFromRows(rows)
				rows.Close()
				if errors.Is(cerr, pgx.ErrNoRows) {
					return nil // disambiguated below
				}
				if cerr != nil {
					return fmt.Errorf("collect job: %w", cerr)
				}
				if _, nerr := tx.Exec(ctx, `SELECT pg_notify($1::text, $2::text)`, notifyChannel, j.ID); nerr != nil {
					return fmt.Errorf("send job notification: %w", nerr)
				}
				job = j
				return nil
			},
		})
	})
	if err != nil {
		return nil, err
	}
	if job != nil {
		return job, nil
	}

	// Nothing updated: either the job does not exist or it is not dead.
	if _, getErr := r.GetByID(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, ErrJobNotDead
}

// GetByID retrieves a job by its ID.
func (r *JobRepo) GetByID(ctx context.Context, id string) (*model.Job, error) {
	var job *model.Job
	err := pgxutil.WithPgxConn(ctx, r.DB, func(pgxConn *pgx.Conn) error {
		rows, err := pgxConn.Query(ctx, `
			SELECT `+jobColumns+`
			FROM jobs
			WHERE id = $1
		`, id)
		if err != nil {
			return err
		}
		defer rows.Close()
		job, err = collectJobFromRows(rows)
		return err
	})

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// List returns jobs matching the filter, newest first.
func (r *JobRepo) List(ctx context.Context, filter model.JobFilter) ([]*model.Job, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT ` + jobColumns + ` FROM jobs`
	args := []any{}
	if filter.State != "" {
		query += ` WHERE state = $1`
		args = append(args, filter.State)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d`, limit)

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*model.Job
	for rows.Next() {
		job, scanErr := scanJobFromRow(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan job: %w", scanErr)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// ListDLQ returns jobs that exhausted their retries.
func (r *JobRepo) ListDLQ(ctx context.Context, limit int) ([]*model.Job, error) {
	return r.List(ctx, model.JobFilter{State: model.JobStateDead, Limit: limit})
}

// StatusSummary returns per-state job counts.
func (r *JobRepo) StatusSummary(ctx context.Context) (*model.QueueStats, error) {
	var s model.QueueStats
	err := r.DB.QueryRowContext(ctx, `
  SELECT
    count(*) FILTER (WHERE state = 'pending')    AS pending,
    count(*) FILTER (WHERE state = 'processing') AS processing,
    count(*) FILTER (WHERE state = 'completed')  AS completed,
    count(*) FILTER (WHERE state = 'failed')     AS failed,
    count(*) FILTER (WHERE state = 'dead')       AS dead
  FROM jobs
  `).Scan(&s.Pending, &s.Processing, &s.Completed, &s.Failed, &s.Dead)
	if err != nil {
		return nil, fmt.Errorf("status summary: %w", err)
	}
	return &s, nil
}

// MetricsSnapshot reads the transactional execution counters.
func (r *JobRepo) MetricsSnapshot(ctx context.Context) (*model.MetricsSnapshot, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT name, value FROM metrics`)
	if err != nil {
		return nil, fmt.Errorf("metrics snapshot: %w", err)
	}
	defer rows.Close()

	var snap model.MetricsSnapshot
	for rows.Next() {
		var name string
		var value int64
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("scan metric: %w", err)
		}
		switch name {
		case "completed_total":
			snap.CompletedTotal = value
		case "failed_total":
			snap.FailedTotal = value
		case "dead_total":
			snap.DeadTotal = value
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("metrics snapshot: %w", err)
	}
	return &snap, nil
}

// WaitForNotification blocks until a job-added notification arrives or ctx ends.
func (r *JobRepo) WaitForNotification(ctx context.Context) error {
	conn, err := r.DB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("get conn from pool: %w", err)
	}
	defer func() {
		_ = conn.Close()
	}()

	quoted := pgx.Identifier{notifyChannel}.Sanitize()
	if _, execErr := conn.ExecContext(ctx, "LISTEN "+quoted); execErr != nil {
		return fmt.Errorf("listen %s: %w", notifyChannel, execErr)
	}
	defer func() {
		_, _ = conn.ExecContext(context.Background(), "UNLISTEN "+quoted)
	}()

	return conn.Raw(func(dc any) error {
		sc, ok := dc.(*stdlib.Conn)
		if !ok {
			return errors.New("unexpected driver connection type; expected *stdlib.Conn")
		}
		_, notifyErr := sc.Conn().WaitForNotification(ctx)
		return notifyErr
	})
}

func incrementMetric(ctx context.Context, tx *sql.Tx, name string) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO metrics (name, value) VALUES ($1, 1)
		ON CONFLICT (name) DO UPDATE SET value = metrics.value + 1
	`, name); err != nil {
		return fmt.Errorf("increment metric %s: %w", name, err)
	}
	return nil
}

// collectJobFromRows collects a single job from pgx rows.
func collectJobFromRows(rows pgx.Rows) (*model.Job, error) {
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, pgx.ErrNoRows
	}

	job, err := scanJobFromRow(rows)
	if err != nil {
		return nil, err
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, rowsErr
	}
	return job, nil
}

type jobRowScanner interface {
	Scan(dest ...any) error
}

type jobRowData struct {
	claimedBy, output, errMsg            sql.NullString
	claimedAt, nextEligible, completedAt sql.NullTime
}

func (d *jobRowData) scanInto(scanner jobRowScanner, job *model.Job) error {
	return scanner.Scan(
		&job.ID,
		&job.Command,
		&job.State,
		&job.Priority,
		&job.RunAt,
		&job.Attempts,
		&job.MaxRetries,
		&job.BackoffBase,
		&job.TimeoutSeconds,
		&d.claimedBy,
		&d.claimedAt,
		&d.nextEligible,
		&d.output,
		&d.errMsg,
		&job.CreatedAt,
		&job.UpdatedAt,
		&d.completedAt,
	)
}

func (d *jobRowData) apply(job *model.Job) {
	job.ClaimedBy = cloneNullableString(d.claimedBy)
	job.ClaimedAt = cloneNullableTime(d.claimedAt)
	job.NextEligibleAt = cloneNullableTime(d.nextEligible)
	job.Output = cloneNullableString(d.output)
	job.Error = cloneNullableString(d.errMsg)
	job.CompletedAt = cloneNullableTime(d.completedAt)
}

func scanJobFromRow(scanner jobRowScanner) (*model.Job, error) {
	job := &model.Job{}
	var data jobRowData
	if err := data.scanInto(scanner, job); err != nil {
		return nil, err
	}
	data.apply(job)
	return job, nil
}

func cloneNullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func cloneNullableTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}
