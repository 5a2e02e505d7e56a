package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/m-navaneeth8770/queuectl/internal/data/pgxutil"
)

// Advisory lock namespace for reaper operations.
// Using two-arg pg_try_advisory_xact_lock(major, minor) for proper namespacing.
// Major key 2000 is reserved for queuectl reaper operations.
const (
	advisoryLockReaperMajor       = 2000
	advisoryLockReaperStaleClaims = 1 // minor key for RequeueStaleClaims
	advisoryLockReaperDeleteOld   = 2 // minor key for DeleteOldJobs
)

// RequeueStaleClaims returns processing jobs whose claim is older than grace
// back to pending, so work held by a crashed worker becomes claimable again.
// The attempt consumed by the stale claim stays counted. Processes up to
// batchSize jobs per call; an advisory lock keeps concurrent reaper instances
// from conflicting. Returns the number of jobs requeued.
func (r *JobRepo) RequeueStaleClaims(ctx context.Context, grace time.Duration, batchSize int) (int64, error) {
	var rowsAffected int64
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			var locked bool
			if err := tx.QueryRowContext(ctx, "SELECT pg_try_advisory_xact_lock($1, $2)", advisoryLockReaperMajor, advisoryLockReaperStaleClaims).Scan(&locked); err != nil {
				return fmt.Errorf("acquire advisory lock: %w", err)
			}
			if !locked {
				rowsAffected = 0
				return nil
			}

			currentTime := r.timeProvider.Now()
			cutoffTime := currentTime.Add(-grace)

			res, err := tx.ExecContext(ctx, `
				UPDATE jobs
				SET state = 'pending',
					claimed_by = NULL,
					claimed_at = NULL,
					updated_at = $1
				WHERE id IN (
					SELECT id FROM jobs
					WHERE state = 'processing'
					  AND claimed_at < $2
					ORDER BY claimed_at
					LIMIT $3
				)
			`, currentTime.UTC(), cutoffTime.UTC(), batchSize)
			if err != nil {
				return fmt.Errorf("requeue stale claims: %w", err)
			}

			ra, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			rowsAffected = ra
			return nil
		},
	})
	if err != nil {
		return 0, err
	}
	return rowsAffected, nil
}

// DeleteOldJobs deletes completed jobs older than maxAge to keep the table
// from growing without bound. Dead jobs are never deleted; the DLQ must stay
// complete. Processes up to batchSize jobs per call.
func (r *JobRepo) DeleteOldJobs(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error) {
	var rowsAffected int64
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			var locked bool
			if err := tx.QueryRowContext(ctx, "SELECT pg_try_advisory_xact_lock($1, $2)", advisoryLockReaperMajor, advisoryLockReaperDeleteOld).Scan(&locked); err != nil {
				return fmt.Errorf("acquire advisory lock: %w", err)
			}
			if !locked {
				rowsAffected = 0
				return nil
			}

			cutoffTime := r.timeProvider.Now().Add(-maxAge)

			res, err := tx.ExecContext(ctx, `
				DELETE FROM jobs
				WHERE id IN (
					SELECT id FROM jobs
					WHERE state = 'completed'
					  AND completed_at < $1
					ORDER BY completed_at
					LIMIT $2
				)
			`, cutoffTime.UTC(), batchSize)
			if err != nil {
				return fmt.Errorf("delete old jobs: %w", err)
			}

			ra, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			rowsAffected = ra
			return nil
		},
	})
	if err != nil {
		return 0, err
	}
	return rowsAffected, nil
}
