package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/echofi/kyc-service/internal/data/pgxutil"
	"github.com/echofi/kyc-service/internal/domain/model"
	apperrors "github.com/echofi/kyc-service/internal/errors"
)

// GetByID retrieves a verification job by its ticket id.
func (r *VerificationRepo) GetByID(ctx context.Context, id string) (*model.VerificationJob, error) {
	var job *model.VerificationJob
	err := pgxutil.WithPgxConn(ctx, r.DB, func(pgxConn *pgx.Conn) error {
		rows, err := pgxConn.Query(ctx, `
			SELECT `+jobColumns+`
			FROM verification_jobs
			WHERE id = $1
		`, id)
		if err != nil {
			return err
		}
		defer rows.Close()
		job, err = collectJobFromRows(rows)
		return err
	})

	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return job, nil
}

// ListBySubject returns all of a subject's jobs, newest first.
func (r *VerificationRepo) ListBySubject(ctx context.Context, subjectID string) ([]*model.VerificationJob, error) {
	if subjectID == "" {
		return nil, errors.New("subject id is required")
	}

	query := `
		SELECT ` + jobColumns + `
		FROM verification_jobs
		WHERE subject_id = $1
		ORDER BY submitted_at DESC, id DESC
	`

	return r.listJobs(ctx, query, subjectID)
}

// ListByStatus returns jobs in the given state, oldest first so reviewers see
// the longest-waiting submissions at the top.
func (r *VerificationRepo) ListByStatus(ctx context.Context, status model.JobStatus, limit int) ([]*model.VerificationJob, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("invalid job status: %s", status)
	}
	if limit <= 0 {
		limit = 50
	}
	if limit > 1000 {
		limit = 1000
	}

	query := `
		SELECT ` + jobColumns + `
		FROM verification_jobs
		WHERE status = $1
		ORDER BY submitted_at ASC, id ASC
		LIMIT $2
	`

	return r.listJobs(ctx, query, status, limit)
}

// FindStaleProcessing returns jobs that have sat in processing longer than the
// cutoff, oldest first. The monitor flags these for operator attention.
func (r *VerificationRepo) FindStaleProcessing(ctx context.Context, olderThan time.Duration, limit int) ([]*model.VerificationJob, error) {
	if limit <= 0 {
		limit = 100
	}
	cutoff := r.timeProvider.Now().Add(-olderThan).UTC()

	query := `
		SELECT ` + jobColumns + `
		FROM verification_jobs
		WHERE status = 'processing'
		  AND updated_at < $1
		ORDER BY updated_at ASC
		LIMIT $2
	`

	return r.listJobs(ctx, query, cutoff, limit)
}

func (r *VerificationRepo) listJobs(ctx context.Context, query string, args ...any) ([]*model.VerificationJob, error) {
	var result []*model.VerificationJob
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("query jobs: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			job, scanErr := scanJobFromRow(rows)
			if scanErr != nil {
				return fmt.Errorf("scan job: %w", scanErr)
			}
			result = append(result, job)
		}
		return rows.Err()
	}); err != nil {
		return nil, apperrors.MapDBError(err)
	}

	return result, nil
}

// Stats returns counts of jobs per lifecycle state.
func (r *VerificationRepo) Stats(ctx context.Context) (*model.JobStats, error) {
	return r.statsWhere(ctx, "", nil)
}

// StatsSince aggregates counts over jobs submitted at or after the cutoff.
func (r *VerificationRepo) StatsSince(ctx context.Context, since time.Time) (*model.JobStats, error) {
	return r.statsWhere(ctx, "WHERE submitted_at >= $1", []any{since.UTC()})
}

func (r *VerificationRepo) statsWhere(ctx context.Context, where string, args []any) (*model.JobStats, error) {
	var s model.JobStats
	err := r.DB.QueryRowContext(ctx, `
  SELECT
    count(*) FILTER (WHERE status = 'pending')       AS pending,
    count(*) FILTER (WHERE status = 'processing')    AS processing,
    count(*) FILTER (WHERE status = 'passed')        AS passed,
    count(*) FILTER (WHERE status = 'rejected')      AS rejected,
    count(*) FILTER (WHERE status = 'manual_review') AS manual_review,
    count(*) FILTER (WHERE status = 'failed')        AS failed
  FROM verification_jobs
  `+where, args...).Scan(
		&s.Pending,
		&s.Processing,
		&s.Passed,
		&s.Rejected,
		&s.ManualReview,
		&s.Failed,
	)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	return &s, nil
}

// anonymizeSetClause blanks every column that carries personal data while
// leaving scores, status, and timestamps intact for aggregate reporting.
const anonymizeSetClause = `
        full_name = 'DELETED',
        date_of_birth = 'DELETED',
        address = 'DELETED',
        email = NULL,
        phone = NULL,
        extracted_fields = NULL,
        encrypted_snapshot = NULL,
        doc_front_ref = '',
        doc_back_ref = '',
        selfie_ref = '',
        retention_until = NULL,
        updated_at = $1`

// Advisory lock minor key for the retention sweep, under the shared requeue major.
const advisoryLockRetentionMinor int64 = 2

// AnonymizeExpired blanks personal data on terminal jobs whose retention
// window has passed. Batched so a large backlog cannot hold long locks.
func (r *VerificationRepo) AnonymizeExpired(ctx context.Context, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 100
	}

	var rowsAffected int64
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			var locked bool
			if err := tx.QueryRowContext(ctx, "SELECT pg_try_advisory_xact_lock($1::integer, $2::integer)", advisoryLockRequeueMajor, advisoryLockRetentionMinor).Scan(&locked); err != nil {
				return fmt.Errorf("acquire advisory lock: %w", err)
			}
			if !locked {
				rowsAffected = 0
				return nil
			}

			currentTime := r.timeProvider.Now().UTC()
			res, err := tx.ExecContext(ctx, `
        UPDATE verification_jobs
        SET `+anonymizeSetClause+`
        WHERE id IN (
          SELECT id FROM verification_jobs
          WHERE status IN ('passed', 'rejected', 'failed')
            AND retention_until IS NOT NULL
            AND retention_until < $1
          ORDER BY retention_until
          LIMIT $2
        )
      `, currentTime, batchSize)
			if err != nil {
				return fmt.Errorf("anonymize expired: %w", err)
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

// AnonymizeSubject blanks personal data on all of a subject's jobs, regardless
// of state. Serves erasure requests.
func (r *VerificationRepo) AnonymizeSubject(ctx context.Context, subjectID string) (int64, error) {
	if subjectID == "" {
		return 0, errors.New("subject id is required")
	}

	currentTime := r.timeProvider.Now().UTC()
	res, err := r.DB.ExecContext(ctx, `
        UPDATE verification_jobs
        SET `+anonymizeSetClause+`
        WHERE subject_id = $2
    `, currentTime, subjectID)
	if err != nil {
		return 0, fmt.Errorf("anonymize subject: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return rowsAffected, nil
}
