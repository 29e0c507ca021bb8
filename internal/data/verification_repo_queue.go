package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/echofi/kyc-service/internal/core"
	"github.com/echofi/kyc-service/internal/data/pgxutil"
	"github.com/echofi/kyc-service/internal/domain/model"
	apperrors "github.com/echofi/kyc-service/internal/errors"
)

// jobAddedChannel is the pg_notify channel used to wake pipeline workers when
// a submission is admitted.
const jobAddedChannel = "kyc_job_added"

// SQL used by ReserveNext to atomically claim the oldest pending submission.
const reserveNextUpdateSQL = `
  WITH cte AS (
    SELECT id FROM verification_jobs
    WHERE status = 'pending'
    ORDER BY submitted_at ASC, id ASC
    LIMIT 1
    FOR UPDATE SKIP LOCKED
  )
  UPDATE verification_jobs v
  SET
    status = 'processing',
    lease_expires_at = $1,
    updated_at = $2
  FROM cte
  WHERE v.id = cte.id
  RETURNING v.id, v.subject_id, v.status, v.tier, v.requested_tier, v.full_name, v.date_of_birth, v.address, v.email, v.phone, v.doc_front_ref, v.doc_back_ref, v.selfie_ref, v.extracted_fields, v.face_score, v.liveness_score, v.quality_score, v.risk_score, v.unscored, v.encrypted_snapshot, v.auto_decided, v.note, v.reviewer_id, v.submitted_at, v.reviewed_at, v.retention_until, v.lease_expires_at, v.updated_at`

// Create admits a new pending verification job. A subject that already has an
// active job trips the partial unique index, which surfaces as a conflict.
func (r *VerificationRepo) Create(
	ctx context.Context,
	req *model.SubmissionRequest,
) (*model.VerificationJob, error) {
	if req == nil {
		return nil, errors.New("submission request is required")
	}
	if validateErr := req.Validate(); validateErr != nil {
		return nil, validateErr
	}

	var job *model.VerificationJob
	if txErr := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Fn: func(tx pgx.Tx) error {
			var insertErr error
			job, insertErr = r.insertJobInTx(ctx, tx, req)
			return insertErr
		},
	}); txErr != nil {
		return nil, apperrors.MapDBError(txErr)
	}

	return job, nil
}

// insertJobInTx inserts a pending job within a pgx.Tx and notifies listeners.
func (r *VerificationRepo) insertJobInTx(
	ctx context.Context,
	tx pgx.Tx,
	req *model.SubmissionRequest,
) (*model.VerificationJob, error) {
	now := r.timeProvider.Now().UTC()

	query := `
      INSERT INTO verification_jobs(
        id, subject_id, status, tier, requested_tier,
        full_name, date_of_birth, address, email, phone,
        doc_front_ref, doc_back_ref, selfie_ref,
        submitted_at, updated_at)
      VALUES ($1,$2,'pending',0,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
      RETURNING ` + jobColumns

	rows, err := tx.Query(ctx, query,
		uuid.NewString(),
		req.SubjectID,
		req.RequestedTier,
		req.FullName,
		req.DateOfBirth,
		req.Address,
		req.Email,
		req.Phone,
		req.DocFrontRef,
		req.DocBackRef,
		req.SelfieRef,
		now,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert verification job: %w", err)
	}
	job, collectErr := collectJobFromRows(rows)
	rows.Close()
	if collectErr != nil {
		return nil, fmt.Errorf("collect verification job: %w", collectErr)
	}

	if _, execErr := tx.Exec(ctx, `SELECT pg_notify($1::text, $2::text)`, jobAddedChannel, job.ID); execErr != nil {
		return nil, fmt.Errorf("send job notification: %w", execErr)
	}

	return job, nil
}

// Advisory lock namespace for requeueExpired so concurrent workers do not
// stampede the same sweep.
const advisoryLockRequeueMajor int64 = 1001

func advisoryLockRequeueMinor() int64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(jobAddedChannel))
	hashValue := h.Sum32()
	maxInt32 := uint32(math.MaxInt32)
	if hashValue > maxInt32 {
		hashValue &= maxInt32
	}
	return int64(hashValue)
}

// requeueExpired returns processing jobs with expired leases to pending so
// another worker can pick them up.
func (r *VerificationRepo) requeueExpired(ctx context.Context) (int64, error) {
	var rowsAffected int64
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			var locked bool
			if err := tx.QueryRowContext(ctx, "SELECT pg_try_advisory_xact_lock($1::integer, $2::integer)", advisoryLockRequeueMajor, advisoryLockRequeueMinor()).Scan(&locked); err != nil {
				return fmt.Errorf("acquire advisory lock: %w", err)
			}
			if !locked {
				rowsAffected = 0
				return nil
			}

			currentTime := r.timeProvider.Now()
			res, err := tx.ExecContext(ctx, `
          UPDATE verification_jobs
          SET status = 'pending', lease_expires_at = NULL
          WHERE status = 'processing'
            AND lease_expires_at IS NOT NULL
            AND lease_expires_at < $1
        `, currentTime.UTC())
			if err != nil {
				return fmt.Errorf("requeue expired: %w", err)
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

// ReserveNext reserves the oldest pending job for pipeline processing.
func (r *VerificationRepo) ReserveNext(
	ctx context.Context,
	leaseSeconds int,
) (*model.VerificationJob, error) {
	if _, err := r.requeueExpired(ctx); err != nil {
		return nil, fmt.Errorf("requeue expired jobs: %w", err)
	}

	var job *model.VerificationJob
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Opts: &sql.TxOptions{
			Isolation: sql.LevelReadCommitted,
			ReadOnly:  false,
		},
		Fn: func(tx pgx.Tx) error {
			currentTime := r.timeProvider.Now()
			leaseExpiresAt := currentTime.Add(time.Duration(leaseSeconds) * time.Second)

			rows, qerr := tx.Query(
				ctx,
				reserveNextUpdateSQL,
				leaseExpiresAt.UTC(),
				currentTime.UTC(),
			)
			if qerr != nil {
				return fmt.Errorf("reserve job: %w", qerr)
			}
			defer rows.Close()

			j, cerr := collectJobFromRows(rows)
			if errors.Is(cerr, pgx.ErrNoRows) {
				return model.ErrNoJobsAvailable
			}
			if cerr != nil {
				return fmt.Errorf("reserve job: %w", cerr)
			}
			job = j
			return nil
		},
	})
	if err != nil {
		if errors.Is(err, model.ErrNoJobsAvailable) {
			return nil, model.ErrNoJobsAvailable
		}
		return nil, err
	}
	return job, nil
}

// WaitForNotification blocks until a submission notification arrives or ctx ends.
func (r *VerificationRepo) WaitForNotification(ctx context.Context) error {
	conn, err := r.DB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("get conn from pool: %w", err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			_ = cerr
		}
	}()

	quoted := pgx.Identifier{jobAddedChannel}.Sanitize()

	if _, execErr := conn.ExecContext(ctx, "LISTEN "+quoted); execErr != nil {
		return fmt.Errorf("listen %s: %w", jobAddedChannel, execErr)
	}
	defer func() {
		if _, execErr := conn.ExecContext(context.Background(), "UNLISTEN "+quoted); execErr != nil {
			_ = execErr
		}
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

// Heartbeat refreshes the lease on a processing job.
func (r *VerificationRepo) Heartbeat(ctx context.Context, jobID string, leaseSeconds int) (bool, error) {
	if leaseSeconds <= 0 {
		return false, errors.New("leaseSeconds must be positive")
	}

	currentTime := r.timeProvider.Now().UTC()
	leaseExpiration := currentTime.Add(time.Duration(leaseSeconds) * time.Second)

	query := `
		UPDATE verification_jobs
		SET lease_expires_at = $2,
		    updated_at = $3
		WHERE id = $1 AND status = 'processing'
	`

	res, err := r.DB.ExecContext(ctx, query, jobID, leaseExpiration, currentTime)
	if err != nil {
		return false, fmt.Errorf("heartbeat job: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("heartbeat rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// CompletePipeline persists every stage output together with the derived
// status and tier in a single update. Only processing jobs are eligible, so a
// lapsed lease that was requeued and re-completed elsewhere is a no-op here.
func (r *VerificationRepo) CompletePipeline(ctx context.Context, params core.PipelineOutcomeParams) (bool, error) {
	if !params.Status.Valid() {
		return false, fmt.Errorf("invalid outcome status: %s", params.Status)
	}

	var fieldsJSON []byte
	if params.ExtractedFields != nil {
		var err error
		fieldsJSON, err = json.Marshal(params.ExtractedFields)
		if err != nil {
			return false, fmt.Errorf("marshal extracted fields: %w", err)
		}
	}

	currentTime := r.timeProvider.Now().UTC()

	query := `
      UPDATE verification_jobs
      SET
        extracted_fields = $2,
        face_score = $3,
        liveness_score = $4,
        quality_score = $5,
        risk_score = $6,
        unscored = $7,
        encrypted_snapshot = $8,
        status = $9,
        tier = $10,
        auto_decided = $11,
        reviewed_at = $12,
        retention_until = $13,
        lease_expires_at = NULL,
        updated_at = $14
      WHERE id = $1 AND status = 'processing'
    `

	res, err := r.DB.ExecContext(ctx, query,
		params.JobID,
		fieldsJSON,
		params.FaceScore,
		params.LivenessScore,
		params.QualityScore,
		params.RiskScore,
		params.Unscored,
		params.EncryptedSnapshot,
		params.Status,
		params.Tier,
		params.AutoDecided,
		nullableTimeArg(params.ReviewedAt),
		nullableTimeArg(params.RetentionUntil),
		currentTime,
	)
	if err != nil {
		return false, fmt.Errorf("complete pipeline: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("complete rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// Fail terminally marks a processing job as failed and records the error note.
// The failure is a terminal decision, so reviewed_at is stamped here too.
func (r *VerificationRepo) Fail(ctx context.Context, id, note string, reviewedAt, retentionUntil time.Time) (bool, error) {
	currentTime := r.timeProvider.Now().UTC()

	query := `
      UPDATE verification_jobs
      SET
        status = 'failed',
        note = $2,
        reviewed_at = $3,
        retention_until = $4,
        lease_expires_at = NULL,
        updated_at = $5
      WHERE id = $1 AND status = 'processing'
    `

	res, err := r.DB.ExecContext(ctx, query, id, note, reviewedAt.UTC(), retentionUntil.UTC(), currentTime)
	if err != nil {
		return false, fmt.Errorf("fail job: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("fail rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// ApplyReview finalizes a human decision on a reviewable job.
func (r *VerificationRepo) ApplyReview(ctx context.Context, params core.ReviewParams) (bool, error) {
	if !params.Status.Valid() {
		return false, fmt.Errorf("invalid review status: %s", params.Status)
	}

	currentTime := r.timeProvider.Now().UTC()

	query := `
      UPDATE verification_jobs
      SET
        status = $2,
        tier = $3,
        reviewer_id = $4,
        note = COALESCE($5, note),
        auto_decided = FALSE,
        reviewed_at = $6,
        retention_until = $7,
        lease_expires_at = NULL,
        updated_at = $8
      WHERE id = $1 AND status IN ('pending', 'manual_review')
    `

	res, err := r.DB.ExecContext(ctx, query,
		params.JobID,
		params.Status,
		params.Tier,
		params.ReviewerID,
		params.Note,
		params.ReviewedAt.UTC(),
		params.RetentionUntil.UTC(),
		currentTime,
	)
	if err != nil {
		return false, fmt.Errorf("apply review: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("review rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

func nullableTimeArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
