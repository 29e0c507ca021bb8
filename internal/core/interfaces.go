package core

import (
	"context"
	"time"

	"github.com/echofi/kyc-service/internal/domain/model"
)

// This file contains repository interface definitions (ports in hexagonal architecture).
// These interfaces define the contracts between the service layer and data layer.
// Service implementations should depend on these interfaces, not concrete implementations.

// PipelineOutcomeParams carries everything the pipeline persists in one
// transactional update when a job's stages have completed.
type PipelineOutcomeParams struct {
	JobID           string
	ExtractedFields *model.ExtractedFields
	FaceScore       float64
	LivenessScore   float64
	QualityScore    float64
	RiskScore       float64
	Unscored        bool
	Status          model.JobStatus
	Tier            int
	AutoDecided     bool
	// EncryptedSnapshot is the sealed copy of the subject's personal data,
	// produced by the pipeline's encryptor before persisting the outcome.
	EncryptedSnapshot *string
	// ReviewedAt is set for auto-terminal outcomes; nil for manual review.
	ReviewedAt *time.Time
	// RetentionUntil is computed at terminal transition.
	RetentionUntil *time.Time
}

// ReviewParams carries a human reviewer's decision into the data layer.
type ReviewParams struct {
	JobID      string
	Status     model.JobStatus
	Tier       int
	ReviewerID string
	Note       *string
	ReviewedAt time.Time
	// RetentionUntil is computed at the review's terminal transition.
	RetentionUntil time.Time
}

// JobRepository defines the interface for verification job data operations.
type JobRepository interface {
	// Create admits a new pending job. A subject with an active job triggers
	// the partial unique index and surfaces as a conflict AppError.
	Create(ctx context.Context, req *model.SubmissionRequest) (*model.VerificationJob, error)
	GetByID(ctx context.Context, id string) (*model.VerificationJob, error)
	ListBySubject(ctx context.Context, subjectID string) ([]*model.VerificationJob, error)
	ListByStatus(ctx context.Context, status model.JobStatus, limit int) ([]*model.VerificationJob, error)

	// ReserveNext claims the oldest pending job under a lease, returning
	// model.ErrNoJobsAvailable when nothing is queued.
	ReserveNext(ctx context.Context, leaseSeconds int) (*model.VerificationJob, error)
	// WaitForNotification blocks until a job-added notification or ctx ends.
	WaitForNotification(ctx context.Context) error
	// Heartbeat extends the lease of a job the caller is still processing.
	Heartbeat(ctx context.Context, jobID string, leaseSeconds int) (bool, error)

	// CompletePipeline transactionally persists all stage outputs plus the
	// derived status and tier in one update.
	CompletePipeline(ctx context.Context, params PipelineOutcomeParams) (bool, error)
	// Fail terminally marks the job failed with the error message as its note.
	// ReviewedAt stamps the terminal transition; retentionUntil starts the
	// failed job's retention clock.
	Fail(ctx context.Context, id, note string, reviewedAt, retentionUntil time.Time) (bool, error)
	// ApplyReview finalizes a manual decision. Only jobs still in a reviewable
	// state are updated; the bool reports whether a row changed.
	ApplyReview(ctx context.Context, params ReviewParams) (bool, error)

	Stats(ctx context.Context) (*model.JobStats, error)
	// StatsSince aggregates counts over jobs submitted at or after the cutoff.
	StatsSince(ctx context.Context, since time.Time) (*model.JobStats, error)

	// FindStaleProcessing returns jobs stuck in processing past the cutoff.
	FindStaleProcessing(ctx context.Context, olderThan time.Duration, limit int) ([]*model.VerificationJob, error)

	// AnonymizeExpired blanks personal data on terminal jobs whose retention
	// window has passed. Returns the number of rows anonymized.
	AnonymizeExpired(ctx context.Context, batchSize int) (int64, error)
	// AnonymizeSubject blanks personal data on all of a subject's jobs.
	AnonymizeSubject(ctx context.Context, subjectID string) (int64, error)
}

// AppendAuditParams groups parameters for AuditRepository.Append.
type AppendAuditParams struct {
	JobID   string
	Action  model.AuditAction
	Details any
}

// AuditRepository defines the interface for the append-only audit trail.
type AuditRepository interface {
	Append(ctx context.Context, params AppendAuditParams) (*model.AuditEvent, error)
	ListByJob(ctx context.Context, jobID string, limit int) ([]*model.AuditEvent, error)
	// MarkArchivedBefore flags events older than the cutoff as archived.
	MarkArchivedBefore(ctx context.Context, cutoff time.Time, batchSize int) (int64, error)
}

// DocumentStore accesses submitted document and selfie images by their
// opaque storage references.
type DocumentStore interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
	// Delete removes the stored object. Erasure requests call this so the
	// images disappear along with the database references.
	Delete(ctx context.Context, ref string) error
}

// QuotaRepository enforces the per-subject daily submission allowance.
type QuotaRepository interface {
	// Allow consumes one unit of the subject's daily quota, reporting whether
	// the submission is still within the limit.
	Allow(ctx context.Context, subjectID string, limit int) (bool, error)
}
