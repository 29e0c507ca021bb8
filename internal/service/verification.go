package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/echofi/kyc-service/internal/core"
	"github.com/echofi/kyc-service/internal/data"
	"github.com/echofi/kyc-service/internal/domain/model"
	apperrors "github.com/echofi/kyc-service/internal/errors"
	"github.com/echofi/kyc-service/internal/observability/notify"
	"github.com/echofi/kyc-service/internal/service/statusnotifier"
)

// VerificationServiceOptions groups dependencies for VerificationService.
type VerificationServiceOptions struct {
	Jobs  core.JobRepository   // Required: verification job repository
	Audit core.AuditRepository // Required: audit trail repository

	Quota        core.QuotaRepository    // Optional: per-subject daily submission quota
	Documents    core.DocumentStore      // Optional: object store, used by erasure
	Notifier     *statusnotifier.Service // Optional: status notification fan-out
	Logger       *slog.Logger            // Optional: structured logger
	TimeProvider data.TimeProvider       // Optional: clock override for tests

	// DailyQuota is the per-subject submission allowance per UTC day.
	// Zero disables the quota check.
	DailyQuota int

	// RecordWindow is how long a terminal job keeps its personal data.
	RecordWindow time.Duration
}

// VerificationService provides the submission, status, review, and erasure
// operations of the verification API.
type VerificationService struct {
	jobs         core.JobRepository
	audit        core.AuditRepository
	quota        core.QuotaRepository
	documents    core.DocumentStore
	notifier     *statusnotifier.Service
	logger       *slog.Logger
	timeProvider data.TimeProvider
	dailyQuota   int
	recordWindow time.Duration
}

// NewVerificationService constructs a new VerificationService.
func NewVerificationService(opts VerificationServiceOptions) (*VerificationService, error) {
	if opts.Jobs == nil {
		return nil, errors.New("JobRepository is required")
	}
	if opts.Audit == nil {
		return nil, errors.New("AuditRepository is required")
	}

	tp := opts.TimeProvider
	if tp == nil {
		tp = data.RealTimeProvider{}
	}

	recordWindow := opts.RecordWindow
	if recordWindow <= 0 {
		recordWindow = 5 * 365 * 24 * time.Hour
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "verification_service")
	}

	return &VerificationService{
		jobs:         opts.Jobs,
		audit:        opts.Audit,
		quota:        opts.Quota,
		documents:    opts.Documents,
		notifier:     opts.Notifier,
		logger:       logger,
		timeProvider: tp,
		dailyQuota:   opts.DailyQuota,
		recordWindow: recordWindow,
	}, nil
}

// Submit admits a new verification request. A subject with a non-terminal job
// gets a conflict; a subject over their daily allowance gets quota_exceeded.
func (s *VerificationService) Submit(ctx context.Context, req *model.SubmissionRequest) (*model.VerificationJob, error) {
	if req == nil {
		return nil, apperrors.Validation("submission request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}

	if s.quota != nil && s.dailyQuota > 0 {
		allowed, err := s.quota.Allow(ctx, req.SubjectID, s.dailyQuota)
		if err != nil {
			return nil, fmt.Errorf("check submission quota: %w", err)
		}
		if !allowed {
			return nil, apperrors.QuotaExceeded("daily submission limit reached")
		}
	}

	job, err := s.jobs.Create(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create verification job: %w", err)
	}

	s.appendAudit(ctx, job.ID, model.AuditActionSubmit, map[string]any{
		"subject_id":     job.SubjectID,
		"requested_tier": job.RequestedTier,
	})

	if s.logger != nil {
		s.logger.InfoContext(ctx, "verification submitted",
			"ticket_id", job.ID,
			"subject_id", job.SubjectID,
			"requested_tier", job.RequestedTier,
		)
	}

	return job, nil
}

// Status returns the public view of one job by its ticket id.
func (s *VerificationService) Status(ctx context.Context, ticketID string) (*model.StatusResponse, error) {
	if ticketID == "" {
		return nil, apperrors.Validation("ticket id is required")
	}

	job, err := s.jobs.GetByID(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("get verification job: %w", err)
	}

	view := job.StatusView()
	return &view, nil
}

// SubjectStatus returns the public views of all of a subject's jobs, newest first.
func (s *VerificationService) SubjectStatus(ctx context.Context, subjectID string) ([]model.StatusResponse, error) {
	if subjectID == "" {
		return nil, apperrors.Validation("subject id is required")
	}

	jobs, err := s.jobs.ListBySubject(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("list subject jobs: %w", err)
	}

	views := make([]model.StatusResponse, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, job.StatusView())
	}
	return views, nil
}

// PendingReviews lists jobs awaiting a human decision, oldest first.
func (s *VerificationService) PendingReviews(ctx context.Context, limit int) ([]*model.VerificationJob, error) {
	jobs, err := s.jobs.ListByStatus(ctx, model.JobStatusManualReview, limit)
	if err != nil {
		return nil, fmt.Errorf("list manual review jobs: %w", err)
	}
	return jobs, nil
}

// Review applies a human reviewer's decision to a job still awaiting one.
// Approval grants the tier the subject requested; rejection grants none.
func (s *VerificationService) Review(ctx context.Context, req *model.ReviewRequest) (*model.VerificationJob, error) {
	if req == nil {
		return nil, apperrors.Validation("review request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}

	job, err := s.jobs.GetByID(ctx, req.TicketID)
	if err != nil {
		return nil, fmt.Errorf("get verification job: %w", err)
	}
	if !job.Reviewable() {
		return nil, apperrors.InvalidStatef("job %s is %s and cannot be reviewed", job.ID, job.Status)
	}

	status := model.JobStatusRejected
	tier := 0
	if req.Decision == model.ReviewApproved {
		status = model.JobStatusPassed
		tier = job.RequestedTier
		if tier < 1 {
			tier = 1
		}
	}

	now := s.timeProvider.Now()
	applied, err := s.jobs.ApplyReview(ctx, core.ReviewParams{
		JobID:          job.ID,
		Status:         status,
		Tier:           tier,
		ReviewerID:     req.ReviewerID,
		Note:           req.Note,
		ReviewedAt:     now,
		RetentionUntil: now.Add(s.recordWindow),
	})
	if err != nil {
		return nil, fmt.Errorf("apply review: %w", err)
	}
	if !applied {
		// Lost a race with another reviewer or the pipeline.
		return nil, apperrors.InvalidStatef("job %s was decided concurrently", job.ID)
	}

	s.appendAudit(ctx, job.ID, model.AuditActionManualReview, map[string]any{
		"reviewer_id": req.ReviewerID,
		"decision":    string(req.Decision),
		"status":      string(status),
		"tier":        tier,
	})

	updated, err := s.jobs.GetByID(ctx, job.ID)
	if err != nil {
		return nil, fmt.Errorf("reload reviewed job: %w", err)
	}

	s.notifyStatus(ctx, updated)

	if s.logger != nil {
		s.logger.InfoContext(ctx, "manual review applied",
			"ticket_id", job.ID,
			"reviewer_id", req.ReviewerID,
			"decision", req.Decision,
			"status", status,
		)
	}

	return updated, nil
}

// EraseSubject fulfils a right-to-erasure request: every one of the subject's
// jobs is anonymized in place and the stored document objects are deleted.
func (s *VerificationService) EraseSubject(ctx context.Context, subjectID string) (int64, error) {
	if subjectID == "" {
		return 0, apperrors.Validation("subject id is required")
	}

	jobs, err := s.jobs.ListBySubject(ctx, subjectID)
	if err != nil {
		return 0, fmt.Errorf("list subject jobs: %w", err)
	}
	if len(jobs) == 0 {
		return 0, apperrors.NotFoundf("no verification records for subject %s", subjectID)
	}

	// Capture refs before anonymization blanks them.
	refs := make([]string, 0, len(jobs)*3)
	for _, job := range jobs {
		refs = append(refs, job.DocFrontRef, job.DocBackRef, job.SelfieRef)
	}

	count, err := s.jobs.AnonymizeSubject(ctx, subjectID)
	if err != nil {
		return 0, fmt.Errorf("anonymize subject: %w", err)
	}

	if s.documents != nil {
		for _, ref := range refs {
			if ref == "" {
				continue
			}
			if err := s.documents.Delete(ctx, ref); err != nil && s.logger != nil {
				s.logger.WarnContext(ctx, "failed to delete stored document",
					"subject_id", subjectID,
					"ref", ref,
					"error", err,
				)
			}
		}
	}

	for _, job := range jobs {
		s.appendAudit(ctx, job.ID, model.AuditActionGDPRDeletion, map[string]any{
			"requested_for": subjectID,
		})
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "subject data erased",
			"subject_id", subjectID,
			"jobs_anonymized", count,
		)
	}

	return count, nil
}

// Stats returns job counts per state across the whole table.
func (s *VerificationService) Stats(ctx context.Context) (*model.JobStats, error) {
	stats, err := s.jobs.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("aggregate job stats: %w", err)
	}
	return stats, nil
}

// StatsSince returns job counts per state for submissions in the last N days.
func (s *VerificationService) StatsSince(ctx context.Context, days int) (*model.JobStats, error) {
	if days < 1 {
		days = 1
	}
	cutoff := s.timeProvider.Now().AddDate(0, 0, -days)
	stats, err := s.jobs.StatsSince(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("aggregate job stats since %s: %w", cutoff.Format(time.RFC3339), err)
	}
	return stats, nil
}

// Dashboard aggregates the admin overview: totals plus the review backlog.
type Dashboard struct {
	Stats         model.JobStats           `json:"stats"`
	Total         int                      `json:"total"`
	PendingReview []*model.VerificationJob `json:"pending_review"`
}

// DashboardData builds the admin dashboard snapshot.
func (s *VerificationService) DashboardData(ctx context.Context, reviewLimit int) (*Dashboard, error) {
	stats, err := s.jobs.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("aggregate job stats: %w", err)
	}
	pending, err := s.PendingReviews(ctx, reviewLimit)
	if err != nil {
		return nil, err
	}
	return &Dashboard{
		Stats:         *stats,
		Total:         stats.Total(),
		PendingReview: pending,
	}, nil
}

// Tiers returns the fixed tier catalog.
func (s *VerificationService) Tiers() []model.TierInfo {
	return model.TierCatalog()
}

// AuditTrail lists a job's audit events in chronological order.
func (s *VerificationService) AuditTrail(ctx context.Context, ticketID string, limit int) ([]*model.AuditEvent, error) {
	if ticketID == "" {
		return nil, apperrors.Validation("ticket id is required")
	}
	// Surface not-found for unknown tickets instead of an empty trail.
	if _, err := s.jobs.GetByID(ctx, ticketID); err != nil {
		return nil, fmt.Errorf("get verification job: %w", err)
	}

	events, err := s.audit.ListByJob(ctx, ticketID, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	return events, nil
}

func (s *VerificationService) appendAudit(ctx context.Context, jobID string, action model.AuditAction, details any) {
	if _, err := s.audit.Append(ctx, core.AppendAuditParams{
		JobID:   jobID,
		Action:  action,
		Details: details,
	}); err != nil && s.logger != nil {
		s.logger.ErrorContext(ctx, "failed to append audit event",
			"ticket_id", jobID,
			"action", action,
			"error", err,
		)
	}
}

func (s *VerificationService) notifyStatus(ctx context.Context, job *model.VerificationJob) {
	if s.notifier == nil || !s.notifier.Enabled() {
		return
	}
	s.notifier.NotifyStatusChange(ctx, statusPayload(job, s.timeProvider.Now()))
}

// statusPayload projects a job into the notification payload shared by all sinks.
func statusPayload(job *model.VerificationJob, occurredAt time.Time) notify.StatusPayload {
	payload := notify.StatusPayload{
		TicketID:      job.ID,
		SubjectID:     job.SubjectID,
		FullName:      job.FullName,
		Status:        string(job.Status),
		Tier:          job.Tier,
		AutoDecided:   job.AutoDecided,
		RiskScore:     job.RiskScore,
		FaceScore:     job.FaceScore,
		LivenessScore: job.LivenessScore,
		OccurredAt:    occurredAt,
	}
	if job.Email != nil {
		payload.Email = *job.Email
	}
	if job.Note != nil {
		payload.Note = *job.Note
	}
	return payload
}
