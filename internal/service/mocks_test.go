package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/echofi/kyc-service/internal/core"
	"github.com/echofi/kyc-service/internal/domain/extract"
	"github.com/echofi/kyc-service/internal/domain/model"
	apperrors "github.com/echofi/kyc-service/internal/errors"
)

// fakeJobRepo is an in-memory core.JobRepository for service tests.
type fakeJobRepo struct {
	mu   sync.Mutex
	jobs map[string]*model.VerificationJob
	seq  int

	createErr       error
	applyReviewErr  error
	completeErr     error
	anonymizedCount int64
	anonymizeCalls  int
	statsSinceArg   time.Time
}

func newFakeJobRepo() *fakeJobRepo {
	return &fakeJobRepo{jobs: make(map[string]*model.VerificationJob)}
}

func (r *fakeJobRepo) add(job *model.VerificationJob) *model.VerificationJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	if job.ID == "" {
		r.seq++
		job.ID = fmt.Sprintf("job-%d", r.seq)
	}
	r.jobs[job.ID] = job
	return job
}

func (r *fakeJobRepo) Create(ctx context.Context, req *model.SubmissionRequest) (*model.VerificationJob, error) {
	if r.createErr != nil {
		return nil, r.createErr
	}
	r.mu.Lock()
	for _, existing := range r.jobs {
		if existing.SubjectID == req.SubjectID && existing.Status.Active() {
			r.mu.Unlock()
			return nil, apperrors.Conflict("subject already has an active verification")
		}
	}
	r.mu.Unlock()

	now := time.Now().UTC()
	return r.add(&model.VerificationJob{
		SubjectID:     req.SubjectID,
		Status:        model.JobStatusPending,
		RequestedTier: req.RequestedTier,
		FullName:      req.FullName,
		DateOfBirth:   req.DateOfBirth,
		Address:       req.Address,
		Email:         req.Email,
		Phone:         req.Phone,
		DocFrontRef:   req.DocFrontRef,
		DocBackRef:    req.DocBackRef,
		SelfieRef:     req.SelfieRef,
		SubmittedAt:   now,
		UpdatedAt:     now,
	}), nil
}

func (r *fakeJobRepo) GetByID(ctx context.Context, id string) (*model.VerificationJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, apperrors.NotFoundf("verification job %s not found", id)
	}
	clone := *job
	return &clone, nil
}

func (r *fakeJobRepo) ListBySubject(ctx context.Context, subjectID string) ([]*model.VerificationJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.VerificationJob
	for _, job := range r.jobs {
		if job.SubjectID == subjectID {
			clone := *job
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (r *fakeJobRepo) ListByStatus(ctx context.Context, status model.JobStatus, limit int) ([]*model.VerificationJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.VerificationJob
	for _, job := range r.jobs {
		if job.Status == status {
			clone := *job
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (r *fakeJobRepo) ReserveNext(ctx context.Context, leaseSeconds int) (*model.VerificationJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, job := range r.jobs {
		if job.Status == model.JobStatusPending {
			job.Status = model.JobStatusProcessing
			clone := *job
			return &clone, nil
		}
	}
	return nil, model.ErrNoJobsAvailable
}

func (r *fakeJobRepo) WaitForNotification(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (r *fakeJobRepo) Heartbeat(ctx context.Context, jobID string, leaseSeconds int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	return ok && job.Status == model.JobStatusProcessing, nil
}

func (r *fakeJobRepo) CompletePipeline(ctx context.Context, params core.PipelineOutcomeParams) (bool, error) {
	if r.completeErr != nil {
		return false, r.completeErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[params.JobID]
	if !ok || job.Status != model.JobStatusProcessing {
		return false, nil
	}
	job.Status = params.Status
	job.Tier = params.Tier
	job.AutoDecided = params.AutoDecided
	job.ExtractedFields = params.ExtractedFields
	job.FaceScore = &params.FaceScore
	job.LivenessScore = &params.LivenessScore
	job.QualityScore = &params.QualityScore
	job.RiskScore = &params.RiskScore
	job.Unscored = params.Unscored
	job.EncryptedSnapshot = params.EncryptedSnapshot
	job.ReviewedAt = params.ReviewedAt
	job.RetentionUntil = params.RetentionUntil
	return true, nil
}

func (r *fakeJobRepo) Fail(ctx context.Context, id, note string, reviewedAt, retentionUntil time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok || job.Status != model.JobStatusProcessing {
		return false, nil
	}
	job.Status = model.JobStatusFailed
	job.Note = &note
	job.ReviewedAt = &reviewedAt
	job.RetentionUntil = &retentionUntil
	return true, nil
}

func (r *fakeJobRepo) ApplyReview(ctx context.Context, params core.ReviewParams) (bool, error) {
	if r.applyReviewErr != nil {
		return false, r.applyReviewErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[params.JobID]
	if !ok || !job.Reviewable() {
		return false, nil
	}
	job.Status = params.Status
	job.Tier = params.Tier
	job.ReviewerID = &params.ReviewerID
	if params.Note != nil {
		job.Note = params.Note
	}
	reviewedAt := params.ReviewedAt
	job.ReviewedAt = &reviewedAt
	retention := params.RetentionUntil
	job.RetentionUntil = &retention
	job.AutoDecided = false
	return true, nil
}

func (r *fakeJobRepo) Stats(ctx context.Context) (*model.JobStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := &model.JobStats{}
	for _, job := range r.jobs {
		switch job.Status {
		case model.JobStatusPending:
			stats.Pending++
		case model.JobStatusProcessing:
			stats.Processing++
		case model.JobStatusPassed:
			stats.Passed++
		case model.JobStatusRejected:
			stats.Rejected++
		case model.JobStatusManualReview:
			stats.ManualReview++
		case model.JobStatusFailed:
			stats.Failed++
		}
	}
	return stats, nil
}

func (r *fakeJobRepo) StatsSince(ctx context.Context, since time.Time) (*model.JobStats, error) {
	r.mu.Lock()
	r.statsSinceArg = since
	r.mu.Unlock()
	return r.Stats(ctx)
}

func (r *fakeJobRepo) FindStaleProcessing(ctx context.Context, olderThan time.Duration, limit int) ([]*model.VerificationJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	var out []*model.VerificationJob
	for _, job := range r.jobs {
		if job.Status == model.JobStatusProcessing && job.UpdatedAt.Before(cutoff) {
			clone := *job
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (r *fakeJobRepo) AnonymizeExpired(ctx context.Context, batchSize int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.anonymizeCalls++
	// Drain on the first call of a sweep, then report an empty table.
	if r.anonymizeCalls%2 == 1 {
		return r.anonymizedCount, nil
	}
	return 0, nil
}

func (r *fakeJobRepo) AnonymizeSubject(ctx context.Context, subjectID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, job := range r.jobs {
		if job.SubjectID == subjectID {
			job.FullName = "DELETED"
			job.Email = nil
			job.Phone = nil
			job.DocFrontRef = ""
			job.DocBackRef = ""
			job.SelfieRef = ""
			count++
		}
	}
	return count, nil
}

var _ core.JobRepository = (*fakeJobRepo)(nil)

// fakeAuditRepo records appended events in order.
type fakeAuditRepo struct {
	mu           sync.Mutex
	events       []core.AppendAuditParams
	err          error
	archiveCount int64
	archiveCalls int
	archiveArg   time.Time
}

func (r *fakeAuditRepo) Append(ctx context.Context, params core.AppendAuditParams) (*model.AuditEvent, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, params)
	return &model.AuditEvent{JobID: params.JobID, Action: params.Action, Timestamp: time.Now()}, nil
}

func (r *fakeAuditRepo) ListByJob(ctx context.Context, jobID string, limit int) ([]*model.AuditEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.AuditEvent
	for _, params := range r.events {
		if params.JobID == jobID {
			out = append(out, &model.AuditEvent{JobID: jobID, Action: params.Action})
		}
	}
	return out, nil
}

func (r *fakeAuditRepo) MarkArchivedBefore(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.archiveCalls++
	r.archiveArg = cutoff
	// Drain on the first call of a sweep, then report an empty table.
	if r.archiveCalls%2 == 1 {
		return r.archiveCount, nil
	}
	return 0, nil
}

func (r *fakeAuditRepo) actions() []model.AuditAction {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.AuditAction, 0, len(r.events))
	for _, params := range r.events {
		out = append(out, params.Action)
	}
	return out
}

func (r *fakeAuditRepo) hasAction(action model.AuditAction) bool {
	for _, got := range r.actions() {
		if got == action {
			return true
		}
	}
	return false
}

var _ core.AuditRepository = (*fakeAuditRepo)(nil)

// fakeQuotaRepo allows a fixed number of submissions per subject.
type fakeQuotaRepo struct {
	mu     sync.Mutex
	counts map[string]int
	err    error
}

func (r *fakeQuotaRepo) Allow(ctx context.Context, subjectID string, limit int) (bool, error) {
	if r.err != nil {
		return false, r.err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = make(map[string]int)
	}
	r.counts[subjectID]++
	return r.counts[subjectID] <= limit, nil
}

var _ core.QuotaRepository = (*fakeQuotaRepo)(nil)

// fakeDocStore serves fixed bytes per ref and records deletions.
type fakeDocStore struct {
	mu       sync.Mutex
	objects  map[string][]byte
	deleted  []string
	fetchErr error
	failures int
}

func (s *fakeDocStore) Fetch(ctx context.Context, ref string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return nil, fmt.Errorf("transient storage error for %s", ref)
	}
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	if body, ok := s.objects[ref]; ok {
		return body, nil
	}
	return []byte("image:" + ref), nil
}

func (s *fakeDocStore) Delete(ctx context.Context, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, ref)
	return nil
}

var _ core.DocumentStore = (*fakeDocStore)(nil)

// fakeRecognizer returns a canned OCR document.
type fakeRecognizer struct {
	doc extract.Document
	err error
}

func (r *fakeRecognizer) Recognize(ctx context.Context, image []byte) (extract.Document, error) {
	if r.err != nil {
		return extract.Document{}, r.err
	}
	return r.doc, nil
}
