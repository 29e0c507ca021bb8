package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/echofi/kyc-service/internal/core"
	"github.com/echofi/kyc-service/internal/domain/model"
	apperrors "github.com/echofi/kyc-service/internal/errors"
	"github.com/echofi/kyc-service/internal/service"
)

// memJobRepo is an in-memory core.JobRepository backing the router tests.
type memJobRepo struct {
	mu   sync.Mutex
	jobs map[string]*model.VerificationJob
	seq  int
}

func newMemJobRepo() *memJobRepo {
	return &memJobRepo{jobs: make(map[string]*model.VerificationJob)}
}

func (r *memJobRepo) add(job *model.VerificationJob) *model.VerificationJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	if job.ID == "" {
		r.seq++
		job.ID = fmt.Sprintf("ticket-%d", r.seq)
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now().UTC()
	}
	r.jobs[job.ID] = job
	return job
}

func (r *memJobRepo) Create(ctx context.Context, req *model.SubmissionRequest) (*model.VerificationJob, error) {
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

func (r *memJobRepo) GetByID(ctx context.Context, id string) (*model.VerificationJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, apperrors.NotFoundf("verification job %s not found", id)
	}
	clone := *job
	return &clone, nil
}

func (r *memJobRepo) ListBySubject(ctx context.Context, subjectID string) ([]*model.VerificationJob, error) {
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

func (r *memJobRepo) ListByStatus(ctx context.Context, status model.JobStatus, limit int) ([]*model.VerificationJob, error) {
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

func (r *memJobRepo) ReserveNext(ctx context.Context, leaseSeconds int) (*model.VerificationJob, error) {
	return nil, model.ErrNoJobsAvailable
}

func (r *memJobRepo) WaitForNotification(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (r *memJobRepo) Heartbeat(ctx context.Context, jobID string, leaseSeconds int) (bool, error) {
	return false, nil
}

func (r *memJobRepo) CompletePipeline(ctx context.Context, params core.PipelineOutcomeParams) (bool, error) {
	return false, nil
}

func (r *memJobRepo) Fail(ctx context.Context, id, note string, reviewedAt, retentionUntil time.Time) (bool, error) {
	return false, nil
}

func (r *memJobRepo) ApplyReview(ctx context.Context, params core.ReviewParams) (bool, error) {
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

func (r *memJobRepo) Stats(ctx context.Context) (*model.JobStats, error) {
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

func (r *memJobRepo) StatsSince(ctx context.Context, since time.Time) (*model.JobStats, error) {
	return r.Stats(ctx)
}

func (r *memJobRepo) FindStaleProcessing(ctx context.Context, olderThan time.Duration, limit int) ([]*model.VerificationJob, error) {
	return nil, nil
}

func (r *memJobRepo) AnonymizeExpired(ctx context.Context, batchSize int) (int64, error) {
	return 0, nil
}

func (r *memJobRepo) AnonymizeSubject(ctx context.Context, subjectID string) (int64, error) {
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

var _ core.JobRepository = (*memJobRepo)(nil)

// memAuditRepo keeps appended events in order.
type memAuditRepo struct {
	mu     sync.Mutex
	events []core.AppendAuditParams
}

func (r *memAuditRepo) Append(ctx context.Context, params core.AppendAuditParams) (*model.AuditEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, params)
	return &model.AuditEvent{JobID: params.JobID, Action: params.Action, Timestamp: time.Now()}, nil
}

func (r *memAuditRepo) ListByJob(ctx context.Context, jobID string, limit int) ([]*model.AuditEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.AuditEvent
	for _, params := range r.events {
		if params.JobID == jobID {
			out = append(out, &model.AuditEvent{JobID: jobID, Action: params.Action})
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *memAuditRepo) MarkArchivedBefore(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	return 0, nil
}

var _ core.AuditRepository = (*memAuditRepo)(nil)

type routerFixture struct {
	router http.Handler
	jobs   *memJobRepo
	audit  *memAuditRepo
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()

	jobs := newMemJobRepo()
	audit := &memAuditRepo{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc, err := service.NewVerificationService(service.VerificationServiceOptions{
		Jobs:   jobs,
		Audit:  audit,
		Logger: logger,
	})
	require.NoError(t, err)

	return &routerFixture{
		router: NewRouter(RouterServices{Verification: svc, Logger: logger}),
		jobs:   jobs,
		audit:  audit,
	}
}

func (f *routerFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}

	r := httptest.NewRequest(method, path, reader)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, r)
	return w
}

func (f *routerFixture) doRaw(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	r := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, r)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), dst))
}

func validSubmission(subjectID string) map[string]any {
	return map[string]any{
		"subject_id":     subjectID,
		"full_name":      "Jane Smith",
		"date_of_birth":  "1985-07-27",
		"address":        "1 Main St",
		"doc_front_ref":  "docs/front.jpg",
		"doc_back_ref":   "docs/back.jpg",
		"selfie_ref":     "docs/selfie.jpg",
		"requested_tier": 2,
	}
}
