package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echofi/kyc-service/internal/domain/biometric"
	"github.com/echofi/kyc-service/internal/domain/extract"
	"github.com/echofi/kyc-service/internal/domain/model"
	"github.com/echofi/kyc-service/internal/domain/verdict"
	"github.com/echofi/kyc-service/internal/testutil"
)

// fakeComparer returns a fixed embedding distance.
type fakeComparer struct {
	cmp biometric.Comparison
	err error
}

func (c *fakeComparer) Compare(ctx context.Context, document, selfie []byte) (biometric.Comparison, error) {
	if c.err != nil {
		return biometric.Comparison{}, c.err
	}
	return c.cmp, nil
}

// fakeDetector returns fixed face and eye counts.
type fakeDetector struct {
	faces int
	eyes  int
}

func (d *fakeDetector) CountFaces(ctx context.Context, img []byte) (int, error) { return d.faces, nil }
func (d *fakeDetector) CountEyes(ctx context.Context, img []byte) (int, error)  { return d.eyes, nil }

type pipelineFixture struct {
	jobs  *fakeJobRepo
	audit *fakeAuditRepo
	docs  *fakeDocStore
	svc   *PipelineService
}

const frontText = "Full Name: JANE SMITH\nDate of Birth: 27/07/1985\nID Number: 123456789\n"

func newPipelineFixture(t *testing.T, mutate func(*PipelineServiceOptions)) *pipelineFixture {
	t.Helper()

	authenticity := 0.96
	opts := PipelineServiceOptions{
		Jobs:      newFakeJobRepo(),
		Audit:     &fakeAuditRepo{},
		Documents: &fakeDocStore{},
		Recognizer: &fakeRecognizer{doc: extract.Document{
			Text:         frontText,
			Confidence:   0.96,
			Authenticity: &authenticity,
		}},
		Biometrics: biometric.New(biometric.Options{
			Comparer: &fakeComparer{cmp: biometric.Comparison{Distance: 0, Threshold: 1}},
			Detector: &fakeDetector{faces: 1, eyes: 2},
			Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		}),
		Thresholds:   verdict.Thresholds{AutoApprove: 0.85, ManualReview: 0.65},
		TimeProvider: testutil.NewTestTimeProvider(time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC)),
		FetchTimeout: time.Second,
		FetchRetries: 2,
	}
	if mutate != nil {
		mutate(&opts)
	}

	svc, err := NewPipelineService(opts)
	require.NoError(t, err)

	return &pipelineFixture{
		jobs:  opts.Jobs.(*fakeJobRepo),
		audit: opts.Audit.(*fakeAuditRepo),
		docs:  opts.Documents.(*fakeDocStore),
		svc:   svc,
	}
}

func (f *pipelineFixture) addProcessingJob() *model.VerificationJob {
	return f.jobs.add(&model.VerificationJob{
		SubjectID:   "subject-p",
		Status:      model.JobStatusProcessing,
		DocFrontRef: "docs/subject-p/front.jpg",
		DocBackRef:  "docs/subject-p/back.jpg",
		SelfieRef:   "docs/subject-p/selfie.jpg",
	})
}

func TestNewPipelineServiceValidation(t *testing.T) {
	_, err := NewPipelineService(PipelineServiceOptions{})
	require.Error(t, err)

	_, err = NewPipelineService(PipelineServiceOptions{
		Jobs:       newFakeJobRepo(),
		Audit:      &fakeAuditRepo{},
		Documents:  &fakeDocStore{},
		Recognizer: &fakeRecognizer{},
		Biometrics: biometric.New(biometric.Options{}),
	})
	require.Error(t, err, "zero thresholds must be rejected")
}

// A matching face with strong OCR signals but an unscorable selfie lands in
// the manual-review band: the mean of confidence, authenticity and face
// score takes the not-live penalty.
func TestPipelineService_Process_ManualReviewBand(t *testing.T) {
	f := newPipelineFixture(t, nil)
	job := f.addProcessingJob()

	require.NoError(t, f.svc.Process(context.Background(), job))

	stored, err := f.jobs.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusManualReview, stored.Status)
	assert.Equal(t, 0, stored.Tier)
	assert.False(t, stored.AutoDecided)
	require.NotNil(t, stored.RiskScore)
	assert.InDelta(t, (0.96+0.96+1.0)/3-0.3, *stored.RiskScore, 1e-9)
	require.NotNil(t, stored.FaceScore)
	assert.Equal(t, 1.0, *stored.FaceScore)
	require.NotNil(t, stored.ExtractedFields)
	require.NotNil(t, stored.ExtractedFields.FullName)
	assert.Equal(t, "JANE SMITH", *stored.ExtractedFields.FullName)
	assert.Nil(t, stored.ReviewedAt, "manual review is not terminal")

	require.NotNil(t, stored.EncryptedSnapshot)
	assert.True(t, strings.HasPrefix(*stored.EncryptedSnapshot, "noop:"))
}

func TestPipelineService_Process_AutoRejectBand(t *testing.T) {
	f := newPipelineFixture(t, func(opts *PipelineServiceOptions) {
		opts.Biometrics = biometric.New(biometric.Options{
			Comparer: &fakeComparer{cmp: biometric.Comparison{Distance: 2, Threshold: 1}},
			Detector: &fakeDetector{faces: 1, eyes: 2},
			Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		})
	})
	job := f.addProcessingJob()

	require.NoError(t, f.svc.Process(context.Background(), job))

	stored, err := f.jobs.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusRejected, stored.Status)
	assert.Equal(t, 0, stored.Tier)
	assert.True(t, stored.AutoDecided)
	require.NotNil(t, stored.RiskScore)
	assert.InDelta(t, (0.96+0.96)/2-0.3-0.5, *stored.RiskScore, 1e-9)
	require.NotNil(t, stored.ReviewedAt, "rejection is terminal")
	require.NotNil(t, stored.RetentionUntil)
}

func TestPipelineService_Process_AuditTrail(t *testing.T) {
	f := newPipelineFixture(t, nil)
	job := f.addProcessingJob()

	require.NoError(t, f.svc.Process(context.Background(), job))

	actions := f.audit.actions()
	require.NotEmpty(t, actions)
	assert.Equal(t, model.AuditActionStartProcessing, actions[0])
	assert.Equal(t, model.AuditActionDecision, actions[len(actions)-1])
	assert.True(t, f.audit.hasAction(model.AuditActionExtractionComplete))
	assert.True(t, f.audit.hasAction(model.AuditActionBiometricsComplete))
}

func TestPipelineService_Process_FetchFailure(t *testing.T) {
	f := newPipelineFixture(t, func(opts *PipelineServiceOptions) {
		opts.Documents = &fakeDocStore{fetchErr: errors.New("object gone")}
	})
	job := f.addProcessingJob()

	err := f.svc.Process(context.Background(), job)
	require.Error(t, err)

	stored, getErr := f.jobs.GetByID(context.Background(), job.ID)
	require.NoError(t, getErr)
	assert.Equal(t, model.JobStatusFailed, stored.Status)
	require.NotNil(t, stored.Note)
	assert.NotNil(t, stored.ReviewedAt, "failure is a terminal decision")
	assert.NotNil(t, stored.RetentionUntil)
	assert.True(t, f.audit.hasAction(model.AuditActionDecision))
}

func TestPipelineService_Process_FetchRetrySucceeds(t *testing.T) {
	f := newPipelineFixture(t, func(opts *PipelineServiceOptions) {
		opts.Documents = &fakeDocStore{failures: 1}
	})
	job := f.addProcessingJob()

	require.NoError(t, f.svc.Process(context.Background(), job))

	stored, err := f.jobs.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusManualReview, stored.Status)
}

func TestPipelineService_Process_RecognizerFailure(t *testing.T) {
	f := newPipelineFixture(t, func(opts *PipelineServiceOptions) {
		opts.Recognizer = &fakeRecognizer{err: errors.New("ocr backend unavailable")}
	})
	job := f.addProcessingJob()

	err := f.svc.Process(context.Background(), job)
	require.Error(t, err)

	stored, getErr := f.jobs.GetByID(context.Background(), job.ID)
	require.NoError(t, getErr)
	assert.Equal(t, model.JobStatusFailed, stored.Status)
}

// When the lease expired and the queue reissued the job, the late outcome is
// discarded without recording a decision.
func TestPipelineService_Process_DiscardedOutcome(t *testing.T) {
	f := newPipelineFixture(t, nil)
	job := f.jobs.add(&model.VerificationJob{
		SubjectID:   "subject-lost",
		Status:      model.JobStatusPending,
		DocFrontRef: "docs/subject-lost/front.jpg",
		DocBackRef:  "docs/subject-lost/back.jpg",
		SelfieRef:   "docs/subject-lost/selfie.jpg",
	})

	require.NoError(t, f.svc.Process(context.Background(), job))

	stored, err := f.jobs.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPending, stored.Status)
	assert.False(t, f.audit.hasAction(model.AuditActionDecision))
}
