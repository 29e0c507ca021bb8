package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/echofi/kyc-service/internal/core"
	"github.com/echofi/kyc-service/internal/data"
	"github.com/echofi/kyc-service/internal/data/cryptoutil"
	"github.com/echofi/kyc-service/internal/domain/biometric"
	"github.com/echofi/kyc-service/internal/domain/extract"
	"github.com/echofi/kyc-service/internal/domain/model"
	"github.com/echofi/kyc-service/internal/domain/verdict"
	"github.com/echofi/kyc-service/internal/observability/metrics"
	"github.com/echofi/kyc-service/internal/observability/statsd"
	"github.com/echofi/kyc-service/internal/service/statusnotifier"
)

// PipelineServiceOptions groups dependencies for PipelineService.
type PipelineServiceOptions struct {
	Jobs       core.JobRepository   // Required: verification job repository
	Audit      core.AuditRepository // Required: audit trail repository
	Documents  core.DocumentStore   // Required: object store for submitted images
	Recognizer extract.Recognizer   // Required: OCR collaborator
	Biometrics *biometric.Scorer    // Required: biometric scorer

	Thresholds verdict.Thresholds      // Required: decision bands
	Encryptor  cryptoutil.Encryptor    // Optional: personal-data snapshot sealing
	Notifier   *statusnotifier.Service // Optional: status notification fan-out
	Logger     *slog.Logger            // Optional: structured logger
	Metrics    statsd.Sink             // Optional: metrics sink (StatsD-compatible)

	TimeProvider data.TimeProvider // Optional: clock override for tests

	// FetchTimeout bounds one document download attempt.
	FetchTimeout time.Duration
	// FetchRetries is the number of additional attempts after a failed download.
	FetchRetries int
	// RecordWindow sets retention_until on terminal outcomes.
	RecordWindow time.Duration
}

// PipelineService runs the verification stages for one claimed job: document
// fetch, field extraction and biometric scoring in parallel, risk scoring,
// decision, and the single transactional persist of the outcome.
type PipelineService struct {
	jobs       core.JobRepository
	audit      core.AuditRepository
	documents  core.DocumentStore
	recognizer extract.Recognizer
	biometrics *biometric.Scorer
	thresholds verdict.Thresholds
	encryptor  cryptoutil.Encryptor
	notifier   *statusnotifier.Service
	logger     *slog.Logger
	metrics    statsd.Sink

	timeProvider data.TimeProvider
	fetchTimeout time.Duration
	fetchRetries int
	recordWindow time.Duration
}

// NewPipelineService constructs a new PipelineService.
func NewPipelineService(opts PipelineServiceOptions) (*PipelineService, error) {
	if opts.Jobs == nil {
		return nil, errors.New("JobRepository is required")
	}
	if opts.Audit == nil {
		return nil, errors.New("AuditRepository is required")
	}
	if opts.Documents == nil {
		return nil, errors.New("DocumentStore is required")
	}
	if opts.Recognizer == nil {
		return nil, errors.New("Recognizer is required")
	}
	if opts.Biometrics == nil {
		return nil, errors.New("biometric Scorer is required")
	}
	if opts.Thresholds.AutoApprove <= 0 || opts.Thresholds.ManualReview <= 0 {
		return nil, errors.New("decision thresholds must be positive")
	}

	tp := opts.TimeProvider
	if tp == nil {
		tp = data.RealTimeProvider{}
	}

	encryptor := opts.Encryptor
	if encryptor == nil {
		encryptor = cryptoutil.NoopEncryptor{}
	}

	fetchTimeout := opts.FetchTimeout
	if fetchTimeout <= 0 {
		fetchTimeout = 30 * time.Second
	}
	fetchRetries := opts.FetchRetries
	if fetchRetries < 0 {
		fetchRetries = 0
	}
	recordWindow := opts.RecordWindow
	if recordWindow <= 0 {
		recordWindow = 5 * 365 * 24 * time.Hour
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "pipeline_service")
	}

	return &PipelineService{
		jobs:         opts.Jobs,
		audit:        opts.Audit,
		documents:    opts.Documents,
		recognizer:   opts.Recognizer,
		biometrics:   opts.Biometrics,
		thresholds:   opts.Thresholds,
		encryptor:    encryptor,
		notifier:     opts.Notifier,
		logger:       logger,
		metrics:      opts.Metrics,
		timeProvider: tp,
		fetchTimeout: fetchTimeout,
		fetchRetries: fetchRetries,
		recordWindow: recordWindow,
	}, nil
}

// Process runs all verification stages for a claimed job. Stage errors mark
// the job Failed terminally; the error is also returned for the caller's
// logging and metrics.
func (s *PipelineService) Process(ctx context.Context, job *model.VerificationJob) error {
	start := s.timeProvider.Now()

	s.appendAudit(ctx, job.ID, model.AuditActionStartProcessing, map[string]any{
		"subject_id": job.SubjectID,
	})

	outcome, err := s.runStages(ctx, job)
	if err != nil {
		s.failJob(ctx, job, err)
		s.emitStageMetric("pipeline", "", metrics.ResultError, s.timeProvider.Now().Sub(start), err)
		return err
	}

	applied, err := s.jobs.CompletePipeline(ctx, *outcome)
	if err != nil {
		s.failJob(ctx, job, fmt.Errorf("persist pipeline outcome: %w", err))
		s.emitStageMetric("persist", "", metrics.ResultError, s.timeProvider.Now().Sub(start), err)
		return err
	}
	if !applied {
		// The job left processing while we worked (lease expired and the
		// queue reissued it). Drop our result; the other run owns the job.
		if s.logger != nil {
			s.logger.WarnContext(ctx, "pipeline outcome discarded, job no longer processing",
				"ticket_id", job.ID,
			)
		}
		s.emitStageMetric("persist", "", metrics.ResultNoop, s.timeProvider.Now().Sub(start), nil)
		return nil
	}

	s.appendAudit(ctx, job.ID, model.AuditActionDecision, map[string]any{
		"status":       string(outcome.Status),
		"tier":         outcome.Tier,
		"risk_score":   outcome.RiskScore,
		"auto_decided": outcome.AutoDecided,
		"unscored":     outcome.Unscored,
	})

	s.notifyOutcome(ctx, job, outcome)
	s.emitStageMetric("pipeline", string(outcome.Status), metrics.ResultSuccess, s.timeProvider.Now().Sub(start), nil)

	if s.logger != nil {
		s.logger.InfoContext(ctx, "verification pipeline completed",
			"ticket_id", job.ID,
			"status", outcome.Status,
			"tier", outcome.Tier,
			"risk_score", outcome.RiskScore,
			"auto_decided", outcome.AutoDecided,
		)
	}

	return nil
}

// runStages executes fetch, extraction, biometrics, risk and decision, and
// assembles the outcome for the transactional persist.
func (s *PipelineService) runStages(ctx context.Context, job *model.VerificationJob) (*core.PipelineOutcomeParams, error) {
	front, back, selfie, err := s.fetchDocuments(ctx, job)
	if err != nil {
		return nil, err
	}

	var (
		fields *model.ExtractedFields
		bio    biometric.Result
	)

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		fields, err = s.extractFields(gctx, job, front, back)
		return err
	})
	group.Go(func() error {
		var err error
		bio, err = s.scoreBiometrics(gctx, job, front, selfie)
		return err
	})
	if err := group.Wait(); err != nil {
		return nil, err
	}

	risk := verdict.RiskScore(fields, bio)
	decision := verdict.Decide(risk.Score, s.thresholds)
	now := s.timeProvider.Now()

	outcome := &core.PipelineOutcomeParams{
		JobID:           job.ID,
		ExtractedFields: fields,
		FaceScore:       bio.FaceScore,
		LivenessScore:   bio.LivenessScore,
		QualityScore:    bio.QualityScore,
		RiskScore:       risk.Score,
		Unscored:        risk.Unscored,
		Status:          decision.Status,
		Tier:            decision.Tier,
		AutoDecided:     decision.AutoDecided,
	}

	if decision.Status.Terminal() {
		reviewedAt := now
		retention := now.Add(s.recordWindow)
		outcome.ReviewedAt = &reviewedAt
		outcome.RetentionUntil = &retention
	}

	snapshot, err := s.sealSnapshot(job)
	if err != nil {
		return nil, fmt.Errorf("seal personal data snapshot: %w", err)
	}
	outcome.EncryptedSnapshot = snapshot

	return outcome, nil
}

// fetchDocuments downloads the three submitted images, retrying each bounded
// number of times.
func (s *PipelineService) fetchDocuments(ctx context.Context, job *model.VerificationJob) (front, back, selfie []byte, err error) {
	start := s.timeProvider.Now()

	refs := []struct {
		name string
		ref  string
		dst  *[]byte
	}{
		{name: "doc_front", ref: job.DocFrontRef, dst: &front},
		{name: "doc_back", ref: job.DocBackRef, dst: &back},
		{name: "selfie", ref: job.SelfieRef, dst: &selfie},
	}

	group, gctx := errgroup.WithContext(ctx)
	for _, item := range refs {
		group.Go(func() error {
			body, err := s.fetchWithRetry(gctx, item.ref)
			if err != nil {
				return fmt.Errorf("fetch %s %q: %w", item.name, item.ref, err)
			}
			*item.dst = body
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		s.emitStageMetric("fetch", "", metrics.ResultError, s.timeProvider.Now().Sub(start), err)
		return nil, nil, nil, err
	}

	s.emitStageMetric("fetch", "", metrics.ResultSuccess, s.timeProvider.Now().Sub(start), nil)
	return front, back, selfie, nil
}

func (s *PipelineService) fetchWithRetry(ctx context.Context, ref string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= s.fetchRetries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
		body, err := s.documents.Fetch(attemptCtx, ref)
		cancel()
		if err == nil {
			return body, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

func (s *PipelineService) extractFields(ctx context.Context, job *model.VerificationJob, front, back []byte) (*model.ExtractedFields, error) {
	start := s.timeProvider.Now()

	frontDoc, err := s.recognizer.Recognize(ctx, front)
	if err != nil {
		s.emitStageMetric("extraction", "", metrics.ResultError, s.timeProvider.Now().Sub(start), err)
		return nil, fmt.Errorf("recognize document front: %w", err)
	}
	backDoc, err := s.recognizer.Recognize(ctx, back)
	if err != nil {
		s.emitStageMetric("extraction", "", metrics.ResultError, s.timeProvider.Now().Sub(start), err)
		return nil, fmt.Errorf("recognize document back: %w", err)
	}

	fields := extract.Parse(frontDoc, backDoc)

	s.appendAudit(ctx, job.ID, model.AuditActionExtractionComplete, map[string]any{
		"confidence": fields.Confidence,
		"empty":      fields.Empty(),
		"has_mrz":    fields.MRZ != nil,
	})
	s.emitStageMetric("extraction", "", metrics.ResultSuccess, s.timeProvider.Now().Sub(start), nil)

	return fields, nil
}

func (s *PipelineService) scoreBiometrics(ctx context.Context, job *model.VerificationJob, document, selfie []byte) (biometric.Result, error) {
	start := s.timeProvider.Now()

	result, err := s.biometrics.Score(ctx, document, selfie)
	if err != nil {
		s.emitStageMetric("biometrics", "", metrics.ResultError, s.timeProvider.Now().Sub(start), err)
		return biometric.Result{}, fmt.Errorf("score biometrics: %w", err)
	}

	s.appendAudit(ctx, job.ID, model.AuditActionBiometricsComplete, map[string]any{
		"face_score":     result.FaceScore,
		"face_match":     result.FaceMatch,
		"liveness_score": result.LivenessScore,
		"is_live":        result.IsLive,
		"multiple_faces": result.MultipleFaces,
		"quality_score":  result.QualityScore,
	})
	s.emitStageMetric("biometrics", "", metrics.ResultSuccess, s.timeProvider.Now().Sub(start), nil)

	return result, nil
}

// sealSnapshot encrypts the subject's declared personal data so the plaintext
// columns can be anonymized later without losing the regulated copy.
func (s *PipelineService) sealSnapshot(job *model.VerificationJob) (*string, error) {
	sealed, err := cryptoutil.SealSnapshot(s.encryptor, cryptoutil.Snapshot{
		FullName:    job.FullName,
		DateOfBirth: job.DateOfBirth,
		Address:     job.Address,
		Email:       job.Email,
		Phone:       job.Phone,
	})
	if err != nil {
		return nil, err
	}
	return &sealed, nil
}

// failJob terminally marks the job Failed. Failed jobs keep the regular
// retention clock so their personal data still ages out.
func (s *PipelineService) failJob(ctx context.Context, job *model.VerificationJob, cause error) {
	now := s.timeProvider.Now()
	note := cause.Error()

	applied, err := s.jobs.Fail(ctx, job.ID, note, now, now.Add(s.recordWindow))
	if err != nil {
		if s.logger != nil {
			s.logger.ErrorContext(ctx, "failed to mark job as failed",
				"ticket_id", job.ID,
				"error", err,
			)
		}
		return
	}
	if !applied {
		return
	}

	s.appendAudit(ctx, job.ID, model.AuditActionDecision, map[string]any{
		"status": string(model.JobStatusFailed),
		"error":  note,
	})

	if s.logger != nil {
		s.logger.ErrorContext(ctx, "verification pipeline failed",
			"ticket_id", job.ID,
			"error", cause,
		)
	}

	if s.notifier != nil && s.notifier.Enabled() {
		failed := *job
		failed.Status = model.JobStatusFailed
		failed.Note = &note
		s.notifier.NotifyStatusChange(ctx, statusPayload(&failed, now))
	}
}

func (s *PipelineService) notifyOutcome(ctx context.Context, job *model.VerificationJob, outcome *core.PipelineOutcomeParams) {
	if s.notifier == nil || !s.notifier.Enabled() {
		return
	}

	decided := *job
	decided.Status = outcome.Status
	decided.Tier = outcome.Tier
	decided.AutoDecided = outcome.AutoDecided
	decided.RiskScore = &outcome.RiskScore
	decided.FaceScore = &outcome.FaceScore
	decided.LivenessScore = &outcome.LivenessScore
	s.notifier.NotifyStatusChange(ctx, statusPayload(&decided, s.timeProvider.Now()))
}

func (s *PipelineService) appendAudit(ctx context.Context, jobID string, action model.AuditAction, details any) {
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

func (s *PipelineService) emitStageMetric(stage, status, result string, elapsed time.Duration, err error) {
	if s.metrics == nil {
		return
	}
	metrics.EmitVerificationLifecycle(s.metrics, metrics.VerificationMetric{
		Stage:    stage,
		Status:   status,
		Result:   result,
		Duration: elapsed,
		Err:      err,
	})
}
