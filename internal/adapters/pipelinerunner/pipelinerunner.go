// Package pipelinerunner provides the worker-pool adapter that consumes the
// verification queue and drives the pipeline service.
package pipelinerunner

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/echofi/kyc-service/config"
	"github.com/echofi/kyc-service/internal/core"
	"github.com/echofi/kyc-service/internal/data"
	"github.com/echofi/kyc-service/internal/data/cryptoutil"
	"github.com/echofi/kyc-service/internal/domain/biometric"
	"github.com/echofi/kyc-service/internal/domain/extract"
	domainjob "github.com/echofi/kyc-service/internal/domain/job"
	"github.com/echofi/kyc-service/internal/domain/model"
	"github.com/echofi/kyc-service/internal/domain/verdict"
	"github.com/echofi/kyc-service/internal/observability/statsd"
	"github.com/echofi/kyc-service/internal/service"
	"github.com/echofi/kyc-service/internal/service/statusnotifier"
)

// RunnerOptions configures the verification pipeline runner adapter.
type RunnerOptions struct {
	DB     *sql.DB
	Logger *slog.Logger

	Pipeline     config.PipelineConfig
	Verification config.VerificationConfig

	// RecordWindow is how long terminal records are retained before
	// anonymization; zero falls back to the pipeline service default.
	RecordWindow time.Duration

	// Domain collaborators. Recognizer and Biometrics have no DB-backed
	// fallback and must always be supplied.
	Documents  core.DocumentStore
	Recognizer extract.Recognizer
	Biometrics *biometric.Scorer

	// Optional dependency injections (useful for tests/decoupling)
	JobsRepo     core.JobRepository
	AuditRepo    core.AuditRepository
	Encryptor    cryptoutil.Encryptor
	Notifier     *statusnotifier.Service
	JobNotifier  domainjob.Notifier
	Metrics      statsd.Sink
	TimeProvider data.TimeProvider
}

// Runner consumes verification jobs from the queue and processes each one
// through the pipeline service, holding the job lease alive while it works.
// defaultLease backs the lease policy when the configured lease is unusable.
const defaultLease = 120 * time.Second

type Runner struct {
	pipeline *service.PipelineService
	jobs     core.JobRepository
	notifier domainjob.Notifier
	logger   *slog.Logger
	leases   *domainjob.LeasePolicy
	lease    time.Duration
	workers  int

	ownsNotifier bool
}

// NewRunner creates a new verification pipeline runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	logger := resolveLogger(opts.Logger)

	deps, err := resolveDependencies(opts)
	if err != nil {
		return nil, err
	}

	pipeline, err := service.NewPipelineService(service.PipelineServiceOptions{
		Jobs:       deps.jobs,
		Audit:      deps.audit,
		Documents:  opts.Documents,
		Recognizer: opts.Recognizer,
		Biometrics: opts.Biometrics,
		Thresholds: verdict.Thresholds{
			AutoApprove:  opts.Verification.AutoApprovalThreshold,
			ManualReview: opts.Verification.ManualReviewThreshold,
		},
		Encryptor:    opts.Encryptor,
		Notifier:     opts.Notifier,
		Logger:       opts.Logger,
		Metrics:      opts.Metrics,
		TimeProvider: opts.TimeProvider,
		FetchTimeout: opts.Pipeline.FetchTimeout,
		FetchRetries: opts.Pipeline.FetchRetries,
		RecordWindow: opts.RecordWindow,
	})
	if err != nil {
		return nil, fmt.Errorf("create pipeline service: %w", err)
	}

	notifier := opts.JobNotifier
	ownsNotifier := false
	if notifier == nil {
		notifier, err = domainjob.NewNotifier(domainjob.NotifierOptions{Waiter: deps.jobs})
		if err != nil {
			return nil, fmt.Errorf("create job notifier: %w", err)
		}
		ownsNotifier = true
	}

	leases, err := domainjob.NewLeasePolicy(defaultLease)
	if err != nil {
		return nil, fmt.Errorf("create lease policy: %w", err)
	}

	return &Runner{
		pipeline:     pipeline,
		jobs:         deps.jobs,
		notifier:     notifier,
		logger:       logger,
		leases:       leases,
		lease:        opts.Pipeline.JobLease,
		workers:      resolveWorkers(opts.Pipeline.Concurrency),
		ownsNotifier: ownsNotifier,
	}, nil
}

// Run starts the worker pool and processes jobs until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting verification pipeline runner",
		"workers", r.workers,
		"lease", r.lease,
	)
	if r.ownsNotifier {
		defer r.notifier.StopAll()
	}

	group, gctx := errgroup.WithContext(ctx)
	for range r.workers {
		group.Go(func() error { return r.runWorkerLoop(gctx) })
	}
	return group.Wait()
}

// runWorkerLoop reserves and processes jobs until the context ends. An empty
// queue parks the worker on the notification channel instead of polling.
func (r *Runner) runWorkerLoop(ctx context.Context) error {
	unsub, ch := r.notifier.Subscribe()
	defer unsub()

	leaseSeconds := r.leases.Resolve(r.lease)

	for ctx.Err() == nil {
		job, err := r.jobs.ReserveNext(ctx, leaseSeconds)
		switch {
		case err == nil:
			if job != nil {
				r.processJob(ctx, job)
			}
		case errors.Is(err, model.ErrNoJobsAvailable):
			if !r.waitForNotify(ctx, ch) {
				return nil
			}
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			return nil
		default:
			r.logger.ErrorContext(ctx, "failed to reserve next verification job", "error", err)
			return err
		}
	}
	return nil
}

// processJob runs the pipeline for one claimed job. The pipeline service owns
// failure handling and metrics; the runner only keeps the lease alive.
func (r *Runner) processJob(ctx context.Context, job *model.VerificationJob) {
	r.logger.InfoContext(ctx, "processing verification job",
		"ticket_id", job.ID,
		"subject_id", job.SubjectID,
	)

	stopHB := r.startHeartbeat(ctx, job.ID)
	defer stopHB()

	if err := r.pipeline.Process(ctx, job); err != nil {
		r.logger.ErrorContext(ctx, "verification job processing failed",
			"ticket_id", job.ID,
			"error", err,
		)
	}
}

// startHeartbeat extends the job lease periodically until the returned stop
// function is called.
func (r *Runner) startHeartbeat(ctx context.Context, jobID string) func() {
	leaseSeconds := r.leases.Resolve(r.lease)
	interval := time.Duration(leaseSeconds) * time.Second / 2
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if ok, err := r.jobs.Heartbeat(ctx, jobID, leaseSeconds); err != nil {
					r.logger.ErrorContext(ctx, "heartbeat failed", "ticket_id", jobID, "error", err)
				} else if !ok {
					r.logger.WarnContext(ctx, "heartbeat not applied (lease may be lost)", "ticket_id", jobID)
				}
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return func() { close(done) }
}

// waitForNotify waits for a job notification or context cancellation.
func (r *Runner) waitForNotify(ctx context.Context, notify <-chan struct{}) bool {
	select {
	case <-ctx.Done():
		return false
	case <-notify:
		return true
	}
}

type runnerDeps struct {
	jobs  core.JobRepository
	audit core.AuditRepository
}

func resolveDependencies(opts RunnerOptions) (*runnerDeps, error) {
	deps := &runnerDeps{
		jobs:  opts.JobsRepo,
		audit: opts.AuditRepo,
	}
	if deps.jobs == nil && opts.DB != nil {
		deps.jobs = data.NewVerificationRepo(opts.DB, data.RepoConfig{
			Logger:       opts.Logger,
			TimeProvider: opts.TimeProvider,
		})
	}
	if deps.audit == nil && opts.DB != nil {
		deps.audit = data.NewAuditRepo(opts.DB, data.RepoConfig{
			Logger:       opts.Logger,
			TimeProvider: opts.TimeProvider,
		})
	}

	var missing []string
	if deps.jobs == nil {
		missing = append(missing, "JobRepository")
	}
	if deps.audit == nil {
		missing = append(missing, "AuditRepository")
	}
	if opts.Documents == nil {
		missing = append(missing, "DocumentStore")
	}
	if opts.Recognizer == nil {
		missing = append(missing, "Recognizer")
	}
	if opts.Biometrics == nil {
		missing = append(missing, "biometric Scorer")
	}
	if len(missing) > 0 {
		noun := "dependency"
		if len(missing) > 1 {
			noun = "dependencies"
		}
		return nil, fmt.Errorf(
			"pipeline runner requires a DB handle or explicit implementations for the following %s: %s",
			noun,
			strings.Join(missing, ", "),
		)
	}
	return deps, nil
}

func resolveLogger(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.Default()
}

func resolveWorkers(workers int) int {
	if workers > 0 {
		return workers
	}
	return 1
}
