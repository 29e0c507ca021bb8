// Package retention provides the adapter for running the data-retention sweeper.
package retention

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/echofi/kyc-service/config"
	"github.com/echofi/kyc-service/internal/core"
	"github.com/echofi/kyc-service/internal/data"
	"github.com/echofi/kyc-service/internal/observability/statsd"
	"github.com/echofi/kyc-service/internal/service"
)

// Runner constructs the retention service from a database handle and runs
// its sweep loop.
type Runner struct {
	retention *service.RetentionService
	logger    *slog.Logger
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	DB     *sql.DB
	Config config.RetentionConfig
	Logger *slog.Logger

	// Optional dependency injection for testing/decoupling
	Jobs    core.JobRepository
	Audit   core.AuditRepository
	Metrics statsd.Sink
}

// NewRunner creates a new retention runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if err := validateRunnerOptions(&opts); err != nil {
		return nil, err
	}

	svc, err := wireRetentionService(opts)
	if err != nil {
		return nil, fmt.Errorf("wire retention service: %w", err)
	}

	return &Runner{
		retention: svc,
		logger:    opts.Logger,
	}, nil
}

func validateRunnerOptions(opts *RunnerOptions) error {
	if opts.DB == nil && (opts.Jobs == nil || opts.Audit == nil) {
		return errors.New("database connection or explicit repositories are required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return nil
}

func wireRetentionService(opts RunnerOptions) (*service.RetentionService, error) {
	jobs := opts.Jobs
	if jobs == nil {
		jobs = data.NewVerificationRepo(opts.DB, data.RepoConfig{Logger: opts.Logger})
	}
	audit := opts.Audit
	if audit == nil {
		audit = data.NewAuditRepo(opts.DB, data.RepoConfig{Logger: opts.Logger})
	}

	return service.NewRetentionService(service.RetentionServiceOptions{
		Jobs:    jobs,
		Audit:   audit,
		Config:  opts.Config,
		Logger:  opts.Logger,
		Metrics: opts.Metrics,
	})
}

// Run starts the retention loop and runs until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting retention runner")
	return r.retention.Run(ctx)
}
