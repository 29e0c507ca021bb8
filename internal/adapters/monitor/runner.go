// Package monitor provides the adapter for running the stale-job monitor.
package monitor

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
	"github.com/echofi/kyc-service/internal/service/statusnotifier"
)

// Runner constructs the monitor service from a database handle and runs its
// watch loop.
type Runner struct {
	monitor *service.MonitorService
	logger  *slog.Logger
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	DB     *sql.DB
	Config config.MonitorConfig
	Logger *slog.Logger

	// Optional dependency injection for testing/decoupling
	Jobs     core.JobRepository
	Audit    core.AuditRepository
	Notifier *statusnotifier.Service
	Metrics  statsd.Sink
}

// NewRunner creates a new monitor runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if err := validateRunnerOptions(&opts); err != nil {
		return nil, err
	}

	svc, err := wireMonitorService(opts)
	if err != nil {
		return nil, fmt.Errorf("wire monitor service: %w", err)
	}

	return &Runner{
		monitor: svc,
		logger:  opts.Logger,
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

func wireMonitorService(opts RunnerOptions) (*service.MonitorService, error) {
	jobs := opts.Jobs
	if jobs == nil {
		jobs = data.NewVerificationRepo(opts.DB, data.RepoConfig{Logger: opts.Logger})
	}
	audit := opts.Audit
	if audit == nil {
		audit = data.NewAuditRepo(opts.DB, data.RepoConfig{Logger: opts.Logger})
	}

	return service.NewMonitorService(service.MonitorServiceOptions{
		Jobs:     jobs,
		Audit:    audit,
		Config:   opts.Config,
		Notifier: opts.Notifier,
		Logger:   opts.Logger,
		Metrics:  opts.Metrics,
	})
}

// Run starts the monitor loop and runs until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting monitor runner")
	return r.monitor.Run(ctx)
}
