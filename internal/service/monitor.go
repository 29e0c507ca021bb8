package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/echofi/kyc-service/config"
	"github.com/echofi/kyc-service/internal/core"
	"github.com/echofi/kyc-service/internal/data"
	"github.com/echofi/kyc-service/internal/domain/model"
	"github.com/echofi/kyc-service/internal/observability/metrics"
	"github.com/echofi/kyc-service/internal/observability/statsd"
	"github.com/echofi/kyc-service/internal/service/statusnotifier"
)

// staleSweepLimit bounds how many stuck jobs one sweep inspects.
const staleSweepLimit = 200

// MonitorServiceOptions groups dependencies for MonitorService.
type MonitorServiceOptions struct {
	Jobs   core.JobRepository   // Required: verification job repository
	Audit  core.AuditRepository // Required: audit trail repository
	Config config.MonitorConfig // Required: monitor configuration

	Notifier     *statusnotifier.Service // Optional: escalation notification fan-out
	Logger       *slog.Logger            // Optional: structured logger
	Metrics      statsd.Sink             // Optional: metrics sink (StatsD-compatible)
	TimeProvider data.TimeProvider       // Optional: clock override for tests
}

// MonitorService watches for jobs stuck in processing and produces periodic
// compliance reports. Stuck jobs are flagged and escalated, never cancelled:
// a slow worker may still hold a valid lease.
type MonitorService struct {
	jobs         core.JobRepository
	audit        core.AuditRepository
	config       config.MonitorConfig
	notifier     *statusnotifier.Service
	logger       *slog.Logger
	metrics      statsd.Sink
	timeProvider data.TimeProvider

	lastReport time.Time
}

// NewMonitorService constructs a new MonitorService.
func NewMonitorService(opts MonitorServiceOptions) (*MonitorService, error) {
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

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "monitor_service")
		logger.Debug("MonitorService initialized",
			"interval", opts.Config.Interval,
			"stale_after", opts.Config.StaleAfter,
			"report_period", opts.Config.ReportPeriod,
		)
	}

	return &MonitorService{
		jobs:         opts.Jobs,
		audit:        opts.Audit,
		config:       opts.Config,
		notifier:     opts.Notifier,
		logger:       logger,
		metrics:      opts.Metrics,
		timeProvider: tp,
	}, nil
}

// Run starts the monitor loop and runs until the context is cancelled.
// Returns nil on graceful shutdown (context.Canceled), error otherwise.
func (s *MonitorService) Run(ctx context.Context) error {
	if s.logger != nil {
		s.logger.InfoContext(ctx, "starting monitor service", "interval", s.config.Interval)
	}

	waitWithJitter(ctx, s.config.Interval, s.logger)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	if err := s.Tick(ctx); err != nil && !isContextCancellation(err) {
		s.logTickError(ctx, err)
	}

	for {
		select {
		case <-ctx.Done():
			if s.logger != nil {
				s.logger.InfoContext(ctx, "monitor service stopping", "reason", ctx.Err())
			}
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case <-ticker.C:
			if err := s.Tick(ctx); err != nil && !isContextCancellation(err) {
				s.logTickError(ctx, err)
			}
		}
	}
}

// Tick performs one monitor pass: stale-job sweep and, when the report period
// has elapsed, a compliance report.
func (s *MonitorService) Tick(ctx context.Context) error {
	var errs []error

	if _, err := s.FlagStaleJobs(ctx); err != nil {
		errs = append(errs, fmt.Errorf("flag stale jobs: %w", err))
	}

	now := s.timeProvider.Now()
	if now.Sub(s.lastReport) >= s.config.ReportPeriod {
		if _, err := s.ComplianceReport(ctx); err != nil {
			errs = append(errs, fmt.Errorf("compliance report: %w", err))
		} else {
			s.lastReport = now
		}
	}

	return errors.Join(errs...)
}

// FlagStaleJobs finds jobs stuck in processing past the staleness threshold,
// records a stale_flagged audit event for each, and escalates via the notifier.
func (s *MonitorService) FlagStaleJobs(ctx context.Context) (int, error) {
	start := s.timeProvider.Now()

	stale, err := s.jobs.FindStaleProcessing(ctx, s.config.StaleAfter, staleSweepLimit)
	if err != nil {
		s.emitMonitorMetric("stale_sweep", metrics.ResultError, s.timeProvider.Now().Sub(start), err)
		return 0, err
	}

	for _, job := range stale {
		stuckFor := start.Sub(job.UpdatedAt)

		if _, err := s.audit.Append(ctx, core.AppendAuditParams{
			JobID:  job.ID,
			Action: model.AuditActionStaleFlagged,
			Details: map[string]any{
				"stuck_for":   stuckFor.String(),
				"stale_after": s.config.StaleAfter.String(),
			},
		}); err != nil && s.logger != nil {
			s.logger.ErrorContext(ctx, "failed to audit stale job",
				"ticket_id", job.ID,
				"error", err,
			)
		}

		if s.logger != nil {
			s.logger.WarnContext(ctx, "verification job stuck in processing",
				"ticket_id", job.ID,
				"subject_id", job.SubjectID,
				"stuck_for", stuckFor,
			)
		}

		if s.notifier != nil && s.notifier.Enabled() {
			s.notifier.NotifyStatusChange(ctx, statusPayload(job, start))
		}
	}

	result := metrics.ResultNoop
	if len(stale) > 0 {
		result = metrics.ResultSuccess
	}
	s.emitMonitorMetric("stale_sweep", result, s.timeProvider.Now().Sub(start), nil)
	if s.metrics != nil {
		s.metrics.Gauge("monitor.stale_jobs", float64(len(stale)), nil)
	}

	return len(stale), nil
}

// ComplianceReport aggregates submission outcomes over the report period and
// appends the result as a system-scoped audit event.
func (s *MonitorService) ComplianceReport(ctx context.Context) (*model.JobStats, error) {
	now := s.timeProvider.Now()
	since := now.Add(-s.config.ReportPeriod)

	stats, err := s.jobs.StatsSince(ctx, since)
	if err != nil {
		return nil, err
	}

	if _, err := s.audit.Append(ctx, core.AppendAuditParams{
		Action: model.AuditActionComplianceReport,
		Details: map[string]any{
			"period_start":  since.UTC().Format(time.RFC3339),
			"period_end":    now.UTC().Format(time.RFC3339),
			"total":         stats.Total(),
			"pending":       stats.Pending,
			"processing":    stats.Processing,
			"passed":        stats.Passed,
			"rejected":      stats.Rejected,
			"manual_review": stats.ManualReview,
			"failed":        stats.Failed,
		},
	}); err != nil {
		return nil, fmt.Errorf("append compliance report: %w", err)
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "compliance report recorded",
			"period_start", since,
			"period_end", now,
			"total", stats.Total(),
			"passed", stats.Passed,
			"rejected", stats.Rejected,
		)
	}

	return stats, nil
}

func (s *MonitorService) emitMonitorMetric(stage, result string, elapsed time.Duration, err error) {
	if s.metrics == nil {
		return
	}
	metrics.EmitVerificationLifecycle(s.metrics, metrics.VerificationMetric{
		Stage:    stage,
		Result:   result,
		Duration: elapsed,
		Err:      err,
	})
}

func (s *MonitorService) logTickError(ctx context.Context, err error) {
	if s.logger != nil {
		s.logger.ErrorContext(ctx, "monitor tick failed", "error", err)
	}
}
