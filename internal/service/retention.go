package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
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
)

// RetentionServiceOptions groups dependencies for RetentionService.
type RetentionServiceOptions struct {
	Jobs   core.JobRepository     // Required: verification job repository
	Audit  core.AuditRepository   // Required: audit trail repository
	Config config.RetentionConfig // Required: retention configuration

	Logger       *slog.Logger      // Optional: structured logger
	Metrics      statsd.Sink       // Optional: metrics sink (StatsD-compatible)
	TimeProvider data.TimeProvider // Optional: clock override for tests
}

// RetentionService enforces the data-retention policy:
// - anonymizing terminal jobs whose retention window has passed
// - marking audit events past the audit window as archived.
// Records are anonymized in place, never deleted, so the audit trail and the
// job's terminal state remain verifiable.
type RetentionService struct {
	jobs         core.JobRepository
	audit        core.AuditRepository
	config       config.RetentionConfig
	logger       *slog.Logger
	metrics      statsd.Sink
	timeProvider data.TimeProvider
}

// NewRetentionService constructs a new RetentionService.
func NewRetentionService(opts RetentionServiceOptions) (*RetentionService, error) {
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
		logger = opts.Logger.With("component", "retention_service")
		logger.Debug("RetentionService initialized",
			"interval", opts.Config.Interval,
			"record_window", opts.Config.RecordWindow,
			"audit_window", opts.Config.AuditWindow,
			"batch_size", opts.Config.BatchSize,
		)
	}

	return &RetentionService{
		jobs:         opts.Jobs,
		audit:        opts.Audit,
		config:       opts.Config,
		logger:       logger,
		metrics:      opts.Metrics,
		timeProvider: tp,
	}, nil
}

// Run starts the retention loop and runs until the context is cancelled.
// Returns nil on graceful shutdown (context.Canceled), error otherwise.
func (s *RetentionService) Run(ctx context.Context) error {
	if s.logger != nil {
		s.logger.InfoContext(ctx, "starting retention service", "interval", s.config.Interval)
	}

	// Jitter avoids synchronized sweeps when several instances start together.
	waitWithJitter(ctx, s.config.Interval, s.logger)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	if err := s.Sweep(ctx); err != nil && !isContextCancellation(err) {
		s.logSweepError(ctx, err)
	}

	for {
		select {
		case <-ctx.Done():
			if s.logger != nil {
				s.logger.InfoContext(ctx, "retention service stopping", "reason", ctx.Err())
			}
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil && !isContextCancellation(err) {
				s.logSweepError(ctx, err)
				// Keep running despite errors.
			}
		}
	}
}

// Sweep performs one retention pass: record anonymization then audit archival.
func (s *RetentionService) Sweep(ctx context.Context) error {
	start := s.timeProvider.Now()
	var errs []error

	anonymized, err := s.anonymizeExpiredRecords(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("anonymize expired records: %w", err))
	}

	archived, err := s.archiveOldAuditEvents(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("archive old audit events: %w", err))
	}

	elapsed := s.timeProvider.Now().Sub(start)
	s.emitSweepMetrics(anonymized, archived, elapsed, errors.Join(errs...))

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// anonymizeExpiredRecords loops batched anonymization until a sweep drains.
func (s *RetentionService) anonymizeExpiredRecords(ctx context.Context) (int64, error) {
	var total int64
	for {
		count, err := s.jobs.AnonymizeExpired(ctx, s.config.BatchSize)
		if err != nil {
			return total, err
		}
		total += count
		if count == 0 {
			break
		}
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
	}

	if total > 0 {
		if s.logger != nil {
			s.logger.InfoContext(ctx, "anonymized expired verification records",
				"count", total,
				"record_window", s.config.RecordWindow,
			)
		}
		if _, err := s.audit.Append(ctx, core.AppendAuditParams{
			Action: model.AuditActionDataCleanup,
			Details: map[string]any{
				"records_anonymized": total,
				"record_window":      s.config.RecordWindow.String(),
			},
		}); err != nil && s.logger != nil {
			s.logger.ErrorContext(ctx, "failed to audit retention cleanup", "error", err)
		}
	}

	return total, nil
}

// archiveOldAuditEvents flags audit rows older than the audit window.
func (s *RetentionService) archiveOldAuditEvents(ctx context.Context) (int64, error) {
	cutoff := s.timeProvider.Now().Add(-s.config.AuditWindow)

	var total int64
	for {
		count, err := s.audit.MarkArchivedBefore(ctx, cutoff, s.config.BatchSize)
		if err != nil {
			return total, err
		}
		total += count
		if count == 0 {
			break
		}
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
	}

	if total > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "archived old audit events",
			"count", total,
			"cutoff", cutoff,
		)
	}

	return total, nil
}

func (s *RetentionService) emitSweepMetrics(anonymized, archived int64, elapsed time.Duration, err error) {
	if s.metrics == nil {
		return
	}

	result := metrics.ResultNoop
	switch {
	case err != nil:
		result = metrics.ResultError
	case anonymized > 0 || archived > 0:
		result = metrics.ResultSuccess
	}

	metrics.EmitVerificationLifecycle(s.metrics, metrics.VerificationMetric{
		Stage:    "retention_sweep",
		Result:   result,
		Duration: elapsed,
		Err:      err,
	})
	s.metrics.Count("retention.records_anonymized", anonymized, nil)
	s.metrics.Count("retention.audit_events_archived", archived, nil)
}

func (s *RetentionService) logSweepError(ctx context.Context, err error) {
	if s.logger != nil {
		s.logger.ErrorContext(ctx, "retention sweep failed", "error", err)
	}
}

// waitWithJitter sleeps a random delay up to 10% of the interval.
func waitWithJitter(ctx context.Context, interval time.Duration, logger *slog.Logger) {
	maxJitter := int64(interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// If crypto/rand fails, skip jitter rather than failing startup.
		if logger != nil {
			logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		}
		return
	}

	jitterNanos := binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter)
	jitter := time.Duration(int64(jitterNanos)) // #nosec G115 - bounded by maxJitter which is int64

	select {
	case <-time.After(jitter):
	case <-ctx.Done():
	}
}

// isContextCancellation reports whether err is rooted in context cancellation.
func isContextCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
