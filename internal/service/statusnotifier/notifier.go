// Package statusnotifier fans verification status updates out to the
// configured notification sinks.
package statusnotifier

import (
	"context"
	"log/slog"
	"sync"

	"github.com/echofi/kyc-service/internal/core"
	"github.com/echofi/kyc-service/internal/domain/model"
	"github.com/echofi/kyc-service/internal/observability/notify"
)

// SinkRegistration pairs a sink implementation with a human-readable name for logging.
type SinkRegistration struct {
	Name string
	Sink notify.Sink
}

// Options configures the status notifier service.
type Options struct {
	Logger *slog.Logger
	Sinks  []SinkRegistration
	// Audit is optional; when present each delivery is recorded on the
	// job's audit trail.
	Audit core.AuditRepository
}

// Service dispatches status updates to all registered sinks.
type Service struct {
	logger *slog.Logger
	sinks  []SinkRegistration
	audit  core.AuditRepository
}

// NewService constructs a status notifier.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default().With("component", "status_notifier")
	}

	var sinks []SinkRegistration
	for _, entry := range opts.Sinks {
		if entry.Sink == nil {
			continue
		}
		name := entry.Name
		if name == "" {
			name = "sink"
		}
		sinks = append(sinks, SinkRegistration{
			Name: name,
			Sink: entry.Sink,
		})
	}

	return &Service{
		logger: logger,
		sinks:  sinks,
		audit:  opts.Audit,
	}
}

// NotifyStatusChange fans the status payload out to all sinks concurrently.
// Delivery failures are logged, never propagated: a dead webhook must not
// block or fail the verification itself.
func (s *Service) NotifyStatusChange(ctx context.Context, payload notify.StatusPayload) {
	if len(s.sinks) == 0 {
		return
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		delivered []string
	)
	for _, entry := range s.sinks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := entry.Sink.SendStatusUpdate(ctx, payload); err != nil {
				s.logger.Error("status notification delivery error",
					"sink", entry.Name,
					"ticket_id", payload.TicketID,
					"status", payload.Status,
					"error", err,
				)
				return
			}
			mu.Lock()
			delivered = append(delivered, entry.Name)
			mu.Unlock()
		}()
	}
	wg.Wait()

	s.recordDeliveries(ctx, payload, delivered)
}

func (s *Service) recordDeliveries(ctx context.Context, payload notify.StatusPayload, delivered []string) {
	if s.audit == nil || len(delivered) == 0 || payload.TicketID == "" {
		return
	}

	_, err := s.audit.Append(ctx, core.AppendAuditParams{
		JobID:  payload.TicketID,
		Action: model.AuditActionNotificationSent,
		Details: map[string]any{
			"sinks":  delivered,
			"status": payload.Status,
		},
	})
	if err != nil {
		s.logger.Error("failed to audit notification delivery",
			"ticket_id", payload.TicketID,
			"error", err,
		)
	}
}

// Enabled reports whether the notifier has any active sinks.
func (s *Service) Enabled() bool {
	return len(s.sinks) > 0
}
