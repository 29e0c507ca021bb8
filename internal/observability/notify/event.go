package notify

import (
	"context"
	"time"
)

// StatusPayload captures the canonical data emitted when a verification job
// reaches a decision and the subject (or an operator) must be told.
type StatusPayload struct {
	TicketID      string
	SubjectID     string
	FullName      string
	Email         string
	Status        string
	Tier          int
	AutoDecided   bool
	RiskScore     *float64
	FaceScore     *float64
	LivenessScore *float64
	Note          string
	OccurredAt    time.Time
}

// Sink describes a destination capable of consuming status notifications.
type Sink interface {
	SendStatusUpdate(ctx context.Context, payload StatusPayload) error
}

// SinkFunc adapts a function to the Sink interface (useful for tests).
type SinkFunc func(ctx context.Context, payload StatusPayload) error

// SendStatusUpdate implements the Sink interface.
func (f SinkFunc) SendStatusUpdate(ctx context.Context, payload StatusPayload) error {
	if f == nil {
		return nil
	}
	return f(ctx, payload)
}
