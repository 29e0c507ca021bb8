package model

import (
	"encoding/json"
	"time"
)

// AuditAction tags the kind of event recorded in the audit trail.
type AuditAction string

const (
	// AuditActionSubmit records admission of a new verification job.
	AuditActionSubmit AuditAction = "submit"
	// AuditActionStartProcessing records a worker picking up the job.
	AuditActionStartProcessing AuditAction = "start_processing"
	// AuditActionExtractionComplete records the field-extraction stage finishing.
	AuditActionExtractionComplete AuditAction = "extraction_complete"
	// AuditActionBiometricsComplete records the biometric stage finishing.
	AuditActionBiometricsComplete AuditAction = "biometrics_complete"
	// AuditActionDecision records the automatic decision for the job.
	AuditActionDecision AuditAction = "decision"
	// AuditActionManualReview records a human reviewer's decision.
	AuditActionManualReview AuditAction = "manual_review"
	// AuditActionNotificationSent records a delivered status notification.
	AuditActionNotificationSent AuditAction = "notification_sent"
	// AuditActionDataCleanup records retention anonymization of the job.
	AuditActionDataCleanup AuditAction = "data_cleanup"
	// AuditActionGDPRDeletion records an explicit right-to-erasure request.
	AuditActionGDPRDeletion AuditAction = "gdpr_data_deletion"
	// AuditActionComplianceReport records a periodic compliance aggregation.
	AuditActionComplianceReport AuditAction = "compliance_report"
	// AuditActionStaleFlagged records the staleness monitor flagging the job.
	AuditActionStaleFlagged AuditAction = "stale_flagged"
)

// SystemScoped reports whether the action describes the system rather than a
// single job. System-scoped events carry no job id.
func (a AuditAction) SystemScoped() bool {
	return a == AuditActionDataCleanup || a == AuditActionComplianceReport
}

// AuditEvent is one append-only, immutable entry in a job's audit trail.
// Events for a job are ordered by the sequence their transitions occurred in.
type AuditEvent struct {
	ID        string          `json:"id"                db:"id"`
	JobID     string          `json:"job_id"            db:"job_id"`
	Action    AuditAction     `json:"action"            db:"action"`
	Details   json.RawMessage `json:"details,omitempty" db:"details"`
	Archived  bool            `json:"archived"          db:"archived"`
	Timestamp time.Time       `json:"timestamp"         db:"timestamp"`
}
