// Package model defines the core data types shared across the verification
// pipeline, the HTTP layer, and the data layer.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// JobStatus represents the lifecycle state of a verification job.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type JobStatus string

const (
	// JobStatusPending indicates a submission is waiting for a pipeline worker.
	JobStatusPending JobStatus = "pending"
	// JobStatusProcessing indicates the pipeline is running the job's stages.
	JobStatusProcessing JobStatus = "processing"
	// JobStatusPassed indicates verification succeeded (auto or via review).
	JobStatusPassed JobStatus = "passed"
	// JobStatusRejected indicates verification failed (auto or via review).
	JobStatusRejected JobStatus = "rejected"
	// JobStatusManualReview indicates the job awaits a human decision.
	JobStatusManualReview JobStatus = "manual_review"
	// JobStatusFailed indicates a pipeline error terminated the job.
	JobStatusFailed JobStatus = "failed"
)

// ErrNoJobsAvailable is returned when no pending jobs are available for reservation.
var ErrNoJobsAvailable = errors.New("no jobs available")

// Valid returns true if the JobStatus is one of the defined states.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusPassed,
		JobStatusRejected, JobStatusManualReview, JobStatusFailed:
		return true
	}
	return false
}

// Terminal returns true once a job can no longer change state through the
// pipeline. ManualReview is not terminal: it still awaits a human decision.
func (s JobStatus) Terminal() bool {
	return s == JobStatusPassed || s == JobStatusRejected || s == JobStatusFailed
}

// Active returns true while the job occupies its subject's single active slot.
func (s JobStatus) Active() bool {
	return s == JobStatusPending || s == JobStatusProcessing || s == JobStatusManualReview
}

// UnmarshalText implements encoding.TextUnmarshaler for JobStatus.
func (s *JobStatus) UnmarshalText(text []byte) error {
	v := JobStatus(strings.ToLower(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("invalid job status: %q", string(text))
	}
	*s = v
	return nil
}

// ActiveStatuses lists the states counted against the one-active-job-per-subject
// invariant, in the order the schema's partial index names them.
func ActiveStatuses() []JobStatus {
	return []JobStatus{JobStatusPending, JobStatusProcessing, JobStatusManualReview}
}

// VerificationJob is one identity-verification submission and everything the
// pipeline derived from it. Score fields are pointers so "not yet computed"
// stays distinct from a genuine zero.
type VerificationJob struct {
	ID        string    `json:"id"         db:"id"`
	SubjectID string    `json:"subject_id" db:"subject_id"`
	Status    JobStatus `json:"status"     db:"status"`

	// Tier is meaningful only once status is passed or rejected.
	Tier          int `json:"tier"           db:"tier"`
	RequestedTier int `json:"requested_tier" db:"requested_tier"`

	// Subject-declared identity data; anonymized in place by retention.
	FullName    string  `json:"full_name"         db:"full_name"`
	DateOfBirth string  `json:"date_of_birth"     db:"date_of_birth"`
	Address     string  `json:"address"           db:"address"`
	Email       *string `json:"email,omitempty"   db:"email"`
	Phone       *string `json:"phone,omitempty"   db:"phone"`

	// Opaque object-store references for the submitted images.
	DocFrontRef string `json:"doc_front_ref" db:"doc_front_ref"`
	DocBackRef  string `json:"doc_back_ref"  db:"doc_back_ref"`
	SelfieRef   string `json:"selfie_ref"    db:"selfie_ref"`

	// Pipeline stage outputs.
	ExtractedFields *ExtractedFields `json:"extracted_fields,omitempty" db:"extracted_fields"`
	FaceScore       *float64         `json:"face_score,omitempty"       db:"face_score"`
	LivenessScore   *float64         `json:"liveness_score,omitempty"   db:"liveness_score"`
	QualityScore    *float64         `json:"quality_score,omitempty"    db:"quality_score"`
	RiskScore       *float64         `json:"risk_score,omitempty"       db:"risk_score"`
	Unscored        bool             `json:"unscored"                   db:"unscored"`

	// EncryptedSnapshot is the AES-GCM sealed copy of the subject's personal
	// data written at pipeline completion. Never serialized to clients.
	EncryptedSnapshot *string `json:"-" db:"encrypted_snapshot"`

	// AutoDecided records that the terminal decision was made without a human.
	// The wire name stays auto_approved for compatibility.
	AutoDecided bool    `json:"auto_approved"            db:"auto_decided"`
	Note        *string `json:"note,omitempty"           db:"note"`
	ReviewerID  *string `json:"reviewer_id,omitempty"    db:"reviewer_id"`

	SubmittedAt    time.Time  `json:"submitted_at"               db:"submitted_at"`
	ReviewedAt     *time.Time `json:"reviewed_at,omitempty"      db:"reviewed_at"`
	RetentionUntil *time.Time `json:"retention_until,omitempty"  db:"retention_until"`
	LeaseExpiresAt *time.Time `json:"lease_expires_at,omitempty" db:"lease_expires_at"`
	UpdatedAt      time.Time  `json:"updated_at"                 db:"updated_at"`
}

// Reviewable returns true if a human decision may still be applied.
func (j *VerificationJob) Reviewable() bool {
	return j.Status == JobStatusPending || j.Status == JobStatusManualReview
}

// SubmissionRequest is the admission input from the API layer.
type SubmissionRequest struct {
	SubjectID     string  `json:"subject_id"`
	FullName      string  `json:"full_name"`
	DateOfBirth   string  `json:"date_of_birth"`
	Address       string  `json:"address"`
	Email         *string `json:"email,omitempty"`
	Phone         *string `json:"phone,omitempty"`
	DocFrontRef   string  `json:"doc_front_ref"`
	DocBackRef    string  `json:"doc_back_ref"`
	SelfieRef     string  `json:"selfie_ref"`
	RequestedTier int     `json:"requested_tier"`
}

// Validate checks the SubmissionRequest fields.
func (r *SubmissionRequest) Validate() error {
	if strings.TrimSpace(r.SubjectID) == "" {
		return errors.New("subject id is required")
	}
	if strings.TrimSpace(r.FullName) == "" {
		return errors.New("full name is required")
	}
	if r.DocFrontRef == "" || r.DocBackRef == "" {
		return errors.New("both document references are required")
	}
	if r.SelfieRef == "" {
		return errors.New("selfie reference is required")
	}
	if r.RequestedTier < 1 || r.RequestedTier > 2 {
		return errors.New("requested tier must be 1 or 2")
	}
	return nil
}

// ReviewDecision is a human reviewer's verdict on a job.
type ReviewDecision string

const (
	// ReviewApproved finalizes the job as passed.
	ReviewApproved ReviewDecision = "approved"
	// ReviewRejected finalizes the job as rejected.
	ReviewRejected ReviewDecision = "rejected"
)

// Valid returns true if the decision is one of the defined verdicts.
func (d ReviewDecision) Valid() bool {
	return d == ReviewApproved || d == ReviewRejected
}

// ReviewRequest is the manual-review input for a job awaiting a decision.
type ReviewRequest struct {
	TicketID   string         `json:"ticket_id"`
	ReviewerID string         `json:"reviewer_id"`
	Decision   ReviewDecision `json:"decision"`
	Note       *string        `json:"note,omitempty"`
}

// Validate checks the ReviewRequest fields.
func (r *ReviewRequest) Validate() error {
	if r.TicketID == "" {
		return errors.New("ticket id is required")
	}
	if strings.TrimSpace(r.ReviewerID) == "" {
		return errors.New("reviewer id is required")
	}
	if !r.Decision.Valid() {
		return errors.New("decision must be approved or rejected")
	}
	return nil
}

// JobStats aggregates job counts per state for the admin API.
type JobStats struct {
	Pending      int `json:"pending"`
	Processing   int `json:"processing"`
	Passed       int `json:"passed"`
	Rejected     int `json:"rejected"`
	ManualReview int `json:"manual_review"`
	Failed       int `json:"failed"`
}

// Total returns the number of jobs across all states.
func (s JobStats) Total() int {
	return s.Pending + s.Processing + s.Passed + s.Rejected + s.ManualReview + s.Failed
}

// StatusResponse is the public view of a job returned by the status query.
type StatusResponse struct {
	TicketID        string           `json:"ticket_id"`
	Status          JobStatus        `json:"status"`
	Tier            int              `json:"tier"`
	SubmittedAt     time.Time        `json:"submitted_at"`
	ReviewedAt      *time.Time       `json:"reviewed_at,omitempty"`
	RiskScore       *float64         `json:"risk_score,omitempty"`
	FaceScore       *float64         `json:"face_score,omitempty"`
	LivenessScore   *float64         `json:"liveness_score,omitempty"`
	AutoDecided     bool             `json:"auto_approved"`
	ExtractedFields *ExtractedFields `json:"extracted_fields,omitempty"`
}

// StatusView projects a job into its public status representation.
func (j *VerificationJob) StatusView() StatusResponse {
	return StatusResponse{
		TicketID:        j.ID,
		Status:          j.Status,
		Tier:            j.Tier,
		SubmittedAt:     j.SubmittedAt,
		ReviewedAt:      j.ReviewedAt,
		RiskScore:       j.RiskScore,
		FaceScore:       j.FaceScore,
		LivenessScore:   j.LivenessScore,
		AutoDecided:     j.AutoDecided,
		ExtractedFields: j.ExtractedFields,
	}
}
