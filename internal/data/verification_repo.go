package data

import (
	"database/sql"
	"log/slog"
)

// RepoConfig holds configuration options shared by the data-layer repositories.
type RepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// VerificationRepo provides database operations for verification jobs: queue
// admission, reservation, pipeline outcomes, review, stats, and retention.
type VerificationRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewVerificationRepo creates a VerificationRepo backed by the given database handle.
func NewVerificationRepo(db *sql.DB, cfg RepoConfig) *VerificationRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = RealTimeProvider{}
	}

	return &VerificationRepo{
		DB:           db,
		timeProvider: tp,
		logger:       cfg.Logger,
	}
}

const jobColumns = `
  id,
  subject_id,
  status,
  tier,
  requested_tier,
  full_name,
  date_of_birth,
  address,
  email,
  phone,
  doc_front_ref,
  doc_back_ref,
  selfie_ref,
  extracted_fields,
  face_score,
  liveness_score,
  quality_score,
  risk_score,
  unscored,
  encrypted_snapshot,
  auto_decided,
  note,
  reviewer_id,
  submitted_at,
  reviewed_at,
  retention_until,
  lease_expires_at,
  updated_at
`
