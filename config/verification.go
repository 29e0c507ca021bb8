package config

// VerificationConfig contains scoring thresholds for the decision engine.
type VerificationConfig struct {
	// AutoApprovalThreshold is the minimum risk score for automatic approval.
	AutoApprovalThreshold float64 `env:"KYC_AUTO_APPROVAL_THRESHOLD" envDefault:"0.85"`

	// ManualReviewThreshold is the minimum risk score routed to human review.
	// Scores below it are rejected automatically.
	ManualReviewThreshold float64 `env:"KYC_MANUAL_REVIEW_THRESHOLD" envDefault:"0.65"`

	// FaceMatchThreshold is the maximum embedding distance considered a match.
	FaceMatchThreshold float64 `env:"KYC_FACE_MATCH_THRESHOLD" envDefault:"0.7"`

	// LivenessThreshold is the minimum liveness confidence considered live.
	LivenessThreshold float64 `env:"KYC_LIVENESS_THRESHOLD" envDefault:"0.6"`

	// EncryptionKey seals the personal-data snapshot stored with each completed
	// job. Hex (64 chars) or base64 for 32 bytes; empty falls back to the noop
	// encryptor, which is acceptable only for development.
	EncryptionKey string `env:"KYC_ENCRYPTION_KEY" envDefault:""`
}

// Sanitize applies guardrails to verification threshold values.
// Bands must keep reject < review < approve with no gap or overlap.
func (v *VerificationConfig) Sanitize() {
	v.AutoApprovalThreshold = clampUnit(v.AutoApprovalThreshold, 0.85)
	v.ManualReviewThreshold = clampUnit(v.ManualReviewThreshold, 0.65)
	if v.ManualReviewThreshold > v.AutoApprovalThreshold {
		v.ManualReviewThreshold = v.AutoApprovalThreshold
	}
	v.FaceMatchThreshold = clampUnit(v.FaceMatchThreshold, 0.7)
	v.LivenessThreshold = clampUnit(v.LivenessThreshold, 0.6)
}

func clampUnit(v, fallback float64) float64 {
	if v <= 0 || v > 1 {
		return fallback
	}
	return v
}

// StorageConfig contains document object-storage configuration.
// The store speaks the S3 API; Endpoint supports MinIO-compatible deployments.
type StorageConfig struct {
	Bucket   string `env:"BUCKET"   envDefault:"kyc-documents"`
	Region   string `env:"REGION"   envDefault:"us-east-1"`
	Endpoint string `env:"ENDPOINT" envDefault:""`
	Prefix   string `env:"PREFIX"   envDefault:""`
}
