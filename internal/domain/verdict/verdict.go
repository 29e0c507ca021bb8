// Package verdict turns stage outputs into a risk score and a final decision.
// Both computations are pure: configuration comes in as explicit thresholds.
package verdict

import (
	"github.com/echofi/kyc-service/internal/domain/biometric"
	"github.com/echofi/kyc-service/internal/domain/model"
)

// Penalty weights, each independent and additive.
const (
	PenaltyMultipleFaces = 0.2
	PenaltyNotLive       = 0.3
	PenaltyFaceMismatch  = 0.5
)

// Risk is the aggregate score for a submission.
type Risk struct {
	// Score is in [0,1]; higher means more trustworthy.
	Score float64
	// Unscored marks that no valid sub-score existed: the zero score means
	// "no data" rather than "confirmed worst case".
	Unscored bool
}

// RiskScore aggregates the sub-scores into a single value: the mean of the
// present, positive sub-scores minus the applicable penalties, floored at 0.
// No ceiling clamp is needed: the mean is bounded in [0,1] and penalties only
// subtract.
func RiskScore(fields *model.ExtractedFields, bio biometric.Result) Risk {
	var subs []float64

	if fields != nil {
		subs = appendPositive(subs, fields.Confidence)
		subs = appendPositive(subs, authenticityMean(fields))
	}
	subs = appendPositive(subs, bio.FaceScore)
	subs = appendPositive(subs, bio.LivenessScore)
	subs = appendPositive(subs, bio.QualityScore)

	if len(subs) == 0 {
		return Risk{Score: 0, Unscored: true}
	}

	sum := 0.0
	for _, s := range subs {
		sum += s
	}
	score := sum / float64(len(subs))

	if bio.MultipleFaces {
		score -= PenaltyMultipleFaces
	}
	if !bio.IsLive {
		score -= PenaltyNotLive
	}
	if !bio.FaceMatch {
		score -= PenaltyFaceMismatch
	}

	if score < 0 {
		score = 0
	}
	return Risk{Score: score}
}

func appendPositive(subs []float64, v float64) []float64 {
	if v > 0 {
		return append(subs, v)
	}
	return subs
}

// authenticityMean averages the present document-authenticity scores.
func authenticityMean(fields *model.ExtractedFields) float64 {
	sum, n := 0.0, 0
	if fields.FrontAuthenticity != nil {
		sum += *fields.FrontAuthenticity
		n++
	}
	if fields.BackAuthenticity != nil {
		sum += *fields.BackAuthenticity
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// Thresholds split the risk range into three decision bands. Each band is
// inclusive on its lower bound: no gap, no overlap.
type Thresholds struct {
	AutoApprove  float64
	ManualReview float64
}

// Decision is the engine's output for a scored submission.
type Decision struct {
	Status model.JobStatus
	Tier   int
	// AutoDecided is true when no human was involved: auto-approval and
	// auto-rejection both set it.
	AutoDecided bool
}

// Decide maps a risk score onto a decision band.
func Decide(risk float64, t Thresholds) Decision {
	switch {
	case risk >= t.AutoApprove:
		return Decision{Status: model.JobStatusPassed, Tier: 2, AutoDecided: true}
	case risk >= t.ManualReview:
		return Decision{Status: model.JobStatusManualReview, Tier: 0, AutoDecided: false}
	default:
		return Decision{Status: model.JobStatusRejected, Tier: 0, AutoDecided: true}
	}
}
