// Package biometric combines face-similarity and liveness sub-scores into
// normalized metrics for a submission. The ML primitives (face embedding
// comparison, face/eye detection) are injected; everything else is computed
// from pixels directly.
package biometric

import (
	"bytes"
	"context"
	"image"
	"log/slog"

	// Registered so image.Decode accepts the formats documents arrive in.
	_ "image/jpeg"
	_ "image/png"
)

// DefaultLivenessThreshold is the cut-off above which a selfie counts as live.
const DefaultLivenessThreshold = 0.6

// Comparison is the output of a face-comparison primitive: a distance in
// the model's embedding space and the model's own match threshold.
type Comparison struct {
	Distance  float64
	Threshold float64
}

// Match reports whether the primitive considers the two faces the same person.
func (c Comparison) Match() bool {
	return c.Threshold > 0 && c.Distance <= c.Threshold
}

// Confidence normalizes the distance into [0,1], higher meaning more similar.
func (c Comparison) Confidence() float64 {
	if c.Threshold <= 0 {
		return 0
	}
	conf := 1 - c.Distance/c.Threshold
	if conf < 0 {
		return 0
	}
	return conf
}

// FaceComparer measures similarity between the face on a document and a selfie.
type FaceComparer interface {
	Compare(ctx context.Context, document, selfie []byte) (Comparison, error)
}

// FaceDetector counts faces and eyes in an image.
type FaceDetector interface {
	CountFaces(ctx context.Context, img []byte) (int, error)
	CountEyes(ctx context.Context, img []byte) (int, error)
}

// Result holds the biometric metrics for one submission.
type Result struct {
	FaceScore     float64 `json:"face_score"`
	FaceMatch     bool    `json:"face_match"`
	LivenessScore float64 `json:"liveness_score"`
	IsLive        bool    `json:"is_live"`
	MultipleFaces bool    `json:"multiple_faces"`
	QualityScore  float64 `json:"quality_score"`
}

// Options configures a Scorer.
type Options struct {
	Comparer FaceComparer
	Detector FaceDetector
	Logger   *slog.Logger
}

// Scorer computes biometric metrics from a document image and a selfie.
type Scorer struct {
	comparer          FaceComparer
	detector          FaceDetector
	livenessThreshold float64
	logger            *slog.Logger
}

// New creates a Scorer with the default liveness threshold.
func New(opts Options) *Scorer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scorer{
		comparer:          opts.Comparer,
		detector:          opts.Detector,
		livenessThreshold: DefaultLivenessThreshold,
		logger:            logger.With("component", "biometric"),
	}
}

// WithLivenessThreshold overrides the is-live cut-off.
func (s *Scorer) WithLivenessThreshold(t float64) *Scorer {
	if t > 0 && t <= 1 {
		s.livenessThreshold = t
	}
	return s
}

// Score runs the face comparison and the liveness/quality analysis over the
// selfie. Primitive failures (no face found, model error) degrade to zero
// sub-scores instead of failing the call: the risk scorer decides what a
// missing signal means.
func (s *Scorer) Score(ctx context.Context, document, selfie []byte) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	var res Result

	cmp, err := s.comparer.Compare(ctx, document, selfie)
	if err != nil {
		s.logger.WarnContext(ctx, "face comparison failed, scoring as no match", "error", err)
	} else {
		res.FaceScore = cmp.Confidence()
		res.FaceMatch = cmp.Match()
	}

	faces, err := s.detector.CountFaces(ctx, selfie)
	if err != nil {
		s.logger.WarnContext(ctx, "face detection failed", "error", err)
		faces = 0
	}
	res.MultipleFaces = faces > 1

	selfieImg, decodeErr := decodeGray(selfie)
	if decodeErr != nil {
		s.logger.WarnContext(ctx, "selfie not decodable, liveness and quality unscored", "error", decodeErr)
		return res, nil
	}

	res.LivenessScore = s.liveness(ctx, selfieImg, selfie, faces)
	res.IsLive = res.LivenessScore > s.livenessThreshold
	res.QualityScore = quality(selfieImg)

	return res, nil
}

func decodeGray(data []byte) (*grayImage, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return newGrayImage(img), nil
}
