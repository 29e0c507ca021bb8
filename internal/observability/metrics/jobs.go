package metrics

import (
	"time"

	obserrors "github.com/echofi/kyc-service/internal/observability/errors"
	"github.com/echofi/kyc-service/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// VerificationMetric captures a verification lifecycle event for metric emission.
type VerificationMetric struct {
	Stage    string
	Status   string
	Result   string
	Duration time.Duration
	Err      error
}

// EmitVerificationLifecycle emits standardised verification lifecycle metrics.
func EmitVerificationLifecycle(sink statsd.Sink, in VerificationMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"stage":  in.Stage,
		"result": in.Result,
	}
	if in.Status != "" {
		tags["status"] = in.Status
	}

	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("verification.stage", 1, tags)

	if in.Duration > 0 {
		sink.Timing("verification.stage_duration", in.Duration, CloneTags(tags))
	}
}

// CloneTags creates a shallow copy of a tag map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
