// Package job holds queue-side domain logic shared by the pipeline workers:
// lease normalisation and the job-availability notifier.
package job

import (
	"errors"
	"math"
	"time"
)

// ErrInvalidDefaultLease indicates the configured default lease duration is not positive.
var ErrInvalidDefaultLease = errors.New("default lease must be positive")

// LeasePolicy normalises lease durations for job reservations and heartbeats.
// The queue stores leases as whole seconds, so sub-second requests clamp to 1s.
type LeasePolicy struct {
	defaultLease time.Duration
}

// NewLeasePolicy constructs a LeasePolicy with the provided default lease duration.
func NewLeasePolicy(defaultLease time.Duration) (*LeasePolicy, error) {
	if defaultLease <= 0 {
		return nil, ErrInvalidDefaultLease
	}
	return &LeasePolicy{defaultLease: defaultLease}, nil
}

// Default returns the configured default lease duration.
func (p *LeasePolicy) Default() time.Duration {
	if p == nil {
		return 0
	}
	return p.defaultLease
}

// Resolve normalises the requested duration to a whole number of seconds.
// Zero falls back to the default; negative or sub-second requests clamp to 1.
func (p *LeasePolicy) Resolve(request time.Duration) int {
	if p == nil {
		return 0
	}
	if request == 0 {
		request = p.defaultLease
	}
	return durationToSeconds(request)
}

func durationToSeconds(d time.Duration) int {
	seconds := int64(d / time.Second)
	if seconds <= 0 {
		return 1
	}
	if seconds > int64(math.MaxInt) {
		return math.MaxInt
	}
	return int(seconds)
}
