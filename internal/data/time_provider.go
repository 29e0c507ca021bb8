package data

import "time"

// TimeProvider abstracts time access so repositories can be tested with a fixed clock.
type TimeProvider interface {
	Now() time.Time
}

// RealTimeProvider returns the actual current time in UTC.
type RealTimeProvider struct{}

func (RealTimeProvider) Now() time.Time { return time.Now().UTC() }

// FixedTimeProvider always returns the configured time. Test use only.
type FixedTimeProvider struct {
	Fixed time.Time
}

func (p FixedTimeProvider) Now() time.Time { return p.Fixed }
