package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the HTTP API server.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModePipeline runs the verification pipeline workers.
	ServiceModePipeline ServiceMode = "pipeline"
	// ServiceModeRetention runs the data-retention sweeper.
	ServiceModeRetention ServiceMode = "retention"
	// ServiceModeMonitor runs the staleness monitor and compliance reporter.
	ServiceModeMonitor ServiceMode = "monitor"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeHTTP,
		ServiceModePipeline,
		ServiceModeRetention,
		ServiceModeMonitor,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	parts := strings.Split(servicesStr, ",")
	for _, part := range parts {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeHTTP, ServiceModePipeline, ServiceModeRetention, ServiceModeMonitor:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: http, pipeline, retention, monitor)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// PipelineConfig contains verification pipeline worker configuration.
type PipelineConfig struct {
	// Concurrency is the number of worker goroutines consuming verification jobs.
	Concurrency int `env:"PIPELINE_CONCURRENCY" envDefault:"2"`

	// JobLease is the duration to lease a verification job. A worker that dies
	// without completing its job releases it back to the queue after this long.
	JobLease time.Duration `env:"PIPELINE_JOB_LEASE" envDefault:"120s"`

	// FetchTimeout bounds a single document download from object storage.
	FetchTimeout time.Duration `env:"PIPELINE_FETCH_TIMEOUT" envDefault:"30s"`

	// FetchRetries is the number of additional attempts after a failed document download.
	FetchRetries int `env:"PIPELINE_FETCH_RETRIES" envDefault:"2"`

	// MaxRetries is the maximum number of queue-level retries for a verification job.
	MaxRetries int `env:"PIPELINE_MAX_RETRIES" envDefault:"0"`
}

// Sanitize applies guardrails to pipeline configuration values.
func (p *PipelineConfig) Sanitize() {
	if p.Concurrency < 1 {
		p.Concurrency = 1
	}
	if p.JobLease < 5*time.Second {
		p.JobLease = 5 * time.Second
	}
	if p.FetchTimeout <= 0 {
		p.FetchTimeout = 30 * time.Second
	}
	if p.FetchRetries < 0 {
		p.FetchRetries = 0
	}
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
}

// RetentionConfig contains data-retention sweeper configuration.
type RetentionConfig struct {
	// Interval is the sweeper tick interval.
	Interval time.Duration `env:"RETENTION_INTERVAL" envDefault:"1h"`

	// RecordWindow is how long terminal verification records keep their
	// personal data before being anonymized in place.
	RecordWindow time.Duration `env:"RETENTION_RECORD_WINDOW" envDefault:"43800h"` // 5 years

	// AuditWindow is how long audit events stay unarchived.
	AuditWindow time.Duration `env:"RETENTION_AUDIT_WINDOW" envDefault:"61320h"` // 7 years

	// BatchSize is the maximum number of rows to process per sweep.
	BatchSize int `env:"RETENTION_BATCH_SIZE" envDefault:"500"`
}

// Sanitize applies guardrails to retention configuration values.
func (r *RetentionConfig) Sanitize() {
	if r.Interval < 1*time.Minute {
		r.Interval = 1 * time.Minute
	}
	if r.RecordWindow < 24*time.Hour {
		r.RecordWindow = 24 * time.Hour
	}
	if r.AuditWindow < 24*time.Hour {
		r.AuditWindow = 24 * time.Hour
	}
	if r.BatchSize < 1 {
		r.BatchSize = 1
	}
	if r.BatchSize > 10000 {
		r.BatchSize = 10000
	}
}

// MonitorConfig contains staleness monitor and compliance reporter configuration.
type MonitorConfig struct {
	// Interval is the monitor tick interval.
	Interval time.Duration `env:"MONITOR_INTERVAL" envDefault:"15m"`

	// StaleAfter is how long a job may stay in processing before it is flagged
	// as stuck. Flagged jobs are escalated, never cancelled.
	StaleAfter time.Duration `env:"MONITOR_STALE_AFTER" envDefault:"2h"`

	// ReportPeriod is the window covered by each compliance report.
	ReportPeriod time.Duration `env:"MONITOR_REPORT_PERIOD" envDefault:"168h"` // 7 days
}

// Sanitize applies guardrails to monitor configuration values.
func (m *MonitorConfig) Sanitize() {
	if m.Interval < 1*time.Minute {
		m.Interval = 1 * time.Minute
	}
	if m.StaleAfter < 5*time.Minute {
		m.StaleAfter = 5 * time.Minute
	}
	if m.ReportPeriod < 1*time.Hour {
		m.ReportPeriod = 1 * time.Hour
	}
}
