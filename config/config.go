package config

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - database.go: Database and Redis configuration
//   - http.go: HTTP server configuration
//   - services.go: Service mode, pipeline, retention, and monitor configuration
//   - verification.go: Scoring thresholds and document storage configuration
//   - observability.go: Metrics and notification configuration
type AppConfig struct {
	// IsDev controls development mode behavior (relaxed quotas, verbose logging).
	IsDev bool `env:"DEV" envDefault:"false"`

	// Database configuration
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	// HTTP server configuration
	HTTP HTTPConfig

	// Service mode configuration
	Services string `env:"SERVICES" envDefault:"http"`

	// Verification pipeline configuration
	Pipeline PipelineConfig

	// Scoring thresholds and data handling
	Verification VerificationConfig

	// External recognition primitives (OCR, face service)
	ML MLConfig

	// Document object storage
	Storage StorageConfig `envPrefix:"STORAGE_"`

	// Retention sweeper configuration
	Retention RetentionConfig

	// Staleness monitor configuration
	Monitor MonitorConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.HTTP.Sanitize()
	c.Pipeline.Sanitize()
	c.Verification.Sanitize()
	c.ML.Sanitize()
	c.Retention.Sanitize()
	c.Monitor.Sanitize()
	c.Observability.Sanitize()
}

// GetEnabledServices returns the enabled services based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

// IsHTTPServerEnabled returns true if the HTTP server service is enabled.
func (c *AppConfig) IsHTTPServerEnabled() bool {
	return c.serviceEnabled(ServiceModeHTTP)
}

// IsPipelineEnabled returns true if the verification pipeline workers are enabled.
func (c *AppConfig) IsPipelineEnabled() bool {
	return c.serviceEnabled(ServiceModePipeline)
}

// IsRetentionEnabled returns true if the retention sweeper is enabled.
func (c *AppConfig) IsRetentionEnabled() bool {
	return c.serviceEnabled(ServiceModeRetention)
}

// IsMonitorEnabled returns true if the staleness monitor is enabled.
func (c *AppConfig) IsMonitorEnabled() bool {
	return c.serviceEnabled(ServiceModeMonitor)
}

func (c *AppConfig) serviceEnabled(mode ServiceMode) bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[mode]
}
