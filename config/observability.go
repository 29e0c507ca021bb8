package config

import (
	"strings"
	"time"
)

const defaultObservabilityName = "kyc-service"

// ObservabilityConfig groups configuration that controls metrics and notification fan-out.
type ObservabilityConfig struct {
	Metrics       ObservabilityMetricsConfig
	Notifications ObservabilityNotificationsConfig
}

// Sanitize applies guardrails to observability sub-configs.
func (c *ObservabilityConfig) Sanitize() {
	c.Metrics.Sanitize()
	c.Notifications.Sanitize()
}

// ObservabilityMetricsConfig controls emission of metrics to external sinks such as StatsD.
type ObservabilityMetricsConfig struct {
	Enabled       bool   `env:"OBSERVABILITY_METRICS_ENABLED"        envDefault:"false"`
	StatsdAddress string `env:"OBSERVABILITY_METRICS_STATSD_ADDRESS" envDefault:"127.0.0.1:8125"`
}

// Sanitize normalises derived fields and enforces safe defaults.
func (c *ObservabilityMetricsConfig) Sanitize() {
	c.StatsdAddress = strings.TrimSpace(c.StatsdAddress)
	if c.StatsdAddress == "" {
		c.Enabled = false
	}
}

// IsEnabled returns true when metrics emission is active after sanitisation.
func (c *ObservabilityMetricsConfig) IsEnabled() bool {
	return c.Enabled && c.StatsdAddress != ""
}

// ObservabilityNotificationsConfig controls outbound verification-status notifications.
type ObservabilityNotificationsConfig struct {
	Enabled    bool                       `env:"NOTIFICATIONS_ENABLED"     envDefault:"false"`
	Timeout    time.Duration              `env:"NOTIFICATIONS_TIMEOUT"     envDefault:"5s"`
	RetryLimit int                        `env:"NOTIFICATIONS_RETRY_LIMIT" envDefault:"3"`
	Email      EmailNotificationConfig    `                                                  envPrefix:"NOTIFICATIONS_EMAIL_"`
	Telegram   TelegramNotificationConfig `                                                  envPrefix:"NOTIFICATIONS_TELEGRAM_"`
}

// Sanitize normalises notification configuration values.
func (c *ObservabilityNotificationsConfig) Sanitize() {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.RetryLimit < 0 {
		c.RetryLimit = 0
	}

	c.Email.sanitize()
	c.Telegram.sanitize()

	if !c.Enabled {
		c.Email.Enabled = false
		c.Telegram.Enabled = false
		return
	}

	if c.Email.Enabled && (c.Email.Host == "" || c.Email.From == "") {
		c.Email.Enabled = false
	}

	if c.Telegram.Enabled && (c.Telegram.BotToken == "" || c.Telegram.AdminChatID == "") {
		c.Telegram.Enabled = false
	}
}

// EmailNotificationConfig controls SMTP delivery of status emails to applicants.
type EmailNotificationConfig struct {
	Enabled  bool   `env:"ENABLED"  envDefault:"false"`
	Host     string `env:"HOST"     envDefault:"smtp.gmail.com"`
	Port     int    `env:"PORT"     envDefault:"587"`
	Username string `env:"USERNAME"`
	Password string `env:"PASSWORD"`
	From     string `env:"FROM"`
}

func (c *EmailNotificationConfig) sanitize() {
	c.Host = strings.TrimSpace(c.Host)
	c.From = strings.TrimSpace(c.From)
	if c.Port <= 0 || c.Port > 65535 {
		c.Port = 587
	}
}

// TelegramNotificationConfig controls Telegram bot notifications to reviewers.
type TelegramNotificationConfig struct {
	Enabled     bool   `env:"ENABLED"       envDefault:"false"`
	BotToken    string `env:"BOT_TOKEN"`
	AdminChatID string `env:"ADMIN_CHAT_ID"`
	Username    string `env:"USERNAME"      envDefault:"kyc-service"`
}

func (c *TelegramNotificationConfig) sanitize() {
	c.BotToken = strings.TrimSpace(c.BotToken)
	c.AdminChatID = strings.TrimSpace(c.AdminChatID)
	if c.Username == "" {
		c.Username = defaultObservabilityName
	}
}
