package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseServices(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []ServiceMode
		wantErr bool
	}{
		{name: "single", input: "http", want: []ServiceMode{ServiceModeHTTP}},
		{name: "all listed", input: "http,pipeline,retention,monitor", want: []ServiceMode{ServiceModeHTTP, ServiceModePipeline, ServiceModeRetention, ServiceModeMonitor}},
		{name: "whitespace and case tolerated", input: " HTTP , Pipeline ", want: []ServiceMode{ServiceModeHTTP, ServiceModePipeline}},
		{name: "empty means everything", input: "", want: ValidServiceModes()},
		{name: "unknown mode", input: "http,scheduler", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseServices(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAppConfigServiceSelection(t *testing.T) {
	cfg := AppConfig{Services: "http,monitor"}

	assert.True(t, cfg.IsHTTPServerEnabled())
	assert.True(t, cfg.IsMonitorEnabled())
	assert.False(t, cfg.IsPipelineEnabled())
	assert.False(t, cfg.IsRetentionEnabled())

	cfg.Services = ""
	assert.True(t, cfg.IsPipelineEnabled(), "empty selector enables every service")
}

func TestPipelineConfigSanitize(t *testing.T) {
	cfg := PipelineConfig{
		Concurrency:  0,
		JobLease:     0,
		FetchTimeout: -time.Second,
		FetchRetries: -3,
		MaxRetries:   -1,
	}
	cfg.Sanitize()

	assert.Equal(t, 2, cfg.Concurrency)
	assert.Equal(t, 120*time.Second, cfg.JobLease)
	assert.Equal(t, 30*time.Second, cfg.FetchTimeout)
	assert.Equal(t, 2, cfg.FetchRetries)
	assert.Equal(t, 0, cfg.MaxRetries)
}

func TestVerificationConfigSanitize(t *testing.T) {
	tests := []struct {
		name        string
		cfg         VerificationConfig
		wantApprove float64
		wantReview  float64
	}{
		{
			name:        "defaults untouched",
			cfg:         VerificationConfig{AutoApprovalThreshold: 0.85, ManualReviewThreshold: 0.65, FaceMatchThreshold: 0.7, LivenessThreshold: 0.6},
			wantApprove: 0.85,
			wantReview:  0.65,
		},
		{
			name:        "out of range values clamped",
			cfg:         VerificationConfig{AutoApprovalThreshold: 1.5, ManualReviewThreshold: -0.2, FaceMatchThreshold: 2, LivenessThreshold: -1},
			wantApprove: 1,
			wantReview:  0,
		},
		{
			name:        "review may not exceed approval",
			cfg:         VerificationConfig{AutoApprovalThreshold: 0.6, ManualReviewThreshold: 0.9, FaceMatchThreshold: 0.7, LivenessThreshold: 0.6},
			wantApprove: 0.6,
			wantReview:  0.6,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.Sanitize()
			assert.InDelta(t, tt.wantApprove, tt.cfg.AutoApprovalThreshold, 1e-9)
			assert.InDelta(t, tt.wantReview, tt.cfg.ManualReviewThreshold, 1e-9)
		})
	}
}

func TestHTTPConfigSanitize(t *testing.T) {
	cfg := HTTPConfig{Addr: "", ReadTimeout: 0, WriteTimeout: -time.Second, SubmissionDailyQuota: -5}
	cfg.Sanitize()

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 15*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.WriteTimeout)
	assert.Equal(t, 0, cfg.SubmissionDailyQuota)
}

func TestObservabilityNotificationsSanitize(t *testing.T) {
	t.Run("disabled parent disables channels", func(t *testing.T) {
		cfg := ObservabilityNotificationsConfig{
			Enabled:  false,
			Email:    EmailNotificationConfig{Enabled: true, Host: "smtp.example.com", From: "kyc@example.com"},
			Telegram: TelegramNotificationConfig{Enabled: true, BotToken: "t", AdminChatID: "42"},
		}
		cfg.Sanitize()

		assert.False(t, cfg.Email.Enabled)
		assert.False(t, cfg.Telegram.Enabled)
	})

	t.Run("incomplete channels are switched off", func(t *testing.T) {
		cfg := ObservabilityNotificationsConfig{
			Enabled:  true,
			Email:    EmailNotificationConfig{Enabled: true, Host: "", From: "kyc@example.com"},
			Telegram: TelegramNotificationConfig{Enabled: true, BotToken: "", AdminChatID: "42"},
		}
		cfg.Sanitize()

		assert.False(t, cfg.Email.Enabled)
		assert.False(t, cfg.Telegram.Enabled)
		assert.Equal(t, 5*time.Second, cfg.Timeout)
		assert.Equal(t, 3, cfg.RetryLimit)
	})
}
