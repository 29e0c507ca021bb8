package bootstrap

import (
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echofi/kyc-service/config"
	"github.com/echofi/kyc-service/internal/data/cryptoutil"
)

func TestValidateServiceConfig(t *testing.T) {
	require.Error(t, ValidateServiceConfig(nil))

	cfg := &config.AppConfig{Services: "http,pipeline"}
	require.NoError(t, ValidateServiceConfig(cfg))

	cfg.Services = "http,browser"
	require.Error(t, ValidateServiceConfig(cfg))
}

func TestGetEnabledServices(t *testing.T) {
	assert.Empty(t, GetEnabledServices(nil))

	cfg := &config.AppConfig{Services: "retention,monitor"}
	names := GetEnabledServices(cfg)
	assert.ElementsMatch(t, []string{"retention", "monitor"}, names)
}

func TestCreateEncryptor(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	enc := CreateEncryptor("", logger)
	assert.IsType(t, &cryptoutil.NoopEncryptor{}, enc)

	enc = CreateEncryptor("not a key", logger)
	assert.IsType(t, &cryptoutil.NoopEncryptor{}, enc)

	hexKey := strings.Repeat("ab", 32)
	enc = CreateEncryptor(hexKey, logger)
	assert.IsType(t, &cryptoutil.AESGCMEncryptor{}, enc)
}
