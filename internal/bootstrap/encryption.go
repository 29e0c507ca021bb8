package bootstrap

import (
	"log/slog"

	"github.com/echofi/kyc-service/internal/data/cryptoutil"
)

// CreateEncryptor creates an AES-GCM encryptor from the configured key.
// The key may be hex or base64 and must decode to 32 bytes. An empty or
// unparseable key falls back to the noop encryptor with a warning, which
// stores snapshots unencrypted and is acceptable only for development.
//
//nolint:ireturn // Returning interface is intentional for encryptor abstraction
func CreateEncryptor(key string, logger *slog.Logger) cryptoutil.Encryptor {
	if key == "" {
		if logger != nil {
			logger.Warn("encryption key is empty, using noop encryptor")
		}
		return &cryptoutil.NoopEncryptor{}
	}

	keyBytes, err := cryptoutil.ParseKey(key)
	if err != nil {
		if logger != nil {
			logger.Warn("failed to parse encryption key, using noop encryptor", "error", err)
		}
		return &cryptoutil.NoopEncryptor{}
	}

	enc, err := cryptoutil.NewAESGCMEncryptor(keyBytes)
	if err != nil {
		if logger != nil {
			logger.Warn("failed to create encryptor, using noop encryptor", "error", err)
		}
		return &cryptoutil.NoopEncryptor{}
	}

	return enc
}
