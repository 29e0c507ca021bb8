package cryptoutil

import (
	"encoding/json"
	"fmt"
)

// Snapshot is the sealed copy of a subject's declared identity data. It is
// written once at pipeline completion and blanked by retention or erasure.
type Snapshot struct {
	FullName    string  `json:"full_name"`
	DateOfBirth string  `json:"date_of_birth"`
	Address     string  `json:"address"`
	Email       *string `json:"email,omitempty"`
	Phone       *string `json:"phone,omitempty"`
}

// SealSnapshot marshals and encrypts a snapshot for storage.
func SealSnapshot(enc Encryptor, snap Snapshot) (string, error) {
	raw, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}
	sealed, err := enc.Encrypt(raw)
	if err != nil {
		return "", fmt.Errorf("encrypt snapshot: %w", err)
	}
	return sealed, nil
}

// OpenSnapshot decrypts and unmarshals a stored snapshot.
func OpenSnapshot(enc Encryptor, sealed string) (Snapshot, error) {
	var snap Snapshot
	raw, err := enc.Decrypt(sealed)
	if err != nil {
		return snap, fmt.Errorf("decrypt snapshot: %w", err)
	}
	if err := json.Unmarshal(raw, &snap); err != nil {
		return snap, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return snap, nil
}
