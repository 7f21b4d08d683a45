package testutil

import (
	"dvsmart-go/internal/dvs"
	"dvsmart-go/internal/encryption"
)

// NewTestEncryptor creates a deterministic encryptor for testing.
func NewTestEncryptor() dvs.Encryptor {
	return encryption.NewTestEncryptor()
}
