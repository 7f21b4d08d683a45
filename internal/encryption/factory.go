package encryption

import (
	"errors"
	"fmt"

	"dvsmart-go/internal/config"
	"dvsmart-go/internal/dvs"
)

// Encryption types accepted in [encryption] type.
const (
	TypeNone = "none"
	TypeAge  = "age"
	TypeTest = "test"
)

// ErrWrongPassphrase is returned by Unlock when the passphrase does not open
// the private key.
var ErrWrongPassphrase = errors.New("wrong passphrase")

// NewEncryptorFromConfig returns the encryptor reorganize seals documents
// with, or nil when documents are archived in the clear.
func NewEncryptorFromConfig(cfg config.EncryptionConfig) (dvs.Encryptor, error) {
	switch cfg.Type {
	case "", TypeNone:
		return nil, nil
	case TypeAge:
		return NewAgeEncryptor(cfg), nil
	case TypeTest:
		return NewTestEncryptor(), nil
	}
	return nil, fmt.Errorf("unknown encryption type %q (want %s, %s or %s)", cfg.Type, TypeNone, TypeAge, TypeTest)
}
