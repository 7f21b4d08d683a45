package dvs

import "io"

// Encryptor encrypts reorganized files on their way to the destination.
// Encryption needs only the public key; reading files back requires the
// private key, unlocked with a passphrase.
type Encryptor interface {
	// Setup generates a key pair, stores the public key in plaintext and the
	// private key encrypted with passphrase. Called by `dvsmart keys init`.
	Setup(passphrase string) error

	// Encrypt encrypts data read from r and writes ciphertext to w.
	Encrypt(r io.Reader, w io.Writer) error

	// Unlock decrypts the private key with passphrase.
	Unlock(passphrase string) (DecryptionContext, error)

	// IsConfigured reports whether both key files exist.
	IsConfigured() bool

	// Suffix is appended to destination paths of encrypted files.
	Suffix() string
}

// DecryptionContext holds an unlocked private key in memory for one session.
type DecryptionContext interface {
	// Decrypt decrypts data read from r and writes plaintext to w.
	Decrypt(r io.Reader, w io.Writer) error
}
