package encryption

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"filippo.io/age"

	"dvsmart-go/internal/config"
	"dvsmart-go/internal/dvs"
)

// AgeSuffix is appended to destination paths of age-encrypted files.
const AgeSuffix = ".age"

// ErrKeysExist is returned by Setup when a key pair is already present.
// Replacing it would make every archived document unreadable.
var ErrKeysExist = errors.New("encryption keys already exist")

// AgeEncryptor seals reorganized documents to an X25519 recipient. The
// identity is kept on disk wrapped with an scrypt passphrase and is only
// needed to read documents back out of the archive.
type AgeEncryptor struct {
	pubPath  string
	privPath string

	// Reorganize workers encrypt concurrently; the recipient is parsed once.
	once      sync.Once
	recipient *age.X25519Recipient
	loadErr   error
}

var _ dvs.Encryptor = (*AgeEncryptor)(nil)

func NewAgeEncryptor(cfg config.EncryptionConfig) *AgeEncryptor {
	return &AgeEncryptor{pubPath: cfg.PublicKeyPath, privPath: cfg.PrivateKeyPath}
}

// Setup generates the key pair. The wrapped identity is written before the
// recipient so IsConfigured never sees a half-written pair.
func (e *AgeEncryptor) Setup(passphrase string) error {
	if e.IsConfigured() {
		return ErrKeysExist
	}
	if passphrase == "" {
		return fmt.Errorf("passphrase must not be empty")
	}

	id, err := age.GenerateX25519Identity()
	if err != nil {
		return fmt.Errorf("generating key pair: %w", err)
	}

	wrapped, err := wrapIdentity(id, passphrase)
	if err != nil {
		return err
	}
	if err := writeKeyFile(e.privPath, wrapped, 0600); err != nil {
		return fmt.Errorf("writing private key: %w", err)
	}
	if err := writeKeyFile(e.pubPath, []byte(id.Recipient().String()+"\n"), 0644); err != nil {
		return fmt.Errorf("writing public key: %w", err)
	}
	return nil
}

func (e *AgeEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	recipient, err := e.loadRecipient()
	if err != nil {
		return err
	}
	sealed, err := age.Encrypt(w, recipient)
	if err != nil {
		return fmt.Errorf("starting age stream: %w", err)
	}
	if _, err := io.Copy(sealed, r); err != nil {
		return fmt.Errorf("encrypting document: %w", err)
	}
	if err := sealed.Close(); err != nil {
		return fmt.Errorf("finishing age stream: %w", err)
	}
	return nil
}

// Unlock unwraps the identity with passphrase.
func (e *AgeEncryptor) Unlock(passphrase string) (dvs.DecryptionContext, error) {
	wrapped, err := os.ReadFile(e.privPath)
	if err != nil {
		return nil, fmt.Errorf("reading private key: %w", err)
	}
	scrypt, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, fmt.Errorf("deriving passphrase key: %w", err)
	}
	plain, err := age.Decrypt(bytes.NewReader(wrapped), scrypt)
	if err != nil {
		var noMatch *age.NoIdentityMatchError
		if errors.As(err, &noMatch) || errors.Is(err, age.ErrIncorrectIdentity) {
			return nil, ErrWrongPassphrase
		}
		return nil, fmt.Errorf("unwrapping private key: %w", err)
	}
	ids, err := age.ParseIdentities(plain)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	if len(ids) != 1 {
		return nil, fmt.Errorf("private key file holds %d identities, want 1", len(ids))
	}
	return &AgeDecryptionContext{identity: ids[0]}, nil
}

// IsConfigured reports whether both halves of the key pair exist.
func (e *AgeEncryptor) IsConfigured() bool {
	for _, p := range []string{e.pubPath, e.privPath} {
		if _, err := os.Stat(p); err != nil {
			return false
		}
	}
	return true
}

func (e *AgeEncryptor) Suffix() string { return AgeSuffix }

func (e *AgeEncryptor) loadRecipient() (age.Recipient, error) {
	e.once.Do(func() {
		raw, err := os.ReadFile(e.pubPath)
		if err != nil {
			e.loadErr = fmt.Errorf("reading public key: %w", err)
			return
		}
		e.recipient, e.loadErr = age.ParseX25519Recipient(strings.TrimSpace(string(raw)))
		if e.loadErr != nil {
			e.loadErr = fmt.Errorf("parsing public key: %w", e.loadErr)
		}
	})
	return e.recipient, e.loadErr
}

func wrapIdentity(id *age.X25519Identity, passphrase string) ([]byte, error) {
	r, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt recipient: %w", err)
	}
	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, r)
	if err != nil {
		return nil, fmt.Errorf("wrapping private key: %w", err)
	}
	if _, err := io.WriteString(w, id.String()+"\n"); err != nil {
		return nil, fmt.Errorf("wrapping private key: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("wrapping private key: %w", err)
	}
	return buf.Bytes(), nil
}

// writeKeyFile writes data through a temp file and rename so a crash never
// leaves a truncated key behind.
func writeKeyFile(path string, data []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-key-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// AgeDecryptionContext holds an unwrapped identity.
type AgeDecryptionContext struct {
	identity age.Identity
}

var _ dvs.DecryptionContext = (*AgeDecryptionContext)(nil)

func (c *AgeDecryptionContext) Decrypt(r io.Reader, w io.Writer) error {
	plain, err := age.Decrypt(r, c.identity)
	if err != nil {
		return fmt.Errorf("opening age stream: %w", err)
	}
	if _, err := io.Copy(w, plain); err != nil {
		return fmt.Errorf("decrypting document: %w", err)
	}
	return nil
}
