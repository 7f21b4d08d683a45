package encryption

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"sync"

	"dvsmart-go/internal/dvs"
)

// TestSuffix is appended to destination paths of test-encrypted files.
const TestSuffix = ".enc"

// testMagic opens every test-encrypted stream.
var testMagic = []byte("DVSENC\x00\x00")

// testMask is XORed over the payload so ciphertext never equals plaintext.
const testMask = 0x5a

// TestEncryptor is a deterministic, keyless stand-in for AgeEncryptor used
// by the "test" encryption type. Output is the magic header followed by the
// masked payload.
type TestEncryptor struct {
	mu         sync.Mutex
	passphrase string
}

var _ dvs.Encryptor = (*TestEncryptor)(nil)

func NewTestEncryptor() *TestEncryptor {
	return &TestEncryptor{}
}

// Setup records the passphrase Unlock will insist on.
func (e *TestEncryptor) Setup(passphrase string) error {
	if passphrase == "" {
		return fmt.Errorf("passphrase must not be empty")
	}
	e.mu.Lock()
	e.passphrase = passphrase
	e.mu.Unlock()
	return nil
}

func (e *TestEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	if _, err := w.Write(testMagic); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	if err := mask(w, r); err != nil {
		return fmt.Errorf("encrypting data: %w", err)
	}
	return nil
}

// Unlock accepts any passphrase until Setup has been called.
func (e *TestEncryptor) Unlock(passphrase string) (dvs.DecryptionContext, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.passphrase != "" && passphrase != e.passphrase {
		return nil, ErrWrongPassphrase
	}
	return &TestDecryptionContext{}, nil
}

func (e *TestEncryptor) IsConfigured() bool { return true }

func (e *TestEncryptor) Suffix() string { return TestSuffix }

// TestDecryptionContext reverses TestEncryptor.Encrypt.
type TestDecryptionContext struct{}

var _ dvs.DecryptionContext = (*TestDecryptionContext)(nil)

func (c *TestDecryptionContext) Decrypt(r io.Reader, w io.Writer) error {
	header := make([]byte, len(testMagic))
	if _, err := io.ReadFull(r, header); err != nil {
		return fmt.Errorf("reading header: %w", err)
	}
	if !bytes.Equal(header, testMagic) {
		return fmt.Errorf("not a test-encrypted stream")
	}
	if err := mask(w, r); err != nil {
		return fmt.Errorf("decrypting data: %w", err)
	}
	return nil
}

func mask(w io.Writer, r io.Reader) error {
	bw := bufio.NewWriter(w)
	br := bufio.NewReader(r)
	for {
		b, err := br.ReadByte()
		if err == io.EOF {
			return bw.Flush()
		}
		if err != nil {
			return err
		}
		if err := bw.WriteByte(b ^ testMask); err != nil {
			return err
		}
	}
}
