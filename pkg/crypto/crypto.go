package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"io"
	"sync"

	dbErrors "github.com/bobboyms/dbcore/pkg/errors"
	"golang.org/x/crypto/argon2"
)

const (
	KeySize   = 32 // AES-256
	NonceSize = 12
	TagSize   = 16
	Overhead  = NonceSize + TagSize
)

// Argon2id parameters for password-based key derivation. Fixed, not
// user-tunable: the spec calls for one standard profile, not a knob.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024 // KiB
	argonThreads = 4
)

// DeriveKey turns a password and salt into a 256-bit AES key via Argon2id.
func DeriveKey(password, salt []byte) []byte {
	return argon2.IDKey(password, salt, argonTime, argonMemory, argonThreads, KeySize)
}

// NewSalt returns a fresh random salt suitable for DeriveKey.
func NewSalt(size int) ([]byte, error) {
	salt := make([]byte, size)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, err
	}
	return salt, nil
}

// Encryptor wraps an AES-256-GCM AEAD. Stateless per call: the same
// Encryptor can be shared across goroutines without locking.
type Encryptor struct {
	aead cipher.AEAD
}

// NewEncryptor builds an Encryptor from a raw 32-byte key.
func NewEncryptor(key []byte) (*Encryptor, error) {
	if len(key) != KeySize {
		return nil, &dbErrors.DecryptionFailed{Context: "invalid key size"}
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return &Encryptor{aead: aead}, nil
}

// Encrypt seals plaintext as nonce ‖ ciphertext ‖ tag.
func (e *Encryptor) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return e.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a nonce ‖ ciphertext ‖ tag blob produced by Encrypt.
// Any AEAD failure (corruption, wrong key, truncation) surfaces as
// DecryptionFailed so callers can distinguish it from other I/O errors.
func (e *Encryptor) Decrypt(data []byte) ([]byte, error) {
	if len(data) < NonceSize+TagSize {
		return nil, &dbErrors.DecryptionFailed{Context: "ciphertext shorter than nonce+tag"}
	}

	nonce := data[:NonceSize]
	ciphertext := data[NonceSize:]

	plaintext, err := e.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, &dbErrors.DecryptionFailed{Context: err.Error()}
	}
	return plaintext, nil
}

// BufferedEncryptor accumulates plaintext records and encrypts them as one
// AEAD blob on Flush, amortizing nonce/tag overhead across a WAL group-commit
// boundary instead of per record.
type BufferedEncryptor struct {
	mu  sync.Mutex
	enc *Encryptor
	buf bytes.Buffer
}

// NewBufferedEncryptor creates a buffered encryptor backed by key, sized to
// bufferKiB kibibytes of expected accumulated plaintext (advisory only;
// bytes.Buffer grows as needed).
func NewBufferedEncryptor(key []byte, bufferKiB int) (*BufferedEncryptor, error) {
	enc, err := NewEncryptor(key)
	if err != nil {
		return nil, err
	}
	b := &BufferedEncryptor{enc: enc}
	if bufferKiB > 0 {
		b.buf.Grow(bufferKiB * 1024)
	}
	return b, nil
}

// Write appends a record to the pending buffer. It is never encrypted on
// its own; only Flush produces ciphertext.
func (b *BufferedEncryptor) Write(record []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(record)
}

// Pending reports how many plaintext bytes are buffered and not yet flushed.
func (b *BufferedEncryptor) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Len()
}

// Flush encrypts the entire accumulated buffer as a single AEAD blob and
// resets the buffer. Flushing an empty buffer returns nil, nil.
func (b *BufferedEncryptor) Flush() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.buf.Len() == 0 {
		return nil, nil
	}

	ciphertext, err := b.enc.Encrypt(b.buf.Bytes())
	if err != nil {
		return nil, err
	}
	b.buf.Reset()
	return ciphertext, nil
}
