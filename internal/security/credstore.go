package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha512"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/pbkdf2"
)

// sha512New adapts crypto/sha512.New to pbkdf2.Key's func() hash.Hash
// parameter, naming the PRF explicitly (PBKDF2-SHA-512).
var sha512New = sha512.New

// Credential-store frame layout:
//
//	salt(32) || iv(16) || auth_tag(16) || ciphertext(var)
//
// AES-256-GCM with a PBKDF2-SHA512-derived key (100,000 iterations,
// 32-byte salt). AES-GCM and PBKDF2 are primitive crypto operations with
// no idiomatic third-party replacement in the example pack beyond
// golang.org/x/crypto, which supplies the PBKDF2 implementation used
// here (see DESIGN.md for the stdlib-vs-library ledger entry).
const (
	saltLen       = 32
	ivLen         = 16 // GCM nonce size used by this frame format
	tagLen        = 16
	pbkdf2Iters   = 100_000
	pbkdf2KeyLen  = 32 // AES-256
	pbkdf2HashLen = 64 // SHA-512 output size, informational
)

var (
	// ErrCorruptFrame is returned when a credential blob is shorter than
	// the minimum frame length or otherwise structurally invalid.
	ErrCorruptFrame = errors.New("security: corrupt credential frame")
)

// SealCredentials encrypts plaintext (typically a JSON blob of exchange
// API keys) under a passphrase, producing the on-disk frame format.
func SealCredentials(plaintext []byte, passphrase string) ([]byte, error) {
	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("security: generating salt: %w", err)
	}

	key := pbkdf2.Key([]byte(passphrase), salt, pbkdf2Iters, pbkdf2KeyLen, sha512New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("security: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, ivLen)
	if err != nil {
		return nil, fmt.Errorf("security: creating GCM: %w", err)
	}

	iv := make([]byte, ivLen)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("security: generating iv: %w", err)
	}

	// Seal appends the tag to the ciphertext; split it back out so the
	// on-disk layout matches salt||iv||tag||ciphertext exactly.
	sealed := gcm.Seal(nil, iv, plaintext, nil)
	ciphertext := sealed[:len(sealed)-tagLen]
	tag := sealed[len(sealed)-tagLen:]

	frame := make([]byte, 0, saltLen+ivLen+tagLen+len(ciphertext))
	frame = append(frame, salt...)
	frame = append(frame, iv...)
	frame = append(frame, tag...)
	frame = append(frame, ciphertext...)
	return frame, nil
}

// OpenCredentials reverses SealCredentials.
func OpenCredentials(frame []byte, passphrase string) ([]byte, error) {
	if len(frame) < saltLen+ivLen+tagLen {
		return nil, ErrCorruptFrame
	}
	salt := frame[:saltLen]
	iv := frame[saltLen : saltLen+ivLen]
	tag := frame[saltLen+ivLen : saltLen+ivLen+tagLen]
	ciphertext := frame[saltLen+ivLen+tagLen:]

	key := pbkdf2.Key([]byte(passphrase), salt, pbkdf2Iters, pbkdf2KeyLen, sha512New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("security: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, ivLen)
	if err != nil {
		return nil, fmt.Errorf("security: creating GCM: %w", err)
	}

	sealed := make([]byte, 0, len(ciphertext)+tagLen)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("security: authentication failed (wrong passphrase or tampered frame): %w", err)
	}
	return plaintext, nil
}

// LoadMasterPassphrase resolves the credential-store master passphrase
// from the environment, per the "environment variable or
// prompt" contract. Prompting is left to the outer CLI (out of core
// scope); the core only consumes the resolved value.
func LoadMasterPassphrase(envVar string) (string, error) {
	v := os.Getenv(envVar)
	if v == "" {
		return "", fmt.Errorf("security: environment variable %s is not set", envVar)
	}
	return v, nil
}

// ConstantTimeEqual compares two byte slices without leaking timing
// information. No code in the module calls it.
func ConstantTimeEqual(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}
