package crypto

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/go-jose/go-jose/v4"
	"golang.org/x/crypto/hkdf"
)

// MinSecretLength is the shortest secret NewTokenSealer accepts.
const MinSecretLength = 32

// ErrInvalidToken is returned by Open for any token that cannot be decrypted
// and decoded. Tampered, truncated and foreign tokens are not distinguished.
var ErrInvalidToken = errors.New("invalid sealed token")

// TokenSealer encrypts JSON payloads into compact JWE strings (dir + A256GCM).
// The output only uses base64url characters and '.', so it can travel in a
// URL query parameter without escaping.
type TokenSealer struct {
	key []byte
}

// NewTokenSealer derives a 256-bit content key from secret with HKDF-SHA256.
// purpose separates keys derived from the same secret for different uses.
func NewTokenSealer(secret []byte, purpose string) (TokenSealer, error) {
	if len(secret) < MinSecretLength {
		return TokenSealer{}, fmt.Errorf("secret must be at least %d bytes, got %d", MinSecretLength, len(secret))
	}

	key := make([]byte, 32)
	kdf := hkdf.New(sha256.New, secret, nil, []byte("widget-auth/"+purpose))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return TokenSealer{}, fmt.Errorf("deriving key: %w", err)
	}

	return TokenSealer{key: key}, nil
}

// Seal marshals v to JSON and encrypts it.
func (s TokenSealer) Seal(v any) (string, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshaling payload: %w", err)
	}
	defer zeroBytes(plaintext)

	enc, err := jose.NewEncrypter(
		jose.A256GCM,
		jose.Recipient{Algorithm: jose.DIRECT, Key: s.key},
		nil,
	)
	if err != nil {
		return "", fmt.Errorf("creating encrypter: %w", err)
	}

	obj, err := enc.Encrypt(plaintext)
	if err != nil {
		return "", fmt.Errorf("encrypting: %w", err)
	}

	return obj.CompactSerialize()
}

// Open decrypts token and unmarshals the payload into v.
func (s TokenSealer) Open(token string, v any) error {
	obj, err := jose.ParseEncrypted(token,
		[]jose.KeyAlgorithm{jose.DIRECT},
		[]jose.ContentEncryption{jose.A256GCM},
	)
	if err != nil {
		return fmt.Errorf("%w: parsing: %v", ErrInvalidToken, err)
	}

	plaintext, err := obj.Decrypt(s.key)
	if err != nil {
		return fmt.Errorf("%w: decrypting: %v", ErrInvalidToken, err)
	}
	defer zeroBytes(plaintext)

	if err := json.Unmarshal(plaintext, v); err != nil {
		return fmt.Errorf("%w: decoding payload: %v", ErrInvalidToken, err)
	}
	return nil
}

// zeroBytes overwrites b so plaintext holding client secrets does not linger.
//
//go:noinline
func zeroBytes(b []byte) {
	clear(b)
}
