package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"vouch/internal/domain"
)

const (
	keySize   = 32
	nonceSize = 12
	tagSize   = 16
)

// Vault seals and opens linked-item credentials with AES-256-GCM.
// The sealed envelope is three colon-delimited hex fields: nonce, tag, ciphertext.
type Vault struct {
	aead cipher.AEAD
}

// New builds a Vault from a 64-character hex key. A missing or wrongly sized
// key is a startup error, not a per-call one.
func New(keyHex string) (*Vault, error) {
	key, err := hex.DecodeString(strings.TrimSpace(keyHex))
	if err != nil {
		return nil, fmt.Errorf("vault key is not valid hex: %w", err)
	}
	if len(key) != keySize {
		return nil, fmt.Errorf("vault key must be %d bytes (%d hex characters), got %d bytes", keySize, keySize*2, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}

	return &Vault{aead: aead}, nil
}

// Seal encrypts plaintext under a fresh random nonce.
func (v *Vault) Seal(plaintext string) (string, error) {
	nonce, err := randomNonce()
	if err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := v.aead.Seal(nil, nonce, []byte(plaintext), nil)

	// Seal appends the tag to the ciphertext; the envelope stores them as
	// separate fields so each is independently recoverable.
	tagStart := len(sealed) - tagSize
	ciphertext := sealed[:tagStart]
	tag := sealed[tagStart:]

	return strings.Join([]string{
		hex.EncodeToString(nonce),
		hex.EncodeToString(tag),
		hex.EncodeToString(ciphertext),
	}, ":"), nil
}

// Open decrypts an envelope produced by Seal. Any tampering with the tag or
// ciphertext fails closed: no partial plaintext is ever returned.
func (v *Vault) Open(envelope string) (string, error) {
	parts := strings.Split(envelope, ":")
	if len(parts) != 3 {
		return "", fmt.Errorf("%w: envelope must have 3 fields, got %d", domain.ErrIntegrity, len(parts))
	}

	nonce, err := hex.DecodeString(parts[0])
	if err != nil || len(nonce) != nonceSize {
		return "", fmt.Errorf("%w: bad nonce field", domain.ErrIntegrity)
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil || len(tag) != tagSize {
		return "", fmt.Errorf("%w: bad tag field", domain.ErrIntegrity)
	}
	ciphertext, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", fmt.Errorf("%w: bad ciphertext field", domain.ErrIntegrity)
	}

	plaintext, err := v.aead.Open(nil, nonce, append(ciphertext, tag...), nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrIntegrity, err)
	}

	return string(plaintext), nil
}

func randomNonce() ([]byte, error) {
	// Never use more than 2^32 random nonces with a given key because of
	// the risk of a repeat.
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return nonce, nil
}
