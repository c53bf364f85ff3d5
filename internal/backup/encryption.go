package backup

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"

	"golang.org/x/crypto/pbkdf2"
)

const (
	keySize          = 32
	pbkdf2Iterations = 100000
)

// PayloadCipher seals archived payloads with AES-256-GCM. The nonce is
// prepended to the ciphertext.
type PayloadCipher struct {
	config *EncryptionConfig
}

// NewPayloadCipher creates a cipher using the key source of config
func NewPayloadCipher(config *EncryptionConfig) *PayloadCipher {
	return &PayloadCipher{config: config}
}

// Enabled reports whether payloads are encrypted
func (pc *PayloadCipher) Enabled() bool {
	return pc != nil && pc.config != nil && pc.config.Enabled
}

// Seal encrypts data, or returns it unchanged when encryption is disabled
func (pc *PayloadCipher) Seal(data []byte) ([]byte, error) {
	if !pc.Enabled() {
		return data, nil
	}
	gcm, err := pc.gcm()
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, NewEncryptionError("failed to generate nonce", err)
	}
	return gcm.Seal(nonce, nonce, data, nil), nil
}

// Open decrypts data sealed by Seal
func (pc *PayloadCipher) Open(sealed []byte) ([]byte, error) {
	gcm, err := pc.gcm()
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(sealed) < nonceSize {
		return nil, NewEncryptionError("encrypted data too short", nil)
	}
	plain, err := gcm.Open(nil, sealed[:nonceSize], sealed[nonceSize:], nil)
	if err != nil {
		return nil, NewEncryptionError("failed to decrypt data, wrong key or corrupted payload", err)
	}
	return plain, nil
}

func (pc *PayloadCipher) gcm() (cipher.AEAD, error) {
	if pc == nil || pc.config == nil {
		return nil, NewEncryptionError("encryption is not configured", nil)
	}
	key, err := pc.config.GetEncryptionKey()
	if err != nil {
		return nil, NewEncryptionError("failed to get encryption key", err)
	}
	if len(key) != keySize {
		return nil, NewEncryptionError("encryption key must be 32 bytes for AES-256", nil)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, NewEncryptionError("failed to create AES cipher", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, NewEncryptionError("failed to create GCM cipher", err)
	}
	return gcm, nil
}

// DeriveKey derives an AES-256 key from a passphrase with PBKDF2-SHA256
func DeriveKey(passphrase string, salt []byte) []byte {
	return pbkdf2.Key([]byte(passphrase), salt, pbkdf2Iterations, keySize, sha256.New)
}

// GenerateKey returns a random AES-256 key
func GenerateKey() ([]byte, error) {
	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, NewEncryptionError("failed to generate encryption key", err)
	}
	return key, nil
}

// GenerateSalt returns a random hex salt for passphrase keys
func GenerateSalt() (string, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", NewEncryptionError("failed to generate salt", err)
	}
	return hex.EncodeToString(salt), nil
}

// WriteKeyFile writes a raw key readable only by the owner
func WriteKeyFile(key []byte, path string) error {
	if len(key) != keySize {
		return NewEncryptionError("key must be 32 bytes for AES-256", nil)
	}
	if err := os.WriteFile(path, key, 0600); err != nil {
		return NewEncryptionError("failed to write key file", err)
	}
	return nil
}
