package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/pbkdf2"

	"github.com/conneroisu/bruwatch/internal/errors"
)

// Prefix marks values encrypted with AES-256-GCM under a passphrase key.
const Prefix = "$00:"

const (
	keySalt       = "bruwatch/environment-secrets"
	keyIterations = 100_000
	keyLength     = 32
)

// Cipher encrypts and decrypts stored secret values. Values are
// Prefix + base64(nonce | ciphertext).
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher derives the key from passphrase. An empty passphrase yields a
// cipher that refuses every operation.
func NewCipher(passphrase string) (*Cipher, error) {
	if passphrase == "" {
		return &Cipher{}, nil
	}
	key := pbkdf2.Key([]byte(passphrase), []byte(keySalt), keyIterations, keyLength, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.NewSecretError("failed to create cipher", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.NewSecretError("failed to create cipher", err)
	}
	return &Cipher{aead: aead}, nil
}

// Enabled reports whether a key is configured.
func (c *Cipher) Enabled() bool {
	return c.aead != nil
}

// Encrypt returns the stored form of plaintext.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if !c.Enabled() {
		return "", errors.NewSecretError("no secrets key configured", nil)
	}
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", errors.NewSecretError("failed to generate nonce", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return Prefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt returns the plaintext of a stored value.
func (c *Cipher) Decrypt(value string) (string, error) {
	if !c.Enabled() {
		return "", errors.NewSecretError("no secrets key configured", nil)
	}
	if !strings.HasPrefix(value, Prefix) {
		return "", errors.NewSecretError(fmt.Sprintf("unsupported secret encoding %q", algorithm(value)), nil)
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, Prefix))
	if err != nil {
		return "", errors.NewSecretError("secret is not valid base64", err)
	}
	n := c.aead.NonceSize()
	if len(raw) < n {
		return "", errors.NewSecretError("secret is truncated", nil)
	}
	plain, err := c.aead.Open(nil, raw[:n], raw[n:], nil)
	if err != nil {
		return "", errors.NewSecretError("secret could not be decrypted", err)
	}
	return string(plain), nil
}

// algorithm returns the "$xx:" marker of a value, if any.
func algorithm(value string) string {
	if len(value) >= 4 && value[0] == '$' && value[3] == ':' {
		return value[:4]
	}
	return "none"
}
