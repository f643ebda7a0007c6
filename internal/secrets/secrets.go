// Package secrets provides selective encryption of sensitive fields inside
// volume and server configuration maps. Each record kind declares a manifest
// of sensitive keys; everything else is stored as-is.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"

	"golang.org/x/crypto/pbkdf2"

	"dbvault/internal/errors"
)

const (
	keyIterations = 10000
	keyLength     = 32
)

// Key derivation salt. Fixed so records encrypted with the same master key
// remain decryptable across processes.
var derivationSalt = []byte("dbvault.secrets.v1")

// manifests lists the sensitive keys per record kind
var manifests = map[string][]string{
	"volume": {"password", "secret_key", "access_key", "private_key"},
	"server": {"password"},
}

// Codec encrypts and decrypts sensitive configuration fields with
// AES-256-GCM using a key derived from the master key.
type Codec struct {
	key []byte
}

// NewCodec creates a codec from the configured master key
func NewCodec(masterKey string) (*Codec, error) {
	if masterKey == "" {
		return nil, errors.NewConfigurationError("master encryption key is not configured", nil)
	}
	key := pbkdf2.Key([]byte(masterKey), derivationSalt, keyIterations, keyLength, sha256.New)
	return &Codec{key: key}, nil
}

// SensitiveKeys returns the manifest for a record kind
func SensitiveKeys(kind string) []string {
	return manifests[kind]
}

// EncryptFields returns a copy of fields with every sensitive key for the
// given kind encrypted. Unknown kinds are a configuration error.
func (c *Codec) EncryptFields(kind string, fields map[string]string) (map[string]string, error) {
	manifest, ok := manifests[kind]
	if !ok {
		return nil, errors.NewConfigurationError("unknown secret manifest kind: "+kind, nil)
	}

	out := make(map[string]string, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	for _, key := range manifest {
		if v, present := out[key]; present && v != "" {
			sealed, err := c.seal(v)
			if err != nil {
				return nil, err
			}
			out[key] = sealed
		}
	}
	return out, nil
}

// DecryptFields is the inverse of EncryptFields
func (c *Codec) DecryptFields(kind string, fields map[string]string) (map[string]string, error) {
	manifest, ok := manifests[kind]
	if !ok {
		return nil, errors.NewConfigurationError("unknown secret manifest kind: "+kind, nil)
	}

	out := make(map[string]string, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	for _, key := range manifest {
		if v, present := out[key]; present && v != "" {
			opened, err := c.open(v)
			if err != nil {
				return nil, err
			}
			out[key] = opened
		}
	}
	return out, nil
}

func (c *Codec) seal(plaintext string) (string, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", errors.NewConfigurationError("failed to create cipher", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", errors.NewConfigurationError("failed to create GCM", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", errors.NewConfigurationError("failed to generate nonce", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

func (c *Codec) open(encoded string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", errors.NewConfigurationError("sensitive field is not valid base64", err)
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", errors.NewConfigurationError("failed to create cipher", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", errors.NewConfigurationError("failed to create GCM", err)
	}

	if len(data) < gcm.NonceSize() {
		return "", errors.NewConfigurationError("sensitive field ciphertext too short", nil)
	}

	nonce, ciphertext := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", errors.NewConfigurationError("failed to decrypt sensitive field", err)
	}
	return string(plaintext), nil
}
