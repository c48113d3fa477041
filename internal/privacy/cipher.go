// Package privacy implements the client-key symmetric encryption used to
// protect student names and grade payloads before they reach the remote
// record store. The passphrase travels with each request and is never
// persisted server-side.
package privacy

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strings"

	"golang.org/x/crypto/scrypt"
)

// ErrUndecryptable signals a wrong key, a corrupted payload, or ciphertext
// produced under a different key. Callers distinguish it from "no data" and
// skip the affected record instead of failing.
var ErrUndecryptable = errors.New("payload cannot be decrypted")

const (
	saltSize  = 16
	nonceSize = 12
	keySize   = 32

	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

// Encrypt seals plaintext under a passphrase-derived AES-256-GCM key. Each
// call draws a fresh salt and nonce, so identical inputs never produce the
// same ciphertext and stored rows cannot be compared.
func Encrypt(plaintext, passphrase string) (string, error) {
	if passphrase == "" {
		return "", errors.New("passphrase must not be empty")
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	gcm, err := aead(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)

	payload := make([]byte, 0, saltSize+nonceSize+len(sealed))
	payload = append(payload, salt...)
	payload = append(payload, nonce...)
	payload = append(payload, sealed...)

	return base64.StdEncoding.EncodeToString(payload), nil
}

// Decrypt reverses Encrypt. Any failure, from malformed base64 to a GCM
// authentication mismatch under the wrong passphrase, yields
// ErrUndecryptable; it never panics past this boundary.
func Decrypt(payload, passphrase string) (string, error) {
	if passphrase == "" {
		return "", ErrUndecryptable
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
	if err != nil || len(raw) < saltSize+nonceSize+1 {
		return "", ErrUndecryptable
	}

	salt := raw[:saltSize]
	nonce := raw[saltSize : saltSize+nonceSize]
	sealed := raw[saltSize+nonceSize:]

	gcm, err := aead(passphrase, salt)
	if err != nil {
		return "", ErrUndecryptable
	}

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrUndecryptable
	}

	return string(plaintext), nil
}

func aead(passphrase string, salt []byte) (cipher.AEAD, error) {
	key, err := scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, keySize)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	return cipher.NewGCM(block)
}

type privacyKeyContextKey struct{}

// ContextWithKey attaches the request's privacy key to the context.
func ContextWithKey(ctx context.Context, key string) context.Context {
	key = strings.TrimSpace(key)
	if key == "" {
		return ctx
	}
	return context.WithValue(ctx, privacyKeyContextKey{}, key)
}

// KeyFromContext returns the privacy key bound to the request, or an empty
// string when the client supplied none.
func KeyFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if value, ok := ctx.Value(privacyKeyContextKey{}).(string); ok {
		return value
	}
	return ""
}
