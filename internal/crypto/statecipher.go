// Package crypto seals the short-lived values the sign-in flow keeps in the
// browser between redirects, chiefly the OAuth state. Values are encrypted with
// AES-256-GCM, so the browser can neither read nor alter them, and carry their own
// expiry so a replayed cookie is useless once it lapses.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

var (
	// ErrKeyLengthInvalid is returned when a key is not exactly 32 bytes (required for AES-256).
	ErrKeyLengthInvalid = errors.New("crypto: key must be exactly 32 bytes for AES-256")
	// ErrCiphertextCorrupted is returned when the ciphertext fails base64 decoding or is shorter than a nonce.
	ErrCiphertextCorrupted = errors.New("crypto: ciphertext is corrupted or tampered")
	// ErrDecryptionFailed is returned when AES-GCM authentication fails: tampering or a wrong key.
	ErrDecryptionFailed = errors.New("crypto: decryption operation failed")
	// ErrSaltTooShort is returned when the provided salt is fewer than 16 bytes.
	ErrSaltTooShort = errors.New("crypto: salt must be at least 16 bytes")
	// ErrExpired is returned by OpenWithExpiry once the sealed value has lapsed.
	ErrExpired = errors.New("crypto: sealed value has expired")
)

// stateSalt separates the state key from any other key derived from the session secret.
var stateSalt = []byte("permission-portal/oauth-state/v1")

// StateCipher encrypts and decrypts values stored in browser cookies
type StateCipher struct {
	key []byte
}

// NewStateCipher creates a cipher with a 32-byte key
func NewStateCipher(key []byte) (*StateCipher, error) {
	if len(key) != 32 {
		return nil, ErrKeyLengthInvalid
	}
	keyCopy := make([]byte, 32)
	copy(keyCopy, key)
	return &StateCipher{key: keyCopy}, nil
}

// DeriveStateCipher creates a cipher by deriving a key from a passphrase
func DeriveStateCipher(passphrase string, salt []byte, iterations int) (*StateCipher, error) {
	if len(salt) < 16 {
		return nil, ErrSaltTooShort
	}
	if iterations < 10000 {
		iterations = 100000
	}
	derivedKey := pbkdf2.Key([]byte(passphrase), salt, iterations, 32, sha256.New)
	return NewStateCipher(derivedKey)
}

// StateCipherFromSecret derives the sign-in state cipher from the session secret.
func StateCipherFromSecret(secret string) (*StateCipher, error) {
	return DeriveStateCipher(secret, stateSalt, 0)
}

func (sc *StateCipher) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(sc.key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Seal encrypts plaintext and returns a URL-safe base64 ciphertext
func (sc *StateCipher) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	aead, err := sc.aead()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.URLEncoding.EncodeToString(sealed), nil
}

// Open decrypts a ciphertext produced by Seal
func (sc *StateCipher) Open(encoded string) (string, error) {
	if encoded == "" {
		return "", nil
	}

	ciphertext, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrCiphertextCorrupted
	}

	aead, err := sc.aead()
	if err != nil {
		return "", err
	}

	nonceLen := aead.NonceSize()
	if len(ciphertext) < nonceLen {
		return "", ErrCiphertextCorrupted
	}

	plaintext, err := aead.Open(nil, ciphertext[:nonceLen], ciphertext[nonceLen:], nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}

	return string(plaintext), nil
}

// SealWithExpiry seals value together with an absolute expiry ttl from now.
func (sc *StateCipher) SealWithExpiry(value string, ttl time.Duration) (string, error) {
	expires := time.Now().Add(ttl).Unix()
	return sc.Seal(strconv.FormatInt(expires, 10) + "|" + value)
}

// OpenWithExpiry opens a value sealed by SealWithExpiry, failing with ErrExpired
// once its expiry has passed.
func (sc *StateCipher) OpenWithExpiry(encoded string) (string, error) {
	plaintext, err := sc.Open(encoded)
	if err != nil {
		return "", err
	}

	ts, value, ok := strings.Cut(plaintext, "|")
	if !ok {
		return "", ErrCiphertextCorrupted
	}
	expires, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return "", ErrCiphertextCorrupted
	}
	if time.Now().Unix() > expires {
		return "", ErrExpired
	}
	return value, nil
}

// RandomToken returns n random bytes encoded as URL-safe base64 without padding
func RandomToken(n int) (string, error) {
	if n < 16 {
		n = 16
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
