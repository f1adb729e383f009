// Package crypt provides the stock Encryptor for the redaction stage:
// AES-256-GCM with a PBKDF2-derived key. Every Cipher instance draws a
// fresh random salt and every Encrypt call draws a fresh random nonce,
// so equal plaintexts never produce equal payloads. The salt and nonce
// travel inside the payload, which makes any payload decryptable with
// the passphrase alone.
package crypt

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltSize   = 16
	keySize    = 32
	iterations = 10000
)

var (
	// ErrEmptyPassphrase rejects construction without key material.
	ErrEmptyPassphrase = errors.New("crypt: empty passphrase")
	// ErrMalformedPayload reports a payload too short or not base64.
	ErrMalformedPayload = errors.New("crypt: malformed payload")
)

// Cipher encrypts and decrypts short strings. It retains the passphrase
// so decryption can re-derive keys from salts embedded in foreign
// payloads. Safe for concurrent use.
type Cipher struct {
	passphrase []byte
	salt       []byte
	aead       cipher.AEAD
}

// New derives this instance's encryption key from the passphrase and a
// fresh random salt.
func New(passphrase string) (*Cipher, error) {
	if passphrase == "" {
		return nil, ErrEmptyPassphrase
	}
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("crypt: salt generation: %w", err)
	}
	c := &Cipher{passphrase: []byte(passphrase), salt: salt}
	aead, err := c.aeadFor(salt)
	if err != nil {
		return nil, err
	}
	c.aead = aead
	return c, nil
}

// aeadFor builds an AES-GCM instance for the key derived from the given
// salt.
func (c *Cipher) aeadFor(salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key(c.passphrase, salt, iterations, keySize, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypt: cipher init: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypt: gcm init: %w", err)
	}
	return aead, nil
}

// Encrypt seals plaintext into base64(salt nonce ciphertext tag). The
// empty string encrypts to the empty string.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("crypt: nonce generation: %w", err)
	}

	buf := make([]byte, 0, saltSize+len(nonce)+len(plaintext)+c.aead.Overhead())
	buf = append(buf, c.salt...)
	buf = append(buf, nonce...)
	buf = c.aead.Seal(buf, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(buf), nil
}

// Decrypt reverses Encrypt. The key is re-derived from the embedded
// salt, so payloads from other Cipher instances sharing the passphrase
// decrypt too. The empty string decrypts to the empty string.
func (c *Cipher) Decrypt(payload string) (string, error) {
	if payload == "" {
		return "", nil
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	aead := c.aead
	if len(raw) < saltSize {
		return "", ErrMalformedPayload
	}
	salt, rest := raw[:saltSize], raw[saltSize:]
	if !bytes.Equal(salt, c.salt) {
		if aead, err = c.aeadFor(salt); err != nil {
			return "", err
		}
	}
	if len(rest) < aead.NonceSize()+aead.Overhead() {
		return "", ErrMalformedPayload
	}
	nonce, sealed := rest[:aead.NonceSize()], rest[aead.NonceSize():]

	plain, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("crypt: open: %w", err)
	}
	return string(plain), nil
}
