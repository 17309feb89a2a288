package googleauth

import (
	"crypto/aes"
	"crypto/cipher"
	crand "crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
)

// Stored credentials are AES-256-GCM encrypted and hex encoded as
// iv || tag || ciphertext with a 16-byte IV and 16-byte tag.

const (
	ivLen  = 16
	tagLen = 16
)

var credentialAAD = []byte("gmb-optimizer")

var ErrMalformedCredential = errors.New("malformed encrypted credential")

func gcmFor(hexKey string) (cipher.AEAD, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCMWithNonceSize(block, ivLen)
}

func Encrypt(plaintext, hexKey string) (string, error) {
	gcm, err := gcmFor(hexKey)
	if err != nil {
		return "", err
	}
	iv := make([]byte, ivLen)
	if _, err := crand.Read(iv); err != nil {
		return "", err
	}
	// Seal returns ciphertext||tag; the stored layout wants iv||tag||ciphertext.
	sealed := gcm.Seal(nil, iv, []byte(plaintext), credentialAAD)
	ct, tag := sealed[:len(sealed)-tagLen], sealed[len(sealed)-tagLen:]
	return hex.EncodeToString(iv) + hex.EncodeToString(tag) + hex.EncodeToString(ct), nil
}

func Decrypt(encoded, hexKey string) (string, error) {
	gcm, err := gcmFor(hexKey)
	if err != nil {
		return "", err
	}
	raw, err := hex.DecodeString(encoded)
	if err != nil || len(raw) < ivLen+tagLen {
		return "", ErrMalformedCredential
	}
	iv := raw[:ivLen]
	tag := raw[ivLen : ivLen+tagLen]
	ct := raw[ivLen+tagLen:]
	plain, err := gcm.Open(nil, iv, append(append([]byte{}, ct...), tag...), credentialAAD)
	if err != nil {
		return "", ErrMalformedCredential
	}
	return string(plain), nil
}

// GenerateKey returns a fresh hex-encoded 32-byte key.
func GenerateKey() (string, error) {
	key := make([]byte, 32)
	if _, err := crand.Read(key); err != nil {
		return "", err
	}
	return hex.EncodeToString(key), nil
}
