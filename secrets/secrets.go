// Package secrets encrypts tenant credentials at rest.
//
// Values are stored as "<iv hex>:<ciphertext hex>" using AES-256-CBC with a
// key derived from the session secret by SHA-256. Decrypt passes through
// anything that is not in that form, so rows written before encryption was
// enabled keep working until the startup pass rewrites them.
package secrets

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

var ErrNoSecret = errors.New("secrets: session secret is required")

// Decrypter is the only capability the forwarding engine needs.
type Decrypter interface {
	Decrypt(value string) string
}

type Cipher struct {
	key []byte
}

func New(sessionSecret string) (*Cipher, error) {
	if sessionSecret == "" {
		return nil, ErrNoSecret
	}
	sum := sha256.Sum256([]byte(sessionSecret))
	return &Cipher{key: sum[:]}, nil
}

// Encrypt returns the stored form of plaintext. Empty input stays empty.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("secrets: %w", err)
	}
	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("secrets: reading iv: %w", err)
	}
	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(out), nil
}

// Decrypt returns the plaintext of a stored value. Values that are not
// encrypted, or fail to decrypt, come back unchanged.
func (c *Cipher) Decrypt(value string) string {
	if !IsEncrypted(value) {
		return value
	}
	ivHex, dataHex, _ := strings.Cut(value, ":")
	iv, err := hex.DecodeString(ivHex)
	if err != nil {
		return value
	}
	data, err := hex.DecodeString(dataHex)
	if err != nil || len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return value
	}
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return value
	}
	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, data)
	plain, err := pkcs7Unpad(out, aes.BlockSize)
	if err != nil {
		return value
	}
	return string(plain)
}

// Mask shows only the tail of a credential: the last 4 characters, or the
// last 2 when the plaintext has 8 characters or fewer.
func (c *Cipher) Mask(value string) string {
	if value == "" {
		return ""
	}
	return MaskPlain(c.Decrypt(value))
}

func MaskPlain(plain string) string {
	if plain == "" {
		return ""
	}
	n := 4
	if len(plain) <= 8 {
		n = 2
	}
	if n > len(plain) {
		n = len(plain)
	}
	return "****" + plain[len(plain)-n:]
}

// IsEncrypted reports whether value has the "<32 hex>:<hex>" stored form.
func IsEncrypted(value string) bool {
	parts := strings.Split(value, ":")
	if len(parts) != 2 || len(parts[0]) != 2*aes.BlockSize || parts[1] == "" {
		return false
	}
	for _, r := range parts[0] {
		if !strings.ContainsRune("0123456789abcdef", r) {
			return false
		}
	}
	return true
}

func pkcs7Pad(b []byte, size int) []byte {
	n := size - len(b)%size
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte, size int) ([]byte, error) {
	if len(b) == 0 || len(b)%size != 0 {
		return nil, errors.New("secrets: bad padding")
	}
	n := int(b[len(b)-1])
	if n == 0 || n > size || n > len(b) {
		return nil, errors.New("secrets: bad padding")
	}
	for _, p := range b[len(b)-n:] {
		if int(p) != n {
			return nil, errors.New("secrets: bad padding")
		}
	}
	return b[:len(b)-n], nil
}
