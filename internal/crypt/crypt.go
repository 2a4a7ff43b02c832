// Package crypt encrypts OAuth tokens and uploaded file payloads at rest.
// Ciphertexts are AES-256-CBC with a random IV prefixed to the cipher output,
// base64-encoded as a single string.
package crypt

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// KeySize is the required decoded key length (AES-256).
const KeySize = 32

// ivSize is the CBC initialization vector length, one AES block.
const ivSize = aes.BlockSize

// Sentinel errors. Use errors.Is to check.
var (
	ErrConfiguration = errors.New("crypt: invalid configuration")
	ErrDecryption    = errors.New("crypt: decryption failed")
)

// ConfigError describes why a key was rejected.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "crypt: invalid configuration: " + e.Reason
}

func (e *ConfigError) Unwrap() error {
	return ErrConfiguration
}

// Codec holds an immutable AES-256 key. Safe for concurrent use.
type Codec struct {
	block cipher.Block
	rand  io.Reader
}

// New decodes a base64 key and returns a Codec. The key must decode to
// exactly KeySize bytes.
func New(base64Key string) (*Codec, error) {
	if base64Key == "" {
		return nil, &ConfigError{Reason: "encryption key is not set"}
	}

	key, err := base64.StdEncoding.DecodeString(base64Key)
	if err != nil {
		return nil, &ConfigError{Reason: fmt.Sprintf("encryption key is not valid base64: %v", err)}
	}

	if len(key) != KeySize {
		return nil, &ConfigError{
			Reason: fmt.Sprintf("encryption key must decode to %d bytes, got %d", KeySize, len(key)),
		}
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, &ConfigError{Reason: err.Error()}
	}

	return &Codec{block: block, rand: rand.Reader}, nil
}

// GenerateKey returns a fresh random key in the base64 form New accepts.
func GenerateKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", fmt.Errorf("crypt: generating key: %w", err)
	}

	return base64.StdEncoding.EncodeToString(key), nil
}

// Encrypt encrypts a UTF-8 string.
func (c *Codec) Encrypt(plaintext string) (string, error) {
	return c.seal([]byte(plaintext))
}

// Decrypt reverses Encrypt.
func (c *Codec) Decrypt(ciphertext string) (string, error) {
	plain, err := c.open(ciphertext)
	if err != nil {
		return "", err
	}

	return string(plain), nil
}

// EncryptFile encrypts an arbitrary byte buffer.
func (c *Codec) EncryptFile(data []byte) (string, error) {
	return c.seal(data)
}

// DecryptFile reverses EncryptFile.
func (c *Codec) DecryptFile(ciphertext string) ([]byte, error) {
	return c.open(ciphertext)
}

func (c *Codec) seal(plain []byte) (string, error) {
	padded := pkcs7Pad(plain, aes.BlockSize)

	out := make([]byte, ivSize+len(padded))
	iv := out[:ivSize]

	if _, err := io.ReadFull(c.rand, iv); err != nil {
		return "", fmt.Errorf("crypt: reading random IV: %w", err)
	}

	cipher.NewCBCEncrypter(c.block, iv).CryptBlocks(out[ivSize:], padded)

	return base64.StdEncoding.EncodeToString(out), nil
}

func (c *Codec) open(encoded string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed base64: %w", ErrDecryption, err)
	}

	if len(raw) < ivSize+aes.BlockSize {
		return nil, fmt.Errorf("%w: ciphertext too short (%d bytes)", ErrDecryption, len(raw))
	}

	iv, body := raw[:ivSize], raw[ivSize:]
	if len(body)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext is not a multiple of the block size", ErrDecryption)
	}

	plain := make([]byte, len(body))
	cipher.NewCBCDecrypter(c.block, iv).CryptBlocks(plain, body)

	unpadded, err := pkcs7Unpad(plain, aes.BlockSize)
	if err != nil {
		return nil, err
	}

	return unpadded, nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize

	return append(bytes.Clone(data), bytes.Repeat([]byte{byte(n)}, n)...)
}

// pkcs7Unpad validates every padding byte; a wrong key almost always
// produces invalid padding.
func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty plaintext", ErrDecryption)
	}

	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, fmt.Errorf("%w: invalid padding", ErrDecryption)
	}

	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, fmt.Errorf("%w: invalid padding", ErrDecryption)
		}
	}

	return data[:len(data)-n], nil
}
