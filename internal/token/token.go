// Package token implements the opaque URL token codec. A target URL is
// encrypted under a key derived from a shared secret and the current UTC
// date, so tokens are stateless, unreadable in logs and address bars, and
// expire after a one-day grace window.
package token

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
	"time"
)

// ErrTokenInvalid is returned when a token fails decryption under both the
// current and prior day's key.
var ErrTokenInvalid = errors.New("token invalid or expired")

const ivLength = aes.BlockSize

// Codec encrypts and decrypts target URLs into opaque tokens.
type Codec struct {
	secret string
	now    func() time.Time
}

// NewCodec creates a Codec using the given long-lived secret.
func NewCodec(secret string) *Codec {
	return &Codec{secret: secret, now: time.Now}
}

// NewCodecAt creates a Codec with a fixed clock. Intended for tests that
// exercise the daily key rotation.
func NewCodecAt(secret string, now func() time.Time) *Codec {
	return &Codec{secret: secret, now: now}
}

// keyFor derives the 32-byte AES key for today+offsetDays (UTC).
func (c *Codec) keyFor(offsetDays int) []byte {
	date := c.now().UTC().AddDate(0, 0, offsetDays).Format("2006-01-02")
	sum := sha256.Sum256([]byte(c.secret + date))
	return sum[:]
}

// Encode encrypts the target URL under today's key and returns the token as
// hex(iv):hex(ciphertext). A fresh random IV is generated per call.
func (c *Codec) Encode(target string) (string, error) {
	iv := make([]byte, ivLength)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("token: generate iv: %w", err)
	}

	block, err := aes.NewCipher(c.keyFor(0))
	if err != nil {
		return "", fmt.Errorf("token: init cipher: %w", err)
	}

	plain := pkcs7Pad([]byte(target), aes.BlockSize)
	ct := make([]byte, len(plain))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ct, plain)

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(ct), nil
}

// Decode recovers the target URL from a token. It tries today's key first
// and falls back to yesterday's key once (grace window around UTC midnight).
// Anything older, or any malformed token, yields ErrTokenInvalid.
func (c *Codec) Decode(tok string) (string, error) {
	ivHex, ctHex, ok := strings.Cut(tok, ":")
	if !ok {
		return "", ErrTokenInvalid
	}
	iv, err := hex.DecodeString(ivHex)
	if err != nil || len(iv) != ivLength {
		return "", ErrTokenInvalid
	}
	ct, err := hex.DecodeString(ctHex)
	if err != nil || len(ct) == 0 || len(ct)%aes.BlockSize != 0 {
		return "", ErrTokenInvalid
	}

	for _, offset := range []int{0, -1} {
		if plain, ok := c.tryDecrypt(iv, ct, offset); ok {
			return plain, nil
		}
	}
	return "", ErrTokenInvalid
}

func (c *Codec) tryDecrypt(iv, ct []byte, offsetDays int) (string, bool) {
	block, err := aes.NewCipher(c.keyFor(offsetDays))
	if err != nil {
		return "", false
	}

	plain := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ct)

	unpadded, ok := pkcs7Unpad(plain, aes.BlockSize)
	if !ok {
		return "", false
	}
	return string(unpadded), true
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	pad := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(pad)}, pad)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, bool) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, false
	}
	pad := int(data[len(data)-1])
	if pad == 0 || pad > blockSize || pad > len(data) {
		return nil, false
	}
	for _, b := range data[len(data)-pad:] {
		if int(b) != pad {
			return nil, false
		}
	}
	return data[:len(data)-pad], true
}
