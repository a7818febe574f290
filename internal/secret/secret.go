// Package secret keeps the portal webhook link encrypted at rest.
// The link is stored as base64(AES-256-CBC(plain)) with hex-encoded
// key and IV held next to it in the env file.
package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
)

var (
	ErrMissingLink = errors.New("portal webhook link is not configured")
	ErrMissingKey  = errors.New("crypto key and iv are required to decrypt the webhook link")
)

func GenerateKeyIV() (key, iv string, err error) {
	rawKey := make([]byte, 32)
	if _, err := rand.Read(rawKey); err != nil {
		return "", "", fmt.Errorf("generate key: %w", err)
	}
	rawIV := make([]byte, aes.BlockSize)
	if _, err := rand.Read(rawIV); err != nil {
		return "", "", fmt.Errorf("generate iv: %w", err)
	}
	return hex.EncodeToString(rawKey), hex.EncodeToString(rawIV), nil
}

func Encrypt(plain, hexKey, hexIV string) (string, error) {
	block, iv, err := cipherFor(hexKey, hexIV)
	if err != nil {
		return "", err
	}

	padded := pad([]byte(plain), aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)

	return base64.StdEncoding.EncodeToString(out), nil
}

func Decrypt(encoded, hexKey, hexIV string) (string, error) {
	block, iv, err := cipherFor(hexKey, hexIV)
	if err != nil {
		return "", err
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return "", fmt.Errorf("decode webhook link: %w", err)
	}
	if len(raw) == 0 || len(raw)%aes.BlockSize != 0 {
		return "", errors.New("webhook link ciphertext has invalid length")
	}

	out := make([]byte, len(raw))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, raw)

	unpadded, err := unpad(out, aes.BlockSize)
	if err != nil {
		return "", err
	}
	return string(unpadded), nil
}

// WebhookURL resolves the plain webhook base URL from config values.
// An unencrypted link (no key material configured) is returned as-is.
func WebhookURL(link, hexKey, hexIV string) (string, error) {
	if strings.TrimSpace(link) == "" {
		return "", ErrMissingLink
	}
	if hexKey == "" && hexIV == "" {
		return strings.TrimSpace(link), nil
	}
	if hexKey == "" || hexIV == "" {
		return "", ErrMissingKey
	}
	return Decrypt(link, hexKey, hexIV)
}

// WriteEnvFile persists freshly generated key material and the encrypted
// link, replacing the whole file the same way the init endpoint always has.
func WriteEnvFile(path, hexKey, hexIV, encryptedLink string) error {
	content := fmt.Sprintf("CRYPTO_KEY=%s\nCRYPTO_IV=%s\nBX_LINK=%s\n", hexKey, hexIV, encryptedLink)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return fmt.Errorf("write env file: %w", err)
	}
	return nil
}

func cipherFor(hexKey, hexIV string) (cipher.Block, []byte, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, nil, fmt.Errorf("decode crypto key: %w", err)
	}
	iv, err := hex.DecodeString(hexIV)
	if err != nil {
		return nil, nil, fmt.Errorf("decode crypto iv: %w", err)
	}
	if len(iv) != aes.BlockSize {
		return nil, nil, fmt.Errorf("crypto iv must be %d bytes, got %d", aes.BlockSize, len(iv))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, fmt.Errorf("init cipher: %w", err)
	}
	return block, iv, nil
}

func pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+n)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(n)
	}
	return padded
}

func unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("empty ciphertext")
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, errors.New("invalid padding")
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, errors.New("invalid padding")
		}
	}
	return data[:len(data)-n], nil
}
