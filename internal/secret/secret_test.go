package secret

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key, iv, err := GenerateKeyIV()
	require.NoError(t, err)
	assert.Len(t, key, 64)
	assert.Len(t, iv, 32)

	link := "https://portal.bitrix24.kz/rest/1/secrettoken/"

	encrypted, err := Encrypt(link, key, iv)
	require.NoError(t, err)
	assert.NotEqual(t, link, encrypted)

	plain, err := Decrypt(encrypted, key, iv)
	require.NoError(t, err)
	assert.Equal(t, link, plain)
}

func TestDecryptRejectsGarbage(t *testing.T) {
	key, iv, err := GenerateKeyIV()
	require.NoError(t, err)

	_, err = Decrypt("not base64 !!!", key, iv)
	assert.Error(t, err)

	// valid base64, wrong block length
	_, err = Decrypt("YWJj", key, iv)
	assert.Error(t, err)

	_, err = Decrypt("", key, iv)
	assert.Error(t, err)
}

func TestWebhookURL(t *testing.T) {
	key, iv, err := GenerateKeyIV()
	require.NoError(t, err)

	link := "https://portal.bitrix24.kz/rest/1/tok/"
	encrypted, err := Encrypt(link, key, iv)
	require.NoError(t, err)

	t.Run("decrypts with full key material", func(t *testing.T) {
		got, err := WebhookURL(encrypted, key, iv)
		require.NoError(t, err)
		assert.Equal(t, link, got)
	})

	t.Run("plain link passes through without keys", func(t *testing.T) {
		got, err := WebhookURL("  "+link+" ", "", "")
		require.NoError(t, err)
		assert.Equal(t, link, got)
	})

	t.Run("empty link", func(t *testing.T) {
		_, err := WebhookURL("   ", key, iv)
		assert.ErrorIs(t, err, ErrMissingLink)
	})

	t.Run("partial key material", func(t *testing.T) {
		_, err := WebhookURL(encrypted, key, "")
		assert.ErrorIs(t, err, ErrMissingKey)
		_, err = WebhookURL(encrypted, "", iv)
		assert.ErrorIs(t, err, ErrMissingKey)
	})
}

func TestWriteEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")

	require.NoError(t, WriteEnvFile(path, "aabb", "ccdd", "ZW5j"))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "CRYPTO_KEY=aabb\nCRYPTO_IV=ccdd\nBX_LINK=ZW5j\n", string(content))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}
