package crypto

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptSecret(t *testing.T) {
	blob, err := EncryptSecret("  alpaca-secret-value  ", "hunter2")
	require.NoError(t, err)

	var stored encryptedSecretJSON
	require.NoError(t, json.Unmarshal(blob, &stored))
	assert.Equal(t, currentVersion, stored.Version)
	assert.NotContains(t, string(blob), "alpaca-secret-value")

	got, err := DecryptSecret(blob, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "alpaca-secret-value", got)
}

func TestDecryptSecretWrongPassword(t *testing.T) {
	blob, err := EncryptSecret("s3cr3t", "right")
	require.NoError(t, err)

	_, err = DecryptSecret(blob, "wrong")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decryption failed")
}

func TestEncryptSecretRejectsEmpty(t *testing.T) {
	_, err := EncryptSecret("x", "")
	require.Error(t, err)
	_, err = EncryptSecret("   ", "pw")
	require.Error(t, err)
}

func TestDecryptSecretBadVersion(t *testing.T) {
	_, err := DecryptSecret([]byte(`{"version":9}`), "pw")
	require.ErrorContains(t, err, "unsupported version")
}

func TestLoadSecret(t *testing.T) {
	t.Run("raw wins", func(t *testing.T) {
		got, err := LoadSecret(SecretSource{Raw: "plain", EncryptedPath: "/does/not/exist"})
		require.NoError(t, err)
		assert.Equal(t, "plain", got)
	})

	t.Run("encrypted file", func(t *testing.T) {
		blob, err := EncryptSecret("from-file", "pw")
		require.NoError(t, err)
		path := filepath.Join(t.TempDir(), "secret.json")
		require.NoError(t, os.WriteFile(path, blob, 0o600))

		got, err := LoadSecret(SecretSource{EncryptedPath: path, Password: "pw"})
		require.NoError(t, err)
		assert.Equal(t, "from-file", got)
	})

	t.Run("nothing configured", func(t *testing.T) {
		_, err := LoadSecret(SecretSource{})
		require.Error(t, err)
	})
}
