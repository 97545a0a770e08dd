package infra

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileKeyProvider(t *testing.T) {
	tests := []struct {
		name   string
		testFn func(t *testing.T, provider *FileKeyProvider)
	}{
		{
			name: "KeyExists returns false when no key file",
			testFn: func(t *testing.T, provider *FileKeyProvider) {
				assert.False(t, provider.KeyExists())
			},
		},
		{
			name: "StoreKey writes hex with owner-only permissions",
			testFn: func(t *testing.T, provider *FileKeyProvider) {
				key, err := GenerateKey()
				require.NoError(t, err)
				require.NoError(t, provider.StoreKey(key))

				info, err := os.Stat(provider.keyPath)
				require.NoError(t, err)
				assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

				raw, err := os.ReadFile(provider.keyPath)
				require.NoError(t, err)
				assert.Equal(t, hex.EncodeToString(key)+"\n", string(raw))
			},
		},
		{
			name: "GetKey returns stored key",
			testFn: func(t *testing.T, provider *FileKeyProvider) {
				key, err := GenerateKey()
				require.NoError(t, err)
				require.NoError(t, provider.StoreKey(key))

				got, err := provider.GetKey()
				require.NoError(t, err)
				assert.Equal(t, key, got)
			},
		},
		{
			name: "GetKey returns error when no key file",
			testFn: func(t *testing.T, provider *FileKeyProvider) {
				_, err := provider.GetKey()
				assert.Error(t, err)
			},
		},
		{
			name: "GetKey rejects corrupt file",
			testFn: func(t *testing.T, provider *FileKeyProvider) {
				require.NoError(t, os.WriteFile(provider.keyPath, []byte("not-hex"), 0600))
				_, err := provider.GetKey()
				assert.ErrorContains(t, err, "decode")
			},
		},
		{
			name: "StoreKey rejects wrong key size",
			testFn: func(t *testing.T, provider *FileKeyProvider) {
				err := provider.StoreKey([]byte("tooshort"))
				assert.ErrorContains(t, err, "invalid key size")
			},
		},
		{
			name: "StoreKey creates directory if missing",
			testFn: func(t *testing.T, provider *FileKeyProvider) {
				provider.keyPath = filepath.Join(filepath.Dir(provider.keyPath), "sub", "dir", keyFileName)

				key, err := GenerateKey()
				require.NoError(t, err)
				require.NoError(t, provider.StoreKey(key))
				assert.True(t, provider.KeyExists())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.testFn(t, NewFileKeyProvider(t.TempDir()))
		})
	}
}

func TestEnvKeyProvider(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	t.Setenv("TEST_TIMEBANK_KEY", "")
	p := NewEnvKeyProvider("TEST_TIMEBANK_KEY")
	assert.False(t, p.KeyExists())
	_, err = p.GetKey()
	assert.Error(t, err)

	t.Setenv("TEST_TIMEBANK_KEY", hex.EncodeToString(key))
	assert.True(t, p.KeyExists())
	got, err := p.GetKey()
	require.NoError(t, err)
	assert.Equal(t, key, got)

	assert.ErrorIs(t, p.StoreKey(key), ErrReadOnlyKey)
}

func TestResolveKeyProvider(t *testing.T) {
	dir := t.TempDir()

	t.Setenv(KeyEnvVar, "")
	assert.IsType(t, &FileKeyProvider{}, ResolveKeyProvider(dir))

	key, err := GenerateKey()
	require.NoError(t, err)
	t.Setenv(KeyEnvVar, hex.EncodeToString(key))
	assert.IsType(t, &EnvKeyProvider{}, ResolveKeyProvider(dir))
}

func TestGenerateKey(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		key, err := GenerateKey()
		require.NoError(t, err)
		require.Len(t, key, keySize)
		assert.False(t, seen[string(key)], "duplicate key generated")
		seen[string(key)] = true
	}
}

func TestEnsureKey(t *testing.T) {
	t.Run("generates new key when none exists", func(t *testing.T) {
		provider := NewFileKeyProvider(t.TempDir())

		key, err := EnsureKey(provider)
		require.NoError(t, err)
		assert.Len(t, key, keySize)
		assert.True(t, provider.KeyExists())
	})

	t.Run("returns existing key when already present", func(t *testing.T) {
		provider := NewFileKeyProvider(t.TempDir())
		original, err := GenerateKey()
		require.NoError(t, err)
		require.NoError(t, provider.StoreKey(original))

		key, err := EnsureKey(provider)
		require.NoError(t, err)
		assert.Equal(t, original, key)
	})
}
