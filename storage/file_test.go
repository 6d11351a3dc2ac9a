package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStorePlain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "credentials.json")
	fs, err := OpenFileStore(path, "")
	require.NoError(t, err)
	exerciseKV(t, fs)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "darkMode")
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	fs, err := OpenFileStore(path, "")
	require.NoError(t, err)
	require.NoError(t, fs.SetMany(context.Background(), map[string]string{"accessToken": "a", "refreshToken": "r"}))
	require.NoError(t, fs.Close())

	reopened, err := OpenFileStore(path, "")
	require.NoError(t, err)
	v, ok, err := reopened.Get(context.Background(), "refreshToken")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "r", v)
}

func TestFileStoreSealed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.bin")
	fs, err := OpenFileStore(path, "correct horse")
	require.NoError(t, err)
	require.NoError(t, fs.SetMany(context.Background(), map[string]string{"refreshToken": "very-secret-token"}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), "SCV1"))
	assert.NotContains(t, string(raw), "very-secret-token")

	reopened, err := OpenFileStore(path, "correct horse")
	require.NoError(t, err)
	v, _, _ := reopened.Get(context.Background(), "refreshToken")
	assert.Equal(t, "very-secret-token", v)

	_, err = OpenFileStore(path, "wrong")
	assert.ErrorIs(t, err, ErrWrongPassphrase)
	_, err = OpenFileStore(path, "")
	assert.ErrorIs(t, err, ErrWrongPassphrase)
}

func TestFileStoreRequiresPath(t *testing.T) {
	_, err := OpenFileStore("", "")
	assert.Error(t, err)
}
