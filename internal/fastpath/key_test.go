package fastpath

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func TestComputeSignatureKeyDeterministic(t *testing.T) {
	path := writeTemp(t, "a.bin", []byte("some image bytes"))

	k1, err := ComputeSignatureKey(path, nil)
	require.NoError(t, err)
	k2, err := ComputeSignatureKey(path, nil)
	require.NoError(t, err)

	assert.Equal(t, k1.ContentHash, k2.ContentHash)
	assert.Equal(t, k1.CombinedKey, k2.CombinedKey)
	assert.Equal(t, int64(16), k1.FileSize)
}

func TestComputeSignatureKeyContentSensitive(t *testing.T) {
	a, err := ComputeSignatureKey(writeTemp(t, "a.bin", []byte("content A")), nil)
	require.NoError(t, err)
	b, err := ComputeSignatureKey(writeTemp(t, "b.bin", []byte("content B")), nil)
	require.NoError(t, err)
	assert.NotEqual(t, a.ContentHash, b.ContentHash)
}

func TestComputeSignatureKeyLengthSensitive(t *testing.T) {
	// Same 64 KiB prefix, different lengths: the mixed-in file length must
	// split the hashes.
	prefix := make([]byte, contentHashWindow)
	long := append(append([]byte{}, prefix...), []byte("tail")...)

	a, err := ComputeSignatureKey(writeTemp(t, "short.bin", prefix), nil)
	require.NoError(t, err)
	b, err := ComputeSignatureKey(writeTemp(t, "long.bin", long), nil)
	require.NoError(t, err)
	assert.NotEqual(t, a.ContentHash, b.ContentHash)
}

func TestComputeSignatureKeyMissingFile(t *testing.T) {
	_, err := ComputeSignatureKey(filepath.Join(t.TempDir(), "absent.png"), nil)
	assert.Error(t, err)
}
