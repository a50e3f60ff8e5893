package secrets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveEnvRef(t *testing.T) {
	t.Setenv("POWEFF_TEST_PASSWORD", "s3cret")

	r := NewResolver()
	got, err := r.Resolve("env:POWEFF_TEST_PASSWORD")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", got)

	_, err = r.Resolve("env:POWEFF_TEST_MISSING")
	assert.Error(t, err)
}

func TestResolveFileRef(t *testing.T) {
	path := filepath.Join(t.TempDir(), "password")
	require.NoError(t, os.WriteFile(path, []byte("hunter2\ntrailing junk\n"), 0o600))

	r := NewResolver()
	got, err := r.Resolve("file:" + path)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", got)

	_, err = r.Resolve("file:" + path + ".missing")
	assert.Error(t, err)
}

func TestResolveLiteral(t *testing.T) {
	r := NewResolver()

	got, err := r.Resolve("plaintext-password")
	require.NoError(t, err)
	assert.Equal(t, "plaintext-password", got)

	got, err = r.Resolve("")
	require.NoError(t, err)
	assert.Empty(t, got)
}
