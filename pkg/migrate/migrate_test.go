package migrate

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceFSPrefersEmbeddedSet(t *testing.T) {
	fsys, err := sourceFS(DefaultDir)
	require.NoError(t, err)
	names, err := fs.Glob(fsys, "*.sql")
	require.NoError(t, err)
	assert.Contains(t, names, "20260301090000_create_enum_types.sql")

	dir := t.TempDir()
	fsys, err = sourceFS(dir)
	require.NoError(t, err)
	names, err = fs.Glob(fsys, "*.sql")
	require.NoError(t, err)
	assert.Empty(t, names)

	_, err = sourceFS("")
	assert.Error(t, err)
}

func TestParseVersion(t *testing.T) {
	v, err := ParseVersion("20260301090100")
	require.NoError(t, err)
	assert.Equal(t, int64(20260301090100), v)

	for _, raw := range []string{"", "latest", "-3"} {
		_, err := ParseVersion(raw)
		assert.Error(t, err, raw)
	}
}

func TestNewRequiresDB(t *testing.T) {
	_, err := New(nil, DefaultDir, nil)
	assert.Error(t, err)
}
