package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/kolo-backend/pkg/config"
)

func TestCommandTable(t *testing.T) {
	assert.Equal(t, []string{"create", "down", "status", "up", "validate", "version"}, commandNames())
	assert.True(t, commands["create"].offline)
	assert.True(t, commands["validate"].offline)
	assert.False(t, commands["up"].offline)
}

func TestCreateRequiresName(t *testing.T) {
	err := execute(context.Background(), &config.Config{}, nil, commands["create"], options{dir: t.TempDir()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "-name")
}

func TestCreateWritesMigration(t *testing.T) {
	dir := t.TempDir()
	err := execute(context.Background(), &config.Config{}, nil, commands["create"], options{dir: dir, name: "add member index"})
	require.NoError(t, err)

	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	require.NoError(t, err)
	require.Len(t, files, 1)
	_, err = os.Stat(files[0])
	require.NoError(t, err)
}

func TestOnlineCommandRefusesSQLite(t *testing.T) {
	cfg := &config.Config{FeatureFlags: config.FeatureFlagsConfig{UseSQLite: true}}
	err := execute(context.Background(), cfg, nil, commands["up"], options{dir: t.TempDir()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sqlite")
}
