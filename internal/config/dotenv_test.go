package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSnapshotNoPathsReturnsEmpty(t *testing.T) {
	snap, err := LoadSnapshot()
	require.NoError(t, err)
	assert.Empty(t, snap)
}

func TestLoadSnapshotReadsAndMergesFiles(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.env")
	override := filepath.Join(dir, "override.env")
	require.NoError(t, os.WriteFile(base, []byte("FOO=bar\nBAZ=1\n"), 0o644))
	require.NoError(t, os.WriteFile(override, []byte("BAZ=2\n"), 0o644))

	snap, err := LoadSnapshot(base, override)
	require.NoError(t, err)
	assert.Equal(t, "bar", snap["FOO"])
	assert.Equal(t, "2", snap["BAZ"])
}

func TestLoadSnapshotMissingFileErrors(t *testing.T) {
	_, err := LoadSnapshot(filepath.Join(t.TempDir(), "nope.env"))
	assert.Error(t, err)
}
