package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtxerr/tonestore/internal/storage/config"
)

func testConfigFile(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	c := config.DefaultConfig()
	c.Path = filepath.Join(dir, "cli.tone")
	c.Geometry = config.GeometryConfig{BandCount: 8, NoteCount: 4}
	c.Export.Dir = filepath.Join(dir, "export")
	c.Export.Compression = "snappy"

	path := filepath.Join(dir, "tonestore.yaml")
	require.NoError(t, c.Save(path))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestInitInfoExport(t *testing.T) {
	cfgPath := testConfigFile(t)

	out, err := run(t, "init", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "created")

	out, err = run(t, "info", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "geometry:   8 bands, 4 notes")
	assert.Contains(t, out, "labelsNotes")

	out, err = run(t, "export", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "peakLocations.parquet")

	_, err = run(t, "init", "--config", cfgPath)
	assert.Error(t, err, "init must not overwrite an existing store")
}

func TestMissingExplicitConfig(t *testing.T) {
	_, err := run(t, "info", "--config", filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestPeaksCommand(t *testing.T) {
	cfgPath := testConfigFile(t)
	points := filepath.Join(t.TempDir(), "points.csv")
	require.NoError(t, os.WriteFile(points, []byte("220,0.1\n224,0.9\n228,0.2\n"), 0644))

	out, err := run(t, "peaks", "--config", cfgPath, "--file", points)
	require.NoError(t, err)
	assert.Contains(t, out, "224")
}
