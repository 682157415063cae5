package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/devrev/securegpx/internal/config"
	"github.com/devrev/securegpx/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// quietConfig writes a config that keeps test output clean
func quietConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: error\nchain:\n  secret_key: cli\n"), 0644))
	return path
}

// writeTrack saves a single-segment track with one point per latitude
func writeTrack(t *testing.T, cfgPath, path string, lats ...float64) {
	t.Helper()
	cfg, err := config.LoadConfig(cfgPath)
	require.NoError(t, err)
	a, err := newApp(cfg, "fixture")
	require.NoError(t, err)
	defer a.close()

	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, lat := range lats {
		require.NoError(t, a.handler.AddTrackPoint("walk", "", lat, 8, 5, nil, start.Add(time.Duration(i)*time.Minute)))
	}
	require.NoError(t, a.handler.ProcessWaypoint("home", 47, 8, 5, nil))
	require.NoError(t, a.save(context.Background(), path))
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestValidateCmd(t *testing.T) {
	dir := t.TempDir()
	cfg := quietConfig(t, dir)
	path := filepath.Join(dir, "walk.gpx")
	writeTrack(t, cfg, path, 47.1, 47.2, 47.3)

	out, err := run(t, "--config", cfg, "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "valid (4 points)")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte(strings.Replace(string(data), `lat="47.3"`, `lat="47.4"`, 1)), 0644))

	out, err = run(t, "--config", cfg, "validate", path)
	require.Error(t, err)
	assert.Contains(t, out, "invalid (4 points)")
	assert.Equal(t, errors.ErrCodeChainBroken, errors.GetCode(err))
	assert.Equal(t, 15, exitCode(err), "data loss")

	_, err = run(t, "--config", cfg, "validate", filepath.Join(dir, "missing.gpx"))
	require.Error(t, err)
	assert.Equal(t, 1, exitCode(err))
}

func TestValidateCmd_WrongSecret(t *testing.T) {
	dir := t.TempDir()
	cfg := quietConfig(t, dir)
	path := filepath.Join(dir, "walk.gpx")
	writeTrack(t, cfg, path, 47.1, 47.2)

	other := filepath.Join(dir, "other.yaml")
	require.NoError(t, os.WriteFile(other, []byte("logging:\n  level: error\nchain:\n  secret_key: other\n"), 0644))
	t.Setenv(configEnv, other)

	_, err := run(t, "validate", path)
	assert.Equal(t, errors.ErrCodeChainBroken, errors.GetCode(err))
}

func TestRepairCmd(t *testing.T) {
	dir := t.TempDir()
	cfg := quietConfig(t, dir)
	path := filepath.Join(dir, "walk.gpx")
	writeTrack(t, cfg, path, 47.1, 47.2, 47.3)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte(strings.Replace(string(data), `lat="47.3"`, `lat="47.4"`, 1)), 0644))

	repaired := filepath.Join(dir, "repaired.gpx")
	out, err := run(t, "--config", cfg, "repair", path, "-o", repaired)
	require.NoError(t, err)
	assert.Contains(t, out, "repaired 4 points")

	_, err = run(t, "--config", cfg, "validate", path)
	assert.Error(t, err, "input is left alone with -o")
	_, err = run(t, "--config", cfg, "validate", repaired)
	assert.NoError(t, err)
}

func TestInfoCmd(t *testing.T) {
	dir := t.TempDir()
	cfg := quietConfig(t, dir)
	path := filepath.Join(dir, "walk.gpx")
	writeTrack(t, cfg, path, 47.1, 47.2, 47.3)

	out, err := run(t, "--config", cfg, "info", path)
	require.NoError(t, err)
	assert.Contains(t, out, "points: 4")
	assert.Contains(t, out, "tracks: 1")
	assert.Contains(t, out, "valid: true")

	lines := strings.Split(strings.TrimSpace(out), "\n")
	last := lines[len(lines)-2:]
	assert.True(t, strings.HasPrefix(last[0], "segment"), "the segment starts first: %q", last[0])
	assert.Contains(t, last[0], "walk")
	assert.True(t, strings.HasPrefix(last[1], "point"), "the waypoint was recorded last: %q", last[1])
	assert.Contains(t, last[1], "home")
}

func TestMoveCmd(t *testing.T) {
	dir := t.TempDir()
	cfg := quietConfig(t, dir)
	path := filepath.Join(dir, "walk.gpx")
	writeTrack(t, cfg, path, 47.1, 47.2, 47.3, 47.4, 47.5, 47.6)

	out, err := run(t, "--config", cfg, "move", path, "--track", "walk", "--index", "3", "--to", "back")
	require.NoError(t, err)
	assert.Contains(t, out, "walk: 3 points, back: 3 points")

	_, err = run(t, "--config", cfg, "validate", path)
	assert.NoError(t, err, "moving points keeps the chain")

	_, err = run(t, "--config", cfg, "move", path, "--track", "walk", "--index", "9", "--to", "back")
	assert.Equal(t, errors.ErrCodePointNotFound, errors.GetCode(err))

	_, err = run(t, "--config", cfg, "move", path, "--track", "nope", "--to", "back")
	assert.Equal(t, errors.ErrCodeTrackNotFound, errors.GetCode(err))
}
