package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/specialistvlad/assetpipe/internal/cli"
	"github.com/specialistvlad/assetpipe/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_ConfigurationErrorIsReturned(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// A build file with a syntax error must fail before anything runs.
	invalidHCL := `
		task "sass" {
			src = ["src/*.scss"]
		// Missing closing brace here
	`
	tempDir := t.TempDir()
	filePath := filepath.Join(tempDir, "main.hcl")
	require.NoError(t, os.WriteFile(filePath, []byte(invalidHCL), 0600), "failed to set up test file")

	args := []string{"-config", filePath, "-dir", tempDir}
	out := &bytes.Buffer{}

	// --- Act ---
	runErr := run(context.Background(), out, args)

	// --- Assert ---
	require.Error(t, runErr)
	var cfgErr *config.ConfigurationError
	require.True(t, errors.As(runErr, &cfgErr), "got %T: %v", runErr, runErr)
	assert.Equal(t, filePath, cfgErr.Subject)
}

func TestRun_ShouldExit(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	args := []string{"-h"}
	out := &bytes.Buffer{}

	// --- Act ---
	err := run(context.Background(), out, args)

	// --- Assert ---
	require.NoError(t, err, "run() should return a nil error when shouldExit is true")
	require.Contains(t, out.String(), "Usage:", "Expected help text to be printed to the output buffer")
}

func TestRun_ParseError(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	args := []string{"--this-is-not-a-valid-flag"}
	out := &bytes.Buffer{}

	// --- Act ---
	err := run(context.Background(), out, args)

	// --- Assert ---
	var exitErr *cli.ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 2, exitErr.Code)
	require.Contains(t, err.Error(), "flag provided but not defined: -this-is-not-a-valid-flag")
}

func TestRun_List(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	out := &bytes.Buffer{}

	// --- Act ---
	err := run(context.Background(), out, []string{"-preset", "v1", "-dir", t.TempDir(), "-log-level", "error", "-list"})

	// --- Assert ---
	require.NoError(t, err)
	assert.Contains(t, out.String(), "gulp-sync")
	assert.Contains(t, out.String(), "browser-sync")
}

func TestRun_BuildOnce(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src", "js"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "js", "app.js"), []byte("function add(first, second) {\n  return first + second;\n}\n"), 0o644))
	out := &bytes.Buffer{}

	// --- Act ---
	err := run(context.Background(), out, []string{"-dir", dir, "-log-level", "error", "js"})

	// --- Assert ---
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(dir, "build", "js", "app.js"))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "\n  return")
}
