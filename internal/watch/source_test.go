package watch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// waitFor reads events until one for path arrives.
func waitFor(t *testing.T, s *FSSource, path string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-s.Events():
			if ev.Path == path {
				return
			}
		case <-deadline:
			t.Fatalf("no event for %s", path)
		}
	}
}

func TestFSSource_ReportsRelativePaths(t *testing.T) {
	// --- Arrange ---
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src", "style"), 0o755))
	s, err := NewFSSource(root)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.AddRecursive("src"))

	// --- Act ---
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "style", "main.scss"), []byte("a{}"), 0o644))

	// --- Assert ---
	waitFor(t, s, "src/style/main.scss")
}

func TestFSSource_WatchesCreatedDirectories(t *testing.T) {
	root := t.TempDir()
	s, err := NewFSSource(root)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.AddRecursive("."))

	require.NoError(t, os.Mkdir(filepath.Join(root, "icons"), 0o755))
	waitFor(t, s, "icons")
	// Give the source a moment to register the new directory.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(root, "icons", "a.svg"), []byte("<svg/>"), 0o644))

	waitFor(t, s, "icons/a.svg")
}

func TestFSSource_Close(t *testing.T) {
	s, err := NewFSSource(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, ok := <-s.Events()
	assert.False(t, ok)
	assert.ErrorIs(t, s.AddRecursive("."), ErrClosed)
}

func TestFSSource_MissingDirectory(t *testing.T) {
	s, err := NewFSSource(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	assert.Error(t, s.AddRecursive("nope"))
}
