package app

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/specialistvlad/assetpipe/internal/config"
	"github.com/specialistvlad/assetpipe/internal/devserver"
	"github.com/specialistvlad/assetpipe/internal/presets"
	"github.com/specialistvlad/assetpipe/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T, dir, build string) (*App, *SafeBuffer) {
	t.Helper()
	path := filepath.Join(dir, "assetpipe.hcl")
	require.NoError(t, os.WriteFile(path, []byte(build), 0o644))
	return SetupAppTest(t, &Config{ConfigPath: path, Dir: dir})
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestNewApp_EveryPresetBuilds(t *testing.T) {
	for _, name := range presets.Names() {
		t.Run(name, func(t *testing.T) {
			// --- Act ---
			a, _ := SetupAppTest(t, &Config{Preset: name, Dir: t.TempDir()})

			// --- Assert ---
			assert.Equal(t, a.Model().Names(), a.Tasks().Names())
			_, ok := a.Tasks().Get("gulp-sync")
			assert.True(t, ok)
		})
	}
}

func TestNewApp_ConfigurationErrors(t *testing.T) {
	testCases := []struct {
		name    string
		build   string
		errType any
		message string
	}{
		{
			name:    "unknown step",
			build: `task "a" {
  src  = ["x/*"]
  dest = "out"
  step "sharpen" {}
}`,
			message: `unknown step "sharpen"`,
		},
		{
			name: "format mismatch",
			build: `task "a" {
  src  = ["x/*"]
  dest = "out"
  step "minify_css" {}
  step "minify_js" {}
}`,
			message: `step "minify_js" expects js input but step "minify_css" produces css`,
		},
		{
			name:    "bad option",
			build: `task "a" {
  src  = ["x/*"]
  dest = "out"
  step "imagemin" { speed = 1 }
}`,
			message: "unknown option(s): speed",
		},
		{
			name:    "bad reload scope",
			build: `task "a" {
  src    = ["x/*"]
  reload = "sometimes"
}`,
			message: `reload "sometimes"`,
		},
		{
			name: "forward reference",
			build: `group "all" { depends_on = ["a"] }
task "a" { src = ["x/*"] }`,
			errType: &task.UnknownDependencyError{},
		},
		{
			name: "duplicate task",
			build: `task "a" { src = ["x/*"] }
group "a" {}`,
			errType: &task.DuplicateTaskError{},
		},
		{
			name: "watch runs unknown task",
			build: `watch "w" {
  binding {
    pattern = ["x/*"]
    run     = ["nope"]
  }
}`,
			message: `runs unknown task "nope"`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// --- Arrange ---
			dir := t.TempDir()
			path := filepath.Join(dir, "assetpipe.hcl")
			require.NoError(t, os.WriteFile(path, []byte(tc.build), 0o644))
			cfg, err := NewConfig(Config{ConfigPath: path, Dir: dir})
			require.NoError(t, err)

			// --- Act ---
			_, err = NewApp(io.Discard, cfg, nil)

			// --- Assert ---
			require.Error(t, err)
			var cfgErr *config.ConfigurationError
			require.True(t, errors.As(err, &cfgErr), "got %T: %v", err, err)
			if tc.message != "" {
				assert.Contains(t, err.Error(), tc.message)
			}
			switch tc.errType.(type) {
			case *task.UnknownDependencyError:
				var target *task.UnknownDependencyError
				assert.True(t, errors.As(err, &target))
			case *task.DuplicateTaskError:
				var target *task.DuplicateTaskError
				assert.True(t, errors.As(err, &target))
			}
		})
	}
}

func TestNewConfig_Validation(t *testing.T) {
	_, err := NewConfig(Config{LogFormat: "xml", LogLevel: "loud", Port: 70000, Workers: -1})
	require.Error(t, err)
	assert.Equal(t, "invalid app configuration:\n"+
		"- log format \"xml\" is not one of text, json\n"+
		"- log level \"loud\" is not one of debug, info, warn, error\n"+
		"- port 70000 out of range\n"+
		"- workers must not be negative, got -1", err.Error())

	cfg, err := NewConfig(Config{})
	require.NoError(t, err)
	assert.Equal(t, ".", cfg.Dir)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestApp_StyleTaskEndToEnd(t *testing.T) {
	// --- Arrange ---
	dir := t.TempDir()
	WriteProject(t, dir, map[string]string{
		"src/style/_colors.scss": "$accent: #ff0000;\n",
		"src/style/main.scss": `@import "colors";
.nav {
  a {
    color: $accent;
    user-select: none;
  }
}
`,
	})
	a, _ := SetupAppTest(t, &Config{Preset: "v3", Dir: dir})

	// --- Act ---
	err := a.Run(context.Background(), "sass")

	// --- Assert ---
	require.NoError(t, err)
	css := readFile(t, filepath.Join(dir, "build", "css", "main.css"))
	assert.Contains(t, css, ".nav a{")
	assert.Contains(t, css, "-webkit-user-select:none")
	assert.Contains(t, css, "user-select:none")
	assert.Contains(t, css, "/*# sourceMappingURL=main.css.map */")
	assert.NotContains(t, css, "$accent")

	sourceMap := readFile(t, filepath.Join(dir, "build", "css", "main.css.map"))
	assert.Contains(t, sourceMap, `"version":3`)
	assert.Contains(t, sourceMap, `"sources":["main.scss","_colors.scss"]`)
	// The minified rule maps to ".nav a", opened on line 3 of main.scss.
	assert.Contains(t, sourceMap, `"mappings":"AAEA"`)
	assert.NoFileExists(t, filepath.Join(dir, "build", "css", "_colors.css"))
}

func TestApp_ImagesTaskWritesJPEGAndWebP(t *testing.T) {
	// --- Arrange ---
	dir := t.TempDir()
	img := image.NewNRGBA(image.Rect(0, 0, 320, 240))
	for y := 0; y < 240; y++ {
		for x := 0; x < 320; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 255 / 320), G: uint8(y * 255 / 240), B: 96, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 100}))
	WriteProject(t, dir, map[string]string{"src/img/photo.jpg": buf.String()})
	a, _ := SetupAppTest(t, &Config{Preset: "v3", Dir: dir})

	// --- Act ---
	err := a.Run(context.Background(), "images")

	// --- Assert ---
	require.NoError(t, err)
	jpg, err := os.Stat(filepath.Join(dir, "build", "img", "photo.jpg"))
	require.NoError(t, err)
	webp, err := os.Stat(filepath.Join(dir, "build", "img", "photo.webp"))
	require.NoError(t, err)
	assert.Less(t, jpg.Size(), int64(buf.Len()))
	assert.Less(t, webp.Size(), jpg.Size())
}

func TestApp_SpriteTask(t *testing.T) {
	// --- Arrange ---
	dir := t.TempDir()
	WriteProject(t, dir, map[string]string{
		"src/img/icons/home.svg": `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 24 24"><path d="M0 0h24v24H0z"/></svg>`,
		"src/img/cart.svg":       `<svg xmlns="http://www.w3.org/2000/svg" width="16" height="16"><circle cx="8" cy="8" r="4"/></svg>`,
	})
	a, _ := SetupAppTest(t, &Config{Preset: "v3", Dir: dir})

	// --- Act ---
	err := a.Run(context.Background(), "svg-sprite")

	// --- Assert ---
	require.NoError(t, err)
	sprite := readFile(t, filepath.Join(dir, "build", "sprite.svg"))
	assert.Contains(t, sprite, `<symbol id="home"`)
	assert.Contains(t, sprite, `<symbol id="cart"`)
	assert.Equal(t, 2, strings.Count(sprite, "<symbol "))
}

func TestApp_SpriteTaskSkipsBrokenIcon(t *testing.T) {
	// --- Arrange ---
	dir := t.TempDir()
	WriteProject(t, dir, map[string]string{
		"src/img/home.svg":   `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 24 24"><path d="M0 0h24v24H0z"/></svg>`,
		"src/img/cart.svg":   `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 16 16"><circle cx="8" cy="8" r="4"/></svg>`,
		"src/img/broken.svg": `<g xmlns="http://www.w3.org/2000/svg"><circle cx="1" cy="1" r="1"/></g>`,
	})
	a, logs := SetupAppTest(t, &Config{Preset: "v3", Dir: dir})

	// --- Act ---
	err := a.Run(context.Background(), "svg-sprite")

	// --- Assert ---
	require.NoError(t, err)
	sprite := readFile(t, filepath.Join(dir, "build", "sprite.svg"))
	assert.Contains(t, sprite, `<symbol id="home"`)
	assert.Contains(t, sprite, `<symbol id="cart"`)
	assert.Equal(t, 2, strings.Count(sprite, "<symbol "))
	assert.Contains(t, logs.String(), "broken.svg")
	assert.Contains(t, logs.String(), "root element is not <svg>")
}

func TestApp_OneShotFailureIsReported(t *testing.T) {
	// --- Arrange ---
	dir := t.TempDir()
	a, logs := newTestApp(t, dir, `
task "copy" {
  src  = ["missing/*.txt"]
  dest = "out"
}

task "after" {
  src        = ["other/*.txt"]
  dest       = "out"
  depends_on = ["copy"]
}
`)

	// --- Act ---
	err := a.Run(context.Background(), "after")

	// --- Assert ---
	var runErr *task.RunError
	require.True(t, errors.As(err, &runErr), "got %v", err)
	assert.Contains(t, runErr.Failed, "copy")
	assert.Contains(t, logs.String(), "Skipping dependent task due to upstream failure.")
}

func TestApp_ServeBlocksUntilCancelled(t *testing.T) {
	// --- Arrange ---
	dir := t.TempDir()
	WriteProject(t, dir, map[string]string{"src/index.html": "<html><body>hi</body></html>"})
	a, _ := newTestApp(t, dir, `
default = "dev"

task "markup" {
  src  = ["src/*.html"]
  dest = "public"
}

serve "server" {
  root = "public"
  host = "127.0.0.1"
  port = 0
}

group "dev" {
  depends_on = ["markup", "server"]
}
`)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)

	// --- Act ---
	go func() { done <- a.Run(ctx, "") }()

	// --- Assert ---
	require.Eventually(t, func() bool { return len(a.URLs()) == 1 }, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(dir, "public", "index.html"))
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)
	url := a.URLs()[0]

	resp, err := http.Get(url + "/index.html")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "/__assetpipe/client.js")

	select {
	case err := <-done:
		t.Fatalf("Run returned before cancellation: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	_, err = http.Get(url + devserver.HealthPath)
	assert.Error(t, err)
}

func TestApp_BindFailureIsFatal(t *testing.T) {
	// --- Arrange ---
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	dir := t.TempDir()
	a, _ := newTestApp(t, dir, `
serve "server" {
  host = "127.0.0.1"
  port = `+strconv.Itoa(port)+`
}
`)

	// --- Act ---
	err = a.Run(context.Background(), "server")

	// --- Assert ---
	var srvErr *devserver.ServerError
	require.True(t, errors.As(err, &srvErr), "got %v", err)
}

func TestApp_WatchRebuildsOnChange(t *testing.T) {
	// --- Arrange ---
	dir := t.TempDir()
	WriteProject(t, dir, map[string]string{"src/a.txt": "one"})
	a, logs := newTestApp(t, dir, `
task "copy" {
  src  = ["src/*.txt"]
  dest = "build"
}

watch "watch" {
  debounce = "20ms"

  binding {
    pattern = ["src/*.txt"]
    run     = ["copy"]
  }
}
`)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx, "watch") }()
	require.Eventually(t, func() bool {
		return strings.Contains(logs.String(), "Watching for changes.")
	}, 5*time.Second, 10*time.Millisecond)

	// --- Act ---
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "b.txt"), []byte("two"), 0o644))

	// --- Assert ---
	target := filepath.Join(dir, "build", "b.txt")
	require.Eventually(t, func() bool {
		data, err := os.ReadFile(target)
		return err == nil && string(data) == "two"
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestApp_List(t *testing.T) {
	// --- Arrange ---
	a, _ := SetupAppTest(t, &Config{Preset: "v1", Dir: t.TempDir()})
	var out bytes.Buffer

	// --- Act ---
	require.NoError(t, a.List(&out))

	// --- Assert ---
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 8)
	assert.True(t, strings.HasPrefix(lines[0], "TASK"))
	assert.Regexp(t, `^default \(default\)\s+group\s+watch$`, lines[6])
	assert.Regexp(t, `^gulp-sync\s+group\s+sass, browser-sync, watch$`, lines[7])
	assert.Regexp(t, `^sass\s+pipeline\s+-$`, lines[1])
}

func TestApp_UnknownTask(t *testing.T) {
	a, _ := SetupAppTest(t, &Config{Preset: "v1", Dir: t.TempDir()})

	err := a.Run(context.Background(), "deploy")

	var unknown *task.UnknownTaskError
	assert.True(t, errors.As(err, &unknown))
}
