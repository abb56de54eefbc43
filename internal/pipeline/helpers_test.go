package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeStep is a configurable Step for tests.
type fakeStep struct {
	name    string
	in, out Format
	apply   func(f *File) ([]*File, error)
	calls   atomic.Int32
}

func (s *fakeStep) Name() string              { return s.name }
func (s *fakeStep) Formats() (Format, Format) { return s.in, s.out }
func (s *fakeStep) Apply(_ context.Context, f *File) ([]*File, error) {
	s.calls.Add(1)
	if s.apply == nil {
		return []*File{f}, nil
	}
	return s.apply(f)
}

// upper upper-cases contents and renames to .out, failing on files
// containing "bad".
func upper() *fakeStep {
	return &fakeStep{name: "upper", in: FormatAny, out: FormatAny, apply: func(f *File) ([]*File, error) {
		if bytes.Contains(f.Contents, []byte("bad")) {
			return nil, fmt.Errorf("cannot process %s", f.Path)
		}
		c := f.WithExt(".out")
		c.Contents = bytes.ToUpper(c.Contents)
		return []*File{c}, nil
	}}
}

type concatBundler struct{}

func (concatBundler) Name() string   { return "concat" }
func (concatBundler) Format() Format { return FormatAny }
// Bundle rejects files whose contents are "bad".
func (concatBundler) Bundle(_ context.Context, files []*File) (*File, []*TransformError, error) {
	var (
		buf      bytes.Buffer
		rejected []*TransformError
	)
	for _, f := range files {
		if string(f.Contents) == "bad" {
			rejected = append(rejected, &TransformError{File: f.Source, Step: "concat", Err: errors.New("bad input")})
			continue
		}
		buf.Write(f.Contents)
		buf.WriteByte('\n')
	}
	if buf.Len() == 0 {
		return nil, rejected, nil
	}
	return &File{Path: "all.txt", Source: "bundle", Contents: buf.Bytes()}, rejected, nil
}

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, body := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
}

func newRunner(t *testing.T, root string) *Runner {
	t.Helper()
	r, err := NewRunner(Options{Root: root, ServeRoot: "build", Workers: 4})
	require.NoError(t, err)
	return r
}
