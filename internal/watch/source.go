package watch

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Event is a change to a path, relative to the watched root and slash
// separated.
type Event struct {
	Path string
	Op   fsnotify.Op
}

// Source delivers file system events.
type Source interface {
	Events() <-chan Event
	Errors() <-chan error
	Close() error
}

// ErrClosed is returned when adding to a closed source.
var ErrClosed = errors.New("watch source is closed")

// FSSource is a recursive fsnotify Source. Directories created under a
// watched directory are watched as well.
type FSSource struct {
	root    string
	watcher *fsnotify.Watcher
	events  chan Event
	errors  chan error

	mu      sync.Mutex
	closed  bool
	closeCh chan struct{}
	wg      sync.WaitGroup
}

// NewFSSource creates a source reporting paths relative to root.
func NewFSSource(root string) (*FSSource, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	s := &FSSource{
		root:    root,
		watcher: w,
		events:  make(chan Event, 256),
		errors:  make(chan error, 16),
		closeCh: make(chan struct{}),
	}
	s.wg.Add(1)
	go s.loop()
	return s, nil
}

// AddRecursive watches dir, relative to the root, and every directory below it.
func (s *FSSource) AddRecursive(dir string) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}

	start := filepath.Join(s.root, filepath.FromSlash(dir))
	info, err := os.Stat(start)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return s.watcher.Add(filepath.Dir(start))
	}
	return filepath.WalkDir(start, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != start && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return s.watcher.Add(p)
	})
}

func (s *FSSource) Events() <-chan Event { return s.events }

func (s *FSSource) Errors() <-chan error { return s.errors }

// Close stops the source and closes its channels.
func (s *FSSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.closeCh)
	s.mu.Unlock()

	err := s.watcher.Close()
	s.wg.Wait()
	close(s.events)
	close(s.errors)
	return err
}

func (s *FSSource) loop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.closeCh:
			return
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			s.handle(ev)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			select {
			case s.errors <- err:
			default:
			}
		}
	}
}

func (s *FSSource) handle(ev fsnotify.Event) {
	if ev.Op == fsnotify.Chmod {
		return
	}
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			rel, _ := filepath.Rel(s.root, ev.Name)
			_ = s.AddRecursive(rel)
		}
	}

	rel, err := filepath.Rel(s.root, ev.Name)
	if err != nil {
		rel = ev.Name
	}
	select {
	case s.events <- Event{Path: filepath.ToSlash(rel), Op: ev.Op}:
	case <-s.closeCh:
	}
}
