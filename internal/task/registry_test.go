package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func names(tasks []*Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.Name
	}
	return out
}

// registerTree mirrors the canonical build: gulp-sync pulls in every pipeline,
// the server and the watcher.
func registerTree(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	for _, name := range []string{"sass", "html", "js", "fonts", "images", "svg-sprite", "browser-sync", "watch"} {
		require.NoError(t, r.Register(name, nil, nil))
	}
	require.NoError(t, r.Register("default", []string{"browser-sync", "watch"}, nil))
	require.NoError(t, r.Register("gulp-sync", []string{"sass", "html", "js", "fonts", "images", "svg-sprite", "browser-sync", "watch"}, nil))
	return r
}

func TestRegister(t *testing.T) {
	t.Run("duplicate name", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Register("sass", nil, nil))

		err := r.Register("sass", nil, nil)

		var dupErr *DuplicateTaskError
		require.ErrorAs(t, err, &dupErr)
		assert.Equal(t, "sass", dupErr.Name)
	})

	t.Run("dependency never registered", func(t *testing.T) {
		r := NewRegistry()

		err := r.Register("gulp-sync", []string{"sass"}, nil)

		var depErr *UnknownDependencyError
		require.ErrorAs(t, err, &depErr)
		assert.Equal(t, "gulp-sync", depErr.Task)
		assert.Equal(t, "sass", depErr.Dependency)
		_, ok := r.Get("gulp-sync")
		assert.False(t, ok, "a rejected task must not be registered")
	})

	t.Run("forward reference is rejected", func(t *testing.T) {
		r := NewRegistry()
		require.Error(t, r.Register("default", []string{"watch"}, nil))
		require.NoError(t, r.Register("watch", nil, nil))
		require.NoError(t, r.Register("default", []string{"watch"}, nil))
	})

	t.Run("repeated dependency", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Register("sass", nil, nil))
		assert.ErrorContains(t, r.Register("all", []string{"sass", "sass"}, nil), "more than once")
	})

	t.Run("empty name", func(t *testing.T) {
		assert.Error(t, NewRegistry().Register("", nil, nil))
	})
}

func TestResolve(t *testing.T) {
	t.Run("dependencies first, each once", func(t *testing.T) {
		r := registerTree(t)

		tasks, err := r.Resolve("gulp-sync")
		require.NoError(t, err)

		order := names(tasks)
		assert.Equal(t, []string{"sass", "html", "js", "fonts", "images", "svg-sprite", "browser-sync", "watch", "gulp-sync"}, order)
		assert.Equal(t, "gulp-sync", order[len(order)-1])
	})

	t.Run("shared dependencies appear once", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Register("a", nil, nil))
		require.NoError(t, r.Register("b", []string{"a"}, nil))
		require.NoError(t, r.Register("c", []string{"a"}, nil))
		require.NoError(t, r.Register("d", []string{"b", "c"}, nil))

		tasks, err := r.Resolve("d")
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c", "d"}, names(tasks))
	})

	t.Run("unknown task", func(t *testing.T) {
		_, err := NewRegistry().Resolve("nope")
		var unknown *UnknownTaskError
		assert.ErrorAs(t, err, &unknown)
	})

	t.Run("cycle injected behind the registry is detected", func(t *testing.T) {
		r := registerTree(t)
		require.NoError(t, r.graph.AddEdge("gulp-sync", "sass"))

		_, err := r.Resolve("gulp-sync")

		var cycleErr *CycleError
		require.ErrorAs(t, err, &cycleErr)
		assert.Equal(t, "gulp-sync", cycleErr.Task)
	})

	t.Run("names keep registration order", func(t *testing.T) {
		r := registerTree(t)
		assert.Equal(t, "sass", r.Names()[0])
		assert.Equal(t, "gulp-sync", r.Names()[len(r.Names())-1])
	})
}
