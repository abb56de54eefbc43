package task

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// executionRecord holds the start and end times of a single action.
type executionRecord struct {
	Start time.Time
	End   time.Time
}

type recorder struct {
	mu      sync.Mutex
	records map[string]executionRecord
}

func newRecorder() *recorder {
	return &recorder{records: make(map[string]executionRecord)}
}

func (r *recorder) sleeper(name string, d time.Duration) Action {
	return func(ctx context.Context) error {
		start := time.Now()
		time.Sleep(d)
		r.mu.Lock()
		r.records[name] = executionRecord{Start: start, End: time.Now()}
		r.mu.Unlock()
		return nil
	}
}

func (r *recorder) get(name string) executionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.records[name]
}

func TestExecutor_DependenciesCompleteBeforeDependent(t *testing.T) {
	// --- Arrange ---
	rec := newRecorder()
	r := NewRegistry()
	require.NoError(t, r.Register("sass", nil, rec.sleeper("sass", 50*time.Millisecond)))
	require.NoError(t, r.Register("js", nil, rec.sleeper("js", 50*time.Millisecond)))
	require.NoError(t, r.Register("serve", []string{"sass", "js"}, rec.sleeper("serve", time.Millisecond)))

	// --- Act ---
	report, err := NewExecutor(r, 4).Run(context.Background(), "serve")

	// --- Assert ---
	require.NoError(t, err)
	require.NoError(t, report.Err())
	serve := rec.get("serve")
	assert.False(t, serve.Start.Before(rec.get("sass").End), "serve started before sass finished")
	assert.False(t, serve.Start.Before(rec.get("js").End), "serve started before js finished")
	for _, name := range []string{"sass", "js", "serve"} {
		assert.Equal(t, Done, report.Outcomes[name].Status, name)
	}
}

func TestExecutor_IndependentTasksRunConcurrently(t *testing.T) {
	// --- Arrange ---
	rec := newRecorder()
	r := NewRegistry()
	require.NoError(t, r.Register("a", nil, rec.sleeper("a", 100*time.Millisecond)))
	require.NoError(t, r.Register("b", nil, rec.sleeper("b", 100*time.Millisecond)))
	require.NoError(t, r.Register("all", []string{"a", "b"}, nil))

	// --- Act ---
	_, err := NewExecutor(r, 2).Run(context.Background(), "all")

	// --- Assert ---
	require.NoError(t, err)
	a, b := rec.get("a"), rec.get("b")
	assert.True(t, a.Start.Before(b.End) && b.Start.Before(a.End), "independent tasks did not overlap")
}

func TestExecutor_FailureSkipsOnlyDependents(t *testing.T) {
	// --- Arrange ---
	var ranSibling atomic.Bool
	boom := errors.New("boom")
	r := NewRegistry()
	require.NoError(t, r.Register("fonts", nil, func(context.Context) error { return boom }))
	require.NoError(t, r.Register("sass", nil, func(context.Context) error {
		time.Sleep(20 * time.Millisecond)
		ranSibling.Store(true)
		return nil
	}))
	require.NoError(t, r.Register("after-fonts", []string{"fonts"}, func(context.Context) error {
		t.Error("dependent of a failed task must not run")
		return nil
	}))
	require.NoError(t, r.Register("all", []string{"after-fonts", "sass"}, nil))

	// --- Act ---
	report, err := NewExecutor(r, 4).Run(context.Background(), "all")

	// --- Assert ---
	require.NoError(t, err)
	assert.True(t, ranSibling.Load(), "unrelated sibling must still run")
	assert.Equal(t, Failed, report.Outcomes["fonts"].Status)
	assert.ErrorIs(t, report.Outcomes["fonts"].Err, boom)
	assert.Equal(t, Skipped, report.Outcomes["after-fonts"].Status)
	assert.Equal(t, Skipped, report.Outcomes["all"].Status)
	assert.Equal(t, Done, report.Outcomes["sass"].Status)
	assert.Equal(t, []string{"fonts"}, report.Failed())

	var runErr *RunError
	require.ErrorAs(t, report.Err(), &runErr)
	assert.Contains(t, runErr.Error(), "fonts: boom")
}

func TestExecutor_PanicBecomesFailure(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("bad", nil, func(context.Context) error { panic("kaboom") }))

	report, err := NewExecutor(r, 1).Run(context.Background(), "bad")

	require.NoError(t, err)
	assert.Equal(t, Failed, report.Outcomes["bad"].Status)
	assert.ErrorContains(t, report.Outcomes["bad"].Err, "kaboom")
}

func TestExecutor_CanceledContext(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("a", nil, func(context.Context) error { return nil }))
	require.NoError(t, r.Register("b", []string{"a"}, func(context.Context) error { return nil }))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := NewExecutor(r, 2).Run(ctx, "b")

	require.NoError(t, err)
	assert.ErrorIs(t, report.Outcomes["a"].Err, context.Canceled)
	assert.Equal(t, Skipped, report.Outcomes["b"].Status)
}

func TestExecutor_UnknownTask(t *testing.T) {
	_, err := NewExecutor(NewRegistry(), 1).Run(context.Background(), "missing")
	var unknown *UnknownTaskError
	assert.ErrorAs(t, err, &unknown)
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "done", Done.String())
	assert.Equal(t, "skipped", Skipped.String())
	assert.Equal(t, "unknown", Status(42).String())
}
