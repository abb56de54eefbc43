package registry

import (
	"context"
	"testing"

	"github.com/specialistvlad/assetpipe/internal/config"
	"github.com/specialistvlad/assetpipe/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

type testOptions struct {
	Quality  int      `option:"quality"`
	Keep     bool     `option:"keep_original"`
	Dir      string   `option:"dir"`
	Prefixes []string `option:"prefixes"`
	internal int
}

type nopStep struct{ opts *testOptions }

func (nopStep) Name() string { return "nop" }
func (nopStep) Formats() (pipeline.Format, pipeline.Format) {
	return pipeline.FormatAny, pipeline.FormatAny
}
func (nopStep) Apply(_ context.Context, f *pipeline.File) ([]*pipeline.File, error) {
	return []*pipeline.File{f}, nil
}

func TestDecodeOptions(t *testing.T) {
	// --- Arrange ---
	opts := &testOptions{Quality: 75, Dir: "."}
	values := map[string]cty.Value{
		"quality":       cty.NumberIntVal(60),
		"keep_original": cty.True,
		"prefixes":      cty.TupleVal([]cty.Value{cty.StringVal("webkit"), cty.StringVal("moz")}),
	}

	// --- Act ---
	err := DecodeOptions(values, opts)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, 60, opts.Quality)
	assert.True(t, opts.Keep)
	assert.Equal(t, ".", opts.Dir, "unset options keep their defaults")
	assert.Equal(t, []string{"webkit", "moz"}, opts.Prefixes)
}

func TestDecodeOptions_ConvertsLikeHCL(t *testing.T) {
	opts := &testOptions{}
	err := DecodeOptions(map[string]cty.Value{"quality": cty.StringVal("80"), "dir": cty.NumberIntVal(3)}, opts)

	require.NoError(t, err)
	assert.Equal(t, 80, opts.Quality)
	assert.Equal(t, "3", opts.Dir)
}

func TestDecodeOptions_Errors(t *testing.T) {
	testCases := []struct {
		name    string
		values  map[string]cty.Value
		target  any
		wantErr string
	}{
		{name: "unknown option", values: map[string]cty.Value{"qualty": cty.NumberIntVal(1), "zzz": cty.True}, target: &testOptions{}, wantErr: "unknown option(s): qualty, zzz"},
		{name: "bad type", values: map[string]cty.Value{"quality": cty.StringVal("high")}, target: &testOptions{}, wantErr: `option "quality"`},
		{name: "unexported field is not an option", values: map[string]cty.Value{"internal": cty.NumberIntVal(1)}, target: &testOptions{}, wantErr: "unknown option(s): internal"},
		{name: "not a pointer", values: nil, target: testOptions{}, wantErr: "non-nil pointer"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := DecodeOptions(tc.values, tc.target)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func newTestRegistry() *Registry {
	r := New()
	r.RegisterStep("nop", &RegisteredStep{
		NewOptions: func() any { return &testOptions{Quality: 75} },
		Build: func(opts any) (pipeline.Step, error) {
			return nopStep{opts: opts.(*testOptions)}, nil
		},
	})
	r.RegisterStep("plain", &RegisteredStep{
		Build: func(any) (pipeline.Step, error) { return nopStep{}, nil },
	})
	return r
}

func TestRegistry_BuildStep(t *testing.T) {
	r := newTestRegistry()

	step, err := r.BuildStep(&config.StepSpec{Name: "nop", Options: map[string]cty.Value{"quality": cty.NumberIntVal(10)}})
	require.NoError(t, err)
	assert.Equal(t, 10, step.(nopStep).opts.Quality)

	_, err = r.BuildStep(&config.StepSpec{Name: "missing"})
	assert.ErrorContains(t, err, `unknown step "missing"`)

	_, err = r.BuildStep(&config.StepSpec{Name: "plain", Options: map[string]cty.Value{"x": cty.True}})
	assert.ErrorContains(t, err, `step "plain" takes no options`)

	_, err = r.BuildBundler(&config.StepSpec{Name: "nop"})
	assert.ErrorContains(t, err, `unknown bundler "nop"`)
}

func TestRegistry_DuplicatePanics(t *testing.T) {
	r := newTestRegistry()
	assert.Equal(t, []string{"nop", "plain"}, r.StepNames())
	assert.Empty(t, r.BundlerNames())
	assert.Panics(t, func() {
		r.RegisterStep("nop", &RegisteredStep{})
	})
}
