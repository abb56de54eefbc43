package pipeline

import (
	"errors"
	"testing"

	"github.com/specialistvlad/assetpipe/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_ValidatesFormatChain(t *testing.T) {
	testCases := []struct {
		name    string
		steps   []Step
		bundle  Bundler
		wantErr string
	}{
		{
			name: "matching chain",
			steps: []Step{
				&fakeStep{name: "compile", in: FormatSCSS, out: FormatCSS},
				&fakeStep{name: "minify", in: FormatCSS, out: FormatCSS},
			},
		},
		{
			name: "any passes through",
			steps: []Step{
				&fakeStep{name: "compile", in: FormatSCSS, out: FormatCSS},
				&fakeStep{name: "sourcemaps", in: FormatAny, out: FormatAny},
				&fakeStep{name: "minify", in: FormatCSS, out: FormatCSS},
			},
		},
		{
			name: "css into scss consumer",
			steps: []Step{
				&fakeStep{name: "prefix", in: FormatCSS, out: FormatCSS},
				&fakeStep{name: "compile", in: FormatSCSS, out: FormatCSS},
			},
		},
		{
			name: "mismatch",
			steps: []Step{
				&fakeStep{name: "webp", in: FormatRaster, out: FormatRaster},
				&fakeStep{name: "minify", in: FormatCSS, out: FormatCSS},
			},
			wantErr: `step "minify" expects css input but step "webp" produces raster`,
		},
		{
			name:    "bundle mismatch",
			steps:   []Step{&fakeStep{name: "minify", in: FormatCSS, out: FormatCSS}},
			bundle:  &svgOnly{},
			wantErr: `bundle "sprite" expects svg input`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// --- Act ---
			p, err := New(Spec{Task: "t", Src: []string{"src/*"}, Dest: "build", Steps: tc.steps, Bundle: tc.bundle})

			// --- Assert ---
			if tc.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, "t", p.Task())
				return
			}
			require.Error(t, err)
			var cfgErr *config.ConfigurationError
			require.True(t, errors.As(err, &cfgErr))
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestNew_RequiresSourcesAndBundleDest(t *testing.T) {
	_, err := New(Spec{Task: "sprite", Bundle: &svgOnly{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no source patterns")
	assert.Contains(t, err.Error(), `bundle "sprite" needs a destination`)
}

type svgOnly struct{ concatBundler }

func (*svgOnly) Name() string   { return "sprite" }
func (*svgOnly) Format() Format { return FormatSVG }

func TestFile_WithExtAndClone(t *testing.T) {
	f := &File{Path: "nested/main.scss", Contents: []byte("a"), SourceMap: &SourceMap{Sources: []string{"main.scss"}}}

	c := f.WithExt(".css")
	c.Contents[0] = 'b'
	c.SourceMap.Sources[0] = "other"

	assert.Equal(t, "nested/main.css", c.Path)
	assert.Equal(t, "main", c.Stem())
	assert.Equal(t, ".css", c.Ext())
	assert.Equal(t, "a", string(f.Contents))
	assert.Equal(t, "main.scss", f.SourceMap.Sources[0])
}
