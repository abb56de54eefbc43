package images

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/chai2010/webp"
	"github.com/specialistvlad/assetpipe/internal/config"
	"github.com/specialistvlad/assetpipe/internal/pipeline"
	"github.com/specialistvlad/assetpipe/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

// gradient is a smooth image that compresses well.
func gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 128, A: 255})
		}
	}
	return img
}

func encodeJPEG(t *testing.T, img image.Image, quality int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}))
	return buf.Bytes()
}

func build(t *testing.T, name string, opts map[string]cty.Value) pipeline.Step {
	t.Helper()
	r := registry.New()
	(&Module{}).Register(r)
	s, err := r.BuildStep(&config.StepSpec{Name: name, Options: opts})
	require.NoError(t, err)
	return s
}

func TestImagemin_ShrinksJPEG(t *testing.T) {
	// --- Arrange ---
	orig := encodeJPEG(t, gradient(256, 256), 100)
	f := &pipeline.File{Path: "photos/a.jpg", Contents: orig}

	// --- Act ---
	out, err := build(t, "imagemin", nil).Apply(context.Background(), f)

	// --- Assert ---
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "photos/a.jpg", out[0].Path)
	assert.Less(t, len(out[0].Contents), len(orig))
	_, err = jpeg.Decode(bytes.NewReader(out[0].Contents))
	assert.NoError(t, err)
}

func TestImagemin_KeepsSmallerOriginal(t *testing.T) {
	// An already heavily compressed JPEG does not shrink at quality 100.
	orig := encodeJPEG(t, gradient(64, 64), 5)
	f := &pipeline.File{Path: "a.jpeg", Contents: orig}

	out, err := build(t, "imagemin", map[string]cty.Value{"quality": cty.NumberIntVal(100)}).Apply(context.Background(), f)

	require.NoError(t, err)
	assert.Equal(t, orig, out[0].Contents)
}

func TestImagemin_PNGAndPassthrough(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&png.Encoder{CompressionLevel: png.NoCompression}).Encode(&buf, gradient(64, 64)))
	step := build(t, "imagemin", nil)

	out, err := step.Apply(context.Background(), &pipeline.File{Path: "a.png", Contents: buf.Bytes()})
	require.NoError(t, err)
	assert.Less(t, len(out[0].Contents), buf.Len())

	gif := &pipeline.File{Path: "anim.gif", Contents: []byte("GIF89a")}
	out, err = step.Apply(context.Background(), gif)
	require.NoError(t, err)
	assert.Same(t, gif, out[0])
}

func TestImagemin_BadQuality(t *testing.T) {
	r := registry.New()
	(&Module{}).Register(r)
	_, err := r.BuildStep(&config.StepSpec{Name: "imagemin", Options: map[string]cty.Value{"quality": cty.NumberIntVal(0)}})
	assert.ErrorContains(t, err, "out of range")
}

func TestWebP_ConvertsAndKeepsOriginal(t *testing.T) {
	// --- Arrange ---
	orig := encodeJPEG(t, gradient(256, 256), 95)
	f := &pipeline.File{Path: "img/hero.jpg", Contents: orig}
	step := build(t, "webp", map[string]cty.Value{"keep_original": cty.True})

	// --- Act ---
	out, err := step.Apply(context.Background(), f)

	// --- Assert ---
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Same(t, f, out[0])
	assert.Equal(t, "img/hero.webp", out[1].Path)
	assert.Less(t, len(out[1].Contents), len(orig))

	img, err := webp.Decode(bytes.NewReader(out[1].Contents))
	require.NoError(t, err)
	assert.Equal(t, 256, img.Bounds().Dx())
}

func TestWebP_ReplacesByDefault(t *testing.T) {
	f := &pipeline.File{Path: "a.jpg", Contents: encodeJPEG(t, gradient(32, 32), 90)}

	out, err := build(t, "webp", nil).Apply(context.Background(), f)

	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "a.webp", out[0].Path)
}

func TestWebP_CorruptImage(t *testing.T) {
	_, err := build(t, "webp", nil).Apply(context.Background(), &pipeline.File{Path: "broken.png", Contents: []byte("not a png")})
	assert.ErrorContains(t, err, "decoding broken.png")
}
