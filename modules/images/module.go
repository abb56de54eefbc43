// Package images provides the raster image steps: imagemin re-encodes JPEG
// and PNG files, webp converts them to lossy WebP.
package images

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"

	"github.com/specialistvlad/assetpipe/internal/pipeline"
	"github.com/specialistvlad/assetpipe/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// MinOptions are the options of imagemin.
type MinOptions struct {
	// Quality is the JPEG quality, 1-100.
	Quality int `option:"quality"`
}

// WebPOptions are the options of webp.
type WebPOptions struct {
	Quality      float64 `option:"quality"`
	Lossless     bool    `option:"lossless"`
	KeepOriginal bool    `option:"keep_original"`
}

// Register registers the steps with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterStep("imagemin", &registry.RegisteredStep{
		NewOptions: func() any { return &MinOptions{Quality: 75} },
		Build: func(opts any) (pipeline.Step, error) {
			o := *opts.(*MinOptions)
			if o.Quality < 1 || o.Quality > 100 {
				return nil, fmt.Errorf("quality %d out of range 1-100", o.Quality)
			}
			return &minStep{opts: o}, nil
		},
	})
	r.RegisterStep("webp", &registry.RegisteredStep{
		NewOptions: func() any { return &WebPOptions{Quality: 75} },
		Build: func(opts any) (pipeline.Step, error) {
			o := *opts.(*WebPOptions)
			if o.Quality < 0 || o.Quality > 100 {
				return nil, fmt.Errorf("quality %v out of range 0-100", o.Quality)
			}
			return &webpStep{opts: o}, nil
		},
	})
}

func decode(f *pipeline.File) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(f.Contents), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", f.Path, err)
	}
	return img, nil
}

type minStep struct {
	opts MinOptions
}

func (s *minStep) Name() string { return "imagemin" }

func (s *minStep) Formats() (pipeline.Format, pipeline.Format) {
	return pipeline.FormatRaster, pipeline.FormatRaster
}

// Apply re-encodes JPEG and PNG files; other files pass through. The
// original bytes are kept when re-encoding does not make the file smaller.
func (s *minStep) Apply(_ context.Context, f *pipeline.File) ([]*pipeline.File, error) {
	var opts []imaging.EncodeOption
	var format imaging.Format
	switch f.Ext() {
	case ".jpg", ".jpeg":
		format = imaging.JPEG
		opts = append(opts, imaging.JPEGQuality(s.opts.Quality))
	case ".png":
		format = imaging.PNG
		opts = append(opts, imaging.PNGCompressionLevel(png.BestCompression))
	default:
		return []*pipeline.File{f}, nil
	}

	img, err := decode(f)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, format, opts...); err != nil {
		return nil, fmt.Errorf("encoding %s: %w", f.Path, err)
	}
	if buf.Len() >= len(f.Contents) {
		return []*pipeline.File{f}, nil
	}
	out := f.Clone()
	out.Contents = buf.Bytes()
	return []*pipeline.File{out}, nil
}

type webpStep struct {
	opts WebPOptions
}

func (s *webpStep) Name() string { return "webp" }

func (s *webpStep) Formats() (pipeline.Format, pipeline.Format) {
	return pipeline.FormatRaster, pipeline.FormatRaster
}

// Apply converts JPEG and PNG files. With keep_original both the source
// image and its WebP sibling are emitted.
func (s *webpStep) Apply(_ context.Context, f *pipeline.File) ([]*pipeline.File, error) {
	switch f.Ext() {
	case ".jpg", ".jpeg", ".png":
	default:
		return []*pipeline.File{f}, nil
	}

	img, err := decode(f)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, &webp.Options{Lossless: s.opts.Lossless, Quality: float32(s.opts.Quality)}); err != nil {
		return nil, fmt.Errorf("encoding %s as webp: %w", f.Path, err)
	}

	converted := f.WithExt(".webp")
	converted.Contents = buf.Bytes()
	if s.opts.KeepOriginal {
		return []*pipeline.File{f, converted}, nil
	}
	return []*pipeline.File{converted}, nil
}
