package config

import "context"

// Loader is implemented by format-specific configuration loaders.
type Loader interface {
	// Load reads the build file at path and translates it into a Model.
	Load(ctx context.Context, path string) (*Model, error)
}
