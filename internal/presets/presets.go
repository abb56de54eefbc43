// Package presets embeds the shipped build configurations. Each preset is a
// complete, independent model; nothing is shared or layered between them.
package presets

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/specialistvlad/assetpipe/internal/config"
	"github.com/specialistvlad/assetpipe/internal/hcl"
)

// Default is the preset used when none is selected.
const Default = "v3"

//go:embed *.hcl
var files embed.FS

// Names returns the available preset names, sorted.
func Names() []string {
	entries, _ := fs.ReadDir(files, ".")
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".hcl"))
	}
	sort.Strings(names)
	return names
}

// Source returns the HCL text of a preset.
func Source(name string) ([]byte, error) {
	data, err := files.ReadFile(name + ".hcl")
	if err != nil {
		return nil, &config.ConfigurationError{
			Subject: "preset " + name,
			Err:     fmt.Errorf("unknown preset %q (available: %s)", name, strings.Join(Names(), ", ")),
		}
	}
	return data, nil
}

// Load parses a preset into a fresh model.
func Load(ctx context.Context, name string) (*config.Model, error) {
	if name == "" {
		name = Default
	}
	data, err := Source(name)
	if err != nil {
		return nil, err
	}
	return hcl.Parse(ctx, name+".hcl", data)
}

// Loader loads presets by name through the config.Loader interface.
type Loader struct{}

var _ config.Loader = Loader{}

func (Loader) Load(ctx context.Context, name string) (*config.Model, error) {
	return Load(ctx, name)
}
