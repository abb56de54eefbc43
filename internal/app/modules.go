package app

import (
	"github.com/specialistvlad/assetpipe/internal/registry"
	"github.com/specialistvlad/assetpipe/modules/autoprefix"
	"github.com/specialistvlad/assetpipe/modules/images"
	"github.com/specialistvlad/assetpipe/modules/minify"
	"github.com/specialistvlad/assetpipe/modules/scss"
	"github.com/specialistvlad/assetpipe/modules/sourcemaps"
	"github.com/specialistvlad/assetpipe/modules/sprite"
)

// coreModules is the definitive list of all step modules that are compiled
// into the assetpipe binary.
var coreModules = []registry.Module{
	&sourcemaps.Module{},
	&scss.Module{},
	&autoprefix.Module{},
	&minify.Module{},
	&images.Module{},
	&sprite.Module{},
}
