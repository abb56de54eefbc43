package hcl

import (
	"github.com/hashicorp/hcl/v2"
)

const (
	blockPaths = "paths"
	blockTask  = "task"
	blockServe = "serve"
	blockWatch = "watch"
	blockGroup = "group"
)

// rootSchema lists everything allowed at the top level of a build file.
var rootSchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "name"},
		{Name: "default"},
	},
	Blocks: []hcl.BlockHeaderSchema{
		{Type: blockPaths},
		{Type: blockTask, LabelNames: []string{"name"}},
		{Type: blockServe, LabelNames: []string{"name"}},
		{Type: blockWatch, LabelNames: []string{"name"}},
		{Type: blockGroup, LabelNames: []string{"name"}},
	},
}

type pathsBlock struct {
	Src   string `hcl:"src,optional"`
	Build string `hcl:"build,optional"`
}

type taskBlock struct {
	Src       []string     `hcl:"src"`
	Dest      string       `hcl:"dest,optional"`
	Reload    string       `hcl:"reload,optional"`
	Cache     bool         `hcl:"cache,optional"`
	DependsOn []string     `hcl:"depends_on,optional"`
	Steps     []*stepBlock `hcl:"step,block"`
	Bundle    *stepBlock   `hcl:"bundle,block"`
}

// stepBlock keeps its body undecoded: option names belong to the step.
type stepBlock struct {
	Name    string   `hcl:"name,label"`
	Options hcl.Body `hcl:",remain"`
}

type serveBlock struct {
	Root      string   `hcl:"root,optional"`
	Host      string   `hcl:"host,optional"`
	Port      *int     `hcl:"port,optional"`
	SocketIO  bool     `hcl:"socketio,optional"`
	DependsOn []string `hcl:"depends_on,optional"`
}

type watchBlock struct {
	Debounce  string          `hcl:"debounce,optional"`
	DependsOn []string        `hcl:"depends_on,optional"`
	Bindings  []*bindingBlock `hcl:"binding,block"`
}

type bindingBlock struct {
	Pattern []string `hcl:"pattern"`
	Run     []string `hcl:"run"`
}

type groupBlock struct {
	DependsOn []string `hcl:"depends_on,optional"`
}
