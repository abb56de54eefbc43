// Package config defines the format-agnostic build model: named paths, the
// declared tasks in order, and the default task. Loaders for concrete
// formats (see package hcl) translate into this model; the app package turns
// it into registered tasks.
package config
