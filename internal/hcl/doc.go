// Package hcl loads build files written in HCL into the config model.
//
// A build file declares an optional paths block followed by task, serve,
// watch and group blocks. Blocks of every type keep their declaration order
// in the resulting model. Attribute values may interpolate paths.src and
// paths.build.
package hcl
