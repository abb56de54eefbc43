// Package registry maps the step names used in build files (e.g. "scss",
// "webp") to the Go code that implements them.
//
// Step implementations live in the modules/ tree. Each module registers its
// steps on a Registry owned by one App, so separate Apps (and tests) never
// share registrations.
package registry
