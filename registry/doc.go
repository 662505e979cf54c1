// Package registry holds prompt declarations by name and tracks which source
// types are currently referenced. Use New to create a Registry; it is safe
// for concurrent use and never performs I/O.
package registry
