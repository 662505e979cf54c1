// Package promptmgr resolves logical prompt names to text pulled from
// interchangeable backends (local files, a remote prompt API), with TTL
// caching and single-pass {key} variable substitution.
//
// The root package holds the shared vocabulary: configuration types, the
// Source contract implemented by fssource and remotesource, and the error
// taxonomy. The orchestration lives in package manager.
package promptmgr
