// Package manager orchestrates prompt retrieval: it resolves a name through
// the registry, fetches from the lazily constructed source adapter, caches the
// raw content with a TTL and applies {key} substitution.
//
// Use New (or NewFromMap, FromEnv) for an explicit instance. Default and
// GetPrompt offer a process-wide instance built from the environment.
package manager
