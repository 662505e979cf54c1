package manager

import (
	"context"
	"maps"
	"time"

	"go.uber.org/zap"

	"github.com/skosovsky/promptmgr"
)

// Clock returns the current time. Tests inject a controllable one.
type Clock func() time.Time

// SourceFactory builds the adapter for one source type. It is called at most
// once per successful construction; failures are not cached.
type SourceFactory func(ctx context.Context, cfg promptmgr.ManagerConfig, logger *zap.Logger) (promptmgr.Source, error)

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. Nil leaves the no-op default.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithClock sets the time source used for cache expiry.
func WithClock(c Clock) Option {
	return func(m *Manager) {
		if c != nil {
			m.now = c
		}
	}
}

// WithSourceFactory installs or replaces the adapter factory for t.
func WithSourceFactory(t promptmgr.SourceType, f SourceFactory) Option {
	return func(m *Manager) {
		if f != nil {
			m.factories[t] = f
		}
	}
}

// WithoutSource removes the factory for t, so prompts of that type fail with
// ErrSourceNotFound.
func WithoutSource(t promptmgr.SourceType) Option {
	return func(m *Manager) {
		delete(m.factories, t)
	}
}

// GetOption configures one Get call.
type GetOption func(*getOptions)

type getOptions struct {
	version    string
	variables  map[string]any
	def        string
	hasDefault bool
	params     map[string]any
}

// WithVersion requests a specific version. It overrides any version in the
// prompt's source config and is part of the cache key.
func WithVersion(v string) GetOption {
	return func(o *getOptions) { o.version = v }
}

// WithVariables sets the {key} substitution values.
func WithVariables(vars map[string]any) GetOption {
	return func(o *getOptions) { o.variables = vars }
}

// WithDefault sets content returned when the prompt is unregistered or cannot
// be fetched. The masked failure is logged.
func WithDefault(content string) GetOption {
	return func(o *getOptions) {
		o.def = content
		o.hasDefault = true
	}
}

// WithParam adds a source-specific parameter, merged over the source config.
func WithParam(key string, value any) GetOption {
	return func(o *getOptions) {
		if o.params == nil {
			o.params = make(map[string]any)
		}
		o.params[key] = value
	}
}

func newGetOptions(opts []GetOption) getOptions {
	var o getOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// RegisterOption configures RegisterPrompt.
type RegisterOption func(*registerOptions)

type registerOptions struct {
	ttl       *time.Duration
	overwrite bool
}

// WithCacheTTL overrides the manager TTL for this prompt. Zero disables caching.
func WithCacheTTL(d time.Duration) RegisterOption {
	return func(o *registerOptions) { o.ttl = &d }
}

// WithOverwrite replaces an existing registration instead of failing.
func WithOverwrite() RegisterOption {
	return func(o *registerOptions) { o.overwrite = true }
}

// normalizeSourceConfig maps the short "id" key to prompt_id.
func normalizeSourceConfig(sc map[string]any) map[string]any {
	out := maps.Clone(sc)
	if id, ok := out["id"]; ok {
		if _, has := out[promptmgr.KeyPromptID]; !has {
			out[promptmgr.KeyPromptID] = id
		}
		delete(out, "id")
	}
	return out
}
