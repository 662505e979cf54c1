package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/skosovsky/promptmgr"
)

// Registry is a concurrency-safe index of prompt declarations by name.
// Values handed out are copies; callers cannot mutate registered configs.
type Registry struct {
	logger  *zap.Logger
	mu      sync.RWMutex
	prompts map[string]promptmgr.PromptConfig
	inUse   map[promptmgr.SourceType]int
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger. Nil leaves the no-op default.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates an empty Registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		logger:  zap.NewNop(),
		prompts: make(map[string]promptmgr.PromptConfig),
		inUse:   make(map[promptmgr.SourceType]int),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds cfg under cfg.Name. An existing name is rejected with
// ErrPromptAlreadyRegistered unless overwrite is true.
func (r *Registry) Register(cfg promptmgr.PromptConfig, overwrite bool) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("%w: prompt name must not be empty", promptmgr.ErrConfiguration)
	}
	if _, err := promptmgr.ParseSourceType(string(cfg.Source)); err != nil {
		return fmt.Errorf("prompt %q: %w", cfg.Name, err)
	}
	cfg = cfg.Clone()

	r.mu.Lock()
	defer r.mu.Unlock()
	old, exists := r.prompts[cfg.Name]
	if exists && !overwrite {
		return promptmgr.NewPromptError(promptmgr.ErrPromptAlreadyRegistered, cfg.Name, old.Source, nil)
	}
	if exists {
		r.release(old.Source)
	}
	r.prompts[cfg.Name] = cfg
	r.inUse[cfg.Source]++
	r.logger.Debug("prompt registered",
		zap.String("prompt", cfg.Name),
		zap.String("source", string(cfg.Source)),
		zap.Bool("overwrite", exists))
	return nil
}

// release decrements the use count of t. Caller must hold r.mu.
func (r *Registry) release(t promptmgr.SourceType) {
	r.inUse[t]--
	if r.inUse[t] <= 0 {
		delete(r.inUse, t)
	}
}

// Get returns a copy of the config registered under name.
func (r *Registry) Get(name string) (promptmgr.PromptConfig, error) {
	r.mu.RLock()
	cfg, ok := r.prompts[name]
	r.mu.RUnlock()
	if !ok {
		return promptmgr.PromptConfig{}, promptmgr.NewPromptError(promptmgr.ErrPromptNotRegistered, name, "", nil)
	}
	return cfg.Clone(), nil
}

// Exists reports whether name is registered.
func (r *Registry) Exists(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.prompts[name]
	return ok
}

// List returns registered names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.prompts))
	for name := range r.prompts {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// All returns a snapshot copy of every registration.
func (r *Registry) All() map[string]promptmgr.PromptConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]promptmgr.PromptConfig, len(r.prompts))
	for name, cfg := range r.prompts {
		out[name] = cfg.Clone()
	}
	return out
}

// Remove deletes name. An unknown name is ErrPromptNotRegistered.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg, ok := r.prompts[name]
	if !ok {
		return promptmgr.NewPromptError(promptmgr.ErrPromptNotRegistered, name, "", nil)
	}
	delete(r.prompts, name)
	r.release(cfg.Source)
	r.logger.Debug("prompt removed", zap.String("prompt", name))
	return nil
}

// Clear removes every registration.
func (r *Registry) Clear() {
	r.mu.Lock()
	r.prompts = make(map[string]promptmgr.PromptConfig)
	r.inUse = make(map[promptmgr.SourceType]int)
	r.mu.Unlock()
}

// SourcesInUse returns the distinct source types referenced by at least one
// registration, sorted.
func (r *Registry) SourcesInUse() []promptmgr.SourceType {
	r.mu.RLock()
	out := make([]promptmgr.SourceType, 0, len(r.inUse))
	for t := range r.inUse {
		out = append(out, t)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Len returns the number of registrations.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.prompts)
}

// Validate returns structural issues: remote prompts without a prompt_id.
// It never contacts a source.
func (r *Registry) Validate() []string {
	var issues []string
	for _, name := range r.List() {
		cfg, err := r.Get(name)
		if err != nil {
			continue // removed concurrently
		}
		if cfg.Source != promptmgr.SourceRemoteAPI {
			continue
		}
		if id, _ := cfg.SourceConfig[promptmgr.KeyPromptID].(string); id == "" {
			issues = append(issues, fmt.Sprintf("prompt %q uses the openai source but has no prompt_id", name))
		}
	}
	return issues
}

// String describes the registry size.
func (r *Registry) String() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return fmt.Sprintf("Registry(prompts=%d, sources=%d)", len(r.prompts), len(r.inUse))
}
