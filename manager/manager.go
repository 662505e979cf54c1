package manager

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/skosovsky/promptmgr"
	"github.com/skosovsky/promptmgr/fssource"
	"github.com/skosovsky/promptmgr/internal/cast"
	"github.com/skosovsky/promptmgr/registry"
	"github.com/skosovsky/promptmgr/remotesource"
)

// latestVersion stands in for an absent version in cache keys.
const latestVersion = "latest"

// detachCancel returns a context that is not cancelled when parent is cancelled,
// but still respects parent's deadline so fetches do not hang.
// The caller should call the returned cancel when done to release the deadline timer.
func detachCancel(parent context.Context) (context.Context, context.CancelFunc) {
	ctx := context.WithoutCancel(parent)
	if dl, ok := parent.Deadline(); ok {
		return context.WithDeadline(ctx, dl)
	}
	return context.WithCancel(ctx)
}

// Manager resolves prompt names to text. It owns a registry, lazily built
// source adapters and a TTL cache of raw (pre-substitution) content.
// A Manager is safe for concurrent use.
type Manager struct {
	cfg       promptmgr.ManagerConfig
	registry  *registry.Registry
	logger    *zap.Logger
	now       Clock
	factories map[promptmgr.SourceType]SourceFactory
	caps      promptmgr.Capabilities

	mu      sync.RWMutex // guards sources and cache
	sources map[promptmgr.SourceType]promptmgr.Source
	cache   *cache
	sf      singleflight.Group
}

func defaultFactories() map[promptmgr.SourceType]SourceFactory {
	return map[promptmgr.SourceType]SourceFactory{
		promptmgr.SourceFilesystem: func(_ context.Context, cfg promptmgr.ManagerConfig, logger *zap.Logger) (promptmgr.Source, error) {
			return fssource.New(cfg.Filesystem, fssource.WithLogger(logger))
		},
		promptmgr.SourceRemoteAPI: func(_ context.Context, cfg promptmgr.ManagerConfig, logger *zap.Logger) (promptmgr.Source, error) {
			return remotesource.New(cfg.Remote, remotesource.WithLogger(logger))
		},
	}
}

// New builds a Manager from cfg, registers cfg.Prompts and runs startup
// validation according to cfg.ValidationMode.
func New(ctx context.Context, cfg promptmgr.ManagerConfig, opts ...Option) (*Manager, error) {
	if err := cfg.Check(); err != nil {
		return nil, err
	}
	cfg = cfg.Clone()
	m := &Manager{
		logger:    zap.NewNop(),
		now:       time.Now,
		factories: defaultFactories(),
		sources:   make(map[promptmgr.SourceType]promptmgr.Source),
		cache:     newCache(cfg.CacheEnabled, cfg.CacheTTL),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.registry = registry.New(registry.WithLogger(m.logger.Named("registry")))

	prompts := cfg.Prompts
	cfg.Prompts = nil
	m.cfg = cfg
	names := slices.Sorted(maps.Keys(prompts))
	for _, name := range names {
		p := prompts[name]
		p.Name = name
		p.SourceConfig = normalizeSourceConfig(p.SourceConfig)
		if err := m.registry.Register(p, false); err != nil {
			return nil, err
		}
	}

	for _, t := range promptmgr.SourceTypes() {
		if _, ok := m.factories[t]; ok {
			m.caps.Sources = append(m.caps.Sources, t)
		}
	}
	if m.caps.HasSource(promptmgr.SourceFilesystem) {
		m.caps.Formats = fssource.SupportedExtensions()
	}

	if err := m.Validate(ctx, ""); err != nil {
		return nil, err
	}
	m.logger.Info("prompt manager initialized",
		zap.Int("prompts", m.registry.Len()),
		zap.Bool("cache_enabled", cfg.CacheEnabled),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.String("validation_mode", string(cfg.ValidationMode)))
	return m, nil
}

// NewFromMap decodes m with promptmgr.FromMap and calls New.
func NewFromMap(ctx context.Context, m map[string]any, opts ...Option) (*Manager, error) {
	cfg, err := promptmgr.FromMap(m)
	if err != nil {
		return nil, err
	}
	return New(ctx, cfg, opts...)
}

// Get returns the prompt text for name with variables substituted.
//
// A fresh cache entry is used when present. Otherwise the registered config
// picks the source; the fetched content is cached under the prompt's
// effective TTL. When WithDefault is given, an unregistered name or any
// failure after the cache check yields the default instead of an error.
func (m *Manager) Get(ctx context.Context, name string, opts ...GetOption) (string, error) {
	o := newGetOptions(opts)
	key := cacheKey(name, o.version)

	if content, ok := m.cached(key); ok {
		m.logger.Debug("cache hit", zap.String("prompt", name), zap.String("cache_key", key))
		return m.render(name, content, o.variables), nil
	}

	cfg, err := m.registry.Get(name)
	if err != nil {
		if o.hasDefault {
			m.logger.Warn("prompt not registered, using default", zap.String("prompt", name))
			return m.render(name, o.def, o.variables), nil
		}
		return "", err
	}

	content, err := m.load(ctx, cfg, key, o)
	if err != nil {
		if o.hasDefault {
			m.logger.Error("prompt retrieval failed, using default",
				zap.String("prompt", name), zap.String("source", string(cfg.Source)), zap.Error(err))
			return m.render(name, o.def, o.variables), nil
		}
		m.logger.Error("prompt retrieval failed",
			zap.String("prompt", name), zap.String("source", string(cfg.Source)), zap.Error(err))
		return "", err
	}
	return m.render(name, content, o.variables), nil
}

// GetPrompt is an alias of Get.
func (m *Manager) GetPrompt(ctx context.Context, name string, opts ...GetOption) (string, error) {
	return m.Get(ctx, name, opts...)
}

func (m *Manager) cached(key string) (string, bool) {
	now := m.now()
	m.mu.RLock()
	content, ok, expired := m.cache.lookup(key, now)
	m.mu.RUnlock()
	if ok || !expired {
		return content, ok
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	// Another caller may have refreshed the entry in between.
	content, ok, expired = m.cache.lookup(key, now)
	if expired {
		m.cache.evict(key)
		m.logger.Debug("cache entry expired", zap.String("cache_key", key))
	}
	return content, ok
}

// load fetches through the source adapter outside m.mu. Concurrent misses on
// the same key and parameters share one fetch.
func (m *Manager) load(ctx context.Context, cfg promptmgr.PromptConfig, key string, o getOptions) (string, error) {
	v, err, _ := m.sf.Do(flightKey(key, o.params), func() (any, error) {
		fetchCtx, cancel := detachCancel(ctx)
		defer cancel()
		src, err := m.source(fetchCtx, cfg.Source)
		if err != nil {
			return nil, err
		}
		id, req := fetchRequest(cfg, o)
		content, err := src.Fetch(fetchCtx, id, req)
		if err != nil {
			return nil, err
		}
		m.store(key, cfg.Name, content, m.cfg.EffectiveTTL(cfg))
		m.logger.Info("prompt loaded",
			zap.String("prompt", cfg.Name), zap.String("source", string(cfg.Source)))
		return content, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (m *Manager) store(key, name, content string, ttl time.Duration) {
	now := m.now()
	m.mu.Lock()
	stored := m.cache.put(key, name, content, ttl, now)
	m.mu.Unlock()
	if stored {
		m.logger.Debug("cached prompt", zap.String("cache_key", key), zap.Duration("ttl", ttl))
	}
}

// source returns the adapter for t, constructing it on first use.
// Construction runs without m.mu held; a failed construction is retried on
// the next call.
func (m *Manager) source(ctx context.Context, t promptmgr.SourceType) (promptmgr.Source, error) {
	m.mu.RLock()
	src, ok := m.sources[t]
	m.mu.RUnlock()
	if ok {
		return src, nil
	}
	factory, ok := m.factories[t]
	if !ok {
		return nil, fmt.Errorf("%w: no adapter available for source %q", promptmgr.ErrSourceNotFound, t)
	}
	src, err := factory(ctx, m.cfg, m.logger.Named(string(t)))
	if err != nil {
		if !errors.Is(err, promptmgr.ErrSourceConnection) {
			err = fmt.Errorf("%w: %s source: %w", promptmgr.ErrSourceConnection, t, err)
		}
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.sources[t]; ok {
		return existing, nil
	}
	m.sources[t] = src
	m.logger.Debug("source adapter created", zap.String("source", string(t)))
	return src, nil
}

// fetchRequest merges the prompt's source config with per-call options.
// The identifier is prompt_id when configured, else the prompt name.
func fetchRequest(cfg promptmgr.PromptConfig, o getOptions) (string, promptmgr.FetchRequest) {
	params := maps.Clone(cfg.SourceConfig)
	if params == nil {
		params = make(map[string]any)
	}
	if o.version != "" {
		params[promptmgr.KeyVersion] = o.version
	}
	maps.Copy(params, o.params)

	id := cfg.Name
	if s, ok := cast.ToString(params[promptmgr.KeyPromptID]); ok && s != "" {
		id = s
	}
	version, _ := cast.ToString(params[promptmgr.KeyVersion])
	delete(params, promptmgr.KeyPromptID)
	delete(params, promptmgr.KeyVersion)
	return id, promptmgr.FetchRequest{Version: version, Params: params}
}

func (m *Manager) render(name, content string, vars map[string]any) string {
	out, err := promptmgr.Substitute(content, vars)
	if err != nil {
		var ve *promptmgr.VariableError
		if errors.As(err, &ve) {
			ve.Prompt = name
		}
		m.logger.Warn("missing substitution variable", zap.String("prompt", name), zap.Error(err))
	}
	return out
}

func cacheKey(name, version string) string {
	if version == "" {
		version = latestVersion
	}
	return name + ":" + version
}

func flightKey(key string, params map[string]any) string {
	if len(params) == 0 {
		return key
	}
	var b strings.Builder
	b.WriteString(key)
	for _, k := range slices.Sorted(maps.Keys(params)) {
		fmt.Fprintf(&b, "\x00%s=%v", k, params[k])
	}
	return b.String()
}

// RegisterPrompt validates and registers a prompt at runtime. An "id" key in
// sourceConfig is accepted as prompt_id.
func (m *Manager) RegisterPrompt(name string, source promptmgr.SourceType, sourceConfig map[string]any, opts ...RegisterOption) error {
	var o registerOptions
	for _, opt := range opts {
		opt(&o)
	}
	cfg, err := promptmgr.NewPromptConfig(name, source, normalizeSourceConfig(sourceConfig), o.ttl)
	if err != nil {
		return err
	}
	if err := m.registry.Register(cfg, o.overwrite); err != nil {
		return err
	}
	if o.overwrite {
		m.evictPrompt(name)
	}
	m.logger.Info("prompt registered", zap.String("prompt", name), zap.String("source", string(cfg.Source)))
	return nil
}

// RemovePrompt unregisters name and drops its cached versions.
func (m *Manager) RemovePrompt(name string) error {
	if err := m.registry.Remove(name); err != nil {
		return err
	}
	m.evictPrompt(name)
	m.logger.Info("prompt removed", zap.String("prompt", name))
	return nil
}

func (m *Manager) evictPrompt(name string) {
	m.mu.Lock()
	m.cache.evictName(name)
	m.mu.Unlock()
}

// ListPrompts returns registered names, sorted.
func (m *Manager) ListPrompts() []string { return m.registry.List() }

// PromptExists reports whether name is registered. It does not contact a source.
func (m *Manager) PromptExists(name string) bool { return m.registry.Exists(name) }

// Prompt returns a copy of the registered config for name.
func (m *Manager) Prompt(name string) (promptmgr.PromptConfig, error) { return m.registry.Get(name) }

// ClearCache drops every cached prompt, including adapter-local caches.
func (m *Manager) ClearCache() {
	m.mu.Lock()
	n := m.cache.len()
	m.cache.clear()
	sources := slices.Collect(maps.Values(m.sources))
	m.mu.Unlock()
	for _, src := range sources {
		if p, ok := src.(promptmgr.Purger); ok {
			p.Purge()
		}
	}
	m.logger.Info("prompt cache cleared", zap.Int("entries", n))
}

// Capabilities reports which sources can be constructed and which file
// formats the filesystem source decodes.
func (m *Manager) Capabilities() promptmgr.Capabilities {
	return promptmgr.Capabilities{
		Sources: slices.Clone(m.caps.Sources),
		Formats: slices.Clone(m.caps.Formats),
	}
}

// Config returns a copy of the manager settings with the current
// registrations in Prompts.
func (m *Manager) Config() promptmgr.ManagerConfig {
	cfg := m.cfg.Clone()
	cfg.Prompts = m.registry.All()
	return cfg
}

// SourcesInUse returns the source types referenced by registered prompts.
func (m *Manager) SourcesInUse() []promptmgr.SourceType { return m.registry.SourcesInUse() }

// String describes the manager state.
func (m *Manager) String() string {
	m.mu.RLock()
	cached := m.cache.len()
	active := make([]string, 0, len(m.sources))
	for t := range m.sources {
		active = append(active, string(t))
	}
	m.mu.RUnlock()
	sort.Strings(active)
	return fmt.Sprintf("Manager(prompts=%d, cached=%d, sources=[%s], cache_enabled=%t)",
		m.registry.Len(), cached, strings.Join(active, ", "), m.cfg.CacheEnabled)
}
