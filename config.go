package promptmgr

import (
	"errors"
	"fmt"
	"maps"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ValidationMode controls how aggressively startup validation checks sources.
type ValidationMode string

// Validation modes. The empty mode behaves like ValidationNone.
const (
	ValidationNone       ValidationMode = "none"
	ValidationConfigOnly ValidationMode = "env_only"
	ValidationLoadTest   ValidationMode = "load_test"
)

// ParseValidationMode converts s to a ValidationMode, case-insensitively.
// "config_only" is accepted as an alias of "env_only".
func ParseValidationMode(s string) (ValidationMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(ValidationNone):
		return ValidationNone, nil
	case string(ValidationConfigOnly), "config_only":
		return ValidationConfigOnly, nil
	case string(ValidationLoadTest):
		return ValidationLoadTest, nil
	}
	return "", fmt.Errorf("%w: invalid validation mode %q, valid modes are: none, env_only, load_test",
		ErrConfiguration, s)
}

// Defaults for ManagerConfig fields.
const (
	DefaultCacheTTL         = time.Hour
	DefaultRemoteTimeout    = 30 * time.Second
	DefaultRemoteMaxRetries = 3
)

// PromptConfig declares one named prompt.
type PromptConfig struct {
	Name         string
	Source       SourceType
	SourceConfig map[string]any
	// CacheTTL overrides the manager TTL when non-nil. Zero disables caching.
	CacheTTL *time.Duration
}

// NewPromptConfig validates name and source eagerly and returns a config
// holding its own copy of sourceConfig.
func NewPromptConfig(name string, source SourceType, sourceConfig map[string]any, ttl *time.Duration) (PromptConfig, error) {
	if strings.TrimSpace(name) == "" {
		return PromptConfig{}, fmt.Errorf("%w: prompt name must not be empty", ErrConfiguration)
	}
	st, err := ParseSourceType(string(source))
	if err != nil {
		return PromptConfig{}, fmt.Errorf("prompt %q: %w", name, err)
	}
	if ttl != nil && *ttl < 0 {
		return PromptConfig{}, fmt.Errorf("%w: prompt %q: negative cache TTL %s", ErrConfiguration, name, *ttl)
	}
	cfg := PromptConfig{Name: name, Source: st, SourceConfig: maps.Clone(sourceConfig)}
	if cfg.SourceConfig == nil {
		cfg.SourceConfig = make(map[string]any)
	}
	if ttl != nil {
		d := *ttl
		cfg.CacheTTL = &d
	}
	return cfg, nil
}

// Clone returns a copy whose map and TTL pointer are not shared.
func (p PromptConfig) Clone() PromptConfig {
	out := p
	out.SourceConfig = maps.Clone(p.SourceConfig)
	if p.CacheTTL != nil {
		d := *p.CacheTTL
		out.CacheTTL = &d
	}
	return out
}

// TTL returns a pointer to d, for PromptConfig.CacheTTL literals.
func TTL(d time.Duration) *time.Duration { return &d }

// RemoteSettings configures the remote prompt API source.
type RemoteSettings struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
}

// FilesystemSettings configures the local file source.
type FilesystemSettings struct {
	BaseDir    string
	AutoReload bool
}

// ManagerConfig holds process-wide settings and the registration set.
type ManagerConfig struct {
	DefaultSource  SourceType
	CacheEnabled   bool
	CacheTTL       time.Duration
	ValidationMode ValidationMode
	Remote         RemoteSettings
	Filesystem     FilesystemSettings
	Prompts        map[string]PromptConfig
}

// DefaultManagerConfig returns the settings used when nothing is configured.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		CacheEnabled:   true,
		CacheTTL:       DefaultCacheTTL,
		ValidationMode: ValidationConfigOnly,
		Remote: RemoteSettings{
			Timeout:    DefaultRemoteTimeout,
			MaxRetries: DefaultRemoteMaxRetries,
		},
		Prompts: make(map[string]PromptConfig),
	}
}

// Clone returns a deep copy of the config.
func (c ManagerConfig) Clone() ManagerConfig {
	out := c
	out.Prompts = make(map[string]PromptConfig, len(c.Prompts))
	for name, p := range c.Prompts {
		out.Prompts[name] = p.Clone()
	}
	return out
}

// Check reports settings that are invalid regardless of validation mode.
func (c ManagerConfig) Check() error {
	var errs []error
	if c.CacheTTL < 0 {
		errs = append(errs, fmt.Errorf("negative cache TTL %s", c.CacheTTL))
	}
	if c.Remote.Timeout < 0 {
		errs = append(errs, fmt.Errorf("negative remote timeout %s", c.Remote.Timeout))
	}
	if c.Remote.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("negative remote max retries %d", c.Remote.MaxRetries))
	}
	if c.DefaultSource != "" {
		if _, err := ParseSourceType(string(c.DefaultSource)); err != nil {
			errs = append(errs, err)
		}
	}
	switch c.ValidationMode {
	case "", ValidationNone, ValidationConfigOnly, ValidationLoadTest:
	default:
		errs = append(errs, fmt.Errorf("unknown validation mode %q", c.ValidationMode))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrConfiguration, errors.Join(errs...))
}

// EffectiveTTL is the prompt override when set, else the manager default.
func (c ManagerConfig) EffectiveTTL(p PromptConfig) time.Duration {
	if p.CacheTTL != nil {
		return *p.CacheTTL
	}
	return c.CacheTTL
}

// ValidateSources checks that every prompt's source has the settings it needs.
// It makes no network or disk calls and returns all issues found.
func (c ManagerConfig) ValidateSources(prompts map[string]PromptConfig) []string {
	names := make([]string, 0, len(prompts))
	for name := range prompts {
		names = append(names, name)
	}
	sort.Strings(names)
	var issues []string
	for _, name := range names {
		p := prompts[name]
		switch p.Source {
		case SourceRemoteAPI:
			if c.Remote.APIKey == "" {
				issues = append(issues, fmt.Sprintf(
					"prompt %q uses the openai source but PROMPT_MANAGER_OPENAI_API_KEY is not set", name))
			}
		case SourceFilesystem:
			path, _ := p.SourceConfig[KeyPath].(string)
			if path == "" {
				path, _ = p.SourceConfig[KeyPromptID].(string)
			}
			if path == "" {
				path = name
			}
			if c.Filesystem.BaseDir == "" && !filepath.IsAbs(path) && !strings.HasPrefix(path, "~") {
				issues = append(issues, fmt.Sprintf(
					"prompt %q uses the local source with relative path %q but PROMPT_MANAGER_PROMPTS_DIR is not set", name, path))
			}
		}
	}
	return issues
}
