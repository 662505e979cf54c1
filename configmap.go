package promptmgr

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/skosovsky/promptmgr/internal/cast"
)

// Top-level keys of the nested configuration mapping.
const (
	mapKeyPrompts           = "prompts"
	mapKeySources           = "sources"
	mapKeyCacheTTL          = "cache_ttl"
	mapKeyCacheEnabled      = "cache_enabled"
	mapKeyValidateOnStartup = "validate_on_startup"
	mapKeyDefaultSource     = "default_source"
)

// FromMap decodes the plain nested mapping form of the configuration:
//
//	prompts:
//	  welcome: {source: openai, id: pmpt_123, version: "2", cache_ttl: 300}
//	  email:   {source: local, path: templates/email.txt}
//	sources:
//	  openai: {api_key: sk-..., timeout: 30, max_retries: 3}
//	  local:  {base_dir: ./prompts}
//	cache_ttl: 3600
//	cache_enabled: true
//	validate_on_startup: true   # or none | env_only | load_test
//	default_source: local
//
// Unset keys keep the values of DefaultManagerConfig. TTLs and timeouts are
// seconds. The remote source may also be keyed "remote", the local one
// "filesystem".
func FromMap(m map[string]any) (ManagerConfig, error) {
	cfg := DefaultManagerConfig()
	if v, ok := m[mapKeyDefaultSource]; ok && v != nil {
		s, ok := cast.ToString(v)
		if !ok {
			return ManagerConfig{}, fmt.Errorf("%w: default_source must be a string", ErrConfiguration)
		}
		if s != "" {
			st, err := ParseSourceType(s)
			if err != nil {
				return ManagerConfig{}, err
			}
			cfg.DefaultSource = st
		}
	}
	if v, ok := m[mapKeyCacheEnabled]; ok {
		b, ok := cast.ToBool(v)
		if !ok {
			return ManagerConfig{}, fmt.Errorf("%w: cache_enabled must be a boolean, got %v", ErrConfiguration, v)
		}
		cfg.CacheEnabled = b
	}
	if v, ok := m[mapKeyCacheTTL]; ok {
		d, err := seconds(mapKeyCacheTTL, v)
		if err != nil {
			return ManagerConfig{}, err
		}
		cfg.CacheTTL = d
	}
	if v, ok := m[mapKeyValidateOnStartup]; ok {
		mode, err := validationModeOf(v)
		if err != nil {
			return ManagerConfig{}, err
		}
		cfg.ValidationMode = mode
	}
	if v, ok := m[mapKeySources]; ok && v != nil {
		sources, ok := cast.ToStringMap(v)
		if !ok {
			return ManagerConfig{}, fmt.Errorf("%w: sources must be a mapping", ErrConfiguration)
		}
		if err := decodeSources(&cfg, sources); err != nil {
			return ManagerConfig{}, err
		}
	}
	if v, ok := m[mapKeyPrompts]; ok && v != nil {
		prompts, ok := cast.ToStringMap(v)
		if !ok {
			return ManagerConfig{}, fmt.Errorf("%w: prompts must be a mapping", ErrConfiguration)
		}
		names := make([]string, 0, len(prompts))
		for name := range prompts {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			p, err := decodePrompt(name, prompts[name], cfg.DefaultSource)
			if err != nil {
				return ManagerConfig{}, err
			}
			cfg.Prompts[name] = p
		}
	}
	if err := cfg.Check(); err != nil {
		return ManagerConfig{}, err
	}
	return cfg, nil
}

func validationModeOf(v any) (ValidationMode, error) {
	if b, ok := v.(bool); ok {
		if b {
			return ValidationLoadTest, nil
		}
		return ValidationNone, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: validate_on_startup must be a boolean or a mode name, got %v", ErrConfiguration, v)
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true":
		return ValidationLoadTest, nil
	case "false":
		return ValidationNone, nil
	}
	return ParseValidationMode(s)
}

func decodeSources(cfg *ManagerConfig, sources map[string]any) error {
	for key, raw := range sources {
		st, err := ParseSourceType(key)
		if err != nil {
			return fmt.Errorf("sources: %w", err)
		}
		settings, ok := cast.ToStringMap(raw)
		if raw != nil && !ok {
			return fmt.Errorf("%w: sources.%s must be a mapping", ErrConfiguration, key)
		}
		switch st {
		case SourceRemoteAPI:
			if err := decodeRemote(&cfg.Remote, key, settings); err != nil {
				return err
			}
		case SourceFilesystem:
			if err := decodeFilesystem(&cfg.Filesystem, key, settings); err != nil {
				return err
			}
		}
	}
	return nil
}

func decodeRemote(r *RemoteSettings, key string, m map[string]any) error {
	if v, ok := m["api_key"]; ok && v != nil {
		s, ok := cast.ToString(v)
		if !ok {
			return fmt.Errorf("%w: sources.%s.api_key must be a string", ErrConfiguration, key)
		}
		r.APIKey = s
	}
	if v, ok := m["base_url"]; ok && v != nil {
		s, ok := cast.ToString(v)
		if !ok {
			return fmt.Errorf("%w: sources.%s.base_url must be a string", ErrConfiguration, key)
		}
		r.BaseURL = s
	}
	if v, ok := m["timeout"]; ok {
		d, err := seconds("sources."+key+".timeout", v)
		if err != nil {
			return err
		}
		r.Timeout = d
	}
	if v, ok := m["max_retries"]; ok {
		n, ok := cast.ToInt64(v)
		if !ok || n < 0 {
			return fmt.Errorf("%w: sources.%s.max_retries must be a non-negative integer, got %v", ErrConfiguration, key, v)
		}
		r.MaxRetries = int(n)
	}
	return nil
}

func decodeFilesystem(f *FilesystemSettings, key string, m map[string]any) error {
	if v, ok := m["base_dir"]; ok && v != nil {
		s, ok := cast.ToString(v)
		if !ok {
			return fmt.Errorf("%w: sources.%s.base_dir must be a string", ErrConfiguration, key)
		}
		f.BaseDir = s
	}
	if v, ok := m["auto_reload"]; ok {
		b, ok := cast.ToBool(v)
		if !ok {
			return fmt.Errorf("%w: sources.%s.auto_reload must be a boolean", ErrConfiguration, key)
		}
		f.AutoReload = b
	}
	return nil
}

func decodePrompt(name string, raw any, defaultSource SourceType) (PromptConfig, error) {
	m, ok := cast.ToStringMap(raw)
	if !ok {
		return PromptConfig{}, fmt.Errorf("%w: prompt %q must be a mapping", ErrConfiguration, name)
	}
	source := defaultSource
	if v, ok := m["source"]; ok && v != nil {
		s, ok := cast.ToString(v)
		if !ok {
			return PromptConfig{}, fmt.Errorf("%w: prompt %q: source must be a string", ErrConfiguration, name)
		}
		source = SourceType(s)
	}
	if source == "" {
		return PromptConfig{}, fmt.Errorf("%w: prompt %q has no source and no default_source is set", ErrConfiguration, name)
	}
	var ttl *time.Duration
	sourceConfig := make(map[string]any)
	for key, v := range m {
		switch key {
		case "source":
		case "cache_ttl":
			if v == nil {
				continue
			}
			d, err := seconds("prompts."+name+".cache_ttl", v)
			if err != nil {
				return PromptConfig{}, err
			}
			ttl = &d
		case "id", KeyPromptID:
			s, ok := cast.ToString(v)
			if !ok {
				return PromptConfig{}, fmt.Errorf("%w: prompt %q: %s must be a string", ErrConfiguration, name, key)
			}
			sourceConfig[KeyPromptID] = s
		case KeyVersion:
			s, ok := cast.ToString(v)
			if !ok {
				return PromptConfig{}, fmt.Errorf("%w: prompt %q: version must be a scalar", ErrConfiguration, name)
			}
			sourceConfig[KeyVersion] = s
		default:
			sourceConfig[key] = v
		}
	}
	return NewPromptConfig(name, source, sourceConfig, ttl)
}

// seconds reads an integer number of seconds. Go duration strings ("45s")
// are accepted as well.
func seconds(field string, v any) (time.Duration, error) {
	if n, ok := cast.ToInt64(v); ok {
		if n < 0 {
			return 0, fmt.Errorf("%w: %s must not be negative, got %d", ErrConfiguration, field, n)
		}
		return time.Duration(n) * time.Second, nil
	}
	if s, ok := v.(string); ok {
		d, err := time.ParseDuration(strings.TrimSpace(s))
		if err == nil && d >= 0 {
			return d, nil
		}
	}
	return 0, fmt.Errorf("%w: %s must be a whole number of seconds, got %v", ErrConfiguration, field, v)
}
