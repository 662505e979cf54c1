package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/skosovsky/promptmgr"
)

// EnvPrefix is the namespace of manager-wide environment variables.
const EnvPrefix = "PROMPT_MANAGER"

// promptEnvPrefix and promptEnvSuffix frame per-prompt discovery variables:
// PROMPT_<NAME>_SOURCE.
const (
	promptEnvPrefix = "PROMPT_"
	promptEnvSuffix = "_SOURCE"
)

// Per-prompt fields read as PROMPT_<NAME>_<FIELD>.
var promptFields = map[string]string{
	"source":    "source",
	"id":        promptmgr.KeyPromptID,
	"version":   promptmgr.KeyVersion,
	"path":      promptmgr.KeyPath,
	"cache_ttl": "cache_ttl",
}

// Manager-wide variables (after the PROMPT_MANAGER_ prefix) and the
// configuration-mapping location each one feeds.
var globalKeys = []struct {
	env  string
	path []string
}{
	{"default_source", []string{"default_source"}},
	{"cache_enabled", []string{"cache_enabled"}},
	{"cache_ttl", []string{"cache_ttl"}},
	{"validate_on_startup", []string{"validate_on_startup"}},
	{"openai_api_key", []string{"sources", "openai", "api_key"}},
	{"openai_base_url", []string{"sources", "openai", "base_url"}},
	{"openai_timeout", []string{"sources", "openai", "timeout"}},
	{"openai_max_retries", []string{"sources", "openai", "max_retries"}},
	{"prompts_dir", []string{"sources", "local", "base_dir"}},
	{"auto_reload", []string{"sources", "local", "auto_reload"}},
}

// FromEnv reads the configuration from the environment. Manager settings use
// PROMPT_MANAGER_*; prompts are discovered from PROMPT_<NAME>_SOURCE and read
// from PROMPT_<NAME>_{SOURCE,ID,VERSION,PATH,CACHE_TTL}. Names are lowercased.
func FromEnv() (promptmgr.ManagerConfig, error) {
	return promptmgr.FromMap(envMap(os.Environ()))
}

func envMap(environ []string) map[string]any {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	m := make(map[string]any)
	for _, k := range globalKeys {
		if !v.IsSet(k.env) {
			continue
		}
		setPath(m, k.path, v.GetString(k.env))
	}

	prompts := make(map[string]any)
	for _, name := range discoverPrompts(environ) {
		pv := viper.New()
		pv.SetEnvPrefix(promptEnvPrefix + strings.ToUpper(name))
		pv.AutomaticEnv()
		p := make(map[string]any)
		for field, key := range promptFields {
			if pv.IsSet(field) {
				p[key] = pv.GetString(field)
			}
		}
		prompts[name] = p
	}
	if len(prompts) > 0 {
		m["prompts"] = prompts
	}
	return m
}

// discoverPrompts returns the lowercased names of every PROMPT_<NAME>_SOURCE
// variable outside the PROMPT_MANAGER_ namespace, sorted.
func discoverPrompts(environ []string) []string {
	seen := make(map[string]bool)
	for _, kv := range environ {
		key, _, _ := strings.Cut(kv, "=")
		if !strings.HasPrefix(key, promptEnvPrefix) || strings.HasPrefix(key, EnvPrefix+"_") {
			continue
		}
		if !strings.HasSuffix(key, promptEnvSuffix) {
			continue
		}
		name := strings.TrimSuffix(strings.TrimPrefix(key, promptEnvPrefix), promptEnvSuffix)
		if name == "" {
			continue
		}
		seen[strings.ToLower(name)] = true
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func setPath(m map[string]any, path []string, value any) {
	for _, p := range path[:len(path)-1] {
		next, ok := m[p].(map[string]any)
		if !ok {
			next = make(map[string]any)
			m[p] = next
		}
		m = next
	}
	m[path[len(path)-1]] = value
}

// tomlKeyDelimiter replaces viper's "." so quoted TOML keys such as
// "sys.v1" stay one prompt name.
const tomlKeyDelimiter = "::"

// LoadFile reads a YAML, JSON or TOML configuration file in the nested
// mapping form accepted by promptmgr.FromMap. YAML and JSON keys are kept as
// written. TOML goes through viper, which lowercases every key, so TOML
// prompt names are lowercase.
func LoadFile(path string) (promptmgr.ManagerConfig, error) {
	var (
		m   map[string]any
		err error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml", ".json":
		m, err = decodeFile(path, ext)
	default:
		v := viper.NewWithOptions(viper.KeyDelimiter(tomlKeyDelimiter))
		v.SetConfigFile(path)
		if err = v.ReadInConfig(); err == nil {
			m = v.AllSettings()
		}
	}
	if err != nil {
		return promptmgr.ManagerConfig{}, fmt.Errorf("%w: read config %s: %w", promptmgr.ErrConfiguration, path, err)
	}
	return promptmgr.FromMap(m)
}

func decodeFile(path, ext string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if ext == ".json" {
		err = json.Unmarshal(data, &m)
	} else {
		err = yaml.Unmarshal(data, &m)
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Load reads path when it is non-empty and the environment otherwise.
func Load(path string) (promptmgr.ManagerConfig, error) {
	if path != "" {
		return LoadFile(path)
	}
	return FromEnv()
}
