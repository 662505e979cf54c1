package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/skosovsky/promptmgr"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestDiscoverPrompts(t *testing.T) {
	t.Parallel()
	names := discoverPrompts([]string{
		"PROMPT_WELCOME_SOURCE=openai",
		"PROMPT_USER_ANALYSIS_SOURCE=local",
		"PROMPT_WELCOME_ID=pmpt_1",
		"PROMPT_MANAGER_DEFAULT_SOURCE=local",
		"PROMPT__SOURCE=x",
		"OTHER_SOURCE=local",
		"PATH=/usr/bin",
	})
	assert.Equal(t, []string{"user_analysis", "welcome"}, names)
}

func TestSetPath(t *testing.T) {
	t.Parallel()
	m := map[string]any{}
	setPath(m, []string{"sources", "openai", "api_key"}, "k")
	setPath(m, []string{"sources", "openai", "timeout"}, "5")
	setPath(m, []string{"cache_ttl"}, "60")
	assert.Equal(t, map[string]any{
		"sources":   map[string]any{"openai": map[string]any{"api_key": "k", "timeout": "5"}},
		"cache_ttl": "60",
	}, m)
}

func TestFromEnv(t *testing.T) {
	t.Setenv("PROMPT_MANAGER_OPENAI_API_KEY", "sk-env")
	t.Setenv("PROMPT_MANAGER_OPENAI_TIMEOUT", "45")
	t.Setenv("PROMPT_MANAGER_OPENAI_MAX_RETRIES", "5")
	t.Setenv("PROMPT_MANAGER_PROMPTS_DIR", "/srv/prompts")
	t.Setenv("PROMPT_MANAGER_CACHE_TTL", "120")
	t.Setenv("PROMPT_MANAGER_CACHE_ENABLED", "false")
	t.Setenv("PROMPT_MANAGER_VALIDATE_ON_STARTUP", "none")
	t.Setenv("PROMPT_WELCOME_SOURCE", "openai")
	t.Setenv("PROMPT_WELCOME_ID", "pmpt_welcome")
	t.Setenv("PROMPT_WELCOME_VERSION", "2")
	t.Setenv("PROMPT_WELCOME_CACHE_TTL", "30")
	t.Setenv("PROMPT_EMAIL_SOURCE", "local")
	t.Setenv("PROMPT_EMAIL_PATH", "templates/email.txt")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "sk-env", cfg.Remote.APIKey)
	assert.Equal(t, 45*time.Second, cfg.Remote.Timeout)
	assert.Equal(t, 5, cfg.Remote.MaxRetries)
	assert.Equal(t, "/srv/prompts", cfg.Filesystem.BaseDir)
	assert.Equal(t, 2*time.Minute, cfg.CacheTTL)
	assert.False(t, cfg.CacheEnabled)
	assert.Equal(t, promptmgr.ValidationNone, cfg.ValidationMode)

	welcome, ok := cfg.Prompts["welcome"]
	require.True(t, ok)
	assert.Equal(t, promptmgr.SourceRemoteAPI, welcome.Source)
	assert.Equal(t, "pmpt_welcome", welcome.SourceConfig[promptmgr.KeyPromptID])
	assert.Equal(t, "2", welcome.SourceConfig[promptmgr.KeyVersion])
	require.NotNil(t, welcome.CacheTTL)
	assert.Equal(t, 30*time.Second, *welcome.CacheTTL)

	email, ok := cfg.Prompts["email"]
	require.True(t, ok)
	assert.Equal(t, promptmgr.SourceFilesystem, email.Source)
	assert.Equal(t, "templates/email.txt", email.SourceConfig[promptmgr.KeyPath])
	_, ok = cfg.Prompts["manager_default"]
	assert.False(t, ok)
}

func TestFromEnv_InvalidNumber(t *testing.T) {
	t.Setenv("PROMPT_MANAGER_CACHE_TTL", "an hour")
	_, err := FromEnv()
	require.ErrorIs(t, err, promptmgr.ErrConfiguration)

	t.Setenv("PROMPT_MANAGER_CACHE_TTL", "60")
	t.Setenv("PROMPT_MANAGER_OPENAI_MAX_RETRIES", "3.5")
	_, err = FromEnv()
	require.ErrorIs(t, err, promptmgr.ErrConfiguration)
}

func TestFromEnv_InvalidPromptSource(t *testing.T) {
	t.Setenv("PROMPT_BROKEN_SOURCE", "s3")
	_, err := FromEnv()
	require.ErrorIs(t, err, promptmgr.ErrConfiguration)
}

func TestLoadFile_YAML(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
prompts:
  welcome_message:
    source: openai
    id: pmpt_welcome_v2
    version: "2"
  email_template:
    source: local
    path: templates/welcome_email.txt
    cache_ttl: 0
sources:
  openai:
    api_key: sk-file
    max_retries: 2
  local:
    base_dir: ./prompts
cache_ttl: 600
validate_on_startup: false
`), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-file", cfg.Remote.APIKey)
	assert.Equal(t, 2, cfg.Remote.MaxRetries)
	assert.Equal(t, "./prompts", cfg.Filesystem.BaseDir)
	assert.Equal(t, 10*time.Minute, cfg.CacheTTL)
	assert.Equal(t, promptmgr.ValidationNone, cfg.ValidationMode)
	require.Len(t, cfg.Prompts, 2)
	assert.Equal(t, "pmpt_welcome_v2", cfg.Prompts["welcome_message"].SourceConfig[promptmgr.KeyPromptID])
	require.NotNil(t, cfg.Prompts["email_template"].CacheTTL)
	assert.Zero(t, *cfg.Prompts["email_template"].CacheTTL)
}

func TestLoadFile_KeepsPromptNames(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "prompts.yml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
prompts:
  WelcomeMessage:
    source: local
    path: a.txt
  sys.v1:
    source: local
    path: sys.txt
`), 0o600))
	jsonPath := filepath.Join(dir, "prompts.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{
	"prompts": {
		"WelcomeMessage": {"source": "local", "path": "a.txt", "cache_ttl": 30},
		"sys.v1": {"source": "openai", "id": "pmpt_sys"}
	}
}`), 0o600))

	for _, path := range []string{yamlPath, jsonPath} {
		cfg, err := LoadFile(path)
		require.NoError(t, err, path)
		require.Len(t, cfg.Prompts, 2, path)
		assert.Contains(t, cfg.Prompts, "WelcomeMessage", path)
		assert.Contains(t, cfg.Prompts, "sys.v1", path)
	}

	cfg, err := LoadFile(jsonPath)
	require.NoError(t, err)
	require.NotNil(t, cfg.Prompts["WelcomeMessage"].CacheTTL)
	assert.Equal(t, 30*time.Second, *cfg.Prompts["WelcomeMessage"].CacheTTL)
	assert.Equal(t, "pmpt_sys", cfg.Prompts["sys.v1"].SourceConfig[promptmgr.KeyPromptID])
}

func TestLoadFile_TOMLQuotedDottedName(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "prompts.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[prompts."sys.v1"]
source = "local"
path = "sys.txt"

[prompts.Welcome]
source = "local"
`), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Contains(t, cfg.Prompts, "sys.v1")
	assert.Contains(t, cfg.Prompts, "welcome")
}

func TestLoadFile_TOML(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "prompts.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
cache_ttl = 60
default_source = "local"

[prompts.greeting]
path = "greeting.txt"
`), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, cfg.CacheTTL)
	assert.Equal(t, promptmgr.SourceFilesystem, cfg.Prompts["greeting"].Source)
}

func TestLoadFile_Errors(t *testing.T) {
	t.Parallel()
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, promptmgr.ErrConfiguration)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("prompts: [unclosed"), 0o600))
	_, err = LoadFile(bad)
	require.ErrorIs(t, err, promptmgr.ErrConfiguration)
}

func TestLoad_PrefersFile(t *testing.T) {
	t.Setenv("PROMPT_MANAGER_CACHE_TTL", "5")
	path := filepath.Join(t.TempDir(), "c.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"cache_ttl": 7}`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7*time.Second, cfg.CacheTTL)

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.CacheTTL)
}
