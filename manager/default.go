package manager

import (
	"context"
	"sync"

	"github.com/skosovsky/promptmgr/config"
)

var (
	defaultMu  sync.Mutex
	defaultMgr *Manager
)

// FromEnv builds a Manager from PROMPT_MANAGER_* and PROMPT_<NAME>_*
// environment variables.
func FromEnv(ctx context.Context, opts ...Option) (*Manager, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, err
	}
	return New(ctx, cfg, opts...)
}

// Default returns the process-wide Manager, building it from the environment
// on first use. A failed build is not remembered.
func Default(ctx context.Context) (*Manager, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultMgr != nil {
		return defaultMgr, nil
	}
	m, err := FromEnv(ctx)
	if err != nil {
		return nil, err
	}
	defaultMgr = m
	return m, nil
}

// SetDefault installs m as the process-wide Manager.
func SetDefault(m *Manager) {
	defaultMu.Lock()
	defaultMgr = m
	defaultMu.Unlock()
}

// ResetDefault forgets the process-wide Manager; the next Default call
// rebuilds it. Intended for tests.
func ResetDefault() {
	SetDefault(nil)
}

// GetPrompt is Get on the process-wide Manager.
func GetPrompt(ctx context.Context, name string, opts ...GetOption) (string, error) {
	m, err := Default(ctx)
	if err != nil {
		return "", err
	}
	return m.Get(ctx, name, opts...)
}
