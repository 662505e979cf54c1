package manager

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"go.uber.org/zap"

	"github.com/skosovsky/promptmgr"
)

// Validate checks the manager in the given mode; "" uses the configured mode.
//
// ValidationConfigOnly reports missing credentials, relative paths without a
// base directory and remote prompts without a prompt_id, with no I/O.
// ValidationLoadTest additionally checks that every registered prompt exists
// in its source. All issues of a stage are collected into one
// *promptmgr.ValidationError.
func (m *Manager) Validate(ctx context.Context, mode promptmgr.ValidationMode) error {
	if mode == "" {
		mode = m.cfg.ValidationMode
	}
	switch mode {
	case "", promptmgr.ValidationNone:
		return nil
	case promptmgr.ValidationConfigOnly, promptmgr.ValidationLoadTest:
	default:
		return fmt.Errorf("%w: unknown validation mode %q", promptmgr.ErrConfiguration, mode)
	}
	m.logger.Info("validating prompt manager", zap.String("mode", string(mode)))

	prompts := m.registry.All()
	issues := m.cfg.ValidateSources(prompts)
	issues = append(issues, m.registry.Validate()...)
	if len(issues) > 0 {
		return &promptmgr.ValidationError{Stage: "configuration", Issues: issues}
	}

	if mode == promptmgr.ValidationLoadTest {
		if issues := m.loadTest(ctx, prompts); len(issues) > 0 {
			return &promptmgr.ValidationError{Stage: "prompt loading", Issues: issues}
		}
	}
	m.logger.Info("validation completed", zap.String("mode", string(mode)), zap.Int("prompts", len(prompts)))
	return nil
}

func (m *Manager) loadTest(ctx context.Context, prompts map[string]promptmgr.PromptConfig) []string {
	var issues []string
	for _, name := range slices.Sorted(maps.Keys(prompts)) {
		cfg := prompts[name]
		src, err := m.source(ctx, cfg.Source)
		if err != nil {
			issues = append(issues, fmt.Sprintf("failed to validate prompt %q: %v", name, err))
			continue
		}
		id, req := fetchRequest(cfg, getOptions{})
		ok, err := src.Exists(ctx, id, req)
		switch {
		case err != nil:
			issues = append(issues, fmt.Sprintf("failed to validate prompt %q: %v", name, err))
		case !ok:
			issues = append(issues, fmt.Sprintf("prompt %q not found in %s source", name, cfg.Source))
		}
	}
	return issues
}
