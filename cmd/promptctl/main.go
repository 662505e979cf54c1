// Command promptctl resolves, lists and validates prompts configured through
// a config file or PROMPT_MANAGER_* environment variables.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/skosovsky/promptmgr"
	"github.com/skosovsky/promptmgr/config"
	"github.com/skosovsky/promptmgr/manager"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// managerFunc builds a Manager. mode overrides the configured startup
// validation when non-empty.
type managerFunc func(ctx context.Context, mode promptmgr.ValidationMode) (*manager.Manager, error)

func newRootCmd() *cobra.Command {
	var configPath string
	var verbose bool

	newMgr := func(ctx context.Context, mode promptmgr.ValidationMode) (*manager.Manager, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		if mode != "" {
			cfg.ValidationMode = mode
		}
		return manager.New(ctx, cfg, manager.WithLogger(newLogger(verbose)))
	}

	cmd := &cobra.Command{
		Use:           "promptctl",
		Short:         "Resolve and validate managed prompts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML, JSON or TOML config file (default: environment)")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output to stderr")

	cmd.AddCommand(newGetCmd(newMgr))
	cmd.AddCommand(newListCmd(newMgr))
	cmd.AddCommand(newValidateCmd(newMgr))
	cmd.AddCommand(newSourcesCmd(newMgr))
	cmd.AddCommand(newVarsCmd(newMgr))
	return cmd
}

// newLogger writes JSON logs to stderr so stdout carries only prompt text.
func newLogger(verbose bool) *zap.Logger {
	level := zapcore.WarnLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "ts"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(os.Stderr), level)
	return zap.New(core).Named("promptctl")
}

func newGetCmd(newMgr managerFunc) *cobra.Command {
	var version string
	var vars []string
	var def string

	cmd := &cobra.Command{
		Use:   "get <name>",
		Short: "Print a prompt with variables substituted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			variables, err := parseVars(vars)
			if err != nil {
				return err
			}
			m, err := newMgr(cmd.Context(), "")
			if err != nil {
				return err
			}
			opts := []manager.GetOption{manager.WithVariables(variables)}
			if version != "" {
				opts = append(opts, manager.WithVersion(version))
			}
			if cmd.Flags().Changed("default") {
				opts = append(opts, manager.WithDefault(def))
			}
			text, err := m.Get(cmd.Context(), args[0], opts...)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}
	cmd.Flags().StringVar(&version, "version", "", "prompt version to fetch")
	cmd.Flags().StringArrayVar(&vars, "var", nil, "substitution variable as key=value (repeatable)")
	cmd.Flags().StringVar(&def, "default", "", "text to print when the prompt cannot be resolved")
	return cmd
}

func newListCmd(newMgr managerFunc) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List registered prompts",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := newMgr(cmd.Context(), "")
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			names := m.ListPrompts()
			if len(names) == 0 {
				fmt.Fprintln(out, "no prompts registered")
				return nil
			}
			for _, name := range names {
				p, err := m.Prompt(name)
				if err != nil {
					continue
				}
				line := fmt.Sprintf("- %s (%s)", name, p.Source)
				if id, ok := p.SourceConfig[promptmgr.KeyPromptID]; ok {
					line += fmt.Sprintf(" id=%v", id)
				}
				if path, ok := p.SourceConfig[promptmgr.KeyPath]; ok {
					line += fmt.Sprintf(" path=%v", path)
				}
				if p.CacheTTL != nil {
					line += fmt.Sprintf(" ttl=%s", *p.CacheTTL)
				}
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
}

func newValidateCmd(newMgr managerFunc) *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check configuration and, with --mode load_test, that every prompt loads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var vm promptmgr.ValidationMode
			if mode != "" {
				parsed, err := promptmgr.ParseValidationMode(mode)
				if err != nil {
					return err
				}
				vm = parsed
			}
			// Startup validation of the chosen mode runs inside New.
			m, err := newMgr(cmd.Context(), vm)
			if err != nil {
				return err
			}
			vm = m.Config().ValidationMode
			if vm == promptmgr.ValidationNone && mode == "" {
				vm = promptmgr.ValidationConfigOnly
				if err := m.Validate(cmd.Context(), vm); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d prompts passed %s validation\n", len(m.ListPrompts()), vm)
			return nil
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "", "none, env_only or load_test (default: configured mode)")
	return cmd
}

func newSourcesCmd(newMgr managerFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "Show available sources, formats and the sources in use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := newMgr(cmd.Context(), promptmgr.ValidationNone)
			if err != nil {
				return err
			}
			caps := m.Capabilities()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "available: %s\n", joinSources(caps.Sources))
			fmt.Fprintf(out, "in use:    %s\n", joinSources(m.SourcesInUse()))
			fmt.Fprintf(out, "formats:   %s\n", strings.Join(caps.Formats, " "))
			return nil
		},
	}
}

func newVarsCmd(newMgr managerFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "vars <name>",
		Short: "List the {placeholders} a prompt expects",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := newMgr(cmd.Context(), "")
			if err != nil {
				return err
			}
			text, err := m.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, name := range promptmgr.Placeholders(text) {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

func parseVars(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	vars := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --var %q, want key=value", p)
		}
		vars[k] = v
	}
	return vars, nil
}

func joinSources(ts []promptmgr.SourceType) string {
	if len(ts) == 0 {
		return "-"
	}
	s := make([]string, len(ts))
	for i, t := range ts {
		s[i] = string(t)
	}
	return strings.Join(s, " ")
}
