package promptmgr

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for configuration, registry and retrieval failures.
// All use prefix "promptmgr:" for identification. Callers should use errors.Is/errors.As.
var (
	ErrConfiguration           = errors.New("promptmgr: invalid configuration")
	ErrValidation              = errors.New("promptmgr: validation failed")
	ErrSourceNotFound          = errors.New("promptmgr: source not found")
	ErrSourceConnection        = errors.New("promptmgr: source connection failed")
	ErrPromptNotFound          = errors.New("promptmgr: prompt not found")
	ErrPromptRetrieval         = errors.New("promptmgr: prompt retrieval failed")
	ErrPromptNotRegistered     = errors.New("promptmgr: prompt not registered")
	ErrPromptAlreadyRegistered = errors.New("promptmgr: prompt already registered")
	ErrRateLimit               = errors.New("promptmgr: rate limit exceeded")
	ErrTimeout                 = errors.New("promptmgr: request timed out")
	ErrMissingVariable         = errors.New("promptmgr: template variable not provided")
)

// PromptError wraps one of the sentinel kinds with prompt and source context.
// Use errors.Is(err, ErrPromptNotFound) and errors.As(err, &promptErr) to inspect.
// Err, when set, is the underlying cause and is also reachable through errors.Is.
type PromptError struct {
	Prompt string
	Source SourceType
	Kind   error
	Err    error
}

// Error implements error.
func (e *PromptError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	fmt.Fprintf(&b, ": prompt %q", e.Prompt)
	if e.Source != "" {
		fmt.Fprintf(&b, " in source %q", e.Source)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the kind and the cause for errors.Is/errors.As.
func (e *PromptError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Is reports rate-limit and timeout failures as retrieval failures too.
func (e *PromptError) Is(target error) bool {
	return target == ErrPromptRetrieval && (e.Kind == ErrRateLimit || e.Kind == ErrTimeout)
}

// NewPromptError is shorthand for &PromptError{...}.
func NewPromptError(kind error, prompt string, source SourceType, cause error) *PromptError {
	return &PromptError{Prompt: prompt, Source: source, Kind: kind, Err: cause}
}

// ValidationError aggregates every issue found by one validation stage.
type ValidationError struct {
	Stage  string
	Issues []string
}

// Error implements error.
func (e *ValidationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "promptmgr: %s validation failed:", e.Stage)
	for _, issue := range e.Issues {
		b.WriteString("\n  - ")
		b.WriteString(issue)
	}
	return b.String()
}

// Unwrap returns ErrValidation.
func (e *ValidationError) Unwrap() error { return ErrValidation }

// VariableError reports a placeholder with no value in the supplied variables.
type VariableError struct {
	Variable string
	Prompt   string
	Err      error
}

// Error implements error.
func (e *VariableError) Error() string {
	return fmt.Sprintf("promptmgr: variable %q in prompt %q: %v", e.Variable, e.Prompt, e.Err)
}

// Unwrap returns the wrapped error for errors.Is/errors.As.
func (e *VariableError) Unwrap() error { return e.Err }

// Compile-time checks that the error types implement error.
var (
	_ error = (*PromptError)(nil)
	_ error = (*ValidationError)(nil)
	_ error = (*VariableError)(nil)
)
