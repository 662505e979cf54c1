package promptmgr

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// SourceType names a prompt backend variant.
type SourceType string

// Supported source variants.
const (
	SourceRemoteAPI  SourceType = "openai"
	SourceFilesystem SourceType = "local"
)

// SourceTypes lists every recognized variant in a stable order.
func SourceTypes() []SourceType {
	return []SourceType{SourceRemoteAPI, SourceFilesystem}
}

// ParseSourceType converts s to a SourceType, case-insensitively.
// "remote" and "filesystem" are accepted as aliases.
func ParseSourceType(s string) (SourceType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(SourceRemoteAPI), "remote":
		return SourceRemoteAPI, nil
	case string(SourceFilesystem), "filesystem":
		return SourceFilesystem, nil
	}
	names := make([]string, 0, 2)
	for _, t := range SourceTypes() {
		names = append(names, string(t))
	}
	return "", fmt.Errorf("%w: invalid source type %q, valid types are: %s",
		ErrConfiguration, s, strings.Join(names, ", "))
}

// Well-known source_config keys.
const (
	KeyPromptID = "prompt_id"
	KeyVersion  = "version"
	KeyPath     = "path"
)

// FetchRequest carries per-call retrieval parameters to a Source.
// Params holds the prompt's source_config merged with caller extras,
// without the identifier and version keys.
type FetchRequest struct {
	Version string
	Params  map[string]any
}

// Param returns Params[key] as a string, or "" when absent or not a string.
func (r FetchRequest) Param(key string) string {
	s, _ := r.Params[key].(string)
	return s
}

// Source is one prompt backend. Adapters are created already initialized and
// must be safe for concurrent use.
type Source interface {
	// Type reports the variant this adapter implements.
	Type() SourceType
	// Fetch returns prompt text for id, or an error wrapping ErrPromptNotFound
	// or ErrPromptRetrieval.
	Fetch(ctx context.Context, id string, req FetchRequest) (string, error)
	// Exists reports whether id resolves to content without surfacing it.
	Exists(ctx context.Context, id string, req FetchRequest) (bool, error)
}

// Purger is optional. Sources with an adapter-local cache implement it so
// Manager.ClearCache can drop that cache too.
type Purger interface {
	Purge()
}

// ExistsByFetch is the default existence strategy: attempt retrieval.
// Not-found maps to (false, nil); any other failure is returned.
func ExistsByFetch(ctx context.Context, src Source, id string, req FetchRequest) (bool, error) {
	_, err := src.Fetch(ctx, id, req)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrPromptNotFound) {
		return false, nil
	}
	return false, err
}

// Capabilities describes which backends and file formats are available,
// resolved once when a manager is built.
type Capabilities struct {
	Sources []SourceType
	Formats []string
}

// HasSource reports whether t is among the available sources.
func (c Capabilities) HasSource(t SourceType) bool {
	return slices.Contains(c.Sources, t)
}
