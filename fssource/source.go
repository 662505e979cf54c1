package fssource

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/skosovsky/promptmgr"
)

// Ensures Source implements promptmgr.Source and promptmgr.Purger.
var (
	_ promptmgr.Source = (*Source)(nil)
	_ promptmgr.Purger = (*Source)(nil)
)

// supportedExtensions is the probe order for ids given without an extension.
var supportedExtensions = []string{".txt", ".text", ".json", ".yaml", ".yml"}

// SupportedExtensions returns the file extensions the source can decode.
func SupportedExtensions() []string {
	return append([]string(nil), supportedExtensions...)
}

type cacheEntry struct {
	content string
	modTime time.Time
}

// Source reads prompts from files. Content is cached per resolved path;
// with auto-reload a changed modification time invalidates the entry.
type Source struct {
	baseDir    string
	autoReload bool
	logger     *zap.Logger
	mu         sync.RWMutex
	cache      map[string]cacheEntry
}

// Option configures a Source.
type Option func(*Source)

// WithLogger sets the logger. Nil leaves the no-op default.
func WithLogger(l *zap.Logger) Option {
	return func(s *Source) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Source from settings. A configured base directory must exist
// and be a directory; otherwise the error wraps both ErrSourceConnection and
// ErrConfiguration.
func New(settings promptmgr.FilesystemSettings, opts ...Option) (*Source, error) {
	s := &Source{
		autoReload: settings.AutoReload,
		logger:     zap.NewNop(),
		cache:      make(map[string]cacheEntry),
	}
	for _, opt := range opts {
		opt(s)
	}
	if settings.BaseDir == "" {
		s.logger.Info("filesystem source initialized without base directory")
		return s, nil
	}
	dir, err := filepath.Abs(expandHome(settings.BaseDir))
	if err != nil {
		return nil, fmt.Errorf("%w: %w: base directory %q: %w",
			promptmgr.ErrSourceConnection, promptmgr.ErrConfiguration, settings.BaseDir, err)
	}
	info, err := os.Stat(dir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("%w: %w: prompts directory does not exist: %s",
			promptmgr.ErrSourceConnection, promptmgr.ErrConfiguration, dir)
	case err != nil:
		return nil, fmt.Errorf("%w: %w: prompts directory %s: %w",
			promptmgr.ErrSourceConnection, promptmgr.ErrConfiguration, dir, err)
	case !info.IsDir():
		return nil, fmt.Errorf("%w: %w: prompts path is not a directory: %s",
			promptmgr.ErrSourceConnection, promptmgr.ErrConfiguration, dir)
	}
	s.baseDir = dir
	s.logger.Info("filesystem source initialized", zap.String("path", dir))
	return s, nil
}

// Type returns promptmgr.SourceFilesystem.
func (s *Source) Type() promptmgr.SourceType { return promptmgr.SourceFilesystem }

// BaseDir returns the resolved base directory, or "" when none is configured.
func (s *Source) BaseDir() string { return s.baseDir }

// Fetch reads the prompt file for id. See resolve for path rules.
func (s *Source) Fetch(ctx context.Context, id string, req promptmgr.FetchRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path, info, err := s.resolve(id, req)
	if err != nil {
		return "", promptmgr.NewPromptError(promptmgr.ErrPromptNotFound, id, promptmgr.SourceFilesystem, err)
	}

	s.mu.RLock()
	ent, ok := s.cache[path]
	s.mu.RUnlock()
	if ok && (!s.autoReload || ent.modTime.Equal(info.ModTime())) {
		s.logger.Debug("filesystem cache hit", zap.String("prompt", id), zap.String("path", path))
		return ent.content, nil
	}
	if ok {
		s.logger.Debug("file modified, reloading", zap.String("prompt", id), zap.String("path", path))
	}

	data, err := os.ReadFile(path) // #nosec G304 -- path is resolved from configuration
	if errors.Is(err, fs.ErrNotExist) {
		return "", promptmgr.NewPromptError(promptmgr.ErrPromptNotFound, id, promptmgr.SourceFilesystem,
			fmt.Errorf("file not found: %s", path))
	}
	if err != nil {
		return "", promptmgr.NewPromptError(promptmgr.ErrPromptRetrieval, id, promptmgr.SourceFilesystem, err)
	}
	content, err := decode(path, data)
	if err != nil {
		return "", promptmgr.NewPromptError(promptmgr.ErrPromptRetrieval, id, promptmgr.SourceFilesystem,
			fmt.Errorf("%s: %w", path, err))
	}

	s.mu.Lock()
	s.cache[path] = cacheEntry{content: content, modTime: info.ModTime()}
	s.mu.Unlock()
	s.logger.Info("prompt loaded from file", zap.String("prompt", id), zap.String("path", path))
	return content, nil
}

// Exists reports whether id resolves to a regular file. It does not read or
// decode the file.
func (s *Source) Exists(ctx context.Context, id string, req promptmgr.FetchRequest) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, _, err := s.resolve(id, req)
	return err == nil, nil
}

// Purge drops every cached file.
func (s *Source) Purge() {
	s.mu.Lock()
	s.cache = make(map[string]cacheEntry)
	s.mu.Unlock()
}

// resolve returns the first existing regular file among the candidates for id.
//
// A "path" param overrides id and is used as given (relative to the base
// directory). Otherwise, for base path B = id (absolute, or joined to the base
// directory), the candidates are, in order: B with the version inserted before
// its extension, B's file under a version subdirectory, and B itself. When id
// has no extension, every candidate is tried with each supported extension
// and then bare.
func (s *Source) resolve(id string, req promptmgr.FetchRequest) (string, fs.FileInfo, error) {
	if override := req.Param(promptmgr.KeyPath); override != "" {
		path := s.abs(override)
		info, err := regularFile(path)
		if err != nil {
			return "", nil, err
		}
		return path, info, nil
	}
	base := s.abs(id)
	ext := filepath.Ext(base)
	var candidates []string
	if req.Version != "" {
		stem := strings.TrimSuffix(base, ext)
		candidates = append(candidates,
			stem+"."+req.Version,
			filepath.Join(filepath.Dir(base), req.Version, filepath.Base(stem)))
	}
	candidates = append(candidates, strings.TrimSuffix(base, ext))
	for _, c := range candidates {
		probes := []string{c + ext}
		if ext == "" {
			probes = probes[:0]
			for _, e := range supportedExtensions {
				probes = append(probes, c+e)
			}
			probes = append(probes, c)
		}
		for _, p := range probes {
			info, err := regularFile(p)
			if err == nil {
				return p, info, nil
			}
		}
	}
	return "", nil, fmt.Errorf("file not found: %s", base)
}

func (s *Source) abs(p string) string {
	p = expandHome(p)
	if !filepath.IsAbs(p) && s.baseDir != "" {
		p = filepath.Join(s.baseDir, p)
	}
	if a, err := filepath.Abs(p); err == nil {
		return a
	}
	return filepath.Clean(p)
}

func regularFile(path string) (fs.FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", path)
	}
	return info, nil
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
