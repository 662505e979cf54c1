package remotesource

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"go.uber.org/zap"

	"github.com/skosovsky/promptmgr"
)

// Ensures Source implements promptmgr.Source and promptmgr.Purger.
var (
	_ promptmgr.Source = (*Source)(nil)
	_ promptmgr.Purger = (*Source)(nil)
)

// responsesPath is the endpoint, relative to the client base URL, that
// resolves a stored prompt reference.
const responsesPath = "responses"

// requestIDHeader carries the per-fetch request id.
const requestIDHeader = "X-Client-Request-Id"

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Source fetches stored prompts from the OpenAI Responses API. Successful
// results are kept for the adapter's lifetime, keyed by id and version.
type Source struct {
	client     openai.Client
	timeout    time.Duration
	maxRetries int
	logger     *zap.Logger
	httpClient *http.Client
	sleep      SleepFunc
	mu         sync.RWMutex
	cache      map[string]string
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

// WithHTTPClient sets the HTTP client used by the API client. If c is nil, the default client is left unchanged.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Source) {
		if c != nil {
			s.httpClient = c
		}
	}
}

// WithSleep replaces the backoff wait, mainly for tests.
func WithSleep(fn SleepFunc) Option {
	return func(s *Source) {
		if fn != nil {
			s.sleep = fn
		}
	}
}

// New creates a Source from settings. A missing API key is reported as
// ErrSourceConnection wrapping ErrConfiguration.
func New(settings promptmgr.RemoteSettings, opts ...Option) (*Source, error) {
	s := &Source{
		timeout:    settings.Timeout,
		maxRetries: max(settings.MaxRetries, 1),
		logger:     zap.NewNop(),
		sleep:      sleepContext,
		cache:      make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	if strings.TrimSpace(settings.APIKey) == "" {
		return nil, fmt.Errorf("%w: %w: OpenAI API key not configured, set PROMPT_MANAGER_OPENAI_API_KEY",
			promptmgr.ErrSourceConnection, promptmgr.ErrConfiguration)
	}
	clientOpts := []option.RequestOption{
		option.WithAPIKey(settings.APIKey),
		option.WithMaxRetries(0), // retries are classified here
	}
	if settings.BaseURL != "" {
		base := settings.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		clientOpts = append(clientOpts, option.WithBaseURL(base))
	}
	if s.httpClient != nil {
		clientOpts = append(clientOpts, option.WithHTTPClient(s.httpClient))
	}
	if s.timeout > 0 {
		clientOpts = append(clientOpts, option.WithRequestTimeout(s.timeout))
	}
	s.client = openai.NewClient(clientOpts...)
	s.logger.Info("openai prompt source initialized", zap.Int("max_retries", s.maxRetries))
	return s, nil
}

// Type returns promptmgr.SourceRemoteAPI.
func (s *Source) Type() promptmgr.SourceType { return promptmgr.SourceRemoteAPI }

// Fetch resolves the stored prompt id, retrying per failure class.
// Rate-limit failures wait 2^attempt seconds before the next attempt; timeouts
// and other failures are retried immediately. Not-found is never retried.
func (s *Source) Fetch(ctx context.Context, id string, req promptmgr.FetchRequest) (string, error) {
	key := cacheKey(id, req.Version)
	s.mu.RLock()
	text, ok := s.cache[key]
	s.mu.RUnlock()
	if ok {
		s.logger.Debug("openai cache hit", zap.String("prompt", id), zap.String("cache_key", key))
		return text, nil
	}

	var lastErr error
	for attempt := range s.maxRetries {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		requestID := uuid.NewString()
		log := s.logger.With(
			zap.String("prompt", id),
			zap.String("version", versionOrLatest(req.Version)),
			zap.Int("attempt", attempt+1),
			zap.String("request_id", requestID))
		log.Debug("retrieving prompt")

		text, err := s.fetchOnce(ctx, id, req.Version, requestID)
		if err == nil {
			s.mu.Lock()
			s.cache[key] = text
			s.mu.Unlock()
			log.Info("prompt retrieved")
			return text, nil
		}
		lastErr = err
		last := attempt == s.maxRetries-1

		switch classify(err) {
		case classNotFound:
			return "", promptmgr.NewPromptError(promptmgr.ErrPromptNotFound, id, promptmgr.SourceRemoteAPI, err)
		case classRateLimit:
			if last {
				return "", promptmgr.NewPromptError(promptmgr.ErrRateLimit, id, promptmgr.SourceRemoteAPI,
					fmt.Errorf("rate limit exceeded after %d attempts: %w", s.maxRetries, err))
			}
			wait := time.Duration(1<<attempt) * time.Second
			log.Warn("rate limited, backing off", zap.Duration("wait", wait), zap.Error(err))
			if err := s.sleep(ctx, wait); err != nil {
				return "", err
			}
		case classTimeout:
			if last {
				return "", promptmgr.NewPromptError(promptmgr.ErrTimeout, id, promptmgr.SourceRemoteAPI,
					fmt.Errorf("request timed out after %d attempts: %w", s.maxRetries, err))
			}
			log.Warn("request timed out, retrying", zap.Error(err))
		default:
			if !last {
				log.Warn("request failed, retrying", zap.Error(err))
			}
		}
	}
	return "", promptmgr.NewPromptError(promptmgr.ErrPromptRetrieval, id, promptmgr.SourceRemoteAPI, lastErr)
}

// Exists attempts a retrieval; not-found maps to false.
func (s *Source) Exists(ctx context.Context, id string, req promptmgr.FetchRequest) (bool, error) {
	return promptmgr.ExistsByFetch(ctx, s, id, req)
}

// Purge drops every cached prompt.
func (s *Source) Purge() {
	s.mu.Lock()
	s.cache = make(map[string]string)
	s.mu.Unlock()
}

type promptRef struct {
	ID      string `json:"id"`
	Version string `json:"version,omitempty"`
}

type responsesRequest struct {
	Prompt promptRef `json:"prompt"`
}

func (s *Source) fetchOnce(ctx context.Context, id, version, requestID string) (string, error) {
	body := responsesRequest{Prompt: promptRef{ID: id, Version: version}}
	var raw []byte
	if err := s.client.Post(ctx, responsesPath, body, &raw, option.WithHeader(requestIDHeader, requestID)); err != nil {
		return "", err
	}
	text, err := extractText(raw)
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", errEmptyPrompt
	}
	return text, nil
}

var errEmptyPrompt = errors.New("prompt retrieved but content is empty")

func cacheKey(id, version string) string {
	return id + ":" + versionOrLatest(version)
}

func versionOrLatest(v string) string {
	if v == "" {
		return "latest"
	}
	return v
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
