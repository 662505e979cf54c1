package remotesource

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v3"

	"github.com/skosovsky/promptmgr"
)

type failureClass int

const (
	classGeneric failureClass = iota
	classNotFound
	classRateLimit
	classTimeout
)

// classify maps one attempt's failure to a retry class. Typed signals are
// checked first; message matching covers failures that only report text.
// For API errors only the server-provided message is matched, so request
// URLs in the formatted error cannot skew the result.
func classify(err error) failureClass {
	if errors.Is(err, promptmgr.ErrPromptNotFound) || errors.Is(err, errEmptyPrompt) {
		return classNotFound
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return classTimeout
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusNotFound:
			return classNotFound
		case http.StatusTooManyRequests:
			return classRateLimit
		case http.StatusRequestTimeout, http.StatusGatewayTimeout:
			return classTimeout
		}
		return classifyMessage(apiErr.Message)
	}
	return classifyMessage(err.Error())
}

func classifyMessage(s string) failureClass {
	msg := strings.ToLower(s)
	switch {
	case strings.Contains(msg, "not found"), strings.Contains(msg, "404"):
		return classNotFound
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "too many requests"):
		return classRateLimit
	case strings.Contains(msg, "timeout"):
		return classTimeout
	}
	return classGeneric
}
