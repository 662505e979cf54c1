package remotesource

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// responseShapes are the JSON paths probed, in order, for the prompt text.
var responseShapes = []string{
	"instructions.0.content.0.text",
	"content",
	"text",
}

var errUnexpectedShape = errors.New("unexpected response structure")

// extractText returns the string at the first matching shape. A body that is
// not JSON or matches no shape is an error; callers treat "" as not found.
func extractText(body []byte) (string, error) {
	if !gjson.ValidBytes(body) {
		return "", fmt.Errorf("failed to parse OpenAI response: invalid JSON")
	}
	for _, path := range responseShapes {
		r := gjson.GetBytes(body, path)
		if r.Type == gjson.String {
			return r.Str, nil
		}
	}
	return "", fmt.Errorf("failed to parse OpenAI response: %w", errUnexpectedShape)
}
