package promptmgr

import (
	"fmt"
	"regexp"
)

var placeholderRe = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Substitute replaces {key} placeholders in content with values from vars in
// a single pass. Replacement values are not rescanned and nothing is escaped.
//
// If any referenced key is missing, content is returned unchanged together
// with a *VariableError naming the first missing key. Callers that want
// best-effort behavior log the error and use the returned string.
func Substitute(content string, vars map[string]any) (string, error) {
	if len(vars) == 0 {
		return content, nil
	}
	for _, m := range placeholderRe.FindAllStringSubmatch(content, -1) {
		if _, ok := vars[m[1]]; !ok {
			return content, &VariableError{Variable: m[1], Err: ErrMissingVariable}
		}
	}
	return placeholderRe.ReplaceAllStringFunc(content, func(match string) string {
		return fmt.Sprint(vars[match[1:len(match)-1]])
	}), nil
}

// Placeholders returns the distinct placeholder names in content, in order of
// first appearance.
func Placeholders(content string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range placeholderRe.FindAllStringSubmatch(content, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			out = append(out, m[1])
		}
	}
	return out
}
