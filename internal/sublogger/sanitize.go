package sublogger

import (
	"regexp"
	"strings"
)

const (
	// RedactedPlaceholder replaces credential-like values in body snippets.
	RedactedPlaceholder = "[REDACTED]"

	maxSnippetSource = 64 * 1024
	maxSnippetLength = 1000
)

var textualTypes = []string{
	"text/",
	"application/json",
	"application/xml",
	"application/javascript",
	"application/x-www-form-urlencoded",
}

// Credential-like fields in JSON bodies and form-encoded pairs.
var (
	jsonCredentialPattern = regexp.MustCompile(`(?i)("(?:[a-z0-9_-]*)?(?:password|passwd|token|secret|api[_-]?key|auth)(?:[a-z0-9_-]*)?"\s*:\s*)"[^"]*"`)
	formCredentialPattern = regexp.MustCompile(`(?i)\b((?:password|passwd|token|secret|api[_-]?key|auth)[a-z0-9_-]*=)[^&\s]+`)
)

// CaptureSnippet extracts a sanitized response-body snippet. Snippets are
// captured only for textual content types under the size ceiling, truncated at
// a fixed length, with credential-like fields redacted in place.
func CaptureSnippet(payload []byte, contentType string) string {
	if len(payload) == 0 || len(payload) > maxSnippetSource {
		return ""
	}
	if !isTextual(contentType) {
		return ""
	}

	// Redact before truncating: cutting first could leave the prefix of a
	// credential value that straddles the length cap.
	snippet := string(payload)
	snippet = jsonCredentialPattern.ReplaceAllString(snippet, `$1"`+RedactedPlaceholder+`"`)
	snippet = formCredentialPattern.ReplaceAllString(snippet, "$1"+RedactedPlaceholder)
	if len(snippet) > maxSnippetLength {
		snippet = snippet[:maxSnippetLength]
	}
	return snippet
}

func isTextual(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if ct == "" {
		return false
	}
	for _, prefix := range textualTypes {
		if strings.HasPrefix(ct, prefix) {
			return true
		}
	}
	return false
}
