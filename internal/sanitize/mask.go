// Package sanitize redacts secret-like values from text before it is logged or persisted.
package sanitize

import "regexp"

// Redacted replaces every masked value.
const Redacted = "***"

// secretParam matches key=value pairs whose key looks secret, in query strings, form bodies and
// "key: value" log fragments. The key itself is kept so the log line stays useful.
var secretParam = regexp.MustCompile(`(?i)((?:[a-z0-9_\-]*)(?:token|secret|password|passwd|signature|authentifizierung|apikey|api_key)(?:[a-z0-9_\-]*))(\s*[=:]\s*)("[^"]*"|[^&\s"',;]+)`)

var bearer = regexp.MustCompile(`(?i)(bearer\s+)[a-z0-9\-._~+/]+=*`)

// transferURL matches the pull callback parameter, raw or URL-encoded. Its last path segment is
// the signed document token.
var transferURL = regexp.MustCompile(`(?i)(filetransferurl\s*[=:]\s*)([^&\s"',;]+)`)

var pathSeparator = regexp.MustCompile(`(?i)/|%2F`)

var documentToken = regexp.MustCompile(`(?i)(/exports/documents/)[^\s"'&?#/]+`)

// Mask returns text with secret-like parameter values replaced by Redacted.
func Mask(text string) string {
	if text == "" {
		return text
	}
	masked := secretParam.ReplaceAllString(text, "${1}${2}"+Redacted)
	masked = bearer.ReplaceAllString(masked, "${1}"+Redacted)
	masked = transferURL.ReplaceAllStringFunc(masked, func(match string) string {
		parts := transferURL.FindStringSubmatch(match)
		return parts[1] + maskLastSegment(parts[2])
	})
	return documentToken.ReplaceAllString(masked, "${1}"+Redacted)
}

func maskLastSegment(value string) string {
	separators := pathSeparator.FindAllStringIndex(value, -1)
	if len(separators) == 0 {
		return Redacted
	}
	return value[:separators[len(separators)-1][1]] + Redacted
}

// MaskPtr masks and returns a pointer, nil for empty input.
func MaskPtr(text string) *string {
	if text == "" {
		return nil
	}
	masked := Mask(text)
	return &masked
}
