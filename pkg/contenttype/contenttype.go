// Package contenttype classifies declared request content types into the
// body kinds that field-level minimization can act on.
package contenttype

import (
	"mime"
	"strings"
)

// Kind is the body encoding a request declares.
type Kind string

const (
	JSON Kind = "json"
	Form Kind = "form"
	Raw  Kind = "raw"
)

// Classify returns the body kind for a content-type header value.
// Uses mime.ParseMediaType to strip parameters (charset, boundary, etc.)
// before matching. Falls back to strings.ToLower for malformed values.
// Returns Raw for empty content-type strings.
func Classify(contentType string) Kind {
	if contentType == "" {
		return Raw
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}

	// JSON: application/json, application/vnd.*+json, any containing "json"
	if strings.Contains(mediaType, "json") {
		return JSON
	}

	// Form: application/x-www-form-urlencoded
	if mediaType == "application/x-www-form-urlencoded" {
		return Form
	}

	return Raw
}

// Resolve returns the kind to use given a configured mode. Modes "json"
// and "form" force the kind; anything else ("auto", "") classifies the
// declared content type.
func Resolve(mode string, declared string) Kind {
	switch strings.ToLower(mode) {
	case string(JSON):
		return JSON
	case string(Form):
		return Form
	default:
		return Classify(declared)
	}
}
