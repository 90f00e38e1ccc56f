package gate

import (
	"net/url"
	"strings"
)

// IntentParam is the query parameter that carries the intended destination.
const IntentParam = "redirectTo"

// Intent is the destination a visitor asked for before being sent to the entry point.
type Intent struct {
	From string `json:"from,omitempty"`
}

// Empty reports whether the intent carries no destination.
func (i Intent) Empty() bool {
	return i.From == ""
}

// ResumeTarget returns where to send the visitor after sign-in.
func (i Intent) ResumeTarget(fallback string) string {
	if i.Empty() {
		return fallback
	}
	return i.From
}

// NewIntent builds an intent for path, dropping anything that is not a safe relative
// path or that would point back at the entry point.
func NewIntent(path, entryPoint string) Intent {
	if !IsSafePath(path) || samePath(path, entryPoint) {
		return Intent{}
	}
	return Intent{From: path}
}

// IntentFromQuery reads and validates the intent carried by an entry point URL.
func IntentFromQuery(values url.Values, entryPoint string) Intent {
	return NewIntent(strings.TrimSpace(values.Get(IntentParam)), entryPoint)
}

// EntryPointURL returns the entry point with the intent attached, if any.
func EntryPointURL(entryPoint string, intent Intent) string {
	if intent.Empty() {
		return entryPoint
	}
	return entryPoint + "?" + url.Values{IntentParam: {intent.From}}.Encode()
}

// IsSafePath validates that a path is a safe relative redirect.
// It prevents open redirects by ensuring the path:
// - Starts with a single "/" (not "//")
// - Has no scheme or host component
// - Cannot be bypassed via URL encoding
func IsSafePath(path string) bool {
	if path == "" {
		return false
	}

	decoded, err := url.QueryUnescape(path)
	if err != nil {
		return false
	}

	if !strings.HasPrefix(decoded, "/") || strings.HasPrefix(decoded, "//") || strings.Contains(decoded, `\`) {
		return false
	}

	parsed, err := url.Parse(decoded)
	if err != nil {
		return false
	}

	return parsed.Scheme == "" && parsed.Host == ""
}

func samePath(a, b string) bool {
	if b == "" {
		return false
	}
	a, _, _ = strings.Cut(a, "?")
	trim := func(p string) string {
		if p == "/" {
			return p
		}
		return strings.TrimSuffix(p, "/")
	}
	return trim(a) == trim(b)
}
