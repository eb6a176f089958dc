package sanitize

import (
	"html"
	"net/url"
	"regexp"
	"strings"
)

// Fallback is the link used in place of a rejected URL.
const Fallback = "#"

var deniedSchemes = []string{"javascript:", "data:", "vbscript:", "file:"}

// passthroughSchemes are kept without forcing an https prefix.
var passthroughSchemes = map[string]bool{
	"http":   true,
	"https":  true,
	"mailto": true,
	"tel":    true,
	"sms":    true,
}

var (
	schemePrefix = regexp.MustCompile(`^([a-zA-Z][a-zA-Z0-9+.\-]*):`)
	hostPort     = regexp.MustCompile(`^[a-zA-Z0-9.\-]+:\d+(/|\?|#|$)`)
)

// probe reduces u to the form a browser would use to pick a scheme: entities
// decoded, control characters and whitespace removed, lower-cased.
func probe(u string) string {
	u = html.UnescapeString(u)
	var b strings.Builder
	b.Grow(len(u))
	for _, r := range u {
		if r <= ' ' || r == 0x7f {
			continue
		}
		b.WriteRune(r)
	}
	return strings.ToLower(b.String())
}

func hasDeniedScheme(u string) bool {
	p := probe(u)
	for _, s := range deniedSchemes {
		if strings.HasPrefix(p, s) {
			return true
		}
	}
	return false
}

// URL returns a normalized, absolute form of u and true, or "" and false when
// u is empty, malformed, or uses a denied scheme (javascript:, data:,
// vbscript:, file:). Scheme-less hosts default to https. Site-relative links
// ("/", "#", "?") are kept relative.
func URL(u string) (string, bool) {
	u = strings.TrimSpace(u)
	if u == "" || hasDeniedScheme(u) {
		return "", false
	}
	if strings.ContainsAny(u, "\x00\t\n\r") {
		return "", false
	}

	switch {
	case strings.HasPrefix(u, "//"):
		u = "https:" + u
	case strings.HasPrefix(u, "/"), strings.HasPrefix(u, "#"), strings.HasPrefix(u, "?"):
		if _, err := url.Parse(u); err != nil {
			return "", false
		}
		return u, true
	case hasExplicitScheme(u):
		// keep
	case hostPort.MatchString(u):
		u = "https://" + u
	case schemePrefix.MatchString(u):
		// unknown scheme; normalize requires a host
	default:
		u = "https://" + u
	}
	return normalize(u)
}

// hasExplicitScheme reports a known scheme, or any scheme followed by "//".
func hasExplicitScheme(u string) bool {
	m := schemePrefix.FindStringSubmatch(u)
	if m == nil {
		return false
	}
	return passthroughSchemes[strings.ToLower(m[1])] || strings.HasPrefix(u[len(m[0]):], "//")
}

func normalize(raw string) (string, bool) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	parsed.Scheme = strings.ToLower(parsed.Scheme)
	if !passthroughSchemes[parsed.Scheme] && parsed.Host == "" {
		return "", false
	}
	if (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host == "" {
		return "", false
	}
	parsed.Host = strings.ToLower(parsed.Host)
	out := parsed.String()
	if hasDeniedScheme(out) {
		return "", false
	}
	return out, true
}

// URLOr returns the sanitized form of u, or fallback when u is rejected.
func URLOr(u, fallback string) string {
	if clean, ok := URL(u); ok {
		return clean
	}
	return fallback
}

// Link sanitizes an optional link: empty stays empty, anything else is
// sanitized with Fallback as the replacement.
func Link(u string) string {
	if strings.TrimSpace(u) == "" {
		return ""
	}
	return URLOr(u, Fallback)
}
