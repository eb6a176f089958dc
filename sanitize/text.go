// Package sanitize strips executable markup and protocol-injected links from
// user-supplied page content. All functions are pure and never fail: unsafe
// input is downgraded, not rejected.
package sanitize

import (
	"io"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// maxPasses bounds the fixpoint loop in Text. Each changing pass removes at
// least one forbidden construct, so real input settles in two or three.
const maxPasses = 16

// blockedElements are dropped together with everything inside them. The
// tokenizer reads style and title bodies as raw text, but inside svg or math
// a browser parses them as markup, so foreign content goes as a whole.
var blockedElements = map[string]bool{
	"script": true,
	"iframe": true,
	"frame":  true,
	"object": true,
	"embed":  true,
	"style":  true,
	"svg":    true,
	"math":   true,
}

// Browsers ignore tabs and newlines inside a scheme, so "java\tscript:" counts.
var javascriptScheme = regexp.MustCompile(`(?i)j[\t\n\r]*a[\t\n\r]*v[\t\n\r]*a[\t\n\r]*s[\t\n\r]*c[\t\n\r]*r[\t\n\r]*i[\t\n\r]*p[\t\n\r]*t[\t\n\r]*:`)

// linkAttributes are attributes a browser dereferences as URLs.
var linkAttributes = map[string]bool{
	"href":       true,
	"src":        true,
	"action":     true,
	"formaction": true,
	"poster":     true,
	"xlink:href": true,
}

// Text removes script-like elements, inline event handler attributes and
// javascript: scheme occurrences, then trims surrounding whitespace.
// Text(Text(s)) == Text(s) for every s.
func Text(s string) string {
	cur := s
	for i := 0; i < maxPasses; i++ {
		next := textPass(cur)
		if next == cur {
			return cur
		}
		cur = next
	}
	// Still changing: input is adversarial. Empty is a fixpoint.
	return ""
}

func textPass(s string) string {
	s = stripMarkup(s)
	s = javascriptScheme.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// stripMarkup walks s as HTML tokens. Text and harmless tags are copied byte
// for byte; blocked elements are skipped to their end tag; tags carrying
// on* attributes are re-rendered without them.
func stripMarkup(s string) string {
	if !strings.ContainsRune(s, '<') {
		return s
	}
	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	b.Grow(len(s))
	skip := "" // name of the blocked element being skipped
	depth := 0

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if z.Err() != io.EOF {
				return ""
			}
			return b.String()
		}
		raw := z.Raw()

		if skip != "" {
			name, _ := z.TagName()
			switch {
			case tt == html.StartTagToken && string(name) == skip:
				depth++
			case tt == html.EndTagToken && string(name) == skip:
				depth--
				if depth == 0 {
					skip = ""
				}
			}
			continue
		}

		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			if !validName(tok.Data) {
				continue
			}
			if blockedElements[tok.Data] {
				if tt == html.StartTagToken {
					skip = tok.Data
					depth = 1
				}
				continue
			}
			if clean, changed := cleanTag(tok); changed {
				b.WriteString(clean.String())
				continue
			}
			b.Write(raw)
		case html.EndTagToken:
			name, _ := z.TagName()
			if blockedElements[string(name)] || !validName(string(name)) {
				continue
			}
			b.Write(raw)
		default:
			b.Write(raw)
		}
	}
}

// validName accepts tag and attribute names a browser would treat as plain
// identifiers. Names like "scr<script" come from broken markup and are dropped.
func validName(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '_', c == ':', c == '.':
		default:
			return false
		}
	}
	return true
}

func isEventHandler(key string) bool {
	return len(key) > 2 && strings.HasPrefix(strings.ToLower(key), "on")
}

// cleanTag drops event handler attributes, malformed attribute names, and link
// attributes pointing at a denied scheme, and strips javascript: from the
// remaining values. Attribute values arrive entity-decoded, so encoded schemes
// are caught too; values holding markup are re-rendered escaped.
func cleanTag(tok html.Token) (html.Token, bool) {
	changed := false
	kept := make([]html.Attribute, 0, len(tok.Attr))
	for _, a := range tok.Attr {
		if isEventHandler(a.Key) || !validName(a.Key) {
			changed = true
			continue
		}
		if linkAttributes[strings.ToLower(a.Key)] && hasDeniedScheme(a.Val) {
			changed = true
			continue
		}
		if v := javascriptScheme.ReplaceAllString(a.Val, ""); v != a.Val {
			a.Val = v
			changed = true
		}
		if strings.ContainsAny(a.Val, "<>") {
			changed = true
		}
		kept = append(kept, a)
	}
	tok.Attr = kept
	return tok, changed
}
