// Package navigation turns free-form address-bar input into a navigable URL.
package navigation

import (
	"net/url"
	"strings"
	"unicode"
)

// DefaultSearchTemplate receives the percent-encoded query in place of %s.
const DefaultSearchTemplate = "https://search.brave.com/search?q=%s"

// Resolver classifies address-bar input. The zero value uses
// DefaultSearchTemplate.
type Resolver struct {
	SearchTemplate string
}

func NewResolver(searchTemplate string) Resolver {
	return Resolver{SearchTemplate: searchTemplate}
}

// Resolve maps trimmed input to a URL. ok is false for empty input, which
// callers treat as "do nothing".
//
// Input that already begins with "http" passes through; input with a dot
// and no whitespace is taken as a host and gets https://; everything else
// becomes a search.
func (r Resolver) Resolve(input string) (target string, ok bool) {
	if input == "" {
		return "", false
	}
	if strings.HasPrefix(input, "http") {
		return input, true
	}
	if strings.Contains(input, ".") && !strings.ContainsFunc(input, unicode.IsSpace) {
		return "https://" + input, true
	}
	return r.searchURL(input), true
}

func (r Resolver) searchURL(query string) string {
	tmpl := r.SearchTemplate
	if tmpl == "" {
		tmpl = DefaultSearchTemplate
	}
	encoded := EncodeComponent(query)
	if !strings.Contains(tmpl, "%s") {
		return tmpl + encoded
	}
	return strings.Replace(tmpl, "%s", encoded, 1)
}

// componentUnescaper restores the marks a browser leaves bare in a URI
// component, and turns the query form's '+' back into %20.
var componentUnescaper = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)

// EncodeComponent percent-encodes s for use inside a query value, leaving
// A-Z a-z 0-9 and - _ . ! ~ * ' ( ) unescaped.
func EncodeComponent(s string) string {
	return componentUnescaper.Replace(url.QueryEscape(s))
}
