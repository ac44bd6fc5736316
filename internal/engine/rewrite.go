package engine

import (
	"net/url"
	"strings"
)

// Codec maps destination URLs to the rewriting proxy's URL space and back.
// A proxied URL has the form <Base><Prefix><query-escaped destination>.
type Codec struct {
	Base   string
	Prefix string
}

// NewCodec normalizes base and prefix so that Encode never produces doubled
// or missing slashes.
func NewCodec(base, prefix string) Codec {
	prefix = "/" + strings.Trim(prefix, "/") + "/"
	if prefix == "//" {
		prefix = "/"
	}
	return Codec{Base: strings.TrimRight(base, "/"), Prefix: prefix}
}

func (c Codec) root() string {
	return c.Base + c.Prefix
}

// Encode returns the proxied form of dest.
func (c Codec) Encode(dest string) string {
	return c.root() + url.QueryEscape(dest)
}

// Decode reverses Encode. ok is false when raw is not a proxied URL.
func (c Codec) Decode(raw string) (dest string, ok bool) {
	root := c.root()
	if !strings.HasPrefix(raw, root) {
		return "", false
	}
	escaped := strings.TrimPrefix(raw, root)
	if escaped == "" {
		return "", false
	}
	dest, err := url.QueryUnescape(escaped)
	if err != nil {
		return "", false
	}
	return dest, true
}
