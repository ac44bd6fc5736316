package tabs

import (
	"net/url"

	"github.com/dgnsrekt/tabtunnel/internal/types"
)

const (
	// DefaultTitle is shown until the first navigation names the tab.
	DefaultTitle = "New Tab"
	// FallbackTitle is used when a navigated URL has no usable host.
	FallbackTitle = "Browsing"
)

// Tab is one browsing session with its own navigation state and surface.
type Tab struct {
	ID      int
	Title   string
	URL     string
	Loading bool

	session *Session
}

// Session returns the tab's proxy session.
func (t *Tab) Session() *Session {
	return t.session
}

func (t *Tab) View(active bool) types.TabView {
	return types.TabView{
		ID:      t.ID,
		Title:   t.Title,
		URL:     t.URL,
		Loading: t.Loading,
		Active:  active,
	}
}

// HostTitle derives a tab title from the host of an absolute URL.
func HostTitle(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", types.NewError(types.CodeUnparseableURL, "parse navigated url", err)
	}
	if !u.IsAbs() || u.Hostname() == "" {
		return "", types.NewError(types.CodeUnparseableURL, "navigated url has no host: "+raw, nil)
	}
	return u.Hostname(), nil
}

func titleForURL(raw string) string {
	title, err := HostTitle(raw)
	if err != nil {
		return FallbackTitle
	}
	return title
}
