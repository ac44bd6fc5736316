package tabs

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/dgnsrekt/tabtunnel/internal/engine"
)

const defaultTitleTimeout = 2 * time.Second

// Registry owns the ordered tab collection and the active-tab pointer.
// Once a tab has been created the registry is never observably empty:
// closing the last tab replaces it with a fresh active one.
//
// Registry is not safe for concurrent use; all calls must come from the
// goroutine its Dispatcher posts to.
type Registry struct {
	engine       engine.Engine
	dispatch     Dispatcher
	listener     Listener
	startURL     string
	titleTimeout time.Duration

	tabs     []*Tab
	activeID int
	nextID   int
}

type Option func(*Registry)

// WithStartURL sets the neutral page new surfaces open on.
func WithStartURL(u string) Option {
	return func(r *Registry) { r.startURL = u }
}

// WithListener sets the callback for applied session events.
func WithListener(l Listener) Option {
	return func(r *Registry) { r.listener = l }
}

// WithTitleTimeout bounds document-title reads after load-complete.
func WithTitleTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.titleTimeout = d
		}
	}
}

func NewRegistry(eng engine.Engine, d Dispatcher, opts ...Option) *Registry {
	if eng == nil {
		eng = engine.Unavailable{}
	}
	if d == nil {
		d = Inline
	}
	r := &Registry{
		engine:       eng,
		dispatch:     d,
		startURL:     "about:blank",
		titleTimeout: defaultTitleTimeout,
		nextID:       1,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create allocates a new tab and appends it. The tab becomes active when
// activate is set or when it is the only tab.
func (r *Registry) Create(ctx context.Context, activate bool) *Tab {
	tab := &Tab{ID: r.nextID, Title: DefaultTitle, Loading: true}
	r.nextID++
	tab.session = newSession(ctx, r.engine, r.startURL, tab, r.dispatch, r.listener, r.titleTimeout)
	r.tabs = append(r.tabs, tab)
	slog.Info("tab created", "tab_id", tab.ID, "activate", activate, "tabs", len(r.tabs))

	if activate || len(r.tabs) == 1 {
		r.SwitchActive(ctx, tab.ID)
	} else {
		tab.session.setVisible(ctx, false)
	}
	return tab
}

// Close removes the tab with id and tears down its session. Unknown ids are
// ignored. When the active tab closes, its left neighbour (or the new first
// tab) becomes active; closing the last tab creates a replacement.
func (r *Registry) Close(ctx context.Context, id int) {
	idx := r.indexOf(id)
	if idx < 0 {
		slog.Debug("close ignored, tab not found", "tab_id", id)
		return
	}
	tab := r.tabs[idx]
	r.tabs = slices.Delete(slices.Clone(r.tabs), idx, idx+1)
	tab.session.teardown()
	slog.Info("tab closed", "tab_id", id, "tabs", len(r.tabs))

	if r.activeID != id {
		return
	}
	r.activeID = 0
	if len(r.tabs) > 0 {
		r.SwitchActive(ctx, r.tabs[max(0, idx-1)].ID)
		return
	}
	r.Create(ctx, true)
}

// SwitchActive makes id the active tab and shows only its surface. It
// reports whether anything changed; unknown or already-active ids are no-ops.
func (r *Registry) SwitchActive(ctx context.Context, id int) bool {
	if r.indexOf(id) < 0 || r.activeID == id {
		return false
	}
	r.activeID = id
	for _, t := range r.tabs {
		t.session.setVisible(ctx, t.ID == id)
	}
	slog.Debug("tab activated", "tab_id", id)
	return true
}

func (r *Registry) Find(id int) (*Tab, bool) {
	idx := r.indexOf(id)
	if idx < 0 {
		return nil, false
	}
	return r.tabs[idx], true
}

func (r *Registry) Active() (*Tab, bool) {
	return r.Find(r.activeID)
}

func (r *Registry) ActiveID() int {
	return r.activeID
}

// Tabs returns the tabs in display order.
func (r *Registry) Tabs() []*Tab {
	return slices.Clone(r.tabs)
}

func (r *Registry) Len() int {
	return len(r.tabs)
}

// Reset tears down every tab. The registry is empty until the next Create;
// ids keep increasing.
func (r *Registry) Reset() {
	for _, t := range r.tabs {
		t.session.teardown()
	}
	slog.Info("tab registry reset", "closed", len(r.tabs))
	r.tabs = nil
	r.activeID = 0
}

func (r *Registry) indexOf(id int) int {
	return slices.IndexFunc(r.tabs, func(t *Tab) bool { return t.ID == id })
}
