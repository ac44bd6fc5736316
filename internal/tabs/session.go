package tabs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgnsrekt/tabtunnel/internal/engine"
	"github.com/google/uuid"
)

// Dispatcher runs fn on the goroutine that owns tab state.
type Dispatcher interface {
	Post(fn func())
}

// DispatchFunc adapts a function to Dispatcher.
type DispatchFunc func(fn func())

func (f DispatchFunc) Post(fn func()) { f(fn) }

// Inline runs posted functions immediately on the caller's goroutine.
var Inline Dispatcher = DispatchFunc(func(fn func()) { fn() })

// Listener is told about every lifecycle event applied to a tab.
type Listener func(tab *Tab, kind engine.EventKind)

// Session wraps one engine surface and owns a single tab's navigation
// lifecycle. A session without a surface (engine unavailable) accepts every
// call as a no-op.
type Session struct {
	key          string
	tab          *Tab
	surface      engine.Surface
	unsubscribe  func()
	listener     Listener
	titleTimeout time.Duration
	closed       bool
}

func newSession(ctx context.Context, eng engine.Engine, startURL string, tab *Tab, d Dispatcher, l Listener, titleTimeout time.Duration) *Session {
	s := &Session{
		key:          uuid.NewString(),
		tab:          tab,
		listener:     l,
		titleTimeout: titleTimeout,
	}

	surface, err := eng.CreateSurface(ctx, s.key, startURL)
	if err != nil {
		slog.Warn("tab surface unavailable, running degraded", "tab_id", tab.ID, "session", s.key, "error", err)
		return s
	}
	s.surface = surface
	s.unsubscribe = surface.Subscribe(func(ev engine.Event) {
		d.Post(func() { s.handle(ev) })
	})
	slog.Debug("tab session created", "tab_id", tab.ID, "session", s.key, "start_url", startURL)
	return s
}

// Key is the random identifier the surface was created under.
func (s *Session) Key() string { return s.key }

// Live reports whether the session has a surface and has not been torn down.
func (s *Session) Live() bool {
	return s.surface != nil && !s.closed
}

func (s *Session) handle(ev engine.Event) {
	if s.closed {
		slog.Debug("dropping event for closed tab", "tab_id", s.tab.ID, "event", ev.Kind.String())
		return
	}

	switch ev.Kind {
	case engine.NavigationStart:
		s.tab.URL = ev.URL
		s.tab.Loading = true
		s.tab.Title = titleForURL(ev.URL)
	case engine.LoadComplete:
		s.tab.Loading = false
		if title := s.documentTitle(); title != "" {
			s.tab.Title = title
		}
	default:
		return
	}

	slog.Debug("tab event", "tab_id", s.tab.ID, "event", ev.Kind.String(), "url", s.tab.URL, "loading", s.tab.Loading)
	if s.listener != nil {
		s.listener(s.tab, ev.Kind)
	}
}

// documentTitle returns the in-page title, or "" when it cannot be read.
func (s *Session) documentTitle() string {
	ctx, cancel := context.WithTimeout(context.Background(), s.titleTimeout)
	defer cancel()

	title, err := s.surface.Title(ctx)
	if err != nil {
		if !errors.Is(err, engine.ErrUnreadableDocument) {
			slog.Debug("document title read failed", "tab_id", s.tab.ID, "error", err)
		}
		return ""
	}
	return title
}

func (s *Session) Navigate(ctx context.Context, dest string) error {
	if !s.Live() {
		return nil
	}
	if err := s.surface.Go(ctx, dest); err != nil {
		return fmt.Errorf("navigate tab %d: %w", s.tab.ID, err)
	}
	return nil
}

func (s *Session) Back(ctx context.Context) error {
	if !s.Live() {
		return nil
	}
	return s.surface.Back(ctx)
}

func (s *Session) Forward(ctx context.Context) error {
	if !s.Live() {
		return nil
	}
	return s.surface.Forward(ctx)
}

func (s *Session) Reload(ctx context.Context) error {
	if !s.Live() {
		return nil
	}
	return s.surface.Reload(ctx)
}

// InjectScript loads an inspection script into the current document.
func (s *Session) InjectScript(ctx context.Context, src string) error {
	if !s.Live() || src == "" {
		return nil
	}
	return s.surface.InjectScript(ctx, src)
}

func (s *Session) setVisible(ctx context.Context, visible bool) {
	if !s.Live() {
		return
	}
	if err := s.surface.SetVisible(ctx, visible); err != nil {
		slog.Debug("surface visibility change failed", "tab_id", s.tab.ID, "visible", visible, "error", err)
	}
}

// teardown unsubscribes from the surface and detaches it. Events already
// queued for this session are dropped by handle.
func (s *Session) teardown() {
	if s.closed {
		return
	}
	s.closed = true
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	if s.surface != nil {
		if err := s.surface.Detach(); err != nil {
			slog.Debug("surface detach failed", "tab_id", s.tab.ID, "session", s.key, "error", err)
		}
	}
	slog.Debug("tab session torn down", "tab_id", s.tab.ID, "session", s.key)
}
