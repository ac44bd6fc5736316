// Package enginetest provides an in-memory engine.Engine for tests.
package enginetest

import (
	"context"
	"errors"
	"sync"

	"github.com/dgnsrekt/tabtunnel/internal/engine"
)

// Engine records every surface it creates.
type Engine struct {
	mu       sync.Mutex
	surfaces []*Surface
	// Fail makes CreateSurface return engine.ErrUnavailable.
	Fail bool
	// Title is the document title new surfaces report.
	Title string
	// TitleErr, when set, is returned by Title on new surfaces.
	TitleErr error
	// LoadOnCreate makes new surfaces fire load-complete for the start page
	// before anyone subscribes, as Chromium does while the surface is
	// being created.
	LoadOnCreate bool
}

func New() *Engine {
	return &Engine{}
}

func (e *Engine) CreateSurface(ctx context.Context, name, startURL string) (engine.Surface, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Fail {
		return nil, engine.ErrUnavailable
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := &Surface{
		Name:     name,
		StartURL: startURL,
		subs:     make(map[int]func(engine.Event)),
		title:    e.Title,
		titleErr: e.TitleErr,
	}
	if e.LoadOnCreate {
		s.Loaded()
	}
	e.surfaces = append(e.surfaces, s)
	return s, nil
}

// Surfaces returns the surfaces created so far, in creation order.
func (e *Engine) Surfaces() []*Surface {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Surface(nil), e.surfaces...)
}

// Last returns the most recently created surface.
func (e *Engine) Last() *Surface {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.surfaces) == 0 {
		return nil
	}
	return e.surfaces[len(e.surfaces)-1]
}

// Surface is a scriptable engine.Surface.
type Surface struct {
	Name     string
	StartURL string

	mu          sync.Mutex
	subs        map[int]func(engine.Event)
	nextSub     int
	title       string
	titleErr    error
	visible     bool
	visibleSets int
	detached    bool
	calls       []string
	navigations []string
	injected    []string
	pending     []engine.Event
}

var errDetached = errors.New("enginetest: surface detached")

func (s *Surface) record(call string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.detached {
		return errDetached
	}
	s.calls = append(s.calls, call)
	return nil
}

func (s *Surface) Go(_ context.Context, dest string) error {
	if err := s.record("go"); err != nil {
		return err
	}
	s.mu.Lock()
	s.navigations = append(s.navigations, dest)
	s.mu.Unlock()
	return nil
}

func (s *Surface) Back(context.Context) error    { return s.record("back") }
func (s *Surface) Forward(context.Context) error { return s.record("forward") }
func (s *Surface) Reload(context.Context) error  { return s.record("reload") }

func (s *Surface) Title(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.titleErr != nil {
		return "", s.titleErr
	}
	return s.title, nil
}

func (s *Surface) SetVisible(_ context.Context, visible bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visible = visible
	s.visibleSets++
	return nil
}

func (s *Surface) InjectScript(_ context.Context, src string) error {
	if err := s.record("inject"); err != nil {
		return err
	}
	s.mu.Lock()
	s.injected = append(s.injected, src)
	s.mu.Unlock()
	return nil
}

func (s *Surface) Subscribe(fn func(engine.Event)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	backlog := s.pending
	s.pending = nil
	s.mu.Unlock()
	for _, ev := range backlog {
		fn(ev)
	}
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Surface) Detach() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detached = true
	return nil
}

// Emit delivers ev to current subscribers, as the engine would. Events
// emitted before the first Subscribe are held for it. Unlike a real surface
// it ignores the detached flag, so tests can simulate events that race with
// teardown.
func (s *Surface) Emit(ev engine.Event) {
	s.mu.Lock()
	if s.nextSub == 0 {
		s.pending = append(s.pending, ev)
		s.mu.Unlock()
		return
	}
	fns := make([]func(engine.Event), 0, len(s.subs))
	for i := 0; i < s.nextSub; i++ {
		if fn, ok := s.subs[i]; ok {
			fns = append(fns, fn)
		}
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// Navigated emits a navigation-start event for dest.
func (s *Surface) Navigated(dest string) {
	s.Emit(engine.Event{Kind: engine.NavigationStart, URL: dest})
}

// Loaded emits a load-complete event.
func (s *Surface) Loaded() {
	s.Emit(engine.Event{Kind: engine.LoadComplete})
}

// SetTitle changes the document title reported by Title.
func (s *Surface) SetTitle(title string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.title = title
	s.titleErr = err
}

func (s *Surface) Visible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visible
}

// VisibilitySets counts SetVisible calls.
func (s *Surface) VisibilitySets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visibleSets
}

func (s *Surface) Detached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detached
}

func (s *Surface) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *Surface) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *Surface) Navigations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.navigations...)
}

func (s *Surface) Injected() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.injected...)
}
