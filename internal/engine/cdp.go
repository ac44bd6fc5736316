package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// CDPEngine renders surfaces as Chromium pages driven over the DevTools
// protocol. Each surface is a separate browser target.
type CDPEngine struct {
	cdpURL      string
	codec       Codec
	evalTimeout time.Duration

	mu            sync.Mutex
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

func NewCDPEngine(cdpURL string, codec Codec, evalTimeout time.Duration) *CDPEngine {
	return &CDPEngine{cdpURL: cdpURL, codec: codec, evalTimeout: evalTimeout}
}

// Connect attaches to the browser at the configured CDP URL.
func (e *CDPEngine) Connect(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	slog.Info("engine connecting to Chromium", "url", e.cdpURL)
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.Background(), e.cdpURL)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// The browser context must outlive ctx, so the first Run is raced
	// against it rather than derived from it.
	done := make(chan error, 1)
	go func() { done <- chromedp.Run(browserCtx) }()
	select {
	case err := <-done:
		if err != nil {
			browserCancel()
			allocCancel()
			return fmt.Errorf("failed to connect to browser: %w", err)
		}
	case <-ctx.Done():
		browserCancel()
		allocCancel()
		return fmt.Errorf("failed to connect to browser: %w", ctx.Err())
	}

	e.allocCancel = allocCancel
	e.browserCtx = browserCtx
	e.browserCancel = browserCancel
	slog.Info("engine connected", "url", e.cdpURL, "proxy_root", e.codec.root())
	return nil
}

func (e *CDPEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.browserCancel != nil {
		e.browserCancel()
	}
	if e.allocCancel != nil {
		e.allocCancel()
	}
	e.browserCtx = nil
	slog.Info("engine closed")
	return nil
}

func (e *CDPEngine) CreateSurface(ctx context.Context, name, startURL string) (Surface, error) {
	e.mu.Lock()
	browserCtx := e.browserCtx
	e.mu.Unlock()
	if browserCtx == nil {
		return nil, ErrUnavailable
	}

	tabCtx, tabCancel := chromedp.NewContext(browserCtx)
	s := &cdpSurface{
		name:        name,
		codec:       e.codec,
		evalTimeout: e.evalTimeout,
		ctx:         tabCtx,
		cancel:      tabCancel,
		subs:        make(map[int]func(Event)),
	}
	chromedp.ListenTarget(tabCtx, s.onTargetEvent)

	// The first Run allocates the target and binds it to tabCtx's lifetime,
	// so it must not run under a derived timeout context.
	done := make(chan error, 1)
	go func() { done <- chromedp.Run(tabCtx, chromedp.Navigate(startURL)) }()
	select {
	case err := <-done:
		if err != nil {
			tabCancel()
			return nil, fmt.Errorf("create surface %s: %w", name, err)
		}
	case <-ctx.Done():
		tabCancel()
		return nil, ctx.Err()
	}

	slog.Debug("engine surface created", "surface", name, "start_url", startURL)
	return s, nil
}

type cdpSurface struct {
	name        string
	codec       Codec
	evalTimeout time.Duration
	ctx         context.Context
	cancel      context.CancelFunc

	mu       sync.Mutex
	subs     map[int]func(Event)
	nextSub  int
	detached bool
	// pending holds events emitted before the first subscriber, such as the
	// start page's load event fired while CreateSurface is still running.
	pending []Event
}

const maxPendingEvents = 16

func (s *cdpSurface) onTargetEvent(ev any) {
	switch e := ev.(type) {
	case *page.EventFrameNavigated:
		if e.Frame == nil || e.Frame.ParentID != "" {
			return
		}
		dest, ok := s.codec.Decode(e.Frame.URL)
		if !ok {
			return
		}
		s.emit(Event{Kind: NavigationStart, URL: dest})
	case *page.EventNavigatedWithinDocument:
		if dest, ok := s.codec.Decode(e.URL); ok {
			s.emit(Event{Kind: NavigationStart, URL: dest})
			s.emit(Event{Kind: LoadComplete})
		}
	case *page.EventLoadEventFired:
		s.emit(Event{Kind: LoadComplete})
	}
}

func (s *cdpSurface) emit(ev Event) {
	s.mu.Lock()
	if s.detached {
		s.mu.Unlock()
		return
	}
	if s.nextSub == 0 {
		if len(s.pending) < maxPendingEvents {
			s.pending = append(s.pending, ev)
		}
		s.mu.Unlock()
		return
	}
	fns := make([]func(Event), 0, len(s.subs))
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

// Subscribe registers fn. The first subscriber also receives any events
// that arrived before it.
func (s *cdpSurface) Subscribe(fn func(Event)) func() {
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

// run executes actions on the surface's target, bounded by the evaluation
// timeout and by the caller's context.
func (s *cdpSurface) run(ctx context.Context, actions ...chromedp.Action) error {
	s.mu.Lock()
	detached := s.detached
	s.mu.Unlock()
	if detached {
		return fmt.Errorf("surface %s detached", s.name)
	}

	runCtx, cancel := context.WithTimeout(s.ctx, s.evalTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

// evalStatement runs a JS statement that returns true once issued. Using
// script navigation instead of Page.navigate keeps the call from blocking
// until the destination finishes loading.
func (s *cdpSurface) evalStatement(ctx context.Context, js string) error {
	var ok bool
	if err := s.run(ctx, chromedp.Evaluate(js, &ok)); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("surface %s: statement not acknowledged", s.name)
	}
	return nil
}

func (s *cdpSurface) Go(ctx context.Context, dest string) error {
	target, err := json.Marshal(s.codec.Encode(dest))
	if err != nil {
		return err
	}
	return s.evalStatement(ctx, fmt.Sprintf("(window.location.assign(%s), true)", target))
}

func (s *cdpSurface) Back(ctx context.Context) error {
	return s.evalStatement(ctx, "(history.back(), true)")
}

func (s *cdpSurface) Forward(ctx context.Context) error {
	return s.evalStatement(ctx, "(history.forward(), true)")
}

func (s *cdpSurface) Reload(ctx context.Context) error {
	return s.evalStatement(ctx, "(location.reload(), true)")
}

func (s *cdpSurface) Title(ctx context.Context) (string, error) {
	var title string
	if err := s.run(ctx, chromedp.Title(&title)); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreadableDocument, err)
	}
	return title, nil
}

// SetVisible brings the target to the front when shown. Background targets
// keep running untouched, so hiding is a no-op at the protocol level.
func (s *cdpSurface) SetVisible(ctx context.Context, visible bool) error {
	if !visible {
		return nil
	}
	return s.run(ctx, page.BringToFront())
}

func (s *cdpSurface) InjectScript(ctx context.Context, src string) error {
	quoted, err := json.Marshal(src)
	if err != nil {
		return err
	}
	js := fmt.Sprintf(`(function(){
  var el = document.createElement("script");
  el.src = %s;
  el.onload = function(){ if (window.eruda) { window.eruda.init(); window.eruda.show(); } };
  document.body.appendChild(el);
  return true;
})()`, quoted)
	return s.evalStatement(ctx, js)
}

func (s *cdpSurface) Detach() error {
	s.mu.Lock()
	if s.detached {
		s.mu.Unlock()
		return nil
	}
	s.detached = true
	s.subs = make(map[int]func(Event))
	s.mu.Unlock()

	err := chromedp.Cancel(s.ctx)
	s.cancel()
	if err != nil {
		return fmt.Errorf("detach surface %s: %w", s.name, err)
	}
	return nil
}
