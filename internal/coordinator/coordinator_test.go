package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dgnsrekt/tabtunnel/internal/engine"
	"github.com/dgnsrekt/tabtunnel/internal/engine/enginetest"
	"github.com/dgnsrekt/tabtunnel/internal/navigation"
	"github.com/dgnsrekt/tabtunnel/internal/settings"
	"github.com/dgnsrekt/tabtunnel/internal/tunnel"
	"github.com/dgnsrekt/tabtunnel/internal/types"
)

type stubInterceptor struct {
	mu        sync.Mutex
	attachErr error
	attached  bool
	posts     []tunnel.ConfigMessage
}

func (s *stubInterceptor) Attach(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attachErr != nil {
		return s.attachErr
	}
	s.attached = true
	return nil
}

func (s *stubInterceptor) Attached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attached
}

func (s *stubInterceptor) Post(msg tunnel.ConfigMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts = append(s.posts, msg)
	return nil
}

func (s *stubInterceptor) endpoints() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, m := range s.posts {
		out = append(out, m.Endpoint)
	}
	return out
}

type transportCall struct{ transport, endpoint string }

type stubTransport struct {
	mu    sync.Mutex
	err   error
	calls []transportCall
}

func (s *stubTransport) SetTransport(_ context.Context, transport, endpoint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, transportCall{transport, endpoint})
	return s.err
}

func (s *stubTransport) Calls() []transportCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]transportCall(nil), s.calls...)
}

type stubRenderer struct {
	mu    sync.Mutex
	views []types.View
}

func (r *stubRenderer) Render(v types.View) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.views = append(r.views, v)
}

func (r *stubRenderer) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.views)
}

type harness struct {
	c     *Coordinator
	eng   *enginetest.Engine
	ic    *stubInterceptor
	tr    *stubTransport
	rend  *stubRenderer
	store *settings.Store
}

func newHarness(t *testing.T, mutate ...func(*Options)) *harness {
	t.Helper()
	h := &harness{
		eng:  enginetest.New(),
		ic:   &stubInterceptor{},
		tr:   &stubTransport{},
		rend: &stubRenderer{},
	}
	store, err := settings.NewStore(t.TempDir(), settings.WithBroadcaster(h.ic))
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	h.store = store

	opts := Options{
		Engine:             h.eng,
		Store:              store,
		Interceptor:        h.ic,
		Transport:          h.tr,
		Renderer:           h.rend,
		Resolver:           navigation.NewResolver(""),
		DevtoolsScript:     "https://cdn.jsdelivr.net/npm/eruda",
		ProgressResetDelay: time.Hour,
	}
	for _, fn := range mutate {
		fn(&opts)
	}
	h.c = New(opts)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.c.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

func (h *harness) state(t *testing.T) types.View {
	t.Helper()
	v, err := h.c.State(context.Background())
	if err != nil {
		t.Fatalf("State() error = %v", err)
	}
	return v
}

func TestStartupPushesEndpointAndOpensTab(t *testing.T) {
	h := newHarness(t)
	v := h.state(t)

	if len(v.Tabs) != 1 || v.ActiveID != v.Tabs[0].ID || !v.Tabs[0].Active {
		t.Fatalf("startup view = %+v; want exactly one active tab", v)
	}
	if got := h.ic.endpoints(); len(got) != 1 || got[0] != settings.DefaultEndpoint {
		t.Fatalf("interceptor config posts = %v; want [%s]", got, settings.DefaultEndpoint)
	}
	calls := h.tr.Calls()
	if len(calls) != 1 || calls[0] != (transportCall{tunnel.DefaultTransport, settings.DefaultEndpoint}) {
		t.Fatalf("transport calls = %+v", calls)
	}
	if v.Endpoint != settings.DefaultEndpoint {
		t.Fatalf("view endpoint = %q; want %q", v.Endpoint, settings.DefaultEndpoint)
	}
	if v.Progress != progressStarted {
		t.Fatalf("progress = %d; want %d while the start page loads", v.Progress, progressStarted)
	}
	if h.rend.count() == 0 {
		t.Fatalf("renderer never called")
	}
}

func TestStartupDegradedCollaborators(t *testing.T) {
	h := newHarness(t, func(o *Options) {
		o.Interceptor = &stubInterceptor{attachErr: errors.New("no service worker")}
		o.Transport = &stubTransport{err: errors.New("refused")}
		o.Engine = &enginetest.Engine{Fail: true}
	})

	v := h.state(t)
	if len(v.Tabs) != 1 {
		t.Fatalf("tabs = %d; want 1 even with unavailable collaborators", len(v.Tabs))
	}
}

func TestSubmitEndToEnd(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.state(t)
	surface := h.eng.Last()

	target, err := h.c.Submit(ctx, "openai.com")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if target != "https://openai.com" {
		t.Fatalf("Submit() target = %q; want https://openai.com", target)
	}
	if got := surface.Navigations(); len(got) != 1 || got[0] != "https://openai.com" {
		t.Fatalf("surface navigations = %v", got)
	}

	surface.Navigated("https://openai.com")
	v := h.state(t)
	tab := v.Tabs[0]
	if tab.URL != "https://openai.com" || !tab.Loading || tab.Title != "openai.com" {
		t.Fatalf("tab after navigation start = %+v", tab)
	}
	if v.Address != "https://openai.com" || v.Progress != progressStarted {
		t.Fatalf("view after navigation start = address %q progress %d", v.Address, v.Progress)
	}

	surface.Loaded()
	v = h.state(t)
	if v.Tabs[0].Loading {
		t.Fatalf("tab still loading after load complete")
	}
	if v.Progress != progressComplete {
		t.Fatalf("progress = %d; want %d", v.Progress, progressComplete)
	}
}

func TestSubmitEmptyInputIsNoop(t *testing.T) {
	h := newHarness(t)
	h.state(t)

	target, err := h.c.Submit(context.Background(), "   ")
	if err != nil || target != "" {
		t.Fatalf("Submit(blank) = %q, %v; want no-op", target, err)
	}
	if got := h.eng.Last().Navigations(); len(got) != 0 {
		t.Fatalf("navigations = %v; want none", got)
	}
}

func TestInactiveTabDoesNotDriveIndicator(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.state(t)
	first := h.eng.Last()
	first.Loaded()

	second, err := h.c.NewTab(ctx)
	if err != nil {
		t.Fatalf("NewTab() error = %v", err)
	}
	secondSurface := h.eng.Last()
	secondSurface.Loaded()
	if v := h.state(t); v.ActiveID != second.ID || v.Progress != progressComplete {
		t.Fatalf("after loading new tab: active %d progress %d", v.ActiveID, v.Progress)
	}

	// Background tab starts loading; the indicator must not move.
	first.Navigated("https://example.com")
	v := h.state(t)
	if v.Progress != progressComplete {
		t.Fatalf("progress = %d after background navigation; want %d", v.Progress, progressComplete)
	}
	if v.Address != "" {
		t.Fatalf("address = %q; want active tab url", v.Address)
	}

	if err := h.c.SelectTab(ctx, v.Tabs[0].ID); err != nil {
		t.Fatalf("SelectTab() error = %v", err)
	}
	v = h.state(t)
	if v.Progress != progressStarted || v.Address != "https://example.com" {
		t.Fatalf("after switching to loading tab: progress %d address %q", v.Progress, v.Address)
	}

	if err := h.c.SelectTab(ctx, second.ID); err != nil {
		t.Fatalf("SelectTab() error = %v", err)
	}
	if v := h.state(t); v.Progress != 0 {
		t.Fatalf("after switching to idle tab: progress %d; want 0", v.Progress)
	}
}

func TestProgressResetsAfterDelay(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.ProgressResetDelay = 10 * time.Millisecond })
	h.state(t)
	h.eng.Last().Loaded()

	deadline := time.Now().Add(2 * time.Second)
	for {
		v := h.state(t)
		if v.Progress == 0 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("progress = %d; never reset to 0", v.Progress)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestProgressResetSupersededByNavigation(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.ProgressResetDelay = 20 * time.Millisecond })
	h.state(t)
	surface := h.eng.Last()

	surface.Loaded()
	surface.Navigated("https://example.com")
	time.Sleep(80 * time.Millisecond)

	if v := h.state(t); v.Progress != progressStarted {
		t.Fatalf("progress = %d; stale reset must not clear a newer navigation", v.Progress)
	}
}

func TestCloseActiveTabActivatesNeighbour(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.state(t)
	h.c.NewTab(ctx)
	third, _ := h.c.NewTab(ctx)

	if err := h.c.CloseTab(ctx, third.ID); err != nil {
		t.Fatalf("CloseTab() error = %v", err)
	}
	v := h.state(t)
	if len(v.Tabs) != 2 || v.ActiveID != v.Tabs[1].ID {
		t.Fatalf("after close: %+v; want the left neighbour active", v)
	}

	for _, tab := range v.Tabs {
		h.c.CloseTab(ctx, tab.ID)
	}
	v = h.state(t)
	if len(v.Tabs) != 1 || v.ActiveID != v.Tabs[0].ID {
		t.Fatalf("closing every tab left %+v; want one fresh active tab", v)
	}
}

func TestUnknownTabIDsIgnored(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	before := h.state(t)

	if err := h.c.SelectTab(ctx, 999); err != nil {
		t.Fatalf("SelectTab(unknown) error = %v", err)
	}
	if err := h.c.CloseTab(ctx, 999); err != nil {
		t.Fatalf("CloseTab(unknown) error = %v", err)
	}
	after := h.state(t)
	if after.ActiveID != before.ActiveID || len(after.Tabs) != len(before.Tabs) {
		t.Fatalf("state changed: before %+v after %+v", before, after)
	}
}

func TestHistoryAndDevtoolsTargetActiveTab(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.state(t)
	first := h.eng.Last()
	h.c.NewTab(ctx)
	second := h.eng.Last()

	h.c.Back(ctx)
	h.c.Forward(ctx)
	h.c.Reload(ctx)
	if err := h.c.Devtools(ctx); err != nil {
		t.Fatalf("Devtools() error = %v", err)
	}

	if got := first.Calls(); len(got) != 0 {
		t.Fatalf("inactive tab calls = %v; want none", got)
	}
	want := []string{"back", "forward", "reload", "inject"}
	got := second.Calls()
	if len(got) != len(want) {
		t.Fatalf("active tab calls = %v; want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("active tab calls = %v; want %v", got, want)
		}
	}
	if inj := second.Injected(); len(inj) != 1 || inj[0] != "https://cdn.jsdelivr.net/npm/eruda" {
		t.Fatalf("injected = %v", inj)
	}
}

func TestHandleMessage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.state(t)
	surface := h.eng.Last()

	if err := h.c.HandleMessage(ctx, types.Message{Type: "resize", URL: "ignored.com"}); err != nil {
		t.Fatalf("HandleMessage(resize) error = %v", err)
	}
	if err := h.c.HandleMessage(ctx, types.Message{Type: types.MessageNavigate, URL: "hello world"}); err != nil {
		t.Fatalf("HandleMessage(navigate) error = %v", err)
	}
	got := surface.Navigations()
	if len(got) != 1 || got[0] != "https://search.brave.com/search?q=hello%20world" {
		t.Fatalf("navigations = %v; want a single search navigation", got)
	}
}

func TestDeepLinkConsumedOnce(t *testing.T) {
	h := newHarness(t, func(o *Options) {
		o.LaunchURL = "http://127.0.0.1:8190/#https%3A%2F%2Fexample.com%2Fdocs"
	})
	ctx := context.Background()
	h.state(t)

	first := h.eng.Last()
	if got := first.Navigations(); len(got) != 1 || got[0] != "https://example.com/docs" {
		t.Fatalf("deep link navigations = %v", got)
	}
	if got := h.c.LaunchURL(); got != "http://127.0.0.1:8190/" {
		t.Fatalf("LaunchURL() = %q; want fragment stripped", got)
	}

	if err := h.c.SaveSettings(ctx, "wss://other.test/wisp/"); err != nil {
		t.Fatalf("SaveSettings() error = %v", err)
	}
	h.state(t)
	if got := h.eng.Last().Navigations(); len(got) != 0 {
		t.Fatalf("deep link replayed after reload: %v", got)
	}
}

func TestSaveSettingsHardResets(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	before := h.state(t)
	h.c.NewTab(ctx)
	old := h.eng.Surfaces()

	if err := h.c.SaveSettings(ctx, "wss://other.test/wisp/"); err != nil {
		t.Fatalf("SaveSettings() error = %v", err)
	}
	v := h.state(t)

	if len(v.Tabs) != 1 || v.Tabs[0].ID == before.ActiveID {
		t.Fatalf("after reload: %+v; want one fresh tab", v)
	}
	for _, s := range old {
		if !s.Detached() {
			t.Fatalf("surface %s survived reload", s.Name)
		}
	}
	if v.Endpoint != "wss://other.test/wisp/" {
		t.Fatalf("view endpoint = %q", v.Endpoint)
	}
	// broadcast from the store, then the startup push after reload
	want := []string{settings.DefaultEndpoint, "wss://other.test/wisp/", "wss://other.test/wisp/"}
	got := h.ic.endpoints()
	if len(got) != len(want) {
		t.Fatalf("config posts = %v; want %v", got, want)
	}
	calls := h.tr.Calls()
	if last := calls[len(calls)-1]; last.endpoint != "wss://other.test/wisp/" {
		t.Fatalf("transport not renegotiated: %+v", calls)
	}

	s, err := h.c.Settings(ctx)
	if err != nil {
		t.Fatalf("Settings() error = %v", err)
	}
	if s.Endpoint != "wss://other.test/wisp/" || len(s.Presets) == 0 {
		t.Fatalf("Settings() = %+v", s)
	}
}

func TestSaveSettingsRejectsInvalidEndpoint(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	before := h.state(t)

	err := h.c.SaveSettings(ctx, "ftp://x")
	if !types.HasCode(err, types.CodeInvalidEndpoint) {
		t.Fatalf("SaveSettings(ftp) error = %v; want %s", err, types.CodeInvalidEndpoint)
	}
	after := h.state(t)
	if after.ActiveID != before.ActiveID || after.Endpoint != settings.DefaultEndpoint {
		t.Fatalf("invalid save changed state: %+v", after)
	}
	if got := h.ic.endpoints(); len(got) != 1 {
		t.Fatalf("config posts = %v; want only the startup push", got)
	}
}

func TestFreshTabFinishesStartPageLoad(t *testing.T) {
	h := newHarness(t, func(o *Options) {
		o.Engine = &enginetest.Engine{LoadOnCreate: true}
		o.ProgressResetDelay = 10 * time.Millisecond
	})
	if _, err := h.c.NewTab(context.Background()); err != nil {
		t.Fatalf("NewTab() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		v := h.state(t)
		idle := v.Progress == 0
		for _, tab := range v.Tabs {
			idle = idle && !tab.Loading
		}
		if idle {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("view = %+v; want every fresh tab loaded and progress 0", v)
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := h.c.SelectTab(context.Background(), h.state(t).Tabs[0].ID); err != nil {
		t.Fatalf("SelectTab() error = %v", err)
	}
	if v := h.state(t); v.Progress != 0 {
		t.Fatalf("progress after switching to a loaded tab = %d; want 0", v.Progress)
	}
}

func TestAbandonedRequestDoesNotMutateTabs(t *testing.T) {
	h := newHarness(t)
	h.state(t)

	release := make(chan struct{})
	h.c.queue.post(func() { <-release })

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := h.c.NewTab(ctx)
		errc <- err
	}()
	cancel()
	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Fatalf("NewTab() error = %v; want context.Canceled", err)
	}
	close(release)

	if v := h.state(t); len(v.Tabs) != 1 {
		t.Fatalf("tabs = %d after abandoned NewTab; want 1", len(v.Tabs))
	}
}

// cancellingEngine cancels the caller's request context while a surface is
// being created, as a client disconnecting mid-request would.
type cancellingEngine struct {
	*enginetest.Engine
	mu     sync.Mutex
	cancel context.CancelFunc
}

func (e *cancellingEngine) CreateSurface(ctx context.Context, name, startURL string) (engine.Surface, error) {
	e.mu.Lock()
	if e.cancel != nil {
		e.cancel()
	}
	e.mu.Unlock()
	return e.Engine.CreateSurface(ctx, name, startURL)
}

func TestNewTabSurfaceOutlivesRequestContext(t *testing.T) {
	eng := &cancellingEngine{Engine: enginetest.New()}
	h := newHarness(t, func(o *Options) { o.Engine = eng })
	h.state(t)

	ctx, cancel := context.WithCancel(context.Background())
	eng.mu.Lock()
	eng.cancel = cancel
	eng.mu.Unlock()
	_, _ = h.c.NewTab(ctx)

	v := h.state(t)
	if len(v.Tabs) != 2 {
		t.Fatalf("tabs = %d; want 2", len(v.Tabs))
	}
	if _, err := h.c.Submit(context.Background(), "example.com"); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	surfaces := eng.Surfaces()
	if len(surfaces) != 2 {
		t.Fatalf("surfaces = %d; want 2", len(surfaces))
	}
	if got := surfaces[1].Navigations(); len(got) != 1 || got[0] != "https://example.com" {
		t.Fatalf("new tab navigations = %v; want the submitted url", got)
	}
}

func TestOperationsAfterStop(t *testing.T) {
	c := New(Options{Engine: enginetest.New(), Resolver: navigation.NewResolver("")})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	if _, err := c.State(context.Background()); err != nil {
		t.Fatalf("State() error = %v", err)
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() = %v; want context.Canceled", err)
	}

	if _, err := c.State(context.Background()); !errors.Is(err, ErrStopped) {
		t.Fatalf("State() after stop = %v; want ErrStopped", err)
	}
}

func TestSplitDeepLink(t *testing.T) {
	tests := []struct {
		launch, link, stripped string
	}{
		{"", "", ""},
		{"http://127.0.0.1:8190/", "", "http://127.0.0.1:8190/"},
		{"http://127.0.0.1:8190/#openai.com", "openai.com", "http://127.0.0.1:8190/"},
		{"http://127.0.0.1:8190/#hello%20world", "hello world", "http://127.0.0.1:8190/"},
	}
	for _, tt := range tests {
		link, stripped := splitDeepLink(tt.launch)
		if link != tt.link || stripped != tt.stripped {
			t.Errorf("splitDeepLink(%q) = %q, %q; want %q, %q", tt.launch, link, stripped, tt.link, tt.stripped)
		}
	}
}
