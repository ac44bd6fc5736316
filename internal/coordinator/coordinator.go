// Package coordinator ties the tab registry, navigation resolver and
// endpoint store to the UI projection and to the tunnel collaborators.
package coordinator

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/dgnsrekt/tabtunnel/internal/engine"
	"github.com/dgnsrekt/tabtunnel/internal/navigation"
	"github.com/dgnsrekt/tabtunnel/internal/tabs"
	"github.com/dgnsrekt/tabtunnel/internal/tunnel"
	"github.com/dgnsrekt/tabtunnel/internal/types"
)

const (
	progressStarted  = 10
	progressComplete = 100

	defaultProgressResetDelay = 200 * time.Millisecond
)

// Interceptor is the background interception process.
type Interceptor interface {
	Attach(ctx context.Context) error
	Attached() bool
	Post(msg tunnel.ConfigMessage) error
}

// Transport is the transport connection object.
type Transport interface {
	SetTransport(ctx context.Context, transport, endpoint string) error
}

// EndpointStore persists the tunnel endpoint.
type EndpointStore interface {
	Get() string
	Set(endpoint string) error
	Presets() []types.Preset
	SetReload(fn func())
}

// Renderer receives every UI projection.
type Renderer interface {
	Render(view types.View)
}

// Renderers fans a projection out to several renderers.
type Renderers []Renderer

func (rs Renderers) Render(view types.View) {
	for _, r := range rs {
		r.Render(view)
	}
}

// Options wires the coordinator. Interceptor, Transport and Renderer may be
// nil.
type Options struct {
	Engine         engine.Engine
	Store          EndpointStore
	Interceptor    Interceptor
	Transport      Transport
	TransportName  string
	Renderer       Renderer
	Resolver       navigation.Resolver
	StartURL       string
	LaunchURL      string
	DevtoolsScript string
	TitleTimeout   time.Duration

	// ProgressResetDelay is how long a completed loading indicator stays
	// at 100 before dropping back to 0.
	ProgressResetDelay time.Duration
}

// Coordinator is the top-level session orchestrator.
type Coordinator struct {
	store          EndpointStore
	interceptor    Interceptor
	transport      Transport
	transportName  string
	renderer       Renderer
	resolver       navigation.Resolver
	devtoolsScript string
	resetDelay     time.Duration

	registry *tabs.Registry
	queue    *taskQueue
	stopped  chan struct{}
	loopCtx  context.Context

	// Owned by the control goroutine.
	endpoint    string
	progress    int
	progressGen int
	deepLink    string
	launchURL   string
}

func New(opts Options) *Coordinator {
	c := &Coordinator{
		store:          opts.Store,
		interceptor:    opts.Interceptor,
		transport:      opts.Transport,
		transportName:  opts.TransportName,
		renderer:       opts.Renderer,
		resolver:       opts.Resolver,
		devtoolsScript: opts.DevtoolsScript,
		resetDelay:     opts.ProgressResetDelay,
		queue:          newTaskQueue(),
		stopped:        make(chan struct{}),
		loopCtx:        context.Background(),
	}
	if c.transportName == "" {
		c.transportName = tunnel.DefaultTransport
	}
	if c.resetDelay <= 0 {
		c.resetDelay = defaultProgressResetDelay
	}
	c.deepLink, c.launchURL = splitDeepLink(opts.LaunchURL)

	regOpts := []tabs.Option{
		tabs.WithListener(c.onTabEvent),
		tabs.WithTitleTimeout(opts.TitleTimeout),
	}
	if opts.StartURL != "" {
		regOpts = append(regOpts, tabs.WithStartURL(opts.StartURL))
	}
	c.registry = tabs.NewRegistry(opts.Engine, tabs.DispatchFunc(c.queue.post), regOpts...)

	if c.store != nil {
		c.store.SetReload(func() { c.queue.post(c.hardReset) })
	}
	return c
}

// splitDeepLink extracts the percent-decoded fragment of the launch URL and
// returns the URL with the fragment stripped.
func splitDeepLink(launch string) (link, stripped string) {
	if launch == "" {
		return "", ""
	}
	u, err := url.Parse(launch)
	if err != nil {
		slog.Warn("launch url unparseable, ignoring deep link", "launch_url", launch, "error", err)
		return "", launch
	}
	link = strings.TrimSpace(u.Fragment)
	u.Fragment = ""
	u.RawFragment = ""
	return link, u.String()
}

// start attaches the collaborators, pushes the current endpoint to them,
// opens the initial tab and consumes the deep link.
func (c *Coordinator) start(ctx context.Context) {
	c.endpoint = settingsEndpoint(c.store)
	slog.Info("session layer starting", "endpoint", c.endpoint, "transport", c.transportName)

	if c.interceptor != nil {
		if err := c.interceptor.Attach(ctx); err != nil {
			slog.Warn("interception process unavailable, proxied content will not load", "error", err)
		} else if err := c.interceptor.Post(tunnel.NewConfigMessage(c.endpoint)); err != nil {
			slog.Warn("initial config push failed", "endpoint", c.endpoint, "error", err)
		}
	}
	if c.transport != nil {
		if err := c.transport.SetTransport(ctx, c.transportName, c.endpoint); err != nil {
			slog.Warn("transport connection unavailable, proxied content will not load", "transport", c.transportName, "error", err)
		}
	}

	c.registry.Create(ctx, true)
	c.syncIndicator()

	if link := c.consumeDeepLink(); link != "" {
		slog.Info("opening deep link", "input", link)
		if _, err := c.submit(ctx, link); err != nil {
			slog.Warn("deep link navigation failed", "input", link, "error", err)
		}
	}
	c.render()
}

// LaunchURL is the launch URL with any deep-link fragment removed.
func (c *Coordinator) LaunchURL() string { return c.launchURL }

func (c *Coordinator) consumeDeepLink() string {
	link := c.deepLink
	c.deepLink = ""
	return link
}

// hardReset discards every session and reruns startup. The deep link has
// already been consumed and is not replayed.
func (c *Coordinator) hardReset() {
	slog.Info("session layer reloading")
	c.registry.Reset()
	c.progress = 0
	c.progressGen++
	c.start(c.loopCtx)
}

func settingsEndpoint(store EndpointStore) string {
	if store == nil {
		return ""
	}
	return store.Get()
}

// onTabEvent runs on the control goroutine after a session applied an
// event to its tab. Only the active tab may drive the loading indicator.
func (c *Coordinator) onTabEvent(tab *tabs.Tab, kind engine.EventKind) {
	if tab.ID == c.registry.ActiveID() {
		switch kind {
		case engine.NavigationStart:
			c.setProgress(progressStarted)
		case engine.LoadComplete:
			c.setProgress(progressComplete)
			c.scheduleProgressReset()
		}
	}
	c.render()
}

func (c *Coordinator) setProgress(p int) {
	c.progress = p
	c.progressGen++
}

func (c *Coordinator) scheduleProgressReset() {
	gen := c.progressGen
	time.AfterFunc(c.resetDelay, func() {
		c.queue.post(func() {
			if c.progressGen != gen {
				return
			}
			c.progress = 0
			c.render()
		})
	})
}

// syncIndicator makes the loading indicator reflect the active tab.
func (c *Coordinator) syncIndicator() {
	active, ok := c.registry.Active()
	if ok && active.Loading {
		c.setProgress(progressStarted)
		return
	}
	c.setProgress(0)
}

func (c *Coordinator) view() types.View {
	v := types.View{
		Tabs:     make([]types.TabView, 0, c.registry.Len()),
		ActiveID: c.registry.ActiveID(),
		Progress: c.progress,
		Endpoint: c.endpoint,
	}
	for _, t := range c.registry.Tabs() {
		v.Tabs = append(v.Tabs, t.View(t.ID == v.ActiveID))
	}
	if active, ok := c.registry.Active(); ok {
		v.Address = active.URL
	}
	return v
}

func (c *Coordinator) render() {
	if c.renderer == nil {
		return
	}
	c.renderer.Render(c.view())
}

// submit resolves input and navigates the active tab. Empty input is a
// no-op and returns "".
func (c *Coordinator) submit(ctx context.Context, input string) (string, error) {
	target, ok := c.resolver.Resolve(strings.TrimSpace(input))
	if !ok {
		return "", nil
	}
	active, ok := c.registry.Active()
	if !ok {
		return "", nil
	}
	slog.Info("navigate", "tab_id", active.ID, "input", input, "url", target)
	if err := active.Session().Navigate(ctx, target); err != nil {
		return target, types.NewError(types.CodeEngineUnavailable, "navigation failed", err)
	}
	return target, nil
}

// withActiveChange runs fn and, when the active tab changed, resyncs the
// indicator. The UI is re-projected either way.
func (c *Coordinator) withActiveChange(fn func()) {
	before := c.registry.ActiveID()
	fn()
	if c.registry.ActiveID() != before {
		c.syncIndicator()
	}
	c.render()
}
