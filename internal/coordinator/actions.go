package coordinator

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dgnsrekt/tabtunnel/internal/tabs"
	"github.com/dgnsrekt/tabtunnel/internal/types"
)

var errNoStore = errors.New("coordinator: no settings store configured")

// State returns the current UI projection.
func (c *Coordinator) State(ctx context.Context) (types.View, error) {
	var v types.View
	err := c.do(ctx, func() error {
		v = c.view()
		return nil
	})
	return v, err
}

// Submit handles an address-bar entry. It returns the URL navigated to, or
// "" when the input was empty.
func (c *Coordinator) Submit(ctx context.Context, input string) (string, error) {
	var target string
	err := c.do(ctx, func() error {
		var err error
		target, err = c.submit(ctx, input)
		c.render()
		return err
	})
	return target, err
}

// HandleMessage accepts a cross-context message from embedded content.
// Only navigate messages are acted on; anything else is ignored.
func (c *Coordinator) HandleMessage(ctx context.Context, msg types.Message) error {
	if msg.Type != types.MessageNavigate {
		slog.Debug("ignoring inbound message", "type", msg.Type)
		return nil
	}
	_, err := c.Submit(ctx, msg.URL)
	return err
}

// NewTab opens and activates a tab. Surfaces belong to the session layer,
// so they are created under the loop context rather than the caller's.
func (c *Coordinator) NewTab(ctx context.Context) (types.TabView, error) {
	var out types.TabView
	err := c.do(ctx, func() error {
		c.withActiveChange(func() {
			tab := c.registry.Create(c.loopCtx, true)
			out = tab.View(true)
		})
		return nil
	})
	return out, err
}

// SelectTab activates id. Unknown ids are ignored.
func (c *Coordinator) SelectTab(ctx context.Context, id int) error {
	return c.do(ctx, func() error {
		c.withActiveChange(func() {
			c.registry.SwitchActive(c.loopCtx, id)
		})
		return nil
	})
}

// CloseTab closes id. Unknown ids are ignored.
func (c *Coordinator) CloseTab(ctx context.Context, id int) error {
	return c.do(ctx, func() error {
		c.withActiveChange(func() {
			c.registry.Close(c.loopCtx, id)
		})
		return nil
	})
}

func (c *Coordinator) Back(ctx context.Context) error {
	return c.onActive(ctx, "back", func(s *tabs.Session) error { return s.Back(ctx) })
}

func (c *Coordinator) Forward(ctx context.Context) error {
	return c.onActive(ctx, "forward", func(s *tabs.Session) error { return s.Forward(ctx) })
}

func (c *Coordinator) Reload(ctx context.Context) error {
	return c.onActive(ctx, "reload", func(s *tabs.Session) error { return s.Reload(ctx) })
}

// Devtools injects the configured inspection script into the active tab.
func (c *Coordinator) Devtools(ctx context.Context) error {
	return c.onActive(ctx, "devtools", func(s *tabs.Session) error { return s.InjectScript(ctx, c.devtoolsScript) })
}

func (c *Coordinator) onActive(ctx context.Context, action string, fn func(*tabs.Session) error) error {
	return c.do(ctx, func() error {
		active, ok := c.registry.Active()
		if !ok {
			return nil
		}
		if err := fn(active.Session()); err != nil {
			slog.Warn("tab action failed", "action", action, "tab_id", active.ID, "error", err)
			return types.NewError(types.CodeEngineUnavailable, action+" failed", err)
		}
		return nil
	})
}

// Settings describes the settings surface.
func (c *Coordinator) Settings(ctx context.Context) (types.SettingsView, error) {
	var out types.SettingsView
	if c.store == nil {
		return out, errNoStore
	}
	err := c.do(ctx, func() error {
		out = types.SettingsView{Endpoint: settingsEndpoint(c.store), Presets: c.store.Presets()}
		return nil
	})
	return out, err
}

// SaveSettings persists a new tunnel endpoint. On success the session layer
// is hard-reset: every tab is discarded and startup runs again.
func (c *Coordinator) SaveSettings(ctx context.Context, endpoint string) error {
	if c.store == nil {
		return errNoStore
	}
	return c.do(ctx, func() error {
		return c.store.Set(endpoint)
	})
}
