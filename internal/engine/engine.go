package engine

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when no rendering engine is connected.
var ErrUnavailable = errors.New("engine: rendering engine unavailable")

// ErrUnreadableDocument is returned when the in-page document cannot be read,
// e.g. because the content is isolated from the controlling context.
var ErrUnreadableDocument = errors.New("engine: document not readable")

// EventKind identifies a surface lifecycle event.
type EventKind int

const (
	// NavigationStart fires when the surface begins navigating to a new URL.
	NavigationStart EventKind = iota + 1
	// LoadComplete fires when the surface finishes loading.
	LoadComplete
)

func (k EventKind) String() string {
	switch k {
	case NavigationStart:
		return "navigation-start"
	case LoadComplete:
		return "load-complete"
	default:
		return "unknown"
	}
}

// Event is a normalized surface lifecycle event. URL is the destination URL
// (already decoded from its proxied form) for NavigationStart and empty for
// LoadComplete.
type Event struct {
	Kind EventKind
	URL  string
}

// Engine creates render surfaces.
type Engine interface {
	CreateSurface(ctx context.Context, name, startURL string) (Surface, error)
}

// Surface is one embedded viewport owned by the rendering engine.
type Surface interface {
	// Go navigates to dest through the rewriting proxy.
	Go(ctx context.Context, dest string) error
	Back(ctx context.Context) error
	Forward(ctx context.Context) error
	Reload(ctx context.Context) error
	// Title reads the in-page document title. It returns
	// ErrUnreadableDocument when the document is not accessible.
	Title(ctx context.Context) (string, error)
	SetVisible(ctx context.Context, visible bool) error
	// InjectScript appends a script element loading src to the document.
	InjectScript(ctx context.Context, src string) error
	// Subscribe registers fn for lifecycle events. The returned function
	// removes the subscription; it is safe to call more than once.
	Subscribe(fn func(Event)) (unsubscribe func())
	// Detach removes the surface. No events are delivered afterwards.
	Detach() error
}

// Unavailable is an Engine that always fails. It is used when the browser
// cannot be reached so the session layer keeps running in degraded mode.
type Unavailable struct{}

func (Unavailable) CreateSurface(context.Context, string, string) (Surface, error) {
	return nil, ErrUnavailable
}
