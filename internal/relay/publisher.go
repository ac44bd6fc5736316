package relay

import (
	"encoding/json"
	"log/slog"

	"github.com/dgnsrekt/tabtunnel/internal/types"
)

const (
	// FeedState carries the full UI projection after every change.
	FeedState = "state"
	// FeedSettings carries the endpoint each time it is saved.
	FeedSettings = "settings"
)

// Publisher turns session-layer output into broker events.
type Publisher struct {
	broker *Broker
}

func NewPublisher(broker *Broker) *Publisher {
	return &Publisher{broker: broker}
}

// Render publishes view on the state feed.
func (p *Publisher) Render(view types.View) {
	p.publishJSON(FeedState, view)
}

// EndpointSaved publishes the new endpoint on the settings feed.
func (p *Publisher) EndpointSaved(endpoint string) {
	p.publishJSON(FeedSettings, map[string]string{"endpoint": endpoint})
}

func (p *Publisher) publishJSON(feed string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("relay: marshal failed", "feed", feed, "error", err)
		return
	}
	p.broker.Publish(Event{Feed: feed, Payload: string(data)})
}
