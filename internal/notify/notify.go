// Package notify posts plain-text ntfy notifications.
package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const sendTimeout = 10 * time.Second

// Send sends a message to the requested endpoint using HTTP POST.
func Send(ctx context.Context, client *http.Client, endpoint, message string) error {
	c := client
	if c == nil {
		c = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(message))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("Title", "tabtunnel")

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy notification failed: status=%d", resp.StatusCode)
	}
	return nil
}

// EndpointNotifier announces tunnel endpoint changes on an ntfy topic.
type EndpointNotifier struct {
	client *http.Client
	topic  string
}

// NewEndpointNotifier retries failed posts through base, which may be nil.
func NewEndpointNotifier(base *http.Client, topic string) *EndpointNotifier {
	return &EndpointNotifier{client: retryingClient(base), topic: topic}
}

func retryingClient(base *http.Client) *http.Client {
	rc := retryablehttp.NewClient()
	if base != nil {
		rc.HTTPClient = base
	}
	rc.RetryMax = 3
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.Logger = slog.Default()
	return rc.StandardClient()
}

func endpointMessage(endpoint string) string {
	return "Tunnel endpoint changed to " + endpoint + "; all tabs were reset."
}

// Notify sends the change synchronously.
func (n *EndpointNotifier) Notify(ctx context.Context, endpoint string) error {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	return Send(ctx, n.client, n.topic, endpointMessage(endpoint))
}

// EndpointChanged sends the change in the background; failures are logged.
// Its signature matches settings.Store.Subscribe.
func (n *EndpointNotifier) EndpointChanged(endpoint string) {
	go func() {
		if err := n.Notify(context.Background(), endpoint); err != nil {
			slog.Warn("endpoint change notification failed", "topic", n.topic, "error", err)
		}
	}()
}
