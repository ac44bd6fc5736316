package tunnel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgnsrekt/tabtunnel/internal/types"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// DefaultTransport names the transport implementation attached by default.
const DefaultTransport = "epoxy"

// Connection attaches a transport implementation to the tunnel endpoint
// through the transport worker's control socket.
type Connection struct {
	url     string
	timeout time.Duration
}

func NewConnection(url string, timeout time.Duration) *Connection {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Connection{url: url, timeout: timeout}
}

// SetTransport asks the worker to relay traffic for endpoint using the named
// transport and waits for its acknowledgement.
func (c *Connection) SetTransport(ctx context.Context, transport, endpoint string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	conn, _, _, err := ws.Dial(ctx, c.url)
	if err != nil {
		return types.NewError(types.CodeTransportUnavailable, "dial transport worker", err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			slog.Debug("transport socket close failed", "error", err)
		}
	}()
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return fmt.Errorf("transport: set deadline: %w", err)
		}
	}

	req, err := json.Marshal(TransportRequest{Type: TypeSetTransport, Transport: transport, Endpoint: endpoint})
	if err != nil {
		return fmt.Errorf("transport: marshal: %w", err)
	}
	if err := wsutil.WriteClientText(conn, req); err != nil {
		return types.NewError(types.CodeTransportUnavailable, "send transport request", err)
	}

	data, err := wsutil.ReadServerText(conn)
	if err != nil {
		return types.NewError(types.CodeTransportUnavailable, "read transport reply", err)
	}
	var reply TransportReply
	if err := json.Unmarshal(data, &reply); err != nil {
		return types.NewError(types.CodeTransportUnavailable, "decode transport reply", err)
	}
	if !reply.OK {
		return types.NewError(types.CodeTransportUnavailable, "transport rejected: "+reply.Error, nil)
	}

	slog.Info("transport attached", "transport", transport, "endpoint", endpoint)
	return nil
}
