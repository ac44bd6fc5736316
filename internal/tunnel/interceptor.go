package tunnel

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// Interceptor is a client for the background interception process. It holds
// one control socket and posts config messages on it without waiting for
// acknowledgement.
type Interceptor struct {
	url string

	mu   sync.Mutex
	conn net.Conn
}

func NewInterceptor(url string) *Interceptor {
	return &Interceptor{url: url}
}

// Attach dials the control socket. It is a no-op when already attached.
func (i *Interceptor) Attach(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.conn != nil {
		return nil
	}
	if i.url == "" {
		return fmt.Errorf("interceptor: missing control url")
	}

	slog.Debug("interceptor connecting", "url", i.url)
	conn, _, _, err := ws.Dial(ctx, i.url)
	if err != nil {
		return fmt.Errorf("interceptor: dial: %w", err)
	}
	i.conn = conn
	go i.readLoop(conn)
	slog.Info("interceptor attached", "url", i.url)
	return nil
}

// readLoop drains inbound frames and marks the interceptor detached once the
// peer goes away. Pong and close replies are written under i.mu so they
// never interleave with a frame from Post.
func (i *Interceptor) readLoop(conn net.Conn) {
	control := wsutil.ControlFrameHandler(conn, ws.StateClientSide)
	locked := func(h ws.Header, r io.Reader) error {
		i.mu.Lock()
		defer i.mu.Unlock()
		return control(h, r)
	}
	rd := &wsutil.Reader{
		Source:         conn,
		State:          ws.StateClientSide,
		CheckUTF8:      true,
		OnIntermediate: locked,
	}

	for {
		hdr, err := rd.NextFrame()
		if err == nil {
			if hdr.OpCode.IsControl() {
				err = locked(hdr, rd)
			} else {
				err = rd.Discard()
			}
		}
		if err != nil {
			slog.Debug("interceptor read loop exit", "error", err)
			i.drop(conn)
			return
		}
	}
}

func (i *Interceptor) drop(conn net.Conn) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.conn == conn {
		_ = conn.Close()
		i.conn = nil
		slog.Info("interceptor detached", "url", i.url)
	}
}

func (i *Interceptor) Attached() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.conn != nil
}

// Post sends msg as a JSON text frame.
func (i *Interceptor) Post(msg ConfigMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("interceptor: marshal: %w", err)
	}

	i.mu.Lock()
	conn := i.conn
	if conn == nil {
		i.mu.Unlock()
		return fmt.Errorf("interceptor: not attached")
	}
	err = wsutil.WriteClientText(conn, data)
	i.mu.Unlock()

	if err != nil {
		i.drop(conn)
		return fmt.Errorf("interceptor: send: %w", err)
	}
	slog.Debug("interceptor config posted", "endpoint", msg.Endpoint)
	return nil
}

func (i *Interceptor) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.conn == nil {
		return nil
	}
	err := i.conn.Close()
	i.conn = nil
	return err
}
