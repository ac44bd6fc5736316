package netutil

import (
	"fmt"
	"log/slog"
	"net"
	"strings"
)

// Listen binds the preferred address, or with autoFallback the first free
// candidate. Holding the listener avoids a race between probing a port and
// serving on it.
func Listen(preferred string, candidates []string, autoFallback bool) (net.Listener, error) {
	if preferred != "" {
		ln, err := net.Listen("tcp", preferred)
		if err == nil {
			return ln, nil
		}
		if !autoFallback {
			return nil, fmt.Errorf("preferred bind address in use: %s: %w", preferred, err)
		}
		slog.Warn("preferred bind address unavailable, trying candidates", "addr", preferred, "error", err)
	}

	for _, addr := range candidates {
		if addr == preferred {
			continue
		}
		if ln, err := net.Listen("tcp", addr); err == nil {
			return ln, nil
		}
	}
	return nil, fmt.Errorf("no available bind address (tried %s)", strings.Join(append([]string{preferred}, candidates...), ", "))
}
