// Package tunnel talks to the background interception process and the
// transport connection over WebSocket control channels.
package tunnel

const (
	TypeConfig       = "config"
	TypeSetTransport = "set-transport"
)

// ConfigMessage tells the interception process which tunnel endpoint to use.
type ConfigMessage struct {
	Type     string `json:"type"`
	Endpoint string `json:"endpoint"`
}

// NewConfigMessage builds a config message for endpoint.
func NewConfigMessage(endpoint string) ConfigMessage {
	return ConfigMessage{Type: TypeConfig, Endpoint: endpoint}
}

// TransportRequest attaches a transport implementation to the tunnel
// endpoint.
type TransportRequest struct {
	Type      string `json:"type"`
	Transport string `json:"transport"`
	Endpoint  string `json:"endpoint"`
}

// TransportReply acknowledges a TransportRequest.
type TransportReply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}
