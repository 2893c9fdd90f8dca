package connection

import (
	"encoding/json"
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no pong)")
	ErrAlreadyClosed   = errors.New("already closed")
)

// State is the manager's view of the push channel lifecycle. Transitions
// are driven only by the transport's lifecycle callbacks plus Connect and
// Disconnect.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Envelope is the wire frame for a push event.
type Envelope struct {
	Event string          `json:"event"`
	Msg   json.RawMessage `json:"msg"`
}

// Intent is the scoped subscribe/unsubscribe command sent to the server.
// Topics take the form "<resource-kind>:<resource-id>", e.g. "branch:12".
type Intent struct {
	Action   string `json:"action"` // "subscribe" or "unsubscribe"
	Topic    string `json:"topic"`
	ClientID string `json:"client_id,omitempty"`
}

// Notice is a transport lifecycle notification emitted by the Client.
type Notice int

const (
	// NoticeDown: the transport lost its connection and is redialing.
	NoticeDown Notice = iota
	// NoticeReconnected: the transport re-established the connection.
	NoticeReconnected
)

// ClientConfig configures a websocket push client.
type ClientConfig struct {
	URL                string        // Websocket URL of the push endpoint
	Token              string        // Bearer token, empty for none
	HandshakeTimeout   time.Duration // Dial handshake deadline
	PingInterval       time.Duration // How often to send keepalive pings
	PongTimeout        time.Duration // Max time without pong before the connection is stale
	WriteTimeout       time.Duration // Write deadline for sends
	ReconnectBaseDelay time.Duration // Base wait between redial attempts
	ReconnectMaxDelay  time.Duration // Cap for the redial backoff
	BufferSize         int           // Message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HandshakeTimeout:   10 * time.Second,
		PingInterval:       15 * time.Second,
		PongTimeout:        60 * time.Second,
		WriteTimeout:       5 * time.Second,
		ReconnectBaseDelay: 1 * time.Second,
		ReconnectMaxDelay:  60 * time.Second,
		BufferSize:         1000,
	}
}
