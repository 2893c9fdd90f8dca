package connection

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client is a single physical websocket connection to the push endpoint.
//
// Transport-level reconnection lives here: once Connect has succeeded, a
// dropped connection is redialed with exponential backoff until Close is
// called. The initial Connect is never retried; that decision belongs to
// the caller.
type Client struct {
	cfg    ClientConfig
	logger *slog.Logger

	// Output channels
	messages chan []byte
	notices  chan Notice
	done     chan struct{}

	// Write serialization
	writeMu sync.Mutex

	// State
	mu         sync.RWMutex
	conn       *websocket.Conn
	connected  bool
	closed     bool
	lastPongAt time.Time
}

// NewClient creates a new websocket push client.
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		cfg:      cfg,
		logger:   logger,
		messages: make(chan []byte, cfg.BufferSize),
		notices:  make(chan Notice, 8),
		done:     make(chan struct{}),
	}
}

// Connect dials the push endpoint once. A dial failure is returned to the
// caller unmodified and starts nothing.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrAlreadyClosed
	}
	c.mu.Unlock()

	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}

	c.adopt(conn)

	go c.readLoop(conn)
	go c.heartbeatLoop(conn)

	c.logger.Debug("push channel connected", "url", c.cfg.URL)

	return nil
}

// dial performs a single websocket handshake.
func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set("Accept", "application/json")
	if c.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, header)
	return conn, err
}

// adopt installs a freshly dialed connection and its control handlers.
func (c *Client) adopt(conn *websocket.Conn) {
	conn.SetPingHandler(func(data string) error {
		c.mu.Lock()
		c.lastPongAt = time.Now()
		c.mu.Unlock()

		return conn.WriteControl(
			websocket.PongMessage,
			[]byte(data),
			time.Now().Add(time.Second),
		)
	})

	conn.SetPongHandler(func(string) error {
		c.mu.Lock()
		c.lastPongAt = time.Now()
		c.mu.Unlock()
		return nil
	})

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.lastPongAt = time.Now()
	c.mu.Unlock()
}

// Close tears the connection down for good. Idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.connected = false
	conn := c.conn
	c.mu.Unlock()

	close(c.done)

	if conn != nil {
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		return conn.Close()
	}

	return nil
}

// Send writes raw bytes to the connection.
func (c *Client) Send(data []byte) error {
	c.mu.RLock()
	conn := c.conn
	connected := c.connected
	c.mu.RUnlock()

	if !connected || conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// Messages returns the channel of raw inbound frames, in transport order.
func (c *Client) Messages() <-chan []byte {
	return c.messages
}

// Notices returns the channel of transport lifecycle notifications.
func (c *Client) Notices() <-chan Notice {
	return c.notices
}

// Done is closed when the client has been closed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// IsConnected reports whether the transport currently holds a live
// connection.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// readLoop reads frames until the connection drops, then hands off to the
// redial loop unless the client was closed deliberately.
func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		select {
		case <-c.done:
			return
		default:
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}

			c.mu.Lock()
			c.connected = false
			c.mu.Unlock()

			c.notify(NoticeDown)
			go c.redialLoop()
			return
		}

		select {
		case c.messages <- data:
		case <-c.done:
			return
		default:
			c.logger.Warn("message buffer full, dropping frame")
		}
	}
}

// heartbeatLoop sends keepalive pings and forces a redial when the
// connection goes stale.
func (c *Client) heartbeatLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.RLock()
			current := c.conn
			lastPong := c.lastPongAt
			c.mu.RUnlock()

			// A redial replaced this connection; its new heartbeat
			// loop took over.
			if current != conn {
				return
			}

			deadline := time.Now().Add(c.cfg.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
				c.logger.Debug("failed to send ping", "error", err)
			}

			if time.Since(lastPong) > c.cfg.PongTimeout {
				c.logger.Warn("push channel stale, forcing redial",
					"last_pong", lastPong,
					"timeout", c.cfg.PongTimeout,
				)
				// Closing the conn unblocks readLoop, which starts
				// the redial.
				conn.Close()
				return
			}
		}
	}
}

// redialLoop re-establishes a dropped connection with exponential backoff.
func (c *Client) redialLoop() {
	wait := c.cfg.ReconnectBaseDelay

	for {
		select {
		case <-c.done:
			return
		case <-time.After(wait):
		}

		c.logger.Info("redialing push channel", "url", c.cfg.URL)

		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.HandshakeTimeout)
		conn, err := c.dial(ctx)
		cancel()

		if err != nil {
			c.logger.Warn("redial failed", "error", err)

			wait *= 2
			if wait > c.cfg.ReconnectMaxDelay {
				wait = c.cfg.ReconnectMaxDelay
			}
			continue
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			conn.Close()
			return
		}
		c.mu.Unlock()

		c.adopt(conn)
		c.notify(NoticeReconnected)

		go c.readLoop(conn)
		go c.heartbeatLoop(conn)

		c.logger.Info("push channel reconnected")
		return
	}
}

func (c *Client) notify(n Notice) {
	select {
	case c.notices <- n:
	default:
		c.logger.Warn("notice buffer full, dropping notice", "notice", n)
	}
}
