package connection

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/barlive/barsync/internal/events"
)

// Manager owns the single live push channel for the whole process. It is
// constructed once at startup and shared by reference; consumers register
// listeners on its registry rather than touching the transport.
type Manager struct {
	cfg      ClientConfig
	registry *events.Registry
	logger   *slog.Logger

	mu       sync.Mutex
	client   *Client
	state    State
	topics   map[string]struct{}
	clientID string
}

// NewManager creates a connection manager. The registry receives every
// decoded push event plus the local connection lifecycle events.
func NewManager(cfg ClientConfig, registry *events.Registry, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		cfg:      cfg,
		registry: registry,
		logger:   logger,
		state:    StateDisconnected,
		topics:   make(map[string]struct{}),
	}
}

// Connect establishes the live channel to target, tearing down and
// replacing any existing connection first. The state flips to Connecting
// immediately and to Connected on success. A dial error is passed through
// unmodified; the manager does not retry it.
func (m *Manager) Connect(ctx context.Context, target string) error {
	m.mu.Lock()

	m.teardownLocked()
	m.state = StateConnecting

	cfg := m.cfg
	cfg.URL = target

	client := NewClient(cfg, m.logger)
	if err := client.Connect(ctx); err != nil {
		m.state = StateDisconnected
		m.mu.Unlock()
		return err
	}

	m.client = client
	m.state = StateConnected
	m.clientID = uuid.NewString()

	go m.dispatch(client)

	m.resubscribeLocked()
	m.logger.Info("live channel established",
		"target", target,
		"client_id", m.clientID,
	)
	m.mu.Unlock()

	// Emitted outside the lock so listeners may call back into the manager.
	m.registry.Emit(events.EventConnectionUp, nil)
	return nil
}

// Disconnect closes the channel if open and resets the state. Idempotent;
// never fails.
func (m *Manager) Disconnect() {
	m.mu.Lock()

	if m.client == nil && m.state == StateDisconnected {
		m.mu.Unlock()
		return
	}

	m.teardownLocked()
	m.state = StateDisconnected
	m.mu.Unlock()

	m.registry.Emit(events.EventConnectionDown, nil)
	m.logger.Info("live channel disconnected")
}

// Subscribe records interest in a topic and, if the channel is live, sends
// the scoped subscribe intent. When offline it is a logged no-op; the topic
// is still remembered and sent after the next (re)connect. Re-subscription
// is idempotent.
func (m *Manager) Subscribe(topic string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.topics[topic] = struct{}{}

	if !m.isLiveLocked() {
		m.logger.Debug("subscribe skipped, channel not live", "topic", topic)
		return
	}
	m.sendIntentLocked("subscribe", topic)
}

// Unsubscribe drops interest in a topic. Unsubscribing a topic that was
// never subscribed is a no-op.
func (m *Manager) Unsubscribe(topic string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.topics[topic]; !ok {
		return
	}
	delete(m.topics, topic)

	if !m.isLiveLocked() {
		m.logger.Debug("unsubscribe skipped, channel not live", "topic", topic)
		return
	}
	m.sendIntentLocked("unsubscribe", topic)
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsLive reports whether the channel is usable right now: the manager
// believes it is connected AND the transport agrees. This is the liveness
// double-check, not merely "Connect resolved once".
func (m *Manager) IsLive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isLiveLocked()
}

// Registry returns the listener registry events are delivered on.
func (m *Manager) Registry() *events.Registry {
	return m.registry
}

func (m *Manager) isLiveLocked() bool {
	return m.state == StateConnected && m.client != nil && m.client.IsConnected()
}

func (m *Manager) teardownLocked() {
	if m.client != nil {
		m.client.Close()
		m.client = nil
	}
}

// resubscribeLocked replays the remembered topics onto a fresh connection.
func (m *Manager) resubscribeLocked() {
	for topic := range m.topics {
		m.sendIntentLocked("subscribe", topic)
	}
}

func (m *Manager) sendIntentLocked(action, topic string) {
	data, err := json.Marshal(Intent{
		Action:   action,
		Topic:    topic,
		ClientID: m.clientID,
	})
	if err != nil {
		m.logger.Error("failed to encode intent", "action", action, "topic", topic, "error", err)
		return
	}

	if err := m.client.Send(data); err != nil {
		// Not fatal: the server re-learns topics on reconnect.
		m.logger.Warn("failed to send intent",
			"action", action,
			"topic", topic,
			"error", err,
		)
		return
	}

	m.logger.Debug("intent sent", "action", action, "topic", topic)
}

// dispatch decodes inbound frames and delivers them to the registry in
// transport order. It also tracks transport lifecycle notices so the state
// machine follows the channel.
func (m *Manager) dispatch(client *Client) {
	for {
		select {
		case <-client.Done():
			return

		case n := <-client.Notices():
			m.handleNotice(client, n)

		case data := <-client.Messages():
			var env Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				m.logger.Warn("malformed push frame", "error", err)
				continue
			}
			if env.Event == "" {
				m.logger.Warn("push frame without event name")
				continue
			}
			m.registry.Emit(env.Event, env.Msg)
		}
	}
}

func (m *Manager) handleNotice(client *Client, n Notice) {
	m.mu.Lock()

	// Notices from a replaced client are stale.
	if m.client != client {
		m.mu.Unlock()
		return
	}

	switch n {
	case NoticeDown:
		m.state = StateReconnecting
		m.mu.Unlock()
		m.registry.Emit(events.EventConnectionDown, nil)

	case NoticeReconnected:
		m.state = StateConnected
		m.resubscribeLocked()
		m.mu.Unlock()
		m.registry.Emit(events.EventConnectionReconnected, nil)

	default:
		m.mu.Unlock()
	}
}
