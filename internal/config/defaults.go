package config

import (
	"time"

	"github.com/google/uuid"
)

// Default values for optional configuration fields.
const (
	DefaultAPITimeout    = 30 * time.Second
	DefaultMaxRetries    = 3
	DefaultDBPort        = 5432
	DefaultDBSSLMode     = "prefer"
	DefaultMaxConns      = 10
	DefaultMinConns      = 2
	DefaultHandshake     = 10 * time.Second
	DefaultPingInterval  = 15 * time.Second
	DefaultPongTimeout   = 60 * time.Second
	DefaultWriteTimeout  = 5 * time.Second
	DefaultReconnectBase = 1 * time.Second
	DefaultReconnectMax  = 60 * time.Second
	DefaultBufferSize    = 1000

	// The probe runs on the order of seconds so an outage is noticed
	// quickly; the fallback poll is a multiple of it to bound request
	// volume while degraded.
	DefaultProbeInterval = 5 * time.Second
	DefaultPollInterval  = 30 * time.Second
	DefaultFetchTimeout  = 10 * time.Second

	// A customer returning to the same table after this long is a new
	// session, not a continuation.
	DefaultSessionWindow = 8 * time.Hour

	DefaultBatchSize     = 500
	DefaultFlushInterval = 1 * time.Second
	DefaultMetricsPort   = 9090
	DefaultMetricsPath   = "/metrics"
)

func (c *SyncdConfig) applyDefaults() {
	if c.Instance.ID == "" {
		c.Instance.ID = uuid.NewString()
	}

	// API defaults
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.MaxRetries == 0 {
		c.API.MaxRetries = DefaultMaxRetries
	}

	// Push channel defaults
	if c.Push.HandshakeTimeout == 0 {
		c.Push.HandshakeTimeout = DefaultHandshake
	}
	if c.Push.PingInterval == 0 {
		c.Push.PingInterval = DefaultPingInterval
	}
	if c.Push.PongTimeout == 0 {
		c.Push.PongTimeout = DefaultPongTimeout
	}
	if c.Push.WriteTimeout == 0 {
		c.Push.WriteTimeout = DefaultWriteTimeout
	}
	if c.Push.ReconnectBaseDelay == 0 {
		c.Push.ReconnectBaseDelay = DefaultReconnectBase
	}
	if c.Push.ReconnectMaxDelay == 0 {
		c.Push.ReconnectMaxDelay = DefaultReconnectMax
	}
	if c.Push.BufferSize == 0 {
		c.Push.BufferSize = DefaultBufferSize
	}

	// Scheduler defaults
	if c.Sync.ProbeInterval == 0 {
		c.Sync.ProbeInterval = DefaultProbeInterval
	}
	if c.Sync.PollInterval == 0 {
		c.Sync.PollInterval = DefaultPollInterval
	}
	if c.Sync.FetchTimeout == 0 {
		c.Sync.FetchTimeout = DefaultFetchTimeout
	}

	// Grouping defaults
	if c.Grouping.SessionWindow == 0 {
		c.Grouping.SessionWindow = DefaultSessionWindow
	}

	// Database defaults (only meaningful when the price log is enabled)
	if c.Database.Port == 0 {
		c.Database.Port = DefaultDBPort
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = DefaultDBSSLMode
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = DefaultMaxConns
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = DefaultMinConns
	}

	// Price log defaults
	if c.PriceLog.BatchSize == 0 {
		c.PriceLog.BatchSize = DefaultBatchSize
	}
	if c.PriceLog.FlushInterval == 0 {
		c.PriceLog.FlushInterval = DefaultFlushInterval
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}
