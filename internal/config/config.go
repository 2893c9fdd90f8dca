// Package config loads and validates syncd configuration from YAML.
package config

import "time"

// SyncdConfig is the top-level configuration for the sync daemon.
type SyncdConfig struct {
	Instance InstanceConfig `yaml:"instance"`
	API      APIConfig      `yaml:"api"`
	Push     PushConfig     `yaml:"push"`
	Sync     SyncConfig     `yaml:"sync"`
	Grouping GroupingConfig `yaml:"grouping"`
	Database DBConfig       `yaml:"database"`
	PriceLog PriceLogConfig `yaml:"price_log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// InstanceConfig identifies this syncd instance.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// APIConfig configures the REST collaborator used for reconciliation fetches.
type APIConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Token      string        `yaml:"token"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// PushConfig configures the websocket push channel.
type PushConfig struct {
	URL                string        `yaml:"url"`
	Token              string        `yaml:"token"`
	HandshakeTimeout   time.Duration `yaml:"handshake_timeout"`
	PingInterval       time.Duration `yaml:"ping_interval"`
	PongTimeout        time.Duration `yaml:"pong_timeout"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`
	BufferSize         int           `yaml:"buffer_size"`
}

// SyncConfig configures the fallback scheduler.
type SyncConfig struct {
	ProbeInterval time.Duration `yaml:"probe_interval"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	FetchTimeout  time.Duration `yaml:"fetch_timeout"`

	// Branches are branch identifiers to scope push subscriptions to.
	// Empty means subscribe to nothing beyond the global channels.
	Branches []string `yaml:"branches"`
}

// GroupingConfig configures the order grouping engine.
type GroupingConfig struct {
	SessionWindow time.Duration `yaml:"session_window"`
}

// DBConfig holds Postgres connection parameters for the price log.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// PriceLogConfig configures the price-history writer.
type PriceLogConfig struct {
	Enabled       bool          `yaml:"enabled"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// MetricsConfig configures the metrics/health HTTP endpoint.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}
