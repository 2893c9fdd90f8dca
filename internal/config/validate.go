package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *SyncdConfig) Validate() error {
	if c.API.BaseURL == "" {
		return errors.New("api.base_url is required")
	}
	if c.Push.URL == "" {
		return errors.New("push.url is required")
	}

	if c.Sync.ProbeInterval <= 0 {
		return errors.New("sync.probe_interval must be positive")
	}
	if c.Sync.PollInterval < c.Sync.ProbeInterval {
		return fmt.Errorf("sync.poll_interval (%v) must not be shorter than probe_interval (%v)",
			c.Sync.PollInterval, c.Sync.ProbeInterval)
	}

	if c.Grouping.SessionWindow <= 0 {
		return errors.New("grouping.session_window must be positive")
	}

	if c.PriceLog.Enabled {
		if err := c.Database.validate("database"); err != nil {
			return err
		}
		if c.PriceLog.BatchSize < 1 {
			return errors.New("price_log.batch_size must be >= 1")
		}
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
