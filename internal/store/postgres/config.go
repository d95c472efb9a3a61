package postgres

import (
	"fmt"
	"time"
)

// PoolConfig configures the pgx pool shared by every store.
type PoolConfig struct {
	// ConnString is a postgres:// URL or key=value DSN.
	ConnString string

	// Default: 20
	MaxConns int32
	// Default: 2
	MinConns int32

	// Default: 1 hour
	MaxConnLifetime time.Duration
	// Default: 30 minutes
	MaxConnIdleTime time.Duration
	// Default: 1 minute
	HealthCheckPeriod time.Duration
	// Default: 10 seconds
	ConnectTimeout time.Duration

	// AutoMigrate applies the embedded migrations once connected.
	AutoMigrate bool
}

func (c *PoolConfig) Validate() error {
	switch {
	case c.ConnString == "":
		return fmt.Errorf("connection string is required")
	case c.MinConns > c.MaxConns:
		return fmt.Errorf("min conns (%d) must not exceed max conns (%d)", c.MinConns, c.MaxConns)
	case c.MaxConnLifetime < 0, c.MaxConnIdleTime < 0, c.HealthCheckPeriod < 0, c.ConnectTimeout < 0:
		return fmt.Errorf("pool durations must not be negative")
	}
	return nil
}

func (c *PoolConfig) ApplyDefaults() {
	if c.MaxConns == 0 {
		c.MaxConns = 20
	}
	if c.MinConns == 0 {
		c.MinConns = min(2, c.MaxConns)
	}
	if c.MaxConnLifetime == 0 {
		c.MaxConnLifetime = time.Hour
	}
	if c.MaxConnIdleTime == 0 {
		c.MaxConnIdleTime = 30 * time.Minute
	}
	if c.HealthCheckPeriod == 0 {
		c.HealthCheckPeriod = time.Minute
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 10 * time.Second
	}
}

// TxConfig holds configuration for submission transactions.
type TxConfig struct {
	// Timeout bounds a whole transaction when the caller's context has no deadline.
	// Default: 10 seconds
	Timeout time.Duration

	// LockTimeout bounds how long a statement waits for a row lock, most notably
	// the (office, year) sequence counter lock. Applied with SET LOCAL.
	// Default: 5 seconds
	LockTimeout time.Duration
}

// Validate checks that the configuration is valid.
func (c *TxConfig) Validate() error {
	if c.Timeout < 0 {
		return fmt.Errorf("transaction timeout must not be negative")
	}
	if c.LockTimeout < 0 {
		return fmt.Errorf("lock timeout must not be negative")
	}
	if c.LockTimeout > c.Timeout {
		return fmt.Errorf("lock timeout (%s) must not exceed transaction timeout (%s)", c.LockTimeout, c.Timeout)
	}
	return nil
}

// ApplyDefaults applies default values to unset configuration fields.
func (c *TxConfig) ApplyDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
	if c.LockTimeout == 0 {
		c.LockTimeout = 5 * time.Second
	}
}
