package commands

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	postgresstore "github.com/wolfeidau/foundreg/internal/store/postgres"
)

type Globals struct {
	Debug   bool
	Version string
}

func configureHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       time.Minute,
		WriteTimeout:      time.Minute,
		IdleTimeout:       5 * time.Minute,
		MaxHeaderBytes:    8 * 1024, // 8KiB
	}
}

// PostgresFlags configures the PostgreSQL connection pool and transactions.
type PostgresFlags struct {
	ConnString string `help:"PostgreSQL connection string" env:"DATABASE_URL"`

	// Connection Pool Configuration
	MaxConns        int32         `help:"maximum number of connections in pool" default:"20" env:"FOUNDREG_POSTGRES_MAX_CONNS"`
	MinConns        int32         `help:"minimum number of connections in pool" default:"2"`
	MaxConnLifetime time.Duration `help:"maximum connection lifetime" default:"1h"`
	MaxConnIdleTime time.Duration `help:"maximum connection idle time" default:"30m"`

	// Transaction Configuration
	TxTimeout   time.Duration `help:"timeout of a submission transaction" default:"10s" env:"FOUNDREG_POSTGRES_TX_TIMEOUT"`
	LockTimeout time.Duration `help:"how long a submission waits for the sequence counter lock" default:"5s" env:"FOUNDREG_POSTGRES_LOCK_TIMEOUT"`

	// Migration Configuration
	AutoMigrate bool `help:"run database migrations on startup" default:"false" env:"FOUNDREG_POSTGRES_AUTO_MIGRATE"`
}

func (f *PostgresFlags) Validate() error {
	if f.ConnString == "" {
		return errors.New("PostgreSQL connection string is required (--postgres-conn-string or DATABASE_URL)")
	}
	return nil
}

func (f *PostgresFlags) poolConfig() *postgresstore.PoolConfig {
	return &postgresstore.PoolConfig{
		ConnString:      f.ConnString,
		MaxConns:        f.MaxConns,
		MinConns:        f.MinConns,
		MaxConnLifetime: f.MaxConnLifetime,
		MaxConnIdleTime: f.MaxConnIdleTime,
		AutoMigrate:     f.AutoMigrate,
	}
}

func (f *PostgresFlags) txConfig() postgresstore.TxConfig {
	return postgresstore.TxConfig{
		Timeout:     f.TxTimeout,
		LockTimeout: f.LockTimeout,
	}
}

func (f *PostgresFlags) connect(ctx context.Context) (*pgxpool.Pool, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return postgresstore.NewPool(ctx, f.poolConfig())
}
