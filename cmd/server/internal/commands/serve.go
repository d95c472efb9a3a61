package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	zlog "github.com/rs/zerolog/log"
	"github.com/wolfeidau/foundreg/internal/api"
	"github.com/wolfeidau/foundreg/internal/forms"
	"github.com/wolfeidau/foundreg/internal/logger"
	"github.com/wolfeidau/foundreg/internal/login"
	"github.com/wolfeidau/foundreg/internal/registry"
	"github.com/wolfeidau/foundreg/internal/store"
	memorystore "github.com/wolfeidau/foundreg/internal/store/memory"
	postgresstore "github.com/wolfeidau/foundreg/internal/store/postgres"
	"github.com/wolfeidau/foundreg/internal/telemetry"
	"golang.org/x/sync/errgroup"
)

type ServeCmd struct {
	// Server configuration
	Listen string `help:"HTTP server listen address" default:"0.0.0.0:8000" env:"FOUNDREG_LISTEN"`
	Cert   string `help:"path to TLS cert file, serves plain HTTP when empty" default:"" env:"FOUNDREG_TLS_CERT"`
	Key    string `help:"path to TLS key file" default:"" env:"FOUNDREG_TLS_KEY"`

	// CORS configuration, merged with the local frontend origins
	CORSOrigins []string `help:"additional allowed CORS origins" env:"CORS_ORIGINS"`

	Tracing     bool    `help:"enable OpenTelemetry traces and metrics" default:"false" env:"FOUNDREG_TRACING"`
	SampleRatio float64 `help:"trace sampling ratio" default:"1.0" env:"FOUNDREG_TRACE_SAMPLE_RATIO"`

	StoreType string        `help:"store type (memory or postgres)" default:"memory" env:"FOUNDREG_STORE_TYPE" enum:"memory,postgres"`
	Postgres  PostgresFlags `embed:"" prefix:"postgres-"`
	Auth      AuthFlags     `embed:"" prefix:"auth-"`
	Registry  RegistryFlags `embed:"" prefix:"registry-"`
}

// AuthFlags configures login tokens and cookies.
type AuthFlags struct {
	Secret          string        `help:"HS256 secret for access and refresh tokens (min 32 bytes)" env:"FOUNDREG_AUTH_SECRET"`
	AccessTTL       time.Duration `help:"access token lifetime" default:"15m" env:"FOUNDREG_AUTH_ACCESS_TTL"`
	RefreshTTL      time.Duration `help:"refresh token and session lifetime" default:"168h" env:"FOUNDREG_AUTH_REFRESH_TTL"`
	SecureCookies   bool          `help:"set the Secure flag on auth cookies" default:"false" env:"FOUNDREG_AUTH_SECURE_COOKIES"`
	CleanupInterval time.Duration `help:"interval between expired session cleanups, 0 disables" default:"1h"`
}

// RegistryFlags configures registry number allocation.
type RegistryFlags struct {
	Strategy    string `help:"sequence counter strategy (lock or upsert)" default:"lock" enum:"lock,upsert" env:"FOUNDREG_REGISTRY_STRATEGY"`
	TimeZone    string `help:"time zone the registry year is taken in" default:"Europe/Warsaw" env:"FOUNDREG_REGISTRY_TIME_ZONE"`
	CodeLength  int    `help:"required office code length, 0 accepts any" default:"4" env:"FOUNDREG_REGISTRY_CODE_LENGTH"`
	MaxAttempts uint   `help:"attempts per submission on transient errors" default:"3" env:"FOUNDREG_REGISTRY_MAX_ATTEMPTS"`
}

func (f *RegistryFlags) allocator() (*registry.Allocator, error) {
	strategy, err := registry.ParseStrategy(f.Strategy)
	if err != nil {
		return nil, err
	}

	loc, err := time.LoadLocation(f.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("failed to load time zone %q: %w", f.TimeZone, err)
	}

	return registry.NewAllocator(
		registry.WithStrategy(strategy),
		registry.WithLocation(loc),
		registry.WithCodeLength(f.CodeLength),
	), nil
}

func (f *RegistryFlags) formsConfig() forms.Config {
	return forms.Config{MaxAttempts: f.MaxAttempts}
}

type serveStores struct {
	users    store.UserStore
	sessions store.SessionStore
	offices  store.OfficeStore
	items    store.FoundItemStore
	tx       store.Transactor
	ping     func(context.Context) error
}

func (c *ServeCmd) Run(globals *Globals) error {
	log := logger.Setup(globals.Debug)
	zlog.Logger = log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting server")

	if c.Tracing {
		shutdown, err := telemetry.InitTelemetry(ctx, telemetry.Config{
			ServiceName: "foundreg-server",
			Version:     globals.Version,
			SampleRatio: c.SampleRatio,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
			shutdown = func(ctx context.Context) error { return nil }
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Failed to shutdown telemetry")
			}
		}()
	}

	allocator, err := c.Registry.allocator()
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	var stores serveStores
	switch c.StoreType {
	case "postgres":
		pool, err := c.Postgres.connect(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		tx, err := postgresstore.NewTransactor(pool, c.Postgres.txConfig())
		if err != nil {
			return err
		}

		stores = serveStores{
			users:    postgresstore.NewUserStore(pool),
			sessions: postgresstore.NewSessionStore(pool),
			offices:  postgresstore.NewOfficeStore(pool),
			items:    postgresstore.NewFoundItemStore(pool),
			tx:       tx,
			ping:     pool.Ping,
		}

		g.Go(func() error {
			postgresstore.MonitorPool(ctx, pool, time.Minute)
			return nil
		})
		log.Info().Msg("Using PostgreSQL stores")

	default:
		offices := memorystore.NewOfficeStore()
		tx := memorystore.NewTransactor(offices)

		stores = serveStores{
			users:    memorystore.NewUserStore(),
			sessions: memorystore.NewSessionStore(),
			offices:  offices,
			items:    tx.FoundItems(),
			tx:       tx,
		}
		log.Warn().Msg("Using in-memory stores, data is lost on restart")
	}

	secret := c.Auth.Secret
	if secret == "" && c.StoreType == "memory" {
		secret = "dev-mode-secret-key-minimum-32-characters-long"
		log.Warn().Msg("No auth secret configured, using the development secret")
	}

	loginSvc, err := login.NewService(login.Stores{Users: stores.users, Sessions: stores.sessions}, login.Config{
		Secret:        []byte(secret),
		AccessTTL:     c.Auth.AccessTTL,
		RefreshTTL:    c.Auth.RefreshTTL,
		SecureCookies: c.Auth.SecureCookies,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize login: %w", err)
	}

	formsSvc := forms.NewService(stores.tx, stores.offices, stores.items, allocator, c.Registry.formsConfig())

	handler, err := api.NewServer(loginSvc, formsSvc, log, api.Config{
		CORSOrigins: c.CORSOrigins,
		Ping:        stores.ping,
	}).Handler()
	if err != nil {
		return err
	}

	srv := configureHTTPServer(c.Listen, handler)

	g.Go(func() error {
		loginSvc.CleanupSessions(ctx, c.Auth.CleanupInterval)
		return nil
	})

	g.Go(func() error {
		log.Info().Str("addr", c.Listen).Bool("tls", c.Cert != "").Msg("Starting HTTP server")

		var err error
		if c.Cert != "" {
			err = srv.ListenAndServeTLS(c.Cert, c.Key)
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("Shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
