package commands

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/foundreg/internal/logger"
	postgresstore "github.com/wolfeidau/foundreg/internal/store/postgres"
)

type MigrateCmd struct {
	Postgres PostgresFlags `embed:"" prefix:"postgres-"`
}

func (c *MigrateCmd) Run(ctx context.Context, globals *Globals) error {
	log.Logger = logger.Setup(globals.Debug)

	pool, err := c.Postgres.connect(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := postgresstore.RunMigrations(ctx, pool); err != nil {
		return err
	}

	log.Info().Msg("Database schema is up to date")
	return nil
}
