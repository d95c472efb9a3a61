package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/wolfeidau/foundreg/cmd/server/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Debug   bool `help:"Enable debug mode." env:"FOUNDREG_DEBUG"`
		Version kong.VersionFlag
		Serve   commands.ServeCmd   `cmd:"" default:"withargs" help:"Start the registry API server"`
		Migrate commands.MigrateCmd `cmd:"" help:"Apply database migrations"`
		Office  commands.OfficeCmd  `cmd:"" help:"Manage county offices"`
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Name("foundreg"),
		kong.Description("Found-item registry service"),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
