package commands

import (
	"testing"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/require"
)

type serveCLI struct {
	Serve ServeCmd `cmd:""`
}

func parseServe(t *testing.T, args ...string) (*ServeCmd, error) {
	t.Helper()

	var cli serveCLI
	parser, err := kong.New(&cli, kong.Name("foundreg"))
	require.NoError(t, err)

	_, err = parser.Parse(append([]string{"serve"}, args...))
	return &cli.Serve, err
}

func TestServeCmd_RegistryFlags(t *testing.T) {
	cmd, err := parseServe(t)
	require.NoError(t, err)
	require.Equal(t, uint(3), cmd.Registry.formsConfig().MaxAttempts)
	require.Equal(t, "lock", cmd.Registry.Strategy)

	alloc, err := cmd.Registry.allocator()
	require.NoError(t, err)
	require.NotNil(t, alloc)

	cmd, err = parseServe(t, "--registry-max-attempts=5", "--registry-strategy=upsert", "--registry-time-zone=UTC")
	require.NoError(t, err)

	cfg := cmd.Registry.formsConfig()
	require.Equal(t, uint(5), cfg.MaxAttempts)

	_, err = cmd.Registry.allocator()
	require.NoError(t, err)
}

func TestServeCmd_RejectsNegativeMaxAttempts(t *testing.T) {
	_, err := parseServe(t, "--registry-max-attempts=-1")
	require.Error(t, err)
}
