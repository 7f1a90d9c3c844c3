package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "nodom", cmd.Use)
	assert.Contains(t, cmd.Long, "websockets")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"serve", "validate", "snapshot", "journal"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)
}

func TestServeCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	serveCmd, _, err := cmd.Find([]string{"serve"})
	require.NoError(t, err)

	defaults := map[string]string{
		"config":      "",
		"addr":        "localhost:8890",
		"engine":      "sqlite",
		"db":          ":memory:",
		"dsn":         "",
		"parquet-dir": "",
		"max-chain":   "16",
	}
	for name, want := range defaults {
		flag := serveCmd.Flags().Lookup(name)
		require.NotNil(t, flag, "flag --%s", name)
		assert.Equal(t, want, flag.DefValue, "flag --%s", name)
	}
}

func TestServeHelpNamesSQLiteLimits(t *testing.T) {
	cmd := NewRootCommand()
	serveCmd, _, err := cmd.Find([]string{"serve"})
	require.NoError(t, err)

	assert.Contains(t, serveCmd.Long, "cannot run DuckDB SQL")
	assert.Contains(t, serveCmd.Long, "parquet_scan")
	assert.Contains(t, serveCmd.Long, "configs/depth")
}

func TestClientCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"snapshot", "journal"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err)

		serverFlag := sub.Flags().Lookup("server")
		require.NotNil(t, serverFlag)
		assert.Equal(t, "http://localhost:8890", serverFlag.DefValue)
		require.NotNil(t, sub.Flags().Lookup("timeout"))
	}
}

func TestFormatValidation(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))

	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("TEXT"))
}

func TestFormatValidationIntegration(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"--format", "invalid", "validate", "."})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}
