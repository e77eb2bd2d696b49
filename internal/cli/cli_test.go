package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/statesync/internal/core/config"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "statesync", cmd.Use)

	for _, name := range []string{"serve", "config"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)
	assert.Equal(t, "", configFlag.DefValue)
}

func TestServeCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	serveCmd, _, err := cmd.Find([]string{"serve"})
	require.NoError(t, err)

	for _, name := range []string{"addr", "transport", "shutdown-timeout"} {
		require.NotNil(t, serveCmd.Flags().Lookup(name), name)
	}
}

func TestConfigCommand(t *testing.T) {
	t.Run("Prints defaults", func(t *testing.T) {
		buf := &bytes.Buffer{}
		cmd := NewConfigCommand(&RootOptions{})
		cmd.SetOut(buf)
		cmd.SetArgs(nil)
		require.NoError(t, cmd.Execute())

		cfg, err := config.Parse(buf)
		require.NoError(t, err)
		assert.Equal(t, config.Default(), cfg)
	})

	t.Run("Reads the config file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "statesync.yaml")
		require.NoError(t, os.WriteFile(path, []byte("network:\n  transport: quic\n"), 0o600))

		buf := &bytes.Buffer{}
		cmd := NewConfigCommand(&RootOptions{ConfigPath: path})
		cmd.SetOut(buf)
		cmd.SetArgs(nil)
		require.NoError(t, cmd.Execute())
		assert.Contains(t, buf.String(), "transport: quic")
	})

	t.Run("Missing file fails", func(t *testing.T) {
		cmd := NewConfigCommand(&RootOptions{ConfigPath: filepath.Join(t.TempDir(), "nope.yaml")})
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetArgs(nil)
		require.Error(t, cmd.Execute())
	})
}

func TestServeCommandRejectsInvalidConfig(t *testing.T) {
	cmd := NewServeCommand(&RootOptions{})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--transport", "carrier-pigeon"})

	err := cmd.Execute()
	require.ErrorIs(t, err, config.ErrInvalid)
}
