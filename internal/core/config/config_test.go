package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zeusync/statesync/internal/core/observability/log"
	"github.com/zeusync/statesync/internal/core/schema/registry"
)

func TestConfig(t *testing.T) {
	t.Run("Defaults are valid", func(t *testing.T) {
		cfg := Default()
		require.NoError(t, cfg.Validate())

		echo, err := cfg.OwnerEcho()
		require.NoError(t, err)
		require.Equal(t, registry.OwnerEcho, echo)
		require.Equal(t, 0.12, cfg.Stepper.Delay.EnterAbove)
		require.Equal(t, "main", cfg.Stepper.MainQueue)
	})

	t.Run("Empty document keeps defaults", func(t *testing.T) {
		cfg, err := Parse(strings.NewReader(""))
		require.NoError(t, err)
		require.Equal(t, Default(), cfg)
	})

	t.Run("Partial override", func(t *testing.T) {
		cfg, err := Parse(strings.NewReader(`
simulation:
  fixed_dt: 0.02
  gravity: {x: 0, y: -3.7, z: 0}
stepper:
  delay:
    window: 8
replication:
  owner_echo: [input]
network:
  transport: quic
  publish_rate: 100ms
log:
  level: debug
`))
		require.NoError(t, err)
		require.Equal(t, 0.02, cfg.Simulation.FixedDt)
		require.Equal(t, -3.7, cfg.Simulation.Gravity.Y)
		require.Equal(t, 10, cfg.Simulation.MaxSteps)
		require.Equal(t, 8, cfg.Stepper.Delay.Window)
		require.Equal(t, 1.7, cfg.Stepper.Delay.IncreaseRate)
		require.Equal(t, TransportQUIC, cfg.Network.Transport)
		require.Equal(t, 100*time.Millisecond, cfg.Network.PublishRate)
		require.Equal(t, log.LevelDebug, cfg.LogLevel())

		echo, err := cfg.OwnerEcho()
		require.NoError(t, err)
		require.Equal(t, registry.CategoryInput, echo)
	})

	t.Run("Invalid values", func(t *testing.T) {
		_, err := Parse(strings.NewReader(`
simulation:
  fixed_dt: 0
replication:
  owner_echo: [telepathy]
network:
  transport: carrier-pigeon
`))
		require.ErrorIs(t, err, ErrInvalid)
		require.ErrorIs(t, err, registry.ErrUnknownCategory)
		require.Contains(t, err.Error(), "fixed_dt")
		require.Contains(t, err.Error(), "carrier-pigeon")
	})

	t.Run("WebSocket path must be absolute", func(t *testing.T) {
		for _, path := range []string{`""`, "sync"} {
			_, err := Parse(strings.NewReader("network:\n  path: " + path + "\n"))
			require.ErrorIs(t, err, ErrInvalid)
			require.Contains(t, err.Error(), "network.path")
		}

		cfg := Default()
		cfg.Network.Transport = TransportQUIC
		cfg.Network.Path = ""
		require.NoError(t, cfg.Validate())
	})

	t.Run("Unknown keys are rejected", func(t *testing.T) {
		_, err := Parse(strings.NewReader("simulaton: {}\n"))
		require.Error(t, err)
	})

	t.Run("Load from file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "statesync.yaml")
		require.NoError(t, os.WriteFile(path, []byte("log:\n  level: warn\n"), 0o600))

		cfg, err := Load(path)
		require.NoError(t, err)
		require.Equal(t, log.LevelWarn, cfg.LogLevel())

		_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
		require.ErrorIs(t, err, os.ErrNotExist)
	})
}
