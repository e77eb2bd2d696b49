package log

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogger(t *testing.T) {
	t.Run("Fields", func(t *testing.T) {
		core, logs := observer.New(zapcore.DebugLevel)
		l := NewWithCore(core)

		l.With(String("component", "stepper")).Info("step applied",
			Entity("entity", 42),
			Float64("sim_time", 1.5),
			Error(errors.New("boom")))

		entries := logs.All()
		require.Len(t, entries, 1)
		ctx := entries[0].ContextMap()
		require.Equal(t, "stepper", ctx["component"])
		require.Equal(t, uint64(42), ctx["entity"])
		require.Equal(t, 1.5, ctx["sim_time"])
		require.Equal(t, "boom", ctx["error"])
	})

	t.Run("Level filter", func(t *testing.T) {
		core, logs := observer.New(zapcore.DebugLevel)
		l := NewWithCore(core)
		l.SetLevel(LevelWarn)

		l.Debug("hidden")
		l.Info("hidden")
		l.Warn("shown")

		require.Equal(t, 1, logs.Len())
		require.Equal(t, LevelWarn, l.GetLevel())
	})

	t.Run("ParseLevel", func(t *testing.T) {
		require.Equal(t, LevelDebug, ParseLevel("debug"))
		require.Equal(t, LevelError, ParseLevel("error"))
		require.Equal(t, LevelInfo, ParseLevel("nonsense"))
	})
}
