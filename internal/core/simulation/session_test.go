package simulation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zeusync/statesync/internal/core/components"
	"github.com/zeusync/statesync/internal/core/ecs"
	"github.com/zeusync/statesync/internal/core/events/bus"
	"github.com/zeusync/statesync/internal/core/observability/log"
	"github.com/zeusync/statesync/internal/core/observability/metrics"
	"github.com/zeusync/statesync/internal/core/schema/registry"
	"github.com/zeusync/statesync/internal/core/systems/physics"
)

func TestSession(t *testing.T) {
	r := ecs.NewRegistry()
	d := bus.NewDispatcher(metrics.NewRegistry())
	cfg := DefaultConfig()
	cfg.Settings.FixedDt = 0.01

	s := Start(context.Background(), log.NewNop(), d, r, registry.Shared(), cfg, 0)

	e := r.Create()
	ecs.Emplace(r, e, components.RigidBodyTag{})
	ecs.Emplace(r, e, components.DynamicTag{})
	ecs.Emplace(r, e, components.ProceduralTag{})
	ecs.Emplace(r, e, components.Position(physics.Vec3{Y: 100}))
	ecs.Emplace(r, e, components.LinVel{})
	s.Stepper().AttachBody(e)

	start := time.Now()
	require.Eventually(t, func() bool {
		s.Stepper().Update(time.Since(start).Seconds())
		pos, _ := ecs.Get[components.Position](r, e)
		return pos.Y < 100
	}, 5*time.Second, 10*time.Millisecond)
	require.Greater(t, s.Stepper().SimTime(), 0.0)

	require.NoError(t, s.Stop())
	require.ErrorIs(t, s.Stop(), ErrStopped)
}
