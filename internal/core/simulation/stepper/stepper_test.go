package stepper

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zeusync/statesync/internal/core/components"
	"github.com/zeusync/statesync/internal/core/ecs"
	"github.com/zeusync/statesync/internal/core/events/bus"
	"github.com/zeusync/statesync/internal/core/models"
	"github.com/zeusync/statesync/internal/core/observability/log"
	"github.com/zeusync/statesync/internal/core/observability/metrics"
	"github.com/zeusync/statesync/internal/core/schema/registry"
	"github.com/zeusync/statesync/internal/core/simulation/messages"
	"github.com/zeusync/statesync/internal/core/simulation/worker"
	"github.com/zeusync/statesync/internal/core/systems/physics"
)

func TestPresentationDelay(t *testing.T) {
	cfg := DefaultDelayConfig()
	cfg.Window = 4
	const elapsed = 0.1

	settle := func(t *testing.T) *PresentationDelay {
		t.Helper()
		p := NewPresentationDelay(cfg)
		for i := 0; i < 60; i++ {
			for _, diff := range []float64{0.10, 0.12, 0.11} {
				p.Update(diff, elapsed)
			}
		}
		require.False(t, p.Adjusting())
		return p
	}

	t.Run("Spike moves delay gradually", func(t *testing.T) {
		p := settle(t)
		before := p.Delay()
		require.InDelta(t, 0.119, before, 0.01)

		p.Update(0.50, elapsed)
		require.True(t, p.Adjusting())
		require.Greater(t, p.Delay(), before)
		require.Less(t, p.Delay(), p.Target())

		prev := p.Delay()
		for i := 0; i < 8; i++ {
			p.Update(0.50, elapsed)
			require.Greater(t, p.Delay(), prev)
			require.Less(t, p.Delay(), 0.5)
			prev = p.Delay()
		}
	})

	t.Run("Decrease is slower than increase", func(t *testing.T) {
		single := cfg
		single.Window = 1

		p := NewPresentationDelay(single)
		p.Update(1, elapsed)
		require.InDelta(t, 0.17, p.Delay(), 1e-9)

		for i := 0; i < 200; i++ {
			p.Update(1, elapsed)
		}
		from := p.Delay()
		require.InDelta(t, 1, from, 1e-6)

		p.Update(0, elapsed)
		require.InDelta(t, 0.033, from-p.Delay(), 1e-6)
	})

	t.Run("Time difference is clamped", func(t *testing.T) {
		p := NewPresentationDelay(cfg)
		p.Update(50, elapsed)
		require.InDelta(t, 0.25+0.375, p.Target(), 1e-9)
	})

	t.Run("Reset", func(t *testing.T) {
		p := settle(t)
		p.Reset()
		require.Zero(t, p.Delay())
		require.True(t, p.Adjusting())
	})
}

func TestPresentation(t *testing.T) {
	r := ecs.NewRegistry()
	e := r.Create()
	ecs.Emplace(r, e, components.Position{X: 1})
	ecs.Emplace(r, e, components.LinVel{X: 2})
	ecs.Emplace(r, e, components.PresentPosition{})

	UpdatePresentation(r, 1, 2, 0.25)
	present, _ := ecs.Get[components.PresentPosition](r, e)
	require.InDelta(t, 2.5, present.X, 1e-9)

	SnapPresentation(r)
	present, _ = ecs.Get[components.PresentPosition](r, e)
	require.Equal(t, components.PresentPosition{X: 1}, present)
}

type countingEmitter struct{ consumed int }

func (c *countingEmitter) ConsumeEvents() { c.consumed++ }

type harness struct {
	d       *bus.Dispatcher
	r       *ecs.Registry
	stepper *Stepper
	worker  *worker.Worker
	emitter *countingEmitter
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	src := registry.Shared()
	d := bus.NewDispatcher(metrics.NewRegistry())
	r := ecs.NewRegistry()
	em := &countingEmitter{}

	wcfg := worker.DefaultConfig()
	wcfg.Settings.FixedDt = 0.1
	wcfg.Settings.Gravity = physics.Vec3{Y: -10}
	w := worker.New(log.NewNop(), d, src, wcfg)
	s := New(log.NewNop(), d, r, src, DefaultConfig(), 0, WithEventEmitter(em))
	t.Cleanup(func() {
		_ = s.Close()
		_ = w.Close()
	})
	return &harness{d: d, r: r, stepper: s, worker: w, emitter: em}
}

func (h *harness) body(pos physics.Vec3, dynamic bool) models.Entity {
	e := h.r.Create()
	ecs.Emplace(h.r, e, components.RigidBodyTag{})
	ecs.Emplace(h.r, e, components.ProceduralTag{})
	ecs.Emplace(h.r, e, components.Position(pos))
	ecs.Emplace(h.r, e, components.LinVel{})
	ecs.Emplace(h.r, e, components.Sphere{Radius: 1})
	ecs.Emplace(h.r, e, components.PresentPosition{})
	if dynamic {
		ecs.Emplace(h.r, e, components.DynamicTag{})
	}
	h.stepper.AttachBody(e)
	return e
}

func pending(t *testing.T, d *bus.Dispatcher, name string) int {
	t.Helper()
	q, err := d.Queue(name)
	require.NoError(t, err)
	return q.Pending()
}

func TestStepper(t *testing.T) {
	t.Run("Round trip through worker", func(t *testing.T) {
		h := newHarness(t)
		e := h.body(physics.Vec3{Y: 10}, true)
		require.True(t, h.stepper.Observer().Observed(e))
		require.Equal(t, 1, h.stepper.Graph().NodeCount())

		h.stepper.Sync()
		require.Equal(t, 1, pending(t, h.d, messages.WorkerQueue))
		h.worker.Process()
		h.worker.Step()

		h.stepper.Update(0.2)
		require.InDelta(t, 0.1, h.stepper.SimTime(), 1e-9)
		require.Equal(t, 1, h.emitter.consumed)

		remote := h.stepper.EntityMap().Remote(e)
		require.False(t, remote.IsNull())
		require.Equal(t, h.worker.EntityMap().Local(e), remote)

		pos, _ := ecs.Get[components.Position](h.r, e)
		require.InDelta(t, 9.9, pos.Y, 1e-9)

		// Applying the worker's update must not echo back.
		require.Zero(t, pending(t, h.d, messages.WorkerQueue))
	})

	t.Run("Local changes are forwarded", func(t *testing.T) {
		h := newHarness(t)
		e := h.body(physics.Vec3{}, false)
		h.stepper.Sync()
		h.worker.Process()

		ecs.Replace(h.r, e, components.Position{X: 4})
		h.stepper.Update(0.1)
		h.worker.Process()

		local := h.worker.EntityMap().Local(e)
		pos, _ := ecs.Get[components.Position](h.worker.Registry(), local)
		require.Equal(t, components.Position{X: 4}, pos)
	})

	t.Run("Raycast callback runs once in local space", func(t *testing.T) {
		h := newHarness(t)
		target := h.body(physics.Vec3{X: 5}, false)
		h.stepper.Sync()
		h.worker.Process()
		h.worker.Step()
		h.stepper.Update(0.1)

		calls := 0
		var got messages.RaycastResult
		id := h.stepper.Raycast(physics.Vec3{}, physics.Vec3{X: 10}, func(rid uint64, res messages.RaycastResult, p0, p1 physics.Vec3) {
			calls++
			got = res
			require.Equal(t, physics.Vec3{X: 10}, p1)
		})
		second := h.stepper.Raycast(physics.Vec3{}, physics.Vec3{X: 10}, func(uint64, messages.RaycastResult, physics.Vec3, physics.Vec3) {}, target)
		require.Equal(t, id+1, second)
		require.Equal(t, 2, h.stepper.Pending())

		h.worker.Process()
		h.stepper.Update(0.2)
		h.stepper.Update(0.3)

		require.Equal(t, 1, calls)
		require.Equal(t, target, got.Entity)
		require.Zero(t, h.stepper.Pending())
	})

	t.Run("Query translates and drops unknown entities", func(t *testing.T) {
		h := newHarness(t)
		e := h.body(physics.Vec3{}, false)
		h.stepper.Sync()
		h.worker.Process()
		h.worker.Step()
		h.stepper.Update(0.1)

		var got messages.QueryAABBResult
		id := h.stepper.QueryAABBOfInterest(physics.AABBAround(physics.Vec3{}, 1), func(_ uint64, res messages.QueryAABBResult) {
			got = res
		})
		require.NoError(t, h.d.Send(messages.MainQueue, messages.QueryAABBResponse{
			ID: id,
			Result: messages.QueryAABBResult{
				ProceduralEntities: []models.Entity{h.stepper.EntityMap().Remote(e), 999},
			},
		}))
		h.stepper.Update(0.2)
		require.Equal(t, []models.Entity{e}, got.ProceduralEntities)
		require.Empty(t, got.IslandEntities)
	})

	t.Run("Unknown response is ignored", func(t *testing.T) {
		h := newHarness(t)
		require.NoError(t, h.d.Send(messages.MainQueue, messages.RaycastResponse{ID: 42}))
		require.NotPanics(t, func() { h.stepper.Update(0.1) })
	})

	t.Run("Pause resets delay", func(t *testing.T) {
		h := newHarness(t)
		h.stepper.Update(0.5)
		require.NotZero(t, h.stepper.PresentationDelay().Delay())

		h.stepper.SetPaused(true)
		require.True(t, h.stepper.Paused())
		require.Zero(t, h.stepper.PresentationDelay().Delay())
		h.worker.Process()
		require.True(t, h.worker.Paused())
	})

	t.Run("Destroying a node tears down its edges", func(t *testing.T) {
		h := newHarness(t)
		a := h.body(physics.Vec3{}, false)
		b := h.body(physics.Vec3{X: 2}, false)
		c := h.r.Create()
		ecs.Emplace(h.r, c, components.DistanceConstraint{Body: [2]models.Entity{a, b}, Distance: 2})
		require.True(t, h.stepper.AttachConstraint(c))
		require.True(t, h.stepper.Observer().Observed(c))
		require.Equal(t, 1, h.stepper.Graph().EdgeCount())

		h.stepper.EntityMap().Insert(a, 100)
		h.stepper.EntityMap().Insert(c, 101)

		h.r.Destroy(a)
		require.False(t, h.r.Valid(c))
		require.Zero(t, h.stepper.Graph().EdgeCount())
		require.Equal(t, 1, h.stepper.Graph().NodeCount())
		require.False(t, h.stepper.EntityMap().ContainsLocal(a))
		require.False(t, h.stepper.EntityMap().ContainsLocal(c))
		require.False(t, h.stepper.Observer().Observed(a))
	})
}
