package worker

import (
	"github.com/zeusync/statesync/internal/core/components"
	"github.com/zeusync/statesync/internal/core/ecs"
	"github.com/zeusync/statesync/internal/core/models"
	"github.com/zeusync/statesync/internal/core/replication/ops"
	"github.com/zeusync/statesync/internal/core/systems/physics"
)

// Integrate advances every awake dynamic body by dt with semi-implicit Euler
// and returns the bodies that moved. Writes go through Patch so update
// listeners observe them.
func Integrate(r *ecs.Registry, dt float64, defaultGravity physics.Vec3) []models.Entity {
	var moved []models.Entity
	for _, e := range ecs.View[components.DynamicTag](r) {
		if ecs.Has[SleepingTag](r, e) {
			continue
		}
		if m, ok := ecs.Get[components.Mass](r, e); ok && m == 0 {
			continue
		}

		g := defaultGravity
		if custom, ok := ecs.Get[components.Gravity](r, e); ok {
			g = custom.Vec()
		}

		vel, _ := ecs.Get[components.LinVel](r, e)
		v := vel.Vec().Add(g.Scale(dt))
		if ecs.Has[components.LinVel](r, e) {
			ecs.Patch(r, e, func(lv *components.LinVel) { *lv = components.LinVel(v) })
		}
		if ecs.Patch(r, e, func(p *components.Position) {
			*p = components.Position(p.Vec().Add(v.Scale(dt)))
		}) {
			moved = append(moved, e)
		}
	}
	return moved
}

func (w *Worker) integrate(dt float64) {
	moved := Integrate(w.registry, dt, w.cfg.Settings.Gravity)
	w.simTime += dt

	for _, e := range moved {
		vel, _ := ecs.Get[components.LinVel](w.registry, e)
		if vel.Vec().Length() < w.cfg.Settings.SleepThreshold {
			w.sleepTimers[e] += dt
			if w.sleepTimers[e] >= w.cfg.Settings.SleepDelay {
				ecs.Emplace(w.registry, e, SleepingTag{})
			}
		} else {
			delete(w.sleepTimers, e)
		}
	}

	ops.ReplaceChecked[components.Position](w.builder, w.registry, moved...)
	ops.ReplaceChecked[components.LinVel](w.builder, w.registry, moved...)
}
