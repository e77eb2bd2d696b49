package stepper

import (
	"github.com/zeusync/statesync/internal/core/components"
	"github.com/zeusync/statesync/internal/core/ecs"
	"github.com/zeusync/statesync/internal/core/models"
)

// UpdatePresentation extrapolates each presented position from the last
// simulated state to now minus the presentation delay.
func UpdatePresentation(r *ecs.Registry, simTime, now, delay float64) {
	dt := now - delay - simTime
	ecs.Each(r, func(e models.Entity, present *components.PresentPosition) {
		pos, ok := ecs.Get[components.Position](r, e)
		if !ok {
			return
		}
		vel, _ := ecs.Get[components.LinVel](r, e)
		*present = components.PresentPosition(pos.Vec().Add(vel.Vec().Scale(dt)))
	})
}

// SnapPresentation copies simulated positions as they are.
func SnapPresentation(r *ecs.Registry) {
	ecs.Each(r, func(e models.Entity, present *components.PresentPosition) {
		if pos, ok := ecs.Get[components.Position](r, e); ok {
			*present = components.PresentPosition(pos)
		}
	})
}
