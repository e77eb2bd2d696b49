package worker

import (
	"github.com/zeusync/statesync/internal/core/components"
	"github.com/zeusync/statesync/internal/core/ecs"
	"github.com/zeusync/statesync/internal/core/models"
	"github.com/zeusync/statesync/internal/core/observability/log"
	"github.com/zeusync/statesync/internal/core/simulation/messages"
	"github.com/zeusync/statesync/internal/core/systems/physics"
)

// Raycast finds the first sphere hit by the segment p0->p1, skipping the
// ignored entities.
func Raycast(r *ecs.Registry, p0, p1 physics.Vec3, ignore models.EntitySet) messages.RaycastResult {
	best := messages.RaycastResult{Entity: models.Null, Fraction: 1}
	for _, e := range ecs.View[components.Sphere](r) {
		if ignore.Contains(e) {
			continue
		}
		pos, ok := ecs.Get[components.Position](r, e)
		if !ok {
			continue
		}
		shape, _ := ecs.Get[components.Sphere](r, e)
		frac, hit := physics.RaySphere(p0, p1, pos.Vec(), shape.Radius)
		if !hit || (!best.Entity.IsNull() && frac >= best.Fraction) {
			continue
		}
		point := physics.Lerp(p0, p1, frac)
		best = messages.RaycastResult{Entity: e, Fraction: frac, Normal: point.Sub(pos.Vec()).Normalized()}
	}
	return best
}

// QueryAABB collects the bodies whose bounds intersect box, split by
// procedural tag, and optionally the islands containing them.
func (w *Worker) QueryAABB(box physics.AABB, procedural, nonProcedural, islands bool) messages.QueryAABBResult {
	var res messages.QueryAABBResult
	hits := make(models.EntitySet)

	for _, e := range ecs.View[components.Position](w.registry) {
		pos, _ := ecs.Get[components.Position](w.registry, e)
		shape, _ := ecs.Get[components.Sphere](w.registry, e)
		if !shape.Bounds(pos).Intersects(box) {
			continue
		}
		if ecs.Has[components.ProceduralTag](w.registry, e) {
			if procedural {
				res.ProceduralEntities = append(res.ProceduralEntities, e)
				hits.Insert(e)
			}
		} else if nonProcedural {
			res.NonProceduralEntities = append(res.NonProceduralEntities, e)
			hits.Insert(e)
		}
	}

	if islands {
		for _, island := range w.graph.ConnectedComponents() {
			for _, e := range island {
				if hits.Contains(e) {
					res.IslandEntities = append(res.IslandEntities, island...)
					break
				}
			}
		}
	}
	return res
}

func (w *Worker) onRaycast(msg messages.RaycastRequest) error {
	ignore := make(models.EntitySet, len(msg.Ignore))
	for _, remote := range msg.Ignore {
		if local := w.emap.Local(remote); !local.IsNull() {
			ignore.Insert(local)
		}
	}
	res := Raycast(w.registry, msg.P0, msg.P1, ignore)
	return w.reply(messages.RaycastResponse{ID: msg.ID, Result: res})
}

func (w *Worker) onQueryAABB(msg messages.QueryAABBRequest) error {
	res := w.QueryAABB(msg.AABB, msg.Procedural, msg.NonProcedural, msg.Islands)
	return w.reply(messages.QueryAABBResponse{ID: msg.ID, Result: res})
}

func (w *Worker) onQueryAABBOfInterest(msg messages.QueryAABBOfInterestRequest) error {
	res := w.QueryAABB(msg.AABB, true, true, true)
	return w.reply(messages.QueryAABBResponse{ID: msg.ID, Result: res})
}

func (w *Worker) reply(msg any) error {
	if err := w.dispatcher.Send(w.cfg.OutboxQueue, msg); err != nil {
		w.logger.Error("failed to send response", log.Error(err))
		return err
	}
	return nil
}
