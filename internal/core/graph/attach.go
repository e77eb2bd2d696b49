package graph

import (
	"reflect"

	"github.com/zeusync/statesync/internal/core/components"
	"github.com/zeusync/statesync/internal/core/ecs"
	"github.com/zeusync/statesync/internal/core/models"
	"github.com/zeusync/statesync/internal/core/schema/registry"
)

// AttachBodies inserts a node for every valid entity that has none yet.
// Bodies without a procedural tag become non-connecting residents.
func AttachBodies(r *ecs.Registry, g *EntityGraph, entities []models.Entity) {
	for _, e := range entities {
		if !r.Valid(e) || ecs.Has[GraphNode](r, e) {
			continue
		}
		AttachNode(r, g, e, !ecs.Has[components.ProceduralTag](r, e))
	}
}

// ConstraintOf returns the first registered component of e that links two
// bodies.
func ConstraintOf(r *ecs.Registry, src *registry.IndexSource, e models.Entity) (components.Constraint, bool) {
	for _, d := range src.All() {
		if d.Empty || !d.Has(r, e) {
			continue
		}
		v, _ := d.Get(r, e)
		if c, ok := v.(components.Constraint); ok {
			return c, true
		}
	}
	return nil, false
}

// AttachConstraints inserts an edge for every valid constraint entity whose
// bodies are already nodes.
func AttachConstraints(r *ecs.Registry, g *EntityGraph, src *registry.IndexSource, entities []models.Entity) {
	for _, e := range entities {
		if !r.Valid(e) {
			continue
		}
		if c, ok := ConstraintOf(r, src, e); ok {
			AttachEdge(r, g, e, c.Bodies())
		}
	}
}

var constraintType = reflect.TypeFor[components.Constraint]()

// IsConstraint reports whether d's values link two bodies.
func IsConstraint(d *registry.Descriptor) bool {
	return d.Type.Implements(constraintType)
}
