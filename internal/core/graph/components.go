package graph

import (
	"github.com/zeusync/statesync/internal/core/ecs"
	"github.com/zeusync/statesync/internal/core/models"
)

// GraphNode links a body entity to its node.
type GraphNode struct {
	Index NodeIndex
}

// GraphEdge links a constraint entity to its edge.
type GraphEdge struct {
	Index EdgeIndex
}

// MultiIslandResident marks non-connecting bodies, which may belong to
// several islands at once. It is local state and never replicated.
type MultiIslandResident struct{}

// AttachNode inserts a node for e and records it on the entity.
func AttachNode(r *ecs.Registry, g *EntityGraph, e models.Entity, nonConnecting bool) NodeIndex {
	idx := g.InsertNode(e, nonConnecting)
	ecs.Emplace(r, e, GraphNode{Index: idx})
	if nonConnecting {
		ecs.Emplace(r, e, MultiIslandResident{})
	}
	return idx
}

// AttachEdge inserts an edge for the constraint entity e between two bodies.
// It returns false if e already has an edge or either body has no node.
func AttachEdge(r *ecs.Registry, g *EntityGraph, e models.Entity, bodies [2]models.Entity) (EdgeIndex, bool) {
	if ecs.Has[GraphEdge](r, e) {
		return NullEdge, false
	}
	n0, ok0 := ecs.Get[GraphNode](r, bodies[0])
	n1, ok1 := ecs.Get[GraphNode](r, bodies[1])
	if !ok0 || !ok1 {
		return NullEdge, false
	}
	idx := g.InsertEdge(e, n0.Index, n1.Index)
	ecs.Emplace(r, e, GraphEdge{Index: idx})
	return idx, true
}
