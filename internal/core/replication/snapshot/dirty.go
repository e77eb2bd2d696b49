package snapshot

import (
	"github.com/zeusync/statesync/internal/core/components"
	"github.com/zeusync/statesync/internal/core/ecs"
	"github.com/zeusync/statesync/internal/core/models"
	"github.com/zeusync/statesync/internal/core/schema/registry"
)

// DirtyTracker marks components as NetworkDirty whenever they are constructed
// or updated, so the next dirty export includes them.
type DirtyTracker struct {
	registry *ecs.Registry
	conns    []*ecs.Connection
	active   bool
}

// TrackDirty connects to the construct and update signals of every type in
// src.
func TrackDirty(r *ecs.Registry, src *registry.IndexSource) *DirtyTracker {
	t := &DirtyTracker{registry: r, active: true}
	for _, d := range src.All() {
		id := d.ID
		mark := func(r *ecs.Registry, e models.Entity) {
			if t.active {
				MarkDirty(r, e, id)
			}
		}
		t.conns = append(t.conns, d.OnConstruct(r).Connect(mark), d.OnUpdate(r).Connect(mark))
	}
	return t
}

// SetActive pauses or resumes tracking, e.g. while importing remote state
// that must not be echoed back.
func (t *DirtyTracker) SetActive(active bool) { t.active = active }

func (t *DirtyTracker) Close() {
	ecs.DisconnectAll(t.conns)
	t.conns = nil
}

// MarkDirty records that component id of e changed.
func MarkDirty(r *ecs.Registry, e models.Entity, id models.TypeID) {
	if ecs.Patch(r, e, func(d *components.NetworkDirty) { d.Insert(id) }) {
		return
	}
	ecs.Emplace(r, e, components.NetworkDirty{Types: []models.TypeID{id}})
}

// ClearDirty resets the dirty records of the given entities, or of every
// entity when none are given.
func ClearDirty(r *ecs.Registry, entities ...models.Entity) {
	if len(entities) == 0 {
		ecs.Each(r, func(_ models.Entity, d *components.NetworkDirty) { d.Clear() })
		return
	}
	for _, e := range entities {
		ecs.Patch(r, e, func(d *components.NetworkDirty) { d.Clear() })
	}
}
