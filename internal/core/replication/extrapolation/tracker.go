package extrapolation

import (
	"github.com/zeusync/statesync/internal/core/ecs"
	"github.com/zeusync/statesync/internal/core/models"
	"github.com/zeusync/statesync/internal/core/replication/ops"
	"github.com/zeusync/statesync/internal/core/schema/registry"
)

// Tracker follows the components modified during a speculative run and keeps
// a shadow of the last authoritative value of each tracked component.
type Tracker struct {
	registry  *ecs.Registry
	source    *registry.IndexSource
	ownerEcho registry.Category
	conns     []*ecs.Connection
	shadows   map[models.ComponentIndex]map[models.Entity]any
}

type Option func(*Tracker)

// WithOwnerEcho sets the categories left out of exports for owned entities.
func WithOwnerEcho(c registry.Category) Option {
	return func(t *Tracker) { t.ownerEcho = c }
}

func NewTracker(r *ecs.Registry, src *registry.IndexSource, opts ...Option) *Tracker {
	t := &Tracker{
		registry:  r,
		source:    src,
		ownerEcho: registry.OwnerEcho,
		shadows:   make(map[models.ComponentIndex]map[models.Entity]any),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SetObserveChanges connects or disconnects the update hooks of every
// non-empty tracked type.
func (t *Tracker) SetObserveChanges(observe bool) {
	if !observe {
		ecs.DisconnectAll(t.conns)
		t.conns = nil
		return
	}
	if t.conns != nil {
		return
	}
	for _, d := range t.source.All() {
		if d.Empty {
			continue
		}
		idx := d.Index
		t.conns = append(t.conns, d.OnUpdate(t.registry).Connect(func(r *ecs.Registry, e models.Entity) {
			ecs.Set(r, e, t.recordOf(e, idx))
		}))
	}
}

func (t *Tracker) recordOf(e models.Entity, idx models.ComponentIndex) Modified {
	m, ok := ecs.Get[Modified](t.registry, e)
	if !ok {
		return m
	}
	m.Insert(idx)
	return m
}

// AddEntity attaches an empty record to e.
func (t *Tracker) AddEntity(e models.Entity) {
	ecs.Emplace(t.registry, e, newModified(t.source.Len()))
}

// RemoveEntity detaches e's record and forgets its shadow values.
func (t *Tracker) RemoveEntity(e models.Entity) {
	ecs.Remove[Modified](t.registry, e)
	for _, shadow := range t.shadows {
		delete(shadow, e)
	}
}

// ModifiedOf returns the indices recorded for e.
func (t *Tracker) ModifiedOf(e models.Entity) []models.ComponentIndex {
	m, _ := ecs.Get[Modified](t.registry, e)
	return m.Indices()
}

// ClearModified resets the records of the given entities.
func (t *Tracker) ClearModified(entities ...models.Entity) {
	for _, e := range entities {
		if m, ok := ecs.Get[Modified](t.registry, e); ok {
			m.Reset()
			ecs.Set(t.registry, e, m)
		}
	}
}

// ExportToBuilder writes a replace record for every modified component of
// the entities. Owner-echo categories are skipped for owned entities.
func (t *Tracker) ExportToBuilder(b *ops.Builder, entities []models.Entity, owned models.EntitySet) {
	for _, e := range entities {
		m, ok := ecs.Get[Modified](t.registry, e)
		if !ok {
			continue
		}
		isOwned := owned.Contains(e)
		for _, idx := range m.Indices() {
			d := t.source.Descriptor(idx)
			if d == nil || (isOwned && d.Category.Has(t.ownerEcho)) {
				continue
			}
			b.Record(t.registry, ops.KindReplace, d, true, e)
		}
	}
}

func (t *Tracker) shadow(idx models.ComponentIndex) map[models.Entity]any {
	s, ok := t.shadows[idx]
	if !ok {
		s = make(map[models.Entity]any)
		t.shadows[idx] = s
	}
	return s
}

// ImportRemoteState overwrites live components with their shadow values.
// The writes do not publish update signals.
func (t *Tracker) ImportRemoteState(entities ...models.Entity) {
	for _, d := range t.source.All() {
		if d.Empty {
			continue
		}
		shadow := t.shadow(d.Index)
		for _, e := range entities {
			if v, ok := shadow[e]; ok && d.Has(t.registry, e) {
				d.Assign(t.registry, e, d.Clone(v))
			}
		}
	}
}

// ExportRemoteState copies the live values of the entities into the shadow.
func (t *Tracker) ExportRemoteState(entities ...models.Entity) {
	for _, d := range t.source.All() {
		if d.Empty {
			continue
		}
		shadow := t.shadow(d.Index)
		for _, e := range entities {
			if v, ok := d.Get(t.registry, e); ok {
				shadow[e] = v
			}
		}
	}
}

// Run seeds the entities with their remote state, applies step the given
// number of times while observing changes, and returns the resulting replace
// operations. step must write through signalling store calls.
func (t *Tracker) Run(entities []models.Entity, owned models.EntitySet, steps int, step func(r *ecs.Registry)) ops.Log {
	t.ImportRemoteState(entities...)
	t.ClearModified(entities...)

	t.SetObserveChanges(true)
	for i := 0; i < steps; i++ {
		step(t.registry)
	}
	t.SetObserveChanges(false)

	b := ops.NewBuilder(t.source)
	t.ExportToBuilder(b, entities, owned)
	return b.Finish()
}
