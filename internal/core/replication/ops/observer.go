package ops

import (
	"github.com/zeusync/statesync/internal/core/ecs"
	"github.com/zeusync/statesync/internal/core/models"
)

// Observer feeds a Builder from store signals for the entities it observes.
type Observer struct {
	registry *ecs.Registry
	builder  *Builder
	observed models.EntitySet
	active   bool
	conns    []*ecs.Connection
}

// NewObserver connects to the construct, update and destroy signals of every
// type in the builder's index source. The observer starts active.
func NewObserver(r *ecs.Registry, b *Builder) *Observer {
	o := &Observer{
		registry: r,
		builder:  b,
		observed: make(models.EntitySet),
		active:   true,
	}

	for _, d := range b.Source().All() {
		id := d.ID
		o.conns = append(o.conns,
			d.OnConstruct(r).Connect(func(r *ecs.Registry, e models.Entity) {
				if o.accepts(e) {
					o.builder.EmplaceTypeID(r, e, id)
				}
			}),
			d.OnUpdate(r).Connect(func(r *ecs.Registry, e models.Entity) {
				if o.accepts(e) {
					o.builder.ReplaceTypeID(r, e, id)
				}
			}),
			d.OnDestroy(r).Connect(func(r *ecs.Registry, e models.Entity) {
				// A destroyed entity is covered by its destroy record.
				if o.accepts(e) && !r.Destroying(e) {
					o.builder.RemoveTypeID(r, e, id)
				}
			}),
		)
	}

	o.conns = append(o.conns, r.OnDestroyEntity().Connect(func(_ *ecs.Registry, e models.Entity) {
		if !o.observed.Contains(e) {
			return
		}
		if o.active {
			o.builder.Destroy(e)
		}
		o.observed.Remove(e)
	}))
	return o
}

func (o *Observer) accepts(e models.Entity) bool {
	return o.active && o.observed.Contains(e)
}

// Observe starts tracking e and, while active, records its creation with all
// its current components.
func (o *Observer) Observe(e models.Entity) {
	if o.observed.Contains(e) {
		return
	}
	o.observed.Insert(e)
	if o.active {
		o.builder.Create(e)
		o.builder.EmplaceAll(o.registry, e)
	}
}

func (o *Observer) Unobserve(e models.Entity) { o.observed.Remove(e) }

func (o *Observer) Observed(e models.Entity) bool { return o.observed.Contains(e) }

func (o *Observer) SetActive(active bool) { o.active = active }

func (o *Observer) Active() bool { return o.active }

// Close disconnects every signal.
func (o *Observer) Close() {
	ecs.DisconnectAll(o.conns)
	o.conns = nil
}
