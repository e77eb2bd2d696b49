package ecs

import (
	"reflect"

	"github.com/zeusync/statesync/internal/core/models"
)

// Registry is the live entity-component store. It is not safe for concurrent
// use; each side of a replication channel owns its own registry.
type Registry struct {
	next       models.Entity
	alive      map[models.Entity]struct{}
	pools      map[reflect.Type]storage
	order      []storage
	destroying models.EntitySet

	onDestroyEntity Signal
}

func NewRegistry() *Registry {
	return &Registry{
		next:       1,
		alive:      make(map[models.Entity]struct{}),
		pools:      make(map[reflect.Type]storage),
		destroying: make(models.EntitySet),
	}
}

// Create allocates a new entity. Identifiers are never reused.
func (r *Registry) Create() models.Entity {
	e := r.next
	r.next++
	r.alive[e] = struct{}{}
	return e
}

// Valid reports whether e was created by this registry and not destroyed.
func (r *Registry) Valid(e models.Entity) bool {
	_, ok := r.alive[e]
	return ok
}

// Len returns the number of live entities.
func (r *Registry) Len() int { return len(r.alive) }

// Destroying reports whether e is in the middle of being destroyed.
func (r *Registry) Destroying(e models.Entity) bool {
	return r.destroying.Contains(e)
}

// OnDestroyEntity is published before any component of the entity is removed.
func (r *Registry) OnDestroyEntity() *Signal { return &r.onDestroyEntity }

// Destroy removes every component of e, publishing each pool's destroy signal
// while the component is still readable, then releases the entity. Destroying
// other entities from within a listener is allowed.
func (r *Registry) Destroy(e models.Entity) {
	if !r.Valid(e) || r.destroying.Contains(e) {
		return
	}
	r.destroying.Insert(e)
	r.onDestroyEntity.publish(r, e)

	for _, pool := range r.order {
		if pool.Contains(e) {
			pool.remove(r, e)
		}
	}

	r.destroying.Remove(e)
	delete(r.alive, e)
}

// Orphan reports whether e holds no component at all.
func (r *Registry) Orphan(e models.Entity) bool {
	for _, pool := range r.order {
		if pool.Contains(e) {
			return false
		}
	}
	return true
}

// Assure returns the pool for T, creating it on first use.
func Assure[T any](r *Registry) *Pool[T] {
	key := reflect.TypeFor[T]()
	if s, ok := r.pools[key]; ok {
		return s.(*Pool[T])
	}
	p := newPool[T]()
	r.pools[key] = p
	r.order = append(r.order, p)
	return p
}

func lookup[T any](r *Registry) *Pool[T] {
	if s, ok := r.pools[reflect.TypeFor[T]()]; ok {
		return s.(*Pool[T])
	}
	return nil
}

// Emplace assigns v to e. A new component publishes the construct signal; an
// existing one is overwritten and publishes the update signal.
func Emplace[T any](r *Registry, e models.Entity, v T) {
	if !r.Valid(e) {
		panic("ecs: emplace on invalid entity")
	}
	p := Assure[T](r)
	if ptr := p.ptr(e); ptr != nil {
		*ptr = v
		p.update.publish(r, e)
		return
	}
	p.insert(e, v)
	p.construct.publish(r, e)
}

// Replace overwrites an existing component. It returns false when e does not
// hold T.
func Replace[T any](r *Registry, e models.Entity, v T) bool {
	p := lookup[T](r)
	if p == nil {
		return false
	}
	ptr := p.ptr(e)
	if ptr == nil {
		return false
	}
	*ptr = v
	p.update.publish(r, e)
	return true
}

// Set overwrites an existing component without publishing any signal. It
// returns false when e does not hold T.
func Set[T any](r *Registry, e models.Entity, v T) bool {
	p := lookup[T](r)
	if p == nil {
		return false
	}
	ptr := p.ptr(e)
	if ptr == nil {
		return false
	}
	*ptr = v
	return true
}

// Patch edits a component in place and publishes the update signal.
func Patch[T any](r *Registry, e models.Entity, fn func(*T)) bool {
	p := lookup[T](r)
	if p == nil {
		return false
	}
	ptr := p.ptr(e)
	if ptr == nil {
		return false
	}
	fn(ptr)
	p.update.publish(r, e)
	return true
}

// Get returns a copy of e's component.
func Get[T any](r *Registry, e models.Entity) (T, bool) {
	var zero T
	p := lookup[T](r)
	if p == nil {
		return zero, false
	}
	ptr := p.ptr(e)
	if ptr == nil {
		return zero, false
	}
	return *ptr, true
}

// Has reports whether e holds a T. It never allocates a pool.
func Has[T any](r *Registry, e models.Entity) bool {
	p := lookup[T](r)
	return p != nil && p.Contains(e)
}

// Remove deletes e's component, publishing the destroy signal first.
func Remove[T any](r *Registry, e models.Entity) bool {
	p := lookup[T](r)
	if p == nil {
		return false
	}
	return p.remove(r, e)
}

// View returns the entities currently holding T.
func View[T any](r *Registry) []models.Entity {
	p := lookup[T](r)
	if p == nil {
		return nil
	}
	return p.Entities()
}

// Count returns the number of entities holding T.
func Count[T any](r *Registry) int {
	p := lookup[T](r)
	if p == nil {
		return 0
	}
	return p.Len()
}

// Each visits every T in the store. The callback may modify the value through
// the pointer; no signal is published for such writes.
func Each[T any](r *Registry, fn func(e models.Entity, v *T)) {
	p := lookup[T](r)
	if p == nil {
		return
	}
	for _, e := range p.Entities() {
		if ptr := p.ptr(e); ptr != nil {
			fn(e, ptr)
		}
	}
}

func OnConstruct[T any](r *Registry) *Signal { return &Assure[T](r).construct }

func OnUpdate[T any](r *Registry) *Signal { return &Assure[T](r).update }

func OnDestroy[T any](r *Registry) *Signal { return &Assure[T](r).destroy }
