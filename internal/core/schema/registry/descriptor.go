package registry

import (
	"fmt"
	"reflect"

	"github.com/zeusync/statesync/internal/core/ecs"
	"github.com/zeusync/statesync/internal/core/models"
	"github.com/zeusync/statesync/pkg/encoding"
)

// Decoder is implemented by pointers to non-empty component types.
type Decoder interface {
	DecodeFrom(r *encoding.Reader)
}

// EntityRemapper is implemented by components that embed entity references.
type EntityRemapper[T any] interface {
	RemapEntities(fn func(models.Entity) models.Entity) T
}

// Merger is implemented by components with field-level reconciliation. Merge
// must be idempotent for equal inputs.
type Merger[T any] interface {
	Merge(incoming T) T
}

// Cloner is implemented by components holding mutable reference data.
type Cloner[T any] interface {
	Clone() T
}

// Descriptor is the registered, type-erased view of one component type.
type Descriptor struct {
	Index    models.ComponentIndex
	ID       models.TypeID
	Name     string
	Type     reflect.Type
	Empty    bool
	Category Category

	ops operations
}

type operations struct {
	has         func(r *ecs.Registry, e models.Entity) bool
	get         func(r *ecs.Registry, e models.Entity) (any, bool)
	emplace     func(r *ecs.Registry, e models.Entity, v any)
	replace     func(r *ecs.Registry, e models.Entity, v any) bool
	assign      func(r *ecs.Registry, e models.Entity, v any) bool
	merge       func(r *ecs.Registry, e models.Entity, v any)
	remove      func(r *ecs.Registry, e models.Entity) bool
	view        func(r *ecs.Registry) []models.Entity
	encode      func(w *encoding.Writer, v any)
	decode      func(rd *encoding.Reader) any
	remap       func(v any, fn func(models.Entity) models.Entity) any
	clone       func(v any) any
	onConstruct func(r *ecs.Registry) *ecs.Signal
	onUpdate    func(r *ecs.Registry) *ecs.Signal
	onDestroy   func(r *ecs.Registry) *ecs.Signal
}

func (d *Descriptor) String() string { return fmt.Sprintf("%s#%d", d.Name, d.Index) }

func (d *Descriptor) Has(r *ecs.Registry, e models.Entity) bool { return d.ops.has(r, e) }

// Get returns a private copy of e's component value.
func (d *Descriptor) Get(r *ecs.Registry, e models.Entity) (any, bool) { return d.ops.get(r, e) }

// Emplace assigns v, or the zero value when v is nil, to e.
func (d *Descriptor) Emplace(r *ecs.Registry, e models.Entity, v any) { d.ops.emplace(r, e, v) }

func (d *Descriptor) Replace(r *ecs.Registry, e models.Entity, v any) bool {
	return d.ops.replace(r, e, v)
}

// Assign overwrites an existing value without publishing the update signal.
func (d *Descriptor) Assign(r *ecs.Registry, e models.Entity, v any) bool {
	return d.ops.assign(r, e, v)
}

// Merge applies an incoming value: tags are emplaced only if absent, existing
// values go through the component's merge rule when it has one, anything else
// is emplaced.
func (d *Descriptor) Merge(r *ecs.Registry, e models.Entity, v any) { d.ops.merge(r, e, v) }

func (d *Descriptor) Remove(r *ecs.Registry, e models.Entity) bool { return d.ops.remove(r, e) }

func (d *Descriptor) View(r *ecs.Registry) []models.Entity { return d.ops.view(r) }

func (d *Descriptor) Encode(w *encoding.Writer, v any) { d.ops.encode(w, v) }

func (d *Descriptor) Decode(rd *encoding.Reader) any { return d.ops.decode(rd) }

// Remap passes every entity reference inside v through fn.
func (d *Descriptor) Remap(v any, fn func(models.Entity) models.Entity) any {
	return d.ops.remap(v, fn)
}

func (d *Descriptor) Clone(v any) any { return d.ops.clone(v) }

func (d *Descriptor) OnConstruct(r *ecs.Registry) *ecs.Signal { return d.ops.onConstruct(r) }

func (d *Descriptor) OnUpdate(r *ecs.Registry) *ecs.Signal { return d.ops.onUpdate(r) }

func (d *Descriptor) OnDestroy(r *ecs.Registry) *ecs.Signal { return d.ops.onDestroy(r) }

func operationsFor[T any](name string) operations {
	typ := reflect.TypeFor[T]()
	empty := typ.Size() == 0

	var zero T
	_, encodes := any(zero).(encoding.Encoder)
	_, decodes := any(&zero).(Decoder)
	if !empty && (!encodes || !decodes) {
		panic(fmt.Sprintf("registry: component %q (%s) has no binary codec", name, typ))
	}

	cast := func(v any) T {
		if v == nil {
			var z T
			return z
		}
		return v.(T)
	}
	clone := func(v T) T {
		if c, ok := any(v).(Cloner[T]); ok {
			return c.Clone()
		}
		return v
	}

	return operations{
		has: ecs.Has[T],
		get: func(r *ecs.Registry, e models.Entity) (any, bool) {
			v, ok := ecs.Get[T](r, e)
			if !ok {
				return nil, false
			}
			return clone(v), true
		},
		emplace: func(r *ecs.Registry, e models.Entity, v any) {
			ecs.Emplace(r, e, cast(v))
		},
		replace: func(r *ecs.Registry, e models.Entity, v any) bool {
			return ecs.Replace(r, e, cast(v))
		},
		assign: func(r *ecs.Registry, e models.Entity, v any) bool {
			return ecs.Set(r, e, cast(v))
		},
		merge: func(r *ecs.Registry, e models.Entity, v any) {
			if empty {
				if !ecs.Has[T](r, e) {
					ecs.Emplace(r, e, cast(v))
				}
				return
			}
			incoming := cast(v)
			if cur, ok := ecs.Get[T](r, e); ok {
				if m, ok := any(cur).(Merger[T]); ok {
					ecs.Replace(r, e, m.Merge(incoming))
					return
				}
			}
			ecs.Emplace(r, e, incoming)
		},
		remove: ecs.Remove[T],
		view:   ecs.View[T],
		encode: func(w *encoding.Writer, v any) {
			if empty {
				return
			}
			any(cast(v)).(encoding.Encoder).EncodeTo(w)
		},
		decode: func(rd *encoding.Reader) any {
			var out T
			if !empty {
				any(&out).(Decoder).DecodeFrom(rd)
			}
			return out
		},
		remap: func(v any, fn func(models.Entity) models.Entity) any {
			t := cast(v)
			if m, ok := any(t).(EntityRemapper[T]); ok {
				return m.RemapEntities(fn)
			}
			return t
		},
		clone: func(v any) any {
			return clone(cast(v))
		},
		onConstruct: ecs.OnConstruct[T],
		onUpdate:    ecs.OnUpdate[T],
		onDestroy:   ecs.OnDestroy[T],
	}
}
