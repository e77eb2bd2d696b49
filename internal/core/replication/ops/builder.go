package ops

import (
	"fmt"

	"github.com/zeusync/statesync/internal/core/ecs"
	"github.com/zeusync/statesync/internal/core/models"
	"github.com/zeusync/statesync/internal/core/schema/registry"
)

// Builder accumulates store changes into a Log, keeping one record per
// (kind, type) so the log grows with the number of types touched rather than
// the number of touches. Each record holds an entity at most once; recording
// it again keeps its position and overwrites its value. Component values are
// read when recorded.
type Builder struct {
	source *registry.IndexSource
	ops    []Operation
	// index[i] maps an entity to its position in ops[i].Entities.
	index []map[models.Entity]int
}

func NewBuilder(source *registry.IndexSource) *Builder {
	return &Builder{source: source}
}

func (b *Builder) Source() *registry.IndexSource { return b.source }

func (b *Builder) lookup(kind Kind, d *registry.Descriptor) int {
	for i := range b.ops {
		if b.ops[i].Kind == kind && b.ops[i].Type == d {
			return i
		}
	}
	return -1
}

func (b *Builder) find(kind Kind, d *registry.Descriptor) int {
	if i := b.lookup(kind, d); i >= 0 {
		return i
	}
	b.ops = append(b.ops, Operation{Kind: kind, Type: d})
	b.index = append(b.index, make(map[models.Entity]int))
	return len(b.ops) - 1
}

// put adds e to record i, or overwrites its value when already present.
func (b *Builder) put(i int, e models.Entity, v any, withValue bool) {
	op := &b.ops[i]
	if j, ok := b.index[i][e]; ok {
		if withValue {
			op.Values[j] = v
		}
		return
	}
	b.index[i][e] = len(op.Entities)
	op.Entities = append(op.Entities, e)
	if withValue {
		op.Values = append(op.Values, v)
	}
}

// drop removes e from the (kind, d) record, keeping the order of the rest.
func (b *Builder) drop(kind Kind, d *registry.Descriptor, e models.Entity) {
	i := b.lookup(kind, d)
	if i < 0 {
		return
	}
	j, ok := b.index[i][e]
	if !ok {
		return
	}
	op := &b.ops[i]
	op.Entities = append(op.Entities[:j], op.Entities[j+1:]...)
	if len(op.Values) > j {
		op.Values = append(op.Values[:j], op.Values[j+1:]...)
	}
	if len(op.Mapped) > j {
		op.Mapped = append(op.Mapped[:j], op.Mapped[j+1:]...)
	}
	delete(b.index[i], e)
	for k := j; k < len(op.Entities); k++ {
		b.index[i][op.Entities[k]] = k
	}
}

// cancel keeps emplace/replace and remove of the same component for one
// entity mutually exclusive, so the latest of them wins regardless of the
// order records are applied in.
func (b *Builder) cancel(kind Kind, d *registry.Descriptor, e models.Entity) {
	switch kind {
	case KindRemove:
		b.drop(KindEmplace, d, e)
		b.drop(KindReplace, d, e)
	case KindEmplace:
		b.drop(KindRemove, d, e)
	}
}

func (b *Builder) Create(entities ...models.Entity) {
	i := b.find(KindCreate, nil)
	for _, e := range entities {
		b.put(i, e, nil, false)
	}
}

func (b *Builder) Destroy(entities ...models.Entity) {
	i := b.find(KindDestroy, nil)
	for _, e := range entities {
		b.put(i, e, nil, false)
	}
}

// Record adds entities to the (kind, d) record. In checked mode entities
// not currently holding d are skipped; removals are never checked. Recording
// an emplace or replace for an entity lacking a non-empty component without
// checking panics.
func (b *Builder) Record(r *ecs.Registry, kind Kind, d *registry.Descriptor, checked bool, entities ...models.Entity) {
	switch kind {
	case KindEmplace, KindReplace, KindRemove:
	default:
		panic(fmt.Sprintf("ops: %s is not a component operation", kind))
	}

	i := b.find(kind, d)
	for _, e := range entities {
		if checked && kind != KindRemove && !d.Has(r, e) {
			continue
		}
		if kind == KindRemove || d.Empty {
			b.cancel(kind, d, e)
			b.put(i, e, nil, false)
			continue
		}
		v, ok := d.Get(r, e)
		if !ok {
			panic(fmt.Sprintf("ops: entity %d has no %s", e, d.Name))
		}
		b.cancel(kind, d, e)
		b.put(i, e, v, true)
	}
}

// RecordValue adds e with an explicit value instead of reading the store.
func (b *Builder) RecordValue(kind Kind, d *registry.Descriptor, e models.Entity, v any) {
	i := b.find(kind, d)
	b.cancel(kind, d, e)
	if d.Empty || kind == KindRemove {
		b.put(i, e, nil, false)
		return
	}
	b.put(i, e, d.Clone(v), true)
}

func (b *Builder) all(r *ecs.Registry, kind Kind, entities []models.Entity) {
	for _, d := range b.source.All() {
		b.Record(r, kind, d, true, entities...)
	}
}

// EmplaceAll records every registered component the entities hold.
func (b *Builder) EmplaceAll(r *ecs.Registry, entities ...models.Entity) {
	b.all(r, KindEmplace, entities)
}

// ReplaceAll records the current value of every registered component the
// entities hold.
func (b *Builder) ReplaceAll(r *ecs.Registry, entities ...models.Entity) {
	b.all(r, KindReplace, entities)
}

// RemoveAll records removal of every registered type. Receivers ignore
// removals of components an entity does not hold.
func (b *Builder) RemoveAll(r *ecs.Registry, entities ...models.Entity) {
	b.all(r, KindRemove, entities)
}

func (b *Builder) byID(r *ecs.Registry, kind Kind, e models.Entity, ids []models.TypeID) {
	for _, id := range ids {
		if d := b.source.ByID(id); d != nil {
			b.Record(r, kind, d, true, e)
		}
	}
}

// EmplaceTypeID records component id of e. Unknown ids are ignored.
func (b *Builder) EmplaceTypeID(r *ecs.Registry, e models.Entity, id models.TypeID) {
	b.byID(r, KindEmplace, e, []models.TypeID{id})
}

func (b *Builder) ReplaceTypeID(r *ecs.Registry, e models.Entity, id models.TypeID) {
	b.byID(r, KindReplace, e, []models.TypeID{id})
}

func (b *Builder) RemoveTypeID(r *ecs.Registry, e models.Entity, id models.TypeID) {
	b.byID(r, KindRemove, e, []models.TypeID{id})
}

func (b *Builder) EmplaceTypeIDs(r *ecs.Registry, e models.Entity, ids ...models.TypeID) {
	b.byID(r, KindEmplace, e, ids)
}

func (b *Builder) ReplaceTypeIDs(r *ecs.Registry, e models.Entity, ids ...models.TypeID) {
	b.byID(r, KindReplace, e, ids)
}

func (b *Builder) RemoveTypeIDs(r *ecs.Registry, e models.Entity, ids ...models.TypeID) {
	b.byID(r, KindRemove, e, ids)
}

// AddEntityMapping tells the receiver that local, in the sender's space,
// corresponds to remote, which is the receiver's own entity.
func (b *Builder) AddEntityMapping(local, remote models.Entity) {
	i := b.find(KindEntityMap, nil)
	op := &b.ops[i]
	if j, ok := b.index[i][local]; ok {
		op.Mapped[j] = remote
		return
	}
	b.index[i][local] = len(op.Entities)
	op.Entities = append(op.Entities, local)
	op.Mapped = append(op.Mapped, remote)
}

// Empty reports whether no record holds any entity.
func (b *Builder) Empty() bool {
	for _, op := range b.ops {
		if len(op.Entities) > 0 {
			return false
		}
	}
	return true
}

// Finish hands over the accumulated log and resets the builder.
func (b *Builder) Finish() Log {
	out := Log{Operations: b.ops}
	b.ops, b.index = nil, nil
	return out
}

// Emplace records T for the given entities, which must all hold it.
func Emplace[T any](b *Builder, r *ecs.Registry, entities ...models.Entity) {
	b.Record(r, KindEmplace, registry.Lookup[T](b.source), false, entities...)
}

// Replace records the current T of the given entities.
func Replace[T any](b *Builder, r *ecs.Registry, entities ...models.Entity) {
	b.Record(r, KindReplace, registry.Lookup[T](b.source), false, entities...)
}

func Remove[T any](b *Builder, r *ecs.Registry, entities ...models.Entity) {
	b.Record(r, KindRemove, registry.Lookup[T](b.source), false, entities...)
}

// EmplaceChecked records T for the entities that currently hold it.
func EmplaceChecked[T any](b *Builder, r *ecs.Registry, entities ...models.Entity) {
	b.Record(r, KindEmplace, registry.Lookup[T](b.source), true, entities...)
}

func ReplaceChecked[T any](b *Builder, r *ecs.Registry, entities ...models.Entity) {
	b.Record(r, KindReplace, registry.Lookup[T](b.source), true, entities...)
}

// EmplaceView records T for every entity holding it.
func EmplaceView[T any](b *Builder, r *ecs.Registry) {
	Emplace[T](b, r, ecs.View[T](r)...)
}

func ReplaceView[T any](b *Builder, r *ecs.Registry) {
	Replace[T](b, r, ecs.View[T](r)...)
}

// ReplaceValue records an explicit value for e.
func ReplaceValue[T any](b *Builder, e models.Entity, v T) {
	b.RecordValue(KindReplace, registry.Lookup[T](b.source), e, v)
}
