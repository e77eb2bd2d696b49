package ops

import (
	"github.com/zeusync/statesync/internal/core/ecs"
	"github.com/zeusync/statesync/internal/core/models"
	"github.com/zeusync/statesync/internal/core/replication/entitymap"
	"github.com/zeusync/statesync/internal/core/schema/registry"
)

// Kind is the type of change an Operation records.
type Kind uint8

const (
	KindCreate Kind = iota
	KindDestroy
	KindEmplace
	KindReplace
	KindRemove
	KindEntityMap
)

func (k Kind) String() string {
	switch k {
	case KindCreate:
		return "create"
	case KindDestroy:
		return "destroy"
	case KindEmplace:
		return "emplace"
	case KindReplace:
		return "replace"
	case KindRemove:
		return "remove"
	case KindEntityMap:
		return "entity_map"
	default:
		return "unknown"
	}
}

// Operation is one coalesced change record. Entities are expressed in the
// sender's address space.
type Operation struct {
	Kind Kind
	// Type is set for emplace, replace and remove.
	Type     *registry.Descriptor
	Entities []models.Entity
	// Values holds one value per entity for emplace and replace of non-empty
	// types.
	Values []any
	// Mapped holds, for entity-map records, the receiver's entity that each
	// of Entities corresponds to.
	Mapped []models.Entity
}

// Log is an ordered set of operations, at most one per (kind, type).
type Log struct {
	Operations []Operation
}

func (l *Log) Empty() bool {
	for _, op := range l.Operations {
		if len(op.Entities) > 0 {
			return false
		}
	}
	return true
}

// Find returns the record for kind and type, or nil.
func (l *Log) Find(kind Kind, d *registry.Descriptor) *Operation {
	for i := range l.Operations {
		op := &l.Operations[i]
		if op.Kind == kind && op.Type == d {
			return op
		}
	}
	return nil
}

// CreatedEntities lists the entities of the create record.
func (l *Log) CreatedEntities() []models.Entity {
	if op := l.Find(KindCreate, nil); op != nil {
		return op.Entities
	}
	return nil
}

// EmplaceForEach visits the entities of the emplace record of d.
func (l *Log) EmplaceForEach(d *registry.Descriptor, fn func(e models.Entity)) {
	op := l.Find(KindEmplace, d)
	if op == nil {
		return
	}
	for _, e := range op.Entities {
		fn(e)
	}
}

// executionOrder is the order record kinds are applied in: entities exist
// before their components are written, and destruction comes last.
var executionOrder = [...]Kind{KindCreate, KindEntityMap, KindEmplace, KindReplace, KindRemove, KindDestroy}

// Execute applies the log to r, one kind at a time in executionOrder. Within
// a kind records keep their log order. When emap is nil the entities are
// taken to be in r's address space already; create records are then ignored. Otherwise
// each entity is translated through emap, creating and mapping new local
// entities for create records. References that cannot be translated, or
// whose local entity is no longer valid, are skipped.
func (l *Log) Execute(r *ecs.Registry, emap *entitymap.Map) {
	translate := func(e models.Entity) models.Entity { return e }
	if emap != nil {
		translate = emap.Local
	}
	resolve := func(e models.Entity) (models.Entity, bool) {
		local := translate(e)
		if local.IsNull() || !r.Valid(local) {
			return models.Null, false
		}
		return local, true
	}

	for _, kind := range executionOrder {
		for i := range l.Operations {
			if l.Operations[i].Kind == kind {
				executeOp(&l.Operations[i], r, emap, translate, resolve)
			}
		}
	}
}

func executeOp(op *Operation, r *ecs.Registry, emap *entitymap.Map, translate func(models.Entity) models.Entity, resolve func(models.Entity) (models.Entity, bool)) {
	switch op.Kind {
	case KindCreate:
		if emap == nil {
			return
		}
		for _, remote := range op.Entities {
			if emap.Contains(remote) {
				continue
			}
			emap.Insert(r.Create(), remote)
		}

	case KindDestroy:
		for _, remote := range op.Entities {
			local, ok := resolve(remote)
			if emap != nil {
				emap.EraseRemote(remote)
			}
			if ok {
				r.Destroy(local)
			}
		}

	case KindEmplace, KindReplace:
		for j, remote := range op.Entities {
			local, ok := resolve(remote)
			if !ok {
				continue
			}
			var v any
			if j < len(op.Values) {
				v = op.Type.Remap(op.Type.Clone(op.Values[j]), translate)
			}
			if op.Kind == KindEmplace {
				op.Type.Emplace(r, local, v)
			} else if op.Type.Has(r, local) {
				op.Type.Replace(r, local, v)
			}
		}

	case KindRemove:
		for _, remote := range op.Entities {
			if local, ok := resolve(remote); ok {
				op.Type.Remove(r, local)
			}
		}

	case KindEntityMap:
		if emap == nil {
			return
		}
		for j, remote := range op.Entities {
			if j >= len(op.Mapped) {
				break
			}
			local := op.Mapped[j]
			if !r.Valid(local) || emap.Contains(remote) || emap.ContainsLocal(local) {
				continue
			}
			emap.Insert(local, remote)
		}
	}
}

// Apply executes the log against a registry without entity translation.
func Apply(l Log, r *ecs.Registry) { l.Execute(r, nil) }
