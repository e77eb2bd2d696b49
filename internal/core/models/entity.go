package models

// Entity identifies an entity within one store's address space. It carries no
// meaning outside that space; crossing a boundary requires an entity map.
type Entity uint64

// Null is never allocated by a store and marks an absent or untranslatable
// entity reference.
const Null Entity = 0

// IsNull reports whether e is the null entity.
func (e Entity) IsNull() bool { return e == Null }

// TypeID is the stable identifier of a component type, derived from its
// registered name.
type TypeID uint32

// InvalidTypeID is returned when an index has no matching component type.
const InvalidTypeID TypeID = ^TypeID(0)

// ComponentIndex is the position of a component type in the canonical
// ordering shared by both ends of a replication channel.
type ComponentIndex uint16

// InvalidIndex is returned when a type is not part of an index source.
const InvalidIndex ComponentIndex = ^ComponentIndex(0)

// EntitySet is an unordered set of entities.
type EntitySet map[Entity]struct{}

// NewEntitySet builds a set holding the given entities.
func NewEntitySet(entities ...Entity) EntitySet {
	set := make(EntitySet, len(entities))
	for _, e := range entities {
		set[e] = struct{}{}
	}
	return set
}

func (s EntitySet) Insert(e Entity) { s[e] = struct{}{} }

func (s EntitySet) Remove(e Entity) { delete(s, e) }

func (s EntitySet) Contains(e Entity) bool {
	_, ok := s[e]
	return ok
}
