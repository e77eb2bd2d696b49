package registry

import (
	"encoding/binary"
	"fmt"
	"reflect"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/zeusync/statesync/internal/core/components"
	"github.com/zeusync/statesync/internal/core/models"
)

// Spec declares one replicable component type before it is given an index.
type Spec struct {
	name     string
	typ      reflect.Type
	category Category
	ops      func() operations
}

type Option func(*Spec)

func WithCategory(c Category) Option {
	return func(s *Spec) { s.category |= c }
}

// Component declares T under a wire name. The name determines the TypeID, so
// both peers must use the same name.
func Component[T any](name string, opts ...Option) Spec {
	s := Spec{
		name: name,
		typ:  reflect.TypeFor[T](),
		ops:  func() operations { return operationsFor[T](name) },
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

func (s Spec) Name() string { return s.name }

// TypeIDOf derives the stable wire id of a component name.
func TypeIDOf(name string) models.TypeID {
	return models.TypeID(uint32(xxhash.Sum64String(name)))
}

// IndexSource assigns each registered component a stable index: the shared set
// first, then extension types in declaration order. Both ends of a channel
// must build identical sources.
type IndexSource struct {
	specs  []Spec
	shared int
	descs  []*Descriptor
	byType map[reflect.Type]*Descriptor
	byID   map[models.TypeID]*Descriptor
}

// NewIndexSource registers specs in order. Registering the same type or name
// twice panics.
func NewIndexSource(specs ...Spec) *IndexSource {
	s := &IndexSource{
		specs:  make([]Spec, 0, len(specs)),
		shared: len(specs),
		descs:  make([]*Descriptor, 0, len(specs)),
		byType: make(map[reflect.Type]*Descriptor, len(specs)),
		byID:   make(map[models.TypeID]*Descriptor, len(specs)),
	}
	for _, spec := range specs {
		s.add(spec)
	}
	return s
}

func (s *IndexSource) add(spec Spec) {
	if len(s.descs) >= int(models.InvalidIndex) {
		panic("registry: too many component types")
	}
	id := TypeIDOf(spec.name)
	if prev, ok := s.byType[spec.typ]; ok {
		panic(fmt.Sprintf("registry: type %s registered twice (as %q and %q)", spec.typ, prev.Name, spec.name))
	}
	if prev, ok := s.byID[id]; ok {
		panic(fmt.Sprintf("registry: type id of %q collides with %q", spec.name, prev.Name))
	}

	d := &Descriptor{
		Index:    models.ComponentIndex(len(s.descs)),
		ID:       id,
		Name:     spec.name,
		Type:     spec.typ,
		Empty:    spec.typ.Size() == 0,
		Category: spec.category,
		ops:      spec.ops(),
	}
	s.specs = append(s.specs, spec)
	s.descs = append(s.descs, d)
	s.byType[spec.typ] = d
	s.byID[id] = d
}

// Extend returns a new source that resolves the receiver's types at the same
// indices and appends extra after them.
func (s *IndexSource) Extend(extra ...Spec) *IndexSource {
	out := NewIndexSource(s.specs...)
	out.shared = s.shared
	for _, spec := range extra {
		out.add(spec)
	}
	return out
}

// SharedLen returns the number of types in the shared set.
func (s *IndexSource) SharedLen() int { return s.shared }

func (s *IndexSource) Len() int { return len(s.descs) }

// All returns the descriptors in index order.
func (s *IndexSource) All() []*Descriptor { return s.descs }

// IndexOf maps a TypeID to its index.
func (s *IndexSource) IndexOf(id models.TypeID) (models.ComponentIndex, bool) {
	d, ok := s.byID[id]
	if !ok {
		return models.InvalidIndex, false
	}
	return d.Index, true
}

// TypeOf maps an index back to its TypeID.
func (s *IndexSource) TypeOf(idx models.ComponentIndex) (models.TypeID, bool) {
	if int(idx) >= len(s.descs) {
		return models.InvalidTypeID, false
	}
	return s.descs[idx].ID, true
}

// Descriptor returns the descriptor at idx, or nil when out of range.
func (s *IndexSource) Descriptor(idx models.ComponentIndex) *Descriptor {
	if int(idx) >= len(s.descs) {
		return nil
	}
	return s.descs[idx]
}

// ByID returns the descriptor of a TypeID, or nil.
func (s *IndexSource) ByID(id models.TypeID) *Descriptor { return s.byID[id] }

// Fingerprint hashes the registered names, categories and order. Peers with
// different fingerprints cannot exchange snapshots.
func (s *IndexSource) Fingerprint() uint64 {
	h := xxhash.New()
	var buf [4]byte
	for _, d := range s.descs {
		binary.LittleEndian.PutUint32(buf[:], uint32(d.ID))
		_, _ = h.Write(buf[:])
		_, _ = h.Write([]byte{byte(d.Category)})
		_, _ = h.WriteString(d.Name)
	}
	return h.Sum64()
}

// Lookup returns the descriptor of T. Using an unregistered type through a
// typed API panics.
func Lookup[T any](s *IndexSource) *Descriptor {
	d, ok := s.byType[reflect.TypeFor[T]()]
	if !ok {
		panic(fmt.Sprintf("registry: component %s is not registered", reflect.TypeFor[T]()))
	}
	return d
}

// Registered reports whether T has a descriptor in s.
func Registered[T any](s *IndexSource) bool {
	_, ok := s.byType[reflect.TypeFor[T]()]
	return ok
}

func IndexOf[T any](s *IndexSource) models.ComponentIndex { return Lookup[T](s).Index }

// SharedSpecs lists the component types every deployment replicates.
func SharedSpecs() []Spec {
	return []Spec{
		Component[components.RigidBodyTag]("rigidbody_tag"),
		Component[components.Position]("position"),
		Component[components.LinVel]("linvel"),
		Component[components.AngVel]("angvel"),
		Component[components.Mass]("mass"),
		Component[components.Gravity]("gravity"),
		Component[components.StaticTag]("static_tag"),
		Component[components.KinematicTag]("kinematic_tag"),
		Component[components.DynamicTag]("dynamic_tag"),
		Component[components.ExternalTag]("external_tag"),
		Component[components.ProceduralTag]("procedural_tag"),
		Component[components.EntityOwner]("entity_owner"),
		Component[components.ControlInput]("control_input", WithCategory(CategoryInput)),
		Component[components.ActionHistory]("action_history", WithCategory(CategoryActionHistory)),
		Component[components.DistanceConstraint]("distance_constraint"),
		Component[components.NullConstraint]("null_constraint"),
		Component[components.ChildList]("child_list"),
		Component[components.Sphere]("sphere"),
	}
}

var shared = sync.OnceValue(func() *IndexSource { return NewIndexSource(SharedSpecs()...) })

// Shared returns the base source over the shared component set.
func Shared() *IndexSource { return shared() }
