package components

import (
	"github.com/zeusync/statesync/internal/core/models"
	"github.com/zeusync/statesync/pkg/encoding"
)

// Constraint is implemented by every component that links two bodies and so
// becomes an edge in the connectivity graph.
type Constraint interface {
	Bodies() [2]models.Entity
}

func encodeBodies(w *encoding.Writer, b [2]models.Entity) {
	w.Uint64(uint64(b[0]))
	w.Uint64(uint64(b[1]))
}

func decodeBodies(r *encoding.Reader) [2]models.Entity {
	return [2]models.Entity{models.Entity(r.Uint64()), models.Entity(r.Uint64())}
}

// DistanceConstraint keeps two bodies at a fixed distance.
type DistanceConstraint struct {
	Body     [2]models.Entity
	Distance float64
}

func (c DistanceConstraint) Bodies() [2]models.Entity { return c.Body }

func (c DistanceConstraint) EncodeTo(w *encoding.Writer) {
	encodeBodies(w, c.Body)
	w.Float64(c.Distance)
}

func (c *DistanceConstraint) DecodeFrom(r *encoding.Reader) {
	c.Body = decodeBodies(r)
	c.Distance = r.Float64()
}

func (c DistanceConstraint) RemapEntities(fn func(models.Entity) models.Entity) DistanceConstraint {
	c.Body = [2]models.Entity{fn(c.Body[0]), fn(c.Body[1])}
	return c
}

// NullConstraint links two bodies into the same island without restricting
// their motion.
type NullConstraint struct {
	Body [2]models.Entity
}

func (c NullConstraint) Bodies() [2]models.Entity { return c.Body }

func (c NullConstraint) EncodeTo(w *encoding.Writer) { encodeBodies(w, c.Body) }

func (c *NullConstraint) DecodeFrom(r *encoding.Reader) { c.Body = decodeBodies(r) }

func (c NullConstraint) RemapEntities(fn func(models.Entity) models.Entity) NullConstraint {
	c.Body = [2]models.Entity{fn(c.Body[0]), fn(c.Body[1])}
	return c
}

// ChildList links the shapes of a compound body. Parent is the compound root;
// Next is the following child or Null.
type ChildList struct {
	Parent models.Entity
	Next   models.Entity
}

func (c ChildList) EncodeTo(w *encoding.Writer) {
	w.Uint64(uint64(c.Parent))
	w.Uint64(uint64(c.Next))
}

func (c *ChildList) DecodeFrom(r *encoding.Reader) {
	c.Parent = models.Entity(r.Uint64())
	c.Next = models.Entity(r.Uint64())
}

func (c ChildList) RemapEntities(fn func(models.Entity) models.Entity) ChildList {
	return ChildList{Parent: fn(c.Parent), Next: fn(c.Next)}
}
