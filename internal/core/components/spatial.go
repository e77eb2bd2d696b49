package components

import (
	"github.com/zeusync/statesync/internal/core/systems/physics"
	"github.com/zeusync/statesync/pkg/encoding"
)

type (
	Position physics.Vec3
	LinVel   physics.Vec3
	AngVel   physics.Vec3
	Gravity  physics.Vec3

	// PresentPosition is the interpolated position shown to the user. It is
	// derived locally and never replicated.
	PresentPosition physics.Vec3
)

// Mass in kilograms. Zero means the body is not affected by forces.
type Mass float64

func encodeVec(w *encoding.Writer, v physics.Vec3) {
	w.Float64(v.X)
	w.Float64(v.Y)
	w.Float64(v.Z)
}

func decodeVec(r *encoding.Reader) physics.Vec3 {
	return physics.Vec3{X: r.Float64(), Y: r.Float64(), Z: r.Float64()}
}

func (p Position) Vec() physics.Vec3 { return physics.Vec3(p) }

func (p Position) EncodeTo(w *encoding.Writer) { encodeVec(w, physics.Vec3(p)) }

func (p *Position) DecodeFrom(r *encoding.Reader) { *p = Position(decodeVec(r)) }

func (v LinVel) Vec() physics.Vec3 { return physics.Vec3(v) }

func (v LinVel) EncodeTo(w *encoding.Writer) { encodeVec(w, physics.Vec3(v)) }

func (v *LinVel) DecodeFrom(r *encoding.Reader) { *v = LinVel(decodeVec(r)) }

func (v AngVel) Vec() physics.Vec3 { return physics.Vec3(v) }

func (v AngVel) EncodeTo(w *encoding.Writer) { encodeVec(w, physics.Vec3(v)) }

func (v *AngVel) DecodeFrom(r *encoding.Reader) { *v = AngVel(decodeVec(r)) }

func (g Gravity) Vec() physics.Vec3 { return physics.Vec3(g) }

func (g Gravity) EncodeTo(w *encoding.Writer) { encodeVec(w, physics.Vec3(g)) }

func (g *Gravity) DecodeFrom(r *encoding.Reader) { *g = Gravity(decodeVec(r)) }

func (m Mass) EncodeTo(w *encoding.Writer) { w.Float64(float64(m)) }

func (m *Mass) DecodeFrom(r *encoding.Reader) { *m = Mass(r.Float64()) }

// Sphere is the collision shape used by the worker's spatial queries.
type Sphere struct {
	Radius float64
}

func (s Sphere) EncodeTo(w *encoding.Writer) { w.Float64(s.Radius) }

func (s *Sphere) DecodeFrom(r *encoding.Reader) { s.Radius = r.Float64() }

// Bounds returns the box enclosing a sphere of this shape centered at p.
func (s Sphere) Bounds(p Position) physics.AABB {
	return physics.AABBAround(p.Vec(), s.Radius)
}
