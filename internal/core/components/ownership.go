package components

import (
	"github.com/zeusync/statesync/internal/core/models"
	"github.com/zeusync/statesync/internal/core/systems/physics"
	"github.com/zeusync/statesync/pkg/encoding"
)

// EntityOwner names the client entity that is authoritative for an entity's
// input and action history.
type EntityOwner struct {
	Client models.Entity
}

func (o EntityOwner) EncodeTo(w *encoding.Writer) { w.Uint64(uint64(o.Client)) }

func (o *EntityOwner) DecodeFrom(r *encoding.Reader) { o.Client = models.Entity(r.Uint64()) }

func (o EntityOwner) RemapEntities(fn func(models.Entity) models.Entity) EntityOwner {
	return EntityOwner{Client: fn(o.Client)}
}

// ControlInput is the latest input sampled by the owning client.
type ControlInput struct {
	Move physics.Vec3
	Jump bool
}

func (c ControlInput) EncodeTo(w *encoding.Writer) {
	encodeVec(w, c.Move)
	w.Bool(c.Jump)
}

func (c *ControlInput) DecodeFrom(r *encoding.Reader) {
	c.Move = decodeVec(r)
	c.Jump = r.Bool()
}

// Action is one opaque client action stamped with the simulation time it was
// issued at.
type Action struct {
	Timestamp float64
	Data      []byte
}

// ActionHistory is the ordered list of actions a client has issued and the
// server has not yet discarded.
type ActionHistory struct {
	Entries []Action
}

func (h ActionHistory) EncodeTo(w *encoding.Writer) {
	w.Uint32(uint32(len(h.Entries)))
	for _, a := range h.Entries {
		w.Float64(a.Timestamp)
		w.Bytes32(a.Data)
	}
}

func (h *ActionHistory) DecodeFrom(r *encoding.Reader) {
	n := r.Count(12)
	h.Entries = make([]Action, 0, n)
	for i := 0; i < n && r.Err() == nil; i++ {
		h.Entries = append(h.Entries, Action{Timestamp: r.Float64(), Data: r.Bytes32()})
	}
}

func (h ActionHistory) Clone() ActionHistory {
	out := ActionHistory{Entries: make([]Action, len(h.Entries))}
	for i, a := range h.Entries {
		out.Entries[i] = Action{Timestamp: a.Timestamp, Data: append([]byte(nil), a.Data...)}
	}
	return out
}

// Last returns the timestamp of the newest entry, or zero when empty.
func (h ActionHistory) Last() float64 {
	if len(h.Entries) == 0 {
		return 0
	}
	return h.Entries[len(h.Entries)-1].Timestamp
}

// Merge appends the incoming entries that are strictly newer than the newest
// local entry. Merging the same history twice is a no-op.
func (h ActionHistory) Merge(incoming ActionHistory) ActionHistory {
	out := h.Clone()
	last := h.Last()
	for _, a := range incoming.Entries {
		if len(out.Entries) > 0 && a.Timestamp <= last {
			continue
		}
		out.Entries = append(out.Entries, Action{Timestamp: a.Timestamp, Data: append([]byte(nil), a.Data...)})
		last = a.Timestamp
	}
	return out
}

// Discard drops entries older than the given time.
func (h ActionHistory) Discard(before float64) ActionHistory {
	out := ActionHistory{}
	for _, a := range h.Entries {
		if a.Timestamp >= before {
			out.Entries = append(out.Entries, a)
		}
	}
	return out
}
