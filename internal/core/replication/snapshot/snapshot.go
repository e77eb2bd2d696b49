package snapshot

import (
	"errors"
	"fmt"

	"github.com/zeusync/statesync/internal/core/models"
	"github.com/zeusync/statesync/internal/core/replication/entitymap"
	"github.com/zeusync/statesync/internal/core/schema/registry"
	"github.com/zeusync/statesync/pkg/encoding"
)

var (
	ErrUnknownComponent = errors.New("snapshot: unknown component index")
	ErrMalformed        = errors.New("snapshot: malformed payload")
)

// Pool holds the values of one component type. EntityIndices point into the
// snapshot's entity list; Values is nil for tag types.
type Pool struct {
	Index         models.ComponentIndex
	EntityIndices []uint32
	Values        []any
}

// Snapshot is the wire form of a subset of store state. Entities are in the
// sender's address space unless converted with ConvertRemoteToLocal.
type Snapshot struct {
	Entities []models.Entity
	Pools    []Pool
}

func (s *Snapshot) Empty() bool { return len(s.Pools) == 0 }

// Pool returns the pool for idx, or nil.
func (s *Snapshot) Pool(idx models.ComponentIndex) *Pool {
	for i := range s.Pools {
		if s.Pools[i].Index == idx {
			return &s.Pools[i]
		}
	}
	return nil
}

// ConvertRemoteToLocal rewrites entities and embedded references into local
// space. Untranslatable entities become Null and are skipped on import.
func (s *Snapshot) ConvertRemoteToLocal(src *registry.IndexSource, emap *entitymap.Map) {
	s.convert(src, emap.Local)
}

// ConvertLocalToRemote is the inverse of ConvertRemoteToLocal, used before
// sending local state to the peer that owns the mapping.
func (s *Snapshot) ConvertLocalToRemote(src *registry.IndexSource, emap *entitymap.Map) {
	s.convert(src, emap.Remote)
}

func (s *Snapshot) convert(src *registry.IndexSource, fn func(models.Entity) models.Entity) {
	for i, e := range s.Entities {
		s.Entities[i] = fn(e)
	}
	for i := range s.Pools {
		pool := &s.Pools[i]
		d := src.Descriptor(pool.Index)
		if d == nil || d.Empty {
			continue
		}
		for j, v := range pool.Values {
			pool.Values[j] = d.Remap(v, fn)
		}
	}
}

// builder appends to a snapshot, deduplicating entities and pools.
type builder struct {
	snap     *Snapshot
	entities map[models.Entity]uint32
	pools    map[models.ComponentIndex]int
}

func newBuilder(snap *Snapshot) *builder {
	b := &builder{
		snap:     snap,
		entities: make(map[models.Entity]uint32, len(snap.Entities)),
		pools:    make(map[models.ComponentIndex]int, len(snap.Pools)),
	}
	for i, e := range snap.Entities {
		b.entities[e] = uint32(i)
	}
	for i, p := range snap.Pools {
		b.pools[p.Index] = i
	}
	return b
}

func (b *builder) entityIndex(e models.Entity) uint32 {
	if idx, ok := b.entities[e]; ok {
		return idx
	}
	idx := uint32(len(b.snap.Entities))
	b.snap.Entities = append(b.snap.Entities, e)
	b.entities[e] = idx
	return idx
}

func (b *builder) pool(idx models.ComponentIndex) *Pool {
	if i, ok := b.pools[idx]; ok {
		return &b.snap.Pools[i]
	}
	b.snap.Pools = append(b.snap.Pools, Pool{Index: idx})
	b.pools[idx] = len(b.snap.Pools) - 1
	return &b.snap.Pools[len(b.snap.Pools)-1]
}

// insert adds e's value of d. A pool never lists the same entity twice.
func (b *builder) insert(d *registry.Descriptor, e models.Entity, v any) {
	pool := b.pool(d.Index)
	ei := b.entityIndex(e)
	for _, existing := range pool.EntityIndices {
		if existing == ei {
			return
		}
	}
	pool.EntityIndices = append(pool.EntityIndices, ei)
	if !d.Empty {
		pool.Values = append(pool.Values, v)
	}
}

// Marshal encodes s. The layout is: u32 entity count, u64 entities, u16 pool
// count, then per pool u16 component index, u32 entry count, u32 entity
// indices, u32 value byte length and the values.
func Marshal(src *registry.IndexSource, s *Snapshot) ([]byte, error) {
	w := encoding.AcquireWriter()
	defer encoding.ReleaseWriter(w)

	w.Uint32(uint32(len(s.Entities)))
	for _, e := range s.Entities {
		w.Uint64(uint64(e))
	}

	w.Uint16(uint16(len(s.Pools)))
	values := encoding.AcquireWriter()
	defer encoding.ReleaseWriter(values)

	for _, pool := range s.Pools {
		d := src.Descriptor(pool.Index)
		if d == nil {
			return nil, fmt.Errorf("%w: %d", ErrUnknownComponent, pool.Index)
		}
		if !d.Empty && len(pool.Values) != len(pool.EntityIndices) {
			return nil, fmt.Errorf("%w: pool %s has %d values for %d entities",
				ErrMalformed, d.Name, len(pool.Values), len(pool.EntityIndices))
		}

		w.Uint16(uint16(pool.Index))
		w.Uint32(uint32(len(pool.EntityIndices)))
		for _, idx := range pool.EntityIndices {
			w.Uint32(idx)
		}

		values.Reset()
		if !d.Empty {
			for _, v := range pool.Values {
				d.Encode(values, v)
			}
		}
		w.Bytes32(values.Bytes())
	}

	out := make([]byte, w.Len())
	copy(out, w.Bytes())
	return out, nil
}

// Unmarshal decodes a snapshot. Pools whose component index is unknown to src
// are dropped; their count is returned so callers can report it.
func Unmarshal(src *registry.IndexSource, data []byte) (Snapshot, int, error) {
	var s Snapshot
	r := encoding.NewReader(data)

	n := r.Count(8)
	s.Entities = make([]models.Entity, 0, n)
	for i := 0; i < n && r.Err() == nil; i++ {
		s.Entities = append(s.Entities, models.Entity(r.Uint64()))
	}

	dropped := 0
	pools := int(r.Uint16())
	for i := 0; i < pools && r.Err() == nil; i++ {
		idx := models.ComponentIndex(r.Uint16())
		count := r.Count(4)
		indices := make([]uint32, 0, count)
		for j := 0; j < count && r.Err() == nil; j++ {
			ei := r.Uint32()
			if int(ei) >= len(s.Entities) {
				return Snapshot{}, 0, fmt.Errorf("%w: entity index %d out of range", ErrMalformed, ei)
			}
			indices = append(indices, ei)
		}
		raw := r.Bytes32()
		if r.Err() != nil {
			break
		}

		d := src.Descriptor(idx)
		if d == nil {
			dropped++
			continue
		}

		pool := Pool{Index: idx, EntityIndices: indices}
		if !d.Empty {
			vr := encoding.NewReader(raw)
			pool.Values = make([]any, 0, count)
			for j := 0; j < count; j++ {
				pool.Values = append(pool.Values, d.Decode(vr))
			}
			if err := vr.Finish(); err != nil {
				return Snapshot{}, 0, fmt.Errorf("%w: pool %s: %w", ErrMalformed, d.Name, err)
			}
		}
		s.Pools = append(s.Pools, pool)
	}

	if err := r.Finish(); err != nil {
		return Snapshot{}, 0, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return s, dropped, nil
}
