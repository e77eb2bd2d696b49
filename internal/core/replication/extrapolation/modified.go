package extrapolation

import "github.com/zeusync/statesync/internal/core/models"

// Modified records which tracked component types of an entity were written
// since the last clear. Its capacity is the number of tracked types and it
// never holds the same index twice.
type Modified struct {
	indices []models.ComponentIndex
	count   int
}

func newModified(capacity int) Modified {
	return Modified{indices: make([]models.ComponentIndex, capacity)}
}

// Insert adds idx unless already present or the record is full.
func (m *Modified) Insert(idx models.ComponentIndex) {
	for i := 0; i < m.count; i++ {
		if m.indices[i] == idx {
			return
		}
	}
	if m.count == len(m.indices) {
		return
	}
	m.indices[m.count] = idx
	m.count++
}

func (m *Modified) Reset() { m.count = 0 }

func (m Modified) Len() int { return m.count }

func (m Modified) Cap() int { return len(m.indices) }

// Indices returns the recorded indices in insertion order.
func (m Modified) Indices() []models.ComponentIndex {
	out := make([]models.ComponentIndex, m.count)
	copy(out, m.indices[:m.count])
	return out
}
