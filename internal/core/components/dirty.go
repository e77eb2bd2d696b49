package components

import "github.com/zeusync/statesync/internal/core/models"

// NetworkDirty records which component types of an entity changed since the
// last network export. It is local bookkeeping and never replicated.
type NetworkDirty struct {
	Types []models.TypeID
}

// Insert adds id unless it is already recorded.
func (d *NetworkDirty) Insert(id models.TypeID) {
	for _, t := range d.Types {
		if t == id {
			return
		}
	}
	d.Types = append(d.Types, id)
}

func (d NetworkDirty) Contains(id models.TypeID) bool {
	for _, t := range d.Types {
		if t == id {
			return true
		}
	}
	return false
}

func (d *NetworkDirty) Clear() { d.Types = d.Types[:0] }
