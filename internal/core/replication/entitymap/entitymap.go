package entitymap

import (
	"errors"
	"fmt"

	"github.com/zeusync/statesync/internal/core/models"
)

var ErrNotFound = errors.New("entity not mapped")

// Map is a bijection between local entities and the entities of one remote
// peer. Both directions are always updated together.
type Map struct {
	remoteToLocal map[models.Entity]models.Entity
	localToRemote map[models.Entity]models.Entity
}

func New() *Map {
	return &Map{
		remoteToLocal: make(map[models.Entity]models.Entity),
		localToRemote: make(map[models.Entity]models.Entity),
	}
}

// Insert records local<->remote. Mapping either side twice is a protocol
// violation and panics.
func (m *Map) Insert(local, remote models.Entity) {
	if prev, ok := m.remoteToLocal[remote]; ok {
		panic(fmt.Sprintf("entitymap: remote %d already mapped to local %d", remote, prev))
	}
	if prev, ok := m.localToRemote[local]; ok {
		panic(fmt.Sprintf("entitymap: local %d already mapped to remote %d", local, prev))
	}
	m.remoteToLocal[remote] = local
	m.localToRemote[local] = remote
}

func (m *Map) Contains(remote models.Entity) bool {
	_, ok := m.remoteToLocal[remote]
	return ok
}

func (m *Map) ContainsLocal(local models.Entity) bool {
	_, ok := m.localToRemote[local]
	return ok
}

// At returns the local counterpart of remote.
func (m *Map) At(remote models.Entity) (models.Entity, error) {
	local, ok := m.remoteToLocal[remote]
	if !ok {
		return models.Null, fmt.Errorf("remote %d: %w", remote, ErrNotFound)
	}
	return local, nil
}

// AtLocal returns the remote counterpart of local.
func (m *Map) AtLocal(local models.Entity) (models.Entity, error) {
	remote, ok := m.localToRemote[local]
	if !ok {
		return models.Null, fmt.Errorf("local %d: %w", local, ErrNotFound)
	}
	return remote, nil
}

// Local translates remote, returning Null when it has no counterpart.
func (m *Map) Local(remote models.Entity) models.Entity {
	return m.remoteToLocal[remote]
}

// Remote translates local, returning Null when it has no counterpart.
func (m *Map) Remote(local models.Entity) models.Entity {
	return m.localToRemote[local]
}

// EraseRemote removes the pair containing remote, if any.
func (m *Map) EraseRemote(remote models.Entity) {
	local, ok := m.remoteToLocal[remote]
	if !ok {
		return
	}
	delete(m.remoteToLocal, remote)
	delete(m.localToRemote, local)
}

// EraseLocal removes the pair containing local, if any.
func (m *Map) EraseLocal(local models.Entity) {
	remote, ok := m.localToRemote[local]
	if !ok {
		return
	}
	delete(m.localToRemote, local)
	delete(m.remoteToLocal, remote)
}

func (m *Map) Len() int { return len(m.remoteToLocal) }

// Each visits every pair. Erasing the visited pair from fn is allowed.
func (m *Map) Each(fn func(local, remote models.Entity)) {
	for remote, local := range m.remoteToLocal {
		fn(local, remote)
	}
}
