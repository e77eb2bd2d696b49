package ecs

import "github.com/zeusync/statesync/internal/core/models"

type storage interface {
	Contains(e models.Entity) bool
	Len() int
	remove(r *Registry, e models.Entity) bool
}

// Pool stores the components of one type using the sparse set layout: a dense
// array of entities and values for iteration plus a sparse index for lookup.
type Pool[T any] struct {
	sparse map[models.Entity]int
	dense  []models.Entity
	values []T

	construct Signal
	update    Signal
	destroy   Signal
}

func newPool[T any]() *Pool[T] {
	return &Pool[T]{
		sparse: make(map[models.Entity]int),
		dense:  make([]models.Entity, 0, 64),
		values: make([]T, 0, 64),
	}
}

func (p *Pool[T]) Contains(e models.Entity) bool {
	_, ok := p.sparse[e]
	return ok
}

func (p *Pool[T]) Len() int { return len(p.dense) }

// Entities returns a copy of the entities holding this component.
func (p *Pool[T]) Entities() []models.Entity {
	out := make([]models.Entity, len(p.dense))
	copy(out, p.dense)
	return out
}

func (p *Pool[T]) ptr(e models.Entity) *T {
	idx, ok := p.sparse[e]
	if !ok {
		return nil
	}
	return &p.values[idx]
}

func (p *Pool[T]) insert(e models.Entity, v T) {
	p.sparse[e] = len(p.dense)
	p.dense = append(p.dense, e)
	p.values = append(p.values, v)
}

func (p *Pool[T]) remove(r *Registry, e models.Entity) bool {
	if _, ok := p.sparse[e]; !ok {
		return false
	}

	// Listeners observe the component before it goes away.
	p.destroy.publish(r, e)

	idx, ok := p.sparse[e]
	if !ok {
		return false
	}
	last := len(p.dense) - 1
	lastEntity := p.dense[last]

	p.dense[idx] = lastEntity
	p.values[idx] = p.values[last]
	p.sparse[lastEntity] = idx

	var zero T
	p.values[last] = zero
	p.dense = p.dense[:last]
	p.values = p.values[:last]
	delete(p.sparse, e)
	return true
}
