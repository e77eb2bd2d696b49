package sequence

// Ring is a fixed-capacity window that overwrites its oldest element once
// full. The window starts zero filled, so Len always equals the capacity.
type Ring[T any] struct {
	items []T
	head  int
}

func NewRing[T any](size int) *Ring[T] {
	if size < 1 {
		size = 1
	}
	return &Ring[T]{items: make([]T, size)}
}

// Push drops the oldest element and appends v as the newest.
func (r *Ring[T]) Push(v T) {
	r.items[r.head] = v
	r.head = (r.head + 1) % len(r.items)
}

func (r *Ring[T]) Len() int { return len(r.items) }

// Newest returns the most recently pushed element.
func (r *Ring[T]) Newest() T {
	return r.items[(r.head+len(r.items)-1)%len(r.items)]
}

// Reset zeroes every slot.
func (r *Ring[T]) Reset() {
	var zero T
	for i := range r.items {
		r.items[i] = zero
	}
	r.head = 0
}

// Each visits the elements from oldest to newest.
func (r *Ring[T]) Each(fn func(T)) {
	n := len(r.items)
	for i := 0; i < n; i++ {
		fn(r.items[(r.head+i)%n])
	}
}

// Reduce folds the window from oldest to newest.
func Reduce[T, A any](r *Ring[T], init A, fn func(A, T) A) A {
	acc := init
	r.Each(func(v T) { acc = fn(acc, v) })
	return acc
}
