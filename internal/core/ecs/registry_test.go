package ecs

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zeusync/statesync/internal/core/models"
)

type position struct{ X, Y float64 }

type tag struct{}

func TestRegistry(t *testing.T) {
	t.Run("Lifecycle", func(t *testing.T) {
		r := NewRegistry()
		e := r.Create()
		require.True(t, r.Valid(e))
		require.NotEqual(t, models.Null, e)

		Emplace(r, e, position{1, 2})
		Emplace(r, e, tag{})
		require.True(t, Has[position](r, e))
		require.True(t, Has[tag](r, e))

		v, ok := Get[position](r, e)
		require.True(t, ok)
		require.Equal(t, position{1, 2}, v)

		require.True(t, Replace(r, e, position{3, 4}))
		require.True(t, Patch(r, e, func(p *position) { p.X = 10 }))
		v, _ = Get[position](r, e)
		require.Equal(t, position{10, 4}, v)

		r.Destroy(e)
		require.False(t, r.Valid(e))
		require.False(t, Has[position](r, e))
		require.Zero(t, Count[position](r))
	})

	t.Run("Replace absent", func(t *testing.T) {
		r := NewRegistry()
		e := r.Create()
		require.False(t, Replace(r, e, position{}))
		require.False(t, Has[position](r, e))
	})

	t.Run("Signals", func(t *testing.T) {
		r := NewRegistry()
		var constructed, updated, destroyed []models.Entity

		OnConstruct[position](r).Connect(func(_ *Registry, e models.Entity) { constructed = append(constructed, e) })
		OnUpdate[position](r).Connect(func(_ *Registry, e models.Entity) { updated = append(updated, e) })
		OnDestroy[position](r).Connect(func(reg *Registry, e models.Entity) {
			// The component is still readable from the destroy hook.
			require.True(t, Has[position](reg, e))
			destroyed = append(destroyed, e)
		})

		e := r.Create()
		Emplace(r, e, position{})
		Emplace(r, e, position{1, 1})
		Remove[position](r, e)

		require.Equal(t, []models.Entity{e}, constructed)
		require.Equal(t, []models.Entity{e}, updated)
		require.Equal(t, []models.Entity{e}, destroyed)
	})

	t.Run("Disconnect and reconnect", func(t *testing.T) {
		r := NewRegistry()
		calls := 0
		conn := OnUpdate[position](r).Connect(func(*Registry, models.Entity) { calls++ })
		e := r.Create()
		Emplace(r, e, position{})

		conn.Disconnect()
		Replace(r, e, position{1, 0})
		require.Zero(t, calls)

		conn.Reconnect()
		Replace(r, e, position{2, 0})
		require.Equal(t, 1, calls)
	})

	t.Run("Set is silent", func(t *testing.T) {
		r := NewRegistry()
		calls := 0
		OnUpdate[position](r).Connect(func(*Registry, models.Entity) { calls++ })
		e := r.Create()
		require.False(t, Set(r, e, position{}))

		Emplace(r, e, position{})
		require.True(t, Set(r, e, position{X: 5}))
		require.Zero(t, calls)
		v, _ := Get[position](r, e)
		require.Equal(t, 5.0, v.X)
	})

	t.Run("Destroy from destroy hook", func(t *testing.T) {
		r := NewRegistry()
		a, b := r.Create(), r.Create()
		Emplace(r, a, tag{})
		Emplace(r, b, position{})

		OnDestroy[tag](r).Connect(func(reg *Registry, _ models.Entity) { reg.Destroy(b) })
		r.Destroy(a)

		require.False(t, r.Valid(a))
		require.False(t, r.Valid(b))
	})

	t.Run("Swap remove keeps index", func(t *testing.T) {
		r := NewRegistry()
		es := []models.Entity{r.Create(), r.Create(), r.Create()}
		for i, e := range es {
			Emplace(r, e, position{X: float64(i)})
		}
		Remove[position](r, es[0])

		v, ok := Get[position](r, es[2])
		require.True(t, ok)
		require.Equal(t, 2.0, v.X)
		require.ElementsMatch(t, es[1:], View[position](r))
	})
}
