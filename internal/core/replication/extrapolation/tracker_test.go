package extrapolation

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zeusync/statesync/internal/core/components"
	"github.com/zeusync/statesync/internal/core/ecs"
	"github.com/zeusync/statesync/internal/core/models"
	"github.com/zeusync/statesync/internal/core/replication/ops"
	"github.com/zeusync/statesync/internal/core/schema/registry"
)

func TestModified(t *testing.T) {
	m := newModified(3)
	for _, idx := range []models.ComponentIndex{1, 2, 1, 3, 4, 2, 5} {
		m.Insert(idx)
		require.LessOrEqual(t, m.Len(), m.Cap())
	}
	require.Equal(t, []models.ComponentIndex{1, 2, 3}, m.Indices())

	m.Reset()
	require.Zero(t, m.Len())
	require.Equal(t, 3, m.Cap())
}

func TestTracker(t *testing.T) {
	src := registry.Shared()

	setup := func() (*ecs.Registry, *Tracker, models.Entity) {
		r := ecs.NewRegistry()
		tr := NewTracker(r, src)
		e := r.Create()
		ecs.Emplace(r, e, components.Position{})
		ecs.Emplace(r, e, components.LinVel{X: 1})
		ecs.Emplace(r, e, components.ControlInput{})
		ecs.Emplace(r, e, components.DynamicTag{})
		tr.AddEntity(e)
		return r, tr, e
	}

	t.Run("Records updates only while observing", func(t *testing.T) {
		r, tr, e := setup()
		ecs.Replace(r, e, components.Position{X: 1})
		require.Empty(t, tr.ModifiedOf(e))

		tr.SetObserveChanges(true)
		ecs.Replace(r, e, components.Position{X: 2})
		ecs.Replace(r, e, components.Position{X: 3})
		ecs.Replace(r, e, components.LinVel{})
		require.Equal(t, []models.ComponentIndex{
			registry.IndexOf[components.Position](src),
			registry.IndexOf[components.LinVel](src),
		}, tr.ModifiedOf(e))

		tr.ClearModified(e)
		require.Empty(t, tr.ModifiedOf(e))
		require.True(t, ecs.Has[Modified](r, e))

		tr.SetObserveChanges(false)
		ecs.Replace(r, e, components.Position{X: 4})
		require.Empty(t, tr.ModifiedOf(e))
	})

	t.Run("Untracked entities are ignored", func(t *testing.T) {
		r, tr, _ := setup()
		tr.SetObserveChanges(true)
		other := r.Create()
		ecs.Emplace(r, other, components.Position{})
		ecs.Replace(r, other, components.Position{X: 1})
		require.False(t, ecs.Has[Modified](r, other))
	})

	t.Run("Export skips owner echo for owned", func(t *testing.T) {
		r, tr, e := setup()
		tr.SetObserveChanges(true)
		ecs.Replace(r, e, components.Position{X: 1})
		ecs.Replace(r, e, components.ControlInput{Jump: true})

		pos := registry.Lookup[components.Position](src)
		input := registry.Lookup[components.ControlInput](src)

		b := ops.NewBuilder(src)
		tr.ExportToBuilder(b, []models.Entity{e}, models.NewEntitySet(e))
		log := b.Finish()
		require.NotNil(t, log.Find(ops.KindReplace, pos))
		require.Nil(t, log.Find(ops.KindReplace, input))

		tr.ExportToBuilder(b, []models.Entity{e}, models.NewEntitySet())
		log = b.Finish()
		require.NotNil(t, log.Find(ops.KindReplace, input))
	})

	t.Run("Remote state shadow", func(t *testing.T) {
		r, tr, e := setup()
		ecs.Replace(r, e, components.Position{X: 10})
		tr.ExportRemoteState(e)

		ecs.Replace(r, e, components.Position{X: 99})
		tr.SetObserveChanges(true)
		tr.ImportRemoteState(e)

		p, _ := ecs.Get[components.Position](r, e)
		require.Equal(t, 10.0, p.X)
		require.Empty(t, tr.ModifiedOf(e))

		ecs.Replace(r, e, components.Position{X: 11})
		tr.ExportRemoteState(e)
		ecs.Replace(r, e, components.Position{X: 0})
		tr.ImportRemoteState(e)
		p, _ = ecs.Get[components.Position](r, e)
		require.Equal(t, 11.0, p.X)
	})

	t.Run("Run", func(t *testing.T) {
		r, tr, e := setup()
		tr.ExportRemoteState(e)
		ecs.Replace(r, e, components.Position{X: 50})

		step := func(r *ecs.Registry) {
			for _, body := range ecs.View[components.LinVel](r) {
				v, _ := ecs.Get[components.LinVel](r, body)
				ecs.Patch(r, body, func(p *components.Position) { p.X += v.X })
			}
		}
		log := tr.Run([]models.Entity{e}, nil, 3, step)

		op := log.Find(ops.KindReplace, registry.Lookup[components.Position](src))
		require.NotNil(t, op)
		require.Equal(t, []models.Entity{e}, op.Entities)
		require.Equal(t, components.Position{X: 3}, op.Values[0])
		require.Nil(t, log.Find(ops.KindReplace, registry.Lookup[components.LinVel](src)))
	})

	t.Run("Remove entity", func(t *testing.T) {
		r, tr, e := setup()
		tr.RemoveEntity(e)
		require.False(t, ecs.Has[Modified](r, e))
	})
}
