package bus

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type ping struct{ N int }

type pong struct{ N int }

func TestDispatcher(t *testing.T) {
	t.Run("Typed delivery in order", func(t *testing.T) {
		d := NewDispatcher(nil)
		q := d.MakeQueue("main")

		var pings []int
		var pongs []int
		Connect(q, func(m ping) error { pings = append(pings, m.N); return nil })
		Connect(q, func(m pong) error { pongs = append(pongs, m.N); return nil })

		require.NoError(t, d.Send("main", ping{1}))
		require.NoError(t, d.Send("main", pong{2}))
		require.NoError(t, d.Send("main", ping{3}))
		require.Empty(t, pings)

		require.NoError(t, q.Update())
		require.Equal(t, []int{1, 3}, pings)
		require.Equal(t, []int{2}, pongs)
		require.Zero(t, q.Pending())
	})

	t.Run("Unknown queue", func(t *testing.T) {
		d := NewDispatcher(nil)
		err := d.Send("nowhere", ping{})
		require.ErrorIs(t, err, ErrQueueNotFound)
	})

	t.Run("Remove queue", func(t *testing.T) {
		d := NewDispatcher(nil)
		d.MakeQueue("scratch")
		require.NoError(t, d.Send("scratch", ping{1}))

		require.NoError(t, d.RemoveQueue("scratch"))
		require.Empty(t, d.Queues())
		require.ErrorIs(t, d.Send("scratch", ping{2}), ErrQueueNotFound)
		require.ErrorIs(t, d.RemoveQueue("scratch"), ErrQueueNotFound)
		require.Equal(t, uint64(1), d.Metrics().Value(MetricDropped, "queue", "scratch"))
	})

	t.Run("MakeQueue is idempotent", func(t *testing.T) {
		d := NewDispatcher(nil)
		require.Same(t, d.MakeQueue("a"), d.MakeQueue("a"))
		d.MakeQueue("b")
		require.Equal(t, []string{"a", "b"}, d.Queues())
	})

	t.Run("Cancel", func(t *testing.T) {
		d := NewDispatcher(nil)
		q := d.MakeQueue("main")
		calls := 0
		sub := Connect(q, func(ping) error { calls++; return nil })
		require.NotEmpty(t, sub.ID())

		require.NoError(t, sub.Cancel())
		require.NoError(t, sub.Cancel())
		require.False(t, sub.IsActive())

		require.NoError(t, q.Push(ping{}))
		require.NoError(t, q.Update())
		require.Zero(t, calls)
		require.Equal(t, uint64(1), d.Metrics().Value(MetricDropped, "queue", "main"))
	})

	t.Run("Handler errors are joined", func(t *testing.T) {
		d := NewDispatcher(nil)
		q := d.MakeQueue("main")
		errA, errB := errors.New("a"), errors.New("b")
		Connect(q, func(ping) error { return errA })
		Connect(q, func(ping) error { return errB })

		require.NoError(t, q.Push(ping{}))
		err := q.Update()
		require.ErrorIs(t, err, errA)
		require.ErrorIs(t, err, errB)
	})

	t.Run("Messages pushed during update wait", func(t *testing.T) {
		d := NewDispatcher(nil)
		q := d.MakeQueue("main")
		var seen []int
		Connect(q, func(m ping) error {
			seen = append(seen, m.N)
			if m.N == 0 {
				return q.Push(ping{1})
			}
			return nil
		})

		require.NoError(t, q.Push(ping{0}))
		require.NoError(t, q.Update())
		require.Equal(t, []int{0}, seen)
		require.NoError(t, q.Update())
		require.Equal(t, []int{0, 1}, seen)
	})

	t.Run("Concurrent senders", func(t *testing.T) {
		d := NewDispatcher(nil)
		q := d.MakeQueue("main")
		total := 0
		Connect(q, func(m ping) error { total += m.N; return nil })

		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 50; j++ {
					_ = d.Send("main", ping{1})
				}
			}()
		}
		wg.Wait()

		select {
		case <-q.Notify():
		default:
			t.Fatal("expected wake-up signal")
		}
		require.NoError(t, q.Update())
		require.Equal(t, 200, total)
		require.Equal(t, uint64(200), d.Metrics().Value(MetricSent, "queue", "main"))
	})

	t.Run("Nil payload", func(t *testing.T) {
		q := NewDispatcher(nil).MakeQueue("main")
		require.ErrorIs(t, q.Push(nil), ErrNilPayload)
	})
}
