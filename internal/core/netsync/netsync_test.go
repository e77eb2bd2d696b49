package netsync

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zeusync/statesync/internal/core/components"
	"github.com/zeusync/statesync/internal/core/ecs"
	"github.com/zeusync/statesync/internal/core/events/bus"
	"github.com/zeusync/statesync/internal/core/models"
	"github.com/zeusync/statesync/internal/core/observability/log"
	"github.com/zeusync/statesync/internal/core/observability/metrics"
	"github.com/zeusync/statesync/internal/core/replication/snapshot"
	"github.com/zeusync/statesync/internal/core/schema/registry"
	"github.com/zeusync/statesync/internal/core/systems/physics"
)

type world struct {
	src     *registry.IndexSource
	server  *ecs.Registry
	pub     *Publisher
	owner   models.Entity
	other   models.Entity
	player  models.Entity
	c1, c2  *Client
	p1, p2  *pipe
	sub     *Subscriber
	client  *ecs.Registry
	metrics *metrics.Registry
}

func newWorld(t *testing.T) *world {
	t.Helper()
	w := &world{src: registry.Shared(), server: ecs.NewRegistry(), client: ecs.NewRegistry(), metrics: metrics.NewRegistry()}
	tracker := snapshot.TrackDirty(w.server, w.src)
	t.Cleanup(tracker.Close)

	w.owner, w.other = w.server.Create(), w.server.Create()
	w.player = w.server.Create()
	ecs.Emplace(w.server, w.player, components.EntityOwner{Client: w.owner})
	ecs.Emplace(w.server, w.player, components.Position{X: 1})
	ecs.Emplace(w.server, w.player, components.ControlInput{})

	w.pub = NewPublisher(log.NewNop(), w.server, w.src, w.metrics, registry.OwnerEcho)

	var serverSide1, serverSide2 *pipe
	serverSide1, w.p1 = newPipe()
	serverSide2, w.p2 = newPipe()
	w.c1 = w.pub.AddClient(w.owner, serverSide1)
	w.c2 = w.pub.AddClient(w.other, serverSide2)

	d := bus.NewDispatcher(metrics.NewRegistry())
	w.sub = NewSubscriber(log.NewNop(), d, w.client, w.src, w.p1, w.metrics, registry.OwnerEcho)
	w.sub.SetSelf(w.owner)
	return w
}

func receive(t *testing.T, p *pipe) []byte {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	data, err := p.Receive(ctx)
	require.NoError(t, err)
	return data
}

func pools(t *testing.T, src *registry.IndexSource, data []byte) []models.ComponentIndex {
	t.Helper()
	snap, _, err := snapshot.Unmarshal(src, data)
	require.NoError(t, err)
	var out []models.ComponentIndex
	for _, p := range snap.Pools {
		out = append(out, p.Index)
	}
	return out
}

func TestPublisher(t *testing.T) {
	ctx := context.Background()

	t.Run("Full sync materializes entities", func(t *testing.T) {
		w := newWorld(t)
		require.NoError(t, w.pub.SendFull(ctx, w.c1))
		require.NoError(t, w.sub.ReceiveOnce(ctx))

		local := w.sub.EntityMap().Local(w.player)
		require.False(t, local.IsNull())
		pos, ok := ecs.Get[components.Position](w.client, local)
		require.True(t, ok)
		require.Equal(t, components.Position{X: 1}, pos)

		owner, _ := ecs.Get[components.EntityOwner](w.client, local)
		require.Equal(t, w.sub.EntityMap().Local(w.owner), owner.Client)
		require.Equal(t, uint64(1), w.metrics.Value(MetricSnapshotsReceived))
	})

	t.Run("Dirty publish filters owner echo", func(t *testing.T) {
		w := newWorld(t)
		require.NoError(t, w.pub.Publish(ctx))
		receive(t, w.p1)
		receive(t, w.p2)

		ecs.Replace(w.server, w.player, components.Position{X: 2})
		ecs.Replace(w.server, w.player, components.ControlInput{Jump: true})
		require.NoError(t, w.pub.Publish(ctx))

		position := registry.IndexOf[components.Position](w.src)
		input := registry.IndexOf[components.ControlInput](w.src)

		toOwner := pools(t, w.src, receive(t, w.p1))
		require.Contains(t, toOwner, position)
		require.NotContains(t, toOwner, input)

		toOther := pools(t, w.src, receive(t, w.p2))
		require.ElementsMatch(t, []models.ComponentIndex{position, input}, toOther)

		// Nothing changed since, so nothing is sent.
		require.NoError(t, w.pub.Publish(ctx))
		require.Empty(t, w.p1.in)
		require.Empty(t, w.p2.in)
	})

	t.Run("New clients get the whole store first", func(t *testing.T) {
		w := newWorld(t)
		require.NoError(t, w.pub.Publish(ctx))

		input := registry.IndexOf[components.ControlInput](w.src)
		require.Contains(t, pools(t, w.src, receive(t, w.p1)), input)
		receive(t, w.p2)

		require.NoError(t, w.pub.Publish(ctx))
		require.Empty(t, w.p1.in)
	})

	t.Run("Stalled client does not hold the store", func(t *testing.T) {
		w := newWorld(t)
		w.pub.SetSendTimeout(50 * time.Millisecond)
		stall := newStalled()
		slow := w.pub.AddClient(w.server.Create(), stall)

		var mu sync.Mutex
		runCtx, cancel := context.WithCancel(ctx)
		done := make(chan error, 1)
		go func() { done <- w.pub.Run(runCtx, 5*time.Millisecond, &mu) }()

		var sendCtx context.Context
		select {
		case sendCtx = <-stall.sends:
		case <-time.After(time.Second):
			t.Fatal("no send reached the stalled client")
		}
		_, bounded := sendCtx.Deadline()
		require.True(t, bounded)

		// Other clients are still served.
		receive(t, w.p1)

		for i := 0; i < 5; i++ {
			locked := make(chan struct{})
			go func() {
				mu.Lock()
				ecs.Replace(w.server, w.player, components.Position{X: float64(i)})
				mu.Unlock()
				close(locked)
			}()
			select {
			case <-locked:
			case <-time.After(500 * time.Millisecond):
				t.Fatal("store lock held across a send")
			}
		}

		cancel()
		require.NoError(t, <-done)
		require.NotZero(t, w.metrics.Value(MetricSendErrors, "client", slow.ID))
	})

	t.Run("Queued payloads apply on update", func(t *testing.T) {
		w := newWorld(t)
		runCtx, cancel := context.WithCancel(ctx)
		done := make(chan error, 1)
		go func() { done <- w.sub.Run(runCtx) }()

		require.NoError(t, w.pub.SendFull(ctx, w.c1))
		require.Eventually(t, func() bool { return w.sub.queue.Pending() == 1 }, time.Second, time.Millisecond)
		require.NoError(t, w.sub.Update())
		require.True(t, w.sub.EntityMap().Contains(w.player))

		cancel()
		require.NoError(t, <-done)
	})

	t.Run("Client input reaches the server", func(t *testing.T) {
		w := newWorld(t)
		require.NoError(t, w.pub.SendFull(ctx, w.c1))
		require.NoError(t, w.sub.ReceiveOnce(ctx))

		local := w.sub.EntityMap().Local(w.player)
		ecs.Replace(w.client, local, components.ControlInput{Move: physics.Vec3{X: 1}})
		require.NoError(t, w.sub.SendInputs(ctx))

		serverSide, ok := w.pub.Client(w.c1.ID)
		require.True(t, ok)
		data := receive(t, serverSide.Transport.(*pipe))
		require.NoError(t, w.pub.HandleInput(w.c1, data))

		in, _ := ecs.Get[components.ControlInput](w.server, w.player)
		require.Equal(t, physics.Vec3{X: 1}, in.Move)
	})

	t.Run("Input for foreign entities is rejected", func(t *testing.T) {
		w := newWorld(t)
		forged := snapshot.Snapshot{
			Entities: []models.Entity{w.player},
			Pools: []snapshot.Pool{{
				Index:         registry.IndexOf[components.ControlInput](w.src),
				EntityIndices: []uint32{0},
				Values:        []any{components.ControlInput{Jump: true}},
			}, {
				Index:         registry.IndexOf[components.Position](w.src),
				EntityIndices: []uint32{0},
				Values:        []any{components.Position{X: 99}},
			}},
		}
		data, err := snapshot.Marshal(w.src, &forged)
		require.NoError(t, err)

		err = w.pub.HandleInput(w.c2, data)
		require.ErrorIs(t, err, ErrNotOwned)
		in, _ := ecs.Get[components.ControlInput](w.server, w.player)
		require.False(t, in.Jump)

		// The owner may send input but never authoritative state.
		err = w.pub.HandleInput(w.c1, data)
		require.ErrorIs(t, err, ErrNotOwned)
		in, _ = ecs.Get[components.ControlInput](w.server, w.player)
		require.True(t, in.Jump)
		pos, _ := ecs.Get[components.Position](w.server, w.player)
		require.Equal(t, components.Position{X: 1}, pos)
		require.Equal(t, uint64(2), w.metrics.Value(MetricInputsDropped, "client", w.c2.ID))
		require.Equal(t, uint64(1), w.metrics.Value(MetricInputsDropped, "client", w.c1.ID))
	})

	t.Run("Remove client closes transport", func(t *testing.T) {
		w := newWorld(t)
		require.NoError(t, w.pub.RemoveClient(w.c1.ID))
		require.ErrorIs(t, w.pub.RemoveClient(w.c1.ID), ErrUnknownClient)
		require.Len(t, w.pub.Clients(), 1)
		_, err := w.p1.Receive(ctx)
		require.ErrorIs(t, err, ErrClosed)
	})
}

func TestSubscriberClose(t *testing.T) {
	d := bus.NewDispatcher(metrics.NewRegistry())
	_, clientSide := newPipe()
	sub := NewSubscriber(log.NewNop(), d, ecs.NewRegistry(), registry.Shared(), clientSide, metrics.NewRegistry(), registry.OwnerEcho)
	require.Len(t, d.Queues(), 1)

	require.NoError(t, sub.Close())
	require.Empty(t, d.Queues())

	_, err := clientSide.Receive(context.Background())
	require.ErrorIs(t, err, ErrClosed)
}
