package netsync

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/zeusync/statesync/internal/core/ecs"
	"github.com/zeusync/statesync/internal/core/events/bus"
	"github.com/zeusync/statesync/internal/core/models"
	"github.com/zeusync/statesync/internal/core/observability/log"
	"github.com/zeusync/statesync/internal/core/observability/metrics"
	"github.com/zeusync/statesync/internal/core/replication/entitymap"
	"github.com/zeusync/statesync/internal/core/replication/snapshot"
	"github.com/zeusync/statesync/internal/core/schema/registry"
)

const (
	MetricSnapshotsReceived = "netsync_snapshots_received_total"
	MetricPoolsDropped      = "netsync_pools_dropped_total"
)

type received struct {
	data []byte
}

// Subscriber applies snapshots from the server to a client store. Remote
// entities seen for the first time get a fresh local entity.
type Subscriber struct {
	logger    log.Log
	registry  *ecs.Registry
	source    *registry.IndexSource
	emap      *entitymap.Map
	importer  *snapshot.Importer
	exporter  *snapshot.ClientExporter
	transport Transport
	metrics   *metrics.Registry

	dispatcher *bus.Dispatcher
	queue      *bus.Queue
	sub        bus.Subscription
}

// NewSubscriber creates a subscriber whose received payloads are queued on a
// private queue of d and applied on Update.
func NewSubscriber(logger log.Log, d *bus.Dispatcher, r *ecs.Registry, src *registry.IndexSource, t Transport, m *metrics.Registry, echo registry.Category) *Subscriber {
	logger = logger.Named("subscriber")
	s := &Subscriber{
		logger:     logger,
		registry:   r,
		source:     src,
		emap:       entitymap.New(),
		importer:   snapshot.NewImporter(src, snapshot.WithLogger(logger), snapshot.WithMetrics(m)),
		exporter:   snapshot.NewClientExporter(src, models.Null, snapshot.WithOwnerEcho(echo)),
		transport:  t,
		metrics:    m,
		dispatcher: d,
		queue:      d.MakeQueue("netsync/" + uuid.NewString()),
	}
	s.sub = bus.Connect(s.queue, func(msg received) error { return s.Apply(msg.data) })
	return s
}

func (s *Subscriber) EntityMap() *entitymap.Map { return s.emap }

// SetSelf sets the client's own entity, given in server space.
func (s *Subscriber) SetSelf(remote models.Entity) models.Entity {
	local := s.materialize(remote)
	s.exporter.SetSelf(local)
	return local
}

func (s *Subscriber) materialize(remote models.Entity) models.Entity {
	if local := s.emap.Local(remote); !local.IsNull() {
		return local
	}
	local := s.registry.Create()
	s.emap.Insert(local, remote)
	return local
}

// Apply decodes and imports one snapshot.
func (s *Subscriber) Apply(data []byte) error {
	snap, dropped, err := snapshot.Unmarshal(s.source, data)
	if err != nil {
		return err
	}
	s.metrics.Counter(MetricSnapshotsReceived).Inc()
	if dropped > 0 {
		s.metrics.Counter(MetricPoolsDropped).Add(uint64(dropped))
		s.logger.Debug("dropped unknown pools", log.Int("pools", dropped))
	}

	for _, remote := range snap.Entities {
		s.materialize(remote)
	}
	s.importer.Import(s.registry, s.emap, &snap)
	return nil
}

// ReceiveOnce blocks for one snapshot and applies it.
func (s *Subscriber) ReceiveOnce(ctx context.Context) error {
	data, err := s.transport.Receive(ctx)
	if err != nil {
		return err
	}
	return s.Apply(data)
}

// Run queues received payloads until ctx is done or the transport closes.
// Payloads are applied by Update on the goroutine that owns the store.
func (s *Subscriber) Run(ctx context.Context) error {
	for {
		data, err := s.transport.Receive(ctx)
		switch {
		case err == nil:
		case errors.Is(err, ErrClosed), ctx.Err() != nil:
			return nil
		default:
			return err
		}
		if err := s.queue.Push(received{data: data}); err != nil {
			return err
		}
	}
}

// Update applies every queued payload.
func (s *Subscriber) Update() error {
	return s.queue.Update()
}

// SendInputs sends the input components of the entities this client owns.
func (s *Subscriber) SendInputs(ctx context.Context) error {
	var snap snapshot.Snapshot
	s.exporter.ExportInputs(s.registry, &snap)
	if snap.Empty() {
		return nil
	}
	snap.ConvertLocalToRemote(s.source, s.emap)
	data, err := snapshot.Marshal(s.source, &snap)
	if err != nil {
		return fmt.Errorf("marshal inputs: %w", err)
	}
	return s.transport.Send(ctx, data)
}

// Close closes the transport and removes the subscriber's queue from the
// dispatcher.
func (s *Subscriber) Close() error {
	return errors.Join(s.sub.Cancel(), s.dispatcher.RemoveQueue(s.queue.Name()), s.transport.Close())
}
