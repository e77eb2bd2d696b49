package netsync

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/zeusync/statesync/internal/core/components"
	"github.com/zeusync/statesync/internal/core/ecs"
	"github.com/zeusync/statesync/internal/core/models"
	"github.com/zeusync/statesync/internal/core/observability/log"
	"github.com/zeusync/statesync/internal/core/observability/metrics"
	"github.com/zeusync/statesync/internal/core/replication/snapshot"
	"github.com/zeusync/statesync/internal/core/schema/registry"
)

const (
	MetricSnapshotsSent = "netsync_snapshots_sent_total"
	MetricBytesSent     = "netsync_bytes_sent_total"
	MetricSendErrors    = "netsync_send_errors_total"
	MetricInputsDropped = "netsync_inputs_dropped_total"
)

// DefaultSendTimeout bounds one send to one client.
const DefaultSendTimeout = 2 * time.Second

// Client is a connected peer. Entity is the client's own entity in the
// server's store; it decides which components are echo-filtered.
type Client struct {
	ID        string
	Entity    models.Entity
	Transport Transport

	// needsFull is set until the client has been sent the whole store.
	needsFull atomic.Bool
}

// Outgoing is a marshaled snapshot addressed to one client.
type Outgoing struct {
	Client *Client
	Data   []byte
}

// Publisher replicates the server store to its clients. All methods except
// the sends themselves run on the goroutine that owns the store.
type Publisher struct {
	logger   log.Log
	registry *ecs.Registry
	source   *registry.IndexSource
	exporter *snapshot.ServerExporter
	importer *snapshot.Importer
	metrics  *metrics.Registry
	echo     registry.Category
	timeout  time.Duration

	mu      sync.RWMutex
	clients map[string]*Client
}

func NewPublisher(logger log.Log, r *ecs.Registry, src *registry.IndexSource, m *metrics.Registry, echo registry.Category) *Publisher {
	logger = logger.Named("publisher")
	return &Publisher{
		logger:   logger,
		registry: r,
		source:   src,
		exporter: snapshot.NewServerExporter(src, snapshot.WithOwnerEcho(echo)),
		importer: snapshot.NewImporter(src, snapshot.WithLogger(logger), snapshot.WithMetrics(m)),
		metrics:  m,
		echo:     echo,
		timeout:  DefaultSendTimeout,
		clients:  make(map[string]*Client),
	}
}

// SetSendTimeout changes the per-send bound. Zero or less disables it.
func (p *Publisher) SetSendTimeout(d time.Duration) { p.timeout = d }

// AddClient registers a client. Its first publish carries the whole store.
func (p *Publisher) AddClient(entity models.Entity, t Transport) *Client {
	c := &Client{ID: uuid.NewString(), Entity: entity, Transport: t}
	c.needsFull.Store(true)
	p.mu.Lock()
	p.clients[c.ID] = c
	p.mu.Unlock()
	p.logger.Info("client added", log.String("client", c.ID), log.Entity("entity", entity))
	return c
}

// RemoveClient forgets the client and closes its transport.
func (p *Publisher) RemoveClient(id string) error {
	p.mu.Lock()
	c, ok := p.clients[id]
	delete(p.clients, id)
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("%s: %w", id, ErrUnknownClient)
	}
	p.logger.Info("client removed", log.String("client", id))
	return c.Transport.Close()
}

func (p *Publisher) Client(id string) (*Client, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.clients[id]
	return c, ok
}

func (p *Publisher) Clients() []*Client {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*Client, 0, len(p.clients))
	for _, c := range p.clients {
		out = append(out, c)
	}
	return out
}

// SendFull sends the complete store to one client right away. Run must not
// be delivering concurrently, or the two sends may reorder.
func (p *Publisher) SendFull(ctx context.Context, c *Client) error {
	var snap snapshot.Snapshot
	p.exporter.ExportAll(p.registry, &snap)
	data, err := snapshot.Marshal(p.source, &snap)
	if err != nil {
		return err
	}
	c.needsFull.Store(false)
	return p.send(ctx, c, data)
}

// Prepare exports and marshals what each client needs: the whole store for
// clients not yet synced, the changes since the last call for the rest. It
// clears the dirty marks and must run with the store locked.
func (p *Publisher) Prepare() ([]Outgoing, error) {
	clients := p.Clients()
	out := make([]Outgoing, 0, len(clients))
	for _, c := range clients {
		var snap snapshot.Snapshot
		if c.needsFull.Load() {
			p.exporter.ExportAll(p.registry, &snap)
		} else {
			p.exporter.ExportDirty(p.registry, &snap, c.Entity)
		}
		if snap.Empty() && !c.needsFull.Load() {
			continue
		}
		data, err := snapshot.Marshal(p.source, &snap)
		if err != nil {
			return nil, err
		}
		c.needsFull.Store(false)
		out = append(out, Outgoing{Client: c, Data: data})
	}
	snapshot.ClearDirty(p.registry)
	return out, nil
}

// Deliver sends prepared payloads concurrently without touching the store.
// Each send is bounded by the send timeout; one failing client does not
// cancel the others. The first failure is returned after all finished.
func (p *Publisher) Deliver(ctx context.Context, out []Outgoing) error {
	var g errgroup.Group
	for _, o := range out {
		g.Go(func() error { return p.send(ctx, o.Client, o.Data) })
	}
	return g.Wait()
}

// Publish prepares and delivers in one call, for callers that own the store.
func (p *Publisher) Publish(ctx context.Context) error {
	out, err := p.Prepare()
	if err != nil {
		return err
	}
	return p.Deliver(ctx, out)
}

// Run publishes at the given interval until ctx is done. lock guards the
// store and is held only while preparing, never while sending.
func (p *Publisher) Run(ctx context.Context, interval time.Duration, lock sync.Locker) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			lock.Lock()
			out, err := p.Prepare()
			lock.Unlock()
			if err == nil {
				err = p.Deliver(ctx, out)
			}
			if err != nil {
				p.logger.Warn("publish failed", log.Error(err))
			}
		}
	}
}

func (p *Publisher) send(ctx context.Context, c *Client, data []byte) error {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	if err := c.Transport.Send(ctx, data); err != nil {
		p.metrics.Counter(MetricSendErrors, "client", c.ID).Inc()
		return fmt.Errorf("client %s: %w", c.ID, err)
	}
	p.metrics.Counter(MetricSnapshotsSent).Inc()
	p.metrics.Counter(MetricBytesSent).Add(uint64(len(data)))
	return nil
}

// HandleInput applies a snapshot of client-owned input sent by c. Entities
// are expected in server space. Pools outside the owner-echo categories and
// entities the client does not own are dropped.
func (p *Publisher) HandleInput(c *Client, data []byte) error {
	snap, dropped, err := snapshot.Unmarshal(p.source, data)
	if err != nil {
		return fmt.Errorf("client %s: %w", c.ID, err)
	}
	if dropped > 0 {
		p.logger.Debug("dropped unknown pools", log.String("client", c.ID), log.Int("pools", dropped))
	}

	filtered, rejected := p.ownedInput(c, &snap)
	if rejected > 0 {
		p.metrics.Counter(MetricInputsDropped, "client", c.ID).Add(uint64(rejected))
		p.logger.Warn("rejected input for entities not owned by client",
			log.String("client", c.ID),
			log.Int("entries", rejected),
		)
	}
	p.importer.ImportLocal(p.registry, filtered)
	if rejected > 0 {
		return fmt.Errorf("client %s: %d entries: %w", c.ID, rejected, ErrNotOwned)
	}
	return nil
}

func (p *Publisher) ownedInput(c *Client, snap *snapshot.Snapshot) (*snapshot.Snapshot, int) {
	out := &snapshot.Snapshot{Entities: snap.Entities}
	rejected := 0
	for _, pool := range snap.Pools {
		d := p.source.Descriptor(pool.Index)
		keep := snapshot.Pool{Index: pool.Index}
		for j, ei := range pool.EntityIndices {
			owned := false
			if d != nil && d.Category.Has(p.echo) && int(ei) < len(snap.Entities) {
				owner, ok := ecs.Get[components.EntityOwner](p.registry, snap.Entities[ei])
				owned = ok && owner.Client == c.Entity
			}
			if !owned {
				rejected++
				continue
			}
			keep.EntityIndices = append(keep.EntityIndices, ei)
			if j < len(pool.Values) {
				keep.Values = append(keep.Values, pool.Values[j])
			}
		}
		if len(keep.EntityIndices) > 0 {
			out.Pools = append(out.Pools, keep)
		}
	}
	return out, rejected
}
