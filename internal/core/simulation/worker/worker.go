package worker

import (
	"context"
	"time"

	"github.com/zeusync/statesync/internal/core/components"
	"github.com/zeusync/statesync/internal/core/ecs"
	"github.com/zeusync/statesync/internal/core/events/bus"
	"github.com/zeusync/statesync/internal/core/graph"
	"github.com/zeusync/statesync/internal/core/models"
	"github.com/zeusync/statesync/internal/core/observability/log"
	"github.com/zeusync/statesync/internal/core/replication/entitymap"
	"github.com/zeusync/statesync/internal/core/replication/ops"
	"github.com/zeusync/statesync/internal/core/schema/registry"
	"github.com/zeusync/statesync/internal/core/simulation/messages"
)

// SleepingTag marks bodies the worker stopped integrating. It is private to
// the worker.
type SleepingTag struct{}

type Config struct {
	InboxQueue  string
	OutboxQueue string
	Settings    messages.Settings
}

func DefaultConfig() Config {
	return Config{
		InboxQueue:  messages.WorkerQueue,
		OutboxQueue: messages.MainQueue,
		Settings:    messages.DefaultSettings(),
	}
}

// Worker owns a private copy of the simulation. It receives the owner's
// changes as operation logs, integrates dynamic bodies at a fixed rate and
// reports the results back as step updates.
type Worker struct {
	logger log.Log
	cfg    Config
	source *registry.IndexSource

	registry *ecs.Registry
	emap     *entitymap.Map
	builder  *ops.Builder
	graph    *graph.EntityGraph

	dispatcher *bus.Dispatcher
	inbox      *bus.Queue
	subs       []bus.Subscription
	conns      []*ecs.Connection

	paused      bool
	stepOnce    bool
	simTime     float64
	accumulator float64
	sleepTimers map[models.Entity]float64
}

func New(logger log.Log, d *bus.Dispatcher, src *registry.IndexSource, cfg Config) *Worker {
	w := &Worker{
		logger:      logger.Named("worker"),
		cfg:         cfg,
		source:      src,
		registry:    ecs.NewRegistry(),
		emap:        entitymap.New(),
		builder:     ops.NewBuilder(src),
		graph:       graph.New(),
		dispatcher:  d,
		inbox:       d.MakeQueue(cfg.InboxQueue),
		sleepTimers: make(map[models.Entity]float64),
	}
	d.MakeQueue(cfg.OutboxQueue)

	w.subs = append(w.subs,
		bus.Connect(w.inbox, w.onUpdateEntities),
		bus.Connect(w.inbox, w.onSetPaused),
		bus.Connect(w.inbox, w.onStepSimulation),
		bus.Connect(w.inbox, w.onSetSettings),
		bus.Connect(w.inbox, w.onWakeUpResidents),
		bus.Connect(w.inbox, w.onRaycast),
		bus.Connect(w.inbox, w.onQueryAABB),
		bus.Connect(w.inbox, w.onQueryAABBOfInterest),
	)
	w.conns = append(w.conns,
		ecs.OnDestroy[graph.GraphNode](w.registry).Connect(w.onDestroyNode),
		ecs.OnDestroy[graph.GraphEdge](w.registry).Connect(w.onDestroyEdge),
	)
	return w
}

func (w *Worker) Registry() *ecs.Registry { return w.registry }

func (w *Worker) EntityMap() *entitymap.Map { return w.emap }

func (w *Worker) Graph() *graph.EntityGraph { return w.graph }

func (w *Worker) SimTime() float64 { return w.simTime }

func (w *Worker) Paused() bool { return w.paused }

// TickInterval is the wall-clock period of Run's ticker for the current
// FixedDt. Non-positive steps fall back to the default.
func (w *Worker) TickInterval() time.Duration {
	dt := w.cfg.Settings.FixedDt
	if dt <= 0 {
		dt = DefaultConfig().Settings.FixedDt
	}
	return time.Duration(dt * float64(time.Second))
}

// Run processes messages and steps the simulation until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	period := w.TickInterval()
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	retime := func() {
		if next := w.TickInterval(); next != period {
			period = next
			ticker.Reset(period)
			w.logger.Debug("worker retimed", log.Duration("period", period))
		}
	}

	last := time.Now()
	w.logger.Info("worker started", log.Float64("fixed_dt", w.cfg.Settings.FixedDt))
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopped", log.Float64("sim_time", w.simTime))
			return nil
		case <-w.inbox.Notify():
			w.Process()
			retime()
		case now := <-ticker.C:
			w.Process()
			retime()
			w.Tick(now.Sub(last).Seconds())
			last = now
		}
	}
}

// Process handles every message queued for the worker.
func (w *Worker) Process() {
	if err := w.inbox.Update(); err != nil {
		w.logger.Warn("message handling failed", log.Error(err))
	}
}

// Tick accumulates elapsed wall time and runs as many fixed steps as fit,
// bounded by the configured maximum.
func (w *Worker) Tick(elapsed float64) {
	if w.paused {
		if w.stepOnce {
			w.stepOnce = false
			w.Step()
		}
		return
	}

	dt := w.cfg.Settings.FixedDt
	w.accumulator += elapsed
	steps := 0
	for w.accumulator >= dt && steps < w.cfg.Settings.MaxSteps {
		w.integrate(dt)
		w.accumulator -= dt
		steps++
	}
	if steps == w.cfg.Settings.MaxSteps {
		w.accumulator = 0
	}
	if steps > 0 {
		w.publish()
	}
}

// Step runs exactly one fixed step and publishes the result.
func (w *Worker) Step() {
	w.integrate(w.cfg.Settings.FixedDt)
	w.publish()
}

func (w *Worker) publish() {
	if w.builder.Empty() {
		return
	}
	msg := messages.StepUpdate{Ops: w.builder.Finish(), Timestamp: w.simTime}
	if err := w.dispatcher.Send(w.cfg.OutboxQueue, msg); err != nil {
		w.logger.Error("failed to publish step update", log.Error(err))
	}
}

// Close cancels message subscriptions and store hooks.
func (w *Worker) Close() error {
	ecs.DisconnectAll(w.conns)
	return bus.CancelAll(w.subs)
}

func (w *Worker) onDestroyNode(r *ecs.Registry, e models.Entity) {
	node, _ := ecs.Get[graph.GraphNode](r, e)
	w.graph.VisitEdges(node.Index, func(idx graph.EdgeIndex) {
		edge := w.graph.EdgeEntity(idx)
		ecs.Remove[graph.GraphEdge](r, edge)
	})
	w.graph.RemoveNode(node.Index)
	delete(w.sleepTimers, e)
}

func (w *Worker) onDestroyEdge(r *ecs.Registry, e models.Entity) {
	edge, _ := ecs.Get[graph.GraphEdge](r, e)
	w.graph.RemoveEdge(edge.Index)
}

func (w *Worker) onUpdateEntities(msg messages.UpdateEntities) error {
	msg.Ops.Execute(w.registry, w.emap)

	for _, remote := range msg.Ops.CreatedEntities() {
		if local := w.emap.Local(remote); !local.IsNull() {
			w.builder.AddEntityMapping(local, remote)
		}
	}

	var bodies []models.Entity
	for _, d := range []*registry.Descriptor{
		registry.Lookup[components.RigidBodyTag](w.source),
		registry.Lookup[components.ExternalTag](w.source),
	} {
		msg.Ops.EmplaceForEach(d, func(remote models.Entity) {
			bodies = append(bodies, w.emap.Local(remote))
		})
	}
	graph.AttachBodies(w.registry, w.graph, bodies)

	var constraints []models.Entity
	for _, d := range w.source.All() {
		if !graph.IsConstraint(d) {
			continue
		}
		msg.Ops.EmplaceForEach(d, func(remote models.Entity) {
			constraints = append(constraints, w.emap.Local(remote))
		})
	}
	graph.AttachConstraints(w.registry, w.graph, w.source, constraints)

	// Anything the owner touched must be simulated again.
	for _, op := range msg.Ops.Operations {
		for _, remote := range op.Entities {
			w.wake(w.emap.Local(remote))
		}
	}
	return nil
}

func (w *Worker) onSetPaused(msg messages.SetPaused) error {
	w.paused = msg.Paused
	w.accumulator = 0
	w.logger.Debug("paused state changed", log.Bool("paused", msg.Paused))
	return nil
}

func (w *Worker) onStepSimulation(messages.StepSimulation) error {
	w.stepOnce = true
	return nil
}

func (w *Worker) onSetSettings(msg messages.SetSettings) error {
	w.cfg.Settings = msg.Settings
	return nil
}

func (w *Worker) onWakeUpResidents(msg messages.WakeUpResidents) error {
	for _, remote := range msg.Entities {
		w.wake(w.emap.Local(remote))
	}
	return nil
}

func (w *Worker) wake(e models.Entity) {
	if e.IsNull() {
		return
	}
	ecs.Remove[SleepingTag](w.registry, e)
	delete(w.sleepTimers, e)
}
