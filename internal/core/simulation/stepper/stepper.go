package stepper

import (
	"errors"
	"fmt"
	"math"

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
	"github.com/zeusync/statesync/internal/core/systems/physics"
)

var ErrUnknownRequest = errors.New("unknown request id")

type Config struct {
	MainQueue   string      `yaml:"main_queue"`
	WorkerQueue string      `yaml:"worker_queue"`
	Delay       DelayConfig `yaml:"delay"`
}

func DefaultConfig() Config {
	return Config{
		MainQueue:   messages.MainQueue,
		WorkerQueue: messages.WorkerQueue,
		Delay:       DefaultDelayConfig(),
	}
}

// EventEmitter publishes events gathered while applying step updates.
type EventEmitter interface {
	ConsumeEvents()
}

type (
	RaycastFunc   func(id uint64, result messages.RaycastResult, p0, p1 physics.Vec3)
	QueryAABBFunc func(id uint64, result messages.QueryAABBResult)
)

type Option func(*Stepper)

func WithEventEmitter(em EventEmitter) Option {
	return func(s *Stepper) { s.emitter = em }
}

// WithClearActions sets a hook run once per update after local changes were
// sent to the worker.
func WithClearActions(fn func(r *ecs.Registry)) Option {
	return func(s *Stepper) { s.clearActions = fn }
}

type raycastContext struct {
	fn     RaycastFunc
	p0, p1 physics.Vec3
}

type queryContext struct {
	fn   QueryAABBFunc
	aabb physics.AABB
}

// Stepper drives a simulation that runs on a worker. Local changes to the
// store are recorded by an observer and sent to the worker on Sync. Step
// updates coming back are applied through the entity map.
type Stepper struct {
	logger log.Log
	cfg    Config

	registry *ecs.Registry
	source   *registry.IndexSource
	emap     *entitymap.Map
	builder  *ops.Builder
	observer *ops.Observer
	graph    *graph.EntityGraph

	dispatcher *bus.Dispatcher
	inbox      *bus.Queue
	subs       []bus.Subscription
	conns      []*ecs.Connection
	edgeConn   *ecs.Connection

	emitter      EventEmitter
	clearActions func(r *ecs.Registry)

	raycasts      map[uint64]raycastContext
	queries       map[uint64]queryContext
	nextRaycastID uint64
	nextQueryID   uint64

	paused    bool
	importing bool
	simTime   float64
	lastTime  float64
	delay     *PresentationDelay
}

func New(logger log.Log, d *bus.Dispatcher, r *ecs.Registry, src *registry.IndexSource, cfg Config, now float64, opts ...Option) *Stepper {
	b := ops.NewBuilder(src)
	s := &Stepper{
		logger:     logger.Named("stepper"),
		cfg:        cfg,
		registry:   r,
		source:     src,
		emap:       entitymap.New(),
		builder:    b,
		observer:   ops.NewObserver(r, b),
		graph:      graph.New(),
		dispatcher: d,
		inbox:      d.MakeQueue(cfg.MainQueue),
		raycasts:   make(map[uint64]raycastContext),
		queries:    make(map[uint64]queryContext),
		simTime:    now,
		lastTime:   now,
		delay:      NewPresentationDelay(cfg.Delay),
	}
	d.MakeQueue(cfg.WorkerQueue)
	for _, opt := range opts {
		opt(s)
	}

	s.edgeConn = ecs.OnDestroy[graph.GraphEdge](r).Connect(s.onDestroyEdge)
	s.conns = append(s.conns,
		ecs.OnConstruct[graph.GraphNode](r).Connect(s.onConstructShared),
		ecs.OnDestroy[graph.GraphNode](r).Connect(s.onDestroyNode),
		ecs.OnConstruct[graph.GraphEdge](r).Connect(s.onConstructShared),
		s.edgeConn,
		ecs.OnConstruct[components.ChildList](r).Connect(s.onConstructShared),
	)

	s.subs = append(s.subs,
		bus.Connect(s.inbox, s.onStepUpdate),
		bus.Connect(s.inbox, s.onRaycastResponse),
		bus.Connect(s.inbox, s.onQueryAABBResponse),
	)
	return s
}

func (s *Stepper) Registry() *ecs.Registry { return s.registry }

func (s *Stepper) EntityMap() *entitymap.Map { return s.emap }

func (s *Stepper) Graph() *graph.EntityGraph { return s.graph }

func (s *Stepper) Observer() *ops.Observer { return s.observer }

func (s *Stepper) PresentationDelay() *PresentationDelay { return s.delay }

func (s *Stepper) SimTime() float64 { return s.simTime }

func (s *Stepper) Paused() bool { return s.paused }

// Pending returns the number of raycasts and queries awaiting a response.
func (s *Stepper) Pending() int { return len(s.raycasts) + len(s.queries) }

// AttachBody inserts a graph node for a body, which starts replicating it to
// the worker. Bodies without a procedural tag do not connect islands.
func (s *Stepper) AttachBody(e models.Entity) {
	graph.AttachBodies(s.registry, s.graph, []models.Entity{e})
}

// AttachConstraint inserts a graph edge for a constraint entity whose bodies
// are attached already.
func (s *Stepper) AttachConstraint(e models.Entity) bool {
	c, ok := graph.ConstraintOf(s.registry, s.source, e)
	if !ok {
		return false
	}
	_, ok = graph.AttachEdge(s.registry, s.graph, e, c.Bodies())
	return ok
}

// Update dispatches pending worker messages, sends local changes and
// refreshes presented positions.
func (s *Stepper) Update(now float64) {
	if err := s.inbox.Update(); err != nil {
		s.logger.Warn("failed to handle worker message", log.Error(err))
	}
	s.Sync()

	if s.clearActions != nil {
		s.clearActions(s.registry)
	}

	if s.paused {
		SnapPresentation(s.registry)
	} else {
		elapsed := math.Min(now-s.lastTime, 1)
		s.delay.Update(now-s.simTime, elapsed)
		UpdatePresentation(s.registry, s.simTime, now, s.delay.Delay())
	}
	s.lastTime = now
}

// Sync sends the changes recorded since the last call to the worker.
func (s *Stepper) Sync() {
	if s.builder.Empty() {
		return
	}
	s.send(messages.UpdateEntities{Ops: s.builder.Finish()})
}

func (s *Stepper) SetPaused(paused bool) {
	s.paused = paused
	s.delay.Reset()
	s.send(messages.SetPaused{Paused: paused})
}

// StepSimulation asks a paused worker to run one step.
func (s *Stepper) StepSimulation() {
	s.send(messages.StepSimulation{})
}

func (s *Stepper) SettingsChanged(settings messages.Settings) {
	s.send(messages.SetSettings{Settings: settings})
}

func (s *Stepper) WakeUpEntity(e models.Entity) {
	s.send(messages.WakeUpResidents{Entities: []models.Entity{e}})
}

// Raycast requests a raycast from the worker. fn runs once from a later
// Update with the hit entity in local space, or Null.
func (s *Stepper) Raycast(p0, p1 physics.Vec3, fn RaycastFunc, ignore ...models.Entity) uint64 {
	id := s.nextRaycastID
	s.nextRaycastID++
	s.raycasts[id] = raycastContext{fn: fn, p0: p0, p1: p1}
	s.send(messages.RaycastRequest{ID: id, P0: p0, P1: p1, Ignore: ignore})
	return id
}

// QueryAABB requests the bodies overlapping aabb from the worker.
func (s *Stepper) QueryAABB(aabb physics.AABB, fn QueryAABBFunc, procedural, nonProcedural, islands bool) uint64 {
	id := s.registerQuery(aabb, fn)
	s.send(messages.QueryAABBRequest{
		ID:            id,
		AABB:          aabb,
		Procedural:    procedural,
		NonProcedural: nonProcedural,
		Islands:       islands,
	})
	return id
}

// QueryAABBOfInterest requests everything in aabb along with the islands it
// touches.
func (s *Stepper) QueryAABBOfInterest(aabb physics.AABB, fn QueryAABBFunc) uint64 {
	id := s.registerQuery(aabb, fn)
	s.send(messages.QueryAABBOfInterestRequest{ID: id, AABB: aabb})
	return id
}

func (s *Stepper) registerQuery(aabb physics.AABB, fn QueryAABBFunc) uint64 {
	id := s.nextQueryID
	s.nextQueryID++
	s.queries[id] = queryContext{fn: fn, aabb: aabb}
	return id
}

func (s *Stepper) send(msg any) {
	if err := s.dispatcher.Send(s.cfg.WorkerQueue, msg); err != nil {
		s.logger.Error("failed to send message to worker",
			log.String("type", fmt.Sprintf("%T", msg)),
			log.Error(err),
		)
	}
}

// Close detaches the stepper from the store and the dispatcher. Pending
// requests are dropped without their callbacks running.
func (s *Stepper) Close() error {
	ecs.DisconnectAll(s.conns)
	s.observer.Close()
	clear(s.raycasts)
	clear(s.queries)
	return bus.CancelAll(s.subs)
}

func (s *Stepper) onConstructShared(_ *ecs.Registry, e models.Entity) {
	s.observer.Observe(e)
}

func (s *Stepper) forget(e models.Entity) {
	s.observer.Unobserve(e)
	// Imports erase their own mappings.
	if !s.importing {
		s.emap.EraseLocal(e)
	}
}

func (s *Stepper) onDestroyNode(r *ecs.Registry, e models.Entity) {
	node, _ := ecs.Get[graph.GraphNode](r, e)

	// Edges go away through RemoveAllEdges below rather than one hook at a
	// time.
	s.edgeConn.Disconnect()
	s.graph.VisitEdges(node.Index, func(idx graph.EdgeIndex) {
		edge := s.graph.EdgeEntity(idx)
		r.Destroy(edge)
		s.forget(edge)
	})
	s.edgeConn.Reconnect()

	s.graph.RemoveAllEdges(node.Index)
	s.graph.RemoveNode(node.Index)
	s.forget(e)
}

func (s *Stepper) onDestroyEdge(r *ecs.Registry, e models.Entity) {
	edge, _ := ecs.Get[graph.GraphEdge](r, e)
	s.graph.RemoveEdge(edge.Index)
	s.forget(e)
}

func (s *Stepper) onStepUpdate(msg messages.StepUpdate) error {
	s.importing = true
	s.observer.SetActive(false)

	msg.Ops.Execute(s.registry, s.emap)
	s.simTime = msg.Timestamp

	for _, remote := range msg.Ops.CreatedEntities() {
		if local := s.emap.Local(remote); !local.IsNull() {
			s.builder.AddEntityMapping(local, remote)
		}
	}

	var bodies []models.Entity
	for _, d := range []*registry.Descriptor{
		registry.Lookup[components.RigidBodyTag](s.source),
		registry.Lookup[components.ExternalTag](s.source),
	} {
		msg.Ops.EmplaceForEach(d, func(remote models.Entity) {
			if local := s.emap.Local(remote); !local.IsNull() {
				bodies = append(bodies, local)
			}
		})
	}
	graph.AttachBodies(s.registry, s.graph, bodies)

	var constraints []models.Entity
	for _, d := range s.source.All() {
		if !graph.IsConstraint(d) {
			continue
		}
		msg.Ops.EmplaceForEach(d, func(remote models.Entity) {
			if local := s.emap.Local(remote); !local.IsNull() {
				constraints = append(constraints, local)
			}
		})
	}
	graph.AttachConstraints(s.registry, s.graph, s.source, constraints)

	s.importing = false
	s.observer.SetActive(true)

	// Events must be flushed before the next update overwrites their state.
	if s.emitter != nil {
		s.emitter.ConsumeEvents()
	}
	return nil
}

func (s *Stepper) onRaycastResponse(msg messages.RaycastResponse) error {
	ctx, ok := s.raycasts[msg.ID]
	if !ok {
		return fmt.Errorf("raycast %d: %w", msg.ID, ErrUnknownRequest)
	}
	delete(s.raycasts, msg.ID)

	result := msg.Result
	if !result.Entity.IsNull() {
		result.Entity = s.emap.Local(result.Entity)
	}
	ctx.fn(msg.ID, result, ctx.p0, ctx.p1)
	return nil
}

func (s *Stepper) onQueryAABBResponse(msg messages.QueryAABBResponse) error {
	ctx, ok := s.queries[msg.ID]
	if !ok {
		return fmt.Errorf("query %d: %w", msg.ID, ErrUnknownRequest)
	}
	delete(s.queries, msg.ID)

	result := messages.QueryAABBResult{
		IslandEntities:        s.toLocal(msg.Result.IslandEntities),
		ProceduralEntities:    s.toLocal(msg.Result.ProceduralEntities),
		NonProceduralEntities: s.toLocal(msg.Result.NonProceduralEntities),
	}
	ctx.fn(msg.ID, result)
	return nil
}

// toLocal translates worker entities, dropping those without a counterpart.
func (s *Stepper) toLocal(remote []models.Entity) []models.Entity {
	var out []models.Entity
	for _, e := range remote {
		if local := s.emap.Local(e); !local.IsNull() {
			out = append(out, local)
		}
	}
	return out
}
