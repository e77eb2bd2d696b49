package bus

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/zeusync/statesync/internal/core/observability/metrics"
)

const (
	MetricSent      = "bus_messages_sent_total"
	MetricDelivered = "bus_messages_delivered_total"
	MetricDropped   = "bus_messages_dropped_total"
)

// Dispatcher is a registry of named message queues. Sending is safe from any
// goroutine; each queue is drained by its owner through Update.
type Dispatcher struct {
	mu      sync.RWMutex
	queues  map[string]*Queue
	metrics *metrics.Registry
}

func NewDispatcher(m *metrics.Registry) *Dispatcher {
	if m == nil {
		m = metrics.NewRegistry()
	}
	return &Dispatcher{queues: make(map[string]*Queue), metrics: m}
}

func (d *Dispatcher) Metrics() *metrics.Registry { return d.metrics }

// MakeQueue returns the queue with the given name, creating it on first use.
func (d *Dispatcher) MakeQueue(name string) *Queue {
	d.mu.Lock()
	defer d.mu.Unlock()
	if q, ok := d.queues[name]; ok {
		return q
	}
	q := &Queue{
		name:      name,
		subs:      make(map[reflect.Type][]*subscription),
		notify:    make(chan struct{}, 1),
		sent:      d.metrics.Counter(MetricSent, "queue", name),
		delivered: d.metrics.Counter(MetricDelivered, "queue", name),
		dropped:   d.metrics.Counter(MetricDropped, "queue", name),
	}
	d.queues[name] = q
	return q
}

func (d *Dispatcher) Queue(name string) (*Queue, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	q, ok := d.queues[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrQueueNotFound, name)
	}
	return q, nil
}

// RemoveQueue forgets the named queue. Messages still pending in it are
// dropped and later sends by name fail with ErrQueueNotFound.
func (d *Dispatcher) RemoveQueue(name string) error {
	d.mu.Lock()
	q, ok := d.queues[name]
	delete(d.queues, name)
	d.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrQueueNotFound, name)
	}

	q.mu.Lock()
	q.dropped.Add(uint64(len(q.pending)))
	q.pending = nil
	q.mu.Unlock()
	return nil
}

// Send pushes payload into the named queue.
func (d *Dispatcher) Send(name string, payload any) error {
	q, err := d.Queue(name)
	if err != nil {
		return err
	}
	return q.Push(payload)
}

// Queues lists the queue names in sorted order.
func (d *Dispatcher) Queues() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.queues))
	for name := range d.queues {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Queue buffers messages until its owner calls Update, which dispatches them
// in arrival order to the handlers connected for each payload type.
type Queue struct {
	name string

	mu      sync.Mutex
	pending []any
	subs    map[reflect.Type][]*subscription
	notify  chan struct{}

	sent      metrics.Counter
	delivered metrics.Counter
	dropped   metrics.Counter
}

func (q *Queue) Name() string { return q.name }

// Push appends a message and wakes the owner.
func (q *Queue) Push(payload any) error {
	if payload == nil {
		return ErrNilPayload
	}
	q.mu.Lock()
	q.pending = append(q.pending, payload)
	q.mu.Unlock()
	q.sent.Inc()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

// Notify fires after a Push. Several pushes may coalesce into one signal.
func (q *Queue) Notify() <-chan struct{} { return q.notify }

func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Update dispatches every pending message on the calling goroutine. Messages
// pushed by handlers are left for the next Update. Handler errors are joined.
func (q *Queue) Update() error {
	q.mu.Lock()
	batch := q.pending
	q.pending = nil
	q.mu.Unlock()

	var all error
	for _, payload := range batch {
		q.mu.Lock()
		subs := append([]*subscription(nil), q.subs[reflect.TypeOf(payload)]...)
		q.mu.Unlock()

		if len(subs) == 0 {
			q.dropped.Inc()
			continue
		}
		for _, s := range subs {
			if !s.IsActive() {
				continue
			}
			if err := s.handler(payload); err != nil {
				all = errors.Join(all, err)
			}
		}
		q.delivered.Inc()
	}
	return all
}

// Connect registers fn for messages of type T on q.
func Connect[T any](q *Queue, fn func(msg T) error) Subscription {
	typ := reflect.TypeFor[T]()
	s := &subscription{
		id:      uuid.NewString(),
		msgType: typ,
		handler: func(payload any) error { return fn(payload.(T)) },
		active:  true,
	}
	s.cancel = func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		subs := q.subs[typ]
		for i, other := range subs {
			if other == s {
				q.subs[typ] = append(subs[:i:i], subs[i+1:]...)
				break
			}
		}
	}

	q.mu.Lock()
	q.subs[typ] = append(q.subs[typ], s)
	q.mu.Unlock()
	return s
}

type subscription struct {
	id      string
	msgType reflect.Type
	handler func(any) error

	mu     sync.Mutex
	active bool
	cancel func()
}

func (s *subscription) ID() string { return s.id }

func (s *subscription) MessageType() reflect.Type { return s.msgType }

func (s *subscription) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *subscription) Cancel() error {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return nil
	}
	s.active = false
	s.mu.Unlock()
	s.cancel()
	return nil
}

// CancelAll cancels every subscription, joining any errors.
func CancelAll(subs []Subscription) error {
	var all error
	for _, s := range subs {
		if s == nil {
			continue
		}
		if err := s.Cancel(); err != nil {
			all = errors.Join(all, err)
		}
	}
	return all
}
