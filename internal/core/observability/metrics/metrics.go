package metrics

import (
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

type Counter interface {
	Inc()
	Add(n uint64)
	Value() uint64
}

type counter struct {
	v atomic.Uint64
}

func (c *counter) Inc()          { c.v.Add(1) }
func (c *counter) Add(n uint64)  { c.v.Add(n) }
func (c *counter) Value() uint64 { return c.v.Load() }

// Registry holds named counters. Counters are created on first use and live
// as long as the registry.
type Registry struct {
	mu       sync.RWMutex
	counters map[string]*counter
}

func NewRegistry() *Registry {
	return &Registry{counters: make(map[string]*counter)}
}

// Key renders a counter name with label pairs, e.g. name{k=v}.
func Key(name string, labels ...string) string {
	if len(labels) < 2 {
		return name
	}
	var sb strings.Builder
	sb.WriteString(name)
	sb.WriteByte('{')
	for i := 0; i+1 < len(labels); i += 2 {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(labels[i])
		sb.WriteByte('=')
		sb.WriteString(labels[i+1])
	}
	sb.WriteByte('}')
	return sb.String()
}

// Counter returns the counter for name and labels, creating it if needed.
func (r *Registry) Counter(name string, labels ...string) Counter {
	key := Key(name, labels...)

	r.mu.RLock()
	c, ok := r.counters[key]
	r.mu.RUnlock()
	if ok {
		return c
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok = r.counters[key]; ok {
		return c
	}
	c = &counter{}
	r.counters[key] = c
	return c
}

// Value returns the current value of a counter, zero if it was never used.
func (r *Registry) Value(name string, labels ...string) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.counters[Key(name, labels...)]; ok {
		return c.Value()
	}
	return 0
}

// Snapshot copies every counter value.
func (r *Registry) Snapshot() map[string]uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]uint64, len(r.counters))
	for k, c := range r.counters {
		out[k] = c.Value()
	}
	return out
}

// Names lists the registered counter keys in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.counters))
	for k := range r.counters {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
