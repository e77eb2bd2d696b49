package ecs

import "github.com/zeusync/statesync/internal/core/models"

// Listener is invoked with the registry and the entity a change applies to.
type Listener func(r *Registry, e models.Entity)

// Signal fans a notification out to its connected listeners in connection
// order. Listeners may connect or disconnect while a publish is running; the
// change takes effect on the next publish.
type Signal struct {
	slots []*Connection
}

// Connection is the handle returned by Signal.Connect.
type Connection struct {
	signal    *Signal
	listener  Listener
	connected bool
}

func (s *Signal) Connect(fn Listener) *Connection {
	c := &Connection{signal: s, listener: fn, connected: true}
	s.slots = append(s.slots, c)
	return c
}

// Len returns the number of connected listeners.
func (s *Signal) Len() int { return len(s.slots) }

func (s *Signal) publish(r *Registry, e models.Entity) {
	if len(s.slots) == 0 {
		return
	}
	slots := make([]*Connection, len(s.slots))
	copy(slots, s.slots)
	for _, c := range slots {
		if c.connected {
			c.listener(r, e)
		}
	}
}

// Connected reports whether the listener is currently attached.
func (c *Connection) Connected() bool { return c != nil && c.connected }

// Disconnect detaches the listener. Calling it twice is a no-op.
func (c *Connection) Disconnect() {
	if c == nil || !c.connected {
		return
	}
	c.connected = false
	slots := c.signal.slots
	for i, slot := range slots {
		if slot == c {
			c.signal.slots = append(slots[:i:i], slots[i+1:]...)
			break
		}
	}
}

// Reconnect re-attaches a previously disconnected listener at the end of the
// signal's listener list.
func (c *Connection) Reconnect() {
	if c == nil || c.connected {
		return
	}
	c.connected = true
	c.signal.slots = append(c.signal.slots, c)
}

// DisconnectAll detaches every connection in the list.
func DisconnectAll(conns []*Connection) {
	for _, c := range conns {
		c.Disconnect()
	}
}
