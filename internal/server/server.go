package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zeusync/statesync/internal/core/config"
	"github.com/zeusync/statesync/internal/core/ecs"
	"github.com/zeusync/statesync/internal/core/events/bus"
	"github.com/zeusync/statesync/internal/core/models"
	"github.com/zeusync/statesync/internal/core/netsync"
	"github.com/zeusync/statesync/internal/core/observability/log"
	"github.com/zeusync/statesync/internal/core/replication/snapshot"
	"github.com/zeusync/statesync/internal/core/schema/registry"
	"github.com/zeusync/statesync/internal/core/simulation"
)

// Server owns the authoritative store. It drives the simulation, accepts
// clients over the configured transport, applies their input and publishes
// dirty state to them.
type Server struct {
	cfg        config.Config
	logger     log.Log
	registry   *ecs.Registry
	source     *registry.IndexSource
	dispatcher *bus.Dispatcher
	publisher  *netsync.Publisher
	tracker    *snapshot.DirtyTracker

	// mu guards the store. Every goroutine touching registry holds it.
	mu      sync.Mutex
	session *simulation.Session

	httpServer *http.Server
	quic       *netsync.QUICListener
	addr       net.Addr

	cancel context.CancelFunc
	group  *errgroup.Group

	running int32 // atomic bool
	closed  int32 // atomic bool
}

func New(
	cfg config.Config,
	logger log.Log,
	r *ecs.Registry,
	src *registry.IndexSource,
	d *bus.Dispatcher,
	pub *netsync.Publisher,
	tracker *snapshot.DirtyTracker,
) *Server {
	return &Server{
		cfg:        cfg,
		logger:     logger.With(log.String("component", "server")),
		registry:   r,
		source:     src,
		dispatcher: d,
		publisher:  pub,
		tracker:    tracker,
	}
}

// Start listens, starts the simulation and begins publishing.
func (s *Server) Start(ctx context.Context) error {
	if atomic.LoadInt32(&s.closed) == 1 {
		return ErrServerClosed
	}
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		return ErrServerAlreadyRunning
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.group, ctx = errgroup.WithContext(ctx)

	if err := s.listen(ctx); err != nil {
		s.cancel()
		atomic.StoreInt32(&s.running, 0)
		s.logger.Error("Failed to create listener", log.Error(err))
		return err
	}

	s.session = simulation.Start(ctx, s.logger, s.dispatcher, s.registry, s.source, simulation.Config{
		Settings: s.cfg.Simulation,
		Stepper:  s.cfg.Stepper,
	}, 0)

	s.group.Go(func() error { return s.tick(ctx) })
	s.group.Go(func() error { return s.publisher.Run(ctx, s.cfg.Network.PublishRate, &s.mu) })

	s.logger.Info("Server started",
		log.String("transport", s.cfg.Network.Transport),
		log.String("addr", s.addr.String()),
	)
	return nil
}

func (s *Server) listen(ctx context.Context) error {
	switch s.cfg.Network.Transport {
	case config.TransportQUIC:
		l, err := netsync.ListenQUIC(s.cfg.Network.Address, nil)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrListenerFailed, err)
		}
		s.quic, s.addr = l, l.Addr()
		s.group.Go(func() error { return s.acceptQUIC(ctx) })

	default:
		ln, err := net.Listen("tcp", s.cfg.Network.Address)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrListenerFailed, err)
		}
		mux := http.NewServeMux()
		mux.Handle(s.cfg.Network.Path, netsync.NewWebSocketHandler(s.logger, func(_ *http.Request, t *netsync.WebSocketTransport) {
			s.accept(ctx, t)
		}))
		s.httpServer = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		s.addr = ln.Addr()
		s.group.Go(func() error {
			if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	return nil
}

func (s *Server) acceptQUIC(ctx context.Context) error {
	for {
		t, err := s.quic.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Warn("Failed to accept connection", log.Error(err))
			continue
		}
		s.accept(ctx, t)
	}
}

// accept creates the client's entity and reads its input until the transport
// closes. The publisher sends the full state on its next tick, which keeps
// every send to a client on one goroutine and in order.
func (s *Server) accept(ctx context.Context, t netsync.Transport) {
	if ctx.Err() != nil {
		_ = t.Close()
		return
	}
	s.mu.Lock()
	e := s.registry.Create()
	c := s.publisher.AddClient(e, t)
	s.mu.Unlock()

	s.group.Go(func() error {
		s.readInputs(ctx, c)
		return nil
	})
}

func (s *Server) readInputs(ctx context.Context, c *netsync.Client) {
	defer s.drop(c.ID, c.Entity)
	for {
		data, err := c.Transport.Receive(ctx)
		if err != nil {
			if !errors.Is(err, netsync.ErrClosed) && ctx.Err() == nil {
				s.logger.Warn("Client receive failed", log.String("client", c.ID), log.Error(err))
			}
			return
		}
		s.mu.Lock()
		err = s.publisher.HandleInput(c, data)
		s.mu.Unlock()
		if err != nil {
			s.logger.Warn("Client input rejected", log.String("client", c.ID), log.Error(err))
		}
	}
}

func (s *Server) drop(id string, e models.Entity) {
	_ = s.publisher.RemoveClient(id)
	s.mu.Lock()
	s.registry.Destroy(e)
	s.mu.Unlock()
}

func (s *Server) tick(ctx context.Context) error {
	ticker := time.NewTicker(time.Duration(s.cfg.Simulation.FixedDt * float64(time.Second)))
	defer ticker.Stop()

	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			s.mu.Lock()
			s.session.Stepper().Update(now.Sub(start).Seconds())
			s.mu.Unlock()
		}
	}
}

// Addr returns the bound listener address once started.
func (s *Server) Addr() net.Addr { return s.addr }

// Do runs fn with exclusive access to the store and the stepper.
func (s *Server) Do(fn func(r *ecs.Registry, sess *simulation.Session)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.registry, s.session)
}

// Stop stops the server
func (s *Server) Stop(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.running, 1, 0) {
		return ErrServerNotRunning
	}
	s.logger.Info("Stopping server")

	s.cancel()
	var errs []error
	if s.httpServer != nil {
		errs = append(errs, s.httpServer.Shutdown(ctx))
	}
	if s.quic != nil {
		errs = append(errs, s.quic.Close())
	}
	for _, c := range s.publisher.Clients() {
		_ = c.Transport.Close()
	}
	errs = append(errs, s.group.Wait(), s.session.Stop())

	s.logger.Info("Server stopped")
	return errors.Join(errs...)
}

// Close closes the server and releases all resources
func (s *Server) Close() error {
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return nil
	}
	if atomic.LoadInt32(&s.running) == 1 {
		_ = s.Stop(context.Background())
	}
	s.tracker.Close()
	return nil
}
