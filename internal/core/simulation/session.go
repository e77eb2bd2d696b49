package simulation

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/zeusync/statesync/internal/core/ecs"
	"github.com/zeusync/statesync/internal/core/events/bus"
	"github.com/zeusync/statesync/internal/core/observability/log"
	"github.com/zeusync/statesync/internal/core/schema/registry"
	"github.com/zeusync/statesync/internal/core/simulation/messages"
	"github.com/zeusync/statesync/internal/core/simulation/stepper"
	"github.com/zeusync/statesync/internal/core/simulation/worker"
)

var ErrStopped = errors.New("session stopped")

type Config struct {
	Settings messages.Settings
	Stepper  stepper.Config
}

func DefaultConfig() Config {
	return Config{
		Settings: messages.DefaultSettings(),
		Stepper:  stepper.DefaultConfig(),
	}
}

// Session runs a worker on its own goroutine and exposes the stepper that
// the owning goroutine drives with Update.
type Session struct {
	logger  log.Log
	stepper *stepper.Stepper
	worker  *worker.Worker

	cancel context.CancelFunc
	group  *errgroup.Group

	mu      sync.Mutex
	stopped bool
}

// Start creates the worker and the stepper on a shared dispatcher and starts
// the worker loop. now is the initial simulation time.
func Start(ctx context.Context, logger log.Log, d *bus.Dispatcher, r *ecs.Registry, src *registry.IndexSource, cfg Config, now float64, opts ...stepper.Option) *Session {
	w := worker.New(logger, d, src, worker.Config{
		InboxQueue:  cfg.Stepper.WorkerQueue,
		OutboxQueue: cfg.Stepper.MainQueue,
		Settings:    cfg.Settings,
	})
	st := stepper.New(logger, d, r, src, cfg.Stepper, now, opts...)

	ctx, cancel := context.WithCancel(ctx)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.Run(ctx) })

	logger.Info("simulation session started",
		log.String("main_queue", cfg.Stepper.MainQueue),
		log.String("worker_queue", cfg.Stepper.WorkerQueue),
	)
	return &Session{logger: logger, stepper: st, worker: w, cancel: cancel, group: g}
}

func (s *Session) Stepper() *stepper.Stepper { return s.stepper }

// Stop ends the worker loop and releases both sides. Stopping twice returns
// ErrStopped.
func (s *Session) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	s.stopped = true
	s.mu.Unlock()

	s.cancel()
	err := s.group.Wait()
	return errors.Join(err, s.stepper.Close(), s.worker.Close())
}
