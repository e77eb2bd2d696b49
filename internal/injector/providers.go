package injector

import (
	"github.com/google/wire"

	"github.com/zeusync/statesync/internal/core/config"
	"github.com/zeusync/statesync/internal/core/ecs"
	"github.com/zeusync/statesync/internal/core/events/bus"
	"github.com/zeusync/statesync/internal/core/netsync"
	"github.com/zeusync/statesync/internal/core/observability/log"
	"github.com/zeusync/statesync/internal/core/observability/metrics"
	"github.com/zeusync/statesync/internal/core/replication/snapshot"
	"github.com/zeusync/statesync/internal/core/schema/registry"
	"github.com/zeusync/statesync/internal/server"
)

// ServerSet wires a replication server from a Config.
var ServerSet = wire.NewSet(
	ProvideLogger,
	wire.Bind(new(log.Log), new(*log.Logger)),
	metrics.NewRegistry,
	bus.NewDispatcher,
	ecs.NewRegistry,
	registry.Shared,
	ProvideOwnerEcho,
	ProvideDirtyTracker,
	ProvidePublisher,
	server.New,
)

func ProvideLogger(cfg config.Config) *log.Logger {
	return log.New(cfg.LogLevel())
}

func ProvideOwnerEcho(cfg config.Config) (registry.Category, error) {
	return cfg.OwnerEcho()
}

// ProvideDirtyTracker starts dirty tracking on r. The cleanup disconnects it.
func ProvideDirtyTracker(r *ecs.Registry, src *registry.IndexSource) (*snapshot.DirtyTracker, func()) {
	t := snapshot.TrackDirty(r, src)
	return t, t.Close
}

func ProvidePublisher(logger log.Log, r *ecs.Registry, src *registry.IndexSource, m *metrics.Registry, echo registry.Category) *netsync.Publisher {
	return netsync.NewPublisher(logger, r, src, m, echo)
}
