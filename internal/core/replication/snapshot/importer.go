package snapshot

import (
	"github.com/zeusync/statesync/internal/core/ecs"
	"github.com/zeusync/statesync/internal/core/models"
	"github.com/zeusync/statesync/internal/core/observability/log"
	"github.com/zeusync/statesync/internal/core/observability/metrics"
	"github.com/zeusync/statesync/internal/core/replication/entitymap"
	"github.com/zeusync/statesync/internal/core/schema/registry"
)

const SkippedMetric = "snapshot_import_skipped_total"

// Importer applies snapshots to a store, merging into components that are
// already present.
type Importer struct {
	source  *registry.IndexSource
	logger  log.Log
	metrics *metrics.Registry
}

type ImporterOption func(*Importer)

func WithLogger(l log.Log) ImporterOption {
	return func(im *Importer) { im.logger = l }
}

func WithMetrics(m *metrics.Registry) ImporterOption {
	return func(im *Importer) { im.metrics = m }
}

func NewImporter(src *registry.IndexSource, opts ...ImporterOption) *Importer {
	im := &Importer{source: src}
	for _, opt := range opts {
		opt(im)
	}
	if im.logger == nil {
		im.logger = log.NewNop()
	}
	if im.metrics == nil {
		im.metrics = metrics.NewRegistry()
	}
	im.logger = im.logger.Named("importer")
	return im
}

func (im *Importer) Metrics() *metrics.Registry { return im.metrics }

// Import applies a snapshot whose entities are in the sender's space.
// Entities without a valid local counterpart are skipped.
func (im *Importer) Import(r *ecs.Registry, emap *entitymap.Map, snap *Snapshot) {
	im.apply(r, snap, emap.Local, emap.Local)
}

// ImportLocal applies a snapshot already converted to local space.
func (im *Importer) ImportLocal(r *ecs.Registry, snap *Snapshot) {
	im.apply(r, snap, func(e models.Entity) models.Entity { return e }, nil)
}

func (im *Importer) apply(r *ecs.Registry, snap *Snapshot, translate, remap func(models.Entity) models.Entity) {
	for i := range snap.Pools {
		pool := &snap.Pools[i]
		d := im.source.Descriptor(pool.Index)
		if d == nil {
			im.metrics.Counter(SkippedMetric, "reason", "unknown_component").Add(uint64(len(pool.EntityIndices)))
			continue
		}

		for j, ei := range pool.EntityIndices {
			if int(ei) >= len(snap.Entities) {
				continue
			}
			remote := snap.Entities[ei]
			local := translate(remote)
			if local.IsNull() || !r.Valid(local) {
				im.metrics.Counter(SkippedMetric, "component", d.Name).Inc()
				im.logger.Debug("skipping stale entity",
					log.Entity("remote", remote),
					log.String("component", d.Name),
				)
				continue
			}

			var v any
			if !d.Empty && j < len(pool.Values) {
				v = d.Clone(pool.Values[j])
				if remap != nil {
					v = d.Remap(v, remap)
				}
			}
			d.Merge(r, local, v)
		}
	}
}
