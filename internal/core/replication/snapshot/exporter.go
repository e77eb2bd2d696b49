package snapshot

import (
	"github.com/zeusync/statesync/internal/core/components"
	"github.com/zeusync/statesync/internal/core/ecs"
	"github.com/zeusync/statesync/internal/core/models"
	"github.com/zeusync/statesync/internal/core/schema/registry"
)

type exporterOptions struct {
	ownerEcho registry.Category
}

type ExporterOption func(*exporterOptions)

// WithOwnerEcho sets the component categories that are never sent back to
// the owning client. The default is input and action history.
func WithOwnerEcho(c registry.Category) ExporterOption {
	return func(o *exporterOptions) { o.ownerEcho = c }
}

func newExporterOptions(opts []ExporterOption) exporterOptions {
	o := exporterOptions{ownerEcho: registry.OwnerEcho}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func exportAll(r *ecs.Registry, src *registry.IndexSource, snap *Snapshot) {
	b := newBuilder(snap)
	for _, d := range src.All() {
		for _, e := range d.View(r) {
			v, _ := d.Get(r, e)
			b.insert(d, e, v)
		}
	}
}

func ownedBy(r *ecs.Registry, e, client models.Entity) bool {
	if client.IsNull() {
		return false
	}
	owner, ok := ecs.Get[components.EntityOwner](r, e)
	return ok && owner.Client == client
}

func exportDirtyEntity(r *ecs.Registry, src *registry.IndexSource, b *builder, e models.Entity, skip registry.Category) {
	dirty, ok := ecs.Get[components.NetworkDirty](r, e)
	if !ok {
		return
	}
	for _, id := range dirty.Types {
		d := src.ByID(id)
		if d == nil || d.Category.Has(skip) {
			continue
		}
		if v, ok := d.Get(r, e); ok {
			b.insert(d, e, v)
		}
	}
}

// ClientExporter writes the client's store into snapshots bound for the
// server. Self is the client's own entity in its local space.
type ClientExporter struct {
	source *registry.IndexSource
	self   models.Entity
	opts   exporterOptions
}

func NewClientExporter(src *registry.IndexSource, self models.Entity, opts ...ExporterOption) *ClientExporter {
	return &ClientExporter{source: src, self: self, opts: newExporterOptions(opts)}
}

func (x *ClientExporter) SetSelf(e models.Entity) { x.self = e }

func (x *ClientExporter) Self() models.Entity { return x.self }

// ExportAll writes every registered component of every entity.
func (x *ClientExporter) ExportAll(r *ecs.Registry, snap *Snapshot) {
	exportAll(r, x.source, snap)
}

// ExportDirty writes the dirty components of every entity. Owner-echo
// categories of entities this client owns are left out.
func (x *ClientExporter) ExportDirty(r *ecs.Registry, snap *Snapshot) {
	b := newBuilder(snap)
	for _, e := range ecs.View[components.NetworkDirty](r) {
		var skip registry.Category
		if ownedBy(r, e, x.self) {
			skip = x.opts.ownerEcho
		}
		exportDirtyEntity(r, x.source, b, e, skip)
	}
}

// ExportInputs writes the owner-echo components of the entities this client
// owns. This is how a client sends its own input to the server.
func (x *ClientExporter) ExportInputs(r *ecs.Registry, snap *Snapshot) {
	b := newBuilder(snap)
	for _, e := range ecs.View[components.EntityOwner](r) {
		if !ownedBy(r, e, x.self) {
			continue
		}
		for _, d := range x.source.All() {
			if !d.Category.Has(x.opts.ownerEcho) {
				continue
			}
			if v, ok := d.Get(r, e); ok {
				b.insert(d, e, v)
			}
		}
	}
}

// ServerExporter writes the authoritative store into snapshots bound for
// clients.
type ServerExporter struct {
	source *registry.IndexSource
	opts   exporterOptions
}

func NewServerExporter(src *registry.IndexSource, opts ...ExporterOption) *ServerExporter {
	return &ServerExporter{source: src, opts: newExporterOptions(opts)}
}

func (x *ServerExporter) ExportAll(r *ecs.Registry, snap *Snapshot) {
	exportAll(r, x.source, snap)
}

// ExportDirty writes dirty components for the destination client. When snap
// already lists entities only those are exported; otherwise every dirty
// entity is. Owner-echo categories of entities owned by dest are skipped.
func (x *ServerExporter) ExportDirty(r *ecs.Registry, snap *Snapshot, dest models.Entity) {
	entities := snap.Entities
	if len(entities) == 0 {
		entities = ecs.View[components.NetworkDirty](r)
	} else {
		entities = append([]models.Entity(nil), entities...)
	}

	b := newBuilder(snap)
	for _, e := range entities {
		var skip registry.Category
		if ownedBy(r, e, dest) {
			skip = x.opts.ownerEcho
		}
		exportDirtyEntity(r, x.source, b, e, skip)
	}
}
