package components

// Tag components carry no payload; only their presence is replicated.
type (
	RigidBodyTag  struct{}
	StaticTag     struct{}
	KinematicTag  struct{}
	DynamicTag    struct{}
	ExternalTag   struct{}
	ProceduralTag struct{}
)
