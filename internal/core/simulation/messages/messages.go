package messages

import (
	"github.com/zeusync/statesync/internal/core/models"
	"github.com/zeusync/statesync/internal/core/replication/ops"
	"github.com/zeusync/statesync/internal/core/systems/physics"
)

// Default queue names. The stepper drains MainQueue; the worker drains
// WorkerQueue.
const (
	MainQueue   = "main"
	WorkerQueue = "worker"
)

// Settings are the simulation parameters shared by the stepper and worker.
type Settings struct {
	FixedDt        float64      `yaml:"fixed_dt"`
	MaxSteps       int          `yaml:"max_steps"`
	Gravity        physics.Vec3 `yaml:"gravity"`
	SleepThreshold float64      `yaml:"sleep_threshold"`
	SleepDelay     float64      `yaml:"sleep_delay"`
}

func DefaultSettings() Settings {
	return Settings{
		FixedDt:        1.0 / 60,
		MaxSteps:       10,
		Gravity:        physics.Vec3{Y: -9.8},
		SleepThreshold: 0.01,
		SleepDelay:     2,
	}
}

// StepUpdate carries the worker's changes after one or more steps and the
// simulation time they correspond to.
type StepUpdate struct {
	Ops       ops.Log
	Timestamp float64
}

// UpdateEntities carries the owner's local changes to the worker.
type UpdateEntities struct {
	Ops ops.Log
}

type SetPaused struct {
	Paused bool
}

// StepSimulation advances a paused simulation by one step.
type StepSimulation struct{}

type SetSettings struct {
	Settings Settings
}

// WakeUpResidents wakes the given bodies and anything sleeping with them.
type WakeUpResidents struct {
	Entities []models.Entity
}

type RaycastRequest struct {
	ID     uint64
	P0, P1 physics.Vec3
	Ignore []models.Entity
}

// RaycastResult describes the first body hit, if any. Entity is Null on a
// miss or when the body cannot be translated to the caller's space.
type RaycastResult struct {
	Entity   models.Entity
	Fraction float64
	Normal   physics.Vec3
}

type RaycastResponse struct {
	ID     uint64
	Result RaycastResult
}

type QueryAABBRequest struct {
	ID            uint64
	AABB          physics.AABB
	Procedural    bool
	NonProcedural bool
	Islands       bool
}

// QueryAABBOfInterestRequest asks for every body in a region together with
// the islands they belong to.
type QueryAABBOfInterestRequest struct {
	ID   uint64
	AABB physics.AABB
}

type QueryAABBResult struct {
	IslandEntities        []models.Entity
	ProceduralEntities    []models.Entity
	NonProceduralEntities []models.Entity
}

type QueryAABBResponse struct {
	ID     uint64
	Result QueryAABBResult
}
