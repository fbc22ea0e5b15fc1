// Package verlet runs a velocity-Verlet integration of particles in a harmonic
// trap on top of the ecs scheduler.
package verlet

import (
	"errors"

	"github.com/go-gl/mathgl/mgl64"

	ecs "github.com/DangerosoDavo/verletecs"
	ecsstorage "github.com/DangerosoDavo/verletecs/ecs/storage"
)

// Component types registered by RegisterComponents.
const (
	PositionType ecs.ComponentType = "position"
	VelocityType ecs.ComponentType = "velocity"
	ForceType    ecs.ComponentType = "force"
	OldForceType ecs.ComponentType = "old_force"
	MassType     ecs.ComponentType = "mass"
)

// TimestepResource names the Timestep resource.
const TimestepResource = "timestep"

var (
	ErrUnknownVariant  = errors.New("verlet: unknown variant")
	ErrInvalidScenario = errors.New("verlet: invalid scenario")
)

type Position struct{ mgl64.Vec3 }

type Velocity struct{ mgl64.Vec3 }

type Force struct{ mgl64.Vec3 }

// OldForce keeps the force of the previous step for the velocity update.
type OldForce struct{ Force }

// Mass is stored in a shared column; particles of one group share a slot.
type Mass float64

// Timestep is the integration step, independent of the scheduler's wall-clock delta.
type Timestep struct {
	DT float64
}

// RegisterComponents registers the particle columns on world.
func RegisterComponents(world *ecs.World) error {
	columns := []struct {
		t        ecs.ComponentType
		strategy ecs.StorageStrategy
	}{
		{PositionType, ecsstorage.NewColumnStrategy[Position]()},
		{VelocityType, ecsstorage.NewColumnStrategy[Velocity]()},
		{ForceType, ecsstorage.NewColumnStrategy[Force]()},
		{OldForceType, ecsstorage.NewColumnStrategy[OldForce]()},
		{MassType, ecsstorage.NewSharedStrategy[Mass]()},
	}
	for _, c := range columns {
		if err := world.RegisterComponent(c.t, c.strategy); err != nil {
			return err
		}
	}
	return nil
}

// Particle is a copy of one entity's physics state.
type Particle struct {
	Entity   ecs.EntityID
	Position mgl64.Vec3
	Velocity mgl64.Vec3
	Force    mgl64.Vec3
	OldForce mgl64.Vec3
	Mass     float64
}

// Snapshot copies the state of every entity with a position, in the position
// column's row order. Columns an entity lacks are left zero.
func Snapshot(world *ecs.World) ([]Particle, error) {
	ids, err := world.EntitiesMatching(PositionType)
	if err != nil {
		return nil, err
	}
	views := make(map[ecs.ComponentType]ecs.ComponentView, 5)
	for _, t := range []ecs.ComponentType{PositionType, VelocityType, ForceType, OldForceType, MassType} {
		view, err := world.ViewComponent(t)
		if err != nil {
			return nil, err
		}
		views[t] = view
	}

	out := make([]Particle, len(ids))
	for i, id := range ids {
		p := Particle{Entity: id}
		if v, ok := views[PositionType].Get(id); ok {
			p.Position = v.(Position).Vec3
		}
		if v, ok := views[VelocityType].Get(id); ok {
			p.Velocity = v.(Velocity).Vec3
		}
		if v, ok := views[ForceType].Get(id); ok {
			p.Force = v.(Force).Vec3
		}
		if v, ok := views[OldForceType].Get(id); ok {
			p.OldForce = v.(OldForce).Vec3
		}
		if v, ok := views[MassType].Get(id); ok {
			p.Mass = float64(v.(Mass))
		}
		out[i] = p
	}
	return out, nil
}

// divScalar divides each component by s. Multiplying by 1/s would round differently.
func divScalar(v mgl64.Vec3, s float64) mgl64.Vec3 {
	return mgl64.Vec3{v[0] / s, v[1] / s, v[2] / s}
}

func negate(v mgl64.Vec3) mgl64.Vec3 {
	return mgl64.Vec3{-v[0], -v[1], -v[2]}
}
