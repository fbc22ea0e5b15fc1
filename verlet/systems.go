package verlet

import (
	"context"

	ecs "github.com/DangerosoDavo/verletecs"
)

// System names.
const (
	IntegratePositionName = "integrate_position"
	HarmonicTrapName      = "harmonic_trap"
	IntegrateVelocityName = "integrate_velocity"
)

// PhysicsSet labels every system of the particle workload.
const PhysicsSet = "physics"

// integratePosition advances positions by one step and remembers the force
// used, for the velocity update.
type integratePosition struct {
	desc ecs.SystemDescriptor
}

func newIntegratePosition(batchSize int) *integratePosition {
	return &integratePosition{desc: ecs.SystemDescriptor{
		Name:      IntegratePositionName,
		Set:       PhysicsSet,
		Reads:     []ecs.ComponentType{VelocityType, MassType, ForceType},
		Writes:    []ecs.ComponentType{PositionType, OldForceType},
		Resources: []ecs.ResourceAccess{{Name: TimestepResource, Mode: ecs.AccessModeRead}},
		BatchSize: batchSize,
	}}
}

func (s *integratePosition) Descriptor() ecs.SystemDescriptor { return s.desc }

func (s *integratePosition) Run(ctx context.Context, exec ecs.ExecutionContext) ecs.SystemResult {
	ts, err := ecs.ResourceAs[Timestep](exec, TimestepResource)
	if err != nil {
		return ecs.SystemResult{Err: err}
	}
	q := exec.Query()
	vel, err := ecs.Read[Velocity](q, VelocityType)
	if err != nil {
		return ecs.SystemResult{Err: err}
	}
	mass, err := ecs.Read[Mass](q, MassType)
	if err != nil {
		return ecs.SystemResult{Err: err}
	}
	force, err := ecs.Read[Force](q, ForceType)
	if err != nil {
		return ecs.SystemResult{Err: err}
	}
	pos, err := ecs.Write[Position](q, PositionType)
	if err != nil {
		return ecs.SystemResult{Err: err}
	}
	oldForce, err := ecs.Write[OldForce](q, OldForceType)
	if err != nil {
		return ecs.SystemResult{Err: err}
	}

	dt := ts.DT
	err = exec.ParallelFor(ctx, func(i int) {
		f := force.Get(i)
		p := pos.At(i)
		p.Vec3 = StepPosition(p.Vec3, vel.Get(i).Vec3, f.Vec3, float64(mass.Get(i)), dt)
		oldForce.At(i).Force = f
	})
	return ecs.SystemResult{Err: err}
}

// harmonicTrap evaluates the force law at every particle position.
type harmonicTrap struct {
	desc ecs.SystemDescriptor
	law  ForceLaw
}

func newHarmonicTrap(batchSize int, law ForceLaw) *harmonicTrap {
	return &harmonicTrap{
		law: law,
		desc: ecs.SystemDescriptor{
			Name:      HarmonicTrapName,
			Set:       PhysicsSet,
			Reads:     []ecs.ComponentType{PositionType},
			Writes:    []ecs.ComponentType{ForceType},
			Tags:      []string{law.Name()},
			BatchSize: batchSize,
		},
	}
}

func (s *harmonicTrap) Descriptor() ecs.SystemDescriptor { return s.desc }

func (s *harmonicTrap) Run(ctx context.Context, exec ecs.ExecutionContext) ecs.SystemResult {
	q := exec.Query()
	pos, err := ecs.Read[Position](q, PositionType)
	if err != nil {
		return ecs.SystemResult{Err: err}
	}
	force, err := ecs.Write[Force](q, ForceType)
	if err != nil {
		return ecs.SystemResult{Err: err}
	}

	err = exec.ParallelBatches(ctx, func(b ecs.Batch) error {
		eval, release, err := s.law.Evaluator()
		if err != nil {
			return err
		}
		defer release()
		for i := b.Start; i < b.End; i++ {
			f, err := eval(pos.Get(i).Vec3)
			if err != nil {
				return err
			}
			force.At(i).Vec3 = f
		}
		return nil
	})
	return ecs.SystemResult{Err: err}
}

// integrateVelocity averages the old and new force to update velocities.
type integrateVelocity struct {
	desc ecs.SystemDescriptor
}

func newIntegrateVelocity(batchSize int) *integrateVelocity {
	return &integrateVelocity{desc: ecs.SystemDescriptor{
		Name:      IntegrateVelocityName,
		Set:       PhysicsSet,
		Reads:     []ecs.ComponentType{ForceType, OldForceType, MassType},
		Writes:    []ecs.ComponentType{VelocityType},
		Resources: []ecs.ResourceAccess{{Name: TimestepResource, Mode: ecs.AccessModeRead}},
		BatchSize: batchSize,
	}}
}

func (s *integrateVelocity) Descriptor() ecs.SystemDescriptor { return s.desc }

func (s *integrateVelocity) Run(ctx context.Context, exec ecs.ExecutionContext) ecs.SystemResult {
	ts, err := ecs.ResourceAs[Timestep](exec, TimestepResource)
	if err != nil {
		return ecs.SystemResult{Err: err}
	}
	q := exec.Query()
	force, err := ecs.Read[Force](q, ForceType)
	if err != nil {
		return ecs.SystemResult{Err: err}
	}
	oldForce, err := ecs.Read[OldForce](q, OldForceType)
	if err != nil {
		return ecs.SystemResult{Err: err}
	}
	mass, err := ecs.Read[Mass](q, MassType)
	if err != nil {
		return ecs.SystemResult{Err: err}
	}
	vel, err := ecs.Write[Velocity](q, VelocityType)
	if err != nil {
		return ecs.SystemResult{Err: err}
	}

	dt := ts.DT
	err = exec.ParallelFor(ctx, func(i int) {
		v := vel.At(i)
		v.Vec3 = StepVelocity(v.Vec3, force.Get(i).Vec3, oldForce.Get(i).Vec3, float64(mass.Get(i)), dt)
	})
	return ecs.SystemResult{Err: err}
}

// integrateSimple moves positions along constant velocities.
type integrateSimple struct {
	desc ecs.SystemDescriptor
}

func newIntegrateSimple(batchSize int) *integrateSimple {
	return &integrateSimple{desc: ecs.SystemDescriptor{
		Name:      IntegratePositionName,
		Set:       PhysicsSet,
		Reads:     []ecs.ComponentType{VelocityType},
		Writes:    []ecs.ComponentType{PositionType},
		Resources: []ecs.ResourceAccess{{Name: TimestepResource, Mode: ecs.AccessModeRead}},
		BatchSize: batchSize,
	}}
}

func (s *integrateSimple) Descriptor() ecs.SystemDescriptor { return s.desc }

func (s *integrateSimple) Run(ctx context.Context, exec ecs.ExecutionContext) ecs.SystemResult {
	ts, err := ecs.ResourceAs[Timestep](exec, TimestepResource)
	if err != nil {
		return ecs.SystemResult{Err: err}
	}
	q := exec.Query()
	vel, err := ecs.Read[Velocity](q, VelocityType)
	if err != nil {
		return ecs.SystemResult{Err: err}
	}
	pos, err := ecs.Write[Position](q, PositionType)
	if err != nil {
		return ecs.SystemResult{Err: err}
	}
	dt := ts.DT
	err = exec.ParallelFor(ctx, func(i int) {
		p := pos.At(i)
		p.Vec3 = StepDrift(p.Vec3, vel.Get(i).Vec3, dt)
	})
	return ecs.SystemResult{Err: err}
}
