// Package arkbench runs the verlet workload on github.com/mlange-42/ark so the
// two engines can be timed and cross-checked against each other.
package arkbench

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/mlange-42/ark/ecs"

	"github.com/DangerosoDavo/verletecs/verlet"
)

// Sim is one ark world populated from a verlet scenario. Systems run
// sequentially in the variant's order.
type Sim struct {
	world    *ecs.World
	variant  verlet.Variant
	law      verlet.ForceLaw
	timestep ecs.Resource[verlet.Timestep]
	count    int

	integrate *ecs.Filter5[verlet.Velocity, verlet.Mass, verlet.Force, verlet.Position, verlet.OldForce]
	trap      *ecs.Filter2[verlet.Force, verlet.Position]
	velocity  *ecs.Filter4[verlet.Velocity, verlet.Force, verlet.OldForce, verlet.Mass]
	drift     *ecs.Filter2[verlet.Position, verlet.Velocity]
}

// New builds a world for opts. Batch size and worker settings do not apply.
func New(opts verlet.Options) (*Sim, error) {
	opts, err := opts.Resolve()
	if err != nil {
		return nil, err
	}
	w := ecs.NewWorld()
	s := &Sim{
		world:   &w,
		variant: opts.Variant,
		law:     opts.ForceLaw,
		count:   opts.Scenario.Count(),
	}
	ts := verlet.Timestep{DT: opts.DT}
	ecs.AddResource(s.world, &ts)
	s.timestep = ecs.NewResource[verlet.Timestep](s.world)

	if opts.Variant == verlet.VariantSimple {
		mapper := ecs.NewMap2[verlet.Position, verlet.Velocity](s.world)
		for _, g := range opts.Scenario.Groups {
			pos, vel, _ := g.Initial()
			for i := 0; i < g.Count; i++ {
				mapper.NewEntity(&verlet.Position{Vec3: pos}, &verlet.Velocity{Vec3: vel})
			}
		}
		s.drift = ecs.NewFilter2[verlet.Position, verlet.Velocity](s.world)
		return s, nil
	}

	mapper := ecs.NewMap5[verlet.Position, verlet.Velocity, verlet.Force, verlet.OldForce, verlet.Mass](s.world)
	for _, g := range opts.Scenario.Groups {
		pos, vel, force := g.Initial()
		mass := verlet.Mass(g.Mass)
		for i := 0; i < g.Count; i++ {
			mapper.NewEntity(
				&verlet.Position{Vec3: pos},
				&verlet.Velocity{Vec3: vel},
				&verlet.Force{Vec3: force},
				&verlet.OldForce{},
				&mass,
			)
		}
	}
	s.integrate = ecs.NewFilter5[verlet.Velocity, verlet.Mass, verlet.Force, verlet.Position, verlet.OldForce](s.world)
	s.trap = ecs.NewFilter2[verlet.Force, verlet.Position](s.world)
	s.velocity = ecs.NewFilter4[verlet.Velocity, verlet.Force, verlet.OldForce, verlet.Mass](s.world)
	return s, nil
}

// Len returns the number of particles.
func (s *Sim) Len() int { return s.count }

// Step advances the world by one tick.
func (s *Sim) Step() error {
	switch s.variant {
	case verlet.VariantSimple:
		s.stepDrift()
		return nil
	case verlet.VariantTrapFirst:
		if err := s.stepTrap(); err != nil {
			return err
		}
		s.stepPosition()
	default:
		s.stepPosition()
		if err := s.stepTrap(); err != nil {
			return err
		}
	}
	s.stepVelocity()
	return nil
}

// Run calls Step steps times.
func (s *Sim) Run(steps int) error {
	for i := 0; i < steps; i++ {
		if err := s.Step(); err != nil {
			return fmt.Errorf("ark step %d: %w", i, err)
		}
	}
	return nil
}

func (s *Sim) stepPosition() {
	dt := s.timestep.Get().DT
	query := s.integrate.Query()
	for query.Next() {
		vel, mass, force, pos, oldForce := query.Get()
		pos.Vec3 = verlet.StepPosition(pos.Vec3, vel.Vec3, force.Vec3, float64(*mass), dt)
		oldForce.Force = *force
	}
}

func (s *Sim) stepTrap() error {
	eval, release, err := s.law.Evaluator()
	if err != nil {
		return err
	}
	defer release()
	query := s.trap.Query()
	for query.Next() {
		force, pos := query.Get()
		f, err := eval(pos.Vec3)
		if err != nil {
			query.Close()
			return err
		}
		force.Vec3 = f
	}
	return nil
}

func (s *Sim) stepVelocity() {
	dt := s.timestep.Get().DT
	query := s.velocity.Query()
	for query.Next() {
		vel, force, oldForce, mass := query.Get()
		vel.Vec3 = verlet.StepVelocity(vel.Vec3, force.Vec3, oldForce.Vec3, float64(*mass), dt)
	}
}

func (s *Sim) stepDrift() {
	dt := s.timestep.Get().DT
	query := s.drift.Query()
	for query.Next() {
		pos, vel := query.Get()
		pos.Vec3 = verlet.StepDrift(pos.Vec3, vel.Vec3, dt)
	}
}

// Positions returns every particle position in iteration order, which for a
// single archetype is spawn order.
func (s *Sim) Positions() []mgl64.Vec3 {
	out := make([]mgl64.Vec3, 0, s.count)
	query := ecs.NewFilter1[verlet.Position](s.world).Query()
	for query.Next() {
		out = append(out, query.Get().Vec3)
	}
	return out
}
