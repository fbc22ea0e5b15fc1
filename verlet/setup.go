package verlet

import (
	"fmt"

	ecs "github.com/DangerosoDavo/verletecs"
)

// Variant selects how the three physics systems are ordered.
type Variant string

const (
	// VariantBevy chains the systems with After edges.
	VariantBevy Variant = "bevy"
	// VariantSpecs chains the same systems with Before edges.
	VariantSpecs Variant = "specs"
	// VariantLegion declares no edges and relies on registration order.
	VariantLegion Variant = "legion"
	// VariantTrapFirst evaluates the force before moving the particles.
	VariantTrapFirst Variant = "trap-first"
	// VariantSimple integrates positions only.
	VariantSimple Variant = "simple"
)

// Variants lists every supported variant.
func Variants() []Variant {
	return []Variant{VariantBevy, VariantSpecs, VariantLegion, VariantTrapFirst, VariantSimple}
}

// ParseVariant maps a name to a Variant. The empty string selects bevy.
func ParseVariant(name string) (Variant, error) {
	if name == "" {
		return VariantBevy, nil
	}
	for _, v := range Variants() {
		if string(v) == name {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownVariant, name)
}

// Options configures Setup.
type Options struct {
	Variant Variant
	// Particles sizes the default scenario when Scenario is nil.
	Particles int
	Scenario  *Scenario
	// DT overrides the scenario timestep when positive.
	DT float64
	// BatchSize defaults to a sixth of the particle count.
	BatchSize int
	// ForceLaw defaults to HarmonicLaw.
	ForceLaw ForceLaw
}

// Resolve validates o and fills in every default.
func (o Options) Resolve() (Options, error) {
	variant, err := ParseVariant(string(o.Variant))
	if err != nil {
		return o, err
	}
	o.Variant = variant
	if o.Scenario == nil {
		if o.Particles < 0 {
			return o, fmt.Errorf("%w: negative particle count %d", ErrInvalidScenario, o.Particles)
		}
		if o.Variant == VariantSimple {
			o.Scenario = SimpleScenario(o.Particles)
		} else {
			o.Scenario = DefaultScenario(o.Particles)
		}
	}
	if err := o.Scenario.Validate(); err != nil {
		return o, err
	}
	if o.DT <= 0 {
		o.DT = o.Scenario.Timestep
	}
	if o.DT <= 0 {
		o.DT = 1.0
	}
	if o.BatchSize < 0 {
		return o, fmt.Errorf("%w: %d", ecs.ErrInvalidBatchSize, o.BatchSize)
	}
	if o.BatchSize == 0 {
		o.BatchSize = max(o.Scenario.Count()/6, 1)
	}
	if o.ForceLaw == nil {
		o.ForceLaw = HarmonicLaw{}
	}
	return o, nil
}

// Systems returns the variant's systems in registration order.
func Systems(opts Options) ([]ecs.System, error) {
	opts, err := opts.Resolve()
	if err != nil {
		return nil, err
	}
	return systemsFor(opts), nil
}

func systemsFor(opts Options) []ecs.System {
	if opts.Variant == VariantSimple {
		return []ecs.System{newIntegrateSimple(opts.BatchSize)}
	}

	pos := newIntegratePosition(opts.BatchSize)
	trap := newHarmonicTrap(opts.BatchSize, opts.ForceLaw)
	vel := newIntegrateVelocity(opts.BatchSize)

	switch opts.Variant {
	case VariantSpecs:
		pos.desc.Before = []string{HarmonicTrapName}
		trap.desc.Before = []string{IntegrateVelocityName}
	case VariantLegion:
	case VariantTrapFirst:
		pos.desc.After = []string{HarmonicTrapName}
		vel.desc.After = []string{IntegratePositionName}
		return []ecs.System{trap, pos, vel}
	default:
		trap.desc.After = []string{IntegratePositionName}
		vel.desc.After = []string{HarmonicTrapName}
	}
	return []ecs.System{pos, trap, vel}
}

// Setup registers the particle columns and the timestep resource on world,
// spawns the scenario and adds the variant's systems to scheduler. It returns
// the spawned entities in scenario order.
func Setup(world *ecs.World, scheduler ecs.Scheduler, opts Options) ([]ecs.EntityID, error) {
	opts, err := opts.Resolve()
	if err != nil {
		return nil, err
	}
	if err := RegisterComponents(world); err != nil {
		return nil, err
	}
	world.Resources().Set(TimestepResource, Timestep{DT: opts.DT})

	ids, err := spawnScenario(world, opts.Scenario, opts.Variant == VariantSimple)
	if err != nil {
		return nil, err
	}
	for _, sys := range systemsFor(opts) {
		if err := scheduler.AddSystem(sys); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

func spawnScenario(world *ecs.World, s *Scenario, kinematic bool) ([]ecs.EntityID, error) {
	ids := make([]ecs.EntityID, 0, s.Count())
	for gi, g := range s.Groups {
		pos, vel, force := g.Initial()
		values := []ecs.ComponentValue{
			ecs.Value(PositionType, Position{pos}),
			ecs.Value(VelocityType, Velocity{vel}),
		}
		if !kinematic {
			values = append(values,
				ecs.Value(ForceType, Force{force}),
				ecs.Value(OldForceType, OldForce{}),
				ecs.Value(MassType, Mass(g.Mass)),
			)
		}
		for i := 0; i < g.Count; i++ {
			id, err := world.Spawn(values...)
			if err != nil {
				return nil, fmt.Errorf("spawn group %d particle %d: %w", gi, i, err)
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}
