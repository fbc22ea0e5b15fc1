package verlet

import "github.com/go-gl/mathgl/mgl64"

// ForceFunc maps a particle position to the force acting on it.
type ForceFunc func(pos mgl64.Vec3) (mgl64.Vec3, error)

// ForceLaw hands out force evaluators. Evaluator is called once per batch; the
// returned release func is called when the batch finishes. Evaluators obtained
// concurrently must be safe to use from different goroutines.
type ForceLaw interface {
	Name() string
	Evaluator() (ForceFunc, func(), error)
}

// HarmonicLaw is the restoring force -position.
type HarmonicLaw struct{}

func (HarmonicLaw) Name() string { return "harmonic" }

func (HarmonicLaw) Evaluator() (ForceFunc, func(), error) {
	return harmonicForce, func() {}, nil
}

func harmonicForce(pos mgl64.Vec3) (mgl64.Vec3, error) {
	return negate(pos), nil
}
