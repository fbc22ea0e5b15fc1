package verlet

import "github.com/go-gl/mathgl/mgl64"

// Per-particle update rules shared by every backend. They are evaluated
// component by component in a fixed operation order so that backends agree
// bit for bit.

// StepPosition returns pos + vel*dt + force/mass/2*dt*dt.
func StepPosition(pos, vel, force mgl64.Vec3, mass, dt float64) mgl64.Vec3 {
	return pos.Add(vel.Mul(dt)).Add(divScalar(divScalar(force, mass), 2).Mul(dt).Mul(dt))
}

// StepVelocity returns vel + (force+oldForce)/mass/2*dt.
func StepVelocity(vel, force, oldForce mgl64.Vec3, mass, dt float64) mgl64.Vec3 {
	return vel.Add(divScalar(divScalar(force.Add(oldForce), mass), 2).Mul(dt))
}

// StepDrift returns pos + vel*dt.
func StepDrift(pos, vel mgl64.Vec3, dt float64) mgl64.Vec3 {
	return pos.Add(vel.Mul(dt))
}
