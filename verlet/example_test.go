package verlet_test

import (
	"context"
	"fmt"

	ecs "github.com/DangerosoDavo/verletecs"
	"github.com/DangerosoDavo/verletecs/verlet"
)

func ExampleSetup() {
	world := ecs.NewWorld()
	scheduler, err := ecs.NewScheduler(world)
	if err != nil {
		panic(err)
	}
	defer scheduler.Close()

	if _, err := verlet.Setup(world, scheduler, verlet.Options{Variant: verlet.VariantBevy, Particles: 6}); err != nil {
		panic(err)
	}
	fmt.Println(scheduler.Order())

	if err := scheduler.Run(context.Background(), 1, 0); err != nil {
		panic(err)
	}
	particles, _ := verlet.Snapshot(world)
	p := particles[0]
	fmt.Printf("position %.2f %.2f %.2f\n", p.Position[0], p.Position[1], p.Position[2])
	fmt.Printf("velocity %.2f %.2f %.2f\n", p.Velocity[0], p.Velocity[1], p.Velocity[2])
	// Output:
	// [integrate_position harmonic_trap integrate_velocity]
	// position 0.20 0.50 1.00
	// velocity 0.10 0.25 0.50
}
