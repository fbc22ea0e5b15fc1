package ecs_test

import (
	"errors"
	"testing"

	ecs "github.com/DangerosoDavo/verletecs"
	ecsstorage "github.com/DangerosoDavo/verletecs/ecs/storage"
)

func TestQueryAlignsViews(t *testing.T) {
	world := newTestWorld(t)
	for i := 0; i < 5; i++ {
		values := []ecs.ComponentValue{ecs.Value("position", float64(i))}
		if i%2 == 0 {
			values = append(values, ecs.Value("velocity", float64(10*i)))
		}
		if _, err := world.Spawn(values...); err != nil {
			t.Fatalf("spawn: %v", err)
		}
	}

	q, err := ecs.NewQuery(world, ecs.Access{Reads: []ecs.ComponentType{"velocity"}, Writes: []ecs.ComponentType{"position"}})
	if err != nil {
		t.Fatalf("new query: %v", err)
	}
	pos, err := ecs.Write[float64](q, "position")
	if err != nil {
		t.Fatalf("write view: %v", err)
	}
	vel, err := ecs.Read[float64](q, "velocity")
	if err != nil {
		t.Fatalf("read view: %v", err)
	}
	if q.Len() != 3 || pos.Len() != 3 || vel.Len() != 3 {
		t.Fatalf("expected 3 aligned rows, got q=%d pos=%d vel=%d", q.Len(), pos.Len(), vel.Len())
	}
	for i := 0; i < q.Len(); i++ {
		if vel.Get(i) != 10*pos.Get(i) {
			t.Fatalf("row %d misaligned: pos=%v vel=%v", i, pos.Get(i), vel.Get(i))
		}
	}
}

func TestQueryWithoutFilter(t *testing.T) {
	world := newTestWorld(t)
	still, _ := world.Spawn(ecs.Value("position", 1.0))
	world.Spawn(ecs.Value("position", 2.0), ecs.Value("velocity", 1.0))

	q, err := ecs.NewQuery(world, ecs.Access{Reads: []ecs.ComponentType{"position"}, Without: []ecs.ComponentType{"velocity"}})
	if err != nil {
		t.Fatalf("new query: %v", err)
	}
	if err := q.Resolve(); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if q.Len() != 1 || q.Entities()[0] != still {
		t.Fatalf("expected only %v, got %v", still, q.Entities())
	}

	_, err = ecs.NewQuery(world, ecs.Access{Reads: []ecs.ComponentType{"position"}, Without: []ecs.ComponentType{"position"}})
	if !errors.Is(err, ecs.ErrAccessConflict) {
		t.Fatalf("expected ErrAccessConflict, got %v", err)
	}
}

func TestQueryCachesUntilStructuralChange(t *testing.T) {
	world := newTestWorld(t)
	world.Spawn(ecs.Value("position", 1.0))

	q, _ := ecs.NewQuery(world, ecs.Access{Reads: []ecs.ComponentType{"position"}})
	if err := q.Resolve(); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if q.Len() != 1 {
		t.Fatalf("expected 1 row, got %d", q.Len())
	}
	world.Spawn(ecs.Value("position", 2.0))
	if err := q.Resolve(); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if q.Len() != 2 {
		t.Fatalf("expected re-resolution after spawn, got %d", q.Len())
	}
}

func TestQueryAccessChecks(t *testing.T) {
	world := newTestWorld(t)
	world.Spawn(ecs.Value("position", 1.0), ecs.Value("mass", 1.0))

	q, err := ecs.NewQuery(world, ecs.Access{Reads: []ecs.ComponentType{"position", "mass"}})
	if err != nil {
		t.Fatalf("new query: %v", err)
	}
	if _, err := ecs.Read[float64](q, "velocity"); !errors.Is(err, ecs.ErrUndeclaredAccess) {
		t.Fatalf("expected ErrUndeclaredAccess, got %v", err)
	}
	if _, err := ecs.Write[float64](q, "position"); !errors.Is(err, ecs.ErrAccessConflict) {
		t.Fatalf("expected ErrAccessConflict for write on read declaration, got %v", err)
	}
	if _, err := ecs.Read[int](q, "position"); !errors.Is(err, ecs.ErrComponentTypeMismatch) {
		t.Fatalf("expected ErrComponentTypeMismatch, got %v", err)
	}
	mass, err := ecs.Read[float64](q, "mass")
	if err != nil || mass.Get(0) != 1.0 {
		t.Fatalf("shared column read: v=%v err=%v", mass, err)
	}

	if _, err := ecs.NewQuery(world, ecs.Access{Writes: []ecs.ComponentType{"mass"}}); !errors.Is(err, ecs.ErrAccessConflict) {
		t.Fatalf("expected ErrAccessConflict for write on shared column, got %v", err)
	}
	if _, err := ecs.NewQuery(world, ecs.Access{Writes: []ecs.ComponentType{"position", "position"}}); !errors.Is(err, ecs.ErrDuplicateWriteAccess) {
		t.Fatalf("expected ErrDuplicateWriteAccess, got %v", err)
	}
	if _, err := ecs.NewQuery(world, ecs.Access{Reads: []ecs.ComponentType{"ghost"}}); !errors.Is(err, ecs.ErrUnknownComponentType) {
		t.Fatalf("expected ErrUnknownComponentType, got %v", err)
	}
}

func TestViewAtPanicsOnReadView(t *testing.T) {
	world := newTestWorld(t)
	world.Spawn(ecs.Value("position", 1.0))
	q, _ := ecs.NewQuery(world, ecs.Access{Reads: []ecs.ComponentType{"position"}})
	view, err := ecs.Read[float64](q, "position")
	if err != nil {
		t.Fatalf("read view: %v", err)
	}

	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic writing through a read view")
		}
	}()
	*view.At(0) = 2
}

func TestQueryAcquireConflicts(t *testing.T) {
	world := newTestWorld(t)
	writer, _ := ecs.NewQuery(world, ecs.Access{Writes: []ecs.ComponentType{"position"}})
	reader, _ := ecs.NewQuery(world, ecs.Access{Reads: []ecs.ComponentType{"velocity", "position"}})

	release, err := writer.Acquire()
	if err != nil {
		t.Fatalf("acquire writer: %v", err)
	}
	if _, err := reader.Acquire(); !errors.Is(err, ecs.ErrAccessConflict) {
		t.Fatalf("expected ErrAccessConflict, got %v", err)
	}
	// the reader's velocity borrow must have been rolled back
	if _, releaseVel, err := world.ColumnView("velocity", ecs.AccessModeWrite); err != nil {
		t.Fatalf("velocity should be free: %v", err)
	} else {
		releaseVel()
	}
	release()
	releaseReader, err := reader.Acquire()
	if err != nil {
		t.Fatalf("acquire reader after release: %v", err)
	}
	releaseReader()
}

func BenchmarkQueryResolve(b *testing.B) {
	b.ReportAllocs()
	world := ecs.NewWorld()
	for _, comp := range []ecs.ComponentType{"position", "velocity"} {
		if err := world.RegisterComponent(comp, ecsstorage.NewColumnStrategy[float64]()); err != nil {
			b.Fatalf("register %s: %v", comp, err)
		}
	}
	for i := 0; i < 10000; i++ {
		world.Spawn(ecs.Value("position", float64(i)), ecs.Value("velocity", 1.0))
	}
	q, _ := ecs.NewQuery(world, ecs.Access{Reads: []ecs.ComponentType{"velocity"}, Writes: []ecs.ComponentType{"position"}})
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		world.Spawn()
		if err := q.Resolve(); err != nil {
			b.Fatalf("resolve: %v", err)
		}
	}
}
