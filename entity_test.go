package ecs_test

import (
	"testing"

	ecs "github.com/DangerosoDavo/verletecs"
)

func TestEntityRegistryCreateAndDestroy(t *testing.T) {
	reg := ecs.NewEntityRegistry()
	a := reg.Create()
	b := reg.Create()

	if a == b {
		t.Fatalf("expected unique entities, got same: %v", a)
	}
	if a.IsZero() {
		t.Fatalf("first entity must not be the zero id")
	}
	if reg.Count() != 2 {
		t.Fatalf("expected 2 live entities, got %d", reg.Count())
	}

	if !reg.Destroy(a) {
		t.Fatalf("expected destroy to succeed")
	}
	if reg.IsAlive(a) {
		t.Fatalf("entity should be destroyed")
	}
	if reg.Count() != 1 {
		t.Fatalf("expected 1 live entity, got %d", reg.Count())
	}
}

func TestEntityRegistryParksFreedIndices(t *testing.T) {
	reg := ecs.NewEntityRegistry()
	a := reg.Create()
	reg.Create()
	reg.Destroy(a)

	if reg.Parked() != 1 {
		t.Fatalf("expected 1 parked index, got %d", reg.Parked())
	}
	c := reg.Create()
	if c.Index() == a.Index() {
		t.Fatalf("parked index %d reused before Recycle", a.Index())
	}

	if n := reg.Recycle(); n != 1 {
		t.Fatalf("expected 1 recycled index, got %d", n)
	}
	d := reg.Create()
	if d.Index() != a.Index() {
		t.Fatalf("expected recycled index %d, got %d", a.Index(), d.Index())
	}
	if d.Generation() == a.Generation() {
		t.Fatalf("expected generation to change on reuse")
	}
	if reg.IsAlive(a) {
		t.Fatalf("stale handle must stay dead after index reuse")
	}
}

func TestEntityRegistryRejectsStaleId(t *testing.T) {
	reg := ecs.NewEntityRegistry()
	id := reg.Create()
	if !reg.Destroy(id) {
		t.Fatalf("destroy failed")
	}

	if reg.Destroy(id) {
		t.Fatalf("expected destroy of stale id to fail")
	}
	if reg.IsAlive(id) {
		t.Fatalf("stale id should not be alive")
	}
	if reg.Destroy(ecs.EntityID{}) {
		t.Fatalf("zero id cannot be destroyed")
	}
}
