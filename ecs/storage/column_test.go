package storage

import (
	"errors"
	"testing"

	ecs "github.com/DangerosoDavo/verletecs"
)

type vec struct{ X, Y, Z float64 }

func TestColumnStoreCRUD(t *testing.T) {
	store := NewColumnStrategy[int]().NewStore(ecs.ComponentType("comp")).(*columnStore[int])

	reg := ecs.NewEntityRegistry()
	id := reg.Create()

	if err := store.Set(id, 42); err != nil {
		t.Fatalf("set: %v", err)
	}
	if !store.Has(id) {
		t.Fatalf("expected Has to be true")
	}
	if got, ok := store.Get(id); !ok || got.(int) != 42 {
		t.Fatalf("unexpected get result: %#v, ok=%v", got, ok)
	}
	if err := store.Set(id, 43); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if store.Len() != 1 || store.Values()[0] != 43 {
		t.Fatalf("overwrite should keep one row, values=%v", store.Values())
	}

	called := false
	store.Iterate(func(e ecs.EntityID, v any) bool {
		called = true
		if e != id || v.(int) != 43 {
			t.Fatalf("unexpected entry: %v=%v", e, v)
		}
		return true
	})
	if !called {
		t.Fatalf("expected iterate to visit entity")
	}

	if !store.Remove(id) {
		t.Fatalf("remove failed")
	}
	if store.Has(id) || store.Len() != 0 {
		t.Fatalf("expected empty store, got %d", store.Len())
	}
	if store.Remove(id) {
		t.Fatalf("second remove should report false")
	}
}

func TestColumnStoreSwapRemoveKeepsIndex(t *testing.T) {
	store := NewColumnStrategy[vec]().NewStore("position").(*columnStore[vec])
	reg := ecs.NewEntityRegistry()
	a, b, c := reg.Create(), reg.Create(), reg.Create()
	store.Set(a, vec{X: 1})
	store.Set(b, vec{X: 2})
	store.Set(c, vec{X: 3})

	store.Remove(a)

	entities := store.Entities()
	if len(entities) != 2 || entities[0] != c || entities[1] != b {
		t.Fatalf("expected last row moved into the hole, got %v", entities)
	}
	row, ok := store.Slot(c)
	if !ok || row != 0 || store.Values()[row].X != 3 {
		t.Fatalf("moved entity slot wrong: row=%d ok=%v", row, ok)
	}
}

func TestColumnStoreRejectsStaleGeneration(t *testing.T) {
	store := NewColumnStrategy[int]().NewStore("comp")
	live := ecs.EntityIDFromParts(4, 2)
	stale := ecs.EntityIDFromParts(4, 1)
	store.Set(live, 7)

	if store.Has(stale) {
		t.Fatalf("stale generation must not match")
	}
	if store.Remove(stale) {
		t.Fatalf("stale remove must not drop the live row")
	}
}

func TestColumnStoreRejectsBadInput(t *testing.T) {
	store := NewColumnStrategy[int]().NewStore(ecs.ComponentType("comp"))
	if err := store.Set(ecs.EntityID{}, 10); err == nil {
		t.Fatalf("expected error for zero entity")
	}
	err := store.Set(ecs.EntityIDFromParts(1, 1), "ten")
	if !errors.Is(err, ecs.ErrComponentTypeMismatch) {
		t.Fatalf("expected ErrComponentTypeMismatch, got %v", err)
	}
}

func BenchmarkColumnStoreSet(b *testing.B) {
	b.ReportAllocs()
	store := NewColumnStrategy[vec]().NewStore("position")
	for i := 0; i < b.N; i++ {
		id := ecs.EntityIDFromParts(uint32(i%4096), 1)
		store.Set(id, vec{X: float64(i)})
	}
}
