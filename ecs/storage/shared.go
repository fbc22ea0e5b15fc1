package storage

import (
	"fmt"
	"sync"

	ecs "github.com/DangerosoDavo/verletecs"
)

// sharedStrategy creates stores where entities holding equal values reference
// one stored instance. Mass in a uniform particle cloud is the typical case.
//
// Shared components are immutable from the perspective of individual entities:
// the column reports Mutable() == false, so write access through a query fails.
// To change an entity's value, remove it and insert a new one.
type sharedStrategy[T comparable] struct{}

// NewSharedStrategy constructs a shared storage strategy for values of type T.
func NewSharedStrategy[T comparable]() ecs.StorageStrategy {
	return sharedStrategy[T]{}
}

func (sharedStrategy[T]) Name() string {
	return "shared"
}

func (sharedStrategy[T]) NewStore(t ecs.ComponentType) ecs.ComponentStore {
	return &sharedStore[T]{typ: t, index: make(map[T]int32)}
}

type sharedStore[T comparable] struct {
	mu       sync.RWMutex
	typ      ecs.ComponentType
	values   []T           // unique values; a slot is stable while referenced
	refs     []int         // entities referencing each slot
	index    map[T]int32   // value -> slot
	free     []int32       // released slots
	entities []ecs.EntityID
	rows     []int32 // row -> slot
	sparse   []int32 // entity index -> row+1
}

func (s *sharedStore[T]) ComponentType() ecs.ComponentType {
	return s.typ
}

func (s *sharedStore[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entities)
}

func (s *sharedStore[T]) Has(id ecs.EntityID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.rowLocked(id)
	return ok
}

func (s *sharedStore[T]) Get(id ecs.EntityID) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.rowLocked(id)
	if !ok {
		return nil, false
	}
	return s.values[s.rows[row]], true
}

func (s *sharedStore[T]) Iterate(fn func(ecs.EntityID, any) bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for row, id := range s.entities {
		if !fn(id, s.values[s.rows[row]]) {
			return
		}
	}
}

func (s *sharedStore[T]) Entities() []ecs.EntityID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entities
}

// Slot returns the index of the shared value the entity references.
func (s *sharedStore[T]) Slot(id ecs.EntityID) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.rowLocked(id)
	if !ok {
		return 0, false
	}
	return int(s.rows[row]), true
}

func (s *sharedStore[T]) Mutable() bool {
	return false
}

// Values exposes the deduplicated value table. Released slots hold the zero value.
func (s *sharedStore[T]) Values() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values
}

func (s *sharedStore[T]) Set(id ecs.EntityID, value any) error {
	if id.IsZero() {
		return fmt.Errorf("shared: cannot set zero entity")
	}
	v, ok := value.(T)
	if !ok {
		return fmt.Errorf("%w: shared column %s holds %T, got %T", ecs.ErrComponentTypeMismatch, s.typ, *new(T), value)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if row, exists := s.rowLocked(id); exists {
		old := s.rows[row]
		s.rows[row] = s.acquireLocked(v)
		s.releaseLocked(old)
		return nil
	}
	idx := int(id.Index())
	if idx >= len(s.sparse) {
		grown := make([]int32, max(idx+1, 2*len(s.sparse)))
		copy(grown, s.sparse)
		s.sparse = grown
	}
	s.entities = append(s.entities, id)
	s.rows = append(s.rows, s.acquireLocked(v))
	s.sparse[idx] = int32(len(s.entities))
	return nil
}

func (s *sharedStore[T]) Remove(id ecs.EntityID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rowLocked(id)
	if !ok {
		return false
	}
	slot := s.rows[row]
	last := len(s.entities) - 1
	if row != last {
		moved := s.entities[last]
		s.entities[row] = moved
		s.rows[row] = s.rows[last]
		s.sparse[moved.Index()] = int32(row + 1)
	}
	s.entities = s.entities[:last]
	s.rows = s.rows[:last]
	s.sparse[id.Index()] = 0
	s.releaseLocked(slot)
	return true
}

func (s *sharedStore[T]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = s.values[:0]
	s.refs = s.refs[:0]
	s.free = s.free[:0]
	s.entities = s.entities[:0]
	s.rows = s.rows[:0]
	clear(s.index)
	clear(s.sparse)
}

func (s *sharedStore[T]) acquireLocked(v T) int32 {
	if slot, ok := s.index[v]; ok {
		s.refs[slot]++
		return slot
	}
	var slot int32
	if n := len(s.free); n > 0 {
		slot = s.free[n-1]
		s.free = s.free[:n-1]
		s.values[slot] = v
		s.refs[slot] = 1
	} else {
		slot = int32(len(s.values))
		s.values = append(s.values, v)
		s.refs = append(s.refs, 1)
	}
	s.index[v] = slot
	return slot
}

func (s *sharedStore[T]) releaseLocked(slot int32) {
	s.refs[slot]--
	if s.refs[slot] > 0 {
		return
	}
	delete(s.index, s.values[slot])
	var zero T
	s.values[slot] = zero
	s.free = append(s.free, slot)
}

func (s *sharedStore[T]) rowLocked(id ecs.EntityID) (int, bool) {
	idx := int(id.Index())
	if idx >= len(s.sparse) {
		return 0, false
	}
	row := int(s.sparse[idx]) - 1
	if row < 0 || s.entities[row] != id {
		return 0, false
	}
	return row, true
}

// Stats returns statistics about the shared store for debugging and optimization.
func (s *sharedStore[T]) Stats() SharedStorageStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	unique := len(s.index)
	return SharedStorageStats{
		EntityCount:      len(s.entities),
		UniqueValueCount: unique,
		SharingRatio:     float64(len(s.entities)) / float64(max(unique, 1)),
	}
}

// SharedStorageStats provides metrics about shared component storage efficiency.
type SharedStorageStats struct {
	EntityCount      int     // number of entities with this component
	UniqueValueCount int     // number of unique component values
	SharingRatio     float64 // average entities per unique value (higher = more sharing)
}

// SharedStats reports sharing statistics for a store built by NewSharedStrategy.
func SharedStats(store ecs.ComponentView) (SharedStorageStats, bool) {
	type statser interface{ Stats() SharedStorageStats }
	st, ok := store.(statser)
	if !ok {
		return SharedStorageStats{}, false
	}
	return st.Stats(), true
}

var (
	_ ecs.ComponentStore   = (*sharedStore[int])(nil)
	_ ecs.TypedColumn[int] = (*sharedStore[int])(nil)
)
