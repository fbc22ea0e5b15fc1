package storage

import (
	"fmt"
	"sync"

	ecs "github.com/DangerosoDavo/verletecs"
)

// columnStrategy stores components of one Go type in a dense slice.
//
// Rows are packed: removing an entity moves the last row into the hole, so row
// order is insertion order until the first removal. A sparse index maps entity
// indices to rows for O(1) lookup.
type columnStrategy[T any] struct{}

// NewColumnStrategy constructs a dense column strategy for values of type T.
func NewColumnStrategy[T any]() ecs.StorageStrategy {
	return columnStrategy[T]{}
}

func (columnStrategy[T]) Name() string {
	return "column"
}

func (columnStrategy[T]) NewStore(t ecs.ComponentType) ecs.ComponentStore {
	return &columnStore[T]{typ: t}
}

type columnStore[T any] struct {
	mu       sync.RWMutex
	typ      ecs.ComponentType
	values   []T
	entities []ecs.EntityID
	sparse   []int32 // entity index -> row+1, zero when absent
}

func (s *columnStore[T]) ComponentType() ecs.ComponentType {
	return s.typ
}

func (s *columnStore[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entities)
}

func (s *columnStore[T]) Has(id ecs.EntityID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.rowLocked(id)
	return ok
}

func (s *columnStore[T]) Get(id ecs.EntityID) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.rowLocked(id)
	if !ok {
		return nil, false
	}
	return s.values[row], true
}

func (s *columnStore[T]) Iterate(fn func(ecs.EntityID, any) bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for row, id := range s.entities {
		if !fn(id, s.values[row]) {
			return
		}
	}
}

func (s *columnStore[T]) Entities() []ecs.EntityID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entities
}

// Slot returns the entity's row, which indexes Values directly.
func (s *columnStore[T]) Slot(id ecs.EntityID) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rowLocked(id)
}

func (s *columnStore[T]) Mutable() bool {
	return true
}

// Values exposes the dense backing slice. Writes through it are visible to
// every view of the column.
func (s *columnStore[T]) Values() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values
}

func (s *columnStore[T]) Set(id ecs.EntityID, value any) error {
	if id.IsZero() {
		return fmt.Errorf("column: cannot set zero entity")
	}
	v, ok := value.(T)
	if !ok {
		return fmt.Errorf("%w: column %s holds %T, got %T", ecs.ErrComponentTypeMismatch, s.typ, *new(T), value)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if row, exists := s.rowLocked(id); exists {
		s.values[row] = v
		return nil
	}
	idx := int(id.Index())
	if idx >= len(s.sparse) {
		grown := make([]int32, max(idx+1, 2*len(s.sparse)))
		copy(grown, s.sparse)
		s.sparse = grown
	}
	s.values = append(s.values, v)
	s.entities = append(s.entities, id)
	s.sparse[idx] = int32(len(s.entities))
	return nil
}

func (s *columnStore[T]) Remove(id ecs.EntityID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rowLocked(id)
	if !ok {
		return false
	}
	last := len(s.entities) - 1
	if row != last {
		moved := s.entities[last]
		s.entities[row] = moved
		s.values[row] = s.values[last]
		s.sparse[moved.Index()] = int32(row + 1)
	}
	var zero T
	s.values[last] = zero
	s.values = s.values[:last]
	s.entities = s.entities[:last]
	s.sparse[id.Index()] = 0
	return true
}

func (s *columnStore[T]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.values)
	s.values = s.values[:0]
	s.entities = s.entities[:0]
	clear(s.sparse)
}

func (s *columnStore[T]) rowLocked(id ecs.EntityID) (int, bool) {
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

var (
	_ ecs.ComponentStore       = (*columnStore[int])(nil)
	_ ecs.TypedColumn[float64] = (*columnStore[float64])(nil)
)
