package ecs

import (
	"context"
	"fmt"
)

// Access names the component columns a query touches. A type listed in both
// Reads and Writes is treated as a write.
type Access struct {
	Reads   []ComponentType
	Writes  []ComponentType
	Without []ComponentType
}

// Query resolves an access declaration into the set of entities holding every
// declared column and, per column, the slot of each matched entity.
//
// Resolution is cached until the world's structural version changes.
type Query struct {
	world    *World
	types    []ComponentType
	modes    map[ComponentType]AccessMode
	without  []ComponentType
	resolved bool
	version  uint64
	entities []EntityID
	slots    map[ComponentType][]int32
}

// NewQuery validates the declaration against the registered component types.
func NewQuery(world *World, access Access) (*Query, error) {
	if world == nil {
		return nil, fmt.Errorf("ecs: query requires a world")
	}
	q := &Query{
		world: world,
		modes: make(map[ComponentType]AccessMode, len(access.Reads)+len(access.Writes)),
		slots: make(map[ComponentType][]int32, len(access.Reads)+len(access.Writes)),
	}

	for _, t := range access.Writes {
		if mode, ok := q.modes[t]; ok && mode == AccessModeWrite {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateWriteAccess, t)
		}
		if err := q.declare(t, AccessModeWrite); err != nil {
			return nil, err
		}
	}
	for _, t := range access.Reads {
		if _, ok := q.modes[t]; ok {
			continue
		}
		if err := q.declare(t, AccessModeRead); err != nil {
			return nil, err
		}
	}
	for _, t := range access.Without {
		if _, ok := q.modes[t]; ok {
			return nil, fmt.Errorf("%w: %s is both required and excluded", ErrAccessConflict, t)
		}
		if _, err := world.storage.View(t); err != nil {
			return nil, err
		}
		q.without = append(q.without, t)
	}
	return q, nil
}

func (q *Query) declare(t ComponentType, mode AccessMode) error {
	view, err := q.world.storage.View(t)
	if err != nil {
		return err
	}
	if mode == AccessModeWrite && !view.Mutable() {
		return fmt.Errorf("%w: column %s is immutable", ErrAccessConflict, t)
	}
	if _, ok := q.modes[t]; !ok {
		q.types = append(q.types, t)
	}
	q.modes[t] = mode
	return nil
}

// Types returns the declared component types, writes first.
func (q *Query) Types() []ComponentType {
	return q.types
}

// Mode reports the declared access to a type.
func (q *Query) Mode(t ComponentType) (AccessMode, bool) {
	mode, ok := q.modes[t]
	return mode, ok
}

// Resolve materialises the matched entity list. It is a no-op when the world
// has not changed structurally since the previous call.
func (q *Query) Resolve() error {
	version := q.world.Version()
	if q.resolved && version == q.version {
		return nil
	}

	q.entities = q.entities[:0]
	for _, t := range q.types {
		q.slots[t] = q.slots[t][:0]
	}
	if len(q.types) == 0 {
		q.resolved, q.version = true, version
		return nil
	}

	views := make([]ComponentView, len(q.types))
	driver := 0
	for i, t := range q.types {
		view, err := q.world.storage.View(t)
		if err != nil {
			return err
		}
		views[i] = view
		if view.Len() < views[driver].Len() {
			driver = i
		}
	}
	excluded := make([]ComponentView, len(q.without))
	for i, t := range q.without {
		view, err := q.world.storage.View(t)
		if err != nil {
			return err
		}
		excluded[i] = view
	}

	row := make([]int32, len(views))
candidates:
	for _, id := range views[driver].Entities() {
		for _, ex := range excluded {
			if ex.Has(id) {
				continue candidates
			}
		}
		for i, view := range views {
			slot, ok := view.Slot(id)
			if !ok {
				continue candidates
			}
			row[i] = int32(slot)
		}
		q.entities = append(q.entities, id)
		for i, t := range q.types {
			q.slots[t] = append(q.slots[t], row[i])
		}
	}

	q.resolved, q.version = true, version
	return nil
}

// Len returns the number of matched entities from the last resolution.
func (q *Query) Len() int {
	return len(q.entities)
}

// Entities returns the matched entities in row order. The slice is reused by
// the next resolution.
func (q *Query) Entities() []EntityID {
	return q.entities
}

// Acquire borrows every declared column. The returned release ends all borrows.
func (q *Query) Acquire() (func(), error) {
	releases := make([]func(), 0, len(q.types))
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
	for _, t := range q.types {
		release, err := q.world.storage.Borrow(t, q.modes[t])
		if err != nil {
			releaseAll()
			return nil, err
		}
		releases = append(releases, release)
	}
	return releaseAll, nil
}

// ParallelFor resolves the query and runs body once per matched row across the dispatcher.
func (q *Query) ParallelFor(ctx context.Context, d *Dispatcher, batchSize int, body func(row int)) error {
	if err := q.Resolve(); err != nil {
		return err
	}
	return d.Run(ctx, q.Len(), batchSize, body)
}

// View is a typed window onto one column, aligned with its query's entity list:
// row i of every view of the same query refers to the same entity.
type View[T any] struct {
	typ    ComponentType
	mode   AccessMode
	values []T
	slots  []int32
}

// Read returns a read-only view of a declared column.
func Read[T any](q *Query, t ComponentType) (View[T], error) {
	return viewOf[T](q, t, AccessModeRead)
}

// Write returns a mutable view of a column declared for write.
func Write[T any](q *Query, t ComponentType) (View[T], error) {
	return viewOf[T](q, t, AccessModeWrite)
}

func viewOf[T any](q *Query, t ComponentType, mode AccessMode) (View[T], error) {
	declared, ok := q.modes[t]
	if !ok {
		return View[T]{}, fmt.Errorf("%w: %s not declared by query", ErrUndeclaredAccess, t)
	}
	if mode == AccessModeWrite && declared != AccessModeWrite {
		return View[T]{}, fmt.Errorf("%w: %s declared read-only", ErrAccessConflict, t)
	}
	if err := q.Resolve(); err != nil {
		return View[T]{}, err
	}
	view, err := q.world.storage.View(t)
	if err != nil {
		return View[T]{}, err
	}
	column, ok := view.(TypedColumn[T])
	if !ok {
		var zero T
		return View[T]{}, fmt.Errorf("%w: column %s does not hold %T", ErrComponentTypeMismatch, t, zero)
	}
	return View[T]{typ: t, mode: mode, values: column.Values(), slots: q.slots[t]}, nil
}

func (v View[T]) Len() int { return len(v.slots) }

func (v View[T]) Type() ComponentType { return v.typ }

func (v View[T]) Mode() AccessMode { return v.mode }

// Get returns a copy of the value at row i.
func (v View[T]) Get(i int) T {
	return v.values[v.slots[i]]
}

// At returns a pointer to the value at row i. Calling At on a read view panics.
func (v View[T]) At(i int) *T {
	if v.mode != AccessModeWrite {
		panic(fmt.Sprintf("ecs: write through read view of %s", v.typ))
	}
	return &v.values[v.slots[i]]
}
