package ecs

import "errors"

var (
	// ErrComponentAlreadyRegistered indicates an attempt to register the same component twice.
	ErrComponentAlreadyRegistered = errors.New("ecs: component already registered")
	// ErrUnknownComponentType signals insertion or lookup on a component type that was never registered.
	ErrUnknownComponentType = errors.New("ecs: unknown component type")
	// ErrStaleEntity indicates an identifier whose entity was destroyed or never existed.
	ErrStaleEntity = errors.New("ecs: stale entity")
	// ErrDuplicateComponent indicates an entity already holds a row for the supplied component type.
	ErrDuplicateComponent = errors.New("ecs: duplicate component")
	// ErrComponentTypeMismatch is returned when a value does not match the column's Go type.
	ErrComponentTypeMismatch = errors.New("ecs: component value type mismatch")
	// ErrNilStorageStrategy is returned when storage registration receives a nil strategy.
	ErrNilStorageStrategy = errors.New("ecs: nil storage strategy")
	// ErrNilComponentStore is returned when a strategy produces a nil store.
	ErrNilComponentStore = errors.New("ecs: strategy returned nil store")
	// ErrWorldLocked rejects structural changes while a tick is running.
	ErrWorldLocked = errors.New("ecs: structural change during tick")
	// ErrResourceNotFound indicates a named resource has not been inserted.
	ErrResourceNotFound = errors.New("ecs: resource not found")
	// ErrWorkerPoolClosed indicates jobs cannot be submitted because the pool closed.
	ErrWorkerPoolClosed = errors.New("ecs: worker pool closed")
	// ErrInvalidBatchSize is returned for a dispatch batch size below one.
	ErrInvalidBatchSize = errors.New("ecs: invalid batch size")
	// ErrBatchPanicked wraps a panic recovered from a batch body.
	ErrBatchPanicked = errors.New("ecs: batch body panicked")
	// ErrAccessConflict indicates incompatible read/write access to the same component or resource.
	ErrAccessConflict = errors.New("ecs: access conflict")
	// ErrUndeclaredAccess indicates a system touched a component or resource it did not declare.
	ErrUndeclaredAccess = errors.New("ecs: undeclared access")
	// ErrDuplicateWriteAccess indicates a system declares the same write twice.
	ErrDuplicateWriteAccess = errors.New("ecs: duplicate write access")
	// ErrCyclicDependency indicates the system dependency graph has a cycle.
	ErrCyclicDependency = errors.New("ecs: cyclic dependency")
	// ErrUnknownDependency indicates a system orders itself against a label nobody registered.
	ErrUnknownDependency = errors.New("ecs: unknown dependency label")
	// ErrDuplicateSystem indicates two systems share a name.
	ErrDuplicateSystem = errors.New("ecs: duplicate system name")
)
