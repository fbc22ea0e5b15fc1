package ecs

import "fmt"

type WorldOption func(*World)

// NewWorld constructs a world with default registries and providers.
func NewWorld(opts ...WorldOption) *World {
	w := &World{
		registry:  NewEntityRegistry(),
		storage:   newStorageProvider(),
		resources: newResourceContainer(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// WithEntityRegistry overrides the default registry.
func WithEntityRegistry(registry *EntityRegistry) WorldOption {
	return func(w *World) {
		if registry != nil {
			w.registry = registry
		}
	}
}

// WithStorageProvider overrides the default storage provider.
func WithStorageProvider(provider StorageProvider) WorldOption {
	return func(w *World) {
		if provider != nil {
			w.storage = provider
		}
	}
}

// WithResourceContainer overrides the default resource container.
func WithResourceContainer(container ResourceContainer) WorldOption {
	return func(w *World) {
		if container != nil {
			w.resources = container
		}
	}
}

func (w *World) Registry() *EntityRegistry {
	return w.registry
}

func (w *World) Storage() StorageProvider {
	return w.storage
}

func (w *World) Resources() ResourceContainer {
	return w.resources
}

// Version increments on every structural change. Query caches key on it.
func (w *World) Version() uint64 {
	return w.version.Load()
}

// Locked reports whether a tick is in progress.
func (w *World) Locked() bool {
	return w.locked.Load()
}

// RegisterComponent declares a component type and the strategy that stores it.
func (w *World) RegisterComponent(t ComponentType, strategy StorageStrategy) error {
	if w.Locked() {
		return ErrWorldLocked
	}
	if err := w.storage.RegisterComponent(t, strategy); err != nil {
		return err
	}
	w.version.Add(1)
	return nil
}

// ViewComponent retrieves a component view by type without borrow tracking.
func (w *World) ViewComponent(t ComponentType) (ComponentView, error) {
	return w.storage.View(t)
}

// ColumnView returns a borrowed view of one column. The caller must invoke
// release once finished; until then conflicting borrows fail with ErrAccessConflict.
func (w *World) ColumnView(t ComponentType, mode AccessMode) (ComponentView, func(), error) {
	view, err := w.storage.View(t)
	if err != nil {
		return nil, nil, err
	}
	if mode == AccessModeWrite && !view.Mutable() {
		return nil, nil, fmt.Errorf("%w: column %s is immutable", ErrAccessConflict, t)
	}
	release, err := w.storage.Borrow(t, mode)
	if err != nil {
		return nil, nil, err
	}
	return view, release, nil
}

// Spawn creates an entity holding the supplied components. With no values the
// entity is live in the registry but holds no rows, so no query or
// EntitiesMatching call returns it until components are inserted.
func (w *World) Spawn(values ...ComponentValue) (EntityID, error) {
	if w.Locked() {
		return EntityID{}, ErrWorldLocked
	}
	id := w.registry.Create()
	if err := w.Insert(id, values...); err != nil {
		w.registry.Destroy(id)
		return EntityID{}, err
	}
	return id, nil
}

// Insert adds one row per supplied component to a live entity. Either every
// value is stored or none is.
func (w *World) Insert(id EntityID, values ...ComponentValue) error {
	if w.Locked() {
		return ErrWorldLocked
	}
	if !w.registry.IsAlive(id) {
		return fmt.Errorf("%w: insert into %v", ErrStaleEntity, id)
	}

	stores := make([]ComponentStore, len(values))
	seen := make(map[ComponentType]struct{}, len(values))
	for i, v := range values {
		if _, dup := seen[v.Type]; dup {
			return fmt.Errorf("%w: %s supplied twice for %v", ErrDuplicateComponent, v.Type, id)
		}
		seen[v.Type] = struct{}{}

		store, err := w.storage.Store(v.Type)
		if err != nil {
			return err
		}
		if store.Has(id) {
			return fmt.Errorf("%w: %v already holds %s", ErrDuplicateComponent, id, v.Type)
		}
		stores[i] = store
	}

	for i, v := range values {
		if err := stores[i].Set(id, v.Value); err != nil {
			for j := 0; j < i; j++ {
				stores[j].Remove(id)
			}
			return err
		}
	}
	if len(values) > 0 {
		w.version.Add(1)
	}
	return nil
}

// RemoveComponent retracts one row from an entity.
func (w *World) RemoveComponent(id EntityID, t ComponentType) (bool, error) {
	if w.Locked() {
		return false, ErrWorldLocked
	}
	store, err := w.storage.Store(t)
	if err != nil {
		return false, err
	}
	if !store.Remove(id) {
		return false, nil
	}
	w.version.Add(1)
	return true, nil
}

// Remove retracts every row the entity holds and releases its identifier.
// Removing an unknown or already removed entity is a no-op.
func (w *World) Remove(id EntityID) error {
	if w.Locked() {
		return ErrWorldLocked
	}
	removed := false
	for _, t := range w.storage.Types() {
		store, err := w.storage.Store(t)
		if err != nil {
			return err
		}
		if store.Remove(id) {
			removed = true
		}
	}
	if w.registry.Destroy(id) {
		removed = true
	}
	if removed {
		w.version.Add(1)
	}
	return nil
}

// EntitiesMatching returns the entities holding every listed type, in row
// order of the smallest participating column.
func (w *World) EntitiesMatching(types ...ComponentType) ([]EntityID, error) {
	q, err := NewQuery(w, Access{Reads: types})
	if err != nil {
		return nil, err
	}
	if err := q.Resolve(); err != nil {
		return nil, err
	}
	out := make([]EntityID, q.Len())
	copy(out, q.Entities())
	return out, nil
}

// ApplyCommands executes deferred commands against the world.
func (w *World) ApplyCommands(commands []Command) error {
	return w.storage.Apply(w, commands)
}

// Maintain recycles identifiers freed since the previous maintenance point.
func (w *World) Maintain() int {
	return w.registry.Recycle()
}

func (w *World) lock() error {
	if !w.locked.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: tick already in progress", ErrWorldLocked)
	}
	return nil
}

func (w *World) unlock() {
	w.locked.Store(false)
}
