package ecs

import (
	"errors"
	"fmt"
	"sync"
)

type storageProvider struct {
	mu      sync.RWMutex
	stores  map[ComponentType]ComponentStore
	order   []ComponentType
	borrows map[ComponentType]*borrowState
}

// borrowState counts outstanding views of one column.
type borrowState struct {
	readers int
	writer  bool
}

func newStorageProvider() *storageProvider {
	return &storageProvider{
		stores:  make(map[ComponentType]ComponentStore),
		borrows: make(map[ComponentType]*borrowState),
	}
}

func (p *storageProvider) RegisterComponent(t ComponentType, strategy StorageStrategy) error {
	if strategy == nil {
		return ErrNilStorageStrategy
	}

	store := strategy.NewStore(t)
	if store == nil {
		return ErrNilComponentStore
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.stores[t]; exists {
		return fmt.Errorf("%w: %s", ErrComponentAlreadyRegistered, t)
	}

	p.stores[t] = store
	p.order = append(p.order, t)
	p.borrows[t] = &borrowState{}
	return nil
}

func (p *storageProvider) Store(t ComponentType) (ComponentStore, error) {
	p.mu.RLock()
	store, ok := p.stores[t]
	p.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownComponentType, t)
	}
	return store, nil
}

func (p *storageProvider) View(t ComponentType) (ComponentView, error) {
	return p.Store(t)
}

// Types returns registered component types in registration order.
func (p *storageProvider) Types() []ComponentType {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]ComponentType, len(p.order))
	copy(out, p.order)
	return out
}

// Borrow records a read or write view of a column. A column admits one
// writer or any number of readers at a time.
func (p *storageProvider) Borrow(t ComponentType, mode AccessMode) (func(), error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	state, ok := p.borrows[t]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownComponentType, t)
	}

	if mode == AccessModeWrite {
		if state.writer || state.readers > 0 {
			return nil, fmt.Errorf("%w: column %s is borrowed (writer=%t readers=%d)", ErrAccessConflict, t, state.writer, state.readers)
		}
		state.writer = true
	} else {
		if state.writer {
			return nil, fmt.Errorf("%w: column %s is borrowed for write", ErrAccessConflict, t)
		}
		state.readers++
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			if mode == AccessModeWrite {
				state.writer = false
			} else {
				state.readers--
			}
			p.mu.Unlock()
		})
	}, nil
}

// Apply runs every command in order. A failing command does not stop the ones
// queued after it; all failures are joined into the returned error.
func (p *storageProvider) Apply(world *World, commands []Command) error {
	var errs []error
	for _, cmd := range commands {
		if cmd == nil {
			continue
		}
		if err := cmd.Apply(world); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ StorageProvider = (*storageProvider)(nil)
