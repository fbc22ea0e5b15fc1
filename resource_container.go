package ecs

import (
	"fmt"
	"sync"
)

type resourceMap struct {
	mu     sync.RWMutex
	values map[string]any
}

func newResourceContainer() *resourceMap {
	return &resourceMap{values: make(map[string]any)}
}

func (r *resourceMap) Get(name string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.values[name]
	return v, ok
}

func (r *resourceMap) Set(name string, value any) {
	r.mu.Lock()
	r.values[name] = value
	r.mu.Unlock()
}

func (r *resourceMap) Delete(name string) {
	r.mu.Lock()
	delete(r.values, name)
	r.mu.Unlock()
}

func (r *resourceMap) Range(fn func(string, any) bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for k, v := range r.values {
		if !fn(k, v) {
			return
		}
	}
}

// ResourceAs fetches a declared resource through the execution context and
// asserts its Go type.
func ResourceAs[T any](exec ExecutionContext, name string) (T, error) {
	var zero T
	raw, err := exec.Resource(name)
	if err != nil {
		return zero, err
	}
	v, ok := raw.(T)
	if !ok {
		return zero, fmt.Errorf("%w: resource %s holds %T, want %T", ErrComponentTypeMismatch, name, raw, zero)
	}
	return v, nil
}

var _ ResourceContainer = (*resourceMap)(nil)
