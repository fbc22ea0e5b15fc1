package ecs

import "fmt"

// NewSpawnCommand enqueues creation of an entity holding the given components.
// If target is non-nil it receives the allocated ID when the command applies.
func NewSpawnCommand(target *EntityID, values ...ComponentValue) Command {
	return spawnCommand{target: target, values: values}
}

// NewCreateEntityCommand enqueues creation of an entity with no components.
// See World.Spawn for how such an entity is treated.
func NewCreateEntityCommand(target *EntityID) Command {
	return spawnCommand{target: target}
}

// NewDestroyEntityCommand enqueues removal of an entity and all of its rows.
func NewDestroyEntityCommand(id EntityID) Command {
	return destroyEntityCommand{entity: id}
}

// NewAddComponentCommand enqueues a component insertion.
func NewAddComponentCommand(id EntityID, component ComponentType, value any) Command {
	return addComponentCommand{entity: id, value: Value(component, value)}
}

// NewRemoveComponentCommand enqueues a component removal.
func NewRemoveComponentCommand(id EntityID, component ComponentType) Command {
	return removeComponentCommand{entity: id, component: component}
}

type spawnCommand struct {
	target *EntityID
	values []ComponentValue
}

type destroyEntityCommand struct {
	entity EntityID
}

type addComponentCommand struct {
	entity EntityID
	value  ComponentValue
}

type removeComponentCommand struct {
	entity    EntityID
	component ComponentType
}

func (c spawnCommand) Apply(world *World) error {
	id, err := world.Spawn(c.values...)
	if err != nil {
		return err
	}
	if c.target != nil {
		*c.target = id
	}
	return nil
}

// Apply is a no-op for an entity that is already gone, so several systems may
// despawn the same entity in one tick.
func (c destroyEntityCommand) Apply(world *World) error {
	return world.Remove(c.entity)
}

func (c addComponentCommand) Apply(world *World) error {
	if c.entity.IsZero() {
		return fmt.Errorf("ecs: add component to zero entity")
	}
	return world.Insert(c.entity, c.value)
}

func (c removeComponentCommand) Apply(world *World) error {
	if c.entity.IsZero() {
		return fmt.Errorf("ecs: remove component from zero entity")
	}
	_, err := world.RemoveComponent(c.entity, c.component)
	return err
}

var (
	_ Command = spawnCommand{}
	_ Command = destroyEntityCommand{}
	_ Command = addComponentCommand{}
	_ Command = removeComponentCommand{}
)
