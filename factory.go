package depot

// factory implements the factory pattern for depot's moving parts.
type factory struct{}

// Factory is the global factory instance.
var Factory factory

// NewWorld creates an empty world holding the root archetype and a reference
// to the process-wide chunk allocator.
func (f factory) NewWorld() *World {
	return newWorld()
}

// NewQuery creates an empty query builder.
func (f factory) NewQuery() *Query {
	return newQuery()
}

// NewCursor creates a cursor over the query's matches in the given world.
func (f factory) NewCursor(query *Query, world *World) *Cursor {
	return newCursor(query, world)
}

// NewCommandBuffer creates a deferred command buffer bound to the world.
func (f factory) NewCommandBuffer(world *World) *CommandBuffer {
	return newCommandBuffer(world)
}
