/*
Package depot provides an archetype-based Entity-Component-System (ECS) storage
and query engine for games and simulations.

Depot stores entities as rows inside fixed-size chunks (8 or 16 KiB blocks),
grouped by archetype so that entities sharing the same component signature sit
contiguously in memory. Queries compile to cached plans that match archetypes
incrementally, skip unchanged chunks via per-column change versions, and drive
per-row callbacks through cursors.

Core Concepts:

  - Entity: a stable generational handle identifying one row of data.
  - Component: a typed piece of data attached per entity row (Generic) or
    once per chunk (Unique).
  - Archetype: the set of chunks sharing one sorted component signature.
  - Chunk: a fixed-size block holding up to capacity rows of one archetype.
  - Query: a declarative All/Any/None filter compiled into a reusable plan.

Basic Usage:

	// Create a world
	world := depot.Factory.NewWorld()
	defer world.Close()

	// Define components
	position := depot.FactoryNewComponent[Position]()
	velocity := depot.FactoryNewComponent[Velocity]()

	// Create entities
	entities, _ := world.NewEntities(100, position.Component, velocity.Component)
	_ = entities

	// Query entities and process them
	query := depot.Factory.NewQuery()
	query.All(position.Component, velocity.Component)
	cursor := depot.Factory.NewCursor(query, world)

	for cursor.Next() {
		pos := position.GetFromCursor(cursor)
		vel := velocity.ReadFromCursor(cursor)
		pos.X += vel.X
		pos.Y += vel.Y
	}

Structural mutations performed while cursors are active must go through a
CommandBuffer (or the EnqueueX world methods), which replay once iteration
finishes.

Depot is the storage layer of the Bappa Framework but also works standalone.
*/
package depot
