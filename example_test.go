package depot_test

import (
	"fmt"

	"github.com/TheBitDrifter/depot"
)

// Position is a simple component for 3D coordinates
type Position struct {
	X, Y, Z float32
}

// Velocity is a simple component for 3D movement
type Velocity struct {
	X, Y, Z float32
}

// Frozen is a marker component excluding entities from movement
type Frozen struct{}

// Example shows basic depot usage with entity creation and queries
func Example_basic() {
	// Create a world
	world := depot.Factory.NewWorld()
	defer world.Close()

	// Define components
	position := depot.FactoryNewComponent[Position]()
	velocity := depot.FactoryNewComponent[Velocity]()
	frozen := depot.FactoryNewComponent[Frozen]()

	// Create entities
	world.NewEntities(5, position.Component)
	movers, _ := world.NewEntities(3, position.Component, velocity.Component)

	// Name one entity and give it some motion
	player := movers[0]
	world.SetName(player, "Player")
	position.SetOnEntity(world, player, Position{X: 10, Y: 20})
	velocity.SetOnEntity(world, player, Velocity{X: 1, Y: 2})

	// Freeze one mover; queries below exclude it
	world.AddComponent(movers[2], frozen.Component)

	// Query for unfrozen movers and integrate one step
	query := depot.Factory.NewQuery().
		All(position.Component, velocity.Component).
		None(frozen.Component)
	cursor := depot.Factory.NewCursor(query, world)

	matched := 0
	for cursor.Next() {
		pos := position.GetFromCursor(cursor)
		vel := velocity.ReadFromCursor(cursor)
		pos.X += vel.X
		pos.Y += vel.Y
		matched++
	}

	named, _ := world.EntityByName("Player")
	playerPos := position.ReadFromEntity(world, named)

	fmt.Printf("Matched %d entities\n", matched)
	fmt.Printf("Player at (%.0f, %.0f)\n", playerPos.X, playerPos.Y)
	// Output:
	// Matched 2 entities
	// Player at (11, 22)
}

// Example_deferred shows structural changes scheduled during iteration
func Example_deferred() {
	world := depot.Factory.NewWorld()
	defer world.Close()

	position := depot.FactoryNewComponent[Position]()
	velocity := depot.FactoryNewComponent[Velocity]()

	world.NewEntities(4, position.Component, velocity.Component)

	buffer := depot.Factory.NewCommandBuffer(world)
	query := depot.Factory.NewQuery().All(position.Component, velocity.Component)
	cursor := depot.Factory.NewCursor(query, world)
	for cursor.Next() {
		// Structural changes are illegal mid-iteration; queue them instead.
		buffer.RemoveComponent(cursor.CurrentEntity(), velocity.Component)
	}
	buffer.Commit()

	still := depot.Factory.NewCursor(query, world)
	fmt.Println("movers left:", still.TotalMatched())
	// Output:
	// movers left: 0
}
