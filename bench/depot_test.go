package bench

import (
	"testing"

	"github.com/TheBitDrifter/depot"
)

func BenchmarkIterDepotGet(b *testing.B) {
	b.StopTimer()

	velocity := depot.FactoryNewComponent[Velocity]()
	position := depot.FactoryNewComponent[Position]()
	world := depot.Factory.NewWorld()
	defer world.Close()

	world.NewEntities(nPosVel, position.Component, velocity.Component)
	world.NewEntities(nPos, position.Component)

	query := depot.Factory.NewQuery().All(velocity.Component, position.Component)
	cursor := depot.Factory.NewCursor(query, world)

	b.StartTimer()

	for i := 0; i < b.N; i++ {
		for cursor.Next() {
			pos := position.GetFromCursor(cursor)
			vel := velocity.ReadFromCursor(cursor)

			pos.X += vel.X
			pos.Y += vel.Y
		}
	}
}

func BenchmarkIterDepotViews(b *testing.B) {
	b.StopTimer()

	velocity := depot.FactoryNewComponent[Velocity]()
	position := depot.FactoryNewComponent[Position]()
	world := depot.Factory.NewWorld()
	defer world.Close()

	world.NewEntities(nPosVel, position.Component, velocity.Component)
	world.NewEntities(nPos, position.Component)

	query := depot.Factory.NewQuery().All(velocity.Component, position.Component)
	cursor := depot.Factory.NewCursor(query, world)

	b.StartTimer()

	for i := 0; i < b.N; i++ {
		for chunk, span := range cursor.Chunks() {
			pos := position.MutView(chunk)
			vel := velocity.View(chunk)
			for r := span.Start; r < span.End; r++ {
				pos[r].X += vel[r].X
				pos[r].Y += vel[r].Y
			}
		}
	}
}
