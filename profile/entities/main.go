// Profiling:
// go build ./profile/entities
// go tool pprof -http=":8000" -nodefraction=0.001 ./entities mem.pprof

package main

import (
	"github.com/TheBitDrifter/depot"
	"github.com/pkg/profile"
)

type comp1 struct {
	V int64
	W int64
}

type comp2 struct {
	V int64
	W int64
}

func main() {
	rounds := 50
	iters := 10000
	entities := 1000
	p := profile.Start(profile.MemProfileAllocs, profile.ProfilePath("."), profile.NoShutdownHook)
	run(rounds, iters, entities)
	p.Stop()
}

func run(rounds, iters, numEntities int) {
	c1 := depot.FactoryNewComponent[comp1]()
	c2 := depot.FactoryNewComponent[comp2]()

	for range rounds {
		w := depot.Factory.NewWorld()
		query := depot.Factory.NewQuery().All(c1.Component, c2.Component)

		for range iters {
			created, _ := w.NewEntities(numEntities, c1.Component, c2.Component)
			cursor := depot.Factory.NewCursor(query, w)
			for cursor.Next() {
				a := c1.GetFromCursor(cursor)
				b := c2.ReadFromCursor(cursor)
				a.V += b.V
				a.W += b.W
			}
			for _, e := range created {
				w.DestroyEntity(e)
			}
			w.Update()
		}
		w.Close()
	}
}
