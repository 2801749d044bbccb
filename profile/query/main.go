// Profiling:
// go build ./profile/query
// go tool pprof -http=":8000" -nodefraction=0.001 ./query cpu.prof

package main

import (
	"os"
	"runtime"
	"runtime/pprof"

	"github.com/TheBitDrifter/depot"
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
	// CPU profiling
	f, _ := os.Create("cpu.prof")
	_ = pprof.StartCPUProfile(f)
	defer pprof.StopCPUProfile()

	rounds := 50
	iters := 10000
	entities := 100000
	run(rounds, iters, entities)

	// Memory profiling
	memFile, _ := os.Create("mem.prof")
	defer memFile.Close()
	runtime.GC()
	_ = pprof.WriteHeapProfile(memFile)
}

func run(rounds, iters, numEntities int) {
	c1 := depot.FactoryNewComponent[comp1]()
	c2 := depot.FactoryNewComponent[comp2]()

	for range rounds {
		w := depot.Factory.NewWorld()
		w.NewEntities(numEntities, c1.Component, c2.Component)

		query := depot.Factory.NewQuery().All(c1.Component, c2.Component)
		for range iters {
			cursor := depot.Factory.NewCursor(query, w)
			for cursor.Next() {
				a := c1.GetFromCursor(cursor)
				b := c2.ReadFromCursor(cursor)
				a.V += b.V
				a.W += b.W
			}
		}
		w.Close()
	}
}
