package depot

import (
	"slices"
)

// archetypeWithAdded resolves the archetype reached by adding comp to src,
// following a cached graph edge when one exists. A miss synthesizes the sorted
// destination signature, interns it (two different edge origins may converge
// on the same signature), and links both edge directions.
func (w *World) archetypeWithAdded(src *Archetype, comp Component) *Archetype {
	kind := comp.Kind()
	if id, ok := src.edgesAdd[kind][comp.ID()]; ok {
		return w.archetypes[id]
	}
	lists := [kindCount][]Component{src.comps[KindGeneric], src.comps[KindUnique]}
	lists[kind] = insertSorted(lists[kind], comp)
	dst := w.internArchetype(lists[KindGeneric], lists[KindUnique])
	src.edgesAdd[kind][comp.ID()] = dst.id
	dst.edgesRemove[kind][comp.ID()] = src.id
	return dst
}

// archetypeWithRemoved is the remove-direction counterpart.
func (w *World) archetypeWithRemoved(src *Archetype, comp Component) *Archetype {
	kind := comp.Kind()
	if id, ok := src.edgesRemove[kind][comp.ID()]; ok {
		return w.archetypes[id]
	}
	lists := [kindCount][]Component{src.comps[KindGeneric], src.comps[KindUnique]}
	lists[kind] = removeSorted(lists[kind], comp)
	dst := w.internArchetype(lists[KindGeneric], lists[KindUnique])
	src.edgesRemove[kind][comp.ID()] = dst.id
	dst.edgesAdd[kind][comp.ID()] = src.id
	return dst
}

// unlinkEdges detaches a dying archetype from its graph neighbors, keeping the
// add/remove maps mutually consistent.
func (w *World) unlinkEdges(a *Archetype) {
	for kind := 0; kind < kindCount; kind++ {
		for id, dstID := range a.edgesAdd[kind] {
			if dst := w.archetypes[dstID]; dst != nil {
				delete(dst.edgesRemove[kind], id)
			}
		}
		for id, srcID := range a.edgesRemove[kind] {
			if src := w.archetypes[srcID]; src != nil {
				delete(src.edgesAdd[kind], id)
			}
		}
		a.edgesAdd[kind] = nil
		a.edgesRemove[kind] = nil
	}
}

func insertSorted(list []Component, comp Component) []Component {
	out := make([]Component, 0, len(list)+1)
	out = append(out, list...)
	pos, _ := slices.BinarySearchFunc(out, comp, func(a, b Component) int {
		return int(int64(a.ID()) - int64(b.ID()))
	})
	return slices.Insert(out, pos, comp)
}

func removeSorted(list []Component, comp Component) []Component {
	out := make([]Component, 0, len(list))
	for _, c := range list {
		if c.ID() != comp.ID() {
			out = append(out, c)
		}
	}
	return out
}
