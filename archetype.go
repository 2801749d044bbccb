package depot

import (
	"fmt"
	"slices"
	"unsafe"

	"github.com/TheBitDrifter/bark"
	"github.com/TheBitDrifter/mask"
)

// ArchetypeID indexes the world's archetype arena. IDs are never reused; a
// signature recreated after teardown gets a fresh id.
type ArchetypeID uint32

// columnLayout binds one component column to its block offsets: a single
// offset for AoS, one per sub-array for SoA.
type columnLayout struct {
	comp    Component
	desc    *componentDescriptor
	offsets []uintptr
}

func (l columnLayout) memberStride(member int) uintptr {
	if l.comp.Arity() == 0 {
		return uintptr(l.comp.Size())
	}
	return l.desc.memberSizes[member]
}

type archetypeProperties struct {
	capacity  uint16
	dataBytes uintptr
	class     sizeClass
}

// Archetype groups the chunks sharing one component signature. It owns the
// chunk list, the per-column layout, and the graph edges to its neighbors.
type Archetype struct {
	id    ArchetypeID
	world *World

	comps  [kindCount][]Component
	ids    [kindCount][MaxComponentsPerKind]ComponentID
	layout [kindCount][]columnLayout

	lookupHash uint64
	matcher    [kindCount]uint64
	sig        [kindCount]mask.Mask

	props  archetypeProperties
	chunks []*Chunk

	edgesAdd    [kindCount]map[ComponentID]ArchetypeID
	edgesRemove [kindCount]map[ComponentID]ArchetypeID

	lifespan uint8
	dying    bool
	dead     bool
}

// ID returns the archetype's stable id.
func (a *Archetype) ID() ArchetypeID { return a.id }

// Components returns the sorted component list for a kind.
func (a *Archetype) Components(kind ComponentKind) []Component { return a.comps[kind] }

// Chunks returns the live chunk list.
func (a *Archetype) Chunks() []*Chunk { return a.chunks }

// Capacity returns the solved per-chunk row capacity.
func (a *Archetype) Capacity() int { return int(a.props.capacity) }

// EntityCount sums rows across chunks.
func (a *Archetype) EntityCount() int {
	total := 0
	for _, ch := range a.chunks {
		total += int(ch.count)
	}
	return total
}

func (a *Archetype) isRoot() bool {
	return len(a.comps[KindGeneric]) == 0 && len(a.comps[KindUnique]) == 0
}

// newArchetype computes the layout and hashes for a sorted signature. The
// component lists must already be sorted ascending and duplicate-free.
func newArchetype(world *World, id ArchetypeID, generic, unique []Component) *Archetype {
	if len(generic) > MaxComponentsPerKind || len(unique) > MaxComponentsPerKind {
		panic(bark.AddTrace(ArchetypeFullError{Count: max(len(generic), len(unique))}))
	}
	a := &Archetype{
		id:    id,
		world: world,
		comps: [kindCount][]Component{slices.Clone(generic), slices.Clone(unique)},
	}
	for kind := 0; kind < kindCount; kind++ {
		for i := range a.ids[kind] {
			a.ids[kind][i] = invalidComponentID
		}
		for i, c := range a.comps[kind] {
			a.ids[kind][i] = c.ID()
			a.sig[kind].Mark(uint32(c.ID()))
		}
		a.matcher[kind] = matcherHashOf(a.comps[kind])
		a.edgesAdd[kind] = make(map[ComponentID]ArchetypeID)
		a.edgesRemove[kind] = make(map[ComponentID]ArchetypeID)
	}
	a.lookupHash = combineHashes(hashComponentList(a.comps[KindGeneric]), hashComponentList(a.comps[KindUnique]))
	a.computeLayout()
	return a
}

// computeLayout solves the row capacity against the large size class, drops to
// the small class when usage lands at or below the midpoint, and records the
// final column offsets.
func (a *Archetype) computeLayout() {
	capacity, used := a.solveCapacity(classLarge.payloadBytes())
	class := classLarge
	midpoint := (classSmall.blockBytes() + classLarge.blockBytes()) / 2
	if used <= midpoint {
		class = classSmall
		capacity, used = a.solveCapacity(classSmall.payloadBytes())
	}
	a.props = archetypeProperties{capacity: capacity, dataBytes: used, class: class}

	cursor := uintptr(unsafe.Sizeof(Entity{})) * uintptr(capacity)
	for kind := ComponentKind(0); kind < kindCount; kind++ {
		rows := int(capacity)
		if kind == KindUnique {
			rows = 1
		}
		a.layout[kind] = make([]columnLayout, 0, len(a.comps[kind]))
		for _, c := range a.comps[kind] {
			desc := globalCatalog.descriptor(c.ID())
			end, offsets := columnFootprint(desc, cursor, rows)
			cursor = end
			a.layout[kind] = append(a.layout[kind], columnLayout{comp: c, desc: desc, offsets: offsets})
		}
	}
}

// solveCapacity finds the largest row count whose footprint fits the payload,
// clamped to the configured max rows per chunk.
func (a *Archetype) solveCapacity(payload uintptr) (uint16, uintptr) {
	perRow := uintptr(unsafe.Sizeof(Entity{}))
	for _, c := range a.comps[KindGeneric] {
		perRow += uintptr(c.Size())
	}
	n := int(payload / perRow)
	if n > int(Config.MaxRowsPerChunk) {
		n = int(Config.MaxRowsPerChunk)
	}
	for n >= 1 {
		used := a.footprint(n)
		if used <= payload {
			return uint16(n), used
		}
		n--
	}
	panic(bark.AddTrace(fmt.Errorf("archetype signature does not fit a single row in the large size class")))
}

func (a *Archetype) footprint(rows int) uintptr {
	cursor := uintptr(unsafe.Sizeof(Entity{})) * uintptr(rows)
	for _, c := range a.comps[KindGeneric] {
		cursor, _ = columnFootprint(globalCatalog.descriptor(c.ID()), cursor, rows)
	}
	for _, c := range a.comps[KindUnique] {
		cursor, _ = columnFootprint(globalCatalog.descriptor(c.ID()), cursor, 1)
	}
	return cursor
}

// findOrCreateFreeChunk returns the first partially-filled chunk, an empty one
// only when no partially-filled chunk exists, or a fresh chunk.
func (a *Archetype) findOrCreateFreeChunk() *Chunk {
	var empty *Chunk
	for _, ch := range a.chunks {
		if ch.full() {
			continue
		}
		if ch.count > 0 {
			return ch
		}
		if empty == nil {
			empty = ch
		}
	}
	if empty != nil {
		return empty
	}
	return a.newChunk()
}

// freeChunkMatching returns a non-full chunk whose unique column values equal
// ref's, creating one seeded from ref when none exists. With no unique
// components it degrades to findOrCreateFreeChunk.
func (a *Archetype) freeChunkMatching(ref *Chunk) *Chunk {
	if len(a.comps[KindUnique]) == 0 || ref == nil {
		return a.findOrCreateFreeChunk()
	}
	shared := sharedUniqueLayout(a, ref.arch)
	for _, ch := range a.chunks {
		if ch.full() {
			continue
		}
		if uniqueValuesEqual(ch, ref, shared) {
			return ch
		}
	}
	ch := a.newChunk()
	copyUniqueValues(ch, ref, shared)
	return ch
}

func (a *Archetype) newChunk() *Chunk {
	ch := newChunk(a, len(a.chunks))
	a.chunks = append(a.chunks, ch)
	if a.dying {
		a.dying = false
		a.lifespan = 0
	}
	return ch
}

// removeChunk swap-removes a drained chunk and releases its block.
func (a *Archetype) removeChunk(ch *Chunk) {
	last := len(a.chunks) - 1
	a.chunks[ch.index] = a.chunks[last]
	a.chunks[ch.index].index = ch.index
	a.chunks = a.chunks[:last]
	ch.release()
	if len(a.chunks) == 0 && !a.isRoot() && !a.dying {
		a.dying = true
		a.lifespan = Config.ArchetypeLifespan
	}
}

// tick advances chunk and archetype countdowns, reporting true when the
// archetype itself expired.
func (a *Archetype) tick() bool {
	for i := len(a.chunks) - 1; i >= 0; i-- {
		if a.chunks[i].tick() {
			a.removeChunk(a.chunks[i])
		}
	}
	if !a.dying {
		return false
	}
	a.lifespan--
	return a.lifespan == 0
}

// defragment compacts rows toward the front of the chunk list. Two cursors
// walk the list: front seeks a fill target, back a donor. Rows move only
// between chunks whose unique values compare equal. The budget caps moved rows
// per call; the walk stops cleanly when it runs out.
func (a *Archetype) defragment(budget *int) {
	front, back := 0, len(a.chunks)-1
	sameUnique := a.layout[KindUnique]
	for front < back && *budget > 0 {
		fc := a.chunks[front]
		if fc.full() {
			front++
			continue
		}
		bc := a.chunks[back]
		if bc.count == 0 || bc.full() {
			back--
			continue
		}
		if !uniqueValuesEqual(fc, bc, sameUnique) {
			back--
			continue
		}
		for bc.count > 0 && !fc.full() && *budget > 0 {
			a.moveTailRow(bc, fc)
			*budget = *budget - 1
		}
	}
}

// moveTailRow relocates the last row of src into dst within the same
// archetype, enabling it first so both partitions stay consistent, and
// restoring its disabled state at the destination.
func (a *Archetype) moveTailRow(src, dst *Chunk) {
	row := src.count - 1
	wasDisabled := false
	if src.firstEnabled == src.count {
		// Tail row is disabled; surface it into the enabled region first.
		wasDisabled = true
		src.enableRow(row, true)
	}
	e := src.EntityAt(int(row))
	newRow, err := dst.addRow(e)
	if err != nil {
		panic(bark.AddTrace(err))
	}
	copySharedRow(dst, newRow, src, int(row))
	src.removeRow(row)
	rec := a.world.directory.resolve(e)
	rec.chunk = dst
	rec.row = uint32(newRow)
	rec.disabled = false
	if wasDisabled {
		dst.enableRow(uint16(newRow), false)
	}
}

// sharedUniqueLayout pairs dst's unique layout with the matching columns of
// src's archetype, for value comparison and seeding across archetypes.
func sharedUniqueLayout(dst, src *Archetype) []columnLayout {
	if dst == src {
		return dst.layout[KindUnique]
	}
	shared := make([]columnLayout, 0, len(dst.layout[KindUnique]))
	for _, lay := range dst.layout[KindUnique] {
		for _, other := range src.layout[KindUnique] {
			if other.comp == lay.comp {
				shared = append(shared, lay)
				break
			}
		}
	}
	return shared
}

func uniqueValuesEqual(x, ref *Chunk, layout []columnLayout) bool {
	for _, lay := range layout {
		refCol := ref.ColumnIndex(KindUnique, lay.comp.ID())
		if refCol < 0 {
			continue
		}
		refLay := ref.arch.layout[KindUnique][refCol]
		pa := x.columnPtr(KindUnique, lay, 0, 0)
		pb := ref.columnPtr(KindUnique, refLay, 0, 0)
		if th := lay.desc.thunks; th != nil && th.equals != nil {
			if !th.equals(pa, pb) {
				return false
			}
			continue
		}
		size := uintptr(lay.comp.Size())
		sa := unsafe.Slice((*byte)(pa), size)
		sb := unsafe.Slice((*byte)(pb), size)
		if string(sa) != string(sb) {
			return false
		}
	}
	return true
}

func copyUniqueValues(dst, src *Chunk, layout []columnLayout) {
	for _, lay := range layout {
		srcCol := src.ColumnIndex(KindUnique, lay.comp.ID())
		if srcCol < 0 {
			continue
		}
		srcLay := src.arch.layout[KindUnique][srcCol]
		pd := dst.columnPtr(KindUnique, lay, 0, 0)
		ps := src.columnPtr(KindUnique, srcLay, 0, 0)
		if th := lay.desc.thunks; th != nil && th.copyTo != nil {
			th.copyTo(pd, ps)
			continue
		}
		size := uintptr(lay.comp.Size())
		copy(unsafe.Slice((*byte)(pd), size), unsafe.Slice((*byte)(ps), size))
	}
}

// copySharedRow copies every generic column both archetypes share from
// src/srcRow into dst/dstRow, member by member, honoring move thunks.
func copySharedRow(dst *Chunk, dstRow int, src *Chunk, srcRow int) {
	for _, lay := range dst.arch.layout[KindGeneric] {
		srcCol := src.ColumnIndex(KindGeneric, lay.comp.ID())
		if srcCol < 0 {
			continue
		}
		srcLay := src.arch.layout[KindGeneric][srcCol]
		if th := lay.desc.thunks; th != nil && th.moveTo != nil {
			th.moveTo(dst.columnPtr(KindGeneric, lay, 0, dstRow), src.columnPtr(KindGeneric, srcLay, 0, srcRow))
			continue
		}
		for m := range lay.offsets {
			stride := lay.memberStride(m)
			d := unsafe.Slice((*byte)(dst.columnPtr(KindGeneric, lay, m, dstRow)), stride)
			s := unsafe.Slice((*byte)(src.columnPtr(KindGeneric, srcLay, m, srcRow)), stride)
			copy(d, s)
		}
	}
}
