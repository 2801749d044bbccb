package depot

import (
	"fmt"
	"unsafe"

	"github.com/TheBitDrifter/bark"
)

const invalidComponentID = ^ComponentID(0)

// Chunk is one fixed-size allocator block holding up to capacity rows of a
// single archetype. The block stores the entity column at offset zero followed
// by the component columns at their computed offsets; bookkeeping lives on the
// struct. Rows are partitioned: disabled rows occupy [0, firstEnabled), enabled
// rows occupy [firstEnabled, count).
type Chunk struct {
	arch  *Archetype
	block []byte

	index        int
	count        uint16
	firstEnabled uint16

	lifespan  uint8
	dying     bool
	dead      bool
	lockDepth uint16

	// versions holds one change counter per column, per kind. Mutating views
	// bump them; structural changes stamp them all.
	versions [kindCount][]uint32
}

func newChunk(arch *Archetype, index int) *Chunk {
	block := arch.world.allocator.alloc(arch.props.dataBytes)
	clear(block[:arch.props.dataBytes])
	ch := &Chunk{
		arch:  arch,
		block: block,
		index: index,
	}
	for kind := 0; kind < kindCount; kind++ {
		ch.versions[kind] = make([]uint32, len(arch.layout[kind]))
		for col := range ch.versions[kind] {
			ch.versions[kind][col] = arch.world.version
		}
	}
	// Unique columns hold exactly one instance, constructed with the chunk.
	for _, lay := range arch.layout[KindUnique] {
		if th := lay.desc.thunks; th != nil && th.construct != nil {
			th.construct(ch.columnPtr(KindUnique, lay, 0, 0))
		}
	}
	return ch
}

// release destructs remaining rows and the unique instances, then returns the
// block. Only the archetype calls this.
func (ch *Chunk) release() {
	for row := int(ch.count) - 1; row >= 0; row-- {
		ch.destructRow(uint16(row))
	}
	for _, lay := range ch.arch.layout[KindUnique] {
		if th := lay.desc.thunks; th != nil && th.destroy != nil {
			th.destroy(ch.columnPtr(KindUnique, lay, 0, 0))
		}
	}
	ch.dead = true
	ch.arch.world.allocator.free(ch.block)
	ch.block = nil
}

// Count returns the number of occupied rows.
func (ch *Chunk) Count() int { return int(ch.count) }

// Capacity returns the row capacity computed for the archetype.
func (ch *Chunk) Capacity() int { return int(ch.arch.props.capacity) }

// EnabledCount returns how many rows are enabled.
func (ch *Chunk) EnabledCount() int { return int(ch.count - ch.firstEnabled) }

// FirstEnabled returns the index of the first enabled row.
func (ch *Chunk) FirstEnabled() int { return int(ch.firstEnabled) }

// Archetype returns the owning archetype.
func (ch *Chunk) Archetype() *Archetype { return ch.arch }

func (ch *Chunk) full() bool { return ch.count == ch.arch.props.capacity }

// entities returns the entity column, sliced to capacity.
func (ch *Chunk) entities() []Entity {
	return unsafe.Slice((*Entity)(unsafe.Pointer(&ch.block[0])), int(ch.arch.props.capacity))
}

// EntityAt returns the handle stored at a row.
func (ch *Chunk) EntityAt(row int) Entity {
	return ch.entities()[row]
}

// Entities returns the occupied prefix of the entity column. The slice is
// read-only; writes through it corrupt the directory.
func (ch *Chunk) Entities() []Entity {
	return ch.entities()[:ch.count]
}

// SwapRows exchanges two occupied rows, keeping directory records and the
// enabled partition consistent.
func (ch *Chunk) SwapRows(a, b int) {
	if a < 0 || b < 0 || a >= int(ch.count) || b >= int(ch.count) {
		panic(bark.AddTrace(fmt.Errorf("row swap %d,%d outside occupied rows %d", a, b, ch.count)))
	}
	ch.swapRows(uint16(a), uint16(b))
}

// Has reports whether the archetype carries the component id under kind.
func (ch *Chunk) Has(kind ComponentKind, id ComponentID) bool {
	return ch.ColumnIndex(kind, id) >= 0
}

// ColumnIndex locates a component id in the padded id array via a bounded
// linear scan, returning -1 when absent.
func (ch *Chunk) ColumnIndex(kind ComponentKind, id ComponentID) int {
	ids := &ch.arch.ids[kind]
	for i := 0; i < MaxComponentsPerKind; i++ {
		if ids[i] == id {
			return i
		}
		if ids[i] == invalidComponentID {
			break
		}
	}
	return -1
}

// Changed reports whether a column was written after since. The comparison is
// wrap-aware; version 0 is reserved for "never observed" and always reports
// changed.
func (ch *Chunk) Changed(kind ComponentKind, column int, since uint32) bool {
	if since == 0 {
		return true
	}
	return int32(ch.versions[kind][column]-since) > 0
}

// bumpColumn advances the world change counter and stamps the column with it,
// so a later query pass observes the write as newer than its recorded version.
func (ch *Chunk) bumpColumn(kind ComponentKind, column int) {
	ch.versions[kind][column] = ch.arch.world.bumpVersion()
}

func (ch *Chunk) stampAllVersions() {
	v := ch.arch.world.bumpVersion()
	for kind := 0; kind < kindCount; kind++ {
		for col := range ch.versions[kind] {
			ch.versions[kind][col] = v
		}
	}
}

// columnPtr resolves the address of one element: lay names the column, member
// selects the SoA sub-array (0 for AoS), row the element.
func (ch *Chunk) columnPtr(kind ComponentKind, lay columnLayout, member, row int) unsafe.Pointer {
	offset := lay.offsets[member]
	stride := lay.memberStride(member)
	return unsafe.Add(unsafe.Pointer(&ch.block[0]), offset+uintptr(row)*stride)
}

// lock forbids row-count-changing operations until the matching unlock.
func (ch *Chunk) lock()   { ch.lockDepth++ }
func (ch *Chunk) unlock() { ch.lockDepth-- }

func (ch *Chunk) assertUnlocked() {
	if ch.lockDepth != 0 {
		panic(bark.AddTrace(StructuralLockError{Depth: int(ch.lockDepth)}))
	}
}

// addRow appends an entity row at the enabled end of the partition,
// constructing generic columns and stamping every column version. Adding to a
// dying chunk revives it.
func (ch *Chunk) addRow(e Entity) (int, error) {
	ch.assertUnlocked()
	if ch.full() {
		return 0, fmt.Errorf("chunk is full")
	}
	row := int(ch.count)
	ch.count++
	ch.entities()[row] = e
	for _, lay := range ch.arch.layout[KindGeneric] {
		ch.zeroRow(lay, row)
		if th := lay.desc.thunks; th != nil && th.construct != nil {
			th.construct(ch.columnPtr(KindGeneric, lay, 0, row))
		}
	}
	ch.stampAllVersions()
	if ch.dying {
		ch.dying = false
		ch.lifespan = 0
	}
	return row, nil
}

// removeRow evacuates a row, keeping the disabled/enabled partition intact by
// filling the hole from the tail of its region and backfilling the enabled
// tail into the vacated disabled tail when needed.
func (ch *Chunk) removeRow(row uint16) {
	ch.assertUnlocked()
	last := ch.count - 1
	if row < ch.firstEnabled {
		lastDisabled := ch.firstEnabled - 1
		if row != lastDisabled {
			ch.migrateRow(row, lastDisabled)
			ch.updateRecord(row, true)
		}
		if lastDisabled != last {
			ch.migrateRow(lastDisabled, last)
			ch.updateRecord(lastDisabled, false)
		}
		ch.destructRow(last)
		ch.firstEnabled--
		ch.count--
	} else {
		if row != last {
			ch.migrateRow(row, last)
			ch.updateRecord(row, false)
		}
		ch.destructRow(last)
		ch.count--
	}
	ch.stampAllVersions()
	if ch.count == 0 && !ch.dying {
		ch.dying = true
		ch.lifespan = Config.ChunkLifespan
	}
}

// migrateRow move-assigns row src into dst, column by column, and carries the
// entity handle. Directory fixups are the caller's.
func (ch *Chunk) migrateRow(dst, src uint16) {
	for _, lay := range ch.arch.layout[KindGeneric] {
		ch.moveElement(lay, int(dst), int(src))
	}
	ents := ch.entities()
	ents[dst] = ents[src]
}

func (ch *Chunk) updateRecord(row uint16, disabled bool) {
	rec := ch.arch.world.directory.resolve(ch.entities()[row])
	if rec == nil {
		return
	}
	rec.row = uint32(row)
	rec.chunk = ch
	rec.disabled = disabled
}

// swapRows exchanges two rows column by column and fixes both directory
// records atomically with respect to observers of the chunk.
func (ch *Chunk) swapRows(a, b uint16) {
	if a == b {
		return
	}
	for _, lay := range ch.arch.layout[KindGeneric] {
		ch.swapElement(lay, int(a), int(b))
	}
	ents := ch.entities()
	ents[a], ents[b] = ents[b], ents[a]
	ch.updateRecord(a, a < ch.firstEnabled)
	ch.updateRecord(b, b < ch.firstEnabled)
}

// enableRow moves a row across the partition boundary. Disabling swaps with
// the first enabled row and grows the disabled region; enabling swaps with the
// last disabled row and shrinks it.
func (ch *Chunk) enableRow(row uint16, enabled bool) {
	if enabled {
		if row >= ch.firstEnabled {
			return
		}
		target := ch.firstEnabled - 1
		ch.firstEnabled--
		ch.swapRows(row, target)
		ch.updateRecord(target, false)
	} else {
		if row < ch.firstEnabled {
			return
		}
		target := ch.firstEnabled
		ch.firstEnabled++
		ch.swapRows(row, target)
		ch.updateRecord(target, true)
	}
}

// destructRow runs destructor thunks for a vacated row.
func (ch *Chunk) destructRow(row uint16) {
	layout := ch.arch.layout[KindGeneric]
	for i := len(layout) - 1; i >= 0; i-- {
		lay := layout[i]
		if th := lay.desc.thunks; th != nil && th.destroy != nil {
			th.destroy(ch.columnPtr(KindGeneric, lay, 0, int(row)))
		}
	}
}

func (ch *Chunk) zeroRow(lay columnLayout, row int) {
	for m := range lay.offsets {
		p := ch.columnPtr(KindGeneric, lay, m, row)
		stride := lay.memberStride(m)
		b := unsafe.Slice((*byte)(p), stride)
		clear(b)
	}
}

func (ch *Chunk) moveElement(lay columnLayout, dst, src int) {
	if th := lay.desc.thunks; th != nil && th.moveTo != nil {
		th.moveTo(ch.columnPtr(KindGeneric, lay, 0, dst), ch.columnPtr(KindGeneric, lay, 0, src))
		return
	}
	for m := range lay.offsets {
		stride := lay.memberStride(m)
		d := unsafe.Slice((*byte)(ch.columnPtr(KindGeneric, lay, m, dst)), stride)
		s := unsafe.Slice((*byte)(ch.columnPtr(KindGeneric, lay, m, src)), stride)
		copy(d, s)
	}
}

func (ch *Chunk) swapElement(lay columnLayout, a, b int) {
	if th := lay.desc.thunks; th != nil && th.swap != nil {
		th.swap(ch.columnPtr(KindGeneric, lay, 0, a), ch.columnPtr(KindGeneric, lay, 0, b))
		return
	}
	var scratch [MaxComponentSize]byte
	for m := range lay.offsets {
		stride := lay.memberStride(m)
		pa := unsafe.Slice((*byte)(ch.columnPtr(KindGeneric, lay, m, a)), stride)
		pb := unsafe.Slice((*byte)(ch.columnPtr(KindGeneric, lay, m, b)), stride)
		tmp := scratch[:stride]
		copy(tmp, pa)
		copy(pa, pb)
		copy(pb, tmp)
	}
}

// tick advances the dying countdown, reporting true when the chunk expired.
func (ch *Chunk) tick() bool {
	if !ch.dying {
		return false
	}
	ch.lifespan--
	return ch.lifespan == 0
}
