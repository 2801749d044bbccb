package depot

// entityRecord resolves a live handle to its storage location. While a slot is
// free, row is repurposed as the next-free link of the directory's implicit
// free-list.
type entityRecord struct {
	row        uint32
	generation uint32
	disabled   bool
	arch       *Archetype
	chunk      *Chunk
	name       string
}

func (r *entityRecord) live() bool {
	return r.chunk != nil
}

// entityDirectory allocates and recycles entity records. Generations are
// monotone per slot; the free-list terminates in a sentinel.
type entityDirectory struct {
	records   []entityRecord
	freeHead  uint32
	freeCount int
}

func newEntityDirectory() entityDirectory {
	return entityDirectory{freeHead: freeSlotSentinel}
}

// alloc returns a fresh handle, reusing the free-list head when available.
func (d *entityDirectory) alloc() Entity {
	if d.freeHead != freeSlotSentinel {
		idx := d.freeHead
		rec := &d.records[idx]
		d.freeHead = rec.row
		d.freeCount--
		rec.row = 0
		return Entity{newEntityHandle(idx, rec.generation)}
	}
	idx := uint32(len(d.records))
	d.records = append(d.records, entityRecord{generation: 1})
	return Entity{newEntityHandle(idx, 1)}
}

// free recycles a slot, bumping its generation so outstanding handles go dead.
func (d *entityDirectory) free(e Entity) {
	rec := &d.records[e.Index()]
	rec.generation++
	rec.arch = nil
	rec.chunk = nil
	rec.disabled = false
	rec.name = ""
	rec.row = d.freeHead
	d.freeHead = e.Index()
	d.freeCount++
}

// resolve returns the record for a live handle, or nil when the generation no
// longer matches or the slot is free.
func (d *entityDirectory) resolve(e Entity) *entityRecord {
	if !e.Valid() || int(e.Index()) >= len(d.records) {
		return nil
	}
	rec := &d.records[e.Index()]
	if rec.generation != e.Generation() || !rec.live() {
		return nil
	}
	return rec
}

func (d *entityDirectory) isLive(e Entity) bool {
	return d.resolve(e) != nil
}
