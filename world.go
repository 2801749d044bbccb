package depot

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/TheBitDrifter/bark"
	"github.com/TheBitDrifter/mask"
)

// World owns the entity directory, the archetype arena, the query plan cache,
// and the change-version counter. All mutation and iteration happen on the
// goroutine that owns the world; there is no internal synchronization.
type World struct {
	allocator *chunkAllocator
	directory entityDirectory

	archetypes   []*Archetype
	root         *Archetype
	byLookupHash map[uint64][]ArchetypeID
	byComponent  [kindCount]map[ComponentID][]ArchetypeID

	plans       []*queryPlan
	plansByHash map[uint64]*queryPlan
	nextQueryID QueryID

	version uint32

	locks       mask.Mask256
	lockDepth   int
	nextLockBit uint32

	deferred *CommandBuffer
	names    map[string]Entity

	defragCursor int
	closed       bool
}

func newWorld() *World {
	w := &World{
		allocator:    acquireAllocator(),
		directory:    newEntityDirectory(),
		byLookupHash: make(map[uint64][]ArchetypeID),
		plansByHash:  make(map[uint64]*queryPlan),
		names:        make(map[string]Entity),
		version:      1,
	}
	for kind := 0; kind < kindCount; kind++ {
		w.byComponent[kind] = make(map[ComponentID][]ArchetypeID)
	}
	w.root = w.internArchetype(nil, nil)
	w.deferred = newCommandBuffer(w)
	return w
}

// Close tears the world down: every chunk is destructed and returned to the
// allocator, and the world's allocator reference is dropped.
func (w *World) Close() {
	if w.closed {
		return
	}
	if w.Locked() {
		panic(bark.AddTrace(fmt.Errorf("closing a locked world")))
	}
	for _, a := range w.archetypes {
		if a == nil {
			continue
		}
		for _, ch := range a.chunks {
			ch.release()
		}
		a.chunks = nil
		a.dead = true
	}
	w.closed = true
	w.allocator.release()
}

// Version returns the world's current change counter.
func (w *World) Version() uint32 { return w.version }

func (w *World) bumpVersion() uint32 {
	w.version++
	if w.version == 0 {
		w.version = 1
	}
	return w.version
}

// Locked reports whether any cursor currently holds an iteration lock slot.
func (w *World) Locked() bool {
	return w.lockDepth > 0 || !w.locks.IsEmpty()
}

// acquireLock hands out one lock-mask bit per cursor.
func (w *World) acquireLock() uint32 {
	bit := w.nextLockBit % 256
	w.nextLockBit++
	w.locks.Mark(bit)
	w.lockDepth++
	return bit
}

// releaseLock releases a cursor's slot and, once the world is fully unlocked,
// commits the deferred buffer accumulated by the EnqueueX methods.
func (w *World) releaseLock(bit uint32) {
	w.lockDepth--
	w.locks.Unmark(bit)
	if w.lockDepth == 0 {
		w.locks = mask.Mask256{}
		if err := w.deferred.Commit(); err != nil {
			panic(bark.AddTrace(fmt.Errorf("replaying deferred operations: %w", err)))
		}
	}
}

// Root returns the empty-signature archetype created at world init.
func (w *World) Root() *Archetype { return w.root }

// Archetype returns the live archetype with the given id, or nil.
func (w *World) Archetype(id ArchetypeID) *Archetype {
	if int(id) >= len(w.archetypes) {
		return nil
	}
	return w.archetypes[id]
}

// ArchetypeCount counts live archetypes.
func (w *World) ArchetypeCount() int {
	n := 0
	for _, a := range w.archetypes {
		if a != nil {
			n++
		}
	}
	return n
}

// normalizeComponents splits a component list by kind, sorts each by id, and
// rejects duplicates.
func normalizeComponents(comps []Component) (generic, unique []Component, err error) {
	for _, c := range comps {
		if c.IsZero() {
			return nil, nil, fmt.Errorf("zero component in signature")
		}
		if c.Kind() == KindGeneric {
			generic = append(generic, c)
		} else {
			unique = append(unique, c)
		}
	}
	for _, list := range [][]Component{generic, unique} {
		sort.Slice(list, func(i, j int) bool { return list[i].ID() < list[j].ID() })
		for i := 1; i < len(list); i++ {
			if list[i].ID() == list[i-1].ID() {
				return nil, nil, fmt.Errorf("duplicate component %d in signature", list[i].ID())
			}
		}
	}
	return generic, unique, nil
}

// internArchetype returns the live archetype for a sorted signature, creating
// and indexing it on first sight. Lookup-hash collisions are resolved by
// comparing the signatures themselves.
func (w *World) internArchetype(generic, unique []Component) *Archetype {
	hash := combineHashes(hashComponentList(generic), hashComponentList(unique))
	for _, id := range w.byLookupHash[hash] {
		a := w.archetypes[id]
		if a == nil {
			continue
		}
		if slices.Equal(a.comps[KindGeneric], generic) && slices.Equal(a.comps[KindUnique], unique) {
			return a
		}
	}
	a := newArchetype(w, ArchetypeID(len(w.archetypes)), generic, unique)
	w.archetypes = append(w.archetypes, a)
	w.byLookupHash[hash] = append(w.byLookupHash[hash], a.id)
	for kind := ComponentKind(0); kind < kindCount; kind++ {
		for _, c := range a.comps[kind] {
			w.byComponent[kind][c.ID()] = append(w.byComponent[kind][c.ID()], a.id)
		}
	}
	return a
}

// destroyArchetype finalizes an expired archetype: it leaves the intern map
// and the inverted index, every query plan cache drops it (cursors past its
// positions are pulled back), and its graph edges are unlinked. The arena slot
// stays nil; ids are not reused.
func (w *World) destroyArchetype(a *Archetype) {
	hash := a.lookupHash
	w.byLookupHash[hash] = slices.DeleteFunc(w.byLookupHash[hash], func(id ArchetypeID) bool {
		return id == a.id
	})
	for kind := ComponentKind(0); kind < kindCount; kind++ {
		for _, c := range a.comps[kind] {
			list := w.byComponent[kind][c.ID()]
			pos := slices.Index(list, a.id)
			if pos < 0 {
				continue
			}
			w.byComponent[kind][c.ID()] = slices.Delete(list, pos, pos+1)
			for _, plan := range w.plans {
				plan.componentListShrunk(kind, c.ID(), pos)
			}
		}
	}
	for _, plan := range w.plans {
		plan.dropArchetype(a.id)
	}
	w.unlinkEdges(a)
	a.dead = true
	w.archetypes[a.id] = nil
}

// NewEntity creates one entity bearing the given components.
func (w *World) NewEntity(comps ...Component) (Entity, error) {
	entities, err := w.NewEntities(1, comps...)
	if err != nil {
		return Entity{}, err
	}
	return entities[0], nil
}

// NewEntities creates n entities sharing one signature. It fails with
// LockedWorldError while cursors are active; use EnqueueNewEntities there.
func (w *World) NewEntities(n int, comps ...Component) ([]Entity, error) {
	if w.Locked() {
		return nil, LockedWorldError{}
	}
	generic, unique, err := normalizeComponents(comps)
	if err != nil {
		return nil, err
	}
	arch := w.internArchetype(generic, unique)
	return w.spawnInto(arch, n)
}

func (w *World) spawnInto(arch *Archetype, n int) ([]Entity, error) {
	entities := make([]Entity, 0, n)
	for i := 0; i < n; i++ {
		e := w.directory.alloc()
		ch := arch.findOrCreateFreeChunk()
		row, err := ch.addRow(e)
		if err != nil {
			return nil, err
		}
		rec := &w.directory.records[e.Index()]
		rec.arch = arch
		rec.chunk = ch
		rec.row = uint32(row)
		rec.disabled = false
		entities = append(entities, e)
	}
	return entities, nil
}

// CloneEntity creates a new entity in src's archetype with src's component
// values copied row for row.
func (w *World) CloneEntity(src Entity) (Entity, error) {
	if w.Locked() {
		return Entity{}, LockedWorldError{}
	}
	rec := w.directory.resolve(src)
	if rec == nil {
		return Entity{}, InvalidEntityError{Entity: src}
	}
	entities, err := w.spawnInto(rec.arch, 1)
	if err != nil {
		return Entity{}, err
	}
	clone := w.directory.resolve(entities[0])
	copySharedRow(clone.chunk, int(clone.row), rec.chunk, int(rec.row))
	return entities[0], nil
}

// DestroyEntity removes an entity and recycles its directory slot.
func (w *World) DestroyEntity(e Entity) error {
	if w.Locked() {
		return LockedWorldError{}
	}
	rec := w.directory.resolve(e)
	if rec == nil {
		return InvalidEntityError{Entity: e}
	}
	if rec.name != "" {
		delete(w.names, rec.name)
	}
	rec.chunk.removeRow(uint16(rec.row))
	w.directory.free(e)
	return nil
}

// Alive reports whether the handle still resolves.
func (w *World) Alive(e Entity) bool {
	return w.directory.isLive(e)
}

// Enabled reports the entity's enabled flag; dead handles read as disabled.
func (w *World) Enabled(e Entity) bool {
	rec := w.directory.resolve(e)
	return rec != nil && !rec.disabled
}

// ArchetypeOf returns the entity's archetype, or nil for dead handles.
func (w *World) ArchetypeOf(e Entity) *Archetype {
	rec := w.directory.resolve(e)
	if rec == nil {
		return nil
	}
	return rec.arch
}

// HasComponent reports whether the entity's archetype carries the component.
func (w *World) HasComponent(e Entity, c Component) bool {
	rec := w.directory.resolve(e)
	return rec != nil && rec.chunk.Has(c.Kind(), c.ID())
}

// AddComponent moves the entity along the add edge for c. Adding a component
// that is already present is a programming error and fails loudly.
func (w *World) AddComponent(e Entity, c Component) error {
	if w.Locked() {
		return LockedWorldError{}
	}
	rec := w.directory.resolve(e)
	if rec == nil {
		return InvalidEntityError{Entity: e}
	}
	if rec.chunk.Has(c.Kind(), c.ID()) {
		panic(bark.AddTrace(ComponentExistsError{Component: c, Current: w.componentsAsString(rec.arch)}))
	}
	dst := w.archetypeWithAdded(rec.arch, c)
	w.moveEntity(e, rec, dst)
	return nil
}

// RemoveComponent moves the entity along the remove edge for c. Removing an
// absent component is a programming error; pre-check with HasComponent.
func (w *World) RemoveComponent(e Entity, c Component) error {
	if w.Locked() {
		return LockedWorldError{}
	}
	rec := w.directory.resolve(e)
	if rec == nil {
		return InvalidEntityError{Entity: e}
	}
	if !rec.chunk.Has(c.Kind(), c.ID()) {
		panic(bark.AddTrace(ComponentNotFoundError{Component: c}))
	}
	dst := w.archetypeWithRemoved(rec.arch, c)
	w.moveEntity(e, rec, dst)
	return nil
}

// moveEntity relocates a row into dst, preserving component values the two
// signatures share and the entity's disabled state.
func (w *World) moveEntity(e Entity, rec *entityRecord, dst *Archetype) {
	srcChunk := rec.chunk
	srcRow := uint16(rec.row)
	wasDisabled := rec.disabled
	if wasDisabled {
		srcChunk.enableRow(srcRow, true)
		srcRow = uint16(rec.row)
	}
	dstChunk := dst.freeChunkMatching(srcChunk)
	dstRow, err := dstChunk.addRow(e)
	if err != nil {
		panic(bark.AddTrace(err))
	}
	copySharedRow(dstChunk, dstRow, srcChunk, int(srcRow))
	srcChunk.removeRow(srcRow)
	rec.arch = dst
	rec.chunk = dstChunk
	rec.row = uint32(dstRow)
	rec.disabled = false
	if wasDisabled {
		dstChunk.enableRow(uint16(dstRow), false)
	}
}

// SetEnabled flips the entity across its chunk's partition. Disabled rows are
// skipped by default cursors but keep their component values.
func (w *World) SetEnabled(e Entity, enabled bool) error {
	rec := w.directory.resolve(e)
	if rec == nil {
		return InvalidEntityError{Entity: e}
	}
	if rec.disabled == !enabled {
		return nil
	}
	rec.chunk.enableRow(uint16(rec.row), enabled)
	return nil
}

// SetName assigns a world-unique name. Renaming an entity to its own name is
// a no-op; a name held by another live entity is rejected.
func (w *World) SetName(e Entity, name string) error {
	rec := w.directory.resolve(e)
	if rec == nil {
		return InvalidEntityError{Entity: e}
	}
	if owner, ok := w.names[name]; ok {
		if owner == e {
			return nil
		}
		if w.Alive(owner) {
			return NameCollisionError{Name: name, Owner: owner}
		}
	}
	if rec.name != "" {
		delete(w.names, rec.name)
	}
	rec.name = name
	w.names[name] = e
	return nil
}

// Name returns the entity's name, if any.
func (w *World) Name(e Entity) string {
	rec := w.directory.resolve(e)
	if rec == nil {
		return ""
	}
	return rec.name
}

// EntityByName resolves a name to its owner.
func (w *World) EntityByName(name string) (Entity, bool) {
	e, ok := w.names[name]
	if !ok || !w.Alive(e) {
		return Entity{}, false
	}
	return e, true
}

// ClearName releases the entity's name.
func (w *World) ClearName(e Entity) {
	rec := w.directory.resolve(e)
	if rec == nil || rec.name == "" {
		return
	}
	delete(w.names, rec.name)
	rec.name = ""
}

// Update is the world's maintenance pulse: dying chunks and archetypes count
// down and are finalized, then a budgeted defragmentation step runs, resuming
// where the previous pulse stopped.
func (w *World) Update() {
	if w.Locked() {
		return
	}
	var expired []*Archetype
	for _, a := range w.archetypes {
		if a == nil {
			continue
		}
		if a.tick() {
			expired = append(expired, a)
		}
	}
	for _, a := range expired {
		w.destroyArchetype(a)
	}
	w.Defragment(Config.DefragBudget)
}

// Defragment compacts up to budget rows across the archetype arena, resuming
// from the cursor saved by the previous call.
func (w *World) Defragment(budget int) {
	if len(w.archetypes) == 0 || budget <= 0 {
		return
	}
	for visited := 0; visited < len(w.archetypes) && budget > 0; visited++ {
		idx := (w.defragCursor + visited) % len(w.archetypes)
		a := w.archetypes[idx]
		if a == nil {
			continue
		}
		a.defragment(&budget)
		if budget == 0 {
			w.defragCursor = idx
			return
		}
	}
	w.defragCursor = 0
}

// EnqueueNewEntities creates immediately when the world is unlocked and
// defers through the world's command buffer otherwise.
func (w *World) EnqueueNewEntities(n int, comps ...Component) error {
	if !w.Locked() {
		_, err := w.NewEntities(n, comps...)
		return err
	}
	for i := 0; i < n; i++ {
		w.deferred.NewEntity(comps...)
	}
	return nil
}

// EnqueueDestroyEntity destroys immediately or defers while locked.
func (w *World) EnqueueDestroyEntity(e Entity) error {
	if !w.Locked() {
		return w.DestroyEntity(e)
	}
	w.deferred.DestroyEntity(e)
	return nil
}

// EnqueueAddComponent adds immediately or defers while locked.
func (w *World) EnqueueAddComponent(e Entity, c Component) error {
	if !w.Locked() {
		return w.AddComponent(e, c)
	}
	w.deferred.AddComponent(e, c)
	return nil
}

// EnqueueRemoveComponent removes immediately or defers while locked.
func (w *World) EnqueueRemoveComponent(e Entity, c Component) error {
	if !w.Locked() {
		return w.RemoveComponent(e, c)
	}
	w.deferred.RemoveComponent(e, c)
	return nil
}

// componentsAsString renders an archetype's signature for diagnostics.
func (w *World) componentsAsString(a *Archetype) string {
	var names []string
	for kind := ComponentKind(0); kind < kindCount; kind++ {
		for _, c := range a.comps[kind] {
			names = append(names, globalCatalog.descriptor(c.ID()).name)
		}
	}
	sort.Strings(names)
	return "[" + strings.Join(names, ", ") + "]"
}
