package depot

import (
	"fmt"
	"reflect"
	"unsafe"

	"github.com/TheBitDrifter/bark"
)

// AccessibleComponent pairs a registered Generic component with typed access
// patterns over cursors, chunks, and entities.
type AccessibleComponent[T any] struct {
	Component
}

// UniqueAccessible pairs a registered Unique component with typed per-chunk
// access.
type UniqueAccessible[T any] struct {
	Component
}

// SoAAccessible pairs a registered SoA component with struct-of-spans access.
type SoAAccessible[T any] struct {
	Component
}

// FactoryNewComponent registers (or finds) T as a Generic AoS component.
func FactoryNewComponent[T any]() AccessibleComponent[T] {
	typ := reflect.TypeFor[T]()
	return AccessibleComponent[T]{Component: globalCatalog.getOrCreate(typ, KindGeneric, false, nil)}
}

// Lifecycle carries optional typed hooks invoked on column memory. Nil fields
// fall back to byte copies.
type Lifecycle[T any] struct {
	Construct func(*T)
	Destroy   func(*T)
	Copy      func(dst, src *T)
	Move      func(dst, src *T)
	Swap      func(a, b *T)
	Equals    func(a, b *T) bool
}

func (lc Lifecycle[T]) thunks() *lifecycleThunks {
	th := &lifecycleThunks{}
	if lc.Construct != nil {
		th.construct = func(p unsafe.Pointer) { lc.Construct((*T)(p)) }
	}
	if lc.Destroy != nil {
		th.destroy = func(p unsafe.Pointer) { lc.Destroy((*T)(p)) }
	}
	if lc.Copy != nil {
		th.copyTo = func(dst, src unsafe.Pointer) { lc.Copy((*T)(dst), (*T)(src)) }
	}
	if lc.Move != nil {
		th.moveTo = func(dst, src unsafe.Pointer) { lc.Move((*T)(dst), (*T)(src)) }
	}
	if lc.Swap != nil {
		th.swap = func(a, b unsafe.Pointer) { lc.Swap((*T)(a), (*T)(b)) }
	}
	if lc.Equals != nil {
		th.equals = func(a, b unsafe.Pointer) bool { return lc.Equals((*T)(a), (*T)(b)) }
	}
	return th
}

// FactoryNewComponentWithLifecycle registers T as a Generic component with
// lifecycle hooks.
func FactoryNewComponentWithLifecycle[T any](lc Lifecycle[T]) AccessibleComponent[T] {
	typ := reflect.TypeFor[T]()
	return AccessibleComponent[T]{Component: globalCatalog.getOrCreate(typ, KindGeneric, false, lc.thunks())}
}

// FactoryNewUniqueComponent registers T as a Unique (per-chunk) component.
func FactoryNewUniqueComponent[T any]() UniqueAccessible[T] {
	typ := reflect.TypeFor[T]()
	return UniqueAccessible[T]{Component: globalCatalog.getOrCreate(typ, KindUnique, false, nil)}
}

// FactoryNewUniqueComponentWithLifecycle registers T as a Unique component
// with lifecycle hooks (equality drives defragmentation merges).
func FactoryNewUniqueComponentWithLifecycle[T any](lc Lifecycle[T]) UniqueAccessible[T] {
	typ := reflect.TypeFor[T]()
	return UniqueAccessible[T]{Component: globalCatalog.getOrCreate(typ, KindUnique, false, lc.thunks())}
}

// FactoryNewSoAComponent registers struct type T with each field stored as its
// own sub-array. SoA components are plain data and carry no hooks.
func FactoryNewSoAComponent[T any]() SoAAccessible[T] {
	typ := reflect.TypeFor[T]()
	return SoAAccessible[T]{Component: globalCatalog.getOrCreate(typ, KindGeneric, true, nil)}
}

func mustColumn(ch *Chunk, kind ComponentKind, c Component) (columnLayout, int) {
	col := ch.ColumnIndex(kind, c.ID())
	if col < 0 {
		panic(bark.AddTrace(ComponentNotFoundError{Component: c}))
	}
	return ch.arch.layout[kind][col], col
}

// columnView slices one AoS column over the chunk's capacity.
func columnView[T any](ch *Chunk, lay columnLayout) []T {
	base := unsafe.Add(unsafe.Pointer(&ch.block[0]), lay.offsets[0])
	return unsafe.Slice((*T)(base), int(ch.arch.props.capacity))
}

// View returns the read-only span of the column, sliced to occupied rows.
// Reading through it never bumps the change version.
func (c AccessibleComponent[T]) View(ch *Chunk) []T {
	lay, _ := mustColumn(ch, KindGeneric, c.Component)
	return columnView[T](ch, lay)[:ch.count]
}

// MutView returns the writable span and bumps the column's change version.
func (c AccessibleComponent[T]) MutView(ch *Chunk) []T {
	lay, col := mustColumn(ch, KindGeneric, c.Component)
	ch.bumpColumn(KindGeneric, col)
	return columnView[T](ch, lay)[:ch.count]
}

// MutViewSilent returns the writable span without touching the change version.
func (c AccessibleComponent[T]) MutViewSilent(ch *Chunk) []T {
	lay, _ := mustColumn(ch, KindGeneric, c.Component)
	return columnView[T](ch, lay)[:ch.count]
}

// GetFromCursor returns a writable pointer for the row under the cursor,
// bumping the column version once per visited chunk.
func (c AccessibleComponent[T]) GetFromCursor(cursor *Cursor) *T {
	lay, col := mustColumn(cursor.current, KindGeneric, c.Component)
	cursor.markWritten(KindGeneric, col)
	return &columnView[T](cursor.current, lay)[cursor.rowIdx]
}

// ReadFromCursor returns a read-only pointer for the row under the cursor.
func (c AccessibleComponent[T]) ReadFromCursor(cursor *Cursor) *T {
	lay, _ := mustColumn(cursor.current, KindGeneric, c.Component)
	return &columnView[T](cursor.current, lay)[cursor.rowIdx]
}

// GetFromCursorSafe reports presence before access, for Any-rule queries.
func (c AccessibleComponent[T]) GetFromCursorSafe(cursor *Cursor) (bool, *T) {
	if cursor.current.ColumnIndex(KindGeneric, c.ID()) < 0 {
		return false, nil
	}
	return true, c.GetFromCursor(cursor)
}

// CheckCursor reports whether the cursor's current chunk carries the component.
func (c AccessibleComponent[T]) CheckCursor(cursor *Cursor) bool {
	return cursor.current.ColumnIndex(KindGeneric, c.ID()) >= 0
}

// GetFromEntity returns a writable pointer to the entity's instance, bumping
// the column version. Dead handles and absent components fail loudly.
func (c AccessibleComponent[T]) GetFromEntity(w *World, e Entity) *T {
	rec := w.directory.resolve(e)
	if rec == nil {
		panic(bark.AddTrace(InvalidEntityError{Entity: e}))
	}
	lay, col := mustColumn(rec.chunk, KindGeneric, c.Component)
	rec.chunk.bumpColumn(KindGeneric, col)
	return &columnView[T](rec.chunk, lay)[rec.row]
}

// ReadFromEntity is GetFromEntity without the version bump; it returns nil for
// dead handles, the defined no-op for query-like reads.
func (c AccessibleComponent[T]) ReadFromEntity(w *World, e Entity) *T {
	rec := w.directory.resolve(e)
	if rec == nil {
		return nil
	}
	col := rec.chunk.ColumnIndex(KindGeneric, c.ID())
	if col < 0 {
		return nil
	}
	lay := rec.chunk.arch.layout[KindGeneric][col]
	return &columnView[T](rec.chunk, lay)[rec.row]
}

// SetOnEntity assigns the entity's instance, bumping the column version.
func (c AccessibleComponent[T]) SetOnEntity(w *World, e Entity, value T) {
	*c.GetFromEntity(w, e) = value
}

// CheckEntity reports whether the entity's archetype carries the component.
func (c AccessibleComponent[T]) CheckEntity(w *World, e Entity) bool {
	rec := w.directory.resolve(e)
	return rec != nil && rec.chunk.Has(KindGeneric, c.ID())
}

// Get returns a writable pointer to the chunk's single instance, bumping the
// column version.
func (u UniqueAccessible[T]) Get(ch *Chunk) *T {
	lay, col := mustColumn(ch, KindUnique, u.Component)
	ch.bumpColumn(KindUnique, col)
	return (*T)(unsafe.Add(unsafe.Pointer(&ch.block[0]), lay.offsets[0]))
}

// Read returns the chunk's single instance without a version bump.
func (u UniqueAccessible[T]) Read(ch *Chunk) *T {
	lay, _ := mustColumn(ch, KindUnique, u.Component)
	return (*T)(unsafe.Add(unsafe.Pointer(&ch.block[0]), lay.offsets[0]))
}

// GetFromCursor returns the unique instance of the chunk under the cursor.
func (u UniqueAccessible[T]) GetFromCursor(cursor *Cursor) *T {
	return u.Read(cursor.current)
}

// SetOnEntity assigns the unique value on the entity's chunk, affecting every
// row sharing it.
func (u UniqueAccessible[T]) SetOnEntity(w *World, e Entity, value T) {
	rec := w.directory.resolve(e)
	if rec == nil {
		panic(bark.AddTrace(InvalidEntityError{Entity: e}))
	}
	*u.Get(rec.chunk) = value
}

// SoAView is a struct-of-spans over one SoA column: one contiguous sub-array
// per member, all sliced to the chunk's occupied rows.
type SoAView struct {
	chunk *Chunk
	lay   columnLayout
	rows  int
}

// View returns the chunk's struct-of-spans view without a version bump.
func (s SoAAccessible[T]) View(ch *Chunk) SoAView {
	lay, _ := mustColumn(ch, KindGeneric, s.Component)
	return SoAView{chunk: ch, lay: lay, rows: int(ch.count)}
}

// MutView returns the view and bumps the column's change version.
func (s SoAAccessible[T]) MutView(ch *Chunk) SoAView {
	lay, col := mustColumn(ch, KindGeneric, s.Component)
	ch.bumpColumn(KindGeneric, col)
	return SoAView{chunk: ch, lay: lay, rows: int(ch.count)}
}

// Rows returns the number of rows the view spans.
func (v SoAView) Rows() int { return v.rows }

// Members returns the sub-array count.
func (v SoAView) Members() int { return len(v.lay.offsets) }

// memberPtr returns the base of one sub-array.
func (v SoAView) memberPtr(member int) unsafe.Pointer {
	return unsafe.Add(unsafe.Pointer(&v.chunk.block[0]), v.lay.offsets[member])
}

// SoAMember slices one sub-array of an SoA view as its field type. F must be
// the member's Go type; sizes are checked.
func SoAMember[F any](v SoAView, member int) []F {
	var f F
	if unsafe.Sizeof(f) != v.lay.desc.memberSizes[member] {
		panic(bark.AddTrace(fmt.Errorf("SoA member %d of %s is %d bytes, requested type is %d",
			member, v.lay.desc.name, v.lay.desc.memberSizes[member], unsafe.Sizeof(f))))
	}
	return unsafe.Slice((*F)(v.memberPtr(member)), v.rows)
}

// Gather assembles the full struct value for one row from the sub-arrays.
func (s SoAAccessible[T]) Gather(v SoAView, row int) T {
	var out T
	base := unsafe.Pointer(&out)
	for m, off := range s.memberOffsets() {
		size := v.lay.desc.memberSizes[m]
		src := unsafe.Add(v.memberPtr(m), uintptr(row)*size)
		dst := unsafe.Add(base, off)
		copy(unsafe.Slice((*byte)(dst), size), unsafe.Slice((*byte)(src), size))
	}
	return out
}

// Scatter writes the full struct value for one row into the sub-arrays.
func (s SoAAccessible[T]) Scatter(v SoAView, row int, value T) {
	base := unsafe.Pointer(&value)
	for m, off := range s.memberOffsets() {
		size := v.lay.desc.memberSizes[m]
		src := unsafe.Add(base, off)
		dst := unsafe.Add(v.memberPtr(m), uintptr(row)*size)
		copy(unsafe.Slice((*byte)(dst), size), unsafe.Slice((*byte)(src), size))
	}
}

func (s SoAAccessible[T]) memberOffsets() []uintptr {
	return globalCatalog.descriptor(s.ID()).memberOffsets
}
