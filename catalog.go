package depot

import (
	"fmt"
	"hash/fnv"
	"reflect"
	"unsafe"

	"github.com/TheBitDrifter/bark"
)

// lifecycleThunks are the optional per-type hooks the engine invokes on raw
// column memory. Nil fields (and a nil table) fall back to plain byte copies.
type lifecycleThunks struct {
	construct func(p unsafe.Pointer)
	destroy   func(p unsafe.Pointer)
	copyTo    func(dst, src unsafe.Pointer)
	moveTo    func(dst, src unsafe.Pointer)
	swap      func(a, b unsafe.Pointer)
	equals    func(a, b unsafe.Pointer) bool
}

// componentDescriptor is the catalog's record for one registered component id.
type componentDescriptor struct {
	name        string
	typ         reflect.Type
	comp        Component
	lookupHash  uint64
	matcherHash uint64

	// memberSizes and memberOffsets describe SoA sub-arrays; empty for AoS.
	memberSizes   []uintptr
	memberOffsets []uintptr

	thunks *lifecycleThunks
}

type catalogKey struct {
	typ  reflect.Type
	kind ComponentKind
	soa  bool
}

type componentCatalog struct {
	byKey       map[catalogKey]ComponentID
	descriptors []componentDescriptor
}

// The catalog is process-wide; ids are never persisted across runs. Worlds are
// single-threaded, so no internal synchronization.
var globalCatalog = newCatalog()

func newCatalog() *componentCatalog {
	return &componentCatalog{
		byKey:       make(map[catalogKey]ComponentID, MaxComponentTypes),
		descriptors: make([]componentDescriptor, 0, MaxComponentTypes),
	}
}

// ResetGlobalCatalog clears all component registrations. Only for tests that
// need a pristine id space; worlds created before the reset become invalid.
func ResetGlobalCatalog() {
	globalCatalog = newCatalog()
}

// descriptor returns the record for an id produced by a prior registration.
func (c *componentCatalog) descriptor(id ComponentID) *componentDescriptor {
	return &c.descriptors[id]
}

// getOrCreate registers typ under the given kind/SoA mode, or returns the
// existing id. Registration is idempotent per (type, kind, mode).
func (c *componentCatalog) getOrCreate(typ reflect.Type, kind ComponentKind, soa bool, thunks *lifecycleThunks) Component {
	key := catalogKey{typ: typ, kind: kind, soa: soa}
	if id, ok := c.byKey[key]; ok {
		return c.descriptors[id].comp
	}
	if len(c.descriptors) >= MaxComponentTypes {
		panic(bark.AddTrace(fmt.Errorf("cannot register %s: catalog is full (%d types)", typ, MaxComponentTypes)))
	}
	validateComponentType(typ, soa, thunks)

	size := int(typ.Size())
	align := typ.Align()
	arity := 0
	var memberSizes, memberOffsets []uintptr
	if soa {
		arity = typ.NumField()
		memberSizes = make([]uintptr, arity)
		memberOffsets = make([]uintptr, arity)
		for i := 0; i < arity; i++ {
			f := typ.Field(i)
			memberSizes[i] = f.Type.Size()
			memberOffsets[i] = f.Offset
		}
	}

	id := ComponentID(len(c.descriptors))
	lookup := typeLookupHash(typ, kind, soa)
	desc := componentDescriptor{
		name:          typ.String(),
		typ:           typ,
		comp:          packComponent(id, kind, arity, size, align),
		lookupHash:    lookup,
		matcherHash:   1 << (lookup % 63),
		memberSizes:   memberSizes,
		memberOffsets: memberOffsets,
		thunks:        thunks,
	}
	c.byKey[key] = id
	c.descriptors = append(c.descriptors, desc)
	return desc.comp
}

// validateComponentType enforces the catalog's registration bounds. Misuse is
// a programming error and fails loudly.
func validateComponentType(typ reflect.Type, soa bool, thunks *lifecycleThunks) {
	if typ.Kind() != reflect.Struct {
		panic(bark.AddTrace(fmt.Errorf("component %s must be a struct type", typ)))
	}
	if typ.Size() > MaxComponentSize {
		panic(bark.AddTrace(fmt.Errorf("component %s size %d exceeds %d bytes", typ, typ.Size(), MaxComponentSize)))
	}
	if typ.Align() > MaxComponentAlign {
		panic(bark.AddTrace(fmt.Errorf("component %s alignment %d exceeds %d", typ, typ.Align(), MaxComponentAlign)))
	}
	if containsIndirections(typ) {
		// Columns live in raw blocks the collector does not scan.
		panic(bark.AddTrace(fmt.Errorf("component %s contains pointers, slices, maps, or strings; components must be plain data", typ)))
	}
	if soa {
		if typ.NumField() == 0 || typ.NumField() > MaxSoAMembers {
			panic(bark.AddTrace(fmt.Errorf("SoA component %s needs 1..%d fields, has %d", typ, MaxSoAMembers, typ.NumField())))
		}
		if thunks != nil {
			panic(bark.AddTrace(fmt.Errorf("SoA component %s cannot carry lifecycle hooks", typ)))
		}
	}
}

func containsIndirections(typ reflect.Type) bool {
	switch typ.Kind() {
	case reflect.Ptr, reflect.Slice, reflect.Map, reflect.Chan,
		reflect.Func, reflect.Interface, reflect.String, reflect.UnsafePointer:
		return true
	case reflect.Struct:
		for i := 0; i < typ.NumField(); i++ {
			if containsIndirections(typ.Field(i).Type) {
				return true
			}
		}
	case reflect.Array:
		return containsIndirections(typ.Elem())
	}
	return false
}

// typeLookupHash derives the 64-bit identity hash for a registration. Kind and
// storage mode salt the hash so the same Go type may register as each.
func typeLookupHash(typ reflect.Type, kind ComponentKind, soa bool) uint64 {
	h := fnv.New64a()
	h.Write([]byte(typ.PkgPath()))
	h.Write([]byte{'/'})
	h.Write([]byte(typ.String()))
	h.Write([]byte{byte(kind)})
	if soa {
		h.Write([]byte{1})
	}
	sum := h.Sum64()
	if sum == 0 {
		sum = 1
	}
	return sum
}

// combineHashes mixes a component hash into a running list hash. Empty lists
// stay at 0 by construction, which is the root archetype's lookup hash.
func combineHashes(seed, h uint64) uint64 {
	if seed == 0 && h == 0 {
		return 0
	}
	seed ^= h + 0x9e3779b97f4a7c15 + (seed << 12) + (seed >> 4)
	return seed
}

// hashComponentList folds the lookup hashes of a sorted component list.
func hashComponentList(comps []Component) uint64 {
	var seed uint64
	for _, c := range comps {
		seed = combineHashes(seed, globalCatalog.descriptor(c.ID()).lookupHash)
	}
	return seed
}

// matcherHashOf ORs the single-bit matcher hashes of a component list.
func matcherHashOf(comps []Component) uint64 {
	var m uint64
	for _, c := range comps {
		m |= globalCatalog.descriptor(c.ID()).matcherHash
	}
	return m
}

// alignUp rounds cursor up to the next multiple of align (a power of two is
// not required; catalog alignments come from the Go type system).
func alignUp(cursor, align uintptr) uintptr {
	if align <= 1 {
		return cursor
	}
	rem := cursor % align
	if rem == 0 {
		return cursor
	}
	return cursor + align - rem
}

// columnFootprint returns the byte span a column of rows elements occupies
// starting from cursor, and the per-sub-array offsets relative to the block
// start. AoS columns emit one offset; SoA columns emit one per member, each
// padded to the component alignment, plus a trailing sentinel region so the
// final element can be accessed through the widest member safely.
func columnFootprint(desc *componentDescriptor, cursor uintptr, rows int) (end uintptr, offsets []uintptr) {
	align := uintptr(desc.comp.Align())
	if desc.comp.Arity() == 0 {
		start := alignUp(cursor, align)
		return start + uintptr(desc.comp.Size())*uintptr(rows), []uintptr{start}
	}
	offsets = make([]uintptr, 0, desc.comp.Arity())
	for _, ms := range desc.memberSizes {
		start := alignUp(cursor, align)
		offsets = append(offsets, start)
		cursor = start + ms*uintptr(rows)
	}
	// Sentinel tail for safe access past the last SoA element.
	cursor += align
	return cursor, offsets
}
