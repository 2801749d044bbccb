package depot

import (
	"fmt"
	"unsafe"

	"github.com/TheBitDrifter/bark"
)

const (
	opNewEntity uint8 = iota + 1
	opNewEntityFromEntity
	opNewEntityFromArchetype
	opDestroyEntity
	opAddComponent
	opAddComponentValue
	opRemoveComponent
	opSetComponentValue
)

const tempTargetFlag = uint64(1) << 63

// TempEntity is the placeholder a command buffer hands back for entities it
// will create at commit time. Later commands in the same buffer may target it.
type TempEntity uint32

// BufferTarget is either a live Entity or a TempEntity token from the same
// buffer.
type BufferTarget interface {
	targetBits() uint64
}

func (e Entity) targetBits() uint64     { return uint64(e.Handle) }
func (t TempEntity) targetBits() uint64 { return tempTargetFlag | uint64(t) }

// CommandBuffer queues structural mutations performed during iteration as a
// byte-encoded opcode stream and replays them in insertion order when Commit
// is called on an unlocked world. Commit clears the buffer.
type CommandBuffer struct {
	world     *World
	buf       serialBuffer
	nextToken TempEntity
	count     int
}

func newCommandBuffer(w *World) *CommandBuffer {
	return &CommandBuffer{world: w}
}

// Len reports how many commands are queued.
func (b *CommandBuffer) Len() int { return b.count }

// NewEntity queues entity creation with the given components and returns the
// token later commands may target.
func (b *CommandBuffer) NewEntity(comps ...Component) TempEntity {
	token := b.nextToken
	b.nextToken++
	b.buf.putU8(opNewEntity)
	b.buf.putU32(uint32(token))
	b.buf.putU8(uint8(len(comps)))
	for _, c := range comps {
		b.buf.putU64(c.packed)
	}
	b.count++
	return token
}

// NewEntityFrom queues a clone of src: same archetype, component values
// copied.
func (b *CommandBuffer) NewEntityFrom(src Entity) TempEntity {
	token := b.nextToken
	b.nextToken++
	b.buf.putU8(opNewEntityFromEntity)
	b.buf.putU32(uint32(token))
	b.buf.putU64(uint64(src.Handle))
	b.count++
	return token
}

// NewEntityFromArchetype queues creation directly into an archetype, looked up
// by id at commit time.
func (b *CommandBuffer) NewEntityFromArchetype(id ArchetypeID) TempEntity {
	token := b.nextToken
	b.nextToken++
	b.buf.putU8(opNewEntityFromArchetype)
	b.buf.putU32(uint32(token))
	b.buf.putU32(uint32(id))
	b.count++
	return token
}

// DestroyEntity queues destruction of a live entity or an earlier token.
func (b *CommandBuffer) DestroyEntity(target BufferTarget) {
	b.buf.putU8(opDestroyEntity)
	b.buf.putU64(target.targetBits())
	b.count++
}

// AddComponent queues a default-valued component addition.
func (b *CommandBuffer) AddComponent(target BufferTarget, c Component) {
	b.buf.putU8(opAddComponent)
	b.buf.putU64(target.targetBits())
	b.buf.putU64(c.packed)
	b.count++
}

// RemoveComponent queues a component removal.
func (b *CommandBuffer) RemoveComponent(target BufferTarget, c Component) {
	b.buf.putU8(opRemoveComponent)
	b.buf.putU64(target.targetBits())
	b.buf.putU64(c.packed)
	b.count++
}

// QueueAddComponent queues a component addition carrying an initial value.
// The value is copied into the buffer through the descriptor's copy thunk when
// one exists.
func QueueAddComponent[T any](b *CommandBuffer, target BufferTarget, c AccessibleComponent[T], value T) {
	queueValueOp(b, opAddComponentValue, target, c.Component, unsafe.Pointer(&value))
}

// QueueSetComponent queues an assignment to a component the target already
// carries at commit time.
func QueueSetComponent[T any](b *CommandBuffer, target BufferTarget, c AccessibleComponent[T], value T) {
	queueValueOp(b, opSetComponentValue, target, c.Component, unsafe.Pointer(&value))
}

func queueValueOp(b *CommandBuffer, op uint8, target BufferTarget, c Component, src unsafe.Pointer) {
	b.buf.putU8(op)
	b.buf.putU64(target.targetBits())
	b.buf.putU64(c.packed)
	size := c.Size()
	b.buf.putU32(uint32(size))
	off := b.buf.reserve(size)
	desc := globalCatalog.descriptor(c.ID())
	if th := desc.thunks; th != nil && th.copyTo != nil {
		th.copyTo(b.buf.at(off), src)
	} else {
		copy(unsafe.Slice((*byte)(b.buf.at(off)), size), unsafe.Slice((*byte)(src), size))
	}
	b.count++
}

// Commit replays every queued command in insertion order, resolving tokens to
// the entities the create commands produce, then clears the buffer. The world
// must be unlocked.
func (b *CommandBuffer) Commit() error {
	if b.count == 0 {
		return nil
	}
	if b.world.Locked() {
		return LockedWorldError{}
	}
	if hook := Config.Profiler; hook != nil {
		hook.ScopeStart("depot.commit")
		defer hook.ScopeEnd("depot.commit")
	}
	tokens := make([]Entity, b.nextToken)
	rd := b.buf.reader()
	for rd.remaining() > 0 {
		op := rd.u8()
		if err := b.replayOne(op, &rd, tokens); err != nil {
			return err
		}
	}
	b.buf.reset()
	b.count = 0
	b.nextToken = 0
	return nil
}

func (b *CommandBuffer) replayOne(op uint8, rd *serialReader, tokens []Entity) error {
	w := b.world
	switch op {
	case opNewEntity:
		token := rd.u32()
		n := int(rd.u8())
		comps := make([]Component, n)
		for i := 0; i < n; i++ {
			comps[i] = Component{packed: rd.u64()}
		}
		e, err := w.NewEntity(comps...)
		if err != nil {
			return err
		}
		tokens[token] = e
	case opNewEntityFromEntity:
		token := rd.u32()
		src := Entity{Handle(rd.u64())}
		if !w.Alive(src) {
			return nil
		}
		e, err := w.CloneEntity(src)
		if err != nil {
			return err
		}
		tokens[token] = e
	case opNewEntityFromArchetype:
		token := rd.u32()
		arch := w.Archetype(ArchetypeID(rd.u32()))
		if arch == nil {
			e, err := w.NewEntity()
			if err != nil {
				return err
			}
			tokens[token] = e
			return nil
		}
		entities, err := w.spawnInto(arch, 1)
		if err != nil {
			return err
		}
		tokens[token] = entities[0]
	case opDestroyEntity:
		e, ok := b.resolveTarget(rd.u64(), tokens)
		if !ok {
			return nil
		}
		return w.DestroyEntity(e)
	case opAddComponent:
		e, ok := b.resolveTarget(rd.u64(), tokens)
		comp := Component{packed: rd.u64()}
		if !ok {
			return nil
		}
		return w.AddComponent(e, comp)
	case opRemoveComponent:
		e, ok := b.resolveTarget(rd.u64(), tokens)
		comp := Component{packed: rd.u64()}
		if !ok {
			return nil
		}
		return w.RemoveComponent(e, comp)
	case opAddComponentValue, opSetComponentValue:
		e, ok := b.resolveTarget(rd.u64(), tokens)
		comp := Component{packed: rd.u64()}
		size := int(rd.u32())
		off := rd.skip(size)
		if !ok {
			b.destroyBuffered(comp, rd.at(off))
			return nil
		}
		if op == opAddComponentValue {
			if err := w.AddComponent(e, comp); err != nil {
				return err
			}
		}
		b.writeValue(e, comp, rd.at(off))
		b.destroyBuffered(comp, rd.at(off))
	default:
		panic(bark.AddTrace(fmt.Errorf("corrupt command stream: opcode %d", op)))
	}
	return nil
}

// resolveTarget maps raw target bits to a live entity. Tokens resolve through
// the commit-time table; entities destroyed since enqueueing drop out via the
// generation check.
func (b *CommandBuffer) resolveTarget(bits uint64, tokens []Entity) (Entity, bool) {
	var e Entity
	if bits&tempTargetFlag != 0 {
		e = tokens[uint32(bits)]
	} else {
		e = Entity{Handle(bits)}
	}
	if !b.world.Alive(e) {
		return Entity{}, false
	}
	return e, true
}

// writeValue move-constructs a buffered value into the target's column and
// bumps the column version. The component must be present.
func (b *CommandBuffer) writeValue(e Entity, comp Component, src unsafe.Pointer) {
	rec := b.world.directory.resolve(e)
	kind := comp.Kind()
	col := rec.chunk.ColumnIndex(kind, comp.ID())
	if col < 0 {
		panic(bark.AddTrace(ComponentNotFoundError{Component: comp}))
	}
	lay := rec.chunk.arch.layout[kind][col]
	row := int(rec.row)
	if kind == KindUnique {
		row = 0
	}
	dst := rec.chunk.columnPtr(kind, lay, 0, row)
	desc := globalCatalog.descriptor(comp.ID())
	if th := desc.thunks; th != nil && th.moveTo != nil {
		th.moveTo(dst, src)
	} else {
		size := comp.Size()
		copy(unsafe.Slice((*byte)(dst), size), unsafe.Slice((*byte)(src), size))
	}
	rec.chunk.bumpColumn(kind, col)
}

// destroyBuffered runs the destructor thunk on the buffer-side copy once the
// value has been replayed (or its target turned out dead).
func (b *CommandBuffer) destroyBuffered(comp Component, p unsafe.Pointer) {
	desc := globalCatalog.descriptor(comp.ID())
	if th := desc.thunks; th != nil && th.destroy != nil {
		th.destroy(p)
	}
}
