package depot

import (
	"encoding/binary"
	"unsafe"
)

// serialBuffer is a flat byte buffer for fixed-layout payloads: query builder
// commands and deferred command-buffer opcodes. Values are little-endian; raw
// regions are carved with reserve and filled in place.
type serialBuffer struct {
	data []byte
}

func (b *serialBuffer) reset()        { b.data = b.data[:0] }
func (b *serialBuffer) bytes() []byte { return b.data }
func (b *serialBuffer) len() int      { return len(b.data) }

func (b *serialBuffer) putU8(v uint8) { b.data = append(b.data, v) }

func (b *serialBuffer) putBool(v bool) {
	if v {
		b.putU8(1)
	} else {
		b.putU8(0)
	}
}

func (b *serialBuffer) putU32(v uint32) {
	b.data = binary.LittleEndian.AppendUint32(b.data, v)
}

func (b *serialBuffer) putU64(v uint64) {
	b.data = binary.LittleEndian.AppendUint64(b.data, v)
}

// reserve appends n zero bytes and returns their offset, for payloads written
// through raw pointers (component values copied in via thunks).
func (b *serialBuffer) reserve(n int) int {
	off := len(b.data)
	b.data = append(b.data, make([]byte, n)...)
	return off
}

func (b *serialBuffer) at(off int) unsafe.Pointer {
	return unsafe.Pointer(&b.data[off])
}

// reader walks the buffer front to back during replay.
type serialReader struct {
	data   []byte
	cursor int
}

func (b *serialBuffer) reader() serialReader {
	return serialReader{data: b.data}
}

func (r *serialReader) remaining() int { return len(r.data) - r.cursor }

func (r *serialReader) u8() uint8 {
	v := r.data[r.cursor]
	r.cursor++
	return v
}

func (r *serialReader) bool() bool { return r.u8() != 0 }

func (r *serialReader) u32() uint32 {
	v := binary.LittleEndian.Uint32(r.data[r.cursor:])
	r.cursor += 4
	return v
}

func (r *serialReader) u64() uint64 {
	v := binary.LittleEndian.Uint64(r.data[r.cursor:])
	r.cursor += 8
	return v
}

// skip advances past an in-place payload region, returning its offset.
func (r *serialReader) skip(n int) int {
	off := r.cursor
	r.cursor += n
	return off
}

func (r *serialReader) at(off int) unsafe.Pointer {
	return unsafe.Pointer(&r.data[off])
}
