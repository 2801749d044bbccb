package depot

import (
	"fmt"
	"unsafe"

	"github.com/TheBitDrifter/bark"
)

const (
	// blocksPerPage bounds the in-page free-list index width.
	blocksPerPage = 62

	// blockPrefixSize reserves room at the head of every block for the page
	// back-reference, sized to keep the usable region 16-byte aligned.
	blockPrefixSize = 16

	freeSlotSentinel = ^uint32(0)
)

type sizeClass uint8

const (
	classSmall sizeClass = iota
	classLarge
)

func (c sizeClass) blockBytes() uintptr {
	if c == classSmall {
		return uintptr(Config.ChunkSizeSmall.Bytes())
	}
	return uintptr(Config.ChunkSizeLarge.Bytes())
}

func (c sizeClass) payloadBytes() uintptr {
	return c.blockBytes() - blockPrefixSize
}

// blockPrefix sits in the reserved head of every block and identifies the
// owning page in O(1). While a block is free, the first word after the prefix
// (the start of the usable region) holds the next-free slot link.
type blockPrefix struct {
	pageID uint32
	slot   uint32
	_      uint64
}

type allocatorPage struct {
	id        uint32
	class     sizeClass
	data      []byte
	freeHead  uint32
	freeCount int
	inFree    bool
}

// chunkAllocator serves fixed-size blocks in two size classes with O(1)
// alloc/free. It is a process-wide singleton with explicit init/teardown tied
// to world lifetimes; file-scope destruction order is never relied upon.
type chunkAllocator struct {
	pages     []*allocatorPage
	freePages [2][]*allocatorPage
	refs      int
	closing   bool
}

var globalAllocator *chunkAllocator

// acquireAllocator hands the singleton to a new world, creating it on the
// first acquisition.
func acquireAllocator() *chunkAllocator {
	if globalAllocator == nil {
		globalAllocator = &chunkAllocator{}
	}
	globalAllocator.refs++
	return globalAllocator
}

// release drops a world's reference. The last release flushes every page and
// retires the singleton.
func (a *chunkAllocator) release() {
	a.refs--
	if a.refs > 0 {
		return
	}
	a.closing = true
	a.flush()
	if len(a.pages) == 0 {
		globalAllocator = nil
	}
}

func (a *chunkAllocator) classFor(requested uintptr) sizeClass {
	if requested <= classSmall.payloadBytes() {
		return classSmall
	}
	if requested <= classLarge.payloadBytes() {
		return classLarge
	}
	panic(bark.AddTrace(fmt.Errorf("block request of %d bytes exceeds the large size class", requested)))
}

// alloc returns the usable region of a block whose payload holds at least
// requested bytes. The region length is the full class payload.
func (a *chunkAllocator) alloc(requested uintptr) []byte {
	if a.closing {
		panic(bark.AddTrace(fmt.Errorf("allocator is tearing down")))
	}
	class := a.classFor(requested)
	page := a.freePage(class)
	slot := page.freeHead
	base := uintptr(slot) * class.blockBytes()
	block := page.data[base : base+class.blockBytes()]

	// Pop the in-place free-list.
	next := *(*uint32)(unsafe.Pointer(&block[blockPrefixSize]))
	page.freeHead = next
	page.freeCount--
	if page.freeCount == 0 {
		a.demoteToFull(page)
	}

	prefix := (*blockPrefix)(unsafe.Pointer(&block[0]))
	prefix.pageID = page.id
	prefix.slot = slot
	return block[blockPrefixSize:]
}

// free returns a block's usable region to its page, decoded through the
// reserved prefix.
func (a *chunkAllocator) free(usable []byte) {
	prefix := (*blockPrefix)(unsafe.Add(unsafe.Pointer(&usable[0]), -blockPrefixSize))
	page := a.pages[prefix.pageID]
	base := uintptr(prefix.slot) * page.class.blockBytes()
	block := page.data[base : base+page.class.blockBytes()]

	*(*uint32)(unsafe.Pointer(&block[blockPrefixSize])) = page.freeHead
	page.freeHead = prefix.slot
	page.freeCount++
	if !page.inFree {
		page.inFree = true
		a.freePages[page.class] = append(a.freePages[page.class], page)
	}
	if a.closing {
		a.flush()
		if len(a.pages) == 0 {
			globalAllocator = nil
		}
	}
}

// flush releases pages with no live blocks. Page ids are stable, so released
// slots stay nil in the page table.
func (a *chunkAllocator) flush() {
	for i, page := range a.pages {
		if page == nil || page.freeCount != blocksPerPage {
			continue
		}
		a.pages[i] = nil
		a.removeFromFree(page)
	}
	live := 0
	for _, page := range a.pages {
		if page != nil {
			live++
		}
	}
	if live == 0 {
		a.pages = a.pages[:0]
	}
}

func (a *chunkAllocator) freePage(class sizeClass) *allocatorPage {
	list := a.freePages[class]
	if len(list) > 0 {
		return list[0]
	}
	page := &allocatorPage{
		id:        uint32(len(a.pages)),
		class:     class,
		data:      make([]byte, uintptr(blocksPerPage)*class.blockBytes()),
		freeCount: blocksPerPage,
		inFree:    true,
	}
	// Thread every slot onto the free-list in index order.
	for slot := 0; slot < blocksPerPage; slot++ {
		next := uint32(slot + 1)
		if slot == blocksPerPage-1 {
			next = freeSlotSentinel
		}
		base := uintptr(slot) * class.blockBytes()
		*(*uint32)(unsafe.Pointer(&page.data[base+blockPrefixSize])) = next
	}
	page.freeHead = 0
	a.pages = append(a.pages, page)
	a.freePages[class] = append(a.freePages[class], page)
	return page
}

func (a *chunkAllocator) demoteToFull(page *allocatorPage) {
	page.inFree = false
	a.removeFromFree(page)
}

func (a *chunkAllocator) removeFromFree(page *allocatorPage) {
	list := a.freePages[page.class]
	for i, p := range list {
		if p == page {
			a.freePages[page.class] = append(list[:i], list[i+1:]...)
			return
		}
	}
}
