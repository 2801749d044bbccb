package depot

import (
	"testing"
)

// TestAllocatorSizeClasses tests block class selection and payload sizes
func TestAllocatorSizeClasses(t *testing.T) {
	tests := []struct {
		name      string
		requested uintptr
		wantBytes uintptr
	}{
		{
			name:      "Small request rounds to small class",
			requested: 128,
			wantBytes: classSmall.payloadBytes(),
		},
		{
			name:      "Exact small payload stays small",
			requested: classSmall.payloadBytes(),
			wantBytes: classSmall.payloadBytes(),
		},
		{
			name:      "Above small promotes to large",
			requested: classSmall.payloadBytes() + 1,
			wantBytes: classLarge.payloadBytes(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alloc := acquireAllocator()
			defer alloc.release()

			block := alloc.alloc(tt.requested)
			if uintptr(len(block)) != tt.wantBytes {
				t.Errorf("block payload: %d, want %d", len(block), tt.wantBytes)
			}
			alloc.free(block)
		})
	}
}

// TestAllocatorOversizedRequestPanics tests the large-class precondition
func TestAllocatorOversizedRequestPanics(t *testing.T) {
	alloc := acquireAllocator()
	defer alloc.release()

	defer func() {
		if recover() == nil {
			t.Error("expected panic for request above the large class")
		}
	}()
	alloc.alloc(classLarge.blockBytes() * 2)
}

// TestAllocatorPagePromotion tests the free/full page transitions
func TestAllocatorPagePromotion(t *testing.T) {
	alloc := acquireAllocator()
	defer alloc.release()

	blocks := make([][]byte, 0, blocksPerPage+1)
	for i := 0; i < blocksPerPage; i++ {
		blocks = append(blocks, alloc.alloc(64))
	}
	if len(alloc.pages) != 1 {
		t.Fatalf("pages after filling one: %d, want 1", len(alloc.pages))
	}
	if len(alloc.freePages[classSmall]) != 0 {
		t.Errorf("full page still listed as free")
	}

	// One more block forces a second page.
	blocks = append(blocks, alloc.alloc(64))
	if len(alloc.pages) != 2 {
		t.Fatalf("pages after overflow: %d, want 2", len(alloc.pages))
	}

	// Freeing a block from the full page returns it to the free list.
	alloc.free(blocks[0])
	found := false
	for _, p := range alloc.freePages[classSmall] {
		if p.id == 0 {
			found = true
		}
	}
	if !found {
		t.Error("page not returned to free list after free")
	}

	for _, b := range blocks[1:] {
		alloc.free(b)
	}
}

// TestAllocatorBlockReuse tests that freed blocks are handed out again
func TestAllocatorBlockReuse(t *testing.T) {
	alloc := acquireAllocator()
	defer alloc.release()

	first := alloc.alloc(64)
	firstPtr := &first[0]
	alloc.free(first)

	second := alloc.alloc(64)
	if &second[0] != firstPtr {
		t.Error("freed block was not reused by the next allocation")
	}
	alloc.free(second)
}

// TestAllocatorFlush tests that empty pages are released
func TestAllocatorFlush(t *testing.T) {
	alloc := acquireAllocator()
	defer alloc.release()

	block := alloc.alloc(64)
	alloc.free(block)
	alloc.flush()

	for _, p := range alloc.pages {
		if p != nil {
			t.Error("empty page survived flush")
		}
	}
}

// TestAllocatorTeardown tests the refcounted singleton lifecycle
func TestAllocatorTeardown(t *testing.T) {
	a1 := acquireAllocator()
	a2 := acquireAllocator()
	if a1 != a2 {
		t.Fatal("acquire did not return the shared singleton")
	}
	a1.release()
	if globalAllocator == nil {
		t.Fatal("singleton retired while references remain")
	}
	a2.release()
	if globalAllocator != nil {
		t.Fatal("singleton survived the last release")
	}
}
