package depot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestChunkPartitionInvariant tests that disabled rows stay in [0, firstEnabled)
// and enabled rows in [firstEnabled, count) through removals and toggles.
func TestChunkPartitionInvariant(t *testing.T) {
	w := Factory.NewWorld()
	defer w.Close()
	pos := FactoryNewComponent[Position]()

	entities, err := w.NewEntities(10, pos.Component)
	require.NoError(t, err)

	for _, e := range entities[:4] {
		require.NoError(t, w.SetEnabled(e, false))
	}
	rec := w.directory.resolve(entities[5])
	require.NotNil(t, rec)
	ch := rec.chunk

	checkPartition := func() {
		t.Helper()
		for row := 0; row < ch.Count(); row++ {
			e := ch.EntityAt(row)
			r := w.directory.resolve(e)
			require.NotNil(t, r)
			assert.Equal(t, uint32(row), r.row, "entity column and directory must agree")
			assert.Equal(t, row < ch.FirstEnabled(), r.disabled)
		}
		assert.Equal(t, ch.Count()-ch.FirstEnabled(), ch.EnabledCount())
	}
	checkPartition()
	assert.Equal(t, 4, ch.FirstEnabled())

	// Destroy one disabled and one enabled entity.
	require.NoError(t, w.DestroyEntity(entities[0]))
	checkPartition()
	assert.Equal(t, 3, ch.FirstEnabled())
	require.NoError(t, w.DestroyEntity(entities[7]))
	checkPartition()
	assert.Equal(t, 8, ch.Count())

	// Re-enable a disabled entity.
	require.NoError(t, w.SetEnabled(entities[1], true))
	checkPartition()
	assert.Equal(t, 2, ch.FirstEnabled())
}

// TestEnableDisableRoundTrip tests the enable(e,false);enable(e,true) no-op law
func TestEnableDisableRoundTrip(t *testing.T) {
	w := Factory.NewWorld()
	defer w.Close()
	pos := FactoryNewComponent[Position]()

	entities, err := w.NewEntities(5, pos.Component)
	require.NoError(t, err)
	target := entities[2]
	pos.SetOnEntity(w, target, Position{X: 9})

	require.NoError(t, w.SetEnabled(target, false))
	assert.False(t, w.Enabled(target))
	require.NoError(t, w.SetEnabled(target, true))
	assert.True(t, w.Enabled(target))
	assert.Equal(t, Position{X: 9}, *pos.ReadFromEntity(w, target))
}

// TestChunkOverflowAllocatesSibling tests the capacity boundary behavior
func TestChunkOverflowAllocatesSibling(t *testing.T) {
	w := Factory.NewWorld()
	defer w.Close()
	pos := FactoryNewComponent[Position]()

	probe, err := w.NewEntity(pos.Component)
	require.NoError(t, err)
	arch := w.ArchetypeOf(probe)
	capacity := arch.Capacity()
	require.Greater(t, capacity, 1)

	_, err = w.NewEntities(capacity-1, pos.Component)
	require.NoError(t, err)
	require.Len(t, arch.Chunks(), 1, "chunk at capacity-1 accepts the last row")

	_, err = w.NewEntity(pos.Component)
	require.NoError(t, err)
	assert.Len(t, arch.Chunks(), 2, "the next row lands in a fresh chunk")
}

// TestChunkChangedVersions tests the wrap-aware change comparison
func TestChunkChangedVersions(t *testing.T) {
	w := Factory.NewWorld()
	defer w.Close()
	pos := FactoryNewComponent[Position]()

	e, err := w.NewEntity(pos.Component)
	require.NoError(t, err)
	ch := w.directory.resolve(e).chunk
	col := ch.ColumnIndex(KindGeneric, pos.ID())
	require.GreaterOrEqual(t, col, 0)

	since := w.Version()
	assert.False(t, ch.Changed(KindGeneric, col, since), "no write since observation")

	pos.MutView(ch)
	assert.True(t, ch.Changed(KindGeneric, col, since), "mutable view bumps the column")

	assert.True(t, ch.Changed(KindGeneric, col, 0), "version 0 always reads as changed")

	silentSince := w.Version()
	pos.MutViewSilent(ch)
	assert.False(t, ch.Changed(KindGeneric, col, silentSince), "silent view leaves the column version alone")
}

// TestStructuralLockViolation tests that locked chunks refuse row changes
func TestStructuralLockViolation(t *testing.T) {
	w := Factory.NewWorld()
	defer w.Close()
	pos := FactoryNewComponent[Position]()

	e, err := w.NewEntity(pos.Component)
	require.NoError(t, err)
	ch := w.directory.resolve(e).chunk

	ch.lock()
	defer ch.unlock()
	assert.Panics(t, func() { ch.removeRow(0) })
}

// TestChunkDyingAndRevive tests the Live -> Dying -> revived transitions
func TestChunkDyingAndRevive(t *testing.T) {
	w := Factory.NewWorld()
	defer w.Close()
	pos := FactoryNewComponent[Position]()

	e, err := w.NewEntity(pos.Component)
	require.NoError(t, err)
	arch := w.ArchetypeOf(e)
	ch := w.directory.resolve(e).chunk

	require.NoError(t, w.DestroyEntity(e))
	assert.True(t, ch.dying, "draining the chunk starts the countdown")
	assert.Equal(t, Config.ChunkLifespan, ch.lifespan)

	// Partially tick, then revive: countdown resets fully.
	w.Update()
	w.Update()
	require.Less(t, ch.lifespan, Config.ChunkLifespan)
	_, err = w.NewEntity(pos.Component)
	require.NoError(t, err)
	assert.False(t, ch.dying)

	require.Len(t, arch.Chunks(), 1, "revived chunk is still the archetype's only chunk")
}

// TestSoAColumnAccess tests struct-of-spans views, gather, and scatter
func TestSoAColumnAccess(t *testing.T) {
	w := Factory.NewWorld()
	defer w.Close()
	soa := FactoryNewSoAComponent[Position]()

	entities, err := w.NewEntities(4, soa.Component)
	require.NoError(t, err)
	ch := w.directory.resolve(entities[0]).chunk

	view := soa.MutView(ch)
	require.Equal(t, 4, view.Rows())
	require.Equal(t, 3, view.Members())

	xs := SoAMember[float32](view, 0)
	ys := SoAMember[float32](view, 1)
	for i := range xs {
		xs[i] = float32(i)
		ys[i] = float32(i * 10)
	}

	got := soa.Gather(view, 2)
	assert.Equal(t, Position{X: 2, Y: 20}, got)

	soa.Scatter(view, 3, Position{X: 7, Y: 8, Z: 9})
	assert.Equal(t, float32(7), xs[3])
	assert.Equal(t, Position{X: 7, Y: 8, Z: 9}, soa.Gather(view, 3))
}
