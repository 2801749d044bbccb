package depot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDeferredStructuralChange tests the S-style flow: removals scheduled
// during iteration apply only at commit, splitting the archetype population.
func TestDeferredStructuralChange(t *testing.T) {
	w := Factory.NewWorld()
	defer w.Close()
	pos := FactoryNewComponent[Position]()
	vel := FactoryNewComponent[Velocity]()

	entities, err := w.NewEntities(1000, pos.Component, vel.Component)
	require.NoError(t, err)
	for i, e := range entities {
		pos.SetOnEntity(w, e, Position{X: float32(i)})
	}
	source := w.ArchetypeOf(entities[0])

	buf := Factory.NewCommandBuffer(w)
	query := Factory.NewQuery().All(pos.Component)
	cursor := Factory.NewCursor(query, w)
	scheduled := 0
	for cursor.Next() {
		if pos.ReadFromCursor(cursor).X > 500 {
			buf.RemoveComponent(cursor.CurrentEntity(), vel.Component)
			scheduled++
		}
	}
	require.Equal(t, 499, scheduled)
	require.Equal(t, 1000, source.EntityCount(), "no mutation is visible during iteration")

	require.NoError(t, buf.Commit())
	assert.Equal(t, 1000-scheduled, source.EntityCount())
	assert.Zero(t, buf.Len(), "commit clears the buffer")

	posOnly := Factory.NewQuery().All(pos.Component).None(vel.Component)
	assert.Equal(t, scheduled, Factory.NewCursor(posOnly, w).TotalMatched(),
		"a pos-only archetype holds the stripped entities")
}

// TestCommandBufferTokens tests temporary entities targeted by later commands
func TestCommandBufferTokens(t *testing.T) {
	w := Factory.NewWorld()
	defer w.Close()
	pos := FactoryNewComponent[Position]()
	vel := FactoryNewComponent[Velocity]()

	buf := Factory.NewCommandBuffer(w)
	token := buf.NewEntity(pos.Component)
	QueueSetComponent(buf, token, pos, Position{X: 11})
	buf.AddComponent(token, vel.Component)
	QueueAddComponent(buf, token, FactoryNewComponent[Health](), Health{Current: 3, Max: 9})
	require.NoError(t, buf.Commit())

	hp := FactoryNewComponent[Health]()
	query := Factory.NewQuery().All(pos.Component, vel.Component, hp.Component)
	cursor := Factory.NewCursor(query, w)
	found := 0
	for cursor.Next() {
		found++
		assert.Equal(t, float32(11), pos.ReadFromCursor(cursor).X)
		assert.Equal(t, Health{Current: 3, Max: 9}, *hp.ReadFromCursor(cursor))
	}
	assert.Equal(t, 1, found)
}

// TestCommandBufferCreateFromArchetype tests the archetype-id create variant
func TestCommandBufferCreateFromArchetype(t *testing.T) {
	w := Factory.NewWorld()
	defer w.Close()
	pos := FactoryNewComponent[Position]()
	vel := FactoryNewComponent[Velocity]()

	seed, err := w.NewEntity(pos.Component, vel.Component)
	require.NoError(t, err)
	arch := w.ArchetypeOf(seed)

	buf := Factory.NewCommandBuffer(w)
	buf.NewEntityFromArchetype(arch.ID())
	require.NoError(t, buf.Commit())
	assert.Equal(t, 2, arch.EntityCount())
}

// TestCommandBufferClone tests the create-from-entity variant
func TestCommandBufferClone(t *testing.T) {
	w := Factory.NewWorld()
	defer w.Close()
	pos := FactoryNewComponent[Position]()

	src, err := w.NewEntity(pos.Component)
	require.NoError(t, err)
	pos.SetOnEntity(w, src, Position{Y: 4})

	buf := Factory.NewCommandBuffer(w)
	buf.NewEntityFrom(src)
	require.NoError(t, buf.Commit())
	assert.Equal(t, 2, w.ArchetypeOf(src).EntityCount())
}

// TestCommandBufferDeadTargetSkipped tests the recycled-generation guard
func TestCommandBufferDeadTargetSkipped(t *testing.T) {
	w := Factory.NewWorld()
	defer w.Close()
	pos := FactoryNewComponent[Position]()
	vel := FactoryNewComponent[Velocity]()

	victim, err := w.NewEntity(pos.Component)
	require.NoError(t, err)

	buf := Factory.NewCommandBuffer(w)
	buf.AddComponent(victim, vel.Component)
	require.NoError(t, w.DestroyEntity(victim))
	require.NoError(t, buf.Commit(), "commands against dead handles drop out")
}

// TestCommandBufferDestroyThenOps tests ordering within one buffer
func TestCommandBufferDestroyThenOps(t *testing.T) {
	w := Factory.NewWorld()
	defer w.Close()
	pos := FactoryNewComponent[Position]()
	vel := FactoryNewComponent[Velocity]()

	e, err := w.NewEntity(pos.Component)
	require.NoError(t, err)

	buf := Factory.NewCommandBuffer(w)
	buf.DestroyEntity(e)
	buf.AddComponent(e, vel.Component)
	require.NoError(t, buf.Commit())
	assert.False(t, w.Alive(e))
}

// TestEmptyCommitIsNoOp tests the commit(empty) law
func TestEmptyCommitIsNoOp(t *testing.T) {
	w := Factory.NewWorld()
	defer w.Close()
	pos := FactoryNewComponent[Position]()

	_, err := w.NewEntities(3, pos.Component)
	require.NoError(t, err)
	before := w.ArchetypeCount()

	buf := Factory.NewCommandBuffer(w)
	require.NoError(t, buf.Commit())
	assert.Equal(t, before, w.ArchetypeCount())
	assert.Equal(t, 3, Factory.NewCursor(Factory.NewQuery().All(pos.Component), w).TotalMatched())
}

// TestCommitWhileLockedRejected tests the lock guard on replay
func TestCommitWhileLockedRejected(t *testing.T) {
	w := Factory.NewWorld()
	defer w.Close()
	pos := FactoryNewComponent[Position]()

	_, err := w.NewEntities(2, pos.Component)
	require.NoError(t, err)

	buf := Factory.NewCommandBuffer(w)
	buf.NewEntity(pos.Component)

	cursor := Factory.NewCursor(Factory.NewQuery().All(pos.Component), w)
	cursor.Initialize()
	assert.ErrorAs(t, buf.Commit(), &LockedWorldError{})
	cursor.Reset()
	assert.NoError(t, buf.Commit())
}

// TestLifecycleThunks tests construct/destroy hooks on row add and removal
func TestLifecycleThunks(t *testing.T) {
	type Tracked struct{ V int32 }
	constructed, destroyed := 0, 0
	tracked := FactoryNewComponentWithLifecycle[Tracked](Lifecycle[Tracked]{
		Construct: func(p *Tracked) { constructed++; p.V = -1 },
		Destroy:   func(p *Tracked) { destroyed++ },
	})

	w := Factory.NewWorld()
	defer w.Close()

	e, err := w.NewEntity(tracked.Component)
	require.NoError(t, err)
	assert.Equal(t, 1, constructed, "construct thunk runs on addRow")
	assert.Equal(t, int32(-1), tracked.ReadFromEntity(w, e).V, "constructor value lands in the column")

	require.NoError(t, w.DestroyEntity(e))
	assert.Equal(t, 1, destroyed, "destroy thunk runs on removeRow")
}
