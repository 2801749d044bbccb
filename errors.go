package depot

import "fmt"

// LockedWorldError reports a structural mutation attempted while cursors hold
// the world lock. Use a CommandBuffer or the EnqueueX methods instead.
type LockedWorldError struct{}

func (e LockedWorldError) Error() string {
	return "world is currently locked"
}

// InvalidEntityError reports an operation on a handle whose generation no
// longer matches its directory slot.
type InvalidEntityError struct {
	Entity Entity
}

func (e InvalidEntityError) Error() string {
	return fmt.Sprintf("entity %d (gen %d) is not alive", e.Entity.Index(), e.Entity.Generation())
}

// ComponentExistsError reports adding a component already present on an entity.
type ComponentExistsError struct {
	Component Component
	Current   string
}

func (e ComponentExistsError) Error() string {
	return fmt.Sprintf("component %d already exists on entity; current components: %s", e.Component.ID(), e.Current)
}

// ComponentNotFoundError reports removing or reading a component absent from
// the entity's archetype.
type ComponentNotFoundError struct {
	Component Component
}

func (e ComponentNotFoundError) Error() string {
	return fmt.Sprintf("component %d does not exist on entity", e.Component.ID())
}

// NameCollisionError reports assigning a name already held by another entity.
type NameCollisionError struct {
	Name  string
	Owner Entity
}

func (e NameCollisionError) Error() string {
	return fmt.Sprintf("entity name %q already taken by entity %d", e.Name, e.Owner.Index())
}

// ArchetypeFullError reports a signature exceeding the per-kind component cap.
type ArchetypeFullError struct {
	Count int
}

func (e ArchetypeFullError) Error() string {
	return fmt.Sprintf("archetype component count %d exceeds cap %d", e.Count, MaxComponentsPerKind)
}

// StructuralLockError reports a row-count-changing operation on a chunk whose
// structural lock is held.
type StructuralLockError struct {
	Depth int
}

func (e StructuralLockError) Error() string {
	return fmt.Sprintf("structural change attempted while chunk lock depth is %d", e.Depth)
}
