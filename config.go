package depot

import "github.com/c2h5oh/datasize"

// Config holds global tunables for the storage engine. Values are read when
// worlds and archetypes are created; changing them mid-world is not supported.
var Config = config{
	ChunkSizeSmall:    8 * datasize.KB,
	ChunkSizeLarge:    16 * datasize.KB,
	MaxRowsPerChunk:   1024,
	ChunkLifespan:     8,
	ArchetypeLifespan: 8,
	ChunkBatchSize:    4,
	DefragBudget:      128,
}

type config struct {
	// ChunkSizeSmall and ChunkSizeLarge are the two allocator size classes.
	ChunkSizeSmall datasize.ByteSize
	ChunkSizeLarge datasize.ByteSize

	// MaxRowsPerChunk clamps the solved row capacity of any archetype.
	MaxRowsPerChunk uint16

	// ChunkLifespan and ArchetypeLifespan are the tick countdowns between
	// becoming empty and being torn down.
	ChunkLifespan     uint8
	ArchetypeLifespan uint8

	// ChunkBatchSize is how many chunks a cursor batches between prefetch
	// touches of the upcoming batch.
	ChunkBatchSize int

	// DefragBudget is the default per-Update row budget for defragmentation.
	DefragBudget int

	// Profiler, when set, receives scope markers around query passes and
	// command-buffer commits.
	Profiler ProfilerHook
}
