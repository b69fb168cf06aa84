// Package vm implements the call-frame machinery of the bytecode
// interpreter: frame records with their combined locals and value-stack
// storage, per-frame block stacks, the synchronization between fast locals
// and name-keyed mappings, trace hooks, and the per-thread lifecycle and
// free-list allocation of frames.
//
// A Thread owns one call chain. The evaluator asks the Thread for a frame on
// every call, enters it, drives it through Step, Push/Pop and the block
// stack, and leaves it on return. Frames that yield are detached to a
// generator and resumed later with the same position, stack and blocks.
//
// Nothing in this package is safe for concurrent use. A Thread and its
// frames belong to a single goroutine; trace hooks run synchronously on it.
package vm

const (
	// MaxBlocks is the capacity of a frame's block stack. The compiler
	// guarantees that no code body nests deeper than this.
	MaxBlocks = 20

	// MaxStackDepth is the largest value-stack depth a code body may declare.
	MaxStackDepth = 1024

	// MaxFrameDepth is the default limit on the length of a call chain.
	MaxFrameDepth = 1024

	// DefaultFreeListLimit is the default number of storage blocks a
	// thread keeps cached for reuse.
	DefaultFreeListLimit = 200
)
