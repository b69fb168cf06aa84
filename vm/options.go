package vm

import (
	"github.com/risor-io/callframe/object"
	"github.com/rs/zerolog"
)

// Option is a configuration function for a Thread.
type Option func(*Thread)

// WithLogger sets the logger used for frame lifecycle events. Every entry
// carries the thread id. The default logger discards everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(th *Thread) {
		th.log = logger
	}
}

// WithFreeListLimit sets how many storage blocks the thread caches for reuse
// across all size classes. A limit of 0 disables caching.
func WithFreeListLimit(limit int) Option {
	return func(th *Thread) {
		if limit < 0 {
			limit = 0
		}
		th.freeList.limit = limit
	}
}

// WithMaxDepth sets the maximum length of the thread's call chain. Entering
// a frame beyond it fails with a recursion error.
func WithMaxDepth(depth int) Option {
	return func(th *Thread) {
		if depth < 1 {
			depth = 1
		}
		th.maxDepth = depth
	}
}

// WithSlotLimit caps the number of locals and stack slots the thread's live
// frames may hold at once. Creating a frame past the cap fails with a
// memory error. A limit of 0 means no cap.
func WithSlotLimit(slots int) Option {
	return func(th *Thread) {
		th.slotLimit = slots
	}
}

// WithBuiltins sets the builtins mapping used by frames whose globals do
// not carry their own "__builtins__".
func WithBuiltins(builtins object.Mapping) Option {
	return func(th *Thread) {
		th.builtins = builtins
	}
}

// WithLegacyLocalsToFast enables Frame.Absorb, the mapping to fast locals
// direction of locals synchronization. It is disabled by default because it
// races with the evaluator when called on an executing frame; trace hooks
// should write through Frame.LocalsProxy instead.
func WithLegacyLocalsToFast(enabled bool) Option {
	return func(th *Thread) {
		th.legacyLocals = enabled
	}
}

// WithTrace installs a thread-wide trace hook. Each frame entered on the
// thread gets the hook and is notified with a call event.
func WithTrace(fn TraceFunc) Option {
	return func(th *Thread) {
		th.trace = fn
	}
}
