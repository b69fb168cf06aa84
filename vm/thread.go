package vm

import (
	"sort"

	"github.com/gofrs/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/risor-io/callframe/errz"
	"github.com/risor-io/callframe/object"
	"github.com/rs/zerolog"
)

// Thread owns one call chain of frames together with the registry of every
// live frame created on it and the free list their storage comes from.
// Destruction order is decided here rather than by the garbage collector:
// a frame's storage is recycled as soon as nothing in the chain, a
// generator or an explicit Retain needs it.
type Thread struct {
	id       uuid.UUID
	log      zerolog.Logger
	current  *Frame
	depth    int
	live     map[*Frame]struct{}
	nextID   uint64
	freeList *FreeList
	builtins object.Mapping
	trace    TraceFunc

	maxDepth     int
	slotLimit    int
	slotsInUse   int
	legacyLocals bool
	closed       bool
}

// NewThread creates a thread with an empty call chain.
func NewThread(options ...Option) *Thread {
	th := &Thread{
		id:       uuid.Must(uuid.NewV4()),
		log:      zerolog.Nop(),
		live:     map[*Frame]struct{}{},
		freeList: newFreeList(DefaultFreeListLimit),
		builtins: object.NewMap(nil),
		maxDepth: MaxFrameDepth,
	}
	for _, opt := range options {
		opt(th)
	}
	th.log = th.log.With().Str("thread", th.id.String()).Logger()
	return th
}

// ID returns the thread's unique identifier.
func (th *Thread) ID() uuid.UUID {
	return th.id
}

// Current returns the innermost executing frame, or nil.
func (th *Thread) Current() *Frame {
	return th.current
}

// Depth returns the length of the call chain.
func (th *Thread) Depth() int {
	return th.depth
}

// FreeList returns the thread's storage cache.
func (th *Thread) FreeList() *FreeList {
	return th.freeList
}

// LiveFrames returns the number of frames that have not been finalized.
func (th *Thread) LiveFrames() int {
	return len(th.live)
}

// SetTrace sets the hook installed on frames entered from now on. Frames
// already on the chain keep their own hooks.
func (th *Thread) SetTrace(fn TraceFunc) {
	th.trace = fn
}

// Enter pushes f onto the call chain, linking it to the current frame, and
// marks it executing. Generator frames are resumed the same way and carry
// StateChain until they are suspended or left. If the
// thread has a trace hook it is installed on f and sent a call event; a
// failing hook leaves f off the chain and its error is returned.
func (th *Thread) Enter(f *Frame) error {
	if f.thread != th {
		return errz.RuntimeErrorf("frame %d belongs to another thread", f.id)
	}
	if err := f.checkLive(); err != nil {
		return err
	}
	if f.executing {
		return errz.RuntimeErrorf("%s is already executing", f.code.Name())
	}
	if th.depth >= th.maxDepth {
		return errz.Errorf(errz.ErrRecursion, "maximum call depth of %d exceeded", th.maxDepth).
			WithStack(th.Stack())
	}
	f.setBack(th.current)
	f.state = StateChain
	th.current = f
	th.depth++
	f.executing = true
	f.returned = false
	if th.trace != nil {
		if err := f.SetTrace(th.trace); err != nil {
			th.pop(f)
			return err
		}
		if err := f.callTrace(EventCall, nil); err != nil {
			th.pop(f)
			return err
		}
	}
	return nil
}

// Leave pops f, which must be the innermost frame, off the call chain after
// it returned result or raised past its last handler. The trace hook is sent
// a return event. Unless a generator owns f or it is retained, f is
// finalized and its storage recycled.
func (th *Thread) Leave(f *Frame, result object.Object) error {
	if th.current != f || f == nil {
		return errz.RuntimeErrorf("only the innermost frame can be left")
	}
	traceErr := f.callTrace(EventReturn, result)
	th.pop(f)
	f.returned = true
	if f.gen == nil && f.refs == 0 {
		if err := th.finalize(f); err != nil {
			return err
		}
	}
	return traceErr
}

// pop removes f from the top of the chain without finalizing it. A
// generator's frame goes back to its generator.
func (th *Thread) pop(f *Frame) {
	f.executing = false
	if f.gen != nil {
		f.state = StateGenerator
	}
	th.current = f.back
	th.depth--
}

// Stack describes the call chain, innermost frame first.
func (th *Thread) Stack() []errz.StackFrame {
	var stack []errz.StackFrame
	for f := th.current; f != nil; f = f.back {
		stack = append(stack, errz.StackFrame{
			Function: f.code.Name(),
			Location: f.Location(),
		})
	}
	return stack
}

// ThreadStats summarizes a thread's frames and storage.
type ThreadStats struct {
	ID         string        `json:"id"`
	Depth      int           `json:"depth"`
	LiveFrames int           `json:"live_frames"`
	SlotsInUse int           `json:"slots_in_use"`
	SlotLimit  int           `json:"slot_limit"`
	FreeList   FreeListStats `json:"free_list"`
}

// Stats returns a summary of the thread's frames and free list.
func (th *Thread) Stats() ThreadStats {
	return ThreadStats{
		ID:         th.id.String(),
		Depth:      th.depth,
		LiveFrames: len(th.live),
		SlotsInUse: th.slotsInUse,
		SlotLimit:  th.slotLimit,
		FreeList:   th.freeList.Stats(),
	}
}

// ClearFreeList drops the cached storage blocks and returns how many were
// released.
func (th *Thread) ClearFreeList() int {
	n := th.freeList.Clear()
	th.log.Debug().Int("released", n).Msg("cleared frame free list")
	return n
}

// Close tears the thread down. Generator-owned frames are closed through
// their owner so pending cleanup handlers run; every other live frame is
// finalized, innermost first. Errors from all frames are combined.
func (th *Thread) Close() error {
	if th.closed {
		return nil
	}
	th.closed = true
	frames := make([]*Frame, 0, len(th.live))
	for f := range th.live {
		frames = append(frames, f)
	}
	sort.Slice(frames, func(i, j int) bool {
		return frames[i].id > frames[j].id
	})
	for f := th.current; f != nil; f = f.back {
		f.executing = false
		if f.gen != nil {
			f.state = StateGenerator
		}
	}
	th.current = nil
	th.depth = 0

	var result *multierror.Error
	for _, f := range frames {
		if f.state == StateFinalized {
			continue
		}
		if f.gen != nil {
			if err := f.gen.Close(); err != nil {
				result = multierror.Append(result, err)
			}
		}
		if f.state != StateFinalized {
			if err := th.finalize(f); err != nil {
				result = multierror.Append(result, err)
			}
		}
	}
	th.ClearFreeList()
	th.log.Debug().Int("frames", len(frames)).Msg("thread closed")
	return result.ErrorOrNil()
}

// reserve accounts for n more slots in use, failing if the thread's slot
// budget would be exceeded.
func (th *Thread) reserve(n int) *errz.StructuredError {
	if th.slotLimit > 0 && th.slotsInUse+n > th.slotLimit {
		return errz.Errorf(errz.ErrMemory, "cannot allocate %d frame slots (%d of %d in use)",
			n, th.slotsInUse, th.slotLimit)
	}
	th.slotsInUse += n
	return nil
}

func (th *Thread) release(n int) {
	th.slotsInUse -= n
}

// recycle hands a cleared storage block back to the free list.
func (th *Thread) recycle(s *storage) {
	for i := range s.slots {
		s.slots[i] = nil
	}
	if !th.freeList.put(s) {
		th.log.Trace().Int("size", s.size()).Msg("free list full, released frame storage")
	}
}
