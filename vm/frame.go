package vm

import (
	"fmt"

	"github.com/risor-io/callframe/bytecode"
	"github.com/risor-io/callframe/errz"
	"github.com/risor-io/callframe/object"
)

// State records who is responsible for a frame's lifetime.
type State uint8

const (
	// StateChain frames belong to the thread's call chain (or to their
	// creator before they are entered). A generator's frame is in this
	// state while it executes, from Enter until it is suspended or left.
	StateChain State = iota
	// StateGenerator frames belong to a generator and are not executing:
	// not yet started, suspended between resumptions, or finished but not
	// yet finalized.
	StateGenerator
	// StateFinalized frames have released their storage. Every operation
	// on them fails.
	StateFinalized
)

func (s State) String() string {
	switch s {
	case StateChain:
		return "chain"
	case StateGenerator:
		return "generator"
	case StateFinalized:
		return "finalized"
	default:
		return "unknown"
	}
}

// Owner is a generator or coroutine that holds a suspended frame.
type Owner interface {
	// Close runs the frame's pending cleanup handlers and finalizes it.
	Close() error
}

// Frame is the runtime record of one activation of a code body.
type Frame struct {
	id     uint64
	thread *Thread
	back   *Frame
	// dependents counts live frames whose back link points here.
	dependents int
	code   *bytecode.Code
	state  State

	globals  object.Mapping
	builtins object.Mapping
	locals   object.Mapping
	proxy    *LocalsProxy

	// mem holds nslots fixed slots followed by the value stack.
	// stackTop is the absolute index of the next free stack slot.
	mem      *storage
	nslots   int
	stackTop int

	lasti      int
	prevOffset int
	lineno     int
	lastLine   int

	trace        TraceFunc
	traceLines   bool
	traceOpcodes bool

	blocks [MaxBlocks]Block
	iblock int

	executing bool
	returned  bool
	refs      int
	gen       Owner
}

// ID returns the frame's serial number, unique within its thread.
func (f *Frame) ID() uint64 {
	return f.id
}

// Thread returns the thread the frame was created on.
func (f *Frame) Thread() *Thread {
	return f.thread
}

// Back returns the caller's frame, or nil for the outermost frame.
func (f *Frame) Back() *Frame {
	return f.back
}

// Code returns the code body the frame executes.
func (f *Frame) Code() *bytecode.Code {
	return f.code
}

// Globals returns the frame's globals mapping.
func (f *Frame) Globals() object.Mapping {
	return f.globals
}

// Builtins returns the frame's builtins mapping.
func (f *Frame) Builtins() object.Mapping {
	return f.builtins
}

// State returns the frame's ownership state.
func (f *Frame) State() State {
	return f.state
}

// Executing returns true while control is inside the frame.
func (f *Frame) Executing() bool {
	return f.executing
}

// Generator returns the generator holding the frame, if any.
func (f *Frame) Generator() Owner {
	return f.gen
}

// IsFinalized returns true once the frame has released its storage.
func (f *Frame) IsFinalized() bool {
	return f.state == StateFinalized
}

// InstructionOffset returns the offset of the instruction about to execute
// or just executed.
func (f *Frame) InstructionOffset() int {
	return f.lasti
}

// SetInstructionOffset moves the frame to the given offset without trace
// notifications. The evaluator uses it for jumps and handler dispatch.
func (f *Frame) SetInstructionOffset(offset int) {
	f.mustBeLive()
	f.lasti = offset
}

func (f *Frame) String() string {
	return fmt.Sprintf("frame(%s, line %d, %s)", f.code.Name(), f.CurrentLine(), f.state)
}

// mustBeLive panics if the frame has been finalized. It guards the hot-path
// operations the evaluator performs, where a finalized frame can only mean
// a runtime bug.
func (f *Frame) mustBeLive() {
	if f.state == StateFinalized {
		panic(errz.InvalidFramef("frame %d (%s) has been finalized", f.id, f.code.Name()))
	}
}

// setBack links f to caller, keeping the callers' dependent counts current.
func (f *Frame) setBack(caller *Frame) {
	if f.back != nil {
		f.back.dependents--
	}
	f.back = caller
	if caller != nil {
		caller.dependents++
	}
}

// checkLive returns an error if the frame has been finalized.
func (f *Frame) checkLive() error {
	if f.state == StateFinalized {
		return errz.InvalidFramef("frame %d (%s) has been finalized", f.id, f.code.Name())
	}
	return nil
}

// FrameState is a copy of the parts of a frame that must survive a
// suspension unchanged.
type FrameState struct {
	Offset   int
	StackTop int
	Stack    []object.Object
	Blocks   []Block
}

// Snapshot copies the frame's position, value stack and block stack.
func (f *Frame) Snapshot() FrameState {
	f.mustBeLive()
	stack := make([]object.Object, f.StackDepth())
	copy(stack, f.mem.slots[f.nslots:f.stackTop])
	return FrameState{
		Offset:   f.lasti,
		StackTop: f.stackTop,
		Stack:    stack,
		Blocks:   f.Blocks(),
	}
}
