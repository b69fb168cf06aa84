package vm

import (
	"github.com/risor-io/callframe/bytecode"
	"github.com/risor-io/callframe/errz"
	"github.com/risor-io/callframe/object"
)

// NewFrame creates a frame for code. Globals must be a mapping; locals, if
// given, must be one too and becomes the primary locals store of code that
// does not use fast locals. Storage for the fixed slots and value stack is
// taken from the free list when a block of the right size is cached.
//
// The frame starts at the code's entry point with every fast local unbound,
// an empty value stack and an empty block stack. It is not on the call chain
// until it is passed to Enter.
func (th *Thread) NewFrame(code *bytecode.Code, globals object.Object, locals object.Object) (*Frame, error) {
	if th.closed {
		return nil, errz.RuntimeErrorf("thread has been closed")
	}
	if code == nil {
		return nil, errz.TypeErrorf("frame requires a code object")
	}
	globalsMap, ok := object.AsMapping(globals)
	if !ok {
		return nil, errz.TypeErrorf("globals must be a mapping (%s given)", object.TypeName(globals))
	}
	var localsArg object.Mapping
	if locals != nil {
		if localsArg, ok = object.AsMapping(locals); !ok {
			return nil, errz.TypeErrorf("locals must be a mapping (%s given)", object.TypeName(locals))
		}
	}
	if code.BlockDepth() > MaxBlocks {
		errz.Panicf("%s declares block depth %d beyond the limit of %d", code.Name(), code.BlockDepth(), MaxBlocks)
	}
	if code.StackSize() > MaxStackDepth {
		errz.Panicf("%s declares stack size %d beyond the limit of %d", code.Name(), code.StackSize(), MaxStackDepth)
	}

	size := code.SlotCount() + code.StackSize()
	if err := th.reserve(size); err != nil {
		return nil, err.WithStack(th.Stack())
	}
	mem, reused := th.freeList.get(size)

	th.nextID++
	f := &Frame{
		id:         th.nextID,
		thread:     th,
		code:       code,
		state:      StateChain,
		globals:    globalsMap,
		builtins:   th.resolveBuiltins(globalsMap),
		mem:        mem,
		nslots:     code.SlotCount(),
		stackTop:   code.SlotCount(),
		lineno:     code.FirstLine(),
		lastLine:   -1,
		traceLines: true,
	}
	flags := code.Flags()
	switch {
	case flags.Has(bytecode.Optimized | bytecode.NewLocals):
		// Locals are materialized from fast slots on demand.
	case flags.Has(bytecode.NewLocals):
		f.locals = object.NewMap(nil)
	case localsArg != nil:
		f.locals = localsArg
	default:
		f.locals = globalsMap
	}
	for i := code.LocalCount(); i < code.LocalCount()+code.CellCount(); i++ {
		mem.slots[i] = object.NewCell(nil)
	}
	th.live[f] = struct{}{}
	th.log.Trace().
		Uint64("frame", f.id).
		Str("code", code.Name()).
		Int("size", size).
		Bool("reused", reused).
		Msg("created frame")
	return f, nil
}

// resolveBuiltins picks the builtins for a new frame: the current frame's
// when it shares the same globals, else the globals' "__builtins__" mapping,
// else the thread default.
func (th *Thread) resolveBuiltins(globals object.Mapping) object.Mapping {
	if cur := th.current; cur != nil && cur.globals == globals {
		return cur.builtins
	}
	if value, ok := globals.Get("__builtins__"); ok {
		if builtins, ok := object.AsMapping(value); ok {
			return builtins
		}
	}
	return th.builtins
}

// Link sets the frame's caller. The link is used for stack walks and
// tracebacks and does not keep the caller alive. Linking must not create a
// cycle and both frames must be live and on the same thread. A nil caller
// makes f outermost.
func (f *Frame) Link(caller *Frame) error {
	if err := f.checkLive(); err != nil {
		return err
	}
	if caller == nil {
		f.setBack(nil)
		return nil
	}
	if err := caller.checkLive(); err != nil {
		return err
	}
	if caller.thread != f.thread {
		return errz.RuntimeErrorf("frames of different threads cannot be linked")
	}
	for c := caller; c != nil; c = c.back {
		if c == f {
			return errz.RuntimeErrorf("linking %s to %s would create a cycle", f.code.Name(), caller.code.Name())
		}
	}
	f.setBack(caller)
	return nil
}

// DetachForGenerator hands the frame to a generator. An executing frame must
// be the innermost one; it leaves the call chain and drops its caller link,
// which is re-established when the generator resumes it with Enter. The
// instruction offset, value stack and block stack are left exactly as they
// are.
func (f *Frame) DetachForGenerator(owner Owner) error {
	if err := f.checkLive(); err != nil {
		return err
	}
	if owner == nil {
		return errz.TypeErrorf("generator owner must not be nil")
	}
	if f.gen != nil && f.gen != owner {
		return errz.RuntimeErrorf("%s is already owned by another generator", f.code.Name())
	}
	th := f.thread
	if f.executing {
		if th.current != f {
			return errz.RuntimeErrorf("only the innermost frame can be suspended")
		}
		th.pop(f)
		f.setBack(nil)
	}
	f.gen = owner
	f.state = StateGenerator
	th.log.Trace().
		Uint64("frame", f.id).
		Str("code", f.code.Name()).
		Int("offset", f.lasti).
		Int("stack_depth", f.StackDepth()).
		Int("blocks", f.iblock).
		Msg("suspended frame")
	return nil
}

// Retain records an external reference, such as a traceback or a debugger,
// that keeps the frame alive after it returns.
func (f *Frame) Retain() error {
	if err := f.checkLive(); err != nil {
		return err
	}
	f.refs++
	return nil
}

// Release drops a reference taken with Retain. Dropping the last one
// finalizes a frame that has already returned and is not owned by a
// generator.
func (f *Frame) Release() error {
	if err := f.checkLive(); err != nil {
		return err
	}
	if f.refs == 0 {
		return errz.RuntimeErrorf("%s released more often than retained", f.code.Name())
	}
	f.refs--
	if f.refs == 0 && f.returned && f.gen == nil && !f.executing {
		return f.thread.finalize(f)
	}
	return nil
}

// Finalize releases the frame: fast locals and stack values are dropped,
// the locals proxy is invalidated and the storage goes back to the free
// list. An executing frame cannot be finalized. Generators call Finalize
// once their frame will never be resumed.
func (f *Frame) Finalize() error {
	if err := f.checkLive(); err != nil {
		return err
	}
	if f.executing {
		return errz.RuntimeErrorf("cannot finalize an executing frame")
	}
	return f.thread.finalize(f)
}

func (th *Thread) finalize(f *Frame) error {
	if err := f.checkLive(); err != nil {
		return err
	}
	f.clearLocals()
	if f.proxy != nil {
		f.proxy.invalidate()
		f.proxy = nil
	}
	for i := 0; i < f.iblock; i++ {
		f.blocks[i] = Block{}
	}
	f.iblock = 0
	f.trace = nil
	f.setBack(nil)
	f.gen = nil
	f.refs = 0
	f.state = StateFinalized

	// Frames kept alive past their caller must not point at released ones.
	// Callees normally finalize first, so the scan is rare.
	delete(th.live, f)
	if f.dependents > 0 {
		for other := range th.live {
			if other.back == f {
				other.setBack(nil)
			}
		}
	}

	size := f.mem.size()
	th.release(size)
	th.recycle(f.mem)
	f.mem = nil
	th.log.Trace().
		Uint64("frame", f.id).
		Str("code", f.code.Name()).
		Int("size", size).
		Msg("finalized frame")
	return nil
}
