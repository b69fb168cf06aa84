package vm

import (
	"errors"
	"fmt"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/risor-io/callframe/bytecode"
	"github.com/risor-io/callframe/errz"
	"github.com/risor-io/callframe/object"
	"github.com/risor-io/callframe/op"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFrameInitialState(t *testing.T) {
	th := NewThread()
	globals := object.NewMap(nil)
	code := newFunctionCode(t, "f", []string{"a", "b"}, 4)
	f, err := th.NewFrame(code, globals, nil)
	require.NoError(t, err)

	assert.Same(t, th, f.Thread())
	assert.Same(t, code, f.Code())
	assert.Same(t, globals, f.Globals())
	assert.Nil(t, f.Back())
	assert.Equal(t, StateChain, f.State())
	assert.False(t, f.Executing())
	assert.False(t, f.IsFinalized())
	assert.Nil(t, f.Generator())
	assert.Equal(t, 0, f.InstructionOffset())
	assert.Equal(t, 0, f.StackDepth())
	assert.Equal(t, 0, f.BlockDepth())
	assert.Equal(t, 1, f.CurrentLine())
	for i := 0; i < f.LocalCount(); i++ {
		_, bound := f.Local(i)
		assert.False(t, bound)
	}
	assert.Equal(t, 1, th.LiveFrames())
	assert.Equal(t, 6, th.Stats().SlotsInUse)
	assert.Equal(t, "frame(f, line 1, chain)", f.String())
}

func TestNewFrameRejectsNonMappingGlobals(t *testing.T) {
	th := NewThread()
	code := newFunctionCode(t, "f", []string{"a"}, 2)
	before := th.Stats()

	f, err := th.NewFrame(code, object.NewInt(1), nil)
	require.Error(t, err)
	assert.Nil(t, f)
	assert.True(t, errors.Is(err, errz.ErrType))
	assert.Contains(t, err.Error(), "globals must be a mapping (int given)")

	_, err = th.NewFrame(code, nil, nil)
	assert.True(t, errors.Is(err, errz.ErrType))

	_, err = th.NewFrame(code, object.NewMap(nil), object.NewString("x"))
	assert.True(t, errors.Is(err, errz.ErrType))

	_, err = th.NewFrame(nil, object.NewMap(nil), nil)
	assert.True(t, errors.Is(err, errz.ErrType))

	// Nothing was allocated or registered.
	assert.Equal(t, before, th.Stats())
	assert.Equal(t, 0, th.LiveFrames())
}

func TestNewFrameRejectsOversizedCode(t *testing.T) {
	th := NewThread()
	deep := bytecode.MustNewCode(bytecode.CodeParams{Name: "deep", BlockDepth: MaxBlocks + 1})
	tall := bytecode.MustNewCode(bytecode.CodeParams{Name: "tall", StackSize: MaxStackDepth + 1})
	assert.Panics(t, func() { th.NewFrame(deep, object.NewMap(nil), nil) })
	assert.Panics(t, func() { th.NewFrame(tall, object.NewMap(nil), nil) })
	assert.Equal(t, 0, th.LiveFrames())
}

func TestNewFrameSlotLimit(t *testing.T) {
	th := NewThread(WithSlotLimit(10))
	code := newFunctionCode(t, "f", []string{"a", "b"}, 2)
	f1 := newFrame(t, th, code)
	newFrame(t, th, code)
	allocs := th.FreeList().Stats().Allocations

	_, err := th.NewFrame(code, object.NewMap(nil), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errz.ErrMemory))
	assert.True(t, errz.IsFatal(err))
	assert.Equal(t, allocs, th.FreeList().Stats().Allocations)
	assert.Equal(t, 8, th.Stats().SlotsInUse)

	require.NoError(t, f1.Finalize())
	_, err = th.NewFrame(code, object.NewMap(nil), nil)
	require.NoError(t, err)
}

func TestBuiltinsResolution(t *testing.T) {
	defaults := object.NewMap(map[string]object.Object{"len": object.True})
	th := NewThread(WithBuiltins(defaults))
	code := newFunctionCode(t, "f", nil, 1)

	plain := object.NewMap(nil)
	f := newFrameWith(t, th, code, plain)
	assert.Same(t, defaults, f.Builtins())

	custom := object.NewMap(nil)
	withOwn := object.NewMap(map[string]object.Object{"__builtins__": custom})
	g := newFrameWith(t, th, code, withOwn)
	assert.Same(t, custom, g.Builtins())

	// A frame sharing the current frame's globals inherits its builtins.
	require.NoError(t, th.Enter(g))
	h := newFrameWith(t, th, code, withOwn)
	assert.Same(t, custom, h.Builtins())
	other := newFrameWith(t, th, code, plain)
	assert.Same(t, defaults, other.Builtins())
}

func newFrameWith(t *testing.T, th *Thread, code *bytecode.Code, globals *object.Map) *Frame {
	t.Helper()
	f, err := th.NewFrame(code, globals, nil)
	require.NoError(t, err)
	return f
}

func TestEnterLeaveChain(t *testing.T) {
	th := NewThread()
	outer := newFrame(t, th, newFunctionCode(t, "outer", []string{"a"}, 2))
	inner := newFrame(t, th, newFunctionCode(t, "inner", []string{"b"}, 2))

	require.NoError(t, th.Enter(outer))
	require.NoError(t, th.Enter(inner))
	assert.Same(t, inner, th.Current())
	assert.Same(t, outer, inner.Back())
	assert.Equal(t, 2, th.Depth())
	assert.True(t, inner.Executing())

	err := th.Enter(inner)
	assert.True(t, errors.Is(err, errz.ErrRuntime))

	stack := th.Stack()
	require.Len(t, stack, 2)
	assert.Equal(t, "inner", stack[0].Function)
	assert.Equal(t, "outer", stack[1].Function)
	assert.Equal(t, "test.rsr", stack[0].Location.Filename)

	assert.Error(t, th.Leave(outer, nil))
	assert.Error(t, outer.Finalize())

	require.NoError(t, th.Leave(inner, object.Nil))
	assert.True(t, inner.IsFinalized())
	assert.Same(t, outer, th.Current())
	assert.Equal(t, 1, th.Depth())
	assert.Equal(t, 1, th.FreeList().Len())

	require.NoError(t, th.Leave(outer, object.Nil))
	assert.Nil(t, th.Current())
	assert.Equal(t, 0, th.LiveFrames())
	assert.Equal(t, 0, th.Stats().SlotsInUse)
}

func TestEnterForeignFrame(t *testing.T) {
	th1 := NewThread()
	th2 := NewThread()
	f := newFrame(t, th1, newFunctionCode(t, "f", nil, 1))
	assert.Error(t, th2.Enter(f))
	assert.NotEqual(t, th1.ID(), th2.ID())
}

func TestRecursionLimit(t *testing.T) {
	th := NewThread(WithMaxDepth(3))
	code := newFunctionCode(t, "recurse", nil, 1)
	for i := 0; i < 3; i++ {
		require.NoError(t, th.Enter(newFrame(t, th, code)))
	}
	f := newFrame(t, th, code)
	err := th.Enter(f)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errz.ErrRecursion))
	var se *errz.StructuredError
	require.True(t, errors.As(err, &se))
	assert.Len(t, se.Stack, 3)
	assert.Equal(t, 3, th.Depth())
	assert.False(t, f.Executing())
}

func TestLink(t *testing.T) {
	th := NewThread()
	code := newFunctionCode(t, "f", nil, 1)
	a := newFrame(t, th, code)
	b := newFrame(t, th, code)
	c := newFrame(t, th, code)

	require.NoError(t, b.Link(a))
	require.NoError(t, c.Link(b))
	assert.Same(t, b, c.Back())

	err := a.Link(c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
	assert.Error(t, a.Link(a))

	require.NoError(t, c.Link(nil))
	assert.Nil(t, c.Back())

	other := newFrame(t, NewThread(), code)
	assert.Error(t, other.Link(a))
}

func TestDetachAndResumeKeepsState(t *testing.T) {
	th := NewThread()
	caller := newFrame(t, th, newFunctionCode(t, "caller", nil, 1))
	gen := newFrame(t, th, newFunctionCode(t, "gen", []string{"i"}, 4))
	owner := &testOwner{}

	require.NoError(t, th.Enter(caller))
	require.NoError(t, th.Enter(gen))
	gen.SetLocal(0, object.NewInt(7))
	gen.Push(object.NewString("iter"))
	gen.PushBlock(op.BlockLoop, 3, 1)
	gen.Push(object.NewInt(1))
	gen.SetInstructionOffset(2)
	before := gen.Snapshot()

	require.NoError(t, gen.DetachForGenerator(owner))
	assert.Equal(t, StateGenerator, gen.State())
	assert.Same(t, owner, gen.Generator())
	assert.Nil(t, gen.Back())
	assert.False(t, gen.Executing())
	assert.Same(t, caller, th.Current())
	assert.Equal(t, before, gen.Snapshot())

	// The suspended frame survives its caller returning.
	require.NoError(t, th.Leave(caller, nil))
	assert.False(t, gen.IsFinalized())

	resumer := newFrame(t, th, newFunctionCode(t, "resumer", nil, 1))
	require.NoError(t, th.Enter(resumer))
	require.NoError(t, th.Enter(gen))
	assert.Same(t, resumer, gen.Back())
	assert.Equal(t, StateChain, gen.State())
	assert.Equal(t, before, gen.Snapshot())
	v, _ := gen.Local(0)
	assert.Equal(t, object.NewInt(7), v)

	// Leaving a generator frame does not finalize it.
	require.NoError(t, th.Leave(gen, nil))
	assert.False(t, gen.IsFinalized())
	assert.Equal(t, StateGenerator, gen.State())
	require.NoError(t, gen.Finalize())
	assert.True(t, gen.IsFinalized())
	assert.Equal(t, 0, owner.closed)
}

func TestDetachRequiresInnermost(t *testing.T) {
	th := NewThread()
	code := newFunctionCode(t, "f", nil, 1)
	a := newFrame(t, th, code)
	b := newFrame(t, th, code)
	require.NoError(t, th.Enter(a))
	require.NoError(t, th.Enter(b))
	assert.Error(t, a.DetachForGenerator(&testOwner{}))
	assert.Error(t, b.DetachForGenerator(nil))

	require.NoError(t, b.DetachForGenerator(&testOwner{}))
	assert.Error(t, b.DetachForGenerator(&testOwner{}))
}

func TestRetainKeepsReturnedFrame(t *testing.T) {
	th := NewThread()
	outer := newFrame(t, th, newFunctionCode(t, "outer", nil, 1))
	inner := newFrame(t, th, newFunctionCode(t, "inner", []string{"x"}, 1))
	require.NoError(t, th.Enter(outer))
	require.NoError(t, th.Enter(inner))
	inner.SetLocal(0, object.NewInt(1))

	require.NoError(t, inner.Retain())
	require.NoError(t, th.Leave(inner, nil))
	assert.False(t, inner.IsFinalized())
	v, ok := inner.LocalByName("x")
	require.True(t, ok)
	assert.Equal(t, object.NewInt(1), v)
	assert.Same(t, outer, inner.Back())

	// The caller going away clears the dangling link.
	require.NoError(t, th.Leave(outer, nil))
	assert.Nil(t, inner.Back())

	require.NoError(t, inner.Release())
	assert.True(t, inner.IsFinalized())
	assert.True(t, errors.Is(inner.Release(), errz.ErrInvalidFrame))
}

func TestReleaseWithoutRetain(t *testing.T) {
	th := NewThread()
	f := newFrame(t, th, newFunctionCode(t, "f", nil, 1))
	err := f.Release()
	assert.True(t, errors.Is(err, errz.ErrRuntime))
	require.NoError(t, f.Retain())
	require.NoError(t, f.Release())
	assert.False(t, f.IsFinalized())
}

func TestFinalizedFrameRejectsOperations(t *testing.T) {
	th := NewThread()
	f := newFrame(t, th, newFunctionCode(t, "f", []string{"x"}, 2))
	require.NoError(t, f.Finalize())
	assert.Equal(t, StateFinalized, f.State())
	assert.Equal(t, 0, f.StackCapacity())

	assert.True(t, errors.Is(f.Finalize(), errz.ErrInvalidFrame))
	assert.True(t, errors.Is(th.Enter(f), errz.ErrInvalidFrame))
	_, err := f.Locals()
	assert.True(t, errors.Is(err, errz.ErrInvalidFrame))
	assert.True(t, errors.Is(f.SetLine(1), errz.ErrInvalidFrame))
	assert.True(t, errors.Is(f.ExtendStack(1), errz.ErrInvalidFrame))
	assert.True(t, errors.Is(f.Retain(), errz.ErrInvalidFrame))

	func() {
		defer errz.Recover(&err)
		f.Push(object.Nil)
	}()
	assert.True(t, errors.Is(err, errz.ErrInvalidFrame))
}

func TestThreadClose(t *testing.T) {
	th := NewThread()
	code := newFunctionCode(t, "f", []string{"x"}, 2)
	a := newFrame(t, th, code)
	b := newFrame(t, th, code)
	g := newFrame(t, th, code)
	spare := newFrame(t, th, code)
	require.NoError(t, spare.Finalize())

	failing := &testOwner{err: fmt.Errorf("cleanup failed")}
	failing.onClose = func() {
		assert.False(t, g.IsFinalized())
	}
	require.NoError(t, g.DetachForGenerator(failing))
	require.NoError(t, th.Enter(a))
	require.NoError(t, th.Enter(b))

	err := th.Close()
	require.Error(t, err)
	var merr *multierror.Error
	require.True(t, errors.As(err, &merr))
	assert.Len(t, merr.Errors, 1)
	assert.Contains(t, err.Error(), "cleanup failed")

	assert.Equal(t, 1, failing.closed)
	assert.True(t, a.IsFinalized())
	assert.True(t, b.IsFinalized())
	assert.True(t, g.IsFinalized())
	assert.Equal(t, 0, th.LiveFrames())
	assert.Equal(t, 0, th.Depth())
	assert.Equal(t, 0, th.FreeList().Len())
	assert.Equal(t, 0, th.Stats().SlotsInUse)

	require.NoError(t, th.Close())
	_, err = th.NewFrame(code, object.NewMap(nil), nil)
	assert.True(t, errors.Is(err, errz.ErrRuntime))
}

func TestGeneratorFrameStateOnFailedResume(t *testing.T) {
	th := NewThread(WithTrace(func(f *Frame, ev TraceEvent) error {
		return fmt.Errorf("no calls")
	}))
	f := newFrame(t, th, newFunctionCode(t, "gen", nil, 1))
	require.NoError(t, f.DetachForGenerator(&testOwner{}))
	require.Error(t, th.Enter(f))
	assert.Equal(t, StateGenerator, f.State())
	assert.False(t, f.Executing())
}

func TestCallerLinksAreCounted(t *testing.T) {
	th := NewThread()
	code := newFunctionCode(t, "f", nil, 1)
	outer := newFrame(t, th, code)
	inner := newFrame(t, th, code)
	kept := newFrame(t, th, code)

	require.NoError(t, th.Enter(outer))
	require.NoError(t, th.Enter(inner))
	assert.Equal(t, 1, outer.dependents)
	require.NoError(t, th.Leave(inner, nil))
	assert.Equal(t, 0, outer.dependents)

	require.NoError(t, th.Enter(kept))
	require.NoError(t, kept.Retain())
	require.NoError(t, th.Leave(kept, nil))
	assert.Equal(t, 1, outer.dependents)

	require.NoError(t, kept.Link(nil))
	assert.Equal(t, 0, outer.dependents)
	require.NoError(t, kept.Link(outer))
	assert.Equal(t, 1, outer.dependents)

	require.NoError(t, th.Leave(outer, nil))
	assert.Nil(t, kept.Back())
	assert.Equal(t, 0, outer.dependents)
	require.NoError(t, kept.Release())
}

func BenchmarkEnterLeaveWithLiveFrames(b *testing.B) {
	for _, live := range []int{0, 1000, 10000} {
		b.Run(fmt.Sprintf("live=%d", live), func(b *testing.B) {
			th := NewThread()
			code := bytecode.MustNewCode(bytecode.CodeParams{
				Name:       "f",
				Flags:      bytecode.Optimized | bytecode.NewLocals,
				LocalNames: []string{"x"},
				StackSize:  2,
			})
			globals := object.NewMap(nil)
			for i := 0; i < live; i++ {
				if _, err := th.NewFrame(code, globals, nil); err != nil {
					b.Fatal(err)
				}
			}
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				f, err := th.NewFrame(code, globals, nil)
				if err != nil {
					b.Fatal(err)
				}
				if err := th.Enter(f); err != nil {
					b.Fatal(err)
				}
				if err := th.Leave(f, object.Nil); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
