package vm

import (
	"errors"
	"testing"

	"github.com/risor-io/callframe/errz"
	"github.com/risor-io/callframe/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueStack(t *testing.T) {
	th := NewThread()
	f := newFrame(t, th, newFunctionCode(t, "f", []string{"a", "b"}, 3))
	assert.Equal(t, 2, f.StackTop())
	assert.Equal(t, 3, f.StackCapacity())

	f.Push(object.NewInt(1))
	f.Push(object.NewInt(2))
	assert.Equal(t, 2, f.StackDepth())
	assert.Equal(t, 4, f.StackTop())
	assert.Equal(t, object.NewInt(2), f.Peek(0))
	assert.Equal(t, object.NewInt(1), f.Peek(1))

	assert.Equal(t, object.NewInt(2), f.Pop())
	assert.Equal(t, object.NewInt(1), f.Pop())
	assert.Equal(t, 0, f.StackDepth())

	// The stack never reaches into the fixed slots.
	f.SetLocal(1, object.True)
	assert.Panics(t, func() { f.Pop() })
	assert.Panics(t, func() { f.Peek(0) })
	v, ok := f.Local(1)
	require.True(t, ok)
	assert.Equal(t, object.True, v)
}

func TestValueStackOverflowIsFatal(t *testing.T) {
	th := NewThread()
	f := newFrame(t, th, newFunctionCode(t, "f", nil, 1))
	f.Push(object.Nil)
	var err error
	func() {
		defer errz.Recover(&err)
		f.Push(object.Nil)
	}()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errz.ErrInternal))
	assert.Equal(t, 1, f.StackDepth())
}

func TestExtendStack(t *testing.T) {
	th := NewThread()
	f := newFrame(t, th, newFunctionCode(t, "f", []string{"a"}, 1))
	f.SetLocal(0, object.NewString("a"))
	f.Push(object.NewInt(1))
	old := f.mem

	require.NoError(t, f.ExtendStack(0))
	assert.Same(t, old, f.mem)

	require.NoError(t, f.ExtendStack(2))
	assert.NotSame(t, old, f.mem)
	assert.Equal(t, 3, f.StackCapacity())
	assert.Equal(t, 1, th.FreeList().Len())
	assert.Equal(t, 4, th.Stats().SlotsInUse)

	f.Push(object.NewInt(2))
	f.Push(object.NewInt(3))
	assert.Equal(t, object.NewInt(3), f.Pop())
	assert.Equal(t, object.NewInt(2), f.Pop())
	assert.Equal(t, object.NewInt(1), f.Pop())
	v, _ := f.Local(0)
	assert.Equal(t, object.NewString("a"), v)

	err := f.ExtendStack(MaxStackDepth)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errz.ErrMemory))
}

func TestExtendStackRespectsSlotLimit(t *testing.T) {
	th := NewThread(WithSlotLimit(4))
	f := newFrame(t, th, newFunctionCode(t, "f", []string{"a"}, 1))
	require.NoError(t, f.ExtendStack(2))
	err := f.ExtendStack(1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errz.ErrMemory))
	assert.Equal(t, 3, f.StackCapacity())
}

func TestLocalSlotOutOfRange(t *testing.T) {
	th := NewThread()
	f := newFrame(t, th, newFunctionCode(t, "f", []string{"a"}, 1))
	assert.Panics(t, func() { f.Local(1) })
	assert.Panics(t, func() { f.SetLocal(-1, object.Nil) })
	_, ok := f.LocalByName("missing")
	assert.False(t, ok)
}
