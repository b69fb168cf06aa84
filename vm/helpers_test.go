package vm

import (
	"testing"

	"github.com/risor-io/callframe/bytecode"
	"github.com/risor-io/callframe/object"
	"github.com/risor-io/callframe/op"
	"github.com/stretchr/testify/require"
)

func newFunctionCode(t *testing.T, name string, locals []string, stackSize int) *bytecode.Code {
	t.Helper()
	code, err := bytecode.NewCode(bytecode.CodeParams{
		Name:       name,
		Filename:   "test.rsr",
		FirstLine:  1,
		Flags:      bytecode.Optimized | bytecode.NewLocals,
		LocalNames: locals,
		StackSize:  stackSize,
		BlockDepth: 3,
		Instructions: []op.Code{
			op.LoadConst, op.StoreFast, op.LoadFast, op.ReturnValue,
		},
	})
	require.NoError(t, err)
	return code
}

func newFrame(t *testing.T, th *Thread, code *bytecode.Code) *Frame {
	t.Helper()
	f, err := th.NewFrame(code, object.NewMap(nil), nil)
	require.NoError(t, err)
	return f
}

type testOwner struct {
	closed  int
	err     error
	onClose func()
}

func (o *testOwner) Close() error {
	o.closed++
	if o.onClose != nil {
		o.onClose()
	}
	return o.err
}
