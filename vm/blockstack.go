package vm

import (
	"github.com/hashicorp/go-multierror"
	"github.com/risor-io/callframe/errz"
	"github.com/risor-io/callframe/op"
)

// Block describes one active try, with or loop region of a frame.
type Block struct {
	// Kind is the construct that pushed the block.
	Kind op.BlockKind
	// Handler is the instruction offset to jump to when the block handles
	// an unwind.
	Handler int
	// Level is the value-stack depth to restore when the block is popped
	// during an unwind.
	Level int
}

// PushBlock pushes a handler descriptor. Overflowing MaxBlocks is an internal
// error: the compiler bounds block nesting statically.
func (f *Frame) PushBlock(kind op.BlockKind, handler, level int) {
	f.mustBeLive()
	if f.iblock >= MaxBlocks {
		errz.Panicf("block stack overflow in %s (max %d)", f.code.Name(), MaxBlocks)
	}
	if level < 0 || level > f.StackDepth() {
		errz.Panicf("block level %d outside value stack of depth %d in %s",
			level, f.StackDepth(), f.code.Name())
	}
	f.blocks[f.iblock] = Block{Kind: kind, Handler: handler, Level: level}
	f.iblock++
}

// PopBlock removes and returns the innermost block. Popping an empty block
// stack is an internal error.
func (f *Frame) PopBlock() Block {
	f.mustBeLive()
	if f.iblock <= 0 {
		errz.Panicf("block stack underflow in %s", f.code.Name())
	}
	f.iblock--
	b := f.blocks[f.iblock]
	f.blocks[f.iblock] = Block{}
	return b
}

// TopBlock returns the innermost block without removing it.
func (f *Frame) TopBlock() (Block, bool) {
	f.mustBeLive()
	if f.iblock == 0 {
		return Block{}, false
	}
	return f.blocks[f.iblock-1], true
}

// BlockDepth returns the number of active blocks.
func (f *Frame) BlockDepth() int {
	return f.iblock
}

// Blocks returns a copy of the active blocks, outermost first.
func (f *Frame) Blocks() []Block {
	if f.iblock == 0 {
		return nil
	}
	blocks := make([]Block, f.iblock)
	copy(blocks, f.blocks[:f.iblock])
	return blocks
}

// UnwindTo discards every block whose level is above the given stack level,
// innermost first. Each discarded block releases the value-stack slots above
// its level; once done the stack is cut back to level itself. A negative
// level discards every block and empties the stack. The discarded blocks are
// returned innermost first.
func (f *Frame) UnwindTo(level int) []Block {
	var popped []Block
	f.unwind(level, func(b Block) error {
		popped = append(popped, b)
		return nil
	})
	return popped
}

// UnwindEach is UnwindTo with a cleanup callback run for each discarded
// block, after its stack slots are released. Every callback runs even if an
// earlier one fails; their errors are combined.
func (f *Frame) UnwindEach(level int, fn func(Block) error) error {
	return f.unwind(level, fn)
}

func (f *Frame) unwind(level int, fn func(Block) error) error {
	f.mustBeLive()
	var result *multierror.Error
	for f.iblock > 0 && f.blocks[f.iblock-1].Level > level {
		b := f.PopBlock()
		f.truncateStack(b.Level)
		if err := fn(b); err != nil {
			result = multierror.Append(result, err)
		}
	}
	f.truncateStack(level)
	return result.ErrorOrNil()
}

// HandlerFor returns the innermost block of one of the given kinds without
// removing anything. The evaluator uses it to find where an unwind would
// land before committing to it.
func (f *Frame) HandlerFor(kinds ...op.BlockKind) (Block, bool) {
	f.mustBeLive()
	for i := f.iblock - 1; i >= 0; i-- {
		for _, k := range kinds {
			if f.blocks[i].Kind == k {
				return f.blocks[i], true
			}
		}
	}
	return Block{}, false
}
