package vm

import (
	"github.com/risor-io/callframe/errz"
	"github.com/risor-io/callframe/object"
)

// StackTop returns the absolute index of the next free slot in the frame's
// storage. It is always between the number of fixed slots and the end of
// the stack region.
func (f *Frame) StackTop() int {
	return f.stackTop
}

// StackDepth returns the number of values on the value stack.
func (f *Frame) StackDepth() int {
	return f.stackTop - f.nslots
}

// StackCapacity returns the maximum depth of the value stack.
func (f *Frame) StackCapacity() int {
	if f.mem == nil {
		return 0
	}
	return f.mem.size() - f.nslots
}

// Push pushes a value onto the value stack.
func (f *Frame) Push(value object.Object) {
	f.mustBeLive()
	if f.stackTop >= f.mem.size() {
		errz.Panicf("value stack overflow in %s (capacity %d)", f.code.Name(), f.StackCapacity())
	}
	f.mem.slots[f.stackTop] = value
	f.stackTop++
}

// Pop removes and returns the top of the value stack.
func (f *Frame) Pop() object.Object {
	f.mustBeLive()
	if f.stackTop <= f.nslots {
		errz.Panicf("value stack underflow in %s", f.code.Name())
	}
	f.stackTop--
	value := f.mem.slots[f.stackTop]
	f.mem.slots[f.stackTop] = nil
	return value
}

// Peek returns the value n positions below the top of the stack without
// removing it. Peek(0) returns the top.
func (f *Frame) Peek(n int) object.Object {
	f.mustBeLive()
	i := f.stackTop - 1 - n
	if n < 0 || i < f.nslots {
		errz.Panicf("value stack peek %d out of range in %s", n, f.code.Name())
	}
	return f.mem.slots[i]
}

// truncateStack pops values until the stack depth is at most level.
func (f *Frame) truncateStack(level int) {
	if level < 0 {
		level = 0
	}
	target := f.nslots + level
	for f.stackTop > target {
		f.stackTop--
		f.mem.slots[f.stackTop] = nil
	}
}

// ExtendStack grows the value stack region so that at least extra more
// values fit than the code declared. Locals and stack contents are moved to
// a new block and the old block is returned to the free list.
func (f *Frame) ExtendStack(extra int) error {
	if err := f.checkLive(); err != nil {
		return err
	}
	if extra <= 0 {
		return nil
	}
	newSize := f.mem.size() + extra
	if newSize-f.nslots > MaxStackDepth {
		return errz.Errorf(errz.ErrMemory, "value stack of %s cannot exceed %d slots", f.code.Name(), MaxStackDepth)
	}
	th := f.thread
	if err := th.reserve(extra); err != nil {
		return err
	}
	mem, _ := th.freeList.get(newSize)
	copy(mem.slots, f.mem.slots[:f.stackTop])
	old := f.mem
	f.mem = mem
	th.recycle(old)
	th.log.Trace().
		Uint64("frame", f.id).
		Str("code", f.code.Name()).
		Int("size", newSize).
		Msg("extended frame stack")
	return nil
}

// LocalCount returns the number of fixed slots: fast locals, cells and free
// variables.
func (f *Frame) LocalCount() int {
	return f.nslots
}

// Local returns the raw content of a fixed slot. Cell and free variable
// slots hold *object.Cell. The second result is false if the slot is
// unbound.
func (f *Frame) Local(index int) (object.Object, bool) {
	f.mustBeLive()
	f.checkSlot(index)
	value := f.mem.slots[index]
	return value, value != nil
}

// SetLocal binds a fixed slot.
func (f *Frame) SetLocal(index int, value object.Object) {
	f.mustBeLive()
	f.checkSlot(index)
	f.mem.slots[index] = value
}

// DeleteLocal unbinds a fixed slot.
func (f *Frame) DeleteLocal(index int) {
	f.mustBeLive()
	f.checkSlot(index)
	f.mem.slots[index] = nil
}

// LocalByName returns the bound value of the named fixed slot, looking
// through cells.
func (f *Frame) LocalByName(name string) (object.Object, bool) {
	f.mustBeLive()
	index, ok := f.code.SlotIndex(name)
	if !ok {
		return nil, false
	}
	value := f.slotValue(index)
	return value, value != nil
}

// SetClosure installs the cells captured from the enclosing scope into the
// free variable slots.
func (f *Frame) SetClosure(cells []*object.Cell) error {
	if err := f.checkLive(); err != nil {
		return err
	}
	if len(cells) != f.code.FreeCount() {
		return errz.TypeErrorf("%s expects %d closure cells (%d given)",
			f.code.Name(), f.code.FreeCount(), len(cells))
	}
	start := f.code.LocalCount() + f.code.CellCount()
	for i, cell := range cells {
		f.mem.slots[start+i] = cell
	}
	return nil
}

func (f *Frame) checkSlot(index int) {
	if index < 0 || index >= f.nslots {
		errz.Panicf("local slot %d out of range in %s", index, f.code.Name())
	}
}

// slotValue returns the value bound in a fixed slot, dereferencing cells.
// Returns nil for unbound slots and empty cells.
func (f *Frame) slotValue(index int) object.Object {
	value := f.mem.slots[index]
	if f.code.IsCellSlot(index) {
		cell, ok := value.(*object.Cell)
		if !ok {
			return nil
		}
		return cell.Value()
	}
	return value
}

// setSlotValue binds a fixed slot, writing into the cell for cell and free
// variable slots. A nil value unbinds the slot.
func (f *Frame) setSlotValue(index int, value object.Object) {
	if f.code.IsCellSlot(index) {
		if cell, ok := f.mem.slots[index].(*object.Cell); ok {
			cell.Set(value)
			return
		}
		if value != nil {
			f.mem.slots[index] = object.NewCell(value)
		}
		return
	}
	f.mem.slots[index] = value
}
