package vm

import (
	"github.com/risor-io/callframe/bytecode"
	"github.com/risor-io/callframe/errz"
	"github.com/risor-io/callframe/object"
)

// Locals returns the frame's locals mapping, first copying every fixed slot
// into it: bound slots are inserted (cells are dereferenced) and unbound
// slots are removed. For scopes without fast locals the mapping is the
// primary store and is returned as is.
//
// The mapping is a snapshot. Later writes to fast locals show up only after
// calling Locals again; writes to the mapping never reach the fast locals.
// Use LocalsProxy for a live view.
//
// When the mapping is the scope's primary store (module and class bodies),
// possibly the globals themselves, unbound cell slots leave it untouched: a
// name bound there is not removed because a cell is empty.
func (f *Frame) Locals() (object.Mapping, error) {
	if err := f.checkLive(); err != nil {
		return nil, err
	}
	if f.locals == nil {
		f.locals = object.NewMap(nil)
	}
	primary := !f.code.Flags().Has(bytecode.Optimized | bytecode.NewLocals)
	for i := 0; i < f.nslots; i++ {
		name := f.code.SlotName(i)
		value := f.slotValue(i)
		if value == nil {
			if primary {
				continue
			}
			if err := f.locals.Delete(name); err != nil {
				return nil, err
			}
			continue
		}
		if err := f.locals.Set(name, value); err != nil {
			return nil, err
		}
	}
	return f.locals, nil
}

// LocalsView returns the locals mapping without synchronizing it, or nil if
// it was never materialized.
func (f *Frame) LocalsView() object.Mapping {
	return f.locals
}

// Absorb copies the locals mapping back into the fixed slots: each name that
// has a slot is rebound to the mapping's value. With clear set, slots whose
// names are missing from the mapping are unbound. Names without a slot stay
// in the mapping only.
//
// Absorb is disabled unless the thread was created WithLegacyLocalsToFast.
// Calling it on an executing frame overwrites locals behind the evaluator's
// back; trace hooks should use LocalsProxy.
func (f *Frame) Absorb(clear bool) error {
	if !f.thread.legacyLocals {
		return errz.RuntimeErrorf("copying locals back into fast slots is disabled; write through the locals proxy instead")
	}
	if err := f.checkLive(); err != nil {
		return err
	}
	if f.locals == nil {
		return nil
	}
	for i := 0; i < f.nslots; i++ {
		value, ok := f.locals.Get(f.code.SlotName(i))
		if !ok {
			if clear {
				f.setSlotValue(i, nil)
			}
			continue
		}
		f.setSlotValue(i, value)
	}
	return nil
}

// clearLocals drops every fixed slot and stack reference and forgets the
// locals mapping.
func (f *Frame) clearLocals() {
	for i := range f.mem.slots {
		f.mem.slots[i] = nil
	}
	f.stackTop = f.nslots
	f.locals = nil
}
