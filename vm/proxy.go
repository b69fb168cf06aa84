package vm

import (
	"fmt"
	"sort"
	"strings"

	"github.com/risor-io/callframe/errz"
	"github.com/risor-io/callframe/object"
)

// LocalsProxy is a live mapping over a frame's locals. Names with a fixed
// slot are read from and written to the slot directly, so a trace hook's
// edits are seen by the evaluator at once. Other names live in the frame's
// locals mapping.
//
// A frame has at most one proxy. Once the frame is finalized the proxy is
// invalid: reads find nothing and writes fail.
type LocalsProxy struct {
	frame *Frame
	valid bool
}

// LocalsProxy returns the frame's write-through proxy, creating it on first
// use.
func (f *Frame) LocalsProxy() (*LocalsProxy, error) {
	if err := f.checkLive(); err != nil {
		return nil, err
	}
	if f.proxy == nil {
		f.proxy = &LocalsProxy{frame: f, valid: true}
	}
	return f.proxy, nil
}

func (p *LocalsProxy) invalidate() {
	p.valid = false
	p.frame = nil
}

// Valid returns false once the proxy's frame has been finalized.
func (p *LocalsProxy) Valid() bool {
	return p.valid
}

// Frame returns the proxied frame, or nil once the proxy is invalid.
func (p *LocalsProxy) Frame() *Frame {
	return p.frame
}

func (p *LocalsProxy) check() error {
	if !p.valid {
		return errz.InvalidFramef("locals proxy used after its frame was finalized")
	}
	return nil
}

func (p *LocalsProxy) Type() object.Type {
	return object.PROXY
}

func (p *LocalsProxy) Get(name string) (object.Object, bool) {
	if !p.valid {
		return nil, false
	}
	f := p.frame
	if i, ok := f.code.SlotIndex(name); ok {
		value := f.slotValue(i)
		return value, value != nil
	}
	if f.locals == nil {
		return nil, false
	}
	return f.locals.Get(name)
}

// Lookup is like Get but reports use of an invalid proxy as an error.
func (p *LocalsProxy) Lookup(name string) (object.Object, bool, error) {
	if err := p.check(); err != nil {
		return nil, false, err
	}
	value, ok := p.Get(name)
	return value, ok, nil
}

func (p *LocalsProxy) Set(name string, value object.Object) error {
	if err := p.check(); err != nil {
		return err
	}
	if value == nil {
		return errz.TypeErrorf("cannot bind %q to an unbound value", name)
	}
	f := p.frame
	if i, ok := f.code.SlotIndex(name); ok {
		f.setSlotValue(i, value)
		return nil
	}
	if f.locals == nil {
		f.locals = object.NewMap(nil)
	}
	return f.locals.Set(name, value)
}

func (p *LocalsProxy) Delete(name string) error {
	if err := p.check(); err != nil {
		return err
	}
	f := p.frame
	if i, ok := f.code.SlotIndex(name); ok {
		f.setSlotValue(i, nil)
		return nil
	}
	if f.locals == nil {
		return nil
	}
	return f.locals.Delete(name)
}

func (p *LocalsProxy) Keys() []string {
	if !p.valid {
		return nil
	}
	f := p.frame
	var keys []string
	for i := 0; i < f.nslots; i++ {
		if f.slotValue(i) != nil {
			keys = append(keys, f.code.SlotName(i))
		}
	}
	if f.locals != nil {
		for _, k := range f.locals.Keys() {
			if _, isSlot := f.code.SlotIndex(k); !isSlot {
				keys = append(keys, k)
			}
		}
	}
	sort.Strings(keys)
	return keys
}

func (p *LocalsProxy) Len() int {
	return len(p.Keys())
}

func (p *LocalsProxy) Inspect() string {
	if !p.valid {
		return "locals_proxy(<finalized>)"
	}
	var b strings.Builder
	b.WriteString("locals_proxy({")
	for i, k := range p.Keys() {
		if i > 0 {
			b.WriteString(", ")
		}
		value, _ := p.Get(k)
		fmt.Fprintf(&b, "%q: %s", k, value.Inspect())
	}
	b.WriteString("})")
	return b.String()
}

func (p *LocalsProxy) Interface() interface{} {
	result := map[string]interface{}{}
	for _, k := range p.Keys() {
		if value, ok := p.Get(k); ok {
			result[k] = value.Interface()
		}
	}
	return result
}

func (p *LocalsProxy) Equals(other object.Object) bool {
	otherProxy, ok := other.(*LocalsProxy)
	return ok && p == otherProxy
}

var _ object.Mapping = (*LocalsProxy)(nil)
