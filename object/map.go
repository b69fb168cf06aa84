package object

import (
	"fmt"
	"sort"
	"strings"
)

// Map is the default Mapping implementation.
type Map struct {
	items map[string]Object
}

func (m *Map) Type() Type {
	return MAP
}

func (m *Map) Inspect() string {
	var b strings.Builder
	b.WriteString("{")
	for i, k := range m.Keys() {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%q: %s", k, m.items[k].Inspect())
	}
	b.WriteString("}")
	return b.String()
}

func (m *Map) String() string {
	return m.Inspect()
}

func (m *Map) Get(name string) (Object, bool) {
	value, ok := m.items[name]
	return value, ok
}

func (m *Map) Set(name string, value Object) error {
	if value == nil {
		return fmt.Errorf("map: cannot bind %q to a nil value", name)
	}
	m.items[name] = value
	return nil
}

func (m *Map) Delete(name string) error {
	delete(m.items, name)
	return nil
}

func (m *Map) Keys() []string {
	keys := make([]string, 0, len(m.items))
	for k := range m.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (m *Map) Len() int {
	return len(m.items)
}

// Clear removes all bindings.
func (m *Map) Clear() {
	for k := range m.items {
		delete(m.items, k)
	}
}

func (m *Map) Interface() interface{} {
	result := make(map[string]interface{}, len(m.items))
	for k, v := range m.items {
		result[k] = v.Interface()
	}
	return result
}

func (m *Map) Equals(other Object) bool {
	otherMap, ok := other.(*Map)
	if !ok || len(m.items) != len(otherMap.items) {
		return false
	}
	for k, v := range m.items {
		otherValue, found := otherMap.items[k]
		if !found || !v.Equals(otherValue) {
			return false
		}
	}
	return true
}

// NewMap returns a map holding a copy of the given items.
func NewMap(items map[string]Object) *Map {
	m := &Map{items: make(map[string]Object, len(items))}
	for k, v := range items {
		m.items[k] = v
	}
	return m
}

var _ Mapping = (*Map)(nil)
