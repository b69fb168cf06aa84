// Package object provides the small set of values that frames hold in their
// slots and mappings.
//
// Frames treat values opaquely. The types here exist so that globals,
// builtins and locals mappings, closure cells and the evaluator's value
// stack have something concrete to carry.
package object

// Type of an object as a string.
type Type string

// Type constants
const (
	BOOL   Type = "bool"
	CELL   Type = "cell"
	INT    Type = "int"
	MAP    Type = "map"
	NIL    Type = "nil"
	STRING Type = "string"
	PROXY  Type = "locals_proxy"
)

var (
	Nil   = &NilType{}
	True  = &Bool{value: true}
	False = &Bool{value: false}
)

// Object is the interface that all values held by frames implement.
type Object interface {
	// Type of the object.
	Type() Type

	// Inspect returns a string representation of the given object.
	Inspect() string

	// Interface converts the given object to a native Go value.
	Interface() interface{}

	// Returns true if the given object is equal to this object.
	Equals(other Object) bool
}

// Mapping is a name to value store. Globals, builtins and locals are all
// mappings, as is the write-through proxy over a frame's fast locals.
type Mapping interface {
	Object

	// Get returns the value bound to name.
	Get(name string) (Object, bool)

	// Set binds name to value.
	Set(name string, value Object) error

	// Delete removes the binding for name. Deleting a missing name is not
	// an error.
	Delete(name string) error

	// Keys returns the bound names in sorted order.
	Keys() []string

	// Len returns the number of bound names.
	Len() int
}

// AsMapping returns obj as a Mapping if it is one.
func AsMapping(obj Object) (Mapping, bool) {
	if obj == nil {
		return nil, false
	}
	m, ok := obj.(Mapping)
	return m, ok
}

// TypeName returns the type of obj, or "none" for a nil interface.
func TypeName(obj Object) string {
	if obj == nil {
		return "none"
	}
	return string(obj.Type())
}
