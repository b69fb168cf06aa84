package object

import "fmt"

// Cell holds a variable shared between a frame and the closures created in
// it. An empty cell holds no value; reading it is like reading an unbound
// local.
type Cell struct {
	value Object
}

func (c *Cell) Type() Type {
	return CELL
}

func (c *Cell) Inspect() string {
	return c.String()
}

func (c *Cell) String() string {
	if c.value == nil {
		return "cell()"
	}
	return fmt.Sprintf("cell(%s)", c.value.Inspect())
}

// Value returns the contents of the cell, or nil if it is empty.
func (c *Cell) Value() Object {
	return c.value
}

// Set replaces the contents of the cell. Setting nil empties it.
func (c *Cell) Set(value Object) {
	c.value = value
}

func (c *Cell) Interface() interface{} {
	if c.value == nil {
		return nil
	}
	return c.value.Interface()
}

// Equals reports identity; two cells are equal only if they are the same cell.
func (c *Cell) Equals(other Object) bool {
	otherCell, ok := other.(*Cell)
	if !ok {
		return false
	}
	return c == otherCell
}

func NewCell(value Object) *Cell {
	return &Cell{value: value}
}
