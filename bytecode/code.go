package bytecode

import (
	"fmt"

	"github.com/risor-io/callframe/op"
)

// Flags describe how a code body scopes its variables.
type Flags uint8

const (
	// Optimized code stores its statically known locals in fast slots.
	Optimized Flags = 1 << iota
	// NewLocals code gets a fresh locals mapping for each activation.
	NewLocals
	// Generator code runs in frames owned by a generator between resumptions.
	Generator
)

// Has returns true if all bits in f are set.
func (fl Flags) Has(f Flags) bool {
	return fl&f == f
}

// Code represents a compiled code block (module, class body, function body).
// It is immutable after creation and safe for concurrent use.
type Code struct {
	name      string
	filename  string
	firstLine int
	flags     Flags

	instructions []op.Code
	lines        LineTable

	// Slot layout: fast locals, then cell variables, then free variables.
	localNames []string
	cellNames  []string
	freeNames  []string
	slotIndex  map[string]int

	// Static bounds computed by the compiler
	stackSize  int
	blockDepth int
}

// CodeParams contains parameters for creating a new Code.
type CodeParams struct {
	Name         string
	Filename     string
	FirstLine    int
	Flags        Flags
	Instructions []op.Code
	Lines        []LineEntry
	LocalNames   []string
	CellNames    []string
	FreeNames    []string
	StackSize    int
	BlockDepth   int
}

// NewCode creates a new immutable Code from the given parameters.
// Input slices are copied so later changes by the caller have no effect.
func NewCode(params CodeParams) (*Code, error) {
	if params.StackSize < 0 {
		return nil, fmt.Errorf("code %q: negative stack size %d", params.Name, params.StackSize)
	}
	if params.BlockDepth < 0 {
		return nil, fmt.Errorf("code %q: negative block depth %d", params.Name, params.BlockDepth)
	}
	firstLine := params.FirstLine
	if firstLine < 1 {
		firstLine = 1
	}
	lines, err := NewLineTable(firstLine, params.Lines)
	if err != nil {
		return nil, fmt.Errorf("code %q: %w", params.Name, err)
	}
	c := &Code{
		name:         params.Name,
		filename:     params.Filename,
		firstLine:    firstLine,
		flags:        params.Flags,
		instructions: copyInstructions(params.Instructions),
		lines:        lines,
		localNames:   copyStrings(params.LocalNames),
		cellNames:    copyStrings(params.CellNames),
		freeNames:    copyStrings(params.FreeNames),
		stackSize:    params.StackSize,
		blockDepth:   params.BlockDepth,
	}
	c.slotIndex = make(map[string]int, c.SlotCount())
	for i := 0; i < c.SlotCount(); i++ {
		name := c.SlotName(i)
		if _, dup := c.slotIndex[name]; dup {
			return nil, fmt.Errorf("code %q: duplicate variable %q", params.Name, name)
		}
		c.slotIndex[name] = i
	}
	return c, nil
}

// MustNewCode is like NewCode but panics on invalid parameters.
func MustNewCode(params CodeParams) *Code {
	c, err := NewCode(params)
	if err != nil {
		panic(err)
	}
	return c
}

// Name returns the name of this code block.
func (c *Code) Name() string {
	return c.name
}

// Filename returns the source filename.
func (c *Code) Filename() string {
	return c.filename
}

// FirstLine returns the line on which the code block starts.
func (c *Code) FirstLine() int {
	return c.firstLine
}

// Flags returns the scope flags of the code block.
func (c *Code) Flags() Flags {
	return c.flags
}

// InstructionCount returns the number of instructions.
func (c *Code) InstructionCount() int {
	return len(c.instructions)
}

// InstructionAt returns the instruction at the given offset, or op.Invalid
// if the offset is out of range.
func (c *Code) InstructionAt(offset int) op.Code {
	if offset < 0 || offset >= len(c.instructions) {
		return op.Invalid
	}
	return c.instructions[offset]
}

// Lines returns the offset to line table.
func (c *Code) Lines() LineTable {
	return c.lines
}

// LineAt returns the source line of the instruction at the given offset.
func (c *Code) LineAt(offset int) int {
	return c.lines.Line(offset)
}

// LocationAt returns the source location for the instruction at the given
// offset.
func (c *Code) LocationAt(offset int) SourceLocation {
	return c.lines.Location(offset)
}

// LocalCount returns the number of fast local variables.
func (c *Code) LocalCount() int {
	return len(c.localNames)
}

// LocalNameAt returns the local variable name at the given index.
// Returns an empty string if the index is out of range.
func (c *Code) LocalNameAt(index int) string {
	if index < 0 || index >= len(c.localNames) {
		return ""
	}
	return c.localNames[index]
}

// LocalNames returns a copy of the fast local variable names.
func (c *Code) LocalNames() []string {
	return copyStrings(c.localNames)
}

// CellCount returns the number of cell variables (locals captured by
// nested closures).
func (c *Code) CellCount() int {
	return len(c.cellNames)
}

// FreeCount returns the number of free variables (captured from an
// enclosing scope).
func (c *Code) FreeCount() int {
	return len(c.freeNames)
}

// SlotCount returns the total number of fixed slots a frame reserves for
// this code: fast locals, cells and free variables.
func (c *Code) SlotCount() int {
	return len(c.localNames) + len(c.cellNames) + len(c.freeNames)
}

// SlotName returns the variable name stored in the given slot.
func (c *Code) SlotName(index int) string {
	if index < 0 {
		return ""
	}
	if index < len(c.localNames) {
		return c.localNames[index]
	}
	index -= len(c.localNames)
	if index < len(c.cellNames) {
		return c.cellNames[index]
	}
	index -= len(c.cellNames)
	if index < len(c.freeNames) {
		return c.freeNames[index]
	}
	return ""
}

// SlotIndex returns the slot holding the named variable.
func (c *Code) SlotIndex(name string) (int, bool) {
	i, ok := c.slotIndex[name]
	return i, ok
}

// IsCellSlot returns true if the slot holds a cell or free variable rather
// than a plain fast local.
func (c *Code) IsCellSlot(index int) bool {
	return index >= len(c.localNames) && index < c.SlotCount()
}

// StackSize returns the maximum value-stack depth the code needs.
func (c *Code) StackSize() int {
	return c.stackSize
}

// BlockDepth returns the maximum block-stack nesting the code reaches.
func (c *Code) BlockDepth() int {
	return c.blockDepth
}
