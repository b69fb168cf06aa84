package bytecode

import (
	"fmt"
	"sort"
)

// LineEntry marks the instruction offset at which a source line begins.
// Every instruction from Offset up to the next entry's offset belongs to
// Line.
type LineEntry struct {
	Offset int
	Line   int
	Column int
}

// LineTable maps instruction offsets to source lines. Entries are ordered by
// strictly increasing offset. Lines need not increase (loops jump back) and
// the table may have gaps, for example for synthetic instructions that
// belong to no line.
type LineTable struct {
	firstLine int
	entries   []LineEntry
}

// NewLineTable validates and copies the given entries. Entries must be
// ordered by strictly increasing, non-negative offset, and every line must
// be positive.
func NewLineTable(firstLine int, entries []LineEntry) (LineTable, error) {
	for i, e := range entries {
		if e.Offset < 0 {
			return LineTable{}, fmt.Errorf("line table: negative offset %d", e.Offset)
		}
		if e.Line < 1 {
			return LineTable{}, fmt.Errorf("line table: invalid line %d at offset %d", e.Line, e.Offset)
		}
		if i > 0 && e.Offset <= entries[i-1].Offset {
			return LineTable{}, fmt.Errorf("line table: offset %d out of order", e.Offset)
		}
	}
	t := LineTable{firstLine: firstLine}
	if len(entries) > 0 {
		t.entries = make([]LineEntry, len(entries))
		copy(t.entries, entries)
	}
	return t, nil
}

// Len returns the number of entries in the table.
func (t LineTable) Len() int {
	return len(t.entries)
}

// find returns the index of the last entry at or before offset, or -1.
func (t LineTable) find(offset int) int {
	i := sort.Search(len(t.entries), func(i int) bool {
		return t.entries[i].Offset > offset
	})
	return i - 1
}

// Line returns the last line that begins at or before offset. Offsets that
// precede every entry resolve to the first line of the code body.
func (t LineTable) Line(offset int) int {
	if i := t.find(offset); i >= 0 {
		return t.entries[i].Line
	}
	return t.firstLine
}

// Location returns the line and column of the entry covering offset.
func (t LineTable) Location(offset int) SourceLocation {
	if i := t.find(offset); i >= 0 {
		e := t.entries[i]
		return SourceLocation{Line: e.Line, Column: e.Column}
	}
	return SourceLocation{Line: t.firstLine}
}

// IsLineStart returns true if an entry begins exactly at offset.
func (t LineTable) IsLineStart(offset int) bool {
	i := t.find(offset)
	return i >= 0 && t.entries[i].Offset == offset
}

// FirstOffset returns the lowest offset at which the given line begins.
func (t LineTable) FirstOffset(line int) (int, bool) {
	for _, e := range t.entries {
		if e.Line == line {
			return e.Offset, true
		}
	}
	return 0, false
}

// Lines returns the distinct lines in the table in ascending order.
func (t LineTable) Lines() []int {
	seen := make(map[int]bool, len(t.entries))
	var lines []int
	for _, e := range t.entries {
		if !seen[e.Line] {
			seen[e.Line] = true
			lines = append(lines, e.Line)
		}
	}
	sort.Ints(lines)
	return lines
}
