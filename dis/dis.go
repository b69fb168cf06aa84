// Package dis supports analysis of code bodies by listing their
// instructions next to the source lines they resolve to.
package dis

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/risor-io/callframe/bytecode"
	"github.com/risor-io/callframe/op"
)

// Instruction represents a single instruction and the line it belongs to.
type Instruction struct {
	Offset     int
	Line       int
	LineStart  bool
	Name       string
	Opcode     op.Code
	Annotation string
}

// Disassemble returns a parsed representation of the given code.
func Disassemble(code *bytecode.Code) ([]Instruction, error) {
	if code == nil {
		return nil, fmt.Errorf("dis: nil code")
	}
	lines := code.Lines()
	instructions := make([]Instruction, 0, code.InstructionCount())
	for offset := 0; offset < code.InstructionCount(); offset++ {
		opcode := code.InstructionAt(offset)
		info := op.GetInfo(opcode)
		if info.Name == "" {
			return nil, fmt.Errorf("dis: unknown opcode %d at offset %d", opcode, offset)
		}
		var annotation string
		if kind, ok := op.BlockKindFor(opcode); ok {
			annotation = kind.String()
		}
		instructions = append(instructions, Instruction{
			Offset:     offset,
			Line:       code.LineAt(offset),
			LineStart:  offset == 0 || lines.IsLineStart(offset),
			Name:       info.Name,
			Opcode:     opcode,
			Annotation: annotation,
		})
	}
	return instructions, nil
}

// Print a string representation of the given instructions to the given
// writer. The line number is shown only on the first instruction of a line.
func Print(instructions []Instruction, writer io.Writer) {
	bold := color.New(color.Bold).SprintFunc()
	cyan := color.New(color.FgHiCyan).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	rows := make([][]string, 0, len(instructions))
	for _, instr := range instructions {
		var line string
		if instr.LineStart {
			line = fmt.Sprintf("%d", instr.Line)
		}
		rows = append(rows, []string{
			line,
			fmt.Sprintf("%d", instr.Offset),
			instr.Name,
			instr.Annotation,
		})
	}
	render(writer,
		[]string{"LINE", "OFFSET", "OPCODE", "INFO"},
		[]bool{true, true, false, false},
		[]func(...interface{}) string{yellow, nil, bold, cyan},
		rows)
}

// render writes rows as a bordered table. Widths are measured before any
// styling is applied.
func render(w io.Writer, header []string, alignRight []bool, styles []func(...interface{}) string, rows [][]string) {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}
	var border strings.Builder
	border.WriteString("+")
	for _, width := range widths {
		border.WriteString(strings.Repeat("-", width+2))
		border.WriteString("+")
	}
	sep := border.String()

	fmt.Fprintln(w, sep)
	var b strings.Builder
	b.WriteString("|")
	for i, h := range header {
		pad := widths[i] - len(h)
		left := pad / 2
		fmt.Fprintf(&b, " %s%s%s |", strings.Repeat(" ", left), h, strings.Repeat(" ", pad-left))
	}
	fmt.Fprintln(w, b.String())
	fmt.Fprintln(w, sep)
	for _, row := range rows {
		b.Reset()
		b.WriteString("|")
		for i, cell := range row {
			padding := strings.Repeat(" ", widths[i]-len(cell))
			styled := cell
			if styles[i] != nil && cell != "" {
				styled = styles[i](cell)
			}
			if alignRight[i] {
				fmt.Fprintf(&b, " %s%s |", padding, styled)
			} else {
				fmt.Fprintf(&b, " %s%s |", styled, padding)
			}
		}
		fmt.Fprintln(w, b.String())
	}
	fmt.Fprintln(w, sep)
}
