package vm

import "github.com/risor-io/callframe/errz"

// CurrentLine returns the source line the frame is executing. Without a
// trace hook the line is derived from the instruction offset. With one, the
// line last reported to the hook (or set by it) is authoritative.
func (f *Frame) CurrentLine() int {
	if f.trace != nil {
		return f.lineno
	}
	return f.code.LineAt(f.lasti)
}

// Location returns the file and line the frame is executing.
func (f *Frame) Location() errz.SourceLocation {
	loc := f.code.LocationAt(f.lasti)
	line := f.CurrentLine()
	if line != loc.Line {
		loc.Column = 0
	}
	return errz.SourceLocation{
		Filename: f.code.Filename(),
		Line:     line,
		Column:   loc.Column,
	}
}

// SetLine moves a traced frame to the first instruction of the given line.
// Only trace hooks may do this, and only to lines the code contains. The
// evaluator continues from InstructionOffset once the hook returns.
func (f *Frame) SetLine(line int) error {
	if err := f.checkLive(); err != nil {
		return err
	}
	if f.trace == nil {
		return errz.RuntimeErrorf("the line of %s can only be set by a trace hook", f.code.Name())
	}
	offset, ok := f.code.Lines().FirstOffset(line)
	if !ok {
		return errz.RuntimeErrorf("line %d is not part of %s", line, f.code.Name())
	}
	f.lineno = line
	f.lastLine = line
	f.lasti = offset
	return nil
}
