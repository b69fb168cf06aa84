package vm

import (
	"github.com/risor-io/callframe/object"
	"github.com/risor-io/callframe/op"
)

// EventKind identifies why a trace hook is called.
type EventKind uint8

const (
	// EventCall is sent when a traced thread enters a frame.
	EventCall EventKind = iota + 1
	// EventLine is sent before the first instruction of a new line.
	EventLine
	// EventOpcode is sent before every instruction when opcode tracing is on.
	EventOpcode
	// EventReturn is sent when a frame is left.
	EventReturn
	// EventException is sent when an exception is raised in a frame.
	EventException
)

func (k EventKind) String() string {
	switch k {
	case EventCall:
		return "call"
	case EventLine:
		return "line"
	case EventOpcode:
		return "opcode"
	case EventReturn:
		return "return"
	case EventException:
		return "exception"
	default:
		return "unknown"
	}
}

// TraceEvent describes a point in a frame's execution.
type TraceEvent struct {
	// Kind is the reason for the callback.
	Kind EventKind

	// Offset is the instruction offset of the frame.
	Offset int

	// Line is the line the frame reports.
	Line int

	// Opcode is the instruction at Offset.
	Opcode op.Code

	// Value is the returned value for EventReturn.
	Value object.Object

	// Err is the raised error for EventException.
	Err error
}

// TraceFunc is a trace hook. It runs synchronously on the frame's thread and
// may inspect or modify the frame, for example through its locals proxy.
// Returning an error removes the hook from the frame and raises the error in
// the frame at the current instruction.
type TraceFunc func(f *Frame, event TraceEvent) error

// SetTrace installs a trace hook on the frame and starts a trace session:
// the reported line is reset from the instruction offset and the next Step
// emits a line event.
func (f *Frame) SetTrace(fn TraceFunc) error {
	if err := f.checkLive(); err != nil {
		return err
	}
	if fn == nil {
		f.ClearTrace()
		return nil
	}
	f.trace = fn
	f.lineno = f.code.LineAt(f.lasti)
	f.lastLine = -1
	f.thread.log.Debug().
		Uint64("frame", f.id).
		Str("code", f.code.Name()).
		Int("line", f.lineno).
		Msg("trace session started")
	return nil
}

// ClearTrace removes the frame's trace hook.
func (f *Frame) ClearTrace() {
	if f.trace == nil {
		return
	}
	f.trace = nil
	f.thread.log.Debug().
		Uint64("frame", f.id).
		Str("code", f.code.Name()).
		Msg("trace session ended")
}

// Trace returns the frame's trace hook, or nil.
func (f *Frame) Trace() TraceFunc {
	return f.trace
}

// TraceLines reports whether line events are emitted.
func (f *Frame) TraceLines() bool {
	return f.traceLines
}

// SetTraceLines enables or disables line events.
func (f *Frame) SetTraceLines(enabled bool) {
	f.traceLines = enabled
}

// TraceOpcodes reports whether opcode events are emitted.
func (f *Frame) TraceOpcodes() bool {
	return f.traceOpcodes
}

// SetTraceOpcodes enables or disables opcode events.
func (f *Frame) SetTraceOpcodes(enabled bool) {
	f.traceOpcodes = enabled
}

// Step records that the instruction at offset is about to execute and
// notifies the trace hook. A line event is emitted when the line differs
// from the previous instruction's, or when a backward jump lands on the
// start of a line. An opcode event follows when opcode tracing is on. The
// hook may move the frame with SetLine; the evaluator must continue from
// InstructionOffset after Step returns.
//
// An error from the hook is returned unchanged so the evaluator can raise it.
func (f *Frame) Step(offset int) error {
	f.mustBeLive()
	prev := f.prevOffset
	f.lasti = offset
	f.prevOffset = offset
	if f.trace == nil {
		return nil
	}
	line := f.code.LineAt(offset)
	jumpedBack := offset < prev && f.code.Lines().IsLineStart(offset)
	if line != f.lastLine || jumpedBack {
		f.lineno = line
		f.lastLine = line
		if f.traceLines {
			if err := f.emit(TraceEvent{Kind: EventLine}); err != nil {
				return err
			}
		}
	}
	if f.traceOpcodes && f.trace != nil {
		if err := f.emit(TraceEvent{Kind: EventOpcode}); err != nil {
			return err
		}
	}
	return nil
}

// TraceException notifies the trace hook that err was raised in the frame.
// If the hook fails, its error replaces err.
func (f *Frame) TraceException(err error) error {
	if f.state == StateFinalized || f.trace == nil {
		return err
	}
	if hookErr := f.emit(TraceEvent{Kind: EventException, Err: err}); hookErr != nil {
		return hookErr
	}
	return err
}

// emit calls the trace hook, filling in the frame position. A failing hook
// is removed from the frame.
func (f *Frame) emit(event TraceEvent) error {
	fn := f.trace
	if fn == nil {
		return nil
	}
	event.Offset = f.lasti
	event.Line = f.lineno
	event.Opcode = f.code.InstructionAt(f.lasti)
	if err := fn(f, event); err != nil {
		f.trace = nil
		f.thread.log.Warn().
			Err(err).
			Uint64("frame", f.id).
			Str("code", f.code.Name()).
			Str("event", event.Kind.String()).
			Msg("trace hook failed and was removed")
		return err
	}
	return nil
}

// callTrace is used by the thread for call and return events.
func (f *Frame) callTrace(kind EventKind, value object.Object) error {
	if f.trace == nil {
		return nil
	}
	return f.emit(TraceEvent{Kind: kind, Value: value})
}
