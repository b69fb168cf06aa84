// Package generator suspends and resumes frames on behalf of generator
// functions. A Generator owns its frame between resumptions; the frame's
// instruction offset, value stack and block stack survive each suspension
// unchanged.
package generator

import (
	"errors"

	"github.com/hashicorp/go-multierror"
	"github.com/risor-io/callframe/bytecode"
	"github.com/risor-io/callframe/errz"
	"github.com/risor-io/callframe/object"
	"github.com/risor-io/callframe/op"
	"github.com/risor-io/callframe/vm"
	"github.com/rs/zerolog"
)

// ErrExit is raised inside a generator's frame when it is closed before it
// finished.
var ErrExit = errors.New("generator exit")

// Body runs the generator's frame from its current position until it yields
// or finishes. It returns the yielded or returned value and whether the
// frame finished.
type Body func(f *vm.Frame) (value object.Object, done bool, err error)

// Cleanup runs the handler of one block that is discarded when a suspended
// generator is closed.
type Cleanup func(f *vm.Frame, b vm.Block) error

// Option configures a Generator.
type Option func(*Generator)

// WithCleanup sets the handler run for each finally and with block still
// active when the generator is closed early.
func WithCleanup(fn Cleanup) Option {
	return func(g *Generator) {
		g.cleanup = fn
	}
}

// WithLogger sets the generator's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(g *Generator) {
		g.log = logger
	}
}

// Generator drives a suspended frame.
type Generator struct {
	th      *vm.Thread
	frame   *vm.Frame
	body    Body
	cleanup Cleanup
	log     zerolog.Logger
	running bool
	done    bool
	yields  int
}

// New creates the frame for a generator code body and takes ownership of it.
// The frame does not run until the first Resume.
func New(th *vm.Thread, code *bytecode.Code, globals object.Object, body Body, options ...Option) (*Generator, error) {
	if code == nil {
		return nil, errz.TypeErrorf("generator requires a code object")
	}
	if !code.Flags().Has(bytecode.Generator) {
		return nil, errz.TypeErrorf("%s is not a generator", code.Name())
	}
	if body == nil {
		return nil, errz.TypeErrorf("generator %s requires a body", code.Name())
	}
	f, err := th.NewFrame(code, globals, nil)
	if err != nil {
		return nil, err
	}
	g := &Generator{
		th:    th,
		frame: f,
		body:  body,
		log:   zerolog.Nop(),
	}
	for _, opt := range options {
		opt(g)
	}
	g.log = g.log.With().Str("generator", code.Name()).Logger()
	if err := f.DetachForGenerator(g); err != nil {
		return nil, multierror.Append(err, f.Finalize())
	}
	return g, nil
}

// Frame returns the generator's frame. It is finalized once the generator
// is done.
func (g *Generator) Frame() *vm.Frame {
	return g.frame
}

// Running returns true while the generator's body executes.
func (g *Generator) Running() bool {
	return g.running
}

// Done returns true once the generator finished, failed or was closed.
func (g *Generator) Done() bool {
	return g.done
}

// Yields returns how many values the generator has yielded.
func (g *Generator) Yields() int {
	return g.yields
}

// Resume enters the frame on the thread's call chain and runs the body. A
// yield suspends the frame again; finishing or failing finalizes it. Once the
// generator is done Resume reports done without running anything.
func (g *Generator) Resume() (object.Object, bool, error) {
	if g.done {
		return nil, true, nil
	}
	if g.running {
		return nil, false, errz.RuntimeErrorf("generator %s is already running", g.frame.Code().Name())
	}
	if err := g.th.Enter(g.frame); err != nil {
		return nil, false, err
	}
	g.running = true
	value, done, err := g.body(g.frame)
	g.running = false

	if err == nil && !done {
		if err := g.frame.DetachForGenerator(g); err != nil {
			return nil, false, g.fail(err)
		}
		g.yields++
		g.log.Trace().Int("yields", g.yields).Msg("generator yielded")
		return value, false, nil
	}
	if err != nil {
		return nil, true, g.fail(g.frame.TraceException(err))
	}
	if err := g.th.Leave(g.frame, value); err != nil {
		return nil, true, g.fail(err)
	}
	g.done = true
	if err := g.frame.Finalize(); err != nil {
		return nil, true, err
	}
	g.log.Trace().Int("yields", g.yields).Msg("generator finished")
	return value, true, nil
}

// fail leaves and finalizes the frame after the body raised err.
func (g *Generator) fail(err error) error {
	g.done = true
	var result *multierror.Error
	result = multierror.Append(result, err)
	if g.th.Current() == g.frame {
		if leaveErr := g.th.Leave(g.frame, nil); leaveErr != nil {
			result = multierror.Append(result, leaveErr)
		}
	}
	if !g.frame.IsFinalized() {
		if finErr := g.frame.Finalize(); finErr != nil {
			result = multierror.Append(result, finErr)
		}
	}
	if len(result.Errors) == 1 {
		return err
	}
	return result
}

// Close abandons a suspended generator. The frame is resumed on the
// thread's call chain and ErrExit is raised in it: the trace hook sees the
// exception, then every active block is discarded innermost first and the
// cleanup handler runs for each finally and with block, even if an earlier
// handler failed. The frame is then left and finalized, and the handlers'
// errors are combined. Closing a done generator does nothing.
func (g *Generator) Close() error {
	if g.done {
		return nil
	}
	f := g.frame
	if g.running && f.Executing() {
		return errz.RuntimeErrorf("generator %s cannot be closed while running", f.Code().Name())
	}
	g.done = true
	g.running = false

	var result *multierror.Error
	entered := true
	if err := g.th.Enter(f); err != nil {
		// Unwind in place when the frame cannot be resumed.
		entered = false
		result = multierror.Append(result, err)
	}
	if entered {
		if err := f.TraceException(ErrExit); err != ErrExit {
			result = multierror.Append(result, err)
		}
	}
	if err := f.UnwindEach(-1, func(b vm.Block) error {
		if g.cleanup == nil {
			return nil
		}
		switch b.Kind {
		case op.BlockFinally, op.BlockWith:
			return g.cleanup(f, b)
		default:
			return nil
		}
	}); err != nil {
		result = multierror.Append(result, err)
	}
	if entered && g.th.Current() == f {
		if err := g.th.Leave(f, nil); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if !f.IsFinalized() {
		if err := f.Finalize(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	g.log.Debug().Int("yields", g.yields).Msg("generator closed")
	return result.ErrorOrNil()
}

var _ vm.Owner = (*Generator)(nil)
