package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/risor-io/callframe/bytecode"
	"github.com/risor-io/callframe/dis"
	"github.com/risor-io/callframe/object"
	"github.com/risor-io/callframe/op"
	"github.com/risor-io/callframe/vm"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// LineResult is the line resolved for one offset.
type LineResult struct {
	Offset int  `json:"offset"`
	Line   int  `json:"line"`
	Event  bool `json:"event,omitempty"`
}

var linesCmd = &cobra.Command{
	Use:   "lines",
	Short: "Resolve source lines for instruction offsets",
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := parseLineTable(viper.GetString("table"))
		if err != nil {
			return err
		}
		offsets, err := parseOffsets(viper.GetString("offsets"))
		if err != nil {
			return err
		}
		code, err := linesCode(viper.GetInt("first-line"), entries, offsets)
		if err != nil {
			return err
		}
		if viper.GetBool("listing") {
			instructions, err := dis.Disassemble(code)
			if err != nil {
				return err
			}
			dis.Print(instructions, os.Stdout)
			if len(offsets) == 0 {
				return nil
			}
		}
		results, err := resolveLines(code, offsets, viper.GetBool("trace"))
		if err != nil {
			return err
		}
		if viper.GetBool("json") {
			return printJSON(results)
		}
		offsetColor := color.New(color.FgCyan).SprintFunc()
		marker := color.New(color.FgYellow).SprintFunc()
		for _, r := range results {
			line := fmt.Sprintf("%s -> %d", offsetColor(fmt.Sprintf("%4d", r.Offset)), r.Line)
			if r.Event {
				line += " " + marker("*")
			}
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	flags := linesCmd.Flags()
	flags.String("table", "", "Line table as offset:line[:column] entries, comma separated")
	flags.String("offsets", "", "Instruction offsets to resolve, comma separated")
	flags.Int("first-line", 1, "Line reported before the first table entry")
	flags.Bool("trace", false, "Step a traced frame through the offsets and mark line events")
	flags.Bool("listing", false, "Print the instruction listing with resolved lines")
	for _, name := range []string{"table", "offsets", "first-line", "trace", "listing"} {
		viper.BindPFlag(name, flags.Lookup(name))
	}
}

// linesCode builds a code body of NOP instructions covering every table
// entry and offset.
func linesCode(firstLine int, entries []bytecode.LineEntry, offsets []int) (*bytecode.Code, error) {
	size := 1
	for _, e := range entries {
		if e.Offset+1 > size {
			size = e.Offset + 1
		}
	}
	for _, o := range offsets {
		if o+1 > size {
			size = o + 1
		}
	}
	instructions := make([]op.Code, size)
	for i := range instructions {
		instructions[i] = op.Nop
	}
	return bytecode.NewCode(bytecode.CodeParams{
		Name:         "lines",
		FirstLine:    firstLine,
		Instructions: instructions,
		Lines:        entries,
		Flags:        bytecode.Optimized | bytecode.NewLocals,
	})
}

// resolveLines resolves each offset with a frame running code. When traced,
// the frame steps through the offsets in order and results record which
// steps emitted a line event.
func resolveLines(code *bytecode.Code, offsets []int, traced bool) ([]LineResult, error) {
	th := vm.NewThread(vm.WithLogger(newLogger()))
	defer th.Close()
	f, err := th.NewFrame(code, object.NewMap(nil), nil)
	if err != nil {
		return nil, err
	}

	var fired bool
	if traced {
		if err := f.SetTrace(func(f *vm.Frame, ev vm.TraceEvent) error {
			if ev.Kind == vm.EventLine {
				fired = true
			}
			return nil
		}); err != nil {
			return nil, err
		}
	}
	results := make([]LineResult, 0, len(offsets))
	for _, o := range offsets {
		fired = false
		if traced {
			if err := f.Step(o); err != nil {
				return nil, err
			}
		} else {
			f.SetInstructionOffset(o)
		}
		results = append(results, LineResult{Offset: o, Line: f.CurrentLine(), Event: fired})
	}
	return results, nil
}
