package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/risor-io/callframe/bytecode"
	"github.com/risor-io/callframe/object"
	"github.com/risor-io/callframe/op"
	"github.com/risor-io/callframe/vm"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// BenchConfig describes a synthetic workload.
type BenchConfig struct {
	Calls         int `json:"calls"`
	Depth         int `json:"depth"`
	Locals        int `json:"locals"`
	Stack         int `json:"stack"`
	FreeListLimit int `json:"free_list_limit"`
}

// BenchResult holds the outcome of a workload.
type BenchResult struct {
	Config        BenchConfig    `json:"config"`
	Frames        int            `json:"frames"`
	TotalNs       int64          `json:"total_ns"`
	TotalDuration string         `json:"total_duration"`
	FramesPerSec  float64        `json:"frames_per_sec"`
	Thread        vm.ThreadStats `json:"thread"`
}

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Drive synthetic call chains and report free list statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := BenchConfig{
			Calls:         viper.GetInt("calls"),
			Depth:         viper.GetInt("depth"),
			Locals:        viper.GetInt("locals"),
			Stack:         viper.GetInt("stack"),
			FreeListLimit: viper.GetInt("free-list-limit"),
		}
		result, err := runBench(cfg, vm.WithLogger(newLogger()))
		if err != nil {
			return err
		}
		if viper.GetBool("json") {
			return printJSON(result)
		}
		printBenchResult(result)
		return nil
	},
}

func init() {
	flags := benchCmd.Flags()
	flags.Int("calls", 1000, "Number of call chains to run")
	flags.Int("depth", 8, "Frames per call chain")
	flags.Int("locals", 4, "Fast locals per frame")
	flags.Int("stack", 4, "Value stack size per frame")
	flags.Int("free-list-limit", vm.DefaultFreeListLimit, "Cached storage blocks per thread")
	for _, name := range []string{"calls", "depth", "locals", "stack", "free-list-limit"} {
		viper.BindPFlag(name, flags.Lookup(name))
	}
}

func benchCode(name string, locals, stack int) (*bytecode.Code, error) {
	names := make([]string, locals)
	for i := range names {
		names[i] = fmt.Sprintf("l%d", i)
	}
	return bytecode.NewCode(bytecode.CodeParams{
		Name:       name,
		Filename:   "bench",
		FirstLine:  1,
		Flags:      bytecode.Optimized | bytecode.NewLocals,
		LocalNames: names,
		StackSize:  stack,
		BlockDepth: 1,
		Instructions: []op.Code{
			op.SetupLoop, op.LoadFast, op.StoreFast, op.PopBlock, op.ReturnValue,
		},
		Lines: []bytecode.LineEntry{
			{Offset: 0, Line: 1},
			{Offset: 1, Line: 2},
			{Offset: 4, Line: 3},
		},
	})
}

func runBench(cfg BenchConfig, options ...vm.Option) (*BenchResult, error) {
	if cfg.Calls < 1 || cfg.Depth < 1 {
		return nil, fmt.Errorf("calls and depth must be positive")
	}
	if cfg.Locals < 0 || cfg.Stack < 0 {
		return nil, fmt.Errorf("locals and stack must not be negative")
	}
	code, err := benchCode("bench", cfg.Locals, cfg.Stack)
	if err != nil {
		return nil, err
	}
	options = append(options,
		vm.WithFreeListLimit(cfg.FreeListLimit),
		vm.WithMaxDepth(cfg.Depth+1))
	th := vm.NewThread(options...)
	globals := object.NewMap(nil)

	start := time.Now()
	for i := 0; i < cfg.Calls; i++ {
		if err := runChain(th, code, globals, cfg.Depth); err != nil {
			th.Close()
			return nil, err
		}
	}
	elapsed := time.Since(start)

	frames := cfg.Calls * cfg.Depth
	result := &BenchResult{
		Config:        cfg,
		Frames:        frames,
		TotalNs:       elapsed.Nanoseconds(),
		TotalDuration: elapsed.Round(time.Microsecond).String(),
		Thread:        th.Stats(),
	}
	if elapsed > 0 {
		result.FramesPerSec = float64(frames) / elapsed.Seconds()
	}
	if err := th.Close(); err != nil {
		return nil, err
	}
	return result, nil
}

// runChain enters depth frames, has each one touch its locals, value stack
// and block stack, then returns from all of them.
func runChain(th *vm.Thread, code *bytecode.Code, globals *object.Map, depth int) error {
	frames := make([]*vm.Frame, 0, depth)
	for d := 0; d < depth; d++ {
		f, err := th.NewFrame(code, globals, nil)
		if err != nil {
			return err
		}
		if err := th.Enter(f); err != nil {
			return err
		}
		frames = append(frames, f)
		if err := f.Step(0); err != nil {
			return err
		}
		f.PushBlock(op.BlockLoop, 3, 0)
		for i := 0; i < f.LocalCount(); i++ {
			f.SetLocal(i, object.NewInt(int64(d*i)))
		}
		for i := 0; i < f.StackCapacity(); i++ {
			f.Push(object.NewInt(int64(i)))
		}
		if err := f.Step(1); err != nil {
			return err
		}
		f.UnwindTo(0)
		f.PopBlock()
	}
	for i := len(frames) - 1; i >= 0; i-- {
		f := frames[i]
		if err := f.Step(4); err != nil {
			return err
		}
		if err := th.Leave(f, object.Nil); err != nil {
			return err
		}
	}
	return nil
}

func printBenchResult(r *BenchResult) {
	title := color.New(color.FgYellow, color.Bold).SprintFunc()
	label := color.New(color.FgMagenta).SprintFunc()
	value := color.New(color.FgGreen).SprintFunc()
	muted := color.New(color.FgHiBlack).SprintFunc()

	row := func(name string, v any) {
		fmt.Printf("%s %s\n", label(fmt.Sprintf("%-16s", name+":")), value(fmt.Sprint(v)))
	}

	fmt.Println(title("Frame benchmark"))
	fmt.Println(muted(strings.Repeat("-", 40)))
	row("Calls", r.Config.Calls)
	row("Depth", r.Config.Depth)
	row("Locals", r.Config.Locals)
	row("Stack", r.Config.Stack)
	row("Frames", r.Frames)
	row("Total time", r.TotalDuration)
	row("Frames/sec", fmt.Sprintf("%.0f", r.FramesPerSec))
	fmt.Println()
	fmt.Println(title("Free list"))
	fmt.Println(muted(strings.Repeat("-", 40)))
	fl := r.Thread.FreeList
	row("Cached", fl.Cached)
	row("Limit", fl.Limit)
	row("Allocations", fl.Allocations)
	row("Reuses", fl.Reuses)
	row("Released", fl.Released)
}
