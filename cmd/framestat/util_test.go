package main

import (
	"testing"

	"github.com/risor-io/callframe/bytecode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLineTable(t *testing.T) {
	entries, err := parseLineTable("0:1, 4:2,9:4:7")
	require.NoError(t, err)
	assert.Equal(t, []bytecode.LineEntry{
		{Offset: 0, Line: 1},
		{Offset: 4, Line: 2},
		{Offset: 9, Line: 4, Column: 7},
	}, entries)

	entries, err = parseLineTable("")
	require.NoError(t, err)
	assert.Empty(t, entries)

	for _, bad := range []string{"1", "a:1", "1:2:3:4", "1:x"} {
		_, err := parseLineTable(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseOffsets(t *testing.T) {
	offsets, err := parseOffsets("0,4, 4,9")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 4, 4, 9}, offsets)

	_, err = parseOffsets("1,-2")
	assert.Error(t, err)
	_, err = parseOffsets("1,two")
	assert.Error(t, err)
}

func TestResolveLines(t *testing.T) {
	entries, err := parseLineTable("0:1,4:2,9:4")
	require.NoError(t, err)

	code, err := linesCode(1, entries, []int{0, 4, 4, 9})
	require.NoError(t, err)
	assert.Equal(t, 10, code.InstructionCount())
	results, err := resolveLines(code, []int{0, 4, 4, 9}, false)
	require.NoError(t, err)
	var lines []int
	for _, r := range results {
		lines = append(lines, r.Line)
		assert.False(t, r.Event)
	}
	assert.Equal(t, []int{1, 2, 2, 4}, lines)

	results, err = resolveLines(code, []int{0, 1, 4, 5, 9}, true)
	require.NoError(t, err)
	var events []bool
	for _, r := range results {
		events = append(events, r.Event)
	}
	assert.Equal(t, []bool{true, false, true, false, true}, events)

	_, err = linesCode(1, []bytecode.LineEntry{{Offset: 4, Line: 1}, {Offset: 2, Line: 2}}, nil)
	assert.Error(t, err)
}

func TestRunBench(t *testing.T) {
	result, err := runBench(BenchConfig{Calls: 5, Depth: 3, Locals: 2, Stack: 2, FreeListLimit: 10})
	require.NoError(t, err)
	assert.Equal(t, 15, result.Frames)
	assert.Equal(t, 0, result.Thread.Depth)
	assert.Equal(t, 0, result.Thread.LiveFrames)
	assert.Equal(t, 0, result.Thread.SlotsInUse)

	// Only the first chain allocates; later ones reuse its storage.
	fl := result.Thread.FreeList
	assert.Equal(t, 3, fl.Allocations)
	assert.Equal(t, 12, fl.Reuses)
	assert.Equal(t, 3, fl.Cached)

	_, err = runBench(BenchConfig{Calls: 0, Depth: 1})
	assert.Error(t, err)
}
