package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/hokaccha/go-prettyjson"
	"github.com/mattn/go-isatty"
	"github.com/risor-io/callframe/bytecode"
	"github.com/spf13/viper"
)

func fatal(msg interface{}) {
	var s string
	switch msg := msg.(type) {
	case string:
		s = msg
	case error:
		s = msg.Error()
	default:
		s = fmt.Sprintf("%v", msg)
	}
	fmt.Fprintf(os.Stderr, "%s\n", red(s))
	os.Exit(1)
}

func isTerminalOutput() bool {
	stdout := os.Stdout.Fd()
	return isatty.IsTerminal(stdout) || isatty.IsCygwinTerminal(stdout)
}

// Reads global flags from Viper and adjusts the environment accordingly.
func processGlobalFlags() {
	if viper.GetBool("no-color") || !isTerminalOutput() {
		color.NoColor = true
	}
}

func getOutputJSON(value any) ([]byte, error) {
	if color.NoColor {
		return json.MarshalIndent(value, "", "  ")
	}
	return prettyjson.Marshal(value)
}

func printJSON(value any) error {
	output, err := getOutputJSON(value)
	if err != nil {
		return err
	}
	fmt.Println(string(output))
	return nil
}

// parseLineTable parses entries of the form "offset:line" or
// "offset:line:column" separated by commas.
func parseLineTable(s string) ([]bytecode.LineEntry, error) {
	var entries []bytecode.LineEntry
	for _, item := range splitList(s) {
		parts := strings.Split(item, ":")
		if len(parts) < 2 || len(parts) > 3 {
			return nil, fmt.Errorf("invalid line table entry %q (want offset:line[:column])", item)
		}
		nums := make([]int, len(parts))
		for i, p := range parts {
			n, err := strconv.Atoi(p)
			if err != nil {
				return nil, fmt.Errorf("invalid line table entry %q: %w", item, err)
			}
			nums[i] = n
		}
		entry := bytecode.LineEntry{Offset: nums[0], Line: nums[1]}
		if len(nums) == 3 {
			entry.Column = nums[2]
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// parseOffsets parses a comma separated list of instruction offsets.
func parseOffsets(s string) ([]int, error) {
	var offsets []int
	for _, item := range splitList(s) {
		n, err := strconv.Atoi(item)
		if err != nil {
			return nil, fmt.Errorf("invalid offset %q: %w", item, err)
		}
		if n < 0 {
			return nil, fmt.Errorf("invalid offset %d: must not be negative", n)
		}
		offsets = append(offsets, n)
	}
	return offsets, nil
}

func splitList(s string) []string {
	var items []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
