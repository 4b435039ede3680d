package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
)

// colorScheme groups the colors used for terminal output.
type colorScheme struct {
	Title   *color.Color
	Key     *color.Color
	Value   *color.Color
	Success *color.Color
	Warn    *color.Color
	Error   *color.Color
}

func defaultColors() *colorScheme {
	return &colorScheme{
		Title:   color.New(color.FgHiWhite, color.Bold),
		Key:     color.New(color.FgCyan),
		Value:   color.New(color.FgWhite),
		Success: color.New(color.FgGreen, color.Bold),
		Warn:    color.New(color.FgYellow, color.Bold),
		Error:   color.New(color.FgRed),
	}
}

// PrintError writes err to stderr.
func PrintError(err error) {
	colors.Error.Fprintf(os.Stderr, "Error: %v\n", err)
}

func printTitle(title string) {
	if jsonOut {
		return
	}
	colors.Title.Println(title)
}

// field is a label/value pair for printFields.
type field struct {
	label string
	value interface{}
}

// printFields prints aligned label/value rows.
func printFields(fields ...field) {
	width := 0
	for _, f := range fields {
		if len(f.label) > width {
			width = len(f.label)
		}
	}
	for _, f := range fields {
		colors.Key.Printf("  %-*s  ", width, f.label+":")
		colors.Value.Println(f.value)
	}
}

// printResult prints v as indented JSON. With --json the output is plain.
func printResult(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if jsonOut {
		fmt.Println(string(data))
		return nil
	}
	for _, line := range strings.Split(string(data), "\n") {
		printJSONLine(line)
	}
	return nil
}

// printJSONLine colors the key of a "key": value line.
func printJSONLine(line string) {
	trimmed := strings.TrimLeft(line, " ")
	if !strings.HasPrefix(trimmed, `"`) {
		fmt.Println(line)
		return
	}
	end := strings.Index(trimmed[1:], `":`)
	if end < 0 {
		colors.Value.Println(line)
		return
	}
	indent := line[:len(line)-len(trimmed)]
	key := trimmed[:end+2]
	fmt.Print(indent)
	colors.Key.Print(key)
	colors.Value.Println(trimmed[end+2:])
}

// render prints v as JSON under --json, otherwise calls pretty.
func render(v interface{}, pretty func()) error {
	if jsonOut {
		return printResult(v)
	}
	pretty()
	return nil
}
