package commands

import (
	"fmt"
	"io"
	"sort"

	"github.com/fatih/color"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
)

// printer writes colored, human-oriented output. Colors follow
// color.NoColor, so redirected output stays plain.
type printer struct {
	w io.Writer
}

func newPrinter(w io.Writer) *printer {
	return &printer{w: w}
}

// Success prints a green line prefixed with a check mark.
func (p *printer) Success(format string, a ...any) {
	green.Fprintf(p.w, "✓ %s\n", fmt.Sprintf(format, a...))
}

// Warning prints a yellow line prefixed with a warning sign.
func (p *printer) Warning(format string, a ...any) {
	yellow.Fprintf(p.w, "⚠ %s\n", fmt.Sprintf(format, a...))
}

// Error prints a bold red line.
func (p *printer) Error(format string, a ...any) {
	red.Fprintf(p.w, "✗ %s\n", fmt.Sprintf(format, a...))
}

// Step prints a cyan progress line.
func (p *printer) Step(format string, a ...any) {
	cyan.Fprintf(p.w, "→ %s\n", fmt.Sprintf(format, a...))
}

// Printf prints plain text.
func (p *printer) Printf(format string, a ...any) {
	fmt.Fprintf(p.w, format, a...)
}

// Fields prints key/value pairs aligned on the key column, sorted by key.
func (p *printer) Fields(fields map[string]string) {
	keys := make([]string, 0, len(fields))
	width := 0
	for k := range fields {
		keys = append(keys, k)
		if len(k) > width {
			width = len(k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(p.w, "  %-*s  %s\n", width+1, k+":", fields[k])
	}
}
