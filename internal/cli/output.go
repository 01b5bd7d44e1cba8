package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// Output handles formatted output for the CLI. In JSON mode every
// command prints exactly one document and nothing else.
type Output struct {
	writer   io.Writer
	jsonMode bool

	success *color.Color
	failure *color.Color
	warning *color.Color
	info    *color.Color
	header  *color.Color
	dim     *color.Color
}

// NewOutput creates a new Output instance bound to the command's
// stdout. Color is disabled in JSON mode and on non-terminals (the
// color package handles the latter itself).
func NewOutput(cmd *cobra.Command) *Output {
	jsonMode, _ := cmd.Flags().GetBool("json")
	o := &Output{
		writer:   cmd.OutOrStdout(),
		jsonMode: jsonMode,
		success:  color.New(color.FgGreen),
		failure:  color.New(color.FgRed),
		warning:  color.New(color.FgYellow),
		info:     color.New(color.FgCyan),
		header:   color.New(color.Bold),
		dim:      color.New(color.Faint),
	}
	if jsonMode {
		for _, c := range []*color.Color{o.success, o.failure, o.warning, o.info, o.header, o.dim} {
			c.DisableColor()
		}
	}
	return o
}

// IsJSON returns true if JSON output mode is enabled.
func (o *Output) IsJSON() bool {
	return o.jsonMode
}

// JSON outputs data as an indented JSON document.
func (o *Output) JSON(data interface{}) error {
	encoder := json.NewEncoder(o.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// Printf prints a formatted message.
func (o *Output) Printf(format string, args ...interface{}) {
	fmt.Fprintf(o.writer, format, args...)
}

// Println prints a message with newline.
func (o *Output) Println(args ...interface{}) {
	fmt.Fprintln(o.writer, args...)
}

// Header prints a bold section header.
func (o *Output) Header(format string, args ...interface{}) {
	o.header.Fprintf(o.writer, format+"\n", args...)
}

// Success prints a success message in green.
func (o *Output) Success(format string, args ...interface{}) {
	o.success.Fprintf(o.writer, format+"\n", args...)
}

// Error prints an error message in red to stderr.
func (o *Output) Error(format string, args ...interface{}) {
	o.failure.Fprintf(os.Stderr, format+"\n", args...)
}

// Warning prints a warning message in yellow.
func (o *Output) Warning(format string, args ...interface{}) {
	o.warning.Fprintf(o.writer, format+"\n", args...)
}

// Info prints an info message in cyan.
func (o *Output) Info(format string, args ...interface{}) {
	o.info.Fprintf(o.writer, format+"\n", args...)
}

// Dim prints a de-emphasized message.
func (o *Output) Dim(format string, args ...interface{}) {
	o.dim.Fprintf(o.writer, format+"\n", args...)
}

// Action returns the action string colored by direction: BUY green,
// SELL red, anything else dimmed.
func (o *Output) Action(action string) string {
	switch action {
	case "BUY":
		return o.success.Sprint(action)
	case "SELL":
		return o.failure.Sprint(action)
	default:
		return o.dim.Sprint(action)
	}
}

// Signed returns a signed value colored by sign.
func (o *Output) Signed(format string, value float64) string {
	s := fmt.Sprintf(format, value)
	if value > 0 {
		return o.success.Sprint(s)
	}
	if value < 0 {
		return o.failure.Sprint(s)
	}
	return s
}
