package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// IO handles command output. Warnings are collected and printed to stderr
// at both the start and the end of the output so they survive truncation
// by head or tail.
type IO struct {
	out      io.Writer
	errOut   io.Writer
	warnings []string
	started  bool

	warnColor *color.Color
	errColor  *color.Color
	okColor   *color.Color
}

// NewIO creates a new IO instance. mode is auto, always or never; auto
// colors stderr only when it is a terminal.
func NewIO(out, errOut io.Writer, mode string) *IO {
	o := &IO{
		out:       out,
		errOut:    errOut,
		warnColor: color.New(color.FgYellow),
		errColor:  color.New(color.FgRed, color.Bold),
		okColor:   color.New(color.FgGreen),
	}

	enabled := mode == "always" || (mode != "never" && isTerminal(errOut))

	for _, c := range []*color.Color{o.warnColor, o.errColor, o.okColor} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}

	return o
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Out returns the stdout writer, flushing pending warnings first. Use it
// for renderers that write directly.
func (o *IO) Out() io.Writer {
	o.flushWarningsStart()

	return o.out
}

// Warn adds a warning. Warnings do not change the exit code.
func (o *IO) Warn(format string, a ...any) {
	o.warnings = append(o.warnings, fmt.Sprintf(format, a...))
}

// Println writes to stdout. On first call, any collected warnings
// are printed to stderr first.
func (o *IO) Println(a ...any) {
	o.flushWarningsStart()
	_, _ = fmt.Fprintln(o.out, a...)
}

// Printf writes formatted output to stdout. On first call, any collected
// warnings are printed to stderr first.
func (o *IO) Printf(format string, a ...any) {
	o.flushWarningsStart()
	_, _ = fmt.Fprintf(o.out, format, a...)
}

// Success writes a highlighted line to stdout.
func (o *IO) Success(format string, a ...any) {
	o.flushWarningsStart()
	_, _ = o.okColor.Fprintf(o.out, format+"\n", a...)
}

// ErrPrintln writes to stderr.
func (o *IO) ErrPrintln(a ...any) {
	_, _ = fmt.Fprintln(o.errOut, a...)
}

// Error writes "error: <err>" to stderr.
func (o *IO) Error(err error) {
	_, _ = o.errColor.Fprint(o.errOut, "error:")
	_, _ = fmt.Fprintln(o.errOut, "", err)
}

// Finish prints warnings to stderr again and returns the exit code.
func (o *IO) Finish() int {
	// If no output happened but we have warnings, print them at "start" position
	o.flushWarningsStart()

	// Always print at end
	o.printWarnings()

	return 0
}

func (o *IO) flushWarningsStart() {
	if !o.started && len(o.warnings) > 0 {
		o.printWarnings()

		o.started = true
	}
}

func (o *IO) printWarnings() {
	for _, w := range o.warnings {
		_, _ = o.warnColor.Fprint(o.errOut, "warning:")
		_, _ = fmt.Fprintln(o.errOut, "", w)
	}
}
