// Package presenter writes user-facing CLI output with optional color.
package presenter

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
)

type ColorMode int

const (
	ColorAuto ColorMode = iota
	ColorAlways
	ColorNever
)

// TerminalPresenter writes messages to stdout and errors to stderr.
type TerminalPresenter struct {
	output      io.Writer
	errorOutput io.Writer
	colorMode   ColorMode
	quiet       bool
}

func New() *TerminalPresenter {
	return NewWithOptions(os.Stdout, os.Stderr, detectColorMode())
}

func NewWithOptions(output, errorOutput io.Writer, colorMode ColorMode) *TerminalPresenter {
	switch colorMode {
	case ColorAlways:
		color.NoColor = false
	case ColorNever:
		color.NoColor = true
	}
	return &TerminalPresenter{
		output:      output,
		errorOutput: errorOutput,
		colorMode:   colorMode,
	}
}

// detectColorMode honours NO_COLOR, then TRADEDESK_COLOR.
func detectColorMode() ColorMode {
	if os.Getenv("NO_COLOR") != "" {
		return ColorNever
	}
	switch os.Getenv("TRADEDESK_COLOR") {
	case "always", "force":
		return ColorAlways
	case "never", "off":
		return ColorNever
	default:
		return ColorAuto
	}
}

func (p *TerminalPresenter) Output() io.Writer { return p.output }

func (p *TerminalPresenter) Error(err error, context string) {
	if err == nil {
		return
	}
	c := color.New(color.FgRed, color.Bold)
	if context != "" {
		c.Fprintf(p.errorOutput, "[ERROR] %s: %v\n", context, err)
		return
	}
	c.Fprintf(p.errorOutput, "[ERROR] %v\n", err)
}

func (p *TerminalPresenter) Success(message string) {
	if p.quiet {
		return
	}
	color.New(color.FgGreen, color.Bold).Fprintf(p.output, "✓ %s\n", message)
}

func (p *TerminalPresenter) Warning(message string) {
	if p.quiet {
		return
	}
	color.New(color.FgYellow, color.Bold).Fprintf(p.output, "⚠ %s\n", message)
}

func (p *TerminalPresenter) Info(message string) {
	if p.quiet {
		return
	}
	fmt.Fprintf(p.output, "%s\n", message)
}

func (p *TerminalPresenter) Section(title string) {
	if p.quiet {
		return
	}
	c := color.New(color.Bold)
	c.Fprintf(p.output, "%s\n", title)
	c.Fprintf(p.output, "%s\n", strings.Repeat("-", len(title)))
}

func (p *TerminalPresenter) Separator() {
	if p.quiet {
		return
	}
	color.New(color.Faint).Fprintf(p.output, "%s\n", strings.Repeat("-", 60))
}

// Markdown prints a report body verbatim. Quiet mode does not suppress it,
// since the report is the command's output.
func (p *TerminalPresenter) Markdown(body string) {
	fmt.Fprint(p.output, body)
	if !strings.HasSuffix(body, "\n") {
		fmt.Fprintln(p.output)
	}
}

func (p *TerminalPresenter) SetQuiet(quiet bool) { p.quiet = quiet }

func (p *TerminalPresenter) IsQuiet() bool { return p.quiet }

// Action colors a trade action: BUY green, SELL red, anything else yellow.
func Action(action string) string {
	switch strings.ToUpper(action) {
	case "BUY":
		return color.New(color.FgGreen, color.Bold).Sprint(action)
	case "SELL":
		return color.New(color.FgRed, color.Bold).Sprint(action)
	default:
		return color.New(color.FgYellow, color.Bold).Sprint(action)
	}
}

var defaultPresenter = New()

// Default returns the process-wide presenter.
func Default() *TerminalPresenter { return defaultPresenter }

func Error(err error, context string) { defaultPresenter.Error(err, context) }

func Success(message string) { defaultPresenter.Success(message) }

func Warning(message string) { defaultPresenter.Warning(message) }

func Info(message string) { defaultPresenter.Info(message) }

func Section(title string) { defaultPresenter.Section(title) }

func Separator() { defaultPresenter.Separator() }

func Markdown(body string) { defaultPresenter.Markdown(body) }

func SetQuiet(quiet bool) { defaultPresenter.SetQuiet(quiet) }
