package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"noteposter/core"
	"noteposter/orchestrator"
)

// consoleOptions satisfies the options contract from command-line flags.
// Custom cartoon panel counts are clamped to [2,12] here, at input time;
// nothing downstream re-clamps.
type consoleOptions struct {
	style       core.Style
	size        core.Size
	cartoonCuts string
	customCuts  int
}

func (c *consoleOptions) Collect(ctx context.Context, defaults orchestrator.OptionsResult) (orchestrator.OptionsResult, error) {
	opts := defaults
	opts.Confirmed = true

	if c.style != "" {
		opts.Style = c.style
	}
	if c.size != "" {
		opts.Size = c.size
	}
	if opts.Style == core.StyleCartoon {
		cuts := orchestrator.GetCartoonCutsNumber(c.cartoonCuts, c.customCuts)
		opts.PanelCount = core.ClampPanelCount(cuts)
	}
	return opts, nil
}

// consolePreview shows the generated prompt on the terminal and reads the
// user's decision: accept, edit, regenerate, or cancel.
type consolePreview struct {
	in  *bufio.Reader
	out io.Writer
}

func newConsolePreview(in io.Reader, out io.Writer) *consolePreview {
	return &consolePreview{in: bufio.NewReader(in), out: out}
}

func (p *consolePreview) ShowPrompt(ctx context.Context, prompt string) (orchestrator.PreviewResult, error) {
	bold := color.New(color.Bold)
	bold.Fprintln(p.out, "\nGenerated prompt:")
	fmt.Fprintf(p.out, "\n  %s\n\n", prompt)
	fmt.Fprint(p.out, "[a]ccept, [e]dit, [r]egenerate, [c]ancel? ")

	line, err := p.in.ReadString('\n')
	if err != nil && line == "" {
		// EOF with no input: treat as accept so piped runs proceed.
		return orchestrator.PreviewResult{Confirmed: true, Prompt: prompt}, nil
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "r", "regenerate":
		return orchestrator.PreviewResult{Regenerate: true}, nil
	case "c", "cancel":
		return orchestrator.PreviewResult{}, nil
	case "e", "edit":
		fmt.Fprint(p.out, "New prompt: ")
		edited, err := p.in.ReadString('\n')
		if err != nil && edited == "" {
			return orchestrator.PreviewResult{Confirmed: true, Prompt: prompt}, nil
		}
		return orchestrator.PreviewResult{Confirmed: true, Prompt: strings.TrimSpace(edited)}, nil
	default:
		return orchestrator.PreviewResult{Confirmed: true, Prompt: prompt}, nil
	}
}

// consoleProgress renders progress milestones and the terminal outcome.
type consoleProgress struct {
	out io.Writer
}

func (c *consoleProgress) Update(state orchestrator.ProgressState) {
	fmt.Fprintf(c.out, "[%3d%%] %-18s %s\n", state.Progress, state.Step, state.Message)
}

func (c *consoleProgress) Success(path string) {
	color.New(color.FgGreen).Fprintf(c.out, "Poster saved: %s\n", path)
}

func (c *consoleProgress) Error(err *core.GenerationError) {
	red := color.New(color.FgRed)
	red.Fprintf(c.out, "Generation failed: %s\n", err.Message)
	if err.Details != "" {
		fmt.Fprintf(c.out, "  details: %s\n", err.Details)
	}
	for _, suggestion := range err.Kind.Suggestions() {
		fmt.Fprintf(c.out, "  - %s\n", suggestion)
	}
}

// consoleNotifier prints transient notifications.
type consoleNotifier struct {
	out io.Writer
}

func (c *consoleNotifier) Notify(message string) {
	color.New(color.FgYellow).Fprintln(c.out, message)
}
