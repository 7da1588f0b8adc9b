package common

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

var (
	stepStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	doneStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	itemStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// Progress prints numbered stage lines for a single run.
type Progress struct {
	w    io.Writer
	step int
}

func NewProgress(w io.Writer) *Progress {
	return &Progress{w: w}
}

// Step announces the next stage, e.g. "1) Extracting text...".
func (p *Progress) Step(msg string) {
	if p == nil || p.w == nil {
		return
	}
	p.step++
	fmt.Fprintln(p.w, stepStyle.Render(fmt.Sprintf("%d) %s", p.step, msg)))
}

func (p *Progress) Warn(msg string) {
	if p == nil || p.w == nil {
		return
	}
	fmt.Fprintln(p.w, warnStyle.Render("! "+msg))
}

// Done prints the closing summary with one line per output.
func (p *Progress) Done(outputs ...string) {
	if p == nil || p.w == nil {
		return
	}
	fmt.Fprintln(p.w, doneStyle.Render("Done. Outputs:"))
	for _, o := range outputs {
		fmt.Fprintln(p.w, itemStyle.Render(" - "+o))
	}
}

// Steps returns how many stages were announced.
func (p *Progress) Steps() int {
	if p == nil {
		return 0
	}
	return p.step
}
