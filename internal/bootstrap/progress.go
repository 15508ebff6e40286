package bootstrap

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/shinji-kodama/venv-bootstrap/internal/model"
)

// Progress writes the operator-facing progress lines.
//
// Styling comes from a lipgloss renderer bound to the destination writer,
// so colors only appear when that writer is a terminal. Redirected output
// and test buffers get plain text.
type Progress struct {
	w       io.Writer
	header  lipgloss.Style
	counter lipgloss.Style
	success lipgloss.Style
}

// NewProgress returns a Progress writing to w.
func NewProgress(w io.Writer) *Progress {
	r := lipgloss.NewRenderer(w)
	return &Progress{
		w:       w,
		header:  r.NewStyle().Bold(true),
		counter: r.NewStyle().Foreground(lipgloss.Color("12")),
		success: r.NewStyle().Bold(true).Foreground(lipgloss.Color("10")),
	}
}

// Step announces that step n of total is about to run.
func (p *Progress) Step(n, total int, step model.Step) {
	fmt.Fprintf(p.w, "%s %s\n",
		p.counter.Render(fmt.Sprintf("[%d/%d]", n, total)),
		p.header.Render(step.Title()+"..."),
	)
}

// Guidance prints the final instruction block. The command itself is
// written unstyled so it can be copied verbatim.
func (p *Progress) Guidance(text string) {
	fmt.Fprintln(p.w)
	fmt.Fprintln(p.w, p.success.Render(GuidanceHeader))
	fmt.Fprintf(p.w, "  %s\n", text)
}
