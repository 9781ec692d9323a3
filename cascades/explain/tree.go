// Package explain renders planner output for people: chosen plan trees,
// memo contents and result tables.
package explain

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/wbrown/janus-cascades/cascades/memo"
	"github.com/wbrown/janus-cascades/cascades/planner"
)

// Printer writes plan and memo trees.
type Printer struct {
	w        io.Writer
	useColor bool
}

// NewPrinter returns a printer on w. Color is used only when w is a
// terminal and color is not globally disabled.
func NewPrinter(w io.Writer) *Printer {
	if w == nil {
		w = os.Stdout
	}
	useColor := false
	if f, ok := w.(*os.File); ok {
		useColor = (f.Fd() == 1 || f.Fd() == 2) && !color.NoColor
	}
	return &Printer{w: w, useColor: useColor}
}

// Plain returns a printer that never colors its output.
func Plain(w io.Writer) *Printer {
	return &Printer{w: w}
}

func (p *Printer) colorize(text string, attrs ...color.Attribute) string {
	if !p.useColor {
		return text
	}
	return color.New(attrs...).Sprint(text)
}

// PlanTree writes the operators of root, one per line, indented by depth.
func (p *Printer) PlanTree(root *planner.PlanNode) error {
	if root == nil {
		_, err := fmt.Fprintln(p.w, p.colorize("(no plan)", color.FgRed))
		return err
	}
	var err error
	root.Walk(func(n *planner.PlanNode, depth int) {
		if err != nil {
			return
		}
		var sb strings.Builder
		sb.WriteString(strings.Repeat("  ", depth))
		if depth > 0 {
			sb.WriteString("└─ ")
		}
		sb.WriteString(p.colorize(n.Plan.String(), color.FgCyan))
		sb.WriteString(" ")
		sb.WriteString(p.colorize(n.Group.String(), color.FgBlue))
		fmt.Fprintf(&sb, " rows=%.0f cost=%.2f", n.Estimate.Rows, n.Estimate.Cost)
		if len(n.Ordering.Parts) > 0 {
			sb.WriteString(" order=")
			sb.WriteString(p.colorize(n.Ordering.String(), color.FgYellow))
		}
		if n.Enforced {
			sb.WriteString(" ")
			sb.WriteString(p.colorize("(enforced)", color.FgMagenta))
		}
		_, err = fmt.Fprintln(p.w, sb.String())
	})
	return err
}

// MemoTree writes every group of m with its members. Physical members are
// marked with an asterisk.
func (p *Printer) MemoTree(m *memo.Memo) error {
	for _, id := range m.Groups() {
		g := m.Group(id)
		if _, err := fmt.Fprintf(p.w, "%s (%d members)\n", p.colorize(id.String(), color.FgBlue, color.Bold), len(g.Members())); err != nil {
			return err
		}
		for _, e := range g.Members() {
			mark, attr := " ", color.FgWhite
			if memo.IsPlan(e) {
				mark, attr = "*", color.FgGreen
			}
			if _, err := fmt.Fprintf(p.w, "  %s %s\n", mark, p.colorize(e.String(), attr)); err != nil {
				return err
			}
		}
	}
	return nil
}

// Result writes a planning result: the plan tree followed by its
// statistics line.
func (p *Printer) Result(r *planner.Result) error {
	if err := p.PlanTree(r.Root); err != nil {
		return err
	}
	_, err := fmt.Fprintf(p.w, "%s %d groups, %d expressions, %d tasks, %d partial matches in %s\n",
		p.colorize("==", color.FgGreen), r.Stats.Groups, r.Stats.Expressions, r.Stats.Tasks,
		r.Stats.PartialMatches, r.Stats.Duration)
	return err
}
