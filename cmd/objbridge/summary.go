package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/woxQAQ/objparser-bridge/pkg/objparser"
	"golang.org/x/term"
)

var (
	primaryColor = lipgloss.Color("#7C3AED")
	okColor      = lipgloss.Color("#10B981")
	warnColor    = lipgloss.Color("#F59E0B")
	dimColor     = lipgloss.Color("#6B7280")

	fileStyle  = lipgloss.NewStyle().Bold(true).Foreground(primaryColor)
	okStyle    = lipgloss.NewStyle().Foreground(okColor)
	warnStyle  = lipgloss.NewStyle().Foreground(warnColor)
	labelStyle = lipgloss.NewStyle().Foreground(dimColor).Width(10)
	boxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(dimColor).
			Padding(0, 1)
)

// isTerminal reports whether f is attached to a terminal.
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// printSummary writes one result, styled when styled is set.
func printSummary(w io.Writer, s objparser.Stats, styled bool) {
	if !styled {
		if !s.Accepted {
			fmt.Fprintf(w, "%s: no mesh produced (%s)\n", s.Source, s.Engine)
			return
		}
		fmt.Fprintf(w, "%s: %d vertices, %d triangles, bounds %v..%v (%s, %v)\n",
			s.Source, s.Vertices, s.Triangles, s.Min, s.Max, s.Engine, s.Duration)
		return
	}

	var b strings.Builder
	b.WriteString(fileStyle.Render(s.Source))
	b.WriteString("\n")
	if !s.Accepted {
		b.WriteString(warnStyle.Render("no mesh produced"))
	} else {
		rows := [][2]string{
			{"vertices", okStyle.Render(fmt.Sprint(s.Vertices))},
			{"triangles", okStyle.Render(fmt.Sprint(s.Triangles))},
			{"min", fmt.Sprint(s.Min)},
			{"max", fmt.Sprint(s.Max)},
		}
		for i, row := range rows {
			if i > 0 {
				b.WriteString("\n")
			}
			b.WriteString(labelStyle.Render(row[0]) + row[1])
		}
	}
	b.WriteString("\n")
	b.WriteString(labelStyle.Render("engine") + fmt.Sprintf("%s (%s) %v", s.Engine, s.Kind, s.Duration))

	fmt.Fprintln(w, boxStyle.Render(b.String()))
}
