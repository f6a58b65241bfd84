// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package report

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Styles used for terminal output.
type Styles struct {
	Pass    lipgloss.Style
	Fail    lipgloss.Style
	Skip    lipgloss.Style
	Info    lipgloss.Style
	Comment lipgloss.Style
	Header  lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) Styles {
	return Styles{
		Pass:    r.NewStyle().Foreground(lipgloss.Color("42")),
		Fail:    r.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		Skip:    r.NewStyle().Foreground(lipgloss.Color("244")),
		Info:    r.NewStyle().Foreground(lipgloss.Color("63")),
		Comment: r.NewStyle().Foreground(lipgloss.Color("240")).Faint(true),
		Header:  r.NewStyle().Foreground(lipgloss.Color("39")).Bold(true),
	}
}

// ColorEnabled resolves a color mode (auto, always, never) for w.
// auto colors only terminals and honours NO_COLOR.
func ColorEnabled(mode string, w io.Writer) bool {
	switch mode {
	case "always":
		return true
	case "never":
		return false
	}
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func newRenderer(w io.Writer, color bool) *lipgloss.Renderer {
	r := lipgloss.NewRenderer(w)
	if color {
		r.SetColorProfile(termenv.ANSI256)
	} else {
		r.SetColorProfile(termenv.Ascii)
	}
	return r
}
