package console

import (
	"fmt"
	"io"

	"github.com/charmbracelet/glamour"
	"github.com/muesli/termenv"
)

// NewMarkdownRenderer returns a glamour renderer picking a light or dark
// style from the terminal background.
func NewMarkdownRenderer(width int) (Renderer, error) {
	opts := []glamour.TermRendererOption{glamour.WithAutoStyle()}
	if width > 0 {
		opts = append(opts, glamour.WithWordWrap(width))
	}
	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return nil, err
	}
	return r.Render, nil
}

// PrintBanner writes the canopy banner to w.
func PrintBanner(w io.Writer) {
	p := termenv.ColorProfile()
	lines := []struct {
		text  string
		color string
	}{
		{`   ___ __ _ _ __   ___  _ __  _   _ `, "#34d399"},
		{`  / __/ _' | '_ \ / _ \| '_ \| | | |`, "#10b981"},
		{` | (_| (_| | | | | (_) | |_) | |_| |`, "#059669"},
		{`  \___\__,_|_| |_|\___/| .__/ \__, |`, "#047857"},
		{`                       |_|    |___/ `, "#065f46"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w)
}
