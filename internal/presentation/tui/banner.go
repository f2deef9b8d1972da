package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the flowline banner to w.
func PrintBanner(w io.Writer, version string) {
	out := termenv.NewOutput(w)
	lines := []struct {
		text  string
		color string
	}{
		{"   __ _               _ _            ", "#818cf8"},
		{"  / _| | _____      _| (_)_ __   ___ ", "#a78bfa"},
		{" | |_| |/ _ \\ \\ /\\ / / | | '_ \\ / _ \\", "#c084fc"},
		{" |  _| | (_) \\ V  V /| | | | | |  __/", "#e879f9"},
		{" |_| |_|\\___/ \\_/\\_/ |_|_|_| |_|\\___|", "#f472b6"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, out.String(l.text).Foreground(out.Color(l.color)))
	}
	fmt.Fprintln(w, out.String("  workflow graph engine "+version).Faint())
	fmt.Fprintln(w)
}
