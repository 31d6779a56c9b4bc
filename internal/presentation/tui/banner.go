package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

var bannerLines = []struct {
	text  string
	color string
}{
	{`    __ _ _ __| |__   ___  _ __ `, "#34d399"},
	{`   / _' | '__| '_ \ / _ \| '__|`, "#10b981"},
	{`  | (_| | |  | |_) | (_) | |   `, "#059669"},
	{`   \__,_|_|  |_.__/ \___/|_|   `, "#047857"},
}

// PrintBanner writes the arbor banner and version to w, colored when the
// terminal supports it.
func PrintBanner(w io.Writer, version string) {
	p := termenv.ColorProfile()
	fmt.Fprintln(w)
	for _, l := range bannerLines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w, termenv.String("  "+version).Faint())
	fmt.Fprintln(w)
}
