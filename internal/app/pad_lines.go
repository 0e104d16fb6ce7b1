package app

import (
	"strings"

	xansi "github.com/charmbracelet/x/ansi"
)

// padLines fits every line to exactly width cells, cutting styled lines
// without breaking their escape sequences.
func padLines(lines []string, width int) string {
	if width <= 0 {
		return strings.Join(lines, "\n")
	}
	out := make([]string, len(lines))
	for i, line := range lines {
		switch w := xansi.StringWidth(line); {
		case w > width:
			line = xansi.Truncate(line, width, "")
		case w < width:
			line += strings.Repeat(" ", width-w)
		}
		out[i] = line
	}
	return strings.Join(out, "\n")
}
