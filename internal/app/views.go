package app

import (
	"bufio"
	"os"
	"strings"

	"github.com/mattn/go-runewidth"

	"guanin/internal/report"
	"guanin/internal/types"
)

const (
	labelColumnWidth = 28
	minValueWidth    = 12
	cursorMarker     = "› "
	blankMarker      = "  "
)

// renderParams draws the parameter table grouped by section. Rows are cut to
// the pane width by display cells so wide runes in paths do not wrap.
func (m *Model) renderParams() string {
	params := m.ctrl.Store().Params()
	valueWidth := max(minValueWidth, m.width-labelColumnWidth-len(cursorMarker)-2)
	var (
		lines   []string
		section string
	)
	for i, p := range m.params {
		if p.Section != section {
			section = p.Section
			lines = append(lines, sectionStyle.Render(strings.ToUpper(section)))
		}
		label := runewidth.FillRight(runewidth.Truncate(p.Label, labelColumnWidth, "…"), labelColumnWidth)
		value := p.Format(params)
		if value == "" {
			value = "-"
		}
		value = runewidth.Truncate(value, valueWidth, "…")
		if i == m.cursor {
			lines = append(lines, selectedStyle.Render(cursorMarker+label+"  "+value))
			continue
		}
		lines = append(lines, blankMarker+labelStyle.Render(label)+"  "+valueStyle.Render(value))
	}
	return padLines(m.visibleRows(lines), m.width)
}

// visibleRows keeps the cursor on screen when the table is taller than the pane.
func (m *Model) visibleRows(lines []string) []string {
	limit := max(minContentHeight, m.height-8)
	if len(lines) <= limit {
		return lines
	}
	cursorLine := 0
	section := ""
	for i, p := range m.params {
		if p.Section != section {
			section = p.Section
			cursorLine++
		}
		if i == m.cursor {
			break
		}
		cursorLine++
	}
	start := max(0, cursorLine-limit/2)
	if start+limit > len(lines) {
		start = len(lines) - limit
	}
	return lines[start : start+limit]
}

func (m *Model) openMarkdown(title, source string) {
	m.reportSource = source
	m.openReport(title, renderMarkdown(source, m.viewport.Width), true)
}

func (m *Model) openReport(title, text string, rendered bool) {
	if !rendered {
		m.reportSource = text
	}
	m.mode = uiModeReport
	m.reportTitle = title
	m.reportText = text
	m.viewport.SetContent(text)
	m.viewport.GotoTop()
}

func renderNormArtifacts(d types.Derived) string {
	text := report.ContentNorm(d.ContentNorm)
	if d.Evaluation != nil {
		text += "\n" + report.Evaluation(d.Evaluation, d.ContentNorm)
	}
	return text
}

func renderSummary(params types.Parameters, d types.Derived) string {
	return report.Summary(params.Effective(), d)
}

// tailFile returns the last n lines of path.
func tailFile(path string, n int) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	ring := make([]string, 0, n)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if len(ring) == n {
			ring = ring[1:]
		}
		ring = append(ring, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return strings.Join(ring, "\n"), nil
}
