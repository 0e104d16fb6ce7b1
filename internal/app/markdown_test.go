package app

import (
	"strings"
	"testing"

	xansi "github.com/charmbracelet/x/ansi"
)

func TestBuildStyleConfigDisablesDocumentOuterMargins(t *testing.T) {
	cfg := buildStyleConfig()
	if cfg.Document.StylePrimitive.BlockPrefix != "" || cfg.Document.StylePrimitive.BlockSuffix != "" {
		t.Fatalf("expected empty document prefix and suffix")
	}
	if cfg.Document.Margin == nil || *cfg.Document.Margin != 0 {
		t.Fatalf("expected document margin 0")
	}
}

func TestRenderMarkdownKeepsTextWithinWidth(t *testing.T) {
	out := renderMarkdown("# QC report\n\n| lane | fov |\n|---|---|\n| s1 | 0.986 |\n", 40)
	if !strings.Contains(xansi.Strip(out), "QC report") {
		t.Fatalf("heading missing from %q", out)
	}
	for _, line := range strings.Split(out, "\n") {
		if w := xansi.StringWidth(line); w > 40 {
			t.Fatalf("line wider than 40 (%d): %q", w, line)
		}
	}
	if renderMarkdown("\n\n", 40) != "" {
		t.Fatalf("blank input should render empty")
	}
}
