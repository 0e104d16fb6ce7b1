package app

import (
	"strings"
	"testing"
)

func TestHotkeyRendererFollowsMode(t *testing.T) {
	r := NewHotkeyRenderer(DefaultHotkeys(), DefaultHotkeyResolver{})
	m := &Model{mode: uiModeReport}
	out := r.Render(m, 0)
	if !strings.HasPrefix(out, "esc/q close") {
		t.Fatalf("unexpected report hotkeys %q", out)
	}
	if strings.Contains(out, "load") {
		t.Fatalf("stage keys should be hidden in report mode: %q", out)
	}
}

func TestHotkeyRendererFitsWidth(t *testing.T) {
	r := NewHotkeyRenderer(DefaultHotkeys(), DefaultHotkeyResolver{})
	m := &Model{}
	full := r.Render(m, 0)
	cut := r.Render(m, 30)
	if len(cut) >= len(full) {
		t.Fatalf("expected narrower output")
	}
	if !strings.HasPrefix(cut, "L load") {
		t.Fatalf("highest priority hotkey should survive: %q", cut)
	}
	if strings.HasSuffix(cut, hotkeySeparator) {
		t.Fatalf("dangling separator in %q", cut)
	}
}

func TestPadLinesFitsWidth(t *testing.T) {
	out := padLines([]string{"ab", "abcdef"}, 4)
	if out != "ab  \nabcd" {
		t.Fatalf("unexpected padding %q", out)
	}
}
