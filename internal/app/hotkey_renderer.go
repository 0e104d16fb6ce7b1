package app

import (
	"sort"
	"strings"

	"github.com/mattn/go-runewidth"
)

const hotkeySeparator = " • "

type HotkeyRenderer struct {
	hotkeys  []Hotkey
	resolver HotkeyResolver
}

func NewHotkeyRenderer(hotkeys []Hotkey, resolver HotkeyResolver) *HotkeyRenderer {
	return &HotkeyRenderer{hotkeys: hotkeys, resolver: resolver}
}

// Render lists the hotkeys active for m, highest priority first, dropping the
// tail that does not fit in width. A width of zero means unlimited.
func (r *HotkeyRenderer) Render(m *Model, width int) string {
	if r == nil || r.resolver == nil {
		return ""
	}
	visible := FilterHotkeys(r.hotkeys, r.resolver.ActiveContexts(m))
	var (
		parts []string
		used  int
	)
	for _, hk := range visible {
		part := hk.Key + " " + hk.Label
		extra := runewidth.StringWidth(part)
		if len(parts) > 0 {
			extra += runewidth.StringWidth(hotkeySeparator)
		}
		if width > 0 && used+extra > width {
			break
		}
		parts = append(parts, part)
		used += extra
	}
	return strings.Join(parts, hotkeySeparator)
}

func FilterHotkeys(hotkeys []Hotkey, contexts []HotkeyContext) []Hotkey {
	if len(hotkeys) == 0 || len(contexts) == 0 {
		return nil
	}
	allowed := map[HotkeyContext]struct{}{}
	for _, ctx := range contexts {
		allowed[ctx] = struct{}{}
	}
	var out []Hotkey
	for _, hk := range hotkeys {
		if _, ok := allowed[hk.Context]; ok {
			out = append(out, hk)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority == out[j].Priority {
			return out[i].Key < out[j].Key
		}
		return out[i].Priority < out[j].Priority
	})
	return out
}
