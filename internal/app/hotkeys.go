package app

type HotkeyContext int

const (
	HotkeyGlobal HotkeyContext = iota
	HotkeyParams
	HotkeyEdit
	HotkeyReport
)

type Hotkey struct {
	Key      string
	Label    string
	Context  HotkeyContext
	Priority int
}

type HotkeyResolver interface {
	ActiveContexts(*Model) []HotkeyContext
}

func DefaultHotkeys() []Hotkey {
	return []Hotkey{
		{Key: "ctrl+c", Label: "quit", Context: HotkeyGlobal, Priority: 91},
		{Key: "q", Label: "quit", Context: HotkeyParams, Priority: 90},
		{Key: "L", Label: "load", Context: HotkeyParams, Priority: 10},
		{Key: "Q", Label: "qc", Context: HotkeyParams, Priority: 11},
		{Key: "T", Label: "technorm", Context: HotkeyParams, Priority: 12},
		{Key: "C", Label: "contentnorm", Context: HotkeyParams, Priority: 13},
		{Key: "E", Label: "evaluate", Context: HotkeyParams, Priority: 14},
		{Key: "r", Label: "run next", Context: HotkeyParams, Priority: 15},
		{Key: "j/k/↑/↓", Label: "move", Context: HotkeyParams, Priority: 20},
		{Key: "enter", Label: "edit", Context: HotkeyParams, Priority: 21},
		{Key: "←/→", Label: "cycle", Context: HotkeyParams, Priority: 22},
		{Key: "space", Label: "toggle", Context: HotkeyParams, Priority: 23},
		{Key: "v", Label: "summary", Context: HotkeyParams, Priority: 30},
		{Key: "w", Label: "qc report", Context: HotkeyParams, Priority: 31},
		{Key: "n", Label: "norm report", Context: HotkeyParams, Priority: 32},
		{Key: "g", Label: "log", Context: HotkeyParams, Priority: 33},
		{Key: "y", Label: "copy status", Context: HotkeyParams, Priority: 40},
		{Key: "enter", Label: "apply", Context: HotkeyEdit, Priority: 10},
		{Key: "esc", Label: "cancel", Context: HotkeyEdit, Priority: 11},
		{Key: "esc/q", Label: "close", Context: HotkeyReport, Priority: 10},
		{Key: "pgup/pgdn", Label: "scroll", Context: HotkeyReport, Priority: 11},
		{Key: "y", Label: "copy", Context: HotkeyReport, Priority: 12},
	}
}

type DefaultHotkeyResolver struct{}

func (r DefaultHotkeyResolver) ActiveContexts(m *Model) []HotkeyContext {
	contexts := []HotkeyContext{HotkeyGlobal}
	if m == nil {
		return contexts
	}
	switch m.mode {
	case uiModeEdit:
		contexts = append(contexts, HotkeyEdit)
	case uiModeReport:
		contexts = append(contexts, HotkeyReport)
	default:
		contexts = append(contexts, HotkeyParams)
	}
	return contexts
}
