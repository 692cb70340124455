package ui

import tea "github.com/charmbracelet/bubbletea"

// --- Key Matching ---

func isKey(msg tea.KeyMsg, keys ...string) bool {
	for _, k := range keys {
		if msg.String() == k {
			return true
		}
	}
	return false
}

func isQuit(msg tea.KeyMsg) bool {
	return isKey(msg, "q", "ctrl+c")
}

func isBack(msg tea.KeyMsg) bool {
	if msg.Type == tea.KeyEsc {
		return true
	}
	return isKey(msg, "esc", "ctrl+[")
}

func isEnter(msg tea.KeyMsg) bool {
	return isKey(msg, "enter")
}

func isSpace(msg tea.KeyMsg) bool {
	return isKey(msg, " ")
}

func isFocusSwitch(msg tea.KeyMsg) bool {
	return isKey(msg, "tab", "shift+tab")
}

// keymap holds the navigation bindings, which depend on the vim_keys
// setting.
type keymap struct {
	vim bool
}

func (k keymap) up(msg tea.KeyMsg) bool {
	if k.vim && isKey(msg, "k") {
		return true
	}
	return isKey(msg, "up")
}

func (k keymap) down(msg tea.KeyMsg) bool {
	if k.vim && isKey(msg, "j") {
		return true
	}
	return isKey(msg, "down")
}

func (k keymap) navHint() string {
	if k.vim {
		return "↑/↓ j/k"
	}
	return "↑/↓"
}
