package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	selectNote key.Binding
	cancel     key.Binding
	up         key.Binding
	down       key.Binding
	top        key.Binding
	bottom     key.Binding
	preview    key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		selectNote: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("↵", "select"),
		),
		cancel: key.NewBinding(
			key.WithKeys("esc", "ctrl+c"),
			key.WithHelp("esc", "cancel"),
		),
		up: key.NewBinding(
			key.WithKeys("up", "ctrl+p"),
			key.WithHelp("↑/ctrl+p", "up"),
		),
		down: key.NewBinding(
			key.WithKeys("down", "ctrl+n"),
			key.WithHelp("↓/ctrl+n", "down"),
		),
		top: key.NewBinding(
			key.WithKeys("home"),
			key.WithHelp("home", "first"),
		),
		bottom: key.NewBinding(
			key.WithKeys("end"),
			key.WithHelp("end", "last"),
		),
		preview: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "preview"),
		),
	}
}

func (k keyMap) help() []key.Binding {
	return []key.Binding{k.selectNote, k.up, k.down, k.preview, k.cancel}
}
