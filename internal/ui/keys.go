package ui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Up           key.Binding
	Down         key.Binding
	Top          key.Binding
	Bottom       key.Binding
	NextColumn   key.Binding
	PrevColumn   key.Binding
	Rescan       key.Binding
	Reset        key.Binding
	ToggleHidden key.Binding
	Debug        key.Binding
	Quit         key.Binding
}

var keys = keyMap{
	Up:           key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("k", "up")),
	Down:         key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("j", "down")),
	Top:          key.NewBinding(key.WithKeys("g", "home"), key.WithHelp("g", "top")),
	Bottom:       key.NewBinding(key.WithKeys("G", "end"), key.WithHelp("G", "bottom")),
	NextColumn:   key.NewBinding(key.WithKeys("tab", "l", "right"), key.WithHelp("tab", "column")),
	PrevColumn:   key.NewBinding(key.WithKeys("shift+tab", "h", "left")),
	Rescan:       key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "rescan")),
	Reset:        key.NewBinding(key.WithKeys("R"), key.WithHelp("R", "reset")),
	ToggleHidden: key.NewBinding(key.WithKeys("."), key.WithHelp(".", "hidden")),
	Debug:        key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "debug")),
	Quit:         key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

// shortHelp lists the bindings shown in the status bar.
func (k keyMap) shortHelp() []key.Binding {
	return []key.Binding{k.NextColumn, k.Rescan, k.Reset, k.ToggleHidden, k.Debug, k.Quit}
}
