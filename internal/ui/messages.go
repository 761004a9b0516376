// Package ui provides the Bubble Tea TUI for the sniper.
package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/wfce/gmgn-filter/internal/engine"
)

// FrameMsg carries one column's decisions from the engine.
type FrameMsg struct {
	Frame engine.Frame
}

// StatusMsg is the answer to a status poll.
type StatusMsg struct {
	Status engine.Status
	Err    error
}

// StatusTick triggers the next status poll.
type StatusTick struct{}

// Presenter forwards engine frames into a running program. send is
// usually (*tea.Program).Send.
type Presenter struct {
	send func(tea.Msg)
}

// NewPresenter returns a presenter delivering frames through send.
func NewPresenter(send func(tea.Msg)) *Presenter {
	return &Presenter{send: send}
}

// Present implements engine.Presenter.
func (p *Presenter) Present(f engine.Frame) {
	p.send(FrameMsg{Frame: f})
}
