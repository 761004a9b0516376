package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wfce/gmgn-filter/internal/engine"
	"github.com/wfce/gmgn-filter/internal/otel"
	"github.com/wfce/gmgn-filter/internal/scheduler"
)

// statusInterval is the period of engine status polls.
const statusInterval = time.Second

// Actions are the commands the App can ask of the engine. Any may be nil.
type Actions struct {
	Rescan func() tea.Cmd
	Reset  func() tea.Cmd
	Status func() tea.Cmd
}

// App is the root Bubble Tea model.
// App does NOT hold the engine. It receives frames via messages.
type App struct {
	actions Actions
	ring    *otel.RingBuffer

	frames map[string]engine.Frame
	order  []string
	active int
	cursor int

	status     engine.Status
	haveStatus bool
	spinner    spinner.Model

	showHidden   bool
	debugVisible bool
	err          error
	width        int
	height       int
	ready        bool
}

// NewApp creates an App. ring feeds the debug overlay and may be nil.
func NewApp(actions Actions, ring *otel.RingBuffer) App {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(colorHighlight)
	return App{
		actions: actions,
		ring:    ring,
		frames:  make(map[string]engine.Frame),
		spinner: sp,
	}
}

// Init starts the spinner and the status poll.
func (a App) Init() tea.Cmd {
	return tea.Batch(a.spinner.Tick, a.pollStatus())
}

func (a App) pollStatus() tea.Cmd {
	if a.actions.Status == nil {
		return nil
	}
	return a.actions.Status()
}

func statusTick() tea.Cmd {
	return tea.Tick(statusInterval, func(time.Time) tea.Msg { return StatusTick{} })
}

// Update handles messages and returns the updated model and any commands.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.ready = true
		return a, nil

	case FrameMsg:
		a.applyFrame(msg.Frame)
		return a, nil

	case StatusMsg:
		if msg.Err != nil {
			a.err = msg.Err
		} else {
			a.status = msg.Status
			a.haveStatus = true
		}
		return a, statusTick()

	case StatusTick:
		return a, a.pollStatus()

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd
	}

	return a, nil
}

// applyFrame stores f. Columns keep the order they first appeared in.
func (a *App) applyFrame(f engine.Frame) {
	if _, ok := a.frames[f.Column]; !ok {
		a.order = append(a.order, f.Column)
	}
	a.frames[f.Column] = f
	a.clampCursor()
}

func (a *App) clampCursor() {
	n := len(a.rows())
	if a.cursor >= n {
		a.cursor = n - 1
	}
	if a.cursor < 0 {
		a.cursor = 0
	}
}

// rows returns the listed decisions of the active column.
func (a App) rows() []engine.Decision {
	if len(a.order) == 0 {
		return nil
	}
	return visibleRows(a.frames[a.order[a.active]], a.showHidden)
}

func (a App) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if a.err != nil {
		a.err = nil
	}

	switch {
	case key.Matches(msg, keys.Quit):
		return a, tea.Quit

	case key.Matches(msg, keys.Debug):
		a.debugVisible = !a.debugVisible

	case key.Matches(msg, keys.Down):
		if a.cursor < len(a.rows())-1 {
			a.cursor++
		}

	case key.Matches(msg, keys.Up):
		if a.cursor > 0 {
			a.cursor--
		}

	case key.Matches(msg, keys.Top):
		a.cursor = 0

	case key.Matches(msg, keys.Bottom):
		a.cursor = len(a.rows()) - 1
		a.clampCursor()

	case key.Matches(msg, keys.NextColumn):
		if len(a.order) > 0 {
			a.active = (a.active + 1) % len(a.order)
			a.cursor = 0
		}

	case key.Matches(msg, keys.PrevColumn):
		if len(a.order) > 0 {
			a.active = (a.active + len(a.order) - 1) % len(a.order)
			a.cursor = 0
		}

	case key.Matches(msg, keys.ToggleHidden):
		a.showHidden = !a.showHidden
		a.clampCursor()

	case key.Matches(msg, keys.Rescan):
		if a.actions.Rescan != nil {
			return a, a.actions.Rescan()
		}

	case key.Matches(msg, keys.Reset):
		if a.actions.Reset != nil {
			return a, a.actions.Reset()
		}
	}

	return a, nil
}

// View renders the UI.
func (a App) View() string {
	if !a.ready {
		return "Loading..."
	}
	if a.debugVisible {
		return debugOverlay(a.ring, a.width, a.height) + "\n" + debugStatusBar(a.width)
	}

	// Tabs, status bar and optional error bar take one line each.
	contentHeight := a.height - 2
	if a.err != nil {
		contentHeight--
	}

	var body string
	if len(a.order) == 0 {
		body = HelpStyle.Render(a.spinner.View() + " Waiting for the first scan...")
	} else {
		body = RenderColumn(a.rows(), a.cursor, a.width, contentHeight)
	}

	errorBar := ""
	if a.err != nil {
		errorBar = ErrorStyle.Width(a.width).Render("Error: "+a.err.Error()+" (press any key to dismiss)") + "\n"
	}

	return a.renderTabs() + "\n" + body + errorBar + a.renderStatusBar()
}

func (a App) renderTabs() string {
	tabs := make([]string, 0, len(a.order))
	for i, id := range a.order {
		label := id
		if a.frames[id].Primary {
			label += " *"
		}
		if i == a.active {
			tabs = append(tabs, ActiveColumnTab.Render(label))
		} else {
			tabs = append(tabs, ColumnTab.Render(label))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

func (a App) renderStatusBar() string {
	var parts []string
	if len(a.order) > 0 {
		f := a.frames[a.order[a.active]]
		first, dup, hidden := counts(f)
		parts = append(parts, fmt.Sprintf("gen %d", f.Generation))
		parts = append(parts, fmt.Sprintf("first %d  dup %d  hidden %d", first, dup, hidden))
	}

	st := a.status
	switch {
	case a.haveStatus && !st.Enabled:
		parts = append(parts, "disabled")
	case st.State == scheduler.Running:
		parts = append(parts, a.spinner.View()+"scanning")
	}
	if st.AutoBuy {
		parts = append(parts, "auto-buy "+st.AutoTrigger.String())
	}

	help := make([]string, 0, 6)
	for _, b := range keys.shortHelp() {
		h := b.Help()
		help = append(help, StatusBarKey.Render(h.Key)+StatusBarText.Render(":"+h.Desc))
	}
	parts = append(parts, strings.Join(help, " "))

	return StatusBar.Width(a.width).Render(strings.Join(parts, "  │  "))
}

// Cursor returns the current cursor position (for testing).
func (a App) Cursor() int {
	return a.cursor
}

// Columns returns the column IDs in display order (for testing).
func (a App) Columns() []string {
	return a.order
}
