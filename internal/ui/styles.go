package ui

import "github.com/charmbracelet/lipgloss"

// Colors used in the application.
var (
	colorPrimary   = lipgloss.Color("62")  // Purple
	colorSecondary = lipgloss.Color("241") // Gray
	colorMuted     = lipgloss.Color("240") // Darker gray
	colorHighlight = lipgloss.Color("212") // Pink
	colorSuccess   = lipgloss.Color("78")  // Green
	colorWarn      = lipgloss.Color("214") // Amber
)

// FirstBadge marks the earliest item of a group.
var FirstBadge = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("16")).
	Background(colorSuccess).
	Padding(0, 1)

// DupBadge marks a later copy.
var DupBadge = lipgloss.NewStyle().
	Foreground(lipgloss.Color("255")).
	Background(colorMuted).
	Padding(0, 1)

// LockBadge flags a classification the lock held against the scan.
var LockBadge = lipgloss.NewStyle().
	Foreground(colorWarn).
	Bold(true)

// OpenFirst points a duplicate at its leader.
var OpenFirst = lipgloss.NewStyle().
	Foreground(colorHighlight).
	Underline(true)

// SelectedItem style for the currently highlighted row.
var SelectedItem = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("255")).
	Background(colorPrimary).
	Padding(0, 1)

// NormalItem style for unselected rows.
var NormalItem = lipgloss.NewStyle().
	Foreground(lipgloss.Color("255")).
	Padding(0, 1)

// HiddenItem style for rows the show mode hides.
var HiddenItem = lipgloss.NewStyle().
	Foreground(colorMuted).
	Strikethrough(true).
	Padding(0, 1)

// ColumnTab styles the column selector.
var ColumnTab = lipgloss.NewStyle().
	Foreground(colorSecondary).
	Padding(0, 1)

// ActiveColumnTab styles the selected column.
var ActiveColumnTab = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("255")).
	Background(colorPrimary).
	Padding(0, 1)

// StatusBar style for the bottom status bar.
var StatusBar = lipgloss.NewStyle().
	Foreground(lipgloss.Color("255")).
	Background(lipgloss.Color("236")).
	Padding(0, 1)

// StatusBarKey style for key hints in status bar.
var StatusBarKey = lipgloss.NewStyle().
	Foreground(colorHighlight).
	Bold(true)

// StatusBarText style for descriptive text in status bar.
var StatusBarText = lipgloss.NewStyle().
	Foreground(colorSecondary)

// ErrorStyle for displaying errors.
var ErrorStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("196")).
	Bold(true).
	Padding(0, 1)

// HelpStyle for help text.
var HelpStyle = lipgloss.NewStyle().
	Foreground(colorMuted).
	Padding(1, 2)

// DebugPanel frames the debug overlay.
var DebugPanel = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(colorPrimary).
	Padding(1, 2)

// DebugHeaderStyle for section headers inside the overlay.
var DebugHeaderStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorHighlight)
