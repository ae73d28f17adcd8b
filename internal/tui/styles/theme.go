package styles

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/allbin/usbserial"
	"github.com/allbin/usbserial/internal/tui/colors"
)

var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colors.Mauve).
			Background(colors.Surface0).
			Padding(0, 1)

	StatusConnectedStyle = lipgloss.NewStyle().
				Foreground(colors.Green).
				Bold(true)

	StatusDisconnectedStyle = lipgloss.NewStyle().
				Foreground(colors.Red).
				Bold(true)

	StatusConnectingStyle = lipgloss.NewStyle().
				Foreground(colors.Yellow).
				Bold(true)

	// Content area styles
	ContentBorderStyle = lipgloss.NewStyle().
				BorderTop(true).
				BorderStyle(lipgloss.NormalBorder()).
				BorderForeground(colors.Surface1)

	FocusedBorderStyle = lipgloss.NewStyle().
				BorderTop(true).
				BorderStyle(lipgloss.NormalBorder()).
				BorderForeground(colors.Mauve)

	InputStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colors.Surface2).
			Padding(0, 1)

	ErrorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colors.Red)

	InfoStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colors.Mauve)

	HelpBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colors.Surface2).
			Padding(1, 2).
			Margin(1, 0)
)

// StatusStyle colors a session status
func StatusStyle(status usbserial.Status) lipgloss.Style {
	switch status {
	case usbserial.StatusConnected:
		return StatusConnectedStyle
	case usbserial.StatusConnecting:
		return StatusConnectingStyle
	default:
		return StatusDisconnectedStyle
	}
}

// StatusIndicator is the dot shown next to an endpoint
func StatusIndicator(info usbserial.SessionInfo) string {
	switch {
	case info.Status == usbserial.StatusConnected:
		return StatusConnectedStyle.Render("●")
	case info.Status == usbserial.StatusConnecting:
		return StatusConnectingStyle.Render("◐")
	case info.LastError != nil:
		return StatusDisconnectedStyle.Render("✗")
	default:
		return lipgloss.NewStyle().Foreground(colors.Overlay0).Render("○")
	}
}
