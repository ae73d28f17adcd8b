package components

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/allbin/usbserial"
	"github.com/allbin/usbserial/internal/tui/colors"
	"github.com/allbin/usbserial/internal/tui/styles"
)

// StatusBar renders one line describing the selected session and the
// message log
type StatusBar struct {
	endpoint string
	info     usbserial.SessionInfo
	records  int
	dropped  uint64
	notice   string
	err      error
	width    int
}

func NewStatusBar() *StatusBar {
	return &StatusBar{}
}

func (sb *StatusBar) SetWidth(width int) {
	sb.width = width
}

// SetSession shows info for endpoint. An endpoint without a session is
// rendered as disconnected.
func (sb *StatusBar) SetSession(endpoint string, info usbserial.SessionInfo) {
	sb.endpoint = endpoint
	sb.info = info
}

func (sb *StatusBar) SetLog(records int, dropped uint64) {
	sb.records = records
	sb.dropped = dropped
}

// SetNotice shows a transient message, replacing any previous one
func (sb *StatusBar) SetNotice(notice string, err error) {
	sb.notice = notice
	sb.err = err
}

func (sb *StatusBar) Notice() (string, error) {
	return sb.notice, sb.err
}

func (sb *StatusBar) sessionText() string {
	switch {
	case sb.endpoint == "":
		return "no endpoint selected"
	case sb.info.Status == usbserial.StatusDisconnected && sb.info.LastError != nil:
		return "failed: " + sb.info.LastError.Error()
	case sb.info.Status == usbserial.StatusDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("%s (%s)", sb.info.Status, sb.info.Phase)
	}
}

// View renders the status bar: mode, endpoint and status on the left,
// line settings, log counters and clock on the right
func (sb *StatusBar) View(inputMode, viewMode, timestamp string) string {
	terminalWidth := sb.width
	if terminalWidth <= 0 {
		terminalWidth = 80
	}

	modeStyle := lipgloss.NewStyle().
		Foreground(colors.Base).
		Background(colors.Blue).
		Bold(true).
		Padding(0, 1)
	if inputMode == "INSERT" {
		modeStyle = modeStyle.Background(colors.Green)
	}
	mode := modeStyle.Render(inputMode)

	endpoint := lipgloss.NewStyle().
		Foreground(colors.Mauve).
		Bold(true).
		Padding(0, 1).
		Render(sb.endpoint)

	indicator := styles.StatusIndicator(sb.info)

	statusText := lipgloss.NewStyle().
		Foreground(styles.StatusStyle(sb.info.Status).GetForeground()).
		Padding(0, 1).
		Render(sb.sessionText())

	divider := lipgloss.NewStyle().
		Foreground(colors.Surface2).
		Padding(0, 1).
		Render("│")

	leftParts := []string{mode, endpoint, indicator, statusText}
	if sb.notice != "" {
		noticeStyle := lipgloss.NewStyle().Foreground(colors.Peach).Padding(0, 1)
		if sb.err != nil {
			noticeStyle = noticeStyle.Foreground(colors.Red)
		}
		leftParts = append(leftParts, divider, noticeStyle.Render(sb.notice))
	}
	leftSide := lipgloss.JoinHorizontal(lipgloss.Left, leftParts...)

	line := "⚡ serial"
	if sb.info.Status != usbserial.StatusDisconnected {
		line = "⚡ " + sb.info.Config.String()
	}
	details := lipgloss.NewStyle().
		Foreground(colors.Subtext0).
		Padding(0, 1).
		Render(line)

	counters := fmt.Sprintf("%d rec", sb.records)
	if sb.dropped > 0 {
		counters += fmt.Sprintf(" (%d dropped)", sb.dropped)
	}
	logInfo := lipgloss.NewStyle().
		Foreground(colors.Teal).
		Padding(0, 1).
		Render(counters + " " + viewMode)

	clock := lipgloss.NewStyle().
		Foreground(colors.Subtext1).
		Padding(0, 1).
		Render(timestamp)

	rightSide := lipgloss.JoinHorizontal(lipgloss.Left, details, divider, logInfo, divider, clock)

	spacerWidth := terminalWidth - lipgloss.Width(leftSide) - lipgloss.Width(rightSide)
	if spacerWidth < 1 {
		spacerWidth = 1
	}
	spacer := lipgloss.NewStyle().Width(spacerWidth).Render("")

	return lipgloss.NewStyle().
		Foreground(colors.Text).
		Background(colors.Surface0).
		Width(terminalWidth).
		Render(lipgloss.JoinHorizontal(lipgloss.Left, leftSide, spacer, rightSide))
}
