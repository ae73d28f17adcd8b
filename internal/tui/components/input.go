package components

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/allbin/usbserial"
	"github.com/allbin/usbserial/internal/tui/colors"
	"github.com/allbin/usbserial/internal/tui/styles"
)

const maxHistory = 100

// LineInput edits the line settings used for the next connect, in the
// "115200 8N1" notation
type LineInput struct {
	textInput     textinput.Model
	current       usbserial.LineConfig
	history       []string
	historyIndex  int
	pending       string // input saved while browsing history
	terminalWidth int
}

func NewLineInput(initial usbserial.LineConfig) *LineInput {
	ti := textinput.New()
	ti.Placeholder = "baud [data parity stop], e.g. 115200 8N1"
	ti.CharLimit = 32
	ti.Prompt = ""
	ti.SetValue(initial.String())

	return &LineInput{
		textInput:    ti,
		current:      initial,
		historyIndex: -1,
	}
}

func (i *LineInput) SetWidth(width int) {
	i.terminalWidth = width
	// border(2) + padding(2) + prompt(1) + space(1)
	usable := width - 6
	if usable < 20 {
		usable = 20
	}
	i.textInput.Width = usable
}

func (i *LineInput) Focus() {
	i.textInput.Focus()
}

func (i *LineInput) Blur() {
	i.textInput.Blur()
	i.textInput.SetValue(i.current.String())
	i.historyIndex = -1
}

func (i *LineInput) Value() string {
	return i.textInput.Value()
}

func (i *LineInput) SetValue(value string) {
	i.textInput.SetValue(value)
}

// Current returns the last applied line settings
func (i *LineInput) Current() usbserial.LineConfig {
	return i.current
}

// Apply parses the input. On success it becomes the current setting and
// is added to the history.
func (i *LineInput) Apply() (usbserial.LineConfig, error) {
	cfg, err := usbserial.ParseLineConfig(i.textInput.Value(), i.current)
	if err != nil {
		return usbserial.LineConfig{}, err
	}
	i.current = cfg
	i.AddToHistory(cfg.String())
	i.textInput.SetValue(cfg.String())
	return cfg, nil
}

func (i *LineInput) Update(msg tea.Msg) (*LineInput, tea.Cmd) {
	var cmd tea.Cmd
	i.textInput, cmd = i.textInput.Update(msg)
	return i, cmd
}

func (i *LineInput) View(isInsertMode bool) string {
	prompt := lipgloss.NewStyle().
		Foreground(colors.Yellow).
		Bold(true).
		Render("⚡")

	var content string
	if isInsertMode {
		content = lipgloss.JoinHorizontal(lipgloss.Left, prompt, " ", i.textInput.View())
	} else {
		hint := lipgloss.NewStyle().
			Foreground(colors.Overlay0).
			Render(i.current.String() + "  (press 'i' to change line settings)")
		content = lipgloss.JoinHorizontal(lipgloss.Left, prompt, " ", hint)
	}

	// RoundedBorder and Padding(0, 1) take four columns
	width := i.terminalWidth - 4
	if width < 10 {
		width = 10
	}

	style := styles.InputStyle.
		Width(width).
		AlignHorizontal(lipgloss.Left)
	if isInsertMode {
		style = style.BorderForeground(colors.Green)
	}
	return style.Render(content)
}

// AddToHistory appends an entry unless it is empty or repeats the last one
func (i *LineInput) AddToHistory(entry string) {
	entry = strings.TrimSpace(entry)
	if entry == "" {
		return
	}
	if len(i.history) > 0 && i.history[len(i.history)-1] == entry {
		return
	}

	i.history = append(i.history, entry)
	if len(i.history) > maxHistory {
		i.history = i.history[1:]
	}
	i.historyIndex = -1
	i.pending = ""
}

func (i *LineInput) History() []string {
	return i.history
}

func (i *LineInput) NavigateHistoryUp() {
	if len(i.history) == 0 {
		return
	}
	if i.historyIndex == -1 {
		i.pending = i.textInput.Value()
		i.historyIndex = len(i.history) - 1
	} else if i.historyIndex > 0 {
		i.historyIndex--
	}
	i.textInput.SetValue(i.history[i.historyIndex])
}

func (i *LineInput) NavigateHistoryDown() {
	if len(i.history) == 0 || i.historyIndex == -1 {
		return
	}
	if i.historyIndex < len(i.history)-1 {
		i.historyIndex++
		i.textInput.SetValue(i.history[i.historyIndex])
		return
	}
	i.historyIndex = -1
	i.textInput.SetValue(i.pending)
	i.pending = ""
}
