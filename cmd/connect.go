/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/allbin/usbserial"
	"github.com/allbin/usbserial/internal/logger"
	"github.com/allbin/usbserial/internal/tui/components"
	"github.com/allbin/usbserial/internal/tui/keys"
	"github.com/allbin/usbserial/internal/tui/models"
	"github.com/allbin/usbserial/internal/tui/styles"
)

// connectCmd represents the connect command
var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Pick endpoints and watch their data in an interactive terminal UI",
	Long: `Browse the attached USB serial endpoints, connect and disconnect them and
watch every received chunk in a live message log.

Features include:
- Endpoint table with live session status and last failure
- Line settings editor ("115200 8N1") with history
- Stream and table views of the message log with hex/ASCII toggles
- Cooperative permission handling: when access to a device is missing a
  request is issued and connect can be retried once it is granted
- Hot-plug rescans with --watch

Logs go to --log-output when it names a file and are discarded otherwise,
since the terminal belongs to the UI.

Example usage:
  usbserial connect
  usbserial connect --baud 115200 --watch
  usbserial connect --session-mode multi --log-output usbserial.log`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runConnectTUI(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(connectCmd)
}

const (
	inputHeight     = 3
	statusBarHeight = 1
	minEndpointRows = 3
)

type clockTickMsg time.Time

func clockTick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return clockTickMsg(t)
	})
}

// connectModel represents the Bubble Tea model for the connect command
type connectModel struct {
	*models.SessionModel
	rt        *runtime
	sub       *usbserial.Subscription
	formatter *components.RecordFormatter
	endpoints *components.EndpointTable
	terminal  *components.Terminal
	records   *components.RecordTable
	statusBar *components.StatusBar
	input     *components.LineInput
	help      help.Model
	keys      keys.ConnectKeys

	width  int
	height int
}

func runConnectTUI() error {
	// The terminal belongs to the UI
	switch cfg.Log.Output {
	case "", "stderr", "stdout":
		cfg.Log.Output = "discard"
		if err := logger.Init(cfg.Log); err != nil {
			return err
		}
	}

	rt, err := newRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	line, err := rt.lineConfig()
	if err != nil {
		return err
	}

	formatter := components.NewRecordFormatter(components.DisplayMode{
		ShowHex:      true,
		ShowASCII:    true,
		ShowEndpoint: rt.manager.Config().Mode == usbserial.MultiSession,
	})

	m := &connectModel{
		SessionModel: models.NewSessionModel(context.Background()),
		rt:           rt,
		sub:          rt.store.Subscribe(),
		formatter:    formatter,
		endpoints:    components.NewEndpointTable(minEndpointRows),
		terminal:     components.NewTerminal(0, 0, formatter),
		records:      components.NewRecordTable(0, 0, formatter),
		statusBar:    components.NewStatusBar(),
		input:        components.NewLineInput(line),
		help:         help.New(),
		keys:         keys.NewConnectKeys(),
	}
	defer m.sub.Close()
	defer m.Cancel()

	if err := rt.startWatch(m.GetContext()); err != nil {
		return err
	}

	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err = p.Run()
	return err
}

func (m *connectModel) Init() tea.Cmd {
	return tea.Batch(
		models.WaitForSnapshot(m.sub),
		m.rescan(),
		clockTick(),
	)
}

func (m *connectModel) rescan() tea.Cmd {
	ctx := m.GetContext()
	return func() tea.Msg {
		_, err := m.rt.catalog.Scan(ctx)
		return models.ActionResultMsg{Action: "rescan", Err: err}
	}
}

func (m *connectModel) connect(endpoint string) tea.Cmd {
	ctx := m.GetContext()
	line := m.input.Current()
	return func() tea.Msg {
		err := m.rt.manager.ConnectKey(ctx, endpoint, line)
		return models.ActionResultMsg{Action: "connect", Endpoint: endpoint, Err: err}
	}
}

func (m *connectModel) disconnect(endpoint string) tea.Cmd {
	return func() tea.Msg {
		err := m.rt.manager.Disconnect(endpoint)
		return models.ActionResultMsg{Action: "disconnect", Endpoint: endpoint, Err: err}
	}
}

func (m *connectModel) layout() {
	if m.width == 0 || m.height == 0 {
		return
	}

	// Endpoint pane: header, borders and rows, at most a third of the screen
	endpointHeight := m.height / 3
	if endpointHeight < minEndpointRows+4 {
		endpointHeight = minEndpointRows + 4
	}
	m.endpoints.SetPageSize(endpointHeight - 4)

	// Two pane borders
	logHeight := m.height - endpointHeight - inputHeight - statusBarHeight - 2
	if logHeight < 3 {
		logHeight = 3
	}

	m.terminal.SetSize(m.width, logHeight)
	m.records.SetSize(m.width, logHeight)
	m.input.SetWidth(m.width)
	m.statusBar.SetWidth(m.width)
}

func (m *connectModel) refreshStatus() {
	state := m.State()
	selected := m.endpoints.SelectedKey()
	info, _ := state.Session(selected)
	m.statusBar.SetSession(selected, info)
	m.statusBar.SetLog(len(state.Records), state.Dropped)
}

func (m *connectModel) refreshLog() {
	m.terminal.Refresh()
	m.records.Refresh()
}

func (m *connectModel) handleResult(msg models.ActionResultMsg) {
	switch {
	case msg.Err == nil && msg.Action == "rescan":
		m.statusBar.SetNotice(fmt.Sprintf("%d endpoint(s)", m.endpoints.Len()), nil)
	case msg.Err == nil:
		m.statusBar.SetNotice(fmt.Sprintf("%s %s", msg.Action, msg.Endpoint), nil)
	case errors.Is(msg.Err, usbserial.ErrPermissionPending):
		m.statusBar.SetNotice("permission requested, press enter again once granted", nil)
	case errors.Is(msg.Err, context.Canceled):
		// Quitting
	default:
		m.statusBar.SetNotice(msg.Err.Error(), msg.Err)
	}
}

func (m *connectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		m.SetReady(true)
		_, cmd := m.terminal.Update(msg)
		cmds = append(cmds, cmd)

	case models.SnapshotMsg:
		if m.SetState(msg.State) {
			m.endpoints.SetState(msg.State)
			m.terminal.Sync(msg.State.Records)
			m.records.Sync(msg.State.Records)
			m.refreshStatus()
		}
		cmds = append(cmds, models.WaitForSnapshot(m.sub))

	case models.SubscriptionClosedMsg:
		// Store gone; nothing left to render

	case models.ActionResultMsg:
		m.handleResult(msg)

	case clockTickMsg:
		cmds = append(cmds, clockTick())

	case tea.KeyMsg:
		if m.IsInInsertMode() {
			return m, m.updateInsert(msg)
		}
		cmds = append(cmds, m.updateNormal(msg))
	}

	return m, tea.Batch(cmds...)
}

func (m *connectModel) updateInsert(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.CancelEdit):
		m.SetInputMode(models.InputModeNormal)
		m.input.Blur()
		return nil
	case key.Matches(msg, m.keys.Connect):
		line, err := m.input.Apply()
		if err != nil {
			m.statusBar.SetNotice(fmt.Sprintf("invalid line settings: %v", err), err)
			return nil
		}
		m.statusBar.SetNotice("line settings "+line.String()+" apply on next connect", nil)
		m.SetInputMode(models.InputModeNormal)
		m.input.Blur()
		return nil
	case key.Matches(msg, m.keys.HistoryUp):
		m.input.NavigateHistoryUp()
		return nil
	case key.Matches(msg, m.keys.HistoryDown):
		m.input.NavigateHistoryDown()
		return nil
	}
	_, cmd := m.input.Update(msg)
	return cmd
}

func (m *connectModel) updateNormal(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.Cancel()
		return tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll

	case key.Matches(msg, m.keys.EditLine):
		m.SetInputMode(models.InputModeInsert)
		m.input.Focus()

	case key.Matches(msg, m.keys.SwitchFocus):
		focus := m.ToggleFocus()
		m.endpoints.SetFocused(focus == models.FocusEndpoints)

	case key.Matches(msg, m.keys.Connect):
		if selected := m.endpoints.SelectedKey(); selected != "" {
			m.statusBar.SetNotice("connecting "+selected, nil)
			return m.connect(selected)
		}

	case key.Matches(msg, m.keys.Disconnect):
		if selected := m.endpoints.SelectedKey(); selected != "" {
			return m.disconnect(selected)
		}

	case key.Matches(msg, m.keys.Rescan):
		m.statusBar.SetNotice("scanning", nil)
		return m.rescan()

	case key.Matches(msg, m.keys.Forget):
		if selected := m.endpoints.SelectedKey(); selected != "" {
			if err := m.rt.manager.ForgetPermission(selected); err != nil {
				m.statusBar.SetNotice(err.Error(), err)
			} else {
				m.statusBar.SetNotice("permission state cleared for "+selected, nil)
			}
		}

	case key.Matches(msg, m.keys.Clear):
		m.terminal.Clear()
		m.records.Clear()

	case key.Matches(msg, m.keys.ToggleHex):
		m.formatter.ToggleHex()
		m.refreshLog()

	case key.Matches(msg, m.keys.ToggleASCII):
		m.formatter.ToggleASCII()
		m.refreshLog()

	case key.Matches(msg, m.keys.ToggleTimestamp):
		m.formatter.ToggleTimestamp()
		m.refreshLog()

	case key.Matches(msg, m.keys.TableView):
		m.ToggleTableView()

	case key.Matches(msg, m.keys.VisualMode):
		if m.records.GetViewMode() == components.ViewModeVisual {
			m.records.SetViewMode(components.ViewModeFollow)
		} else {
			m.records.SetViewMode(components.ViewModeVisual)
		}

	case m.GetFocus() == models.FocusEndpoints:
		var cmd tea.Cmd
		_, cmd = m.endpoints.Update(msg)
		m.refreshStatus()
		return cmd

	case m.TableView():
		var cmd tea.Cmd
		_, cmd = m.records.Update(msg)
		return cmd

	case key.Matches(msg, m.keys.Up):
		m.terminal.ScrollUp()
	case key.Matches(msg, m.keys.Down):
		m.terminal.ScrollDown()
	case key.Matches(msg, m.keys.GotoTop):
		m.terminal.GotoTop()
	case key.Matches(msg, m.keys.GotoBottom):
		m.terminal.GotoBottom()
	}
	return nil
}

func (m *connectModel) viewMode() string {
	if m.TableView() {
		return m.records.GetViewMode().String()
	}
	if m.terminal.Following() {
		return "FOLLOW"
	}
	return "SCROLL"
}

func (m *connectModel) View() string {
	if !m.IsReady() {
		return "Initializing..."
	}

	endpointBorder, logBorder := styles.FocusedBorderStyle, styles.ContentBorderStyle
	if m.GetFocus() == models.FocusLog {
		endpointBorder, logBorder = styles.ContentBorderStyle, styles.FocusedBorderStyle
	}

	title := styles.TitleStyle.Render("USB serial endpoints")
	endpoints := endpointBorder.Render(lipgloss.JoinVertical(lipgloss.Left, title, m.endpoints.View()))

	var logView string
	if m.TableView() {
		logView = m.records.View()
	} else {
		logView = m.terminal.View()
	}

	parts := []string{
		endpoints,
		logBorder.Render(logView),
		m.input.View(m.IsInInsertMode()),
	}

	if m.help.ShowAll {
		parts = append(parts, styles.HelpBoxStyle.Render(m.help.View(m.keys)))
	}

	parts = append(parts, m.statusBar.View(
		m.GetInputMode().String(),
		m.viewMode(),
		time.Now().Format("15:04:05"),
	))

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}
