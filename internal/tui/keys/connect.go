package keys

import "github.com/charmbracelet/bubbles/key"

// ConnectKeys are the bindings of the connect TUI: endpoint selection,
// session control, the line-settings editor and the log view
type ConnectKeys struct {
	LogKeys
	Quit        key.Binding
	Help        key.Binding
	EditLine    key.Binding
	CancelEdit  key.Binding
	Connect     key.Binding
	Disconnect  key.Binding
	Rescan      key.Binding
	Forget      key.Binding
	SwitchFocus key.Binding
	Up          key.Binding
	Down        key.Binding
	HistoryUp   key.Binding
	HistoryDown key.Binding
}

func NewConnectKeys() ConnectKeys {
	return ConnectKeys{
		LogKeys: NewLogKeys(),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		EditLine: key.NewBinding(
			key.WithKeys("e", "i"),
			key.WithHelp("e", "edit line settings"),
		),
		CancelEdit: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "discard edit"),
		),
		Connect: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "connect / apply"),
		),
		Disconnect: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "disconnect"),
		),
		Rescan: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "rescan devices"),
		),
		Forget: key.NewBinding(
			key.WithKeys("f"),
			key.WithHelp("f", "forget denied permission"),
		),
		SwitchFocus: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "switch pane"),
		),
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		HistoryUp: key.NewBinding(
			key.WithKeys("up"),
			key.WithHelp("↑", "previous settings"),
		),
		HistoryDown: key.NewBinding(
			key.WithKeys("down"),
			key.WithHelp("↓", "next settings"),
		),
	}
}

func (k ConnectKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Help, k.Connect, k.Disconnect, k.Rescan, k.SwitchFocus, k.Quit}
}

func (k ConnectKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Connect, k.Disconnect, k.Rescan, k.Forget},
		{k.EditLine, k.CancelEdit, k.HistoryUp, k.HistoryDown},
		{k.SwitchFocus, k.VisualMode, k.TableView, k.Clear},
		{k.ToggleHex, k.ToggleASCII, k.ToggleTimestamp},
		{k.GotoTop, k.GotoBottom, k.Up, k.Down},
		{k.Help, k.Quit},
	}
}
