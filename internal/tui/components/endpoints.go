package components

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/evertras/bubble-table/table"

	"github.com/allbin/usbserial"
	"github.com/allbin/usbserial/internal/tui/colors"
	"github.com/allbin/usbserial/internal/tui/styles"
)

const (
	columnKeyIndicator = "indicator"
	columnKeyEndpoint  = "endpoint"
	columnKeyDevice    = "device"
	columnKeyDriver    = "driver"
	columnKeyPort      = "port"
	columnKeyStatus    = "status"
	columnKeyLine      = "line"
)

// EndpointTable lists the endpoints of the latest scan together with the
// state of their sessions
type EndpointTable struct {
	table   table.Model
	keys    []string
	focused bool
}

func NewEndpointTable(pageSize int) *EndpointTable {
	columns := []table.Column{
		table.NewColumn(columnKeyIndicator, "", 2),
		table.NewColumn(columnKeyEndpoint, "Endpoint", 22),
		table.NewColumn(columnKeyDevice, "Device", 28),
		table.NewColumn(columnKeyDriver, "Driver", 9),
		table.NewColumn(columnKeyPort, "Port", 5),
		table.NewColumn(columnKeyStatus, "Status", 26),
		table.NewColumn(columnKeyLine, "Line", 12),
	}

	t := table.New(columns).
		WithPageSize(pageSize).
		WithBaseStyle(lipgloss.NewStyle().
			Foreground(colors.Text).
			BorderForeground(colors.Surface2).
			Align(lipgloss.Left)).
		HighlightStyle(lipgloss.NewStyle().
			Background(colors.Surface1).
			Bold(true)).
		Focused(true)

	return &EndpointTable{table: t, focused: true}
}

func statusCell(info usbserial.SessionInfo, ok bool) table.StyledCell {
	if !ok {
		return table.NewStyledCell("-", lipgloss.NewStyle().Foreground(colors.Overlay0))
	}
	text := info.Status.String()
	if info.Status != usbserial.StatusDisconnected {
		text += " / " + info.Phase.String()
	} else if info.LastError != nil {
		text = info.LastError.Kind.String()
	}
	return table.NewStyledCell(text, styles.StatusStyle(info.Status))
}

// SetState rebuilds the rows from a snapshot, keeping the highlighted
// endpoint when it is still present
func (et *EndpointTable) SetState(state *usbserial.SessionState) {
	selected := et.SelectedKey()

	rows := make([]table.Row, 0, len(state.Endpoints))
	keys := make([]string, 0, len(state.Endpoints))
	highlight := 0
	for i, ep := range state.Endpoints {
		key := ep.Key()
		info, ok := state.Session(key)

		line := "-"
		if ok && info.Status != usbserial.StatusDisconnected {
			line = info.Config.String()
		}

		rows = append(rows, table.NewRow(table.RowData{
			columnKeyIndicator: styles.StatusIndicator(info),
			columnKeyEndpoint:  key,
			columnKeyDevice:    ep.Device.Name(),
			columnKeyDriver:    ep.Driver.Name(),
			columnKeyPort:      ep.PortIndex,
			columnKeyStatus:    statusCell(info, ok),
			columnKeyLine:      line,
		}))
		keys = append(keys, key)
		if key == selected {
			highlight = i
		}
	}

	et.keys = keys
	et.table = et.table.WithRows(rows).WithHighlightedRow(highlight)
}

// SelectedKey returns the endpoint key of the highlighted row
func (et *EndpointTable) SelectedKey() string {
	if len(et.keys) == 0 {
		return ""
	}
	i := et.table.GetHighlightedRowIndex()
	if i < 0 || i >= len(et.keys) {
		return ""
	}
	return et.keys[i]
}

func (et *EndpointTable) Len() int {
	return len(et.keys)
}

func (et *EndpointTable) SetFocused(focused bool) {
	et.focused = focused
	et.table = et.table.Focused(focused)
}

func (et *EndpointTable) Focused() bool {
	return et.focused
}

func (et *EndpointTable) SetPageSize(pageSize int) {
	if pageSize < 1 {
		pageSize = 1
	}
	et.table = et.table.WithPageSize(pageSize)
}

func (et *EndpointTable) Update(msg tea.Msg) (*EndpointTable, tea.Cmd) {
	var cmd tea.Cmd
	et.table, cmd = et.table.Update(msg)
	return et, cmd
}

func (et *EndpointTable) View() string {
	if len(et.keys) == 0 {
		return lipgloss.NewStyle().
			Foreground(colors.Overlay0).
			Padding(1, 2).
			Render("No USB serial endpoints found. Press 'r' to rescan.")
	}
	return et.table.View()
}
