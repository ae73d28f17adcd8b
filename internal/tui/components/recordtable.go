package components

import (
	"strconv"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/allbin/usbserial"
	"github.com/allbin/usbserial/internal/tui/colors"
)

type ViewMode int

const (
	ViewModeFollow ViewMode = iota
	ViewModeVisual
)

func (m ViewMode) String() string {
	if m == ViewModeVisual {
		return "VISUAL"
	}
	return "FOLLOW"
}

// RecordTable shows the message log one record per row. In follow mode it
// sticks to the newest record; in visual mode the cursor can be moved.
type RecordTable struct {
	table     table.Model
	formatter *RecordFormatter
	viewMode  ViewMode
	window    logWindow
	records   []usbserial.ReceivedRecord
	width     int
}

func NewRecordTable(width, height int, formatter *RecordFormatter) *RecordTable {
	if width < 80 {
		width = 80
	}
	if height < 5 {
		height = 5
	}

	t := table.New(
		table.WithFocused(false),
		table.WithHeight(height),
		table.WithWidth(width),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(colors.Subtext0).
		BorderBottom(true).
		Bold(true).
		Foreground(colors.Text)
	s.Selected = s.Selected.
		Foreground(colors.Text).
		Background(colors.Surface1).
		Bold(false)
	t.SetStyles(s)

	rt := &RecordTable{
		table:     t,
		formatter: formatter,
		viewMode:  ViewModeFollow,
		width:     width,
	}
	rt.updateColumns()
	return rt
}

func (rt *RecordTable) SetSize(width, height int) {
	if width < 80 {
		width = 80
	}
	rt.width = width
	rt.updateColumns()
	rt.table.SetHeight(height)
	rt.table.SetWidth(width)
	rt.table.UpdateViewport()
}

func (rt *RecordTable) updateColumns() {
	mode := rt.formatter.GetDisplayMode()

	timeWidth := len(ShortTimestampFormat) + 2
	if mode.FullTimestamp {
		timeWidth = len(FullTimestampFormat) + 2
	}
	seqWidth := 7
	bytesWidth := 6

	remaining := rt.width - timeWidth - seqWidth - bytesWidth - 10
	if remaining < 20 {
		remaining = 20
	}

	columns := []table.Column{
		{Title: "Time", Width: timeWidth},
		{Title: "Seq", Width: seqWidth},
	}
	switch {
	case mode.ShowHex && mode.ShowASCII:
		hexWidth := remaining * 7 / 10
		columns = append(columns,
			table.Column{Title: "Hex", Width: hexWidth},
			table.Column{Title: "ASCII", Width: remaining - hexWidth})
	case mode.ShowHex:
		columns = append(columns, table.Column{Title: "Hex", Width: remaining})
	case mode.ShowASCII:
		columns = append(columns, table.Column{Title: "ASCII", Width: remaining})
	default:
		columns = append(columns, table.Column{Title: "Endpoint", Width: remaining})
	}
	columns = append(columns, table.Column{Title: "Bytes", Width: bytesWidth})

	// Rows must match the new column count before the columns change
	rt.table.SetRows(nil)
	rt.table.SetColumns(columns)
	rt.refresh()
}

func (rt *RecordTable) row(rec usbserial.ReceivedRecord) table.Row {
	mode := rt.formatter.GetDisplayMode()
	row := table.Row{rt.formatter.FormatTimestamp(rec.Time), strconv.FormatUint(rec.Seq, 10)}

	data, err := rec.Bytes()
	switch {
	case err != nil:
		row = append(row, err.Error())
		if mode.ShowHex && mode.ShowASCII {
			row = append(row, "")
		}
	case mode.ShowHex && mode.ShowASCII:
		row = append(row, HexString(data), ASCIIString(data))
	case mode.ShowHex:
		row = append(row, HexString(data))
	case mode.ShowASCII:
		row = append(row, ASCIIString(data))
	default:
		row = append(row, rec.Endpoint)
	}
	return append(row, strconv.Itoa(rec.Size))
}

// Sync adds the records of a snapshot that are not in the table yet
func (rt *RecordTable) Sync(records []usbserial.ReceivedRecord) {
	evicted, added, reset := rt.window.diff(records)
	if !reset && evicted == 0 && len(added) == 0 {
		return
	}
	if reset {
		rt.records = append(rt.records[:0], added...)
	} else {
		rt.records = append(rt.records[evicted:], added...)
	}
	rt.refresh()
}

func (rt *RecordTable) refresh() {
	rows := make([]table.Row, len(rt.records))
	for i, rec := range rt.records {
		rows[i] = rt.row(rec)
	}
	rt.table.SetRows(rows)
	if rt.viewMode == ViewModeFollow {
		rt.table.GotoBottom()
	}
	rt.table.UpdateViewport()
}

// Refresh rebuilds columns and rows after the display mode changed
func (rt *RecordTable) Refresh() {
	rt.updateColumns()
}

func (rt *RecordTable) Clear() {
	rt.window.clear()
	rt.records = nil
	rt.table.SetRows(nil)
}

func (rt *RecordTable) Len() int {
	return len(rt.records)
}

// Selected returns the record under the cursor
func (rt *RecordTable) Selected() (usbserial.ReceivedRecord, bool) {
	i := rt.table.Cursor()
	if i < 0 || i >= len(rt.records) {
		return usbserial.ReceivedRecord{}, false
	}
	return rt.records[i], true
}

func (rt *RecordTable) GetViewMode() ViewMode {
	return rt.viewMode
}

func (rt *RecordTable) SetViewMode(mode ViewMode) {
	rt.viewMode = mode
	if mode == ViewModeFollow {
		if len(rt.records) > 0 {
			rt.table.SetCursor(len(rt.records) - 1)
		}
		rt.table.GotoBottom()
		rt.table.Blur()
	} else {
		rt.table.Focus()
	}
	rt.table.UpdateViewport()
}

func (rt *RecordTable) Update(msg tea.Msg) (*RecordTable, tea.Cmd) {
	var cmd tea.Cmd
	// Navigation only in visual mode
	if rt.viewMode == ViewModeVisual {
		rt.table, cmd = rt.table.Update(msg)
	}
	return rt, cmd
}

func (rt *RecordTable) View() string {
	return rt.table.View()
}
