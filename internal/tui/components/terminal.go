package components

import (
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/allbin/usbserial"
)

// logWindow tracks which part of the store's message log a view has
// rendered. Records in a snapshot are contiguous by Seq.
type logWindow struct {
	first      uint64 // Seq of the first rendered record
	next       uint64 // Seq after the last rendered record
	hideBefore uint64 // records below this Seq were cleared by the user
}

// diff returns how many rendered records fell out of the log and the
// records not rendered yet. reset is set when the rendered window no
// longer overlaps the log.
func (w *logWindow) diff(records []usbserial.ReceivedRecord) (evicted int, added []usbserial.ReceivedRecord, reset bool) {
	visible := records
	for len(visible) > 0 && visible[0].Seq < w.hideBefore {
		visible = visible[1:]
	}
	if len(visible) == 0 {
		reset = w.next != w.first
		w.first, w.next = w.hideBefore, w.hideBefore
		return 0, nil, reset
	}

	head := visible[0].Seq
	if w.next == w.first || head > w.next || head < w.first {
		w.first, w.next = head, head+uint64(len(visible))
		return 0, visible, true
	}

	evicted = int(head - w.first)
	start := int(w.next - head)
	if start < len(visible) {
		added = visible[start:]
	}
	w.first = head
	w.next = head + uint64(len(visible))
	return evicted, added, false
}

func (w *logWindow) clear() {
	w.hideBefore = w.next
	w.first = w.next
}

// Terminal is a scrolling view over the message log
type Terminal struct {
	viewport  viewport.Model
	formatter *RecordFormatter
	window    logWindow
	records   []usbserial.ReceivedRecord
	lines     []string
	follow    bool
}

func NewTerminal(width, height int, formatter *RecordFormatter) *Terminal {
	return &Terminal{
		viewport:  viewport.New(width, height),
		formatter: formatter,
		follow:    true,
	}
}

func (t *Terminal) SetSize(width, height int) {
	t.viewport.Width = width
	t.viewport.Height = height
}

func (t *Terminal) GetViewport() viewport.Model {
	return t.viewport
}

// Sync renders the records of a snapshot that are not on screen yet
func (t *Terminal) Sync(records []usbserial.ReceivedRecord) {
	evicted, added, reset := t.window.diff(records)
	if reset {
		t.records = append(t.records[:0], added...)
		t.lines = t.formatter.FormatRecords(added)
	} else {
		if evicted > 0 {
			t.records = t.records[evicted:]
			t.lines = t.lines[evicted:]
		}
		if len(added) == 0 && evicted == 0 {
			return
		}
		t.records = append(t.records, added...)
		t.lines = append(t.lines, t.formatter.FormatRecords(added)...)
	}
	t.render()
}

// Refresh re-renders every record, e.g. after the display mode changed
func (t *Terminal) Refresh() {
	t.lines = t.formatter.FormatRecords(t.records)
	t.render()
}

func (t *Terminal) render() {
	t.viewport.SetContent(strings.Join(t.lines, "\n"))
	if t.follow {
		t.viewport.GotoBottom()
	}
}

// Clear hides every record received so far
func (t *Terminal) Clear() {
	t.window.clear()
	t.records = nil
	t.lines = nil
	t.viewport.SetContent("")
}

func (t *Terminal) Lines() []string {
	return t.lines
}

func (t *Terminal) Following() bool {
	return t.follow
}

func (t *Terminal) ScrollUp() {
	t.follow = false
	t.viewport.LineUp(1)
}

func (t *Terminal) ScrollDown() {
	t.viewport.LineDown(1)
	t.follow = t.viewport.AtBottom()
}

func (t *Terminal) GotoTop() {
	t.follow = false
	t.viewport.GotoTop()
}

func (t *Terminal) GotoBottom() {
	t.follow = true
	t.viewport.GotoBottom()
}

func (t *Terminal) Update(msg tea.Msg) (viewport.Model, tea.Cmd) {
	// Keys are handled by the owning model
	switch msg.(type) {
	case tea.WindowSizeMsg:
		return t.viewport.Update(msg)
	default:
		return t.viewport, nil
	}
}

func (t *Terminal) View() string {
	return t.viewport.View()
}
