package components

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/allbin/usbserial"
	"github.com/allbin/usbserial/internal/tui/colors"
)

const (
	ShortTimestampFormat = "15:04:05.000"
	FullTimestampFormat  = "2006-01-02 15:04:05.000"
)

type DisplayMode struct {
	ShowHex       bool
	ShowASCII     bool
	ShowEndpoint  bool
	FullTimestamp bool
}

// RecordFormatter renders message log records as single lines
type RecordFormatter struct {
	mode DisplayMode
}

func NewRecordFormatter(mode DisplayMode) *RecordFormatter {
	return &RecordFormatter{mode: mode}
}

func (f *RecordFormatter) SetDisplayMode(mode DisplayMode) {
	f.mode = mode
}

func (f *RecordFormatter) GetDisplayMode() DisplayMode {
	return f.mode
}

func (f *RecordFormatter) ToggleHex() {
	f.mode.ShowHex = !f.mode.ShowHex
}

func (f *RecordFormatter) ToggleASCII() {
	f.mode.ShowASCII = !f.mode.ShowASCII
}

func (f *RecordFormatter) ToggleTimestamp() {
	f.mode.FullTimestamp = !f.mode.FullTimestamp
}

// FormatTimestamp renders t in local time
func (f *RecordFormatter) FormatTimestamp(t time.Time) string {
	if f.mode.FullTimestamp {
		return t.Local().Format(FullTimestampFormat)
	}
	return t.Local().Format(ShortTimestampFormat)
}

// HexString spaces the record payload into byte pairs
func HexString(data []byte) string {
	return fmt.Sprintf("% X", data)
}

// ASCIIString replaces every non-printable byte with a dot
func ASCIIString(data []byte) string {
	var b strings.Builder
	b.Grow(len(data))
	for _, c := range data {
		if c >= 32 && c <= 126 {
			b.WriteByte(c)
		} else {
			b.WriteByte('.')
		}
	}
	return b.String()
}

func (f *RecordFormatter) FormatRecord(rec usbserial.ReceivedRecord) string {
	timestamp := lipgloss.NewStyle().
		Foreground(colors.Subtext0).
		Render(fmt.Sprintf("[%s]", f.FormatTimestamp(rec.Time)))

	indicator := lipgloss.NewStyle().
		Foreground(colors.Sky).
		Bold(true).
		Render(fmt.Sprintf("↙ #%d", rec.Seq))

	if f.mode.ShowEndpoint {
		indicator += " " + lipgloss.NewStyle().Foreground(colors.Overlay0).Render(rec.Endpoint)
	}

	data, err := rec.Bytes()
	if err != nil {
		return fmt.Sprintf("%s %s: %s", timestamp, indicator,
			lipgloss.NewStyle().Foreground(colors.Red).Render(err.Error()))
	}

	var parts []string
	if f.mode.ShowHex {
		parts = append(parts, "HEX: "+HexString(data))
	}
	if f.mode.ShowASCII {
		parts = append(parts, "ASCII: "+ASCIIString(data))
	}
	if !f.mode.ShowHex && !f.mode.ShowASCII {
		parts = append(parts, fmt.Sprintf("BYTES: %d", rec.Size))
	}

	return fmt.Sprintf("%s %s: %s", timestamp, indicator, strings.Join(parts, "  "))
}

func (f *RecordFormatter) FormatRecords(records []usbserial.ReceivedRecord) []string {
	formatted := make([]string, len(records))
	for i, rec := range records {
		formatted[i] = f.FormatRecord(rec)
	}
	return formatted
}
