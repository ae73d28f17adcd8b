package components

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allbin/usbserial"
)

func records(t *testing.T, from, to uint64) []usbserial.ReceivedRecord {
	t.Helper()
	var out []usbserial.ReceivedRecord
	for seq := from; seq < to; seq++ {
		rec, err := usbserial.NewRecord("1-2:0", time.Unix(0, 0), []byte{byte(seq)})
		require.NoError(t, err)
		rec.Seq = seq
		out = append(out, rec)
	}
	return out
}

func seqs(recs []usbserial.ReceivedRecord) []uint64 {
	out := make([]uint64, len(recs))
	for i, r := range recs {
		out[i] = r.Seq
	}
	return out
}

func TestHexAndASCII(t *testing.T) {
	data := []byte{'O', 'K', 0x0d, 0x0a, 0x7f}
	assert.Equal(t, "4F 4B 0D 0A 7F", HexString(data))
	assert.Equal(t, "OK...", ASCIIString(data))
}

func TestFormatRecord(t *testing.T) {
	rec, err := usbserial.NewRecord("1-2:0", time.Date(2025, 3, 1, 12, 30, 15, 250_000_000, time.Local), []byte("AT\r"))
	require.NoError(t, err)
	rec.Seq = 7

	f := NewRecordFormatter(DisplayMode{ShowHex: true, ShowASCII: true})
	line := f.FormatRecord(rec)
	assert.Contains(t, line, "[12:30:15.250]")
	assert.Contains(t, line, "#7")
	assert.Contains(t, line, "HEX: 41 54 0D")
	assert.Contains(t, line, "ASCII: AT.")
	assert.NotContains(t, line, "1-2:0")

	f.ToggleHex()
	f.ToggleASCII()
	f.ToggleTimestamp()
	f.SetDisplayMode(DisplayMode{ShowEndpoint: true, FullTimestamp: f.GetDisplayMode().FullTimestamp})
	line = f.FormatRecord(rec)
	assert.Contains(t, line, "[2025-03-01 12:30:15.250]")
	assert.Contains(t, line, "BYTES: 3")
	assert.Contains(t, line, "1-2:0")
}

func TestFormatRecordBadPayload(t *testing.T) {
	f := NewRecordFormatter(DisplayMode{ShowHex: true})
	line := f.FormatRecord(usbserial.ReceivedRecord{Seq: 1, Size: 2, Data: "zz"})
	assert.NotContains(t, line, "HEX:")
}

func TestLogWindowDiff(t *testing.T) {
	var w logWindow

	evicted, added, reset := w.diff(records(t, 0, 3))
	assert.True(t, reset)
	assert.Zero(t, evicted)
	assert.Equal(t, []uint64{0, 1, 2}, seqs(added))

	evicted, added, reset = w.diff(records(t, 0, 5))
	assert.False(t, reset)
	assert.Zero(t, evicted)
	assert.Equal(t, []uint64{3, 4}, seqs(added))

	// The ring dropped two records and two new ones arrived
	evicted, added, reset = w.diff(records(t, 2, 7))
	assert.False(t, reset)
	assert.Equal(t, 2, evicted)
	assert.Equal(t, []uint64{5, 6}, seqs(added))

	// Nothing new
	evicted, added, reset = w.diff(records(t, 2, 7))
	assert.False(t, reset)
	assert.Zero(t, evicted)
	assert.Empty(t, added)

	// The log moved past everything rendered
	evicted, added, reset = w.diff(records(t, 20, 22))
	assert.True(t, reset)
	assert.Zero(t, evicted)
	assert.Equal(t, []uint64{20, 21}, seqs(added))
}

func TestLogWindowClear(t *testing.T) {
	var w logWindow
	w.diff(records(t, 0, 4))
	w.clear()

	_, added, reset := w.diff(records(t, 0, 4))
	assert.False(t, reset)
	assert.Empty(t, added)

	_, added, _ = w.diff(records(t, 0, 6))
	assert.Equal(t, []uint64{4, 5}, seqs(added))
}

func TestTerminalSync(t *testing.T) {
	term := NewTerminal(80, 5, NewRecordFormatter(DisplayMode{ShowHex: true}))

	term.Sync(records(t, 0, 3))
	require.Len(t, term.Lines(), 3)
	assert.Contains(t, term.Lines()[0], "#0")

	term.Sync(records(t, 1, 5))
	require.Len(t, term.Lines(), 4)
	assert.Contains(t, term.Lines()[0], "#1")
	assert.Contains(t, term.Lines()[3], "#4")
	assert.True(t, term.Following())

	term.Clear()
	assert.Empty(t, term.Lines())
	term.Sync(records(t, 1, 6))
	require.Len(t, term.Lines(), 1)
	assert.Contains(t, term.Lines()[0], "#5")
}

func TestTerminalRefreshUsesDisplayMode(t *testing.T) {
	f := NewRecordFormatter(DisplayMode{ShowHex: true})
	term := NewTerminal(80, 5, f)
	term.Sync(records(t, 0, 2))
	assert.Contains(t, term.Lines()[1], "HEX: 01")

	f.ToggleHex()
	term.Refresh()
	assert.Contains(t, term.Lines()[1], "BYTES: 1")
}

func TestTerminalScrollingStopsFollow(t *testing.T) {
	term := NewTerminal(80, 2, NewRecordFormatter(DisplayMode{ShowHex: true}))
	term.Sync(records(t, 0, 10))

	term.ScrollUp()
	assert.False(t, term.Following())
	term.GotoBottom()
	assert.True(t, term.Following())
	term.GotoTop()
	assert.False(t, term.Following())
	assert.True(t, strings.Contains(term.View(), "#0"))
}

func TestLineInputApply(t *testing.T) {
	in := NewLineInput(usbserial.DefaultLineConfig())
	assert.Equal(t, "19200 8N1", in.Value())

	in.SetValue("115200 8E2")
	cfg, err := in.Apply()
	require.NoError(t, err)
	assert.Equal(t, 115200, cfg.BaudRate)
	assert.Equal(t, usbserial.ParityEven, cfg.Parity)
	assert.Equal(t, cfg, in.Current())
	assert.Equal(t, []string{"115200 8E2"}, in.History())

	in.SetValue("9600")
	cfg, err = in.Apply()
	require.NoError(t, err)
	assert.Equal(t, "9600 8E2", cfg.String())

	in.SetValue("fast")
	_, err = in.Apply()
	assert.Error(t, err)
	assert.Equal(t, "9600 8E2", in.Current().String())

	in.Blur()
	assert.Equal(t, "9600 8E2", in.Value())
}

func TestLineInputHistory(t *testing.T) {
	in := NewLineInput(usbserial.DefaultLineConfig())
	in.AddToHistory("9600")
	in.AddToHistory("9600")
	in.AddToHistory("  ")
	in.AddToHistory("115200 8N1")
	assert.Equal(t, []string{"9600", "115200 8N1"}, in.History())

	in.SetValue("draft")
	in.NavigateHistoryUp()
	assert.Equal(t, "115200 8N1", in.Value())
	in.NavigateHistoryUp()
	assert.Equal(t, "9600", in.Value())
	in.NavigateHistoryUp()
	assert.Equal(t, "9600", in.Value())

	in.NavigateHistoryDown()
	assert.Equal(t, "115200 8N1", in.Value())
	in.NavigateHistoryDown()
	assert.Equal(t, "draft", in.Value())
}

func TestLineInputHistoryBounded(t *testing.T) {
	in := NewLineInput(usbserial.DefaultLineConfig())
	for i := 0; i < maxHistory+10; i++ {
		in.AddToHistory(strings.Repeat("x", i+1))
	}
	assert.Len(t, in.History(), maxHistory)
	assert.Equal(t, strings.Repeat("x", 11), in.History()[0])
}
