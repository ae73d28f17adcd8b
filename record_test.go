package usbserial

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRecord(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	rec, err := NewRecord("dev:0", at, []byte{0x00, 0x1f, 0xab, 0xff})
	require.NoError(t, err)

	assert.Equal(t, "dev:0", rec.Endpoint)
	assert.Equal(t, at, rec.Time)
	assert.Equal(t, 4, rec.Size)
	assert.Equal(t, "001FABFF", rec.Data)

	b, err := rec.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x1f, 0xab, 0xff}, b)
}

func TestNewRecordRejectsEmptyChunk(t *testing.T) {
	_, err := NewRecord("dev:0", time.Now(), nil)
	assert.ErrorIs(t, err, ErrEmptyChunk)

	_, err = NewRecord("dev:0", time.Now(), []byte{})
	assert.ErrorIs(t, err, ErrEmptyChunk)
}

func TestRecordLargeChunk(t *testing.T) {
	chunk := bytes.Repeat([]byte{0xa5, 0x5a}, 32*1024)
	rec, err := NewRecord("dev:0", time.Now(), chunk)
	require.NoError(t, err)
	assert.Equal(t, len(chunk), rec.Size)
	assert.Len(t, rec.Data, 2*len(chunk))

	b, err := rec.Bytes()
	require.NoError(t, err)
	assert.Equal(t, chunk, b)
}

func TestDecodeHex(t *testing.T) {
	b, err := DecodeHex("deadBEEF")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, b)

	_, err = DecodeHex("abc")
	assert.Error(t, err)
}

func TestRecordBytesSizeMismatch(t *testing.T) {
	rec := ReceivedRecord{Seq: 3, Size: 3, Data: "0102"}
	_, err := rec.Bytes()
	assert.Error(t, err)
}
