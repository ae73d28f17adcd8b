package usbserial

import (
	"encoding/hex"
	"fmt"
	"time"
)

// ReceivedRecord is one chunk of bytes delivered by a transport. Chunk
// boundaries are whatever the transport handed over; no framing is applied.
type ReceivedRecord struct {
	Seq      uint64    `json:"seq"`
	Endpoint string    `json:"endpoint"`
	Time     time.Time `json:"time"`
	Size     int       `json:"size"`
	Data     string    `json:"data"`
}

// NewRecord wraps a non-empty chunk. Seq is assigned by the store.
func NewRecord(endpoint string, at time.Time, chunk []byte) (ReceivedRecord, error) {
	if len(chunk) == 0 {
		return ReceivedRecord{}, ErrEmptyChunk
	}
	return ReceivedRecord{
		Endpoint: endpoint,
		Time:     at,
		Size:     len(chunk),
		Data:     EncodeHex(chunk),
	}, nil
}

// Bytes decodes the payload back into the original chunk
func (r ReceivedRecord) Bytes() ([]byte, error) {
	b, err := DecodeHex(r.Data)
	if err != nil {
		return nil, err
	}
	if len(b) != r.Size {
		return nil, fmt.Errorf("record %d: payload holds %d bytes, size says %d", r.Seq, len(b), r.Size)
	}
	return b, nil
}

// EncodeHex renders bytes as contiguous upper-case hex
func EncodeHex(b []byte) string {
	return fmt.Sprintf("%X", b)
}

// DecodeHex accepts upper- or lower-case hex
func DecodeHex(s string) ([]byte, error) {
	return hex.DecodeString(s)
}
