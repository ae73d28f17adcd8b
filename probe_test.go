package usbserial

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseUSBID(t *testing.T) {
	id, ok := ParseUSBID("0403", "0x6001")
	assert.True(t, ok)
	assert.Equal(t, USBID{VendorID: 0x0403, ProductID: 0x6001}, id)

	id, ok = ParseUSBID(" 10C4\n", "EA60")
	assert.True(t, ok)
	assert.Equal(t, USBID{VendorID: 0x10c4, ProductID: 0xea60}, id)

	_, ok = ParseUSBID("zzzz", "6001")
	assert.False(t, ok)
	_, ok = ParseUSBID("0403", "123456")
	assert.False(t, ok)
}

func TestDefaultProbeTableMatch(t *testing.T) {
	table := DefaultProbeTable()

	tests := []struct {
		name   string
		id     USBID
		kernel string
		want   string
		ok     bool
	}{
		{"ftdi vendor wide", USBID{0x0403, 0x6010}, "", DriverFTDI, true},
		{"cp2102", USBID{0x10c4, 0xea60}, "", DriverCP210x, true},
		{"ch340", USBID{0x1a86, 0x7523}, "", DriverCH34x, true},
		{"product beats kernel driver", USBID{0x1a86, 0x55d4}, "ch341", DriverCDCACM, true},
		{"kernel driver beats vendor", USBID{0x0403, 0x1234}, "cdc_acm", DriverCDCACM, true},
		{"kernel driver only", USBID{0xdead, 0xbeef}, "pl2303", DriverPL2303, true},
		{"arduino", USBID{0x2341, 0x0043}, "", DriverCDCACM, true},
		{"unknown", USBID{0xdead, 0xbeef}, "", "", false},
		{"unknown kernel driver", USBID{0xdead, 0xbeef}, "usbhid", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := table.Match(tt.id, tt.kernel)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestProbeTableBuilder(t *testing.T) {
	table := NewProbeTable().
		AddProduct(USBID{0x1234, 0x0001}, "custom").
		AddVendor(0x1234, "vendor")

	got, ok := table.Match(USBID{0x1234, 0x0001}, "")
	assert.True(t, ok)
	assert.Equal(t, "custom", got)

	got, ok = table.Match(USBID{0x1234, 0x0002}, "")
	assert.True(t, ok)
	assert.Equal(t, "vendor", got)
}
