package usbserial

import (
	"strconv"
	"strings"
)

// Chip families recognised by the default probe table
const (
	DriverFTDI   = "FTDI"
	DriverCP210x = "CP210x"
	DriverCH34x  = "CH34x"
	DriverPL2303 = "PL2303"
	DriverCDCACM = "CDC-ACM"
)

// USBID identifies a USB product by vendor and product id
type USBID struct {
	VendorID  uint16
	ProductID uint16
}

// ParseUSBID parses the hex strings found in sysfs idVendor/idProduct
// files or reported by port enumerators ("0403", "0x6001")
func ParseUSBID(vendor, product string) (USBID, bool) {
	v, err := parseHex16(vendor)
	if err != nil {
		return USBID{}, false
	}
	p, err := parseHex16(product)
	if err != nil {
		return USBID{}, false
	}
	return USBID{VendorID: v, ProductID: p}, true
}

func parseHex16(s string) (uint16, error) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
	n, err := strconv.ParseUint(s, 16, 16)
	return uint16(n), err
}

// ProbeTable maps USB ids and kernel driver names to chip families
type ProbeTable struct {
	products      map[USBID]string
	vendors       map[uint16]string
	kernelDrivers map[string]string
}

// NewProbeTable creates an empty table
func NewProbeTable() *ProbeTable {
	return &ProbeTable{
		products:      make(map[USBID]string),
		vendors:       make(map[uint16]string),
		kernelDrivers: make(map[string]string),
	}
}

// AddProduct registers a single vendor/product pair
func (t *ProbeTable) AddProduct(id USBID, driver string) *ProbeTable {
	t.products[id] = driver
	return t
}

// AddVendor registers every product of a vendor
func (t *ProbeTable) AddVendor(vendorID uint16, driver string) *ProbeTable {
	t.vendors[vendorID] = driver
	return t
}

// AddKernelDriver registers a Linux kernel driver name
func (t *ProbeTable) AddKernelDriver(name, driver string) *ProbeTable {
	t.kernelDrivers[name] = driver
	return t
}

// Match returns the chip family for a device. An exact product entry wins
// over a kernel driver entry, which wins over a vendor-wide entry.
func (t *ProbeTable) Match(id USBID, kernelDriver string) (string, bool) {
	if name, ok := t.products[id]; ok {
		return name, true
	}
	if kernelDriver != "" {
		if name, ok := t.kernelDrivers[kernelDriver]; ok {
			return name, true
		}
	}
	if name, ok := t.vendors[id.VendorID]; ok {
		return name, true
	}
	return "", false
}

// DefaultProbeTable covers the FTDI, Silicon Labs, WCH, Prolific and
// CDC-ACM devices handled by the common usb-serial drivers
func DefaultProbeTable() *ProbeTable {
	t := NewProbeTable()

	t.AddVendor(0x0403, DriverFTDI)

	t.AddProduct(USBID{0x10c4, 0xea60}, DriverCP210x)
	t.AddProduct(USBID{0x10c4, 0xea70}, DriverCP210x)
	t.AddProduct(USBID{0x10c4, 0xea71}, DriverCP210x)
	t.AddProduct(USBID{0x10c4, 0xea80}, DriverCP210x)

	t.AddProduct(USBID{0x1a86, 0x7523}, DriverCH34x)
	t.AddProduct(USBID{0x1a86, 0x5523}, DriverCH34x)
	t.AddProduct(USBID{0x1a86, 0x55d4}, DriverCDCACM)

	t.AddProduct(USBID{0x067b, 0x2303}, DriverPL2303)
	t.AddProduct(USBID{0x067b, 0x23a3}, DriverPL2303)
	t.AddProduct(USBID{0x067b, 0x23c3}, DriverPL2303)
	t.AddProduct(USBID{0x067b, 0x23d3}, DriverPL2303)

	// Boards that enumerate as CDC-ACM
	t.AddVendor(0x2341, DriverCDCACM) // Arduino
	t.AddVendor(0x2e8a, DriverCDCACM) // Raspberry Pi
	t.AddProduct(USBID{0x0483, 0x5740}, DriverCDCACM)
	t.AddProduct(USBID{0x16c0, 0x0483}, DriverCDCACM)

	t.AddKernelDriver("ftdi_sio", DriverFTDI)
	t.AddKernelDriver("cp210x", DriverCP210x)
	t.AddKernelDriver("ch341", DriverCH34x)
	t.AddKernelDriver("pl2303", DriverPL2303)
	t.AddKernelDriver("cdc_acm", DriverCDCACM)

	return t
}
