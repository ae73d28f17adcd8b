package sysfs

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Device nodes created by the usb-serial and cdc-acm kernel drivers
var ttyPattern = regexp.MustCompile(`^tty(USB|ACM)\d+$`)

// TTY is one serial node exposed by a USB device
type TTY struct {
	Name            string
	Path            string
	InterfaceNumber int
	KernelDriver    string
}

// Device is a USB device found under /sys with at least one tty
type Device struct {
	SysPath      string
	VendorID     string
	ProductID    string
	SerialNumber string
	Manufacturer string
	Product      string
	BusNumber    string
	DeviceNumber string
	TTYs         []TTY
}

// ID is the USB topology path (e.g. "5-2.3.1"). It stays stable while the
// device is attached to the same port.
func (d *Device) ID() string {
	return filepath.Base(d.SysPath)
}

// Name returns the product string, falling back to vendor:product
func (d *Device) Name() string {
	if d.Product != "" {
		return d.Product
	}
	return fmt.Sprintf("%s:%s", d.VendorID, d.ProductID)
}

// Nodes returns the /dev paths of the device's ttys
func (d *Device) Nodes() []string {
	nodes := make([]string, len(d.TTYs))
	for i, tty := range d.TTYs {
		nodes[i] = tty.Path
	}
	return nodes
}

// KernelDriver returns the driver bound to the first interface
func (d *Device) KernelDriver() string {
	if len(d.TTYs) == 0 {
		return ""
	}
	return d.TTYs[0].KernelDriver
}

// readSysfsFile reads a sysfs attribute, returning "" if it is missing
func readSysfsFile(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// enumerate walks <sysRoot>/class/tty and groups USB ttys by their USB
// device directory
func enumerate(sysRoot, devRoot string) ([]*Device, error) {
	classDir := filepath.Join(sysRoot, "class", "tty")
	entries, err := os.ReadDir(classDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	byPath := make(map[string]*Device)
	for _, entry := range entries {
		name := entry.Name()
		if !ttyPattern.MatchString(name) {
			continue
		}

		resolved, err := filepath.EvalSymlinks(filepath.Join(classDir, name, "device"))
		if err != nil {
			continue
		}

		ifacePath, devPath, ok := findUSBDevice(resolved)
		if !ok {
			continue
		}

		dev, ok := byPath[devPath]
		if !ok {
			dev = &Device{
				SysPath:      devPath,
				VendorID:     readSysfsFile(filepath.Join(devPath, "idVendor")),
				ProductID:    readSysfsFile(filepath.Join(devPath, "idProduct")),
				SerialNumber: readSysfsFile(filepath.Join(devPath, "serial")),
				Manufacturer: readSysfsFile(filepath.Join(devPath, "manufacturer")),
				Product:      readSysfsFile(filepath.Join(devPath, "product")),
				BusNumber:    readSysfsFile(filepath.Join(devPath, "busnum")),
				DeviceNumber: readSysfsFile(filepath.Join(devPath, "devnum")),
			}
			byPath[devPath] = dev
		}

		iface, _ := strconv.ParseInt(readSysfsFile(filepath.Join(ifacePath, "bInterfaceNumber")), 16, 32)
		driver := ""
		if link, err := os.Readlink(filepath.Join(ifacePath, "driver")); err == nil {
			driver = filepath.Base(link)
		}

		dev.TTYs = append(dev.TTYs, TTY{
			Name:            name,
			Path:            filepath.Join(devRoot, name),
			InterfaceNumber: int(iface),
			KernelDriver:    driver,
		})
	}

	devices := make([]*Device, 0, len(byPath))
	for _, dev := range byPath {
		sort.Slice(dev.TTYs, func(i, j int) bool {
			if dev.TTYs[i].InterfaceNumber != dev.TTYs[j].InterfaceNumber {
				return dev.TTYs[i].InterfaceNumber < dev.TTYs[j].InterfaceNumber
			}
			return dev.TTYs[i].Name < dev.TTYs[j].Name
		})
		devices = append(devices, dev)
	}
	sort.Slice(devices, func(i, j int) bool {
		return devices[i].ID() < devices[j].ID()
	})
	return devices, nil
}

// findUSBDevice walks up from a tty's device directory to the first
// directory carrying idVendor. usb-serial ttys sit one level below the
// interface, cdc-acm ttys point at the interface itself.
func findUSBDevice(path string) (iface, device string, ok bool) {
	child := path
	for i := 0; i < 3; i++ {
		parent := filepath.Dir(child)
		if parent == child {
			break
		}
		if _, err := os.Stat(filepath.Join(parent, "idVendor")); err == nil {
			return child, parent, true
		}
		child = parent
	}
	return "", "", false
}
