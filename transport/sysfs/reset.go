package sysfs

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"time"
)

var (
	ErrUSBResetNotAvailable = errors.New("usbreset utility not found in PATH")
	ErrUSBInfoNotAvailable  = errors.New("usb bus/device number not available")
)

// DefaultResetSettle is how long a reset device takes to re-enumerate
const DefaultResetSettle = 2 * time.Second

// USBPath formats bus and device numbers the way usbreset expects (BBB/DDD)
func USBPath(bus, device string) (string, error) {
	b, err := strconv.Atoi(bus)
	if err != nil {
		return "", fmt.Errorf("%w: bus %q", ErrUSBInfoNotAvailable, bus)
	}
	d, err := strconv.Atoi(device)
	if err != nil {
		return "", fmt.Errorf("%w: device %q", ErrUSBInfoNotAvailable, device)
	}
	return fmt.Sprintf("%03d/%03d", b, d), nil
}

// IsUSBResetAvailable checks if usbreset utility is available in PATH
func IsUSBResetAvailable() bool {
	_, err := exec.LookPath("usbreset")
	return err == nil
}

// ResetDevice performs a USB-level reset of the device. It can recover
// hardware that is hung. Requires the usbreset utility (usbutils) and
// usually root.
func ResetDevice(ctx context.Context, dev *Device, settle time.Duration) error {
	if dev.BusNumber == "" || dev.DeviceNumber == "" {
		return ErrUSBInfoNotAvailable
	}
	usbPath, err := USBPath(dev.BusNumber, dev.DeviceNumber)
	if err != nil {
		return err
	}

	if !IsUSBResetAvailable() {
		return ErrUSBResetNotAvailable
	}

	cmd := exec.CommandContext(ctx, "usbreset", usbPath)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("usbreset failed: %w (output: %s)", err, string(output))
	}

	// Wait for the device to re-enumerate
	if settle > 0 {
		timer := time.NewTimer(settle)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
