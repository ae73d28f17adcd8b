/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/allbin/usbserial"
	"github.com/allbin/usbserial/transport/bugst"
	"github.com/allbin/usbserial/transport/sysfs"
)

// infoCmd represents the info command
var infoCmd = &cobra.Command{
	Use:   "info <endpoint|device-id|node>",
	Short: "Display detailed information about a USB serial endpoint",
	Long: `Display detailed information about an endpoint including USB metadata.

The argument may be an endpoint key as printed by scan, a device ID or a
device node path.

Examples:
  usbserial info 1-2:0
  usbserial info /dev/ttyUSB0

With the sysfs transport this displays vendor/product IDs, serial numbers,
interface numbers, bus location and the bound kernel driver.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runInfo(cmd.Context(), args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "Error getting endpoint info: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func runInfo(ctx context.Context, arg string) error {
	rt, err := newRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	endpoints, err := rt.catalog.Scan(ctx)
	if err != nil {
		return err
	}
	ep, err := resolveEndpoint(endpoints, arg)
	if err != nil {
		return err
	}

	fmt.Printf("Endpoint Information: %s\n\n", ep.Key())
	fmt.Printf("  Device:      %s\n", ep.Device.Name())
	fmt.Printf("  Driver:      %s\n", ep.Driver.Name())
	fmt.Printf("  Port:        %d of %d\n", ep.PortIndex, len(ep.Driver.Ports()))
	if node := endpointNode(ep); node != "" {
		fmt.Printf("  Node:        %s\n", node)
	}
	fmt.Printf("  Access:      %s\n", accessLabel(rt.gate, ep.Device))

	switch dev := ep.Device.(type) {
	case *sysfs.Device:
		printSysfsDevice(dev, ep.PortIndex)
	case *bugst.Device:
		printBugstDevice(dev)
	}
	return nil
}

func printField(label, value string) {
	if value != "" {
		fmt.Printf("  %-13s %s\n", label+":", value)
	}
}

func printSysfsDevice(dev *sysfs.Device, portIndex int) {
	fmt.Println("\nUSB Device Information:")
	printField("Vendor ID", dev.VendorID)
	printField("Product ID", dev.ProductID)
	printField("Serial", dev.SerialNumber)
	printField("Manufacturer", dev.Manufacturer)
	printField("Product", dev.Product)
	printField("Bus", dev.BusNumber)
	printField("Device", dev.DeviceNumber)
	if usbPath, err := sysfs.USBPath(dev.BusNumber, dev.DeviceNumber); err == nil {
		printField("USB path", usbPath)
	}
	printField("Sysfs", dev.SysPath)

	if portIndex >= 0 && portIndex < len(dev.TTYs) {
		tty := dev.TTYs[portIndex]
		printField("Interface", fmt.Sprintf("%02d", tty.InterfaceNumber))
		printField("Kernel", tty.KernelDriver)
	}
}

func printBugstDevice(dev *bugst.Device) {
	fmt.Println("\nUSB Device Information:")
	printField("Vendor ID", dev.VendorID)
	printField("Product ID", dev.ProductID)
	printField("Serial", dev.SerialNumber)
	printField("Product", dev.Product)
	for i, name := range dev.PortNames {
		printField(fmt.Sprintf("Port %d", i), name)
	}
}

// lookupSysfsDevice resolves arg to a sysfs device for commands that need
// USB bus information
func lookupSysfsDevice(ctx context.Context, rt *runtime, arg string) (*sysfs.Device, error) {
	if rt.sysfs == nil {
		return nil, fmt.Errorf("%w: requires the sysfs transport", usbserial.ErrInvalidConfig)
	}
	if dev, err := rt.sysfs.Lookup(arg); err == nil {
		return dev, nil
	}

	endpoints, err := rt.catalog.Scan(ctx)
	if err != nil {
		return nil, err
	}
	ep, err := resolveEndpoint(endpoints, arg)
	if err != nil {
		return nil, err
	}
	dev, ok := ep.Device.(*sysfs.Device)
	if !ok {
		return nil, fmt.Errorf("%w: %s", usbserial.ErrDeviceNotFound, arg)
	}
	return dev, nil
}
