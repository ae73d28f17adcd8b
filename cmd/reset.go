/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/allbin/usbserial/transport/sysfs"
)

// resetCmd represents the reset command
var resetCmd = &cobra.Command{
	Use:   "reset <endpoint|device-id|node>",
	Short: "Reset a USB serial device",
	Long: `Perform a USB-level reset on a serial device. This can recover devices
that are hung or unresponsive without physically unplugging them.

The device will re-enumerate after reset, which may change its tty names.
Device IDs follow the USB topology and survive the reset.

Requirements:
- the sysfs transport
- usbreset utility must be installed (from usbutils package)
- Root/sudo permissions required for USB operations

Examples:
  sudo usbserial reset 1-2
  sudo usbserial reset /dev/ttyUSB0`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if !sysfs.IsUSBResetAvailable() {
			fmt.Fprintln(os.Stderr, "Error: usbreset utility not available")
			fmt.Fprintln(os.Stderr, "Install with: sudo apt-get install usbutils")
			os.Exit(1)
		}

		settle, _ := cmd.Flags().GetDuration("settle")
		if err := runReset(cmd.Context(), args[0], settle); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			if errors.Is(err, sysfs.ErrUSBInfoNotAvailable) {
				fmt.Fprintln(os.Stderr, "This device does not appear to be a USB device")
			}
			os.Exit(1)
		}

		fmt.Println("USB device reset successfully")
		fmt.Println("\nUse 'usbserial scan --table' to see updated endpoint list")
	},
}

func init() {
	rootCmd.AddCommand(resetCmd)

	resetCmd.Flags().Duration("settle", sysfs.DefaultResetSettle, "Time to wait for the device to re-enumerate")
}

func runReset(ctx context.Context, arg string, settle time.Duration) error {
	rt, err := newRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	dev, err := lookupSysfsDevice(ctx, rt, arg)
	if err != nil {
		return err
	}

	fmt.Printf("Resetting USB device %s (%s)\n", dev.ID(), dev.Name())
	return sysfs.ResetDevice(ctx, dev, settle)
}
