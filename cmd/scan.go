/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/allbin/usbserial"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:     "scan",
	Aliases: []string{"list"},
	Short:   "List connectable USB serial endpoints",
	Long: `Enumerate attached USB devices, probe them against the known serial chip
families and list one endpoint per serial port.

Devices without a matching driver are skipped. Endpoint keys have the form
<device-id>:<port-index> and are accepted by the listen, capture and info
commands.

Example usage:
  usbserial scan
  usbserial scan --table
  usbserial scan --transport bugst`,
	Run: func(cmd *cobra.Command, args []string) {
		tableFormat, _ := cmd.Flags().GetBool("table")
		if err := runScan(cmd.Context(), tableFormat); err != nil {
			fmt.Fprintf(os.Stderr, "Error scanning devices: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().BoolP("table", "t", false, "Display output in a styled table format")
}

func runScan(ctx context.Context, tableFormat bool) error {
	if ctx == nil {
		ctx = context.Background()
	}

	rt, err := newRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	endpoints, err := rt.catalog.Scan(ctx)
	if err != nil {
		return err
	}

	if len(endpoints) == 0 {
		fmt.Println("No USB serial endpoints found")
		return nil
	}

	if tableFormat {
		renderTable(rt.gate, endpoints)
	} else {
		renderSimple(endpoints)
	}
	return nil
}

func accessLabel(gate *usbserial.PermissionGate, dev usbserial.Device) string {
	if gate.HasPermission(dev) {
		return "rw"
	}
	return "no access"
}

// renderTable renders the endpoints in a styled static table
func renderTable(gate *usbserial.PermissionGate, endpoints []usbserial.Endpoint) {
	fmt.Printf("Found %d endpoint(s):\n\n", len(endpoints))

	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("99")).
		PaddingRight(2)
	cellStyle := lipgloss.NewStyle().
		PaddingRight(2)

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		BorderColumn(false).
		BorderLeft(false).
		BorderRight(false).
		BorderTop(false).
		BorderBottom(false).
		Headers("Endpoint", "Node", "Driver", "Port", "Device", "Access").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})

	for _, ep := range endpoints {
		node := endpointNode(ep)
		if node == "" {
			node = "-"
		}
		t.Row(
			ep.Key(),
			node,
			ep.Driver.Name(),
			strconv.Itoa(ep.PortIndex),
			ep.Device.Name(),
			accessLabel(gate, ep.Device),
		)
	}

	fmt.Println(t.Render())
}

// renderSimple prints one endpoint key per line
func renderSimple(endpoints []usbserial.Endpoint) {
	for _, ep := range endpoints {
		fmt.Println(ep.Key())
	}
}
