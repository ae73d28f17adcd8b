/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/allbin/usbserial/sink"
)

// captureCmd represents the capture command
var captureCmd = &cobra.Command{
	Use:   "capture <endpoint> <output-file>",
	Short: "Capture received data to a file",
	Long: `Capture incoming data from a USB serial endpoint to a file for later parsing.

Received bytes are written unmodified by default; --format json writes one
record per line with sequence number, timestamp and hex payload. Runs
continuously until interrupted (Ctrl+C).

The output file is opened in append mode, allowing you to resume captures
without overwriting existing data.

Example usage:
  usbserial capture 1-2:0 data.log
  usbserial capture /dev/ttyUSB0 output.txt --baud 9600
  usbserial capture 1-2:0 capture.jsonl --format json --console`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		format, _ := cmd.Flags().GetString("format")
		showConsole, _ := cmd.Flags().GetBool("console")

		if err := runCapture(args[0], args[1], format, showConsole); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(captureCmd)

	captureCmd.Flags().StringP("format", "f", "raw", "File format: raw, hex, json")
	captureCmd.Flags().BoolP("console", "c", false, "Display incoming data on console while capturing")
	captureCmd.Flags().String("read-mode", "event", "Read mode: event (background reader) or direct")

	if err := v.BindPFlag("session.read_mode", captureCmd.Flags().Lookup("read-mode")); err != nil {
		panic(err)
	}
}

func runCapture(arg, outputPath, formatName string, showConsole bool) error {
	format, err := sink.ParseFormat(formatName)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	file, err := sink.OpenFile(outputPath, format)
	if err != nil {
		return fmt.Errorf("failed to open output file: %w", err)
	}
	defer file.Close()

	sinks := []sink.Sink{file}
	if showConsole {
		sinks = append(sinks, sink.NewWriterSink(os.Stdout, sink.FormatRaw))
	}

	fmt.Fprintf(os.Stderr, "Capturing data from %s to %s\n", ep.Key(), outputPath)
	if showConsole {
		fmt.Fprintf(os.Stderr, "Console display enabled\n")
	}
	fmt.Fprintf(os.Stderr, "Press Ctrl+C to stop\n\n")

	startTime := time.Now()
	err = rt.stream(ctx, ep, sinks...)
	fmt.Fprintf(os.Stderr, "\nCapture complete: %d bytes written in %v\n",
		file.BytesWritten(), time.Since(startTime).Round(time.Millisecond))
	return err
}
