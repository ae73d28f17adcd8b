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

	"github.com/spf13/cobra"

	"github.com/allbin/usbserial/sink"
)

// listenCmd represents the listen command
var listenCmd = &cobra.Command{
	Use:   "listen [endpoint]",
	Short: "Stream received data from an endpoint to stdout",
	Long: `Connect to a USB serial endpoint and print every received chunk.

Without an argument the first endpoint found is used. Each chunk becomes one
record of the message log; records are printed as hex lines (default), raw
bytes or JSON and, when nats.url is configured, published to NATS on
<subject>.<endpoint>.

The command runs until interrupted (Ctrl+C) or until the device goes away.

Example usage:
  usbserial listen
  usbserial listen 1-2:0 --baud 115200
  usbserial listen /dev/ttyACM0 --format json --await-permission`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		arg := ""
		if len(args) == 1 {
			arg = args[0]
		}
		format, _ := cmd.Flags().GetString("format")

		if err := runListen(arg, format); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(listenCmd)

	listenCmd.Flags().StringP("format", "f", "hex", "Output format: hex, raw, json")
	listenCmd.Flags().String("nats-url", "", "Publish records to this NATS server")
	listenCmd.Flags().String("nats-subject", "usbserial.records", "NATS subject prefix")

	if err := v.BindPFlag("nats.url", listenCmd.Flags().Lookup("nats-url")); err != nil {
		panic(err)
	}
	if err := v.BindPFlag("nats.subject", listenCmd.Flags().Lookup("nats-subject")); err != nil {
		panic(err)
	}
}

func runListen(arg, formatName string) error {
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
	if err := rt.startWatch(ctx); err != nil {
		return err
	}

	sinks := []sink.Sink{sink.NewWriterSink(os.Stdout, format)}
	nats, err := rt.natsSink()
	if err != nil {
		return err
	}
	if nats != nil {
		sinks = append(sinks, nats)
	}
	defer func() {
		for _, s := range sinks {
			if err := s.Close(); err != nil {
				rt.log.Warn().Err(err).Msg("close sink failed")
			}
		}
	}()

	fmt.Fprintf(os.Stderr, "Listening on %s (%s)\n", ep.Key(), ep)
	fmt.Fprintf(os.Stderr, "Press Ctrl+C to stop\n\n")

	return rt.stream(ctx, ep, sinks...)
}
