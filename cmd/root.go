/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/allbin/usbserial/internal/config"
	"github.com/allbin/usbserial/internal/logger"
)

var (
	cfgFile string
	v       = viper.New()
	cfg     *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "usbserial",
	Short: "Connect to USB serial devices and stream what they send",
	Long: `usbserial discovers USB serial adapters (FTDI, CP210x, CH34x, PL2303 and
CDC-ACM devices), negotiates access to their device nodes, opens them with
the requested line settings and streams every received chunk into an
in-memory message log.

Settings are read from usbserial.yaml (/etc/usbserial, ~/.usbserial or the
working directory), USBSERIAL_* environment variables and flags, in
increasing order of precedence.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(v, cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded
		return logger.Init(cfg.Log)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Close()
	},
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default searches for usbserial.yaml)")

	flags.String("transport", "sysfs", "Device transport: sysfs, bugst")
	flags.String("sys-root", "/sys", "sysfs mount point")
	flags.String("dev-root", "/dev", "Directory holding the device nodes")
	flags.Bool("watch", false, "Rescan when ttys appear or disappear")

	flags.IntP("baud", "b", 19200, "Baud rate")
	flags.Int("data-bits", 8, "Data bits: 5, 6, 7, 8")
	flags.Int("stop-bits", 1, "Stop bits: 1, 2")
	flags.StringP("parity", "p", "none", "Parity: none, odd, even, mark, space")

	flags.String("session-mode", "single", "Session mode: single, multi")
	flags.Bool("await-permission", false, "Wait for a pending permission request instead of failing")
	flags.Duration("open-timeout", 0, "Give up opening a port after this long (0 waits forever)")
	flags.Int("records", 4096, "Message log capacity (0 keeps every record)")

	flags.String("log-level", "info", "Log level: debug, info, warn, error")
	flags.String("log-output", "stderr", "Log destination: stderr, stdout, discard or a file path")
	flags.Bool("debug", false, "Shorthand for --log-level debug")

	bindings := map[string]string{
		"transport":                "transport",
		"sys_root":                 "sys-root",
		"dev_root":                 "dev-root",
		"watch":                    "watch",
		"line.baud":                "baud",
		"line.data_bits":           "data-bits",
		"line.stop_bits":           "stop-bits",
		"line.parity":              "parity",
		"session.mode":             "session-mode",
		"session.await_permission": "await-permission",
		"session.open_timeout":     "open-timeout",
		"records.capacity":         "records",
		"log.level":                "log-level",
		"log.output":               "log-output",
		"log.debug":                "debug",
	}
	for key, flag := range bindings {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", flag, err))
		}
	}
}
