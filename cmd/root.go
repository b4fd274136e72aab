// Package cmd implements the vshark command line using cobra.
package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	vlog "vshark/internal/log"
	"vshark/internal/tui"
)

var configFile string

// rootCmd runs the terminal viewer when called without a subcommand.
var rootCmd = &cobra.Command{
	Use:   "vshark",
	Short: "vshark - live network traffic viewer for the terminal",
	Long: `vshark spawns a capture process (dumpcap by default), frames the byte stream it
writes into packets and shows them live: a conversation list, a filtered packet
feed, a hex inspector for the selected conversation and a packet rate sparkline.

Examples:
  vshark                          # capture on "any" with dumpcap
  vshark -i eth0                  # capture on eth0
  vshark -r trace.pcap            # replay a capture file
  vshark -c vshark.yaml serve     # serve the same view over HTTP and WebSocket`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runViewer,
}

// Execute runs the root command. It is called by main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configFile, "config", "c", "", "config file path (yaml, json or toml)")
	pf.StringP("interface", "i", "", "capture interface (default \"any\")")
	pf.StringP("file", "r", "", "replay a capture file instead of spawning the capture command")
	pf.String("format", "", "capture stream format: pcap or raw (default \"pcap\")")
	pf.String("fifo", "", "named pipe the capture command writes to (default: stdout pipe)")
	pf.String("log-level", "", "log level: debug, info, warn or error (default \"info\")")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(interfacesCmd)
	rootCmd.AddCommand(configCmd)
}

func runViewer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	// the terminal belongs to the UI, so logs only go to the file
	if err := vlog.Init(cfg.Log, nil); err != nil {
		return err
	}
	defer vlog.Close()
	logger := vlog.GetLogger()

	eng, label, err := newEngine(cfg, logger)
	if err != nil {
		return err
	}
	closeExport := attachExport(eng, cfg, logger)
	defer closeExport()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := eng.Start(ctx); err != nil {
		return err
	}
	return tui.Run(ctx, eng, tui.Options{
		Refresh: cfg.UI.RefreshInterval,
		Source:  label,
	})
}
