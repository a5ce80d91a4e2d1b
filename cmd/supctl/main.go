// Command supctl is the operator-facing admin tool for the supervisor: a
// status/events CLI for scripting, plus an interactive dashboard TUI and a
// raw PTY attach mode for driving a session directly.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/ds-codi/pm-supervisor/internal/client"
	"github.com/ds-codi/pm-supervisor/internal/config"
)

func main() {
	var socketPath string
	var tcpAddr string
	var bridgeAddr string
	var ptyHostAddr string

	root := &cobra.Command{
		Use:   "supctl",
		Short: "Inspect and drive a running supervisor",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(socketPath, tcpAddr)
			return runDashboard(c, bridgeAddr)
		},
	}
	root.PersistentFlags().StringVar(&socketPath, "socket", config.SocketPath(), "control-plane Unix socket path")
	root.PersistentFlags().StringVar(&tcpAddr, "tcp", config.TCPFallbackAddr(), "control-plane TCP fallback address")
	root.PersistentFlags().StringVar(&bridgeAddr, "bridge", "ws://127.0.0.1:8782/supervisor/live", "live dashboard bridge WebSocket URL")
	root.PersistentFlags().StringVar(&ptyHostAddr, "pty-host", "127.0.0.1:9102", "pty-host IPC address for attach mode")

	root.AddCommand(
		statusCmd(&socketPath, &tcpAddr),
		eventsCmd(&bridgeAddr),
		attachCmd(&ptyHostAddr),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
