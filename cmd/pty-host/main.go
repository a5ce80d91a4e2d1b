// Command pty-host runs out-of-process from the interactive terminal UI and
// owns every live PTY session it spawns on the UI's behalf, so a UI crash
// or restart never orphans a running shell.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ds-codi/pm-supervisor/internal/logging"
	"github.com/ds-codi/pm-supervisor/internal/ptyhost"
)

func main() {
	var ipcPort int
	var heartbeatMs uint64
	var logLevel string
	flag.IntVar(&ipcPort, "ipc-port", 9102, "loopback TCP port the UI connects to")
	flag.Uint64Var(&heartbeatMs, "heartbeat-ms", 10_000, "heartbeat interval sent to the UI")
	flag.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	logger, closer, err := logging.Init(logging.Options{Level: logLevel, LogFile: os.Getenv("PM_LOG_FILE")})
	if err != nil {
		fmt.Fprintf(os.Stderr, "pty-host: init logging: %v\n", err)
		os.Exit(1)
	}
	if closer != nil {
		defer closer.Close()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	events := make(chan ptyhost.HostEvent, 256)
	manager := ptyhost.NewManager(events)
	server := ptyhost.NewIPCServer(manager, heartbeatMs, logger)

	if err := server.Run(ctx, ipcPort, events); err != nil && ctx.Err() == nil {
		logger.Error("pty-host: exited with error", "error", err)
		os.Exit(1)
	}
}
