package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"nhooyr.io/websocket"

	"github.com/ds-codi/pm-supervisor/internal/livebridge"
)

func eventsCmd(bridgeAddr *string) *cobra.Command {
	return &cobra.Command{
		Use:   "events",
		Short: "Stream the live dashboard bridge's event and service-snapshot frames",
		RunE: func(cmd *cobra.Command, args []string) error {
			return streamEvents(cmd.Context(), *bridgeAddr)
		},
	}
}

func streamEvents(ctx context.Context, bridgeAddr string) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, bridgeAddr, nil)
	if err != nil {
		return fmt.Errorf("dial live bridge: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read frame: %w", err)
		}

		var frame livebridge.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		printFrame(os.Stdout, frame)
	}
}

func printFrame(out io.Writer, frame livebridge.Frame) {
	switch frame.Kind {
	case livebridge.FrameEvent:
		if frame.Event == nil {
			return
		}
		fmt.Fprintf(out, "[%d] %s %s\n", frame.Event.ID, frame.Event.Data.Kind, frame.Event.Data.Message)
	case livebridge.FrameServiceSnapshot:
		fmt.Fprintf(out, "snapshot: %d service(s), %d client(s)\n", len(frame.Services), frame.ClientCount)
	}
}
