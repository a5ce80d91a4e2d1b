package main

import (
	"context"
	"encoding/json"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"nhooyr.io/websocket"

	"github.com/ds-codi/pm-supervisor/internal/client"
	"github.com/ds-codi/pm-supervisor/internal/livebridge"
)

func runDashboard(c *client.Client, bridgeAddr string) error {
	m := newModel(c)
	program := tea.NewProgram(m)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go streamFramesInto(ctx, bridgeAddr, program)

	if _, err := program.Run(); err != nil {
		return fmt.Errorf("run dashboard: %w", err)
	}
	return nil
}

// streamFramesInto dials the live dashboard bridge and forwards every frame
// into the running bubbletea program. A dial failure is silent: the
// dashboard still functions from periodic control-plane polling alone.
func streamFramesInto(ctx context.Context, bridgeAddr string, program *tea.Program) {
	conn, _, err := websocket.Dial(ctx, bridgeAddr, nil)
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var frame livebridge.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		program.Send(frameMsg(frame))
	}
}
