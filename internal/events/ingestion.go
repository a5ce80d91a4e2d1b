package events

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// StartIngestion launches a background goroutine that follows an upstream
// SSE source (typically the dashboard server's aggregate event stream) and
// re-broadcasts every frame onto handle, until ctx is cancelled.
func StartIngestion(ctx context.Context, client *http.Client, streamURL string, handle *Handle, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	if client == nil {
		client = &http.Client{Timeout: 0}
	}
	go ingestLoop(ctx, client, streamURL, handle, logger)
}

func ingestLoop(ctx context.Context, client *http.Client, streamURL string, handle *Handle, logger *slog.Logger) {
	const maxBackoff = 30 * time.Second
	backoff := 1 * time.Second

	for {
		if ctx.Err() != nil {
			return
		}

		err := connectAndIngest(ctx, client, streamURL, handle, logger)
		if err != nil {
			logger.Warn("events/ingestion stream error", "error", err, "retry_in", backoff.String())
		} else {
			logger.Info("events/ingestion stream closed cleanly", "retry_in", backoff.String())
			backoff = 1 * time.Second
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		if err != nil {
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}
}

func connectAndIngest(ctx context.Context, client *http.Client, streamURL string, handle *Handle, logger *slog.Logger) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
	if err != nil {
		return fmt.Errorf("building request for %s: %w", streamURL, err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", streamURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("server returned %s", resp.Status)
	}

	logger.Info("events/ingestion connected", "url", streamURL)

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var block []string
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			if len(block) > 0 {
				processSSEMessage(strings.Join(block, "\n"), handle, logger)
				block = block[:0]
			}
			continue
		}
		block = append(block, line)
	}
	return scanner.Err()
}

func processSSEMessage(message string, handle *Handle, logger *slog.Logger) {
	var eventName, data string
	for _, line := range strings.Split(message, "\n") {
		switch {
		case strings.HasPrefix(line, "event: "):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event: "))
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimSpace(strings.TrimPrefix(line, "data: "))
		}
	}

	if data == "" || eventName == "connected" || eventName == "" {
		return
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(data), &payload); err != nil {
		logger.Warn("events/ingestion bad JSON payload", "event", eventName, "error", err)
		return
	}

	handle.Emit(mapIngestedPayload(payload))
}

func mapIngestedPayload(payload map[string]any) DataChangeEvent {
	mcpType, _ := payload["type"].(string)
	workspaceID, _ := payload["workspace_id"].(string)
	planID, _ := payload["plan_id"].(string)

	switch mcpType {
	case "plan_created":
		return DataChangeEvent{Kind: KindPlanCreated, WorkspaceID: workspaceID, PlanID: planID}

	case "plan_updated", "note_added", "plan_imported", "plan_duplicated", "plan_resumed":
		return DataChangeEvent{Kind: KindPlanUpdated, WorkspaceID: workspaceID, PlanID: planID}

	case "plan_archived":
		return DataChangeEvent{Kind: KindPlanArchived, WorkspaceID: workspaceID, PlanID: planID}

	case "plan_deleted":
		return DataChangeEvent{Kind: KindPlanDeleted, WorkspaceID: workspaceID, PlanID: planID}

	case "step_updated":
		stepIndex := uint32(0)
		if data, ok := payload["data"].(map[string]any); ok {
			if v, ok := data["step_index"].(float64); ok {
				stepIndex = uint32(v)
			}
		}
		return DataChangeEvent{Kind: KindStepChanged, WorkspaceID: workspaceID, PlanID: planID, StepIndex: &stepIndex}

	case "agent_session_started", "agent_session_completed", "handoff_started", "handoff_completed":
		sessionID := ""
		if data, ok := payload["data"].(map[string]any); ok {
			if v, ok := data["session_id"].(string); ok {
				sessionID = v
			}
		}
		return DataChangeEvent{Kind: KindAgentSessionChanged, WorkspaceID: workspaceID, PlanID: planID, SessionID: sessionID}

	case "workspace_registered", "workspace_indexed":
		return DataChangeEvent{Kind: KindWorkspaceChanged, WorkspaceID: workspaceID}

	default:
		raw, _ := json.Marshal(payload)
		return DataChangeEvent{Kind: KindRaw, Payload: raw}
	}
}
