package terminal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

const retainedOutputFiles = 10

// PersistedOutputLine is one captured line of command output.
type PersistedOutputLine struct {
	TimestampMs uint64 `json:"timestamp_ms"`
	Stream      string `json:"stream"`
	Text        string `json:"text"`
}

type persistedCommandOutput struct {
	RequestID        string                `json:"request_id"`
	Command          string                `json:"command"`
	WorkingDirectory string                `json:"working_directory"`
	WorkspaceID      string                `json:"workspace_id"`
	Status           string                `json:"status"`
	OutputLines      []PersistedOutputLine `json:"output_lines"`
	ExitCode         *int                  `json:"exit_code"`
	StartedAt        string                `json:"started_at"`
	CompletedAt      string                `json:"completed_at"`
	DurationMs       uint64                `json:"duration_ms"`
}

// NowEpochMillis returns the current time as Unix epoch milliseconds.
func NowEpochMillis() uint64 {
	return uint64(time.Now().UnixMilli())
}

// WriteCommandOutputFile persists one completed command's output under
// <workspace_path>/.projectmemory/terminal-output/<workspace_id>/, then
// prunes that directory down to the 10 most recent files. Returns the
// written file's path.
func WriteCommandOutputFile(
	request CommandRequest,
	status ResponseStatus,
	outputLines []PersistedOutputLine,
	exitCode *int,
	startedAtMs, completedAtMs uint64,
) (string, error) {
	workspacePath := strings.TrimSpace(request.WorkspacePath)
	if workspacePath == "" {
		return "", fmt.Errorf("workspace_path is empty; cannot persist terminal output")
	}

	workspaceID := strings.TrimSpace(request.WorkspaceID)
	if workspaceID == "" {
		workspaceID = "unknown-workspace"
	}

	outputDir := filepath.Join(workspacePath, ".projectmemory", "terminal-output", workspaceID)
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory %s: %w", outputDir, err)
	}

	safeRequestID := sanitizeFilenameComponent(request.ID)
	filename := fmt.Sprintf("%d-%s.json", completedAtMs, safeRequestID)
	outputPath := filepath.Join(outputDir, filename)

	durationMs := uint64(0)
	if completedAtMs > startedAtMs {
		durationMs = completedAtMs - startedAtMs
	}

	payload := persistedCommandOutput{
		RequestID:        request.ID,
		Command:          request.Command,
		WorkingDirectory: request.WorkingDirectory,
		WorkspaceID:      workspaceID,
		Status:           string(status),
		OutputLines:      outputLines,
		ExitCode:         exitCode,
		StartedAt:        strconv.FormatUint(startedAtMs, 10),
		CompletedAt:      strconv.FormatUint(completedAtMs, 10),
		DurationMs:       durationMs,
	}

	serialized, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to serialize output payload: %w", err)
	}

	if err := os.WriteFile(outputPath, serialized, 0o644); err != nil {
		return "", fmt.Errorf("failed to write output file %s: %w", outputPath, err)
	}

	if err := pruneOldOutputFiles(outputDir, retainedOutputFiles); err != nil {
		return "", err
	}

	return outputPath, nil
}

func pruneOldOutputFiles(outputDir string, keepLatest int) error {
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		return fmt.Errorf("failed to read output directory %s: %w", outputDir, err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !strings.EqualFold(filepath.Ext(entry.Name()), ".json") {
			continue
		}
		files = append(files, filepath.Join(outputDir, entry.Name()))
	}

	sort.Slice(files, func(i, j int) bool {
		ti := extractTimestampFromPath(files[i])
		tj := extractTimestampFromPath(files[j])
		if ti != tj {
			return ti > tj
		}
		return files[i] > files[j]
	})

	if len(files) <= keepLatest {
		return nil
	}

	for _, oldFile := range files[keepLatest:] {
		if err := os.Remove(oldFile); err != nil {
			return fmt.Errorf("failed to remove old output file %s: %w", oldFile, err)
		}
	}
	return nil
}

func extractTimestampFromPath(path string) uint64 {
	name := filepath.Base(path)
	prefix, _, _ := strings.Cut(name, "-")
	value, err := strconv.ParseUint(prefix, 10, 64)
	if err != nil {
		return 0
	}
	return value
}

func sanitizeFilenameComponent(input string) string {
	var b strings.Builder
	for _, ch := range input {
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9', ch == '-', ch == '_':
			b.WriteRune(ch)
		default:
			b.WriteRune('_')
		}
	}
	sanitized := b.String()
	if sanitized == "" {
		return "request"
	}
	return sanitized
}
