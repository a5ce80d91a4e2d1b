// Package logging builds the process-wide structured logger shared by the
// supervisor, the PTY host, and the terminal host.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// Options configures Init.
type Options struct {
	// Level is one of "debug", "info", "warn", "error". Empty means "info".
	Level string
	// LogFile, if non-empty, is opened for append and written to in
	// addition to stderr.
	LogFile string
	// JSON selects the JSON handler instead of the text handler. Defaults
	// to false (text), matching local interactive use; the supervisor sets
	// it from its --json-logs flag.
	JSON bool
}

// Init builds a *slog.Logger per Options and installs it as the default
// logger via slog.SetDefault. It returns the logger and an io.Closer for
// the log file, if one was opened.
func Init(opts Options) (*slog.Logger, io.Closer, error) {
	level := parseLevel(opts.Level)

	writers := []io.Writer{os.Stderr}
	var closer io.Closer

	if opts.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(opts.LogFile), 0755); err != nil {
			return nil, nil, err
		}
		f, err := os.OpenFile(opts.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, err
		}
		writers = append(writers, f)
		closer = f
	}

	var w io.Writer
	if len(writers) == 1 {
		w = writers[0]
	} else {
		w = io.MultiWriter(writers...)
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(w, handlerOpts)
	} else {
		handler = slog.NewTextHandler(w, handlerOpts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, closer, nil
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// DefaultLogPath mirrors the supervisor's default data directory layout.
func DefaultLogPath(component string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join("/tmp", "pm-supervisor", component+".log")
	}
	return filepath.Join(home, ".pm-supervisor", component+".log")
}

// secretFields are matched case-insensitively against log content that may
// carry credentials.
var secretFields = []string{"mcp_secret", "token", "password", "secret", "key"}

// RedactSecrets replaces quoted values following a known secret field name
// with "[REDACTED]" so credentials never reach structured log output.
// Matching looks for "<field><sep>\"<value>\"" where sep is '=' or ':',
// case-insensitive on the field name.
func RedactSecrets(input string) string {
	lower := strings.ToLower(input)
	needsScan := false
	for _, f := range secretFields {
		if strings.Contains(lower, f) {
			needsScan = true
			break
		}
	}
	if !needsScan {
		return input
	}

	var out strings.Builder
	out.Grow(len(input))
	i := 0
	changed := false

main:
	for i < len(input) {
		for _, field := range secretFields {
			end := i + len(field)
			if end > len(lower) || lower[i:end] != field {
				continue
			}

			j := end
			for j < len(input) && (input[j] == ' ' || input[j] == '\t') {
				j++
			}
			if j >= len(input) || (input[j] != '=' && input[j] != ':') {
				continue
			}
			j++
			for j < len(input) && (input[j] == ' ' || input[j] == '\t') {
				j++
			}
			if j >= len(input) || input[j] != '"' {
				continue
			}
			quoteOpen := j
			j++
			for j < len(input) && input[j] != '"' {
				j++
			}
			if j >= len(input) {
				continue
			}

			out.WriteString(input[i : quoteOpen+1])
			out.WriteString("[REDACTED]")
			out.WriteByte('"')
			changed = true
			i = j + 1
			continue main
		}

		_, size := utf8.DecodeRuneInString(input[i:])
		out.WriteString(input[i : i+size])
		i += size
	}

	if !changed {
		return input
	}
	return out.String()
}
