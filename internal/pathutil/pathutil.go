// Package pathutil provides PATH environment utilities for spawned service
// processes. GUI-launched form apps and the node service often start with a
// minimal inherited PATH that doesn't include common locations like
// /opt/homebrew/bin; this package ensures the supervisor's own search path
// is available to every child it spawns.
package pathutil

import (
	"os"
	"strings"
)

// mergePaths combines two PATH strings, preserving order and removing duplicates.
// Primary paths come first, then secondary paths that aren't already present.
func mergePaths(primary, secondary string) string {
	seen := make(map[string]bool)
	var merged []string

	for _, pathList := range []string{primary, secondary} {
		for _, part := range strings.Split(pathList, ":") {
			if part != "" && !seen[part] {
				seen[part] = true
				merged = append(merged, part)
			}
		}
	}
	return strings.Join(merged, ":")
}

// ExtraSearchPaths covers common install locations missing from a minimal
// inherited PATH on macOS and Linux.
var ExtraSearchPaths = []string{
	"/opt/homebrew/bin",
	"/usr/local/bin",
	"/usr/local/go/bin",
}

// EnvWithMergedPath returns a copy of env (in os/exec "KEY=VALUE" form) with
// its PATH entry widened by ExtraSearchPaths. If env is nil, the current
// process environment is used as the base.
func EnvWithMergedPath(env []string) []string {
	if env == nil {
		env = os.Environ()
	}

	out := make([]string, 0, len(env))
	found := false
	extra := strings.Join(ExtraSearchPaths, ":")

	for _, kv := range env {
		if strings.HasPrefix(kv, "PATH=") {
			found = true
			current := strings.TrimPrefix(kv, "PATH=")
			out = append(out, "PATH="+mergePaths(current, extra))
			continue
		}
		out = append(out, kv)
	}

	if !found {
		out = append(out, "PATH="+extra)
	}
	return out
}
