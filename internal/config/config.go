// Package config loads the supervisor's services topology and the
// process-wide path/data-root configuration.
package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// RestartPolicy controls how the orchestrator reacts to a service runner
// exiting.
type RestartPolicy string

const (
	RestartAlways    RestartPolicy = "always"
	RestartOnFailure RestartPolicy = "on_failure"
	RestartNever     RestartPolicy = "never"
)

// ServiceKind identifies which concrete ServiceRunner implementation a
// topology entry binds to.
type ServiceKind string

const (
	KindNode     ServiceKind = "node"
	KindDashboard ServiceKind = "dashboard"
	KindTerminal ServiceKind = "terminal"
	KindFormApp  ServiceKind = "form_app"
)

// ServiceEntry is one row of the services topology file.
type ServiceEntry struct {
	Name          string            `yaml:"name"`
	Kind          ServiceKind       `yaml:"kind"`
	Command       string            `yaml:"command"`
	Args          []string          `yaml:"args"`
	WorkingDir    string            `yaml:"working_dir"`
	Env           map[string]string `yaml:"env"`
	HealthURL     string            `yaml:"health_url"`
	RestartPolicy RestartPolicy     `yaml:"restart_policy"`
	TimeoutSeconds uint64           `yaml:"timeout_seconds"`
	Port          int               `yaml:"port"`
}

// Topology is the parsed services.yaml document.
type Topology struct {
	Services []ServiceEntry `yaml:"services"`
}

// defaultTopology is used whenever no services file is present, mirroring
// the three built-in services spec.md assumes exist.
func defaultTopology() Topology {
	return Topology{
		Services: []ServiceEntry{
			{Name: "mcp", Kind: KindNode, RestartPolicy: RestartAlways},
			{Name: "dashboard", Kind: KindDashboard, RestartPolicy: RestartAlways},
			{Name: "interactive-terminal", Kind: KindTerminal, RestartPolicy: RestartAlways, Port: 9103},
		},
	}
}

// ServicesConfigPath resolves the services topology file path.
// Priority: PM_SERVICES_CONFIG env var > <config dir>/supervisor.services.yaml.
func ServicesConfigPath() string {
	if p := os.Getenv("PM_SERVICES_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(ConfigDir(), "supervisor.services.yaml")
}

// LoadTopology reads and parses the services topology file. A missing file
// is not an error: it yields the built-in default topology.
func LoadTopology(path string) (Topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return defaultTopology(), nil
		}
		return Topology{}, err
	}

	var t Topology
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Topology{}, err
	}
	if len(t.Services) == 0 {
		return defaultTopology(), nil
	}
	for i := range t.Services {
		if t.Services[i].RestartPolicy == "" {
			t.Services[i].RestartPolicy = RestartAlways
		}
		if t.Services[i].Kind == KindTerminal && t.Services[i].Port == 0 {
			t.Services[i].Port = 9103
		}
	}
	return t, nil
}

// ConfigDir returns the base configuration directory.
// Priority: PM_CONFIG_DIR env var > $HOME/.pm-supervisor.
func ConfigDir() string {
	if d := os.Getenv("PM_CONFIG_DIR"); d != "" {
		return d
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "/tmp/.pm-supervisor"
	}
	return filepath.Join(home, ".pm-supervisor")
}

// DataRoot returns the base directory for supervisor runtime data: the
// telemetry database, the control socket, and workspace subdirectories.
// Priority: MBS_DATA_ROOT env var > ancestor walk for data/workspace-registry.json
// > ./data > ../data.
func DataRoot() string {
	if d := os.Getenv("MBS_DATA_ROOT"); d != "" {
		return d
	}

	if dir, ok := findAncestorDataRoot(); ok {
		return dir
	}

	if _, err := os.Stat("data"); err == nil {
		return "data"
	}
	return filepath.Join("..", "data")
}

func findAncestorDataRoot() (string, bool) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", false
	}
	dir := cwd
	for {
		candidate := filepath.Join(dir, "data", "workspace-registry.json")
		if _, err := os.Stat(candidate); err == nil {
			return filepath.Join(dir, "data"), true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// TelemetryDBPath returns the SQLite telemetry database path.
// Priority: PM_TELEMETRY_DB env var > <data root>/supervisor/telemetry.db.
func TelemetryDBPath() string {
	if p := os.Getenv("PM_TELEMETRY_DB"); p != "" {
		return p
	}
	return filepath.Join(DataRoot(), "supervisor", "telemetry.db")
}

// SocketPath returns the control-plane Unix domain socket path.
// Priority: PM_SOCKET_PATH env var > <data root>/supervisor/control.sock.
func SocketPath() string {
	if p := os.Getenv("PM_SOCKET_PATH"); p != "" {
		return p
	}
	return filepath.Join(DataRoot(), "supervisor", "control.sock")
}

// TCPFallbackAddr returns the loopback TCP address the control server binds
// alongside the Unix domain socket.
// Priority: PM_TCP_ADDR env var > 127.0.0.1:8781.
func TCPFallbackAddr() string {
	if a := os.Getenv("PM_TCP_ADDR"); a != "" {
		return a
	}
	return "127.0.0.1:8781"
}
