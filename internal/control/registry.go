package control

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// ServiceStatus is a service record's lifecycle state.
type ServiceStatus string

const (
	StatusStopped      ServiceStatus = "stopped"
	StatusStarting     ServiceStatus = "starting"
	StatusRunning      ServiceStatus = "running"
	StatusStopping     ServiceStatus = "stopping"
	StatusReconnecting ServiceStatus = "reconnecting"
)

// ServiceRecord is the registry's view of one managed service.
type ServiceRecord struct {
	Name     string        `json:"name"`
	Status   ServiceStatus `json:"status"`
	Backend  *BackendKind  `json:"backend,omitempty"`
	Endpoint *string       `json:"endpoint,omitempty"`
}

// ClientAttachment describes one attached UI client.
type ClientAttachment struct {
	ClientID   string `json:"client_id"`
	PID        int    `json:"pid"`
	WindowID   string `json:"window_id"`
	AttachedAt int64  `json:"attached_at"`
}

// Registry owns every service record and client attachment. A single
// mutex guards the whole registry; no method holds any other lock.
type Registry struct {
	mu         sync.Mutex
	services   map[string]*ServiceRecord
	order      []string
	clients    map[string]*ClientAttachment
	nextClient int
	backend    BackendKind
}

// NewRegistry seeds the registry with the three built-in services.
func NewRegistry(serviceNames ...string) *Registry {
	if len(serviceNames) == 0 {
		serviceNames = []string{"mcp", "dashboard", "interactive-terminal"}
	}
	r := &Registry{
		services:   make(map[string]*ServiceRecord),
		clients:    make(map[string]*ClientAttachment),
		nextClient: 1,
		backend:    BackendNode,
	}
	for _, name := range serviceNames {
		r.services[name] = &ServiceRecord{Name: name, Status: StatusStopped}
		r.order = append(r.order, name)
	}
	return r
}

// ServiceStates returns a snapshot of every service record, in registration order.
func (r *Registry) ServiceStates() []ServiceRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ServiceRecord, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, *r.services[name])
	}
	return out
}

// SetServiceStatus transitions service's status, registering it if unseen.
func (r *Registry) SetServiceStatus(service string, status ServiceStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.services[service]
	if !ok {
		rec = &ServiceRecord{Name: service}
		r.services[service] = rec
		r.order = append(r.order, service)
	}
	rec.Status = status
}

// SetServiceBackend records the discovered backend/endpoint for a service.
func (r *Registry) SetServiceBackend(service string, backend BackendKind, endpoint string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.services[service]
	if !ok {
		rec = &ServiceRecord{Name: service}
		r.services[service] = rec
		r.order = append(r.order, service)
	}
	b := backend
	rec.Backend = &b
	if endpoint != "" {
		e := endpoint
		rec.Endpoint = &e
	}
}

// SetBackend switches the registry's active backend selection.
func (r *Registry) SetBackend(backend BackendKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backend = backend
}

// Backend returns the active backend selection.
func (r *Registry) Backend() BackendKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.backend
}

// ListClients returns every attached client sorted by client id.
func (r *Registry) ListClients() []ClientAttachment {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ClientAttachment, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClientID < out[j].ClientID })
	return out
}

// AttachClient registers a new client attachment and returns its generated id.
func (r *Registry) AttachClient(pid int, windowID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := fmt.Sprintf("client-%d", r.nextClient)
	r.nextClient++
	r.clients[id] = &ClientAttachment{
		ClientID:   id,
		PID:        pid,
		WindowID:   windowID,
		AttachedAt: time.Now().UnixMilli(),
	}
	return id
}

// DetachClient removes a client attachment. Returns false if unknown.
func (r *Registry) DetachClient(clientID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[clientID]; !ok {
		return false
	}
	delete(r.clients, clientID)
	return true
}

// DetachAll removes every client attachment, used on supervisor exit.
func (r *Registry) DetachAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients = make(map[string]*ClientAttachment)
}
