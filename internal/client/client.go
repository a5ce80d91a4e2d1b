// Package client implements a thin dial-per-call client for the
// supervisor's NDJSON control plane, used by supctl and any other local
// tool that needs to drive the supervisor without linking its internals.
package client

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/ds-codi/pm-supervisor/internal/control"
)

// Client dials the supervisor's control socket fresh for every call, mirroring
// the one-shot request/response style of the supervisor's own NDJSON wire
// protocol: one line out, one line in, connection closed.
type Client struct {
	socketPath string
	tcpAddr    string
	timeout    time.Duration
}

// New builds a Client. socketPath is tried first; if dialing it fails
// (or it is empty), tcpAddr is used as a fallback, matching the
// supervisor's own dual Unix-socket/TCP listener.
func New(socketPath, tcpAddr string) *Client {
	return &Client{socketPath: socketPath, tcpAddr: tcpAddr, timeout: 5 * time.Second}
}

func (c *Client) dial() (net.Conn, error) {
	if c.socketPath != "" {
		if conn, err := net.DialTimeout("unix", c.socketPath, c.timeout); err == nil {
			return conn, nil
		}
	}
	if c.tcpAddr != "" {
		return net.DialTimeout("tcp", c.tcpAddr, c.timeout)
	}
	return nil, fmt.Errorf("no reachable control endpoint (socket=%q tcp=%q)", c.socketPath, c.tcpAddr)
}

func (c *Client) send(req control.ControlRequest) (control.ControlResponse, error) {
	conn, err := c.dial()
	if err != nil {
		return control.ControlResponse{}, fmt.Errorf("connect to supervisor: %w", err)
	}
	defer conn.Close()

	line, err := json.Marshal(req)
	if err != nil {
		return control.ControlResponse{}, fmt.Errorf("encode request: %w", err)
	}
	if _, err := conn.Write(append(line, '\n')); err != nil {
		return control.ControlResponse{}, fmt.Errorf("send request: %w", err)
	}

	reader := bufio.NewReader(conn)
	respLine, err := reader.ReadString('\n')
	if err != nil {
		return control.ControlResponse{}, fmt.Errorf("read response: %w", err)
	}

	var resp control.ControlResponse
	if err := json.Unmarshal([]byte(respLine), &resp); err != nil {
		return control.ControlResponse{}, fmt.Errorf("decode response: %w", err)
	}
	if !resp.OK {
		return resp, fmt.Errorf("supervisor error: %s", resp.Error)
	}
	return resp, nil
}

// Status fetches the current service registry snapshot.
func (c *Client) Status() ([]control.ServiceRecord, error) {
	resp, err := c.send(control.ControlRequest{Type: control.ReqStatus})
	if err != nil {
		return nil, err
	}
	return decodeRecords(resp.Data)
}

// StartService requests the named service be started.
func (c *Client) StartService(service string) error {
	_, err := c.send(control.ControlRequest{Type: control.ReqStart, Service: service})
	return err
}

// StopService requests the named service be stopped.
func (c *Client) StopService(service string) error {
	_, err := c.send(control.ControlRequest{Type: control.ReqStop, Service: service})
	return err
}

// RestartService requests the named service be restarted.
func (c *Client) RestartService(service string) error {
	_, err := c.send(control.ControlRequest{Type: control.ReqRestart, Service: service})
	return err
}

// SetBackend switches the active backend selection.
func (c *Client) SetBackend(backend control.BackendKind) error {
	_, err := c.send(control.ControlRequest{Type: control.ReqSetBackend, Backend: backend})
	return err
}

// ListClients returns every attached client known to the supervisor.
func (c *Client) ListClients() ([]control.ClientAttachment, error) {
	resp, err := c.send(control.ControlRequest{Type: control.ReqListClients})
	if err != nil {
		return nil, err
	}
	return decodeAttachments(resp.Data)
}

// AttachClient registers the calling process as an attached client.
func (c *Client) AttachClient(pid int, windowID string) (string, error) {
	resp, err := c.send(control.ControlRequest{Type: control.ReqAttachClient, PID: pid, WindowID: windowID})
	if err != nil {
		return "", err
	}
	m, _ := resp.Data.(map[string]any)
	clientID, _ := m["client_id"].(string)
	return clientID, nil
}

// DetachClient removes a previously attached client.
func (c *Client) DetachClient(clientID string) error {
	_, err := c.send(control.ControlRequest{Type: control.ReqDetachClient, ClientID: clientID})
	return err
}

func decodeRecords(data any) ([]control.ServiceRecord, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var out []control.ServiceRecord
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeAttachments(data any) ([]control.ClientAttachment, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var out []control.ClientAttachment
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
