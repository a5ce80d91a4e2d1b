package control

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"strings"
)

const (
	expectedServerName      = "project-memory-mcp"
	expectedProtocolVersion = "1"
)

// HandshakeError is returned by ValidateHandshake when a remote endpoint
// fails to prove itself a trusted instance.
type HandshakeError struct {
	Kind               string
	WrongServerName    string
	GotProtocolVersion string
	MissingCaps        []string
}

func (e *HandshakeError) Error() string {
	switch e.Kind {
	case "wrong_server_name":
		return fmt.Sprintf("handshake failed: expected server_name %q, got %q", expectedServerName, e.WrongServerName)
	case "incompatible_protocol_version":
		return fmt.Sprintf("handshake failed: incompatible protocol_version %q", e.GotProtocolVersion)
	case "missing_capabilities":
		return fmt.Sprintf("handshake failed: missing capabilities %v", e.MissingCaps)
	default:
		return "handshake failed"
	}
}

// ValidateHandshake checks a WhoAmIResponse against the expected server
// identity and a set of capabilities the caller requires. WrongServerName
// is checked before protocol version, which is checked before capabilities,
// so a response that fails multiple checks always reports the server-name
// mismatch first.
func ValidateHandshake(resp WhoAmIResponse, requiredCapabilities []string) (WhoAmIResponse, error) {
	if resp.ServerName != expectedServerName {
		return WhoAmIResponse{}, &HandshakeError{Kind: "wrong_server_name", WrongServerName: resp.ServerName}
	}
	if resp.ProtocolVersion != expectedProtocolVersion {
		return WhoAmIResponse{}, &HandshakeError{Kind: "incompatible_protocol_version", GotProtocolVersion: resp.ProtocolVersion}
	}
	if missing := missingCapabilities(resp.Capabilities, requiredCapabilities); len(missing) > 0 {
		return WhoAmIResponse{}, &HandshakeError{Kind: "missing_capabilities", MissingCaps: missing}
	}
	return resp, nil
}

func missingCapabilities(have, required []string) []string {
	haveSet := make(map[string]struct{}, len(have))
	for _, c := range have {
		haveSet[c] = struct{}{}
	}
	var missing []string
	for _, c := range required {
		if _, ok := haveSet[c]; !ok {
			missing = append(missing, c)
		}
	}
	return missing
}

// PerformHandshake sends a WhoAmIRequest over conn, reads exactly one
// response line, and validates it. Callers use it before routing any real
// command to a newly discovered MCP endpoint.
func PerformHandshake(conn net.Conn, clientVersion string, requiredCapabilities []string, requestID string) (WhoAmIResponse, error) {
	req := WhoAmIRequest{
		RequestID:     requestID,
		Client:        "pm-supervisor",
		ClientVersion: clientVersion,
	}
	line, err := EncodeMessage(req)
	if err != nil {
		return WhoAmIResponse{}, err
	}
	if _, err := conn.Write([]byte(line)); err != nil {
		return WhoAmIResponse{}, fmt.Errorf("handshake write: %w", err)
	}

	reader := bufio.NewReader(conn)
	raw, err := reader.ReadString('\n')
	if err != nil {
		return WhoAmIResponse{}, fmt.Errorf("handshake read: %w", err)
	}

	var resp WhoAmIResponse
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &resp); err != nil {
		return WhoAmIResponse{}, fmt.Errorf("handshake decode: %w", err)
	}
	return ValidateHandshake(resp, requiredCapabilities)
}
