package mcp

import (
	"encoding/json"

	"github.com/google/jsonschema-go/jsonschema"
)

// Method is a protocol method identifier used in JSON-RPC messages.
type Method string

// Built-in method names. Every other method name is routed to the tool of the
// same name.
const (
	NegotiateMethod Method = "negotiate"
	ListToolsMethod Method = "listTools"
	CancelMethod    Method = "cancel"
	PingMethod      Method = "ping"
)

// IsBuiltin reports whether name is handled by the dispatcher itself.
func IsBuiltin(name string) bool {
	switch Method(name) {
	case NegotiateMethod, ListToolsMethod, CancelMethod, PingMethod:
		return true
	}
	return false
}

// LatestProtocolVersion is the protocol version offered when the client does
// not ask for one.
const LatestProtocolVersion = "1"

// Capability names the server may offer during negotiation.
const (
	CapabilityTools        = "tools"
	CapabilityCancellation = "cancellation"
	CapabilityTimeouts     = "timeouts"
)

// ImplementationInfo describes the implementation name and version.
type ImplementationInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Title   string `json:"title,omitzero"`
}

// NegotiateRequest opens a session. Capabilities lists the features the
// client can use; Required lists the ones it cannot work without.
type NegotiateRequest struct {
	ProtocolVersion string             `json:"protocolVersion,omitzero"`
	ClientInfo      ImplementationInfo `json:"clientInfo"`
	Capabilities    []string           `json:"capabilities,omitempty"`
	Required        []string           `json:"required,omitempty"`
}

// NegotiateResult returns the negotiated protocol version and capability set.
type NegotiateResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	ServerInfo      ImplementationInfo `json:"serverInfo"`
	Capabilities    []string           `json:"capabilities"`
	Instructions    string             `json:"instructions,omitzero"`
}

// ListToolsRequest requests a page of the registered tools.
type ListToolsRequest struct {
	Cursor string `json:"cursor,omitzero"`
}

// ListToolsResult returns a page of tool descriptors.
type ListToolsResult struct {
	Tools      []Tool `json:"tools"`
	NextCursor string `json:"nextCursor,omitzero"`
}

// Tool describes a registered tool.
type Tool struct {
	Name         string             `json:"name"`
	Description  string             `json:"description,omitzero"`
	InputSchema  *jsonschema.Schema `json:"inputSchema,omitempty"`
	OutputSchema *jsonschema.Schema `json:"outputSchema,omitempty"`
}

// CancelParams names the request to cancel. RequestID is accepted as an
// alias of ID for clients that follow the MCP notification shape.
type CancelParams struct {
	ID        json.RawMessage `json:"id,omitempty"`
	RequestID json.RawMessage `json:"requestId,omitempty"`
	Reason    string          `json:"reason,omitzero"`
}

// Target returns whichever of ID or RequestID was supplied.
func (p CancelParams) Target() json.RawMessage {
	if len(p.ID) > 0 {
		return p.ID
	}
	return p.RequestID
}

// EmptyResult is returned by methods with no payload.
type EmptyResult struct{}
