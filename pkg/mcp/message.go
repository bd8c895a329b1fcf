// Package mcp provides MCP message types and JSON-RPC codec utilities
// for the sentinel core's stdio transport.
package mcp

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

// Direction indicates the flow direction of a message through the interceptor.
type Direction int

const (
	// ClientToServer indicates a message flowing from the agent toward the
	// downstream tool server.
	ClientToServer Direction = iota
	// ServerToClient indicates a message flowing from the downstream tool
	// server back toward the agent.
	ServerToClient
)

// String returns the string representation of the Direction.
func (d Direction) String() string {
	switch d {
	case ClientToServer:
		return "client->server"
	case ServerToClient:
		return "server->client"
	default:
		return "unknown"
	}
}

// Message wraps a decoded JSON-RPC message with interceptor metadata.
// It stores both the raw bytes (for efficient passthrough) and the decoded
// message (for policy inspection).
type Message struct {
	// Raw contains the original bytes of the message.
	// Used for passthrough when no modification is needed.
	Raw []byte

	// Direction indicates whether this message is flowing toward the
	// downstream tool server or back toward the agent.
	Direction Direction

	// Decoded contains the parsed JSON-RPC message.
	// May be nil if parsing failed but passthrough is still desired.
	// The concrete type is either *jsonrpc.Request or *jsonrpc.Response.
	Decoded jsonrpc.Message

	// Timestamp records when the message was received by the interceptor.
	Timestamp time.Time

	// ParsedParams contains the parsed params from a JSON-RPC request.
	// Set by ParseParams() for reuse across callers.
	// Nil if not a request or parsing fails.
	ParsedParams map[string]interface{}
}

// IsRequest returns true if the message is a JSON-RPC request.
func (m *Message) IsRequest() bool {
	if m.Decoded == nil {
		return false
	}
	_, ok := m.Decoded.(*jsonrpc.Request)
	return ok
}

// IsResponse returns true if the message is a JSON-RPC response.
func (m *Message) IsResponse() bool {
	if m.Decoded == nil {
		return false
	}
	_, ok := m.Decoded.(*jsonrpc.Response)
	return ok
}

// Method returns the method name if this is a request, empty string otherwise.
func (m *Message) Method() string {
	if m.Decoded == nil {
		return ""
	}
	req, ok := m.Decoded.(*jsonrpc.Request)
	if !ok {
		return ""
	}
	return req.Method
}

// IsToolCall returns true if this is a tools/call request.
// This is the primary method for identifying tool invocations that need
// policy evaluation; every other method passes through uncorrelated.
func (m *Message) IsToolCall() bool {
	return m.Method() == "tools/call"
}

// Request returns the underlying Request if this is a request message.
// Returns nil if this is not a request.
func (m *Message) Request() *jsonrpc.Request {
	if m.Decoded == nil {
		return nil
	}
	req, _ := m.Decoded.(*jsonrpc.Request)
	return req
}

// Response returns the underlying Response if this is a response message.
// Returns nil if this is not a response.
func (m *Message) Response() *jsonrpc.Response {
	if m.Decoded == nil {
		return nil
	}
	resp, _ := m.Decoded.(*jsonrpc.Response)
	return resp
}

// ParseParams parses the request params and stores in ParsedParams.
// Safe to call multiple times (no-op if already parsed).
// Returns the parsed params or nil if not a request or parsing fails.
func (m *Message) ParseParams() map[string]interface{} {
	if m.ParsedParams != nil {
		return m.ParsedParams
	}

	req := m.Request()
	if req == nil || req.Params == nil {
		return nil
	}

	var params map[string]interface{}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil
	}

	m.ParsedParams = params
	return params
}

// errMissingParams is returned by ParseToolCall when the request carries no params.
var errMissingParams = errors.New("mcp: missing request params")

// ToolCallParams is the params shape of a tools/call request:
// {name, arguments, agent?}. host is folded into arguments (arguments.host),
// not carried as a top-level field.
type ToolCallParams struct {
	Name              string                 `json:"name"`
	Arguments         map[string]interface{} `json:"arguments"`
	Agent             string                 `json:"agent"`
	ConfirmationToken string                 `json:"confirmation_token"`
}

// ParseToolCall parses this message's params as a tools/call invocation.
// Returns an error if this is not a request or the params don't decode.
func (m *Message) ParseToolCall() (ToolCallParams, error) {
	req := m.Request()
	if req == nil || req.Params == nil {
		return ToolCallParams{}, errMissingParams
	}
	var p ToolCallParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return ToolCallParams{}, err
	}
	return p, nil
}

// Host extracts the host field from arguments.host, defaulting to "local"
// when absent. Retained verbatim from the distilled spec: every request
// missing arguments.host is folded into the same "local" bucket for
// rate-limit, circuit-breaker, and anomaly-baseline keying, which is
// arguably unsafe in a deployment serving more than one tenant behind a
// shared sentinel (two tenants' unlabeled traffic shares one circuit and
// one set of buckets). Not changed silently — see SPEC_FULL.md's Open
// Questions.
func (p ToolCallParams) Host() string {
	if h, ok := p.Arguments["host"].(string); ok && h != "" {
		return h
	}
	return "local"
}

// AgentOrDefault returns the agent field, defaulting to "unknown" when
// absent, with the same multi-tenant caveat as Host: unlabeled callers all
// collapse onto the one "unknown" agent identity.
func (p ToolCallParams) AgentOrDefault() string {
	if p.Agent != "" {
		return p.Agent
	}
	return "unknown"
}

// RawID extracts the request ID from the raw message bytes as json.RawMessage.
// This is needed because the SDK's jsonrpc.ID type doesn't marshal correctly
// through interface{}, so we extract the ID directly from the raw JSON.
// Returns nil if no ID is found or if the message is not a request.
func (m *Message) RawID() json.RawMessage {
	if m.Raw == nil {
		return nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(m.Raw, &raw); err != nil {
		return nil
	}

	return raw["id"]
}
