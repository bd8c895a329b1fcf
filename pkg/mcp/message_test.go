package mcp

import (
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

func makeToolCallRequest(t *testing.T, params string) *Message {
	t.Helper()
	id, err := jsonrpc.MakeID(float64(1))
	if err != nil {
		t.Fatalf("MakeID failed: %v", err)
	}
	req := &jsonrpc.Request{
		ID:     id,
		Method: "tools/call",
		Params: json.RawMessage(params),
	}
	return &Message{Decoded: req}
}

func TestIsToolCall(t *testing.T) {
	m := makeToolCallRequest(t, `{"name":"fleet_ssh_exec","arguments":{}}`)
	if !m.IsToolCall() {
		t.Fatalf("IsToolCall() = false for a tools/call request")
	}

	id, err := jsonrpc.MakeID(float64(2))
	if err != nil {
		t.Fatalf("MakeID failed: %v", err)
	}
	other := &Message{Decoded: &jsonrpc.Request{ID: id, Method: "initialize"}}
	if other.IsToolCall() {
		t.Fatalf("IsToolCall() = true for an initialize request")
	}
}

func TestParseToolCallHostFoldedFromArguments(t *testing.T) {
	m := makeToolCallRequest(t, `{"name":"fleet_ssh_exec","arguments":{"host":"prod-db-1","cmd":"uptime"}}`)

	p, err := m.ParseToolCall()
	if err != nil {
		t.Fatalf("ParseToolCall failed: %v", err)
	}
	if p.Name != "fleet_ssh_exec" {
		t.Errorf("Name = %q, want fleet_ssh_exec", p.Name)
	}
	if got := p.Host(); got != "prod-db-1" {
		t.Errorf("Host() = %q, want prod-db-1", got)
	}
}

func TestHostDefaultsToLocalWhenAbsent(t *testing.T) {
	m := makeToolCallRequest(t, `{"name":"fleet_ssh_exec","arguments":{"cmd":"uptime"}}`)

	p, err := m.ParseToolCall()
	if err != nil {
		t.Fatalf("ParseToolCall failed: %v", err)
	}
	if got := p.Host(); got != "local" {
		t.Errorf("Host() with no arguments.host = %q, want local", got)
	}
}

func TestHostDefaultsToLocalWhenArgumentsHostIsNotAString(t *testing.T) {
	m := makeToolCallRequest(t, `{"name":"fleet_ssh_exec","arguments":{"host":123}}`)

	p, err := m.ParseToolCall()
	if err != nil {
		t.Fatalf("ParseToolCall failed: %v", err)
	}
	if got := p.Host(); got != "local" {
		t.Errorf("Host() with non-string arguments.host = %q, want local", got)
	}
}

func TestAgentOrDefaultUsesUnknownWhenAbsent(t *testing.T) {
	m := makeToolCallRequest(t, `{"name":"fleet_ssh_exec","arguments":{}}`)

	p, err := m.ParseToolCall()
	if err != nil {
		t.Fatalf("ParseToolCall failed: %v", err)
	}
	if got := p.AgentOrDefault(); got != "unknown" {
		t.Errorf("AgentOrDefault() with no agent field = %q, want unknown", got)
	}
}

func TestAgentOrDefaultPreservesExplicitAgent(t *testing.T) {
	m := makeToolCallRequest(t, `{"name":"fleet_ssh_exec","arguments":{},"agent":"claude-agent-7"}`)

	p, err := m.ParseToolCall()
	if err != nil {
		t.Fatalf("ParseToolCall failed: %v", err)
	}
	if got := p.AgentOrDefault(); got != "claude-agent-7" {
		t.Errorf("AgentOrDefault() = %q, want claude-agent-7", got)
	}
}

func TestParseToolCallExtractsConfirmationToken(t *testing.T) {
	m := makeToolCallRequest(t, `{"name":"fleet_ssh_exec","arguments":{"host":"h"},"confirmation_token":"tok-abc123"}`)

	p, err := m.ParseToolCall()
	if err != nil {
		t.Fatalf("ParseToolCall failed: %v", err)
	}
	if p.ConfirmationToken != "tok-abc123" {
		t.Errorf("ConfirmationToken = %q, want tok-abc123", p.ConfirmationToken)
	}
}

func TestParseToolCallConfirmationTokenEmptyWhenAbsent(t *testing.T) {
	m := makeToolCallRequest(t, `{"name":"fleet_ssh_exec","arguments":{"host":"h"}}`)

	p, err := m.ParseToolCall()
	if err != nil {
		t.Fatalf("ParseToolCall failed: %v", err)
	}
	if p.ConfirmationToken != "" {
		t.Errorf("ConfirmationToken = %q, want empty", p.ConfirmationToken)
	}
}

func TestParseToolCallErrorsOnMissingParams(t *testing.T) {
	id, err := jsonrpc.MakeID(float64(3))
	if err != nil {
		t.Fatalf("MakeID failed: %v", err)
	}
	m := &Message{Decoded: &jsonrpc.Request{ID: id, Method: "tools/call"}}

	if _, err := m.ParseToolCall(); err != errMissingParams {
		t.Fatalf("ParseToolCall error = %v, want errMissingParams", err)
	}
}

func TestParseToolCallErrorsOnNonRequest(t *testing.T) {
	id, err := jsonrpc.MakeID(float64(4))
	if err != nil {
		t.Fatalf("MakeID failed: %v", err)
	}
	m := &Message{Decoded: &jsonrpc.Response{ID: id, Result: json.RawMessage(`{}`)}}

	if _, err := m.ParseToolCall(); err != errMissingParams {
		t.Fatalf("ParseToolCall error on a response message = %v, want errMissingParams", err)
	}
}

func TestRawIDExtractsIDFromRawBytes(t *testing.T) {
	m := &Message{Raw: []byte(`{"jsonrpc":"2.0","id":42,"method":"tools/call"}`)}
	raw := m.RawID()
	if raw == nil {
		t.Fatalf("RawID() = nil")
	}
	if string(raw) != "42" {
		t.Errorf("RawID() = %s, want 42", raw)
	}
}

func TestRawIDNilWhenNoIDPresent(t *testing.T) {
	m := &Message{Raw: []byte(`{"jsonrpc":"2.0","method":"initialize"}`)}
	if raw := m.RawID(); raw != nil {
		t.Errorf("RawID() = %s, want nil", raw)
	}
}
