// Package stdio provides the stdio transport adapter for the sentinel core.
package stdio

import (
	"context"
	"os"

	"github.com/sentinelcore/sentinelcore/internal/port"
	"github.com/sentinelcore/sentinelcore/internal/service"
)

// StdioTransport is the inbound adapter that connects the relay to
// stdin/stdout. It implements port.ProxyService.
type StdioTransport struct {
	relay *service.RelayService
}

// NewStdioTransport creates a stdio transport adapter wrapping the given relay.
func NewStdioTransport(relay *service.RelayService) *StdioTransport {
	return &StdioTransport{relay: relay}
}

// Start begins relaying between stdin/stdout and the downstream server.
// It blocks until the context is cancelled or an error occurs.
func (t *StdioTransport) Start(ctx context.Context) error {
	return t.relay.Run(ctx, os.Stdin, os.Stdout)
}

// Close gracefully shuts down the transport. For stdio, there are no
// resources of its own to clean up; the relay owns the downstream client.
func (t *StdioTransport) Close() error {
	return nil
}

// Compile-time check that StdioTransport implements ProxyService.
var _ port.ProxyService = (*StdioTransport)(nil)
