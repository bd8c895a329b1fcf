package port

import (
	"context"
	"io"
)

// ProxyService is the inbound port a transport adapter (stdio, others later)
// drives: it owns the bidirectional relay loop between the caller and the
// downstream tool server, with every tool call sequenced through the policy
// engine first.
type ProxyService interface {
	// Start begins relaying between the caller and the downstream server.
	// Blocks until ctx is cancelled or an unrecoverable error occurs.
	Start(ctx context.Context) error

	// Close gracefully shuts down the relay and cleans up resources.
	Close() error
}

// MCPClient is the outbound port for connecting to the downstream tool
// server the interceptor forwards allowed calls to. Adapters implement this
// to support different transports (stdio subprocess, others later).
type MCPClient interface {
	// Start launches the downstream server connection, returning its stdin
	// (for sending) and stdout (for receiving).
	Start(ctx context.Context) (stdin io.WriteCloser, stdout io.ReadCloser, err error)

	// Wait blocks until the downstream server process/connection terminates.
	Wait() error

	// Close terminates the downstream connection and cleans up resources.
	Close() error
}
