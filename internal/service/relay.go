// Package service wires the interceptor to a concrete transport, running the
// bidirectional relay loop between the caller and the downstream tool server.
package service

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/sentinelcore/sentinelcore/internal/domain/interceptor"
	"github.com/sentinelcore/sentinelcore/internal/port"
)

// RelayService orchestrates bidirectional message relaying between the
// caller and the downstream tool server, sequencing every tool call through
// the interceptor first.
type RelayService struct {
	client      port.MCPClient
	interceptor *interceptor.Interceptor
	logger      *slog.Logger
}

// NewRelayService creates a relay wired to client and ic.
func NewRelayService(client port.MCPClient, ic *interceptor.Interceptor, logger *slog.Logger) *RelayService {
	return &RelayService{client: client, interceptor: ic, logger: logger}
}

// Run starts the bidirectional relay between clientIn/clientOut and the
// downstream server's stdio pipes. It blocks until ctx is cancelled or an
// error occurs.
func (r *RelayService) Run(ctx context.Context, clientIn io.Reader, clientOut io.Writer) error {
	serverIn, serverOut, err := r.client.Start(ctx)
	if err != nil {
		return fmt.Errorf("failed to start downstream server: %w", err)
	}
	defer func() { _ = r.client.Close() }()

	var writeMu sync.Mutex
	writeToCaller := func(raw []byte) {
		writeMu.Lock()
		defer writeMu.Unlock()
		_, _ = clientOut.Write(raw)
		_, _ = clientOut.Write([]byte("\n"))
	}
	r.interceptor.ReplyToCaller = writeToCaller

	parentCtx := ctx
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	// relayDownstream's read does not observe ctx, so cancellation closes the
	// client to unblock it.
	stopWatch := make(chan struct{})
	defer close(stopWatch)
	go func() {
		select {
		case <-parentCtx.Done():
			_ = r.client.Close()
		case <-stopWatch:
		}
	}()

	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	// Goroutine 1: caller -> interceptor -> downstream server.
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() { _ = serverIn.Close() }() // signal EOF to the server when the caller disconnects
		if err := r.relayInbound(ctx, clientIn, serverIn, writeToCaller); err != nil {
			if !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
				errCh <- fmt.Errorf("caller->server: %w", err)
			}
		}
		r.logger.Debug("caller->server relay completed")
	}()

	// Goroutine 2: downstream server -> interceptor -> caller.
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := r.relayDownstream(ctx, serverOut, writeToCaller); err != nil {
			if !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
				errCh <- fmt.Errorf("server->caller: %w", err)
			}
		}
		r.logger.Debug("server->caller relay completed")
		cancel()
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case err := <-errCh:
		cancel()
		<-done
		r.interceptor.HandleDownstreamExit(parentCtx)
		return err
	}

	r.interceptor.HandleDownstreamExit(parentCtx)

	if err := r.client.Wait(); err != nil && parentCtx.Err() == nil {
		r.logger.Debug("downstream server exited", "error", err)
	}

	return parentCtx.Err()
}

func (r *RelayService) relayInbound(ctx context.Context, src io.Reader, serverIn io.Writer, writeToCaller func([]byte)) error {
	scanner := bufio.NewScanner(src)
	buf := make([]byte, 0, 256*1024)
	scanner.Buffer(buf, 1024*1024)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		raw := append([]byte(nil), scanner.Bytes()...)

		outcome, err := r.interceptor.HandleInbound(ctx, raw)
		if err != nil {
			r.logger.Error("failed to process inbound message", "error", err)
			continue
		}

		switch {
		case outcome.Passthrough:
			if err := writeLine(serverIn, outcome.Raw); err != nil {
				return err
			}
		case outcome.Forward:
			if err := writeLine(serverIn, outcome.ForwardRaw); err != nil {
				return err
			}
		default:
			writeToCaller(outcome.Reply)
		}
	}
	return scanner.Err()
}

func (r *RelayService) relayDownstream(ctx context.Context, src io.Reader, writeToCaller func([]byte)) error {
	scanner := bufio.NewScanner(src)
	buf := make([]byte, 0, 256*1024)
	scanner.Buffer(buf, 1024*1024)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		raw := append([]byte(nil), scanner.Bytes()...)

		reply, ok := r.interceptor.HandleDownstreamReply(ctx, raw)
		if !ok {
			continue
		}
		writeToCaller(reply)
	}
	return scanner.Err()
}

func writeLine(w io.Writer, raw []byte) error {
	if _, err := w.Write(raw); err != nil {
		return fmt.Errorf("write failed: %w", err)
	}
	if _, err := w.Write([]byte("\n")); err != nil {
		return fmt.Errorf("write newline failed: %w", err)
	}
	return nil
}
