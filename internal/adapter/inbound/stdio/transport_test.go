package stdio

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/sentinelcore/sentinelcore/internal/domain/anomaly"
	"github.com/sentinelcore/sentinelcore/internal/domain/audit"
	"github.com/sentinelcore/sentinelcore/internal/domain/circuitbreaker"
	"github.com/sentinelcore/sentinelcore/internal/domain/clock"
	"github.com/sentinelcore/sentinelcore/internal/domain/confirmtoken"
	"github.com/sentinelcore/sentinelcore/internal/domain/engine"
	"github.com/sentinelcore/sentinelcore/internal/domain/interceptor"
	"github.com/sentinelcore/sentinelcore/internal/domain/mode"
	"github.com/sentinelcore/sentinelcore/internal/domain/quarantine"
	"github.com/sentinelcore/sentinelcore/internal/domain/ratelimit"
	"github.com/sentinelcore/sentinelcore/internal/domain/rule"
	"github.com/sentinelcore/sentinelcore/internal/port"
	"github.com/sentinelcore/sentinelcore/internal/service"
)

// fakeStore is a minimal in-memory backing store for every port the engine
// and interceptor depend on, scoped to exercising the stdio transport rather
// than policy-engine edge cases.
type fakeStore struct {
	mode mode.Mode
}

func (f *fakeStore) ListEnabled(ctx context.Context) ([]*rule.Rule, error)   { return nil, nil }
func (f *fakeStore) List(ctx context.Context) ([]*rule.Rule, error)         { return nil, nil }
func (f *fakeStore) Get(ctx context.Context, id string) (*rule.Rule, error) { return nil, nil }
func (f *fakeStore) Save(ctx context.Context, r *rule.Rule) error           { return nil }
func (f *fakeStore) Delete(ctx context.Context, id string) error           { return nil }

func (f *fakeStore) GetOrCreate(ctx context.Context, host string) (circuitbreaker.Record, error) {
	return circuitbreaker.NewRecord(host), nil
}
func (f *fakeStore) SaveCircuit(ctx context.Context, rec circuitbreaker.Record) error { return nil }

func (f *fakeStore) Lookup(ctx context.Context, scope quarantine.Scope, target string, now time.Time) (quarantine.Entry, bool, error) {
	return quarantine.Entry{}, false, nil
}
func (f *fakeStore) Upsert(ctx context.Context, e quarantine.Entry) error { return nil }
func (f *fakeStore) DeleteQuarantine(ctx context.Context, scope quarantine.Scope, target string) error {
	return nil
}
func (f *fakeStore) ListQuarantine(ctx context.Context, now time.Time) ([]quarantine.Entry, error) {
	return nil, nil
}

func (f *fakeStore) GetOrCreateBucket(ctx context.Context, key ratelimit.Key, capacity float64, now time.Time) (ratelimit.Bucket, error) {
	return ratelimit.NewBucket(key, capacity, now), nil
}
func (f *fakeStore) SaveBucket(ctx context.Context, b ratelimit.Bucket) error { return nil }
func (f *fakeStore) DeleteStale(ctx context.Context, now time.Time) (int, error) {
	return 0, nil
}

func (f *fakeStore) SaveToken(ctx context.Context, t confirmtoken.Token) error { return nil }
func (f *fakeStore) ValidateAndConsume(ctx context.Context, val, tool, host, agent string, now time.Time) (confirmtoken.Token, bool, error) {
	return confirmtoken.Token{}, false, nil
}
func (f *fakeStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) { return 0, nil }

func (f *fakeStore) GetOrCreateBaseline(ctx context.Context, tool, host string) (*anomaly.Baseline, error) {
	return anomaly.NewBaseline(tool, host), nil
}
func (f *fakeStore) SaveBaseline(ctx context.Context, b *anomaly.Baseline) error { return nil }

func (f *fakeStore) Append(ctx context.Context, e *audit.Entry) (int64, error) { return 1, nil }
func (f *fakeStore) UpdateResponse(ctx context.Context, seq int64, status audit.ResponseStatus, msg string) error {
	return nil
}
func (f *fakeStore) Query(ctx context.Context, q port.AuditQuery) ([]*audit.Entry, error) {
	return nil, nil
}
func (f *fakeStore) AllOrdered(ctx context.Context) ([]*audit.Entry, error) { return nil, nil }
func (f *fakeStore) LastForHost(ctx context.Context, host string, before time.Time) (*audit.Entry, error) {
	return nil, nil
}
func (f *fakeStore) CountLastHour(ctx context.Context, tool, host string, now time.Time) (int, int, error) {
	return 0, 0, nil
}

func (f *fakeStore) GetMode(ctx context.Context) (mode.Mode, error) { return f.mode, nil }
func (f *fakeStore) SetMode(ctx context.Context, m mode.Mode) error { f.mode = m; return nil }
func (f *fakeStore) GetConfig(ctx context.Context, key string) (string, bool, error) {
	return "", false, nil
}
func (f *fakeStore) SetConfig(ctx context.Context, key, val string) error { return nil }

func (f *fakeStore) Insert(ctx context.Context, a port.Alert) (int64, error) { return 1, nil }
func (f *fakeStore) ListAlerts(ctx context.Context, onlyUnacknowledged bool, limit int) ([]port.Alert, error) {
	return nil, nil
}
func (f *fakeStore) Acknowledge(ctx context.Context, id int64) error { return nil }

type circuitAdapter struct{ *fakeStore }

func (c circuitAdapter) GetOrCreate(ctx context.Context, host string) (circuitbreaker.Record, error) {
	return c.fakeStore.GetOrCreate(ctx, host)
}
func (c circuitAdapter) Save(ctx context.Context, rec circuitbreaker.Record) error {
	return c.fakeStore.SaveCircuit(ctx, rec)
}

type quarantineAdapter struct{ *fakeStore }

func (q quarantineAdapter) Lookup(ctx context.Context, scope quarantine.Scope, target string, now time.Time) (quarantine.Entry, bool, error) {
	return q.fakeStore.Lookup(ctx, scope, target, now)
}
func (q quarantineAdapter) Upsert(ctx context.Context, e quarantine.Entry) error {
	return q.fakeStore.Upsert(ctx, e)
}
func (q quarantineAdapter) Delete(ctx context.Context, scope quarantine.Scope, target string) error {
	return q.fakeStore.DeleteQuarantine(ctx, scope, target)
}
func (q quarantineAdapter) List(ctx context.Context, now time.Time) ([]quarantine.Entry, error) {
	return q.fakeStore.ListQuarantine(ctx, now)
}

type rateLimitAdapter struct{ *fakeStore }

func (r rateLimitAdapter) GetOrCreate(ctx context.Context, key ratelimit.Key, capacity float64, now time.Time) (ratelimit.Bucket, error) {
	return r.fakeStore.GetOrCreateBucket(ctx, key, capacity, now)
}
func (r rateLimitAdapter) Save(ctx context.Context, b ratelimit.Bucket) error {
	return r.fakeStore.SaveBucket(ctx, b)
}
func (r rateLimitAdapter) DeleteStale(ctx context.Context, now time.Time) (int, error) {
	return r.fakeStore.DeleteStale(ctx, now)
}

type tokenAdapter struct{ *fakeStore }

func (tk tokenAdapter) Save(ctx context.Context, t confirmtoken.Token) error {
	return tk.fakeStore.SaveToken(ctx, t)
}
func (tk tokenAdapter) ValidateAndConsume(ctx context.Context, val, tool, host, agent string, now time.Time) (confirmtoken.Token, bool, error) {
	return tk.fakeStore.ValidateAndConsume(ctx, val, tool, host, agent, now)
}
func (tk tokenAdapter) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	return tk.fakeStore.DeleteExpired(ctx, now)
}

type anomalyAdapter struct{ *fakeStore }

func (a anomalyAdapter) GetOrCreate(ctx context.Context, tool, host string) (*anomaly.Baseline, error) {
	return a.fakeStore.GetOrCreateBaseline(ctx, tool, host)
}
func (a anomalyAdapter) Save(ctx context.Context, b *anomaly.Baseline) error {
	return a.fakeStore.SaveBaseline(ctx, b)
}

type configAdapter struct{ *fakeStore }

func (c configAdapter) GetMode(ctx context.Context) (mode.Mode, error) { return c.fakeStore.GetMode(ctx) }
func (c configAdapter) SetMode(ctx context.Context, m mode.Mode) error { return c.fakeStore.SetMode(ctx, m) }
func (c configAdapter) Get(ctx context.Context, key string) (string, bool, error) {
	return c.fakeStore.GetConfig(ctx, key)
}
func (c configAdapter) Set(ctx context.Context, key, val string) error {
	return c.fakeStore.SetConfig(ctx, key, val)
}

type alertAdapter struct{ *fakeStore }

func (a alertAdapter) Insert(ctx context.Context, al port.Alert) (int64, error) {
	return a.fakeStore.Insert(ctx, al)
}
func (a alertAdapter) List(ctx context.Context, onlyUnacknowledged bool, limit int) ([]port.Alert, error) {
	return a.fakeStore.ListAlerts(ctx, onlyUnacknowledged, limit)
}
func (a alertAdapter) Acknowledge(ctx context.Context, id int64) error {
	return a.fakeStore.Acknowledge(ctx, id)
}

func newTestRelay(client port.MCPClient) *service.RelayService {
	f := &fakeStore{mode: mode.SilentAllow}
	eng := engine.New(f, circuitAdapter{f}, quarantineAdapter{f}, rateLimitAdapter{f}, tokenAdapter{f}, anomalyAdapter{f}, configAdapter{f}, f, clock.Real{})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ic := interceptor.New(eng, alertAdapter{f}, logger, nil)
	return service.NewRelayService(client, ic, logger)
}

// newEchoMCPClient wires a "downstream server"'s stdin straight back out as
// its stdout, so every forwarded tool call is echoed back verbatim.
func newEchoMCPClient() (io.WriteCloser, io.ReadCloser) {
	serverInR, serverInW := io.Pipe()
	serverOutR, serverOutW := io.Pipe()
	go func() {
		scanner := bufio.NewScanner(serverInR)
		for scanner.Scan() {
			line := append(append([]byte(nil), scanner.Bytes()...), '\n')
			if _, err := serverOutW.Write(line); err != nil {
				return
			}
		}
		_ = serverOutW.Close()
	}()
	return serverInW, serverOutR
}

type pipeMCPClient struct {
	stdin  io.WriteCloser
	stdout io.ReadCloser
}

func (p *pipeMCPClient) Start(ctx context.Context) (io.WriteCloser, io.ReadCloser, error) {
	return p.stdin, p.stdout, nil
}
func (p *pipeMCPClient) Wait() error  { return nil }
func (p *pipeMCPClient) Close() error { return nil }

func TestNewStdioTransport(t *testing.T) {
	stdin, stdout := newEchoMCPClient()
	relay := newTestRelay(&pipeMCPClient{stdin: stdin, stdout: stdout})

	transport := NewStdioTransport(relay)
	if transport == nil {
		t.Fatal("expected non-nil transport")
	}
}

func TestStdioTransportClose(t *testing.T) {
	stdin, stdout := newEchoMCPClient()
	relay := newTestRelay(&pipeMCPClient{stdin: stdin, stdout: stdout})
	transport := NewStdioTransport(relay)

	if err := transport.Close(); err != nil {
		t.Errorf("Close() = %v, want nil", err)
	}
}

func TestStdioTransportStartRelaysAllowedCall(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	stdin, stdout := newEchoMCPClient()
	relay := newTestRelay(&pipeMCPClient{stdin: stdin, stdout: stdout})
	transport := NewStdioTransport(relay)

	origStdin, origStdout := os.Stdin, os.Stdout
	defer func() { os.Stdin, os.Stdout = origStdin, origStdout }()

	stdinR, stdinW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	os.Stdin = stdinR
	os.Stdout = stdoutW

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- transport.Start(ctx) }()

	req := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      "7",
		"method":  "tools/call",
		"params": map[string]interface{}{
			"name":      "fs.read",
			"arguments": map[string]interface{}{"host": "h1"},
		},
	}
	line, _ := json.Marshal(req)
	if _, err := stdinW.Write(append(line, '\n')); err != nil {
		t.Fatalf("write to stdin: %v", err)
	}

	reader := bufio.NewReader(stdoutR)
	respLine, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("reading echoed reply from stdout: %v", err)
	}
	var resp map[string]interface{}
	if err := json.Unmarshal([]byte(respLine), &resp); err != nil {
		t.Fatalf("unmarshal reply: %v", err)
	}
	if resp["id"] != "7" {
		t.Fatalf("reply id = %v, want 7", resp["id"])
	}

	_ = stdinW.Close()
	cancel()
	<-errCh
	_ = stdoutR.Close()
}
