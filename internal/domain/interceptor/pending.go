package interceptor

import (
	"sync"
	"time"
)

// pendingCall is the handle installed at forward time for one in-flight
// downstream request. It owns its own timeout timer and a sync.Once so
// whichever of {response arrival, timeout fire, downstream exit} wins the
// race removes it exactly once; the other two become no-ops.
type pendingCall struct {
	sequenceNumber int64
	tool, host, agent string
	forwardedAt    time.Time
	timer          *time.Timer
	once           sync.Once
	// done is closed by whichever event wins, unblocking anyone waiting on it.
	done   chan struct{}
	result pendingResult
}

type pendingResult struct {
	raw       []byte // the downstream reply, verbatim, for relay to the caller
	timedOut  bool
	disconnected bool
}

func newPendingCall(seq int64, tool, host, agent string, forwardedAt time.Time) *pendingCall {
	return &pendingCall{
		sequenceNumber: seq,
		tool:           tool,
		host:           host,
		agent:          agent,
		forwardedAt:    forwardedAt,
		done:           make(chan struct{}),
	}
}

// resolve records a downstream reply and closes done. Safe to call at most
// meaningfully once; later calls are no-ops because done is only closed once.
func (p *pendingCall) resolve(raw []byte) {
	p.once.Do(func() {
		p.result = pendingResult{raw: raw}
		if p.timer != nil {
			p.timer.Stop()
		}
		close(p.done)
	})
}

func (p *pendingCall) expire() {
	p.once.Do(func() {
		p.result = pendingResult{timedOut: true}
		close(p.done)
	})
}

func (p *pendingCall) disconnect() {
	p.once.Do(func() {
		p.result = pendingResult{disconnected: true}
		if p.timer != nil {
			p.timer.Stop()
		}
		close(p.done)
	})
}

// pendingMap is the callback map from request id to resolver/timer pair
// described in the interceptor's design: a mapping guarded by a mutex, not
// a back-pointer from the pending handle to the map, so handles never
// outlive their single owner.
type pendingMap struct {
	mu    sync.Mutex
	calls map[string]*pendingCall
}

func newPendingMap() *pendingMap {
	return &pendingMap{calls: map[string]*pendingCall{}}
}

// install registers a pending call keyed by the downstream request id and
// arms its timeout timer; onTimeout is invoked from the timer's own
// goroutine once, after removing the entry.
func (m *pendingMap) install(id string, call *pendingCall, timeout time.Duration, onTimeout func(*pendingCall)) {
	m.mu.Lock()
	m.calls[id] = call
	m.mu.Unlock()

	call.timer = time.AfterFunc(timeout, func() {
		m.remove(id)
		call.expire()
		onTimeout(call)
	})
}

// resolve looks up and removes the pending call for id, returning it if
// found (the caller then calls resolve/whatever on it).
func (m *pendingMap) resolve(id string) (*pendingCall, bool) {
	m.mu.Lock()
	call, ok := m.calls[id]
	if ok {
		delete(m.calls, id)
	}
	m.mu.Unlock()
	return call, ok
}

func (m *pendingMap) remove(id string) {
	m.mu.Lock()
	delete(m.calls, id)
	m.mu.Unlock()
}

// drain removes and returns every pending call, for downstream-exit cleanup.
func (m *pendingMap) drain() []*pendingCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*pendingCall, 0, len(m.calls))
	for id, call := range m.calls {
		out = append(out, call)
		delete(m.calls, id)
	}
	return out
}
