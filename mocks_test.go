package dtchat

import (
	"sync"

	"github.com/opd-ai/dtchat/transport"
)

// sendCall records one Engine.Send invocation.
type sendCall struct {
	local  transport.Endpoint
	remote transport.Endpoint
	data   []byte
	token  string
}

// mockEngine is a transport.Engine that records calls and never does I/O.
type mockEngine struct {
	mu      sync.Mutex
	listens []transport.Endpoint
	sends   []sendCall
}

func (m *mockEngine) StartListener(local transport.Endpoint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listens = append(m.listens, local)
}

func (m *mockEngine) Send(local, remote transport.Endpoint, data []byte, token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sends = append(m.sends, sendCall{local: local, remote: remote, data: data, token: token})
}

func (m *mockEngine) Close() error { return nil }

func (m *mockEngine) sendCalls() []sendCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]sendCall, len(m.sends))
	copy(out, m.sends)
	return out
}

func (m *mockEngine) listeners() []transport.Endpoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]transport.Endpoint, len(m.listens))
	copy(out, m.listens)
	return out
}

// eventRecorder collects engine events for assertions.
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) OnEvent(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// errorEvents returns only events that report failures.
func (r *eventRecorder) errorEvents() []ErrorEvent {
	var out []ErrorEvent
	for _, ev := range r.all() {
		if errEv, ok := ev.(ErrorEvent); ok {
			out = append(out, errEv)
		}
	}
	return out
}

// reset drops recorded events so a test can scope its assertions.
func (r *eventRecorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
