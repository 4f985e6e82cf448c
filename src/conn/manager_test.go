package conn

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/carebridge/realtime/src/types"
)

// mockSocket simulates the transport. Frames are injected through in;
// fail ends the read loop with the given error.
type mockSocket struct {
	in       chan []byte
	closed   chan struct{}
	once     sync.Once
	mu       sync.Mutex
	readErr  error
	written  [][]byte
	closedBy int
}

func newMockSocket() *mockSocket {
	return &mockSocket{
		in:      make(chan []byte, 16),
		closed:  make(chan struct{}),
		readErr: errors.New("connection reset"),
	}
}

func (m *mockSocket) ReadMessage() ([]byte, error) {
	select {
	case p := <-m.in:
		return p, nil
	case <-m.closed:
		m.mu.Lock()
		defer m.mu.Unlock()
		return nil, m.readErr
	}
}

func (m *mockSocket) WriteMessage(p []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(p))
	copy(cp, p)
	m.written = append(m.written, cp)
	return nil
}

func (m *mockSocket) Close(code int) error {
	m.mu.Lock()
	m.closedBy = code
	m.mu.Unlock()
	m.once.Do(func() { close(m.closed) })
	return nil
}

// fail terminates the read loop with err, simulating a dropped
// connection.
func (m *mockSocket) fail(err error) {
	m.mu.Lock()
	m.readErr = err
	m.mu.Unlock()
	m.once.Do(func() { close(m.closed) })
}

func (m *mockSocket) writtenFrames() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([][]byte, len(m.written))
	copy(cp, m.written)
	return cp
}

type mockDialer struct {
	mu      sync.Mutex
	failAll bool
	dials   int
	socks   []*mockSocket
}

func (d *mockDialer) Dial(endpoint string) (Socket, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.failAll {
		return nil, errors.New("connection refused")
	}
	s := newMockSocket()
	d.socks = append(d.socks, s)
	return s, nil
}

func (d *mockDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *mockDialer) socket(i int) *mockSocket {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.socks) {
		return nil
	}
	return d.socks[i]
}

func newTestManager(t *testing.T, d Dialer) *Manager {
	t.Helper()
	m := New(Options{
		Endpoint:           "ws://test/ws",
		Dialer:             d,
		BaseReconnectDelay: 2 * time.Millisecond,
		Logger:             zerolog.Nop(),
	})
	t.Cleanup(m.Disconnect)
	return m
}

// waitFor polls until cond holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func countAction(frames [][]byte, action types.Action) int {
	n := 0
	for _, f := range frames {
		var env types.Envelope
		if json.Unmarshal(f, &env) == nil && env.Action == action {
			n++
		}
	}
	return n
}

func TestSendDroppedWhileDisconnected(t *testing.T) {
	d := &mockDialer{}
	m := newTestManager(t, d)

	m.Send(types.ActionSendMessage, map[string]any{"content": "x"})

	if d.dialCount() != 0 {
		t.Fatal("send must not open a connection")
	}
	if m.State() != StateDisconnected {
		t.Fatalf("expected disconnected, got %s", m.State())
	}
}

func TestConnectIdempotent(t *testing.T) {
	d := &mockDialer{}
	m := newTestManager(t, d)

	m.Connect()
	waitFor(t, func() bool { return m.State() == StateConnected }, "connected")
	m.Connect()
	m.Connect()
	time.Sleep(10 * time.Millisecond)

	if d.dialCount() != 1 {
		t.Fatalf("expected 1 dial, got %d", d.dialCount())
	}
}

func TestSendWritesEnvelope(t *testing.T) {
	d := &mockDialer{}
	m := newTestManager(t, d)

	m.Connect()
	waitFor(t, func() bool { return m.State() == StateConnected }, "connected")

	m.Send(types.ActionJoinGroup, types.JoinGroupPayload{GroupID: "g1"})

	sock := d.socket(0)
	waitFor(t, func() bool { return len(sock.writtenFrames()) == 1 }, "frame written")

	var env types.Envelope
	if err := json.Unmarshal(sock.writtenFrames()[0], &env); err != nil {
		t.Fatalf("written frame not an envelope: %v", err)
	}
	if env.Action != types.ActionJoinGroup {
		t.Fatalf("expected join_group, got %s", env.Action)
	}
}

func TestPendingAuthDeliveredOnceOnOpen(t *testing.T) {
	d := &mockDialer{}
	m := newTestManager(t, d)

	// Authentication requested before any connection exists.
	m.Authenticate("user-1")
	if d.dialCount() != 0 {
		t.Fatal("authenticate must not dial")
	}

	m.Connect()
	waitFor(t, func() bool { return m.State() == StateConnected }, "connected")

	sock := d.socket(0)
	waitFor(t, func() bool { return countAction(sock.writtenFrames(), types.ActionAuthenticate) == 1 }, "auth envelope")

	// Drop the connection; the reconnect must not replay the auth.
	sock.fail(errors.New("abnormal"))
	waitFor(t, func() bool { return d.dialCount() == 2 && m.State() == StateConnected }, "reconnected")
	time.Sleep(10 * time.Millisecond)

	if n := countAction(d.socket(1).writtenFrames(), types.ActionAuthenticate); n != 0 {
		t.Fatalf("auth replayed on reconnect: %d frames", n)
	}

	// A fresh Authenticate on an open connection sends immediately.
	m.Authenticate("user-1")
	waitFor(t, func() bool { return countAction(d.socket(1).writtenFrames(), types.ActionAuthenticate) == 1 }, "re-auth envelope")
}

func TestReconnectBound(t *testing.T) {
	d := &mockDialer{failAll: true}
	m := newTestManager(t, d)

	m.Connect()

	// Initial dial plus at most 5 retries.
	waitFor(t, func() bool { return m.State() == StateDisconnected && d.dialCount() == 6 }, "attempts exhausted")
	time.Sleep(20 * time.Millisecond)

	if d.dialCount() != 6 {
		t.Fatalf("expected 6 dials (1 initial + 5 retries), got %d", d.dialCount())
	}
	if m.State() != StateDisconnected {
		t.Fatalf("expected disconnected after exhaustion, got %s", m.State())
	}
}

func TestManualDisconnectSuppressesReconnect(t *testing.T) {
	d := &mockDialer{}
	m := newTestManager(t, d)

	m.Connect()
	waitFor(t, func() bool { return m.State() == StateConnected }, "connected")

	m.Disconnect()
	time.Sleep(20 * time.Millisecond)

	if d.dialCount() != 1 {
		t.Fatalf("expected no reconnect after manual disconnect, got %d dials", d.dialCount())
	}
	if m.State() != StateDisconnected {
		t.Fatalf("expected disconnected, got %s", m.State())
	}
}

func TestFanoutOrderAndUnsubscribe(t *testing.T) {
	d := &mockDialer{}
	m := newTestManager(t, d)

	var mu sync.Mutex
	var order []string
	first := m.Subscribe(func(f types.Frame) {
		mu.Lock()
		order = append(order, "first")
		mu.Unlock()
	})
	m.Subscribe(func(f types.Frame) {
		mu.Lock()
		order = append(order, "second")
		mu.Unlock()
	})

	m.Connect()
	waitFor(t, func() bool { return m.State() == StateConnected }, "connected")

	d.socket(0).in <- []byte(`{"action":"groups","data":{"groups":[]}}`)
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 2
	}, "both subscribers invoked")

	mu.Lock()
	if order[0] != "first" || order[1] != "second" {
		t.Fatalf("fan-out out of registration order: %v", order)
	}
	mu.Unlock()

	first()
	d.socket(0).in <- []byte(`{"action":"groups","data":{"groups":[]}}`)
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 3
	}, "remaining subscriber invoked")

	mu.Lock()
	defer mu.Unlock()
	if order[2] != "second" {
		t.Fatalf("unsubscribed callback still invoked: %v", order)
	}
}

func TestFanoutIsolatesPanics(t *testing.T) {
	d := &mockDialer{}

	var mu sync.Mutex
	var outcomes []FanoutOutcome
	m := New(Options{
		Endpoint:           "ws://test/ws",
		Dialer:             d,
		BaseReconnectDelay: 2 * time.Millisecond,
		Logger:             zerolog.Nop(),
		Observer: func(o FanoutOutcome) {
			mu.Lock()
			outcomes = append(outcomes, o)
			mu.Unlock()
		},
	})
	t.Cleanup(m.Disconnect)

	m.Subscribe(func(f types.Frame) { panic("faulty reducer") })
	delivered := 0
	m.Subscribe(func(f types.Frame) { delivered++ })

	m.Connect()
	waitFor(t, func() bool { return m.State() == StateConnected }, "connected")

	d.socket(0).in <- []byte(`{"action":"error","data":{"message":"x"}}`)
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(outcomes) == 2
	}, "both outcomes observed")

	mu.Lock()
	defer mu.Unlock()
	if outcomes[0].Err == nil {
		t.Fatal("panicking subscriber outcome should carry an error")
	}
	if outcomes[1].Err != nil {
		t.Fatalf("healthy subscriber outcome should be clean: %v", outcomes[1].Err)
	}
	if delivered != 1 {
		t.Fatalf("second subscriber not reached: %d", delivered)
	}
}

func TestMalformedFramePassedThrough(t *testing.T) {
	d := &mockDialer{}
	m := newTestManager(t, d)

	var mu sync.Mutex
	var got types.Frame
	received := false
	m.Subscribe(func(f types.Frame) {
		mu.Lock()
		got = f
		received = true
		mu.Unlock()
	})

	m.Connect()
	waitFor(t, func() bool { return m.State() == StateConnected }, "connected")

	raw := []byte("%% not json %%")
	d.socket(0).in <- raw
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return received
	}, "frame delivered")

	mu.Lock()
	defer mu.Unlock()
	if got.Action != types.ActionUnknown {
		t.Fatalf("expected unknown action, got %q", got.Action)
	}
	if string(got.Raw) != string(raw) {
		t.Fatal("raw payload not preserved")
	}
}
