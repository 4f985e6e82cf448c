package conn

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/rs/zerolog"

	"github.com/carebridge/realtime/src/types"
)

// State is the connection lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateError
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	}
	return "unknown"
}

// manualClose is the attempt-counter sentinel set by Disconnect.
// It suppresses any further automatic reconnection.
const manualClose = -1

// Subscriber receives every inbound frame, synchronously, in arrival order.
type Subscriber func(types.Frame)

// FanoutOutcome reports the result of one subscriber invocation for one
// frame. Err is non-nil when the subscriber panicked; the panic is
// contained so delivery to the remaining subscribers continues.
type FanoutOutcome struct {
	Subscriber int
	Err        error
}

// FanoutObserver is called once per subscriber per frame with the
// invocation outcome.
type FanoutObserver func(FanoutOutcome)

// Options configures a Manager.
type Options struct {
	Endpoint             string
	Dialer               Dialer
	BaseReconnectDelay   time.Duration
	MaxReconnectAttempts int
	Logger               zerolog.Logger
	Observer             FanoutObserver
}

type subscription struct {
	id int
	fn Subscriber
}

// Manager owns the single shared socket: its state machine, the
// reconnection policy, outbound send, and fan-out of inbound frames to
// all registered subscribers. Feature reducers never touch the
// transport directly.
type Manager struct {
	mu          sync.Mutex
	endpoint    string
	dialer      Dialer
	baseDelay   time.Duration
	maxAttempts int
	logger      zerolog.Logger
	observer    FanoutObserver

	state       State
	sock        Socket
	gen         int
	attempts    int
	subs        []subscription
	nextSubID   int
	pendingUser string
	pendingAuth bool
	reconnect   *time.Timer
}

// New creates a Manager. It does not connect; call Connect.
func New(opts Options) *Manager {
	if opts.Dialer == nil {
		opts.Dialer = WebsocketDialer{}
	}
	if opts.BaseReconnectDelay <= 0 {
		opts.BaseReconnectDelay = time.Second
	}
	if opts.MaxReconnectAttempts <= 0 {
		opts.MaxReconnectAttempts = 5
	}
	return &Manager{
		endpoint:    opts.Endpoint,
		dialer:      opts.Dialer,
		baseDelay:   opts.BaseReconnectDelay,
		maxAttempts: opts.MaxReconnectAttempts,
		logger:      opts.Logger.With().Str("component", "conn").Logger(),
		observer:    opts.Observer,
	}
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connect opens the socket. It is idempotent: a no-op while Connecting
// or Connected. Calling it while a reconnect is pending cancels the
// timer and connects immediately.
func (m *Manager) Connect() {
	m.mu.Lock()
	if m.state == StateConnecting || m.state == StateConnected {
		m.mu.Unlock()
		return
	}
	if m.reconnect != nil {
		m.reconnect.Stop()
		m.reconnect = nil
	}
	m.attempts = 0
	m.state = StateConnecting
	m.gen++
	gen := m.gen
	m.mu.Unlock()

	go m.dial(gen)
}

// Disconnect cancels any pending reconnect, marks the manager as
// manually closed, and closes the transport with the normal closure
// code. No automatic reconnection follows; a later Connect call starts
// fresh.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if m.reconnect != nil {
		m.reconnect.Stop()
		m.reconnect = nil
	}
	m.attempts = manualClose
	m.gen++
	sock := m.sock
	m.sock = nil
	m.state = StateDisconnected
	m.mu.Unlock()

	if sock != nil {
		if err := sock.Close(websocket.CloseNormalClosure); err != nil {
			m.logger.Debug().Err(err).Msg("close error")
		}
	}
	m.logger.Info().Msg("disconnected")
}

// Authenticate records userID as the session identity. If the
// connection is up the authenticate envelope is sent immediately;
// otherwise the intent is held and honored exactly once on the next
// successful open.
func (m *Manager) Authenticate(userID string) {
	m.mu.Lock()
	m.pendingUser = userID
	if m.state != StateConnected || m.sock == nil {
		m.pendingAuth = true
		m.mu.Unlock()
		m.logger.Debug().Str("user_id", userID).Msg("authentication deferred until open")
		return
	}
	m.pendingAuth = false
	m.mu.Unlock()

	m.Send(types.ActionAuthenticate, types.AuthPayload{UserID: userID})
}

// Send constructs and writes an envelope. Fire-and-forget: while not
// Connected the frame is dropped silently, and marshal or write
// failures are logged, never surfaced to the caller.
func (m *Manager) Send(action types.Action, data any) {
	m.mu.Lock()
	if m.state != StateConnected || m.sock == nil {
		m.mu.Unlock()
		m.logger.Debug().Str("action", string(action)).Msg("send dropped, not connected")
		return
	}
	sock := m.sock
	m.mu.Unlock()

	env, err := types.NewEnvelope(action, data)
	if err != nil {
		m.logger.Error().Err(err).Str("action", string(action)).Msg("payload marshal failed")
		return
	}
	payload, err := json.Marshal(env)
	if err != nil {
		m.logger.Error().Err(err).Str("action", string(action)).Msg("envelope marshal failed")
		return
	}
	if err := sock.WriteMessage(payload); err != nil {
		m.logger.Warn().Err(err).Str("action", string(action)).Msg("write failed")
	}
}

// Subscribe registers fn into the fan-out set and returns its
// unsubscribe capability. Subscribers are invoked in registration
// order, once per inbound frame.
func (m *Manager) Subscribe(fn Subscriber) func() {
	m.mu.Lock()
	m.nextSubID++
	id := m.nextSubID
	m.subs = append(m.subs, subscription{id: id, fn: fn})
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, s := range m.subs {
			if s.id == id {
				m.subs = append(m.subs[:i], m.subs[i+1:]...)
				return
			}
		}
	}
}

// SubscriberCount returns the number of registered subscribers.
func (m *Manager) SubscriberCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

func (m *Manager) dial(gen int) {
	sock, err := m.dialer.Dial(m.endpoint)
	if err != nil {
		m.logger.Warn().Err(err).Str("endpoint", m.endpoint).Msg("dial failed")
		m.handleClose(gen, err)
		return
	}

	m.mu.Lock()
	if gen != m.gen {
		// Superseded by Disconnect or a newer Connect.
		m.mu.Unlock()
		_ = sock.Close(websocket.CloseNormalClosure)
		return
	}
	m.sock = sock
	m.state = StateConnected
	m.attempts = 0
	var auth *types.AuthPayload
	if m.pendingAuth {
		auth = &types.AuthPayload{UserID: m.pendingUser}
		m.pendingAuth = false
	}
	m.mu.Unlock()

	m.logger.Info().Str("endpoint", m.endpoint).Msg("connected")
	if auth != nil {
		m.Send(types.ActionAuthenticate, *auth)
	}
	m.readLoop(gen, sock)
}

func (m *Manager) readLoop(gen int, sock Socket) {
	for {
		payload, err := sock.ReadMessage()
		if err != nil {
			m.handleClose(gen, err)
			return
		}
		m.fanout(types.DecodeFrame(payload))
	}
}

// handleClose runs the reconnection policy after a dial failure or a
// dropped connection. A normal closure code or the manual-close
// sentinel is terminal; otherwise a retry is scheduled with linear
// backoff until the attempt bound is reached.
func (m *Manager) handleClose(gen int, err error) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.sock = nil

	if m.attempts == manualClose || isNormalClose(err) {
		m.state = StateDisconnected
		m.mu.Unlock()
		m.logger.Info().Msg("connection closed")
		return
	}
	if m.attempts >= m.maxAttempts {
		m.state = StateDisconnected
		m.mu.Unlock()
		m.logger.Error().Err(err).Int("attempts", m.maxAttempts).Msg("reconnect attempts exhausted")
		return
	}

	m.attempts++
	attempt := m.attempts
	m.state = StateError
	// Linear, not exponential. Deliberate: the bound is small and the
	// base delay short, so the curve shape does not matter.
	delay := m.baseDelay * time.Duration(attempt)
	m.reconnect = time.AfterFunc(delay, m.retry)
	m.mu.Unlock()

	m.logger.Warn().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg("connection lost, reconnecting")
}

func (m *Manager) retry() {
	m.mu.Lock()
	if m.attempts == manualClose || m.state != StateError {
		m.mu.Unlock()
		return
	}
	m.reconnect = nil
	m.state = StateConnecting
	m.gen++
	gen := m.gen
	m.mu.Unlock()

	go m.dial(gen)
}

// fanout delivers one frame to every subscriber, synchronously, in
// registration order. A panic in one subscriber is contained, logged,
// and reported through the observer; delivery to the rest continues.
func (m *Manager) fanout(frame types.Frame) {
	m.mu.Lock()
	subs := make([]subscription, len(m.subs))
	copy(subs, m.subs)
	obs := m.observer
	m.mu.Unlock()

	for _, s := range subs {
		err := invoke(s.fn, frame)
		if err != nil {
			m.logger.Error().Err(err).Int("subscriber", s.id).Str("action", string(frame.Action)).Msg("subscriber failed")
		}
		if obs != nil {
			obs(FanoutOutcome{Subscriber: s.id, Err: err})
		}
	}
}

func invoke(fn Subscriber, frame types.Frame) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("subscriber panic: %v", r)
		}
	}()
	fn(frame)
	return nil
}
