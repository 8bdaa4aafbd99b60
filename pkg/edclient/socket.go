package edclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// State is the lifecycle of the realtime connection.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// EventHandler receives events of one type. Handlers run on the socket's
// read goroutine, one at a time.
type EventHandler func(Event)

// SocketManager owns at most one authenticated realtime connection. It
// connects when given a token, reconnects with backoff when the connection
// drops and tears down when the token is removed.
type SocketManager struct {
	url     string
	dialer  *websocket.Dialer
	backoff Backoff
	logger  zerolog.Logger

	mu       sync.Mutex
	token    string
	state    State
	conn     *websocket.Conn
	cancel   context.CancelFunc
	done     chan struct{}
	changed  chan struct{}
	handlers map[string][]EventHandler
	closed   bool
}

type SocketOption func(*SocketManager)

func WithDialer(d *websocket.Dialer) SocketOption {
	return func(s *SocketManager) { s.dialer = d }
}

func WithBackoff(b Backoff) SocketOption {
	return func(s *SocketManager) { s.backoff = b }
}

func WithSocketLogger(l zerolog.Logger) SocketOption {
	return func(s *SocketManager) { s.logger = l }
}

// NewSocketManager targets wsURL (ws:// or wss://). Nothing is dialed until
// SetToken is called with a token.
func NewSocketManager(wsURL string, opts ...SocketOption) *SocketManager {
	s := &SocketManager{
		url:      wsURL,
		dialer:   &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		backoff:  DefaultBackoff(),
		logger:   zerolog.Nop(),
		changed:  make(chan struct{}),
		handlers: make(map[string][]EventHandler),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// On registers h for events of eventType.
func (s *SocketManager) On(eventType string, h EventHandler) {
	s.mu.Lock()
	s.handlers[eventType] = append(s.handlers[eventType], h)
	s.mu.Unlock()
}

func (s *SocketManager) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *SocketManager) IsConnected() bool { return s.State() == StateConnected }

// Conn returns the live connection, or nil when not connected.
func (s *SocketManager) Conn() *websocket.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// SetToken starts a connection for token if none exists, replaces the
// connection when the token changes and tears it down when token is empty.
func (s *SocketManager) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if token == s.token && (token == "" || s.cancel != nil) {
		return
	}
	s.token = token
	s.teardownLocked()
	if token == "" {
		s.logger.Info().Msg("socket: token removed, disconnected")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(ctx, token, s.done)
}

// teardownLocked stops the run loop and drops the connection. s.mu is held.
func (s *SocketManager) teardownLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	s.setStateLocked(StateDisconnected)
}

func (s *SocketManager) setStateLocked(st State) {
	if s.state == st {
		return
	}
	s.state = st
	close(s.changed)
	s.changed = make(chan struct{})
}

// WaitFor blocks until the manager reaches want or ctx ends.
func (s *SocketManager) WaitFor(ctx context.Context, want State) error {
	for {
		s.mu.Lock()
		if s.state == want {
			s.mu.Unlock()
			return nil
		}
		ch := s.changed
		s.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close tears the connection down for good and waits for the read loop.
func (s *SocketManager) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.token = ""
	done := s.done
	s.teardownLocked()
	s.mu.Unlock()

	if done != nil {
		<-done
	}
}

// transition applies fn under the lock unless ctx was cancelled, so a
// stale loop cannot overwrite the state of a newer one.
func (s *SocketManager) transition(ctx context.Context, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ctx.Err() != nil {
		return false
	}
	fn()
	return true
}

func (s *SocketManager) run(ctx context.Context, token string, done chan struct{}) {
	defer close(done)
	policy := s.backoff.policy()

	for {
		if !s.transition(ctx, func() { s.setStateLocked(StateConnecting) }) {
			return
		}

		header := http.Header{}
		header.Set("Authorization", "Bearer "+token)
		conn, resp, err := s.dialer.DialContext(ctx, s.url, header)
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			ev := s.logger.Warn().Err(err)
			if resp != nil {
				ev = ev.Int("status", resp.StatusCode)
			}
			ev.Msg("socket: connection error")
		} else {
			connected := s.transition(ctx, func() {
				s.conn = conn
				s.setStateLocked(StateConnected)
			})
			if !connected {
				conn.Close()
				return
			}
			policy.Reset()
			s.logger.Info().Str("url", s.url).Msg("socket: connected")

			err = s.readLoop(conn)
			s.transition(ctx, func() {
				if s.conn == conn {
					s.conn = nil
					s.setStateLocked(StateDisconnected)
				}
			})
			conn.Close()
			if ctx.Err() != nil {
				return
			}
			s.logger.Info().Err(err).Msg("socket: disconnected")
		}

		s.transition(ctx, func() { s.setStateLocked(StateDisconnected) })

		delay := policy.NextBackOff()
		s.logger.Debug().Dur("delay", delay).Msg("socket: reconnecting")
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

func (s *SocketManager) readLoop(conn *websocket.Conn) error {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		var ev Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			s.logger.Debug().Err(err).Msg("socket: ignoring malformed event")
			continue
		}
		s.dispatch(ev)
	}
}

func (s *SocketManager) dispatch(ev Event) {
	s.mu.Lock()
	hs := append([]EventHandler(nil), s.handlers[ev.Type]...)
	s.mu.Unlock()
	for _, h := range hs {
		h(ev)
	}
}

// ErrNotConnected is returned by Send when there is no live connection.
var ErrNotConnected = errors.New("socket not connected")

// Send writes a JSON message on the live connection.
func (s *SocketManager) Send(v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return ErrNotConnected
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return s.conn.WriteJSON(v)
}
