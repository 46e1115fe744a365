package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"taskquest/internal/realtime"
)

// State is the session's connection state. The application layer maps
// it to a tri-state surface: Connected, Reconnecting, and everything
// else reads as offline.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

var (
	ErrSessionClosed    = errors.New("session closed")
	ErrNotConnected     = errors.New("session not connected")
	ErrAuthRejected     = errors.New("authentication rejected")
	ErrRetriesExhausted = errors.New("reconnect attempts exhausted")
	ErrHandshakeTimeout = errors.New("authentication handshake timed out")

	errStopped = errors.New("session stopped")
)

// StateListener observes state transitions. err is non-nil only for the
// terminal Disconnected transition after retries are exhausted or the
// handshake is rejected.
type StateListener func(state State, err error)

// Config holds the session's connection parameters. The retry and
// keep-alive constants are configuration, not contracts; the defaults
// mirror the original client.
type Config struct {
	URL         string
	Token       string
	UserID      string
	DisplayName string

	BackoffBase       time.Duration // delay before retry 0; doubles per attempt
	BackoffCap        time.Duration // 0 means uncapped growth
	MaxAttempts       int           // consecutive failures before giving up
	KeepAliveInterval time.Duration
	HandshakeTimeout  time.Duration

	Dialer Dialer
}

func (c *Config) withDefaults() {
	if c.BackoffBase <= 0 {
		c.BackoffBase = 3 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 10
	}
	if c.KeepAliveInterval <= 0 {
		c.KeepAliveInterval = 25 * time.Second
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.Dialer == nil {
		c.Dialer = WebsocketDialer{}
	}
}

// backoffDelay returns min(base * 2^n, cap) for 0-indexed attempt n.
func (c *Config) backoffDelay(n int) time.Duration {
	d := c.BackoffBase
	for i := 0; i < n; i++ {
		d *= 2
		if c.BackoffCap > 0 && d >= c.BackoffCap {
			return c.BackoffCap
		}
	}
	if c.BackoffCap > 0 && d > c.BackoffCap {
		return c.BackoffCap
	}
	return d
}

// Session owns one outbound connection to the realtime hub: it performs
// the authentication handshake, reconnects with exponential backoff,
// keeps the transport alive, and replays room membership after a
// reconnect. Room membership is client-authoritative for replay; the
// server drops the old connection's membership on disconnect.
type Session struct {
	cfg        Config
	dispatcher *Dispatcher

	mu         sync.Mutex
	state      State
	rooms      map[string]bool
	listener   StateListener
	transport  Transport
	retryTimer *time.Timer
	started    bool
	stopped    bool

	outbound chan *realtime.Message
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func New(cfg Config) *Session {
	cfg.withDefaults()
	return &Session{
		cfg:        cfg,
		dispatcher: NewDispatcher(),
		state:      StateDisconnected,
		rooms:      make(map[string]bool),
		outbound:   make(chan *realtime.Message, 64),
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Dispatcher returns the event dispatcher; register handlers before
// Start to avoid missing early events.
func (s *Session) Dispatcher() *Dispatcher { return s.dispatcher }

// OnStateChange installs the state listener. Must be called before
// Start.
func (s *Session) OnStateChange(l StateListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listener = l
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Rooms returns the client-authoritative membership set.
func (s *Session) Rooms() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.rooms))
	for roomID := range s.rooms {
		out = append(out, roomID)
	}
	return out
}

// Start opens the connection and begins the reconnect loop.
func (s *Session) Start() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("session already started")
	}
	s.started = true
	s.mu.Unlock()

	s.setState(StateConnecting, nil)
	go s.run()
	return nil
}

// Stop closes the transport and settles the session in its terminal
// Disconnected state. Safe to call from any state, and idempotent; no
// retry or keep-alive timer fires after Stop returns.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.state = StateDisconnected
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
	tr := s.transport
	listener := s.listener
	wasStarted := s.started
	s.mu.Unlock()

	s.stopOnce.Do(func() { close(s.stopCh) })
	if tr != nil {
		tr.Close()
	}

	if wasStarted {
		select {
		case <-s.done:
		case <-time.After(5 * time.Second):
			slog.Warn("Timeout waiting for session loop to stop")
		}
	}
	if listener != nil {
		listener(StateDisconnected, nil)
	}
}

// JoinRoom subscribes to a room. While the session is not connected the
// join is queued and replayed once the handshake completes.
func (s *Session) JoinRoom(roomID string) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.rooms[roomID] = true
	connected := s.state == StateConnected
	s.mu.Unlock()

	if !connected {
		return nil
	}
	return s.enqueue(s.roomFrame(realtime.MessageTypeJoinRoom, roomID))
}

// LeaveRoom drops a room from the membership set.
func (s *Session) LeaveRoom(roomID string) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	delete(s.rooms, roomID)
	connected := s.state == StateConnected
	s.mu.Unlock()

	if !connected {
		return nil
	}
	return s.enqueue(s.roomFrame(realtime.MessageTypeLeaveRoom, roomID))
}

// Publish sends a room-scoped event. Events published while
// disconnected are lost, so this fails fast instead of queueing.
func (s *Session) Publish(roomID string, kind realtime.MessageType, payload map[string]any) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	connected := s.state == StateConnected
	s.mu.Unlock()

	if !connected {
		return ErrNotConnected
	}
	return s.enqueue(realtime.NewMessage(uuid.New().String(), realtime.MessageTypePublish, s.cfg.UserID, map[string]any{
		"room_id":    roomID,
		"event_kind": kind.String(),
		"payload":    payload,
	}))
}

func (s *Session) roomFrame(t realtime.MessageType, roomID string) *realtime.Message {
	return realtime.NewMessage(uuid.New().String(), t, s.cfg.UserID, map[string]any{
		"room_id": roomID,
	})
}

func (s *Session) enqueue(msg *realtime.Message) error {
	select {
	case s.outbound <- msg:
		return nil
	default:
		return ErrNotConnected
	}
}

func (s *Session) run() {
	defer close(s.done)

	failures := 0
	for {
		connected, err := s.connectOnce()
		if s.isStopped() || errors.Is(err, errStopped) {
			return
		}
		if errors.Is(err, ErrAuthRejected) {
			s.terminate(err)
			return
		}

		if connected {
			failures = 0
		}
		failures++
		if failures > s.cfg.MaxAttempts {
			s.terminate(fmt.Errorf("%w after %d attempts: %v", ErrRetriesExhausted, s.cfg.MaxAttempts, err))
			return
		}

		s.setState(StateReconnecting, nil)
		delay := s.cfg.backoffDelay(failures - 1)
		slog.Info("Session reconnecting", "attempt", failures, "delay", delay, "error", err)

		timer := time.NewTimer(delay)
		s.mu.Lock()
		s.retryTimer = timer
		s.mu.Unlock()

		select {
		case <-timer.C:
		case <-s.stopCh:
			timer.Stop()
			return
		}

		s.mu.Lock()
		s.retryTimer = nil
		s.mu.Unlock()
	}
}

// connectOnce dials, authenticates and serves one transport until it
// fails or the session stops. connected reports whether the handshake
// completed, which resets the failure counter.
func (s *Session) connectOnce() (connected bool, err error) {
	dialCtx, cancel := context.WithTimeout(context.Background(), s.cfg.HandshakeTimeout)
	defer cancel()

	tr, err := s.cfg.Dialer.Dial(dialCtx, s.cfg.URL, s.cfg.Token)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		tr.Close()
		return false, errStopped
	}
	s.transport = tr
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.transport = nil
		s.mu.Unlock()
		tr.Close()
	}()

	// Reader goroutine feeds both the handshake wait and the serve
	// loop so frames stay in wire order.
	connDone := make(chan struct{})
	defer close(connDone)
	msgCh := make(chan *realtime.Message)
	errCh := make(chan error, 1)
	go func() {
		for {
			msg, rerr := tr.ReadMessage()
			if rerr != nil {
				errCh <- rerr
				return
			}
			select {
			case msgCh <- msg:
			case <-connDone:
				return
			}
		}
	}()

	auth := realtime.NewMessage(uuid.New().String(), realtime.MessageTypeAuth, s.cfg.UserID, map[string]any{
		"user_id":      s.cfg.UserID,
		"display_name": s.cfg.DisplayName,
	})
	if err := tr.WriteMessage(auth); err != nil {
		return false, err
	}

	if err := s.awaitAuthResult(msgCh, errCh); err != nil {
		return false, err
	}

	s.setState(StateConnected, nil)
	s.drainStaleOutbound()
	if err := s.replayRooms(tr); err != nil {
		return true, err
	}

	return true, s.serve(tr, msgCh, errCh)
}

// awaitAuthResult waits for the server's auth.result within the
// handshake timeout. The handshake fails rather than hangs.
func (s *Session) awaitAuthResult(msgCh <-chan *realtime.Message, errCh <-chan error) error {
	timer := time.NewTimer(s.cfg.HandshakeTimeout)
	defer timer.Stop()

	for {
		select {
		case msg := <-msgCh:
			if msg.Type != realtime.MessageTypeAuthResult {
				continue
			}
			success, _ := msg.Data["success"].(bool)
			if !success {
				reason, _ := msg.Data["reason"].(string)
				return fmt.Errorf("%w: %s", ErrAuthRejected, reason)
			}
			return nil
		case err := <-errCh:
			return err
		case <-timer.C:
			return ErrHandshakeTimeout
		case <-s.stopCh:
			return errStopped
		}
	}
}

// replayRooms re-joins every room the client considers itself a member
// of. Runs after every successful handshake.
func (s *Session) replayRooms(tr Transport) error {
	for _, roomID := range s.Rooms() {
		if err := tr.WriteMessage(s.roomFrame(realtime.MessageTypeJoinRoom, roomID)); err != nil {
			return err
		}
	}
	return nil
}

// drainStaleOutbound discards frames queued against a previous
// transport; membership replay supersedes them.
func (s *Session) drainStaleOutbound() {
	for {
		select {
		case <-s.outbound:
		default:
			return
		}
	}
}

func (s *Session) serve(tr Transport, msgCh <-chan *realtime.Message, errCh <-chan error) error {
	keepAlive := time.NewTicker(s.cfg.KeepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case msg := <-msgCh:
			s.dispatcher.Dispatch(msg)

		case out := <-s.outbound:
			if err := tr.WriteMessage(out); err != nil {
				return err
			}

		case <-keepAlive.C:
			ka := realtime.NewMessage(uuid.New().String(), realtime.MessageTypeKeepAlive, s.cfg.UserID, nil)
			if err := tr.WriteMessage(ka); err != nil {
				// A failed liveness ping is a transport failure, not
				// something to swallow.
				return err
			}

		case err := <-errCh:
			return err

		case <-s.stopCh:
			return errStopped
		}
	}
}

func (s *Session) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// terminate settles the session in terminal Disconnected and surfaces
// the connectivity error to the state listener.
func (s *Session) terminate(err error) {
	s.mu.Lock()
	s.stopped = true
	s.state = StateDisconnected
	listener := s.listener
	s.mu.Unlock()

	s.stopOnce.Do(func() { close(s.stopCh) })
	slog.Error("Session terminated", "error", err)
	if listener != nil {
		listener(StateDisconnected, err)
	}
}

func (s *Session) setState(st State, err error) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	changedFrom := s.state
	s.state = st
	listener := s.listener
	s.mu.Unlock()

	if listener != nil && changedFrom != st {
		listener(st, err)
	}
}
