package chat

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"event-chat/internal/models"

	"github.com/cenkalti/backoff/v4"
	"github.com/goccy/go-json"
)

const (
	// Application-level liveness ping period.
	DefaultPingInterval = 30 * time.Second

	DefaultBackoffBase = time.Second
	DefaultBackoffMax  = 30 * time.Second
)

type Status int

const (
	Disconnected Status = iota
	Connecting
	Open
	Closing
)

func (s Status) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closing:
		return "closing"
	}
	return "disconnected"
}

// ConnectionState is what the UI sees of the connection.
type ConnectionState struct {
	Status           Status
	ReconnectAttempt int
	// NextRetry is the delay of the scheduled reconnect, zero if none.
	NextRetry  time.Duration
	AuthFailed bool
}

// Backoff doubles Base per attempt up to Max.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// policy builds the reconnect schedule. Randomization is off so the n-th
// delay is exactly min(Base*2^n, Max).
func (b Backoff) policy(clock backoff.Clock) *backoff.ExponentialBackOff {
	base, max := b.Base, b.Max
	if base <= 0 {
		base = DefaultBackoffBase
	}
	if max < base {
		max = base
	}
	p := &backoff.ExponentialBackOff{
		InitialInterval:     base,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         max,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               clock,
	}
	p.Reset()
	return p
}

type SendResult int

const (
	Sent SendResult = iota
	Queued
)

func (r SendResult) String() string {
	if r == Queued {
		return "queued"
	}
	return "sent"
}

// ManagerHandler receives connection events on the manager's goroutine.
type ManagerHandler interface {
	StatusChanged(state ConnectionState)
	Message(data []byte)
	AuthFailed(code int, reason string)
}

type ManagerConfig struct {
	// Endpoint is the websocket URL; eventId and token are added as query
	// parameters.
	Endpoint     string
	PingInterval time.Duration
	Backoff      Backoff
}

type ManagerOption func(*Manager)

// WithDispatch routes transport callbacks through f, which must run them
// one at a time on the goroutine that owns the manager.
func WithDispatch(f func(func()) bool) ManagerOption {
	return func(m *Manager) { m.dispatch = f }
}

func WithQueue(q *OutboundQueue) ManagerOption {
	return func(m *Manager) { m.queue = q }
}

func WithManagerLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) { m.log = l }
}

// Manager owns the lifecycle of one persistent connection per event view.
// It is not safe for concurrent use; callers drive it from a single
// goroutine and route transport callbacks there via WithDispatch.
type Manager struct {
	cfg       ManagerConfig
	transport Transport
	clock     Clock
	handler   ManagerHandler
	dispatch  func(func()) bool
	log       *slog.Logger

	queue *OutboundQueue
	state ConnectionState

	ctx     context.Context
	cancel  context.CancelFunc
	eventID string
	token   string

	conn  Conn
	retry *backoff.ExponentialBackOff
	// gen identifies the current connection attempt; callbacks carrying an
	// older gen are ignored.
	gen        uint64
	deliberate bool

	reconnectTimer Timer
	pingTimer      Timer
}

func NewManager(cfg ManagerConfig, transport Transport, clock Clock, handler ManagerHandler, opts ...ManagerOption) *Manager {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = DefaultPingInterval
	}
	if clock == nil {
		clock = realClock{}
	}
	m := &Manager{
		cfg:       cfg,
		transport: transport,
		clock:     clock,
		handler:   handler,
		dispatch:  func(f func()) bool { f(); return true },
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.queue == nil {
		m.queue = NewOutboundQueue()
	}
	m.retry = cfg.Backoff.policy(clock)
	return m
}

func (m *Manager) State() ConnectionState {
	return m.state
}

func (m *Manager) Queue() *OutboundQueue {
	return m.queue
}

// Connect opens the connection for an event. Calling it while a connection
// is already open or opening for the same event is a no-op.
func (m *Manager) Connect(ctx context.Context, eventID, token string) error {
	if (m.state.Status == Open || m.state.Status == Connecting) && m.eventID == eventID && m.token == token {
		return nil
	}
	if m.conn != nil {
		m.closeCurrent(CloseNormal, "reconnecting with new credentials")
	}
	if m.cancel != nil {
		m.cancel()
	}
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.eventID = eventID
	m.token = token
	m.deliberate = false
	m.state.AuthFailed = false
	m.state.ReconnectAttempt = 0
	m.retry.Reset()
	stopTimer(&m.reconnectTimer)
	return m.dial()
}

func (m *Manager) endpointURL() (string, error) {
	u, err := url.Parse(m.cfg.Endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	q := u.Query()
	q.Set("eventId", m.eventID)
	q.Set("token", m.token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (m *Manager) dial() error {
	m.gen++
	gen := m.gen
	m.state.NextRetry = 0
	m.setStatus(Connecting)

	endpoint, err := m.endpointURL()
	if err != nil {
		m.setStatus(Disconnected)
		return err
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+m.token)

	m.log.Debug("[CONN] Dialing", "event", m.eventID, "attempt", m.state.ReconnectAttempt)
	conn, err := m.transport.Open(m.ctx, endpoint, header, &connListener{m: m, gen: gen})
	if err != nil {
		m.log.Warn("[CONN] Failed to open connection", "event", m.eventID, "error", err)
		m.handleClose(gen, CloseAbnormal, err.Error())
		return nil
	}
	m.conn = conn
	return nil
}

// Disconnect closes the connection deliberately; no reconnect follows.
func (m *Manager) Disconnect(reason string) {
	m.deliberate = true
	stopTimer(&m.reconnectTimer)
	stopTimer(&m.pingTimer)
	m.state.NextRetry = 0
	if m.conn != nil {
		m.setStatus(Closing)
		m.closeCurrent(CloseNormal, reason)
	} else if m.state.Status != Disconnected {
		m.gen++
		m.setStatus(Disconnected)
	}
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}

func (m *Manager) closeCurrent(code int, reason string) {
	conn := m.conn
	m.conn = nil
	if err := conn.Close(code, reason); err != nil {
		m.log.Debug("[CONN] Close failed", "event", m.eventID, "error", err)
	}
}

// Send transmits p when the connection is open and queues it otherwise.
// A write failure requeues p and is returned so the caller can show it.
func (m *Manager) Send(p models.Outbound) (SendResult, error) {
	m.queue.Enqueue(p)
	if m.state.Status != Open || m.conn == nil {
		return Queued, nil
	}
	if _, err := m.queue.Flush(m.write); err != nil {
		return Queued, fmt.Errorf("send %s: %w", p.Type, err)
	}
	return Sent, nil
}

// write encodes and transmits one frame. Frames that cannot be encoded are
// dropped so they never wedge the queue.
func (m *Manager) write(p models.Outbound) error {
	env, err := models.NewEnvelope(p.Type, m.eventID, p.Data)
	if err != nil {
		m.log.Error("[CONN] Failed to encode frame, dropping", "type", p.Type, "error", err)
		return nil
	}
	payload, err := json.Marshal(env)
	if err != nil {
		m.log.Error("[CONN] Failed to marshal envelope, dropping", "type", p.Type, "error", err)
		return nil
	}
	if m.conn == nil {
		return ErrNotOpen
	}
	return m.conn.Send(payload)
}

func (m *Manager) onOpen(gen uint64) {
	if gen != m.gen {
		return
	}
	m.state.ReconnectAttempt = 0
	m.state.NextRetry = 0
	m.retry.Reset()
	m.setStatus(Open)
	m.log.Info("[CONN] Connection open", "event", m.eventID)

	if n, err := m.queue.Flush(m.write); err != nil {
		m.log.Warn("[CONN] Flush interrupted", "event", m.eventID, "sent", n, "remaining", m.queue.Len(), "error", err)
	} else if n > 0 {
		m.log.Debug("[CONN] Flushed queued frames", "event", m.eventID, "count", n)
	}
	m.schedulePing(gen)
}

func (m *Manager) schedulePing(gen uint64) {
	stopTimer(&m.pingTimer)
	m.pingTimer = m.clock.AfterFunc(m.cfg.PingInterval, func() {
		if gen != m.gen || m.state.Status != Open {
			return
		}
		if err := m.write(models.Outbound{Type: models.TypePresencePing}); err != nil {
			m.log.Warn("[CONN] Failed to send presence ping", "event", m.eventID, "error", err)
		}
		m.schedulePing(gen)
	})
}

func (m *Manager) onMessage(gen uint64, data []byte) {
	if gen != m.gen {
		return
	}
	m.handler.Message(data)
}

func (m *Manager) onError(gen uint64, err error) {
	if gen != m.gen {
		return
	}
	m.log.Warn("[CONN] Connection error", "event", m.eventID, "error", err)
	if m.state.Status != Disconnected && m.state.Status != Closing {
		m.setStatus(Disconnected)
	}
}

func (m *Manager) handleClose(gen uint64, code int, reason string) {
	if gen != m.gen {
		return
	}
	m.gen++
	m.conn = nil
	stopTimer(&m.pingTimer)

	switch {
	case m.deliberate || code == CloseNormal:
		m.log.Info("[CONN] Connection closed", "event", m.eventID, "code", code, "reason", reason)
		m.setStatus(Disconnected)

	case IsAuthClose(code):
		m.log.Warn("[CONN] Connection rejected, not reconnecting", "event", m.eventID, "code", code, "reason", reason)
		m.state.AuthFailed = true
		m.setStatus(Disconnected)
		m.handler.AuthFailed(code, reason)

	default:
		delay := m.retry.NextBackOff()
		m.state.ReconnectAttempt++
		m.state.NextRetry = delay
		m.log.Info("[CONN] Connection lost, reconnecting", "event", m.eventID, "code", code, "attempt", m.state.ReconnectAttempt, "delay", delay)
		next := m.gen
		m.reconnectTimer = m.clock.AfterFunc(delay, func() {
			m.reconnectTimer = nil
			if next != m.gen || m.deliberate {
				return
			}
			if err := m.dial(); err != nil {
				m.log.Error("[CONN] Reconnect failed", "event", m.eventID, "error", err)
			}
		})
		m.setStatus(Disconnected)
	}
}

func (m *Manager) setStatus(s Status) {
	m.state.Status = s
	if m.handler != nil {
		m.handler.StatusChanged(m.state)
	}
}

// connListener binds transport callbacks to one connection attempt.
type connListener struct {
	m   *Manager
	gen uint64
}

func (l *connListener) OnOpen() {
	l.m.dispatch(func() { l.m.onOpen(l.gen) })
}

func (l *connListener) OnMessage(data []byte) {
	l.m.dispatch(func() { l.m.onMessage(l.gen, data) })
}

func (l *connListener) OnError(err error) {
	l.m.dispatch(func() { l.m.onError(l.gen, err) })
}

func (l *connListener) OnClose(code int, reason string) {
	l.m.dispatch(func() { l.m.handleClose(l.gen, code, reason) })
}
