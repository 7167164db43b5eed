package chat

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"testing"
	"time"

	"event-chat/internal/models"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
)

// fakeClock fires timers only when Advance is called.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	delay   time.Duration
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), delay: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// Advance moves time forward and runs every timer that came due, earliest
// first. Callbacks run without the lock held.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
	for {
		c.mu.Lock()
		var due []*fakeTimer
		for _, t := range c.timers {
			if !t.stopped && !t.fired && !t.at.After(c.now) {
				due = append(due, t)
			}
		}
		if len(due) == 0 {
			c.mu.Unlock()
			return
		}
		sort.SliceStable(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
		next := due[0]
		next.fired = true
		c.mu.Unlock()
		next.f()
	}
}

// Active returns the delays of timers that have neither fired nor stopped.
func (c *fakeClock) Active() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []time.Duration
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			out = append(out, t.delay)
		}
	}
	return out
}

type fakeTransport struct {
	mu    sync.Mutex
	conns []*fakeConn
}

func (tr *fakeTransport) Open(_ context.Context, endpoint string, header http.Header, l Listener) (Conn, error) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	c := &fakeConn{endpoint: endpoint, header: header, listener: l}
	tr.conns = append(tr.conns, c)
	return c, nil
}

func (tr *fakeTransport) count() int {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return len(tr.conns)
}

func (tr *fakeTransport) last(t *testing.T) *fakeConn {
	t.Helper()
	tr.mu.Lock()
	defer tr.mu.Unlock()
	require.NotEmpty(t, tr.conns, "no connection opened")
	return tr.conns[len(tr.conns)-1]
}

type fakeConn struct {
	endpoint string
	header   http.Header
	listener Listener

	mu          sync.Mutex
	sent        [][]byte
	sendErr     error
	closed      bool
	closeCode   int
	closeReason string
}

func (c *fakeConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, data)
	return nil
}

func (c *fakeConn) Close(code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.closeCode = code
	c.closeReason = reason
	return nil
}

func (c *fakeConn) setSendErr(err error) {
	c.mu.Lock()
	c.sendErr = err
	c.mu.Unlock()
}

func (c *fakeConn) isClosed() (bool, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed, c.closeCode
}

// frames decodes everything sent so far.
func (c *fakeConn) frames(t *testing.T) []models.Envelope {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.Envelope, 0, len(c.sent))
	for _, b := range c.sent {
		var env models.Envelope
		require.NoError(t, json.Unmarshal(b, &env))
		out = append(out, env)
	}
	return out
}

func (c *fakeConn) types(t *testing.T) []string {
	t.Helper()
	var out []string
	for _, env := range c.frames(t) {
		out = append(out, env.Type)
	}
	return out
}

func frame(t *testing.T, eventType string, data interface{}) []byte {
	t.Helper()
	env, err := models.NewEnvelope(eventType, "ev1", data)
	require.NoError(t, err)
	b, err := json.Marshal(env)
	require.NoError(t, err)
	return b
}

type recordingHandler struct {
	states       []ConnectionState
	messages     [][]byte
	authFailures []int
}

func (h *recordingHandler) StatusChanged(s ConnectionState) { h.states = append(h.states, s) }
func (h *recordingHandler) Message(data []byte)             { h.messages = append(h.messages, data) }
func (h *recordingHandler) AuthFailed(code int, _ string) {
	h.authFailures = append(h.authFailures, code)
}

func msg(id int64, author, content string) models.ChatMessage {
	return models.ChatMessage{
		ID:         models.IDFromInt(id),
		AuthorId:   author,
		AuthorName: author,
		Content:    content,
		CreatedAt:  time.Date(2026, 3, 1, 18, 0, int(id), 0, time.UTC),
	}
}

func ids(msgs []models.ChatMessage) []models.MessageID {
	out := make([]models.MessageID, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}
