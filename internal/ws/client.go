package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"event-chat/internal/chat"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message
	writeWait = 10 * time.Second

	// Time allowed to read next pong message
	pongWait = 60 * time.Second

	// Send pings with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Max message size
	maxMessageSize = 512 * 1024 // 512 KB

	sendBuffer = 256
)

var (
	ErrNotOpen    = errors.New("websocket not open")
	ErrBufferFull = errors.New("websocket send buffer full")
)

// Dialer opens gorilla websocket connections for the chat manager.
type Dialer struct {
	dialer *websocket.Dialer
	log    *slog.Logger
}

type DialerOption func(*Dialer)

func WithLogger(l *slog.Logger) DialerOption {
	return func(d *Dialer) { d.log = l }
}

func WithHandshakeTimeout(t time.Duration) DialerOption {
	return func(d *Dialer) { d.dialer.HandshakeTimeout = t }
}

func NewDialer(opts ...DialerOption) *Dialer {
	d := &Dialer{
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: writeWait,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
		},
		log: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Open starts dialing in the background and returns immediately. The dial
// outcome and everything after it is reported to l.
func (d *Dialer) Open(ctx context.Context, endpoint string, header http.Header, l chat.Listener) (chat.Conn, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	ctx, cancel := context.WithCancel(ctx)
	c := &Client{
		listener: l,
		log:      d.log,
		send:     make(chan []byte, sendBuffer),
		done:     make(chan struct{}),
		cancel:   cancel,
	}
	go c.run(ctx, d.dialer, endpoint, header)
	return c, nil
}

// Client is one client-side websocket connection.
type Client struct {
	listener chat.Listener
	log      *slog.Logger
	send     chan []byte
	done     chan struct{}
	cancel   context.CancelFunc

	mu          sync.Mutex
	conn        *websocket.Conn
	open        bool
	closed      bool
	closeCode   int
	closeReason string

	doneOnce   sync.Once
	reportOnce sync.Once
}

func (c *Client) run(ctx context.Context, dialer *websocket.Dialer, endpoint string, header http.Header) {
	conn, resp, err := dialer.DialContext(ctx, endpoint, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if code, reason, local := c.localClose(); local {
			c.report(code, reason)
			return
		}
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			c.log.Warn("[WS] Handshake rejected", "status", resp.StatusCode)
			c.report(chat.CloseUnauthorized, resp.Status)
			return
		}
		c.log.Warn("[WS] Dial failed", "error", err)
		c.listener.OnError(err)
		c.report(chat.CloseAbnormal, err.Error())
		return
	}

	c.mu.Lock()
	if c.closed {
		code, reason := c.closeCode, c.closeReason
		c.mu.Unlock()
		conn.Close()
		c.report(code, reason)
		return
	}
	c.conn = conn
	c.open = true
	c.mu.Unlock()

	c.log.Debug("[WS] Connected")
	c.listener.OnOpen()

	go c.writePump(conn)
	c.readPump(conn)
}

// readPump pumps messages from the websocket to the listener
func (c *Client) readPump(conn *websocket.Conn) {
	defer func() {
		c.stop()
		conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if code, reason, local := c.localClose(); local {
				c.report(code, reason)
				return
			}
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				c.report(ce.Code, ce.Text)
				return
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("[WS] Unexpected close", "error", err)
			}
			c.listener.OnError(err)
			c.report(chat.CloseAbnormal, err.Error())
			return
		}
		c.listener.OnMessage(message)
	}
}

// writePump pumps queued frames to the websocket and keeps it alive
func (c *Client) writePump(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			w, err := conn.NextWriter(websocket.TextMessage)
			if err != nil {
				c.log.Error("[WS] Failed to get writer", "error", err)
				return
			}
			w.Write(message)
			if err := w.Close(); err != nil {
				c.log.Error("[WS] Failed to close writer", "error", err)
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.log.Error("[WS] Failed to send ping", "error", err)
				return
			}

		case <-c.done:
			return
		}
	}
}

// Send queues a frame for the write pump.
func (c *Client) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open || c.closed {
		return ErrNotOpen
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrBufferFull
	}
}

// Close sends a close frame with code and reason. The listener's OnClose
// reports the same code once the connection is gone.
func (c *Client) Close(code int, reason string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.closeCode = code
	c.closeReason = reason
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		// Still dialing; cancelling the dial reports the close.
		c.cancel()
		return nil
	}

	msg := websocket.FormatCloseMessage(code, reason)
	err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	// Give the peer writeWait to echo the close before dropping the socket.
	time.AfterFunc(writeWait, func() { conn.Close() })
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		conn.Close()
		return fmt.Errorf("write close: %w", err)
	}
	return nil
}

func (c *Client) localClose() (int, string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCode, c.closeReason, c.closed
}

func (c *Client) stop() {
	c.doneOnce.Do(func() {
		c.mu.Lock()
		c.open = false
		c.mu.Unlock()
		close(c.done)
		c.cancel()
	})
}

func (c *Client) report(code int, reason string) {
	c.stop()
	c.reportOnce.Do(func() {
		c.log.Debug("[WS] Connection closed", "code", code, "reason", reason)
		c.listener.OnClose(code, reason)
	})
}
