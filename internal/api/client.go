package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"event-chat/internal/auth"
	"event-chat/internal/cache"
	"event-chat/internal/models"

	"github.com/goccy/go-json"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultCacheTTL = 30 * time.Second

	// Bound on a coalesced GET, which no single caller can cancel.
	DefaultFetchTimeout = 15 * time.Second
)

var ErrUnauthorized = errors.New("unauthorized")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("api: status %d", e.StatusCode)
	}
	return fmt.Sprintf("api: status %d: %s", e.StatusCode, e.Body)
}

func (e *StatusError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized
}

func (e *StatusError) Is(target error) bool {
	return target == ErrUnauthorized && e.Unauthorized()
}

// Client talks to the events REST backend. It serves as both the chat's
// HTTP fallback and its membership collaborator.
type Client struct {
	baseURL  string
	token    string
	http     *http.Client
	cache    cache.Cache
	cacheTTL time.Duration
	fetchTTL time.Duration
	group    singleflight.Group
	log      *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithCache caches event and attendee responses for ttl.
func WithCache(cc cache.Cache, ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = cc
		c.cacheTTL = ttl
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

func NewClient(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		token:    token,
		http:     &http.Client{Timeout: 15 * time.Second},
		cacheTTL: DefaultCacheTTL,
		fetchTTL: DefaultFetchTimeout,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func eventPath(eventID string, parts ...string) string {
	p := "/api/events/" + url.PathEscape(eventID)
	for _, part := range parts {
		p += "/" + url.PathEscape(part)
	}
	return p
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	raw, err := c.raw(ctx, method, path, body)
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) raw(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	auth.SetBearer(req, c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read %s %s: %w", method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Debug("[API] Request failed", "method", method, "path", path, "status", resp.StatusCode)
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	return data, nil
}

// getCached serves GETs from the response cache, coalescing concurrent
// misses for the same key into one request.
func (c *Client) getCached(ctx context.Context, key, path string, out interface{}) error {
	if c.cache != nil {
		b, ok, err := c.cache.Get(ctx, key)
		if err != nil {
			c.log.Warn("[API] Cache read failed", "key", key, "error", err)
		} else if ok {
			if err := json.Unmarshal(b, out); err == nil {
				return nil
			}
			c.log.Warn("[API] Dropping undecodable cache entry", "key", key)
		}
	}

	// The shared fetch outlives any one caller; each caller still stops
	// waiting when its own ctx is done.
	ch := c.group.DoChan(key, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTTL)
		defer cancel()
		b, err := c.raw(fetchCtx, http.MethodGet, path, nil)
		if err != nil {
			return nil, err
		}
		if c.cache != nil {
			if err := c.cache.Set(fetchCtx, key, b, c.cacheTTL); err != nil {
				c.log.Warn("[API] Cache write failed", "key", key, "error", err)
			}
		}
		return b, nil
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return res.Err
	}
	if err := json.Unmarshal(res.Val.([]byte), out); err != nil {
		return fmt.Errorf("decode GET %s: %w", path, err)
	}
	return nil
}

// Invalidate drops every cached response for an event.
func (c *Client) Invalidate(ctx context.Context, eventID string) error {
	if c.cache == nil {
		return nil
	}
	return c.cache.Delete(ctx, cache.EventKeys(eventID)...)
}

// Membership

func (c *Client) FetchEvent(ctx context.Context, eventID string) (models.Event, error) {
	var ev models.Event
	err := c.getCached(ctx, cache.EventKey(eventID), eventPath(eventID), &ev)
	return ev, err
}

type attendeesResponse struct {
	Attendees []models.Attendee `json:"attendees"`
}

func (c *Client) FetchAttendees(ctx context.Context, eventID string) ([]models.Attendee, error) {
	var resp attendeesResponse
	err := c.getCached(ctx, cache.AttendeesKey(eventID), eventPath(eventID, "attendees"), &resp)
	return resp.Attendees, err
}

func (c *Client) Join(ctx context.Context, eventID string) error {
	return c.changeMembership(ctx, eventID, "join")
}

func (c *Client) Leave(ctx context.Context, eventID string) error {
	return c.changeMembership(ctx, eventID, "leave")
}

func (c *Client) changeMembership(ctx context.Context, eventID, action string) error {
	err := c.do(ctx, http.MethodPost, eventPath(eventID, action), nil, nil)
	// The server may have applied the change even if we saw an error.
	if invErr := c.Invalidate(ctx, eventID); invErr != nil {
		c.log.Warn("[API] Cache invalidation failed", "event", eventID, "error", invErr)
	}
	return err
}

// Chat fallback

type messagesResponse struct {
	Messages []models.ChatMessage `json:"messages"`
}

func (c *Client) FetchMessages(ctx context.Context, eventID string) ([]models.ChatMessage, error) {
	var resp messagesResponse
	err := c.do(ctx, http.MethodGet, eventPath(eventID, "messages"), nil, &resp)
	return resp.Messages, err
}

func (c *Client) PostMessage(ctx context.Context, eventID string, msg models.SendMessageData) (models.ChatMessage, error) {
	var created models.ChatMessage
	err := c.do(ctx, http.MethodPost, eventPath(eventID, "messages"), msg, &created)
	return created, err
}

func (c *Client) DeleteMessage(ctx context.Context, eventID string, id models.MessageID) error {
	return c.do(ctx, http.MethodDelete, eventPath(eventID, "messages", string(id)), nil, nil)
}

func (c *Client) MarkRead(ctx context.Context, eventID string, id models.MessageID) error {
	return c.do(ctx, http.MethodPost, eventPath(eventID, "messages", string(id), "read"), nil, nil)
}

type presenceResponse struct {
	Users []models.PresenceData `json:"users"`
}

func (c *Client) FetchPresence(ctx context.Context, eventID string) ([]models.PresenceData, error) {
	var resp presenceResponse
	err := c.do(ctx, http.MethodGet, eventPath(eventID, "presence"), nil, &resp)
	return resp.Users, err
}
