package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"event-chat/internal/cache"
	"event-chat/internal/models"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type backend struct {
	eventHits     atomic.Int32
	attendeeHits  atomic.Int32
	joined        atomic.Bool
	lastAuth      atomic.Value
	lastPosted    atomic.Value
	lastDeleted   atomic.Value
	lastMarkedURL atomic.Value
}

func newBackend(t *testing.T) (*backend, *httptest.Server) {
	t.Helper()
	b := &backend{}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/events/ev1", func(w http.ResponseWriter, r *http.Request) {
		b.eventHits.Add(1)
		b.lastAuth.Store(r.Header.Get("Authorization"))
		writeJSON(w, models.Event{ID: "ev1", Title: "Launch party", OwnerId: "owner"})
	})
	mux.HandleFunc("GET /api/events/ev1/attendees", func(w http.ResponseWriter, r *http.Request) {
		b.attendeeHits.Add(1)
		resp := attendeesResponse{Attendees: []models.Attendee{{UserId: "guest", UserName: "Guest"}}}
		if b.joined.Load() {
			resp.Attendees = append(resp.Attendees, models.Attendee{UserId: "me", UserName: "Me"})
		}
		writeJSON(w, resp)
	})
	mux.HandleFunc("POST /api/events/ev1/join", func(w http.ResponseWriter, r *http.Request) {
		b.joined.Store(true)
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /api/events/ev1/leave", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "owner cannot leave", http.StatusConflict)
	})
	mux.HandleFunc("GET /api/events/ev1/messages", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"messages":[{"id":5,"authorId":"bob","content":"hi"},{"id":"m-6","authorId":"bob","content":"yo"}]}`))
	})
	mux.HandleFunc("POST /api/events/ev1/messages", func(w http.ResponseWriter, r *http.Request) {
		var in models.SendMessageData
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		b.lastPosted.Store(in)
		writeJSON(w, models.ChatMessage{ID: "7", ClientId: in.ClientId, AuthorId: "me", Content: in.Content})
	})
	mux.HandleFunc("DELETE /api/events/ev1/messages/{id}", func(w http.ResponseWriter, r *http.Request) {
		b.lastDeleted.Store(r.PathValue("id"))
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /api/events/ev1/messages/{id}/read", func(w http.ResponseWriter, r *http.Request) {
		b.lastMarkedURL.Store(r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /api/events/ev1/presence", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, presenceResponse{Users: []models.PresenceData{{UserId: "bob", UserName: "Bob", IsOnline: true}}})
	})
	mux.HandleFunc("GET /api/events/private", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return b, srv
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(srv *httptest.Server, opts ...Option) *Client {
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	return NewClient(srv.URL+"/", "tok", opts...)
}

func TestClient_FetchEventIsCached(t *testing.T) {
	b, srv := newBackend(t)
	c := newTestClient(srv, WithCache(cache.NewMemory(0, time.Minute), time.Minute))
	ctx := context.Background()

	first, err := c.FetchEvent(ctx, "ev1")
	require.NoError(t, err)
	second, err := c.FetchEvent(ctx, "ev1")
	require.NoError(t, err)

	assert.Equal(t, "Launch party", first.Title)
	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, b.eventHits.Load())
	assert.Equal(t, "Bearer tok", b.lastAuth.Load())
}

func TestClient_CancelledCallerDoesNotFailSharedFetch(t *testing.T) {
	started := make(chan struct{}, 4)
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started <- struct{}{}
		<-release
		writeJSON(w, models.Event{ID: "ev1", Title: "Launch party"})
	}))
	t.Cleanup(srv.Close)
	c := newTestClient(srv)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.FetchEvent(firstCtx, "ev1")
		firstErr <- err
	}()
	<-started

	type result struct {
		ev  models.Event
		err error
	}
	second := make(chan result, 1)
	go func() {
		ev, err := c.FetchEvent(context.Background(), "ev1")
		second <- result{ev, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(release)
	got := <-second
	require.NoError(t, got.err)
	assert.Equal(t, "Launch party", got.ev.Title)
}

func TestClient_WithoutCacheAlwaysFetches(t *testing.T) {
	b, srv := newBackend(t)
	c := newTestClient(srv)

	for i := 0; i < 2; i++ {
		_, err := c.FetchEvent(context.Background(), "ev1")
		require.NoError(t, err)
	}

	assert.EqualValues(t, 2, b.eventHits.Load())
	assert.NoError(t, c.Invalidate(context.Background(), "ev1"))
}

func TestClient_JoinInvalidatesAttendees(t *testing.T) {
	b, srv := newBackend(t)
	c := newTestClient(srv, WithCache(cache.NewMemory(0, time.Minute), time.Minute))
	ctx := context.Background()

	before, err := c.FetchAttendees(ctx, "ev1")
	require.NoError(t, err)
	require.Len(t, before, 1)

	require.NoError(t, c.Join(ctx, "ev1"))

	after, err := c.FetchAttendees(ctx, "ev1")
	require.NoError(t, err)
	assert.Len(t, after, 2)
	assert.EqualValues(t, 2, b.attendeeHits.Load())
}

func TestClient_FailedLeaveStillInvalidates(t *testing.T) {
	b, srv := newBackend(t)
	c := newTestClient(srv, WithCache(cache.NewMemory(0, time.Minute), time.Minute))
	ctx := context.Background()
	_, err := c.FetchEvent(ctx, "ev1")
	require.NoError(t, err)

	err = c.Leave(ctx, "ev1")

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusConflict, se.StatusCode)
	assert.Equal(t, "owner cannot leave", se.Body)
	assert.False(t, errors.Is(err, ErrUnauthorized))

	_, err = c.FetchEvent(ctx, "ev1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, b.eventHits.Load())
}

func TestClient_Unauthorized(t *testing.T) {
	_, srv := newBackend(t)
	c := newTestClient(srv)

	_, err := c.FetchEvent(context.Background(), "private")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnauthorized)
	var u interface{ Unauthorized() bool }
	require.ErrorAs(t, err, &u)
	assert.True(t, u.Unauthorized())
}

func TestClient_FetchMessagesAcceptsMixedIDs(t *testing.T) {
	_, srv := newBackend(t)
	c := newTestClient(srv)

	msgs, err := c.FetchMessages(context.Background(), "ev1")

	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, models.MessageID("5"), msgs[0].ID)
	assert.Equal(t, models.MessageID("m-6"), msgs[1].ID)
}

func TestClient_PostMessage(t *testing.T) {
	b, srv := newBackend(t)
	c := newTestClient(srv)

	created, err := c.PostMessage(context.Background(), "ev1", models.SendMessageData{Content: "hello", ClientId: "c1"})

	require.NoError(t, err)
	assert.Equal(t, models.MessageID("7"), created.ID)
	assert.Equal(t, "c1", created.ClientId)
	assert.Equal(t, models.SendMessageData{Content: "hello", ClientId: "c1"}, b.lastPosted.Load())
}

func TestClient_DeleteAndMarkRead(t *testing.T) {
	b, srv := newBackend(t)
	c := newTestClient(srv)
	ctx := context.Background()

	require.NoError(t, c.DeleteMessage(ctx, "ev1", "42"))
	require.NoError(t, c.MarkRead(ctx, "ev1", "43"))

	assert.Equal(t, "42", b.lastDeleted.Load())
	assert.Equal(t, "/api/events/ev1/messages/43/read", b.lastMarkedURL.Load())
}

func TestClient_FetchPresence(t *testing.T) {
	_, srv := newBackend(t)
	c := newTestClient(srv)

	users, err := c.FetchPresence(context.Background(), "ev1")

	require.NoError(t, err)
	assert.Equal(t, []models.PresenceData{{UserId: "bob", UserName: "Bob", IsOnline: true}}, users)
}
