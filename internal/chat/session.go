package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"event-chat/internal/models"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

const (
	DefaultReadDebounce   = time.Second
	DefaultPollInterval   = 10 * time.Second
	DefaultTypingTick     = time.Second
	DefaultRequestTimeout = 10 * time.Second
)

// Fallback is the HTTP side of the chat, used before the connection opens
// and whenever it is unavailable.
type Fallback interface {
	FetchMessages(ctx context.Context, eventID string) ([]models.ChatMessage, error)
	PostMessage(ctx context.Context, eventID string, msg models.SendMessageData) (models.ChatMessage, error)
	DeleteMessage(ctx context.Context, eventID string, id models.MessageID) error
	FetchPresence(ctx context.Context, eventID string) ([]models.PresenceData, error)
	MarkRead(ctx context.Context, eventID string, id models.MessageID) error
}

// Membership fetches and changes the viewer's membership of an event.
type Membership interface {
	FetchEvent(ctx context.Context, eventID string) (models.Event, error)
	FetchAttendees(ctx context.Context, eventID string) ([]models.Attendee, error)
	Join(ctx context.Context, eventID string) error
	Leave(ctx context.Context, eventID string) error
}

// isUnauthorized reports whether err is a terminal credential rejection.
// Collaborators signal it with an error exposing Unauthorized() bool.
func isUnauthorized(err error) bool {
	var u interface{ Unauthorized() bool }
	return errors.As(err, &u) && u.Unauthorized()
}

type Viewer struct {
	ID          string
	DisplayName string
	AvatarURL   string
}

type Options struct {
	EventID  string
	Viewer   Viewer
	Token    string
	Endpoint string

	PingInterval   time.Duration
	Backoff        Backoff
	TypingWindow   time.Duration
	TypingTick     time.Duration
	TypingInterval time.Duration
	ReadDebounce   time.Duration
	// Zero PollInterval uses the default; negative disables polling.
	PollInterval   time.Duration
	EventDuration  time.Duration
	RequestTimeout time.Duration

	Clock       Clock
	Logger      *slog.Logger
	NewClientID func() string

	// OnChange is called on the session goroutine after every step that
	// changed the view. It must not call back into the session.
	OnChange func(View)
}

// View is the read model exposed to the UI.
type View struct {
	EventID          string
	Status           Status
	ReconnectAttempt int
	NextRetry        time.Duration
	Reconnecting     bool
	AuthFailed       bool
	Eligible         bool
	CanSend          bool
	Messages         []models.ChatMessage
	Typing           []TypingEntry
	Online           []PresenceEntry
	Queued           int
	Membership       MembershipOp
	LastError        string
}

// Session owns every chat component for one event view. All state is
// mutated on the goroutine running Run; public methods post work to it.
type Session struct {
	opts       Options
	transport  Transport
	fallback   Fallback
	membership Membership
	log        *slog.Logger
	clock      Clock

	actions   chan func()
	done      chan struct{}
	stopping  bool
	closeOnce sync.Once
	ctx       context.Context
	cancel    context.CancelFunc

	gate      *Gate
	event     models.Event
	attendees []models.Attendee

	// activation is bumped on every activate/deactivate so late async
	// results from a previous activation are dropped.
	activation uint64
	active     bool
	manager    *Manager
	reconciler *Reconciler
	queue      *OutboundQueue
	tracker    *Tracker
	throttle   *TypingThrottle

	typingTimer Timer
	readTimer   Timer
	pollTimer   Timer

	// client ids with an HTTP retry in flight
	retrying map[string]struct{}

	panelVisible bool
	authFailed   bool
	membershipOp MembershipOp
	lastError    string
	dirty        bool
}

func NewSession(opts Options, transport Transport, fallback Fallback, membership Membership) *Session {
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.NewClientID == nil {
		opts.NewClientID = uuid.NewString
	}
	if opts.ReadDebounce <= 0 {
		opts.ReadDebounce = DefaultReadDebounce
	}
	if opts.PollInterval == 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.TypingTick <= 0 {
		opts.TypingTick = DefaultTypingTick
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	s := &Session{
		opts:       opts,
		transport:  transport,
		fallback:   fallback,
		membership: membership,
		log:        opts.Logger.With("event", opts.EventID),
		actions:    make(chan func(), 256),
		done:       make(chan struct{}),
		gate:       NewGate(opts.EventDuration),
	}
	s.clock = loopClock{base: opts.Clock, post: s.post}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// Run processes session work until ctx is done or Close is called.
func (s *Session) Run(ctx context.Context) {
	s.log.Info("[SESSION] Starting session loop")
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			s.shutdown("context done")
			return
		case f := <-s.actions:
			f()
			s.publish()
			if s.stopping {
				return
			}
		}
	}
}

func (s *Session) post(f func()) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.actions <- f:
		return true
	case <-s.done:
		return false
	}
}

// call runs f on the session goroutine and waits for it.
func (s *Session) call(f func()) error {
	finished := make(chan struct{})
	if !s.post(func() { f(); close(finished) }) {
		return ErrClosed
	}
	select {
	case <-finished:
		return nil
	case <-s.done:
		select {
		case <-finished:
			return nil
		default:
		}
		return ErrClosed
	}
}

// Close tears the session down: every timer is stopped and the connection
// is closed deliberately. It waits for the loop to exit.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.post(func() {
			s.shutdown("session closed")
			s.stopping = true
		})
	})
	<-s.done
	return nil
}

func (s *Session) shutdown(reason string) {
	if s.active {
		s.deactivate(reason)
	}
	s.cancel()
	s.log.Info("[SESSION] Session closed", "reason", reason)
}

func (s *Session) changed() {
	s.dirty = true
}

func (s *Session) publish() {
	if !s.dirty {
		return
	}
	s.dirty = false
	if s.opts.OnChange != nil {
		s.opts.OnChange(s.view())
	}
}

// Membership

// UpdateMembership feeds fresh event and attendee data to the gate,
// activating or tearing down the chat as eligibility changes.
func (s *Session) UpdateMembership(event models.Event, attendees []models.Attendee) error {
	return s.call(func() { s.applyMembership(event, attendees) })
}

// Refresh fetches event and attendees and applies them.
func (s *Session) Refresh(ctx context.Context) error {
	event, err := s.membership.FetchEvent(ctx, s.opts.EventID)
	if err != nil {
		return err
	}
	attendees, err := s.membership.FetchAttendees(ctx, s.opts.EventID)
	if err != nil {
		return err
	}
	return s.UpdateMembership(event, attendees)
}

func (s *Session) applyMembership(event models.Event, attendees []models.Attendee) {
	s.event = event
	s.attendees = append([]models.Attendee(nil), attendees...)
	switch s.gate.Evaluate(s.opts.Viewer.ID, event, attendees) {
	case TransitionActivate:
		s.activate()
	case TransitionDeactivate:
		s.deactivate("no longer a member")
	}
	s.changed()
}

// Join joins the event optimistically: the viewer is added to the attendee
// list at once and removed again if the server refuses.
func (s *Session) Join(ctx context.Context) error {
	return s.changeMembership(ctx, "join", s.membership.Join)
}

// Leave leaves the event optimistically, tearing the chat down at once.
func (s *Session) Leave(ctx context.Context) error {
	return s.changeMembership(ctx, "leave", s.membership.Leave)
}

func (s *Session) changeMembership(ctx context.Context, kind string, op func(context.Context, string) error) error {
	var before []models.Attendee
	err := s.call(func() {
		before = append([]models.Attendee(nil), s.attendees...)
		next := s.withoutViewer(s.attendees)
		if kind == "join" {
			next = append(next, models.Attendee{
				UserId:   s.opts.Viewer.ID,
				UserName: s.opts.Viewer.DisplayName,
				Avatar:   s.opts.Viewer.AvatarURL,
			})
		}
		s.membershipOp = MembershipOp{Kind: kind, State: OpPending}
		s.applyMembership(s.event, next)
	})
	if err != nil {
		return err
	}

	if opErr := op(ctx, s.opts.EventID); opErr != nil {
		s.log.Warn("[SESSION] Membership change failed, rolling back", "op", kind, "error", opErr)
		if err := s.call(func() {
			s.membershipOp = MembershipOp{Kind: kind, State: OpRolledBack, Err: opErr.Error()}
			s.applyMembership(s.event, before)
		}); err != nil {
			return err
		}
		return opErr
	}

	if err := s.call(func() {
		s.membershipOp = MembershipOp{Kind: kind, State: OpCommitted}
		s.changed()
	}); err != nil {
		return err
	}
	if err := s.Refresh(ctx); err != nil {
		s.log.Debug("[SESSION] Refresh after membership change failed", "op", kind, "error", err)
	}
	return nil
}

func (s *Session) withoutViewer(attendees []models.Attendee) []models.Attendee {
	out := make([]models.Attendee, 0, len(attendees))
	for _, a := range attendees {
		if a.UserId != s.opts.Viewer.ID {
			out = append(out, a)
		}
	}
	return out
}

func (s *Session) activate() {
	s.activation++
	s.active = true
	s.authFailed = false
	s.lastError = ""
	s.reconciler = NewReconciler(s.opts.Viewer.ID)
	s.retrying = make(map[string]struct{})
	s.queue = NewOutboundQueue()
	s.tracker = NewTracker(s.opts.Viewer.ID, s.opts.TypingWindow)
	s.throttle = NewTypingThrottle(s.opts.TypingInterval)
	s.manager = NewManager(ManagerConfig{
		Endpoint:     s.opts.Endpoint,
		PingInterval: s.opts.PingInterval,
		Backoff:      s.opts.Backoff,
	}, s.transport, s.clock, sessionHandler{s},
		WithQueue(s.queue),
		WithDispatch(s.post),
		WithManagerLogger(s.log),
	)
	s.log.Info("[SESSION] Chat activated", "viewer", s.opts.Viewer.ID)

	if err := s.manager.Connect(s.ctx, s.opts.EventID, s.opts.Token); err != nil {
		s.log.Error("[SESSION] Failed to connect", "error", err)
	}
	s.loadInitial()
	s.schedulePoll()
}

func (s *Session) deactivate(reason string) {
	s.activation++
	s.active = false
	stopTimer(&s.typingTimer)
	stopTimer(&s.readTimer)
	stopTimer(&s.pollTimer)
	if s.manager != nil {
		s.manager.Disconnect(reason)
	}
	s.manager = nil
	s.reconciler = nil
	s.queue = nil
	s.tracker = nil
	s.throttle = nil
	s.log.Info("[SESSION] Chat deactivated", "reason", reason)
	s.changed()
}

// async runs fn off the loop and hands its result back to it, unless the
// activation changed in between.
func (s *Session) async(fn func(ctx context.Context) error, then func(err error)) {
	act := s.activation
	go func() {
		ctx, cancel := context.WithTimeout(s.ctx, s.opts.RequestTimeout)
		defer cancel()
		err := fn(ctx)
		s.post(func() {
			if act != s.activation {
				return
			}
			then(err)
		})
	}()
}

// handleFallbackErr reports whether err was non-nil. Unauthorized responses
// are terminal; everything else is best-effort and only logged.
func (s *Session) handleFallbackErr(op string, err error) bool {
	if err == nil {
		return false
	}
	if isUnauthorized(err) {
		s.log.Warn("[SESSION] Fallback rejected credentials", "op", op, "error", err)
		s.onAuthFailed()
		return true
	}
	s.log.Debug("[SESSION] Fallback request failed", "op", op, "error", err)
	return true
}

func (s *Session) onAuthFailed() {
	if s.authFailed {
		return
	}
	s.authFailed = true
	stopTimer(&s.pollTimer)
	if s.manager != nil {
		s.manager.Disconnect("unauthorized")
	}
	s.changed()
}

func (s *Session) loadInitial() {
	var msgs []models.ChatMessage
	s.async(func(ctx context.Context) error {
		var err error
		msgs, err = s.fallback.FetchMessages(ctx, s.opts.EventID)
		return err
	}, func(err error) {
		if s.handleFallbackErr("fetch messages", err) {
			return
		}
		s.applySnapshot(msgs)
	})

	var users []models.PresenceData
	s.async(func(ctx context.Context) error {
		var err error
		users, err = s.fallback.FetchPresence(ctx, s.opts.EventID)
		return err
	}, func(err error) {
		if s.handleFallbackErr("fetch presence", err) {
			return
		}
		for _, u := range users {
			if s.tracker.SetOnline(u.UserId, u.UserName, u.IsOnline) {
				s.changed()
			}
		}
	})
}

// schedulePoll refreshes the message list over HTTP while the connection is
// not open. Results go through the same reconciler entry point as pushes.
func (s *Session) schedulePoll() {
	if s.opts.PollInterval < 0 {
		return
	}
	stopTimer(&s.pollTimer)
	s.pollTimer = s.clock.AfterFunc(s.opts.PollInterval, func() {
		s.pollTimer = nil
		if !s.active || s.authFailed {
			return
		}
		if s.manager.State().Status != Open {
			var msgs []models.ChatMessage
			s.async(func(ctx context.Context) error {
				var err error
				msgs, err = s.fallback.FetchMessages(ctx, s.opts.EventID)
				return err
			}, func(err error) {
				if s.handleFallbackErr("poll messages", err) {
					return
				}
				s.applySnapshot(msgs)
			})
		}
		s.schedulePoll()
	})
}

func (s *Session) applySnapshot(msgs []models.ChatMessage) {
	if n := s.reconciler.ApplySnapshot(msgs); n > 0 {
		s.scheduleReadMarks()
	}
	s.changed()
}

// rollBackUnsent fails pending messages that already left the queue. Once
// the connection drops their echo can no longer arrive on it, so they are
// handed back to the viewer for a retry. A later snapshot that carries the
// same client id still commits them.
func (s *Session) rollBackUnsent() {
	if !s.active || s.reconciler == nil {
		return
	}
	queued := make(map[string]struct{})
	for _, p := range s.queue.Items() {
		if d, ok := p.Data.(models.SendMessageData); ok {
			queued[d.ClientId] = struct{}{}
		}
	}
	for _, clientID := range s.reconciler.PendingClientIDs() {
		if _, ok := queued[clientID]; ok {
			continue
		}
		if _, ok := s.retrying[clientID]; ok {
			continue
		}
		if s.reconciler.RollBack(clientID) {
			s.log.Info("[SESSION] Unacknowledged message rolled back", "client_id", clientID)
		}
	}
}

// Inbound frames

type sessionHandler struct{ s *Session }

func (h sessionHandler) StatusChanged(st ConnectionState) {
	if st.Status != Open {
		h.s.rollBackUnsent()
	}
	h.s.changed()
}

func (h sessionHandler) Message(data []byte) { h.s.handleFrame(data) }

func (h sessionHandler) AuthFailed(code int, reason string) {
	h.s.log.Warn("[SESSION] Connection rejected credentials", "code", code, "reason", reason)
	h.s.onAuthFailed()
}

func (s *Session) handleFrame(data []byte) {
	if !s.active {
		return
	}
	var env models.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.log.Warn("[SESSION] Error unmarshaling frame", "error", err)
		return
	}
	if err := s.dispatchFrame(env); err != nil {
		s.log.Warn("[SESSION] Malformed frame", "type", env.Type, "error", err)
	}
}

func (s *Session) dispatchFrame(env models.Envelope) error {
	now := s.clock.Now()
	switch env.Type {
	case models.TypeInitialMessages:
		var d models.InitialMessagesData
		if err := decodeData(env, &d); err != nil {
			return err
		}
		s.applySnapshot(d.Messages)

	case models.TypeNewMessage:
		var m models.ChatMessage
		if err := decodeData(env, &m); err != nil {
			return err
		}
		if s.reconciler.ApplyIncoming(m) {
			s.tracker.StopTyping(m.AuthorId)
			s.scheduleReadMarks()
			s.changed()
		}

	case models.TypeMessageDeleted:
		var d models.MessageDeletedData
		if err := decodeData(env, &d); err != nil {
			return err
		}
		if s.reconciler.ApplyDeleted(d.MessageId) {
			s.changed()
		}

	case models.TypeTyping:
		var d models.TypingData
		if err := decodeData(env, &d); err != nil {
			return err
		}
		if s.tracker.MarkTyping(d.UserId, d.UserName, now) {
			s.ensureTypingTick()
			s.changed()
		}

	case models.TypePresenceUpdate:
		var d models.PresenceData
		if err := decodeData(env, &d); err != nil {
			return err
		}
		if s.tracker.SetOnline(d.UserId, d.UserName, d.IsOnline) {
			s.changed()
		}

	case models.TypeMessageRead:
		var d models.MessageReadData
		if err := decodeData(env, &d); err != nil {
			return err
		}
		if s.reconciler.ApplyReadReceipt(d.MessageId, d.UserId, d.ReadCount) {
			s.changed()
		}

	case models.TypeUserJoined, models.TypeUserLeft:
		var d models.UserData
		if err := decodeData(env, &d); err != nil {
			return err
		}
		if s.tracker.SetOnline(d.UserId, d.UserName, env.Type == models.TypeUserJoined) {
			s.changed()
		}

	case models.TypeError:
		var d models.ErrorData
		if err := decodeData(env, &d); err != nil {
			return err
		}
		s.lastError = d.Message
		if d.ClientId != "" {
			s.reconciler.RollBack(d.ClientId)
		}
		s.changed()

	default:
		s.log.Debug("[SESSION] Ignoring unknown frame type", "type", env.Type)
	}
	return nil
}

func decodeData(env models.Envelope, v interface{}) error {
	if len(env.Data) == 0 {
		return errors.New("missing data")
	}
	return json.Unmarshal(env.Data, v)
}

func (s *Session) ensureTypingTick() {
	if s.typingTimer != nil {
		return
	}
	s.typingTimer = s.clock.AfterFunc(s.opts.TypingTick, func() {
		s.typingTimer = nil
		if !s.active {
			return
		}
		if s.tracker.TickExpiry(s.clock.Now()) > 0 {
			s.changed()
		}
		if s.tracker.TypingCount() > 0 {
			s.ensureTypingTick()
		}
	})
}

// Read marks

// SetPanelVisible tells the session whether the chat is on screen. Read
// marks are only sent while it is.
func (s *Session) SetPanelVisible(visible bool) error {
	return s.call(func() {
		s.panelVisible = visible
		if visible {
			s.scheduleReadMarks()
		} else {
			stopTimer(&s.readTimer)
		}
	})
}

func (s *Session) scheduleReadMarks() {
	if !s.active || !s.panelVisible {
		return
	}
	stopTimer(&s.readTimer)
	s.readTimer = s.clock.AfterFunc(s.opts.ReadDebounce, func() {
		s.readTimer = nil
		if s.active && s.panelVisible {
			s.sendReadMarks()
		}
	})
}

func (s *Session) sendReadMarks() {
	ids := s.reconciler.TakeReadRequests()
	if len(ids) == 0 {
		return
	}
	if s.manager.State().Status == Open {
		for _, id := range ids {
			if _, err := s.manager.Send(models.Outbound{Type: models.TypeMarkRead, Data: models.MarkReadData{MessageId: id}}); err != nil {
				s.log.Debug("[SESSION] Read mark queued after send failure", "message", id, "error", err)
			}
		}
		return
	}
	for _, id := range ids {
		id := id
		s.async(func(ctx context.Context) error {
			return s.fallback.MarkRead(ctx, s.opts.EventID, id)
		}, func(err error) {
			if s.handleFallbackErr("mark read", err) {
				return
			}
			if s.reconciler.ApplyReadReceipt(id, "", nil) {
				s.changed()
			}
		})
	}
}

// Outbound

// SendMessage adds the message optimistically and sends it, or queues it
// when the connection is not open. A Queued result means the caller should
// tell the user it has not been delivered yet.
func (s *Session) SendMessage(content string) (SendResult, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Queued, ErrEmptyMessage
	}
	var (
		res     SendResult
		sendErr error
	)
	err := s.call(func() {
		if sendErr = s.checkCanSend(); sendErr != nil {
			return
		}
		clientID := s.opts.NewClientID()
		s.reconciler.AddPending(models.ChatMessage{
			ClientId:     clientID,
			AuthorId:     s.opts.Viewer.ID,
			AuthorName:   s.opts.Viewer.DisplayName,
			AuthorAvatar: s.opts.Viewer.AvatarURL,
			Content:      content,
			CreatedAt:    s.clock.Now(),
		})
		s.throttle.Reset()
		res, sendErr = s.manager.Send(models.Outbound{
			Type: models.TypeMessage,
			Data: models.SendMessageData{Content: content, ClientId: clientID},
		})
		s.changed()
	})
	if err != nil {
		return Queued, err
	}
	return res, sendErr
}

// NotifyTyping is called on every keystroke; at most one typing signal per
// interval is actually sent.
func (s *Session) NotifyTyping() error {
	var sendErr error
	err := s.call(func() {
		if s.checkCanSend() != nil {
			return
		}
		if !s.throttle.Allow(s.clock.Now()) {
			return
		}
		_, sendErr = s.manager.Send(models.Outbound{
			Type: models.TypeTypingSignal,
			Data: models.TypingData{UserId: s.opts.Viewer.ID, UserName: s.opts.Viewer.DisplayName},
		})
		s.changed()
	})
	if err != nil {
		return err
	}
	return sendErr
}

func (s *Session) checkCanSend() error {
	if !s.active {
		return ErrNotEligible
	}
	if s.authFailed {
		return ErrNotOpen
	}
	if !s.gate.CanSend(s.event, s.clock.Now()) {
		return ErrReadOnly
	}
	return nil
}

// RetryMessage resends a rolled back message over HTTP.
func (s *Session) RetryMessage(ctx context.Context, clientID string) error {
	var (
		msg      models.ChatMessage
		checkErr error
	)
	err := s.call(func() {
		if checkErr = s.checkCanSend(); checkErr != nil {
			return
		}
		m, ok := s.reconciler.Pending(clientID)
		if !ok || !s.reconciler.Retry(clientID) {
			checkErr = ErrUnknownMessage
			return
		}
		msg = m
		s.retrying[clientID] = struct{}{}
		s.changed()
	})
	if err != nil {
		return err
	}
	if checkErr != nil {
		return checkErr
	}

	created, postErr := s.fallback.PostMessage(ctx, s.opts.EventID, models.SendMessageData{Content: msg.Content, ClientId: clientID})
	err = s.call(func() {
		if s.reconciler == nil {
			return
		}
		delete(s.retrying, clientID)
		if postErr != nil {
			s.handleFallbackErr("post message", postErr)
			s.reconciler.RollBack(clientID)
		} else {
			s.reconciler.Commit(clientID, created)
		}
		s.changed()
	})
	if err != nil {
		return err
	}
	return postErr
}

// DeleteMessage deletes a message through the HTTP fallback and soft-deletes
// it locally once the server agrees.
func (s *Session) DeleteMessage(ctx context.Context, id models.MessageID) error {
	var checkErr error
	if err := s.call(func() {
		if !s.active {
			checkErr = ErrNotEligible
		}
	}); err != nil {
		return err
	}
	if checkErr != nil {
		return checkErr
	}
	if err := s.fallback.DeleteMessage(ctx, s.opts.EventID, id); err != nil {
		_ = s.call(func() { s.handleFallbackErr("delete message", err) })
		return err
	}
	return s.call(func() {
		if s.reconciler != nil && s.reconciler.ApplyDeleted(id) {
			s.changed()
		}
	})
}

// View returns a snapshot of the current read model.
func (s *Session) View() (View, error) {
	var v View
	err := s.call(func() { v = s.view() })
	return v, err
}

func (s *Session) view() View {
	v := View{
		EventID:    s.opts.EventID,
		AuthFailed: s.authFailed,
		Eligible:   s.gate.State() == Eligible,
		CanSend:    s.checkCanSend() == nil,
		Membership: s.membershipOp,
		LastError:  s.lastError,
	}
	if !s.active {
		return v
	}
	st := s.manager.State()
	v.Status = st.Status
	v.ReconnectAttempt = st.ReconnectAttempt
	v.NextRetry = st.NextRetry
	v.Reconnecting = st.Status != Open && st.ReconnectAttempt > 0 && !s.authFailed
	v.Messages = s.reconciler.Messages()
	v.Typing = s.tracker.Typing()
	v.Online = s.tracker.Online()
	v.Queued = s.queue.Len()
	return v
}
