package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"event-chat/internal/chat"
	"event-chat/internal/models"
)

// printer writes view changes to a terminal. Render runs on the session
// goroutine, Notice and Who on the input goroutine.
type printer struct {
	mu       sync.Mutex
	w        io.Writer
	viewerID string

	status    string
	typing    string
	shown     map[string]string // message key -> last rendered state
	lastError string
}

func newPrinter(w io.Writer, viewerID string) *printer {
	return &printer{w: w, viewerID: viewerID, shown: make(map[string]string)}
}

func (p *printer) Render(v chat.View) {
	p.mu.Lock()
	defer p.mu.Unlock()

	status := statusLine(v)
	if status != p.status {
		p.status = status
		fmt.Fprintf(p.w, "-- %s\n", status)
	}

	for _, m := range v.Messages {
		key := string(m.ID)
		if key == "" {
			key = "local:" + m.ClientId
		}
		state := messageState(m)
		if p.shown[key] == state {
			continue
		}
		if m.ClientId != "" && m.ID != "" {
			// committed optimistic messages were already printed as pending
			if _, ok := p.shown["local:"+m.ClientId]; ok {
				delete(p.shown, "local:"+m.ClientId)
				p.shown[key] = state
				continue
			}
		}
		p.shown[key] = state
		fmt.Fprintln(p.w, formatMessage(m))
	}

	typing := typingLine(v.Typing)
	if typing != p.typing {
		p.typing = typing
		if typing != "" {
			fmt.Fprintf(p.w, "   %s\n", typing)
		}
	}

	if v.LastError != "" && v.LastError != p.lastError {
		fmt.Fprintf(p.w, "!! %s\n", v.LastError)
	}
	p.lastError = v.LastError
}

func (p *printer) Notice(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "** %s\n", msg)
}

func (p *printer) Who(v chat.View) {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]string, 0, len(v.Online))
	for _, e := range v.Online {
		names = append(names, e.DisplayName)
	}
	if len(names) == 0 {
		fmt.Fprintln(p.w, "** nobody else is online")
		return
	}
	fmt.Fprintf(p.w, "** online: %s\n", strings.Join(names, ", "))
}

func statusLine(v chat.View) string {
	switch {
	case v.AuthFailed:
		return "session expired, please sign in again"
	case !v.Eligible:
		return "not a member of this event"
	case v.Reconnecting:
		return fmt.Sprintf("reconnecting (attempt %d, retry in %s)", v.ReconnectAttempt, v.NextRetry)
	case !v.CanSend && v.Status == chat.Open:
		return "connected (read-only, event has ended)"
	case v.Status == chat.Open:
		return "connected"
	}
	return v.Status.String()
}

func messageState(m models.ChatMessage) string {
	switch {
	case m.IsDeleted:
		return "deleted"
	case m.Delivery != models.DeliveryCommitted:
		return string(m.Delivery)
	}
	return "ok"
}

func formatMessage(m models.ChatMessage) string {
	ts := m.CreatedAt.Local().Format("15:04")
	id := string(m.ID)
	if id == "" {
		id = m.ClientId
	}
	switch {
	case m.IsDeleted:
		return fmt.Sprintf("[%s] %s: (message deleted) #%s", ts, m.AuthorName, id)
	case m.Delivery == models.DeliveryPending:
		return fmt.Sprintf("[%s] %s: %s (sending...)", ts, m.AuthorName, m.Content)
	case m.Delivery == models.DeliveryRolledBack:
		return fmt.Sprintf("[%s] %s: %s (failed, /retry %s)", ts, m.AuthorName, m.Content, m.ClientId)
	}
	return fmt.Sprintf("[%s] %s: %s #%s", ts, m.AuthorName, m.Content, id)
}

func typingLine(entries []chat.TypingEntry) string {
	switch len(entries) {
	case 0:
		return ""
	case 1:
		return entries[0].DisplayName + " is typing..."
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.DisplayName
	}
	return strings.Join(names, ", ") + " are typing..."
}
