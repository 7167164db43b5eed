package chat

import (
	"sort"
	"time"
)

const DefaultTypingWindow = 3 * time.Second

type TypingEntry struct {
	UserId      string
	DisplayName string
	ExpiresAt   time.Time
}

type PresenceEntry struct {
	UserId      string
	DisplayName string
	IsOnline    bool
}

// Tracker keeps the short-lived typing set and the online set for other
// participants. The viewer's own signals are never recorded.
type Tracker struct {
	selfID   string
	window   time.Duration
	typing   map[string]TypingEntry
	presence map[string]PresenceEntry
}

func NewTracker(selfID string, window time.Duration) *Tracker {
	if window <= 0 {
		window = DefaultTypingWindow
	}
	return &Tracker{
		selfID:   selfID,
		window:   window,
		typing:   make(map[string]TypingEntry),
		presence: make(map[string]PresenceEntry),
	}
}

// MarkTyping inserts or refreshes a typing entry expiring window after now.
func (t *Tracker) MarkTyping(userID, displayName string, now time.Time) bool {
	if userID == "" || userID == t.selfID {
		return false
	}
	t.typing[userID] = TypingEntry{
		UserId:      userID,
		DisplayName: displayName,
		ExpiresAt:   now.Add(t.window),
	}
	return true
}

// StopTyping drops a user's typing entry early, e.g. once their message lands.
func (t *Tracker) StopTyping(userID string) bool {
	if _, ok := t.typing[userID]; !ok {
		return false
	}
	delete(t.typing, userID)
	return true
}

// TickExpiry evicts entries whose expiry is before now and returns how many
// were evicted.
func (t *Tracker) TickExpiry(now time.Time) int {
	n := 0
	for id, e := range t.typing {
		if now.After(e.ExpiresAt) {
			delete(t.typing, id)
			n++
		}
	}
	return n
}

func (t *Tracker) SetOnline(userID, displayName string, isOnline bool) bool {
	if userID == "" || userID == t.selfID {
		return false
	}
	cur, ok := t.presence[userID]
	if displayName == "" {
		displayName = cur.DisplayName
	}
	if ok && cur.IsOnline == isOnline && cur.DisplayName == displayName {
		return false
	}
	t.presence[userID] = PresenceEntry{UserId: userID, DisplayName: displayName, IsOnline: isOnline}
	if !isOnline {
		delete(t.typing, userID)
	}
	return true
}

func (t *Tracker) IsTyping(userID string) bool {
	_, ok := t.typing[userID]
	return ok
}

// Typing returns current typing entries ordered by display name.
func (t *Tracker) Typing() []TypingEntry {
	out := make([]TypingEntry, 0, len(t.typing))
	for _, e := range t.typing {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayName == out[j].DisplayName {
			return out[i].UserId < out[j].UserId
		}
		return out[i].DisplayName < out[j].DisplayName
	})
	return out
}

// Online returns the users currently online, ordered by display name.
func (t *Tracker) Online() []PresenceEntry {
	out := make([]PresenceEntry, 0, len(t.presence))
	for _, e := range t.presence {
		if e.IsOnline {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayName == out[j].DisplayName {
			return out[i].UserId < out[j].UserId
		}
		return out[i].DisplayName < out[j].DisplayName
	})
	return out
}

func (t *Tracker) TypingCount() int {
	return len(t.typing)
}

func (t *Tracker) Clear() {
	t.typing = make(map[string]TypingEntry)
	t.presence = make(map[string]PresenceEntry)
}

const DefaultTypingInterval = 2 * time.Second

// TypingThrottle limits outbound typing signals to one per interval.
type TypingThrottle struct {
	interval time.Duration
	lastSent time.Time
}

func NewTypingThrottle(interval time.Duration) *TypingThrottle {
	if interval <= 0 {
		interval = DefaultTypingInterval
	}
	return &TypingThrottle{interval: interval}
}

// Allow reports whether a typing signal may go out now, and records it.
func (t *TypingThrottle) Allow(now time.Time) bool {
	if !t.lastSent.IsZero() && now.Sub(t.lastSent) < t.interval {
		return false
	}
	t.lastSent = now
	return true
}

// Reset lets the next keystroke signal immediately, e.g. after a send.
func (t *TypingThrottle) Reset() {
	t.lastSent = time.Time{}
}
