package chat

import (
	"time"

	"event-chat/internal/models"
)

const DefaultEventDuration = 2 * time.Hour

type GateState int

const (
	NotEligible GateState = iota
	Eligible
)

func (s GateState) String() string {
	if s == Eligible {
		return "eligible"
	}
	return "not_eligible"
}

type Transition int

const (
	TransitionNone Transition = iota
	TransitionActivate
	TransitionDeactivate
)

// IsChatEligible reports whether the viewer owns the event or attends it.
func IsChatEligible(viewerID string, event models.Event, attendees []models.Attendee) bool {
	if viewerID == "" {
		return false
	}
	if event.OwnerId == viewerID {
		return true
	}
	for _, a := range attendees {
		if a.UserId == viewerID {
			return true
		}
	}
	return false
}

// EffectiveEnd is the event's end time, or its start plus defaultDuration
// when no end is recorded. ok is false for an event with neither, which
// never ends.
func EffectiveEnd(event models.Event, defaultDuration time.Duration) (end time.Time, ok bool) {
	if event.EndsAt != nil && !event.EndsAt.IsZero() {
		return *event.EndsAt, true
	}
	if event.StartsAt.IsZero() {
		return time.Time{}, false
	}
	if defaultDuration <= 0 {
		defaultDuration = DefaultEventDuration
	}
	return event.StartsAt.Add(defaultDuration), true
}

// Gate tracks chat eligibility for one event view.
type Gate struct {
	state         GateState
	eventDuration time.Duration
}

func NewGate(eventDuration time.Duration) *Gate {
	return &Gate{eventDuration: eventDuration}
}

// Evaluate recomputes eligibility and returns the transition it caused.
func (g *Gate) Evaluate(viewerID string, event models.Event, attendees []models.Attendee) Transition {
	next := NotEligible
	if IsChatEligible(viewerID, event, attendees) {
		next = Eligible
	}
	prev := g.state
	g.state = next
	switch {
	case prev == NotEligible && next == Eligible:
		return TransitionActivate
	case prev == Eligible && next == NotEligible:
		return TransitionDeactivate
	}
	return TransitionNone
}

func (g *Gate) State() GateState {
	return g.state
}

// CanSend is false before eligibility and once the event has ended. Reading
// history stays allowed after the end.
func (g *Gate) CanSend(event models.Event, now time.Time) bool {
	if g.state != Eligible {
		return false
	}
	end, ok := EffectiveEnd(event, g.eventDuration)
	return !ok || now.Before(end)
}

// OpState tags an optimistic membership change.
type OpState string

const (
	OpIdle       OpState = ""
	OpPending    OpState = "pending"
	OpCommitted  OpState = "committed"
	OpRolledBack OpState = "rolled_back"
)

type MembershipOp struct {
	Kind  string // "join" or "leave"
	State OpState
	Err   string
}
