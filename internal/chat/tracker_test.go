package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_TypingExpiresAfterWindow(t *testing.T) {
	const window = 3 * time.Second
	now := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	tr := NewTracker("me", window)

	require.True(t, tr.MarkTyping("bob", "Bob", now))

	assert.Zero(t, tr.TickExpiry(now.Add(window-time.Millisecond)))
	assert.True(t, tr.IsTyping("bob"))

	assert.Equal(t, 1, tr.TickExpiry(now.Add(window+time.Millisecond)))
	assert.False(t, tr.IsTyping("bob"))
}

func TestTracker_RefreshExtendsExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	tr := NewTracker("me", 3*time.Second)

	tr.MarkTyping("bob", "Bob", now)
	tr.MarkTyping("bob", "Bob", now.Add(2*time.Second))

	assert.Zero(t, tr.TickExpiry(now.Add(4*time.Second)))
	assert.Equal(t, 1, tr.TypingCount())
}

func TestTracker_IgnoresSelf(t *testing.T) {
	tr := NewTracker("me", 0)
	now := time.Now()

	assert.False(t, tr.MarkTyping("me", "Me", now))
	assert.False(t, tr.SetOnline("me", "Me", true))
	assert.False(t, tr.MarkTyping("", "", now))

	assert.Empty(t, tr.Typing())
	assert.Empty(t, tr.Online())
}

func TestTracker_OfflineClearsTyping(t *testing.T) {
	tr := NewTracker("me", 0)
	tr.SetOnline("bob", "Bob", true)
	tr.MarkTyping("bob", "Bob", time.Now())

	assert.True(t, tr.SetOnline("bob", "", false))
	assert.False(t, tr.IsTyping("bob"))
	assert.Empty(t, tr.Online())
}

func TestTracker_OnlineSortedAndDeduplicated(t *testing.T) {
	tr := NewTracker("me", 0)
	tr.SetOnline("u2", "Zed", true)
	tr.SetOnline("u1", "Amy", true)
	assert.False(t, tr.SetOnline("u1", "Amy", true))

	online := tr.Online()
	require.Len(t, online, 2)
	assert.Equal(t, "Amy", online[0].DisplayName)
	assert.Equal(t, "Zed", online[1].DisplayName)

	tr.Clear()
	assert.Empty(t, tr.Online())
}

func TestTypingThrottle(t *testing.T) {
	now := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	th := NewTypingThrottle(2 * time.Second)

	assert.True(t, th.Allow(now))
	assert.False(t, th.Allow(now.Add(time.Second)))
	assert.True(t, th.Allow(now.Add(2*time.Second)))

	th.Reset()
	assert.True(t, th.Allow(now.Add(2*time.Second+time.Millisecond)))
}
