package newchat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripy/llm"
)

func TestHubRegisterBroadcastUnregister(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()
	defer hub.Stop()

	client := &Client{ID: "c1", TripID: "trip1", Send: make(chan Frame, 10)}
	other := &Client{ID: "c2", TripID: "trip2", Send: make(chan Frame, 10)}
	require.True(t, hub.Register(client))
	require.True(t, hub.Register(other))

	msg := Frame{Type: FrameTripUpdated, TripID: "trip1", Version: 3}
	hub.Broadcast("trip1", msg)

	select {
	case got := <-client.Send:
		assert.Equal(t, msg, got)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
	assert.Empty(t, other.Send)

	hub.Unregister(client)
	assert.Eventually(t, func() bool { return hub.Active() == 1 }, time.Second, 5*time.Millisecond)
	_, open := <-client.Send
	assert.False(t, open)

	// unregistering twice is harmless
	hub.Unregister(client)
	assert.Equal(t, 1, hub.Active())
}

func TestHubDropsFramesForFullBuffers(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()
	defer hub.Stop()

	slow := &Client{ID: "slow", TripID: "t", Send: make(chan Frame, 1)}
	require.True(t, hub.Register(slow))
	hub.Broadcast("t", Frame{Type: FrameTripUpdated, Version: 1})
	hub.Broadcast("t", Frame{Type: FrameTripUpdated, Version: 2})

	assert.Eventually(t, func() bool { return len(slow.Send) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(1), (<-slow.Send).Version)
	assert.Equal(t, 1, hub.Active())
}

func TestHubRegisterAfterStop(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()
	hub.Stop()
	assert.False(t, hub.Register(&Client{TripID: "t", Send: make(chan Frame)}))
}

func TestHubStopWithoutRun(t *testing.T) {
	hub := NewHub(nil)
	stopped := make(chan struct{})
	go func() {
		hub.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked on a hub that never ran")
	}
	hub.Run() // returns at once
	assert.False(t, hub.Register(&Client{TripID: "t", Send: make(chan Frame)}))
}

func TestHistoryEvictsOldestPairs(t *testing.T) {
	h := newHistory(2)
	for _, s := range []string{"q1", "a1", "q2", "a2", "q3", "a3"} {
		role := llm.RoleUser
		if s[0] == 'a' {
			role = llm.RoleAssistant
		}
		h.add(role, s)
	}
	got := h.messages()
	require.Len(t, got, 4)
	assert.Equal(t, "q2", got[0].Content)
	assert.Equal(t, "a3", got[3].Content)
	assert.Equal(t, llm.RoleAssistant, got[3].Role)
	assert.Equal(t, 4, h.len())
}
