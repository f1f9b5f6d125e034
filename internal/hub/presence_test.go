package hub

import (
	"context"
	"fmt"
	"testing"

	"github.com/ageniuscoder/relaychat/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresenceBroadcastsOnlyOnEdges(t *testing.T) {
	repo := newFakeRepo()
	repo.peers[1] = []store.Peer{{ID: 2, Username: "bob"}}
	out := &sink{}
	p := NewPresence(repo, out, testLogger())

	first := p.OnConnect(context.Background(), 1, "d1")
	require.True(t, first)
	require.Len(t, out.toUser(2, EvPresence), 1)
	assert.Equal(t, "online", out.toUser(2, EvPresence)[0].ev.Status)
	assert.True(t, repo.online[1])

	// second device: no new broadcast, but a snapshot for the device
	out.reset()
	first = p.OnConnect(context.Background(), 1, "d2")
	assert.False(t, first)
	assert.Empty(t, out.toUser(2, EvPresence))
	require.Len(t, out.ofType(EvPresenceInitial), 1)
	assert.Equal(t, "d2", out.ofType(EvPresenceInitial)[0].connID)

	out.reset()
	last := p.OnDisconnect(context.Background(), 1)
	assert.False(t, last)
	assert.Empty(t, out.pushes)
	assert.True(t, p.IsOnline(1))

	last = p.OnDisconnect(context.Background(), 1)
	assert.True(t, last)
	require.Len(t, out.toUser(2, EvPresence), 1)
	assert.Equal(t, "offline", out.toUser(2, EvPresence)[0].ev.Status)
	assert.False(t, p.IsOnline(1))
	assert.False(t, repo.online[1])
}

func TestPresenceManyDevicesOneOfflineBroadcast(t *testing.T) {
	repo := newFakeRepo()
	repo.peers[1] = []store.Peer{{ID: 2}}
	out := &sink{}
	p := NewPresence(repo, out, testLogger())

	const n = 5
	for i := 0; i < n; i++ {
		p.OnConnect(context.Background(), 1, fmt.Sprintf("d%d", i))
	}
	out.reset()
	for i := 0; i < n; i++ {
		p.OnDisconnect(context.Background(), 1)
	}
	broadcasts := out.toUser(2, EvPresence)
	require.Len(t, broadcasts, 1)
	assert.Equal(t, "offline", broadcasts[0].ev.Status)
}

func TestPresenceDisconnectWithoutConnect(t *testing.T) {
	p := NewPresence(newFakeRepo(), &sink{}, testLogger())
	assert.False(t, p.OnDisconnect(context.Background(), 1))
}

func TestPresenceSnapshotMergesLiveState(t *testing.T) {
	repo := newFakeRepo()
	repo.peers[1] = []store.Peer{
		{ID: 2, Username: "bob", LastActive: 111},
		{ID: 3, Username: "carol", LastActive: 222},
	}
	repo.peers[2] = nil
	out := &sink{}
	p := NewPresence(repo, out, testLogger())

	// bob is live before alice connects
	p.OnConnect(context.Background(), 2, "b1")
	out.reset()
	p.OnConnect(context.Background(), 1, "a1")

	snaps := out.ofType(EvPresenceInitial)
	require.Len(t, snaps, 1)
	peers := snaps[0].ev.Peers
	require.Len(t, peers, 2)

	byID := make(map[int64]PresencePeer)
	for _, pe := range peers {
		byID[pe.UserID] = pe
	}
	assert.Equal(t, "online", byID[2].Status)
	assert.Zero(t, byID[2].LastSeen)
	assert.Equal(t, "offline", byID[3].Status)
	assert.Equal(t, int64(222), byID[3].LastSeen)
}

func TestTypingFansToOtherMembersOnly(t *testing.T) {
	repo := newFakeRepo()
	repo.addConversation(10, 1, 2, 3)
	out := &sink{}
	p := NewPresence(repo, out, testLogger())

	p.SetTyping(context.Background(), 1, 10, true)

	require.Len(t, out.ofType(EvTyping), 2)
	assert.Empty(t, out.toUser(1, EvTyping))
	for _, rec := range out.ofType(EvTyping) {
		assert.Equal(t, int64(10), rec.ev.ConversationID)
		assert.Equal(t, int64(1), rec.ev.SenderID)
	}

	out.reset()
	p.SetTyping(context.Background(), 1, 10, false)
	assert.Len(t, out.ofType(EvTypingStopped), 2)
}

func TestTypingBadConversationDroppedSilently(t *testing.T) {
	out := &sink{}
	p := NewPresence(newFakeRepo(), out, testLogger())
	p.SetTyping(context.Background(), 1, 0, true)
	p.SetTyping(context.Background(), 1, -4, true)
	assert.Empty(t, out.pushes)
}

func TestOnlineUsers(t *testing.T) {
	p := NewPresence(newFakeRepo(), &sink{}, testLogger())
	p.OnConnect(context.Background(), 1, "a")
	p.OnConnect(context.Background(), 2, "b")
	assert.ElementsMatch(t, []int64{1, 2}, p.OnlineUsers())
}
