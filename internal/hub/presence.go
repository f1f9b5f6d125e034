package hub

import (
	"context"

	"github.com/ageniuscoder/relaychat/internal/store"
	"go.uber.org/zap"
)

// Presence tracks per-user session counts and turns connect/disconnect into
// online/offline transitions. Only the 0→1 and 1→0 edges are persisted and
// broadcast; intermediate devices come and go silently.
type Presence struct {
	repo Repository
	push Pusher
	log  *zap.Logger

	sessions map[int64]int
}

func NewPresence(repo Repository, push Pusher, log *zap.Logger) *Presence {
	return &Presence{
		repo:     repo,
		push:     push,
		log:      log,
		sessions: make(map[int64]int),
	}
}

// OnConnect counts the session and, on the first one, persists and
// broadcasts the online transition. Every connecting device receives the
// full presence snapshot. Reports whether this was the 0→1 edge.
func (p *Presence) OnConnect(ctx context.Context, userID int64, connID string) bool {
	p.sessions[userID]++
	first := p.sessions[userID] == 1

	now := store.NowMillis()
	if first {
		if err := p.repo.SetUserOnline(ctx, userID, true, now); err != nil {
			p.log.Error("persist online transition failed", zap.Int64("user_id", userID), zap.Error(err))
		}
		p.broadcast(ctx, userID, "online", now)
	}
	p.sendSnapshot(ctx, userID, connID)
	return first
}

// OnDisconnect decrements the session count; on the last one it persists and
// broadcasts the offline transition. Reports whether this was the 1→0 edge.
func (p *Presence) OnDisconnect(ctx context.Context, userID int64) bool {
	n, ok := p.sessions[userID]
	if !ok {
		return false
	}
	if n > 1 {
		p.sessions[userID] = n - 1
		return false
	}
	delete(p.sessions, userID)

	now := store.NowMillis()
	if err := p.repo.SetUserOnline(ctx, userID, false, now); err != nil {
		p.log.Error("persist offline transition failed", zap.Int64("user_id", userID), zap.Error(err))
	}
	p.broadcast(ctx, userID, "offline", now)
	return true
}

func (p *Presence) IsOnline(userID int64) bool {
	return p.sessions[userID] > 0
}

func (p *Presence) OnlineUsers() []int64 {
	out := make([]int64, 0, len(p.sessions))
	for uid := range p.sessions {
		out = append(out, uid)
	}
	return out
}

// SetTyping fans the indicator out to the other members of the conversation.
// No state is kept; a missing "stop" is the UI's concern. Malformed
// conversation ids are dropped silently.
func (p *Presence) SetTyping(ctx context.Context, userID, convID int64, on bool) {
	if convID <= 0 {
		return
	}
	members, err := p.repo.MembersOf(ctx, convID)
	if err != nil {
		p.log.Warn("typing fan-out skipped", zap.Int64("conversation_id", convID), zap.Error(err))
		return
	}
	typ := EvTypingStopped
	if on {
		typ = EvTyping
	}
	ev := Event{Type: typ, ConversationID: convID, SenderID: userID}
	for _, m := range members {
		if m == userID {
			continue
		}
		p.push.PushUser(m, ev)
	}
}

// broadcast pushes a presence transition to everyone sharing a conversation
// with the user.
func (p *Presence) broadcast(ctx context.Context, userID int64, status string, at int64) {
	peers, err := p.repo.Peers(ctx, userID)
	if err != nil {
		p.log.Error("presence broadcast skipped", zap.Int64("user_id", userID), zap.Error(err))
		return
	}
	ev := Event{Type: EvPresence, UserID: userID, Status: status, LastSeen: at}
	for _, peer := range peers {
		p.push.PushUser(peer.ID, ev)
	}
}

// sendSnapshot pushes the "who is online" initial state to one connection,
// merging live session state over the persisted last-seen values.
func (p *Presence) sendSnapshot(ctx context.Context, userID int64, connID string) {
	peers, err := p.repo.Peers(ctx, userID)
	if err != nil {
		p.log.Error("presence snapshot skipped", zap.Int64("user_id", userID), zap.Error(err))
		return
	}
	entries := make([]PresencePeer, 0, len(peers))
	for _, peer := range peers {
		e := PresencePeer{UserID: peer.ID, Username: peer.Username, Status: "offline", LastSeen: peer.LastActive}
		if p.IsOnline(peer.ID) {
			e.Status = "online"
			e.LastSeen = 0
		}
		entries = append(entries, e)
	}
	p.push.PushConn(connID, Event{Type: EvPresenceInitial, Peers: entries})
}
