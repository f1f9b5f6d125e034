package hub

import (
	"context"
	"errors"
	"fmt"

	"github.com/ageniuscoder/relaychat/internal/store"
	"go.uber.org/zap"
)

// fakeRepo is an in-memory Repository for component tests.
type fakeRepo struct {
	conversations map[int64]store.Conversation
	members       map[int64][]int64
	phones        map[string]int64
	usernames     map[int64]string
	peers         map[int64][]store.Peer

	messages map[int64]store.Message
	nextMsg  int64

	cursors map[string]int64

	online     map[int64]bool
	lastActive map[int64]int64

	calls   []store.CallRecord
	directs map[[2]int64]int64

	failCreate bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		conversations: make(map[int64]store.Conversation),
		members:       make(map[int64][]int64),
		phones:        make(map[string]int64),
		usernames:     make(map[int64]string),
		peers:         make(map[int64][]store.Peer),
		messages:      make(map[int64]store.Message),
		cursors:       make(map[string]int64),
		online:        make(map[int64]bool),
		lastActive:    make(map[int64]int64),
		directs:       make(map[[2]int64]int64),
	}
}

func (f *fakeRepo) addConversation(id int64, members ...int64) {
	f.conversations[id] = store.Conversation{ID: id, IsGroup: len(members) > 2}
	f.members[id] = members
}

func (f *fakeRepo) addMessage(convID, senderID, sentAt int64) int64 {
	f.nextMsg++
	f.messages[f.nextMsg] = store.Message{
		ID: f.nextMsg, ConversationID: convID, SenderID: senderID,
		Content: "m", SentAt: sentAt,
	}
	return f.nextMsg
}

func cursorKey(convID, userID int64, c store.Cursor) string {
	return fmt.Sprintf("%d:%d:%s", convID, userID, c)
}

func (f *fakeRepo) Conversation(_ context.Context, id int64) (store.Conversation, error) {
	c, ok := f.conversations[id]
	if !ok {
		return store.Conversation{}, store.ErrNotFound
	}
	return c, nil
}

func (f *fakeRepo) IsMember(_ context.Context, convID, userID int64) (bool, error) {
	for _, m := range f.members[convID] {
		if m == userID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRepo) MembersOf(_ context.Context, convID int64) ([]int64, error) {
	return f.members[convID], nil
}

func (f *fakeRepo) FindOrCreateDirect(_ context.Context, a, b int64) (int64, error) {
	key := [2]int64{min64(a, b), max64(a, b)}
	if id, ok := f.directs[key]; ok {
		return id, nil
	}
	id := int64(len(f.conversations) + 1000)
	f.directs[key] = id
	f.addConversation(id, a, b)
	return id, nil
}

func (f *fakeRepo) UserIDByPhone(_ context.Context, phone string) (int64, error) {
	id, ok := f.phones[phone]
	if !ok {
		return 0, store.ErrNotFound
	}
	return id, nil
}

func (f *fakeRepo) UsernameOf(_ context.Context, userID int64) (string, error) {
	return f.usernames[userID], nil
}

func (f *fakeRepo) CreateMessage(_ context.Context, m *store.Message) error {
	if f.failCreate {
		return errors.New("db down")
	}
	f.nextMsg++
	m.ID = f.nextMsg
	if m.SentAt == 0 {
		m.SentAt = store.NowMillis()
	}
	f.messages[m.ID] = *m
	return nil
}

func (f *fakeRepo) MessageByID(_ context.Context, id int64) (store.Message, error) {
	m, ok := f.messages[id]
	if !ok {
		return store.Message{}, store.ErrNotFound
	}
	return m, nil
}

func (f *fakeRepo) EditMessage(_ context.Context, id int64, content string, editedAt int64) error {
	m := f.messages[id]
	m.Content = content
	m.EditedAt = editedAt
	f.messages[id] = m
	return nil
}

func (f *fakeRepo) DeleteMessage(_ context.Context, id int64) error {
	m := f.messages[id]
	m.Deleted = true
	m.Content = ""
	f.messages[id] = m
	return nil
}

func (f *fakeRepo) AdvanceCursor(_ context.Context, convID, userID int64, c store.Cursor, ts int64) (bool, int64, error) {
	member := false
	for _, m := range f.members[convID] {
		if m == userID {
			member = true
		}
	}
	if !member {
		return false, 0, store.ErrNotFound
	}
	key := cursorKey(convID, userID, c)
	prev := f.cursors[key]
	if ts <= prev {
		return false, prev, nil
	}
	f.cursors[key] = ts
	return true, prev, nil
}

func (f *fakeRepo) SendersBetween(_ context.Context, convID, exclude, after, upto int64) ([]int64, error) {
	seen := make(map[int64]bool)
	var out []int64
	for _, m := range f.messages {
		if m.ConversationID != convID || m.SenderID == exclude || m.SentAt <= after || m.SentAt > upto {
			continue
		}
		if !seen[m.SenderID] {
			seen[m.SenderID] = true
			out = append(out, m.SenderID)
		}
	}
	return out, nil
}

func (f *fakeRepo) CatchUpCandidates(_ context.Context, userID int64) ([]store.CatchUp, error) {
	latest := make(map[int64]int64)
	for _, m := range f.messages {
		member := false
		for _, u := range f.members[m.ConversationID] {
			if u == userID {
				member = true
			}
		}
		if !member || m.SenderID == userID {
			continue
		}
		cur := f.cursors[cursorKey(m.ConversationID, userID, store.CursorDelivered)]
		if m.SentAt > cur && m.SentAt > latest[m.ConversationID] {
			latest[m.ConversationID] = m.SentAt
		}
	}
	var out []store.CatchUp
	for cid, ts := range latest {
		out = append(out, store.CatchUp{ConversationID: cid, Latest: ts})
	}
	return out, nil
}

func (f *fakeRepo) SetUserOnline(_ context.Context, userID int64, online bool, atMillis int64) error {
	f.online[userID] = online
	f.lastActive[userID] = atMillis
	return nil
}

func (f *fakeRepo) Peers(_ context.Context, userID int64) ([]store.Peer, error) {
	return f.peers[userID], nil
}

func (f *fakeRepo) LogCall(_ context.Context, r store.CallRecord) error {
	f.calls = append(f.calls, r)
	return nil
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// recorded is one captured push.
type recorded struct {
	userID int64
	connID string
	ev     Event
}

// sink captures pushes instead of queueing them onto sockets.
type sink struct {
	pushes []recorded
}

func (s *sink) PushUser(userID int64, ev Event) {
	s.pushes = append(s.pushes, recorded{userID: userID, ev: ev})
}

func (s *sink) PushConn(connID string, ev Event) {
	s.pushes = append(s.pushes, recorded{connID: connID, ev: ev})
}

func (s *sink) ofType(eventType string) []recorded {
	var out []recorded
	for _, p := range s.pushes {
		if p.ev.Type == eventType {
			out = append(out, p)
		}
	}
	return out
}

func (s *sink) toUser(userID int64, eventType string) []recorded {
	var out []recorded
	for _, p := range s.pushes {
		if p.userID == userID && p.ev.Type == eventType {
			out = append(out, p)
		}
	}
	return out
}

func (s *sink) reset() {
	s.pushes = nil
}

func testLogger() *zap.Logger {
	return zap.NewNop()
}
