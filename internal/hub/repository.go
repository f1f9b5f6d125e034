package hub

import (
	"context"

	"github.com/ageniuscoder/relaychat/internal/store"
)

// Repository is the narrow persistence surface the hub depends on. The SQL
// store satisfies it; tests substitute a fake.
type Repository interface {
	Conversation(ctx context.Context, id int64) (store.Conversation, error)
	IsMember(ctx context.Context, convID, userID int64) (bool, error)
	MembersOf(ctx context.Context, convID int64) ([]int64, error)
	FindOrCreateDirect(ctx context.Context, a, b int64) (int64, error)
	UserIDByPhone(ctx context.Context, phone string) (int64, error)
	UsernameOf(ctx context.Context, userID int64) (string, error)

	CreateMessage(ctx context.Context, m *store.Message) error
	MessageByID(ctx context.Context, id int64) (store.Message, error)
	EditMessage(ctx context.Context, id int64, content string, editedAt int64) error
	DeleteMessage(ctx context.Context, id int64) error

	AdvanceCursor(ctx context.Context, convID, userID int64, c store.Cursor, ts int64) (advanced bool, prev int64, err error)
	SendersBetween(ctx context.Context, convID, exclude, after, upto int64) ([]int64, error)
	CatchUpCandidates(ctx context.Context, userID int64) ([]store.CatchUp, error)

	SetUserOnline(ctx context.Context, userID int64, online bool, atMillis int64) error
	Peers(ctx context.Context, userID int64) ([]store.Peer, error)
	LogCall(ctx context.Context, r store.CallRecord) error
}

// Pusher delivers outbound events. The Hub is the production implementation;
// component tests capture pushes through it.
type Pusher interface {
	// PushUser queues an event to every live connection of the user.
	PushUser(userID int64, ev Event)
	// PushConn queues an event to one connection.
	PushConn(connID string, ev Event)
}
