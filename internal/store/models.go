package store

import "errors"

// ErrNotFound is returned for missing rows; callers treat it as a normal
// outcome, not a failure.
var ErrNotFound = errors.New("not found")

type Conversation struct {
	ID            int64
	Name          string
	IsGroup       bool
	LastMessageID int64
}

type Message struct {
	ID             int64
	ConversationID int64
	SenderID       int64
	Content        string
	Attachment     string
	ClientID       string
	SentAt         int64 // unix milliseconds
	EditedAt       int64
	Deleted        bool
}

// Peer is another user sharing at least one conversation with the subject.
type Peer struct {
	ID         int64
	Username   string
	LastActive int64
	IsOnline   bool
}

// CatchUp names a conversation holding messages newer than the user's
// delivered watermark, and the newest such timestamp.
type CatchUp struct {
	ConversationID int64
	Latest         int64
}

type CallRecord struct {
	ID        string
	CallerID  int64
	CalleeID  int64
	Kind      string
	Outcome   string // answered, declined, timeout, disconnect, hangup
	StartedAt int64
	EndedAt   int64
}

// Cursor selects which watermark column an advance applies to.
type Cursor string

const (
	CursorDelivered Cursor = "delivered_up_to"
	CursorRead      Cursor = "read_up_to"
)
