package hub

import "encoding/json"

// Inbound event types accepted from clients.
const (
	EvSendMessage   = "send-message"
	EvEditMessage   = "edit-message"
	EvDeleteMessage = "delete-message"
	EvDelivered     = "delivered"
	EvReadUpTo      = "read-up-to"
	EvTyping        = "typing"
	EvTypingStopped = "typing-stopped"
	EvCallInvite    = "call:invite"
	EvCallAnswer    = "call:answer"
	EvCallCandidate = "call:candidate"
	EvCallHangup    = "call:hangup"
)

// Outbound event types pushed to clients.
const (
	EvMessage         = "message"
	EvMessageAck      = "message_ack"
	EvMessageEdited   = "message_edited"
	EvMessageDeleted  = "message_deleted"
	EvDeliveredUpTo   = "delivered"
	EvReadUpToOut     = "read_up_to"
	EvPresence        = "presence"
	EvPresenceInitial = "presence:initial"
	EvCallIncoming    = "call:incoming"
	EvCallRinging     = "call:ringing"
	EvCallDeclined    = "call:declined"
	EvCallEnded       = "call:ended"
	EvConvUpdate      = "conversation_update"
	EvError           = "error"
)

// Event is the flat wire envelope used in both directions; unused fields are
// omitted from the encoded frame.
type Event struct {
	Type           string          `json:"type"`
	ConversationID int64           `json:"conversation_id,omitempty"`
	MessageID      int64           `json:"message_id,omitempty"`
	SenderID       int64           `json:"sender_id,omitempty"`
	SenderUsername string          `json:"sender_username,omitempty"`
	UserID         int64           `json:"user_id,omitempty"`
	To             int64           `json:"to,omitempty"`
	ToPhone        string          `json:"to_phone,omitempty"`
	Text           string          `json:"text,omitempty"`
	Attachment     string          `json:"attachment,omitempty"`
	ClientID       string          `json:"client_id,omitempty"`
	SentAt         int64           `json:"sent_at,omitempty"`
	EditedAt       int64           `json:"edited_at,omitempty"`
	UpTo           int64           `json:"upto,omitempty"`
	Status         string          `json:"status,omitempty"`
	LastSeen       int64           `json:"last_seen,omitempty"`
	Peers          []PresencePeer  `json:"peers,omitempty"`
	CallID         string          `json:"call_id,omitempty"`
	Kind           string          `json:"kind,omitempty"`
	SDP            string          `json:"sdp,omitempty"`
	Candidate      json.RawMessage `json:"candidate,omitempty"`
	Accept         bool            `json:"accept,omitempty"`
	By             string          `json:"by,omitempty"`
	Update         string          `json:"update,omitempty"`
	Code           string          `json:"code,omitempty"`
	Error          string          `json:"error,omitempty"`
	Of             string          `json:"of,omitempty"`
}

// PresencePeer is one entry of the initial presence snapshot.
type PresencePeer struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Status   string `json:"status"`
	LastSeen int64  `json:"last_seen,omitempty"`
}

// droppable events may be shed when a connection's outbound queue is full;
// message, receipt and call events never are.
func droppable(eventType string) bool {
	switch eventType {
	case EvTyping, EvTypingStopped, EvPresence:
		return true
	}
	return false
}
