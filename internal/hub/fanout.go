package hub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ageniuscoder/relaychat/internal/metrics"
	"github.com/ageniuscoder/relaychat/internal/store"
	"github.com/ageniuscoder/relaychat/internal/utils"
	"go.uber.org/zap"
)

// Fanout validates and persists outgoing messages, then pushes them to every
// live connection of every other member. If persistence fails nothing is
// pushed.
type Fanout struct {
	repo Repository
	push Pusher
	log  *zap.Logger

	maxBytes int
	region   string // default region for phone-addressed targets
}

func NewFanout(repo Repository, push Pusher, log *zap.Logger, maxBytes int, region string) *Fanout {
	return &Fanout{repo: repo, push: push, log: log, maxBytes: maxBytes, region: region}
}

// SendInput is one send-message request. The target is either an explicit
// conversation or a peer (by user id or phone) for a direct conversation.
type SendInput struct {
	SenderID       int64
	ConversationID int64
	To             int64
	ToPhone        string
	Text           string
	Attachment     string
	ClientID       string
}

func (f *Fanout) Send(ctx context.Context, in SendInput) (store.Message, error) {
	convID, err := f.resolveTarget(ctx, in)
	if err != nil {
		return store.Message{}, err
	}

	if strings.TrimSpace(in.Text) == "" && in.Attachment == "" {
		return store.Message{}, ErrTooShort
	}
	if len(in.Text) > f.maxBytes {
		return store.Message{}, ErrTooLong
	}

	msg := store.Message{
		ConversationID: convID,
		SenderID:       in.SenderID,
		Content:        in.Text,
		Attachment:     in.Attachment,
		ClientID:       in.ClientID,
	}
	if err := f.repo.CreateMessage(ctx, &msg); err != nil {
		return store.Message{}, fmt.Errorf("persist message: %w", err)
	}

	username, err := f.repo.UsernameOf(ctx, in.SenderID)
	if err != nil {
		f.log.Warn("sender username lookup failed", zap.Int64("user_id", in.SenderID), zap.Error(err))
	}

	members, err := f.repo.MembersOf(ctx, convID)
	if err != nil {
		// message is durable; recipients converge via catch-up on reconnect
		f.log.Error("fan-out member lookup failed", zap.Int64("conversation_id", convID), zap.Error(err))
		members = nil
	}

	ev := Event{
		Type:           EvMessage,
		ConversationID: convID,
		MessageID:      msg.ID,
		SenderID:       in.SenderID,
		SenderUsername: username,
		Text:           msg.Content,
		Attachment:     msg.Attachment,
		SentAt:         msg.SentAt,
	}
	for _, m := range members {
		if m == in.SenderID {
			continue
		}
		f.push.PushUser(m, ev)
	}

	// confirm to the sender's devices; the ack echoes the client token
	ack := ev
	ack.Type = EvMessageAck
	ack.ClientID = in.ClientID
	f.push.PushUser(in.SenderID, ack)

	// sending clears any typing indicator the sender had up
	stop := Event{Type: EvTypingStopped, ConversationID: convID, SenderID: in.SenderID}
	for _, m := range members {
		if m != in.SenderID {
			f.push.PushUser(m, stop)
		}
	}

	metrics.MessagesSent.Inc()
	return msg, nil
}

// Edit rewrites a message body and fans the change out to every member, the
// sender's other devices included, so all devices converge.
func (f *Fanout) Edit(ctx context.Context, senderID, messageID int64, text string) error {
	msg, err := f.loadOwn(ctx, senderID, messageID)
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return ErrTooShort
	}
	if len(text) > f.maxBytes {
		return ErrTooLong
	}
	editedAt := store.NowMillis()
	if err := f.repo.EditMessage(ctx, messageID, text, editedAt); err != nil {
		return fmt.Errorf("persist edit: %w", err)
	}
	f.fanToMembers(ctx, msg.ConversationID, Event{
		Type:           EvMessageEdited,
		ConversationID: msg.ConversationID,
		MessageID:      messageID,
		SenderID:       senderID,
		Text:           text,
		EditedAt:       editedAt,
	})
	return nil
}

// Delete sets the tombstone flag; the event fans out like an edit.
func (f *Fanout) Delete(ctx context.Context, senderID, messageID int64) error {
	msg, err := f.loadOwn(ctx, senderID, messageID)
	if err != nil {
		return err
	}
	if err := f.repo.DeleteMessage(ctx, messageID); err != nil {
		return fmt.Errorf("persist delete: %w", err)
	}
	f.fanToMembers(ctx, msg.ConversationID, Event{
		Type:           EvMessageDeleted,
		ConversationID: msg.ConversationID,
		MessageID:      messageID,
		SenderID:       senderID,
	})
	return nil
}

func (f *Fanout) loadOwn(ctx context.Context, senderID, messageID int64) (store.Message, error) {
	msg, err := f.repo.MessageByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Message{}, fmt.Errorf("message %d: %w", messageID, ErrNotFound)
		}
		return store.Message{}, fmt.Errorf("load message: %w", err)
	}
	if msg.Deleted {
		return store.Message{}, fmt.Errorf("message %d: %w", messageID, ErrNotFound)
	}
	if msg.SenderID != senderID {
		return store.Message{}, fmt.Errorf("not the sender: %w", ErrForbidden)
	}
	return msg, nil
}

func (f *Fanout) fanToMembers(ctx context.Context, convID int64, ev Event) {
	members, err := f.repo.MembersOf(ctx, convID)
	if err != nil {
		f.log.Error("fan-out member lookup failed", zap.Int64("conversation_id", convID), zap.Error(err))
		return
	}
	for _, m := range members {
		f.push.PushUser(m, ev)
	}
}

// resolveTarget turns the request target into a conversation id, creating a
// direct conversation when the target is a peer user.
func (f *Fanout) resolveTarget(ctx context.Context, in SendInput) (int64, error) {
	if in.ConversationID != 0 {
		if _, err := f.repo.Conversation(ctx, in.ConversationID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return 0, fmt.Errorf("conversation %d: %w", in.ConversationID, ErrNotFound)
			}
			return 0, fmt.Errorf("resolve conversation: %w", err)
		}
		member, err := f.repo.IsMember(ctx, in.ConversationID, in.SenderID)
		if err != nil {
			return 0, fmt.Errorf("resolve membership: %w", err)
		}
		if !member {
			return 0, fmt.Errorf("not a member of conversation %d: %w", in.ConversationID, ErrForbidden)
		}
		return in.ConversationID, nil
	}

	peer := in.To
	if peer == 0 && in.ToPhone != "" {
		phone, err := utils.NormalizePhone(in.ToPhone, f.region)
		if err != nil {
			return 0, fmt.Errorf("bad phone target: %w", ErrInvalid)
		}
		peer, err = f.repo.UserIDByPhone(ctx, phone)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return 0, fmt.Errorf("no user with phone %s: %w", phone, ErrNotFound)
			}
			return 0, fmt.Errorf("resolve phone target: %w", err)
		}
	}
	if peer == 0 || peer == in.SenderID {
		return 0, fmt.Errorf("missing target: %w", ErrInvalid)
	}
	id, err := f.repo.FindOrCreateDirect(ctx, in.SenderID, peer)
	if err != nil {
		return 0, fmt.Errorf("direct conversation: %w", err)
	}
	return id, nil
}
