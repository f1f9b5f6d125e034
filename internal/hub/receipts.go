package hub

import (
	"context"
	"errors"
	"fmt"

	"github.com/ageniuscoder/relaychat/internal/metrics"
	"github.com/ageniuscoder/relaychat/internal/store"
	"go.uber.org/zap"
)

// Receipts maintains the delivered/read watermarks. Acknowledging N buffered
// messages is one cursor advance, not N writes; a cursor that does not
// advance produces no notification.
type Receipts struct {
	repo Repository
	push Pusher
	log  *zap.Logger
}

func NewReceipts(repo Repository, push Pusher, log *zap.Logger) *Receipts {
	return &Receipts{repo: repo, push: push, log: log}
}

// MarkDelivered advances the user's delivered watermark and tells the
// senders of the newly-covered messages "delivered up to T", one event per
// sender rather than per message.
func (r *Receipts) MarkDelivered(ctx context.Context, userID, convID, upto int64) error {
	advanced, prev, err := r.repo.AdvanceCursor(ctx, convID, userID, store.CursorDelivered, upto)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("conversation %d: %w", convID, ErrNotFound)
		}
		return fmt.Errorf("mark delivered: %w", err)
	}
	if !advanced {
		return nil
	}
	r.notify(ctx, EvDeliveredUpTo, userID, convID, prev, upto)
	return nil
}

// MarkRead advances the read watermark and forces the delivered watermark
// along with it (read implies delivered). Senders get one "read up to T"
// event; the implied delivered advance is silent.
func (r *Receipts) MarkRead(ctx context.Context, userID, convID, upto int64) error {
	advanced, prev, err := r.repo.AdvanceCursor(ctx, convID, userID, store.CursorRead, upto)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("conversation %d: %w", convID, ErrNotFound)
		}
		return fmt.Errorf("mark read: %w", err)
	}
	if !advanced {
		return nil
	}
	if _, _, err := r.repo.AdvanceCursor(ctx, convID, userID, store.CursorDelivered, upto); err != nil {
		r.log.Error("implied delivered advance failed",
			zap.Int64("conversation_id", convID), zap.Int64("user_id", userID), zap.Error(err))
	}
	r.notify(ctx, EvReadUpToOut, userID, convID, prev, upto)
	return nil
}

// CatchUpOnReconnect runs once when a user comes back online: every current
// conversation holding messages newer than their delivered watermark gets
// the cursor advanced to the newest such message, and the affected senders
// are notified exactly as if the client had acknowledged live.
func (r *Receipts) CatchUpOnReconnect(ctx context.Context, userID int64) {
	cands, err := r.repo.CatchUpCandidates(ctx, userID)
	if err != nil {
		r.log.Error("catch-up scan failed", zap.Int64("user_id", userID), zap.Error(err))
		return
	}
	for _, c := range cands {
		advanced, prev, err := r.repo.AdvanceCursor(ctx, c.ConversationID, userID, store.CursorDelivered, c.Latest)
		if err != nil {
			r.log.Error("catch-up advance failed",
				zap.Int64("conversation_id", c.ConversationID), zap.Int64("user_id", userID), zap.Error(err))
			continue
		}
		if advanced {
			r.notify(ctx, EvDeliveredUpTo, userID, c.ConversationID, prev, c.Latest)
		}
	}
	metrics.CatchUpRuns.Inc()
}

func (r *Receipts) notify(ctx context.Context, eventType string, userID, convID, after, upto int64) {
	senders, err := r.repo.SendersBetween(ctx, convID, userID, after, upto)
	if err != nil {
		r.log.Error("receipt notification skipped",
			zap.Int64("conversation_id", convID), zap.Error(err))
		return
	}
	ev := Event{Type: eventType, ConversationID: convID, UserID: userID, UpTo: upto}
	for _, s := range senders {
		r.push.PushUser(s, ev)
	}
}
