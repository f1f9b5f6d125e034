package hub

import (
	"context"
	"time"

	"github.com/ageniuscoder/relaychat/internal/metrics"
	"go.uber.org/zap"
)

type command interface{}

type cmdRegister struct{ c *Client }
type cmdUnregister struct{ c *Client }
type cmdEvent struct {
	c  *Client
	ev Event
}
type cmdCallTimeout struct {
	id    string
	epoch uint64
}
type cmdConvUpdate struct {
	convID int64
	update string
}

// Hub is the composition root. Every inbound event, disconnect and timer
// fire becomes a command consumed by one goroutine, so the registry,
// presence, receipt and call maps are touched by a single writer and need no
// locks. Handlers run to completion; pushes are fire-and-forget onto bounded
// per-connection queues and never block the loop.
type Hub struct {
	log  *zap.Logger
	repo Repository
	cmds chan command
	ctx  context.Context

	registry *Registry
	presence *Presence
	receipts *Receipts
	fanout   *Fanout
	calls    *Calls

	queueSize int
}

type Options struct {
	RingTimeout   time.Duration
	MaxMsgBytes   int
	SendQueueSize int
	PhoneRegion   string
}

func New(repo Repository, log *zap.Logger, opt Options) *Hub {
	if opt.RingTimeout <= 0 {
		opt.RingTimeout = 40 * time.Second
	}
	if opt.MaxMsgBytes <= 0 {
		opt.MaxMsgBytes = 4096
	}
	if opt.SendQueueSize <= 0 {
		opt.SendQueueSize = 256
	}
	h := &Hub{
		log:       log,
		repo:      repo,
		cmds:      make(chan command, 512),
		ctx:       context.Background(),
		registry:  NewRegistry(),
		queueSize: opt.SendQueueSize,
	}
	h.presence = NewPresence(repo, h, log)
	h.receipts = NewReceipts(repo, h, log)
	h.fanout = NewFanout(repo, h, log, opt.MaxMsgBytes, opt.PhoneRegion)
	h.calls = NewCalls(repo, h, log, opt.RingTimeout, func(id string, epoch uint64) {
		h.post(cmdCallTimeout{id: id, epoch: epoch})
	})
	return h
}

func (h *Hub) Run(ctx context.Context) {
	h.ctx = ctx
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-h.cmds:
			h.dispatch(cmd)
		}
	}
}

func (h *Hub) post(cmd command) {
	h.cmds <- cmd
}

// NotifyConversationUpdate lets the REST shell fan membership changes to the
// members' live connections.
func (h *Hub) NotifyConversationUpdate(convID int64, update string) {
	h.post(cmdConvUpdate{convID: convID, update: update})
}

// PushUser queues an event to every live connection of the user.
func (h *Hub) PushUser(userID int64, ev Event) {
	for _, c := range h.registry.ConnectionsOf(userID) {
		c.enqueue(ev)
	}
}

// PushConn queues an event to a single connection.
func (h *Hub) PushConn(connID string, ev Event) {
	if c, ok := h.registry.Get(connID); ok {
		c.enqueue(ev)
	}
}

func (h *Hub) dispatch(cmd command) {
	switch v := cmd.(type) {
	case cmdRegister:
		h.handleRegister(v.c)
	case cmdUnregister:
		h.handleUnregister(v.c)
	case cmdEvent:
		h.handleEvent(v.c, v.ev)
	case cmdCallTimeout:
		h.calls.OnTimeout(h.ctx, v.id, v.epoch)
	case cmdConvUpdate:
		h.handleConvUpdate(v.convID, v.update)
	}
}

func (h *Hub) handleRegister(c *Client) {
	h.registry.Register(c)
	metrics.OnlineConns.Set(float64(h.registry.ConnCount()))
	metrics.OnlineUsers.Set(float64(h.registry.UserCount()))
	h.log.Info("connection registered",
		zap.String("conn_id", c.ID), zap.Int64("user_id", c.UserID), zap.String("device", c.Device))

	first := h.presence.OnConnect(h.ctx, c.UserID, c.ID)
	if first {
		h.receipts.CatchUpOnReconnect(h.ctx, c.UserID)
	}
}

func (h *Hub) handleUnregister(c *Client) {
	uid, ok := h.registry.Unregister(c.ID)
	if !ok {
		// disconnect raced a failed registration
		return
	}
	close(c.send)
	metrics.OnlineConns.Set(float64(h.registry.ConnCount()))
	metrics.OnlineUsers.Set(float64(h.registry.UserCount()))
	h.log.Info("connection unregistered", zap.String("conn_id", c.ID), zap.Int64("user_id", uid))

	h.presence.OnDisconnect(h.ctx, uid)
	h.calls.OnDisconnect(h.ctx, uid)
}

func (h *Hub) handleEvent(c *Client, ev Event) {
	var err error
	switch ev.Type {
	case EvSendMessage:
		_, err = h.fanout.Send(h.ctx, SendInput{
			SenderID:       c.UserID,
			ConversationID: ev.ConversationID,
			To:             ev.To,
			ToPhone:        ev.ToPhone,
			Text:           ev.Text,
			Attachment:     ev.Attachment,
			ClientID:       ev.ClientID,
		})
	case EvEditMessage:
		err = h.fanout.Edit(h.ctx, c.UserID, ev.MessageID, ev.Text)
	case EvDeleteMessage:
		err = h.fanout.Delete(h.ctx, c.UserID, ev.MessageID)
	case EvDelivered:
		err = h.receipts.MarkDelivered(h.ctx, c.UserID, ev.ConversationID, ev.UpTo)
	case EvReadUpTo:
		err = h.receipts.MarkRead(h.ctx, c.UserID, ev.ConversationID, ev.UpTo)
	case EvTyping:
		h.presence.SetTyping(h.ctx, c.UserID, ev.ConversationID, true)
	case EvTypingStopped:
		h.presence.SetTyping(h.ctx, c.UserID, ev.ConversationID, false)
	case EvCallInvite:
		_, err = h.calls.Invite(h.ctx, c.UserID, ev.To, ev.SDP, ev.Kind)
	case EvCallAnswer:
		err = h.calls.Answer(h.ctx, ev.CallID, c.UserID, ev.Accept, ev.SDP)
	case EvCallCandidate:
		err = h.calls.RelayCandidate(h.ctx, ev.CallID, c.UserID, ev.Candidate)
	case EvCallHangup:
		err = h.calls.Hangup(h.ctx, ev.CallID, c.UserID)
	default:
		h.log.Debug("unknown event type", zap.String("type", ev.Type), zap.Int64("user_id", c.UserID))
		return
	}
	if err != nil {
		code := codeOf(err)
		if code == "internal" {
			h.log.Error("event handling failed",
				zap.String("type", ev.Type), zap.Int64("user_id", c.UserID), zap.Error(err))
		}
		h.PushConn(c.ID, Event{Type: EvError, Code: code, Error: messageOf(err), Of: ev.Type})
	}
}

func (h *Hub) handleConvUpdate(convID int64, update string) {
	members, err := h.repo.MembersOf(h.ctx, convID)
	if err != nil {
		h.log.Error("conversation update fan-out failed", zap.Int64("conversation_id", convID), zap.Error(err))
		return
	}
	ev := Event{Type: EvConvUpdate, ConversationID: convID, Update: update}
	for _, m := range members {
		h.PushUser(m, ev)
	}
}
