package hub

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ageniuscoder/relaychat/internal/metrics"
	"github.com/ageniuscoder/relaychat/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type CallState int

const (
	CallRinging CallState = iota
	CallAnswered
	CallEnded
)

type callSession struct {
	id        string
	callerID  int64
	calleeID  int64
	kind      string // "audio" or "video"
	state     CallState
	startedAt int64
	epoch     uint64
	timer     *time.Timer
}

func (s *callSession) peerOf(userID int64) int64 {
	if userID == s.callerID {
		return s.calleeID
	}
	return s.callerID
}

func (s *callSession) isParty(userID int64) bool {
	return userID == s.callerID || userID == s.calleeID
}

// Calls coordinates offer/answer/ICE relay between exactly two users, with
// busy detection and a ring timeout. A user is party to at most one active
// session.
type Calls struct {
	repo Repository
	push Pusher
	log  *zap.Logger

	ringTimeout time.Duration
	sessions    map[string]*callSession
	byUser      map[int64]string

	// fire delivers a timeout back to the owning goroutine; the hub posts
	// it onto the command channel, tests call OnTimeout directly.
	fire  func(callID string, epoch uint64)
	epoch uint64
}

func NewCalls(repo Repository, push Pusher, log *zap.Logger, ringTimeout time.Duration, fire func(callID string, epoch uint64)) *Calls {
	return &Calls{
		repo:        repo,
		push:        push,
		log:         log,
		ringTimeout: ringTimeout,
		sessions:    make(map[string]*callSession),
		byUser:      make(map[int64]string),
		fire:        fire,
	}
}

// Invite creates a ringing session and starts the ring timer. Busy parties
// are rejected before any state is created.
func (c *Calls) Invite(ctx context.Context, callerID, calleeID int64, sdp, kind string) (string, error) {
	if sdp == "" || calleeID == 0 || calleeID == callerID {
		return "", fmt.Errorf("bad invite: %w", ErrInvalid)
	}
	if kind != "audio" && kind != "video" {
		return "", fmt.Errorf("bad call kind %q: %w", kind, ErrInvalid)
	}
	if _, busy := c.byUser[callerID]; busy {
		return "", fmt.Errorf("caller in a call: %w", ErrBusy)
	}
	if _, busy := c.byUser[calleeID]; busy {
		return "", fmt.Errorf("callee in a call: %w", ErrBusy)
	}

	c.epoch++
	s := &callSession{
		id:        uuid.NewString(),
		callerID:  callerID,
		calleeID:  calleeID,
		kind:      kind,
		state:     CallRinging,
		startedAt: store.NowMillis(),
		epoch:     c.epoch,
	}
	c.sessions[s.id] = s
	c.byUser[callerID] = s.id
	c.byUser[calleeID] = s.id

	if c.fire != nil {
		id, epoch := s.id, s.epoch
		s.timer = time.AfterFunc(c.ringTimeout, func() { c.fire(id, epoch) })
	}

	c.push.PushUser(calleeID, Event{Type: EvCallIncoming, CallID: s.id, SenderID: callerID, Kind: kind, SDP: sdp})
	c.push.PushUser(callerID, Event{Type: EvCallRinging, CallID: s.id, UserID: calleeID})
	metrics.CallsStarted.Inc()
	return s.id, nil
}

// Answer accepts or declines a ringing call. Accepting relays the answer SDP
// to the caller only; declining ends the session and tells both sides.
func (c *Calls) Answer(ctx context.Context, callID string, by int64, accept bool, sdp string) error {
	s, ok := c.sessions[callID]
	if !ok {
		return fmt.Errorf("call %s: %w", callID, ErrNotFound)
	}
	if by != s.calleeID {
		return fmt.Errorf("only the callee answers: %w", ErrForbidden)
	}
	if s.state != CallRinging {
		return fmt.Errorf("call already answered: %w", ErrConflict)
	}

	if !accept {
		c.end(ctx, s, "declined")
		ev := Event{Type: EvCallDeclined, CallID: s.id, By: strconv.FormatInt(by, 10)}
		c.push.PushUser(s.callerID, ev)
		c.push.PushUser(s.calleeID, ev)
		return nil
	}
	if sdp == "" {
		return fmt.Errorf("empty answer payload: %w", ErrInvalid)
	}

	if s.timer != nil {
		s.timer.Stop()
	}
	s.state = CallAnswered
	c.push.PushUser(s.callerID, Event{Type: EvCallAnswer, CallID: s.id, SDP: sdp})
	return nil
}

// RelayCandidate forwards an ICE candidate to the other party. Unknown call
// ids are reported to the caller, never fatal to the connection.
func (c *Calls) RelayCandidate(ctx context.Context, callID string, by int64, candidate []byte) error {
	s, ok := c.sessions[callID]
	if !ok {
		return fmt.Errorf("call %s: %w", callID, ErrNotFound)
	}
	if !s.isParty(by) {
		return fmt.Errorf("not a party to call %s: %w", callID, ErrForbidden)
	}
	c.push.PushUser(s.peerOf(by), Event{Type: EvCallCandidate, CallID: s.id, Candidate: candidate})
	return nil
}

// Hangup ends the session from any state and notifies the other party.
func (c *Calls) Hangup(ctx context.Context, callID string, by int64) error {
	s, ok := c.sessions[callID]
	if !ok {
		return fmt.Errorf("call %s: %w", callID, ErrNotFound)
	}
	if !s.isParty(by) {
		return fmt.Errorf("not a party to call %s: %w", callID, ErrForbidden)
	}
	outcome := "answered"
	if s.state == CallRinging {
		outcome = "cancelled"
	}
	c.end(ctx, s, outcome)
	c.push.PushUser(s.peerOf(by), Event{Type: EvCallEnded, CallID: s.id, By: strconv.FormatInt(by, 10)})
	return nil
}

// OnTimeout fires when the ring timer lapses. A session that was already
// answered or released (the epoch guards recycled ids) makes this a no-op.
func (c *Calls) OnTimeout(ctx context.Context, callID string, epoch uint64) {
	s, ok := c.sessions[callID]
	if !ok || s.epoch != epoch || s.state != CallRinging {
		return
	}
	c.end(ctx, s, "timeout")
	ev := Event{Type: EvCallEnded, CallID: s.id, By: "timeout"}
	c.push.PushUser(s.callerID, ev)
	c.push.PushUser(s.calleeID, ev)
}

// OnDisconnect ends the user's active session, if any, so a dropped device
// never leaves the peer ringing.
func (c *Calls) OnDisconnect(ctx context.Context, userID int64) {
	id, ok := c.byUser[userID]
	if !ok {
		return
	}
	s := c.sessions[id]
	c.end(ctx, s, "disconnect")
	c.push.PushUser(s.peerOf(userID), Event{Type: EvCallEnded, CallID: s.id, By: "disconnect"})
}

// HasActive reports whether the user is party to a live session.
func (c *Calls) HasActive(userID int64) bool {
	_, ok := c.byUser[userID]
	return ok
}

func (c *Calls) ActiveSessions() int {
	return len(c.sessions)
}

// end performs the terminal transition: cancel the timer, release the maps,
// write the call log.
func (c *Calls) end(ctx context.Context, s *callSession, outcome string) {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.state = CallEnded
	delete(c.sessions, s.id)
	delete(c.byUser, s.callerID)
	delete(c.byUser, s.calleeID)

	if err := c.repo.LogCall(ctx, store.CallRecord{
		ID:        s.id,
		CallerID:  s.callerID,
		CalleeID:  s.calleeID,
		Kind:      s.kind,
		Outcome:   outcome,
		StartedAt: s.startedAt,
		EndedAt:   store.NowMillis(),
	}); err != nil {
		c.log.Error("call log write failed", zap.String("call_id", s.id), zap.Error(err))
	}
	metrics.CallsEnded.WithLabelValues(outcome).Inc()
}
