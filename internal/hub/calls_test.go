package hub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestCalls builds a Calls with no timer wiring; tests drive timeouts by
// calling OnTimeout directly.
func newTestCalls(repo *fakeRepo, out *sink) *Calls {
	return NewCalls(repo, out, testLogger(), 40*time.Second, nil)
}

func TestInviteRingsCalleeAndConfirmsCaller(t *testing.T) {
	repo := newFakeRepo()
	out := &sink{}
	c := newTestCalls(repo, out)

	id, err := c.Invite(context.Background(), 1, 2, "offer-sdp", "video")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	incoming := out.toUser(2, EvCallIncoming)
	require.Len(t, incoming, 1)
	assert.Equal(t, id, incoming[0].ev.CallID)
	assert.Equal(t, int64(1), incoming[0].ev.SenderID)
	assert.Equal(t, "video", incoming[0].ev.Kind)
	assert.Equal(t, "offer-sdp", incoming[0].ev.SDP)

	ringing := out.toUser(1, EvCallRinging)
	require.Len(t, ringing, 1)
	assert.Equal(t, id, ringing[0].ev.CallID)

	assert.True(t, c.HasActive(1))
	assert.True(t, c.HasActive(2))
}

func TestInviteValidation(t *testing.T) {
	c := newTestCalls(newFakeRepo(), &sink{})

	_, err := c.Invite(context.Background(), 1, 2, "", "audio")
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = c.Invite(context.Background(), 1, 1, "sdp", "audio")
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = c.Invite(context.Background(), 1, 2, "sdp", "hologram")
	assert.ErrorIs(t, err, ErrInvalid)

	assert.Zero(t, c.ActiveSessions())
}

func TestInviteBusyParty(t *testing.T) {
	repo := newFakeRepo()
	c := newTestCalls(repo, &sink{})

	_, err := c.Invite(context.Background(), 1, 2, "sdp", "audio")
	require.NoError(t, err)

	// both parties of the ringing call are busy for anyone else
	_, err = c.Invite(context.Background(), 3, 1, "sdp", "audio")
	assert.ErrorIs(t, err, ErrBusy)
	_, err = c.Invite(context.Background(), 2, 4, "sdp", "audio")
	assert.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, 1, c.ActiveSessions())
}

func TestAnswerAcceptRelaysToCaller(t *testing.T) {
	repo := newFakeRepo()
	out := &sink{}
	c := newTestCalls(repo, out)

	id, err := c.Invite(context.Background(), 1, 2, "offer", "audio")
	require.NoError(t, err)
	out.reset()

	require.NoError(t, c.Answer(context.Background(), id, 2, true, "answer-sdp"))

	answers := out.toUser(1, EvCallAnswer)
	require.Len(t, answers, 1)
	assert.Equal(t, "answer-sdp", answers[0].ev.SDP)
	assert.Empty(t, out.toUser(2, EvCallAnswer))
	assert.True(t, c.HasActive(1))

	// a second answer hits the already-answered guard
	err = c.Answer(context.Background(), id, 2, true, "again")
	assert.ErrorIs(t, err, ErrConflict)
}

func TestAnswerRules(t *testing.T) {
	repo := newFakeRepo()
	c := newTestCalls(repo, &sink{})
	id, err := c.Invite(context.Background(), 1, 2, "offer", "audio")
	require.NoError(t, err)

	// only the callee answers
	err = c.Answer(context.Background(), id, 1, true, "sdp")
	assert.ErrorIs(t, err, ErrForbidden)

	// accept needs a payload
	err = c.Answer(context.Background(), id, 2, true, "")
	assert.ErrorIs(t, err, ErrInvalid)

	err = c.Answer(context.Background(), "no-such-call", 2, true, "sdp")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAnswerDeclineEndsForBoth(t *testing.T) {
	repo := newFakeRepo()
	out := &sink{}
	c := newTestCalls(repo, out)
	id, _ := c.Invite(context.Background(), 1, 2, "offer", "audio")
	out.reset()

	require.NoError(t, c.Answer(context.Background(), id, 2, false, ""))

	assert.Len(t, out.toUser(1, EvCallDeclined), 1)
	assert.Len(t, out.toUser(2, EvCallDeclined), 1)
	assert.False(t, c.HasActive(1))
	assert.False(t, c.HasActive(2))

	require.Len(t, repo.calls, 1)
	assert.Equal(t, "declined", repo.calls[0].Outcome)
}

func TestCandidateRelay(t *testing.T) {
	repo := newFakeRepo()
	out := &sink{}
	c := newTestCalls(repo, out)
	id, _ := c.Invite(context.Background(), 1, 2, "offer", "audio")
	out.reset()

	cand := []byte(`{"candidate":"udp 1 ..."}`)
	require.NoError(t, c.RelayCandidate(context.Background(), id, 1, cand))
	got := out.toUser(2, EvCallCandidate)
	require.Len(t, got, 1)
	assert.JSONEq(t, string(cand), string(got[0].ev.Candidate))

	err := c.RelayCandidate(context.Background(), id, 3, cand)
	assert.ErrorIs(t, err, ErrForbidden)
	err = c.RelayCandidate(context.Background(), "gone", 1, cand)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHangupAfterAnswer(t *testing.T) {
	repo := newFakeRepo()
	out := &sink{}
	c := newTestCalls(repo, out)
	id, _ := c.Invite(context.Background(), 1, 2, "offer", "audio")
	require.NoError(t, c.Answer(context.Background(), id, 2, true, "sdp"))
	out.reset()

	require.NoError(t, c.Hangup(context.Background(), id, 1))

	ended := out.toUser(2, EvCallEnded)
	require.Len(t, ended, 1)
	assert.Equal(t, "1", ended[0].ev.By)
	assert.Empty(t, out.toUser(1, EvCallEnded))

	require.Len(t, repo.calls, 1)
	assert.Equal(t, "answered", repo.calls[0].Outcome)
}

func TestHangupWhileRingingIsCancelled(t *testing.T) {
	repo := newFakeRepo()
	c := newTestCalls(repo, &sink{})
	id, _ := c.Invite(context.Background(), 1, 2, "offer", "audio")

	require.NoError(t, c.Hangup(context.Background(), id, 1))
	require.Len(t, repo.calls, 1)
	assert.Equal(t, "cancelled", repo.calls[0].Outcome)
}

func TestRingTimeoutEndsForBothAndFreesParties(t *testing.T) {
	repo := newFakeRepo()
	out := &sink{}
	c := newTestCalls(repo, out)
	id, _ := c.Invite(context.Background(), 1, 2, "offer", "audio")
	epoch := c.sessions[id].epoch
	out.reset()

	c.OnTimeout(context.Background(), id, epoch)

	for _, uid := range []int64{1, 2} {
		ended := out.toUser(uid, EvCallEnded)
		require.Len(t, ended, 1)
		assert.Equal(t, "timeout", ended[0].ev.By)
	}
	require.Len(t, repo.calls, 1)
	assert.Equal(t, "timeout", repo.calls[0].Outcome)

	// the parties are callable again
	_, err := c.Invite(context.Background(), 2, 1, "offer", "audio")
	assert.NoError(t, err)
}

func TestStaleTimeoutIsNoop(t *testing.T) {
	repo := newFakeRepo()
	out := &sink{}
	c := newTestCalls(repo, out)
	id, _ := c.Invite(context.Background(), 1, 2, "offer", "audio")
	epoch := c.sessions[id].epoch
	require.NoError(t, c.Answer(context.Background(), id, 2, true, "sdp"))
	out.reset()

	// answered call: the pending timer must change nothing
	c.OnTimeout(context.Background(), id, epoch)
	assert.Empty(t, out.pushes)
	assert.True(t, c.HasActive(1))

	// wrong epoch on a live ringing call is equally inert
	c.Hangup(context.Background(), id, 1)
	id2, _ := c.Invite(context.Background(), 1, 2, "offer", "audio")
	c.OnTimeout(context.Background(), id2, c.sessions[id2].epoch+1)
	assert.True(t, c.HasActive(1))
}

func TestDisconnectEndsActiveCall(t *testing.T) {
	repo := newFakeRepo()
	out := &sink{}
	c := newTestCalls(repo, out)
	_, err := c.Invite(context.Background(), 1, 2, "offer", "audio")
	require.NoError(t, err)
	out.reset()

	c.OnDisconnect(context.Background(), 1)

	ended := out.toUser(2, EvCallEnded)
	require.Len(t, ended, 1)
	assert.Equal(t, "disconnect", ended[0].ev.By)
	assert.False(t, c.HasActive(2))
	require.Len(t, repo.calls, 1)
	assert.Equal(t, "disconnect", repo.calls[0].Outcome)

	// no active call: disconnect is a no-op
	out.reset()
	c.OnDisconnect(context.Background(), 1)
	assert.Empty(t, out.pushes)
}
