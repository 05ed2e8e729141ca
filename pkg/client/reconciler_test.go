package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sprintpoker/backend/pkg/protocol"
)

func snapshot(selfVote *string, voteCount int) protocol.ChannelState {
	return protocol.ChannelState{
		Players: map[string]protocol.PlayerView{
			"me":    {ID: "me", Name: "Alice", Vote: selfVote, HasVoted: selfVote != nil, IsCurrentUser: true},
			"other": {ID: "other", Name: "Bob", HasVoted: voteCount > 1},
		},
		RoomCode:  "AB12CD",
		CardSet:   []string{"1", "2", "3", "?"},
		DeckType:  "custom",
		VoteCount: voteCount,
	}
}

func TestView_BeforeFirstSnapshot(t *testing.T) {
	r := NewReconciler()
	_, ok := r.View()
	assert.False(t, ok)

	// An optimistic vote with no mirror still renders nothing; there is no
	// participant list to overlay it on.
	vote := "2"
	r.CastVote(&vote)
	_, ok = r.View()
	assert.False(t, ok)
}

func TestCastVote_OptimisticBeforeAck(t *testing.T) {
	r := NewReconciler()
	r.ApplyState(snapshot(nil, 0))

	vote := "2"
	r.CastVote(&vote)

	self, ok := r.Self()
	require.True(t, ok)
	require.NotNil(t, self.Vote)
	assert.Equal(t, "2", *self.Vote)
	assert.True(t, self.HasVoted)
}

func TestApplyState_AuthoritativeOverOptimistic(t *testing.T) {
	r := NewReconciler()
	r.ApplyState(snapshot(nil, 0))

	vote := "2"
	r.CastVote(&vote)

	// The echo folds the vote into the own entry; the optimistic bridge is
	// discarded rather than layered on top.
	echoed := "2"
	r.ApplyState(snapshot(&echoed, 1))

	self, ok := r.Self()
	require.True(t, ok)
	require.NotNil(t, self.Vote)
	assert.Equal(t, "2", *self.Vote)

	// A later snapshot clearing the vote (deck change, reset) wins outright.
	r.ApplyState(snapshot(nil, 0))
	self, _ = r.Self()
	assert.Nil(t, self.Vote)
	assert.False(t, self.HasVoted)
}

func TestCastVote_RetractionRendersImmediately(t *testing.T) {
	r := NewReconciler()
	voted := "5"
	r.ApplyState(snapshot(&voted, 1))

	r.CastVote(nil)

	self, ok := r.Self()
	require.True(t, ok)
	assert.Nil(t, self.Vote)
	assert.False(t, self.HasVoted)

	// Only the own entry is touched by the overlay.
	view, _ := r.View()
	assert.True(t, view.Players["other"].HasVoted)
	assert.Equal(t, 1, view.VoteCount)
}

func TestView_DoesNotMutateMirror(t *testing.T) {
	r := NewReconciler()
	r.ApplyState(snapshot(nil, 0))

	vote := "3"
	r.CastVote(&vote)
	_, _ = r.View()

	// The mirror itself must stay untouched by the rendered overlay.
	r.pending = false
	self, _ := r.Self()
	assert.Nil(t, self.Vote)
}
