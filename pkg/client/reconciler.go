package client

import "github.com/sprintpoker/backend/pkg/protocol"

// Reconciler merges authoritative server snapshots with the one optimistic
// local edit this protocol has: a just-cast or just-retracted vote. The
// newest snapshot always wins wholesale; the optimistic vote only bridges
// the gap until the server echoes the participant's own vote back.
type Reconciler struct {
	state *protocol.ChannelState

	pending     bool
	pendingVote *string
}

func NewReconciler() *Reconciler {
	return &Reconciler{}
}

// CastVote records the local edit so View reflects it immediately, before
// any server acknowledgment. A nil label is a retraction.
func (r *Reconciler) CastVote(label *string) {
	r.pending = true
	r.pendingVote = label
}

// ApplyState replaces the mirror with the incoming snapshot and discards the
// optimistic edit: the server has already folded the participant's own
// latest vote into its isCurrentUser entry, so the snapshot is never behind
// local intent from the client's point of view.
func (r *Reconciler) ApplyState(cs protocol.ChannelState) {
	r.state = &cs
	r.pending = false
	r.pendingVote = nil
}

// View renders the current model: the last snapshot with any unconfirmed
// vote overlaid on the own entry. Returns false before the first snapshot.
func (r *Reconciler) View() (protocol.ChannelState, bool) {
	if r.state == nil {
		return protocol.ChannelState{}, false
	}
	cs := *r.state
	if r.pending {
		players := make(map[string]protocol.PlayerView, len(cs.Players))
		for id, pv := range cs.Players {
			if pv.IsCurrentUser {
				pv.Vote = r.pendingVote
				pv.HasVoted = r.pendingVote != nil
			}
			players[id] = pv
		}
		cs.Players = players
	}
	return cs, true
}

// Self returns the recipient's own entry from the rendered view.
func (r *Reconciler) Self() (protocol.PlayerView, bool) {
	cs, ok := r.View()
	if !ok {
		return protocol.PlayerView{}, false
	}
	for _, pv := range cs.Players {
		if pv.IsCurrentUser {
			return pv, true
		}
	}
	return protocol.PlayerView{}, false
}
