package room

import (
	"go.uber.org/zap"

	"github.com/sprintpoker/backend/pkg/protocol"
)

// sync recomputes and delivers a personalized snapshot to every participant.
// Recipients whose outbox is full are evicted and announced, then the
// remaining participants get a snapshot reflecting the eviction; the loop
// runs until a fan-out completes with no drops.
func (r *Room) sync() {
	for {
		var dropped []*Participant
		for _, recipient := range r.participants {
			if !r.trySend(recipient, protocol.ChannelStateMessage(r.project(recipient))) {
				dropped = append(dropped, recipient)
			}
		}
		if len(dropped) == 0 {
			return
		}
		for _, p := range dropped {
			r.log.Warn("dropping slow participant",
				zap.String("session", p.ID),
				zap.String("name", p.Name))
			r.remove(p)
			r.broadcastEvent(protocol.PlayerLeftMessage(p.Name), "")
		}
		r.checkEmpty()
		if len(r.participants) == 0 {
			return
		}
	}
}

// project builds the snapshot one recipient sees. Entries are identical
// across recipients except the recipient's own: it carries
// isCurrentUser=true and, pre-reveal, its own true vote label echoed back so
// the client can confirm an optimistic selection. Everyone else's entry
// exposes only hasVoted until reveal.
func (r *Room) project(recipient *Participant) protocol.ChannelState {
	players := make(map[string]protocol.PlayerView, len(r.participants))
	for id, p := range r.participants {
		pv := protocol.PlayerView{
			ID:            id,
			Name:          p.Name,
			HasVoted:      p.Vote != nil,
			IsCurrentUser: id == recipient.ID,
		}
		if r.revealed || id == recipient.ID {
			pv.Vote = p.Vote
		}
		players[id] = pv
	}
	return protocol.ChannelState{
		Players:         players,
		Revealed:        r.revealed,
		RoomCode:        r.code,
		CardSet:         append([]string(nil), r.deck.Cards...),
		DeckType:        r.deck.Type,
		LastDeckChanger: r.deckChanger,
		Summary:         r.summary,
		VoteCount:       r.voteCount,
	}
}

// broadcastEvent fans one message out to every participant except the given
// session id. Delivery is best-effort: a full outbox is skipped here and the
// recipient is reaped on the next snapshot sync.
func (r *Room) broadcastEvent(msg protocol.ServerMessage, except string) {
	for id, p := range r.participants {
		if id == except {
			continue
		}
		r.trySend(p, msg)
	}
}

// trySend never blocks the room loop. A false return means the recipient's
// transport is not keeping up.
func (r *Room) trySend(p *Participant, msg protocol.ServerMessage) bool {
	select {
	case p.outbox <- msg:
		return true
	default:
		return false
	}
}
