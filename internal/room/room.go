// Package room implements the per-room state machine: participants, votes,
// reveal state and the active deck, plus the personalized snapshot fan-out.
// Each Room is a single goroutine consuming a typed message inbox, so every
// mutation and its broadcast happen atomically with respect to other
// messages for the same room.
package room

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/sprintpoker/backend/internal/deck"
	"github.com/sprintpoker/backend/pkg/protocol"
)

var (
	ErrNameTaken     = errors.New("username already taken")
	ErrAlreadyJoined = errors.New("already joined")
	ErrVotesRevealed = errors.New("votes are already revealed")
	ErrUnknownCard   = errors.New("vote is not in the current card set")
	ErrUnknownDeck   = errors.New("unknown deck type")
	ErrEmptyDeck     = errors.New("card set must not be empty")
	ErrRoomClosed    = errors.New("room is closed")
)

// Participant is one joined user. The room owns the record; the outbox is a
// reference to the connection's write channel, not the connection itself.
type Participant struct {
	ID     string
	Name   string
	Vote   *string
	outbox chan protocol.ServerMessage
}

type Room struct {
	inbox chan Msg
	code  string

	participants map[string]*Participant
	revealed     bool
	deck         deck.Deck
	voteCount    int
	summary      string
	deckChanger  string

	// emptySince is unix nanos of the moment the room last became (or was
	// created) empty, 0 while it has participants. Read by the registry's
	// sweep without going through the inbox.
	emptySince atomic.Int64

	clock   clockwork.Clock
	onEmpty func(code string)
	log     *zap.Logger
	done    chan struct{}
}

// New starts a room actor for the given code. onEmpty is invoked from the
// room goroutine whenever the participant set becomes empty; it must not
// block on the room's own inbox.
func New(code string, clock clockwork.Clock, onEmpty func(code string), log *zap.Logger) *Room {
	if onEmpty == nil {
		onEmpty = func(string) {}
	}
	r := &Room{
		inbox:        make(chan Msg, 64),
		code:         code,
		participants: make(map[string]*Participant),
		deck:         deck.Default(),
		clock:        clock,
		onEmpty:      onEmpty,
		log:          log.With(zap.String("room", code)),
		done:         make(chan struct{}),
	}
	r.emptySince.Store(clock.Now().UnixNano())
	go r.loop()
	return r
}

func (r *Room) Inbox() chan<- Msg { return r.inbox }

func (r *Room) Code() string { return r.code }

// Done is closed when the room has shut down.
func (r *Room) Done() <-chan struct{} { return r.done }

// Send delivers a message unless the room has shut down.
func (r *Room) Send(m Msg) bool {
	select {
	case r.inbox <- m:
		return true
	case <-r.done:
		return false
	}
}

// JoinSync runs a Join round-trip, failing fast with ErrRoomClosed if the
// room shuts down while the request is in flight.
func (r *Room) JoinSync(name string, outbox chan protocol.ServerMessage) (string, error) {
	reply := make(chan JoinResult, 1)
	if !r.Send(Join{Name: name, Outbox: outbox, Reply: reply}) {
		return "", ErrRoomClosed
	}
	select {
	case res := <-reply:
		return res.SessionID, res.Err
	case <-r.done:
		// The shutdown drain may still have answered; prefer that answer.
		select {
		case res := <-reply:
			return res.SessionID, res.Err
		default:
			return "", ErrRoomClosed
		}
	}
}

// Empty reports whether the room currently has no participants.
func (r *Room) Empty() bool { return r.emptySince.Load() != 0 }

// EmptiedBefore reports whether the room has been continuously empty since
// before the cutoff. Used by the registry's retention sweep.
func (r *Room) EmptiedBefore(cutoff time.Time) bool {
	ts := r.emptySince.Load()
	return ts != 0 && time.Unix(0, ts).Before(cutoff)
}

func (r *Room) loop() {
	for m := range r.inbox {
		switch msg := m.(type) {
		case Join:
			r.handleJoin(msg)
		case Leave:
			r.handleLeave(msg.SessionID)
		case CastVote:
			r.handleVote(msg)
		case Reveal:
			r.handleReveal(msg.SessionID)
		case Reset:
			r.handleReset()
		case ChangeDeck:
			r.handleChangeDeck(msg)
		case Kick:
			r.handleKick(msg)
		case ThrowEmoji:
			r.handleEmoji(msg)
		case SetSummary:
			r.handleSummary(msg)
		case GetView:
			msg.Reply <- r.view()
		case Shutdown:
			r.shutdown()
			return
		}
	}
}

func (r *Room) handleJoin(msg Join) {
	for _, p := range r.participants {
		if p.Name == msg.Name {
			msg.Reply <- JoinResult{Err: ErrNameTaken}
			return
		}
	}

	p := &Participant{
		ID:     uuid.NewString(),
		Name:   msg.Name,
		outbox: msg.Outbox,
	}
	r.participants[p.ID] = p
	r.emptySince.Store(0)
	msg.Reply <- JoinResult{SessionID: p.ID}

	r.log.Info("participant joined",
		zap.String("session", p.ID),
		zap.String("name", p.Name),
		zap.Int("participants", len(r.participants)))

	r.broadcastEvent(protocol.PlayerJoinedMessage(p.Name), p.ID)
	r.sync()
}

func (r *Room) handleLeave(id string) {
	p, ok := r.participants[id]
	if !ok {
		// Connection already cleaned up (kick, drop). No-op.
		return
	}
	r.remove(p)
	r.broadcastEvent(protocol.PlayerLeftMessage(p.Name), "")
	r.sync()
	r.checkEmpty()
}

func (r *Room) handleVote(msg CastVote) {
	p, ok := r.participants[msg.SessionID]
	if !ok {
		return
	}
	if r.revealed {
		r.reject(p, ErrVotesRevealed)
		return
	}
	if msg.Vote != nil && !r.deck.Contains(*msg.Vote) {
		r.reject(p, ErrUnknownCard)
		return
	}

	switch {
	case p.Vote == nil && msg.Vote != nil:
		r.voteCount++
	case p.Vote != nil && msg.Vote == nil:
		r.voteCount--
	}
	p.Vote = msg.Vote
	r.sync()
}

func (r *Room) handleReveal(id string) {
	// The sender being a live participant is the >=1 participant guard.
	if _, ok := r.participants[id]; !ok {
		return
	}
	if r.revealed {
		// Idempotent: a second reveal changes nothing and stays quiet.
		return
	}
	r.revealed = true
	r.log.Info("votes revealed", zap.Int("voteCount", r.voteCount))
	r.sync()
}

func (r *Room) handleReset() {
	r.clearVotes()
	r.revealed = false
	r.log.Info("votes reset")
	r.sync()
}

func (r *Room) handleChangeDeck(msg ChangeDeck) {
	p, ok := r.participants[msg.SessionID]
	if !ok {
		return
	}

	var d deck.Deck
	switch msg.DeckType {
	case "", deck.TypeCustom:
		if len(msg.Cards) == 0 {
			r.reject(p, ErrEmptyDeck)
			return
		}
		d = deck.Custom(msg.Cards)
	default:
		preset, ok := deck.Preset(msg.DeckType)
		if !ok {
			r.reject(p, ErrUnknownDeck)
			return
		}
		d = preset
	}

	// A new scale invalidates every prior answer, and a revealed board of
	// cleared votes is nonsense, so the reveal flag drops too.
	r.deck = d
	r.clearVotes()
	r.revealed = false
	r.deckChanger = p.Name
	r.log.Info("deck changed",
		zap.String("deckType", d.Type),
		zap.String("by", p.Name))
	r.sync()
}

func (r *Room) handleKick(msg Kick) {
	actor, ok := r.participants[msg.SessionID]
	if !ok {
		return
	}
	target, ok := r.participants[msg.TargetID]
	if !ok {
		// Target already gone; the moderation intent is satisfied.
		return
	}

	// Terminal notice first, then the outbox closes with it still queued;
	// the transport flushes before tearing the connection down.
	r.trySend(target, protocol.PlayerKickedMessage(target.ID, target.Name, true))
	r.remove(target)

	r.log.Info("participant kicked",
		zap.String("target", target.Name),
		zap.String("by", actor.Name))

	r.broadcastEvent(protocol.PlayerLeftMessage(target.Name), "")
	r.broadcastEvent(protocol.PlayerKickedMessage(target.ID, target.Name, false), "")
	r.sync()
	r.checkEmpty()
}

func (r *Room) handleEmoji(msg ThrowEmoji) {
	if _, ok := r.participants[msg.SessionID]; !ok {
		return
	}
	r.broadcastEvent(protocol.EmojiThrownMessage(msg.Emoji, msg.SessionID, msg.TargetID), "")
}

func (r *Room) handleSummary(msg SetSummary) {
	if _, ok := r.participants[msg.SessionID]; !ok {
		return
	}
	r.summary = msg.Summary
	r.sync()
}

// reject echoes a rejection to the offending participant only. Shared state
// is untouched and nothing is broadcast.
func (r *Room) reject(p *Participant, err error) {
	r.trySend(p, protocol.ErrorMessage(err.Error()))
}

func (r *Room) clearVotes() {
	for _, p := range r.participants {
		p.Vote = nil
	}
	r.voteCount = 0
}

// remove deletes the participant and closes its outbox. Exactly-once: the
// caller must have checked membership.
func (r *Room) remove(p *Participant) {
	delete(r.participants, p.ID)
	if p.Vote != nil {
		r.voteCount--
	}
	close(p.outbox)
}

func (r *Room) checkEmpty() {
	if len(r.participants) == 0 {
		r.emptySince.Store(r.clock.Now().UnixNano())
		r.onEmpty(r.code)
	}
}

func (r *Room) view() View {
	v := View{
		Code:            r.code,
		Revealed:        r.revealed,
		DeckType:        r.deck.Type,
		Cards:           append([]string(nil), r.deck.Cards...),
		VoteCount:       r.voteCount,
		Summary:         r.summary,
		LastDeckChanger: r.deckChanger,
	}
	for _, p := range r.participants {
		v.Participants = append(v.Participants, ParticipantView{ID: p.ID, Name: p.Name, Vote: p.Vote})
	}
	return v
}

func (r *Room) shutdown() {
	for _, p := range r.participants {
		r.remove(p)
	}
	r.emptySince.Store(r.clock.Now().UnixNano())
	close(r.done)

	// Answer any queued joins so their connections aren't left hanging; a
	// rejected joiner re-runs its join against a fresh room.
	for {
		select {
		case m := <-r.inbox:
			switch msg := m.(type) {
			case Join:
				msg.Reply <- JoinResult{Err: ErrRoomClosed}
			case GetView:
				msg.Reply <- View{Code: r.code}
			}
		default:
			return
		}
	}
}
