package room

import "github.com/sprintpoker/backend/pkg/protocol"

// Msg is the closed set of messages a Room processes. One message is handled
// at a time; the mutation and the resulting fan-out are a single unit.
type Msg interface{ isRoomMsg() }

// Join admits a new participant. The room replies on Reply exactly once with
// either the minted session id or the rejection.
type Join struct {
	Name   string
	Outbox chan protocol.ServerMessage
	Reply  chan JoinResult
}

type JoinResult struct {
	SessionID string
	Err       error
}

// Leave removes a participant (natural disconnect). Unknown ids are a no-op.
type Leave struct{ SessionID string }

// CastVote sets or retracts (Vote == nil) the sender's vote.
type CastVote struct {
	SessionID string
	Vote      *string
}

type Reveal struct{ SessionID string }

type Reset struct{ SessionID string }

// ChangeDeck swaps the active deck. DeckType names a preset; an empty or
// "custom" DeckType uses Cards verbatim.
type ChangeDeck struct {
	SessionID string
	DeckType  string
	Cards     []string
}

// Kick eagerly removes the target, with the terminal notice to the target
// and the moderation notice to everyone else.
type Kick struct {
	SessionID string
	TargetID  string
}

// ThrowEmoji is pass-through: broadcast to everyone, no state change.
type ThrowEmoji struct {
	SessionID string
	Emoji     string
	TargetID  string
}

// SetSummary updates the room's free-text annotation.
type SetSummary struct {
	SessionID string
	Summary   string
}

// GetView reflects internal state without data races (test inspection).
type GetView struct{ Reply chan View }

type Shutdown struct{}

func (Join) isRoomMsg()       {}
func (Leave) isRoomMsg()      {}
func (CastVote) isRoomMsg()   {}
func (Reveal) isRoomMsg()     {}
func (Reset) isRoomMsg()      {}
func (ChangeDeck) isRoomMsg() {}
func (Kick) isRoomMsg()       {}
func (ThrowEmoji) isRoomMsg() {}
func (SetSummary) isRoomMsg() {}
func (GetView) isRoomMsg()    {}
func (Shutdown) isRoomMsg()   {}

// View is a race-free copy of room internals for tests and diagnostics.
type View struct {
	Code            string
	Revealed        bool
	DeckType        string
	Cards           []string
	VoteCount       int
	Summary         string
	LastDeckChanger string
	Participants    []ParticipantView
}

type ParticipantView struct {
	ID   string
	Name string
	Vote *string
}
