// Package protocol defines the wire messages exchanged over a room's
// WebSocket connection. Both directions are JSON records carrying a "type"
// discriminator; the client-side set is closed by the Type* constants and
// anything else is a protocol error.
package protocol

// Client -> server message types.
const (
	TypeJoin          = "join"
	TypeVote          = "vote"
	TypeReveal        = "reveal"
	TypeReset         = "reset"
	TypeUpdateCardSet = "updateCardSet"
	TypeUpdateSummary = "updateSummary"
	TypeThrowEmoji    = "throwEmoji"
	TypeKickPlayer    = "kickPlayer"
	TypeGenerateRoom  = "generateRoom"
)

// Server -> client message types.
const (
	TypeRoomCode     = "roomCode"
	TypeChannelState = "channel_state"
	TypePlayerJoined = "player_joined"
	TypePlayerLeft   = "player_left"
	TypePlayerKicked = "playerKicked"
	TypeEmojiThrown  = "emojiThrown"
	TypeError        = "error"
)

// ClientMessage is the decoded form of every client -> server record. Only
// the fields relevant to Type are populated; Vote distinguishes a retraction
// (explicit null) from a cast by staying nil.
type ClientMessage struct {
	Type     string   `json:"type"`
	Username string   `json:"username,omitempty"`
	Channel  string   `json:"channel,omitempty"`
	Vote     *string  `json:"vote,omitempty"`
	Cards    []string `json:"cards,omitempty"`
	DeckType string   `json:"deckType,omitempty"`
	Summary  string   `json:"summary,omitempty"`
	Emoji    string   `json:"emoji,omitempty"`
	TargetID string   `json:"targetId,omitempty"`
}

// KnownClientType reports whether t is part of the client message set.
func KnownClientType(t string) bool {
	switch t {
	case TypeJoin, TypeVote, TypeReveal, TypeReset, TypeUpdateCardSet,
		TypeUpdateSummary, TypeThrowEmoji, TypeKickPlayer, TypeGenerateRoom:
		return true
	}
	return false
}

// PlayerView is one participant entry inside a ChannelState. Vote is only
// populated when the recipient is allowed to see it: after reveal, or when
// the entry is the recipient's own.
type PlayerView struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Vote          *string `json:"vote,omitempty"`
	HasVoted      bool    `json:"hasVoted"`
	IsCurrentUser bool    `json:"isCurrentUser"`
}

// ChannelState is the personalized room snapshot. Exactly one entry in
// Players carries IsCurrentUser=true relative to the recipient.
type ChannelState struct {
	Players         map[string]PlayerView `json:"players"`
	Revealed        bool                  `json:"revealed"`
	RoomCode        string                `json:"roomCode"`
	CardSet         []string              `json:"cardSet"`
	DeckType        string                `json:"deckType"`
	LastDeckChanger string                `json:"lastDeckChanger,omitempty"`
	Summary         string                `json:"summary"`
	VoteCount       int                   `json:"voteCount"`
}

// PlayerKicked is the moderation notice. The kicked participant receives it
// with IsKickedUser=true so its client can suppress auto-reconnect.
type PlayerKicked struct {
	PlayerID     string `json:"playerId"`
	PlayerName   string `json:"playerName"`
	IsKickedUser bool   `json:"isKickedUser"`
}

// EmojiThrown is a pass-through visual effect, not part of room state.
type EmojiThrown struct {
	Emoji  string `json:"emoji"`
	Source string `json:"source"`
	Target string `json:"target"`
}

// ServerMessage is the server -> client envelope. The embedded payload
// pointers flatten into the record when set, so the wire shape stays the flat
// JSON the frontend has always read.
type ServerMessage struct {
	Type string `json:"type"`
	*ChannelState
	*PlayerKicked
	*EmojiThrown
	Code     string `json:"code,omitempty"`
	Username string `json:"username,omitempty"`
	Message  string `json:"message,omitempty"`
}

func RoomCodeMessage(code string) ServerMessage {
	return ServerMessage{Type: TypeRoomCode, Code: code}
}

func ChannelStateMessage(cs ChannelState) ServerMessage {
	return ServerMessage{Type: TypeChannelState, ChannelState: &cs}
}

func PlayerJoinedMessage(username string) ServerMessage {
	return ServerMessage{Type: TypePlayerJoined, Username: username}
}

func PlayerLeftMessage(username string) ServerMessage {
	return ServerMessage{Type: TypePlayerLeft, Username: username}
}

func PlayerKickedMessage(id, name string, isKickedUser bool) ServerMessage {
	return ServerMessage{Type: TypePlayerKicked, PlayerKicked: &PlayerKicked{
		PlayerID:     id,
		PlayerName:   name,
		IsKickedUser: isKickedUser,
	}}
}

func EmojiThrownMessage(emoji, source, target string) ServerMessage {
	return ServerMessage{Type: TypeEmojiThrown, EmojiThrown: &EmojiThrown{
		Emoji:  emoji,
		Source: source,
		Target: target,
	}}
}

func ErrorMessage(message string) ServerMessage {
	return ServerMessage{Type: TypeError, Message: message}
}
