// Package ws adapts WebSocket connections onto the registry and room
// actors: one reader loop per connection, one writer goroutine draining the
// participant's outbox, and a closed dispatch from wire type to room
// message.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/sprintpoker/backend/internal/registry"
	"github.com/sprintpoker/backend/internal/room"
	"github.com/sprintpoker/backend/pkg/protocol"
)

const (
	writeTimeout = 3 * time.Second
	outboxSize   = 16
)

type Options struct {
	// OriginPatterns is passed through to the WebSocket accept; empty means
	// same-origin only.
	OriginPatterns []string
}

func Handler(reg *registry.Registry, log *zap.Logger, opts Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: opts.OriginPatterns,
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		s := &session{
			conn: conn,
			reg:  reg,
			log:  log.Named("ws"),
		}
		s.run(r.Context())
	}
}

// session is the per-connection state: at most one participant in at most
// one room for the connection's lifetime.
type session struct {
	conn *websocket.Conn
	reg  *registry.Registry
	log  *zap.Logger

	joined    bool
	sessionID string
	room      *room.Room
	outbox    chan protocol.ServerMessage
}

func (s *session) run(ctx context.Context) {
	defer func() {
		if s.joined {
			s.room.Send(room.Leave{SessionID: s.sessionID})
		}
	}()

	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			// Clean close, going-away and plain drops all end the same way:
			// the deferred Leave cleans the participant up.
			return
		}

		var cm protocol.ClientMessage
		if err := json.Unmarshal(data, &cm); err != nil {
			s.sendError(ctx, "invalid message format")
			continue
		}
		if !protocol.KnownClientType(cm.Type) {
			s.sendError(ctx, "unknown message type")
			continue
		}
		s.dispatch(ctx, cm)
	}
}

func (s *session) dispatch(ctx context.Context, cm protocol.ClientMessage) {
	switch cm.Type {
	case protocol.TypeGenerateRoom:
		reply := make(chan string, 1)
		s.reg.Inbox() <- registry.GenerateCode{Reply: reply}
		s.write(ctx, protocol.RoomCodeMessage(<-reply))

	case protocol.TypeJoin:
		s.handleJoin(ctx, cm)

	default:
		if !s.joined {
			s.sendError(ctx, "join a room first")
			return
		}
		msg, ok := s.toRoomMsg(cm)
		if !ok {
			s.sendError(ctx, "unknown message type")
			return
		}
		s.room.Send(msg)
	}
}

func (s *session) handleJoin(ctx context.Context, cm protocol.ClientMessage) {
	// One connection maps to at most one participant; a second join on the
	// same connection is rejected, not merged.
	if s.joined {
		s.sendError(ctx, room.ErrAlreadyJoined.Error())
		return
	}
	if cm.Username == "" {
		s.sendError(ctx, "username is required")
		return
	}

	reply := make(chan *room.Room, 1)
	s.reg.Inbox() <- registry.EnsureRoom{Code: cm.Channel, Reply: reply}
	rm := <-reply

	outbox := make(chan protocol.ServerMessage, outboxSize)
	id, err := rm.JoinSync(cm.Username, outbox)
	if err != nil {
		s.sendError(ctx, err.Error())
		return
	}

	s.joined = true
	s.sessionID = id
	s.room = rm
	s.outbox = outbox
	s.log = s.log.With(zap.String("room", rm.Code()), zap.String("session", id))
	s.log.Info("joined", zap.String("name", cm.Username))

	go s.writeLoop(ctx)
}

// toRoomMsg maps a decoded wire record onto the room's message union.
func (s *session) toRoomMsg(cm protocol.ClientMessage) (room.Msg, bool) {
	switch cm.Type {
	case protocol.TypeVote:
		return room.CastVote{SessionID: s.sessionID, Vote: cm.Vote}, true
	case protocol.TypeReveal:
		return room.Reveal{SessionID: s.sessionID}, true
	case protocol.TypeReset:
		return room.Reset{SessionID: s.sessionID}, true
	case protocol.TypeUpdateCardSet:
		return room.ChangeDeck{SessionID: s.sessionID, DeckType: cm.DeckType, Cards: cm.Cards}, true
	case protocol.TypeUpdateSummary:
		return room.SetSummary{SessionID: s.sessionID, Summary: cm.Summary}, true
	case protocol.TypeThrowEmoji:
		return room.ThrowEmoji{SessionID: s.sessionID, Emoji: cm.Emoji, TargetID: cm.TargetID}, true
	case protocol.TypeKickPlayer:
		return room.Kick{SessionID: s.sessionID, TargetID: cm.TargetID}, true
	default:
		return nil, false
	}
}

// writeLoop drains the outbox until the room closes it (leave, kick, room
// shutdown), then tears the connection down so the reader unblocks.
func (s *session) writeLoop(ctx context.Context) {
	for msg := range s.outbox {
		s.write(ctx, msg)
	}
	s.conn.Close(websocket.StatusNormalClosure, "room closed connection")
}

// write is best-effort: a failed send to this connection is this
// connection's problem alone.
func (s *session) write(ctx context.Context, msg protocol.ServerMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		s.log.Error("marshal server message", zap.Error(err))
		return
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := s.conn.Write(wctx, websocket.MessageText, payload); err != nil &&
		!errors.Is(err, context.Canceled) {
		s.log.Debug("write failed", zap.Error(err))
	}
}

func (s *session) sendError(ctx context.Context, message string) {
	s.write(ctx, protocol.ErrorMessage(message))
}
