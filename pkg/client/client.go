// Package client is a Go client for the room-sync protocol: a reconnecting
// WebSocket connection plus the reconciler that keeps the rendered view
// consistent with both server snapshots and in-flight local votes.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/sprintpoker/backend/pkg/protocol"
)

// ErrKicked means the server removed this participant deliberately; the
// client will not reconnect.
var ErrKicked = errors.New("kicked from room")

const defaultBackoff = 2 * time.Second

// Handlers are optional event callbacks. They run on the client's read
// goroutine; don't block in them.
type Handlers struct {
	OnState        func(protocol.ChannelState)
	OnRoomCode     func(code string)
	OnPlayerJoined func(username string)
	OnPlayerLeft   func(username string)
	OnPlayerKicked func(playerID, playerName string)
	OnEmojiThrown  func(emoji, source, target string)
	OnError        func(message string)
}

type Client struct {
	url      string
	username string
	channel  string
	backoff  time.Duration
	handlers Handlers
	log      *zap.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	rec    *Reconciler
	kicked bool
}

type Option func(*Client)

func WithBackoff(d time.Duration) Option {
	return func(c *Client) { c.backoff = d }
}

func WithHandlers(h Handlers) Option {
	return func(c *Client) { c.handlers = h }
}

func WithLogger(log *zap.Logger) Option {
	return func(c *Client) { c.log = log }
}

// New prepares a client that will join the given channel under the given
// display name. An empty channel lets the server mint a room code.
func New(url, username, channel string, opts ...Option) *Client {
	c := &Client{
		url:      url,
		username: username,
		channel:  channel,
		backoff:  defaultBackoff,
		rec:      NewReconciler(),
		log:      zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Run connects, joins, and consumes server messages until ctx is done or
// the participant is kicked. Transport loss triggers reconnection on a fixed
// backoff, resubmitting the original join; the server treats a same-name
// rejoin as the continuation of this participant once the stale entry is
// gone.
func (c *Client) Run(ctx context.Context) error {
	for {
		err := c.session(ctx)
		if errors.Is(err, ErrKicked) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Info("connection lost, reconnecting",
			zap.Duration("backoff", c.backoff), zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.backoff):
		}
	}
}

func (c *Client) session(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	if err := c.send(ctx, protocol.ClientMessage{
		Type:     protocol.TypeJoin,
		Username: c.username,
		Channel:  c.channel,
	}); err != nil {
		return err
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if c.isKicked() {
				return ErrKicked
			}
			return err
		}
		var msg protocol.ServerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.log.Warn("bad server message", zap.Error(err))
			continue
		}
		if done := c.handle(msg); done {
			return ErrKicked
		}
	}
}

func (c *Client) handle(msg protocol.ServerMessage) bool {
	switch msg.Type {
	case protocol.TypeChannelState:
		if msg.ChannelState == nil {
			return false
		}
		c.mu.Lock()
		c.rec.ApplyState(*msg.ChannelState)
		// Remember the authoritative code so reconnects land in the same
		// room even when the server minted it.
		c.channel = msg.ChannelState.RoomCode
		view, _ := c.rec.View()
		c.mu.Unlock()
		if c.handlers.OnState != nil {
			c.handlers.OnState(view)
		}

	case protocol.TypeRoomCode:
		c.mu.Lock()
		c.channel = msg.Code
		c.mu.Unlock()
		if c.handlers.OnRoomCode != nil {
			c.handlers.OnRoomCode(msg.Code)
		}

	case protocol.TypePlayerJoined:
		if c.handlers.OnPlayerJoined != nil {
			c.handlers.OnPlayerJoined(msg.Username)
		}

	case protocol.TypePlayerLeft:
		if c.handlers.OnPlayerLeft != nil {
			c.handlers.OnPlayerLeft(msg.Username)
		}

	case protocol.TypePlayerKicked:
		if msg.PlayerKicked == nil {
			return false
		}
		if msg.PlayerKicked.IsKickedUser {
			c.mu.Lock()
			c.kicked = true
			c.mu.Unlock()
			return true
		}
		if c.handlers.OnPlayerKicked != nil {
			c.handlers.OnPlayerKicked(msg.PlayerKicked.PlayerID, msg.PlayerKicked.PlayerName)
		}

	case protocol.TypeEmojiThrown:
		if msg.EmojiThrown != nil && c.handlers.OnEmojiThrown != nil {
			c.handlers.OnEmojiThrown(msg.EmojiThrown.Emoji, msg.EmojiThrown.Source, msg.EmojiThrown.Target)
		}

	case protocol.TypeError:
		if c.handlers.OnError != nil {
			c.handlers.OnError(msg.Message)
		}
	}
	return false
}

// Vote casts (or retracts, with nil) a vote, flipping the local view
// optimistically before the server confirms.
func (c *Client) Vote(ctx context.Context, label *string) error {
	c.mu.Lock()
	c.rec.CastVote(label)
	c.mu.Unlock()
	return c.send(ctx, protocol.ClientMessage{Type: protocol.TypeVote, Vote: label})
}

func (c *Client) Reveal(ctx context.Context) error {
	return c.send(ctx, protocol.ClientMessage{Type: protocol.TypeReveal})
}

func (c *Client) Reset(ctx context.Context) error {
	return c.send(ctx, protocol.ClientMessage{Type: protocol.TypeReset})
}

func (c *Client) ChangeDeck(ctx context.Context, deckType string, cards []string) error {
	return c.send(ctx, protocol.ClientMessage{Type: protocol.TypeUpdateCardSet, DeckType: deckType, Cards: cards})
}

func (c *Client) SetSummary(ctx context.Context, summary string) error {
	return c.send(ctx, protocol.ClientMessage{Type: protocol.TypeUpdateSummary, Summary: summary})
}

func (c *Client) ThrowEmoji(ctx context.Context, emoji, targetID string) error {
	return c.send(ctx, protocol.ClientMessage{Type: protocol.TypeThrowEmoji, Emoji: emoji, TargetID: targetID})
}

func (c *Client) KickPlayer(ctx context.Context, targetID string) error {
	return c.send(ctx, protocol.ClientMessage{Type: protocol.TypeKickPlayer, TargetID: targetID})
}

func (c *Client) GenerateRoom(ctx context.Context) error {
	return c.send(ctx, protocol.ClientMessage{Type: protocol.TypeGenerateRoom})
}

// State returns the rendered view: last snapshot plus any unconfirmed vote.
func (c *Client) State() (protocol.ChannelState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rec.View()
}

func (c *Client) send(ctx context.Context, msg protocol.ClientMessage) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errors.New("not connected")
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, payload)
}

func (c *Client) isKicked() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.kicked
}
