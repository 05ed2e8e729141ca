// Package registry owns the process-wide mapping from room code to live
// Room. Like the rooms themselves it is a single goroutine over a typed
// inbox, so creation races on the same code collapse to first-writer-wins.
package registry

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/sprintpoker/backend/internal/room"
)

type Msg interface{ isRegistryMsg() }

// EnsureRoom resolves the room for a code, creating it if absent. An empty
// code mints a fresh one; the created (or found) room's code is read from
// the returned room.
type EnsureRoom struct {
	Code  string
	Reply chan *room.Room
}

// GetRoom replies with the room under a code, or nil.
type GetRoom struct {
	Code  string
	Reply chan *room.Room
}

// ReleaseRoom removes a room that reported itself empty. A room that has
// admitted a participant since is kept.
type ReleaseRoom struct{ Code string }

// GenerateCode replies with a fresh code distinct from every registered one.
type GenerateCode struct{ Reply chan string }

type Shutdown struct{}

func (EnsureRoom) isRegistryMsg()   {}
func (GetRoom) isRegistryMsg()      {}
func (ReleaseRoom) isRegistryMsg()  {}
func (GenerateCode) isRegistryMsg() {}
func (Shutdown) isRegistryMsg()     {}

type Options struct {
	// Retention is how long an empty room survives before the sweep reclaims
	// it. The sweep is a safety net; the normal path is the room reporting
	// itself empty.
	Retention     time.Duration
	SweepInterval time.Duration
	Clock         clockwork.Clock
	Logger        *zap.Logger
}

type Registry struct {
	inbox chan Msg
	rooms map[string]*room.Room

	retention time.Duration
	clock     clockwork.Clock
	log       *zap.Logger
	roomLog   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

func New(parent context.Context, opts Options) *Registry {
	if opts.Retention <= 0 {
		opts.Retention = time.Hour
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = 15 * time.Minute
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)
	r := &Registry{
		inbox:     make(chan Msg, 64),
		rooms:     make(map[string]*room.Room),
		retention: opts.Retention,
		clock:     opts.Clock,
		log:       opts.Logger.Named("registry"),
		roomLog:   opts.Logger,
		ctx:       ctx,
		cancel:    cancel,
	}
	go r.loop(opts.SweepInterval)
	return r
}

func (r *Registry) Inbox() chan<- Msg { return r.inbox }

func (r *Registry) loop(sweepEvery time.Duration) {
	ticker := r.clock.NewTicker(sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case <-ticker.Chan():
			r.sweep()

		case m := <-r.inbox:
			switch msg := m.(type) {
			case EnsureRoom:
				msg.Reply <- r.ensure(msg.Code)

			case GetRoom:
				msg.Reply <- r.rooms[msg.Code] // may be nil

			case ReleaseRoom:
				if rm := r.rooms[msg.Code]; rm != nil && rm.Empty() {
					r.drop(msg.Code, rm, "empty")
				}

			case GenerateCode:
				msg.Reply <- r.freshCode()

			case Shutdown:
				r.shutdown()
				return
			}
		}
	}
}

func (r *Registry) ensure(code string) *room.Room {
	if code == "" {
		code = r.freshCode()
	}
	if rm := r.rooms[code]; rm != nil {
		return rm
	}
	rm := room.New(code, r.clock, r.notifyEmpty, r.roomLog)
	r.rooms[code] = rm
	r.log.Info("room created", zap.String("room", code))
	return rm
}

// notifyEmpty runs on the emptying room's goroutine. The send must not block
// it: if the inbox is full the sweep reclaims the room instead.
func (r *Registry) notifyEmpty(code string) {
	select {
	case r.inbox <- ReleaseRoom{Code: code}:
	default:
	}
}

func (r *Registry) sweep() {
	cutoff := r.clock.Now().Add(-r.retention)
	for code, rm := range r.rooms {
		if rm.EmptiedBefore(cutoff) {
			r.drop(code, rm, "retention sweep")
		}
	}
}

func (r *Registry) drop(code string, rm *room.Room, reason string) {
	delete(r.rooms, code)
	rm.Send(room.Shutdown{})
	r.log.Info("room removed", zap.String("room", code), zap.String("reason", reason))
}

func (r *Registry) shutdown() {
	for code, rm := range r.rooms {
		delete(r.rooms, code)
		rm.Send(room.Shutdown{})
	}
	r.cancel()
}

const codeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const codeLength = 6

// freshCode draws codes until one misses the registry. Collisions on a
// 36^6 space are rare enough that the retry loop is the whole strategy.
func (r *Registry) freshCode() string {
	for {
		code := randomCode()
		if _, taken := r.rooms[code]; !taken {
			return code
		}
		r.log.Warn("room code collision, redrawing", zap.String("room", code))
	}
}

func randomCode() string {
	code := make([]byte, codeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeCharset))))
		if err != nil {
			// crypto/rand failing means the process is in far deeper
			// trouble than room codes.
			panic(err)
		}
		code[i] = codeCharset[n.Int64()]
	}
	return string(code)
}
