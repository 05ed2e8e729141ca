package ws_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/sprintpoker/backend/internal/httpapi"
	"github.com/sprintpoker/backend/internal/registry"
	"github.com/sprintpoker/backend/pkg/client"
	"github.com/sprintpoker/backend/pkg/protocol"
)

func startServer(t *testing.T) string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	reg := registry.New(ctx, registry.Options{Logger: zap.NewNop()})
	srv := httptest.NewServer(httpapi.SetupRoutes(reg, zap.NewNop(), httpapi.Options{}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

type testParticipant struct {
	client *client.Client
	states chan protocol.ChannelState
	errs   chan string
	kicked chan string
	runErr chan error
}

func connect(t *testing.T, ctx context.Context, url, name, channel string) *testParticipant {
	t.Helper()
	p := &testParticipant{
		states: make(chan protocol.ChannelState, 64),
		errs:   make(chan string, 8),
		kicked: make(chan string, 8),
		runErr: make(chan error, 1),
	}
	p.client = client.New(url, name, channel,
		client.WithBackoff(100*time.Millisecond),
		client.WithHandlers(client.Handlers{
			OnState:        func(cs protocol.ChannelState) { p.states <- cs },
			OnError:        func(msg string) { p.errs <- msg },
			OnPlayerKicked: func(id, name string) { p.kicked <- name },
		}))
	go func() { p.runErr <- p.client.Run(ctx) }()
	return p
}

// waitState consumes snapshots until one satisfies pred.
func (p *testParticipant) waitState(t *testing.T, pred func(protocol.ChannelState) bool) protocol.ChannelState {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case cs := <-p.states:
			if pred(cs) {
				return cs
			}
		case <-deadline:
			t.Fatalf("timed out waiting for snapshot")
			return protocol.ChannelState{}
		}
	}
}

func (p *testParticipant) self(cs protocol.ChannelState) protocol.PlayerView {
	for _, pv := range cs.Players {
		if pv.IsCurrentUser {
			return pv
		}
	}
	return protocol.PlayerView{}
}

func (p *testParticipant) other(cs protocol.ChannelState) protocol.PlayerView {
	for _, pv := range cs.Players {
		if !pv.IsCurrentUser {
			return pv
		}
	}
	return protocol.PlayerView{}
}

func strptr(s string) *string { return &s }

func TestEndToEnd_VoteRevealReset(t *testing.T) {
	url := startServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	alice := connect(t, ctx, url, "Alice", "TESTRM")
	alice.waitState(t, func(cs protocol.ChannelState) bool { return len(cs.Players) == 1 })

	bob := connect(t, ctx, url, "Bob", "TESTRM")
	bob.waitState(t, func(cs protocol.ChannelState) bool { return len(cs.Players) == 2 })
	alice.waitState(t, func(cs protocol.ChannelState) bool { return len(cs.Players) == 2 })

	if err := alice.client.Vote(ctx, strptr("2")); err != nil {
		t.Fatalf("vote: %v", err)
	}

	// Bob sees Alice as voted, but never her label pre-reveal.
	hidden := bob.waitState(t, func(cs protocol.ChannelState) bool { return cs.VoteCount == 1 })
	if o := bob.other(hidden); !o.HasVoted || o.Vote != nil {
		t.Fatalf("pre-reveal leak: %+v", o)
	}

	// Alice's own snapshot echoes her label back.
	mine := alice.waitState(t, func(cs protocol.ChannelState) bool { return cs.VoteCount == 1 })
	if s := alice.self(mine); s.Vote == nil || *s.Vote != "2" {
		t.Fatalf("own vote not echoed: %+v", s)
	}

	if err := bob.client.Vote(ctx, strptr("3")); err != nil {
		t.Fatalf("vote: %v", err)
	}
	bob.waitState(t, func(cs protocol.ChannelState) bool { return cs.VoteCount == 2 })

	if err := alice.client.Reveal(ctx); err != nil {
		t.Fatalf("reveal: %v", err)
	}
	revealed := bob.waitState(t, func(cs protocol.ChannelState) bool { return cs.Revealed })
	if o := bob.other(revealed); o.Vote == nil || *o.Vote != "2" {
		t.Fatalf("after reveal Bob must see Alice's label, got %+v", o)
	}

	if err := bob.client.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	cleared := alice.waitState(t, func(cs protocol.ChannelState) bool { return !cs.Revealed && cs.VoteCount == 0 })
	for _, pv := range cleared.Players {
		if pv.HasVoted {
			t.Fatalf("reset must clear all votes")
		}
	}
}

func TestEndToEnd_DuplicateNameRejected(t *testing.T) {
	url := startServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	alice := connect(t, ctx, url, "Alice", "DUPRM1")
	alice.waitState(t, func(cs protocol.ChannelState) bool { return len(cs.Players) == 1 })

	imposter := connect(t, ctx, url, "Alice", "DUPRM1")
	select {
	case msg := <-imposter.errs:
		if !strings.Contains(msg, "taken") {
			t.Fatalf("want name-taken rejection, got %q", msg)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("duplicate join was not rejected")
	}

	// The room is untouched by the rejected join: the next snapshot (here
	// prompted by a vote) still shows one participant.
	if err := alice.client.Vote(ctx, strptr("2")); err != nil {
		t.Fatalf("vote: %v", err)
	}
	st := alice.waitState(t, func(cs protocol.ChannelState) bool { return cs.VoteCount == 1 })
	if len(st.Players) != 1 {
		t.Fatalf("rejected join altered the participant set: %d", len(st.Players))
	}
}

func TestEndToEnd_KickSuppressesReconnect(t *testing.T) {
	url := startServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	alice := connect(t, ctx, url, "Alice", "KICKRM")
	alice.waitState(t, func(cs protocol.ChannelState) bool { return len(cs.Players) == 1 })

	carol := connect(t, ctx, url, "Carol", "KICKRM")
	st := alice.waitState(t, func(cs protocol.ChannelState) bool { return len(cs.Players) == 2 })

	var carolID string
	for id, pv := range st.Players {
		if pv.Name == "Carol" {
			carolID = id
		}
	}
	if carolID == "" {
		t.Fatalf("Carol missing from snapshot")
	}

	if err := alice.client.KickPlayer(ctx, carolID); err != nil {
		t.Fatalf("kick: %v", err)
	}

	// Carol's client ends for good instead of reconnecting.
	select {
	case err := <-carol.runErr:
		if !errors.Is(err, client.ErrKicked) {
			t.Fatalf("want ErrKicked, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("kicked client kept running")
	}

	// Alice gets the moderation notice and a 1-player snapshot.
	select {
	case name := <-alice.kicked:
		if name != "Carol" {
			t.Fatalf("want Carol in moderation notice, got %q", name)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("moderation notice never arrived")
	}
	alice.waitState(t, func(cs protocol.ChannelState) bool { return len(cs.Players) == 1 })
}

func TestEndToEnd_ReconnectRejoinsSameRoom(t *testing.T) {
	url := startServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Bob's first connection gets its own cancellable context so the test
	// can sever the transport out from under the client.
	bobCtx, dropBob := context.WithCancel(ctx)
	bob := connect(t, bobCtx, url, "Bob", "RECONN")
	bob.waitState(t, func(cs protocol.ChannelState) bool { return len(cs.Players) == 1 })

	alice := connect(t, ctx, url, "Alice", "RECONN")
	alice.waitState(t, func(cs protocol.ChannelState) bool { return len(cs.Players) == 2 })

	dropBob()
	alice.waitState(t, func(cs protocol.ChannelState) bool { return len(cs.Players) == 1 })

	// A fresh client with the same name is the continuation of Bob.
	bob2 := connect(t, ctx, url, "Bob", "RECONN")
	st := bob2.waitState(t, func(cs protocol.ChannelState) bool { return len(cs.Players) == 2 })
	if st.RoomCode != "RECONN" {
		t.Fatalf("rejoin landed in %q", st.RoomCode)
	}
}
