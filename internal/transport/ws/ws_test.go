package ws

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/gorilla/websocket"

	"brawlarena.ai/internal/presence"
	"brawlarena.ai/internal/protocol"
)

func quiet() *log.Logger { return log.New(io.Discard, "", 0) }

func startServer(t *testing.T) (*presence.Hub, string) {
	t.Helper()
	hub := presence.NewHub(presence.HubConfig{Logger: quiet()})
	srv := httptest.NewServer(NewServer(hub, 64, quiet()).Handler())
	t.Cleanup(srv.Close)
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url, name, codec string) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := Dial(ctx, url, ClientConfig{Name: name, Codec: codec, Logger: quiet()})
	if err != nil {
		t.Fatalf("Dial %s: %v", name, err)
	}
	return c
}

func user(name string) protocol.UserRecord {
	return protocol.UserRecord{Username: name, Character: "hero", Quat: protocol.IdentityQuat()}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

type eventLog struct {
	mu  sync.Mutex
	evs []presence.Event
}

func (l *eventLog) add(ev presence.Event) {
	l.mu.Lock()
	l.evs = append(l.evs, ev)
	l.mu.Unlock()
}

func (l *eventLog) kinds() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.evs))
	for _, ev := range l.evs {
		out = append(out, ev.Kind+":"+ev.Key)
	}
	return out
}

func TestClient_SetListAndEvents(t *testing.T) {
	for _, codec := range []string{protocol.CodecJSON, protocol.CodecMsgpack} {
		t.Run(codec, func(t *testing.T) {
			hub, url := startServer(t)
			a := dial(t, url, "a", codec)
			defer a.Close()
			b := dial(t, url, "b", codec)
			defer b.Close()

			var seen eventLog
			b.Watch(seen.add)

			ctx := context.Background()
			if err := a.Set(ctx, "alice", user("alice")); err != nil {
				t.Fatalf("Set: %v", err)
			}
			ready := true
			if err := a.Update(ctx, "alice", protocol.UserPatch{Ready: &ready}); err != nil {
				t.Fatalf("Update: %v", err)
			}
			entries, err := b.List(ctx)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(entries) != 1 || entries[0].Key != "alice" || !entries[0].Record.Ready {
				t.Fatalf("entries: %+v", entries)
			}
			waitFor(t, "events", func() bool { return len(seen.kinds()) == 2 })
			if got := seen.kinds(); got[0] != "child_added:alice" || got[1] != "child_changed:alice" {
				t.Fatalf("events: %v", got)
			}
			if len(hub.Snapshot()) != 1 {
				t.Fatalf("hub: %+v", hub.Snapshot())
			}
		})
	}
}

func TestClient_ErrorCodesRoundTrip(t *testing.T) {
	_, url := startServer(t)
	a := dial(t, url, "a", "")
	defer a.Close()
	b := dial(t, url, "b", "")
	defer b.Close()
	ctx := context.Background()

	err := a.Set(ctx, "alice", user("bob"))
	if !errors.Is(err, protocol.NewError(protocol.ErrBadRecord, "")) {
		t.Fatalf("mismatched username: got %v", err)
	}
	if err := a.Set(ctx, "alice", user("alice")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := b.Remove(ctx, "alice"); !errors.Is(err, presence.ErrNotOwner) {
		t.Fatalf("foreign remove: got %v", err)
	}
	idx := 1
	if err := b.Update(ctx, "nobody", protocol.UserPatch{UserIndex: &idx}); !errors.Is(err, presence.ErrNotFound) {
		t.Fatalf("missing update: got %v", err)
	}
}

func TestClient_DisconnectRemovesRecord(t *testing.T) {
	hub, url := startServer(t)
	a := dial(t, url, "a", "")
	b := dial(t, url, "b", "")
	defer b.Close()
	ctx := context.Background()

	var seen eventLog
	b.Watch(seen.add)
	if err := a.Set(ctx, "alice", user("alice")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := a.OnDisconnectRemove(ctx, "alice"); err != nil {
		t.Fatalf("OnDisconnectRemove: %v", err)
	}
	a.Close()
	waitFor(t, "removal", func() bool { return len(hub.Snapshot()) == 0 })
	waitFor(t, "removal event", func() bool {
		k := seen.kinds()
		return len(k) == 2 && k[1] == "child_removed:alice"
	})
	if err := a.Set(ctx, "alice", user("alice")); !errors.Is(err, presence.ErrNotConnected) {
		t.Fatalf("write after close: got %v", err)
	}
}

func TestStoresOverWebsocket(t *testing.T) {
	_, url := startServer(t)
	ctx := context.Background()

	remote := make(chan presence.RemoteTransform, 16)
	alice := presence.NewStore(dial(t, url, "alice", ""), presence.StoreConfig{Logger: quiet()})
	defer alice.Close()
	bob := presence.NewStore(dial(t, url, "bob", protocol.CodecMsgpack), presence.StoreConfig{Logger: quiet(), Remote: remote})
	defer bob.Close()

	if err := alice.PublishSelf(ctx, user("alice")); err != nil {
		t.Fatalf("alice: %v", err)
	}
	if err := bob.PublishSelf(ctx, user("bob")); err != nil {
		t.Fatalf("bob: %v", err)
	}
	waitFor(t, "mirrors", func() bool {
		a, _ := alice.Record("alice")
		b, _ := alice.Record("bob")
		return len(bob.Users()) == 2 && a.IsRoomAdmin && !b.IsRoomAdmin && b.UserIndex == 1
	})

	if err := alice.SetReady(ctx); err != nil {
		t.Fatalf("ready: %v", err)
	}
	if err := bob.SetReady(ctx); err != nil {
		t.Fatalf("ready: %v", err)
	}
	waitFor(t, "playing", func() bool {
		return alice.Status() == presence.StatusPlaying && bob.Status() == presence.StatusPlaying
	})

	if err := alice.SyncTransform(ctx, mgl64.Vec3{1, 2, 3}, mgl64.QuatIdent()); err != nil {
		t.Fatalf("sync: %v", err)
	}
	select {
	case rt := <-remote:
		if rt.Key != "alice" || !rt.Pos.ApproxEqual(mgl64.Vec3{1, 2, 3}) {
			t.Fatalf("remote: %+v", rt)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("no remote transform")
	}
}

func TestServer_RejectsBadHandshake(t *testing.T) {
	_, url := startServer(t)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if err := conn.WriteJSON(protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: "0.1"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	var ce *websocket.CloseError
	if !errors.As(err, &ce) || ce.Code != websocket.ClosePolicyViolation {
		t.Fatalf("expected policy close, got %v", err)
	}
}
