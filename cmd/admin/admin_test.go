package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"brawlarena.ai/internal/persistence/indexdb"
	persistlog "brawlarena.ai/internal/persistence/log"
	"brawlarena.ai/internal/persistence/session"
	"brawlarena.ai/internal/persistence/snapshot"
	"brawlarena.ai/internal/presence"
	"brawlarena.ai/internal/protocol"
	"brawlarena.ai/internal/sim/world"
)

func TestListSessionsNewestFirst(t *testing.T) {
	data := t.TempDir()
	for _, id := range []string{"01AAA", "01CCC", "01BBB"} {
		if err := session.WriteMeta(session.Dir(data, id), session.Meta{ID: id, Player: "p-" + id}); err != nil {
			t.Fatal(err)
		}
	}
	metas, err := listSessions(data)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(metas) != 3 || metas[0].ID != "01CCC" || metas[2].ID != "01AAA" {
		t.Fatalf("order: %+v", metas)
	}
}

func TestReadAuditFilters(t *testing.T) {
	data := t.TempDir()
	l := persistlog.NewAuditLogger(data)
	old := time.Now().Add(-2 * time.Hour).UTC()
	now := time.Now().UTC()
	for _, e := range []presence.AuditEntry{
		{Time: old, Kind: protocol.EventChildAdded, Key: "ann", Seq: 1},
		{Time: now, Kind: protocol.EventChildChanged, Key: "ann", Seq: 2},
		{Time: now, Kind: protocol.EventChildAdded, Key: "bob", Seq: 3},
	} {
		if err := l.WriteAudit(e); err != nil {
			t.Fatal(err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	all, err := readAudit(data, "", time.Time{})
	if err != nil || len(all) != 3 {
		t.Fatalf("all: %d %v", len(all), err)
	}
	ann, _ := readAudit(data, "ann", time.Time{})
	if len(ann) != 2 {
		t.Fatalf("ann: %+v", ann)
	}
	recent, _ := readAudit(data, "ann", now.Add(-time.Minute))
	if len(recent) != 1 || recent[0].Seq != 2 {
		t.Fatalf("recent: %+v", recent)
	}
}

func TestSummarizeSnapshot(t *testing.T) {
	s := summarizeSnapshot(snapshot.SnapshotV1{
		Header: snapshot.Header{Version: snapshot.Version, Session: "s", Tick: 60},
		Bodies: []snapshot.BodyV1{{Kind: "dynamic"}, {Kind: "dynamic"}, {Kind: "kinematic"}},
		Entities: []snapshot.EntityV1{
			{Name: "crate_1", Model: "crate"},
			{Name: "bob", Model: "fighter", Username: "bob", Remote: true},
			{Name: "ann", Model: "fighter", Username: "ann", Local: true, Action: "idle"},
		},
	})
	if s.Bodies["dynamic"] != 2 || s.Bodies["kinematic"] != 1 {
		t.Fatalf("bodies: %+v", s.Bodies)
	}
	if len(s.Players) != 2 || s.Players[0] != "ann" || s.Actions["ann"] != "idle" {
		t.Fatalf("players: %+v actions: %+v", s.Players, s.Actions)
	}
}

func TestQueryIndex(t *testing.T) {
	idx, err := indexdb.OpenSQLite(filepath.Join(t.TempDir(), "arena.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()
	ctx := context.Background()
	idx.BeginSession("s1", "arena")
	_ = idx.WriteTick(world.TickLogEntry{Tick: 0, Digest: "d0"})
	_ = idx.WriteAudit(presence.AuditEntry{Time: time.Now(), Kind: protocol.EventChildAdded, Key: "ann", Seq: 1})
	if err := idx.Flush(ctx); err != nil {
		t.Fatal(err)
	}

	if rows, err := queryIndex(ctx, idx, "sessions", "", "", 0, 10); err != nil || len(rows) != 1 {
		t.Fatalf("sessions: %v %v", rows, err)
	}
	if rows, err := queryIndex(ctx, idx, "frames", "s1", "", 0, 10); err != nil || len(rows) != 1 {
		t.Fatalf("frames: %v %v", rows, err)
	}
	if rows, err := queryIndex(ctx, idx, "presence", "", "ann", 0, 10); err != nil || len(rows) != 1 {
		t.Fatalf("presence: %v %v", rows, err)
	}
	if _, err := queryIndex(ctx, idx, "frames", "", "", 0, 10); err == nil {
		t.Fatalf("frames without session should fail")
	}
	if _, err := queryIndex(ctx, idx, "agents", "", "", 0, 10); err == nil {
		t.Fatalf("unknown query should fail")
	}
}

func TestPrintUsers(t *testing.T) {
	body := []byte(`{"sessions":2,"users":[{"key":"ann","record":{"username":"ann","character":"fighter","ready":true,"isRoomAdmin":true,"userIndex":0,"pos":{"x":1,"y":0.5,"z":-2},"quat":{"x":0,"y":0,"z":0,"w":1}}}]}`)
	var out bytes.Buffer
	if err := printUsers(&out, body); err != nil {
		t.Fatalf("print: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "sessions=2 users=1") {
		t.Fatalf("header: %q", got)
	}
	if !strings.Contains(got, "ann") || !strings.Contains(got, "1.00,0.50,-2.00") {
		t.Fatalf("row: %q", got)
	}
	if err := printUsers(&out, []byte("not json")); err == nil {
		t.Fatalf("bad body should fail")
	}
}
