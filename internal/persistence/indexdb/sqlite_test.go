package indexdb

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"brawlarena.ai/internal/persistence/snapshot"
	"brawlarena.ai/internal/presence"
	"brawlarena.ai/internal/sim/catalogs"
	"brawlarena.ai/internal/sim/tuning"
	"brawlarena.ai/internal/sim/world"
)

func openTest(t *testing.T) *SQLiteIndex {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "index.sqlite"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteIndex_FramesAndSessions(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	s.BeginSession("s1", "arena")
	for i := 0; i < 5; i++ {
		in := world.FrameInput{Dt: 1.0 / 60}
		if i == 0 {
			in.Spawns = []world.PlacedModel{{Name: "me", Model: "hero"}}
		}
		_ = s.WriteTick(world.TickLogEntry{Tick: uint64(i), Input: in, Digest: "d"})
	}
	s.RecordSnapshot("/tmp/4.snap.zst", snapshot.SnapshotV1{Header: snapshot.Header{Tick: 4}})
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	sessions, err := s.RecentSessions(ctx, 10)
	if err != nil {
		t.Fatalf("RecentSessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != "s1" || sessions[0].Place != "arena" || sessions[0].Frames != 5 {
		t.Fatalf("sessions: %+v", sessions)
	}
	frames, err := s.Frames(ctx, "s1", 3, 10)
	if err != nil {
		t.Fatalf("Frames: %v", err)
	}
	if len(frames) != 2 || frames[0].Tick != 3 {
		t.Fatalf("frames: %+v", frames)
	}
	all, _ := s.Frames(ctx, "s1", 0, 1)
	if len(all) != 1 || all[0].Spawns != 1 {
		t.Fatalf("first frame: %+v", all)
	}

	snaps, err := s.Snapshots(ctx, "s1", 10)
	if err != nil {
		t.Fatalf("Snapshots: %v", err)
	}
	if len(snaps) != 1 || snaps[0].Tick != 4 || snaps[0].Path != "/tmp/4.snap.zst" {
		t.Fatalf("snapshots: %+v", snaps)
	}
	if other, _ := s.Snapshots(ctx, "nope", 10); len(other) != 0 {
		t.Fatalf("foreign session matched: %+v", other)
	}
	if every, _ := s.Snapshots(ctx, "", 10); len(every) != 1 {
		t.Fatalf("empty session filter: %+v", every)
	}
}

func TestSQLiteIndex_PresenceHistory(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	_ = s.WriteAudit(presence.AuditEntry{Time: now, ConnID: "c1", Kind: "child_added", Key: "alice", Seq: 1})
	_ = s.WriteAudit(presence.AuditEntry{Time: now, ConnID: "c2", Kind: "child_added", Key: "bob", Seq: 2})
	_ = s.WriteAudit(presence.AuditEntry{Time: now, ConnID: "c1", Kind: "child_removed", Key: "alice", Seq: 3})
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	hist, err := s.PresenceHistory(ctx, "alice", 0)
	if err != nil {
		t.Fatalf("PresenceHistory: %v", err)
	}
	if len(hist) != 2 || hist[0].Kind != "child_added" || hist[1].Seq != 3 {
		t.Fatalf("history: %+v", hist)
	}
}

func TestSQLiteIndex_UpsertCatalogs(t *testing.T) {
	s := openTest(t)
	cats := &catalogs.Catalogs{
		Models: catalogs.ModelCatalog{ByID: map[string]catalogs.ModelDef{"hero": {ID: "hero", Type: catalogs.TypeCharacter}}, Digest: "m"},
		Assets: catalogs.AssetCatalog{Place: "arena", Digest: "a"},
	}
	if err := s.UpsertCatalogs(cats, tuning.Defaults()); err != nil {
		t.Fatalf("UpsertCatalogs: %v", err)
	}
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM catalogs`).Scan(&n); err != nil || n != 3 {
		t.Fatalf("catalog rows: %d %v", n, err)
	}
}

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.session.Store("")
	s.ch <- req{kind: reqFrame}

	_ = s.WriteTick(world.TickLogEntry{Tick: 2})
	_ = s.WriteAudit(presence.AuditEntry{Seq: 2})
	s.RecordSnapshot("/tmp/2.snap.zst", snapshot.SnapshotV1{})
	s.BeginSession("s", "p")

	st := s.Stats()
	if st.DropFrameTotal != 1 || st.DropAuditTotal != 1 || st.DropSnapshotTotal != 1 || st.DropSessionTotal != 1 {
		t.Fatalf("drops: %+v", st)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}
