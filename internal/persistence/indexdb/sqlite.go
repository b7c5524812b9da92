package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"brawlarena.ai/internal/persistence/snapshot"
	"brawlarena.ai/internal/presence"
	"brawlarena.ai/internal/sim/catalogs"
	"brawlarena.ai/internal/sim/tuning"
	"brawlarena.ai/internal/sim/world"
)

// SQLiteIndex is a queryable secondary index of frame logs, presence audit
// entries and snapshots. Writes are queued and applied by one goroutine;
// the JSONL logs stay the source of truth when the queue overflows.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed  atomic.Bool
	session atomic.Value // string

	dropFrame    atomic.Uint64
	dropAudit    atomic.Uint64
	dropSnapshot atomic.Uint64
	dropSession  atomic.Uint64
}

type reqKind int

const (
	reqFrame reqKind = iota + 1
	reqAudit
	reqSnapshot
	reqSession
	reqFlush
)

type req struct {
	kind    reqKind
	session string

	frame    world.TickLogEntry
	audit    presence.AuditEntry
	snapshot snapshotRow
	started  sessionRow
	flushed  chan struct{}
}

type snapshotRow struct {
	Tick     uint64
	Path     string
	Bodies   int
	Entities int
}

type sessionRow struct {
	ID        string
	Place     string
	StartedAt string
}

type Stats struct {
	QueueDepth        int    `json:"queue_depth"`
	QueueCapacity     int    `json:"queue_capacity"`
	DropFrameTotal    uint64 `json:"drop_frame_total"`
	DropAuditTotal    uint64 `json:"drop_audit_total"`
	DropSnapshotTotal uint64 `json:"drop_snapshot_total"`
	DropSessionTotal  uint64 `json:"drop_session_total"`
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 65536),
	}
	s.session.Store("")
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			place TEXT NOT NULL,
			started_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS frames (
			session TEXT NOT NULL,
			tick INTEGER NOT NULL,
			digest TEXT NOT NULL,
			spawns INTEGER NOT NULL,
			removes INTEGER NOT NULL,
			remote INTEGER NOT NULL,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (session, tick)
		);`,
		`CREATE TABLE IF NOT EXISTS presence_audit (
			seq INTEGER NOT NULL,
			conn_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			key TEXT NOT NULL,
			at TEXT NOT NULL,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (seq, conn_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_presence_audit_key ON presence_audit(key, seq);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			session TEXT NOT NULL,
			tick INTEGER NOT NULL,
			path TEXT NOT NULL,
			bodies INTEGER NOT NULL,
			entities INTEGER NOT NULL,
			PRIMARY KEY (session, tick)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropFrameTotal:    s.dropFrame.Load(),
		DropAuditTotal:    s.dropAudit.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
		DropSessionTotal:  s.dropSession.Load(),
	}
}

func (s *SQLiteIndex) currentSession() string {
	v, _ := s.session.Load().(string)
	return v
}

func (s *SQLiteIndex) enqueue(r req, drops *atomic.Uint64) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
		drops.Add(1)
	}
}

// BeginSession tags every following frame and snapshot with id.
func (s *SQLiteIndex) BeginSession(id, place string) {
	if s == nil {
		return
	}
	s.session.Store(id)
	s.enqueue(req{kind: reqSession, started: sessionRow{
		ID:        id,
		Place:     place,
		StartedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}}, &s.dropSession)
}

func (s *SQLiteIndex) WriteTick(entry world.TickLogEntry) error {
	if s == nil {
		return nil
	}
	s.enqueue(req{kind: reqFrame, session: s.currentSession(), frame: entry}, &s.dropFrame)
	return nil
}

func (s *SQLiteIndex) WriteAudit(entry presence.AuditEntry) error {
	if s == nil {
		return nil
	}
	s.enqueue(req{kind: reqAudit, audit: entry}, &s.dropAudit)
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil {
		return
	}
	session := snap.Header.Session
	if session == "" {
		session = s.currentSession()
	}
	s.enqueue(req{kind: reqSnapshot, session: session, snapshot: snapshotRow{
		Tick:     snap.Header.Tick,
		Path:     path,
		Bodies:   len(snap.Bodies),
		Entities: len(snap.Entities),
	}}, &s.dropSnapshot)
}

// UpsertCatalogs stores the model and asset catalogs plus the applied tuning
// in canonical JSON.
func (s *SQLiteIndex) UpsertCatalogs(cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if s == nil || cats == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	{
		models := make([]catalogs.ModelDef, 0, len(cats.Models.ByID))
		for _, m := range cats.Models.ByID {
			models = append(models, m)
		}
		sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
		if b, _ := json.Marshal(models); len(b) > 0 {
			rows = append(rows, kv{name: "models", digest: cats.Models.Digest, json: b})
		}
	}
	if b, _ := json.Marshal(cats.Assets); len(b) > 0 {
		rows = append(rows, kv{name: "assets", digest: cats.Assets.Digest, json: b})
	}
	{
		b, _ := json.Marshal(tune)
		sum := sha256.Sum256(b)
		rows = append(rows, kv{name: "tuning", digest: hex.EncodeToString(sum[:]), json: b})
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if r.name == "" || r.digest == "" || len(r.json) == 0 {
			continue
		}
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertSession, _ := s.db.Prepare(`INSERT OR REPLACE INTO sessions(id,place,started_at) VALUES(?,?,?)`)
	insertFrame, _ := s.db.Prepare(`INSERT OR REPLACE INTO frames(session,tick,digest,spawns,removes,remote,raw_json) VALUES(?,?,?,?,?,?,?)`)
	insertAudit, _ := s.db.Prepare(`INSERT OR REPLACE INTO presence_audit(seq,conn_id,kind,key,at,raw_json) VALUES(?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(session,tick,path,bodies,entities) VALUES(?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertSession, insertFrame, insertAudit, insertSnapshot} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) {
		if st == nil || tx == nil {
			return
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return
		}
		opCount++
	}

	for r := range s.ch {
		if r.kind == reqFlush {
			commit()
			close(r.flushed)
			continue
		}
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqSession:
			exec(insertSession, r.started.ID, r.started.Place, r.started.StartedAt)
		case reqFrame:
			raw, _ := json.Marshal(r.frame)
			in := r.frame.Input
			exec(insertFrame, r.session, int64(r.frame.Tick), r.frame.Digest,
				len(in.Spawns), len(in.Removes), len(in.Remote), string(raw))
		case reqAudit:
			a := r.audit
			raw, _ := json.Marshal(a)
			exec(insertAudit, int64(a.Seq), a.ConnID, a.Kind, a.Key, a.Time.UTC().Format(time.RFC3339Nano), string(raw))
		case reqSnapshot:
			sn := r.snapshot
			exec(insertSnapshot, r.session, int64(sn.Tick), sn.Path, sn.Bodies, sn.Entities)
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}
