// Package session lays out one simulation run on disk:
//
//	<data>/sessions/<id>/session.json
//	<data>/sessions/<id>/frames/frames-*.jsonl.zst
//	<data>/sessions/<id>/snapshots/<tick>.snap.zst
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"brawlarena.ai/internal/sim/tuning"
)

const metaFile = "session.json"

// Meta is everything needed to rebuild the world a frame log was recorded
// against. Frames and FinalDigest are filled in when the run ends.
type Meta struct {
	ID            string        `json:"id"`
	Place         string        `json:"place,omitempty"`
	Player        string        `json:"player"`
	Character     string        `json:"character"`
	Seed          int64         `json:"seed"`
	CatalogDigest string        `json:"catalog_digest"`
	Tuning        tuning.Tuning `json:"tuning"`
	StartedAt     time.Time     `json:"started_at"`
	EndedAt       *time.Time    `json:"ended_at,omitempty"`
	Frames        uint64        `json:"frames"`
	FinalDigest   string        `json:"final_digest,omitempty"`
}

// NewID returns a sortable session id.
func NewID() string { return ulid.Make().String() }

func Dir(dataDir, id string) string { return filepath.Join(dataDir, "sessions", id) }

func FramesDir(sessionDir string) string { return filepath.Join(sessionDir, "frames") }

func SnapshotPath(sessionDir string, tick uint64) string {
	return filepath.Join(sessionDir, "snapshots", fmt.Sprintf("%d.snap.zst", tick))
}

// WriteMeta replaces session.json atomically.
func WriteMeta(sessionDir string, m Meta) error {
	if err := os.MkdirAll(sessionDir, 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	tmp := filepath.Join(sessionDir, metaFile+".tmp")
	if err := os.WriteFile(tmp, append(b, '\n'), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(sessionDir, metaFile))
}

func ReadMeta(sessionDir string) (Meta, error) {
	var m Meta
	b, err := os.ReadFile(filepath.Join(sessionDir, metaFile))
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return m, fmt.Errorf("%s: %w", metaFile, err)
	}
	return m, nil
}

// Latest returns the directory of the newest session under dataDir, or ""
// when there is none. Ids are ULIDs, so lexical order is start order.
func Latest(dataDir string) string {
	ents, err := os.ReadDir(filepath.Join(dataDir, "sessions"))
	if err != nil {
		return ""
	}
	var ids []string
	for _, e := range ents {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	if len(ids) == 0 {
		return ""
	}
	sort.Strings(ids)
	return Dir(dataDir, ids[len(ids)-1])
}

// LatestSnapshot returns the highest-tick snapshot in a session, or "".
func LatestSnapshot(sessionDir string) string {
	dir := filepath.Join(sessionDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTick uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		tick, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		if best == "" || tick > bestTick {
			bestTick = tick
			best = filepath.Join(dir, name)
		}
	}
	return best
}
