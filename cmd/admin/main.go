package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	persistlog "brawlarena.ai/internal/persistence/log"
	"brawlarena.ai/internal/persistence/session"
	"brawlarena.ai/internal/persistence/snapshot"
	"brawlarena.ai/internal/presence"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "audit":
			auditCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "users":
			usersCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		}
	}
	sessionsCmd(os.Args[1:])
}

func sessionsCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	metas, err := listSessions(*dataDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, m := range metas {
		fmt.Printf("%s player=%s character=%s seed=%d frames=%d digest=%s\n",
			m.ID, m.Player, m.Character, m.Seed, m.Frames, m.FinalDigest)
	}
}

// listSessions returns the manifests under dataDir, newest first. Directories
// without a readable session.json are skipped.
func listSessions(dataDir string) ([]session.Meta, error) {
	ents, err := os.ReadDir(filepath.Join(dataDir, "sessions"))
	if err != nil {
		return nil, err
	}
	var out []session.Meta
	for _, e := range ents {
		if !e.IsDir() {
			continue
		}
		m, err := session.ReadMeta(session.Dir(dataDir, e.Name()))
		if err != nil {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func auditCmd(args []string) {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	key := fs.String("key", "", "only entries for this user key (optional)")
	since := fs.Duration("since", 0, "only entries newer than this (optional)")
	_ = fs.Parse(args)

	var after time.Time
	if *since > 0 {
		after = time.Now().Add(-*since)
	}
	recs, err := readAudit(*dataDir, *key, after)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read audit:", err)
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	for _, r := range recs {
		_ = enc.Encode(r)
	}
}

// readAudit scans the hourly audit logs in order.
func readAudit(dataDir, key string, after time.Time) ([]presence.AuditEntry, error) {
	files, err := persistlog.Files(filepath.Join(dataDir, "audit"), "audit")
	if err != nil {
		return nil, err
	}
	var out []presence.AuditEntry
	for _, path := range files {
		err := persistlog.ReadJSONL(path, func(e presence.AuditEntry) error {
			if key != "" && e.Key != key {
				return nil
			}
			if !after.IsZero() && e.Time.Before(after) {
				return nil
			}
			out = append(out, e)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

type snapshotSummary struct {
	Header        snapshot.Header      `json:"header"`
	FrameRateHz   int                  `json:"frame_rate_hz"`
	CatalogDigest string               `json:"catalog_digest"`
	Bodies        map[string]int       `json:"bodies"`
	Players       []string             `json:"players"`
	Actions       map[string]string    `json:"actions,omitempty"`
	Controls      *snapshot.ControlsV1 `json:"controls,omitempty"`
}

func summarizeSnapshot(snap snapshot.SnapshotV1) snapshotSummary {
	s := snapshotSummary{
		Header:        snap.Header,
		FrameRateHz:   snap.FrameRateHz,
		CatalogDigest: snap.CatalogDigest,
		Bodies:        map[string]int{},
		Actions:       map[string]string{},
		Controls:      snap.Controls,
	}
	for _, b := range snap.Bodies {
		s.Bodies[b.Kind]++
	}
	for _, e := range snap.Entities {
		if e.Username != "" {
			s.Players = append(s.Players, e.Username)
		}
		if e.Action != "" {
			s.Actions[e.Name] = e.Action
		}
	}
	sort.Strings(s.Players)
	return s
}

func snapshotCmd(args []string) {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	path := fs.String("path", "", "snapshot file (default: latest of the newest session)")
	_ = fs.Parse(args)

	p := *path
	if p == "" {
		if dir := session.Latest(*dataDir); dir != "" {
			p = session.LatestSnapshot(dir)
		}
	}
	if p == "" {
		fmt.Fprintln(os.Stderr, "no snapshot found; pass -path")
		os.Exit(2)
	}
	snap, err := snapshot.ReadSnapshot(p)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(summarizeSnapshot(snap))
}
