package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"brawlarena.ai/internal/persistence/indexdb"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (default: <data>/index/arena.sqlite)")
	sessionID := fs.String("session", "", "session id (frames, snapshots)")
	key := fs.String("key", "", "user key (presence)")
	fromTick := fs.Uint64("from_tick", 0, "first tick (frames)")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	q := "sessions"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}
	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "index", "arena.sqlite")
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}

	idx, err := indexdb.OpenSQLite(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer idx.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rows, err := queryIndex(ctx, idx, q, *sessionID, *key, *fromTick, *limit)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	enc := json.NewEncoder(os.Stdout)
	for _, r := range rows {
		_ = enc.Encode(r)
	}
}

func queryIndex(ctx context.Context, idx *indexdb.SQLiteIndex, q, sessionID, key string, fromTick uint64, limit int) ([]any, error) {
	var out []any
	switch q {
	case "sessions":
		rows, err := idx.RecentSessions(ctx, limit)
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			out = append(out, r)
		}
	case "frames":
		if sessionID == "" {
			return nil, fmt.Errorf("frames needs -session")
		}
		rows, err := idx.Frames(ctx, sessionID, fromTick, limit)
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			out = append(out, r)
		}
	case "snapshots":
		rows, err := idx.Snapshots(ctx, sessionID, limit)
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			out = append(out, r)
		}
	case "presence":
		if key == "" {
			return nil, fmt.Errorf("presence needs -key")
		}
		rows, err := idx.PresenceHistory(ctx, key, limit)
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			out = append(out, r)
		}
	default:
		return nil, fmt.Errorf("unknown query %q (sessions, frames, snapshots, presence)", q)
	}
	return out, nil
}
