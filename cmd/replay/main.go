package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"brawlarena.ai/internal/persistence/session"
	"brawlarena.ai/internal/persistence/snapshot"
	"brawlarena.ai/internal/sim/catalogs"
)

func main() {
	var (
		sessionDir = flag.String("session", "", "session dir containing session.json and frames/ (default: latest under -data)")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		configDir  = flag.String("configs", "./configs", "config directory")
		toTick     = flag.Uint64("to_tick", 0, "stop at tick (inclusive, optional)")
		snapOut    = flag.String("snapshot_out", "", "write the replayed end state to this .snap.zst (optional)")
	)
	flag.Parse()

	dir := *sessionDir
	if dir == "" {
		dir = session.Latest(*dataDir)
	}
	if dir == "" {
		fmt.Fprintln(os.Stderr, "no session found; pass -session")
		os.Exit(2)
	}

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load catalogs:", err)
		os.Exit(1)
	}

	res, err := replaySession(dir, cats, *toTick, os.Stderr)
	if err != nil {
		var mm *DigestMismatchError
		if errors.As(err, &mm) {
			fmt.Fprintln(os.Stderr, "replay:", mm)
			os.Exit(3)
		}
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}

	if *snapOut != "" {
		snap := res.World.ExportSnapshot(res.World.CurrentTick())
		if err := snapshot.WriteSnapshot(*snapOut, snap); err != nil {
			fmt.Fprintln(os.Stderr, "write snapshot:", err)
			os.Exit(1)
		}
	}
	fmt.Printf("replay ok: session=%s checked=%d frames final_digest=%s\n", dir, res.Checked, res.World.LastDigest())
}
