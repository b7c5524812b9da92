package main

import (
	"errors"
	"fmt"
	"io"
	"log"

	persistlog "brawlarena.ai/internal/persistence/log"
	"brawlarena.ai/internal/persistence/session"
	"brawlarena.ai/internal/sim/catalogs"
	"brawlarena.ai/internal/sim/world"
)

var errStop = errors.New("stop")

// DigestMismatchError reports the first frame whose recomputed state differs
// from the recorded one.
type DigestMismatchError struct {
	Tick     uint64
	Expected string
	Got      string
}

func (e *DigestMismatchError) Error() string {
	return fmt.Sprintf("digest mismatch at tick %d: expected=%s got=%s", e.Tick, e.Expected, e.Got)
}

type replayResult struct {
	World   *world.World
	Checked uint64
}

// replaySession rebuilds the recorded world from session.json and re-runs
// every logged frame, comparing digests. toTick (inclusive) of 0 means all.
func replaySession(sessionDir string, cats *catalogs.Catalogs, toTick uint64, logOut io.Writer) (replayResult, error) {
	var res replayResult
	meta, err := session.ReadMeta(sessionDir)
	if err != nil {
		return res, fmt.Errorf("read session: %w", err)
	}
	if want := cats.Models.Digest + ":" + cats.Assets.Digest; meta.CatalogDigest != "" && meta.CatalogDigest != want {
		return res, fmt.Errorf("catalog digest mismatch: session=%s configs=%s", meta.CatalogDigest, want)
	}

	w, err := world.New(world.Config{
		Session: meta.ID,
		Tuning:  meta.Tuning,
		Logger:  log.New(logOut, "[replay] ", 0),
		Seed:    meta.Seed,
	}, cats)
	if err != nil {
		return res, err
	}
	res.World = w

	files, err := persistlog.Files(session.FramesDir(sessionDir), "frames")
	if err != nil {
		return res, err
	}
	if len(files) == 0 {
		return res, fmt.Errorf("no frame logs in %s", session.FramesDir(sessionDir))
	}

	for _, path := range files {
		err := persistlog.ReadJSONL(path, func(e world.TickLogEntry) error {
			if toTick != 0 && e.Tick > toTick {
				return errStop
			}
			if e.Tick != w.CurrentTick() {
				return fmt.Errorf("%s: frame %d out of sequence (world at %d)", path, e.Tick, w.CurrentTick())
			}
			_, got := w.StepOnce(e.Input)
			if got != e.Digest {
				return &DigestMismatchError{Tick: e.Tick, Expected: e.Digest, Got: got}
			}
			res.Checked++
			return nil
		})
		if errors.Is(err, errStop) {
			break
		}
		if err != nil {
			return res, err
		}
	}
	return res, nil
}
