package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"golang.org/x/sync/errgroup"

	"brawlarena.ai/internal/persistence/indexdb"
	persistlog "brawlarena.ai/internal/persistence/log"
	"brawlarena.ai/internal/persistence/session"
	"brawlarena.ai/internal/persistence/snapshot"
	"brawlarena.ai/internal/presence"
	"brawlarena.ai/internal/protocol"
	"brawlarena.ai/internal/sim/catalogs"
	"brawlarena.ai/internal/sim/tuning"
	"brawlarena.ai/internal/sim/world"
	"brawlarena.ai/internal/transport/ws"
)

var errConnectionLost = errors.New("presence connection lost")

func main() {
	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)

	envCfg, err := parseBotEnv()
	if err != nil {
		logger.Fatalf("%v", err)
	}

	var (
		url       = flag.String("url", envCfg.PresenceURL, "presence ws url")
		name      = flag.String("name", envCfg.Name, "username")
		character = flag.String("character", envCfg.Character, "character model id")
		codec     = flag.String("codec", envCfg.Codec, "wire codec: json or msgpack")
		seed      = flag.Int64("seed", time.Now().UnixNano(), "simulation and pilot seed")
		duration  = flag.Duration("duration", 0, "stop after this long (0 = until signal)")
		configDir = flag.String("configs", envCfg.ConfigDir, "config directory")
		dataDir   = flag.String("data", envCfg.DataDir, "runtime data directory")
		disableDB = flag.Bool("disable_db", false, "disable the sqlite frame index")
		stepEvery = flag.Duration("pilot_step", 100*time.Millisecond, "pilot input interval")
	)
	flag.Parse()

	tune, err := tuning.Load(filepath.Join(*configDir, "tuning.yaml"))
	if err != nil {
		logger.Fatalf("load tuning: %v", err)
	}
	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}
	if _, ok := cats.Models.ByID[*character]; !ok {
		logger.Fatalf("unknown character %q", *character)
	}

	sessionID := session.NewID()
	sessionDir := session.Dir(*dataDir, sessionID)
	meta := session.Meta{
		ID:            sessionID,
		Place:         cats.Assets.Place,
		Player:        *name,
		Character:     *character,
		Seed:          *seed,
		CatalogDigest: cats.Models.Digest + ":" + cats.Assets.Digest,
		Tuning:        tune,
		StartedAt:     time.Now().UTC(),
	}
	if err := session.WriteMeta(sessionDir, meta); err != nil {
		logger.Fatalf("write session meta: %v", err)
	}

	w, err := world.New(world.Config{
		Session: sessionID,
		Tuning:  tune,
		Logger:  logger,
		Seed:    *seed,
	}, cats)
	if err != nil {
		logger.Fatalf("world: %v", err)
	}

	var idx *indexdb.SQLiteIndex
	if !*disableDB && !strings.EqualFold(envCfg.IndexBackend, "none") {
		idx, err = indexdb.OpenSQLite(filepath.Join(*dataDir, "index", "arena.sqlite"))
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		defer idx.Close()
		idx.BeginSession(sessionID, cats.Assets.Place)
		if err := idx.UpsertCatalogs(cats, tune); err != nil {
			logger.Printf("index: upsert catalogs: %v", err)
		}
	}

	tickLog := persistlog.NewTickLogger(sessionDir)
	defer tickLog.Close()
	if idx != nil {
		w.SetTickLogger(multiTickLogger{a: tickLog, b: idx})
	} else {
		w.SetTickLogger(tickLog)
	}

	if err := w.SpawnPlacements(); err != nil {
		logger.Fatalf("spawn placements: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if *duration > 0 {
		var cancelT context.CancelFunc
		ctx, cancelT = context.WithTimeout(ctx, *duration)
		defer cancelT()
	}

	dialCtx, cancelDial := context.WithTimeout(ctx, 10*time.Second)
	client, err := ws.Dial(dialCtx, *url, ws.ClientConfig{Name: *name, Codec: *codec, Logger: logger})
	cancelDial()
	if err != nil {
		logger.Fatalf("dial %s: %v", *url, err)
	}
	store := presence.NewStore(client, presence.StoreConfig{Logger: logger, Remote: w.RemoteInbox()})
	defer store.Close()

	g, gctx := errgroup.WithContext(ctx)

	(&arena{ctx: gctx, store: store, world: w, cats: cats, character: *character, log: logger}).wire()

	poses := newPoseSink()
	w.SetTransformSink(poses)
	snapCh := make(chan snapshot.SnapshotV1, 2)
	w.SetSnapshotSink(snapCh)

	g.Go(func() error {
		if err := w.Run(gctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case <-client.Done():
			return errConnectionLost
		}
	})
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case p := <-poses.ch:
				if err := store.SyncTransform(gctx, p.pos, p.rot); err != nil && gctx.Err() == nil {
					logger.Printf("sync transform: %v", err)
				}
			}
		}
	})
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case snap := <-snapCh:
				writeSnapshot(sessionDir, snap, idx, logger)
			}
		}
	})
	g.Go(func() error {
		p := newPilot(*seed, 0.01)
		t := time.NewTicker(*stepEvery)
		defer t.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-t.C:
				if store.Status() != presence.StatusPlaying {
					continue
				}
				in, az := p.Next()
				w.SubmitIntent(in)
				w.SetAzimuth(az)
			}
		}
	})

	store.SelectUser()
	if err := store.PublishSelf(ctx, protocol.UserRecord{Username: *name, Character: *character}); err != nil {
		logger.Fatalf("join: %v", err)
	}
	if err := store.SetReady(ctx); err != nil {
		logger.Fatalf("ready: %v", err)
	}
	logger.Printf("session=%s joined as %s (%s), waiting for the room", sessionID, *name, *character)

	runErr := g.Wait()

	// The loop has stopped; the world is ours again.
	final := w.ExportSnapshot(w.CurrentTick())
	writeSnapshot(sessionDir, final, idx, logger)

	now := time.Now().UTC()
	meta.EndedAt = &now
	meta.Frames = w.CurrentTick()
	meta.FinalDigest = w.LastDigest()
	if err := session.WriteMeta(sessionDir, meta); err != nil {
		logger.Printf("write session meta: %v", err)
	}
	if err := tickLog.Close(); err != nil {
		logger.Printf("close frame log: %v", err)
	}
	if idx != nil {
		fctx, fcancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = idx.Flush(fctx)
		fcancel()
		_ = idx.Close()
	}
	if runErr != nil {
		logger.Fatalf("stopped: %v", runErr)
	}
	logger.Printf("stopped after %d frames", meta.Frames)
}

func writeSnapshot(sessionDir string, snap snapshot.SnapshotV1, idx *indexdb.SQLiteIndex, logger *log.Logger) {
	path := session.SnapshotPath(sessionDir, snap.Header.Tick)
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		logger.Printf("snapshot write: %v", err)
		return
	}
	if idx != nil {
		idx.RecordSnapshot(path, snap)
	}
}

type pose struct {
	pos mgl64.Vec3
	rot mgl64.Quat
}

// poseSink keeps only the newest pose; the publisher goroutine sends it.
type poseSink struct{ ch chan pose }

func newPoseSink() poseSink { return poseSink{ch: make(chan pose, 1)} }

func (s poseSink) PublishTransform(pos mgl64.Vec3, rot mgl64.Quat) {
	p := pose{pos: pos, rot: rot}
	select {
	case s.ch <- p:
		return
	default:
	}
	select {
	case <-s.ch:
	default:
	}
	select {
	case s.ch <- p:
	default:
	}
}

type multiTickLogger struct {
	a world.TickLogger
	b world.TickLogger
}

func (m multiTickLogger) WriteTick(entry world.TickLogEntry) error {
	var err error
	if m.a != nil {
		err = m.a.WriteTick(entry)
	}
	if m.b != nil {
		_ = m.b.WriteTick(entry)
	}
	return err
}
