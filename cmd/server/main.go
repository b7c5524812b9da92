package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	persistlog "brawlarena.ai/internal/persistence/log"
	"brawlarena.ai/internal/presence"
	"brawlarena.ai/internal/protocol"
	"brawlarena.ai/internal/sim/catalogs"
	"brawlarena.ai/internal/sim/tuning"
	"brawlarena.ai/internal/transport/ws"
)

func main() {
	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	envCfg, err := parseServerEnv()
	if err != nil {
		logger.Fatalf("%v", err)
	}

	var (
		addr       = flag.String("addr", envCfg.Addr, "http listen address")
		configDir  = flag.String("configs", envCfg.ConfigDir, "config directory")
		dataDir    = flag.String("data", envCfg.DataDir, "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite presence index")
	)
	flag.Parse()

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}
	if tune.ProtocolVersion != protocol.Version {
		logger.Fatalf("tuning protocol_version=%s but server speaks %s", tune.ProtocolVersion, protocol.Version)
	}

	// The relay never simulates; catalogs are loaded only so the index can
	// record what clients are expected to run.
	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Printf("load catalogs: %v (index will not record them)", err)
	}

	_ = os.MkdirAll(*dataDir, 0o755)

	backend := envCfg.IndexBackend
	if *disableDB {
		backend = "none"
	}
	idx, err := openRuntimeIndex(*dataDir, backend)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertCatalogs(cats, tune); err != nil {
			logger.Printf("index backend: upsert catalogs: %v", err)
		}
	}

	auditLog := persistlog.NewAuditLogger(*dataDir)
	defer auditLog.Close()
	audit := multiAuditLogger{a: auditLog}
	if idx != nil {
		audit.b = idx
	}

	hub := presence.NewHub(presence.HubConfig{
		Logger:   logger,
		MaxQueue: tune.Presence.MaxQueue,
		Observe:  presence.AuditObserver(audit, logger),
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeMetrics(rw, hub, idx)
	})

	if envCfg.adminHTTP() {
		// Local-only admin endpoints.
		mux.HandleFunc("/admin/v1/users", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(rw).Encode(adminUsers{
				Sessions: hub.Sessions(),
				Users:    hub.Snapshot(),
			})
		})
	} else {
		logger.Printf("admin endpoints disabled (ARENA_ENABLE_ADMIN_HTTP=false)")
	}
	if envCfg.EnablePprofHTTP {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	mux.HandleFunc("/v1/ws", ws.NewServer(hub, tune.Presence.MaxQueue, logger).Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, cancel := signalContext()
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Printf("listening on %s", *addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ListenAndServe: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		return srv.Shutdown(ctx2)
	})
	if err := g.Wait(); err != nil {
		logger.Fatalf("%v", err)
	}
	logger.Printf("stopped")
}

type adminUsers struct {
	Sessions int              `json:"sessions"`
	Users    []presence.Entry `json:"users"`
}

func writeMetrics(rw http.ResponseWriter, hub *presence.Hub, idx runtimeIndex) {
	users := hub.Snapshot()
	ready := 0
	for _, u := range users {
		if u.Record.Ready {
			ready++
		}
	}

	// Minimal Prometheus exposition format.
	fmt.Fprintf(rw, "# HELP arena_presence_sessions Connected presence sessions.\n")
	fmt.Fprintf(rw, "# TYPE arena_presence_sessions gauge\n")
	fmt.Fprintf(rw, "arena_presence_sessions %d\n", hub.Sessions())

	fmt.Fprintf(rw, "# HELP arena_presence_users Records in the users collection.\n")
	fmt.Fprintf(rw, "# TYPE arena_presence_users gauge\n")
	fmt.Fprintf(rw, "arena_presence_users{state=%q} %d\n", "ready", ready)
	fmt.Fprintf(rw, "arena_presence_users{state=%q} %d\n", "lobby", len(users)-ready)

	if idx == nil {
		return
	}
	s := idx.Stats()
	fmt.Fprintf(rw, "# HELP arena_index_queue_depth Pending index writes.\n")
	fmt.Fprintf(rw, "# TYPE arena_index_queue_depth gauge\n")
	fmt.Fprintf(rw, "arena_index_queue_depth %d\n", s.QueueDepth)

	fmt.Fprintf(rw, "# HELP arena_index_dropped_total Index writes dropped because the queue was full.\n")
	fmt.Fprintf(rw, "# TYPE arena_index_dropped_total counter\n")
	fmt.Fprintf(rw, "arena_index_dropped_total{kind=%q} %d\n", "frame", s.DropFrameTotal)
	fmt.Fprintf(rw, "arena_index_dropped_total{kind=%q} %d\n", "audit", s.DropAuditTotal)
	fmt.Fprintf(rw, "arena_index_dropped_total{kind=%q} %d\n", "snapshot", s.DropSnapshotTotal)
	fmt.Fprintf(rw, "arena_index_dropped_total{kind=%q} %d\n", "session", s.DropSessionTotal)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
