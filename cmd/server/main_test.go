package main

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"brawlarena.ai/internal/presence"
	"brawlarena.ai/internal/protocol"
)

func TestIsLoopbackRemote(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1:5555": true,
		"[::1]:80":       true,
		"10.0.0.2:80":    false,
		"garbage":        false,
	}
	for in, want := range cases {
		if got := isLoopbackRemote(in); got != want {
			t.Fatalf("isLoopbackRemote(%q)=%v want %v", in, got, want)
		}
	}
}

func TestAdminHTTPDefaults(t *testing.T) {
	if !(serverEnv{}).adminHTTP() {
		t.Fatalf("admin should default on in dev")
	}
	if (serverEnv{DeployEnv: "production"}).adminHTTP() {
		t.Fatalf("admin should default off in production")
	}
	on := true
	if !(serverEnv{DeployEnv: "production", EnableAdminHTTP: &on}).adminHTTP() {
		t.Fatalf("explicit enable should win")
	}
}

func TestParseServerEnv(t *testing.T) {
	t.Setenv("ARENA_ADDR", ":9999")
	t.Setenv("ARENA_INDEX_BACKEND", "none")
	t.Setenv("ARENA_ENABLE_ADMIN_HTTP", "false")
	cfg, err := parseServerEnv()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Addr != ":9999" || cfg.IndexBackend != "none" || cfg.DataDir != "./data" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if cfg.adminHTTP() {
		t.Fatalf("admin should be disabled")
	}
}

func TestOpenRuntimeIndexBackends(t *testing.T) {
	idx, err := openRuntimeIndex(t.TempDir(), "none")
	if err != nil || idx != nil {
		t.Fatalf("none: idx=%v err=%v", idx, err)
	}
	if _, err := openRuntimeIndex(t.TempDir(), "d1"); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
	idx, err = openRuntimeIndex(t.TempDir(), "sqlite")
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	_ = idx.Close()
}

type auditSink struct {
	got []presence.AuditEntry
	err error
}

func (s *auditSink) WriteAudit(e presence.AuditEntry) error {
	s.got = append(s.got, e)
	return s.err
}

func TestMultiAuditLoggerFansOut(t *testing.T) {
	a := &auditSink{err: errors.New("disk full")}
	b := &auditSink{err: errors.New("ignored")}
	m := multiAuditLogger{a: a, b: b}
	err := m.WriteAudit(presence.AuditEntry{Key: "ann"})
	if err == nil || err.Error() != "disk full" {
		t.Fatalf("expected primary error, got %v", err)
	}
	if len(a.got) != 1 || len(b.got) != 1 {
		t.Fatalf("fan out: a=%d b=%d", len(a.got), len(b.got))
	}
}

func TestMetricsReportUsers(t *testing.T) {
	hub := presence.NewHub(presence.HubConfig{})
	s := hub.Connect("test")
	defer s.Close()
	ctx := context.Background()
	if err := s.Set(ctx, "ann", protocol.UserRecord{Username: "ann", Ready: true}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.Set(ctx, "bob", protocol.UserRecord{Username: "bob"}); err != nil {
		t.Fatalf("set: %v", err)
	}

	rec := httptest.NewRecorder()
	writeMetrics(rec, hub, nil)
	body := rec.Body.String()
	for _, want := range []string{
		"arena_presence_sessions 1\n",
		`arena_presence_users{state="ready"} 1`,
		`arena_presence_users{state="lobby"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %q:\n%s", want, body)
		}
	}
	if strings.Contains(body, "arena_index") {
		t.Fatalf("index metrics without an index:\n%s", body)
	}
}
