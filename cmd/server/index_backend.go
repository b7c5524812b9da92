package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"brawlarena.ai/internal/persistence/indexdb"
	"brawlarena.ai/internal/presence"
	"brawlarena.ai/internal/sim/catalogs"
	"brawlarena.ai/internal/sim/tuning"
)

type runtimeIndex interface {
	presence.AuditLogger
	UpsertCatalogs(cats *catalogs.Catalogs, tune tuning.Tuning) error
	Stats() indexdb.Stats
	Close() error
}

func openRuntimeIndex(dataDir, backend string) (runtimeIndex, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", "sqlite":
		return indexdb.OpenSQLite(filepath.Join(dataDir, "index", "arena.sqlite"))
	case "none", "off", "disabled":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported ARENA_INDEX_BACKEND: %s", backend)
	}
}

// multiAuditLogger fans audit entries out to the JSONL log and the index.
// The JSONL write error wins since that log is the source of truth.
type multiAuditLogger struct {
	a presence.AuditLogger
	b presence.AuditLogger
}

func (m multiAuditLogger) WriteAudit(entry presence.AuditEntry) error {
	var err error
	if m.a != nil {
		err = m.a.WriteAudit(entry)
	}
	if m.b != nil {
		_ = m.b.WriteAudit(entry)
	}
	return err
}
