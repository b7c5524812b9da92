package presence

import (
	"log"
	"time"

	"brawlarena.ai/internal/protocol"
)

// AuditEntry records one committed change to the users collection.
type AuditEntry struct {
	Time   time.Time           `json:"time"`
	ConnID string              `json:"conn_id"`
	Kind   string              `json:"kind"`
	Key    string              `json:"key"`
	Seq    uint64              `json:"seq"`
	Record protocol.UserRecord `json:"record"`
}

type AuditLogger interface {
	WriteAudit(e AuditEntry) error
}

// AuditObserver adapts an AuditLogger to HubConfig.Observe. Write errors are
// logged and otherwise ignored.
func AuditObserver(l AuditLogger, logger *log.Logger) func(connID string, ev Event) {
	logger = loggerOrDefault(logger)
	return func(connID string, ev Event) {
		e := AuditEntry{
			Time:   time.Now().UTC(),
			ConnID: connID,
			Kind:   ev.Kind,
			Key:    ev.Key,
			Seq:    ev.Seq,
			Record: ev.Record,
		}
		if err := l.WriteAudit(e); err != nil {
			logger.Printf("presence: audit %s %s: %v", ev.Kind, ev.Key, err)
		}
	}
}
