package indexdb

import (
	"context"
	"database/sql"
)

type FrameRow struct {
	Session string `json:"session"`
	Tick    uint64 `json:"tick"`
	Digest  string `json:"digest"`
	Spawns  int    `json:"spawns"`
	Removes int    `json:"removes"`
	Remote  int    `json:"remote"`
}

type AuditRow struct {
	Seq    uint64 `json:"seq"`
	ConnID string `json:"conn_id"`
	Kind   string `json:"kind"`
	Key    string `json:"key"`
	At     string `json:"at"`
}

type SnapshotRow struct {
	Session  string `json:"session"`
	Tick     uint64 `json:"tick"`
	Path     string `json:"path"`
	Bodies   int    `json:"bodies"`
	Entities int    `json:"entities"`
}

type SessionRow struct {
	ID        string `json:"id"`
	Place     string `json:"place"`
	StartedAt string `json:"started_at"`
	Frames    int    `json:"frames"`
}

// Flush waits until every write queued before the call has been committed.
func (s *SQLiteIndex) Flush(ctx context.Context) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	done := make(chan struct{})
	select {
	case s.ch <- req{kind: reqFlush, flushed: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RecentSessions lists sessions newest first with their indexed frame count.
func (s *SQLiteIndex) RecentSessions(ctx context.Context, limit int) ([]SessionRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.place, s.started_at, COUNT(f.tick)
		FROM sessions s LEFT JOIN frames f ON f.session = s.id
		GROUP BY s.id ORDER BY s.started_at DESC LIMIT ?`, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SessionRow
	for rows.Next() {
		var r SessionRow
		if err := rows.Scan(&r.ID, &r.Place, &r.StartedAt, &r.Frames); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Frames returns frames of session in tick order starting at fromTick.
func (s *SQLiteIndex) Frames(ctx context.Context, session string, fromTick uint64, limit int) ([]FrameRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session, tick, digest, spawns, removes, remote FROM frames
		WHERE session = ? AND tick >= ? ORDER BY tick LIMIT ?`, session, int64(fromTick), clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []FrameRow
	for rows.Next() {
		var r FrameRow
		var tick int64
		if err := rows.Scan(&r.Session, &tick, &r.Digest, &r.Spawns, &r.Removes, &r.Remote); err != nil {
			return nil, err
		}
		r.Tick = uint64(tick)
		out = append(out, r)
	}
	return out, rows.Err()
}

// PresenceHistory returns the audit trail of one user key, oldest first.
func (s *SQLiteIndex) PresenceHistory(ctx context.Context, key string, limit int) ([]AuditRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, conn_id, kind, key, at FROM presence_audit
		WHERE key = ? ORDER BY seq LIMIT ?`, key, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAudit(rows)
}

// Snapshots lists recorded snapshots newest first; an empty session matches all.
func (s *SQLiteIndex) Snapshots(ctx context.Context, session string, limit int) ([]SnapshotRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session, tick, path, bodies, entities FROM snapshots
		WHERE ? = '' OR session = ? ORDER BY tick DESC LIMIT ?`, session, session, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SnapshotRow
	for rows.Next() {
		var r SnapshotRow
		var tick int64
		if err := rows.Scan(&r.Session, &tick, &r.Path, &r.Bodies, &r.Entities); err != nil {
			return nil, err
		}
		r.Tick = uint64(tick)
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanAudit(rows *sql.Rows) ([]AuditRow, error) {
	var out []AuditRow
	for rows.Next() {
		var r AuditRow
		var seq int64
		if err := rows.Scan(&seq, &r.ConnID, &r.Kind, &r.Key, &r.At); err != nil {
			return nil, err
		}
		r.Seq = uint64(seq)
		out = append(out, r)
	}
	return out, rows.Err()
}

func clampLimit(n int) int {
	if n <= 0 || n > 1000 {
		return 1000
	}
	return n
}
