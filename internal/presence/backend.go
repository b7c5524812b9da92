package presence

import (
	"context"

	"brawlarena.ai/internal/protocol"
)

var (
	ErrNotFound     = protocol.NewError(protocol.ErrNotFound, "record not found")
	ErrNotOwner     = protocol.NewError(protocol.ErrNotOwner, "record owned by another session")
	ErrNotConnected = protocol.NewError(protocol.ErrClosed, "not connected")
)

// Event is one lifecycle change of a record in the users collection.
type Event struct {
	Kind   string              `json:"kind"`
	Key    string              `json:"key"`
	Record protocol.UserRecord `json:"record"`
	Seq    uint64              `json:"seq"`
}

type Entry struct {
	Key    string              `json:"key"`
	Record protocol.UserRecord `json:"record"`
}

// Backend is a keyed pub/sub store for user records. Writes are
// last-write-wins per field; List returns records in join order.
type Backend interface {
	Set(ctx context.Context, key string, rec protocol.UserRecord) error
	Update(ctx context.Context, key string, patch protocol.UserPatch) error
	Remove(ctx context.Context, key string) error
	List(ctx context.Context) ([]Entry, error)
	// OnDisconnectRemove deletes key when this backend's connection ends.
	OnDisconnectRemove(ctx context.Context, key string) error
	// Watch registers fn for every event after the call. fn runs on the
	// backend's delivery goroutine and must not block.
	Watch(fn func(Event)) (cancel func())
	Close() error
}

// ValidKey reports whether key can name a record.
func ValidKey(key string) bool {
	if key == "" || len(key) > 64 {
		return false
	}
	for _, r := range key {
		switch r {
		case '/', '.', '#', '$', '[', ']':
			return false
		}
		if r < 0x20 {
			return false
		}
	}
	return true
}
