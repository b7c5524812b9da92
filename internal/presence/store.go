package presence

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/go-gl/mathgl/mgl64"

	"brawlarena.ai/internal/protocol"
)

type Status string

const (
	StatusOff           Status = "off"
	StatusUserSelection Status = "userSelection"
	StatusConnecting    Status = "connecting"
	StatusUsersList     Status = "usersList"
	StatusWaitingRoom   Status = "waitingRoom"
	StatusPlaying       Status = "playing"
)

type StoreConfig struct {
	Logger *log.Logger
	// Remote receives other players' poses while playing. Sends never
	// block; a full channel drops the update.
	Remote chan<- RemoteTransform
}

// UserView is one row of the lobby's users list.
type UserView struct {
	Key          string
	Record       protocol.UserRecord
	DisplayIndex int
	Self         bool
}

// Store mirrors the users collection for one peer and runs the lobby flow.
type Store struct {
	backend Backend
	log     *log.Logger
	remote  chan<- RemoteTransform
	cancel  func()

	mu        sync.Mutex
	key       string
	status    Status
	records   map[string]protocol.UserRecord
	order     []string
	gone      map[string]bool
	added     []func(Event)
	removed   []func(Event)
	changed   []func(Event)
	onPlaying []func()
	dropped   uint64
}

func NewStore(b Backend, cfg StoreConfig) *Store {
	s := &Store{
		backend: b,
		log:     loggerOrDefault(cfg.Logger),
		remote:  cfg.Remote,
		status:  StatusOff,
		records: map[string]protocol.UserRecord{},
		gone:    map[string]bool{},
	}
	s.cancel = b.Watch(s.handle)
	return s
}

func (s *Store) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Key is the local player's record key, empty before PublishSelf.
func (s *Store) Key() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.key
}

// SelectUser records that the local player is choosing a name and character.
func (s *Store) SelectUser() {
	s.mu.Lock()
	if s.status == StatusOff {
		s.status = StatusUserSelection
	}
	s.mu.Unlock()
}

func (s *Store) Record(key string) (protocol.UserRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[key]
	return r, ok
}

// Dropped counts remote transforms discarded because the consumer was behind.
func (s *Store) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

func (s *Store) WatchAdded(fn func(Event)) {
	s.mu.Lock()
	s.added = append(s.added, fn)
	s.mu.Unlock()
}

func (s *Store) WatchRemoved(fn func(Event)) {
	s.mu.Lock()
	s.removed = append(s.removed, fn)
	s.mu.Unlock()
}

func (s *Store) WatchChanged(fn func(Event)) {
	s.mu.Lock()
	s.changed = append(s.changed, fn)
	s.mu.Unlock()
}

// OnPlaying registers fn to run once every listed user is ready.
func (s *Store) OnPlaying(fn func()) {
	s.mu.Lock()
	s.onPlaying = append(s.onPlaying, fn)
	s.mu.Unlock()
}

// PublishSelf writes the local record, arranges its removal on disconnect
// and elects the local player admin when it is alone in the collection.
// Records that were already in the collection are merged into the mirror
// and reported to the added observers.
// Two peers joining within one round trip can both see themselves alone;
// that race is not resolved here.
func (s *Store) PublishSelf(ctx context.Context, rec protocol.UserRecord) error {
	key := rec.Username
	s.mu.Lock()
	s.key = key
	s.status = StatusConnecting
	s.mu.Unlock()

	if err := s.backend.Set(ctx, key, rec); err != nil {
		s.log.Printf("presence: publish %s failed: %v", key, err)
		return fmt.Errorf("presence: publish %s: %w", key, err)
	}
	if err := s.backend.OnDisconnectRemove(ctx, key); err != nil {
		s.log.Printf("presence: on-disconnect %s failed: %v", key, err)
		return fmt.Errorf("presence: on-disconnect %s: %w", key, err)
	}
	entries, err := s.backend.List(ctx)
	if err != nil {
		s.log.Printf("presence: list failed: %v", err)
		return fmt.Errorf("presence: list: %w", err)
	}
	s.mu.Lock()
	existing := s.mergeLocked(entries)
	fns := append([]func(Event){}, s.added...)
	s.mu.Unlock()
	for _, ev := range existing {
		for _, fn := range fns {
			fn(ev)
		}
	}

	var patch protocol.UserPatch
	if len(entries) == 1 && entries[0].Key == key {
		admin, idx := true, 0
		patch = protocol.UserPatch{IsRoomAdmin: &admin, UserIndex: &idx}
	} else if idx := displayIndex(entries, key); idx != rec.UserIndex {
		patch = protocol.UserPatch{UserIndex: &idx}
	}
	if !patch.Empty() {
		if err := s.backend.Update(ctx, key, patch); err != nil {
			s.log.Printf("presence: elect %s failed: %v", key, err)
			return fmt.Errorf("presence: elect %s: %w", key, err)
		}
	}

	s.mu.Lock()
	s.status = StatusUsersList
	s.mu.Unlock()
	return nil
}

// mergeLocked folds a List result into the mirror. Records already known from
// events are newer and kept; keys removed since Watch are not resurrected.
// The mirror takes the listed join order, followed by keys only events know.
func (s *Store) mergeLocked(entries []Entry) []Event {
	var added []Event
	listed := make(map[string]bool, len(entries))
	order := make([]string, 0, len(entries)+len(s.order))
	for _, e := range entries {
		if s.gone[e.Key] {
			continue
		}
		listed[e.Key] = true
		order = append(order, e.Key)
		if _, ok := s.records[e.Key]; ok {
			continue
		}
		s.records[e.Key] = e.Record
		added = append(added, Event{Kind: protocol.EventChildAdded, Key: e.Key, Record: e.Record})
	}
	for _, k := range s.order {
		if !listed[k] {
			order = append(order, k)
		}
	}
	s.order = order
	return added
}

// displayIndex numbers non-admin users from 1 in join order; admins share
// the index of the last non-admin before them (0 when first).
func displayIndex(entries []Entry, key string) int {
	idx := 0
	for _, e := range entries {
		if !e.Record.IsRoomAdmin {
			idx++
		}
		if e.Key == key {
			return idx
		}
	}
	return idx
}

// SetReady moves the local player into the waiting room.
func (s *Store) SetReady(ctx context.Context) error {
	s.mu.Lock()
	key := s.key
	if key != "" {
		s.status = StatusWaitingRoom
	}
	s.mu.Unlock()
	if key == "" {
		return ErrNotConnected
	}
	ready := true
	if err := s.backend.Update(ctx, key, protocol.UserPatch{Ready: &ready}); err != nil {
		return fmt.Errorf("presence: ready %s: %w", key, err)
	}
	return nil
}

// SyncTransform publishes the local player's pose.
func (s *Store) SyncTransform(ctx context.Context, pos mgl64.Vec3, rot mgl64.Quat) error {
	key := s.Key()
	if key == "" {
		return ErrNotConnected
	}
	p, q := Vec3ToProto(pos), QuatToProto(rot)
	return s.backend.Update(ctx, key, protocol.UserPatch{Pos: &p, Quat: &q})
}

// Users returns the list view in join order.
func (s *Store) Users() []UserView {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]UserView, 0, len(s.order))
	idx := 0
	for _, k := range s.order {
		rec := s.records[k]
		if !rec.IsRoomAdmin {
			idx++
		}
		out = append(out, UserView{Key: k, Record: rec, DisplayIndex: idx, Self: k == s.key})
	}
	return out
}

func (s *Store) Close() error {
	s.cancel()
	return s.backend.Close()
}

func (s *Store) handle(ev Event) {
	s.mu.Lock()
	var fns []func(Event)
	var playing []func()
	switch ev.Kind {
	case protocol.EventChildAdded:
		delete(s.gone, ev.Key)
		_, known := s.records[ev.Key]
		s.records[ev.Key] = ev.Record
		if !known {
			s.order = append(s.order, ev.Key)
			fns = append(fns, s.added...)
		}
	case protocol.EventChildRemoved:
		s.gone[ev.Key] = true
		if _, ok := s.records[ev.Key]; ok {
			delete(s.records, ev.Key)
			for i, k := range s.order {
				if k == ev.Key {
					s.order = append(s.order[:i], s.order[i+1:]...)
					break
				}
			}
		}
		fns = append(fns, s.removed...)
	case protocol.EventChildChanged:
		if _, ok := s.records[ev.Key]; !ok {
			s.order = append(s.order, ev.Key)
		}
		s.records[ev.Key] = ev.Record
		switch s.status {
		case StatusUsersList, StatusWaitingRoom:
			if ev.Record.Ready {
				if s.allReadyLocked() {
					s.status = StatusPlaying
					playing = append(playing, s.onPlaying...)
				}
			}
		case StatusPlaying:
			if ev.Key != s.key {
				s.pushRemoteLocked(transformOf(ev))
			}
		}
		fns = append(fns, s.changed...)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
	for _, fn := range playing {
		fn()
	}
}

func (s *Store) allReadyLocked() bool {
	if len(s.order) == 0 {
		return false
	}
	for _, k := range s.order {
		if !s.records[k].Ready {
			return false
		}
	}
	return true
}

func (s *Store) pushRemoteLocked(rt RemoteTransform) {
	if s.remote == nil {
		return
	}
	select {
	case s.remote <- rt:
	default:
		s.dropped++
	}
}
