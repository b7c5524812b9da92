package presence

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/oklog/ulid/v2"

	"brawlarena.ai/internal/protocol"
)

type HubConfig struct {
	Logger *log.Logger
	// MaxQueue bounds each session's undelivered events; a session that
	// falls further behind is closed.
	MaxQueue int
	// Observe sees every committed event with the id of the writing session.
	// It runs under the hub lock and must not call back into the hub.
	Observe func(connID string, ev Event)
}

// Hub is the authoritative users collection. Sessions are its connections.
type Hub struct {
	cfg HubConfig
	log *log.Logger

	mu       sync.Mutex
	records  map[string]protocol.UserRecord
	order    []string
	owners   map[string]string
	sessions map[string]*Session
	seq      uint64
}

func NewHub(cfg HubConfig) *Hub {
	if cfg.MaxQueue <= 0 {
		cfg.MaxQueue = 64
	}
	return &Hub{
		cfg:      cfg,
		log:      loggerOrDefault(cfg.Logger),
		records:  map[string]protocol.UserRecord{},
		owners:   map[string]string{},
		sessions: map[string]*Session{},
	}
}

// Connect opens a new session. name is only used for logs.
func (h *Hub) Connect(name string) *Session {
	s := &Session{
		hub:      h,
		id:       ulid.Make().String(),
		name:     name,
		events:   make(chan Event, h.cfg.MaxQueue),
		done:     make(chan struct{}),
		watchers: map[int]func(Event){},
	}
	h.mu.Lock()
	h.sessions[s.id] = s
	h.mu.Unlock()
	go s.pump()
	return s
}

// Snapshot returns the records in join order.
func (h *Hub) Snapshot() []Entry {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.listLocked()
}

func (h *Hub) Sessions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

func (h *Hub) listLocked() []Entry {
	out := make([]Entry, 0, len(h.order))
	for _, k := range h.order {
		out = append(out, Entry{Key: k, Record: h.records[k]})
	}
	return out
}

func (h *Hub) checkOwnerLocked(s *Session, key string) error {
	if owner, ok := h.owners[key]; ok && owner != s.id {
		return fmt.Errorf("%s: %w", key, ErrNotOwner)
	}
	return nil
}

func (h *Hub) set(s *Session, key string, rec protocol.UserRecord) error {
	if !ValidKey(key) {
		return protocol.NewError(protocol.ErrBadKey, key)
	}
	if rec.Username != key {
		return protocol.NewError(protocol.ErrBadRecord, "username must equal key")
	}
	if err := protocol.ValidateRecord(rec); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if s.closed {
		return ErrNotConnected
	}
	if err := h.checkOwnerLocked(s, key); err != nil {
		return err
	}
	kind := protocol.EventChildChanged
	if _, ok := h.records[key]; !ok {
		kind = protocol.EventChildAdded
		h.order = append(h.order, key)
	}
	h.owners[key] = s.id
	h.records[key] = rec
	h.publishLocked(s.id, Event{Kind: kind, Key: key, Record: rec})
	return nil
}

func (h *Hub) update(s *Session, key string, patch protocol.UserPatch) error {
	if !ValidKey(key) {
		return protocol.NewError(protocol.ErrBadKey, key)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if s.closed {
		return ErrNotConnected
	}
	cur, ok := h.records[key]
	if !ok {
		return fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	if err := h.checkOwnerLocked(s, key); err != nil {
		return err
	}
	if patch.Empty() {
		return nil
	}
	next := patch.Apply(cur)
	if err := protocol.ValidateRecord(next); err != nil {
		return err
	}
	h.records[key] = next
	h.publishLocked(s.id, Event{Kind: protocol.EventChildChanged, Key: key, Record: next})
	return nil
}

func (h *Hub) remove(s *Session, key string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s.closed {
		return ErrNotConnected
	}
	if _, ok := h.records[key]; !ok {
		return nil
	}
	if err := h.checkOwnerLocked(s, key); err != nil {
		return err
	}
	h.removeLocked(s.id, key)
	return nil
}

func (h *Hub) removeLocked(by, key string) {
	rec := h.records[key]
	delete(h.records, key)
	delete(h.owners, key)
	for i, k := range h.order {
		if k == key {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
	h.publishLocked(by, Event{Kind: protocol.EventChildRemoved, Key: key, Record: rec})
}

// publishLocked fans ev out to every open session in commit order.
func (h *Hub) publishLocked(by string, ev Event) {
	h.seq++
	ev.Seq = h.seq
	var slow []*Session
	for _, s := range h.sessions {
		select {
		case s.events <- ev:
		default:
			slow = append(slow, s)
		}
	}
	if h.cfg.Observe != nil {
		h.cfg.Observe(by, ev)
	}
	for _, s := range slow {
		h.log.Printf("presence: session %s (%s) fell behind, closing", s.id, s.name)
		h.disconnectLocked(s)
	}
}

// disconnectLocked closes s and deletes its delete-on-disconnect keys.
func (h *Hub) disconnectLocked(s *Session) {
	if s.closed {
		return
	}
	s.closed = true
	delete(h.sessions, s.id)
	close(s.done)
	for _, key := range s.onDisconnect {
		if h.owners[key] != s.id {
			continue
		}
		h.removeLocked(s.id, key)
	}
	for key, owner := range h.owners {
		if owner == s.id {
			delete(h.owners, key)
		}
	}
}

// Session is one connection to a Hub. It implements Backend.
type Session struct {
	hub  *Hub
	id   string
	name string

	events chan Event
	done   chan struct{}

	// Guarded by hub.mu.
	closed       bool
	onDisconnect []string

	wmu      sync.Mutex
	watchers map[int]func(Event)
	nextW    int
}

func (s *Session) ID() string { return s.id }

// Done is closed when the session ends.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) pump() {
	for {
		select {
		case ev := <-s.events:
			s.deliver(ev)
		case <-s.done:
			// Flush what was committed before the close.
			for {
				select {
				case ev := <-s.events:
					s.deliver(ev)
				default:
					return
				}
			}
		}
	}
}

func (s *Session) deliver(ev Event) {
	s.wmu.Lock()
	fns := make([]func(Event), 0, len(s.watchers))
	for i := 0; i < s.nextW; i++ {
		if fn, ok := s.watchers[i]; ok {
			fns = append(fns, fn)
		}
	}
	s.wmu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (s *Session) Set(_ context.Context, key string, rec protocol.UserRecord) error {
	return s.hub.set(s, key, rec)
}

func (s *Session) Update(_ context.Context, key string, patch protocol.UserPatch) error {
	return s.hub.update(s, key, patch)
}

func (s *Session) Remove(_ context.Context, key string) error {
	return s.hub.remove(s, key)
}

func (s *Session) List(_ context.Context) ([]Entry, error) {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	if s.closed {
		return nil, ErrNotConnected
	}
	return s.hub.listLocked(), nil
}

func (s *Session) OnDisconnectRemove(_ context.Context, key string) error {
	if !ValidKey(key) {
		return protocol.NewError(protocol.ErrBadKey, key)
	}
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	if s.closed {
		return ErrNotConnected
	}
	for _, k := range s.onDisconnect {
		if k == key {
			return nil
		}
	}
	s.onDisconnect = append(s.onDisconnect, key)
	return nil
}

func (s *Session) Watch(fn func(Event)) func() {
	s.wmu.Lock()
	id := s.nextW
	s.nextW++
	s.watchers[id] = fn
	s.wmu.Unlock()
	return func() {
		s.wmu.Lock()
		delete(s.watchers, id)
		s.wmu.Unlock()
	}
}

// Close ends the session as if its connection dropped.
func (s *Session) Close() error {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	s.hub.disconnectLocked(s)
	return nil
}
