package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"brawlarena.ai/internal/presence"
	"brawlarena.ai/internal/protocol"
)

type ClientConfig struct {
	Name   string
	Codec  string
	Logger *log.Logger
}

// Client is a presence.Backend backed by a websocket connection to Server.
// Events are delivered on the reader goroutine in server commit order.
type Client struct {
	conn   *websocket.Conn
	codec  protocol.Codec
	log    *log.Logger
	connID string

	wmu sync.Mutex // gorilla allows one concurrent writer

	mu       sync.Mutex
	pending  map[string]chan any
	watchers map[int]func(presence.Event)
	nextW    int
	err      error

	done chan struct{}
}

var _ presence.Backend = (*Client)(nil)

func Dial(ctx context.Context, url string, cfg ClientConfig) (*Client, error) {
	codec, err := protocol.CodecByName(cfg.Codec)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      cfg.Name,
		Codec:           codec.Name(),
	}
	if err := writeJSON(conn, hello); err != nil {
		_ = conn.Close()
		return nil, err
	}
	_ = conn.SetReadDeadline(time.Now().Add(handshakeWait))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ws: handshake: %w", err)
	}
	var welcome protocol.WelcomeMsg
	if err := json.Unmarshal(msg, &welcome); err != nil || welcome.Type != protocol.TypeWelcome {
		_ = conn.Close()
		return nil, protocol.NewError(protocol.ErrProtoBadRequest, "expected WELCOME")
	}
	_ = conn.SetReadDeadline(time.Time{})

	c := &Client{
		conn:     conn,
		codec:    codec,
		log:      logger,
		connID:   welcome.ConnID,
		pending:  map[string]chan any{},
		watchers: map[int]func(presence.Event){},
		done:     make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *Client) ConnID() string { return c.connID }

// Done is closed once the connection is gone.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) readLoop() {
	var err error
	defer func() { c.fail(err) }()
	for {
		var msg []byte
		_, msg, err = c.conn.ReadMessage()
		if err != nil {
			return
		}
		base, derr := protocol.DecodeBaseWith(c.codec, msg)
		if derr != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeEvent:
			var m protocol.EventMsg
			if err := c.codec.Unmarshal(msg, &m); err != nil {
				c.log.Printf("ws: bad EVENT: %v", err)
				continue
			}
			c.deliver(presence.Event{Kind: m.Event, Key: m.Key, Record: m.Record, Seq: m.Seq})
		case protocol.TypeAck:
			var m protocol.AckMsg
			if err := c.codec.Unmarshal(msg, &m); err == nil {
				c.resolve(m.ReqID, m)
			}
		case protocol.TypeListResult:
			var m protocol.ListResultMsg
			if err := c.codec.Unmarshal(msg, &m); err == nil {
				c.resolve(m.ReqID, m)
			}
		}
	}
}

func (c *Client) deliver(ev presence.Event) {
	c.mu.Lock()
	fns := make([]func(presence.Event), 0, len(c.watchers))
	for i := 0; i < c.nextW; i++ {
		if fn, ok := c.watchers[i]; ok {
			fns = append(fns, fn)
		}
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (c *Client) resolve(reqID string, v any) {
	c.mu.Lock()
	ch, ok := c.pending[reqID]
	delete(c.pending, reqID)
	c.mu.Unlock()
	if ok {
		ch <- v
	}
}

func (c *Client) fail(err error) {
	c.mu.Lock()
	if c.err != nil {
		c.mu.Unlock()
		return
	}
	if err == nil {
		err = presence.ErrNotConnected
	}
	c.err = err
	c.pending = map[string]chan any{}
	c.mu.Unlock()
	close(c.done)
	_ = c.conn.Close()
}

// request sends msg and waits for the reply carrying reqID.
func (c *Client) request(ctx context.Context, reqID string, msg any) (any, error) {
	ch := make(chan any, 1)
	c.mu.Lock()
	if c.err != nil {
		c.mu.Unlock()
		return nil, presence.ErrNotConnected
	}
	c.pending[reqID] = ch
	c.mu.Unlock()

	b, err := c.codec.Marshal(msg)
	if err != nil {
		c.resolve(reqID, nil)
		return nil, err
	}
	mt := websocket.TextMessage
	if c.codec.Binary() {
		mt = websocket.BinaryMessage
	}
	c.wmu.Lock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	err = c.conn.WriteMessage(mt, b)
	c.wmu.Unlock()
	if err != nil {
		c.fail(err)
		return nil, fmt.Errorf("%w: %v", presence.ErrNotConnected, err)
	}

	select {
	case v := <-ch:
		return v, nil
	case <-c.done:
		return nil, presence.ErrNotConnected
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, reqID)
		c.mu.Unlock()
		return nil, ctx.Err()
	}
}

func (c *Client) ack(ctx context.Context, reqID string, msg any) error {
	v, err := c.request(ctx, reqID, msg)
	if err != nil {
		return err
	}
	a, ok := v.(protocol.AckMsg)
	if !ok {
		return protocol.NewError(protocol.ErrProtoBadRequest, "unexpected reply")
	}
	if !a.OK {
		return protocol.NewError(a.Code, a.Message)
	}
	return nil
}

func newReqID() string { return uuid.NewString() }

func (c *Client) Set(ctx context.Context, key string, rec protocol.UserRecord) error {
	id := newReqID()
	return c.ack(ctx, id, protocol.SetMsg{Type: protocol.TypeSet, ReqID: id, Key: key, Record: rec})
}

func (c *Client) Update(ctx context.Context, key string, patch protocol.UserPatch) error {
	id := newReqID()
	return c.ack(ctx, id, protocol.UpdateMsg{Type: protocol.TypeUpdate, ReqID: id, Key: key, Patch: patch})
}

func (c *Client) Remove(ctx context.Context, key string) error {
	id := newReqID()
	return c.ack(ctx, id, protocol.RemoveMsg{Type: protocol.TypeRemove, ReqID: id, Key: key})
}

func (c *Client) OnDisconnectRemove(ctx context.Context, key string) error {
	id := newReqID()
	return c.ack(ctx, id, protocol.OnDisconnectMsg{Type: protocol.TypeOnDisconnect, ReqID: id, Key: key})
}

func (c *Client) List(ctx context.Context) ([]presence.Entry, error) {
	id := newReqID()
	v, err := c.request(ctx, id, protocol.ListMsg{Type: protocol.TypeList, ReqID: id})
	if err != nil {
		return nil, err
	}
	switch m := v.(type) {
	case protocol.ListResultMsg:
		out := make([]presence.Entry, 0, len(m.Records))
		for _, r := range m.Records {
			out = append(out, presence.Entry{Key: r.Username, Record: r})
		}
		return out, nil
	case protocol.AckMsg:
		return nil, protocol.NewError(m.Code, m.Message)
	default:
		return nil, protocol.NewError(protocol.ErrProtoBadRequest, "unexpected reply")
	}
}

func (c *Client) Watch(fn func(presence.Event)) func() {
	c.mu.Lock()
	id := c.nextW
	c.nextW++
	c.watchers[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.watchers, id)
		c.mu.Unlock()
	}
}

// Close drops the connection; the server then runs delete-on-disconnect.
func (c *Client) Close() error {
	c.wmu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.wmu.Unlock()
	c.fail(nil)
	return nil
}
