package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"brawlarena.ai/internal/presence"
	"brawlarena.ai/internal/protocol"
)

const (
	writeWait     = 5 * time.Second
	readWait      = 60 * time.Second
	handshakeWait = 5 * time.Second
)

// Server exposes a presence.Hub over websocket. Each connection is one hub
// session; dropping the connection runs its delete-on-disconnect keys.
type Server struct {
	hub *presence.Hub
	log *log.Logger

	maxQueue int
	upgrader websocket.Upgrader
}

func NewServer(hub *presence.Hub, maxQueue int, logger *log.Logger) *Server {
	if maxQueue <= 0 {
		maxQueue = 64
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		hub:      hub,
		log:      logger,
		maxQueue: maxQueue,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

type outFrame struct {
	b      []byte
	binary bool
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		hello, codec, ok := s.handshake(conn)
		if !ok {
			return
		}

		sess := s.hub.Connect(hello.ClientName)
		defer sess.Close()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		out := make(chan outFrame, s.maxQueue)
		send := func(v any) bool {
			b, err := codec.Marshal(v)
			if err != nil {
				s.log.Printf("ws: %s: encode: %v", sess.ID(), err)
				return false
			}
			select {
			case out <- outFrame{b: b, binary: codec.Binary()}:
				return true
			default:
				// Events must arrive in order; a client that cannot keep up is dropped.
				s.log.Printf("ws: %s: outbound queue full, closing", sess.ID())
				cancel()
				return false
			}
		}

		stopWatch := sess.Watch(func(ev presence.Event) {
			send(protocol.EventMsg{Type: protocol.TypeEvent, Event: ev.Kind, Key: ev.Key, Record: ev.Record, Seq: ev.Seq})
		})
		defer stopWatch()

		welcome := protocol.WelcomeMsg{
			Type:            protocol.TypeWelcome,
			ProtocolVersion: protocol.Version,
			ConnID:          sess.ID(),
			Collection:      protocol.Collection,
			Codec:           codec.Name(),
		}
		if err := writeJSON(conn, welcome); err != nil {
			return
		}
		s.log.Printf("ws: %s connected name=%q codec=%s", sess.ID(), hello.ClientName, codec.Name())

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					_ = conn.Close()
					return
				case <-sess.Done():
					cancel()
					_ = conn.Close()
					return
				case f := <-out:
					mt := websocket.TextMessage
					if f.binary {
						mt = websocket.BinaryMessage
					}
					_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
					if err := conn.WriteMessage(mt, f.b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(readWait))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			base, err := protocol.DecodeBaseWith(codec, msg)
			if err != nil {
				continue
			}
			resp := s.dispatch(ctx, sess, codec, base, msg)
			if resp != nil && !send(resp) {
				break
			}
		}
		cancel()
		s.log.Printf("ws: %s disconnected", sess.ID())
	}
}

// dispatch applies one request and returns the reply frame.
func (s *Server) dispatch(ctx context.Context, sess *presence.Session, codec protocol.Codec, base protocol.BaseMessage, msg []byte) any {
	ack := func(err error) protocol.AckMsg {
		a := protocol.AckMsg{Type: protocol.TypeAck, ReqID: base.ReqID, OK: err == nil}
		if err != nil {
			a.Code = protocol.CodeOf(err)
			a.Message = err.Error()
		}
		return a
	}
	bad := func(err error) protocol.AckMsg {
		return ack(protocol.NewError(protocol.ErrProtoBadRequest, err.Error()))
	}

	switch base.Type {
	case protocol.TypeSet:
		var m protocol.SetMsg
		if err := codec.Unmarshal(msg, &m); err != nil {
			return bad(err)
		}
		return ack(sess.Set(ctx, m.Key, m.Record))
	case protocol.TypeUpdate:
		var m protocol.UpdateMsg
		if err := codec.Unmarshal(msg, &m); err != nil {
			return bad(err)
		}
		return ack(sess.Update(ctx, m.Key, m.Patch))
	case protocol.TypeRemove:
		var m protocol.RemoveMsg
		if err := codec.Unmarshal(msg, &m); err != nil {
			return bad(err)
		}
		return ack(sess.Remove(ctx, m.Key))
	case protocol.TypeOnDisconnect:
		var m protocol.OnDisconnectMsg
		if err := codec.Unmarshal(msg, &m); err != nil {
			return bad(err)
		}
		return ack(sess.OnDisconnectRemove(ctx, m.Key))
	case protocol.TypeList:
		entries, err := sess.List(ctx)
		if err != nil {
			return ack(err)
		}
		res := protocol.ListResultMsg{Type: protocol.TypeListResult, ReqID: base.ReqID, Records: make([]protocol.UserRecord, 0, len(entries))}
		for _, e := range entries {
			res.Records = append(res.Records, e.Record)
		}
		return res
	default:
		if base.ReqID == "" {
			return nil
		}
		return ack(protocol.NewError(protocol.ErrProtoBadRequest, "unknown type "+base.Type))
	}
}

func (s *Server) handshake(conn *websocket.Conn) (protocol.HelloMsg, protocol.Codec, bool) {
	var hello protocol.HelloMsg
	_ = conn.SetReadDeadline(time.Now().Add(handshakeWait))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return hello, nil, false
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		closeWith(conn, "expected HELLO")
		return hello, nil, false
	}
	if err := json.Unmarshal(msg, &hello); err != nil {
		closeWith(conn, "bad HELLO")
		return hello, nil, false
	}
	if hello.ProtocolVersion != protocol.Version {
		closeWith(conn, "bad protocol_version")
		return hello, nil, false
	}
	codec, err := protocol.CodecByName(hello.Codec)
	if err != nil {
		closeWith(conn, "unsupported codec")
		return hello, nil, false
	}
	if hello.ClientName == "" {
		hello.ClientName = "client"
	}
	return hello, codec, true
}

func closeWith(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, b)
}
