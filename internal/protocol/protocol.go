package protocol

import "encoding/json"

const Version = "1.0"

// Collection is the keyed collection every presence record lives under.
const Collection = "users"

// Message types.
const (
	TypeHello        = "HELLO"
	TypeWelcome      = "WELCOME"
	TypeSet          = "SET"
	TypeUpdate       = "UPDATE"
	TypeRemove       = "REMOVE"
	TypeOnDisconnect = "ON_DISCONNECT"
	TypeList         = "LIST"
	TypeListResult   = "LIST_RESULT"
	TypeAck          = "ACK"
	TypeEvent        = "EVENT"
)

// Record lifecycle events on the users collection.
const (
	EventChildAdded   = "child_added"
	EventChildRemoved = "child_removed"
	EventChildChanged = "child_changed"
)

// BaseMessage lets us route unknown messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
	ReqID           string `json:"req_id,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
