package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name,omitempty"`
	// Codec selects the frame encoding used after WELCOME ("json" or "msgpack").
	Codec string `json:"codec,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ConnID          string `json:"conn_id"`
	Collection      string `json:"collection"`
	Codec           string `json:"codec"`
}

// SET creates or overwrites a record.
type SetMsg struct {
	Type   string     `json:"type"`
	ReqID  string     `json:"req_id"`
	Key    string     `json:"key"`
	Record UserRecord `json:"record"`
}

// UPDATE merges the present fields of Patch into the record (last write wins per field).
type UpdateMsg struct {
	Type  string    `json:"type"`
	ReqID string    `json:"req_id"`
	Key   string    `json:"key"`
	Patch UserPatch `json:"patch"`
}

type RemoveMsg struct {
	Type  string `json:"type"`
	ReqID string `json:"req_id"`
	Key   string `json:"key"`
}

// ON_DISCONNECT registers a deferred delete executed by the server when the connection drops.
type OnDisconnectMsg struct {
	Type  string `json:"type"`
	ReqID string `json:"req_id"`
	Key   string `json:"key"`
}

type ListMsg struct {
	Type  string `json:"type"`
	ReqID string `json:"req_id"`
}

// LIST_RESULT carries every record in join order.
type ListResultMsg struct {
	Type    string       `json:"type"`
	ReqID   string       `json:"req_id"`
	Records []UserRecord `json:"records"`
}

type AckMsg struct {
	Type    string `json:"type"`
	ReqID   string `json:"req_id"`
	OK      bool   `json:"ok"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// EVENT (server -> client)
type EventMsg struct {
	Type   string     `json:"type"`
	Event  string     `json:"event"`
	Key    string     `json:"key"`
	Record UserRecord `json:"record"`
	Seq    uint64     `json:"seq"`
}
