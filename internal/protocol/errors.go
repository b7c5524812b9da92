package protocol

import "errors"

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrProtoVersion    = "E_PROTO_VERSION"
	ErrProtoCodec      = "E_PROTO_CODEC"

	// Presence store.
	ErrBadRecord = "E_BAD_RECORD"
	ErrBadKey    = "E_BAD_KEY"
	ErrNotFound  = "E_NOT_FOUND"
	ErrNotOwner  = "E_NOT_OWNER"
	ErrClosed    = "E_CLOSED"
	ErrInternal  = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrProtoVersion:    {},
	ErrProtoCodec:      {},
	ErrBadRecord:       {},
	ErrBadKey:          {},
	ErrNotFound:        {},
	ErrNotOwner:        {},
	ErrClosed:          {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

// CodeError carries a protocol error code across package boundaries.
type CodeError struct {
	Code    string
	Message string
}

func (e *CodeError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

func NewError(code, msg string) *CodeError { return &CodeError{Code: code, Message: msg} }

// Is matches any CodeError with the same code.
func (e *CodeError) Is(target error) bool {
	t, ok := target.(*CodeError)
	return ok && t.Code == e.Code
}

// CodeOf returns the protocol code carried by err, or ErrInternal.
func CodeOf(err error) string {
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ErrInternal
}
