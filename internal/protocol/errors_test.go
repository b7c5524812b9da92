package protocol

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsKnownCode(t *testing.T) {
	cases := []string{
		"",
		ErrProtoBadRequest,
		ErrProtoVersion,
		ErrProtoCodec,
		ErrBadRecord,
		ErrBadKey,
		ErrNotFound,
		ErrNotOwner,
		ErrClosed,
		ErrInternal,
	}
	for _, c := range cases {
		if !IsKnownCode(c) {
			t.Fatalf("expected known code: %q", c)
		}
	}
	if IsKnownCode("E_NOT_DEFINED") {
		t.Fatalf("expected unknown code rejected")
	}
}

func TestCodeErrorUnwrapsThroughWrapping(t *testing.T) {
	err := fmt.Errorf("publish: %w", NewError(ErrNotOwner, "users/bob"))
	var ce *CodeError
	if !errors.As(err, &ce) {
		t.Fatalf("expected CodeError in chain")
	}
	if ce.Code != ErrNotOwner {
		t.Fatalf("code=%q", ce.Code)
	}
	if got := ce.Error(); got != "E_NOT_OWNER: users/bob" {
		t.Fatalf("Error()=%q", got)
	}
}

func TestCodeErrorIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("update: %w", NewError(ErrNotFound, "users/carol"))
	if !errors.Is(err, NewError(ErrNotFound, "")) {
		t.Fatalf("errors.Is by code failed")
	}
	if errors.Is(err, NewError(ErrNotOwner, "")) {
		t.Fatalf("matched a different code")
	}
	if CodeOf(err) != ErrNotFound || CodeOf(errors.New("x")) != ErrInternal {
		t.Fatalf("CodeOf mismatch")
	}
}
