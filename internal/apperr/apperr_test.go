package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindString(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{Internal, "internal"},
		{InvalidInput, "invalid_input"},
		{Conflict, "conflict"},
		{NotAuthenticated, "not_authenticated"},
		{NotAuthorized, "not_authorized"},
		{NotFound, "not_found"},
		{Kind(99), "internal"},
	}

	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("Kind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestKindOf(t *testing.T) {
	cause := errors.New("connection reset")

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"classified", New(Conflict, "duplicate name"), Conflict},
		{"wrapped classified", fmt.Errorf("create: %w", New(NotFound, "gone")), NotFound},
		{"classified with cause", Wrap(Internal, "store failed", cause), Internal},
		{"unclassified", cause, Internal},
		{"nil cause chain", New(NotAuthorized, "not a member"), NotAuthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("timeout")
	err := Wrap(Internal, "oracle unreachable", cause)

	if !errors.Is(err, cause) {
		t.Error("wrapped cause not reachable via errors.Is")
	}
	if err.Error() != "internal: oracle unreachable: timeout" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestIsKind(t *testing.T) {
	err := Newf(InvalidInput, "unknown system %q", "demo")

	if !IsKind(err, InvalidInput) {
		t.Error("IsKind(InvalidInput) = false, want true")
	}
	if IsKind(err, Conflict) {
		t.Error("IsKind(Conflict) = true, want false")
	}
	if IsKind(errors.New("plain"), Internal) {
		t.Error("IsKind on unclassified error = true, want false")
	}
}
