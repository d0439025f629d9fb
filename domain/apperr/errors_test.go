package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	base := errors.New("disk full")

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "plain error", err: base, want: KindInternal},
		{name: "validation", err: Validation("bad input"), want: KindValidation},
		{name: "wrapped not found", err: fmt.Errorf("lookup: %w", NotFound("missing")), want: KindNotFound},
		{name: "store", err: Store("Couldn't save", base), want: KindStore},
		{name: "conflict", err: Conflict("taken"), want: KindConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPublicMessage_HidesInternals(t *testing.T) {
	cause := errors.New("UNIQUE constraint failed: rooms.name")

	if got := PublicMessage(cause); got != GenericMessage {
		t.Errorf("PublicMessage(plain) = %q, want generic", got)
	}
	if got := PublicMessage(Store("Couldn't add users to room.", cause)); got != "Couldn't add users to room." {
		t.Errorf("PublicMessage(store) = %q", got)
	}
	if got := PublicMessage(Wrap(KindInternal, "boom", cause)); got != GenericMessage {
		t.Errorf("PublicMessage(internal) = %q, want generic", got)
	}
}

func TestPayload_RoundTrip(t *testing.T) {
	if ToPayload(nil) != nil {
		t.Fatal("ToPayload(nil) should be nil")
	}
	var nilPayload *Payload
	if nilPayload.Err() != nil {
		t.Fatal("nil payload should rebuild to nil error")
	}

	original := Forbidden("Tsk Tsk. you need to be admin to edit that room")
	rebuilt := ToPayload(original).Err()

	if !Is(rebuilt, KindAuthorization) {
		t.Errorf("rebuilt kind = %v, want %v", KindOf(rebuilt), KindAuthorization)
	}
	if PublicMessage(rebuilt) != original.Message {
		t.Errorf("rebuilt message = %q, want %q", PublicMessage(rebuilt), original.Message)
	}
}

func TestParseKind_Unknown(t *testing.T) {
	if got := ParseKind("teapot"); got != KindInternal {
		t.Errorf("ParseKind(unknown) = %v, want internal", got)
	}
	for kind := range kindNames {
		if got := ParseKind(kind.String()); got != kind {
			t.Errorf("ParseKind(%q) = %v, want %v", kind.String(), got, kind)
		}
	}
}
