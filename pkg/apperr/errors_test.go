package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	base := errors.New("boom")

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "nil", err: nil, want: KindUnknown},
		{name: "plain error", err: base, want: KindUnknown},
		{name: "auth", err: Auth("verify", base), want: KindAuth},
		{name: "storage wrapped with fmt", err: fmt.Errorf("write: %w", Storage("insert", base)), want: KindStorage},
		{name: "malformed", err: Malformed("parse", base), want: KindMalformedPayload},
		{name: "callback", err: Callback("respond", base), want: KindDownstreamCallback},
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
	err := Storage("insert", ErrDuplicate)
	if !errors.Is(err, ErrDuplicate) {
		t.Error("errors.Is() should see through *Error")
	}
	if !Is(err, KindStorage) {
		t.Error("Is() should report storage kind")
	}
	if Is(nil, KindStorage) {
		t.Error("Is(nil) should be false")
	}
}

func TestErrorString(t *testing.T) {
	err := Auth("verify", errors.New("signature mismatch"))
	if got, want := err.Error(), "verify: auth: signature mismatch"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	bare := &Error{Kind: KindMalformedPayload, Op: "parse"}
	if got, want := bare.Error(), "parse: malformed_payload"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
