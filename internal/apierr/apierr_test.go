package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		err  *Error
		want int
	}{
		{Bad(MsgInvalidCiphertext, nil), http.StatusBadRequest},
		{AuthFailed(errors.New("pam: init")), http.StatusUnauthorized},
		{Internal("jwt encode", errors.New("boom")), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := tc.err.Status(); got != tc.want {
			t.Fatalf("%v: got status %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestPublicMessageHidesInternalDetail(t *testing.T) {
	err := Internal("ssh-keygen failed", errors.New("permission denied on /etc/ssh/ssh_user_ca"))
	if got := err.Public(); got != MsgInternal {
		t.Fatalf("expected generic internal message, got %q", got)
	}
	auth := &Error{Kind: KindAuthFailed, Msg: "user unknown"}
	if got := auth.Public(); got != MsgAuthFailed {
		t.Fatalf("expected generic auth message, got %q", got)
	}
}

func TestFromPreservesKindThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("stage: %w", Bad(MsgStaleTimestamp, nil))
	got := From(wrapped)
	if got.Kind != KindBadRequest || got.Public() != MsgStaleTimestamp {
		t.Fatalf("unexpected normalised error: %+v", got)
	}
	if From(errors.New("plain")).Kind != KindInternal {
		t.Fatal("unknown errors must normalise to internal")
	}
	if From(nil) != nil {
		t.Fatal("nil must stay nil")
	}
}
