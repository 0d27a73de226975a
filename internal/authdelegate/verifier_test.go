package authdelegate

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestVerifierFuncAdapts(t *testing.T) {
	var gotUser, gotPass string
	v := VerifierFunc(func(_ context.Context, username, password string) error {
		gotUser, gotPass = username, password
		if password != "s3cret" {
			return ErrRejected
		}
		return nil
	})
	if err := v.Verify(context.Background(), "alice", "s3cret"); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if gotUser != "alice" || gotPass != "s3cret" {
		t.Fatalf("unexpected forwarded credentials: %q", gotUser)
	}
	if err := v.Verify(context.Background(), "alice", "nope"); !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
}

func TestSessionInitFailureStillRejects(t *testing.T) {
	err := fmt.Errorf("%w: %w: pam_start failed", ErrRejected, ErrSessionInit)
	if !errors.Is(err, ErrRejected) {
		t.Fatal("session init failure must wrap ErrRejected")
	}
	if !IsSessionInit(err) {
		t.Fatal("expected session init detail to be recoverable for logs")
	}
	if IsSessionInit(ErrRejected) {
		t.Fatal("plain rejection is not a session init failure")
	}
}
