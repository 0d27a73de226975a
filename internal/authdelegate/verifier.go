// Package authdelegate hides the host identity-verification stack behind a
// single Verify operation.
//
// Every failure, including failure to open a verification session, wraps
// ErrRejected so callers collapse them into one public outcome. The wrapped
// detail is for internal logs only.
package authdelegate

import (
	"context"
	"errors"
)

var (
	ErrRejected    = errors.New("authdelegate: credential rejected")
	ErrSessionInit = errors.New("authdelegate: verification session could not start")
)

type Verifier interface {
	Verify(ctx context.Context, username, password string) error
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, username, password string) error

func (f VerifierFunc) Verify(ctx context.Context, username, password string) error {
	return f(ctx, username, password)
}

// IsSessionInit reports whether err came from a session that never started.
func IsSessionInit(err error) bool {
	return errors.Is(err, ErrSessionInit)
}
