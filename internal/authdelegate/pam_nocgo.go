//go:build !cgo

package authdelegate

import (
	"context"
	"fmt"
)

// PAM is unavailable without cgo; every verification fails as a session
// initialisation failure.
type PAM struct {
	Service string
}

func NewPAM(service string) *PAM {
	return &PAM{Service: service}
}

func (p *PAM) Verify(context.Context, string, string) error {
	return fmt.Errorf("%w: %w: binary built without cgo", ErrRejected, ErrSessionInit)
}
