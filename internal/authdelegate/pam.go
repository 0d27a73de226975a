//go:build cgo

package authdelegate

import (
	"context"
	"errors"
	"fmt"

	"github.com/msteinert/pam/v2"
)

var errUnsupportedPrompt = errors.New("unsupported pam prompt style")

// PAM verifies credentials against a PAM service (e.g. /etc/pam.d/<Service>).
type PAM struct {
	Service string
}

func NewPAM(service string) *PAM {
	return &PAM{Service: service}
}

// Verify runs pam_authenticate. The call blocks its goroutine until the PAM
// stack answers; ctx is not consulted once the transaction has started.
func (p *PAM) Verify(_ context.Context, username, password string) error {
	tx, err := pam.StartFunc(p.Service, username, func(style pam.Style, _ string) (string, error) {
		switch style {
		case pam.PromptEchoOff:
			return password, nil
		case pam.PromptEchoOn:
			return username, nil
		case pam.ErrorMsg, pam.TextInfo:
			return "", nil
		default:
			return "", errUnsupportedPrompt
		}
	})
	if err != nil {
		return fmt.Errorf("%w: %w: %v", ErrRejected, ErrSessionInit, err)
	}
	defer func() { _ = tx.End() }()

	if err := tx.Authenticate(0); err != nil {
		return fmt.Errorf("%w: %v", ErrRejected, err)
	}
	return nil
}
