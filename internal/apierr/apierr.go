// Package apierr defines the three public failure kinds of the issuer and the
// fixed vocabulary of messages allowed to leave the process.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindBadRequest Kind = "bad_request"
	KindAuthFailed Kind = "auth_failed"
	KindInternal   Kind = "internal_error"
)

// Public messages. Nothing else is ever written to a response body.
const (
	MsgInvalidRequest    = "invalid request"
	MsgInvalidCiphertext = "invalid ciphertext"
	MsgInvalidJSON       = "invalid decrypted json"
	MsgMissingCreds      = "username and password are required"
	MsgStaleTimestamp    = "stale or future timestamp"
	MsgInvalidSSHPubKey  = "invalid ssh_pubkey"
	MsgAuthFailed        = "authentication failed"
	MsgInternal          = "internal error"
)

// Error carries a public kind and message plus an internal cause that is only
// ever logged.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// Status maps the kind onto an HTTP status code.
func (e *Error) Status() int {
	switch e.Kind {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindAuthFailed:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// Public returns the message safe to send to the caller.
func (e *Error) Public() string {
	switch e.Kind {
	case KindAuthFailed:
		return MsgAuthFailed
	case KindBadRequest:
		if e.Msg == "" {
			return MsgInvalidRequest
		}
		return e.Msg
	default:
		return MsgInternal
	}
}

func Bad(msg string, cause error) *Error {
	return &Error{Kind: KindBadRequest, Msg: msg, Cause: cause}
}

func AuthFailed(cause error) *Error {
	return &Error{Kind: KindAuthFailed, Msg: MsgAuthFailed, Cause: cause}
}

func Internal(stage string, cause error) *Error {
	return &Error{Kind: KindInternal, Msg: stage, Cause: cause}
}

// From normalises any error into an *Error; unknown errors become Internal.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal("unclassified", err)
}
