// Package sshcert mints short-lived OpenSSH user certificates.
//
// Issuer is the strategy the request pipeline depends on. KeygenIssuer drives
// an external ssh-keygen holding the CA key; NativeIssuer signs in-process.
// Both are stateless between calls and safe for concurrent use.
package sshcert

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
)

// KeyIDPrefix starts every certificate identifier written to the signer's
// audit field.
const KeyIDPrefix = "pam-jwt-issuer"

// validityLayout is the compact UTC form ssh-keygen expects in -V.
const validityLayout = "20060102150405"

var recognizedPrefixes = []string{"ssh-ed25519 ", "ssh-rsa ", "sk-"}

var (
	ErrUnrecognizedKey    = errors.New("sshcert: public key type is not recognized")
	ErrEmptyPrincipal     = errors.New("sshcert: principal is empty")
	ErrInvalidPrincipal   = errors.New("sshcert: principal contains a separator or control character")
	ErrInvalidWindow      = errors.New("sshcert: validity window is empty or inverted")
	ErrSignerFailed       = errors.New("sshcert: signer exited with failure")
	ErrSignerSpawn        = errors.New("sshcert: signer could not be started")
	ErrMissingCertificate = errors.New("sshcert: signer produced no certificate")
)

type Request struct {
	Principal   string
	ValidAfter  time.Time
	ValidBefore time.Time
	PublicKey   string
	Extensions  []string
	Serial      uint64
}

type Certificate struct {
	// Text is the single-line OpenSSH certificate ("<type>-cert-v01@openssh.com <b64> ...").
	Text        string
	Serial      uint64
	ValidBefore time.Time
}

type Issuer interface {
	Issue(ctx context.Context, req Request) (Certificate, error)
}

// RecognizedKey is a cheap shape check. Keys that pass may still be malformed;
// the signer has the final say.
func RecognizedKey(pub string) bool {
	for _, p := range recognizedPrefixes {
		if strings.HasPrefix(pub, p) {
			return true
		}
	}
	return false
}

// NewSerial adds a random 64-bit value to base, wrapping on overflow.
func NewSerial(base uint64) (uint64, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("sshcert: read serial entropy: %w", err)
	}
	return base + binary.LittleEndian.Uint64(buf[:]), nil
}

// FormatValidity renders "from:to" as YYYYMMDDHHMMSS in UTC.
func FormatValidity(after, before time.Time) string {
	return after.UTC().Format(validityLayout) + ":" + before.UTC().Format(validityLayout)
}

func KeyID(principal string, after time.Time) string {
	return fmt.Sprintf("%s:%s:%d", KeyIDPrefix, principal, after.Unix())
}

func (r Request) validate() error {
	if strings.TrimSpace(r.Principal) == "" {
		return ErrEmptyPrincipal
	}
	// ssh-keygen -n splits on commas.
	if strings.IndexFunc(r.Principal, invalidPrincipalRune) >= 0 {
		return ErrInvalidPrincipal
	}
	if !RecognizedKey(r.PublicKey) {
		return ErrUnrecognizedKey
	}
	if !r.ValidBefore.After(r.ValidAfter) {
		return ErrInvalidWindow
	}
	return nil
}

func invalidPrincipalRune(c rune) bool {
	return c == ',' || unicode.IsSpace(c) || unicode.IsControl(c)
}

func cleanExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, e := range exts {
		if e = strings.TrimSpace(e); e != "" {
			out = append(out, e)
		}
	}
	return out
}
