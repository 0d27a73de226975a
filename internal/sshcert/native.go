package sshcert

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/ssh"
)

var (
	ErrUnknownOption  = errors.New("sshcert: unknown certificate option")
	ErrInvalidUserKey = errors.New("sshcert: user public key cannot be parsed")
)

// defaultExtensions matches what ssh-keygen grants a user certificate unless
// "clear" is given.
var defaultExtensions = []string{
	"permit-X11-forwarding",
	"permit-agent-forwarding",
	"permit-port-forwarding",
	"permit-pty",
	"permit-user-rc",
}

var permitNames = map[string]string{
	"x11-forwarding":   "permit-X11-forwarding",
	"agent-forwarding": "permit-agent-forwarding",
	"port-forwarding":  "permit-port-forwarding",
	"pty":              "permit-pty",
	"user-rc":          "permit-user-rc",
}

// NativeIssuer signs certificates in-process with a CA key held in memory.
type NativeIssuer struct {
	ca ssh.Signer
}

func NewNativeIssuer(ca ssh.Signer) *NativeIssuer {
	return &NativeIssuer{ca: ca}
}

// LoadNativeIssuer reads an unencrypted OpenSSH/PEM CA private key.
func LoadNativeIssuer(caKeyPath string) (*NativeIssuer, error) {
	raw, err := os.ReadFile(caKeyPath)
	if err != nil {
		return nil, fmt.Errorf("sshcert: read ca key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(raw)
	if err != nil {
		var missing *ssh.PassphraseMissingError
		if errors.As(err, &missing) {
			return nil, fmt.Errorf("sshcert: ca key %s is passphrase protected", caKeyPath)
		}
		return nil, fmt.Errorf("sshcert: parse ca key: %w", err)
	}
	return NewNativeIssuer(signer), nil
}

func (n *NativeIssuer) Issue(_ context.Context, req Request) (Certificate, error) {
	if err := req.validate(); err != nil {
		return Certificate{}, err
	}
	pub, _, _, _, err := ssh.ParseAuthorizedKey([]byte(req.PublicKey))
	if err != nil {
		return Certificate{}, fmt.Errorf("%w: %v", ErrInvalidUserKey, err)
	}
	perms, err := permissionsFromOptions(req.Extensions)
	if err != nil {
		return Certificate{}, err
	}
	cert := &ssh.Certificate{
		Key:             pub,
		Serial:          req.Serial,
		CertType:        ssh.UserCert,
		KeyId:           KeyID(req.Principal, req.ValidAfter),
		ValidPrincipals: []string{req.Principal},
		ValidAfter:      uint64(req.ValidAfter.Unix()),
		ValidBefore:     uint64(req.ValidBefore.Unix()),
		Permissions:     perms,
	}
	if err := cert.SignCert(rand.Reader, n.ca); err != nil {
		return Certificate{}, fmt.Errorf("%w: %v", ErrSignerFailed, err)
	}
	return Certificate{
		Text:        strings.TrimSpace(string(ssh.MarshalAuthorizedKey(cert))),
		Serial:      req.Serial,
		ValidBefore: req.ValidBefore,
	}, nil
}

// Fingerprint returns the SHA256 fingerprint of an authorized_keys line, or
// "" when the key does not parse.
func Fingerprint(pub string) string {
	key, _, _, _, err := ssh.ParseAuthorizedKey([]byte(pub))
	if err != nil {
		return ""
	}
	return ssh.FingerprintSHA256(key)
}

// permissionsFromOptions applies ssh-keygen "-O" options in order on top of
// the default extension set.
func permissionsFromOptions(opts []string) (ssh.Permissions, error) {
	ext := make(map[string]string, len(defaultExtensions))
	for _, name := range defaultExtensions {
		ext[name] = ""
	}
	critical := map[string]string{}

	for _, opt := range cleanExtensions(opts) {
		name, value, hasValue := strings.Cut(opt, "=")
		lower := strings.ToLower(name)
		switch {
		case lower == "clear":
			clear(ext)
		case strings.HasPrefix(lower, "no-"):
			canonical, ok := permitNames[strings.TrimPrefix(lower, "no-")]
			if !ok {
				if lower == "no-touch-required" {
					ext["no-touch-required"] = ""
					continue
				}
				return ssh.Permissions{}, fmt.Errorf("%w: %s", ErrUnknownOption, opt)
			}
			delete(ext, canonical)
		case strings.HasPrefix(lower, "permit-"):
			canonical, ok := permitNames[strings.TrimPrefix(lower, "permit-")]
			if !ok {
				return ssh.Permissions{}, fmt.Errorf("%w: %s", ErrUnknownOption, opt)
			}
			ext[canonical] = ""
		case lower == "force-command" || lower == "source-address":
			if !hasValue || value == "" {
				return ssh.Permissions{}, fmt.Errorf("%w: %s requires a value", ErrUnknownOption, lower)
			}
			critical[lower] = value
		case lower == "verify-required":
			critical["verify-required"] = ""
		case strings.HasPrefix(lower, "extension:"):
			ext[name[len("extension:"):]] = value
		case strings.HasPrefix(lower, "critical:"):
			critical[name[len("critical:"):]] = value
		default:
			return ssh.Permissions{}, fmt.Errorf("%w: %s", ErrUnknownOption, opt)
		}
	}
	return ssh.Permissions{CriticalOptions: critical, Extensions: ext}, nil
}
