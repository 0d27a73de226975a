package sshcert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

const (
	DefaultKeygenProgram = "ssh-keygen"
	maxDiagnosticBytes   = 4 << 10
)

// KeygenIssuer signs by running "ssh-keygen -s <ca>" against a temporary copy
// of the user's public key. The temporary key and the certificate ssh-keygen
// writes beside it are removed before Issue returns.
type KeygenIssuer struct {
	Program    string
	CAKeyPath  string
	ScratchDir string
	Log        *slog.Logger
}

func (k *KeygenIssuer) Issue(ctx context.Context, req Request) (Certificate, error) {
	if err := req.validate(); err != nil {
		return Certificate{}, err
	}

	pubFile, err := os.CreateTemp(k.ScratchDir, "issuer-user-*")
	if err != nil {
		return Certificate{}, fmt.Errorf("sshcert: create temp key: %w", err)
	}
	pubPath := pubFile.Name()
	certPath := pubPath + "-cert.pub"
	defer func() {
		_ = os.Remove(pubPath)
		_ = os.Remove(certPath)
	}()

	if _, err := pubFile.WriteString(req.PublicKey); err != nil {
		_ = pubFile.Close()
		return Certificate{}, fmt.Errorf("sshcert: write temp key: %w", err)
	}
	if err := pubFile.Close(); err != nil {
		return Certificate{}, fmt.Errorf("sshcert: close temp key: %w", err)
	}

	// Not CommandContext: once started, the signer runs to completion.
	cmd := exec.Command(k.program(), k.args(req, pubPath)...)
	var diag bytes.Buffer
	cmd.Stdout = &diag
	cmd.Stderr = &diag
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			k.logger().ErrorContext(ctx, "ssh-keygen failed",
				"exit_code", exitErr.ExitCode(),
				"serial", req.Serial,
				"diagnostic", truncate(diag.String(), maxDiagnosticBytes),
			)
			return Certificate{}, fmt.Errorf("%w: exit code %d", ErrSignerFailed, exitErr.ExitCode())
		}
		return Certificate{}, fmt.Errorf("%w: %v", ErrSignerSpawn, err)
	}

	raw, err := os.ReadFile(certPath)
	if err != nil {
		return Certificate{}, fmt.Errorf("%w: %v", ErrMissingCertificate, err)
	}
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return Certificate{}, ErrMissingCertificate
	}
	return Certificate{Text: text, Serial: req.Serial, ValidBefore: req.ValidBefore}, nil
}

func (k *KeygenIssuer) args(req Request, pubPath string) []string {
	args := []string{
		"-s", k.CAKeyPath,
		"-I", KeyID(req.Principal, req.ValidAfter),
		"-n", req.Principal,
		"-V", FormatValidity(req.ValidAfter, req.ValidBefore),
		"-z", strconv.FormatUint(req.Serial, 10),
	}
	for _, ext := range cleanExtensions(req.Extensions) {
		args = append(args, "-O", ext)
	}
	return append(args, pubPath)
}

func (k *KeygenIssuer) program() string {
	if k.Program == "" {
		return DefaultKeygenProgram
	}
	return k.Program
}

func (k *KeygenIssuer) logger() *slog.Logger {
	if k.Log == nil {
		return slog.Default()
	}
	return k.Log
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "...(truncated)"
}
