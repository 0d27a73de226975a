package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"pam-jwt-issuer/go-backend/internal/config"
	"pam-jwt-issuer/go-backend/internal/issuerclient"
	"pam-jwt-issuer/go-backend/internal/securestore"
	"pam-jwt-issuer/go-backend/internal/token"
)

const (
	exitOK            = 0
	exitInvalidInput  = 10
	exitNetworkFailed = 20
	exitRejected      = 30
	exitKeyFailed     = 40
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitInvalidInput)
	}

	switch os.Args[1] {
	case "token":
		runToken(os.Args[2:])
	case "seal-key":
		runSealKey(os.Args[2:])
	case "inspect":
		runInspect(os.Args[2:])
	default:
		printUsage()
		os.Exit(exitInvalidInput)
	}
}

func runToken(args []string) {
	fs := pflag.NewFlagSet("token", pflag.ExitOnError)
	url := fs.String("url", "http://127.0.0.1:8080", "issuer base URL")
	username := fs.StringP("username", "u", os.Getenv("USER"), "account name")
	passwordStdin := fs.Bool("password-stdin", false, "read the password from the first line of stdin")
	pubKeyFile := fs.String("ssh-pubkey-file", "", "OpenSSH public key to certify (optional)")
	certOut := fs.String("cert-out", "", "write the SSH certificate here instead of printing it")
	timeout := fs.Duration("timeout", 30*time.Second, "overall request timeout")
	if err := fs.Parse(args); err != nil {
		writeStderrln(err.Error(), exitInvalidInput)
	}
	if strings.TrimSpace(*username) == "" {
		writeStderrln("username is required", exitInvalidInput)
	}

	password, err := readPassword(*passwordStdin, os.Stdin)
	if err != nil {
		writeStderrln(err.Error(), exitInvalidInput)
	}
	creds := issuerclient.Credentials{Username: *username, Password: password}
	if *pubKeyFile != "" {
		raw, err := os.ReadFile(*pubKeyFile)
		if err != nil {
			writeStderrln(err.Error(), exitInvalidInput)
		}
		creds.SSHPubKey = string(raw)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	resp, err := issuerclient.New(*url).RequestToken(ctx, creds)
	if err != nil {
		var se *issuerclient.StatusError
		if errors.As(err, &se) {
			writeStderrln(se.Error(), exitRejected)
		}
		writeStderrln(err.Error(), exitNetworkFailed)
	}
	if *pubKeyFile != "" && resp.SSHUserCert == nil {
		_, _ = fmt.Fprintln(os.Stderr, "warning: issuer returned a token without an SSH certificate")
	}
	if *certOut != "" && resp.SSHUserCert != nil {
		if err := os.WriteFile(*certOut, []byte(*resp.SSHUserCert+"\n"), 0o644); err != nil {
			writeStderrln(err.Error(), exitInvalidInput)
		}
		resp.SSHUserCert = nil
	}
	if err := printJSON(resp); err != nil {
		writeStderrln(err.Error(), exitNetworkFailed)
	}
	os.Exit(exitOK)
}

func runSealKey(args []string) {
	fs := pflag.NewFlagSet("seal-key", pflag.ExitOnError)
	in := fs.String("in", config.DefaultRSAKeyPath, "PEM private key to seal")
	out := fs.String("out", "", "destination (defaults to sealing in place)")
	if err := fs.Parse(args); err != nil {
		writeStderrln(err.Error(), exitInvalidInput)
	}
	dst := *out
	if dst == "" {
		dst = *in
	}

	passphrase := os.Getenv(config.EnvRSAKeyPassphrase)
	if passphrase == "" {
		var err error
		passphrase, err = promptNewPassphrase()
		if err != nil {
			writeStderrln(err.Error(), exitInvalidInput)
		}
	}
	if err := securestore.SealKeyFile(*in, dst, passphrase); err != nil {
		writeStderrln(err.Error(), exitKeyFailed)
	}
	if err := printJSON(map[string]any{"sealed": true, "path": dst}); err != nil {
		writeStderrln(err.Error(), exitNetworkFailed)
	}
	os.Exit(exitOK)
}

func runInspect(args []string) {
	fs := pflag.NewFlagSet("inspect", pflag.ExitOnError)
	keyPath := fs.String("key", config.DefaultJWTKeyPath, "HS256 secret file")
	allowExpired := fs.Bool("allow-expired", false, "report claims of an expired token instead of failing")
	if err := fs.Parse(args); err != nil {
		writeStderrln(err.Error(), exitInvalidInput)
	}
	if fs.NArg() != 1 {
		writeStderrln("usage: issuerctl inspect [--key path] <token>", exitInvalidInput)
	}

	secret, _, err := token.LoadSigningKey(*keyPath)
	if err != nil {
		writeStderrln(err.Error(), exitKeyFailed)
	}
	minter, err := token.NewMinter(secret)
	if err != nil {
		writeStderrln(err.Error(), exitKeyFailed)
	}
	raw := strings.TrimSpace(fs.Arg(0))
	claims, err := minter.Parse(raw)
	expired := errors.Is(err, jwt.ErrTokenExpired)
	if expired && *allowExpired {
		claims, err = minter.Parse(raw, jwt.WithoutClaimsValidation())
		if err != nil {
			writeStderrln(err.Error(), exitRejected)
		}
	} else if err != nil {
		writeStderrln(err.Error(), exitRejected)
	}
	if err := printJSON(map[string]any{
		"valid":      !expired,
		"expired":    expired,
		"sun":        claims.Sun,
		"issued_at":  claims.IssuedAt.Time.UTC(),
		"expires_at": claims.ExpiresAt.Time.UTC(),
	}); err != nil {
		writeStderrln(err.Error(), exitNetworkFailed)
	}
	os.Exit(exitOK)
}

func readPassword(fromStdin bool, stdin *os.File) (string, error) {
	if fromStdin {
		return readLine(stdin)
	}
	fd := int(stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("stdin is not a terminal; use --password-stdin")
	}
	_, _ = fmt.Fprint(os.Stderr, "Password: ")
	raw, err := term.ReadPassword(fd)
	_, _ = fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	if len(raw) == 0 {
		return "", errors.New("password is required")
	}
	return string(raw), nil
}

func promptNewPassphrase() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("set %s or run from a terminal", config.EnvRSAKeyPassphrase)
	}
	_, _ = fmt.Fprint(os.Stderr, "New passphrase: ")
	first, err := term.ReadPassword(fd)
	_, _ = fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	_, _ = fmt.Fprint(os.Stderr, "Repeat passphrase: ")
	second, err := term.ReadPassword(fd)
	_, _ = fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	if len(first) == 0 {
		return "", errors.New("passphrase is required")
	}
	if string(first) != string(second) {
		return "", errors.New("passphrases do not match")
	}
	return string(first), nil
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("password is required")
	}
	return line, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printUsage() {
	writeStdoutln(exitInvalidInput, "issuerctl <command> [flags]")
	writeStdoutln(exitInvalidInput, "commands:")
	writeStdoutln(exitInvalidInput, "  token     --url <base> -u <user> [--password-stdin] [--ssh-pubkey-file path] [--cert-out path]")
	writeStdoutln(exitInvalidInput, "  seal-key  --in <pem> [--out path]   (passphrase from $"+config.EnvRSAKeyPassphrase+" or prompt)")
	writeStdoutln(exitInvalidInput, "  inspect   [--key path] [--allow-expired] <token>")
}

func writeStdoutln(exitCode int, line string) {
	if _, err := fmt.Fprintln(os.Stdout, line); err != nil {
		os.Exit(exitCode)
	}
}

func writeStderrln(line string, exitCode int) {
	if _, err := fmt.Fprintln(os.Stderr, line); err != nil {
		os.Exit(exitCode)
	}
	os.Exit(exitCode)
}
