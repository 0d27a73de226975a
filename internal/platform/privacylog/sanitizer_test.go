package privacylog

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		t.Fatalf("decode log json: %v (%s)", err, buf.String())
	}
	return payload
}

func TestSanitizingHandlerRedactsCredentialMaterial(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(WrapHandler(slog.NewJSONHandler(&buf, nil)))
	logger.Info("test",
		"password", "hunter2",
		"ciphertext_b64", "QUJD",
		"decrypted_plaintext", `{"password":"x"}`,
		"access_token", "eyJ",
		"stage", "decrypt",
	)

	payload := decodeLine(t, &buf)
	for _, key := range []string{"password", "ciphertext_b64", "decrypted_plaintext", "access_token"} {
		if got, _ := payload[key].(string); got != redactedValue {
			t.Fatalf("expected %s redacted, got %q", key, got)
		}
	}
	if payload["stage"] != "decrypt" {
		t.Fatalf("expected stage untouched, got %v", payload["stage"])
	}
	if strings.Contains(buf.String(), "hunter2") {
		t.Fatal("password leaked into log output")
	}
}

func TestSanitizingHandlerCoversWithAttrsAndGroups(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(WrapHandler(slog.NewJSONHandler(&buf, nil))).
		With("rsa_key_passphrase", "pw")
	logger.Info("nested", slog.Group("req", slog.String("password", "pw2"), slog.String("username", "bob")))

	payload := decodeLine(t, &buf)
	if payload["rsa_key_passphrase"] != redactedValue {
		t.Fatalf("expected passphrase redacted via With, got %v", payload["rsa_key_passphrase"])
	}
	group, _ := payload["req"].(map[string]any)
	if group["password"] != redactedValue || group["username"] != "bob" {
		t.Fatalf("unexpected group contents: %v", group)
	}
}

func TestSanitizingHandlerImplementsSlogHandlerContract(t *testing.T) {
	var buf bytes.Buffer
	h := WrapHandler(slog.NewJSONHandler(&buf, nil))
	if !h.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatal("expected handler enabled for info")
	}
	if WrapHandler(h) != h {
		t.Fatal("wrapping twice should be a no-op")
	}
	rec := slog.NewRecord(time.Now().UTC(), slog.LevelInfo, "msg", 0)
	rec.AddAttrs(slog.String("ssh_pubkey", "ssh-rsa AAAA"))
	if err := h.Handle(context.Background(), rec); err != nil {
		t.Fatalf("handle failed: %v", err)
	}
	if !strings.Contains(buf.String(), "ssh_pubkey_fp") || strings.Contains(buf.String(), "ssh-rsa AAAA") {
		t.Fatalf("expected fingerprinted ssh_pubkey, got %s", buf.String())
	}
}

func TestFingerprintIsStableWithinProcess(t *testing.T) {
	a := Fingerprint("ssh-ed25519 AAAA")
	if a != Fingerprint(" ssh-ed25519 AAAA ") {
		t.Fatal("fingerprint should ignore surrounding whitespace")
	}
	if a == Fingerprint("ssh-ed25519 BBBB") {
		t.Fatal("distinct values must not collide")
	}
	if Fingerprint("  ") != "" {
		t.Fatal("blank values fingerprint to empty")
	}
}

func TestNewLoggerLevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "warn", "text")
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown", "secret", "s3cr3t")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Fatalf("unexpected level filtering: %q", out)
	}
	if strings.Contains(out, "s3cr3t") {
		t.Fatalf("text handler must sanitize too: %q", out)
	}

	if _, err := New(&buf, "loud", "json"); err == nil {
		t.Fatal("expected unknown level error")
	}
	if _, err := New(&buf, "info", "xml"); err == nil {
		t.Fatal("expected unknown format error")
	}
}
