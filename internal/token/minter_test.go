package token

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func mustMinter(t *testing.T) *Minter {
	t.Helper()
	m, err := NewMinter(testSecret)
	if err != nil {
		t.Fatalf("new minter: %v", err)
	}
	return m
}

func TestMintProducesFixedClaimShape(t *testing.T) {
	now := time.Date(2026, 2, 19, 12, 0, 0, 0, time.UTC)
	tok, err := mustMinter(t).Mint("alice", now, 60*time.Minute)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	parts := strings.Split(tok.Value, ".")
	if len(parts) != 3 {
		t.Fatalf("expected 3 token parts, got %d", len(parts))
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		t.Fatalf("payload is not base64url: %v", err)
	}
	var claims map[string]any
	if err := json.Unmarshal(payload, &claims); err != nil {
		t.Fatalf("decode claims: %v", err)
	}
	if len(claims) != 3 {
		t.Fatalf("expected exactly sun/iat/exp, got %v", claims)
	}
	if claims["sun"] != "alice" {
		t.Fatalf("unexpected sun: %v", claims["sun"])
	}
	if int64(claims["iat"].(float64)) != now.Unix() {
		t.Fatalf("unexpected iat: %v", claims["iat"])
	}
	if int64(claims["exp"].(float64)) != now.Add(time.Hour).Unix() {
		t.Fatalf("unexpected exp: %v", claims["exp"])
	}

	header, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		t.Fatalf("header is not base64url: %v", err)
	}
	var h map[string]any
	if err := json.Unmarshal(header, &h); err != nil {
		t.Fatalf("decode header: %v", err)
	}
	if h["alg"] != "HS256" || h["typ"] != "JWT" {
		t.Fatalf("unexpected header: %v", h)
	}
}

func TestParseRoundTripAndRejectsForeignSecret(t *testing.T) {
	now := time.Now()
	m := mustMinter(t)
	tok, err := m.Mint("bob", now, 5*time.Minute)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	claims, err := m.Parse(tok.Value)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Sun != "bob" || claims.ExpiresAt.Unix() != tok.ExpiresAt.Unix() {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	other, err := NewMinter([]byte("another-secret-another-secret-xx"))
	if err != nil {
		t.Fatalf("new minter: %v", err)
	}
	if _, err := other.Parse(tok.Value); !errors.Is(err, jwt.ErrTokenSignatureInvalid) {
		t.Fatalf("expected signature failure, got %v", err)
	}
}

func TestParseRejectsExpired(t *testing.T) {
	m := mustMinter(t)
	tok, err := m.Mint("carol", time.Now().Add(-2*time.Hour), time.Hour)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := m.Parse(tok.Value); !errors.Is(err, jwt.ErrTokenExpired) {
		t.Fatalf("expected expired token, got %v", err)
	}
}

func TestMintRejectsEmptyPrincipal(t *testing.T) {
	if _, err := mustMinter(t).Mint("", time.Now(), time.Minute); !errors.Is(err, ErrEmptyPrincipal) {
		t.Fatalf("expected ErrEmptyPrincipal, got %v", err)
	}
}

func TestLoadSigningKeyFlagsShortSecret(t *testing.T) {
	dir := t.TempDir()
	short := filepath.Join(dir, "short.key")
	if err := os.WriteFile(short, []byte("tiny"), 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}
	secret, isShort, err := LoadSigningKey(short)
	if err != nil {
		t.Fatalf("load short key: %v", err)
	}
	if !isShort || string(secret) != "tiny" {
		t.Fatalf("expected short secret to load with warning flag, got short=%v", isShort)
	}

	long := filepath.Join(dir, "long.key")
	if err := os.WriteFile(long, testSecret, 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}
	if _, isShort, err := LoadSigningKey(long); err != nil || isShort {
		t.Fatalf("expected long key without warning, short=%v err=%v", isShort, err)
	}

	empty := filepath.Join(dir, "empty.key")
	if err := os.WriteFile(empty, nil, 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}
	if _, _, err := LoadSigningKey(empty); !errors.Is(err, ErrEmptySecret) {
		t.Fatalf("expected ErrEmptySecret, got %v", err)
	}
}
