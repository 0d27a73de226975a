package token

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinSecretBytes is the recommended minimum HS256 secret length. Shorter
// secrets are accepted with a warning.
const MinSecretBytes = 32

var (
	ErrEmptySecret    = errors.New("token: signing secret is empty")
	ErrEmptyPrincipal = errors.New("token: principal is empty")
	ErrHeaderMismatch = errors.New("token: signed header does not declare HS256")
)

// Claims is the fixed claim set. "sun" is the subject field consumers match
// on literally; its name is not configurable.
type Claims struct {
	Sun string `json:"sun"`
	jwt.RegisteredClaims
}

type Token struct {
	Value     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Minter signs access tokens with a symmetric secret that is unrelated to
// the transport keypair.
type Minter struct {
	secret []byte
}

func NewMinter(secret []byte) (*Minter, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	buf := make([]byte, len(secret))
	copy(buf, secret)
	return &Minter{secret: buf}, nil
}

// LoadSigningKey reads the secret file. short reports a secret below
// MinSecretBytes; callers warn but keep going.
func LoadSigningKey(path string) (secret []byte, short bool, err error) {
	secret, err = os.ReadFile(path)
	if err != nil {
		return nil, false, fmt.Errorf("read signing key %s: %w", path, err)
	}
	if len(secret) == 0 {
		return nil, false, ErrEmptySecret
	}
	return secret, len(secret) < MinSecretBytes, nil
}

func (m *Minter) Mint(principal string, issuedAt time.Time, ttl time.Duration) (Token, error) {
	if principal == "" {
		return Token{}, ErrEmptyPrincipal
	}
	iat := issuedAt.Truncate(time.Second)
	exp := iat.Add(ttl)
	claims := Claims{
		Sun: principal,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(iat),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return Token{}, fmt.Errorf("sign: %w", err)
	}
	if err := checkHeader(signed); err != nil {
		return Token{}, err
	}
	return Token{Value: signed, IssuedAt: iat, ExpiresAt: exp}, nil
}

// Parse verifies signature and expiry of a token minted by m.
func (m *Minter) Parse(raw string, opts ...jwt.ParserOption) (*Claims, error) {
	opts = append([]jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuedAt(),
	}, opts...)
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	return &claims, nil
}

func checkHeader(signed string) error {
	tok, _, err := jwt.NewParser().ParseUnverified(signed, &Claims{})
	if err != nil {
		return fmt.Errorf("decode header: %w", err)
	}
	if tok.Method.Alg() != jwt.SigningMethodHS256.Alg() {
		return ErrHeaderMismatch
	}
	return nil
}
