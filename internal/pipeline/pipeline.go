// Package pipeline runs one credential exchange end to end:
// decrypt, decode, replay check, delegated authentication, token minting and
// an optional SSH certificate.
//
// Stages run strictly in that order and the first failure stops the request,
// except certificate issuance: a certificate failure is logged and the token
// is still returned. Every error leaving Issue is an *apierr.Error.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"pam-jwt-issuer/go-backend/internal/apierr"
	"pam-jwt-issuer/go-backend/internal/authdelegate"
	"pam-jwt-issuer/go-backend/internal/metrics"
	"pam-jwt-issuer/go-backend/internal/platform/privacylog"
	"pam-jwt-issuer/go-backend/internal/replay"
	"pam-jwt-issuer/go-backend/internal/sshcert"
	"pam-jwt-issuer/go-backend/internal/token"
	"pam-jwt-issuer/go-backend/pkg/models"
)

const (
	StageDecrypt      = "decrypt"
	StageDecode       = "decode"
	StageReplay       = "replay"
	StageAuthenticate = "authenticate"
	StageMint         = "mint"
	StageCertificate  = "certificate"
)

// Decrypter recovers the plaintext payload. Implementations must return one
// indistinguishable error for every failure.
type Decrypter interface {
	Decrypt(ciphertextB64 string) ([]byte, error)
}

type Minter interface {
	Mint(principal string, issuedAt time.Time, ttl time.Duration) (token.Token, error)
}

// Options wires a Pipeline. Issuer may be nil, in which case requests
// carrying a key get a token only.
type Options struct {
	Decrypter    Decrypter
	Verifier     authdelegate.Verifier
	Minter       Minter
	Issuer       sshcert.Issuer
	TokenTTL     time.Duration
	ReplayWindow time.Duration
	Extensions   []string
	SerialBase   uint64
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
	Now          func() time.Time
}

// Pipeline is immutable after New and safe for concurrent use.
type Pipeline struct {
	decrypter  Decrypter
	verifier   authdelegate.Verifier
	minter     Minter
	issuer     sshcert.Issuer
	guard      replay.Guard
	ttl        time.Duration
	extensions []string
	serialBase uint64
	log        *slog.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
}

func New(opts Options) (*Pipeline, error) {
	switch {
	case opts.Decrypter == nil:
		return nil, errors.New("pipeline: decrypter is required")
	case opts.Verifier == nil:
		return nil, errors.New("pipeline: verifier is required")
	case opts.Minter == nil:
		return nil, errors.New("pipeline: minter is required")
	case opts.TokenTTL <= 0:
		return nil, fmt.Errorf("pipeline: token ttl must be positive, got %s", opts.TokenTTL)
	case opts.ReplayWindow <= 0:
		return nil, fmt.Errorf("pipeline: replay window must be positive, got %s", opts.ReplayWindow)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Pipeline{
		decrypter:  opts.Decrypter,
		verifier:   opts.Verifier,
		minter:     opts.Minter,
		issuer:     opts.Issuer,
		guard:      replay.Guard{Window: int64(opts.ReplayWindow / time.Second)},
		ttl:        opts.TokenTTL,
		extensions: append([]string(nil), opts.Extensions...),
		serialBase: opts.SerialBase,
		log:        privacylog.Ensure(opts.Logger),
		metrics:    opts.Metrics,
		now:        now,
	}, nil
}

// payload mirrors models.AuthPayload with pointers so absent fields are
// told apart from zero values.
type payload struct {
	Username  *string
	Password  *string
	TS        *int64
	SSHPubKey *string
}

func (p *Pipeline) Issue(ctx context.Context, req models.TokenRequest) (resp models.TokenResponse, err error) {
	now := p.now()
	reqID := RequestID(ctx)
	if reqID == "" {
		reqID = NewRequestID()
		ctx = WithRequestID(ctx, reqID)
	}
	log := p.log.With("request_id", reqID)
	defer func() {
		p.metrics.ObserveRequest(outcome(err))
		if err != nil {
			e := apierr.From(err)
			log.WarnContext(ctx, "token request rejected", "kind", string(e.Kind), "reason", e.Msg, "cause", errString(e.Cause))
			err = e
		}
	}()

	start := time.Now()
	plaintext, err := p.decrypter.Decrypt(req.CiphertextB64)
	p.metrics.ObserveStage(StageDecrypt, time.Since(start))
	if err != nil {
		return models.TokenResponse{}, apierr.Bad(apierr.MsgInvalidCiphertext, err)
	}

	in, err := decodePayload(plaintext)
	clear(plaintext)
	if err != nil {
		return models.TokenResponse{}, err
	}
	username := strings.TrimSpace(*in.Username)

	if err := p.guard.Validate(*in.TS, now.Unix()); err != nil {
		return models.TokenResponse{}, apierr.Bad(apierr.MsgStaleTimestamp, fmt.Errorf("ts=%d now=%d: %w", *in.TS, now.Unix(), err))
	}

	start = time.Now()
	err = p.verifier.Verify(ctx, username, *in.Password)
	p.metrics.ObserveStage(StageAuthenticate, time.Since(start))
	if err != nil {
		log.InfoContext(ctx, "authentication rejected",
			"username", username,
			"session_init_failure", authdelegate.IsSessionInit(err),
		)
		return models.TokenResponse{}, apierr.AuthFailed(err)
	}

	start = time.Now()
	tok, err := p.minter.Mint(username, now, p.ttl)
	p.metrics.ObserveStage(StageMint, time.Since(start))
	if err != nil {
		return models.TokenResponse{}, apierr.Internal(StageMint, err)
	}
	resp = models.TokenResponse{
		AccessToken: tok.Value,
		TokenType:   models.TokenTypeBearer,
		ExpiresIn:   int64(p.ttl / time.Second),
	}

	if in.SSHPubKey == nil {
		log.InfoContext(ctx, "token issued", "username", username, "expires_at", tok.ExpiresAt.Unix())
		return resp, nil
	}
	pub := *in.SSHPubKey
	if !sshcert.RecognizedKey(pub) {
		return models.TokenResponse{}, apierr.Bad(apierr.MsgInvalidSSHPubKey, sshcert.ErrUnrecognizedKey)
	}
	if cert, ok := p.certificate(ctx, log, username, pub, tok); ok {
		resp.SSHUserCert = &cert.Text
		exp := tok.ExpiresAt.Unix()
		resp.SSHUserCertExp = &exp
	}
	log.InfoContext(ctx, "token issued",
		"username", username,
		"expires_at", tok.ExpiresAt.Unix(),
		"ssh_certificate", resp.SSHUserCert != nil,
	)
	return resp, nil
}

// certificate never fails the request; ok=false means the fields are omitted.
func (p *Pipeline) certificate(ctx context.Context, log *slog.Logger, principal, pub string, tok token.Token) (sshcert.Certificate, bool) {
	if p.issuer == nil {
		p.metrics.ObserveCertificate(metrics.CertSkipped)
		log.WarnContext(ctx, "ssh certificate requested but no signer is configured")
		return sshcert.Certificate{}, false
	}
	log = log.With("ssh_pubkey", pub, "key_fingerprint", sshcert.Fingerprint(pub))

	serial, err := sshcert.NewSerial(p.serialBase)
	if err != nil {
		p.metrics.ObserveCertificate(metrics.CertFailed)
		log.ErrorContext(ctx, "ssh certificate serial", "error", err)
		return sshcert.Certificate{}, false
	}
	start := time.Now()
	cert, err := p.issuer.Issue(ctx, sshcert.Request{
		Principal:   principal,
		ValidAfter:  tok.IssuedAt,
		ValidBefore: tok.ExpiresAt,
		PublicKey:   pub,
		Extensions:  p.extensions,
		Serial:      serial,
	})
	p.metrics.ObserveStage(StageCertificate, time.Since(start))
	if err != nil {
		p.metrics.ObserveCertificate(metrics.CertFailed)
		log.ErrorContext(ctx, "ssh certificate not issued", "serial", serial, "error", err)
		return sshcert.Certificate{}, false
	}
	p.metrics.ObserveCertificate(metrics.CertIssued)
	log.InfoContext(ctx, "ssh certificate issued", "serial", serial, "valid_before", cert.ValidBefore.Unix())
	return cert, true
}

// decodePayload matches field names case-sensitively. Unknown fields are
// ignored.
func decodePayload(plaintext []byte) (payload, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(plaintext, &fields); err != nil {
		// The decoder error can quote plaintext; keep only its type.
		return payload{}, apierr.Bad(apierr.MsgInvalidJSON, fmt.Errorf("decode payload: %T", err))
	}
	var in payload
	for name, dst := range map[string]any{
		"username":   &in.Username,
		"password":   &in.Password,
		"ts":         &in.TS,
		"ssh_pubkey": &in.SSHPubKey,
	} {
		raw, ok := fields[name]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			return payload{}, apierr.Bad(apierr.MsgInvalidJSON, fmt.Errorf("decode payload field %s: %T", name, err))
		}
	}
	if in.Username == nil || in.Password == nil || in.TS == nil {
		return payload{}, apierr.Bad(apierr.MsgInvalidJSON, errors.New("decode payload: missing field"))
	}
	if strings.TrimSpace(*in.Username) == "" || *in.Password == "" {
		return payload{}, apierr.Bad(apierr.MsgMissingCreds, nil)
	}
	return in, nil
}

func outcome(err error) string {
	if err == nil {
		return metrics.OutcomeIssued
	}
	switch apierr.From(err).Kind {
	case apierr.KindBadRequest:
		return metrics.OutcomeBadRequest
	case apierr.KindAuthFailed:
		return metrics.OutcomeAuthFailed
	default:
		return metrics.OutcomeInternal
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
