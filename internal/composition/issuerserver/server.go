// Package issuerserver turns a validated config into a ready-to-run HTTP
// server. Everything it builds is immutable once Build returns.
package issuerserver

import (
	"fmt"
	"log/slog"
	"time"

	"pam-jwt-issuer/go-backend/internal/adapters/httpapi"
	"pam-jwt-issuer/go-backend/internal/authdelegate"
	"pam-jwt-issuer/go-backend/internal/config"
	"pam-jwt-issuer/go-backend/internal/metrics"
	"pam-jwt-issuer/go-backend/internal/pipeline"
	"pam-jwt-issuer/go-backend/internal/platform/privacylog"
	"pam-jwt-issuer/go-backend/internal/sshcert"
	"pam-jwt-issuer/go-backend/internal/token"
	"pam-jwt-issuer/go-backend/internal/transportcrypto"
)

// Overrides replaces collaborators that would otherwise be built from cfg.
// Zero values mean "build from config".
type Overrides struct {
	Verifier authdelegate.Verifier
	Now      func() time.Time
}

func Build(cfg config.Config, logger *slog.Logger) (*httpapi.Server, error) {
	return BuildWith(cfg, logger, Overrides{})
}

func BuildWith(cfg config.Config, logger *slog.Logger, ov Overrides) (*httpapi.Server, error) {
	logger = privacylog.Ensure(logger)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	secret, short, err := token.LoadSigningKey(cfg.JWTKeyPath)
	if err != nil {
		return nil, err
	}
	if short {
		logger.Warn("jwt signing secret is shorter than recommended",
			"path", cfg.JWTKeyPath,
			"bytes", len(secret),
			"recommended_bytes", token.MinSecretBytes,
		)
	}
	minter, err := token.NewMinter(secret)
	clear(secret)
	if err != nil {
		return nil, err
	}

	keys, err := transportcrypto.LoadKeyPair(cfg.RSAPrivateKeyPath, cfg.RSAKeyPassphrase)
	if err != nil {
		return nil, fmt.Errorf("load transport key: %w", err)
	}

	verifier := ov.Verifier
	if verifier == nil {
		verifier = authdelegate.NewPAM(cfg.PAMService)
	}

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New()
	}

	p, err := pipeline.New(pipeline.Options{
		Decrypter:    keys,
		Verifier:     verifier,
		Minter:       minter,
		Issuer:       buildIssuer(cfg.SSH, logger),
		TokenTTL:     cfg.TokenTTL(),
		ReplayWindow: time.Duration(cfg.MaxPayloadAgeSecs) * time.Second,
		Extensions:   cfg.SSH.Extensions,
		SerialBase:   cfg.SSH.SerialBase,
		Logger:       logger,
		Metrics:      m,
		Now:          ov.Now,
	})
	if err != nil {
		return nil, err
	}

	opts := httpapi.Options{
		Addr:      cfg.BindAddr,
		Issuer:    p,
		PublicKey: keys,
		Logger:    logger,
	}
	if m != nil {
		opts.Metrics = m.Handler()
	}
	logger.Info("issuer configured",
		"pam_service", cfg.PAMService,
		"ttl_minutes", cfg.TokenTTLMinutes,
		"replay_window_secs", cfg.MaxPayloadAgeSecs,
		"ssh_signer", cfg.SSH.Signer,
		"metrics", cfg.MetricsEnabled,
	)
	return httpapi.NewServer(opts)
}

// buildIssuer never fails startup: a CA the native signer cannot load only
// disables certificates, mirroring how keygen failures surface per request.
func buildIssuer(cfg config.SSHConfig, logger *slog.Logger) sshcert.Issuer {
	switch cfg.Signer {
	case config.SignerNative:
		issuer, err := sshcert.LoadNativeIssuer(cfg.CAKeyPath)
		if err != nil {
			logger.Warn("ssh certificates disabled", "error", err)
			return nil
		}
		return issuer
	default:
		return &sshcert.KeygenIssuer{
			Program:    cfg.KeygenPath,
			CAKeyPath:  cfg.CAKeyPath,
			ScratchDir: cfg.ScratchDir,
			Log:        logger,
		}
	}
}
