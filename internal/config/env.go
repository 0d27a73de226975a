package config

import (
	"os"
	"strconv"
	"strings"
)

// ApplyEnvOverrides copies set environment variables into cfg. Numeric and
// boolean values that fail to parse leave the current value in place; their
// variable names are returned so the caller can warn.
func ApplyEnvOverrides(cfg *Config) []string {
	var ignored []string

	setString(&cfg.JWTKeyPath, EnvJWTKeyPath)
	setString(&cfg.RSAPrivateKeyPath, EnvRSAPrivateKeyPath)
	setString(&cfg.PAMService, EnvPAMService)
	setString(&cfg.BindAddr, EnvBindAddr)
	setString(&cfg.SSH.CAKeyPath, EnvSSHCAKeyPath)
	setString(&cfg.SSH.ScratchDir, EnvSSHCertTmpDir)
	setString(&cfg.SSH.Signer, EnvSSHCertSigner)
	setString(&cfg.SSH.KeygenPath, EnvSSHKeygenPath)
	setString(&cfg.Log.Level, EnvLogLevel)
	setString(&cfg.Log.Format, EnvLogFormat)

	// Passphrases may legitimately carry surrounding spaces.
	if v, ok := os.LookupEnv(EnvRSAKeyPassphrase); ok && v != "" {
		cfg.RSAKeyPassphrase = v
	}
	if v, ok := os.LookupEnv(EnvSSHCertExtensions); ok {
		cfg.SSH.Extensions = splitList(v)
	}

	if raw := lookup(EnvJWTExpireMinutes); raw != "" {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
			cfg.TokenTTLMinutes = v
		} else {
			ignored = append(ignored, EnvJWTExpireMinutes)
		}
	}
	if raw := lookup(EnvMaxPayloadAgeSecs); raw != "" {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
			cfg.MaxPayloadAgeSecs = v
		} else {
			ignored = append(ignored, EnvMaxPayloadAgeSecs)
		}
	}
	if raw := lookup(EnvSSHCertSerialBase); raw != "" {
		if v, err := strconv.ParseUint(raw, 10, 64); err == nil {
			cfg.SSH.SerialBase = v
		} else {
			ignored = append(ignored, EnvSSHCertSerialBase)
		}
	}
	if raw := lookup(EnvMetricsEnabled); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			cfg.MetricsEnabled = v
		} else {
			ignored = append(ignored, EnvMetricsEnabled)
		}
	}
	return ignored
}

func lookup(name string) string {
	return strings.TrimSpace(os.Getenv(name))
}

func setString(dst *string, name string) {
	if v := lookup(name); v != "" {
		*dst = v
	}
}

func splitList(raw string) []string {
	out := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
