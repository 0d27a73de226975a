// Package config builds the issuer's immutable runtime configuration.
//
// Precedence, lowest first: built-in defaults, an optional YAML file, process
// environment (including a .env file loaded by the daemon), command-line flags.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EnvConfigPath         = "ISSUER_CONFIG"
	EnvJWTKeyPath         = "JWT_KEY_PATH"
	EnvRSAPrivateKeyPath  = "RSA_PRIVATE_KEY_PATH"
	EnvRSAKeyPassphrase   = "RSA_KEY_PASSPHRASE"
	EnvJWTExpireMinutes   = "JWT_EXPIRE_MINUTES"
	EnvPAMService         = "PAM_SERVICE"
	EnvMaxPayloadAgeSecs  = "MAX_PAYLOAD_AGE_SECS"
	EnvBindAddr           = "BIND_ADDR"
	EnvSSHCAKeyPath       = "SSH_CA_KEY_PATH"
	EnvSSHCertExtensions  = "SSH_CERT_EXTENSIONS"
	EnvSSHCertSerialBase  = "SSH_CERT_SERIAL_BASE"
	EnvSSHCertTmpDir      = "SSH_CERT_TMP_DIR"
	EnvSSHCertSigner      = "SSH_CERT_SIGNER"
	EnvSSHKeygenPath      = "SSH_KEYGEN_PATH"
	EnvLogLevel           = "ISSUER_LOG_LEVEL"
	EnvLogFormat          = "ISSUER_LOG_FORMAT"
	EnvMetricsEnabled     = "ISSUER_METRICS_ENABLED"
	DefaultJWTKeyPath     = "jwt_hs256.key"
	DefaultRSAKeyPath     = "rsa_private.pem"
	DefaultTokenTTLMins   = 60
	DefaultPAMService     = "flaskapi"
	DefaultMaxPayloadAge  = 60
	DefaultBindAddr       = "0.0.0.0:8080"
	DefaultSSHCAKeyPath   = "/etc/ssh/ssh_user_ca"
	DefaultSSHKeygenPath  = "ssh-keygen"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "json"
	SignerKeygen          = "keygen"
	SignerNative          = "native"
	DefaultSSHCertSigner  = SignerKeygen
	defaultConfigFileName = "issuer.yaml"
)

var ErrInvalid = errors.New("config: invalid")

// Config is built once at startup and never mutated afterwards.
// RSAKeyPassphrase opens a sealed RSA key and is read from the environment
// only.
type Config struct {
	BindAddr          string
	JWTKeyPath        string
	RSAPrivateKeyPath string
	RSAKeyPassphrase  string
	TokenTTLMinutes   int64
	PAMService        string
	MaxPayloadAgeSecs int64
	SSH               SSHConfig
	Log               LogConfig
	MetricsEnabled    bool
}

// SSHConfig drives certificate issuance. An empty ScratchDir means
// os.TempDir().
type SSHConfig struct {
	CAKeyPath  string
	Extensions []string
	SerialBase uint64
	ScratchDir string
	Signer     string
	KeygenPath string
}

type LogConfig struct {
	Level  string
	Format string
}

func Default() Config {
	return Config{
		BindAddr:          DefaultBindAddr,
		JWTKeyPath:        DefaultJWTKeyPath,
		RSAPrivateKeyPath: DefaultRSAKeyPath,
		TokenTTLMinutes:   DefaultTokenTTLMins,
		PAMService:        DefaultPAMService,
		MaxPayloadAgeSecs: DefaultMaxPayloadAge,
		SSH: SSHConfig{
			CAKeyPath:  DefaultSSHCAKeyPath,
			Signer:     DefaultSSHCertSigner,
			KeygenPath: DefaultSSHKeygenPath,
		},
		Log:            LogConfig{Level: DefaultLogLevel, Format: DefaultLogFormat},
		MetricsEnabled: true,
	}
}

func (c Config) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLMinutes) * time.Minute
}

func (c Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.BindAddr) == "" {
		problems = append(problems, "bind address is empty")
	}
	if strings.TrimSpace(c.JWTKeyPath) == "" {
		problems = append(problems, "jwt key path is empty")
	}
	if strings.TrimSpace(c.RSAPrivateKeyPath) == "" {
		problems = append(problems, "rsa private key path is empty")
	}
	if c.TokenTTLMinutes <= 0 {
		problems = append(problems, fmt.Sprintf("token ttl must be positive, got %d", c.TokenTTLMinutes))
	}
	if c.MaxPayloadAgeSecs <= 0 {
		problems = append(problems, fmt.Sprintf("payload age window must be positive, got %d", c.MaxPayloadAgeSecs))
	}
	if strings.TrimSpace(c.PAMService) == "" {
		problems = append(problems, "pam service is empty")
	}
	switch c.SSH.Signer {
	case SignerKeygen:
		if strings.TrimSpace(c.SSH.KeygenPath) == "" {
			problems = append(problems, "ssh-keygen path is empty")
		}
	case SignerNative:
	default:
		problems = append(problems, fmt.Sprintf("unknown ssh signer %q", c.SSH.Signer))
	}
	if strings.TrimSpace(c.SSH.CAKeyPath) == "" {
		problems = append(problems, "ssh ca key path is empty")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// Load resolves the config file (explicit path, then $ISSUER_CONFIG, then
// well-known locations), merges it over defaults and applies the
// environment. ignored lists environment variables whose values could not be
// parsed and were skipped.
func Load(explicitPath string) (cfg Config, ignored []string, err error) {
	cfg = Default()
	path := strings.TrimSpace(explicitPath)
	if path == "" {
		path = strings.TrimSpace(os.Getenv(EnvConfigPath))
	}
	if err := LoadFromPath(&cfg, path); err != nil {
		return Config{}, nil, err
	}
	ignored = ApplyEnvOverrides(&cfg)
	return cfg, ignored, nil
}

// LoadFromPath merges the YAML file at path into cfg. An empty path probes
// the default locations and is not an error when none exist.
func LoadFromPath(cfg *Config, path string) error {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("config: read %s: %w", path, err)
		}
		return mergeYAML(cfg, path, data)
	}
	for _, candidate := range []string{
		"configs/" + defaultConfigFileName,
		"/etc/pam-jwt-issuer/" + defaultConfigFileName,
	} {
		data, err := os.ReadFile(candidate)
		if err != nil {
			continue
		}
		return mergeYAML(cfg, candidate, data)
	}
	return nil
}

func mergeYAML(cfg *Config, path string, data []byte) error {
	var parsed FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&parsed); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	Merge(cfg, parsed)
	return nil
}
