package config

// FileConfig is the on-disk YAML shape. Pointer fields distinguish "absent"
// from an explicit zero. The RSA passphrase has no file key.
type FileConfig struct {
	BindAddr          string            `yaml:"bindAddr"`
	JWTKeyPath        string            `yaml:"jwtKeyPath"`
	RSAPrivateKeyPath string            `yaml:"rsaPrivateKeyPath"`
	TokenTTLMinutes   *int64            `yaml:"tokenTTLMinutes"`
	PAMService        string            `yaml:"pamService"`
	MaxPayloadAgeSecs *int64            `yaml:"maxPayloadAgeSecs"`
	SSH               FileSSHConfig     `yaml:"ssh"`
	Log               FileLogConfig     `yaml:"log"`
	Metrics           FileMetricsConfig `yaml:"metrics"`
}

type FileSSHConfig struct {
	CAKeyPath  string   `yaml:"caKeyPath"`
	Extensions []string `yaml:"extensions"`
	SerialBase *uint64  `yaml:"serialBase"`
	ScratchDir string   `yaml:"scratchDir"`
	Signer     string   `yaml:"signer"`
	KeygenPath string   `yaml:"keygenPath"`
}

type FileLogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type FileMetricsConfig struct {
	Enabled *bool `yaml:"enabled"`
}

func Merge(dst *Config, src FileConfig) {
	if src.BindAddr != "" {
		dst.BindAddr = src.BindAddr
	}
	if src.JWTKeyPath != "" {
		dst.JWTKeyPath = src.JWTKeyPath
	}
	if src.RSAPrivateKeyPath != "" {
		dst.RSAPrivateKeyPath = src.RSAPrivateKeyPath
	}
	if src.TokenTTLMinutes != nil {
		dst.TokenTTLMinutes = *src.TokenTTLMinutes
	}
	if src.PAMService != "" {
		dst.PAMService = src.PAMService
	}
	if src.MaxPayloadAgeSecs != nil {
		dst.MaxPayloadAgeSecs = *src.MaxPayloadAgeSecs
	}
	if src.SSH.CAKeyPath != "" {
		dst.SSH.CAKeyPath = src.SSH.CAKeyPath
	}
	if src.SSH.Extensions != nil {
		dst.SSH.Extensions = append([]string(nil), src.SSH.Extensions...)
	}
	if src.SSH.SerialBase != nil {
		dst.SSH.SerialBase = *src.SSH.SerialBase
	}
	if src.SSH.ScratchDir != "" {
		dst.SSH.ScratchDir = src.SSH.ScratchDir
	}
	if src.SSH.Signer != "" {
		dst.SSH.Signer = src.SSH.Signer
	}
	if src.SSH.KeygenPath != "" {
		dst.SSH.KeygenPath = src.SSH.KeygenPath
	}
	if src.Log.Level != "" {
		dst.Log.Level = src.Log.Level
	}
	if src.Log.Format != "" {
		dst.Log.Format = src.Log.Format
	}
	if src.Metrics.Enabled != nil {
		dst.MetricsEnabled = *src.Metrics.Enabled
	}
}
