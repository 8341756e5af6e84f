package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"

	"github.com/BurntSushi/toml"
)

// Environment variable overrides, resolved once at start-up
const (
	EnvWhisperModel         = "WHISPER_MODEL"          // Overrides [whisper].model (itself overridden by the positional CLI argument)
	EnvModelDownloadTimeout = "MODEL_DOWNLOAD_TIMEOUT" // Overrides [whisper].download_timeout_seconds
	EnvMaxRetryAttempts     = "MAX_RETRY_ATTEMPTS"     // Overrides [whisper].max_retry_attempts
)

// DefaultModel is substituted when an unrecognized model name is configured
const DefaultModel = "small"

// ValidModels is the fixed set of supported whisper model identifiers
var ValidModels = []string{"tiny", "base", "small", "medium", "large", "large-v2", "large-v3"}

// Config represents the main application configuration structure
// containing all configuration sections
type Config struct {
	Server  ServerConfig  `toml:"server"`  // HTTP server settings
	Whisper WhisperConfig `toml:"whisper"` // Transcription model settings
	Storage StorageConfig `toml:"storage"` // Filesystem locations for model weights and scratch files
	Logging LoggingConfig `toml:"logging"` // Application logging settings
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Host                   string `toml:"host"`                      // Host address to bind to (0.0.0.0 for all interfaces)
	Port                   int    `toml:"port"`                      // HTTP port for the server
	CORSAllowedOriginRegex string `toml:"cors_allowed_origin_regex"` // Regex matched against the Origin header for CORS requests
	ReadTimeoutSecs        int    `toml:"read_timeout_seconds"`      // Maximum duration for reading the entire request (0 = no timeout)
	WriteTimeoutSecs       int    `toml:"write_timeout_seconds"`     // Maximum duration for writing the response (0 = no timeout)
	IdleTimeoutSecs        int    `toml:"idle_timeout_seconds"`      // Maximum duration to wait for the next request when keep-alives are enabled
	HTTPS                  bool   `toml:"https"`                     // Serve TLS instead of plain HTTP (also enabled by the --https flag)
	TLSCertFile            string `toml:"tls_cert_file"`             // Preferred TLS certificate (e.g. a browser-trusted mkcert certificate)
	TLSKeyFile             string `toml:"tls_key_file"`              // Preferred TLS private key
}

// Fallback TLS material, tried when the configured pair is absent
const (
	FallbackTLSCertFile = "certs/cert.pem"
	FallbackTLSKeyFile  = "certs/key.pem"
)

// WhisperConfig contains settings for the transcription model
type WhisperConfig struct {
	Model               string  `toml:"model"`                    // Model identifier: tiny, base, small, medium, large, large-v2, large-v3
	Language            string  `toml:"language"`                 // Pinned source language code for decoding (e.g. "ja")
	BeamSize            int     `toml:"beam_size"`                // Beam search width for decoding
	VADEnabled          bool    `toml:"vad_enabled"`              // Skip non-speech spans before inference
	VADThreshold        float64 `toml:"vad_threshold"`            // RMS energy threshold below which a window counts as silence
	Workers             int     `toml:"workers"`                  // Bounded worker pool size for concurrent transcriptions
	MaxRetryAttempts    int     `toml:"max_retry_attempts"`       // Retry ceiling for model loading
	RetryDelayBaseSecs  int     `toml:"retry_delay_base_seconds"` // Base delay for exponential backoff between load attempts
	DownloadTimeoutSecs int     `toml:"download_timeout_seconds"` // Per-attempt timeout for downloading model weights
}

// StorageConfig contains filesystem locations used by the server
type StorageConfig struct {
	ModelsDir  string `toml:"models_dir"`  // Directory holding downloaded ggml model weights
	ScratchDir string `toml:"scratch_dir"` // Directory for per-request scratch audio files (empty = system temp dir)
}

// LoggingConfig contains application logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`  // Log level: "debug", "info", "warn", or "error"
	Format string `toml:"format"` // Log format: "json" (structured) or "console" (human-readable)
}

// Default returns the built-in configuration, matching a config file
// with every key left at its documented default
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:                   "0.0.0.0",
			Port:                   9000,
			CORSAllowedOriginRegex: `^https?://(localhost|127\.0\.0\.1|macbook-m1)(:\d+)?$`,
			ReadTimeoutSecs:        0,
			WriteTimeoutSecs:       0,
			IdleTimeoutSecs:        60,
			TLSCertFile:            "localhost.pem",
			TLSKeyFile:             "localhost-key.pem",
		},
		Whisper: WhisperConfig{
			Model:               DefaultModel,
			Language:            "ja",
			BeamSize:            5,
			VADEnabled:          true,
			VADThreshold:        0.01,
			Workers:             4,
			MaxRetryAttempts:    3,
			RetryDelayBaseSecs:  5,
			DownloadTimeoutSecs: 1800,
		},
		Storage: StorageConfig{
			ModelsDir:  "models",
			ScratchDir: "",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from the specified TOML file on top of defaults
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config file %s: %w", path, err)
	}
	return cfg, nil
}

// LoadWithFallback loads configuration from the preferred path if given,
// otherwise searches the conventional locations. A missing config file is
// not an error: the built-in defaults are used.
func LoadWithFallback(preferredPath string) (*Config, error) {
	if preferredPath != "" {
		return Load(preferredPath)
	}

	for _, path := range []string{"configs/config.toml", "config.toml"} {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	return Default(), nil
}

// ApplyEnvOverrides applies environment variable overrides to the
// configuration. Unparseable numeric values are reported rather than
// silently ignored.
func (c *Config) ApplyEnvOverrides() error {
	if v := os.Getenv(EnvWhisperModel); v != "" {
		c.Whisper.Model = v
	}
	if v := os.Getenv(EnvModelDownloadTimeout); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s value %q: %w", EnvModelDownloadTimeout, v, err)
		}
		c.Whisper.DownloadTimeoutSecs = secs
	}
	if v := os.Getenv(EnvMaxRetryAttempts); v != "" {
		attempts, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s value %q: %w", EnvMaxRetryAttempts, v, err)
		}
		c.Whisper.MaxRetryAttempts = attempts
	}
	return nil
}

// NormalizeModel validates the configured model name against the supported
// set. An unrecognized name is a deployment-time misconfiguration, not a
// request-time error: the default model is substituted and the caller is
// expected to log a warning. Returns the effective model name and whether
// a fallback occurred.
func (c *Config) NormalizeModel() (string, bool) {
	for _, valid := range ValidModels {
		if c.Whisper.Model == valid {
			return c.Whisper.Model, false
		}
	}
	c.Whisper.Model = DefaultModel
	return DefaultModel, true
}

// ResolveTLSMaterial returns the TLS certificate and key paths to use,
// preferring the configured pair and falling back to the local self-signed
// pair. Both pairs missing is a fatal configuration error.
func (c *Config) ResolveTLSMaterial() (certFile, keyFile string, err error) {
	if fileExists(c.Server.TLSCertFile) && fileExists(c.Server.TLSKeyFile) {
		return c.Server.TLSCertFile, c.Server.TLSKeyFile, nil
	}
	if fileExists(FallbackTLSCertFile) && fileExists(FallbackTLSKeyFile) {
		return FallbackTLSCertFile, FallbackTLSKeyFile, nil
	}
	return "", "", fmt.Errorf(
		"SSL certificates not found (tried %s/%s and %s/%s): run ./generate_cert.sh to create a self-signed pair, or start without --https",
		c.Server.TLSCertFile, c.Server.TLSKeyFile, FallbackTLSCertFile, FallbackTLSKeyFile)
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.CORSAllowedOriginRegex != "" {
		if _, err := regexp.Compile(c.Server.CORSAllowedOriginRegex); err != nil {
			return fmt.Errorf("invalid cors_allowed_origin_regex: %w", err)
		}
	}
	if c.Whisper.Language == "" {
		return fmt.Errorf("whisper language must not be empty")
	}
	if c.Whisper.BeamSize <= 0 {
		return fmt.Errorf("whisper beam_size must be positive, got %d", c.Whisper.BeamSize)
	}
	if c.Whisper.Workers <= 0 {
		return fmt.Errorf("whisper workers must be positive, got %d", c.Whisper.Workers)
	}
	if c.Whisper.MaxRetryAttempts <= 0 {
		return fmt.Errorf("whisper max_retry_attempts must be positive, got %d", c.Whisper.MaxRetryAttempts)
	}
	if c.Whisper.RetryDelayBaseSecs < 0 {
		return fmt.Errorf("whisper retry_delay_base_seconds must not be negative, got %d", c.Whisper.RetryDelayBaseSecs)
	}
	if c.Whisper.DownloadTimeoutSecs <= 0 {
		return fmt.Errorf("whisper download_timeout_seconds must be positive, got %d", c.Whisper.DownloadTimeoutSecs)
	}
	if c.Whisper.VADThreshold < 0 || c.Whisper.VADThreshold > 1 {
		return fmt.Errorf("whisper vad_threshold must be in [0, 1], got %f", c.Whisper.VADThreshold)
	}
	if c.Storage.ModelsDir == "" {
		return fmt.Errorf("storage models_dir must not be empty")
	}
	return nil
}
