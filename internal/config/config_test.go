package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestNormalizeModel(t *testing.T) {
	for _, name := range ValidModels {
		cfg := Default()
		cfg.Whisper.Model = name
		model, fellBack := cfg.NormalizeModel()
		assert.Equal(t, name, model)
		assert.False(t, fellBack, "valid model %q must not fall back", name)
	}

	cfg := Default()
	cfg.Whisper.Model = "gigantic"
	model, fellBack := cfg.NormalizeModel()
	assert.Equal(t, DefaultModel, model)
	assert.True(t, fellBack)
	assert.Equal(t, DefaultModel, cfg.Whisper.Model)
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv(EnvWhisperModel, "medium")
	t.Setenv(EnvModelDownloadTimeout, "120")
	t.Setenv(EnvMaxRetryAttempts, "7")

	cfg := Default()
	require.NoError(t, cfg.ApplyEnvOverrides())
	assert.Equal(t, "medium", cfg.Whisper.Model)
	assert.Equal(t, 120, cfg.Whisper.DownloadTimeoutSecs)
	assert.Equal(t, 7, cfg.Whisper.MaxRetryAttempts)
}

func TestApplyEnvOverridesRejectsGarbage(t *testing.T) {
	t.Setenv(EnvMaxRetryAttempts, "lots")

	cfg := Default()
	require.Error(t, cfg.ApplyEnvOverrides())
}

func TestLoadMergesOntoDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
port = 9100

[whisper]
model = "base"
language = "en"
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "base", cfg.Whisper.Model)
	assert.Equal(t, "en", cfg.Whisper.Language)
	// Untouched keys keep their defaults
	assert.Equal(t, 5, cfg.Whisper.BeamSize)
	assert.Equal(t, 4, cfg.Whisper.Workers)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
}

func TestLoadWithFallbackUsesDefaultsWhenNoFileExists(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadWithFallback("")
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.Server.Port = 0 }},
		{"bad cors regex", func(c *Config) { c.Server.CORSAllowedOriginRegex = "(" }},
		{"empty language", func(c *Config) { c.Whisper.Language = "" }},
		{"zero beam size", func(c *Config) { c.Whisper.BeamSize = 0 }},
		{"zero workers", func(c *Config) { c.Whisper.Workers = 0 }},
		{"zero retry attempts", func(c *Config) { c.Whisper.MaxRetryAttempts = 0 }},
		{"negative retry base", func(c *Config) { c.Whisper.RetryDelayBaseSecs = -1 }},
		{"zero download timeout", func(c *Config) { c.Whisper.DownloadTimeoutSecs = 0 }},
		{"out of range vad threshold", func(c *Config) { c.Whisper.VADThreshold = 1.5 }},
		{"empty models dir", func(c *Config) { c.Storage.ModelsDir = "" }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestResolveTLSMaterialPrefersConfiguredPair(t *testing.T) {
	dir := t.TempDir()
	cert := filepath.Join(dir, "localhost.pem")
	key := filepath.Join(dir, "localhost-key.pem")
	require.NoError(t, os.WriteFile(cert, []byte("cert"), 0644))
	require.NoError(t, os.WriteFile(key, []byte("key"), 0600))

	cfg := Default()
	cfg.Server.TLSCertFile = cert
	cfg.Server.TLSKeyFile = key

	gotCert, gotKey, err := cfg.ResolveTLSMaterial()
	require.NoError(t, err)
	assert.Equal(t, cert, gotCert)
	assert.Equal(t, key, gotKey)
}

func TestResolveTLSMaterialFallsBackToLocalCerts(t *testing.T) {
	t.Chdir(t.TempDir())
	require.NoError(t, os.Mkdir("certs", 0755))
	require.NoError(t, os.WriteFile(FallbackTLSCertFile, []byte("cert"), 0644))
	require.NoError(t, os.WriteFile(FallbackTLSKeyFile, []byte("key"), 0600))

	cfg := Default() // configured pair does not exist in this directory
	gotCert, gotKey, err := cfg.ResolveTLSMaterial()
	require.NoError(t, err)
	assert.Equal(t, FallbackTLSCertFile, gotCert)
	assert.Equal(t, FallbackTLSKeyFile, gotKey)
}

func TestResolveTLSMaterialFatalWhenMissing(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg := Default()
	_, _, err := cfg.ResolveTLSMaterial()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SSL certificates not found")
}
