package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faanross/simulacra_doc/internal/spec"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, spec.METHOD_SPACE, cfg.Stego.Method)
	assert.Equal(t, 5*time.Second, cfg.Relay.QueryTimeout())
	assert.Equal(t, time.Hour, cfg.Relay.CleanupInterval())
	assert.Equal(t, 24*time.Hour, cfg.Relay.MessageTTL())
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Version, cfg.Version)
}

func TestLoadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "simulacra.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
version = 1

[stego]
method = "zerowidth"
hash = "sha3-256"
normalize_unicode = true

[relay]
domain = "relay.test"
concurrency = 8

[logging]
level = "debug"
format = "json"
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, spec.METHOD_ZEROWIDTH, cfg.Stego.Method)
	assert.Equal(t, spec.HASH_SHA3, cfg.Stego.Hash)
	assert.True(t, cfg.Stego.NormalizeUnicode)
	assert.Equal(t, "relay.test", cfg.Relay.Domain)
	assert.Equal(t, 8, cfg.Relay.Concurrency)
	assert.Equal(t, 3, cfg.Relay.Retries, "unset keys keep their defaults")
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "simulacra.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
version: 1
stego:
  method: space
  format: html
relay:
  domain: yaml.test
  persistent: true
  storage_path: /tmp/relay
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, spec.FORMAT_HTML, cfg.Stego.Format)
	assert.Equal(t, "yaml.test", cfg.Relay.Domain)
	assert.True(t, cfg.Relay.Persistent)
	assert.Equal(t, "/tmp/relay", cfg.Relay.StoragePath)
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	ini := filepath.Join(dir, "config.ini")
	require.NoError(t, os.WriteFile(ini, []byte("x=1"), 0644))
	_, err = Load(ini)
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte("[stego\nmethod ="), 0644))
	_, err = Load(bad)
	assert.Error(t, err)

	invalid := filepath.Join(dir, "invalid.toml")
	require.NoError(t, os.WriteFile(invalid, []byte("[stego]\nmethod = \"morse\"\n"), 0644))
	_, err = Load(invalid)
	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Equal(t, "stego.method", verrs[0].Field)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SIMULACRA_METHOD", "zerowidth")
	t.Setenv("SIMULACRA_DOMAIN", "env.test")
	t.Setenv("SIMULACRA_CONCURRENCY", "16")
	t.Setenv("SIMULACRA_COMPRESS", "false")
	t.Setenv("SIMULACRA_LOG_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, spec.METHOD_ZEROWIDTH, cfg.Stego.Method)
	assert.Equal(t, "env.test", cfg.Relay.Domain)
	assert.Equal(t, 16, cfg.Relay.Concurrency)
	assert.False(t, cfg.Relay.Compress)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Version = 99
	cfg.Stego.Hash = "md5"
	cfg.Relay.Encoding = "base64"
	cfg.Relay.Concurrency = 0
	cfg.Relay.Persistent = true
	cfg.Relay.StoragePath = ""
	cfg.Logging.Level = "loud"

	err := cfg.Validate()
	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs))

	fields := make([]string, 0, len(verrs))
	for _, e := range verrs {
		fields = append(fields, e.Field)
	}
	assert.ElementsMatch(t, []string{
		"version", "stego.hash", "relay.encoding", "relay.concurrency",
		"relay.storage_path", "logging.level",
	}, fields)
}

func TestSaveRoundTrip(t *testing.T) {
	for _, name := range []string{"out.toml", "out.yml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", name)

			cfg := DefaultConfig()
			cfg.Stego.Method = spec.METHOD_ZEROWIDTH
			cfg.Relay.Domain = "saved.test"
			require.NoError(t, Save(cfg, path))

			loaded, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, cfg, loaded)
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log, err := LoggingConfig{Level: "debug", Format: "json"}.newLogger(&buf)
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())

	log.WithField("bits", 48).Debug("embedded")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "embedded", entry["msg"])
	assert.Equal(t, float64(48), entry["bits"])

	_, err = LoggingConfig{Level: "nope"}.NewLogger()
	assert.Error(t, err)
}
