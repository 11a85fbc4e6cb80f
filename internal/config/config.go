// Package config handles configuration loading and validation for the
// simulacra tools.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/faanross/simulacra_doc/internal/chunker"
	"github.com/faanross/simulacra_doc/internal/spec"
)

// Version is the current configuration schema version.
const Version = 1

// Config is the root configuration shared by every command.
type Config struct {
	Version int           `toml:"version" yaml:"version"`
	Stego   StegoConfig   `toml:"stego" yaml:"stego"`
	Relay   RelayConfig   `toml:"relay" yaml:"relay"`
	Logging LoggingConfig `toml:"logging" yaml:"logging"`
}

// StegoConfig selects the carrier and keystream.
type StegoConfig struct {
	Method string `toml:"method" yaml:"method"`
	// Format forces a document format; empty detects it from the extension.
	Format           string `toml:"format" yaml:"format"`
	Hash             string `toml:"hash" yaml:"hash"`
	NormalizeUnicode bool   `toml:"normalize_unicode" yaml:"normalize_unicode"`
}

// RelayConfig covers the DNS relay server and its clients.
type RelayConfig struct {
	Domain   string `toml:"domain" yaml:"domain"`
	DNSAddr  string `toml:"dns_addr" yaml:"dns_addr"`
	HTTPAddr string `toml:"http_addr" yaml:"http_addr"`

	// Client side
	Server    string `toml:"server" yaml:"server"`
	UploadURL string `toml:"upload_url" yaml:"upload_url"`
	ClientID  string `toml:"client_id" yaml:"client_id"`

	// Storage
	Persistent  bool   `toml:"persistent" yaml:"persistent"`
	StoragePath string `toml:"storage_path" yaml:"storage_path"`

	// Transport
	Encoding    string `toml:"encoding" yaml:"encoding"`
	Compress    bool   `toml:"compress" yaml:"compress"`
	Concurrency int    `toml:"concurrency" yaml:"concurrency"`
	Retries     int    `toml:"retries" yaml:"retries"`

	QueryTimeoutSec    int `toml:"query_timeout_sec" yaml:"query_timeout_sec"`
	CleanupIntervalSec int `toml:"cleanup_interval_sec" yaml:"cleanup_interval_sec"`
	MessageTTLSec      int `toml:"message_ttl_sec" yaml:"message_ttl_sec"`
}

// LoggingConfig controls the logrus logger.
type LoggingConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"` // text or json
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: Version,
		Stego: StegoConfig{
			Method: spec.METHOD_SPACE,
			Hash:   spec.HASH_SHA256,
		},
		Relay: RelayConfig{
			Domain:             "covert.example.com",
			DNSAddr:            ":5353",
			HTTPAddr:           ":8080",
			Server:             "127.0.0.1:5353",
			UploadURL:          "http://127.0.0.1:8080/upload",
			ClientID:           "receiver1",
			StoragePath:        "relay-data",
			Encoding:           chunker.ENCODE_BASE32,
			Compress:           true,
			Concurrency:        4,
			Retries:            3,
			QueryTimeoutSec:    5,
			CleanupIntervalSec: 3600,
			MessageTTLSec:      86400,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// QueryTimeout is the per-query DNS timeout.
func (r RelayConfig) QueryTimeout() time.Duration {
	return time.Duration(r.QueryTimeoutSec) * time.Second
}

// CleanupInterval is how often expired relay messages are purged.
func (r RelayConfig) CleanupInterval() time.Duration {
	return time.Duration(r.CleanupIntervalSec) * time.Second
}

// MessageTTL is how long a relay message is kept.
func (r RelayConfig) MessageTTL() time.Duration {
	return time.Duration(r.MessageTTLSec) * time.Second
}

// Load reads path, applies environment overrides and validates the result.
// An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := decode(path, data, cfg); err != nil {
			return nil, err
		}
	}

	cfg.ApplyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch filepath.Ext(path) {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return fmt.Errorf("decode TOML: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("decode YAML: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config extension %q (use .toml, .yaml or .yml)", filepath.Ext(path))
	}
	return nil
}

// Save writes cfg to path in the format implied by its extension.
func Save(cfg *Config, path string) error {
	var data []byte

	switch filepath.Ext(path) {
	case ".toml":
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return fmt.Errorf("encode TOML: %w", err)
		}
		data = buf.Bytes()
	case ".yaml", ".yml":
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("encode YAML: %w", err)
		}
		data = out
	default:
		return fmt.Errorf("unsupported config extension %q", filepath.Ext(path))
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	return os.WriteFile(path, data, 0644)
}

// ApplyEnvOverrides applies SIMULACRA_* environment variables.
func (c *Config) ApplyEnvOverrides() {
	str := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		if v := os.Getenv(name); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	flag := func(name string, dst *bool) {
		if v := os.Getenv(name); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	// Stego overrides
	str("SIMULACRA_METHOD", &c.Stego.Method)
	str("SIMULACRA_FORMAT", &c.Stego.Format)
	str("SIMULACRA_HASH", &c.Stego.Hash)
	flag("SIMULACRA_NORMALIZE_UNICODE", &c.Stego.NormalizeUnicode)

	// Relay overrides
	str("SIMULACRA_DOMAIN", &c.Relay.Domain)
	str("SIMULACRA_DNS_ADDR", &c.Relay.DNSAddr)
	str("SIMULACRA_HTTP_ADDR", &c.Relay.HTTPAddr)
	str("SIMULACRA_SERVER", &c.Relay.Server)
	str("SIMULACRA_UPLOAD_URL", &c.Relay.UploadURL)
	str("SIMULACRA_CLIENT_ID", &c.Relay.ClientID)
	str("SIMULACRA_STORAGE_PATH", &c.Relay.StoragePath)
	flag("SIMULACRA_PERSISTENT", &c.Relay.Persistent)
	flag("SIMULACRA_COMPRESS", &c.Relay.Compress)
	num("SIMULACRA_CONCURRENCY", &c.Relay.Concurrency)

	// Logging overrides
	str("SIMULACRA_LOG_LEVEL", &c.Logging.Level)
	str("SIMULACRA_LOG_FORMAT", &c.Logging.Format)
}
