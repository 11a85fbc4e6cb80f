package config

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/faanross/simulacra_doc/internal/chunker"
	"github.com/faanross/simulacra_doc/internal/spec"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks every section and reports all problems at once.
func (c *Config) Validate() error {
	var errs ValidationErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if c.Version < 1 || c.Version > Version {
		add("version", "unsupported version %d (current: %d)", c.Version, Version)
	}

	switch c.Stego.Method {
	case spec.METHOD_SPACE, spec.METHOD_ZEROWIDTH:
	default:
		add("stego.method", "must be %q or %q, got %q", spec.METHOD_SPACE, spec.METHOD_ZEROWIDTH, c.Stego.Method)
	}

	switch c.Stego.Format {
	case "", spec.FORMAT_DOCX, spec.FORMAT_HTML, spec.FORMAT_TXT:
	default:
		add("stego.format", "unsupported format %q", c.Stego.Format)
	}

	switch c.Stego.Hash {
	case "", spec.HASH_SHA256, spec.HASH_SHA3, spec.HASH_BLAKE2B:
	default:
		add("stego.hash", "unsupported keystream hash %q", c.Stego.Hash)
	}

	if c.Relay.Domain == "" {
		add("relay.domain", "must not be empty")
	}
	if c.Relay.Encoding != chunker.ENCODE_BASE32 && c.Relay.Encoding != chunker.ENCODE_HEX {
		add("relay.encoding", "must be %q or %q", chunker.ENCODE_BASE32, chunker.ENCODE_HEX)
	}
	if c.Relay.Concurrency < 1 {
		add("relay.concurrency", "must be at least 1")
	}
	if c.Relay.Retries < 0 {
		add("relay.retries", "must not be negative")
	}
	if c.Relay.QueryTimeoutSec < 1 {
		add("relay.query_timeout_sec", "must be at least 1")
	}
	if c.Relay.CleanupIntervalSec < 1 {
		add("relay.cleanup_interval_sec", "must be at least 1")
	}
	if c.Relay.MessageTTLSec < 1 {
		add("relay.message_ttl_sec", "must be at least 1")
	}
	if c.Relay.Persistent && c.Relay.StoragePath == "" {
		add("relay.storage_path", "required when persistent storage is enabled")
	}

	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		add("logging.level", "%v", err)
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		add("logging.format", "must be text or json, got %q", c.Logging.Format)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
