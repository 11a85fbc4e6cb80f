// Package relay moves stego documents through the DNS relay: the sender
// uploads chunk records over HTTP and the receiver reads them back as TXT
// queries.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/faanross/simulacra_doc/internal/chunker"
	dnsserver "github.com/faanross/simulacra_doc/internal/dns-server"
	"github.com/sirupsen/logrus"
)

// Package is a document chunked and mapped onto relay record names
type Package struct {
	Message  *chunker.Message
	Manifest *chunker.DNSManifest
	Records  []chunker.DNSRecord
	Request  dnsserver.UploadRequest
}

// Prepare chunks a document for domain. ext is the document extension and
// travels in the manifest.
func Prepare(data []byte, ext, domain string, cfg chunker.ChunkerConfig) (*Package, error) {
	chk := chunker.NewChunker(cfg)
	msg, err := chk.ChunkMessage(data)
	if err != nil {
		return nil, fmt.Errorf("failed to chunk: %w", err)
	}

	manifest, records, err := chunker.NewDNSEncoder(domain).EncodeToDNS(msg, ext)
	if err != nil {
		return nil, err
	}

	req := dnsserver.UploadRequest{
		MessageID: manifest.MessageID,
		Chunks:    make(map[string]string, len(msg.Chunks)),
		Manifest:  manifest.Value(),
	}
	for _, record := range records {
		if strings.HasPrefix(record.Name, "c-") {
			req.Chunks[record.Name] = record.Value
		}
	}

	return &Package{Message: msg, Manifest: manifest, Records: records, Request: req}, nil
}

// Uploader posts packages to the relay HTTP API
type Uploader struct {
	url        string
	client     *http.Client
	maxRetries int
	retryDelay time.Duration
	log        *logrus.Logger
}

// UploaderConfig configures an Uploader
type UploaderConfig struct {
	URL        string // full upload endpoint, e.g. http://host:8080/upload
	Retries    int
	RetryDelay time.Duration
	Timeout    time.Duration
	Logger     *logrus.Logger
}

// NewUploader creates an upload client
func NewUploader(cfg UploaderConfig) *Uploader {
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Uploader{
		url:        cfg.URL,
		client:     &http.Client{Timeout: cfg.Timeout},
		maxRetries: cfg.Retries,
		retryDelay: cfg.RetryDelay,
		log:        cfg.Logger,
	}
}

// statusError is a non-200 reply; 4xx replies are not retried
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("server returned status %d: %s", e.code, strings.TrimSpace(e.body))
}

// Upload sends pkg, retrying transport failures and 5xx replies
func (u *Uploader) Upload(ctx context.Context, pkg *Package) (*dnsserver.UploadResponse, error) {
	body, err := json.Marshal(pkg.Request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= u.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * u.retryDelay):
			}
		}

		resp, err := u.post(ctx, body)
		if err == nil {
			u.log.WithFields(logrus.Fields{
				"message_id": resp.MessageID,
				"chunks":     resp.Chunks,
			}).Info("upload accepted")
			return resp, nil
		}

		lastErr = err
		var se *statusError
		if errors.As(err, &se) && se.code < 500 {
			break
		}
		u.log.WithError(err).WithField("attempt", attempt+1).Warn("upload failed")
	}

	return nil, fmt.Errorf("HTTP upload failed: %w", lastErr)
}

func (u *Uploader) post(ctx context.Context, body []byte) (*dnsserver.UploadResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &statusError{code: resp.StatusCode, body: string(msg)}
	}

	var result dnsserver.UploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &result, nil
}
