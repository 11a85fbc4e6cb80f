package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/faanross/simulacra_doc/internal/chunker"
	"github.com/miekg/dns"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ErrRecordNotFound means the relay answered without a TXT record
var ErrRecordNotFound = errors.New("record not found")

// ReceiverConfig configures a Receiver
type ReceiverConfig struct {
	Server      string // host:port of the relay DNS listener
	Domain      string
	Concurrency int // parallel chunk queries
	Retries     int
	RetryDelay  time.Duration
	Timeout     time.Duration // per query
	Logger      *logrus.Logger

	// Progress is called after each chunk arrives
	Progress func(done, total int)
}

// Receiver retrieves documents from the relay over DNS
type Receiver struct {
	cfg    ReceiverConfig
	domain string
	client *dns.Client
	log    *logrus.Logger
}

// Retrieved is a reassembled, checksum-verified document
type Retrieved struct {
	MessageID string
	Data      []byte
	Manifest  *chunker.DNSManifest
	Chunks    int
	Elapsed   time.Duration
}

// NewReceiver creates a receiver instance
func NewReceiver(cfg ReceiverConfig) *Receiver {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}

	return &Receiver{
		cfg:    cfg,
		domain: strings.TrimSuffix(strings.ToLower(cfg.Domain), "."),
		client: &dns.Client{Net: "udp", Timeout: cfg.Timeout},
		log:    cfg.Logger,
	}
}

// queryTXT resolves one name and joins the character-strings of its first
// TXT answer
func (r *Receiver) queryTXT(ctx context.Context, name string) (string, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), dns.TypeTXT)
	m.SetEdns0(4096, false)

	resp, _, err := r.client.ExchangeContext(ctx, m, r.cfg.Server)
	if err != nil {
		return "", err
	}
	if resp.Rcode != dns.RcodeSuccess && resp.Rcode != dns.RcodeNameError {
		return "", fmt.Errorf("%s: %s", name, dns.RcodeToString[resp.Rcode])
	}

	for _, ans := range resp.Answer {
		if txt, ok := ans.(*dns.TXT); ok {
			return strings.Join(txt.Txt, ""), nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrRecordNotFound, name)
}

// queryWithRetry backs off linearly between attempts
func (r *Receiver) queryWithRetry(ctx context.Context, name string) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= r.cfg.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Duration(attempt) * r.cfg.RetryDelay):
			}
		}

		value, err := r.queryTXT(ctx, name)
		if err == nil {
			return value, nil
		}
		lastErr = err
		r.log.WithError(err).WithFields(logrus.Fields{
			"name":    name,
			"attempt": attempt + 1,
		}).Debug("query failed")
	}
	return "", lastErr
}

// FetchManifest retrieves and parses the manifest record of msgID
func (r *Receiver) FetchManifest(ctx context.Context, msgID string) (*chunker.DNSManifest, error) {
	name := chunker.NewDNSEncoder(r.domain).ManifestName(msgID)
	value, err := r.queryWithRetry(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("manifest fetch failed: %w", err)
	}
	return chunker.ParseManifest(msgID, value)
}

// Retrieve fetches the manifest, then every chunk in parallel, reassembles
// the document and checks it against the manifest checksum.
func (r *Receiver) Retrieve(ctx context.Context, msgID string) (*Retrieved, error) {
	start := time.Now()

	manifest, err := r.FetchManifest(ctx, msgID)
	if err != nil {
		return nil, err
	}

	r.log.WithFields(logrus.Fields{
		"message_id": msgID,
		"chunks":     manifest.TotalChunks,
	}).Debug("manifest retrieved")

	enc := chunker.NewDNSEncoder(r.domain)
	chk := chunker.NewChunker(chunker.ChunkerConfig{Logger: r.log})
	chunks := make([]chunker.Chunk, manifest.TotalChunks)
	var done atomic.Int32

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)

	for i := 0; i < manifest.TotalChunks; i++ {
		g.Go(func() error {
			value, err := r.queryWithRetry(gctx, enc.ChunkName(i, msgID))
			if err != nil {
				return fmt.Errorf("chunk %d: %w", i, err)
			}
			chunk, err := chk.DecodeChunk(value)
			if err != nil {
				return fmt.Errorf("chunk %d: %w", i, err)
			}
			chunks[i] = *chunk

			n := int(done.Add(1))
			if r.cfg.Progress != nil {
				r.cfg.Progress(n, manifest.TotalChunks)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("incomplete retrieval: %w", err)
	}

	data, err := chk.ReassembleMessage(chunks)
	if err != nil {
		return nil, fmt.Errorf("reassembly failed: %w", err)
	}
	if !manifest.Verify(data) {
		return nil, fmt.Errorf("document checksum mismatch for %s", msgID)
	}

	return &Retrieved{
		MessageID: msgID,
		Data:      data,
		Manifest:  manifest,
		Chunks:    manifest.TotalChunks,
		Elapsed:   time.Since(start),
	}, nil
}

// CheckNew asks the relay for messages not yet handed to clientID. The
// relay marks them delivered to that client.
func (r *Receiver) CheckNew(ctx context.Context, clientID string) ([]string, error) {
	value, err := r.queryTXT(ctx, fmt.Sprintf("consume.%s.%s", clientID, r.domain))
	if errors.Is(err, ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if value == "" {
		return nil, nil
	}
	return strings.Split(value, ","), nil
}

// Ack marks msgID consumed
func (r *Receiver) Ack(ctx context.Context, msgID, clientID string) error {
	_, err := r.queryTXT(ctx, fmt.Sprintf("ack.%s.%s.%s", msgID, clientID, r.domain))
	return err
}

// Poll checks for new messages every interval until ctx ends. Each new
// message is retrieved and passed to handle; it is acknowledged only when
// handle succeeds. Idle polls back off to twice the interval.
func (r *Receiver) Poll(ctx context.Context, clientID string, interval time.Duration, handle func(*Retrieved) error) error {
	consecutiveEmpty := 0

	for {
		ids, err := r.CheckNew(ctx, clientID)
		if err != nil {
			r.log.WithError(err).Warn("poll failed")
		}

		if len(ids) > 0 {
			consecutiveEmpty = 0
			for _, id := range ids {
				got, err := r.Retrieve(ctx, id)
				if err != nil {
					r.log.WithError(err).WithField("message_id", id).Error("retrieval failed")
					continue
				}
				if err := handle(got); err != nil {
					r.log.WithError(err).WithField("message_id", id).Error("handler failed")
					continue
				}
				if err := r.Ack(ctx, id, clientID); err != nil {
					r.log.WithError(err).WithField("message_id", id).Warn("ack failed")
				}
			}
		} else {
			consecutiveEmpty++
		}

		wait := interval
		if consecutiveEmpty > 5 {
			wait = interval * 2
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}
