// Package stego is the operation surface used by the command-line tools:
// embed a secret into a cover file, and extract it back, timing each call.
package stego

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/faanross/simulacra_doc/internal/carrier"
	"github.com/faanross/simulacra_doc/internal/decoder"
	"github.com/faanross/simulacra_doc/internal/document"
	"github.com/faanross/simulacra_doc/internal/encoder"
	"github.com/faanross/simulacra_doc/internal/scrypto"
	"github.com/faanross/simulacra_doc/internal/spec"
	"github.com/sirupsen/logrus"
)

// Options selects the carrier and how documents are read.
type Options struct {
	Method string // spec.METHOD_SPACE or spec.METHOD_ZEROWIDTH; empty means space
	Format string // empty means detect from the file extension
	Hash   string // keystream hash; empty means sha256

	NormalizeUnicode bool
	Logger           *logrus.Logger
}

func (o Options) method() string {
	if o.Method == "" {
		return spec.METHOD_SPACE
	}
	return o.Method
}

func (o Options) logger() *logrus.Logger {
	if o.Logger == nil {
		return logrus.New()
	}
	return o.Logger
}

// resolve picks the strategy and keystream for a document.
func (o Options) resolve(doc document.Document) (carrier.Strategy, *scrypto.KeystreamGenerator, error) {
	family, err := document.Family(doc.Format())
	if err != nil {
		return nil, nil, err
	}

	strategy, err := carrier.New(o.method(), family)
	if err != nil {
		return nil, nil, err
	}

	ks, err := scrypto.NewKeystreamGenerator(o.Hash)
	if err != nil {
		return nil, nil, err
	}

	return strategy, ks, nil
}

// EmbedDocument hides secret in doc and returns the number of bits written.
func EmbedDocument(doc document.Document, secret, key []byte, opts Options) (int, error) {
	strategy, ks, err := opts.resolve(doc)
	if err != nil {
		return 0, err
	}

	sse, err := encoder.NewSecureStegoEncoder(secret, key, encoder.Config{
		Strategy:  strategy,
		Keystream: ks,
		Logger:    opts.logger(),
	})
	if err != nil {
		return 0, err
	}

	return sse.EmbedIntoDocument(doc)
}

// ExtractDocument recovers the message hidden in doc.
func ExtractDocument(doc document.Document, key []byte, opts Options) (*decoder.ExtractedMessage, error) {
	strategy, ks, err := opts.resolve(doc)
	if err != nil {
		return nil, err
	}

	ssd, err := decoder.NewSecureStegoDecoder(key, decoder.Config{
		Strategy:  strategy,
		Keystream: ks,
		Logger:    opts.logger(),
	})
	if err != nil {
		return nil, err
	}

	return ssd.Decode(doc)
}

// DefaultOutputPath names the stego copy of coverPath: stego_<name> next to it.
func DefaultOutputPath(coverPath string) string {
	return filepath.Join(filepath.Dir(coverPath), "stego_"+filepath.Base(coverPath))
}

// Embed reads coverPath, hides secret under key and writes the result to
// outputPath in the cover's format. Nothing is written on error.
func Embed(coverPath, secret, key, outputPath string, opts Options) (time.Duration, int, error) {
	if key == "" {
		return 0, 0, spec.ErrEmptyKey
	}

	start := time.Now()

	doc, err := document.Load(coverPath, opts.Format, document.Options{NormalizeUnicode: opts.NormalizeUnicode})
	if err != nil {
		return 0, 0, err
	}

	bits, err := EmbedDocument(doc, []byte(secret), []byte(key), opts)
	if err != nil {
		return 0, 0, fmt.Errorf("embed into %s: %w", coverPath, err)
	}

	if err := document.Save(doc, outputPath); err != nil {
		return 0, 0, err
	}

	elapsed := time.Since(start)
	opts.logger().WithFields(logrus.Fields{
		"cover":   coverPath,
		"output":  outputPath,
		"method":  opts.method(),
		"bits":    bits,
		"elapsed": elapsed,
	}).Info("embed complete")

	return elapsed, bits, nil
}

// Extract reads stegoPath and recovers the message hidden under key.
// A wrong key yields garbage rather than an error.
func Extract(stegoPath, key string, opts Options) (string, time.Duration, int, error) {
	if key == "" {
		return "", 0, 0, spec.ErrEmptyKey
	}

	start := time.Now()

	doc, err := document.Load(stegoPath, opts.Format, document.Options{})
	if err != nil {
		return "", 0, 0, err
	}

	msg, err := ExtractDocument(doc, []byte(key), opts)
	if err != nil {
		return "", 0, 0, fmt.Errorf("extract from %s: %w", stegoPath, err)
	}

	elapsed := time.Since(start)
	log := opts.logger().WithFields(logrus.Fields{
		"stego":   stegoPath,
		"method":  opts.method(),
		"bits":    msg.BitCount,
		"elapsed": elapsed,
	})
	if msg.ValidUTF8 {
		log.Info("extract complete")
	} else {
		log.Warn("extracted bytes are not valid UTF-8, key is probably wrong")
	}

	return string(msg.Message), elapsed, msg.BitCount, nil
}

// Capacity reports how a message of messageLen bytes fits the cover at path
// under the configured method.
func Capacity(path string, messageLen int, opts Options) (*encoder.CapacityReport, error) {
	doc, err := document.Load(path, opts.Format, document.Options{NormalizeUnicode: opts.NormalizeUnicode})
	if err != nil {
		return nil, err
	}

	strategy, _, err := opts.resolve(doc)
	if err != nil {
		return nil, err
	}
	return encoder.AnalyzeCapacity(strategy, doc, messageLen)
}

// Inspect counts the carrier symbols in the document at path.
func Inspect(path string, opts Options) (*decoder.SecurityReport, error) {
	doc, err := document.Load(path, opts.Format, document.Options{})
	if err != nil {
		return nil, err
	}
	return decoder.AnalyzeSecurity(doc), nil
}

// TryKeys extracts from the document at path with each key until one yields
// valid UTF-8, returning the message and the index of the key.
func TryKeys(path string, keys []string, opts Options) (*decoder.ExtractedMessage, int, error) {
	doc, err := document.Load(path, opts.Format, document.Options{})
	if err != nil {
		return nil, -1, err
	}

	strategy, ks, err := opts.resolve(doc)
	if err != nil {
		return nil, -1, err
	}

	raw := make([][]byte, len(keys))
	for i, k := range keys {
		raw[i] = []byte(k)
	}

	return decoder.TryMultipleKeys(doc, raw, decoder.Config{
		Strategy:  strategy,
		Keystream: ks,
		Logger:    opts.logger(),
	})
}
