package encoder

import (
	"errors"
	"fmt"

	"github.com/faanross/simulacra_doc/internal/carrier"
	"github.com/faanross/simulacra_doc/internal/scrypto"
	"github.com/faanross/simulacra_doc/internal/spec"
	"github.com/sirupsen/logrus"
)

// Config wires an encoder to a carrier strategy and keystream.
type Config struct {
	Strategy  carrier.Strategy
	Keystream *scrypto.KeystreamGenerator // nil means SHA-256
	Logger    *logrus.Logger              // nil means logrus.New()
}

// SecureStegoEncoder runs the embed pipeline for one message:
// frame, encrypt, expand to bits, then hand the bits to the carrier.
type SecureStegoEncoder struct {
	strategy      carrier.Strategy
	keystream     *scrypto.KeystreamGenerator
	log           *logrus.Logger
	key           []byte
	message       []byte
	securePayload []byte
	bits          []bool
}

// NewSecureStegoEncoder creates an encoder for message under key
func NewSecureStegoEncoder(message, key []byte, cfg Config) (*SecureStegoEncoder, error) {
	if len(key) == 0 {
		return nil, spec.ErrEmptyKey
	}
	if cfg.Strategy == nil {
		return nil, errors.New("encoder: no carrier strategy configured")
	}

	ks := cfg.Keystream
	if ks == nil {
		ks = scrypto.DefaultKeystream()
	}

	log := cfg.Logger
	if log == nil {
		log = logrus.New()
	}

	return &SecureStegoEncoder{
		strategy:  cfg.Strategy,
		keystream: ks,
		log:       log,
		key:       key,
		message:   message,
	}, nil
}

// Bits returns the prepared bit sequence, or nil before PrepareSecurePayload.
func (sse *SecureStegoEncoder) Bits() []bool {
	return sse.bits
}

// SecurePayload returns the encrypted framed payload.
func (sse *SecureStegoEncoder) SecurePayload() []byte {
	return sse.securePayload
}

// EmbedIntoDocument writes the message into doc and returns the number of
// bits embedded. doc is left untouched on error.
func (sse *SecureStegoEncoder) EmbedIntoDocument(doc carrier.Document) (int, error) {
	if sse.bits == nil {
		if err := sse.PrepareSecurePayload(); err != nil {
			return 0, err
		}
	}

	capacity, err := sse.strategy.Capacity(doc)
	if err != nil {
		return 0, fmt.Errorf("%s capacity: %w", sse.strategy.Name(), err)
	}

	fields := logrus.Fields{
		"strategy": sse.strategy.Name(),
		"bits":     len(sse.bits),
		"capacity": capacity,
	}

	if len(sse.bits) > capacity {
		sse.log.WithFields(fields).Debug("cover too small")
		return 0, capacityError(len(sse.bits), capacity)
	}

	if err := sse.strategy.Embed(doc, sse.bits); err != nil {
		return 0, fmt.Errorf("%s embed: %w", sse.strategy.Name(), err)
	}

	sse.log.WithFields(fields).Info("message embedded")
	return len(sse.bits), nil
}

func capacityError(required, available int) error {
	return fmt.Errorf("%w: need %d bits, cover provides %d slots",
		spec.ErrInsufficientCapacity, required, available)
}
