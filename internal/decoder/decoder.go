package decoder

import (
	"errors"
	"fmt"

	"github.com/faanross/simulacra_doc/internal/bitstream"
	"github.com/faanross/simulacra_doc/internal/carrier"
	"github.com/faanross/simulacra_doc/internal/scrypto"
	"github.com/faanross/simulacra_doc/internal/spec"
	"github.com/sirupsen/logrus"
)

// Config wires a decoder to a carrier strategy and keystream.
type Config struct {
	Strategy  carrier.Strategy
	Keystream *scrypto.KeystreamGenerator // nil means SHA-256
	Logger    *logrus.Logger              // nil means logrus.New()
}

// SecureStegoDecoder handles extraction and decryption
type SecureStegoDecoder struct {
	strategy      carrier.Strategy
	keystream     *scrypto.KeystreamGenerator
	log           *logrus.Logger
	key           []byte
	bits          []bool
	securePayload []byte
}

// NewSecureStegoDecoder creates a decoder instance
func NewSecureStegoDecoder(key []byte, cfg Config) (*SecureStegoDecoder, error) {
	if len(key) == 0 {
		return nil, spec.ErrEmptyKey
	}
	if cfg.Strategy == nil {
		return nil, errors.New("decoder: no carrier strategy configured")
	}

	ks := cfg.Keystream
	if ks == nil {
		ks = scrypto.DefaultKeystream()
	}

	log := cfg.Logger
	if log == nil {
		log = logrus.New()
	}

	return &SecureStegoDecoder{
		strategy:  cfg.Strategy,
		keystream: ks,
		log:       log,
		key:       key,
	}, nil
}

// ExtractBitStream reads every carrier symbol out of doc
func (ssd *SecureStegoDecoder) ExtractBitStream(doc carrier.Document) error {
	bits, err := ssd.strategy.Extract(doc)
	if err != nil {
		return fmt.Errorf("%s extract: %w", ssd.strategy.Name(), err)
	}
	ssd.bits = bits

	ssd.log.WithFields(logrus.Fields{
		"strategy": ssd.strategy.Name(),
		"bits":     len(bits),
	}).Debug("bit stream extracted")
	return nil
}

// ExtractSecurePayload packs the extracted bits into ciphertext bytes
func (ssd *SecureStegoDecoder) ExtractSecurePayload() error {
	if len(ssd.bits) < spec.HEADER_BITS {
		return fmt.Errorf("%w: %d bits extracted, need %d for the length header",
			spec.ErrMalformedStegoData, len(ssd.bits), spec.HEADER_BITS)
	}

	ssd.securePayload = bitstream.BitsToBytes(ssd.bits)
	return nil
}

// Decode runs the whole extraction pipeline on doc.
func (ssd *SecureStegoDecoder) Decode(doc carrier.Document) (*ExtractedMessage, error) {
	if err := ssd.ExtractBitStream(doc); err != nil {
		return nil, err
	}
	if err := ssd.ExtractSecurePayload(); err != nil {
		return nil, err
	}
	return ssd.DecryptPayload()
}

// Bits returns the bits read by ExtractBitStream.
func (ssd *SecureStegoDecoder) Bits() []bool {
	return ssd.bits
}
