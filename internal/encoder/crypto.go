package encoder

import (
	"fmt"

	"github.com/faanross/simulacra_doc/internal/bitstream"
	"github.com/faanross/simulacra_doc/internal/scrypto"
	"github.com/sirupsen/logrus"
)

// EncryptMessage frames the message with its length and XORs the result
// with the keystream.
func (sse *SecureStegoEncoder) EncryptMessage() ([]byte, error) {
	payload, err := scrypto.Frame(sse.message)
	if err != nil {
		return nil, fmt.Errorf("framing failed: %w", err)
	}

	ciphertext := sse.keystream.Encrypt(payload, sse.key)

	sse.log.WithFields(logrus.Fields{
		"message_bytes": len(sse.message),
		"payload_bytes": len(payload),
		"keystream":     sse.keystream.Name(),
	}).Debug("payload encrypted")

	return ciphertext, nil
}

// PrepareSecurePayload encrypts the message and expands it to bits
func (sse *SecureStegoEncoder) PrepareSecurePayload() error {
	ciphertext, err := sse.EncryptMessage()
	if err != nil {
		return err
	}

	sse.securePayload = ciphertext
	sse.bits = bitstream.BytesToBits(ciphertext)

	sse.log.WithField("bits", len(sse.bits)).Debug("bit stream prepared")
	return nil
}
