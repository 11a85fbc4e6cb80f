package decoder

import (
	"fmt"
	"unicode/utf8"

	"github.com/faanross/simulacra_doc/internal/scrypto"
	"github.com/sirupsen/logrus"
)

// ExtractedMessage contains the decrypted message and metadata
type ExtractedMessage struct {
	Message        []byte
	BitCount       int
	CiphertextSize int
	// ValidUTF8 is false for garbage, which is what a wrong key produces.
	ValidUTF8 bool
}

// DecryptPayload XORs the payload with the keystream and strips the length frame
func (ssd *SecureStegoDecoder) DecryptPayload() (*ExtractedMessage, error) {
	if ssd.securePayload == nil {
		return nil, fmt.Errorf("no payload extracted")
	}

	plaintext := ssd.keystream.Decrypt(ssd.securePayload, ssd.key)

	message, err := scrypto.Unframe(plaintext)
	if err != nil {
		return nil, err
	}

	out := &ExtractedMessage{
		Message:        message,
		BitCount:       len(ssd.bits),
		CiphertextSize: len(ssd.securePayload),
		ValidUTF8:      utf8.Valid(message),
	}

	ssd.log.WithFields(logrus.Fields{
		"message_bytes": len(message),
		"bits":          out.BitCount,
		"valid_utf8":    out.ValidUTF8,
	}).Info("message extracted")

	return out, nil
}
