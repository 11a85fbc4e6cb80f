package spec

import "errors"

// Error kinds surfaced by embed and extract
var (
	ErrInsufficientCapacity    = errors.New("insufficient carrier capacity")
	ErrEmptyCarrierSource      = errors.New("cover document has no usable text")
	ErrMalformedStegoData      = errors.New("malformed stego data")
	ErrDecodedLengthOutOfRange = errors.New("decoded length exceeds available data")

	ErrEmptyKey          = errors.New("key must not be empty")
	ErrUnknownMethod     = errors.New("unknown carrier method")
	ErrUnknownHash       = errors.New("unknown keystream hash")
	ErrUnsupportedFormat = errors.New("unsupported document format")
)
