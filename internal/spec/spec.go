package spec

// Payload framing constants
const (
	HEADER_BITS   = 32 // Bits for storing message length
	HEADER_SIZE   = 4  // Bytes for storing message length (uint32, big-endian)
	BITS_PER_BYTE = 8  // Standard byte size
)

// Keystream constants
const (
	COUNTER_SIZE = 8  // Big-endian block counter appended to the key
	DIGEST_SIZE  = 32 // Every supported keystream hash yields 256 bits

	HASH_SHA256  = "sha256"
	HASH_SHA3    = "sha3-256"
	HASH_BLAKE2B = "blake2b-256"
)

// Carrier symbols
const (
	SPACE_0 = '\u0020' // Ordinary space - bit 0
	SPACE_1 = '\u202F' // Narrow no-break space - bit 1

	ZW_0 = '\u200B' // Zero-width space - bit 0
	ZW_1 = '\u200C' // Zero-width non-joiner - bit 1
)

// Carrier methods
const (
	METHOD_SPACE     = "space"
	METHOD_ZEROWIDTH = "zerowidth"
)

// Document formats
const (
	FORMAT_DOCX = "docx"
	FORMAT_HTML = "html"
	FORMAT_TXT  = "txt"
)

// SkippedContainers lists markup elements whose direct text children never carry bits.
var SkippedContainers = map[string]bool{
	"script": true,
	"style":  true,
	"meta":   true,
	"head":   true,
}
