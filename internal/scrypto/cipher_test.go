package scrypto

import (
	"crypto/sha256"
	"strings"
	"testing"

	"github.com/faanross/simulacra_doc/internal/spec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrame(t *testing.T) {
	payload, err := Frame([]byte("HI"))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x02, 0x48, 0x49}, payload)

	empty, err := Frame(nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 0}, empty)
}

func TestUnframe(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		want    []byte
		wantErr error
	}{
		{"exact", []byte{0, 0, 0, 2, 'H', 'I'}, []byte("HI"), nil},
		{"trailing bytes ignored", []byte{0, 0, 0, 1, 'H', 'I', 0}, []byte("H"), nil},
		{"empty message", []byte{0, 0, 0, 0}, []byte{}, nil},
		{"length past end", []byte{0, 0, 0, 3, 'H', 'I'}, nil, spec.ErrDecodedLengthOutOfRange},
		{"huge length", []byte{0xFF, 0xFF, 0xFF, 0xFF, 'H'}, nil, spec.ErrDecodedLengthOutOfRange},
		{"short header", []byte{0, 0, 0}, nil, spec.ErrMalformedStegoData},
		{"nothing", nil, nil, spec.ErrMalformedStegoData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Unframe(tt.payload)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncryptKnownVector(t *testing.T) {
	payload, err := Frame([]byte("HI"))
	require.NoError(t, err)

	block := append([]byte("k1"), 0, 0, 0, 0, 0, 0, 0, 0)
	digest := sha256.Sum256(block)

	expected := make([]byte, len(payload))
	for i := range payload {
		expected[i] = payload[i] ^ digest[i]
	}

	assert.Equal(t, expected, DefaultKeystream().Encrypt(payload, []byte("k1")))
}

func TestCipherInvolution(t *testing.T) {
	kg := DefaultKeystream()
	payloads := [][]byte{
		{},
		{0x00},
		[]byte("hello, world"),
		[]byte(strings.Repeat("long message ", 100)),
	}

	for _, p := range payloads {
		ct := kg.Encrypt(p, []byte("key"))
		assert.Len(t, ct, len(p))
		assert.Equal(t, p, kg.Decrypt(ct, []byte("key")))
	}
}

func TestDecryptWithWrongKeyDiffers(t *testing.T) {
	kg := DefaultKeystream()
	payload := []byte("attack at dawn")
	ct := kg.Encrypt(payload, []byte("right"))
	assert.NotEqual(t, payload, kg.Decrypt(ct, []byte("wrong")))
}

func TestReadKeyLine(t *testing.T) {
	key, err := readKeyLine(strings.NewReader("s3cret\r\nignored\n"))
	require.NoError(t, err)
	assert.Equal(t, []byte("s3cret"), key)

	_, err = readKeyLine(strings.NewReader("\n"))
	assert.ErrorIs(t, err, spec.ErrEmptyKey)
}
