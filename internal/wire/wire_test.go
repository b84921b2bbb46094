package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriterReaderRoundTrip(t *testing.T) {
	w := NewWriter(32)
	w.PutUint32(0, 0xDEADBEEF)
	w.PutUint64(8, 0x0102030405060708)
	w.PutUint16(16, 0xBEEF)
	w.PutUint48(18, 0x0000FFEEDDCCBBAA)
	w.PutBits(24, 4, 4, 0xA) // high nibble
	w.PutBits(24, 0, 4, 0x5) // low nibble

	r := NewReader(w.Bytes())
	require.Equal(t, uint32(0xDEADBEEF), r.Uint32(0))
	require.Equal(t, uint64(0x0102030405060708), r.Uint64(8))
	require.Equal(t, uint16(0xBEEF), r.Uint16(16))
	require.Equal(t, uint64(0xFFEEDDCCBBAA), r.Uint48(18))
	require.Equal(t, uint8(0xA), r.Bits(24, 4, 4))
	require.Equal(t, uint8(0x5), r.Bits(24, 0, 4))
}

func TestPutBitsPreservesOtherBits(t *testing.T) {
	w := NewWriter(1)
	w.PutBits(0, 0, 2, 0x3)
	w.PutBits(0, 2, 2, 0x1)
	require.Equal(t, uint8(0x07), w.Bytes()[0])
}

func TestSlice(t *testing.T) {
	r := NewReader([]byte{0, 1, 2, 3, 4, 5})
	require.Equal(t, []byte{2, 3, 4}, r.Slice(2, 3))
}
