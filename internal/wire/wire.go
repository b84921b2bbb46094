// Package wire provides explicit big-endian readers and writers for the
// fixed-layout CDBs and reply buffers used by the ZBC/ZAC command set.
//
// CDB construction and reply parsing must be byte-level deterministic;
// every field is read and written with an explicit offset rather than
// by aliasing a Go struct onto the wire buffer, which would leave
// padding and endianness implementation-defined.
package wire

import "encoding/binary"

// Writer accumulates big-endian fields into a fixed-size buffer.
type Writer struct {
	buf []byte
}

// NewWriter returns a Writer over a zeroed buffer of size n bytes.
func NewWriter(n int) *Writer {
	return &Writer{buf: make([]byte, n)}
}

// Bytes returns the underlying buffer.
func (w *Writer) Bytes() []byte { return w.buf }

func (w *Writer) PutUint8(off int, v uint8) { w.buf[off] = v }

func (w *Writer) PutUint16(off int, v uint16) {
	binary.BigEndian.PutUint16(w.buf[off:off+2], v)
}

func (w *Writer) PutUint32(off int, v uint32) {
	binary.BigEndian.PutUint32(w.buf[off:off+4], v)
}

func (w *Writer) PutUint64(off int, v uint64) {
	binary.BigEndian.PutUint64(w.buf[off:off+8], v)
}

// PutUint48 writes the low 48 bits of v as a 6-byte big-endian field,
// used for ZBC 48-bit LBAs embedded in 16-byte reply descriptors.
func (w *Writer) PutUint48(off int, v uint64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	copy(w.buf[off:off+6], tmp[2:8])
}

// PutBits replaces the width-bit field at the given bit offset in byte
// off with value, leaving the byte's other bits unchanged. Used for packed fields such as zone type
// (bits 3:0) and zone condition (bits 7:4) sharing one byte.
func (w *Writer) PutBits(off int, shift, width uint, value uint8) {
	mask := uint8((1 << width) - 1)
	w.buf[off] = (w.buf[off] &^ (mask << shift)) | ((value & mask) << shift)
}

// Reader walks big-endian fields out of a fixed-layout buffer.
type Reader struct {
	buf []byte
}

// NewReader wraps buf for field-at-a-time big-endian decoding.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Len reports the number of bytes available.
func (r *Reader) Len() int { return len(r.buf) }

func (r *Reader) Uint8(off int) uint8 { return r.buf[off] }

func (r *Reader) Uint16(off int) uint16 {
	return binary.BigEndian.Uint16(r.buf[off : off+2])
}

func (r *Reader) Uint32(off int) uint32 {
	return binary.BigEndian.Uint32(r.buf[off : off+4])
}

func (r *Reader) Uint64(off int) uint64 {
	return binary.BigEndian.Uint64(r.buf[off : off+8])
}

// Uint48 reads a 6-byte big-endian field into the low 48 bits of a
// uint64, used for ZBC 48-bit LBAs embedded in 16-byte descriptors.
func (r *Reader) Uint48(off int) uint64 {
	var tmp [8]byte
	copy(tmp[2:8], r.buf[off:off+6])
	return binary.BigEndian.Uint64(tmp[:])
}

// Bits extracts width bits starting at the given bit offset in byte off.
func (r *Reader) Bits(off int, shift, width uint) uint8 {
	mask := uint8((1 << width) - 1)
	return (r.buf[off] >> shift) & mask
}

// Slice returns the sub-slice [off, off+n) for variable-length payloads
// such as descriptor lists following a fixed header.
func (r *Reader) Slice(off, n int) []byte {
	return r.buf[off : off+n]
}
