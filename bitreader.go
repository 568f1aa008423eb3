package png

import "github.com/pkg/errors"

// bitReader overlays a (byte-offset, bit-offset) cursor on a byte slice.
// Bits are consumed LSB-first within each byte; pullBits assembles
// multi-bit integers with the first bit read in the least-significant
// position, per DEFLATE §3.1.1. It is used both for the ZLIB/DEFLATE bit
// stream and, via the canonical Huffman trees, for symbol decoding.
type bitReader struct {
	data    []byte
	bytePos int
	bitPos  int // 0..7
}

func newBitReader(data []byte) *bitReader {
	return &bitReader{data: data}
}

// pullBit returns the bit at the cursor and advances one bit. It fails with
// ErrTruncatedStream rather than returning a zero-padded bit once the
// buffer is exhausted.
func (r *bitReader) pullBit() (byte, error) {
	if r.bytePos >= len(r.data) {
		return 0, errors.Wrap(ErrTruncatedStream, "pullBit: past end of buffer")
	}
	bit := (r.data[r.bytePos] >> uint(r.bitPos)) & 1
	r.bitPos++
	if r.bitPos == 8 {
		r.bitPos = 0
		r.bytePos++
	}
	return bit, nil
}

// pullBits reads n bits (1 <= n <= 32) and assembles them with the first
// bit read occupying the least-significant position of the result.
func (r *bitReader) pullBits(n int) (uint32, error) {
	var result uint32
	for i := 0; i < n; i++ {
		bit, err := r.pullBit()
		if err != nil {
			return 0, errors.Wrapf(err, "pullBits(%d)", n)
		}
		result |= uint32(bit) << uint(i)
	}
	return result, nil
}

// nextBoundary advances the cursor to the start of the next byte if it is
// mid-byte; it is a no-op if already aligned.
func (r *bitReader) nextBoundary() {
	if r.bitPos > 0 {
		r.bitPos = 0
		r.bytePos++
	}
}

// readAlignedUint16LE reads two bytes as a little-endian uint16. It must
// only be called immediately after nextBoundary.
func (r *bitReader) readAlignedUint16LE() (uint16, error) {
	if r.bytePos+2 > len(r.data) {
		return 0, errors.Wrap(ErrTruncatedStream, "readAlignedUint16LE: past end of buffer")
	}
	v := uint16(r.data[r.bytePos]) | uint16(r.data[r.bytePos+1])<<8
	r.bytePos += 2
	return v, nil
}

// readAlignedBytes copies n bytes verbatim starting at the (aligned)
// cursor and advances past them.
func (r *bitReader) readAlignedBytes(n int) ([]byte, error) {
	if r.bytePos+n > len(r.data) {
		return nil, errors.Wrap(ErrTruncatedStream, "readAlignedBytes: past end of buffer")
	}
	out := make([]byte, n)
	copy(out, r.data[r.bytePos:r.bytePos+n])
	r.bytePos += n
	return out, nil
}
