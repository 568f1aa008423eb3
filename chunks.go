package png

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

var pngSignature = [8]byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

// Decoding stage, tracking chunk ordering as required by the PNG spec
// (https://www.w3.org/TR/PNG/#5ChunkOrdering): IHDR first, then one or
// more IDATs, then IEND.
const (
	stageStart = iota
	stageSeenIHDR
	stageSeenIDAT
	stageSeenIEND
)

// Metadata holds the validated IHDR fields this module supports. Bit depth
// is validated and not retained, so nothing downstream can confuse a raw
// bit-depth value with the derived per-pixel byte count. The color type is
// kept only in the unexported colorType field, which selects the output
// image type.
type Metadata struct {
	Width, Height uint32
	BytesPerPixel int // 3 (RGB) or 4 (RGBA)
	colorType     int
}

const (
	colorTypeRGB  = 2
	colorTypeRGBA = 6
)

// parseContainer reads the PNG signature, then chunks until IEND, routing
// IHDR/IDAT/IEND and skipping (by length) everything else, rejecting
// unknown critical chunks outright. It returns the validated metadata and
// the concatenation of every IDAT payload in file order.
func parseContainer(r io.Reader) (Metadata, []byte, error) {
	var meta Metadata
	var compressed []byte

	var sig [8]byte
	if _, err := io.ReadFull(r, sig[:]); err != nil {
		return meta, nil, errors.Wrap(errOrIO(err), "parseContainer: signature")
	}
	if sig != pngSignature {
		return meta, nil, errors.Wrap(ErrBadSignature, "parseContainer: signature mismatch")
	}

	stage := stageStart
	sawIDAT := false

	for stage != stageSeenIEND {
		length, typ, err := readChunkHeader(r)
		if err != nil {
			return meta, nil, errors.Wrap(err, "parseContainer: chunk header")
		}

		switch typ {
		case "IHDR":
			if stage != stageStart {
				return meta, nil, errors.Wrap(ErrCorruptStream, "parseContainer: IHDR out of order")
			}
			meta, err = parseIHDR(r, length)
			if err != nil {
				return Metadata{}, nil, errors.Wrap(err, "parseContainer: IHDR")
			}
			stage = stageSeenIHDR
			if err := skipCRC(r); err != nil {
				return Metadata{}, nil, errors.Wrap(err, "parseContainer: IHDR crc")
			}

		case "IDAT":
			if stage != stageSeenIHDR && stage != stageSeenIDAT {
				return meta, nil, errors.Wrap(ErrCorruptStream, "parseContainer: IDAT out of order")
			}
			payload, err := readExact(r, int(length))
			if err != nil {
				return meta, nil, errors.Wrap(err, "parseContainer: IDAT payload")
			}
			compressed = append(compressed, payload...)
			sawIDAT = true
			stage = stageSeenIDAT
			if err := skipCRC(r); err != nil {
				return meta, nil, errors.Wrap(err, "parseContainer: IDAT crc")
			}

		case "IEND":
			if length != 0 {
				return meta, nil, errors.Wrap(ErrCorruptStream, "parseContainer: non-empty IEND")
			}
			if !sawIDAT {
				return meta, nil, errors.Wrap(ErrTruncatedStream, "parseContainer: IEND before any IDAT")
			}
			stage = stageSeenIEND
			if err := skipCRC(r); err != nil {
				return meta, nil, errors.Wrap(err, "parseContainer: IEND crc")
			}

		default:
			if isCritical(typ) {
				return meta, nil, errors.Wrapf(ErrUnsupportedCriticalChunk, "parseContainer: unknown critical chunk %q", typ)
			}
			if err := skipBytes(r, int(length)); err != nil {
				return meta, nil, errors.Wrapf(err, "parseContainer: skipping ancillary chunk %q", typ)
			}
			if err := skipCRC(r); err != nil {
				return meta, nil, errors.Wrapf(err, "parseContainer: %q crc", typ)
			}
		}
	}

	if stage < stageSeenIHDR {
		return meta, nil, errors.Wrap(ErrTruncatedStream, "parseContainer: missing IHDR")
	}
	return meta, compressed, nil
}

// isCritical reports whether a chunk type is critical: bit 0x20 of its
// first byte is clear, per the PNG chunk naming convention
// (https://www.w3.org/TR/PNG/#5Chunk-naming-conventions).
func isCritical(typ string) bool {
	return typ[0]&0x20 == 0
}

func readChunkHeader(r io.Reader) (length uint32, typ string, err error) {
	var hdr [8]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, "", errors.Wrap(errOrIO(err), "readChunkHeader")
	}
	length = binary.BigEndian.Uint32(hdr[0:4])
	typ = string(hdr[4:8])
	return length, typ, nil
}

// parseIHDR reads and validates the 13-byte IHDR body
// (https://www.w3.org/TR/PNG/#11IHDR).
func parseIHDR(r io.Reader, length uint32) (Metadata, error) {
	if length != 13 {
		return Metadata{}, errors.Wrapf(ErrCorruptStream, "parseIHDR: bad length %d", length)
	}

	body, err := readExact(r, 13)
	if err != nil {
		return Metadata{}, errors.Wrap(err, "parseIHDR: body")
	}

	width := binary.BigEndian.Uint32(body[0:4])
	height := binary.BigEndian.Uint32(body[4:8])
	bitDepth := body[8]
	colorType := int(body[9])
	compressionMethod := body[10]
	filterMethod := body[11]
	interlaceMethod := body[12]

	if bitDepth != 8 {
		return Metadata{}, errors.Wrapf(ErrUnsupported, "parseIHDR: bit depth %d", bitDepth)
	}
	if colorType != colorTypeRGB && colorType != colorTypeRGBA {
		return Metadata{}, errors.Wrapf(ErrUnsupported, "parseIHDR: color type %d", colorType)
	}
	if compressionMethod != 0 {
		return Metadata{}, errors.Wrapf(ErrUnsupported, "parseIHDR: compression method %d", compressionMethod)
	}
	if filterMethod != 0 {
		return Metadata{}, errors.Wrapf(ErrUnsupported, "parseIHDR: filter method %d", filterMethod)
	}
	if interlaceMethod != 0 {
		return Metadata{}, errors.Wrapf(ErrUnsupported, "parseIHDR: interlace method %d", interlaceMethod)
	}

	bpp := 3
	if colorType == colorTypeRGBA {
		bpp = 4
	}

	return Metadata{
		Width:         width,
		Height:        height,
		BytesPerPixel: bpp,
		colorType:     colorType,
	}, nil
}

func readExact(r io.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, errors.Wrap(errOrIO(err), "readExact")
	}
	return buf, nil
}

func skipBytes(r io.Reader, n int) error {
	_, err := io.CopyN(io.Discard, r, int64(n))
	if err != nil {
		return errors.Wrap(errOrIO(err), "skipBytes")
	}
	return nil
}

// skipCRC discards the 4-byte CRC trailer without validating it.
func skipCRC(r io.Reader) error {
	return skipBytes(r, 4)
}

// errOrIO normalizes io.EOF/io.ErrUnexpectedEOF into the module's own
// truncation/IO sentinels, so callers never need to compare against the
// io package directly.
func errOrIO(err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return ErrTruncatedStream
	}
	return errors.Wrap(ErrIO, err.Error())
}
