package png

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// Sentinel errors for the distinct ways decoding can fail. Callers that
// need to branch on the failure kind should compare with errors.Is against
// these, or use
// pkg/errors.Cause on a wrapped error to recover the original value.
var (
	// ErrIO reports that the underlying reader could not produce the
	// requested bytes.
	ErrIO = errors.New("png: io error")

	// ErrBadSignature reports that the first 8 bytes are not the PNG
	// signature.
	ErrBadSignature = errors.New("png: not a PNG file")

	// ErrTruncatedStream reports that a chunk header, chunk body, or the
	// DEFLATE bit stream ended prematurely.
	ErrTruncatedStream = errors.New("png: truncated stream")

	// ErrUnsupportedCriticalChunk reports an unknown critical chunk, for
	// example PLTE in an RGB image. An indexed-color image is rejected
	// earlier, by its IHDR, with ErrUnsupported.
	ErrUnsupportedCriticalChunk = errors.New("png: unsupported critical chunk")

	// ErrUnsupported reports IHDR options outside the supported subset,
	// a ZLIB compression method other than DEFLATE, or a preset
	// dictionary.
	ErrUnsupported = errors.New("png: unsupported feature")

	// ErrCorruptStream reports a DEFLATE block type 3, a LEN/NLEN
	// mismatch, a back-reference before the start of the output, a
	// null-child Huffman traversal, or a code-length run that overruns
	// its declared count.
	ErrCorruptStream = errors.New("png: corrupt stream")
)

// wrapCorrupt wraps ErrCorruptStream with a formatted message; defilter
// uses it for its length and filter-type errors.
func wrapCorrupt(format string, args ...interface{}) error {
	return pkgerrors.Wrap(ErrCorruptStream, fmt.Sprintf(format, args...))
}
