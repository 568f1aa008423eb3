// Package png decodes a PNG image file into a standard-library image.Image.
//
// It implements its own ZLIB/DEFLATE inflater and canonical Huffman tree
// construction rather than delegating to compress/zlib, and only supports
// a restricted subset of the format: 8-bit depth, color type 2 (RGB) or 6
// (RGBA), no interlacing, no palette. Decoding is whole-file and
// single-threaded; there is no streaming or progressive mode.
package png

import (
	"image"
	"io"

	"github.com/pkg/errors"
)

// Decode reads r as a PNG stream and returns the decoded image. On any
// error the returned image.Image is nil: there is no partial success.
func Decode(r io.Reader) (image.Image, error) {
	meta, compressed, err := parseContainer(r)
	if err != nil {
		return nil, errors.Wrap(err, "png.Decode")
	}

	inflated, err := newInflater(compressed).inflate()
	if err != nil {
		return nil, errors.Wrap(err, "png.Decode")
	}

	pixels, err := defilter(inflated, int(meta.Width), int(meta.Height), meta.BytesPerPixel)
	if err != nil {
		return nil, errors.Wrap(err, "png.Decode")
	}

	return toImage(meta, pixels), nil
}

// toImage wraps the decoded pixel buffer in the appropriate standard-library
// image type: *image.RGBA for opaque RGB source data (alpha filled to
// 0xFF), *image.NRGBA for RGBA source data, since PNG's alpha channel is
// not premultiplied.
func toImage(meta Metadata, pixels []byte) image.Image {
	rect := image.Rect(0, 0, int(meta.Width), int(meta.Height))

	if meta.colorType == colorTypeRGBA {
		img := image.NewNRGBA(rect)
		copy(img.Pix, pixels)
		return img
	}

	img := image.NewRGBA(rect)
	n := int(meta.Width) * int(meta.Height)
	for i := 0; i < n; i++ {
		src := pixels[i*3 : i*3+3]
		dst := img.Pix[i*4 : i*4+4]
		dst[0], dst[1], dst[2], dst[3] = src[0], src[1], src[2], 0xFF
	}
	return img
}
