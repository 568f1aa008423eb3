package png

// defilter reverses the per-scanline predictor (None/Sub/Up/Average/Paeth)
// applied before compression, as per the PNG spec
// (https://www.w3.org/TR/PNG/#9Filters). inflated is H scanlines of
// (1 filter byte + width*bpp data bytes); the returned buffer is exactly
// height*width*bpp bytes, row-major, top-to-bottom.
func defilter(inflated []byte, width, height, bpp int) ([]byte, error) {
	rowBytes := width * bpp
	stride := 1 + rowBytes
	wantLen := height * stride
	if len(inflated) != wantLen {
		return nil, wrapCorrupt("defilter: inflated stream is %d bytes, want %d", len(inflated), wantLen)
	}

	pixels := make([]byte, height*rowBytes)

	for y := 0; y < height; y++ {
		rowStart := y * stride
		filterType := inflated[rowStart]
		src := inflated[rowStart+1 : rowStart+1+rowBytes]
		dst := pixels[y*rowBytes : (y+1)*rowBytes]

		var prevRow []byte
		if y > 0 {
			prevRow = pixels[(y-1)*rowBytes : y*rowBytes]
		}

		switch filterType {
		case 0: // None
			copy(dst, src)
		case 1: // Sub
			for i := 0; i < rowBytes; i++ {
				var a byte
				if i >= bpp {
					a = dst[i-bpp]
				}
				dst[i] = src[i] + a
			}
		case 2: // Up
			for i := 0; i < rowBytes; i++ {
				var b byte
				if prevRow != nil {
					b = prevRow[i]
				}
				dst[i] = src[i] + b
			}
		case 3: // Average
			for i := 0; i < rowBytes; i++ {
				var a, b int
				if i >= bpp {
					a = int(dst[i-bpp])
				}
				if prevRow != nil {
					b = int(prevRow[i])
				}
				dst[i] = src[i] + byte((a+b)/2)
			}
		case 4: // Paeth
			for i := 0; i < rowBytes; i++ {
				var a, b, c int
				if i >= bpp {
					a = int(dst[i-bpp])
				}
				if prevRow != nil {
					b = int(prevRow[i])
				}
				if i >= bpp && prevRow != nil {
					c = int(prevRow[i-bpp])
				}
				dst[i] = src[i] + byte(paeth(a, b, c))
			}
		default:
			return nil, wrapCorrupt("defilter: bad filter type %d on row %d", filterType, y)
		}
	}

	return pixels, nil
}

// paeth is the three-neighbor predictor defined by the PNG spec
// (https://www.w3.org/TR/PNG/#9Filter-type-4-Paeth): it picks whichever
// of a, b, c is closest to the linear estimate a+b-c.
func paeth(a, b, c int) int {
	p := a + b - c
	pa := abs(p - a)
	pb := abs(p - b)
	pc := abs(p - c)
	if pa <= pb && pa <= pc {
		return a
	}
	if pb <= pc {
		return b
	}
	return c
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
