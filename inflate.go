package png

import (
	"github.com/pkg/errors"
)

// inflater owns the ZLIB (RFC 1950) / DEFLATE (RFC 1951) decode of the
// concatenated IDAT payload.
type inflater struct {
	r      *bitReader
	output []byte

	staticLiteral  *huffmanNode
	staticDistance *huffmanNode
}

func newInflater(compressed []byte) *inflater {
	return &inflater{
		r:              newBitReader(compressed),
		staticLiteral:  staticLiteralTree(),
		staticDistance: staticDistanceTree(),
	}
}

// inflate consumes the ZLIB header, decodes every DEFLATE block until one
// marked BFINAL is seen, and returns the decompressed bytes.
func (inf *inflater) inflate() ([]byte, error) {
	if err := inf.readZlibHeader(); err != nil {
		return nil, errors.Wrap(err, "inflate: zlib header")
	}

	for {
		final, err := inf.r.pullBit()
		if err != nil {
			return nil, errors.Wrap(err, "inflate: block header BFINAL")
		}
		btype, err := inf.r.pullBits(2)
		if err != nil {
			return nil, errors.Wrap(err, "inflate: block header BTYPE")
		}

		switch btype {
		case 0:
			if err := inf.storedBlock(); err != nil {
				return nil, errors.Wrap(err, "inflate: stored block")
			}
		case 1:
			if err := inf.huffmanBlock(inf.staticLiteral, inf.staticDistance); err != nil {
				return nil, errors.Wrap(err, "inflate: fixed-Huffman block")
			}
		case 2:
			literal, distance, err := inf.readDynamicTrees()
			if err != nil {
				return nil, errors.Wrap(err, "inflate: dynamic-Huffman header")
			}
			if err := inf.huffmanBlock(literal, distance); err != nil {
				return nil, errors.Wrap(err, "inflate: dynamic-Huffman block")
			}
		default:
			return nil, errors.Wrap(ErrCorruptStream, "inflate: reserved BTYPE 3")
		}

		if final == 1 {
			break
		}
	}

	return inf.output, nil
}

// readZlibHeader validates the 2-byte CMF|FLG header (RFC 1950). PNG
// forbids preset dictionaries, so a set FDICT flag is reported as
// ErrUnsupported rather than its dictionary id being skipped, per the Open
// Question decision recorded in DESIGN.md.
func (inf *inflater) readZlibHeader() error {
	cmf, err := inf.r.pullBits(8)
	if err != nil {
		return errors.Wrap(err, "readZlibHeader: CMF")
	}
	flg, err := inf.r.pullBits(8)
	if err != nil {
		return errors.Wrap(err, "readZlibHeader: FLG")
	}

	if cmf&0x0F != 8 {
		return errors.Wrapf(ErrUnsupported, "readZlibHeader: compression method %d", cmf&0x0F)
	}
	if flg&0x20 != 0 {
		return errors.Wrap(ErrUnsupported, "readZlibHeader: preset dictionary present")
	}
	return nil
}

// storedBlock handles BTYPE=0 (RFC 1951 §3.2.4): flush to a byte boundary,
// read LEN/NLEN, verify LEN == ~NLEN, and copy LEN bytes verbatim into the
// output.
func (inf *inflater) storedBlock() error {
	inf.r.nextBoundary()

	length, err := inf.r.readAlignedUint16LE()
	if err != nil {
		return errors.Wrap(err, "storedBlock: LEN")
	}
	nlength, err := inf.r.readAlignedUint16LE()
	if err != nil {
		return errors.Wrap(err, "storedBlock: NLEN")
	}
	if length != ^nlength {
		return errors.Wrapf(ErrCorruptStream, "storedBlock: LEN %d does not complement NLEN %d", length, nlength)
	}

	if length == 0 {
		return nil
	}
	data, err := inf.r.readAlignedBytes(int(length))
	if err != nil {
		return errors.Wrap(err, "storedBlock: data")
	}
	inf.output = append(inf.output, data...)
	return nil
}

// huffmanBlock runs the symbol loop for BTYPE=1/2 (RFC 1951 §3.2.5): decode
// a literal/length symbol; emit it if < 256; stop at 256; otherwise decode
// a length/distance pair and copy from the output, which doubles as the
// LZ77 sliding window.
func (inf *inflater) huffmanBlock(literalTree, distanceTree *huffmanNode) error {
	for {
		symbol, err := decodeSymbol(inf.r, literalTree)
		if err != nil {
			return errors.Wrap(err, "huffmanBlock: literal/length symbol")
		}

		switch {
		case symbol < 256:
			inf.output = append(inf.output, byte(symbol))
		case symbol == 256:
			return nil
		default:
			if err := inf.copyBackReference(symbol, distanceTree); err != nil {
				return err
			}
		}
	}
}

func (inf *inflater) copyBackReference(symbol uint32, distanceTree *huffmanNode) error {
	index := symbol - 257
	if int(index) >= len(lengthBase) {
		return errors.Wrapf(ErrCorruptStream, "copyBackReference: literal/length symbol %d out of range", symbol)
	}
	extra, err := inf.r.pullBits(int(lengthExtraBits[index]))
	if err != nil {
		return errors.Wrap(err, "copyBackReference: length extra bits")
	}
	length := lengthBase[index] + extra

	distSymbol, err := decodeSymbol(inf.r, distanceTree)
	if err != nil {
		return errors.Wrap(err, "copyBackReference: distance symbol")
	}
	if int(distSymbol) >= len(distBase) {
		return errors.Wrapf(ErrCorruptStream, "copyBackReference: distance symbol %d out of range", distSymbol)
	}
	distExtra, err := inf.r.pullBits(int(distExtraBits[distSymbol]))
	if err != nil {
		return errors.Wrap(err, "copyBackReference: distance extra bits")
	}
	distance := distBase[distSymbol] + distExtra

	start := len(inf.output) - int(distance)
	if start < 0 {
		return errors.Wrapf(ErrCorruptStream, "copyBackReference: distance %d before start of output", distance)
	}

	for i := uint32(0); i < length; i++ {
		inf.output = append(inf.output, inf.output[start+int(i)])
	}
	return nil
}

// readDynamicTrees reconstructs the per-block literal/length and distance
// trees for BTYPE=2 (RFC 1951 §3.2.7): HLIT/HDIST/HCLEN, the permuted
// code-length-alphabet lengths, then the HLIT+HDIST code lengths decoded
// through that alphabet (symbols 16/17/18 as run-length repeats), split
// into literal and distance trees.
func (inf *inflater) readDynamicTrees() (literalTree, distanceTree *huffmanNode, err error) {
	hlitRaw, err := inf.r.pullBits(5)
	if err != nil {
		return nil, nil, errors.Wrap(err, "readDynamicTrees: HLIT")
	}
	hlit := int(hlitRaw) + 257

	hdistRaw, err := inf.r.pullBits(5)
	if err != nil {
		return nil, nil, errors.Wrap(err, "readDynamicTrees: HDIST")
	}
	hdist := int(hdistRaw) + 1

	hclenRaw, err := inf.r.pullBits(4)
	if err != nil {
		return nil, nil, errors.Wrap(err, "readDynamicTrees: HCLEN")
	}
	hclen := int(hclenRaw) + 4

	alphabetLengths := make([]uint32, numCodeLengthCodes)
	for i := 0; i < hclen; i++ {
		l, err := inf.r.pullBits(3)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "readDynamicTrees: code-length alphabet entry %d", i)
		}
		alphabetLengths[codeLengthOrder[i]] = l
	}
	// alphabetLengths is already indexed by real alphabet symbol (0..18),
	// so the ordinary canonical construction applies directly; no special
	// permutation-aware tree builder is needed here.
	alphabetTree := buildHuffmanTree(alphabetLengths)

	total := hlit + hdist
	codeLengths := make([]uint32, 0, total)
	var previous uint32
	for len(codeLengths) < total {
		symbol, err := decodeSymbol(inf.r, alphabetTree)
		if err != nil {
			return nil, nil, errors.Wrap(err, "readDynamicTrees: code-length symbol")
		}

		switch symbol {
		case 16:
			if len(codeLengths) == 0 {
				return nil, nil, errors.Wrap(ErrCorruptStream, "readDynamicTrees: repeat-previous with no previous code length")
			}
			extra, err := inf.r.pullBits(2)
			if err != nil {
				return nil, nil, errors.Wrap(err, "readDynamicTrees: symbol 16 extra bits")
			}
			repeat := 3 + int(extra)
			if len(codeLengths)+repeat > total {
				return nil, nil, errors.Wrap(ErrCorruptStream, "readDynamicTrees: symbol 16 overruns declared count")
			}
			for i := 0; i < repeat; i++ {
				codeLengths = append(codeLengths, previous)
			}
		case 17:
			extra, err := inf.r.pullBits(3)
			if err != nil {
				return nil, nil, errors.Wrap(err, "readDynamicTrees: symbol 17 extra bits")
			}
			repeat := 3 + int(extra)
			if len(codeLengths)+repeat > total {
				return nil, nil, errors.Wrap(ErrCorruptStream, "readDynamicTrees: symbol 17 overruns declared count")
			}
			for i := 0; i < repeat; i++ {
				codeLengths = append(codeLengths, 0)
			}
			previous = 0
		case 18:
			extra, err := inf.r.pullBits(7)
			if err != nil {
				return nil, nil, errors.Wrap(err, "readDynamicTrees: symbol 18 extra bits")
			}
			repeat := 11 + int(extra)
			if len(codeLengths)+repeat > total {
				return nil, nil, errors.Wrap(ErrCorruptStream, "readDynamicTrees: symbol 18 overruns declared count")
			}
			for i := 0; i < repeat; i++ {
				codeLengths = append(codeLengths, 0)
			}
			previous = 0
		default:
			codeLengths = append(codeLengths, symbol)
			previous = symbol
		}
	}

	literalTree = buildHuffmanTree(codeLengths[:hlit])
	distanceTree = buildHuffmanTree(codeLengths[hlit : hlit+hdist])
	return literalTree, distanceTree, nil
}
