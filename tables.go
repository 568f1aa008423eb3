package png

// Constant data for DEFLATE decoding, transcribed from RFC 1951 §3.2.5
// and §3.2.7.

// lengthBase[i] and lengthExtraBits[i] give the base length and number of
// extra bits for literal/length symbol 257+i.
var lengthBase = [29]uint32{
	3, 4, 5, 6, 7, 8, 9, 10, 11, 13, 15, 17, 19, 23, 27, 31,
	35, 43, 51, 59, 67, 83, 99, 115, 131, 163, 195, 227, 258,
}

var lengthExtraBits = [29]uint32{
	0, 0, 0, 0, 0, 0, 0, 0, 1, 1, 1, 1, 2, 2, 2, 2,
	3, 3, 3, 3, 4, 4, 4, 4, 5, 5, 5, 5, 0,
}

// distBase[i] and distExtraBits[i] give the base distance and number of
// extra bits for distance symbol i.
var distBase = [30]uint32{
	1, 2, 3, 4, 5, 7, 9, 13, 17, 25, 33, 49, 65, 97,
	129, 193, 257, 385, 513, 769, 1025, 1537, 2049, 3073,
	4097, 6145, 8193, 12289, 16385, 24577,
}

var distExtraBits = [30]uint32{
	0, 0, 0, 0, 1, 1, 2, 2, 3, 3, 4, 4, 5, 5,
	6, 6, 7, 7, 8, 8, 9, 9, 10, 10, 11, 11, 12, 12, 13, 13,
}

// codeLengthOrder is the order in which the 19 code-length-alphabet code
// lengths are transmitted in a dynamic-Huffman block header (RFC 1951
// §3.2.7). Only the first HCLEN entries are present on the wire; the rest
// default to 0.
var codeLengthOrder = [19]int{
	16, 17, 18, 0, 8, 7, 9, 6, 10, 5, 11, 4, 12, 3, 13, 2, 14, 1, 15,
}

const numCodeLengthCodes = 19
