package h264

import (
	"bufio"
	"bytes"
	"io"
)

const (
	naluBufferInitialSize = 16 * 1024
	naluBufferMaximumSize = 1024 * 1024
)

var startCode = []byte{0, 0, 1}

// NewScanner returns a scanner that yields one NAL unit per Scan from an
// Annex B byte stream, with 3- and 4-byte start codes stripped.
func NewScanner(in io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, naluBufferInitialSize), naluBufferMaximumSize)
	scanner.Split(SplitNALU)
	return scanner
}

// SplitNALU is a bufio.SplitFunc that splits on H.264 Annex B start codes.
// At EOF the remainder after the last start code is emitted as a final unit.
func SplitNALU(data []byte, atEOF bool) (advance int, nalu []byte, err error) {
	i := bytes.Index(data, startCode)

	switch i {
	case -1:
		if atEOF && len(data) > 0 {
			// Stream ends without another start code; emit the remainder.
			return len(data), data, nil
		}
		// No start code found. Wait for more data.
		return 0, nil, nil
	case 0:
		// 3-byte start code (0x000001) at data[0]. Skip these 3 bytes.
		return 3, nil, nil
	case 1:
		// 4-byte start code (0x00000001) at data[0]. Skip these 4 bytes.
		return 4, nil, nil
	default:
		// Next start code found at index i.
		advance = i + 3
		if data[i-1] == 0x00 {
			// 4-byte start code
			return advance, data[:i-1], nil
		}
		// 3-byte start code
		return advance, data[:i], nil
	}
}

// Split slices a complete in-memory access unit into NAL units. Useful for
// datagram payloads, where waiting for more data is not an option.
func Split(buf []byte) []NALU {
	var units []NALU
	for len(buf) > 0 {
		advance, nalu, _ := SplitNALU(buf, true)
		if advance == 0 {
			break
		}
		if len(nalu) > 0 {
			units = append(units, NALU(nalu))
		}
		buf = buf[advance:]
	}
	return units
}
