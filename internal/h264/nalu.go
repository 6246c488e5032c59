// Package h264 holds small helpers for H.264 Annex B byte streams:
// splitting on start codes and classifying NAL units.
package h264

// NAL unit type codes (ITU-T H.264 table 7-1) relevant to stream gating.
const (
	TypeNonIDR = 1
	TypeIDR    = 5
	TypeSEI    = 6
	TypeSPS    = 7
	TypePPS    = 8
	TypeAUD    = 9
)

// A NALU is a single network abstraction layer unit, without its Annex B
// start code.
type NALU []byte

func (nalu NALU) ForbiddenBit() byte {
	return nalu[0] & 0x80 >> 7
}

func (nalu NALU) NRI() byte {
	return nalu[0] & 0x60 >> 5
}

func (nalu NALU) Type() byte {
	return nalu[0] & 0x1f
}

// Keyframe reports whether this unit begins a decodable point: an IDR
// picture, or the sequence parameter set that conventionally precedes one.
func (nalu NALU) Keyframe() bool {
	if len(nalu) == 0 {
		return false
	}
	t := nalu.Type()
	return t == TypeIDR || t == TypeSPS
}
