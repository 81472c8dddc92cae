package ringbuf

import (
	"encoding/binary"
	"math"
)

// EncodeFloats and DecodeFloats convert between a slice of float32 audio
// samples and the raw bytes carried through a Ring. Audio producers and
// consumers on either side of a Ring agree on this representation (host
// byte order, not the USB wire's big-endian sample format) rather than
// each reimplementing it; the wire format conversion happens only at the
// USB transfer boundary, in package wire.
func EncodeFloats(dst []byte, src []float32) {
	for i, f := range src {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(f))
	}
}

func DecodeFloats(dst []float32, src []byte) {
	for i := range dst {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:]))
	}
}

// FloatFrameBytes returns the byte size of one frame of channels
// float32 samples.
func FloatFrameBytes(channels int) int {
	return channels * 4
}
