package wire

import (
	"encoding/binary"
	"errors"
	"math"
)

const (
	// HeaderOut is the fixed header value stamped on every host-to-
	// device (h2o) block.
	HeaderOut uint16 = 0x07FF
	// HeaderIn is the fixed header value every device-to-host (o2h)
	// block must carry to be accepted.
	HeaderIn uint16 = 0x0700

	// FramesPerBlock is the number of audio frames carried by one
	// block, fixed by the protocol.
	FramesPerBlock = 7

	// BlockReservedSize is the padding following the header and frame
	// counter. Its contents are zero-filled on send and ignored on
	// receive (see specification §9, Open Question (a)).
	BlockReservedSize = 28

	// blockPreludeSize is the header + frame counter + reserved bytes
	// preceding the 7 frames of sample data in every block.
	blockPreludeSize = 2 + 2 + BlockReservedSize

	// MinBlocksPerTransfer and MaxBlocksPerTransfer bound the
	// configurable blocks-per-transfer tunable (B in the
	// specification).
	MinBlocksPerTransfer = 2
	MaxBlocksPerTransfer = 32

	// DefaultBlocksPerTransfer is the default B value.
	DefaultBlocksPerTransfer = 24
)

// ErrBadHeader is returned by DecodeBlocks when an accepted block does
// not carry the expected header magic.
var ErrBadHeader = errors.New("wire: unexpected block header")

// ErrBlocksPerTransfer is returned when a blocks-per-transfer value
// falls outside [MinBlocksPerTransfer, MaxBlocksPerTransfer].
var ErrBlocksPerTransfer = errors.New("wire: blocks_per_transfer out of range")

// ValidateBlocksPerTransfer enforces the B range invariant from the
// specification (2 <= B <= 32).
func ValidateBlocksPerTransfer(b int) error {
	if b < MinBlocksPerTransfer || b > MaxBlocksPerTransfer {
		return ErrBlocksPerTransfer
	}
	return nil
}

// BlockSize returns the size in bytes of one block carrying frames of
// frameSize bytes each.
func BlockSize(frameSize int) int {
	return blockPreludeSize + FramesPerBlock*frameSize
}

// TransferSize returns the size in bytes of a full USB transfer of
// blocksPerTransfer blocks, each carrying frames of frameSize bytes.
func TransferSize(blocksPerTransfer, frameSize int) int {
	return blocksPerTransfer * BlockSize(frameSize)
}

const int32Scale = float64(math.MaxInt32)

// sampleToFloat converts one big-endian sample, size bytes wide (3 or
// 4), to a float32 in [-1, 1]. A 3-byte sample occupies the high 24
// bits of a conceptual 32-bit slot (low byte implicitly zero) and is
// sign-extended from its top byte.
func sampleToFloat(b []byte, size int) float32 {
	var v int32
	switch size {
	case 4:
		v = int32(binary.BigEndian.Uint32(b))
	case 3:
		v = int32(int8(b[0]))<<24 | int32(b[1])<<16 | int32(b[2])<<8
	}
	return float32(float64(v) / int32Scale)
}

// floatToSample converts a float32 in [-1, 1] to a big-endian sample,
// size bytes wide, writing into b.
func floatToSample(b []byte, f float32, size int) {
	scaled := float64(f) * int32Scale
	switch {
	case scaled > math.MaxInt32:
		scaled = math.MaxInt32
	case scaled < math.MinInt32:
		scaled = math.MinInt32
	}
	v := int32(math.Round(scaled))
	switch size {
	case 4:
		binary.BigEndian.PutUint32(b, uint32(v))
	case 3:
		b[0] = byte(v >> 24)
		b[1] = byte(v >> 16)
		b[2] = byte(v >> 8)
	}
}

// EncodeBlocks writes blocksPerTransfer blocks of header into dst,
// stamping sequential frame counters starting at startCounter
// (incrementing by FramesPerBlock, rolling at 2^16) and encoding
// src, a flat slice of blocksPerTransfer*FramesPerBlock*len(tracks)
// interleaved float32 samples, into the wire's big-endian sample
// format. It returns the next frame counter value, for use by the
// following transfer. dst must be at least
// TransferSize(blocksPerTransfer, frameSize) bytes.
func EncodeBlocks(dst []byte, src []float32, tracks []Track, blocksPerTransfer int, startCounter, header uint16) uint16 {
	counter := startCounter
	off := 0
	si := 0
	for blk := 0; blk < blocksPerTransfer; blk++ {
		binary.BigEndian.PutUint16(dst[off:], header)
		binary.BigEndian.PutUint16(dst[off+2:], counter)
		base := off + blockPreludeSize
		for frm := 0; frm < FramesPerBlock; frm++ {
			for _, tr := range tracks {
				floatToSample(dst[base:], src[si], tr.SampleSize)
				base += tr.SampleSize
				si++
			}
		}
		off += BlockSize(frameSize(tracks))
		counter += FramesPerBlock
	}
	return counter
}

// DecodeBlocks decodes blocksPerTransfer blocks from src into dst, a
// flat slice of blocksPerTransfer*FramesPerBlock*len(tracks) float32
// samples. It returns ErrBadHeader itself (not wrapped, and without the
// block index) if any block's header does not equal wantHeader; decoding
// still completes for the remaining blocks so the caller may choose to
// keep partial data.
func DecodeBlocks(dst []float32, src []byte, tracks []Track, blocksPerTransfer int, wantHeader uint16) error {
	var firstErr error
	off := 0
	di := 0
	fs := frameSize(tracks)
	for blk := 0; blk < blocksPerTransfer; blk++ {
		header := binary.BigEndian.Uint16(src[off:])
		if header != wantHeader && firstErr == nil {
			firstErr = ErrBadHeader
		}
		base := off + blockPreludeSize
		for frm := 0; frm < FramesPerBlock; frm++ {
			for _, tr := range tracks {
				dst[di] = sampleToFloat(src[base:], tr.SampleSize)
				base += tr.SampleSize
				di++
			}
		}
		off += BlockSize(fs)
	}
	return firstErr
}

// BlockCounter returns the 16-bit frame counter stamped in the block at
// byte offset blockOff within a transfer buffer.
func BlockCounter(src []byte, blockOff int) uint16 {
	return binary.BigEndian.Uint16(src[blockOff+2:])
}

// BlockHeader returns the header magic stamped in the block at byte
// offset blockOff within a transfer buffer.
func BlockHeader(src []byte, blockOff int) uint16 {
	return binary.BigEndian.Uint16(src[blockOff:])
}
