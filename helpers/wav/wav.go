// Package wav builds and maintains RIFF/WAVE file headers for
// interleaved PCM or IEEE float samples, used by cmd/overwitchdemo to
// optionally record a session's o2h (device-to-host) audio stream to
// disk for offline inspection.
package wav

import (
	"encoding/binary"
	"fmt"
	"io"
)

type RiffChunk struct {
	ChunkId   [4]byte
	ChunkSize uint32
	Format    [4]byte
}

type FmtChunk struct {
	ChunkId       [4]byte
	ChunkSize     uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	ExtSize       uint16 // required to support floating-point
}

type FactChunk struct {
	ChunkId      [4]byte
	ChunkSize    uint32
	SampleLength uint32
}

type DataChunk struct {
	ChunkId   [4]byte
	ChunkSize uint32
	// samples follow this chunk
}

type Header struct {
	Riff RiffChunk
	Fmt  FmtChunk
	Fact FactChunk // required for floating-point
	Data DataChunk
	// samples follow the header data chunk
}

type SampleFormat uint16

const (
	LPCM              SampleFormat = 1
	IEEEFloatingPoint SampleFormat = 3
)

// NewHeader creates and initializes a new WAV Header struct. The header
// can be written using encoding/binary.Write().
//
// If bigEndian is true, then the "RIFX" chunk ID is used instead of "RIFF".
// This option should only be used if all samples will be written using
// big-endian byte-order (e.g. binary.BigEndian). For the best compatibility
// little-endian encoding should be preferred, but big-endian encoding
// may be advantageous if fast writes on a big-endian CPU are required.
//
// The numFrames parameter should be the number of frames written or
// to be written. A value of zero can be used initially and the header
// struct can be updated with the correct size later with the Update method.
func NewHeader(
	sampleRate uint32, numChannels uint16, bytesPerSample uint8,
	format SampleFormat, bigEndian bool, numFrames uint32,
) (*Header, error) {
	head := Header{}
	dataBytes := numFrames * (uint32(bytesPerSample) * uint32(numChannels))

	// RIFF header
	switch bigEndian {
	case true:
		head.Riff.ChunkId = [4]byte{'R', 'I', 'F', 'X'}
	default:
		head.Riff.ChunkId = [4]byte{'R', 'I', 'F', 'F'}
	}
	head.Riff.ChunkSize = 4 + dataBytes
	head.Riff.Format = [4]byte{'W', 'A', 'V', 'E'}

	// fmt header
	head.Fmt.ChunkId = [4]byte{'f', 'm', 't', ' '}
	head.Fmt.ChunkSize = 18
	switch format {
	case IEEEFloatingPoint:
		head.Fmt.AudioFormat = uint16(IEEEFloatingPoint)
		switch bytesPerSample {
		case 4, 8:
			// Good
		default:
			return nil, fmt.Errorf("invalid bytes per sample for floating point format; got %d, want 4 or 8", bytesPerSample)
		}
	case LPCM:
		head.Fmt.AudioFormat = uint16(LPCM)
		switch bytesPerSample {
		case 1, 2, 3, 4:
			// Good
		default:
			return nil, fmt.Errorf("invalid bytes per sample for PCM format; got %d, want 1, 2, 3, or 4", bytesPerSample)
		}
	default:
		return nil, fmt.Errorf("invalid sample format; got %d, want LPCM or IEEEFloatingPoint", format)
	}
	head.Fmt.NumChannels = numChannels
	head.Fmt.SampleRate = sampleRate
	head.Fmt.ByteRate = sampleRate * uint32(numChannels) * uint32(bytesPerSample)
	head.Fmt.BlockAlign = numChannels * uint16(bytesPerSample)
	head.Fmt.BitsPerSample = uint16(bytesPerSample * 8)
	head.Fmt.ExtSize = 0 // required for floating-point

	// fact header
	head.Fact.ChunkId = [4]byte{'f', 'a', 'c', 't'}
	head.Fact.ChunkSize = 4
	head.Fact.SampleLength = numFrames

	// data header
	head.Data.ChunkId = [4]byte{'d', 'a', 't', 'a'}
	head.Data.ChunkSize = dataBytes

	return &head, nil
}

// Update sets all of the data size dependent fields in the
// header struct with a new value reflecting a new total number
// of frames. Note that updates do not accumulate.
func (h *Header) Update(numFrames uint32) {
	bytesPerFrame := h.Fmt.BitsPerSample / 8 * h.Fmt.NumChannels
	numBytes := uint32(bytesPerFrame) * numFrames
	h.Riff.ChunkSize = 4 + numBytes
	h.Fact.SampleLength = numFrames
	h.Data.ChunkSize = numBytes
}

// FloatWriter accumulates interleaved float32 frames into a 32-bit IEEE
// float WAV file, rewriting the header's size fields on Close. It is
// deliberately single-purpose (float32, little-endian, fixed channel
// count) rather than exposing every combination NewHeader allows,
// since it exists to record one o2h audio stream, not to be a general
// WAV-writing API.
type FloatWriter struct {
	w        io.WriteSeeker
	head     *Header
	channels uint16
	frames   uint32
}

// NewFloatWriter writes a zero-length placeholder header to w and
// returns a FloatWriter ready to accept frames via Write.
func NewFloatWriter(w io.WriteSeeker, sampleRate uint32, channels uint16) (*FloatWriter, error) {
	head, err := NewHeader(sampleRate, channels, 4, IEEEFloatingPoint, false, 0)
	if err != nil {
		return nil, err
	}
	if err := binary.Write(w, binary.LittleEndian, head); err != nil {
		return nil, fmt.Errorf("write wav header: %w", err)
	}
	return &FloatWriter{w: w, head: head, channels: channels}, nil
}

// Write appends one buffer of interleaved float32 samples to the file.
// samples must be a whole number of frames (len(samples) % channels == 0).
func (fw *FloatWriter) Write(samples []float32) error {
	if len(samples)%int(fw.channels) != 0 {
		return fmt.Errorf("wav: %d samples is not a whole number of %d-channel frames", len(samples), fw.channels)
	}
	if err := binary.Write(fw.w, binary.LittleEndian, samples); err != nil {
		return fmt.Errorf("write wav samples: %w", err)
	}
	fw.frames += uint32(len(samples)) / uint32(fw.channels)
	return nil
}

// Close rewrites the header with the final frame count. It does not
// close the underlying writer.
func (fw *FloatWriter) Close() error {
	fw.head.Update(fw.frames)
	if _, err := fw.w.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("seek to wav header: %w", err)
	}
	if err := binary.Write(fw.w, binary.LittleEndian, fw.head); err != nil {
		return fmt.Errorf("rewrite wav header: %w", err)
	}
	return nil
}
