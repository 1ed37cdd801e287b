package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// wavHeaderSize is the fixed size of the minimal RIFF/WAVE/fmt/data header
// written by [EncodeWAV] and [WrapPCM].
const wavHeaderSize = 44

// ErrNotWAV is returned by [DecodeWAV] when the input bytes do not carry a
// RIFF/WAVE signature.
var ErrNotWAV = errors.New("audio: not a RIFF/WAVE stream")

// DecodeWAV parses an uncompressed 16-bit PCM WAV stream into a [Buffer].
// Chunks other than fmt and data are skipped. Rejects non-PCM encodings and
// bit depths other than 16.
func DecodeWAV(data []byte) (*Buffer, error) {
	if len(data) < wavHeaderSize {
		return nil, fmt.Errorf("audio: decode wav: %w (short input, %d bytes)", ErrNotWAV, len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, fmt.Errorf("audio: decode wav: %w", ErrNotWAV)
	}

	var (
		sampleRate int
		channels   int
		haveFmt    bool
		pcm        []byte
	)

	// Walk chunk headers after the 12-byte RIFF preamble.
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if body+size > len(data) {
			size = len(data) - body
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, fmt.Errorf("audio: decode wav: truncated fmt chunk (%d bytes)", size)
			}
			format := binary.LittleEndian.Uint16(data[body : body+2])
			if format != 1 {
				return nil, fmt.Errorf("audio: decode wav: unsupported format tag %d (want PCM)", format)
			}
			channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bits := binary.LittleEndian.Uint16(data[body+14 : body+16])
			if bits != 16 {
				return nil, fmt.Errorf("audio: decode wav: unsupported bit depth %d (want 16)", bits)
			}
			haveFmt = true
		case "data":
			pcm = data[body : body+size]
		}

		// Chunk bodies are word-aligned.
		off = body + size
		if size%2 == 1 {
			off++
		}
	}

	if !haveFmt || sampleRate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("audio: decode wav: missing or invalid fmt chunk")
	}
	if pcm == nil {
		return nil, fmt.Errorf("audio: decode wav: missing data chunk")
	}

	samples := pcmToFloat32(pcm)
	// Drop a trailing partial frame rather than erroring.
	frames := len(samples) / channels
	return &Buffer{
		SampleRate: sampleRate,
		Channels:   deinterleave(samples[:frames*channels], channels),
	}, nil
}

// EncodeWAV serialises a [Buffer] as a minimal uncompressed WAV stream: a
// fixed 44-byte RIFF/WAVE/fmt/data header followed by interleaved 16-bit
// signed little-endian PCM.
func EncodeWAV(b *Buffer) []byte {
	pcm := float32ToPCM(interleave(b.Channels))
	return WrapPCM(pcm, b.SampleRate, b.NumChannels())
}

// WrapPCM prepends a WAV header to raw headerless 16-bit little-endian PCM.
// Speech-synthesis capabilities hand back exactly this kind of payload; the
// wrapped result is accepted by [DecodeWAV] and by host-platform players.
func WrapPCM(pcm []byte, sampleRate, channels int) []byte {
	if channels <= 0 {
		channels = 1
	}
	const bitsPerSample = 16
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	out := make([]byte, wavHeaderSize+len(pcm))
	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+len(pcm)))
	copy(out[8:12], "WAVE")

	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16)
	binary.LittleEndian.PutUint16(out[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(out[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:36], bitsPerSample)

	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(len(pcm)))
	copy(out[wavHeaderSize:], pcm)
	return out
}
