package audio

import (
	"fmt"

	"layeh.com/gopus"
)

// Browser capture widgets deliver learner takes as 48 kHz Opus packets at
// 20 ms frame size.
const (
	opusSampleRate  = 48000
	opusFrameSizeMs = 20
	// opusFrameSize is the number of samples per channel per 20 ms frame.
	opusFrameSize = opusSampleRate * opusFrameSizeMs / 1000 // 960
)

// OpusStream decodes a sequence of Opus packets from one capture stream.
// A single decoder instance must see the packets of one stream in order
// because the decoder carries state across consecutive frames. Not safe for
// concurrent use; create one per stream.
type OpusStream struct {
	dec      *gopus.Decoder
	channels int
}

// NewOpusStream creates a decoder for a capture stream with the given
// channel count (1 or 2).
func NewOpusStream(channels int) (*OpusStream, error) {
	if channels != 1 && channels != 2 {
		return nil, fmt.Errorf("audio: opus: unsupported channel count %d", channels)
	}
	dec, err := gopus.NewDecoder(opusSampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("audio: opus: create decoder: %w", err)
	}
	return &OpusStream{dec: dec, channels: channels}, nil
}

// Decode decodes one Opus packet into interleaved float32 samples.
func (o *OpusStream) Decode(packet []byte) ([]float32, error) {
	pcm, err := o.dec.Decode(packet, opusFrameSize, false)
	if err != nil {
		return nil, fmt.Errorf("audio: opus: decode packet: %w", err)
	}
	samples := make([]float32, len(pcm))
	for i, s := range pcm {
		samples[i] = float32(s) / 32768.0
	}
	return samples, nil
}

// DecodePackets decodes a complete recording delivered as ordered Opus
// packets into a [Buffer] at the Opus native rate. Undecodable packets abort
// the decode; a recording with holes is useless for pitch comparison.
func DecodePackets(packets [][]byte, channels int) (*Buffer, error) {
	stream, err := NewOpusStream(channels)
	if err != nil {
		return nil, err
	}

	var interleaved []float32
	for i, pkt := range packets {
		samples, err := stream.Decode(pkt)
		if err != nil {
			return nil, fmt.Errorf("audio: opus: packet %d: %w", i, err)
		}
		interleaved = append(interleaved, samples...)
	}

	return &Buffer{
		SampleRate: opusSampleRate,
		Channels:   deinterleave(interleaved, channels),
	}, nil
}
