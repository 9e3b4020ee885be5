// Package opus wraps the gopus codec for the browser voice transport.
// Clients capture microphone audio at 48 kHz and ship 20 ms Opus packets
// over the voice WebSocket; the server decodes them to PCM before
// resampling down to the recognizer rate.
package opus

import (
	"fmt"

	"layeh.com/gopus"
)

// Browser capture uses 48 kHz mono Opus at 20 ms frame size.
const (
	DefaultSampleRate = 48000
	DefaultChannels   = 1
	frameSizeMs       = 20
)

// Decoder wraps a gopus Opus decoder for a single client stream. Each
// connection gets its own decoder to maintain decoder state correctly
// across consecutive packets. Not safe for concurrent use.
type Decoder struct {
	dec        *gopus.Decoder
	frameSize  int
	sampleRate int
	channels   int
}

// NewDecoder creates an Opus decoder for the given sample rate and channel
// count. Pass DefaultSampleRate and DefaultChannels for browser audio.
func NewDecoder(sampleRate, channels int) (*Decoder, error) {
	if sampleRate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("opus: invalid format %dHz/%dch", sampleRate, channels)
	}
	dec, err := gopus.NewDecoder(sampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("opus: create decoder: %w", err)
	}
	return &Decoder{
		dec:        dec,
		frameSize:  sampleRate * frameSizeMs / 1000,
		sampleRate: sampleRate,
		channels:   channels,
	}, nil
}

// Decode decodes an Opus packet into interleaved PCM int16 samples and
// returns the result as a byte slice (little-endian int16 pairs).
func (d *Decoder) Decode(packet []byte) ([]byte, error) {
	pcm, err := d.dec.Decode(packet, d.frameSize, false)
	if err != nil {
		return nil, fmt.Errorf("opus: decode: %w", err)
	}
	return int16sToBytes(pcm), nil
}

// SampleRate returns the decoder's output sample rate in Hz.
func (d *Decoder) SampleRate() int { return d.sampleRate }

// Channels returns the decoder's output channel count.
func (d *Decoder) Channels() int { return d.channels }

// Encoder wraps a gopus Opus encoder for an outbound audio stream.
// Not safe for concurrent use.
type Encoder struct {
	enc       *gopus.Encoder
	frameSize int
}

// NewEncoder creates an Opus encoder for the given sample rate and channel
// count, tuned for voice-quality audio.
func NewEncoder(sampleRate, channels int) (*Encoder, error) {
	if sampleRate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("opus: invalid format %dHz/%dch", sampleRate, channels)
	}
	enc, err := gopus.NewEncoder(sampleRate, channels, gopus.Audio)
	if err != nil {
		return nil, fmt.Errorf("opus: create encoder: %w", err)
	}
	return &Encoder{enc: enc, frameSize: sampleRate * frameSizeMs / 1000}, nil
}

// Encode encodes interleaved PCM int16 data (as little-endian bytes) into an
// Opus packet.
func (e *Encoder) Encode(pcmBytes []byte) ([]byte, error) {
	pcm := bytesToInt16s(pcmBytes)
	packet, err := e.enc.Encode(pcm, e.frameSize, len(pcmBytes))
	if err != nil {
		return nil, fmt.Errorf("opus: encode: %w", err)
	}
	return packet, nil
}

// int16sToBytes converts a slice of int16 PCM samples to little-endian bytes.
func int16sToBytes(pcm []int16) []byte {
	b := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		b[i*2] = byte(s)
		b[i*2+1] = byte(s >> 8)
	}
	return b
}

// bytesToInt16s converts little-endian bytes to a slice of int16 PCM samples.
func bytesToInt16s(b []byte) []int16 {
	pcm := make([]int16, len(b)/2)
	for i := range pcm {
		pcm[i] = int16(b[i*2]) | int16(b[i*2+1])<<8
	}
	return pcm
}
