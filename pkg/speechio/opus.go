package speechio

import (
	"encoding/binary"
	"fmt"

	"gopkg.in/hraban/opus.v2"
)

// maxOpusFrameSamples is the largest opus frame at 48 kHz mono (120 ms).
const maxOpusFrameSamples = 5760

// Decoder decodes mono opus packets to PCM16 little-endian bytes.
type Decoder struct {
	dec      *opus.Decoder
	frameBuf []int16
}

// NewDecoder creates a mono opus decoder for the given sample rate.
func NewDecoder(sampleRate int) (*Decoder, error) {
	dec, err := opus.NewDecoder(sampleRate, 1)
	if err != nil {
		return nil, fmt.Errorf("speechio: opus decoder: %w", err)
	}
	return &Decoder{
		dec:      dec,
		frameBuf: make([]int16, maxOpusFrameSamples),
	}, nil
}

// Decode decodes a single opus packet and returns PCM16 LE bytes.
func (d *Decoder) Decode(packet []byte) ([]byte, error) {
	n, err := d.dec.Decode(packet, d.frameBuf)
	if err != nil {
		return nil, fmt.Errorf("speechio: opus decode: %w", err)
	}

	out := make([]byte, n*2)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(d.frameBuf[i]))
	}
	return out, nil
}
