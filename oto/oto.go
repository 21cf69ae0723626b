// Package oto is the audio output adapter over ebitengine/oto. The oto
// player pulls data through an io.Reader; the reader calls back into the
// synth player to render each block, so rendering happens on oto's audio
// goroutine.
package oto

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/ebitengine/oto/v3"
	"github.com/tactum/tactum"
)

const (
	SampleRate = 44100

	// render chunk, in stereo frames; small enough to keep gesture-to-sound
	// latency low
	blockFrames = 256
)

type OtoContext struct {
	context *oto.Context
}

func NewContext() (*OtoContext, error) {
	op := &oto.NewContextOptions{
		SampleRate:   SampleRate,
		ChannelCount: 2,
		Format:       oto.FormatFloat32LE,
	}
	context, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("cannot create oto context: %w", err)
	}
	<-ready
	return &OtoContext{context: context}, nil
}

// Close suspends the context; oto contexts cannot be truly closed.
func (c *OtoContext) Close() error {
	return c.context.Suspend()
}

// Play starts pulling audio through the callback until the returned closer
// is closed. The callback gets a scratch buffer to fill completely.
func (c *OtoContext) Play(callBack func(buf tactum.AudioBuffer) error) io.Closer {
	reader := &otoReader{
		callBack: callBack,
		buf:      make(tactum.AudioBuffer, blockFrames),
		bytes:    make([]byte, 0, blockFrames*8),
	}
	player := c.context.NewPlayer(reader)
	player.Play()
	return player
}

type otoReader struct {
	callBack func(buf tactum.AudioBuffer) error
	buf      tactum.AudioBuffer
	bytes    []byte // encoded samples not yet handed to oto
	err      error
}

func (r *otoReader) Read(p []byte) (int, error) {
	total := 0
	for len(p) > 0 {
		if len(r.bytes) > 0 {
			n := copy(p, r.bytes)
			r.bytes = r.bytes[n:]
			p = p[n:]
			total += n
			continue
		}
		if r.err != nil {
			return total, r.err
		}
		if err := r.callBack(r.buf); err != nil {
			// report the error only after already rendered audio is out
			r.err = err
			continue
		}
		r.bytes = floatBufferToBytesLE(r.buf, r.bytes[:0])
	}
	return total, nil
}

// floatBufferToBytesLE appends the stereo float block to to as 32-bit
// little-endian floats, the format oto was opened with. The backing array of
// to is reused between blocks.
func floatBufferToBytesLE(buf tactum.AudioBuffer, to []byte) []byte {
	for _, frame := range buf {
		to = binary.LittleEndian.AppendUint32(to, math.Float32bits(frame[0]))
		to = binary.LittleEndian.AppendUint32(to, math.Float32bits(frame[1]))
	}
	return to
}
