package tactum

import "io"

// AudioBuffer is a buffer of stereo audio samples, in the range -1 .. 1.
type AudioBuffer [][2]float32

// AudioContext is the audio output device. Play starts pulling audio through
// the callback on the device's own thread until the returned closer is
// closed.
type AudioContext interface {
	Play(callBack func(buffer AudioBuffer) error) io.Closer
	Close() error
}

// Fill overwrites the buffer with silence.
func (buf AudioBuffer) Fill() {
	for i := range buf {
		buf[i] = [2]float32{}
	}
}
