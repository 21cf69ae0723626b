package synth

import (
	"github.com/chewxy/math32"
	"github.com/viterin/vek/vek32"
)

const (
	tableSize = 2048
	numNotes  = 128
	twoPi     = 2 * math32.Pi
)

// Waveform selects one of the built-in band-limited wavetable sets.
type Waveform int

const (
	WaveSine Waveform = iota
	WaveTriangle
	WaveSaw
	WaveSquare
	numWaveforms
)

// wavetables holds one table per waveform per MIDI note, with harmonics
// capped below Nyquist for that note's frequency so high notes do not alias.
type wavetables [numWaveforms][numNotes][]float32

func noteHz(note int) float32 {
	if note < 0 {
		note = 0
	} else if note > 127 {
		note = 127
	}
	return 440 * math32.Pow(2, float32(note-69)/12)
}

func generateTables(sampleRate float32) *wavetables {
	t := &wavetables{}
	nyquist := sampleRate / 2
	tmp := make([]float32, tableSize)
	for w := Waveform(0); w < numWaveforms; w++ {
		for note := 0; note < numNotes; note++ {
			buf := make([]float32, tableSize)
			maxHarm := int(math32.Floor(nyquist / noteHz(note)))
			if maxHarm < 1 {
				maxHarm = 1
			}
			switch w {
			case WaveSine:
				for i := range buf {
					buf[i] = math32.Sin(twoPi * float32(i) / tableSize)
				}
			case WaveSaw:
				for n := 1; n <= maxHarm; n++ {
					amp := 1 / float32(n)
					for i := range buf {
						buf[i] += amp * math32.Sin(twoPi*float32(i)/tableSize*float32(n))
					}
				}
			case WaveSquare:
				for n := 1; n <= maxHarm; n += 2 {
					amp := 1 / float32(n)
					for i := range buf {
						buf[i] += amp * math32.Sin(twoPi*float32(i)/tableSize*float32(n))
					}
				}
			case WaveTriangle:
				for n := 1; n <= maxHarm; n += 2 {
					amp := 1 / float32(n*n)
					if ((n-1)/2)%2 != 0 {
						amp = -amp
					}
					for i := range buf {
						buf[i] += amp * math32.Sin(twoPi*float32(i)/tableSize*float32(n))
					}
				}
			}
			vek32.Abs_Into(tmp, buf)
			if maxv := vek32.Max(tmp); maxv > 1e-6 {
				vek32.DivNumber_Inplace(buf, maxv)
			}
			t[w][note] = buf
		}
	}
	return t
}
