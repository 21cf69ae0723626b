// Package synth is the built-in audio rendering backend: an eight-channel
// wavetable synthesizer matching the instrument's outbound message set. All
// of its state is owned by the audio callback goroutine; parameter changes
// arrive as broker messages drained at the start of each block, so rendering
// never locks, blocks or allocates.
package synth

import (
	"github.com/chewxy/math32"
	"github.com/tactum/tactum"
	"github.com/viterin/vek/vek32"
)

const (
	// NumChannels is the number of output channels the synth listens on;
	// channel 0 carries only global controls.
	NumChannels = 8

	maxGain        = 0.2
	releaseEpsilon = 0.0005
	bendSemitones  = 2 // full 14-bit bend range, +-2 semitones

	cutoffMin = 500  // Hz, brightness 0
	cutoffMax = 8000 // Hz, brightness 127
)

type envStage int

const (
	envIdle envStage = iota
	envAttack
	envDecay
	envSustain
	envRelease
)

type (
	// Synth renders the currently sounding voices. One voice per channel;
	// the harmonic layering upstream guarantees one note per channel, so
	// voice stealing never happens here.
	Synth struct {
		sampleRate float32
		tables     *wavetables
		waveform   Waveform
		channels   [NumChannels]channelState
		voices     [NumChannels]voice
		expression float32 // global intensity, 0..1

		scratch []float32
		mix     []float32
	}

	channelState struct {
		bendRatio  float32
		aftertouch float32
		brightness float32

		attack  float32 // seconds
		decay   float32
		sustain float32 // level 0..1
		release float32
	}

	voice struct {
		table    []float32
		note     int
		freq     float32
		phase    float32
		velocity float32
		stage    envStage
		env      float32
		filt     float32
		cutoff   float32
		active   bool
	}
)

func New(sampleRate int) *Synth {
	s := &Synth{
		sampleRate: float32(sampleRate),
		tables:     generateTables(float32(sampleRate)),
		waveform:   WaveSine,
		expression: 1,
	}
	for i := range s.channels {
		s.channels[i] = channelState{
			bendRatio: 1,
			attack:    0.005,
			decay:     0.05,
			sustain:   0.8,
			release:   0.1,
		}
	}
	for i := range s.voices {
		s.voices[i].note = -1
		s.voices[i].cutoff = cutoffMax
	}
	return s
}

// SetWaveform switches the active wavetable set for subsequently triggered
// notes.
func (s *Synth) SetWaveform(w Waveform) {
	if w < 0 || w >= numWaveforms {
		return
	}
	s.waveform = w
}

func (s *Synth) NoteOn(channel int, pitch, velocity byte) {
	if channel < 0 || channel >= NumChannels {
		return
	}
	v := &s.voices[channel]
	v.table = s.tables[s.waveform][pitch&127]
	v.note = int(pitch)
	v.freq = noteHz(int(pitch))
	v.phase = 0
	v.velocity = float32(velocity) / 127
	v.stage = envAttack
	v.active = true
}

func (s *Synth) NoteOff(channel int, pitch byte) {
	if channel < 0 || channel >= NumChannels {
		return
	}
	v := &s.voices[channel]
	if v.active && v.note == int(pitch) {
		v.stage = envRelease
	}
}

func (s *Synth) PitchBend(channel int, value uint16) {
	if channel < 0 || channel >= NumChannels {
		return
	}
	if value > 16383 {
		value = 16383
	}
	semis := (float32(value) - tactum.PitchBendCenter) / tactum.PitchBendCenter * bendSemitones
	s.channels[channel].bendRatio = math32.Pow(2, semis/12)
}

func (s *Synth) ChannelPressure(channel int, value byte) {
	if channel < 0 || channel >= NumChannels {
		return
	}
	s.channels[channel].aftertouch = float32(value&127) / 127
}

func (s *Synth) ControlChange(channel int, controller, value byte) {
	switch {
	case controller == tactum.CCBrightness && channel >= 0 && channel < NumChannels:
		s.channels[channel].brightness = float32(value&127) / 127
	case controller == tactum.CCIntensity && channel == 0:
		s.expression = float32(value&127) / 127
	}
}

func (s *Synth) AllNotesOff() {
	for i := range s.voices {
		if s.voices[i].active {
			s.voices[i].stage = envRelease
		}
	}
}

// Render adds one block of audio into buf, overwriting it. Called from the
// audio callback only.
func (s *Synth) Render(buf tactum.AudioBuffer) {
	n := len(buf)
	if n == 0 {
		return
	}
	if cap(s.mix) < n {
		s.mix = make([]float32, n)
		s.scratch = make([]float32, n)
	}
	mix := s.mix[:n]
	vek32.Zeros_Into(mix, n)
	for i := range s.voices {
		if !s.voices[i].active {
			continue
		}
		s.renderVoice(i, s.scratch[:n])
		vek32.Add_Inplace(mix, s.scratch[:n])
	}
	vek32.MulNumber_Inplace(mix, maxGain*(0.2+0.8*s.expression))
	for i := range buf {
		buf[i][0] = mix[i]
		buf[i][1] = mix[i]
	}
}

func (s *Synth) renderVoice(i int, out []float32) {
	v := &s.voices[i]
	c := &s.channels[i]
	step := v.freq * c.bendRatio / s.sampleRate * tableSize

	attackRate := rate(c.attack, s.sampleRate)
	decayRate := rate(c.decay, s.sampleRate)
	releaseRate := rate(c.release, s.sampleRate)

	targetCutoff := cutoffMin + c.brightness*(cutoffMax-cutoffMin)
	amp := v.velocity * (0.6 + 0.4*c.aftertouch)

	for j := range out {
		switch v.stage {
		case envAttack:
			v.env += attackRate
			if v.env >= 1 {
				v.env = 1
				v.stage = envDecay
			}
		case envDecay:
			v.env -= decayRate
			if v.env <= c.sustain {
				v.env = c.sustain
				v.stage = envSustain
			}
		case envSustain:
			v.env = c.sustain
		case envRelease:
			v.env -= releaseRate
			if v.env <= releaseEpsilon {
				v.env = 0
				v.stage = envIdle
				v.active = false
				for k := j; k < len(out); k++ {
					out[k] = 0
				}
				return
			}
		}

		k := int(v.phase)
		next := k + 1
		if next >= tableSize {
			next = 0
		}
		frac := v.phase - float32(k)
		sample := v.table[k] + (v.table[next]-v.table[k])*frac

		// one-pole lowpass, cutoff smoothed toward the brightness target
		v.cutoff += (targetCutoff - v.cutoff) * 0.001
		alpha := 1 - math32.Exp(-twoPi*v.cutoff/s.sampleRate)
		v.filt += (sample - v.filt) * alpha

		out[j] = v.filt * v.env * amp

		v.phase += step
		for v.phase >= tableSize {
			v.phase -= tableSize
		}
	}
}

// rate converts an envelope segment length to a per-sample level increment.
func rate(seconds, sampleRate float32) float32 {
	if seconds <= 0 {
		return 1
	}
	return 1 / (seconds * sampleRate)
}
