package tactum

// Backend is the outbound surface of the instrument: a small fixed message
// set, addressed by output channel. Implementations must be non-blocking and
// must not allocate in steady state; the voice leader calls them on the input
// thread and can never wait. A nil or absent sink is modelled by NullBackend,
// so the pipeline keeps computing state and output resumes the moment a real
// sink attaches.
type Backend interface {
	NoteOn(channel int, pitch, velocity byte)
	NoteOff(channel int, pitch byte)
	PitchBend(channel int, value uint16) // 0..16383, center 8192
	ChannelPressure(channel int, value byte)
	ControlChange(channel int, controller, value byte)
	AllNotesOff()
}

// NullBackend discards every message.
type NullBackend struct{}

func (NullBackend) NoteOn(channel int, pitch, velocity byte)            {}
func (NullBackend) NoteOff(channel int, pitch byte)                     {}
func (NullBackend) PitchBend(channel int, value uint16)                 {}
func (NullBackend) ChannelPressure(channel int, value byte)             {}
func (NullBackend) ControlChange(channel int, controller, value byte)   {}
func (NullBackend) AllNotesOff()                                        {}

const (
	// PitchBendCenter is the neutral 14-bit pitch bend value.
	PitchBendCenter = 8192

	// CCBrightness is the per-voice brightness controller (MIDI CC 74).
	CCBrightness = 74

	// CCIntensity is the combined-intensity controller, sent on the reserved
	// global channel only (MIDI CC 11, expression).
	CCIntensity = 11
)

func clampPitch(p int) byte {
	if p < 0 {
		return 0
	}
	if p > 127 {
		return 127
	}
	return byte(p)
}
