package synth

import (
	"github.com/tactum/tactum"
	"github.com/tactum/tactum/engine"
)

// Player runs inside the audio callback: it drains the broker's player
// channel at the start of every block, applies the messages to the synth and
// renders. All sends toward the rest of the process are non-blocking, so the
// audio thread can never deadlock.
type Player struct {
	broker *engine.Broker
	synth  *Synth
}

func NewPlayer(broker *engine.Broker, synth *Synth) *Player {
	return &Player{broker: broker, synth: synth}
}

// Process fills one audio block.
func (p *Player) Process(buf tactum.AudioBuffer) {
	p.processMessages()
	p.synth.Render(buf)
}

func (p *Player) processMessages() {
loop:
	for {
		select {
		case msg := <-p.broker.ToPlayer:
			switch m := msg.(type) {
			case engine.NoteOnMsg:
				p.synth.NoteOn(m.Channel, m.Pitch, m.Velocity)
			case engine.NoteOffMsg:
				p.synth.NoteOff(m.Channel, m.Pitch)
			case engine.PitchBendMsg:
				p.synth.PitchBend(m.Channel, m.Value)
			case engine.ChannelPressureMsg:
				p.synth.ChannelPressure(m.Channel, m.Value)
			case engine.ControlChangeMsg:
				p.synth.ControlChange(m.Channel, m.Controller, m.Value)
			case engine.AllNotesOffMsg:
				p.synth.AllNotesOff()
			default:
				// ignore unknown messages
			}
		default:
			break loop
		}
	}
}
