// Package gomidi implements tactum.Backend over a real MIDI output port, so
// the instrument can drive an external MPE-style synth instead of the
// built-in one. Sends from the voice leader are decoupled from the port
// through a buffered channel: the input thread never blocks on the device,
// and messages are dropped rather than queued unboundedly when the device
// stalls.
package gomidi

import (
	"errors"
	"fmt"
	"strings"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"github.com/tactum/tactum"
)

type RTMIDIBackend struct {
	driver *rtmididrv.Driver
	out    drivers.Out
	send   func(midi.Message) error
	msgs   chan midi.Message
	done   chan struct{}
}

// NewBackend opens the rtmidi driver. There is not much to do if that fails,
// so a nil driver just means no devices will be found.
func NewBackend() *RTMIDIBackend {
	b := &RTMIDIBackend{msgs: make(chan midi.Message, 1024)}
	b.driver, _ = rtmididrv.New()
	return b
}

// OutputDevices iterates the names of the available MIDI outputs.
func (b *RTMIDIBackend) OutputDevices(yield func(name string) bool) {
	if b.driver == nil {
		return
	}
	outs, err := b.driver.Outs()
	if err != nil {
		return
	}
	for _, out := range outs {
		if !yield(out.String()) {
			return
		}
	}
}

// Open connects to the first output whose name starts with prefix (any
// output when prefix is empty) and starts the sender goroutine.
func (b *RTMIDIBackend) Open(prefix string) error {
	if b.driver == nil {
		return errors.New("no MIDI driver available")
	}
	outs, err := b.driver.Outs()
	if err != nil {
		return fmt.Errorf("listing MIDI outputs: %w", err)
	}
	var found drivers.Out
	for _, out := range outs {
		if prefix == "" || strings.HasPrefix(out.String(), prefix) {
			found = out
			break
		}
	}
	if found == nil {
		return fmt.Errorf("no MIDI output matching %q", prefix)
	}
	if err := found.Open(); err != nil {
		return fmt.Errorf("opening MIDI output %q: %w", found.String(), err)
	}
	send, err := midi.SendTo(found)
	if err != nil {
		found.Close()
		return fmt.Errorf("attaching to MIDI output %q: %w", found.String(), err)
	}
	b.out = found
	b.send = send
	b.done = make(chan struct{})
	go b.sender()
	return nil
}

func (b *RTMIDIBackend) sender() {
	defer close(b.done)
	for msg := range b.msgs {
		// a failed send is not actionable mid-performance; keep going, the
		// pipeline recovers on its own when the device comes back
		_ = b.send(msg)
	}
}

func (b *RTMIDIBackend) Close() {
	if b.out != nil {
		close(b.msgs)
		<-b.done
		b.out.Close()
		b.out = nil
	}
	if b.driver != nil {
		b.driver.Close()
	}
}

// enqueue is guaranteed non-blocking; messages are dropped when the port
// cannot keep up.
func (b *RTMIDIBackend) enqueue(msg midi.Message) {
	if b.out == nil {
		return
	}
	select {
	case b.msgs <- msg:
	default:
	}
}

func channel7(channel int) uint8 {
	if channel < 0 {
		return 0
	}
	if channel > 15 {
		return 15
	}
	return uint8(channel)
}

func (b *RTMIDIBackend) NoteOn(channel int, pitch, velocity byte) {
	if velocity == 0 {
		velocity = 1
	}
	b.enqueue(midi.NoteOn(channel7(channel), pitch&127, velocity&127))
}

func (b *RTMIDIBackend) NoteOff(channel int, pitch byte) {
	b.enqueue(midi.NoteOff(channel7(channel), pitch&127))
}

func (b *RTMIDIBackend) PitchBend(channel int, value uint16) {
	if value > 16383 {
		value = 16383
	}
	b.enqueue(midi.Pitchbend(channel7(channel), int16(int(value)-tactum.PitchBendCenter)))
}

func (b *RTMIDIBackend) ChannelPressure(channel int, value byte) {
	b.enqueue(midi.AfterTouch(channel7(channel), value&127))
}

func (b *RTMIDIBackend) ControlChange(channel int, controller, value byte) {
	b.enqueue(midi.ControlChange(channel7(channel), controller&127, value&127))
}

func (b *RTMIDIBackend) AllNotesOff() {
	for ch := 0; ch < 16; ch++ {
		b.enqueue(midi.ControlChange(uint8(ch), 123, 0))
	}
}
