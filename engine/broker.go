package engine

import (
	"time"

	"github.com/tactum/tactum"
)

type (
	// Broker is the centralized message hub between the engine (running on
	// the input thread), the audio player (running on the audio callback
	// thread) and whatever presentation layer is attached. Communication is
	// many-to-one, one channel per recipient, and every send from a
	// latency-critical thread is non-blocking.
	//
	// For closing goroutines, the broker has a CloseXXX/FinishedXXX channel
	// pair per goroutine: CloseXXX has capacity 1 so requesting closure never
	// blocks, and FinishedXXX is closed (never sent to) when the goroutine
	// has cleaned up.
	Broker struct {
		ToPlayer chan any // PlayerMsg values; drained inside the audio callback
		ToModel  chan MsgToModel

		CloseTransport    chan struct{}
		FinishedTransport chan struct{}
	}

	// MsgToModel carries a read-only snapshot of the engine state for a
	// presentation layer. The snapshot is a copy; nothing a reader does can
	// feed back into the pipeline. Infrequent payloads (alerts) ride in
	// Data; the common case leaves it nil.
	MsgToModel struct {
		HasState bool
		State    tactum.HarmonicState
		Contacts int
		Data     any
	}

	// Alert is a notification for the operator, e.g. a backend that refused
	// to open. The pipeline itself never treats these as errors; it keeps
	// playing.
	Alert struct {
		Name     string
		Message  string
		Priority AlertPriority
	}

	AlertPriority int
)

const (
	None AlertPriority = iota
	Info
	Warning
	Error
)

// Messages understood by the synth player, mirroring the Backend interface
// one to one.
type (
	NoteOnMsg struct {
		Channel  int
		Pitch    byte
		Velocity byte
	}
	NoteOffMsg struct {
		Channel int
		Pitch   byte
	}
	PitchBendMsg struct {
		Channel int
		Value   uint16
	}
	ChannelPressureMsg struct {
		Channel int
		Value   byte
	}
	ControlChangeMsg struct {
		Channel    int
		Controller byte
		Value      byte
	}
	AllNotesOffMsg struct{}
)

func NewBroker() *Broker {
	return &Broker{
		ToPlayer:          make(chan any, 1024),
		ToModel:           make(chan MsgToModel, 1024),
		CloseTransport:    make(chan struct{}, 1),
		FinishedTransport: make(chan struct{}),
	}
}

// TrySend sends a value to a channel if it is not full. It is guaranteed to
// be non-blocking; returns false if the value was dropped.
func TrySend[T any](c chan<- T, v T) bool {
	select {
	case c <- v:
	default:
		return false
	}
	return true
}

// TimeoutReceive blocks until a value is received from the channel or the
// timeout elapses; ok is false on timeout or when the channel is closed.
func TimeoutReceive[T any](c <-chan T, t time.Duration) (v T, ok bool) {
	select {
	case v, ok = <-c:
		return v, ok
	case <-time.After(t):
		return v, false
	}
}

// BrokerBackend is a tactum.Backend that forwards every message to the
// broker's player channel with non-blocking sends. If the player is not
// draining (no audio device), messages are dropped and the engine keeps
// running, per the backend-unavailable policy.
type BrokerBackend struct {
	broker *Broker
}

func NewBrokerBackend(broker *Broker) *BrokerBackend {
	return &BrokerBackend{broker: broker}
}

func (b *BrokerBackend) NoteOn(channel int, pitch, velocity byte) {
	TrySend(b.broker.ToPlayer, any(NoteOnMsg{Channel: channel, Pitch: pitch, Velocity: velocity}))
}

func (b *BrokerBackend) NoteOff(channel int, pitch byte) {
	TrySend(b.broker.ToPlayer, any(NoteOffMsg{Channel: channel, Pitch: pitch}))
}

func (b *BrokerBackend) PitchBend(channel int, value uint16) {
	TrySend(b.broker.ToPlayer, any(PitchBendMsg{Channel: channel, Value: value}))
}

func (b *BrokerBackend) ChannelPressure(channel int, value byte) {
	TrySend(b.broker.ToPlayer, any(ChannelPressureMsg{Channel: channel, Value: value}))
}

func (b *BrokerBackend) ControlChange(channel int, controller, value byte) {
	TrySend(b.broker.ToPlayer, any(ControlChangeMsg{Channel: channel, Controller: controller, Value: value}))
}

func (b *BrokerBackend) AllNotesOff() {
	TrySend(b.broker.ToPlayer, any(AllNotesOffMsg{}))
}
