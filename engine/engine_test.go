package engine_test

import (
	"testing"
	"time"

	"github.com/tactum/tactum"
	"github.com/tactum/tactum/engine"
)

type message struct {
	kind       string
	channel    int
	pitch      byte
	velocity   byte
	controller byte
	value      int
}

// recorder captures every backend message in emission order.
type recorder struct {
	msgs []message
}

func (r *recorder) NoteOn(channel int, pitch, velocity byte) {
	r.msgs = append(r.msgs, message{kind: "on", channel: channel, pitch: pitch, velocity: velocity})
}

func (r *recorder) NoteOff(channel int, pitch byte) {
	r.msgs = append(r.msgs, message{kind: "off", channel: channel, pitch: pitch})
}

func (r *recorder) PitchBend(channel int, value uint16) {
	r.msgs = append(r.msgs, message{kind: "bend", channel: channel, value: int(value)})
}

func (r *recorder) ChannelPressure(channel int, value byte) {
	r.msgs = append(r.msgs, message{kind: "pressure", channel: channel, value: int(value)})
}

func (r *recorder) ControlChange(channel int, controller, value byte) {
	r.msgs = append(r.msgs, message{kind: "cc", channel: channel, controller: controller, value: int(value)})
}

func (r *recorder) AllNotesOff() {
	r.msgs = append(r.msgs, message{kind: "alloff"})
}

func (r *recorder) clear() { r.msgs = r.msgs[:0] }

func (r *recorder) notes() []message {
	var out []message
	for _, m := range r.msgs {
		if m.kind == "on" || m.kind == "off" {
			out = append(out, m)
		}
	}
	return out
}

func (r *recorder) ons() []message {
	var out []message
	for _, m := range r.msgs {
		if m.kind == "on" {
			out = append(out, m)
		}
	}
	return out
}

func (r *recorder) offs() []message {
	var out []message
	for _, m := range r.msgs {
		if m.kind == "off" {
			out = append(out, m)
		}
	}
	return out
}

// harness scripts touch samples against an engine with an explicit clock,
// maintaining the live contact set the way a transport would.
type harness struct {
	t    *testing.T
	eng  *engine.Engine
	rec  *recorder
	p    tactum.Params
	now  time.Duration
	live []engine.Contact
}

func newHarness(t *testing.T) *harness {
	h := &harness{t: t, rec: &recorder{}, p: tactum.DefaultParams()}
	h.eng = engine.NewEngine(&h.p, h.rec, nil)
	return h
}

func (h *harness) step(d time.Duration) { h.now += d }

func (h *harness) send(began map[int64]bool, ended []int64) {
	var smp engine.Sample
	smp.Time = h.now
	for i, c := range h.live {
		if i >= engine.MaxContacts {
			break
		}
		smp.Contacts[i] = c
		smp.NumContacts++
		if began[c.ID] {
			smp.Began |= 1 << uint(i)
		}
	}
	for _, id := range ended {
		smp.Ended[smp.NumEnded] = id
		smp.NumEnded++
	}
	h.eng.Process(&smp)
}

// press lands contacts, all beginning within this one sample.
func (h *harness) press(contacts ...engine.Contact) {
	began := make(map[int64]bool)
	for _, c := range contacts {
		if c.Pressure == 0 {
			c.Pressure = 0.5
		}
		if c.Size == 0 {
			c.Size = 0.5
		}
		h.live = append(h.live, c)
		began[c.ID] = true
	}
	h.send(began, nil)
}

// move repositions one live contact.
func (h *harness) move(id int64, x, y float32) {
	for i := range h.live {
		if h.live[i].ID == id {
			h.live[i].X, h.live[i].Y = x, y
		}
	}
	h.send(nil, nil)
}

// lift removes contacts, producing a lift-only sample.
func (h *harness) lift(ids ...int64) {
	for _, id := range ids {
		for i := range h.live {
			if h.live[i].ID == id {
				h.live = append(h.live[:i], h.live[i+1:]...)
				break
			}
		}
	}
	h.send(nil, ids)
}

func (h *harness) flush() { h.eng.Flush(h.now) }

// checkChannels enforces the channel plan: notes and per-voice expression
// never touch the reserved global channel, the intensity control never
// leaves it.
func (h *harness) checkChannels() {
	h.t.Helper()
	for _, m := range h.rec.msgs {
		switch {
		case m.kind == "cc" && m.controller == tactum.CCIntensity:
			if m.channel != 0 {
				h.t.Fatalf("intensity on channel %d, expected 0", m.channel)
			}
		case m.kind == "on" || m.kind == "off" || m.kind == "bend" || m.kind == "pressure" || m.kind == "cc":
			if m.channel < 1 || m.channel > engine.MaxSlots {
				h.t.Fatalf("%s message on channel %d", m.kind, m.channel)
			}
		}
	}
}

func TestEngineInstantSound(t *testing.T) {
	h := newHarness(t)
	h.press(engine.Contact{ID: 1, X: h.p.RefX, Y: 1140})
	ons := h.rec.ons()
	if len(ons) != 1 {
		t.Fatalf("got %d note-ons, expected 1", len(ons))
	}
	// reference angle, single contact: sector 0 in the solo register,
	// sounding on the very first sample
	if ons[0].channel != 1 || ons[0].pitch != byte(h.p.SoloOctave) {
		t.Fatalf("got note-on %+v, expected pitch %d on channel 1", ons[0], h.p.SoloOctave)
	}
	h.checkChannels()
}

func TestEngineImpactBoostsVelocity(t *testing.T) {
	h := newHarness(t)
	h.press(engine.Contact{ID: 1, X: h.p.RefX, Y: 1140, Size: 0.3})
	ons := h.rec.ons()
	if len(ons) != 1 || ons[0].velocity != 64 {
		t.Fatalf("got %v, expected one note-on at velocity 64", ons)
	}
	h.rec.clear()

	// the patch flattens and the touch skids inside the impact window:
	// the impact fires, but detection needs a post-begin sample, so the
	// note is already sounding and must not retrigger
	h.step(10 * time.Millisecond)
	h.live[0].Size = 0.6
	h.move(1, h.p.RefX, 1120)
	if notes := h.rec.notes(); len(notes) != 0 {
		t.Fatalf("impact sample emitted notes %v", notes)
	}

	// a fast throw into the next sector re-pitches the same contact; the
	// note-on carries the boosted velocity
	h.step(10 * time.Millisecond)
	h.move(1, 1513, 1120)
	notes := h.rec.notes()
	if len(notes) != 2 || notes[0].kind != "off" || notes[1].kind != "on" {
		t.Fatalf("got %v, expected off then on after the throw", notes)
	}
	if want := 64 + h.p.ImpactBoost; int(notes[1].velocity) != want {
		t.Fatalf("got velocity %d after impact, expected %d", notes[1].velocity, want)
	}
	h.checkChannels()
}

func TestEngineLayerMonotonicity(t *testing.T) {
	h := newHarness(t)
	// all contacts on the vertical axis keep the centroid angle at zero
	h.press(engine.Contact{ID: 1, X: 540, Y: 800})
	h.step(20 * time.Millisecond)
	h.press(engine.Contact{ID: 2, X: 540, Y: 1000})
	h.step(20 * time.Millisecond)
	h.press(engine.Contact{ID: 3, X: 540, Y: 1200})
	h.step(20 * time.Millisecond)
	h.press(engine.Contact{ID: 4, X: 540, Y: 600})

	root := byte(h.p.SoloOctave) // solo latched at the single-contact landing
	expected := []message{
		{kind: "on", channel: 1, pitch: root},
		{kind: "on", channel: 2, pitch: root + 7},
		{kind: "on", channel: 3, pitch: root + 4},  // fan
		{kind: "on", channel: 4, pitch: root + 10}, // wide
	}
	ons := h.rec.ons()
	if len(ons) != len(expected) {
		t.Fatalf("got %d note-ons %v, expected %d", len(ons), ons, len(expected))
	}
	for i, e := range expected {
		if ons[i].channel != e.channel || ons[i].pitch != e.pitch {
			t.Fatalf("note-on %d: got ch %d pitch %d, expected ch %d pitch %d",
				i, ons[i].channel, ons[i].pitch, e.channel, e.pitch)
		}
	}
	// adding layers never re-sounded an existing voice
	if offs := h.rec.offs(); len(offs) != 0 {
		t.Fatalf("got note-offs %v while only adding contacts", offs)
	}
	h.checkChannels()
}

func TestEngineRemovalKeepsRootPitch(t *testing.T) {
	h := newHarness(t)
	h.press(engine.Contact{ID: 1, X: 540, Y: 800})
	h.step(20 * time.Millisecond)
	h.press(engine.Contact{ID: 2, X: 540, Y: 1000})
	h.step(20 * time.Millisecond)
	h.rec.clear()

	// removing the fifth leaves the root untouched on its own channel
	h.lift(2)
	h.step(15 * time.Millisecond)
	h.flush()
	if notes := h.rec.notes(); len(notes) != 1 || notes[0].kind != "off" || notes[0].channel != 2 {
		t.Fatalf("got %v, expected only a note-off on channel 2", h.rec.notes())
	}

	// removing the root holder instead: the survivor compacts to role 0 and
	// takes over the same root pitch
	h.step(20 * time.Millisecond)
	h.press(engine.Contact{ID: 3, X: 540, Y: 1000})
	h.rec.clear()
	h.lift(1)
	h.step(15 * time.Millisecond)
	h.flush()
	root := byte(h.p.SoloOctave)
	var sawRoot bool
	for _, m := range h.rec.ons() {
		if m.pitch == root && m.channel == 2 {
			sawRoot = true
		}
	}
	if !sawRoot {
		t.Fatalf("got %v, expected the surviving contact to take over pitch %d", h.rec.notes(), root)
	}
	h.checkChannels()
}

func TestEngineAtomicChordLanding(t *testing.T) {
	h := newHarness(t)
	h.press(
		engine.Contact{ID: 1, X: 440, Y: 900},
		engine.Contact{ID: 2, X: 640, Y: 900},
		engine.Contact{ID: 3, X: 440, Y: 1100},
		engine.Contact{ID: 4, X: 640, Y: 1100},
	)
	// one four-note chord, no intermediate subset ever sounded
	ons := h.rec.ons()
	if len(ons) != 4 {
		t.Fatalf("got %d note-ons %v, expected 4", len(ons), ons)
	}
	if offs := h.rec.offs(); len(offs) != 0 {
		t.Fatalf("got unexpected note-offs %v", offs)
	}
	expected := []byte{60, 67, 64, 70} // fan triad, wide seventh, chord register
	for i, e := range expected {
		if ons[i].pitch != e || ons[i].channel != i+1 {
			t.Fatalf("note-on %d: got ch %d pitch %d, expected ch %d pitch %d",
				i, ons[i].channel, ons[i].pitch, i+1, e)
		}
	}
	h.checkChannels()
}

func TestEngineCoalescedRelease(t *testing.T) {
	h := newHarness(t)
	h.press(
		engine.Contact{ID: 1, X: 440, Y: 900},
		engine.Contact{ID: 2, X: 640, Y: 900},
		engine.Contact{ID: 3, X: 440, Y: 1100},
		engine.Contact{ID: 4, X: 640, Y: 1100},
	)
	h.step(100 * time.Millisecond)
	h.rec.clear()

	// two lift notifications inside the coalescing window: nothing may be
	// emitted until the window closes, then exactly one transition
	h.lift(1, 2)
	h.step(5 * time.Millisecond)
	h.lift(3, 4)
	if len(h.rec.msgs) != 0 {
		t.Fatalf("got %v during the coalescing window, expected silence", h.rec.msgs)
	}
	h.step(15 * time.Millisecond)
	h.flush()
	if ons := h.rec.ons(); len(ons) != 0 {
		t.Fatalf("got ghost note-ons %v", ons)
	}
	if offs := h.rec.offs(); len(offs) != 4 {
		t.Fatalf("got %d note-offs %v, expected 4", len(h.rec.offs()), h.rec.offs())
	}
	h.checkChannels()
}

func TestEnginePendingReleaseCancelledByNewContact(t *testing.T) {
	h := newHarness(t)
	h.press(engine.Contact{ID: 1, X: 540, Y: 800})
	h.step(20 * time.Millisecond)
	h.press(engine.Contact{ID: 2, X: 540, Y: 1000})
	h.step(20 * time.Millisecond)
	h.rec.clear()

	h.lift(2)
	h.step(5 * time.Millisecond)
	h.press(engine.Contact{ID: 3, X: 540, Y: 1000})
	// the pending release never applied on its own; the begin sample's
	// contact set is authoritative, so channel 2 hands over atomically
	notes := h.rec.notes()
	if len(notes) != 2 || notes[0].kind != "off" || notes[0].channel != 2 ||
		notes[1].kind != "on" || notes[1].channel != 2 {
		t.Fatalf("got %v, expected off then on for channel 2", notes)
	}
	h.checkChannels()
}

func TestEngineRearticulation(t *testing.T) {
	h := newHarness(t)
	chord := []engine.Contact{
		{ID: 1, X: 440, Y: 900},
		{ID: 2, X: 640, Y: 900},
		{ID: 3, X: 440, Y: 1100},
		{ID: 4, X: 640, Y: 1100},
	}
	h.press(chord...)
	first := h.rec.ons()
	h.step(100 * time.Millisecond)
	h.lift(1, 2, 3, 4)
	h.step(15 * time.Millisecond)
	h.flush()
	h.rec.clear()

	// re-touch inside the rhythmic window, fresh contact identifiers: the
	// stored state replays and the very same pitches re-trigger
	h.step(80 * time.Millisecond)
	retouch := make([]engine.Contact, len(chord))
	for i, c := range chord {
		retouch[i] = engine.Contact{ID: c.ID + 10, X: c.X + 5, Y: c.Y + 5}
	}
	h.press(retouch...)
	second := h.rec.ons()
	if len(second) != len(first) {
		t.Fatalf("got %d note-ons %v, expected %d", len(second), second, len(first))
	}
	for i := range first {
		if second[i].pitch != first[i].pitch || second[i].channel != first[i].channel {
			t.Fatalf("note-on %d: got ch %d pitch %d, expected ch %d pitch %d",
				i, second[i].channel, second[i].pitch, first[i].channel, first[i].pitch)
		}
	}
	h.checkChannels()
}

func TestEngineRearticulationExpiresIntoFreshClassification(t *testing.T) {
	h := newHarness(t)
	h.press(engine.Contact{ID: 1, X: 540, Y: 800})
	h.step(50 * time.Millisecond)
	h.lift(1)
	h.step(15 * time.Millisecond)
	h.flush()
	h.rec.clear()

	// far too late: a new landing, not a replay, and in the chord register
	// on the opposite side of the surface
	h.step(500 * time.Millisecond)
	h.press(
		engine.Contact{ID: 2, X: 540, Y: 1000},
		engine.Contact{ID: 3, X: 540, Y: 1200},
	)
	ons := h.rec.ons()
	if len(ons) != 2 {
		t.Fatalf("got %d note-ons, expected 2", len(ons))
	}
	if ons[0].pitch != byte(h.p.ChordOctave) {
		t.Fatalf("got root %d, expected a fresh chord-register landing at %d", ons[0].pitch, h.p.ChordOctave)
	}
	h.checkChannels()
}

func TestEngineInstabilityCollapse(t *testing.T) {
	h := newHarness(t)
	h.press(
		engine.Contact{ID: 1, X: 440, Y: 900},
		engine.Contact{ID: 2, X: 640, Y: 900},
		engine.Contact{ID: 3, X: 440, Y: 1100},
		engine.Contact{ID: 4, X: 640, Y: 1100},
	)
	h.step(50 * time.Millisecond)
	h.rec.clear()

	// pinch every contact towards the centroid: spread collapses below the
	// minimum, instability saturates, the upper roles re-resolve diminished
	for i := range h.live {
		h.live[i].X = 540 + (h.live[i].X-540)/10
		h.live[i].Y = 1000 + (h.live[i].Y-1000)/10
	}
	h.send(nil, nil)

	if got := h.eng.State().Instability; got != 1 {
		t.Fatalf("got instability %v, expected 1", got)
	}
	notes := h.rec.notes()
	// channel 1 keeps the root untouched; channels 2..4 each re-sound
	expected := []message{
		{kind: "off", channel: 2, pitch: 67}, {kind: "on", channel: 2, pitch: 66},
		{kind: "off", channel: 3, pitch: 64}, {kind: "on", channel: 3, pitch: 63},
		{kind: "off", channel: 4, pitch: 70}, {kind: "on", channel: 4, pitch: 69},
	}
	if len(notes) != len(expected) {
		t.Fatalf("got %v, expected %v", notes, expected)
	}
	for i, e := range expected {
		if notes[i].kind != e.kind || notes[i].channel != e.channel || notes[i].pitch != e.pitch {
			t.Fatalf("note %d: got %+v, expected %+v", i, notes[i], e)
		}
	}
	h.checkChannels()
}

func TestEngineResetSilencesEverything(t *testing.T) {
	h := newHarness(t)
	h.press(engine.Contact{ID: 1, X: 540, Y: 800})
	h.eng.Reset()
	var sawAllOff bool
	for _, m := range h.rec.msgs {
		if m.kind == "alloff" {
			sawAllOff = true
		}
	}
	if !sawAllOff {
		t.Fatalf("got %v, expected an all-notes-off", h.rec.msgs)
	}
	// the engine plays on after a reset
	h.live = nil
	h.rec.clear()
	h.step(50 * time.Millisecond)
	h.press(engine.Contact{ID: 2, X: 540, Y: 1000})
	if len(h.rec.ons()) != 1 {
		t.Fatalf("no sound after reset: %v", h.rec.msgs)
	}
}

func TestEngineCalibrationAlert(t *testing.T) {
	broker := engine.NewBroker()
	p := tactum.DefaultParams()
	p.CalibrationSamples = 4
	rec := &recorder{}
	eng := engine.NewEngine(&p, rec, broker)
	var now time.Duration
	for i := 0; i < 6; i++ {
		var smp engine.Sample
		smp.Time = now
		smp.Contacts[0] = engine.Contact{ID: 1, X: 540, Y: 800, Pressure: float32(i) * 0.1, Size: 0.5}
		smp.NumContacts = 1
		if i == 0 {
			smp.Began = 1
		}
		eng.Process(&smp)
		now += 5 * time.Millisecond
	}
	var alert *engine.Alert
	for len(broker.ToModel) > 0 {
		msg := <-broker.ToModel
		if a, ok := msg.Data.(engine.Alert); ok {
			alert = &a
		}
	}
	if alert == nil {
		t.Fatalf("no calibration alert on the model channel")
	}
	if alert.Name != "ForceCalibration" || alert.Priority != engine.Info {
		t.Fatalf("got alert %+v", alert)
	}
}
