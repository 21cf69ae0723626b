package engine

import (
	"math"

	"github.com/tactum/tactum"
)

// response curve segment exponents; the breakpoint itself is a Params field
const (
	kneeLowExp  = 0.6
	kneeHighExp = 1.4
)

type (
	// VoiceLeader binds physical contacts to stable output slots and drives
	// all outbound note and continuous-expression messages. Slot i sounds on
	// channel i + ChannelOffset for the process lifetime; channel 0 carries
	// only the combined intensity control. No steady-state allocation.
	VoiceLeader struct {
		params  *tactum.Params
		backend tactum.Backend

		slots   [MaxSlots]voiceSlot
		roles   [MaxSlots]int8 // semantic role per slot, -1 = unassigned
		pitches [tactum.NumRoles]byte

		// caches for expression dedup; -1 = nothing sent yet
		lastBend     [MaxSlots]int32
		lastPressure [MaxSlots]int16
		lastBright   [MaxSlots]int16

		intensity intensityState
	}

	voiceSlot struct {
		contact  int64 // bound contact ID, -1 = none
		pitch    byte  // currently sounding pitch, 0 = silent
		active   bool
		velocity byte // captured at contact-begin
	}

	intensityState struct {
		curve    [128]byte // precomputed soft-knee response
		smoothed int
		lastSent int16 // -1 = nothing sent yet
		cooldown int
	}
)

func NewVoiceLeader(params *tactum.Params, backend tactum.Backend) *VoiceLeader {
	v := &VoiceLeader{params: params, backend: backend}
	for i := range v.slots {
		v.slots[i].contact = -1
		v.roles[i] = -1
		v.lastBend[i] = -1
		v.lastPressure[i] = -1
		v.lastBright[i] = -1
	}
	v.intensity.lastSent = -1
	v.intensity.buildCurve(params)
	return v
}

func (v *VoiceLeader) channel(slot int) int { return slot + v.params.ChannelOffset }

// Update runs one processing cycle against the frame and the harmonic state
// snapshot: slot binding, role compaction, target resolution, note emission
// and the continuous expression flush.
func (v *VoiceLeader) Update(frame *TouchFrame, state tactum.HarmonicState) {
	v.bind(frame)
	v.compactRoles(frame)
	tactum.Resolve(state, v.params, &v.pitches)
	v.emit(frame)
	v.expression(frame)
}

// bind reconciles each slot's bound contact with the frame. A change of
// identifier in an occupied slot forces an immediate note-off before
// rebinding, so one channel never sustains two contacts' notes.
func (v *VoiceLeader) bind(frame *TouchFrame) {
	for i := range v.slots {
		want := frame.Slots[i].ID
		s := &v.slots[i]
		if s.contact >= 0 && s.contact != want {
			if s.active {
				v.backend.NoteOff(v.channel(i), s.pitch)
			}
			v.clearSlot(i)
		}
		if want < 0 {
			continue
		}
		if s.contact != want {
			s.contact = want
			s.velocity = velocityFor(frame.Slots[i].Force)
		}
		// the impact flag trails contact-begin by at least one sample, so
		// it lands on an already bound slot; fold it into the stored
		// velocity there, where every later note-on of this contact reads it
		if frame.Slots[i].Events&EventImpact != 0 {
			s.velocity = clampVelocity(int(s.velocity) + v.params.ImpactBoost)
		}
	}
}

// velocityFor derives the note-on velocity from the force captured at
// contact-begin.
func velocityFor(force float32) byte {
	return clampVelocity(int(force*126) + 1)
}

func clampVelocity(vel int) byte {
	if vel < 1 {
		vel = 1
	} else if vel > 127 {
		vel = 127
	}
	return byte(vel)
}

// compactRoles renumbers surviving slots' roles to ascending 0..N-1 in their
// prior relative order, then hands newly bound slots the lowest free roles.
// A single remaining contact therefore always ends on role 0, and removing a
// layer never disturbs the surviving layers' identity.
func (v *VoiceLeader) compactRoles(frame *TouchFrame) {
	for i := range v.roles {
		if v.slots[i].contact < 0 {
			v.roles[i] = -1
		}
	}
	// fixed-capacity insertion sort of the surviving slots by prior role
	var order [MaxSlots]int8
	n := 0
	for i := 0; i < MaxSlots; i++ {
		if v.roles[i] < 0 {
			continue
		}
		j := n
		for j > 0 && v.roles[order[j-1]] > v.roles[i] {
			order[j] = order[j-1]
			j--
		}
		order[j] = int8(i)
		n++
	}
	for k := 0; k < n; k++ {
		v.roles[order[k]] = int8(k)
	}
	next := int8(n)
	for i := 0; i < MaxSlots; i++ {
		if v.slots[i].contact < 0 || v.roles[i] >= 0 {
			continue
		}
		if next < tactum.NumRoles {
			v.roles[i] = next
			next++
		}
		// beyond NumRoles the contact stays silent; not an error
	}
}

// emit reconciles each slot's sounding pitch with its resolved target. A
// note-off always precedes a note-on reusing the same channel within one
// cycle.
func (v *VoiceLeader) emit(frame *TouchFrame) {
	for i := range v.slots {
		s := &v.slots[i]
		var target byte
		if s.contact >= 0 && v.roles[i] >= 0 {
			target = v.pitches[v.roles[i]]
		}
		switch {
		case s.active && target == s.pitch:
			// steady
		case s.active && target != 0:
			v.backend.NoteOff(v.channel(i), s.pitch)
			v.backend.NoteOn(v.channel(i), target, s.velocity)
			s.pitch = target
		case s.active && target == 0:
			v.backend.NoteOff(v.channel(i), s.pitch)
			s.pitch = 0
			s.active = false
			v.resetExpression(i)
		case !s.active && target != 0:
			v.backend.NoteOn(v.channel(i), target, s.velocity)
			s.pitch = target
			s.active = true
		}
	}
}

// expression flushes per-slot pressure, pitch bend and brightness, each sent
// only when the rounded value changes, then updates the combined intensity.
func (v *VoiceLeader) expression(frame *TouchFrame) {
	maxPressure := 0
	anyActive := false
	for i := range v.slots {
		if !v.slots[i].active {
			continue
		}
		anyActive = true
		ch := v.channel(i)
		if v.lastBend[i] != tactum.PitchBendCenter {
			v.backend.PitchBend(ch, tactum.PitchBendCenter)
			v.lastBend[i] = tactum.PitchBendCenter
		}
		pressure := int16(frame.Slots[i].Force*127 + 0.5)
		if pressure > 127 {
			pressure = 127
		}
		if pressure != v.lastPressure[i] {
			v.backend.ChannelPressure(ch, byte(pressure))
			v.lastPressure[i] = pressure
		}
		if int(pressure) > maxPressure {
			maxPressure = int(pressure)
		}
		bright := v.brightnessFor(frame.Slots[i].Y)
		if bright != v.lastBright[i] {
			v.backend.ControlChange(ch, tactum.CCBrightness, byte(bright))
			v.lastBright[i] = bright
		}
	}
	v.updateIntensity(maxPressure, anyActive)
}

// brightnessFor maps vertical position to 0..127: higher on the surface,
// further from the holder, brighter.
func (v *VoiceLeader) brightnessFor(y float32) int16 {
	if v.params.RefY <= 0 {
		return 0
	}
	b := int16((1 - y/v.params.RefY) * 127)
	if b < 0 {
		b = 0
	} else if b > 127 {
		b = 127
	}
	return b
}

// updateIntensity combines the per-slot pressures into one smoothed,
// soft-knee shaped, rate-limited global control. Devices that report
// near-zero force while audibly active get a forced floor instead of
// silence.
func (v *VoiceLeader) updateIntensity(maxPressure int, anyActive bool) {
	target := maxPressure
	if anyActive && target < v.params.IntensityDeadzone {
		target = v.params.IntensityFloor
	}
	if target > 127 {
		target = 127
	}
	target = int(v.intensity.curve[target])
	v.intensity.smoothed += (target - v.intensity.smoothed) >> uint(v.params.IntensityShift)
	if !anyActive && target == 0 && v.intensity.smoothed < 1<<uint(v.params.IntensityShift) {
		v.intensity.smoothed = 0 // let the shift smoothing actually reach zero
	}
	v.intensity.cooldown++
	value := int16(v.intensity.smoothed)
	jump := int(value - v.intensity.lastSent)
	if jump < 0 {
		jump = -jump
	}
	if value == v.intensity.lastSent {
		return
	}
	if v.intensity.cooldown < v.params.IntensityInterval && jump <= v.params.IntensityJump {
		return
	}
	v.backend.ControlChange(0, tactum.CCIntensity, byte(value))
	v.intensity.lastSent = value
	v.intensity.cooldown = 0
}

// AllNotesOff resets every slot, role assignment and cached expression
// value. Idempotent; used on full release or shutdown only.
func (v *VoiceLeader) AllNotesOff() {
	v.backend.AllNotesOff()
	for i := range v.slots {
		v.slots[i] = voiceSlot{contact: -1}
		v.roles[i] = -1
		v.resetExpression(i)
	}
	v.intensity.smoothed = 0
	v.intensity.lastSent = -1
	v.intensity.cooldown = 0
}

func (v *VoiceLeader) clearSlot(i int) {
	v.slots[i] = voiceSlot{contact: -1}
	v.roles[i] = -1
	v.resetExpression(i)
}

func (v *VoiceLeader) resetExpression(i int) {
	v.lastBend[i] = -1
	v.lastPressure[i] = -1
	v.lastBright[i] = -1
}

func (s *intensityState) buildCurve(p *tactum.Params) {
	xb := float64(p.KneeBreak) / 127
	yb := float64(p.KneeLevel)
	for i := range s.curve {
		x := float64(i) / 127
		var y float64
		if xb > 0 && x <= xb {
			y = yb * math.Pow(x/xb, kneeLowExp)
		} else if xb < 1 {
			y = yb + (1-yb)*math.Pow((x-xb)/(1-xb), kneeHighExp)
		} else {
			y = x
		}
		s.curve[i] = byte(math.Round(y * 127))
	}
}
