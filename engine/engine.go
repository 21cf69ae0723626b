package engine

import (
	"time"

	"github.com/tactum/tactum"
)

// Engine wires the pipeline together and owns the release coalescing
// window. Process and Flush must be called from a single goroutine, the one
// receiving input samples; every input sample is eventually incorporated,
// there is no timeout semantics.
type Engine struct {
	params *tactum.Params
	broker *Broker // optional; read-only snapshots for a presentation layer

	norm   *Normalizer
	harm   *Harmonizer
	leader *VoiceLeader

	frame   TouchFrame
	geo     GeometryResult
	lastGeo GeometryResult // last geometry that still had contacts

	// pending release: a single snapshot slot with a deadline, not a queue.
	// A new lift notification overwrites the snapshot and resets the
	// deadline; new contact activity cancels it.
	pending    Sample
	hasPending bool
	deadline   time.Duration

	lastCount  int
	calAlerted bool
}

func NewEngine(params *tactum.Params, backend tactum.Backend, broker *Broker) *Engine {
	if backend == nil {
		backend = tactum.NullBackend{}
	}
	e := &Engine{
		params: params,
		broker: broker,
		norm:   NewNormalizer(params),
		harm:   NewHarmonizer(params),
		leader: NewVoiceLeader(params, backend),
	}
	e.frame.Reset()
	return e
}

// State returns a copy of the current harmonic state, for display only.
func (e *Engine) State() tactum.HarmonicState { return e.harm.State() }

// Process incorporates one input sample. Samples whose only change is lifted
// contacts are buffered for the coalescing window so that near-simultaneous
// multi-finger releases collapse into exactly one downstream update; begins
// and moves bypass coalescing entirely.
func (e *Engine) Process(smp *Sample) {
	if e.hasPending && smp.Time > e.deadline {
		e.flushPending()
	}
	if smp.NumEnded > 0 && smp.Began == 0 {
		e.pending = *smp
		e.deadline = smp.Time + time.Duration(e.params.CoalesceTime)
		e.hasPending = true
		return
	}
	// new contact activity cancels a pending release rather than applying
	// it; the active-contact set of this sample is authoritative anyway
	e.hasPending = false
	e.apply(smp)
}

// Flush applies a pending coalesced release whose deadline has passed. Call
// it periodically (or with a timer at the deadline) so that the final lift
// of a gesture is not stuck waiting for the next input sample.
func (e *Engine) Flush(now time.Duration) {
	if e.hasPending && now > e.deadline {
		e.flushPending()
	}
}

func (e *Engine) flushPending() {
	e.hasPending = false
	e.apply(&e.pending)
}

// Reset silences everything and rebinds from scratch. Idempotent; used on
// shutdown or when the transport drops.
func (e *Engine) Reset() {
	e.hasPending = false
	e.frame.Reset()
	e.leader.AllNotesOff()
	e.lastCount = 0
}

func (e *Engine) apply(smp *Sample) {
	now := smp.Time
	prevCount := e.lastCount
	e.updateFrame(smp, now)
	count := e.frame.ActiveSlots() + e.frame.NumOverflow
	ComputeGeometry(&e.frame, e.params, &e.geo)

	rearticulated := false
	switch {
	case prevCount == 0 && count > 0:
		rearticulated = e.harm.Land(&e.geo, count, now)
		if !rearticulated {
			e.harm.LatchTriad(ClassifyTriad(&e.frame, e.params))
			e.harm.LatchSeventh(ClassifySeventh(e.geo.Spread, e.params))
		}
	case prevCount > 0 && count == 0:
		e.harm.Lift(e.lastGeo.CentroidX, e.lastGeo.CentroidY, prevCount, now)
	default:
		// reaching the triad or seventh layer is a semantic event; removing
		// a finger never is, and each layer latches only its own archetype
		// so a sounding triad color survives the fourth finger
		if count >= 3 && prevCount < 3 {
			e.harm.LatchTriad(ClassifyTriad(&e.frame, e.params))
		}
		if count >= 4 && prevCount < 4 {
			e.harm.LatchSeventh(ClassifySeventh(e.geo.Spread, e.params))
		}
	}
	if count > 0 && !rearticulated {
		e.harm.Track(&e.geo, count, now)
	}
	e.leader.Update(&e.frame, e.harm.State())

	if e.geo.Active {
		e.lastGeo = e.geo
	}
	e.lastCount = count
	if e.broker != nil {
		if !e.calAlerted && e.norm.Calibrated() {
			e.calAlerted = true
			TrySend(e.broker.ToModel, MsgToModel{Data: Alert{
				Name:     "ForceCalibration",
				Message:  "force source: " + e.norm.SourceName(),
				Priority: Info,
			}})
		}
		TrySend(e.broker.ToModel, MsgToModel{HasState: true, State: e.harm.State(), Contacts: count})
	}
}

// updateFrame reconciles the slot-indexed frame with the sample's active
// contact set: slots keep their index for the lifetime of their contact,
// vanished contacts free their slot, and contacts beyond the slot capacity
// are kept position-only for geometry.
func (e *Engine) updateFrame(smp *Sample, now time.Duration) {
	for i := range e.frame.Slots {
		id := e.frame.Slots[i].ID
		if id < 0 {
			continue
		}
		found := false
		for j := 0; j < smp.NumContacts; j++ {
			if smp.Contacts[j].ID == id {
				found = true
				break
			}
		}
		if !found {
			e.norm.Release(i)
			e.frame.Slots[i] = Slot{ID: -1}
		}
	}
	e.frame.NumOverflow = 0
	for j := 0; j < smp.NumContacts && j < MaxContacts; j++ {
		c := &smp.Contacts[j]
		slot := e.frame.slotFor(c.ID)
		began := smp.ContactBegan(j)
		if slot < 0 {
			slot = e.frame.freeSlot()
			if slot < 0 {
				if e.frame.NumOverflow < len(e.frame.OverflowX) {
					e.frame.OverflowX[e.frame.NumOverflow] = c.X
					e.frame.OverflowY[e.frame.NumOverflow] = c.Y
					e.frame.NumOverflow++
				}
				continue
			}
			began = true
		}
		s := &e.frame.Slots[slot]
		force, impact := e.norm.Update(slot, c, began, now)
		s.ID = c.ID
		s.X, s.Y = c.X, c.Y
		s.Force = force
		s.RawPressure, s.RawSize = c.Pressure, c.Size
		s.Events = 0
		if began {
			s.Events |= EventBegan
		}
		if impact {
			s.Events |= EventImpact
		}
		if slot == 0 {
			s.Events |= EventPrimary
		}
	}
}
