package engine

import (
	"time"

	"github.com/chewxy/math32"
	"github.com/tactum/tactum"
)

const (
	numSectors = 12
	sectorDeg  = 360.0 / numSectors
)

type (
	// Harmonizer is the authoritative transformation from geometry and
	// contact layering into the harmonic state. The committed sector moves
	// through angular hysteresis and dwell: both are resistance, never
	// permission; a stable candidate always commits eventually, and a fast
	// throw commits immediately. The instability scalar is continuous and
	// recomputed every sample.
	Harmonizer struct {
		params *tactum.Params
		state  tactum.HarmonicState

		tracking bool

		candidate    int
		hasCandidate bool
		dwellStart   time.Duration

		lastAngle     float32
		lastAngleTime time.Duration
		haveAngle     bool
		angularVel    float32 // deg/s, shortest path

		latchedTriad   tactum.TriadArchetype
		latchedSeventh tactum.SeventhArchetype

		window rearticulation
	}

	// rearticulation is the armed lift snapshot: a fast lift and re-touch
	// whose time, centroid and contact count all match replays this state
	// verbatim instead of re-running classification. It only ever changes
	// when a note re-sounds, never which pitches are selected.
	rearticulation struct {
		armed    bool
		at       time.Duration
		cx, cy   float32
		contacts int
		state    tactum.HarmonicState
	}
)

func NewHarmonizer(params *tactum.Params) *Harmonizer {
	return &Harmonizer{params: params}
}

// State returns a copy of the current harmonic state.
func (h *Harmonizer) State() tactum.HarmonicState { return h.state }

// Tracking reports whether any contact is currently down.
func (h *Harmonizer) Tracking() bool { return h.tracking }

// LatchTriad stores a freshly classified triad archetype. Called on semantic
// events only; reaching the seventh layer never reshapes an already sounding
// triad color.
func (h *Harmonizer) LatchTriad(triad tactum.TriadArchetype) {
	h.latchedTriad = triad
}

// LatchSeventh stores a freshly classified seventh archetype.
func (h *Harmonizer) LatchSeventh(seventh tactum.SeventhArchetype) {
	h.latchedSeventh = seventh
}

// Land handles the first contact after a period of no contact. If the armed
// re-articulation window matches, the stored state is restored verbatim and
// Land reports true so the caller skips classification; otherwise the sector
// and root are seeded immediately from the current angle, with no dwell
// delay, so sound is correct the instant contact begins.
func (h *Harmonizer) Land(geo *GeometryResult, count int, now time.Duration) (rearticulated bool) {
	h.tracking = true
	h.hasCandidate = false
	h.haveAngle = false
	h.angularVel = 0

	w := &h.window
	if w.armed {
		w.armed = false
		if now-w.at <= time.Duration(h.params.RearticulateTime) &&
			count == w.contacts &&
			dist(geo.CentroidX, geo.CentroidY, w.cx, w.cy) <= h.params.RearticulateRadius {
			h.state = w.state
			h.latchedTriad = w.state.Triad
			h.latchedSeventh = w.state.Seventh
			return true
		}
	}
	sector := sectorFor(geo.AngleDeg)
	h.state.Sector = sector
	h.state.Root = tactum.RootForSector(sector)
	h.state.Solo = count == 1
	return false
}

// Lift arms the re-articulation window on the transition to zero contacts.
// cx, cy and count describe the last sample that still had contacts.
func (h *Harmonizer) Lift(cx, cy float32, count int, now time.Duration) {
	h.window = rearticulation{
		armed:    true,
		at:       now,
		cx:       cx,
		cy:       cy,
		contacts: count,
		state:    h.state,
	}
	h.tracking = false
	h.hasCandidate = false
	h.haveAngle = false
	h.state.Contacts = 0
	h.state.Triad = tactum.TriadNone
	h.state.Seventh = tactum.SeventhNone
}

// Track runs the continuous per-sample update: sector hysteresis and dwell,
// instability from spread, and layer visibility.
func (h *Harmonizer) Track(geo *GeometryResult, count int, now time.Duration) {
	if !h.tracking || !geo.Active {
		return
	}
	h.updateAngularVelocity(geo.AngleDeg, now)
	h.updateSector(geo.AngleDeg, now)
	h.state.Instability = h.instability(geo.Spread)

	if count < 0 {
		count = 0
	} else if count > 4 {
		count = 4
	}
	h.state.Contacts = count
	// layer visibility only; the latched values survive underneath
	if count >= 3 {
		h.state.Triad = h.latchedTriad
	} else {
		h.state.Triad = tactum.TriadNone
	}
	if count >= 4 {
		h.state.Seventh = h.latchedSeventh
	} else {
		h.state.Seventh = tactum.SeventhNone
	}
}

func (h *Harmonizer) updateAngularVelocity(angle float32, now time.Duration) {
	if h.haveAngle {
		dt := float32((now - h.lastAngleTime).Seconds())
		if dt > 0 {
			h.angularVel = shortestDelta(h.lastAngle, angle) / dt
		}
	}
	h.lastAngle = angle
	h.lastAngleTime = now
	h.haveAngle = true
}

func (h *Harmonizer) updateSector(angle float32, now time.Duration) {
	// within the hysteresis margin of the committed sector, nothing moves
	center := float32(h.state.Sector)*sectorDeg + sectorDeg/2
	if abs32(shortestDelta(center, angle)) <= sectorDeg/2+h.params.HysteresisDeg {
		h.hasCandidate = false
		return
	}
	raw := sectorFor(angle)
	if raw == h.state.Sector {
		h.hasCandidate = false
		return
	}
	if !h.hasCandidate || h.candidate != raw {
		h.candidate = raw
		h.hasCandidate = true
		h.dwellStart = now
		// a fast throw does not wait for dwell
		if abs32(h.angularVel) < h.params.SnapVelocity {
			return
		}
	}
	if now-h.dwellStart > time.Duration(h.params.DwellStale) {
		// long-idle dwell start; begin a fresh window instead of firing
		h.dwellStart = now
		return
	}
	if now-h.dwellStart >= time.Duration(h.params.DwellTime) || abs32(h.angularVel) >= h.params.SnapVelocity {
		h.state.Sector = h.candidate
		h.state.Root = tactum.RootForSector(h.candidate)
		h.hasCandidate = false
	}
}

// instability maps spread to the continuous 0..1 scalar: smaller spread
// means more unstable.
func (h *Harmonizer) instability(spread float32) float32 {
	if spread <= h.params.SpreadMin {
		return 1
	}
	if spread >= h.params.SpreadMax {
		return 0
	}
	return 1 - (spread-h.params.SpreadMin)/(h.params.SpreadMax-h.params.SpreadMin)
}

func sectorFor(angle float32) int {
	s := int(angle / sectorDeg)
	if s < 0 {
		s = 0
	} else if s > numSectors-1 {
		s = numSectors - 1
	}
	return s
}

// shortestDelta returns the signed angular distance from a to b, in
// (-180,180].
func shortestDelta(a, b float32) float32 {
	d := math32.Mod(b-a+540, 360) - 180
	return d
}

func abs32(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}
