package engine

import (
	"time"

	"github.com/chewxy/math32"
	"github.com/tactum/tactum"
)

type forceSource int

const (
	forceUndecided forceSource = iota
	forcePressure
	forceSize
	forceBlended // neither signal varies meaningfully; conservative mix
)

type (
	// Normalizer turns heterogeneous raw per-contact sensor signals into one
	// normalized 0..1 musical force per slot. On startup it runs a short
	// online calibration computing the running variance of the two candidate
	// signals and commits to whichever actually varies on this device. All
	// state lives in bounded per-slot arrays; Update never allocates.
	Normalizer struct {
		params *tactum.Params

		source      forceSource
		calSamples  int
		calStarted  bool
		calStart    time.Duration
		pressureVar runningVar
		sizeVar     runningVar

		rawLo, rawHi float32 // observed range of the chosen signal

		slots [MaxSlots]normalizerSlot
	}

	normalizerSlot struct {
		force       float32
		beganAt     time.Duration
		beginX      float32
		beginY      float32
		beginSize   float32
		active      bool
		impactFired bool
	}

	// Welford's online variance.
	runningVar struct {
		n    int
		mean float64
		m2   float64
	}
)

func (v *runningVar) observe(x float64) {
	v.n++
	d := x - v.mean
	v.mean += d / float64(v.n)
	v.m2 += d * (x - v.mean)
}

func (v *runningVar) variance() float64 {
	if v.n < 2 {
		return 0
	}
	return v.m2 / float64(v.n-1)
}

func NewNormalizer(params *tactum.Params) *Normalizer {
	n := &Normalizer{params: params, rawLo: math32.MaxFloat32}
	return n
}

// Calibrated reports whether the startup calibration has committed to a
// force source yet.
func (n *Normalizer) Calibrated() bool { return n.source != forceUndecided }

// SourceName names the committed force source, for operator display.
func (n *Normalizer) SourceName() string {
	switch n.source {
	case forcePressure:
		return "pressure"
	case forceSize:
		return "size"
	case forceBlended:
		return "blended"
	}
	return "calibrating"
}

// Update ingests the raw sensor values of the contact bound to the given slot
// and returns its normalized force plus whether a percussive impact was
// detected this sample. began must be true on the contact-begin sample, which
// bypasses temporal smoothing so the attack is instantaneous.
func (n *Normalizer) Update(slot int, c *Contact, began bool, now time.Duration) (force float32, impact bool) {
	if slot < 0 || slot >= MaxSlots {
		return 0, false
	}
	n.calibrate(c, now)
	raw := n.rawValue(c)
	target := n.curve(raw)
	s := &n.slots[slot]
	if began || !s.active {
		*s = normalizerSlot{
			force:     target,
			beganAt:   now,
			beginX:    c.X,
			beginY:    c.Y,
			beginSize: c.Size,
			active:    true,
		}
		return s.force, false
	}
	s.force += (target - s.force) * n.params.ForceSmoothing
	impact = n.detectImpact(s, c, now)
	return s.force, impact
}

// Release clears the slot's normalizer state when its contact ends.
func (n *Normalizer) Release(slot int) {
	if slot < 0 || slot >= MaxSlots {
		return
	}
	n.slots[slot] = normalizerSlot{}
}

func (n *Normalizer) calibrate(c *Contact, now time.Duration) {
	if n.source != forceUndecided {
		return
	}
	if !n.calStarted {
		n.calStarted = true
		n.calStart = now
	}
	n.pressureVar.observe(float64(c.Pressure))
	n.sizeVar.observe(float64(c.Size))
	n.calSamples++
	if n.calSamples < n.params.CalibrationSamples && now-n.calStart < time.Duration(n.params.CalibrationTime) {
		return
	}
	pv, sv := n.pressureVar.variance(), n.sizeVar.variance()
	usable := float64(n.params.UsableVariance)
	switch {
	case pv >= usable && pv >= sv:
		n.source = forcePressure
	case sv >= usable:
		n.source = forceSize
	default:
		n.source = forceBlended
	}
}

func (n *Normalizer) rawValue(c *Contact) float32 {
	var raw float32
	switch n.source {
	case forcePressure:
		raw = c.Pressure
	case forceSize:
		raw = c.Size
	default:
		// during calibration and in the blended fallback, average the two
		// candidates so some force response exists from the first sample
		raw = (c.Pressure + c.Size) * 0.5
	}
	if raw < n.rawLo {
		n.rawLo = raw
	}
	if raw > n.rawHi {
		n.rawHi = raw
	}
	return raw
}

// curve maps the chosen raw signal through the configured power curve into
// [0,1], using the observed range of the signal so far.
func (n *Normalizer) curve(raw float32) float32 {
	span := n.rawHi - n.rawLo
	if span <= 1e-6 {
		return 0.5 // flat signal; conservative constant estimate
	}
	x := (raw - n.rawLo) / span
	if x < 0 {
		x = 0
	} else if x > 1 {
		x = 1
	}
	return math32.Pow(x, n.params.ForceExponent)
}

// detectImpact raises the impact flag once per contact when, shortly after
// contact-begin, the contact patch grows rapidly while the touch also
// translates. The flag is consumed downstream as a velocity boost only,
// never as a timing or permission signal.
func (n *Normalizer) detectImpact(s *normalizerSlot, c *Contact, now time.Duration) bool {
	if s.impactFired || now-s.beganAt > time.Duration(n.params.ImpactWindow) {
		return false
	}
	dt := float32((now - s.beganAt).Seconds())
	if dt <= 0 {
		return false
	}
	sizeRate := (c.Size - s.beginSize) / dt
	motion := math32.Hypot(c.X-s.beginX, c.Y-s.beginY)
	if sizeRate > n.params.ImpactSizeRate && motion > n.params.ImpactMotion {
		s.impactFired = true
		return true
	}
	return false
}
