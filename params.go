package tactum

import (
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so tuning files can write values like
// "180ms"; yaml has no native duration notion.
type Duration time.Duration

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Params collects every tunable threshold of the gesture pipeline in one
// place, so that a tuning tool or a test harness can override them instead of
// chasing magic numbers. The zero value is not usable; start from
// DefaultParams.
type Params struct {
	// Touch/force normalization
	CalibrationSamples int      `yaml:"calibrationsamples"` // samples before the force source is chosen
	CalibrationTime    Duration `yaml:"calibrationtime"`    // or this much time, whichever comes first
	UsableVariance     float32  `yaml:"usablevariance"`     // minimum variance for a raw signal to count as live
	ForceExponent      float32  `yaml:"forceexponent"`      // power curve applied to the chosen raw signal
	ForceSmoothing     float32  `yaml:"forcesmoothing"`     // single-pole smoothing coefficient per sample
	ImpactWindow       Duration `yaml:"impactwindow"`       // how long after contact-begin an impact can fire
	ImpactSizeRate     float32  `yaml:"impactsizerate"`     // raw size increase per second that counts as a spike
	ImpactMotion       float32  `yaml:"impactmotion"`       // px of translational motion required

	// Geometry
	RefX        float32 `yaml:"refx"`        // fixed reference point; angle zero points away from it
	RefY        float32 `yaml:"refy"`
	SpreadScale float32 `yaml:"spreadscale"` // multiplier on mean centroid distance

	// Archetype classification
	ClusterSpread  float32 `yaml:"clusterspread"`  // min pairwise distance below this: cluster
	StretchMaxMin  float32 `yaml:"stretchmaxmin"`  // max/min pairwise ratio above this: stretch
	StretchMaxMean float32 `yaml:"stretchmaxmean"` // max/mean pairwise ratio above this: stretch
	WideFraction   float32 `yaml:"widefraction"`   // spread above this fraction of SpreadMax: wide seventh

	// Harmonic state machine
	HysteresisDeg float32  `yaml:"hysteresisdeg"` // angular margin past a sector boundary
	DwellTime     Duration `yaml:"dwelltime"`     // candidate sector must persist this long
	DwellStale    Duration `yaml:"dwellstale"`    // gaps longer than this restart the dwell window
	SnapVelocity  float32  `yaml:"snapvelocity"`  // deg/s of angular velocity that bypasses dwell
	SpreadMin     float32  `yaml:"spreadmin"`     // below this spread, instability = 1
	SpreadMax     float32  `yaml:"spreadmax"`     // above this spread, instability = 0

	// Re-articulation window
	RearticulateTime   Duration `yaml:"rearticulatetime"`   // lift-to-retouch window
	RearticulateRadius float32  `yaml:"rearticulateradius"` // centroid tolerance in px

	// Release coalescing
	CoalesceTime Duration `yaml:"coalescetime"` // lift notifications within this window collapse to one

	// Role-to-pitch resolution
	SoloOctave           int     `yaml:"solooctave"`  // reference-tone base when landing with one contact
	ChordOctave          int     `yaml:"chordoctave"` // chord-register base for multi-contact landings
	InstabilityThreshold float32 `yaml:"instabilitythreshold"`

	// Voice leading and expression
	ChannelOffset     int     `yaml:"channeloffset"`     // slot i sounds on channel i + offset; channel 0 stays global
	ImpactBoost       int     `yaml:"impactboost"`       // velocity added when the impact flag was raised
	IntensityShift    int     `yaml:"intensityshift"`    // exponential smoothing as a right shift
	KneeBreak         int     `yaml:"kneebreak"`         // breakpoint of the two-segment response curve, 0..127
	KneeLevel         float32 `yaml:"kneelevel"`         // curve output level at the breakpoint, 0..1
	IntensityFloor    int     `yaml:"intensityfloor"`    // substituted while voices sound but force is in the deadzone
	IntensityDeadzone int     `yaml:"intensitydeadzone"`
	IntensityInterval int     `yaml:"intensityinterval"` // cycles between intensity sends
	IntensityJump     int     `yaml:"intensityjump"`     // value jump that bypasses the rate limiter
}

// DefaultParams returns the tuning the instrument ships with. Distances are
// in touch surface pixels of a 1080x2280 portrait panel, the reference point
// sits at the bottom center, nearest the player.
func DefaultParams() Params {
	return Params{
		CalibrationSamples: 256,
		CalibrationTime:    Duration(3 * time.Second),
		UsableVariance:     1e-4,
		ForceExponent:      0.7,
		ForceSmoothing:     0.35,
		ImpactWindow:       Duration(40 * time.Millisecond),
		ImpactSizeRate:     3.0,
		ImpactMotion:       12,

		RefX:        540,
		RefY:        2280,
		SpreadScale: 2,

		ClusterSpread:  60,
		StretchMaxMin:  2.2,
		StretchMaxMean: 1.6,
		WideFraction:   0.8,

		HysteresisDeg: 4,
		DwellTime:     Duration(180 * time.Millisecond),
		DwellStale:    Duration(time.Second),
		SnapVelocity:  240,
		SpreadMin:     80,
		SpreadMax:     320,

		RearticulateTime:   Duration(150 * time.Millisecond),
		RearticulateRadius: 90,

		CoalesceTime: Duration(10 * time.Millisecond),

		SoloOctave:           72,
		ChordOctave:          60,
		InstabilityThreshold: 0.6,

		ChannelOffset:     1,
		ImpactBoost:       24,
		IntensityShift:    3,
		KneeBreak:         32,
		KneeLevel:         0.45,
		IntensityFloor:    18,
		IntensityDeadzone: 6,
		IntensityInterval: 4,
		IntensityJump:     8,
	}
}

// ReadParams reads a yaml tuning file and merges it over the defaults, so a
// file only needs to name the values it changes.
func ReadParams(r io.Reader) (Params, error) {
	p := DefaultParams()
	b, err := io.ReadAll(r)
	if err != nil {
		return p, fmt.Errorf("reading params: %w", err)
	}
	if err := yaml.Unmarshal(b, &p); err != nil {
		return p, fmt.Errorf("unmarshaling params: %w", err)
	}
	return p, nil
}

// WriteParams writes the tuning as yaml, for seeding a tuning file.
func WriteParams(w io.Writer, p Params) error {
	b, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshaling params: %w", err)
	}
	if _, err := w.Write(b); err != nil {
		return fmt.Errorf("writing params: %w", err)
	}
	return nil
}
