package tactum

// TriadArchetype classifies the shape of a three-contact gesture. It is
// latched by the classifier on semantic events only and held constant in
// between; removing a finger never re-triggers classification.
type TriadArchetype int

const (
	TriadNone TriadArchetype = iota
	TriadFan                 // evenly spread contacts, the stable default
	TriadStretch             // one pair much further apart than the rest
	TriadCluster             // all contacts within a tight radius
)

func (a TriadArchetype) String() string {
	switch a {
	case TriadFan:
		return "fan"
	case TriadStretch:
		return "stretch"
	case TriadCluster:
		return "cluster"
	}
	return "none"
}

// SeventhArchetype classifies the overall width of a four-contact gesture.
type SeventhArchetype int

const (
	SeventhNone SeventhArchetype = iota
	SeventhCompact
	SeventhWide
)

func (a SeventhArchetype) String() string {
	switch a {
	case SeventhCompact:
		return "compact"
	case SeventhWide:
		return "wide"
	}
	return "none"
}

// HarmonicState is the continuously evolving musical state of the instrument.
// It is mutated only by the harmonizer and copied, never shared, into the
// re-articulation window and into per-cycle snapshots for the voice leader.
type HarmonicState struct {
	Root        int     // pitch class 0..11, derived from Sector
	Sector      int     // 0..11, committed position on the fifths-ordered circle
	Instability float32 // 0 = stable .. 1 = maximally unstable
	Contacts    int     // semantic layer count, 0..4
	Solo        bool    // landed with a single contact; selects the high register
	Triad       TriadArchetype
	Seventh     SeventhArchetype
}

// NumRoles is the number of semantic chord layers: reference tone, fifth,
// triad color and seventh.
const NumRoles = 4

// RootForSector maps a committed sector to its pitch class on the circle of
// fifths.
func RootForSector(sector int) int {
	if sector < 0 {
		sector = 0
	} else if sector > 11 {
		sector = 11
	}
	return sector * 7 % 12
}

// Resolve expands a harmonic state into up to four concrete pitches, one per
// role; 0 means the role is silent. Pure function of its arguments. Above the
// instability threshold the upper roles are substituted with the diminished
// interval set +6/+3/+9; this reinterprets the chord, it never mutes it.
func Resolve(state HarmonicState, p *Params, pitches *[NumRoles]byte) {
	*pitches = [NumRoles]byte{}
	if state.Contacts < 1 {
		return
	}
	root := p.ChordOctave + state.Root
	if state.Solo {
		root = p.SoloOctave + state.Root
	}
	pitches[0] = clampPitch(root)
	if state.Contacts < 2 {
		return
	}
	unstable := state.Instability > p.InstabilityThreshold
	fifth := 7
	if unstable {
		fifth = 6
	}
	pitches[1] = clampPitch(root + fifth)
	if state.Contacts < 3 {
		return
	}
	color := 4 // fan
	switch state.Triad {
	case TriadStretch:
		color = 3
	case TriadCluster:
		color = 5
	}
	if unstable {
		color = 3
	}
	pitches[2] = clampPitch(root + color)
	if state.Contacts < 4 {
		return
	}
	seventh := 11 // compact
	if state.Seventh == SeventhWide {
		seventh = 10
	}
	if unstable {
		seventh = 9
	}
	pitches[3] = clampPitch(root + seventh)
}
