package engine

import (
	"github.com/tactum/tactum"
	"github.com/viterin/vek/vek32"
)

// maxPairs is the number of pairwise distances between MaxSlots contacts.
const maxPairs = MaxSlots * (MaxSlots - 1) / 2

// ClassifyTriad classifies the shape of the active contacts into a triad
// archetype from their pairwise distances. Called on semantic events only
// (first landing, or the contact count reaching exactly three or four); the
// result is latched by the harmonizer until the next such event.
func ClassifyTriad(f *TouchFrame, p *tactum.Params) tactum.TriadArchetype {
	var pairs [maxPairs]float32
	n := 0
	for i := 0; i < MaxSlots; i++ {
		if f.Slots[i].ID < 0 {
			continue
		}
		for j := i + 1; j < MaxSlots; j++ {
			if f.Slots[j].ID < 0 {
				continue
			}
			pairs[n] = dist(f.Slots[i].X, f.Slots[i].Y, f.Slots[j].X, f.Slots[j].Y)
			n++
		}
	}
	if n == 0 {
		return tactum.TriadFan
	}
	minD, maxD := vek32.Min(pairs[:n]), vek32.Max(pairs[:n])
	if minD < p.ClusterSpread {
		return tactum.TriadCluster
	}
	mean := vek32.Mean(pairs[:n])
	if minD > 0 && maxD/minD > p.StretchMaxMin {
		return tactum.TriadStretch
	}
	if mean > 0 && maxD/mean > p.StretchMaxMean {
		return tactum.TriadStretch
	}
	return tactum.TriadFan
}

// ClassifySeventh picks the seventh-layer archetype from the current mean
// spread: wide when the hand covers most of the large stability radius,
// compact otherwise.
func ClassifySeventh(spread float32, p *tactum.Params) tactum.SeventhArchetype {
	if spread > p.WideFraction*p.SpreadMax {
		return tactum.SeventhWide
	}
	return tactum.SeventhCompact
}
