package engine

import (
	"github.com/chewxy/math32"
	"github.com/tactum/tactum"
	"github.com/viterin/vek/vek32"
)

// GeometryResult is the reduced view of the current contact set. Angle zero
// is defined as pointing away from the holder (straight up the surface from
// the reference point), not mathematical zero.
type GeometryResult struct {
	Active     bool
	Contacts   int
	CentroidX  float32
	CentroidY  float32
	Spread     float32
	AngleDeg   float32 // [0,360)
}

// ComputeGeometry fills out from the current frame. Pure function, no
// allocation; with zero active contacts it short-circuits to an inactive
// result. A single contact measures spread as its distance from the fixed
// reference point rather than from itself, a deliberate discontinuity
// between the 1-contact and 2+-contact modes.
func ComputeGeometry(f *TouchFrame, p *tactum.Params, out *GeometryResult) {
	*out = GeometryResult{}
	var sx, sy float32
	n := 0
	for i := range f.Slots {
		if f.Slots[i].ID < 0 {
			continue
		}
		sx += f.Slots[i].X
		sy += f.Slots[i].Y
		n++
	}
	for i := 0; i < f.NumOverflow; i++ {
		sx += f.OverflowX[i]
		sy += f.OverflowY[i]
		n++
	}
	if n == 0 {
		return
	}
	cx := sx / float32(n)
	cy := sy / float32(n)
	out.Active = true
	out.Contacts = n
	out.CentroidX = cx
	out.CentroidY = cy

	if n == 1 {
		out.Spread = dist(cx, cy, p.RefX, p.RefY)
	} else {
		var d [MaxContacts]float32
		k := 0
		for i := range f.Slots {
			if f.Slots[i].ID < 0 {
				continue
			}
			d[k] = dist(f.Slots[i].X, f.Slots[i].Y, cx, cy)
			k++
		}
		for i := 0; i < f.NumOverflow; i++ {
			d[k] = dist(f.OverflowX[i], f.OverflowY[i], cx, cy)
			k++
		}
		out.Spread = vek32.Mean(d[:k]) * p.SpreadScale
	}

	// away from the holder means up the surface, towards smaller y
	deg := math32.Atan2(cx-p.RefX, p.RefY-cy) * (180 / math32.Pi)
	if deg < 0 {
		deg += 360
	}
	out.AngleDeg = deg
}

func dist(x0, y0, x1, y1 float32) float32 {
	return math32.Hypot(x1-x0, y1-y0)
}
