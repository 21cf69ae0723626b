package engine_test

import (
	"testing"

	"github.com/tactum/tactum"
	"github.com/tactum/tactum/engine"
)

func TestClassifyTriad(t *testing.T) {
	p := tactum.DefaultParams()
	tests := []struct {
		name     string
		contacts [][2]float32
		expected tactum.TriadArchetype
	}{
		{
			"even spread is a fan",
			[][2]float32{{340, 1000}, {540, 800}, {740, 1000}},
			tactum.TriadFan,
		},
		{
			"one distant pair is a stretch",
			[][2]float32{{340, 1000}, {440, 1000}, {940, 1000}},
			tactum.TriadStretch,
		},
		{
			"tight bunch is a cluster",
			[][2]float32{{520, 1000}, {560, 1000}, {540, 1040}},
			tactum.TriadCluster,
		},
		{
			"two contacts classify too",
			[][2]float32{{340, 1000}, {740, 1000}},
			tactum.TriadFan,
		},
	}
	for _, test := range tests {
		got := engine.ClassifyTriad(frameWith(test.contacts...), &p)
		if got != test.expected {
			t.Fatalf("%s: got %v, expected %v", test.name, got, test.expected)
		}
	}
}

func TestClassifySeventh(t *testing.T) {
	p := tactum.DefaultParams()
	if got := engine.ClassifySeventh(p.WideFraction*p.SpreadMax+1, &p); got != tactum.SeventhWide {
		t.Fatalf("got %v, expected wide", got)
	}
	if got := engine.ClassifySeventh(p.WideFraction*p.SpreadMax-1, &p); got != tactum.SeventhCompact {
		t.Fatalf("got %v, expected compact", got)
	}
}
