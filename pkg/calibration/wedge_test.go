package calibration

import (
	"errors"
	"math"
	"math/rand"
	"sort"
	"testing"

	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/interp"
)

const tolerance = 1e-9

// wedgeOf builds a wedge table with matching counts
func wedgeOf(grayPeaks []int, odValues []float64) NDWedge {
	return NewNDWedge(grayPeaks, odValues, len(odValues), len(grayPeaks))
}

// randomWedge returns n strictly increasing peaks in [1, 254] and n strictly
// increasing positive OD values
func randomWedge(rng *rand.Rand, n int) ([]int, []float64) {
	perm := rng.Perm(254)[:n]
	grays := make([]int, n)
	for i, p := range perm {
		grays[i] = p + 1
	}
	sort.Ints(grays)

	ods := make([]float64, n)
	od := 0.0
	for i := range ods {
		od += 0.01 + rng.Float64()
		ods[i] = od
	}
	return grays, ods
}

func TestBuildConcreteScenario(t *testing.T) {
	odMap, err := Build(255, wedgeOf([]int{20, 60, 100}, []float64{0.1, 0.5, 1.0}))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(odMap) != 256 {
		t.Fatalf("Expected 256 map entries, got %d", len(odMap))
	}

	checks := map[int]float64{
		0:   0.0,
		10:  0.05,
		20:  0.1,
		40:  0.3,
		60:  0.5,
		80:  0.75,
		100: 1.0,
		// past the last peak the [60,100] slope of 0.0125 continues
		120: 1.25,
		255: 1.0 + 0.0125*155,
	}
	for g, want := range checks {
		if !scalar.EqualWithinAbs(odMap[g], want, tolerance) {
			t.Errorf("mapGrayToOD[%d]: expected %f, got %f", g, want, odMap[g])
		}
	}
}

func TestBuildMatchesPiecewiseLinear(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for trial := 0; trial < 50; trial++ {
		n := 1 + rng.Intn(MaxNDSteps)
		grays, ods := randomWedge(rng, n)

		odMap, err := Build(255, wedgeOf(grays, ods))
		if err != nil {
			t.Fatalf("Trial %d: Build failed: %v", trial, err)
		}

		xs := []float64{0}
		ys := []float64{0}
		for i := range grays {
			xs = append(xs, float64(grays[i]))
			ys = append(ys, ods[i])
		}
		var pl interp.PiecewiseLinear
		if err := pl.Fit(xs, ys); err != nil {
			t.Fatalf("Trial %d: fit failed: %v", trial, err)
		}

		last := grays[n-1]
		for g := 0; g <= last; g++ {
			want := pl.Predict(float64(g))
			if !scalar.EqualWithinAbs(odMap[g], want, 1e-9) {
				t.Fatalf("Trial %d: gray %d expected %f, got %f", trial, g, want, odMap[g])
			}
		}

		// Extrapolation reuses the slope of the last interior segment
		prevGray, prevOD := 0.0, 0.0
		if n > 1 {
			prevGray, prevOD = float64(grays[n-2]), ods[n-2]
		}
		slope := (ods[n-1] - prevOD) / (float64(last) - prevGray)
		for g := last; g <= 255; g++ {
			want := math.Max(ods[n-1]+slope*float64(g-last), 0)
			if !scalar.EqualWithinAbs(odMap[g], want, 1e-9) {
				t.Fatalf("Trial %d: extrapolated gray %d expected %f, got %f", trial, g, want, odMap[g])
			}
		}
	}
}

func TestBuildMonotonicAndNonNegative(t *testing.T) {
	rng := rand.New(rand.NewSource(11))

	for trial := 0; trial < 100; trial++ {
		grays, ods := randomWedge(rng, 2+rng.Intn(MaxNDSteps-1))

		odMap, err := Build(255, wedgeOf(grays, ods))
		if err != nil {
			t.Fatalf("Trial %d: Build failed: %v", trial, err)
		}
		for g := range odMap {
			if odMap[g] < 0 {
				t.Fatalf("Trial %d: negative value %f at gray %d", trial, odMap[g], g)
			}
			if g > 0 && odMap[g] < odMap[g-1]-1e-12 {
				t.Fatalf("Trial %d: map decreases at gray %d (%f < %f)", trial, g, odMap[g], odMap[g-1])
			}
		}
	}
}

func TestBuildClipsNegativeValues(t *testing.T) {
	// A negative first OD pulls the first two segments below zero
	w := NewNDWedge([]int{50, 100}, []float64{-0.5, 1.0}, 2, 2)
	odMap, err := Build(255, w)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	for g, v := range odMap {
		if v < 0 {
			t.Fatalf("Negative value %f at gray %d", v, g)
		}
	}
	if odMap[25] != 0 || odMap[60] != 0 {
		t.Errorf("Expected clipped zeros at 25 and 60, got %f and %f", odMap[25], odMap[60])
	}
	if !scalar.EqualWithinAbs(odMap[75], 0.25, tolerance) {
		t.Errorf("Expected 0.25 at gray 75, got %f", odMap[75])
	}

	// A flat last segment stays flat past the last peak
	w = wedgeOf([]int{100, 200}, []float64{2.0, 2.0})
	odMap, err = Build(255, w)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if !scalar.EqualWithinAbs(odMap[255], 2.0, tolerance) {
		t.Errorf("Expected flat extrapolation 2.0 at 255, got %f", odMap[255])
	}
}

func TestBuildDegenerateSegment(t *testing.T) {
	odMap, err := Build(255, wedgeOf([]int{50, 50}, []float64{0.5, 1.2}))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	for g, v := range odMap {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("Non-finite value %f at gray %d", v, g)
		}
	}
	if !scalar.EqualWithinAbs(odMap[49], 0.49, tolerance) {
		t.Errorf("Expected 0.49 below the saturated peak, got %f", odMap[49])
	}
	// The open segment starts at the second control point and keeps the first slope
	if !scalar.EqualWithinAbs(odMap[50], 1.2, tolerance) {
		t.Errorf("Expected 1.2 at the saturated peak, got %f", odMap[50])
	}
	if !scalar.EqualWithinAbs(odMap[51], 1.21, tolerance) {
		t.Errorf("Expected 1.21 above the saturated peak, got %f", odMap[51])
	}
}

func TestBuildDegenerateSegmentHoldsValue(t *testing.T) {
	// Three peaks with the last two saturated at the top gray value
	odMap, err := Build(255, wedgeOf([]int{100, 255, 255}, []float64{1.0, 2.0, 3.0}))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	for g, v := range odMap {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("Non-finite value %f at gray %d", v, g)
		}
	}
	// Segment [255,255] and the open segment past it both hold the value from [100,255]
	if !scalar.EqualWithinAbs(odMap[255], 2.0, tolerance) {
		t.Errorf("Expected held value 2.0 at 255, got %f", odMap[255])
	}
}

func TestBuildFirstPeakAtZero(t *testing.T) {
	w := NDWedge{MaxNDSteps: 2, MaxPeaks: 2}
	w.GrayPeaks[0], w.GrayPeaks[1] = 0, 100
	w.ODValues[0], w.ODValues[1] = 0.5, 1.5

	odMap, err := Build(255, w)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if !scalar.EqualWithinAbs(odMap[0], 0.5, tolerance) {
		t.Errorf("Expected 0.5 at gray 0, got %f", odMap[0])
	}
	if !scalar.EqualWithinAbs(odMap[50], 1.0, tolerance) {
		t.Errorf("Expected 1.0 at gray 50, got %f", odMap[50])
	}
}

func TestBuildUsesShorterArray(t *testing.T) {
	// Five peaks but only three OD values: the extra peaks are ignored
	w := NewNDWedge([]int{20, 60, 100, 140, 180}, []float64{0.1, 0.5, 1.0}, 3, 5)
	odMap, err := Build(255, w)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	reference, _ := Build(255, wedgeOf([]int{20, 60, 100}, []float64{0.1, 0.5, 1.0}))
	for g := range odMap {
		if odMap[g] != reference[g] {
			t.Fatalf("Gray %d: expected %f, got %f", g, reference[g], odMap[g])
		}
	}
}

func TestBuildIdempotent(t *testing.T) {
	w := wedgeOf([]int{12, 40, 77, 130, 201}, []float64{0.05, 0.3, 0.9, 1.7, 2.6})

	first, err := Build(255, w)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	second, err := Build(255, w)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	for g := range first {
		if math.Float64bits(first[g]) != math.Float64bits(second[g]) {
			t.Fatalf("Gray %d differs between builds: %v vs %v", g, first[g], second[g])
		}
	}
}

func TestBuildValidation(t *testing.T) {
	overfull := NDWedge{MaxNDSteps: MaxNDSteps + 1, MaxPeaks: 3}
	negative := NDWedge{MaxNDSteps: 3, MaxPeaks: -1}

	tests := []struct {
		name  string
		wedge NDWedge
		want  error
		kind  ErrorKind
		index int
	}{
		{"no OD steps", wedgeOf([]int{20, 60}, nil), ErrNoODSteps, NoODSteps, -1},
		{"no peaks", wedgeOf(nil, []float64{0.1, 0.5}), ErrNoPeaks, NoPeaks, -1},
		{"both empty reports OD first", NDWedge{}, ErrNoODSteps, NoODSteps, -1},
		{"too many OD steps", overfull, ErrStructural, StructuralViolation, -1},
		{"negative peak count", negative, ErrStructural, StructuralViolation, -1},
		{"OD decreases", wedgeOf([]int{20, 60, 100}, []float64{0.1, 0.9, 0.5}), ErrNonMonotonicOD, NonMonotonicOD, 2},
		{"peaks decrease", wedgeOf([]int{20, 100, 60}, []float64{0.1, 0.5, 0.9}), ErrNonMonotonicPeaks, NonMonotonicPeaks, 2},
		{"OD checked before peaks", wedgeOf([]int{60, 20}, []float64{0.9, 0.5}), ErrNonMonotonicOD, NonMonotonicOD, 1},
		{"OD not a number", wedgeOf([]int{20, 60, 100}, []float64{0.1, math.NaN(), 1.0}), ErrNonMonotonicOD, NonMonotonicOD, 1},
		{"first OD not a number", wedgeOf([]int{20, 60}, []float64{math.NaN(), 0.5}), ErrNonMonotonicOD, NonMonotonicOD, 0},
		{"infinite OD", wedgeOf([]int{20, 60, 100}, []float64{0.1, 0.5, math.Inf(1)}), ErrNonMonotonicOD, NonMonotonicOD, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			odMap, err := Build(255, tt.wedge)
			if err == nil {
				t.Fatalf("Expected an error, got a map of %d entries", len(odMap))
			}
			if odMap != nil {
				t.Errorf("Expected no map on failure")
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected errors.Is(%v, %v)", err, tt.want)
			}
			var ce *CalibrationError
			if !errors.As(err, &ce) {
				t.Fatalf("Expected *CalibrationError, got %T", err)
			}
			if ce.Kind != tt.kind {
				t.Errorf("Expected kind %v, got %v", tt.kind, ce.Kind)
			}
			if ce.Index != tt.index {
				t.Errorf("Expected index %d, got %d", tt.index, ce.Index)
			}
			if IsInputDataError(err) == (tt.kind == StructuralViolation) {
				t.Errorf("IsInputDataError(%v) returned the wrong class", err)
			}
		})
	}
}

func TestBuildAllowsEqualNeighbours(t *testing.T) {
	// Non-decreasing, not strictly increasing, data is valid
	if _, err := Build(255, wedgeOf([]int{20, 20, 60}, []float64{0.1, 0.1, 0.5})); err != nil {
		t.Errorf("Expected equal neighbours to be accepted, got %v", err)
	}
}

func TestBuildPeakPastMaxGray(t *testing.T) {
	odMap, err := Build(99, wedgeOf([]int{50, 150}, []float64{0.5, 1.5}))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(odMap) != 100 {
		t.Fatalf("Expected 100 entries, got %d", len(odMap))
	}
	if !scalar.EqualWithinAbs(odMap[99], 0.99, tolerance) {
		t.Errorf("Expected 0.99 at gray 99, got %f", odMap[99])
	}
}

func TestRecomputeCounts(t *testing.T) {
	// A zero OD is not counted even when the peak next to it is
	w := NewNDWedge([]int{20, 60, 100}, []float64{0.0, 0.5, 1.0}, 0, 0)
	w.RecomputeCounts()

	if w.MaxPeaks != 3 {
		t.Errorf("Expected 3 peaks, got %d", w.MaxPeaks)
	}
	if w.MaxNDSteps != 2 {
		t.Errorf("Expected 2 OD steps, got %d", w.MaxNDSteps)
	}
	if w.Segments() != 2 {
		t.Errorf("Expected 2 usable control points, got %d", w.Segments())
	}
}

func TestNewNDWedgeTruncates(t *testing.T) {
	grays := make([]int, 30)
	ods := make([]float64, 30)
	for i := range grays {
		grays[i] = i + 1
		ods[i] = float64(i+1) / 10
	}

	w := NewNDWedge(grays, ods, 30, 30)
	if w.MaxNDSteps != MaxNDSteps || w.MaxPeaks != MaxNDSteps {
		t.Errorf("Expected counts clipped to %d, got %d/%d", MaxNDSteps, w.MaxNDSteps, w.MaxPeaks)
	}
	if w.GrayPeaks[MaxNDSteps-1] != MaxNDSteps {
		t.Errorf("Expected last kept peak %d, got %d", MaxNDSteps, w.GrayPeaks[MaxNDSteps-1])
	}

	w = NewNDWedge([]int{5}, []float64{0.2}, 1, 1)
	for i := 1; i < MaxNDSteps; i++ {
		if w.GrayPeaks[i] != 0 || w.ODValues[i] != 0 {
			t.Fatalf("Expected zero padding at %d", i)
		}
	}
}
