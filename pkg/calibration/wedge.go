// Package calibration turns the gray-scale peaks of a scanned neutral-density
// step wedge into a dense gray value to optical density map.
//
// The map is piecewise linear. Consecutive (gray peak, OD) pairs define the
// interior segments; the segment below the first peak runs from (0, 0.0) and
// the segment above the last peak extrapolates with the slope of the segment
// before it. OD values are never negative.
package calibration

import (
	"fmt"
	"math"
)

// MaxNDSteps is the capacity of a wedge table.
const MaxNDSteps = 20

// NDWedge holds the wedge control points. Entries past the counts are unused
// and zero.
type NDWedge struct {
	// GrayPeaks are the gray values of the wedge steps, ascending
	GrayPeaks [MaxNDSteps]int

	// ODValues are the calibrated values of the wedge steps, ascending
	ODValues [MaxNDSteps]float64

	// MaxPeaks is the number of meaningful GrayPeaks entries
	MaxPeaks int

	// MaxNDSteps is the number of meaningful ODValues entries
	MaxNDSteps int
}

// NewNDWedge copies grayPeaks and odValues into a wedge table, truncating
// anything past MaxNDSteps. The counts are clipped to [0, MaxNDSteps].
func NewNDWedge(grayPeaks []int, odValues []float64, maxNDsteps, maxPeaks int) NDWedge {
	var w NDWedge
	copy(w.GrayPeaks[:], grayPeaks)
	copy(w.ODValues[:], odValues)
	w.MaxNDSteps = clampCount(maxNDsteps)
	w.MaxPeaks = clampCount(maxPeaks)
	return w
}

func clampCount(n int) int {
	if n < 0 {
		return 0
	}
	if n > MaxNDSteps {
		return MaxNDSteps
	}
	return n
}

// RecomputeCounts sets MaxPeaks and MaxNDSteps to the number of positive
// entries in each array. The two arrays are counted independently.
func (w *NDWedge) RecomputeCounts() {
	w.MaxPeaks = 0
	for _, p := range w.GrayPeaks {
		if p > 0 {
			w.MaxPeaks++
		}
	}
	w.MaxNDSteps = 0
	for _, od := range w.ODValues {
		if od > 0 {
			w.MaxNDSteps++
		}
	}
}

// Segments returns the number of usable control points, the smaller of the
// two counts.
func (w NDWedge) Segments() int {
	if w.MaxNDSteps < w.MaxPeaks {
		return w.MaxNDSteps
	}
	return w.MaxPeaks
}

// Validate checks the wedge table in the order Build does and returns the
// first problem found.
func (w NDWedge) Validate() error {
	if w.MaxNDSteps == 0 {
		return &CalibrationError{Kind: NoODSteps, Index: -1,
			Message: "enter the OD values of the wedge steps"}
	}
	if w.MaxPeaks == 0 {
		return &CalibrationError{Kind: NoPeaks, Index: -1,
			Message: "find or enter the gray values of the wedge steps"}
	}
	if w.MaxNDSteps < 0 || w.MaxNDSteps > len(w.ODValues) {
		return &CalibrationError{Kind: StructuralViolation, Index: -1,
			Message: fmt.Sprintf("%d OD steps for a table of %d", w.MaxNDSteps, len(w.ODValues))}
	}
	if w.MaxPeaks < 0 || w.MaxPeaks > len(w.GrayPeaks) {
		return &CalibrationError{Kind: StructuralViolation, Index: -1,
			Message: fmt.Sprintf("%d peaks for a table of %d", w.MaxPeaks, len(w.GrayPeaks))}
	}
	for i := 0; i < w.MaxNDSteps; i++ {
		if math.IsNaN(w.ODValues[i]) || math.IsInf(w.ODValues[i], 0) {
			return &CalibrationError{Kind: NonMonotonicOD, Index: i,
				Message: fmt.Sprintf("OD[%d]=%g is not a finite number", i, w.ODValues[i])}
		}
		if i > 0 && w.ODValues[i] < w.ODValues[i-1] {
			return &CalibrationError{Kind: NonMonotonicOD, Index: i,
				Message: fmt.Sprintf("OD[%d]=%g is less than OD[%d]=%g", i, w.ODValues[i], i-1, w.ODValues[i-1])}
		}
	}
	for i := 1; i < w.MaxPeaks; i++ {
		if w.GrayPeaks[i] < w.GrayPeaks[i-1] {
			return &CalibrationError{Kind: NonMonotonicPeaks, Index: i,
				Message: fmt.Sprintf("peak[%d]=%d is less than peak[%d]=%d", i, w.GrayPeaks[i], i-1, w.GrayPeaks[i-1])}
		}
	}
	return nil
}

// Build computes the gray to OD map for gray values [0, maxGray].
//
// Segment i runs from the previous peak (or 0) to peak i (or maxGray for the
// last, open segment). Segments are written left to right, so a peak's own
// value comes from the segment that starts at it. A segment whose two ends
// share a gray value holds the value already stored there. Peaks outside
// [0, maxGray] only contribute their in-range part.
func Build(maxGray int, w NDWedge) ([]float64, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	if maxGray <= 0 {
		maxGray = 255
	}

	odMap := make([]float64, maxGray+1)
	nSegments := w.Segments()

	var m, b float64
	for i := 0; i <= nSegments; i++ {
		peakA, peakB := 0, maxGray
		odA := 0.0
		if i > 0 {
			peakA = w.GrayPeaks[i-1]
			odA = w.ODValues[i-1]
		}
		if i < nSegments {
			peakB = w.GrayPeaks[i]
		}
		degenerate := peakA == peakB

		switch {
		case i < nSegments && !degenerate:
			odB := w.ODValues[i]
			m = (odB - odA) / float64(peakB-peakA)
			b = odA - m*float64(peakA)
		case i < nSegments && i == 0:
			// first peak at gray 0
			m, b = 0, w.ODValues[i]
		case i == nSegments:
			// extrapolate with the last slope
			b = odA - m*float64(peakA)
		}

		lo, hi := peakA, peakB
		if lo < 0 {
			lo = 0
		}
		if hi > maxGray {
			hi = maxGray
		}
		for g := lo; g <= hi; g++ {
			if degenerate && i > 0 {
				// saturated: hold the last value
				continue
			}
			odMap[g] = math.Max(m*float64(g)+b, 0)
		}
	}

	return odMap, nil
}

// IdentityMap returns the 1:1 fallback map for gray values [0, maxGray].
func IdentityMap(maxGray int) []float64 {
	if maxGray <= 0 {
		maxGray = 255
	}
	odMap := make([]float64, maxGray+1)
	for g := range odMap {
		odMap[g] = float64(g)
	}
	return odMap
}
