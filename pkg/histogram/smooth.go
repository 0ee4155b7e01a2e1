package histogram

import (
	"math"
)

// SmoothParams selects and tunes the smoother ahead of a peak search.
type SmoothParams struct {
	Enabled        bool `yaml:"enabled"`
	Iterations     int  `yaml:"iterations"`
	WindowWidth    int  `yaml:"windowWidth"`
	NoiseThreshold int  `yaml:"noiseThreshold"`
}

// DefaultSmoothParams returns a single light pass with a 5-bin window.
func DefaultSmoothParams() SmoothParams {
	return SmoothParams{
		Enabled:        false,
		Iterations:     1,
		WindowWidth:    5,
		NoiseThreshold: 10,
	}
}

// Apply smooths h with p, or returns a copy of h when p is disabled.
func (p SmoothParams) Apply(h Histogram) Histogram {
	if !p.Enabled {
		return h.Clone()
	}
	return Smooth(h, p.Iterations, p.WindowWidth, p.NoiseThreshold)
}

// Smooth applies the gated moving-average filter nTimes to h and returns the
// result. The input is never modified.
//
// For every bin the average over a window of windowWidth bins centered on it
// is computed, with indices outside the histogram clamped to the nearest edge.
// A bin whose deviation from that average exceeds noiseThreshold*0.001 percent
// of the total count is replaced by the mean of its neighbors (the window sum
// without the center). Quieter bins are kept as they are, so broad peaks
// survive while isolated spikes are flattened.
//
// nTimes below 1 is treated as 1. Even widths are widened to the next odd
// width and widths below 3 are raised to 3.
func Smooth(h Histogram, nTimes, windowWidth, noiseThreshold int) Histogram {
	out := h.Clone()
	if len(out) == 0 {
		return out
	}
	if nTimes < 1 {
		nTimes = 1
	}
	if windowWidth < 3 {
		windowWidth = 3
	}
	half := windowWidth / 2
	n := 2*half + 1

	gate := float64(noiseThreshold) * 0.001
	last := len(out) - 1

	for iter := 0; iter < nTimes; iter++ {
		sum := float64(out.Total())
		if sum == 0 {
			break
		}

		next := make(Histogram, len(out))
		for i := range out {
			windowSum := 0
			for j := i - half; j <= i+half; j++ {
				k := j
				if k < 0 {
					k = 0
				} else if k > last {
					k = last
				}
				windowSum += out[k]
			}

			value := float64(out[i])
			avg := float64(windowSum) / float64(n)
			noise := 100 * math.Abs(value-avg) / sum

			if noise > gate {
				next[i] = int(math.Round(float64(windowSum-out[i]) / float64(n-1)))
			} else {
				next[i] = out[i]
			}
		}
		out = next
	}

	return out
}
