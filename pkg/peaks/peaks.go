// Package peaks locates the density steps of a scanned neutral-density wedge
// in a gray-level histogram.
//
// The search is a single left-to-right scan. A candidate peak opens on a
// rising bin that lies more than MinDist gray levels past the last peak, and
// is then tracked up the slope while counts keep growing. Small dips are
// tolerated as long as the next larger bin falls within LookBackWidth of the
// position recorded so far. Bins below a noise floor derived from the tallest
// bin are ignored entirely.
package peaks

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"wedgecal/pkg/histogram"
)

const (
	// DefaultMaxPeaks is used when MaxPeaksAllowed is not positive
	DefaultMaxPeaks = 50

	// DefaultFreqStoN is used when FreqStoN is 1 or not positive
	DefaultFreqStoN = 10.0
)

// Config holds the peak search parameters.
type Config struct {
	// MaxPeaksAllowed caps the number of peaks returned
	MaxPeaksAllowed int `yaml:"maxPeaksAllowed"`

	// StartRange is the first gray value scanned
	StartRange int `yaml:"startRange"`

	// AvgDist is the half-width of the centroid window
	AvgDist int `yaml:"avgDist"`

	// MinDist is the minimum gray distance between two peaks
	MinDist int `yaml:"minDist"`

	// LookBackWidth is how far past the recorded peak position a larger
	// bin may still extend the same peak
	LookBackWidth int `yaml:"lookBackWidth"`

	// FreqStoN divides the tallest bin to get the noise floor
	FreqStoN float64 `yaml:"freqStoN"`

	// MinHistFreqPeakValue is the smallest count a peak bin may have
	MinHistFreqPeakValue int `yaml:"minHistFreqPeakValue"`

	// SmoothPeaks replaces each peak by its frequency-weighted centroid
	SmoothPeaks bool `yaml:"smoothPeaks"`

	// ShrinkMinDist narrows MinDist as more peaks are found
	ShrinkMinDist bool `yaml:"shrinkMinDist"`
}

// DefaultConfig returns the parameters tuned for 8-bit wedge scans.
func DefaultConfig() Config {
	return Config{
		MaxPeaksAllowed:      20,
		StartRange:           5,
		AvgDist:              3,
		MinDist:              5,
		LookBackWidth:        3,
		FreqStoN:             DefaultFreqStoN,
		MinHistFreqPeakValue: 30,
		SmoothPeaks:          true,
		ShrinkMinDist:        false,
	}
}

// normalized returns a copy of c with out-of-range parameters fixed up.
func (c Config) normalized() Config {
	if c.MaxPeaksAllowed <= 0 {
		c.MaxPeaksAllowed = DefaultMaxPeaks
	}
	if c.StartRange < 1 {
		c.StartRange = 1
	}
	if c.LookBackWidth > c.MinDist-1 {
		c.LookBackWidth = c.MinDist - 1
	}
	if c.LookBackWidth < 1 {
		c.LookBackWidth = 1
	}
	if c.FreqStoN == 1.0 || c.FreqStoN <= 0 {
		c.FreqStoN = DefaultFreqStoN
	}
	if c.AvgDist < 0 {
		c.AvgDist = 0
	}
	return c
}

// minDistSchedule narrows MinDist once the given number of peaks has been
// found. The key is the count of peaks (len(peaks)), not the 0-based index
// of the latest one: the 5th peak found narrows MinDist to 4. Wedge steps
// crowd together toward the dark end of the scan.
var minDistSchedule = map[int]int{
	5: 4,
	7: 3,
	9: 2,
}

// Result carries the peaks found together with the scan diagnostics.
type Result struct {
	// Peaks are the gray values of the peaks, ascending
	Peaks []int

	// Centroids are the unrounded peak positions; equal to Peaks when
	// centroid refinement is off
	Centroids []float64

	// MinFreq and MaxFreq are the smallest non-zero and the largest count
	// from StartRange on
	MinFreq int
	MaxFreq int

	// NoiseFloor is the count below which bins were ignored
	NoiseFloor float64

	// MinDist is the peak spacing in effect when the scan ended
	MinDist int
}

// FindPeaks returns the ascending gray values of at most cfg.MaxPeaksAllowed
// peaks in h. An empty result is valid.
func FindPeaks(h histogram.Histogram, cfg Config) []int {
	return Find(h, cfg).Peaks
}

// Find runs the peak search and reports its diagnostics.
func Find(h histogram.Histogram, cfg Config) Result {
	cfg = cfg.normalized()
	res := Result{MinDist: cfg.MinDist}

	maxGray := h.MaxGray()
	if cfg.StartRange > maxGray {
		return res
	}

	stats := h.Summarize(cfg.StartRange)
	res.MinFreq = stats.MinFreq
	res.MaxFreq = stats.MaxFreq

	minValueStoN := float64(res.MaxFreq) / cfg.FreqStoN
	res.NoiseFloor = math.Max(float64(cfg.MinHistFreqPeakValue), minValueStoN)

	var (
		peaks   []int
		lastVal = 0
		minDist = cfg.MinDist
	)

	for i := cfg.StartRange; i <= maxGray; i++ {
		freq := h[i]
		if float64(freq) < res.NoiseFloor {
			continue
		}

		k := len(peaks) - 1
		farEnough := k < 0 || i-peaks[k] > minDist
		rising := freq > h[i-1]

		switch {
		case farEnough && rising && len(peaks) < cfg.MaxPeaksAllowed:
			peaks = append(peaks, i)
			lastVal = freq
		case k >= 0 && freq >= lastVal && i-peaks[k] <= cfg.LookBackWidth:
			peaks[k] = i
			lastVal = freq
		}

		if cfg.ShrinkMinDist {
			if d, ok := minDistSchedule[len(peaks)]; ok && d < minDist {
				minDist = d
			}
		}
	}

	res.MinDist = minDist
	res.Peaks = peaks
	res.Centroids = make([]float64, len(peaks))
	for j, p := range peaks {
		res.Centroids[j] = float64(p)
	}

	if cfg.SmoothPeaks {
		for j, p := range peaks {
			c := Centroid(h, p, cfg.AvgDist)
			res.Centroids[j] = c
			res.Peaks[j] = int(math.Round(c))
		}
	}

	return res
}

// Centroid returns the frequency-weighted mean gray value over
// [peak-halfWidth, peak+halfWidth], clipped to the histogram. The peak
// itself is returned when the window holds no counts.
func Centroid(h histogram.Histogram, peak, halfWidth int) float64 {
	lo := peak - halfWidth
	if lo < 0 {
		lo = 0
	}
	hi := peak + halfWidth
	if hi > h.MaxGray() {
		hi = h.MaxGray()
	}
	if lo > hi {
		return float64(peak)
	}

	grays := make([]float64, 0, hi-lo+1)
	weights := make([]float64, 0, hi-lo+1)
	total := 0.0
	for j := lo; j <= hi; j++ {
		grays = append(grays, float64(j))
		weights = append(weights, float64(h[j]))
		total += float64(h[j])
	}
	if total == 0 {
		return float64(peak)
	}

	return stat.Mean(grays, weights)
}
