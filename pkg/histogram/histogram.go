// Package histogram provides the gray-level histogram used as input to the
// wedge peak search, together with the region histogram routine and the
// gated moving-average smoother.
package histogram

import (
	"image"
	"image/color"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// DefaultMaxGray is the largest gray value of an 8-bit image.
const DefaultMaxGray = 255

// Histogram holds one pixel count per gray level, indexed 0..MaxGray().
type Histogram []int

// New creates an empty histogram covering gray values [0, maxGray].
// A non-positive maxGray falls back to DefaultMaxGray.
func New(maxGray int) Histogram {
	if maxGray <= 0 {
		maxGray = DefaultMaxGray
	}
	return make(Histogram, maxGray+1)
}

// MaxGray returns the largest gray value the histogram covers.
func (h Histogram) MaxGray() int {
	return len(h) - 1
}

// Clone returns an independent copy of the histogram.
func (h Histogram) Clone() Histogram {
	c := make(Histogram, len(h))
	copy(c, h)
	return c
}

// Float64s returns the counts as float64 values
func (h Histogram) Float64s() []float64 {
	v := make([]float64, len(h))
	for i, n := range h {
		v[i] = float64(n)
	}
	return v
}

// Total returns the number of pixels counted.
func (h Histogram) Total() int {
	total := 0
	for _, n := range h {
		total += n
	}
	return total
}

// Stats summarizes a histogram.
type Stats struct {
	// MinFreq is the smallest non-zero count
	MinFreq int

	// MaxFreq is the largest count
	MaxFreq int

	// MeanGray is the count-weighted mean gray value
	MeanGray float64

	// Total is the sum of all counts
	Total int
}

// Summarize computes Stats over gray values [from, MaxGray()].
// Zero bins are ignored for MinFreq.
func (h Histogram) Summarize(from int) Stats {
	var s Stats
	if from < 0 {
		from = 0
	}
	if from >= len(h) {
		return s
	}

	counts := h[from:].Float64s()
	grays := make([]float64, len(counts))
	for i := range grays {
		grays[i] = float64(from + i)
	}

	s.Total = int(floats.Sum(counts))
	s.MaxFreq = int(floats.Max(counts))
	for _, n := range h[from:] {
		if n > 0 && (s.MinFreq == 0 || n < s.MinFreq) {
			s.MinFreq = n
		}
	}
	if s.Total > 0 {
		s.MeanGray = stat.Mean(grays, counts)
	}
	return s
}

// FromGray counts the pixels of img inside roi. The region is clipped to the
// image bounds; an empty intersection yields an all-zero histogram.
func FromGray(img *image.Gray, roi image.Rectangle) Histogram {
	h := New(DefaultMaxGray)
	r := roi.Intersect(img.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		off := img.PixOffset(r.Min.X, y)
		for _, v := range img.Pix[off : off+r.Dx()] {
			h[v]++
		}
	}
	return h
}

// FromImage counts the pixels of an arbitrary image inside roi after
// converting each pixel to 8-bit gray.
func FromImage(img image.Image, roi image.Rectangle) Histogram {
	if g, ok := img.(*image.Gray); ok {
		return FromGray(g, roi)
	}

	h := New(DefaultMaxGray)
	r := roi.Intersect(img.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			g := color.GrayModel.Convert(img.At(x, y)).(color.Gray)
			h[g.Y]++
		}
	}
	return h
}
