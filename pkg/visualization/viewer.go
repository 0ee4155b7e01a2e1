package visualization

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"wedgecal/pkg/calibration"
	"wedgecal/pkg/imageio"
)

// RegionStats summarizes the calibrated values inside an image region
type RegionStats struct {
	// Pixels is the number of pixels measured
	Pixels int

	// Mean and StdDev of the calibrated values
	Mean   float64
	StdDev float64

	// Min and Max calibrated values
	Min float64
	Max float64

	// Integrated is the sum of the calibrated values
	Integrated float64
}

// Viewer applies a calibration table to a gray image
type Viewer struct {
	// img is the uncalibrated gray image
	img *image.Gray

	// table maps gray values to calibrated values
	table *calibration.Table

	// displayMax is the calibrated value shown as full white
	displayMax float64
}

// NewViewer creates a viewer over img. A non-positive displayMax uses the
// largest value in the table's map.
func NewViewer(img *image.Gray, table *calibration.Table, displayMax float64) *Viewer {
	if displayMax <= 0 {
		displayMax = floats.Max(table.Map())
	}
	if displayMax <= 0 {
		displayMax = 1
	}
	return &Viewer{
		img:        img,
		table:      table,
		displayMax: displayMax,
	}
}

// CalibratedValues returns the calibrated value of every pixel in row-major order
func (v *Viewer) CalibratedValues() []float64 {
	bounds := v.img.Bounds()
	values := make([]float64, 0, bounds.Dx()*bounds.Dy())
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			values = append(values, v.table.Lookup(v.img.GrayAt(x, y).Y))
		}
	}
	return values
}

// CalibratedImage renders the calibrated values as a 16-bit gray image, 0
// as black and the display maximum as white
func (v *Viewer) CalibratedImage() *image.Gray16 {
	bounds := v.img.Bounds()
	out := image.NewGray16(bounds)

	// one conversion per gray level
	var levels [256]uint16
	for g := range levels {
		value := v.table.Lookup(uint8(g)) / v.displayMax
		levels[g] = uint16(math.Max(0, math.Min(65535, math.Round(value*65535))))
	}

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			out.SetGray16(x, y, color.Gray16{Y: levels[v.img.GrayAt(x, y).Y]})
		}
	}
	return out
}

// MeasureRegion returns statistics of the calibrated values inside rect
func (v *Viewer) MeasureRegion(rect image.Rectangle) (RegionStats, error) {
	var s RegionStats

	if rect.Empty() {
		return s, fmt.Errorf("region %v is empty", rect)
	}
	if !rect.In(v.img.Bounds()) {
		return s, fmt.Errorf("region %v extends beyond image bounds %v", rect, v.img.Bounds())
	}

	values := make([]float64, 0, rect.Dx()*rect.Dy())
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			values = append(values, v.table.Lookup(v.img.GrayAt(x, y).Y))
		}
	}

	s.Pixels = len(values)
	s.Mean = stat.Mean(values, nil)
	if len(values) > 1 {
		s.StdDev = stat.StdDev(values, nil)
	}
	s.Min = floats.Min(values)
	s.Max = floats.Max(values)
	s.Integrated = floats.Sum(values)
	return s, nil
}

// SaveCalibratedImage renders the calibrated image and writes it to path
func (v *Viewer) SaveCalibratedImage(path string) error {
	return imageio.Save(v.CalibratedImage(), path)
}
