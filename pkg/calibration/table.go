package calibration

import (
	"fmt"
	"math"

	"wedgecal/internal/models"
)

// Table is the calibration held for one image side. It starts as the
// identity map and only changes through Build or Import. Callers must not
// share a Table between goroutines without their own locking.
type Table struct {
	// Units is the name of the calibrated unit, e.g. "optical density"
	Units string

	// UnitsAbbrev is the short unit label, e.g. "od" or "CPM"
	UnitsAbbrev string

	// ManufacturerPartNbr identifies the physical wedge
	ManufacturerPartNbr string

	// WedgeROI is the image region the wedge histogram was taken from
	WedgeROI models.Region

	wedge        NDWedge
	maxGrayValue int
	odMap        []float64
	hasODMap     bool
}

// NewTable creates an uncalibrated table covering gray values [0, maxGray].
func NewTable(maxGray int) *Table {
	if maxGray <= 0 {
		maxGray = 255
	}
	return &Table{
		Units:        "optical density",
		UnitsAbbrev:  "od",
		maxGrayValue: maxGray,
		odMap:        IdentityMap(maxGray),
	}
}

// SetNDWedgeTable replaces the wedge control points. The table stays in its
// current calibrated or uncalibrated state until Build is called, unless
// maxGrayValue changes the gray range: the old map no longer fits, so the
// table drops back to the identity map over the new range.
func (t *Table) SetNDWedgeTable(grayPeaks []int, odValues []float64, maxNDsteps, maxPeaks, maxGrayValue int) {
	t.wedge = NewNDWedge(grayPeaks, odValues, maxNDsteps, maxPeaks)
	if maxGrayValue > 0 && maxGrayValue != t.maxGrayValue {
		t.maxGrayValue = maxGrayValue
		t.Reset()
	}
}

// SetPeaks replaces only the gray peaks, keeping the OD values. Used after a
// peak search when the OD values come from the wedge datasheet.
func (t *Table) SetPeaks(grayPeaks []int) {
	var peaks [MaxNDSteps]int
	copy(peaks[:], grayPeaks)
	t.wedge.GrayPeaks = peaks
	t.wedge.MaxPeaks = clampCount(len(grayPeaks))
}

// SetODValues replaces only the OD values, keeping the gray peaks.
func (t *Table) SetODValues(odValues []float64) {
	var ods [MaxNDSteps]float64
	copy(ods[:], odValues)
	t.wedge.ODValues = ods
	t.wedge.MaxNDSteps = clampCount(len(odValues))
}

// RecomputeCounts derives the peak and OD counts from the non-zero entries.
func (t *Table) RecomputeCounts() {
	t.wedge.RecomputeCounts()
}

// Wedge returns a copy of the wedge control points.
func (t *Table) Wedge() NDWedge {
	return t.wedge
}

// MaxGrayValue returns the largest gray value the table covers.
func (t *Table) MaxGrayValue() int {
	return t.maxGrayValue
}

// HasODMap reports whether the table holds a real calibration.
func (t *Table) HasODMap() bool {
	return t.hasODMap
}

// Build runs the piecewise-linear calibrator over the wedge table. On
// failure the table falls back to the identity map and the error says what
// to fix.
func (t *Table) Build() error {
	odMap, err := Build(t.maxGrayValue, t.wedge)
	if err != nil {
		t.Reset()
		return err
	}
	t.odMap = odMap
	t.hasODMap = true
	return nil
}

// Reset drops the calibration map, keeping the wedge table.
func (t *Table) Reset() {
	t.odMap = IdentityMap(t.maxGrayValue)
	t.hasODMap = false
}

// Lookup returns the calibrated value of gray. Without a calibration the
// gray value itself is returned.
func (t *Table) Lookup(gray uint8) float64 {
	return t.LookupInt(int(gray))
}

// LookupInt is Lookup for gray values held in an int. Values outside
// [0, MaxGrayValue] are clamped.
func (t *Table) LookupInt(gray int) float64 {
	if !t.hasODMap {
		return float64(gray)
	}
	if gray < 0 {
		gray = 0
	} else if gray >= len(t.odMap) {
		gray = len(t.odMap) - 1
	}
	return t.odMap[gray]
}

// Map returns a copy of the dense gray to value map.
func (t *Table) Map() []float64 {
	m := make([]float64, len(t.odMap))
	copy(m, t.odMap)
	return m
}

// Record is the flat field list a calibration file stores.
type Record struct {
	Units               string    `yaml:"units"`
	UnitsAbbrev         string    `yaml:"unitsAbbrev"`
	ManufacturerPartNbr string    `yaml:"manufacturerPartNbr"`
	NDCWX1              int       `yaml:"ndcwx1"`
	NDCWY1              int       `yaml:"ndcwy1"`
	NDCWX2              int       `yaml:"ndcwx2"`
	NDCWY2              int       `yaml:"ndcwy2"`
	MaxNDSteps          int       `yaml:"maxNDsteps"`
	MaxPeaks            int       `yaml:"maxPeaks"`
	MaxGrayValue        int       `yaml:"maxGrayValue"`
	HasODMapFlag        bool      `yaml:"hasODmapFlag"`
	NDWedgeODValues     []float64 `yaml:"ndWedgeODvalues,flow"`
	NDWedgeGrayValues   []int     `yaml:"ndWedgeGrayValues,flow"`
	MapGrayToOD         []float64 `yaml:"mapGrayToOD,flow"`
}

// Export returns the table as a Record. The wedge arrays always have
// MaxNDSteps entries and the map has MaxGrayValue+1 entries.
func (t *Table) Export() Record {
	r := Record{
		Units:               t.Units,
		UnitsAbbrev:         t.UnitsAbbrev,
		ManufacturerPartNbr: t.ManufacturerPartNbr,
		NDCWX1:              t.WedgeROI.X1,
		NDCWY1:              t.WedgeROI.Y1,
		NDCWX2:              t.WedgeROI.X2,
		NDCWY2:              t.WedgeROI.Y2,
		MaxNDSteps:          t.wedge.MaxNDSteps,
		MaxPeaks:            t.wedge.MaxPeaks,
		MaxGrayValue:        t.maxGrayValue,
		HasODMapFlag:        t.hasODMap,
		NDWedgeODValues:     make([]float64, MaxNDSteps),
		NDWedgeGrayValues:   make([]int, MaxNDSteps),
		MapGrayToOD:         t.Map(),
	}
	copy(r.NDWedgeODValues, t.wedge.ODValues[:])
	copy(r.NDWedgeGrayValues, t.wedge.GrayPeaks[:])
	return r
}

// Import replaces the table with the contents of r. The stored map is used
// as is; it is not rebuilt from the wedge arrays.
func (t *Table) Import(r Record) error {
	if len(r.NDWedgeODValues) != MaxNDSteps {
		return fmt.Errorf("ndWedgeODvalues has %d entries, want %d", len(r.NDWedgeODValues), MaxNDSteps)
	}
	if len(r.NDWedgeGrayValues) != MaxNDSteps {
		return fmt.Errorf("ndWedgeGrayValues has %d entries, want %d", len(r.NDWedgeGrayValues), MaxNDSteps)
	}
	if r.MaxGrayValue <= 0 {
		return fmt.Errorf("invalid maxGrayValue %d", r.MaxGrayValue)
	}
	if len(r.MapGrayToOD) != r.MaxGrayValue+1 {
		return fmt.Errorf("mapGrayToOD has %d entries, want %d", len(r.MapGrayToOD), r.MaxGrayValue+1)
	}
	if r.MaxNDSteps < 0 || r.MaxNDSteps > MaxNDSteps || r.MaxPeaks < 0 || r.MaxPeaks > MaxNDSteps {
		return fmt.Errorf("wedge counts %d/%d outside [0, %d]", r.MaxNDSteps, r.MaxPeaks, MaxNDSteps)
	}

	for g, v := range r.MapGrayToOD {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("mapGrayToOD[%d]=%g is not a finite number", g, v)
		}
	}

	t.Units = r.Units
	t.UnitsAbbrev = r.UnitsAbbrev
	t.ManufacturerPartNbr = r.ManufacturerPartNbr
	t.WedgeROI = models.Region{X1: r.NDCWX1, Y1: r.NDCWY1, X2: r.NDCWX2, Y2: r.NDCWY2}
	t.wedge = NewNDWedge(r.NDWedgeGrayValues, r.NDWedgeODValues, r.MaxNDSteps, r.MaxPeaks)
	t.maxGrayValue = r.MaxGrayValue
	t.odMap = make([]float64, len(r.MapGrayToOD))
	copy(t.odMap, r.MapGrayToOD)
	t.hasODMap = r.HasODMapFlag
	return nil
}
