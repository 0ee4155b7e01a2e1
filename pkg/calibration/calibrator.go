package calibration

import (
	"fmt"

	"wedgecal/pkg/histogram"
	"wedgecal/pkg/peaks"
)

// Params controls a calibration run from a wedge histogram.
type Params struct {
	// Smoothing is applied to the histogram before the peak search
	Smoothing histogram.SmoothParams

	// Peaks configures the peak search
	Peaks peaks.Config

	// ODValues are the known OD values of the wedge steps, ascending
	ODValues []float64

	// ExpectedSteps is the number of wedge steps the scan should show.
	// Zero disables the check.
	ExpectedSteps int

	// Verbose prints progress messages when no callback is set
	Verbose bool
}

// ProgressCallback receives the name of the stage being run and a message
type ProgressCallback func(stage, message string)

// Calibrator runs the smoothing, peak search and map construction steps
// against one Table.
type Calibrator struct {
	params           Params
	table            *Table
	progressCallback ProgressCallback

	// last run
	smoothed histogram.Histogram
	result   peaks.Result
}

// NewCalibrator creates a calibrator that writes into table.
func NewCalibrator(table *Table, params Params) *Calibrator {
	return &Calibrator{
		params: params,
		table:  table,
	}
}

// SetProgressCallback sets a callback for progress messages
func (c *Calibrator) SetProgressCallback(callback ProgressCallback) {
	c.progressCallback = callback
}

// reportProgress calls the progress callback if set, otherwise prints when verbose
func (c *Calibrator) reportProgress(stage, message string) {
	if c.progressCallback != nil {
		c.progressCallback(stage, message)
	} else if c.params.Verbose {
		fmt.Printf("%s: %s\n", stage, message)
	}
}

// Process finds the wedge peaks in h, pairs them with the configured OD
// values and builds the table's map. The peaks found are returned even when
// the build fails, so the caller can show them for editing.
func (c *Calibrator) Process(h histogram.Histogram) ([]int, error) {
	if len(h) < 2 {
		return nil, fmt.Errorf("histogram has %d bins", len(h))
	}

	c.smoothed = c.params.Smoothing.Apply(h)
	if c.params.Smoothing.Enabled {
		c.reportProgress("smooth", fmt.Sprintf("%d pass(es), window %d, noise threshold %d",
			c.params.Smoothing.Iterations, c.params.Smoothing.WindowWidth, c.params.Smoothing.NoiseThreshold))
	}

	c.result = peaks.Find(c.smoothed, c.params.Peaks)
	found := c.result.Peaks
	c.reportProgress("peaks", fmt.Sprintf("found %d peak(s) %v above noise floor %.1f",
		len(found), found, c.result.NoiseFloor))

	if c.params.ExpectedSteps > 0 && len(found) != c.params.ExpectedSteps {
		c.reportProgress("peaks", fmt.Sprintf("warning: expected %d wedge steps, found %d",
			c.params.ExpectedSteps, len(found)))
	}

	c.table.SetNDWedgeTable(found, c.params.ODValues, len(c.params.ODValues), len(found), h.MaxGray())
	if err := c.table.Build(); err != nil {
		return found, fmt.Errorf("building calibration: %w", err)
	}

	w := c.table.Wedge()
	c.reportProgress("build", fmt.Sprintf("calibrated %d segment(s) over gray [0, %d]",
		w.Segments()+1, c.table.MaxGrayValue()))
	return found, nil
}

// Rebuild builds the table from explicitly supplied control points, for
// example ones restored from a file or corrected by hand.
func (c *Calibrator) Rebuild(grayPeaks []int, odValues []float64) error {
	c.table.SetNDWedgeTable(grayPeaks, odValues, len(odValues), len(grayPeaks), c.table.MaxGrayValue())
	if err := c.table.Build(); err != nil {
		return fmt.Errorf("building calibration: %w", err)
	}
	return nil
}

// Smoothed returns the histogram the last peak search ran on.
func (c *Calibrator) Smoothed() histogram.Histogram {
	return c.smoothed
}

// PeakResult returns the diagnostics of the last peak search.
func (c *Calibrator) PeakResult() peaks.Result {
	return c.result
}

// Table returns the table the calibrator writes into.
func (c *Calibrator) Table() *Table {
	return c.table
}
