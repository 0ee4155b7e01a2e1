package calibration

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a calibration could not be built.
type ErrorKind int

const (
	// NoODSteps means the wedge table holds no OD values
	NoODSteps ErrorKind = iota + 1

	// NoPeaks means the wedge table holds no gray-scale peaks
	NoPeaks

	// NonMonotonicOD means the OD values decrease somewhere
	NonMonotonicOD

	// NonMonotonicPeaks means the gray peaks decrease somewhere
	NonMonotonicPeaks

	// StructuralViolation means a count exceeds the table capacity
	StructuralViolation
)

// String returns a short name for the kind.
func (k ErrorKind) String() string {
	switch k {
	case NoODSteps:
		return "no OD calibration steps"
	case NoPeaks:
		return "no gray-scale peak values"
	case NonMonotonicOD:
		return "bad OD data"
	case NonMonotonicPeaks:
		return "bad gray-peak data"
	case StructuralViolation:
		return "wedge table capacity exceeded"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// CalibrationError reports a failed Build. Index is the offending array
// position for the non-monotonic kinds and -1 otherwise.
type CalibrationError struct {
	Kind    ErrorKind
	Index   int
	Message string
}

func (e *CalibrationError) Error() string {
	if e.Message == "" {
		return e.Kind.String()
	}
	return e.Kind.String() + " - " + e.Message
}

// Is matches any CalibrationError of the same Kind, so callers can test
// errors.Is(err, calibration.ErrNonMonotonicOD).
func (e *CalibrationError) Is(target error) bool {
	var t *CalibrationError
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

var (
	// ErrNoODSteps is returned when no OD values were entered.
	ErrNoODSteps = &CalibrationError{Kind: NoODSteps, Index: -1}

	// ErrNoPeaks is returned when no gray-scale peaks were found or entered.
	ErrNoPeaks = &CalibrationError{Kind: NoPeaks, Index: -1}

	// ErrNonMonotonicOD is returned when the OD values are not non-decreasing.
	ErrNonMonotonicOD = &CalibrationError{Kind: NonMonotonicOD, Index: -1}

	// ErrNonMonotonicPeaks is returned when the gray peaks are not non-decreasing.
	ErrNonMonotonicPeaks = &CalibrationError{Kind: NonMonotonicPeaks, Index: -1}

	// ErrStructural is returned when a count exceeds MaxNDSteps.
	ErrStructural = &CalibrationError{Kind: StructuralViolation, Index: -1}
)

// IsInputDataError reports whether err is a calibration error the user can
// fix by editing the wedge table and building again.
func IsInputDataError(err error) bool {
	var ce *CalibrationError
	if !errors.As(err, &ce) {
		return false
	}
	return ce.Kind != StructuralViolation
}

// KindOf returns the ErrorKind carried by err, or 0 when err is not a
// CalibrationError.
func KindOf(err error) ErrorKind {
	var ce *CalibrationError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return 0
}
