package models

import (
	"fmt"
	"image"
	"strconv"
	"strings"
)

// Region is a rectangular image region given by two opposite corners, as
// stored in calibration files (ndcwx1, ndcwy1, ndcwx2, ndcwy2)
type Region struct {
	X1, Y1 int
	X2, Y2 int
}

// Rect returns the region as a canonical image.Rectangle. Corners may be
// given in any order; both are inclusive.
func (r Region) Rect() image.Rectangle {
	x0, x1 := r.X1, r.X2
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	y0, y1 := r.Y1, r.Y2
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	return image.Rect(x0, y0, x1+1, y1+1)
}

// Empty reports whether no corner was ever set
func (r Region) Empty() bool {
	return r == Region{}
}

func (r Region) String() string {
	return fmt.Sprintf("%d,%d,%d,%d", r.X1, r.Y1, r.X2, r.Y2)
}

// ParseRegion parses "x1,y1,x2,y2"
func ParseRegion(s string) (Region, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return Region{}, fmt.Errorf("region %q: want x1,y1,x2,y2", s)
	}

	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return Region{}, fmt.Errorf("region %q: %w", s, err)
		}
		v[i] = n
	}

	return Region{X1: v[0], Y1: v[1], X2: v[2], Y2: v[3]}, nil
}

// Side identifies which of the two compared images a calibration belongs to.
// Each side owns exactly one calibration table.
type Side int

const (
	Left Side = iota
	Right
)

func (s Side) String() string {
	switch s {
	case Left:
		return "left"
	case Right:
		return "right"
	default:
		return fmt.Sprintf("Side(%d)", int(s))
	}
}

// ParseSide accepts "left"/"l" or "right"/"r", in any case
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "left", "l":
		return Left, nil
	case "right", "r":
		return Right, nil
	default:
		return Left, fmt.Errorf("unknown image side %q", s)
	}
}
