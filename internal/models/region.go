package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Region is an axis-aligned rectangle with inclusive corners.
type Region struct {
	X1, Y1, X2, Y2 int
}

// ParseRegion reads "x1,y1,x2,y2".
func ParseRegion(s string) (Region, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return Region{}, fmt.Errorf("region must be x1,y1,x2,y2, got: %q", s)
	}

	var values [4]int
	for i, part := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return Region{}, fmt.Errorf("region coordinate %d: %w", i, err)
		}
		values[i] = v
	}

	return Region{X1: values[0], Y1: values[1], X2: values[2], Y2: values[3]}, nil
}

// Empty reports whether the region covers no pixels.
func (r Region) Empty() bool {
	return r.X2 < r.X1 || r.Y2 < r.Y1
}

func (r Region) Width() int {
	if r.Empty() {
		return 0
	}
	return r.X2 - r.X1 + 1
}

func (r Region) Height() int {
	if r.Empty() {
		return 0
	}
	return r.Y2 - r.Y1 + 1
}

// Area is the number of pixels covered.
func (r Region) Area() int {
	return r.Width() * r.Height()
}

// Contains reports whether (x, y) lies inside the region.
func (r Region) Contains(x, y int) bool {
	return x >= r.X1 && x <= r.X2 && y >= r.Y1 && y <= r.Y2
}

// Center returns the centroid in pixel coordinates.
func (r Region) Center() (float64, float64) {
	return float64(r.X1+r.X2) / 2.0, float64(r.Y1+r.Y2) / 2.0
}

// Clamp moves every coordinate into [0, width-1] x [0, height-1]. Each
// coordinate is clamped independently, so an inverted region stays inverted.
func (r Region) Clamp(width, height int) Region {
	return Region{
		X1: clamp(r.X1, 0, width-1),
		Y1: clamp(r.Y1, 0, height-1),
		X2: clamp(r.X2, 0, width-1),
		Y2: clamp(r.Y2, 0, height-1),
	}
}

// Intersect returns the overlap of two regions, possibly empty.
func (r Region) Intersect(o Region) Region {
	return Region{
		X1: max(r.X1, o.X1),
		Y1: max(r.Y1, o.Y1),
		X2: min(r.X2, o.X2),
		Y2: min(r.Y2, o.Y2),
	}
}

// Expand grows the region by factor times its size on every side.
func (r Region) Expand(factor float64) Region {
	dx := int(float64(r.Width()) * factor)
	dy := int(float64(r.Height()) * factor)
	return Region{X1: r.X1 - dx, Y1: r.Y1 - dy, X2: r.X2 + dx, Y2: r.Y2 + dy}
}

func (r Region) String() string {
	return fmt.Sprintf("%d,%d,%d,%d", r.X1, r.Y1, r.X2, r.Y2)
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
