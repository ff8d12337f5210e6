package histogram

import (
	"math"

	"histoseg/internal/models"
)

// EpanechnikovWeights builds a width x height weight grid for
// ExtractForeground. Inside region each pixel gets k(r) = (2/pi)(1 - r^2),
// r being its distance from the region centre with x and y scaled by the
// half extents; pixels with r > 1 and pixels outside region get 0.
func EpanechnikovWeights(width, height int, region models.Region) *models.Grid {
	g := models.NewGrid(width, height)

	area := region.Intersect(models.Region{X1: 0, Y1: 0, X2: width - 1, Y2: height - 1})
	if area.Empty() {
		return g
	}

	cx, cy := region.Center()
	hx := float64(region.Width()) / 2.0
	hy := float64(region.Height()) / 2.0

	for y := area.Y1; y <= area.Y2; y++ {
		dy := (float64(y) - cy) / hy
		for x := area.X1; x <= area.X2; x++ {
			dx := (float64(x) - cx) / hx
			g.Set(x, y, epanechnikov(dx*dx+dy*dy))
		}
	}

	return g
}

func epanechnikov(r2 float64) float64 {
	if r2 > 1 {
		return 0
	}
	return (2.0 / math.Pi) * (1 - r2)
}
