package pipeline

import (
	"histoseg/internal/models"

	"gonum.org/v1/gonum/stat"
)

// Contrast summarises the object probability inside and outside the
// selection rectangle. A good model gives a high inside mean and a low
// outside mean.
type Contrast struct {
	InsideMean    float64
	InsideStdDev  float64
	OutsideMean   float64
	OutsideStdDev float64
}

// Separation is the difference of the inside and outside means.
func (c Contrast) Separation() float64 {
	return c.InsideMean - c.OutsideMean
}

func (c Contrast) Fields() map[string]interface{} {
	return map[string]interface{}{
		"inside_mean":    c.InsideMean,
		"inside_stddev":  c.InsideStdDev,
		"outside_mean":   c.OutsideMean,
		"outside_stddev": c.OutsideStdDev,
		"separation":     c.Separation(),
	}
}

// ProbabilityContrast splits prob by region and reports the mean and
// standard deviation of each side. An empty side scores zero.
func ProbabilityContrast(prob *models.Grid, region models.Region) Contrast {
	inside := make([]float64, 0, region.Area())
	outside := make([]float64, 0, len(prob.Data))

	for y := 0; y < prob.Height; y++ {
		for x := 0; x < prob.Width; x++ {
			v := prob.At(x, y)
			if region.Contains(x, y) {
				inside = append(inside, v)
			} else {
				outside = append(outside, v)
			}
		}
	}

	var c Contrast
	c.InsideMean, c.InsideStdDev = meanStdDev(inside)
	c.OutsideMean, c.OutsideStdDev = meanStdDev(outside)
	return c
}

func meanStdDev(x []float64) (float64, float64) {
	switch len(x) {
	case 0:
		return 0, 0
	case 1:
		return x[0], 0
	}
	return stat.MeanStdDev(x, nil)
}
