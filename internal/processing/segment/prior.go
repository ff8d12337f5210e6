package segment

import (
	"math"

	"histoseg/internal/models"
)

// GaussianPriors returns complementary object and background priors for a
// width x height image. The object density g is an isotropic Gaussian on
// the region centroid with variance ((w/2)^2 + (h/2)^2)/2, the background
// density u is uniform over the image, and each pixel gets g/(g+u) and
// u/(g+u). Both priors stay in (0, 1] and sum to one. An empty region gives
// 0.5 everywhere.
func GaussianPriors(width, height int, region models.Region) (*models.Grid, *models.Grid) {
	if region.Empty() {
		return models.NewUniformGrid(width, height, 0.5), models.NewUniformGrid(width, height, 0.5)
	}

	po := models.NewGrid(width, height)
	pb := models.NewGrid(width, height)

	cx, cy := region.Center()
	hw := float64(region.Width()) / 2.0
	hh := float64(region.Height()) / 2.0
	std2 := (hw*hw + hh*hh) / 2.0
	u := 1.0 / float64(width*height)

	for y := 0; y < height; y++ {
		dy := float64(y) - cy
		for x := 0; x < width; x++ {
			dx := float64(x) - cx
			g := gaussian(dx*dx, dy*dy, std2)
			i := y*width + x
			po.Data[i] = g / (g + u)
			pb.Data[i] = u / (g + u)
		}
	}

	return po, pb
}

func gaussian(x2, y2, std2 float64) float64 {
	return math.Exp(-(x2+y2)/(2*std2)) / (2 * math.Pi * std2)
}
