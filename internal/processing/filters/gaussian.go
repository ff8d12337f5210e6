// Package filters holds optional OpenCV preprocessing applied to images
// before they are binned.
package filters

import (
	"fmt"
	"image"

	"histoseg/internal/opencv/safe"

	"gocv.io/x/gocv"
)

const maxKernelSize = 15

// GaussianBlur smooths src with the given sigma. The caller owns the
// returned Mat. A sigma of zero or less returns a clone.
func GaussianBlur(src gocv.Mat, sigma float64) (gocv.Mat, error) {
	if err := safe.ValidateMatForOperation(src, "gaussian blur"); err != nil {
		return gocv.NewMat(), err
	}

	if sigma <= 0.0 {
		return src.Clone(), nil
	}

	k := KernelSize(sigma)
	dst := gocv.NewMat()
	gocv.GaussianBlur(src, &dst, image.Point{X: k, Y: k}, sigma, sigma, gocv.BorderDefault)
	if dst.Empty() {
		dst.Close()
		return gocv.NewMat(), fmt.Errorf("gaussian blur produced an empty Mat")
	}

	return dst, nil
}

// KernelSize is the odd kernel width covering about three sigma on each
// side, kept within [3, 15].
func KernelSize(sigma float64) int {
	kernelSize := int(sigma*6) + 1
	if kernelSize%2 == 0 {
		kernelSize++
	}
	return max(3, min(kernelSize, maxKernelSize))
}
