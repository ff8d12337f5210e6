// Package conversion moves pixel data between gocv.Mat and the planar
// models used by the histogram core.
package conversion

import (
	"encoding/binary"
	"fmt"
	"math"

	"histoseg/internal/models"
	"histoseg/internal/opencv/safe"

	"gocv.io/x/gocv"
)

// MatToImage splits an 8-bit Mat into a channel-planar image.
func MatToImage(src gocv.Mat) (*models.Image, error) {
	if err := safe.ValidateEightBit(src, "Mat to image conversion"); err != nil {
		return nil, err
	}

	data := src.ToBytes()
	return models.NewImageFromInterleaved(src.Cols(), src.Rows(), src.Channels(), data)
}

// ImageToMat interleaves img back into an 8-bit Mat.
func ImageToMat(img *models.Image) (gocv.Mat, error) {
	if err := img.Validate(); err != nil {
		return gocv.NewMat(), err
	}

	var mt gocv.MatType
	switch img.Channels() {
	case 1:
		mt = gocv.MatTypeCV8UC1
	case 3:
		mt = gocv.MatTypeCV8UC3
	case 4:
		mt = gocv.MatTypeCV8UC4
	default:
		return gocv.NewMat(), fmt.Errorf("unsupported channel count: %d", img.Channels())
	}

	c := img.Channels()
	data := make([]byte, img.Width*img.Height*c)
	for i := 0; i < img.Width*img.Height; i++ {
		for ch := 0; ch < c; ch++ {
			data[i*c+ch] = img.Planes[ch][i]
		}
	}

	return gocv.NewMatFromBytes(img.Height, img.Width, mt, data)
}

// MatToGrid reads an 8-bit Mat as a per-pixel map in [0, 1]. Colour input
// is reduced to gray first.
func MatToGrid(src gocv.Mat) (*models.Grid, error) {
	gray, err := grayBytes(src, "Mat to grid conversion")
	if err != nil {
		return nil, err
	}

	g := models.NewGrid(src.Cols(), src.Rows())
	for i, v := range gray {
		g.Data[i] = float64(v) / 255
	}
	return g, nil
}

// MatToMask reads an 8-bit Mat as a binary mask; pixels above 127 are set.
func MatToMask(src gocv.Mat) (*models.Mask, error) {
	gray, err := grayBytes(src, "Mat to mask conversion")
	if err != nil {
		return nil, err
	}

	m := models.NewMask(src.Cols(), src.Rows())
	for i, v := range gray {
		m.Data[i] = v > 127
	}
	return m, nil
}

// MaskToMat renders m as a single-channel 0/255 Mat.
func MaskToMat(m *models.Mask) (gocv.Mat, error) {
	if m == nil {
		return gocv.NewMat(), fmt.Errorf("mask is nil")
	}
	if err := safe.ValidateDimensions(m.Width, m.Height, "mask to Mat conversion"); err != nil {
		return gocv.NewMat(), err
	}
	return gocv.NewMatFromBytes(m.Height, m.Width, gocv.MatTypeCV8UC1, m.Bytes())
}

// GridToMat8 scales a [0, 1] grid to 0..255 in a single-channel 8-bit Mat.
func GridToMat8(g *models.Grid) (gocv.Mat, error) {
	if g == nil {
		return gocv.NewMat(), fmt.Errorf("grid is nil")
	}
	if err := safe.ValidateDimensions(g.Width, g.Height, "grid to Mat conversion"); err != nil {
		return gocv.NewMat(), err
	}

	data := make([]byte, len(g.Data))
	for i, v := range g.Data {
		data[i] = uint8(math.Round(math.Max(0, math.Min(1, v)) * 255))
	}
	return gocv.NewMatFromBytes(g.Height, g.Width, gocv.MatTypeCV8UC1, data)
}

// GridToMat32 downcasts g to a single-channel float32 Mat without rescaling.
func GridToMat32(g *models.Grid) (gocv.Mat, error) {
	if g == nil {
		return gocv.NewMat(), fmt.Errorf("grid is nil")
	}
	if err := safe.ValidateDimensions(g.Width, g.Height, "grid to Mat conversion"); err != nil {
		return gocv.NewMat(), err
	}

	data := make([]byte, 4*len(g.Data))
	for i, v := range g.Data {
		binary.LittleEndian.PutUint32(data[4*i:], math.Float32bits(float32(v)))
	}
	return gocv.NewMatFromBytes(g.Height, g.Width, gocv.MatTypeCV32FC1, data)
}

func grayBytes(src gocv.Mat, operation string) ([]byte, error) {
	if err := safe.ValidateEightBit(src, operation); err != nil {
		return nil, err
	}

	if src.Channels() == 1 {
		return src.ToBytes(), nil
	}

	gray, err := ConvertColorSpace(src, models.ColorSpaceGray)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}
	defer gray.Close()

	return gray.ToBytes(), nil
}
