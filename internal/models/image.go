package models

import (
	"fmt"
	"image"
	"image/color"
)

// Image is a channel-planar 8-bit image. Plane c holds Width*Height samples
// in row-major order.
type Image struct {
	Width  int
	Height int
	Planes [][]uint8
}

// NewImage allocates a zero-filled image with the given number of channels
func NewImage(width, height, channels int) (*Image, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid dimensions: %dx%d", width, height)
	}
	if channels < 1 {
		return nil, fmt.Errorf("invalid channel count: %d", channels)
	}

	planes := make([][]uint8, channels)
	for c := range planes {
		planes[c] = make([]uint8, width*height)
	}

	return &Image{Width: width, Height: height, Planes: planes}, nil
}

// NewImageFromInterleaved splits pixel-interleaved samples (HWC) into planes.
func NewImageFromInterleaved(width, height, channels int, data []uint8) (*Image, error) {
	img, err := NewImage(width, height, channels)
	if err != nil {
		return nil, err
	}

	if len(data) != width*height*channels {
		return nil, fmt.Errorf("interleaved data has %d samples, expected %d", len(data), width*height*channels)
	}

	for i := 0; i < width*height; i++ {
		for c := 0; c < channels; c++ {
			img.Planes[c][i] = data[i*channels+c]
		}
	}

	return img, nil
}

// NewImageFromGo converts a standard library image. Gray images become a
// single channel, everything else three channels in R, G, B order.
func NewImageFromGo(src image.Image) (*Image, error) {
	if src == nil {
		return nil, fmt.Errorf("input image is nil")
	}

	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	if gray, ok := src.(*image.Gray); ok {
		img, err := NewImage(width, height, 1)
		if err != nil {
			return nil, err
		}
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				img.Planes[0][y*width+x] = gray.GrayAt(x+bounds.Min.X, y+bounds.Min.Y).Y
			}
		}
		return img, nil
	}

	img, err := NewImage(width, height, 3)
	if err != nil {
		return nil, err
	}

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := color.NRGBAModel.Convert(src.At(x+bounds.Min.X, y+bounds.Min.Y)).(color.NRGBA)
			i := y*width + x
			img.Planes[0][i] = c.R
			img.Planes[1][i] = c.G
			img.Planes[2][i] = c.B
		}
	}

	return img, nil
}

// Channels returns the number of planes.
func (img *Image) Channels() int {
	return len(img.Planes)
}

func (img *Image) At(x, y, channel int) uint8 {
	return img.Planes[channel][y*img.Width+x]
}

func (img *Image) Set(x, y, channel int, value uint8) {
	img.Planes[channel][y*img.Width+x] = value
}

// Bounds returns the full-image region.
func (img *Image) Bounds() Region {
	return Region{X1: 0, Y1: 0, X2: img.Width - 1, Y2: img.Height - 1}
}

// Validate checks that every plane matches the declared size.
func (img *Image) Validate() error {
	if img == nil {
		return fmt.Errorf("image is nil")
	}
	if img.Width <= 0 || img.Height <= 0 {
		return fmt.Errorf("invalid dimensions: %dx%d", img.Width, img.Height)
	}
	if len(img.Planes) == 0 {
		return fmt.Errorf("image has no channels")
	}
	for c, plane := range img.Planes {
		if len(plane) != img.Width*img.Height {
			return fmt.Errorf("channel %d has %d samples, expected %d", c, len(plane), img.Width*img.Height)
		}
	}
	return nil
}
