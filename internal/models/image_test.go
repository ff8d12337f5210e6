package models

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewImageFromInterleaved(t *testing.T) {
	img, err := NewImageFromInterleaved(2, 1, 3, []uint8{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)
	require.NoError(t, img.Validate())

	assert.Equal(t, 3, img.Channels())
	assert.Equal(t, []uint8{1, 4}, img.Planes[0])
	assert.Equal(t, uint8(6), img.At(1, 0, 2))
	assert.Equal(t, Region{X1: 0, Y1: 0, X2: 1, Y2: 0}, img.Bounds())

	_, err = NewImageFromInterleaved(2, 1, 3, []uint8{1, 2})
	assert.Error(t, err)
	_, err = NewImage(0, 1, 1)
	assert.Error(t, err)
	_, err = NewImage(1, 1, 0)
	assert.Error(t, err)
}

func TestNewImageFromGo(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 2, 2))
	gray.SetGray(1, 1, color.Gray{Y: 77})

	g, err := NewImageFromGo(gray)
	require.NoError(t, err)
	assert.Equal(t, 1, g.Channels())
	assert.Equal(t, uint8(77), g.At(1, 1, 0))

	rgba := image.NewNRGBA(image.Rect(5, 5, 7, 6))
	rgba.SetNRGBA(6, 5, color.NRGBA{R: 10, G: 20, B: 30, A: 255})

	c, err := NewImageFromGo(rgba)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Width)
	assert.Equal(t, 1, c.Height)
	assert.Equal(t, []uint8{10, 20, 30}, []uint8{c.At(1, 0, 0), c.At(1, 0, 1), c.At(1, 0, 2)})

	_, err = NewImageFromGo(nil)
	assert.Error(t, err)
}

func TestImageValidate(t *testing.T) {
	var nilImg *Image
	assert.Error(t, nilImg.Validate())
	assert.Error(t, (&Image{Width: 2, Height: 2}).Validate())
	assert.Error(t, (&Image{Width: 2, Height: 2, Planes: [][]uint8{make([]uint8, 3)}}).Validate())
}

func TestGridAndMask(t *testing.T) {
	g := NewUniformGrid(3, 2, 0.5)
	g.Set(2, 1, 1)
	clone := g.Clone()
	clone.Set(0, 0, 0)

	assert.Equal(t, 0.5, g.At(0, 0))
	assert.Equal(t, 1.0, clone.At(2, 1))
	assert.True(t, g.SameSize(3, 2))
	assert.False(t, g.SameSize(2, 3))

	m := NewMask(2, 2)
	m.Set(1, 0, true)
	assert.Equal(t, 1, m.Count())
	assert.Equal(t, []uint8{0, 255, 0, 0}, m.Bytes())

	assert.NoError(t, ValidateSameSize(m, NewMask(2, 2)))
	assert.Error(t, ValidateSameSize(m, NewMask(2, 3)))
	assert.Error(t, ValidateSameSize(m, nil))
}
