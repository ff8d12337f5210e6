package models

import "fmt"

// Grid is a single-channel float64 map in row-major order.
type Grid struct {
	Width  int
	Height int
	Data   []float64
}

func NewGrid(width, height int) *Grid {
	return &Grid{Width: width, Height: height, Data: make([]float64, width*height)}
}

// NewUniformGrid fills every cell with value.
func NewUniformGrid(width, height int, value float64) *Grid {
	g := NewGrid(width, height)
	for i := range g.Data {
		g.Data[i] = value
	}
	return g
}

func (g *Grid) At(x, y int) float64 {
	return g.Data[y*g.Width+x]
}

func (g *Grid) Set(x, y int, value float64) {
	g.Data[y*g.Width+x] = value
}

// SameSize reports whether the grid matches the given dimensions.
func (g *Grid) SameSize(width, height int) bool {
	return g.Width == width && g.Height == height && len(g.Data) == width*height
}

func (g *Grid) Clone() *Grid {
	data := make([]float64, len(g.Data))
	copy(data, g.Data)
	return &Grid{Width: g.Width, Height: g.Height, Data: data}
}

// Mask is a binary per-pixel decision.
type Mask struct {
	Width  int
	Height int
	Data   []bool
}

func NewMask(width, height int) *Mask {
	return &Mask{Width: width, Height: height, Data: make([]bool, width*height)}
}

func (m *Mask) At(x, y int) bool {
	return m.Data[y*m.Width+x]
}

func (m *Mask) Set(x, y int, value bool) {
	m.Data[y*m.Width+x] = value
}

// Count returns the number of set pixels.
func (m *Mask) Count() int {
	n := 0
	for _, v := range m.Data {
		if v {
			n++
		}
	}
	return n
}

// Bytes renders the mask as 0/255 samples.
func (m *Mask) Bytes() []uint8 {
	out := make([]uint8, len(m.Data))
	for i, v := range m.Data {
		if v {
			out[i] = 255
		}
	}
	return out
}

// ValidateSameSize checks two masks cover the same pixel grid.
func ValidateSameSize(a, b *Mask) error {
	if a == nil || b == nil {
		return fmt.Errorf("mask is nil")
	}
	if a.Width != b.Width || a.Height != b.Height {
		return fmt.Errorf("mask dimensions must match: %dx%d vs %dx%d", a.Width, a.Height, b.Width, b.Height)
	}
	return nil
}
