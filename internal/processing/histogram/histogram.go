// Package histogram builds joint colour histograms over image regions and
// back-projects them onto images as per-pixel likelihoods.
//
// Bins live in one flat slice addressed through a stride table, so a pixel
// with per-channel bins (b0, b1, ..., bn) maps to sum(b_d * bins^d).
package histogram

import (
	"runtime"
	"sync"

	"histoseg/internal/models"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// maxTableSize bounds bins^dims so a typo in the bin count cannot allocate
// gigabytes.
const maxTableSize = 1 << 24

var (
	ErrInvalidDimension       = errors.New("invalid histogram dimension")
	ErrSizeMismatch           = errors.New("size mismatch")
	ErrUninitializedHistogram = errors.New("histogram is not populated")
)

// Histogram is a normalised joint distribution over quantised channel
// values. It is written once by an extraction or SetVector and may then be
// back-projected concurrently.
type Histogram struct {
	mu            sync.RWMutex
	numDim        int
	numBinsPerDim int
	bins          []float64
	dimIdCoef     []int
	populated     bool
	workers       int
}

type Option func(*Histogram)

// WithWorkers bounds the number of goroutines used per call. Values below 1
// fall back to runtime.NumCPU().
func WithWorkers(n int) Option {
	return func(h *Histogram) {
		if n > 0 {
			h.workers = n
		}
	}
}

// New allocates an empty histogram with numBinsPerDim^numDim bins.
func New(numDim, numBinsPerDim int, opts ...Option) (*Histogram, error) {
	if numDim < 1 {
		return nil, errors.Wrapf(ErrInvalidDimension, "dimension count must be positive, got %d", numDim)
	}
	if numBinsPerDim < 1 {
		return nil, errors.Wrapf(ErrInvalidDimension, "bins per dimension must be positive, got %d", numBinsPerDim)
	}

	coef := make([]int, numDim)
	size := 1
	for d := 0; d < numDim; d++ {
		coef[d] = size
		if size > maxTableSize/numBinsPerDim {
			return nil, errors.Wrapf(ErrInvalidDimension, "%d^%d bins exceeds the table limit of %d", numBinsPerDim, numDim, maxTableSize)
		}
		size *= numBinsPerDim
	}

	h := &Histogram{
		numDim:        numDim,
		numBinsPerDim: numBinsPerDim,
		bins:          make([]float64, size),
		dimIdCoef:     coef,
		workers:       runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(h)
	}

	return h, nil
}

func (h *Histogram) Dims() int {
	return h.numDim
}

func (h *Histogram) BinsPerDim() int {
	return h.numBinsPerDim
}

// Len is the flat bin count, numBinsPerDim^numDim.
func (h *Histogram) Len() int {
	return len(h.bins)
}

// Populated reports whether an extraction or SetVector has run.
func (h *Histogram) Populated() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.populated
}

// Index maps one sample per dimension to its flat bin.
func (h *Histogram) Index(values ...uint8) int {
	idx := 0
	for d := 0; d < h.numDim && d < len(values); d++ {
		idx += h.quantize(values[d]) * h.dimIdCoef[d]
	}
	return idx
}

func (h *Histogram) quantize(v uint8) int {
	b := int(v) * h.numBinsPerDim / 256
	if b >= h.numBinsPerDim {
		b = h.numBinsPerDim - 1
	}
	return b
}

func (h *Histogram) pixelIndex(img *models.Image, offset int) int {
	idx := 0
	for d := 0; d < h.numDim; d++ {
		idx += h.quantize(img.Planes[d][offset]) * h.dimIdCoef[d]
	}
	return idx
}

// ExtractForeground accumulates every pixel of region, weighted by weights
// when non-nil and by 1 otherwise, and normalises the result to unit mass.
// An empty region leaves all bins at zero.
func (h *Histogram) ExtractForeground(img *models.Image, weights *models.Grid, region models.Region) error {
	if err := h.checkImage(img); err != nil {
		return err
	}
	if weights != nil && !weights.SameSize(img.Width, img.Height) {
		return errors.Wrapf(ErrSizeMismatch, "weights are %dx%d, image is %dx%d",
			weights.Width, weights.Height, img.Width, img.Height)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.accumulate(img, weights, region, nil)
	return nil
}

// ExtractBackground accumulates the annulus of pixels inside outer but
// outside inner with unit weight.
func (h *Histogram) ExtractBackground(img *models.Image, inner, outer models.Region) error {
	if err := h.checkImage(img); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.accumulate(img, nil, outer, &inner)
	return nil
}

func (h *Histogram) accumulate(img *models.Image, weights *models.Grid, area models.Region, hole *models.Region) {
	for i := range h.bins {
		h.bins[i] = 0
	}
	h.populated = true

	area = area.Intersect(img.Bounds())
	if area.Empty() {
		return
	}

	parts := splitRows(area.Y1, area.Y2+1)
	partials := make([][]float64, len(parts))
	totals := make([]float64, len(parts))

	runStripes(h.workers, parts, func(i int, s stripe) {
		local := make([]float64, len(h.bins))
		total := 0.0
		for y := s.y0; y < s.y1; y++ {
			row := y * img.Width
			for x := area.X1; x <= area.X2; x++ {
				if hole != nil && hole.Contains(x, y) {
					continue
				}
				w := 1.0
				if weights != nil {
					w = weights.Data[row+x]
				}
				local[h.pixelIndex(img, row+x)] += w
				total += w
			}
		}
		partials[i] = local
		totals[i] = total
	})

	// Stripe order is fixed by the region alone, keeping sums reproducible
	// across worker counts.
	total := 0.0
	for i := range partials {
		floats.Add(h.bins, partials[i])
		total += totals[i]
	}

	if total <= 0 {
		for i := range h.bins {
			h.bins[i] = 0
		}
		return
	}
	floats.Scale(1/total, h.bins)
}

// BackProject returns, for every pixel of img, the mass of the bin its
// colour falls into.
func (h *Histogram) BackProject(img *models.Image) (*models.Grid, error) {
	if err := h.checkImage(img); err != nil {
		return nil, err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.populated {
		return nil, errors.Wrap(ErrUninitializedHistogram, "back-projection requires an extracted or loaded histogram")
	}

	out := models.NewGrid(img.Width, img.Height)
	runStripes(h.workers, splitRows(0, img.Height), func(_ int, s stripe) {
		for i := s.y0 * img.Width; i < s.y1*img.Width; i++ {
			out.Data[i] = h.bins[h.pixelIndex(img, i)]
		}
	})

	return out, nil
}

// Vector returns a copy of the flat bin array.
func (h *Histogram) Vector() []float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]float64, len(h.bins))
	copy(out, h.bins)
	return out
}

// SetVector replaces the bins with a previously exported vector.
func (h *Histogram) SetVector(v []float64) error {
	if len(v) != len(h.bins) {
		return errors.Wrapf(ErrSizeMismatch, "vector has %d entries, histogram %d^%d needs %d",
			len(v), h.numBinsPerDim, h.numDim, len(h.bins))
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	copy(h.bins, v)
	h.populated = true
	return nil
}

// Marginal sums the joint distribution over every dimension but d.
func (h *Histogram) Marginal(d int) ([]float64, error) {
	if d < 0 || d >= h.numDim {
		return nil, errors.Wrapf(ErrInvalidDimension, "dimension %d out of range [0, %d)", d, h.numDim)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]float64, h.numBinsPerDim)
	coef := h.dimIdCoef[d]
	for i, v := range h.bins {
		out[(i/coef)%h.numBinsPerDim] += v
	}
	return out, nil
}

// Sum is the total bin mass.
func (h *Histogram) Sum() float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return floats.Sum(h.bins)
}

func (h *Histogram) checkImage(img *models.Image) error {
	if err := img.Validate(); err != nil {
		return errors.Wrap(err, "invalid image")
	}
	if img.Channels() != h.numDim {
		return errors.Wrapf(ErrInvalidDimension, "image has %d channels, histogram models %d", img.Channels(), h.numDim)
	}
	return nil
}
