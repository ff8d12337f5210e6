package histogram

import (
	"bytes"
	"math"
	"sync"
	"testing"

	"histoseg/internal/models"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func grayImage(t *testing.T, rows [][]uint8) *models.Image {
	t.Helper()
	img, err := models.NewImage(len(rows[0]), len(rows), 1)
	require.NoError(t, err)
	for y, row := range rows {
		for x, v := range row {
			img.Set(x, y, 0, v)
		}
	}
	return img
}

// gradientImage fills each channel with a different deterministic pattern.
func gradientImage(t *testing.T, width, height, channels int) *models.Image {
	t.Helper()
	img, err := models.NewImage(width, height, channels)
	require.NoError(t, err)
	for c := 0; c < channels; c++ {
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				img.Set(x, y, c, uint8((x*7+y*13+c*61)%256))
			}
		}
	}
	return img
}

func checkerboard(t *testing.T) *models.Image {
	return grayImage(t, [][]uint8{
		{10, 10, 200, 200},
		{10, 10, 200, 200},
		{200, 200, 10, 10},
		{200, 200, 10, 10},
	})
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		dims    int
		bins    int
		wantLen int
	}{
		{name: "single channel", dims: 1, bins: 16, wantLen: 16},
		{name: "rgb 8 bins", dims: 3, bins: 8, wantLen: 512},
		{name: "rgb 16 bins", dims: 3, bins: 16, wantLen: 4096},
		{name: "one bin", dims: 4, bins: 1, wantLen: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := New(tt.dims, tt.bins)
			require.NoError(t, err)

			v := h.Vector()
			assert.Len(t, v, tt.wantLen)
			assert.Equal(t, tt.wantLen, h.Len())
			for _, x := range v {
				assert.Zero(t, x)
			}
			assert.False(t, h.Populated())
		})
	}
}

func TestNewRejectsInvalidDimensions(t *testing.T) {
	for _, tc := range []struct{ dims, bins int }{{0, 8}, {3, 0}, {-1, 8}, {8, 256}} {
		_, err := New(tc.dims, tc.bins)
		assert.ErrorIs(t, err, ErrInvalidDimension, "dims=%d bins=%d", tc.dims, tc.bins)
	}
}

func TestExtractForegroundCheckerboard(t *testing.T) {
	h, err := New(1, 2)
	require.NoError(t, err)

	require.NoError(t, h.ExtractForeground(checkerboard(t), nil, models.Region{X1: 0, Y1: 0, X2: 1, Y2: 1}))

	assert.Equal(t, []float64{1.0, 0.0}, h.Vector())
	assert.True(t, h.Populated())
}

func TestExtractForegroundNormalizes(t *testing.T) {
	img := gradientImage(t, 50, 40, 3)
	regions := []models.Region{
		{X1: 0, Y1: 0, X2: 49, Y2: 39},
		{X1: 5, Y1: 7, X2: 30, Y2: 22},
		{X1: 10, Y1: 10, X2: 10, Y2: 10},
	}

	for _, r := range regions {
		h, err := New(3, 8)
		require.NoError(t, err)
		require.NoError(t, h.ExtractForeground(img, nil, r))
		assert.InDelta(t, 1.0, h.Sum(), 1e-9, "region %v", r)
	}
}

func TestExtractForegroundWeighted(t *testing.T) {
	img := gradientImage(t, 64, 48, 3)
	region := models.Region{X1: 8, Y1: 6, X2: 40, Y2: 30}
	weights := EpanechnikovWeights(img.Width, img.Height, region)

	h, err := New(3, 8)
	require.NoError(t, err)
	require.NoError(t, h.ExtractForeground(img, weights, region))
	assert.InDelta(t, 1.0, h.Sum(), 1e-9)

	plain, err := New(3, 8)
	require.NoError(t, err)
	require.NoError(t, plain.ExtractForeground(img, nil, region))
	assert.NotEqual(t, plain.Vector(), h.Vector())
}

func TestExtractForegroundZeroWeightsGiveZeroHistogram(t *testing.T) {
	img := checkerboard(t)
	h, err := New(1, 4)
	require.NoError(t, err)

	require.NoError(t, h.ExtractForeground(img, models.NewGrid(4, 4), img.Bounds()))
	assert.Equal(t, []float64{0, 0, 0, 0}, h.Vector())
	assert.True(t, h.Populated())
}

func TestExtractForegroundEmptyRegion(t *testing.T) {
	h, err := New(1, 4)
	require.NoError(t, err)

	require.NoError(t, h.ExtractForeground(checkerboard(t), nil, models.Region{X1: 3, Y1: 0, X2: 2, Y2: 3}))
	assert.Equal(t, []float64{0, 0, 0, 0}, h.Vector())
	assert.True(t, h.Populated())
}

func TestExtractForegroundIncludesImageEdges(t *testing.T) {
	img := grayImage(t, [][]uint8{
		{0, 0, 0, 255},
		{0, 0, 0, 255},
	})

	h, err := New(1, 2)
	require.NoError(t, err)
	require.NoError(t, h.ExtractForeground(img, nil, models.Region{X1: 3, Y1: 0, X2: 3, Y2: 1}))

	assert.Equal(t, []float64{0, 1}, h.Vector())
}

func TestExtractForegroundDimensionMismatch(t *testing.T) {
	h, err := New(3, 8)
	require.NoError(t, err)

	err = h.ExtractForeground(checkerboard(t), nil, models.Region{X1: 0, Y1: 0, X2: 1, Y2: 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidDimension))
	assert.False(t, h.Populated())
}

func TestExtractForegroundWeightSizeMismatch(t *testing.T) {
	h, err := New(1, 8)
	require.NoError(t, err)

	err = h.ExtractForeground(checkerboard(t), models.NewGrid(3, 3), models.Region{X1: 0, Y1: 0, X2: 1, Y2: 1})
	assert.ErrorIs(t, err, ErrSizeMismatch)
}

func TestExtractBackground(t *testing.T) {
	img := checkerboard(t)

	t.Run("inner equals outer", func(t *testing.T) {
		h, err := New(1, 2)
		require.NoError(t, err)
		r := models.Region{X1: 0, Y1: 0, X2: 3, Y2: 3}
		require.NoError(t, h.ExtractBackground(img, r, r))
		assert.Equal(t, []float64{0, 0}, h.Vector())
		assert.True(t, h.Populated())
	})

	t.Run("annulus around low block", func(t *testing.T) {
		h, err := New(1, 2)
		require.NoError(t, err)
		inner := models.Region{X1: 0, Y1: 0, X2: 1, Y2: 1}
		outer := models.Region{X1: 0, Y1: 0, X2: 2, Y2: 2}
		require.NoError(t, h.ExtractBackground(img, inner, outer))
		// Five annulus pixels: (2,0) (2,1) (0,2) (1,2) high, (2,2) low.
		assert.InDeltaSlice(t, []float64{0.2, 0.8}, h.Vector(), 1e-12)
	})

	t.Run("outer clipped to image", func(t *testing.T) {
		h, err := New(1, 2)
		require.NoError(t, err)
		inner := models.Region{X1: 2, Y1: 2, X2: 3, Y2: 3}
		outer := models.Region{X1: -5, Y1: -5, X2: 10, Y2: 10}
		require.NoError(t, h.ExtractBackground(img, inner, outer))
		assert.InDelta(t, 1.0, h.Sum(), 1e-9)
		assert.InDeltaSlice(t, []float64{4.0 / 12.0, 8.0 / 12.0}, h.Vector(), 1e-12)
	})
}

func TestBackProjectSolidRegion(t *testing.T) {
	img := gradientImage(t, 20, 20, 3)
	region := models.Region{X1: 4, Y1: 4, X2: 11, Y2: 9}
	for y := region.Y1; y <= region.Y2; y++ {
		for x := region.X1; x <= region.X2; x++ {
			img.Set(x, y, 0, 30)
			img.Set(x, y, 1, 140)
			img.Set(x, y, 2, 250)
		}
	}

	h, err := New(3, 8)
	require.NoError(t, err)
	require.NoError(t, h.ExtractForeground(img, nil, region))

	mass := h.Vector()[h.Index(30, 140, 250)]
	assert.InDelta(t, 1.0, mass, 1e-12)

	likelihood, err := h.BackProject(img)
	require.NoError(t, err)
	for y := region.Y1; y <= region.Y2; y++ {
		for x := region.X1; x <= region.X2; x++ {
			assert.Equal(t, mass, likelihood.At(x, y))
		}
	}
}

func TestBackProjectIdempotent(t *testing.T) {
	img := gradientImage(t, 33, 70, 2)
	h, err := New(2, 16)
	require.NoError(t, err)
	require.NoError(t, h.ExtractForeground(img, nil, models.Region{X1: 3, Y1: 3, X2: 20, Y2: 50}))
	before := h.Vector()

	first, err := h.BackProject(img)
	require.NoError(t, err)
	second, err := h.BackProject(img)
	require.NoError(t, err)

	assert.Equal(t, first.Data, second.Data)
	assert.Equal(t, before, h.Vector())
}

func TestBackProjectUninitialized(t *testing.T) {
	h, err := New(1, 8)
	require.NoError(t, err)

	_, err = h.BackProject(checkerboard(t))
	assert.ErrorIs(t, err, ErrUninitializedHistogram)
}

func TestBackProjectDimensionMismatch(t *testing.T) {
	h, err := New(2, 8)
	require.NoError(t, err)
	require.NoError(t, h.SetVector(make([]float64, 64)))

	_, err = h.BackProject(checkerboard(t))
	assert.ErrorIs(t, err, ErrInvalidDimension)
}

func TestVectorRoundTrip(t *testing.T) {
	img := gradientImage(t, 41, 29, 3)
	h1, err := New(3, 8)
	require.NoError(t, err)
	require.NoError(t, h1.ExtractForeground(img, nil, models.Region{X1: 2, Y1: 2, X2: 30, Y2: 20}))

	h2, err := New(3, 8)
	require.NoError(t, err)
	require.NoError(t, h2.SetVector(h1.Vector()))

	p1, err := h1.BackProject(img)
	require.NoError(t, err)
	p2, err := h2.BackProject(img)
	require.NoError(t, err)
	assert.Equal(t, p1.Data, p2.Data)
}

func TestVectorIsCopy(t *testing.T) {
	h, err := New(1, 2)
	require.NoError(t, err)
	require.NoError(t, h.SetVector([]float64{0.25, 0.75}))

	v := h.Vector()
	v[0] = 42
	assert.Equal(t, []float64{0.25, 0.75}, h.Vector())
}

func TestSetVectorSizeMismatch(t *testing.T) {
	h, err := New(3, 4)
	require.NoError(t, err)

	err = h.SetVector(make([]float64, 63))
	assert.ErrorIs(t, err, ErrSizeMismatch)
	assert.False(t, h.Populated())
}

func TestMarginal(t *testing.T) {
	h, err := New(2, 2)
	require.NoError(t, err)
	// bins are indexed b0 + 2*b1
	require.NoError(t, h.SetVector([]float64{0.1, 0.2, 0.3, 0.4}))

	m0, err := h.Marginal(0)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.4, 0.6}, m0, 1e-12)

	m1, err := h.Marginal(1)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.3, 0.7}, m1, 1e-12)

	_, err = h.Marginal(2)
	assert.ErrorIs(t, err, ErrInvalidDimension)
}

func TestResultsIndependentOfWorkerCount(t *testing.T) {
	img := gradientImage(t, 97, 301, 3)
	region := models.Region{X1: 5, Y1: 11, X2: 90, Y2: 290}
	weights := EpanechnikovWeights(img.Width, img.Height, region)

	var reference []float64
	var referenceMap []float64
	for _, workers := range []int{1, 2, 3, 8, 64} {
		h, err := New(3, 8, WithWorkers(workers))
		require.NoError(t, err)
		require.NoError(t, h.ExtractForeground(img, weights, region))
		p, err := h.BackProject(img)
		require.NoError(t, err)

		if reference == nil {
			reference, referenceMap = h.Vector(), p.Data
			continue
		}
		assert.Equal(t, reference, h.Vector(), "workers=%d", workers)
		assert.Equal(t, referenceMap, p.Data, "workers=%d", workers)
	}
}

func TestConcurrentBackProjection(t *testing.T) {
	img := gradientImage(t, 64, 64, 3)
	h, err := New(3, 8)
	require.NoError(t, err)
	require.NoError(t, h.ExtractForeground(img, nil, models.Region{X1: 0, Y1: 0, X2: 31, Y2: 31}))

	want, err := h.BackProject(img)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]*models.Grid, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], _ = h.BackProject(img)
		}()
	}
	wg.Wait()

	for _, got := range results {
		require.NotNil(t, got)
		assert.Equal(t, want.Data, got.Data)
	}
}

func TestEpanechnikovWeights(t *testing.T) {
	region := models.Region{X1: 2, Y1: 2, X2: 6, Y2: 6}
	g := EpanechnikovWeights(10, 10, region)

	assert.InDelta(t, 2/math.Pi, g.At(4, 4), 1e-12)
	assert.Zero(t, g.At(0, 0))
	assert.Zero(t, g.At(9, 9))
	// Corners of the rectangle fall outside the unit ellipse.
	assert.Zero(t, g.At(2, 2))
	// Edge midpoints are inside it: r = 2/2.5.
	assert.InDelta(t, (2/math.Pi)*(1-0.64), g.At(2, 4), 1e-12)
	assert.Greater(t, g.At(4, 4), g.At(5, 4))
}

func TestEncodeDecode(t *testing.T) {
	img := gradientImage(t, 16, 16, 2)
	h, err := New(2, 4)
	require.NoError(t, err)
	require.NoError(t, h.ExtractForeground(img, nil, img.Bounds()))

	var buf bytes.Buffer
	require.NoError(t, h.Encode(&buf))

	decoded, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, 2, decoded.Dims())
	assert.Equal(t, 4, decoded.BinsPerDim())
	if diff := cmp.Diff(h.Vector(), decoded.Vector(), cmpopts.EquateApprox(0, 1e-15)); diff != "" {
		t.Errorf("decoded vector mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodeUninitialized(t *testing.T) {
	h, err := New(1, 4)
	require.NoError(t, err)
	assert.ErrorIs(t, h.Encode(&bytes.Buffer{}), ErrUninitializedHistogram)
}

func TestDecodeSizeMismatch(t *testing.T) {
	_, err := Decode(bytes.NewBufferString("dims: 1\nbins_per_dim: 4\nvector: [0.5, 0.5]\n"))
	assert.ErrorIs(t, err, ErrSizeMismatch)
}

func TestSplitRows(t *testing.T) {
	parts := splitRows(3, 100)
	require.NotEmpty(t, parts)
	assert.Equal(t, 3, parts[0].y0)
	assert.Equal(t, 100, parts[len(parts)-1].y1)
	for i := 1; i < len(parts); i++ {
		assert.Equal(t, parts[i-1].y1, parts[i].y0)
	}
	assert.Nil(t, splitRows(5, 5))
	assert.LessOrEqual(t, len(splitRows(0, 100000)), maxStripes)
}
