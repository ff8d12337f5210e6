package stages

import (
	"os"
	"path/filepath"
	"testing"

	"histoseg/internal/logger"
	"histoseg/internal/models"
	"histoseg/internal/opencv/conversion"
	"histoseg/internal/processing/histogram"
	"histoseg/internal/report"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func TestMaskRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mask.png")

	m := models.NewMask(4, 3)
	m.Set(1, 1, true)
	m.Set(3, 2, true)

	require.NoError(t, NewSaver(logger.NoOp{}).SaveMask(path, m))

	back, err := NewLoader(nil).LoadMask(path)
	require.NoError(t, err)
	assert.Equal(t, m.Data, back.Data)
}

func TestProbabilityRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prob.png")

	g := models.NewGrid(2, 2)
	g.Data = []float64{0, 1, 0.5, 0.25}

	require.NoError(t, NewSaver(nil).SaveProbability(path, g))

	back, err := NewLoader(nil).LoadGrid(path)
	require.NoError(t, err)
	for i, v := range g.Data {
		assert.InDelta(t, v, back.Data[i], 1.0/255)
	}
}

func TestSavePosteriorKeepsRawValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "po.tif")

	g := models.NewGrid(3, 1)
	g.Data = []float64{0, 0.0035, 12.5}

	require.NoError(t, NewSaver(nil).SavePosterior(path, g))

	mat := gocv.IMRead(path, gocv.IMReadAnyDepth)
	defer mat.Close()
	require.False(t, mat.Empty())
	assert.Equal(t, gocv.MatTypeCV32FC1, mat.Type())
	for x, v := range g.Data {
		assert.InDelta(t, v, float64(mat.GetFloatAt(0, x)), 1e-6)
	}
}

func TestSavePosteriorRejectsEightBitFormats(t *testing.T) {
	g := models.NewUniformGrid(2, 2, 3)

	err := NewSaver(nil).SavePosterior(filepath.Join(t.TempDir(), "po.png"), g)
	assert.ErrorContains(t, err, ".tif")
}

func TestHistogramRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fg.yaml")

	h, err := histogram.New(1, 4)
	require.NoError(t, err)
	require.NoError(t, h.SetVector([]float64{0.5, 0.25, 0.25, 0}))

	require.NoError(t, NewSaver(nil).SaveHistogram(path, h))

	back, err := NewLoader(nil).LoadHistogram(path)
	require.NoError(t, err)
	assert.Equal(t, h.Vector(), back.Vector())
}

func TestSavePlot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "marginals.png")

	h, err := histogram.New(1, 4)
	require.NoError(t, err)
	require.NoError(t, h.SetVector([]float64{0.5, 0.25, 0.25, 0}))

	require.NoError(t, NewSaver(nil).SavePlot(path, "gray", []string{"gray"}, report.Series{Name: "object", Histogram: h}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	assert.Error(t, NewSaver(nil).SavePlot(path, "none", nil))
}

func TestSaveEmptyHistogramFails(t *testing.T) {
	h, err := histogram.New(1, 4)
	require.NoError(t, err)

	err = NewSaver(nil).SaveHistogram(filepath.Join(t.TempDir(), "h.yaml"), h)
	assert.ErrorIs(t, err, histogram.ErrUninitializedHistogram)
}

func TestLoadImageColorSpaces(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scene.png")

	img, err := models.NewImage(5, 4, 3)
	require.NoError(t, err)
	for i := range img.Planes[0] {
		img.Planes[0][i] = 30
		img.Planes[1][i] = 90
		img.Planes[2][i] = 150
	}
	mat, err := conversion.ImageToMat(img)
	require.NoError(t, err)
	defer mat.Close()
	require.True(t, gocv.IMWrite(path, mat))

	l := NewLoader(nil)

	gray, err := l.LoadImage(path, models.ColorSpaceGray)
	require.NoError(t, err)
	assert.Equal(t, 1, gray.Channels())
	assert.Equal(t, 5, gray.Width)
	assert.Equal(t, 4, gray.Height)

	bgr, err := l.LoadImage(path, models.ColorSpaceBGR)
	require.NoError(t, err)
	assert.Equal(t, img.Planes, bgr.Planes)

	hsv, err := l.LoadImage(path, models.ColorSpaceHSV)
	require.NoError(t, err)
	assert.Equal(t, 3, hsv.Channels())
}

func TestLoadMissingFiles(t *testing.T) {
	l := NewLoader(nil)
	missing := filepath.Join(t.TempDir(), "missing.png")

	_, err := l.LoadImage(missing, models.ColorSpaceBGR)
	assert.Error(t, err)
	_, err = l.LoadGrid(missing)
	assert.Error(t, err)
	_, err = l.LoadMask(missing)
	assert.Error(t, err)
	_, err = l.LoadHistogram(missing)
	assert.Error(t, err)
}

func TestLoadImageRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.png")
	require.NoError(t, os.WriteFile(path, []byte("not an image"), 0o600))

	_, err := NewLoader(nil).LoadImage(path, models.ColorSpaceBGR)
	assert.Error(t, err)
}

func TestDetermineFormat(t *testing.T) {
	assert.Equal(t, "png", determineFormat("a/B.PNG"))
	assert.Equal(t, "tiff", determineFormat("x.tif"))
	assert.Equal(t, "unknown", determineFormat("x"))
}

func TestLoadImageWithSmoothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dot.png")

	mask := models.NewMask(9, 9)
	mask.Set(4, 4, true)
	require.NoError(t, NewSaver(nil).SaveMask(path, mask))

	l := NewLoader(nil)
	l.Smoothing = 1.0

	img, err := l.LoadImage(path, models.ColorSpaceGray)
	require.NoError(t, err)
	assert.Less(t, img.At(4, 4, 0), uint8(255))
	assert.Greater(t, img.At(5, 4, 0), uint8(0))
}
