package pipeline

import (
	"histoseg/internal/models"
	"histoseg/internal/processing/histogram"
	"histoseg/internal/report"
)

// ImageSource reads the inputs of a run.
type ImageSource interface {
	LoadImage(path string, space models.ColorSpace) (*models.Image, error)
	// LoadGrid reads a grayscale image as values in [0, 1].
	LoadGrid(path string) (*models.Grid, error)
	LoadMask(path string) (*models.Mask, error)
	LoadHistogram(path string, opts ...histogram.Option) (*histogram.Histogram, error)
}

// ResultSink writes the outputs of a run.
type ResultSink interface {
	SaveMask(path string, mask *models.Mask) error
	SaveProbability(path string, prob *models.Grid) error
	// SavePosterior writes an unnormalised posterior map without rescaling.
	SavePosterior(path string, post *models.Grid) error
	SaveHistogram(path string, h *histogram.Histogram) error
	// SavePlot draws the per-channel marginals of the given histograms.
	SavePlot(path, title string, channels []string, series ...report.Series) error
}
